package hyperliquid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundSizeFloors(t *testing.T) {
	tests := []struct {
		name       string
		size       float64
		szDecimals int
		minSz      float64
		want       float64
	}{
		{"floors down", 0.0069, 3, 0.001, 0.006},
		{"exact value unchanged", 0.006, 3, 0.001, 0.006},
		{"clamps to min", 0.0004, 3, 0.001, 0.001},
		{"zero decimals", 12.9, 0, 1, 12},
		{"large size", 1234.56789, 2, 0.01, 1234.56},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoundSize(tt.size, tt.szDecimals, tt.minSz))
		})
	}
}

func TestRoundSizeIdempotent(t *testing.T) {
	for _, sz := range []float64{0.0069, 1.23456, 999.999, 0.001} {
		once := RoundSize(sz, 3, 0.001)
		assert.Equal(t, once, RoundSize(once, 3, 0.001))
	}
}

func TestRoundPrice(t *testing.T) {
	// Five significant figures, capped decimals.
	assert.Equal(t, 50123.0, RoundPrice(50123.456, 5))
	assert.Equal(t, 1.2346, RoundPrice(1.234567, 2))
	assert.Equal(t, 0.12346, RoundPrice(0.12345678, 1))
}

func TestSlippagePriceDirection(t *testing.T) {
	buy := SlippagePrice(100, true, 0.01, 2)
	sell := SlippagePrice(100, false, 0.01, 2)
	assert.Greater(t, buy, 100.0)
	assert.Less(t, sell, 100.0)
	assert.Equal(t, 101.0, buy)
	assert.Equal(t, 99.0, sell)
}

func TestFindPosition(t *testing.T) {
	positions := []Position{
		{Symbol: "BTC", Size: 0.5},
		{Symbol: "kPEPE", Size: -100},
	}

	p, ok := FindPosition(positions, "BTC")
	assert.True(t, ok)
	assert.Equal(t, "BTC", p.Symbol)

	p, ok = FindPosition(positions, "PEPE")
	assert.True(t, ok)
	assert.Equal(t, "kPEPE", p.Symbol)

	_, ok = FindPosition(positions, "ETH")
	assert.False(t, ok)
}

func TestExtractPositionsSkipsZeroSize(t *testing.T) {
	st := &UserState{}
	st.AssetPositions = make([]AssetPosition, 2)
	st.AssetPositions[0].Position.Coin = "BTC"
	st.AssetPositions[0].Position.Szi = "0.5"
	st.AssetPositions[0].Position.EntryPx = "50000"
	st.AssetPositions[1].Position.Coin = "ETH"
	st.AssetPositions[1].Position.Szi = "0.0"

	out := extractPositions(st)
	assert.Len(t, out, 1)
	assert.Equal(t, "BTC", out[0].Symbol)
	assert.Equal(t, "long", out[0].Side())
}

func TestPositionSide(t *testing.T) {
	assert.Equal(t, "short", Position{Size: -1}.Side())
	assert.Equal(t, "long", Position{Size: 1}.Side())
}
