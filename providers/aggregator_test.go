package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name string
	tick *Ticker
	err  error
}

func (f *fakeProvider) Name() string                           { return f.name }
func (f *fakeProvider) CheckAvailability(context.Context) bool { return true }
func (f *fakeProvider) MarketData(context.Context, string) (*Ticker, error) {
	return f.tick, f.err
}

type fakePrimary struct {
	tick *Ticker
	err  error
}

func (f *fakePrimary) MarketData(context.Context, string) (*Ticker, error) {
	return f.tick, f.err
}

func TestAggregatorPartialFailure(t *testing.T) {
	primary := &fakePrimary{tick: &Ticker{Price: 101, Volume24h: 1000, Source: "hyperliquid"}}
	provs := []Provider{
		&fakeProvider{name: "good", tick: &Ticker{Price: 99, Volume24h: 500, FundingRate: ptr(0.0001)}},
		&fakeProvider{name: "bad", err: errors.New("boom")},
	}

	agg := NewAggregator(primary, provs, time.Second, zerolog.Nop())
	snap := agg.FetchSnapshot(context.Background(), "BTC")

	require.NotNil(t, snap.Hyperliquid)
	assert.Equal(t, "boom", snap.Providers["bad"].Error)
	assert.NotNil(t, snap.Providers["good"].Ticker)

	g := snap.GlobalMarket
	assert.Empty(t, g.Status)
	assert.Equal(t, 2, g.SourcesCount)
	assert.Equal(t, 100.0, g.AveragePrice)
	assert.Equal(t, 99.0, g.MinPrice)
	assert.Equal(t, 101.0, g.MaxPrice)
	assert.InDelta(t, (101.0-99.0)/99.0*100, g.PriceSpreadPct, 1e-9)
	assert.Equal(t, 1500.0, g.TotalVolumeGlobal)
	assert.InDelta(t, 0.0001, g.AverageFundingRate, 1e-12)

	require.NotNil(t, g.HyperliquidDeviationPct)
	assert.InDelta(t, 1.0, *g.HyperliquidDeviationPct, 1e-9)
	require.NotNil(t, g.IsHyperliquidPremium)
	assert.True(t, *g.IsHyperliquidPremium)
}

func TestAggregatorInsufficientData(t *testing.T) {
	provs := []Provider{&fakeProvider{name: "bad", err: errors.New("down")}}
	agg := NewAggregator(nil, provs, time.Second, zerolog.Nop())

	snap := agg.FetchSnapshot(context.Background(), "BTC")
	assert.Equal(t, "insufficient_data", snap.GlobalMarket.Status)
	assert.Nil(t, snap.Hyperliquid)
}

func TestFromConfigSkipsUnknown(t *testing.T) {
	provs := FromConfig([]string{"binance", "nope", "kraken"}, time.Second, zerolog.Nop())
	require.Len(t, provs, 2)
	assert.Equal(t, "binance", provs[0].Name())
	assert.Equal(t, "kraken", provs[1].Name())
}

func TestKnownNames(t *testing.T) {
	for _, name := range []string{"binance", "bybit", "okx", "kraken", "kucoin", "mexc", "gate", "bitget", "bingx", "htx", "cryptocom"} {
		assert.True(t, Known(name), name)
	}
	assert.False(t, Known("coinbase"))
}

func TestStablecoinDetection(t *testing.T) {
	cg := NewCoinGecko("")
	assert.True(t, cg.IsStablecoin("USDT"))
	assert.True(t, cg.IsStablecoin("usdc"))
	assert.False(t, cg.IsStablecoin("BTC"))
	assert.Equal(t, "bitcoin", cg.CoinID("BTC"))
	assert.Equal(t, "", cg.CoinID("UNKNOWNCOIN"))
}
