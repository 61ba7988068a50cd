package screener

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyper-agent/hyperliquid"
	"hyper-agent/providers"
)

type fakeVenue struct {
	meta  hyperliquid.Meta
	ctxs  []hyperliquid.AssetCtx
	bars  map[string][]hyperliquid.Candle
	books map[string]*hyperliquid.L2Book
}

func (f *fakeVenue) MetaAndAssetCtxs(context.Context) (*hyperliquid.Meta, []hyperliquid.AssetCtx, error) {
	return &f.meta, f.ctxs, nil
}

func (f *fakeVenue) CandlesSnapshot(_ context.Context, symbol, _ string, _ int) ([]hyperliquid.Candle, error) {
	c, ok := f.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("no candles for %s", symbol)
	}
	return c, nil
}

func (f *fakeVenue) L2Snapshot(_ context.Context, symbol string) (*hyperliquid.L2Book, error) {
	b, ok := f.books[symbol]
	if !ok {
		return nil, fmt.Errorf("no book for %s", symbol)
	}
	return b, nil
}

type fakeOracle struct {
	data map[string]providers.MarketInfo
}

func (f *fakeOracle) MarketData(context.Context, []string) (map[string]providers.MarketInfo, error) {
	return f.data, nil
}

func (f *fakeOracle) IsStablecoin(symbol string) bool { return symbol == "USDT" }

func dailyCandles(n int, base float64) []hyperliquid.Candle {
	out := make([]hyperliquid.Candle, n)
	for i := range out {
		px := base * (1 + 0.002*float64(i))
		out[i] = hyperliquid.Candle{
			OpenTime: int64(i),
			Open:     fmt.Sprintf("%f", px),
			High:     fmt.Sprintf("%f", px*1.02),
			Low:      fmt.Sprintf("%f", px*0.98),
			Close:    fmt.Sprintf("%f", px),
			Volume:   "1000000",
		}
	}
	return out
}

func tightBook(px float64) *hyperliquid.L2Book {
	return &hyperliquid.L2Book{Levels: [2][]hyperliquid.L2Level{
		{{Px: fmt.Sprintf("%f", px*0.9999), Sz: "10"}},
		{{Px: fmt.Sprintf("%f", px*1.0001), Sz: "10"}},
	}}
}

func newTestScreener(t *testing.T, venue Venue, oracle MarketOracle, topN int) *Screener {
	t.Helper()
	s, err := New(venue, oracle, t.TempDir(), topN, []string{"BTC", "ETH"}, zerolog.Nop())
	require.NoError(t, err)
	// Tests should not sit behind the production pacing.
	s.limiter.SetLimit(1e6)
	return s
}

func TestRunFullScreeningSelectsTopN(t *testing.T) {
	venue := &fakeVenue{
		meta: hyperliquid.Meta{Universe: []hyperliquid.AssetInfo{
			{Name: "BTC"}, {Name: "ETH"}, {Name: "SOL"}, {Name: "USDT"},
		}},
		ctxs: []hyperliquid.AssetCtx{
			{MarkPx: "50000", OpenInterest: "10000", DayNtlVlm: "900000000"},
			{MarkPx: "3000", OpenInterest: "100000", DayNtlVlm: "400000000"},
			{MarkPx: "150", OpenInterest: "2000000", DayNtlVlm: "200000000"},
			{MarkPx: "1", OpenInterest: "100000000", DayNtlVlm: "90000000"},
		},
		bars: map[string][]hyperliquid.Candle{
			"BTC":  dailyCandles(250, 48000),
			"ETH":  dailyCandles(250, 2900),
			"SOL":  dailyCandles(250, 140),
			"USDT": dailyCandles(250, 1),
		},
		books: map[string]*hyperliquid.L2Book{
			"BTC": tightBook(50000), "ETH": tightBook(3000),
			"SOL": tightBook(150), "USDT": tightBook(1),
		},
	}
	oracle := &fakeOracle{data: map[string]providers.MarketInfo{
		"BTC": {MarketCapUSD: 1e12}, "ETH": {MarketCapUSD: 4e11},
		"SOL": {MarketCapUSD: 7e10}, "USDT": {MarketCapUSD: 1e11},
	}}

	s := newTestScreener(t, venue, oracle, 2)
	result, err := s.RunFullScreening(context.Background())
	require.NoError(t, err)

	assert.Equal(t, TypeFullRebalance, result.ScreeningType)
	assert.Len(t, result.SelectedCoins, 2)
	assert.Contains(t, result.ExcludedCoins, "USDT")
	assert.True(t, result.NextRebalance.After(result.ScreeningTimestamp))
	for i, c := range result.SelectedCoins {
		assert.Equal(t, i+1, c.Rank)
	}

	// Cached selection now feeds SelectedSymbols.
	syms := s.SelectedSymbols()
	assert.Len(t, syms, 2)
	assert.NotContains(t, syms, "USDT")

	assert.False(t, s.ShouldRebalance())
}

func TestSelectedSymbolsFallsBack(t *testing.T) {
	s := newTestScreener(t, &fakeVenue{}, &fakeOracle{}, 5)
	assert.Equal(t, []string{"BTC", "ETH"}, s.SelectedSymbols())
	assert.True(t, s.ShouldRebalance())
}

func TestOITrendUsesRecordedHistory(t *testing.T) {
	venue := &fakeVenue{
		meta: hyperliquid.Meta{Universe: []hyperliquid.AssetInfo{{Name: "BTC"}}},
		ctxs: []hyperliquid.AssetCtx{
			{MarkPx: "50000", OpenInterest: "10000", DayNtlVlm: "900000000"},
		},
		bars:  map[string][]hyperliquid.Candle{"BTC": dailyCandles(250, 48000)},
		books: map[string]*hyperliquid.L2Book{"BTC": tightBook(50000)},
	}
	s := newTestScreener(t, venue, &fakeOracle{}, 5)

	// A baseline sample from a week ago, below today's notional.
	hist := oiHistory{}
	hist.record("BTC", time.Now().UTC().AddDate(0, 0, -7), 1_000_000)
	s.cache.Set(cacheKeyOIHistory, hist)

	meta, ctxs, err := venue.MetaAndAssetCtxs(context.Background())
	require.NoError(t, err)
	metrics := s.fetchAllMetrics(context.Background(), meta, ctxs)
	require.Len(t, metrics, 1)

	assert.Equal(t, 1_000_000.0, metrics[0].OI7dAgo)
	assert.Greater(t, metrics[0].OpenInterestUSD, metrics[0].OI7dAgo)
	assert.Equal(t, 1.0, oiTrend(metrics[0]))

	// Today's sample was folded back into the cache for future passes.
	var stored oiHistory
	require.True(t, s.cache.Get(cacheKeyOIHistory, oiHistoryMaxAge, &stored))
	require.Len(t, stored["BTC"], 2)
}

func TestOIHistoryRecordAndLookback(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	h := oiHistory{}

	// One sample per day; a same-day record replaces, zero is ignored.
	h.record("ETH", now, 100)
	h.record("ETH", now, 150)
	h.record("ETH", now, 0)
	require.Len(t, h["ETH"], 1)
	assert.Equal(t, 150.0, h["ETH"][0].OIUSD)

	// No baseline yet: lookback misses, factor stays neutral.
	assert.Equal(t, 0.0, h.lookback("ETH", now, 7))
	assert.Equal(t, 0.5, oiTrend(CoinMetrics{OpenInterestUSD: 150}))

	// An 8-day-old sample is inside the tolerance window; 11 days is not.
	h.record("ETH", now.AddDate(0, 0, -8), 90)
	assert.Equal(t, 90.0, h.lookback("ETH", now, 7))
	h2 := oiHistory{}
	h2.record("ETH", now.AddDate(0, 0, -11), 90)
	assert.Equal(t, 0.0, h2.lookback("ETH", now, 7))
}

func TestCacheRoundTripAndExpiry(t *testing.T) {
	cache, err := NewCache(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	in := Result{ScreeningType: TypeFullRebalance, ScreeningTimestamp: time.Now().UTC()}
	cache.Set("last_screening", in)

	var out Result
	require.True(t, cache.Get("last_screening", time.Hour, &out))
	assert.Equal(t, TypeFullRebalance, out.ScreeningType)

	// Zero max age expires immediately.
	assert.False(t, cache.Get("last_screening", -time.Second, &out))
	assert.False(t, cache.Get("missing", time.Hour, &out))

	assert.Equal(t, 1, cache.Clear())
}
