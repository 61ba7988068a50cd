package screener

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"hyper-agent/hyperliquid"
	"hyper-agent/indicators"
	"hyper-agent/providers"
)

const (
	cacheKeyResult   = "last_screening"
	cacheKeySelected = "selected_coins"

	selectedMaxAge = time.Hour
	resultMaxAge   = 24 * time.Hour
)

// Venue is the slice of the exchange client the screener depends on.
type Venue interface {
	MetaAndAssetCtxs(ctx context.Context) (*hyperliquid.Meta, []hyperliquid.AssetCtx, error)
	CandlesSnapshot(ctx context.Context, symbol, interval string, limit int) ([]hyperliquid.Candle, error)
	L2Snapshot(ctx context.Context, symbol string) (*hyperliquid.L2Book, error)
}

// MarketOracle supplies off-venue fundamentals, normally CoinGecko.
type MarketOracle interface {
	MarketData(ctx context.Context, symbols []string) (map[string]providers.MarketInfo, error)
	IsStablecoin(symbol string) bool
}

// Screener selects the tradable universe: venue metrics merged with
// CoinGecko fundamentals, hard-filtered, scored and ranked weekly.
type Screener struct {
	venue    Venue
	gecko    MarketOracle
	filters  *HardFilters
	scorer   *Scorer
	cache    *Cache
	limiter  *rate.Limiter
	topN     int
	fallback []string
	log      zerolog.Logger

	lastResult *Result
}

func New(venue Venue, gecko MarketOracle, cacheDir string, topN int, fallback []string, log zerolog.Logger) (*Screener, error) {
	scorer, err := NewScorer(DefaultWeights(), log)
	if err != nil {
		return nil, err
	}
	cache, err := NewCache(cacheDir, log)
	if err != nil {
		return nil, fmt.Errorf("screener cache: %w", err)
	}
	return &Screener{
		venue:   venue,
		gecko:   gecko,
		filters: NewHardFilters(DefaultFilterConfig(), log),
		scorer:  scorer,
		cache:   cache,
		// Venue info endpoints rate limit aggressively; half a request per
		// second keeps a full-universe sweep under the ceiling.
		limiter:  rate.NewLimiter(rate.Every(2*time.Second), 1),
		topN:     topN,
		fallback: fallback,
		log:      log,
	}, nil
}

// RunFullScreening fetches the whole venue universe, filters, scores and
// selects the top N. Results are cached for the week.
func (s *Screener) RunFullScreening(ctx context.Context) (*Result, error) {
	s.log.Info().Msg("starting full coin screening")

	meta, ctxs, err := s.venue.MetaAndAssetCtxs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch universe: %w", err)
	}

	metrics := s.fetchAllMetrics(ctx, meta, ctxs)
	if len(metrics) == 0 {
		return nil, fmt.Errorf("no metrics fetched for %d symbols", len(meta.Universe))
	}

	passing, excluded := s.filters.Apply(metrics)
	if len(passing) == 0 {
		s.log.Warn().Msg("no coins passed hard filters")
		return s.finishResult(nil, excluded, TypeFullRebalance), nil
	}

	btcPrice, btcPrice7d := btcReference(metrics)
	scored := s.scorer.Score(passing, btcPrice, btcPrice7d)

	selected := scored
	if len(selected) > s.topN {
		selected = selected[:s.topN]
	}
	for _, c := range selected {
		s.log.Info().Str("symbol", c.Symbol).Float64("score", c.Score).Int("rank", c.Rank).Msg("selected")
	}

	return s.finishResult(selected, excluded, TypeFullRebalance), nil
}

// UpdateScores re-scores only the current selection. Falls back to a full
// screening when there is no prior result to update.
func (s *Screener) UpdateScores(ctx context.Context) (*Result, error) {
	last := s.CachedResult()
	if last == nil || len(last.SelectedCoins) == 0 {
		s.log.Warn().Msg("no previous screening, running full screening")
		return s.RunFullScreening(ctx)
	}

	want := make(map[string]bool, len(last.SelectedCoins))
	for _, c := range last.SelectedCoins {
		want[c.Symbol] = true
	}

	meta, ctxs, err := s.venue.MetaAndAssetCtxs(ctx)
	if err != nil {
		return last, fmt.Errorf("fetch universe: %w", err)
	}
	sub := &hyperliquid.Meta{}
	subCtxs := make([]hyperliquid.AssetCtx, 0, len(want))
	for i, asset := range meta.Universe {
		if !want[asset.Name] && asset.Name != "BTC" {
			continue
		}
		sub.Universe = append(sub.Universe, asset)
		if i < len(ctxs) {
			subCtxs = append(subCtxs, ctxs[i])
		} else {
			subCtxs = append(subCtxs, hyperliquid.AssetCtx{})
		}
	}

	metrics := s.fetchAllMetrics(ctx, sub, subCtxs)
	if len(metrics) == 0 {
		return last, fmt.Errorf("failed to refresh metrics for current selection")
	}

	btcPrice, btcPrice7d := btcReference(metrics)
	rescored := make([]CoinMetrics, 0, len(metrics))
	for _, m := range metrics {
		if want[m.Symbol] {
			rescored = append(rescored, m)
		}
	}
	scored := s.scorer.Score(rescored, btcPrice, btcPrice7d)
	if len(scored) > s.topN {
		scored = scored[:s.topN]
	}

	now := time.Now().UTC()
	result := &Result{
		SelectedCoins:      scored,
		ExcludedCoins:      last.ExcludedCoins,
		ScreeningTimestamp: now,
		NextRebalance:      last.NextRebalance,
		ScreeningType:      TypeDailyUpdate,
	}
	s.store(result)
	return result, nil
}

// SelectedSymbols returns the active universe, falling back to the cached
// selection and finally the static list when screening has never run.
func (s *Screener) SelectedSymbols() []string {
	var coins []CoinScore
	if s.cache.Get(cacheKeySelected, selectedMaxAge, &coins) && len(coins) > 0 {
		return symbolsOf(coins, s.topN)
	}
	if s.lastResult != nil && len(s.lastResult.SelectedCoins) > 0 {
		return symbolsOf(s.lastResult.SelectedCoins, s.topN)
	}
	s.log.Warn().Strs("fallback", s.fallback).Msg("no screening available, using fallback tickers")
	return s.fallback
}

// CachedResult returns the most recent screening from disk or memory.
func (s *Screener) CachedResult() *Result {
	var r Result
	if s.cache.Get(cacheKeyResult, resultMaxAge, &r) {
		return &r
	}
	return s.lastResult
}

// ShouldRebalance reports whether the weekly rebalance is due.
func (s *Screener) ShouldRebalance() bool {
	last := s.CachedResult()
	if last == nil {
		return true
	}
	return !time.Now().UTC().Before(last.NextRebalance)
}

func (s *Screener) finishResult(selected []CoinScore, excluded []string, kind string) *Result {
	now := time.Now().UTC()
	result := &Result{
		SelectedCoins:      selected,
		ExcludedCoins:      excluded,
		ScreeningTimestamp: now,
		NextRebalance:      NextRebalance(now),
		ScreeningType:      kind,
	}
	s.store(result)
	return result
}

func (s *Screener) store(result *Result) {
	s.lastResult = result
	s.cache.Set(cacheKeyResult, result)
	s.cache.Set(cacheKeySelected, result.SelectedCoins)
}

// NextRebalance is the next Sunday 00:00 UTC strictly after now.
func NextRebalance(now time.Time) time.Time {
	days := (7 - int(now.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	next := now.AddDate(0, 0, days)
	return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Screener) fetchAllMetrics(ctx context.Context, meta *hyperliquid.Meta, ctxs []hyperliquid.AssetCtx) []CoinMetrics {
	symbols := make([]string, 0, len(meta.Universe))
	out := make([]CoinMetrics, 0, len(meta.Universe))

	for i, asset := range meta.Universe {
		if err := s.limiter.Wait(ctx); err != nil {
			s.log.Warn().Err(err).Msg("metric fetch aborted")
			break
		}
		var actx hyperliquid.AssetCtx
		if i < len(ctxs) {
			actx = ctxs[i]
		}
		m, err := s.coinMetrics(ctx, asset.Name, actx)
		if err != nil {
			s.log.Debug().Err(err).Str("symbol", asset.Name).Msg("metrics unavailable")
			continue
		}
		out = append(out, *m)
		symbols = append(symbols, asset.Name)
	}

	// CoinGecko supplies market cap and, when richer, 24h volume.
	cg, err := s.gecko.MarketData(ctx, symbols)
	if err != nil {
		s.log.Warn().Err(err).Msg("coingecko data unavailable, market caps missing")
	}
	for i := range out {
		if info, ok := cg[out[i].Symbol]; ok {
			out[i].MarketCapUSD = info.MarketCapUSD
			if info.Volume24hUSD > out[i].Volume24hUSD {
				out[i].Volume24hUSD = info.Volume24hUSD
			}
		}
		out[i].IsStablecoin = s.gecko.IsStablecoin(out[i].Symbol)
	}

	// Fold today's open interest into the rolling history and read the
	// 7-day baseline back out for the oi_trend factor.
	hist := s.loadOIHistory()
	now := time.Now().UTC()
	for i := range out {
		hist.record(out[i].Symbol, now, out[i].OpenInterestUSD)
		out[i].OI7dAgo = hist.lookback(out[i].Symbol, now, oiLookbackDays)
	}
	s.cache.Set(cacheKeyOIHistory, hist)

	return out
}

// coinMetrics builds one symbol's snapshot from daily candles, the asset
// context and the order book.
func (s *Screener) coinMetrics(ctx context.Context, symbol string, actx hyperliquid.AssetCtx) (*CoinMetrics, error) {
	candles, err := s.venue.CandlesSnapshot(ctx, symbol, "1d", 250)
	if err != nil {
		return nil, fmt.Errorf("daily candles: %w", err)
	}
	bars := indicators.BarsFromCandles(candles)
	if len(bars) == 0 {
		return nil, fmt.Errorf("no daily candles for %s", symbol)
	}

	m := &CoinMetrics{
		Symbol:       symbol,
		Price:        bars[len(bars)-1].Close,
		FundingRate:  actx.FundingFloat(),
		DaysListed:   len(bars),
		Volume24hUSD: notionalVolume(bars, 1),
		Volume7dAvg:  notionalVolume(bars, 7),
		Volume30dAvg: notionalVolume(bars, 30),
	}
	if px := actx.MarkPxFloat(); px > 0 {
		m.Price = px
	}
	if vlm := actx.DayNtlVlmFloat(); vlm > 0 {
		m.Volume24hUSD = vlm
	}
	if oi := actx.OpenInterestFloat(); oi > 0 {
		m.OpenInterestUSD = oi * m.Price
	}

	m.Price7dAgo = closeNDaysAgo(bars, 7)
	m.Price30dAgo = closeNDaysAgo(bars, 30)
	m.ATR14, m.ATRSMA20 = atrMetrics(bars)

	if len(bars) >= 50 {
		m.ADX14, m.PlusDI, m.MinusDI = indicators.ADX(bars, 14)
		m.EMA20 = indicators.EMA(bars, 20)
		m.EMA50 = indicators.EMA(bars, 50)
		m.EMA200 = indicators.EMA(bars, 200)

		upper, lower, pos := indicators.Donchian(bars, 20)
		if upper > lower {
			m.DonchianUpper, m.DonchianLower = upper, lower
			m.DonchianPosition = &pos
		}
	}

	m.SpreadPct = s.spreadPct(ctx, symbol)
	return m, nil
}

// spreadPct returns the best bid/ask spread in percent. Missing books
// report the maximum allowed spread so the filter errs toward exclusion.
func (s *Screener) spreadPct(ctx context.Context, symbol string) float64 {
	const worst = 0.5

	book, err := s.venue.L2Snapshot(ctx, symbol)
	if err != nil || len(book.Levels[0]) == 0 || len(book.Levels[1]) == 0 {
		return worst
	}
	bid := parseF(book.Levels[0][0].Px)
	ask := parseF(book.Levels[1][0].Px)
	if bid <= 0 {
		return worst
	}
	return (ask - bid) / bid * 100
}

func btcReference(metrics []CoinMetrics) (price, price7d float64) {
	for _, m := range metrics {
		if m.Symbol == "BTC" {
			return m.Price, m.Price7dAgo
		}
	}
	return 0, 0
}

func symbolsOf(coins []CoinScore, n int) []string {
	if len(coins) > n {
		coins = coins[:n]
	}
	out := make([]string, len(coins))
	for i, c := range coins {
		out[i] = c.Symbol
	}
	return out
}

// closeNDaysAgo reads the close n completed days back, 0 when the history
// is too short.
func closeNDaysAgo(bars []indicators.Bar, n int) float64 {
	idx := len(bars) - 1 - n
	if idx < 0 {
		return 0
	}
	return bars[idx].Close
}

// notionalVolume averages base volume times close over the trailing days.
func notionalVolume(bars []indicators.Bar, days int) float64 {
	if len(bars) < days || days <= 0 {
		return 0
	}
	window := bars[len(bars)-days:]
	var vol, px float64
	for _, b := range window {
		vol += b.Volume
		px += b.Close
	}
	n := float64(len(window))
	return (vol / n) * (px / n)
}

// atrMetrics computes ATR(14) and its 20-day simple average.
func atrMetrics(bars []indicators.Bar) (atr14, atrSMA20 float64) {
	if len(bars) < 40 {
		return 0, 0
	}
	series := indicators.ATRSeries(bars, 14)
	if len(series) == 0 {
		return 0, 0
	}
	atr14 = series[len(series)-1]

	window := series
	if len(window) > 20 {
		window = window[len(window)-20:]
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	return atr14, sum / float64(len(window))
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
