package screener

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Scorer turns filtered metrics into ranked composite scores. All factors
// are normalized to [0,1]; missing inputs score a neutral 0.5.
type Scorer struct {
	weights ScoringWeights
	log     zerolog.Logger
}

func NewScorer(weights ScoringWeights, log zerolog.Logger) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights, log: log}, nil
}

// Score ranks the coins highest first. BTC prices feed relative strength;
// pass zeros when BTC data is unavailable.
func (s *Scorer) Score(coins []CoinMetrics, btcPrice, btcPrice7d float64) []CoinScore {
	if len(coins) == 0 {
		return nil
	}

	scored := make([]CoinScore, 0, len(coins))
	for _, coin := range coins {
		factors := s.factors(coin, coins, btcPrice, btcPrice7d)
		scored = append(scored, CoinScore{
			Symbol:      coin.Symbol,
			Score:       s.composite(factors),
			Factors:     factors,
			Metrics:     coin,
			LastUpdated: time.Now().UTC(),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	for i := range scored {
		scored[i].Rank = i + 1
	}

	s.log.Info().Int("coins", len(scored)).Msg("scoring complete")
	return scored
}

func (s *Scorer) factors(coin CoinMetrics, all []CoinMetrics, btcPrice, btcPrice7d float64) map[string]float64 {
	return map[string]float64{
		"momentum_7d":       momentumPercentile(coin, all, 7),
		"momentum_30d":      momentumPercentile(coin, all, 30),
		"volatility_regime": volatilityRegime(coin),
		"volume_trend":      volumeTrend(coin),
		"oi_trend":          oiTrend(coin),
		"funding_stability": fundingStability(coin),
		"liquidity_score":   liquidityScore(coin),
		"relative_strength": relativeStrength(coin, btcPrice, btcPrice7d),
		"adx_strength":      adxStrength(coin),
		"ema_alignment":     emaAlignment(coin),
		"donchian_position": donchianTrend(coin),
	}
}

func (s *Scorer) composite(f map[string]float64) float64 {
	w := s.weights
	score := f["momentum_7d"]*w.Momentum7d +
		f["momentum_30d"]*w.Momentum30d +
		f["volatility_regime"]*w.VolatilityRegime +
		f["volume_trend"]*w.VolumeTrend +
		f["oi_trend"]*w.OITrend +
		f["funding_stability"]*w.FundingStability +
		f["liquidity_score"]*w.LiquidityScore +
		f["relative_strength"]*w.RelativeStrength +
		f["adx_strength"]*w.ADXStrength +
		f["ema_alignment"]*w.EMAAlignment +
		f["donchian_position"]*w.DonchianPosition
	return score * 100
}

func pastPrice(m CoinMetrics, days int) float64 {
	if days == 30 {
		return m.Price30dAgo
	}
	return m.Price7dAgo
}

// momentumPercentile ranks the coin's N-day return against the cohort.
// Strict percentile: share of cohort returns below this coin's return.
func momentumPercentile(coin CoinMetrics, all []CoinMetrics, days int) float64 {
	base := pastPrice(coin, days)
	if base <= 0 {
		return 0.5
	}
	ret := (coin.Price - base) / base

	var cohort []float64
	for _, c := range all {
		if b := pastPrice(c, days); b > 0 {
			cohort = append(cohort, (c.Price-b)/b)
		}
	}
	if len(cohort) == 0 {
		return 0.5
	}

	below := 0
	for _, r := range cohort {
		if r < ret {
			below++
		}
	}
	return float64(below) / float64(len(cohort))
}

// volatilityRegime rewards elevated volatility: 1 when ATR(14) sits above
// its 20-day average, otherwise 0.5.
func volatilityRegime(m CoinMetrics) float64 {
	if m.ATR14 <= 0 || m.ATRSMA20 <= 0 {
		return 0.5
	}
	if m.ATR14 > m.ATRSMA20 {
		return 1.0
	}
	return 0.5
}

// volumeTrend is the 7d/30d average volume ratio capped at 2x.
func volumeTrend(m CoinMetrics) float64 {
	if m.Volume7dAvg <= 0 || m.Volume30dAvg <= 0 {
		return 0.5
	}
	ratio := math.Min(m.Volume7dAvg/m.Volume30dAvg, 2.0)
	return ratio / 2.0
}

func oiTrend(m CoinMetrics) float64 {
	if m.OI7dAgo <= 0 {
		return 0.5
	}
	if m.OpenInterestUSD > m.OI7dAgo {
		return 1.0
	}
	return 0.5
}

// fundingStability prefers balanced markets: 1 - min(|funding|/0.01, 1).
func fundingStability(m CoinMetrics) float64 {
	return 1.0 - math.Min(math.Abs(m.FundingRate)/0.01, 1.0)
}

// liquidityScore prefers tight spreads: 1 - min(spread/0.5, 1).
func liquidityScore(m CoinMetrics) float64 {
	return 1.0 - math.Min(m.SpreadPct/0.5, 1.0)
}

// relativeStrength maps the 7d return over BTC into [0,1], with a ±50%
// relative performance range. 0.5 means matching BTC.
func relativeStrength(m CoinMetrics, btcPrice, btcPrice7d float64) float64 {
	if btcPrice <= 0 || btcPrice7d <= 0 || m.Price7dAgo <= 0 {
		return 0.5
	}
	coinRet := (m.Price - m.Price7dAgo) / m.Price7dAgo
	btcRet := (btcPrice - btcPrice7d) / btcPrice7d
	return clamp01((coinRet - btcRet + 0.5) / 1.0)
}

// adxStrength buckets trend strength: <20 ranging, 20-25 emerging,
// 25-40 strong, >=40 very strong.
func adxStrength(m CoinMetrics) float64 {
	if m.ADX14 <= 0 {
		return 0.5
	}
	switch {
	case m.ADX14 < 20:
		return 0.3
	case m.ADX14 < 25:
		return 0.5
	case m.ADX14 < 40:
		return 0.8
	default:
		return 1.0
	}
}

// emaAlignment starts neutral and adds for bullish structure: EMA20>EMA50
// (+0.2), EMA50>EMA200 (+0.2), price above EMA20 (+0.1).
func emaAlignment(m CoinMetrics) float64 {
	if m.EMA20 <= 0 || m.EMA50 <= 0 || m.Price <= 0 {
		return 0.5
	}
	score := 0.5
	if m.EMA20 > m.EMA50 {
		score += 0.2
	}
	if m.EMA200 > 0 && m.EMA50 > m.EMA200 {
		score += 0.2
	}
	if m.Price > m.EMA20 {
		score += 0.1
	}
	return math.Min(score, 1.0)
}

// donchianTrend scores channel position: >0.8 strong uptrend, 0.6-0.8
// moderate, 0.4-0.6 consolidation, below stays neutral.
func donchianTrend(m CoinMetrics) float64 {
	if m.DonchianPosition == nil {
		return 0.5
	}
	switch pos := *m.DonchianPosition; {
	case pos > 0.8:
		return 1.0
	case pos > 0.6:
		return 0.7
	case pos > 0.4:
		return 0.3
	default:
		return 0.5
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
