package screener

import (
	"fmt"
	"math"
	"time"
)

// CoinMetrics is a single-instant snapshot of one asset. Zero means the
// metric is unavailable; factor scoring treats missing data as neutral.
type CoinMetrics struct {
	Symbol          string  `json:"symbol"`
	Price           float64 `json:"price"`
	Volume24hUSD    float64 `json:"volume_24h_usd"`
	MarketCapUSD    float64 `json:"market_cap_usd"`
	OpenInterestUSD float64 `json:"open_interest_usd"`
	FundingRate     float64 `json:"funding_rate"`
	SpreadPct       float64 `json:"spread_pct"`
	DaysListed      int     `json:"days_listed"`

	Price7dAgo   float64 `json:"price_7d_ago"`
	Price30dAgo  float64 `json:"price_30d_ago"`
	Volume7dAvg  float64 `json:"volume_7d_avg"`
	Volume30dAvg float64 `json:"volume_30d_avg"`
	OI7dAgo      float64 `json:"oi_7d_ago"`

	ATR14    float64 `json:"atr_14"`
	ATRSMA20 float64 `json:"atr_sma_20"`
	ADX14    float64 `json:"adx_14"`
	PlusDI   float64 `json:"plus_di"`
	MinusDI  float64 `json:"minus_di"`
	EMA20    float64 `json:"ema_20"`
	EMA50    float64 `json:"ema_50"`
	EMA200   float64 `json:"ema_200"`

	DonchianUpper    float64  `json:"donchian_upper"`
	DonchianLower    float64  `json:"donchian_lower"`
	DonchianPosition *float64 `json:"donchian_position,omitempty"`

	IsStablecoin bool `json:"is_stablecoin"`
}

// CoinScore is one scored, ranked asset.
type CoinScore struct {
	Symbol      string             `json:"symbol"`
	Score       float64            `json:"score"` // 0-100
	Rank        int                `json:"rank"`  // 1-based, dense
	Factors     map[string]float64 `json:"factors"`
	Metrics     CoinMetrics        `json:"metrics"`
	LastUpdated time.Time          `json:"last_updated"`
}

const (
	TypeFullRebalance = "full_rebalance"
	TypeDailyUpdate   = "daily_update"
)

// Result is the outcome of one screening pass.
type Result struct {
	SelectedCoins      []CoinScore `json:"selected_coins"`
	ExcludedCoins      []string    `json:"excluded_coins"`
	ScreeningTimestamp time.Time   `json:"screening_timestamp"`
	NextRebalance      time.Time   `json:"next_rebalance"`
	ScreeningType      string      `json:"screening_type"`
}

// HardFilterConfig holds the exclusion thresholds.
type HardFilterConfig struct {
	MinVolume24hUSD    float64
	MinMarketCapUSD    float64
	MinDaysListed      int
	MinOpenInterestUSD float64
	MaxSpreadPct       float64
}

func DefaultFilterConfig() HardFilterConfig {
	return HardFilterConfig{
		MinVolume24hUSD:    50_000_000,
		MinMarketCapUSD:    250_000_000,
		MinDaysListed:      30,
		MinOpenInterestUSD: 10_000_000,
		MaxSpreadPct:       0.5,
	}
}

// ScoringWeights combine the eleven factors; they must sum to 1.
type ScoringWeights struct {
	Momentum7d       float64
	Momentum30d      float64
	VolatilityRegime float64
	VolumeTrend      float64
	OITrend          float64
	FundingStability float64
	LiquidityScore   float64
	RelativeStrength float64
	ADXStrength      float64
	EMAAlignment     float64
	DonchianPosition float64
}

func DefaultWeights() ScoringWeights {
	return ScoringWeights{
		Momentum7d:       0.15,
		Momentum30d:      0.10,
		VolatilityRegime: 0.10,
		VolumeTrend:      0.10,
		OITrend:          0.08,
		FundingStability: 0.07,
		LiquidityScore:   0.05,
		RelativeStrength: 0.05,
		ADXStrength:      0.12,
		EMAAlignment:     0.10,
		DonchianPosition: 0.08,
	}
}

func (w ScoringWeights) sum() float64 {
	return w.Momentum7d + w.Momentum30d + w.VolatilityRegime + w.VolumeTrend +
		w.OITrend + w.FundingStability + w.LiquidityScore + w.RelativeStrength +
		w.ADXStrength + w.EMAAlignment + w.DonchianPosition
}

// Validate rejects weight sets that do not sum to 1 within tolerance.
func (w ScoringWeights) Validate() error {
	if d := math.Abs(w.sum() - 1.0); d >= 1e-3 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.4f", w.sum())
	}
	return nil
}
