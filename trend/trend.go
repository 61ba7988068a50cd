// Package trend validates multi-timeframe trend quality before a position
// is opened: daily direction, hourly momentum, then 15m entry timing.
package trend

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"hyper-agent/hyperliquid"
	"hyper-agent/indicators"
)

type Direction string

const (
	StrongBullish Direction = "strong_bullish"
	Bullish       Direction = "bullish"
	Neutral       Direction = "neutral"
	Bearish       Direction = "bearish"
	StrongBearish Direction = "strong_bearish"
)

func (d Direction) isBullish() bool {
	return d == Bullish || d == StrongBullish
}

func (d Direction) isBearish() bool {
	return d == Bearish || d == StrongBearish
}

type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityModerate  Quality = "moderate"
	QualityPoor      Quality = "poor"
	QualityInvalid   Quality = "invalid"
)

// Confirmation is the outcome of one multi-timeframe pass.
type Confirmation struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Quality    Quality   `json:"quality"`
	Confidence float64   `json:"confidence"`

	DailyTrend  Direction `json:"daily_trend"`
	HourlyTrend Direction `json:"hourly_trend"`
	M15Trend    Direction `json:"m15_trend"`

	DailyADX      float64 `json:"daily_adx"`
	HourlyRSI     float64 `json:"hourly_rsi"`
	M15MACDSignal string  `json:"m15_macd_signal"`

	ShouldTrade          bool   `json:"should_trade"`
	RecommendedDirection string `json:"recommended_direction,omitempty"` // "long" or "short"
	EntryQuality         string `json:"entry_quality"`                   // optimal, acceptable, wait
}

func (c *Confirmation) String() string {
	return fmt.Sprintf("%s: %s (quality=%s conf=%.0f%% trade=%t entry=%s)",
		c.Symbol, c.Direction, c.Quality, c.Confidence*100, c.ShouldTrade, c.EntryQuality)
}

// DailyMetrics lets the screener's precomputed daily indicators skip a
// candle fetch.
type DailyMetrics struct {
	ADX14   float64
	PlusDI  float64
	MinusDI float64
}

// Venue is the candle source for the three timeframes.
type Venue interface {
	CandlesSnapshot(ctx context.Context, symbol, interval string, limit int) ([]hyperliquid.Candle, error)
}

// Engine runs top-down trend confirmation.
type Engine struct {
	venue Venue
	log   zerolog.Logger

	adxThreshold  float64
	rsiOverbought float64
	rsiOversold   float64
	minConfidence float64
	allowScalping bool
}

// Config carries the tunable thresholds. Zero values fall back to the
// defaults (ADX 25, RSI 70/30, confidence 0.6).
type Config struct {
	ADXThreshold  float64
	RSIOverbought float64
	RSIOversold   float64
	MinConfidence float64

	// AllowScalping lets RSI extremes pass the trade gate on any
	// tradeable quality instead of excellent trends only.
	AllowScalping bool
}

func NewEngine(venue Venue, cfg Config, log zerolog.Logger) *Engine {
	if cfg.ADXThreshold <= 0 {
		cfg.ADXThreshold = 25
	}
	if cfg.RSIOverbought <= 0 {
		cfg.RSIOverbought = 70
	}
	if cfg.RSIOversold <= 0 {
		cfg.RSIOversold = 30
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.6
	}
	return &Engine{
		venue:         venue,
		log:           log,
		adxThreshold:  cfg.ADXThreshold,
		rsiOverbought: cfg.RSIOverbought,
		rsiOversold:   cfg.RSIOversold,
		minConfidence: cfg.MinConfidence,
		allowScalping: cfg.AllowScalping,
	}
}

type timeframe struct {
	direction Direction

	adx, plusDI, minusDI float64

	rsi       float64
	rsiSignal string

	macdSignal string
	nearEMA    bool
}

// Confirm analyzes daily, hourly and 15m timeframes. Errors collapse into
// a conservative no-trade result rather than propagating.
func (e *Engine) Confirm(ctx context.Context, symbol string, daily *DailyMetrics) *Confirmation {
	d := e.analyzeDaily(ctx, symbol, daily)
	h := e.analyzeHourly(ctx, symbol)
	m15 := e.analyze15m(ctx, symbol)

	direction, quality, confidence := alignment(d, h, m15)

	c := &Confirmation{
		Symbol:        symbol,
		Direction:     direction,
		Quality:       quality,
		Confidence:    confidence,
		DailyTrend:    d.direction,
		HourlyTrend:   h.direction,
		M15Trend:      m15.direction,
		DailyADX:      d.adx,
		HourlyRSI:     h.rsi,
		M15MACDSignal: m15.macdSignal,
		ShouldTrade:   e.shouldTrade(quality, confidence, h),
		EntryQuality:  entryQuality(m15, direction),
	}
	if direction.isBullish() {
		c.RecommendedDirection = "long"
	} else if direction.isBearish() {
		c.RecommendedDirection = "short"
	}

	e.log.Info().Str("symbol", symbol).Str("direction", string(direction)).
		Str("quality", string(quality)).Float64("confidence", confidence).
		Bool("should_trade", c.ShouldTrade).Str("entry", c.EntryQuality).
		Msg("trend confirmation")
	return c
}

// analyzeDaily classifies the dominant trend from ADX and the directional
// indexes, preferring metrics already computed by the screener.
func (e *Engine) analyzeDaily(ctx context.Context, symbol string, pre *DailyMetrics) timeframe {
	var adx, plusDI, minusDI float64
	if pre != nil {
		adx, plusDI, minusDI = pre.ADX14, pre.PlusDI, pre.MinusDI
	} else {
		bars, err := e.fetchBars(ctx, symbol, "1d", 50)
		if err != nil || len(bars) < 28 {
			return timeframe{direction: Neutral}
		}
		adx, plusDI, minusDI = indicators.ADX(bars, 14)
	}

	tf := timeframe{direction: Neutral, adx: adx, plusDI: plusDI, minusDI: minusDI}
	if adx > e.adxThreshold {
		switch {
		case plusDI > minusDI && adx > 40:
			tf.direction = StrongBullish
		case plusDI > minusDI:
			tf.direction = Bullish
		case adx > 40:
			tf.direction = StrongBearish
		default:
			tf.direction = Bearish
		}
	}
	return tf
}

// analyzeHourly confirms momentum: price against the EMA stack plus RSI
// extremes.
func (e *Engine) analyzeHourly(ctx context.Context, symbol string) timeframe {
	bars, err := e.fetchBars(ctx, symbol, "1h", 100)
	if err != nil || len(bars) < 50 {
		return timeframe{direction: Neutral, rsi: 50, rsiSignal: "unknown"}
	}

	price := bars[len(bars)-1].Close
	ema20 := indicators.EMA(bars, 20)
	ema50 := indicators.EMA(bars, 50)
	rsi := indicators.RSI(bars, 14)

	tf := timeframe{direction: Neutral, rsi: rsi, rsiSignal: "normal"}
	if price > ema20 && ema20 > ema50 {
		tf.direction = Bullish
	} else if price < ema20 && ema20 < ema50 {
		tf.direction = Bearish
	}
	if rsi > e.rsiOverbought {
		tf.rsiSignal = "overbought"
	} else if rsi < e.rsiOversold {
		tf.rsiSignal = "oversold"
	}
	return tf
}

// analyze15m times the entry: MACD momentum and distance to EMA20.
func (e *Engine) analyze15m(ctx context.Context, symbol string) timeframe {
	bars, err := e.fetchBars(ctx, symbol, "15m", 100)
	if err != nil || len(bars) < 50 {
		return timeframe{direction: Neutral, macdSignal: "unknown"}
	}

	macd, signal, hist := indicators.MACD(bars)

	tf := timeframe{direction: Neutral, macdSignal: "neutral"}
	if macd > signal && hist > 0 {
		tf.direction = Bullish
		tf.macdSignal = "bullish"
	} else if macd < signal && hist < 0 {
		tf.direction = Bearish
		tf.macdSignal = "bearish"
	}

	price := bars[len(bars)-1].Close
	if ema20 := indicators.EMA(bars, 20); ema20 > 0 {
		distPct := math.Abs(price-ema20) / ema20 * 100
		tf.nearEMA = distPct < 0.5
	}
	return tf
}

// alignment merges the three timeframes into direction, quality and
// confidence. Daily/hourly agreement carries the most weight.
func alignment(daily, hourly, m15 timeframe) (Direction, Quality, float64) {
	bullish, bearish := 0, 0
	for _, tf := range []timeframe{daily, hourly, m15} {
		if tf.direction.isBullish() {
			bullish++
		} else if tf.direction.isBearish() {
			bearish++
		}
	}

	direction := Neutral
	switch {
	case bullish == 3:
		direction = StrongBullish
	case bullish == 2:
		direction = Bullish
	case bearish == 3:
		direction = StrongBearish
	case bearish == 2:
		direction = Bearish
	}

	switch {
	case bullish == 3 || bearish == 3:
		return direction, QualityExcellent, 0.95
	case bullish == 2 || bearish == 2:
		dailyHourlyAligned := (daily.direction.isBullish() && hourly.direction.isBullish()) ||
			(daily.direction.isBearish() && hourly.direction.isBearish())
		if dailyHourlyAligned {
			return direction, QualityGood, 0.80
		}
		return direction, QualityModerate, 0.65
	default:
		return direction, QualityPoor, 0.40
	}
}

func (e *Engine) shouldTrade(quality Quality, confidence float64, hourly timeframe) bool {
	if quality == QualityPoor || quality == QualityInvalid {
		return false
	}
	if confidence < e.minConfidence {
		return false
	}
	// RSI extremes only pass on an excellent trend, unless scalping mode
	// accepts momentum entries at extremes.
	if hourly.rsiSignal == "overbought" || hourly.rsiSignal == "oversold" {
		return e.allowScalping || quality == QualityExcellent
	}
	return true
}

// entryQuality grades the 15m setup: optimal is a pullback to EMA20 with
// MACD agreeing, acceptable is MACD agreement alone.
func entryQuality(m15 timeframe, direction Direction) string {
	macdAligned := (direction.isBullish() && m15.macdSignal == "bullish") ||
		(direction.isBearish() && m15.macdSignal == "bearish")

	if m15.nearEMA && macdAligned {
		return "optimal"
	}
	if macdAligned {
		return "acceptable"
	}
	return "wait"
}

func (e *Engine) fetchBars(ctx context.Context, symbol, interval string, limit int) ([]indicators.Bar, error) {
	candles, err := e.venue.CandlesSnapshot(ctx, symbol, interval, limit)
	if err != nil {
		e.log.Debug().Err(err).Str("symbol", symbol).Str("interval", interval).Msg("candles unavailable")
		return nil, err
	}
	return indicators.BarsFromCandles(candles), nil
}
