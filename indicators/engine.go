package indicators

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"hyper-agent/hyperliquid"
)

// Analysis is the per-ticker payload handed to the decision layer.
type Analysis struct {
	Symbol       string      `json:"symbol"`
	Price        float64     `json:"price"`
	EMA20        float64     `json:"ema_20"`
	MACDHist     float64     `json:"macd_hist"`
	RSI7         float64     `json:"rsi_7"`
	RSI14        float64     `json:"rsi_14"`
	Pivots       PivotPoints `json:"pivots"`
	BidTotal     float64     `json:"bid_total"`
	AskTotal     float64     `json:"ask_total"`
	OpenInterest float64     `json:"open_interest"`
	FundingRate  float64     `json:"funding_rate"`

	LongerTerm LongerTerm `json:"longer_term"`
}

// LongerTerm widens the intraday view for the prompt.
type LongerTerm struct {
	EMA20         float64   `json:"ema_20"`
	EMA50         float64   `json:"ema_50"`
	ATR3          float64   `json:"atr_3"`
	ATR14         float64   `json:"atr_14"`
	CurrentVolume float64   `json:"current_volume"`
	AvgVolume     float64   `json:"avg_volume"`
	MACDSeries    []float64 `json:"macd_series"`
	RSI14Series   []float64 `json:"rsi_14_series"`
}

// AssetState carries the venue's live funding and open interest, refreshed
// once per cycle from the asset contexts call.
type AssetState struct {
	FundingRate  float64
	OpenInterest float64
}

// Engine builds analyses from venue OHLCV and order book data.
type Engine struct {
	venue *hyperliquid.Client
	log   zerolog.Logger

	mu     sync.RWMutex
	states map[string]AssetState
}

func NewEngine(venue *hyperliquid.Client, log zerolog.Logger) *Engine {
	return &Engine{
		venue:  venue,
		log:    log,
		states: make(map[string]AssetState),
	}
}

// UpdateAssetStates replaces the cached funding/open-interest view. Called by
// the orchestrator once per cycle so scoring sees real values.
func (e *Engine) UpdateAssetStates(states map[string]AssetState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = states
}

func (e *Engine) assetState(symbol string) AssetState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.states[symbol]
}

// BarsFromCandles converts venue candles into numeric bars.
func BarsFromCandles(candles []hyperliquid.Candle) []Bar {
	bars := make([]Bar, len(candles))
	for i, c := range candles {
		bars[i] = Bar{
			Time:   c.OpenTime,
			Open:   atof(c.Open),
			High:   atof(c.High),
			Low:    atof(c.Low),
			Close:  atof(c.Close),
			Volume: atof(c.Volume),
		}
	}
	return bars
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// Analyze builds the full payload for one symbol: 15m base interval plus
// daily bars for pivots and the order book snapshot.
func (e *Engine) Analyze(ctx context.Context, symbol string) (*Analysis, error) {
	candles, err := e.venue.CandlesSnapshot(ctx, symbol, "15m", 100)
	if err != nil {
		return nil, fmt.Errorf("15m candles for %s: %w", symbol, err)
	}
	bars := BarsFromCandles(candles)
	if len(bars) < 30 {
		return nil, fmt.Errorf("insufficient candles for %s: %d", symbol, len(bars))
	}

	a := &Analysis{
		Symbol: symbol,
		Price:  bars[len(bars)-1].Close,
		EMA20:  EMA(bars, 20),
		RSI7:   RSI(bars, 7),
		RSI14:  RSI(bars, 14),
	}
	_, _, a.MACDHist = MACD(bars)

	// Pivots come from the previous completed day.
	daily, err := e.venue.CandlesSnapshot(ctx, symbol, "1d", 5)
	if err == nil {
		dbars := BarsFromCandles(daily)
		if len(dbars) >= 2 {
			a.Pivots = Pivots(dbars[len(dbars)-2])
		}
	} else {
		e.log.Warn().Err(err).Str("symbol", symbol).Msg("daily candles unavailable, skipping pivots")
	}

	if book, err := e.venue.L2Snapshot(ctx, symbol); err == nil {
		a.BidTotal, a.AskTotal = bookTotals(book)
	} else {
		e.log.Warn().Err(err).Str("symbol", symbol).Msg("order book unavailable")
	}

	st := e.assetState(symbol)
	a.FundingRate = st.FundingRate
	a.OpenInterest = st.OpenInterest

	a.LongerTerm = longerTerm(bars)

	return a, nil
}

func bookTotals(book *hyperliquid.L2Book) (bid, ask float64) {
	for _, lvl := range book.Levels[0] {
		bid += atof(lvl.Sz)
	}
	for _, lvl := range book.Levels[1] {
		ask += atof(lvl.Sz)
	}
	return bid, ask
}

func longerTerm(bars []Bar) LongerTerm {
	lt := LongerTerm{
		EMA20: EMA(bars, 20),
		EMA50: EMA(bars, 50),
		ATR3:  ATR(bars, 3),
		ATR14: ATR(bars, 14),
	}

	vols := volumes(bars)
	if len(vols) > 0 {
		lt.CurrentVolume = vols[len(vols)-1]
		sum := 0.0
		for _, v := range vols {
			sum += v
		}
		lt.AvgVolume = sum / float64(len(vols))
	}

	c := closes(bars)
	if len(c) >= 35 {
		macd, _, _ := talib.Macd(c, 12, 26, 9)
		lt.MACDSeries = tail(macd, 10)
	}
	if len(c) > 14 {
		lt.RSI14Series = tail(talib.Rsi(c, 14), 10)
	}

	return lt
}

// Format renders the analysis as the text block embedded in prompts.
func (a *Analysis) Format() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "=== %s ===\n", a.Symbol)
	fmt.Fprintf(&sb, "Price: %.6g\n", a.Price)
	fmt.Fprintf(&sb, "EMA20: %.6g | MACD hist: %.6g\n", a.EMA20, a.MACDHist)
	fmt.Fprintf(&sb, "RSI(7): %.2f | RSI(14): %.2f\n", a.RSI7, a.RSI14)
	fmt.Fprintf(&sb, "Pivots: PP=%.6g S1=%.6g R1=%.6g S2=%.6g R2=%.6g\n",
		a.Pivots.PP, a.Pivots.S1, a.Pivots.R1, a.Pivots.S2, a.Pivots.R2)
	fmt.Fprintf(&sb, "Order book: bids=%.4g asks=%.4g\n", a.BidTotal, a.AskTotal)
	fmt.Fprintf(&sb, "Funding: %.6g | Open interest: %.6g\n", a.FundingRate, a.OpenInterest)

	lt := a.LongerTerm
	sb.WriteString("Longer term:\n")
	fmt.Fprintf(&sb, "  EMA20 vs EMA50: %.6g / %.6g\n", lt.EMA20, lt.EMA50)
	fmt.Fprintf(&sb, "  ATR(3) vs ATR(14): %.6g / %.6g\n", lt.ATR3, lt.ATR14)
	fmt.Fprintf(&sb, "  Volume: current=%.4g avg=%.4g\n", lt.CurrentVolume, lt.AvgVolume)
	fmt.Fprintf(&sb, "  MACD series: %s\n", formatSeries(lt.MACDSeries))
	fmt.Fprintf(&sb, "  RSI14 series: %s\n", formatSeries(lt.RSI14Series))

	return sb.String()
}

func formatSeries(s []float64) string {
	if len(s) == 0 {
		return "n/a"
	}
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.FormatFloat(v, 'g', 5, 64)
	}
	return strings.Join(parts, ", ")
}
