package feeds

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Forecast is a one-step-ahead price projection for a (symbol, interval).
type Forecast struct {
	Symbol         string  `json:"symbol"`
	Interval       string  `json:"interval"`
	CurrentPrice   float64 `json:"current_price"`
	PredictedPrice float64 `json:"predicted_price"`
	ChangePct      float64 `json:"change_pct"`
	Direction      string  `json:"direction"` // "up", "down", "flat"
}

var forecastIntervals = []string{"15m", "1h"}

// fetchForecasts projects the next bar per symbol and interval by linear
// regression over the last 20 closes.
func (f *Fetcher) fetchForecasts(ctx context.Context, symbols []string) (string, []Forecast, error) {
	if f.venue == nil {
		return "", nil, fmt.Errorf("no venue configured for forecasts")
	}

	var out []Forecast
	for _, symbol := range symbols {
		for _, interval := range forecastIntervals {
			candles, err := f.venue.CandlesSnapshot(ctx, symbol, interval, 50)
			if err != nil {
				f.log.Debug().Err(err).Str("symbol", symbol).Str("interval", interval).
					Msg("forecast candles unavailable")
				continue
			}

			closes := make([]float64, 0, len(candles))
			for _, c := range candles {
				px, _ := strconv.ParseFloat(c.Close, 64)
				closes = append(closes, px)
			}
			fc, ok := projectNext(symbol, interval, closes)
			if ok {
				out = append(out, fc)
			}
		}
	}
	if len(out) == 0 {
		return "", nil, fmt.Errorf("no forecasts produced")
	}

	var sb strings.Builder
	sb.WriteString("Price projections (linear trend, next bar):\n")
	for _, fc := range out {
		fmt.Fprintf(&sb, "- %s %s: %.6g -> %.6g (%+.2f%%, %s)\n",
			fc.Symbol, fc.Interval, fc.CurrentPrice, fc.PredictedPrice, fc.ChangePct, fc.Direction)
	}
	return strings.TrimRight(sb.String(), "\n"), out, nil
}

// projectNext fits a least-squares line to the last 20 closes and
// extrapolates one step.
func projectNext(symbol, interval string, closes []float64) (Forecast, bool) {
	const window = 20
	if len(closes) < window {
		return Forecast{}, false
	}
	closes = closes[len(closes)-window:]

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range closes {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	n := float64(window)
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return Forecast{}, false
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	current := closes[window-1]
	predicted := intercept + slope*n
	if current <= 0 || predicted <= 0 {
		return Forecast{}, false
	}

	changePct := (predicted - current) / current * 100
	direction := "flat"
	switch {
	case changePct > 0.05:
		direction = "up"
	case changePct < -0.05:
		direction = "down"
	}

	return Forecast{
		Symbol:         symbol,
		Interval:       interval,
		CurrentPrice:   current,
		PredictedPrice: predicted,
		ChangePct:      changePct,
		Direction:      direction,
	}, true
}
