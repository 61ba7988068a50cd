package indicators

import (
	"github.com/markcheno/go-talib"
)

// Bar is one OHLCV candle in numeric form.
type Bar struct {
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

func lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

func volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// last returns the final value of a series, or 0 for an empty one.
func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// tail returns the last n values, oldest first.
func tail(series []float64, n int) []float64 {
	if len(series) <= n {
		return series
	}
	return series[len(series)-n:]
}

// PivotPoints are classic floor-trader pivots from the previous day's OHLC.
type PivotPoints struct {
	PP float64 `json:"pp"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
}

// Pivots computes pivot levels from one daily bar.
func Pivots(prevDay Bar) PivotPoints {
	pp := (prevDay.High + prevDay.Low + prevDay.Close) / 3
	return PivotPoints{
		PP: pp,
		S1: 2*pp - prevDay.High,
		R1: 2*pp - prevDay.Low,
		S2: pp - (prevDay.High - prevDay.Low),
		R2: pp + (prevDay.High - prevDay.Low),
	}
}

// Donchian returns the channel bounds over the trailing period and the
// normalized position of the last close within it, clamped to [0,1].
func Donchian(bars []Bar, period int) (upper, lower, position float64) {
	if len(bars) == 0 {
		return 0, 0, 0.5
	}
	window := bars
	if len(window) > period {
		window = window[len(window)-period:]
	}

	upper, lower = window[0].High, window[0].Low
	for _, b := range window {
		if b.High > upper {
			upper = b.High
		}
		if b.Low < lower {
			lower = b.Low
		}
	}

	position = 0.5
	if upper > lower {
		position = (bars[len(bars)-1].Close - lower) / (upper - lower)
		if position < 0 {
			position = 0
		}
		if position > 1 {
			position = 1
		}
	}
	return upper, lower, position
}

// ADX returns ADX(period), +DI and -DI for the bar series.
func ADX(bars []Bar, period int) (adx, plusDI, minusDI float64) {
	if len(bars) < period*2 {
		return 0, 0, 0
	}
	h, l, c := highs(bars), lows(bars), closes(bars)
	return last(talib.Adx(h, l, c, period)),
		last(talib.PlusDI(h, l, c, period)),
		last(talib.MinusDI(h, l, c, period))
}

// EMA returns the final EMA(period) of the closes.
func EMA(bars []Bar, period int) float64 {
	c := closes(bars)
	if len(c) < period {
		return 0
	}
	return last(talib.Ema(c, period))
}

// RSI returns the final RSI(period) of the closes.
func RSI(bars []Bar, period int) float64 {
	c := closes(bars)
	if len(c) <= period {
		return 50
	}
	return last(talib.Rsi(c, period))
}

// MACD returns the final MACD line, signal and histogram (12/26/9).
func MACD(bars []Bar) (macd, signal, hist float64) {
	c := closes(bars)
	if len(c) < 35 {
		return 0, 0, 0
	}
	m, s, h := talib.Macd(c, 12, 26, 9)
	return last(m), last(s), last(h)
}

// ATRSeries returns the full ATR(period) series, aligned to the bars.
func ATRSeries(bars []Bar, period int) []float64 {
	if len(bars) <= period {
		return nil
	}
	return talib.Atr(highs(bars), lows(bars), closes(bars), period)
}

// ATR returns the final ATR(period).
func ATR(bars []Bar, period int) float64 {
	if len(bars) <= period {
		return 0
	}
	return last(talib.Atr(highs(bars), lows(bars), closes(bars), period))
}
