package screener

import (
	"time"
)

const (
	cacheKeyOIHistory = "oi_history"
	oiHistoryMaxAge   = 30 * 24 * time.Hour
	oiLookbackDays    = 7
	oiLookbackTolDays = 2
	oiKeepDays        = 14
)

// oiSample is one UTC day's open interest notional for one symbol.
type oiSample struct {
	Date  string  `json:"date"` // 2006-01-02
	OIUSD float64 `json:"oi_usd"`
}

// oiHistory accumulates daily OI samples across screening passes so the
// oi_trend factor has a 7-day baseline to compare against.
type oiHistory map[string][]oiSample

func (s *Screener) loadOIHistory() oiHistory {
	h := oiHistory{}
	s.cache.Get(cacheKeyOIHistory, oiHistoryMaxAge, &h)
	return h
}

// record keeps at most one sample per UTC day per symbol, newest last.
func (h oiHistory) record(symbol string, at time.Time, oiUSD float64) {
	if oiUSD <= 0 {
		return
	}
	date := at.UTC().Format("2006-01-02")
	samples := h[symbol]
	if n := len(samples); n > 0 && samples[n-1].Date == date {
		samples[n-1].OIUSD = oiUSD
		h[symbol] = samples
		return
	}
	samples = append(samples, oiSample{Date: date, OIUSD: oiUSD})
	if len(samples) > oiKeepDays {
		samples = samples[len(samples)-oiKeepDays:]
	}
	h[symbol] = samples
}

// lookback returns the sample closest to `days` UTC days before `at`,
// within a two-day tolerance either side. 0 when the history is too short.
func (h oiHistory) lookback(symbol string, at time.Time, days int) float64 {
	today, err := time.ParseInLocation("2006-01-02", at.UTC().Format("2006-01-02"), time.UTC)
	if err != nil {
		return 0
	}

	best, bestDiff := 0.0, oiLookbackTolDays+1
	for _, smp := range h[symbol] {
		d, err := time.ParseInLocation("2006-01-02", smp.Date, time.UTC)
		if err != nil {
			continue
		}
		age := int(today.Sub(d).Hours() / 24)
		diff := age - days
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff, best = diff, smp.OIUSD
		}
	}
	return best
}
