package screener

import (
	"fmt"

	"github.com/rs/zerolog"
)

// HardFilters removes assets that fail any exclusion threshold before
// scoring runs.
type HardFilters struct {
	cfg HardFilterConfig
	log zerolog.Logger
}

func NewHardFilters(cfg HardFilterConfig, log zerolog.Logger) *HardFilters {
	return &HardFilters{cfg: cfg, log: log}
}

// Apply splits the input into passing metrics and excluded symbols. One
// failed threshold is enough to exclude; the first failing reason is kept.
func (f *HardFilters) Apply(metrics []CoinMetrics) (passing []CoinMetrics, excluded []string) {
	for _, m := range metrics {
		if reason := f.exclusionReason(m); reason != "" {
			excluded = append(excluded, m.Symbol)
			f.log.Debug().Str("symbol", m.Symbol).Str("reason", reason).Msg("excluded by hard filter")
			continue
		}
		passing = append(passing, m)
	}
	f.log.Info().Int("passed", len(passing)).Int("excluded", len(excluded)).Msg("hard filters applied")
	return passing, excluded
}

func (f *HardFilters) exclusionReason(m CoinMetrics) string {
	switch {
	case m.IsStablecoin:
		return "stablecoin"
	case m.Volume24hUSD < f.cfg.MinVolume24hUSD:
		return fmt.Sprintf("volume %.0f < %.0f", m.Volume24hUSD, f.cfg.MinVolume24hUSD)
	case m.MarketCapUSD < f.cfg.MinMarketCapUSD:
		return fmt.Sprintf("market cap %.0f < %.0f", m.MarketCapUSD, f.cfg.MinMarketCapUSD)
	case m.DaysListed < f.cfg.MinDaysListed:
		return fmt.Sprintf("listed %dd < %dd", m.DaysListed, f.cfg.MinDaysListed)
	case m.OpenInterestUSD < f.cfg.MinOpenInterestUSD:
		return fmt.Sprintf("open interest %.0f < %.0f", m.OpenInterestUSD, f.cfg.MinOpenInterestUSD)
	case m.SpreadPct > f.cfg.MaxSpreadPct:
		return fmt.Sprintf("spread %.3f%% > %.3f%%", m.SpreadPct, f.cfg.MaxSpreadPct)
	}
	return ""
}
