package providers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Snapshot is a cross-venue view of one symbol at one instant.
type Snapshot struct {
	Timestamp    time.Time                  `json:"timestamp"`
	Symbol       string                     `json:"symbol"`
	GlobalMarket Aggregates                 `json:"global_market"`
	Hyperliquid  *Ticker                    `json:"hyperliquid,omitempty"`
	Providers    map[string]*ProviderResult `json:"providers"`
}

type ProviderResult struct {
	Ticker *Ticker `json:"ticker,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Aggregates are computed over every source that returned a price.
type Aggregates struct {
	Status                  string   `json:"status,omitempty"`
	AveragePrice            float64  `json:"average_price"`
	MinPrice                float64  `json:"min_price"`
	MaxPrice                float64  `json:"max_price"`
	PriceSpreadPct          float64  `json:"price_spread_pct"`
	TotalVolumeGlobal       float64  `json:"total_volume_global"`
	AverageFundingRate      float64  `json:"average_funding_rate"`
	SourcesCount            int      `json:"sources_count"`
	HyperliquidDeviationPct *float64 `json:"hyperliquid_deviation_pct,omitempty"`
	IsHyperliquidPremium    *bool    `json:"is_hyperliquid_premium,omitempty"`
}

// PrimarySource supplies the trading venue's own ticker, kept distinct from
// the external providers.
type PrimarySource interface {
	MarketData(ctx context.Context, symbol string) (*Ticker, error)
}

// Aggregator fans a snapshot request out to the primary venue and every
// enabled external provider concurrently. One provider failing, hanging, or
// tripping its breaker never fails the snapshot.
type Aggregator struct {
	primary   PrimarySource
	providers []Provider
	breakers  map[string]*gobreaker.CircuitBreaker
	timeout   time.Duration
	log       zerolog.Logger
}

func NewAggregator(primary PrimarySource, provs []Provider, timeout time.Duration, log zerolog.Logger) *Aggregator {
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(provs))
	for _, p := range provs {
		name := p.Name()
		breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("provider", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("provider breaker state change")
			},
		})
	}
	return &Aggregator{
		primary:   primary,
		providers: provs,
		breakers:  breakers,
		timeout:   timeout,
		log:       log,
	}
}

// FetchSnapshot gathers tickers from all sources and computes aggregates.
func (a *Aggregator) FetchSnapshot(ctx context.Context, symbol string) *Snapshot {
	snap := &Snapshot{
		Timestamp: time.Now().UTC(),
		Symbol:    symbol,
		Providers: make(map[string]*ProviderResult, len(a.providers)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	if a.primary != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			t, err := a.primary.MarketData(tctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.log.Warn().Err(err).Str("symbol", symbol).Msg("primary venue snapshot failed")
				return
			}
			snap.Hyperliquid = t
		}()
	}

	for _, p := range a.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			res := a.fetchOne(ctx, p, symbol)
			mu.Lock()
			snap.Providers[p.Name()] = res
			mu.Unlock()
		}(p)
	}

	wg.Wait()

	snap.GlobalMarket = a.aggregate(snap)
	return snap
}

func (a *Aggregator) fetchOne(ctx context.Context, p Provider, symbol string) *ProviderResult {
	breaker := a.breakers[p.Name()]

	out, err := breaker.Execute(func() (interface{}, error) {
		tctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return p.MarketData(tctx, symbol)
	})
	if err != nil {
		a.log.Debug().Err(err).Str("provider", p.Name()).Str("symbol", symbol).Msg("provider fetch failed")
		return &ProviderResult{Error: err.Error()}
	}

	t, _ := out.(*Ticker)
	return &ProviderResult{Ticker: t}
}

func (a *Aggregator) aggregate(snap *Snapshot) Aggregates {
	var prices, volumes, fundings []float64

	collect := func(t *Ticker) {
		if t == nil {
			return
		}
		if t.Price > 0 {
			prices = append(prices, t.Price)
		}
		if t.Volume24h > 0 {
			volumes = append(volumes, t.Volume24h)
		}
		if t.FundingRate != nil {
			fundings = append(fundings, *t.FundingRate)
		}
	}

	collect(snap.Hyperliquid)
	for _, res := range snap.Providers {
		collect(res.Ticker)
	}

	if len(prices) == 0 {
		return Aggregates{Status: "insufficient_data"}
	}

	sum, min, max := 0.0, prices[0], prices[0]
	for _, p := range prices {
		sum += p
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	avg := sum / float64(len(prices))

	totalVol := 0.0
	for _, v := range volumes {
		totalVol += v
	}

	avgFunding := 0.0
	if len(fundings) > 0 {
		for _, f := range fundings {
			avgFunding += f
		}
		avgFunding /= float64(len(fundings))
	}

	agg := Aggregates{
		AveragePrice:       avg,
		MinPrice:           min,
		MaxPrice:           max,
		TotalVolumeGlobal:  totalVol,
		AverageFundingRate: avgFunding,
		SourcesCount:       len(prices),
	}
	if min > 0 {
		agg.PriceSpreadPct = (max - min) / min * 100
	}

	if snap.Hyperliquid != nil && snap.Hyperliquid.Price > 0 && avg > 0 {
		dev := (snap.Hyperliquid.Price - avg) / avg * 100
		premium := dev > 0
		agg.HyperliquidDeviationPct = &dev
		agg.IsHyperliquidPremium = &premium
	}

	return agg
}
