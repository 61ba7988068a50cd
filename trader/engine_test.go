package trader

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyper-agent/config"
	"hyper-agent/decision"
	"hyper-agent/events"
	"hyper-agent/execution"
	"hyper-agent/feeds"
	"hyper-agent/hyperliquid"
	"hyper-agent/indicators"
	"hyper-agent/risk"
	"hyper-agent/screener"
	"hyper-agent/store"
	"hyper-agent/trend"
)

type fakeVenue struct {
	status *hyperliquid.AccountStatus
	mids   map[string]float64
}

func (f *fakeVenue) AccountStatus(context.Context) (*hyperliquid.AccountStatus, error) {
	return f.status, nil
}
func (f *fakeVenue) AllMids(context.Context) (map[string]float64, error) {
	return f.mids, nil
}
func (f *fakeVenue) MetaAndAssetCtxs(context.Context) (*hyperliquid.Meta, []hyperliquid.AssetCtx, error) {
	return &hyperliquid.Meta{}, nil, nil
}

type fakeUniverse struct {
	symbols []string
	result  *screener.Result
}

func (f *fakeUniverse) SelectedSymbols() []string { return f.symbols }
func (f *fakeUniverse) ShouldRebalance() bool     { return false }
func (f *fakeUniverse) RunFullScreening(context.Context) (*screener.Result, error) {
	return f.result, nil
}
func (f *fakeUniverse) UpdateScores(context.Context) (*screener.Result, error) {
	return f.result, nil
}
func (f *fakeUniverse) CachedResult() *screener.Result { return f.result }

type fakeAnalyzer struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (f *fakeAnalyzer) Analyze(_ context.Context, symbol string) (*indicators.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &indicators.Analysis{Symbol: symbol, Price: f.prices[symbol]}, nil
}
func (f *fakeAnalyzer) UpdateAssetStates(map[string]indicators.AssetState) {}

type fakeFeeds struct{}

func (f *fakeFeeds) Gather(context.Context, []string) *feeds.Context {
	return &feeds.Context{
		NewsText: "News unavailable", SentimentText: "Sentiment unavailable",
		ForecastText: "Forecasts unavailable", WhaleText: "Whale alerts unavailable",
	}
}

type fakeDecider struct {
	mu      sync.Mutex
	results map[decision.Phase]*decision.Result
	calls   []decision.PromptContext
}

func (f *fakeDecider) Decide(_ context.Context, pc decision.PromptContext) *decision.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pc)
	if res, ok := f.results[pc.Phase]; ok {
		return res
	}
	return &decision.Result{Decision: decision.SafeHold("nothing to do")}
}

type fakeExecutor struct {
	mu       sync.Mutex
	risk     *risk.Manager
	outcome  *execution.Outcome
	executed []*decision.Decision
}

func (f *fakeExecutor) Execute(_ context.Context, d *decision.Decision) *execution.Outcome {
	f.mu.Lock()
	f.executed = append(f.executed, d)
	f.mu.Unlock()

	if f.outcome != nil {
		return f.outcome
	}
	switch d.Operation {
	case decision.OpOpen:
		o := d.Open
		if f.risk != nil {
			f.risk.RegisterPosition(o.Symbol, o.Direction, 100, 10, o.Leverage, o.StopLossPct, o.TakeProfitPct)
		}
		return &execution.Outcome{Status: execution.StatusExecuted, Symbol: o.Symbol, Direction: o.Direction, Size: 10, AvgPrice: 100}
	case decision.OpClose:
		if f.risk != nil {
			f.risk.RemovePosition(d.Close.Symbol)
		}
		return &execution.Outcome{Status: execution.StatusExecuted, Symbol: d.Close.Symbol, AvgPrice: 95}
	}
	return &execution.Outcome{Status: execution.StatusNoop}
}

type fakeTrend struct {
	conf *trend.Confirmation
}

func (f *fakeTrend) Confirm(_ context.Context, symbol string, _ *trend.DailyMetrics) *trend.Confirmation {
	if f.conf != nil {
		return f.conf
	}
	return &trend.Confirmation{
		Symbol: symbol, Quality: trend.QualityGood, Confidence: 0.8,
		ShouldTrade: true, RecommendedDirection: "long", EntryQuality: "optimal",
	}
}

type fakeNotifier struct {
	mu      sync.Mutex
	opened  []string
	closed  []string
	breaker int
	errors  []string
}

func (f *fakeNotifier) TradeOpened(symbol, _ string, _ float64, _ int, _, _, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, symbol)
}
func (f *fakeNotifier) TradeClosed(symbol, _ string, _, _ float64, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, symbol)
}
func (f *fakeNotifier) CircuitBreaker(float64, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breaker++
}
func (f *fakeNotifier) CriticalError(_, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, msg)
}

type testRig struct {
	engine   *Engine
	venue    *fakeVenue
	decider  *fakeDecider
	executor *fakeExecutor
	notifier *fakeNotifier
	risk     *risk.Manager
	trades   *store.TradeStore
}

func newTestRig(t *testing.T, cfg *config.Config, symbols []string) *testRig {
	t.Helper()
	require.NoError(t, store.Init(t.TempDir()))
	t.Cleanup(func() { store.Close() })

	rm := risk.NewManager(risk.DefaultConfig(), zerolog.Nop())
	venue := &fakeVenue{
		status: &hyperliquid.AccountStatus{BalanceUSD: 10000},
		mids:   map[string]float64{},
	}
	dec := &fakeDecider{results: map[decision.Phase]*decision.Result{}}
	exec := &fakeExecutor{risk: rm}
	notif := &fakeNotifier{}

	hub := events.NewHub(zerolog.Nop())
	go hub.Run()

	engine := NewEngine(cfg, Deps{
		Venue:     venue,
		Universe:  &fakeUniverse{symbols: symbols, result: &screener.Result{}},
		Analyzer:  &fakeAnalyzer{prices: map[string]float64{"BTC": 100, "ETH": 50, "SOL": 20}},
		Feeds:     &fakeFeeds{},
		Decider:   dec,
		Executor:  exec,
		TrendGate: &fakeTrend{},
		Risk:      rm,
		Hub:       hub,
		Notifier:  notif,
	}, zerolog.Nop())

	return &testRig{
		engine: engine, venue: venue, decider: dec, executor: exec,
		notifier: notif, risk: rm, trades: store.NewTradeStore(),
	}
}

func testConfig() *config.Config {
	return &config.Config{
		ScreeningEnabled:         true,
		AnalysisBatchSize:        2,
		MinConfidence:            0.4,
		TrendConfirmationEnabled: true,
		SkipPoorEntry:            true,
		FallbackTickers:          []string{"BTC", "ETH", "SOL"},
	}
}

func openResult(symbol string, confidence float64) *decision.Result {
	return &decision.Result{Decision: &decision.Decision{
		Operation: decision.OpOpen,
		Open: &decision.OpenParams{
			Symbol: symbol, Direction: "long", TargetPortionOfBalance: 0.1,
			Leverage: 3, StopLossPct: 2, TakeProfitPct: 6,
		},
		Reason:     "clear breakout setup with volume",
		Confidence: confidence,
	}}
}

func TestScoutOpensPosition(t *testing.T) {
	rig := newTestRig(t, testConfig(), []string{"BTC", "ETH", "SOL"})
	rig.decider.results[decision.PhaseScout] = openResult("BTC", 0.8)

	rig.engine.RunCycle(context.Background())

	require.Len(t, rig.executor.executed, 1)
	assert.Equal(t, decision.OpOpen, rig.executor.executed[0].Operation)
	assert.Equal(t, []string{"BTC"}, rig.notifier.opened)

	open, err := rig.trades.LatestOpen("BTC", "long")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, 100.0, open.EntryPrice)
	assert.Equal(t, 1000.0, open.SizeUSD)
	assert.InDelta(t, 98.0, open.StopLossPrice, 1e-9)
	assert.InDelta(t, 106.0, open.TakeProfitPrice, 1e-9)
	assert.NotZero(t, open.OperationID, "open row links to the operation that produced it")

	_, held := rig.risk.GetPosition("BTC")
	assert.True(t, held)
}

func TestRotationAdvancesAcrossCycles(t *testing.T) {
	rig := newTestRig(t, testConfig(), []string{"BTC", "ETH", "SOL"})

	rig.engine.RunCycle(context.Background())
	rig.engine.RunCycle(context.Background())

	require.Len(t, rig.decider.calls, 2)
	assert.Equal(t, []string{"BTC", "ETH"}, rig.decider.calls[0].Symbols)
	assert.Equal(t, []string{"SOL", "BTC"}, rig.decider.calls[1].Symbols)
}

func TestScoutRejectsLowConfidence(t *testing.T) {
	rig := newTestRig(t, testConfig(), []string{"BTC", "ETH", "SOL"})
	rig.decider.results[decision.PhaseScout] = openResult("BTC", 0.2)

	rig.engine.RunCycle(context.Background())

	assert.Empty(t, rig.executor.executed)
	assert.Empty(t, rig.notifier.opened)
}

func TestScoutRejectsSymbolOutsideBatch(t *testing.T) {
	rig := newTestRig(t, testConfig(), []string{"BTC", "ETH", "SOL"})
	rig.decider.results[decision.PhaseScout] = openResult("DOGE", 0.9)

	rig.engine.RunCycle(context.Background())

	assert.Empty(t, rig.executor.executed)
}

func TestTrendGateBlocksEntry(t *testing.T) {
	rig := newTestRig(t, testConfig(), []string{"BTC", "ETH", "SOL"})
	rig.decider.results[decision.PhaseScout] = openResult("BTC", 0.8)
	rig.engine.trendGate = &fakeTrend{conf: &trend.Confirmation{
		Symbol: "BTC", Quality: trend.QualityPoor, ShouldTrade: false, EntryQuality: "wait",
	}}

	rig.engine.RunCycle(context.Background())

	assert.Empty(t, rig.executor.executed)
}

func TestTrendGateBlocksDirectionMismatch(t *testing.T) {
	rig := newTestRig(t, testConfig(), []string{"BTC", "ETH", "SOL"})
	rig.decider.results[decision.PhaseScout] = openResult("BTC", 0.8)
	rig.engine.trendGate = &fakeTrend{conf: &trend.Confirmation{
		Symbol: "BTC", Quality: trend.QualityGood, Confidence: 0.8,
		ShouldTrade: true, RecommendedDirection: "short", EntryQuality: "optimal",
	}}

	rig.engine.RunCycle(context.Background())

	assert.Empty(t, rig.executor.executed)
}

func TestManageRejectsOpenDecision(t *testing.T) {
	rig := newTestRig(t, testConfig(), []string{"BTC", "ETH", "SOL"})
	rig.risk.RegisterPosition("ETH", "long", 50, 10, 3, 2, 6)
	rig.venue.status.Positions = []hyperliquid.Position{{Symbol: "ETH", Size: 10, EntryPrice: 50}}
	rig.decider.results[decision.PhaseManage] = openResult("ETH", 0.9)

	rig.engine.RunCycle(context.Background())

	for _, d := range rig.executor.executed {
		assert.NotEqual(t, decision.OpOpen, d.Operation, "manage phase must not open")
	}
}

func TestManageClosesHeldPosition(t *testing.T) {
	cfg := testConfig()
	cfg.ScreeningEnabled = false
	cfg.FallbackTickers = nil
	cfg.Tickers = nil
	rig := newTestRig(t, cfg, nil)

	rig.risk.RegisterPosition("ETH", "long", 50, 10, 3, 10, 20)
	rig.venue.status.Positions = []hyperliquid.Position{{Symbol: "ETH", Size: 10, EntryPrice: 50}}
	id, err := rig.trades.InsertOpen(&store.TradeRecord{
		Symbol: "ETH", Direction: "long", EntryPrice: 50, Size: 10, OpenedAt: rig.engine.now(),
	})
	require.NoError(t, err)
	rig.engine.activeTrades["ETH"] = id

	rig.decider.results[decision.PhaseManage] = &decision.Result{Decision: &decision.Decision{
		Operation:  decision.OpClose,
		Close:      &decision.CloseParams{Symbol: "ETH"},
		Reason:     "momentum reversed against the position",
		Confidence: 0.7,
	}}

	rig.engine.RunCycle(context.Background())

	require.Len(t, rig.executor.executed, 1)
	assert.Equal(t, decision.OpClose, rig.executor.executed[0].Operation)
	assert.Equal(t, []string{"ETH"}, rig.notifier.closed)

	recent, err := rig.trades.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, store.TradeStatusClosed, recent[0].Status)
	assert.Equal(t, store.ExitReasonAIClose, recent[0].ExitReason)
}

func TestRiskSweepClosesStopLoss(t *testing.T) {
	cfg := testConfig()
	cfg.ScreeningEnabled = false
	cfg.FallbackTickers = nil
	rig := newTestRig(t, cfg, nil)

	// Long from 100 with a 2% stop; the analyzer reports ETH at 50.
	rig.risk.RegisterPosition("ETH", "long", 100, 10, 3, 2, 6)
	rig.venue.status.Positions = []hyperliquid.Position{{Symbol: "ETH", Size: 10, EntryPrice: 100}}

	rig.engine.RunCycle(context.Background())

	require.NotEmpty(t, rig.executor.executed)
	assert.Equal(t, decision.OpClose, rig.executor.executed[0].Operation)
	assert.Equal(t, []string{"ETH"}, rig.notifier.closed)
	assert.Less(t, rig.risk.GetStatus().DailyPnL, 0.0)
}

func TestGhostTradeIsPruned(t *testing.T) {
	cfg := testConfig()
	cfg.ScreeningEnabled = false
	cfg.FallbackTickers = nil
	rig := newTestRig(t, cfg, nil)

	rig.risk.RegisterPosition("SOL", "long", 20, 5, 2, 2, 6)
	// Venue reports no positions: SOL is a ghost.

	rig.engine.RunCycle(context.Background())

	_, held := rig.risk.GetPosition("SOL")
	assert.False(t, held)
	// No close order goes out for a position that does not exist.
	for _, d := range rig.executor.executed {
		assert.NotEqual(t, "SOL", d.Symbol())
	}
}

func TestEmptyUniverseEndsCycle(t *testing.T) {
	cfg := testConfig()
	cfg.ScreeningEnabled = false
	cfg.FallbackTickers = nil
	cfg.Tickers = nil
	rig := newTestRig(t, cfg, nil)

	rig.engine.RunCycle(context.Background())

	assert.Empty(t, rig.decider.calls)
	assert.Empty(t, rig.executor.executed)
}
