// Package trader runs the cyclic trading state machine: universe
// selection, context gathering, account sync, risk sweep, then the manage
// and scout decision phases.
package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hyper-agent/config"
	"hyper-agent/decision"
	"hyper-agent/events"
	"hyper-agent/execution"
	"hyper-agent/feeds"
	"hyper-agent/hyperliquid"
	"hyper-agent/indicators"
	"hyper-agent/providers"
	"hyper-agent/risk"
	"hyper-agent/screener"
	"hyper-agent/store"
	"hyper-agent/trend"
)

// Venue is the slice of the exchange client the engine reads directly.
type Venue interface {
	AccountStatus(ctx context.Context) (*hyperliquid.AccountStatus, error)
	AllMids(ctx context.Context) (map[string]float64, error)
	MetaAndAssetCtxs(ctx context.Context) (*hyperliquid.Meta, []hyperliquid.AssetCtx, error)
}

// Universe supplies the tradable symbol selection.
type Universe interface {
	SelectedSymbols() []string
	ShouldRebalance() bool
	RunFullScreening(ctx context.Context) (*screener.Result, error)
	UpdateScores(ctx context.Context) (*screener.Result, error)
	CachedResult() *screener.Result
}

// Analyzer builds per-symbol indicator payloads.
type Analyzer interface {
	Analyze(ctx context.Context, symbol string) (*indicators.Analysis, error)
	UpdateAssetStates(states map[string]indicators.AssetState)
}

// FeedSource gathers auxiliary context.
type FeedSource interface {
	Gather(ctx context.Context, symbols []string) *feeds.Context
}

// SnapshotSource supplies cross-venue market snapshots.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, symbol string) *providers.Snapshot
}

// Decider produces one validated decision per phase.
type Decider interface {
	Decide(ctx context.Context, pc decision.PromptContext) *decision.Result
}

// Executor carries decisions to the venue.
type Executor interface {
	Execute(ctx context.Context, d *decision.Decision) *execution.Outcome
}

// TrendGate confirms entries across timeframes.
type TrendGate interface {
	Confirm(ctx context.Context, symbol string, daily *trend.DailyMetrics) *trend.Confirmation
}

// Notifier receives trade and system alerts.
type Notifier interface {
	TradeOpened(symbol, direction string, sizeUSD float64, leverage int, entry, stopLoss, takeProfit float64)
	TradeClosed(symbol, direction string, pnl, pnlPct float64, reason string)
	CircuitBreaker(dailyLoss float64, reason string)
	CriticalError(errType, errMsg string)
}

// Engine is the orchestrator. At most one cycle runs at a time.
type Engine struct {
	cfg       *config.Config
	venue     Venue
	universe  Universe
	analyzer  Analyzer
	feeds     FeedSource
	decider   Decider
	executor  Executor
	trendGate TrendGate
	snaps     SnapshotSource
	risk      *risk.Manager
	hub       *events.Hub
	notifier  Notifier
	log       zerolog.Logger

	trades     *store.TradeStore
	ops        *store.OperationStore
	snapshots  *store.SnapshotStore
	screenings *store.ScreeningStore

	cycleMu sync.Mutex

	mu              sync.Mutex
	rotationIndex   int
	activeTrades    map[string]int64 // symbol -> open trade row id
	cycleCount      int
	lastCycleAt     time.Time
	breakerNotified bool

	now func() time.Time
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Venue     Venue
	Universe  Universe
	Analyzer  Analyzer
	Feeds     FeedSource
	Decider   Decider
	Executor  Executor
	TrendGate TrendGate
	Snapshots SnapshotSource
	Risk      *risk.Manager
	Hub       *events.Hub
	Notifier  Notifier
}

func NewEngine(cfg *config.Config, d Deps, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		venue:      d.Venue,
		universe:   d.Universe,
		analyzer:   d.Analyzer,
		feeds:      d.Feeds,
		decider:    d.Decider,
		executor:   d.Executor,
		trendGate:  d.TrendGate,
		snaps:      d.Snapshots,
		risk:       d.Risk,
		hub:        d.Hub,
		notifier:   d.Notifier,
		log:        log,
		trades:     store.NewTradeStore(),
		ops:        store.NewOperationStore(),
		snapshots:  store.NewSnapshotStore(),
		screenings: store.NewScreeningStore(),

		activeTrades: make(map[string]int64),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// cycleContext is everything the decision phases share within one cycle.
type cycleContext struct {
	analyses  map[string]*indicators.Analysis
	snapshots map[string]*providers.Snapshot
	feeds     *feeds.Context
}

// RunCycle executes one full pass of the state machine. A cycle still in
// flight makes this call a no-op; the scheduler's missed runs collapse.
func (e *Engine) RunCycle(ctx context.Context) {
	if !e.cycleMu.TryLock() {
		e.log.Warn().Msg("previous cycle still in flight, skipping")
		return
	}
	defer e.cycleMu.Unlock()

	start := e.now()
	cycleID := "cycle_" + start.Format("20060102_150405")
	log := e.log.With().Str("cycle_id", cycleID).Logger()

	log.Info().Msg("cycle start")
	e.hub.Publish(events.Event{Type: events.TypeCycle, CycleID: cycleID, Message: "cycle started"})

	if err := e.runPhases(ctx, cycleID, log); err != nil {
		log.Error().Err(err).Msg("cycle aborted")
		e.recordOp(cycleID, "cycle", "", "abort", "error", truncate(err.Error(), 500))
		e.notifier.CriticalError("cycle", err.Error())
		e.hub.Publish(events.Event{Type: events.TypeError, CycleID: cycleID, Message: err.Error()})
	}

	e.mu.Lock()
	e.cycleCount++
	e.lastCycleAt = e.now()
	e.mu.Unlock()
	log.Info().Dur("took", e.now().Sub(start)).Msg("cycle done")
}

func (e *Engine) runPhases(ctx context.Context, cycleID string, log zerolog.Logger) error {
	manage, scout := e.selectUniverse(ctx, cycleID)
	if len(manage) == 0 && len(scout) == 0 {
		log.Info().Msg("empty universe, ending cycle")
		return nil
	}
	log.Info().Strs("manage", manage).Strs("scout", scout).Msg("universe selected")

	cc := e.fetchContext(ctx, unionOf(manage, scout))

	account, err := e.accountSync(ctx, cycleID)
	if err != nil {
		return err
	}
	manage = e.pruneGhosts(cycleID, account, manage)

	e.riskSweep(ctx, cycleID, cc)

	if len(manage) > 0 {
		e.managePhase(ctx, cycleID, manage, account, cc)
	}
	if len(scout) > 0 {
		e.scoutPhase(ctx, cycleID, scout, account, cc)
	}
	return nil
}

// selectUniverse produces the held symbols and the rotating scout batch.
func (e *Engine) selectUniverse(ctx context.Context, cycleID string) (manage, scout []string) {
	for symbol := range e.risk.GetStatus().Positions {
		manage = append(manage, symbol)
	}
	sort.Strings(manage)

	candidates := e.cfg.FallbackTickers
	if e.cfg.ScreeningEnabled {
		e.refreshScreening(ctx, cycleID)
		if selected := e.universe.SelectedSymbols(); len(selected) > 0 {
			candidates = selected
		}
	} else if len(e.cfg.Tickers) > 0 {
		candidates = e.cfg.Tickers
	}

	held := make(map[string]bool, len(manage))
	for _, s := range manage {
		held[s] = true
	}
	pool := make([]string, 0, len(candidates))
	for _, s := range candidates {
		if !held[s] {
			pool = append(pool, s)
		}
	}
	if len(pool) == 0 {
		return manage, nil
	}

	n := e.cfg.AnalysisBatchSize
	if n > len(pool) {
		n = len(pool)
	}

	e.mu.Lock()
	start := e.rotationIndex % len(pool)
	for i := 0; i < n; i++ {
		scout = append(scout, pool[(start+i)%len(pool)])
	}
	e.rotationIndex = (start + n) % len(pool)
	e.mu.Unlock()

	return manage, scout
}

// refreshScreening runs the weekly rebalance when due; otherwise it only
// primes an empty cache. Daily re-scores run from the scheduler.
func (e *Engine) refreshScreening(ctx context.Context, cycleID string) {
	var (
		res *screener.Result
		err error
	)
	switch {
	case e.universe.ShouldRebalance():
		res, err = e.universe.RunFullScreening(ctx)
	case e.universe.CachedResult() == nil:
		res, err = e.universe.RunFullScreening(ctx)
	default:
		return
	}
	if err != nil {
		e.log.Warn().Err(err).Msg("screening failed, keeping previous universe")
		return
	}

	if _, err := e.screenings.SaveResult(res); err != nil {
		e.log.Warn().Err(err).Msg("failed to persist screening")
	}
	e.hub.Publish(events.Event{
		Type:    events.TypeScreening,
		CycleID: cycleID,
		Message: fmt.Sprintf("screening selected %d coins", len(res.SelectedCoins)),
		Data:    res,
	})
}

// fetchContext gathers indicators and feeds for the union set. Every
// source is best-effort; a symbol without analysis is simply absent.
func (e *Engine) fetchContext(ctx context.Context, symbols []string) *cycleContext {
	if meta, ctxs, err := e.venue.MetaAndAssetCtxs(ctx); err == nil {
		states := make(map[string]indicators.AssetState, len(ctxs))
		for i, asset := range meta.Universe {
			if i >= len(ctxs) {
				break
			}
			states[asset.Name] = indicators.AssetState{
				FundingRate:  ctxs[i].FundingFloat(),
				OpenInterest: ctxs[i].OpenInterestFloat(),
			}
		}
		e.analyzer.UpdateAssetStates(states)
	} else {
		e.log.Warn().Err(err).Msg("asset contexts unavailable")
	}

	cc := &cycleContext{
		analyses:  make(map[string]*indicators.Analysis, len(symbols)),
		snapshots: make(map[string]*providers.Snapshot, len(symbols)),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			a, err := e.analyzer.Analyze(ctx, symbol)
			if err != nil {
				e.log.Warn().Err(err).Str("symbol", symbol).Msg("analysis failed")
				return
			}
			mu.Lock()
			cc.analyses[symbol] = a
			mu.Unlock()
		}(symbol)

		if e.snaps != nil {
			wg.Add(1)
			go func(symbol string) {
				defer wg.Done()
				snap := e.snaps.FetchSnapshot(ctx, symbol)
				mu.Lock()
				cc.snapshots[symbol] = snap
				mu.Unlock()
			}(symbol)
		}
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		cc.feeds = e.feeds.Gather(ctx, symbols)
	}()
	wg.Wait()

	return cc
}

// accountSync snapshots the account. A venue failure here aborts the
// cycle: nothing downstream is safe without a balance.
func (e *Engine) accountSync(ctx context.Context, cycleID string) (*hyperliquid.AccountStatus, error) {
	st, err := e.venue.AccountStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("account sync: %w", err)
	}

	unrealized := 0.0
	positions := make([]store.PositionRow, 0, len(st.Positions))
	for _, p := range st.Positions {
		unrealized += p.UnrealizedPnl
		row := store.PositionRow{
			Symbol:     p.Symbol,
			Side:       p.Side(),
			Size:       p.Size,
			EntryPrice: p.EntryPrice,
			PnLUSD:     p.UnrealizedPnl,
			Leverage:   p.Leverage,
		}
		if sz := p.Size; sz != 0 {
			if sz < 0 {
				sz = -sz
			}
			row.MarkPrice = p.PositionValue / sz
		}
		positions = append(positions, row)
	}
	if err := e.snapshots.Save(&store.AccountSnapshot{
		BalanceUSD:      st.BalanceUSD,
		PerpsBalanceUSD: st.PerpsBalanceUSD,
		SpotBalanceUSD:  st.SpotBalanceUSD,
		UnrealizedPnL:   unrealized,
		OpenPositions:   len(st.Positions),
	}, positions); err != nil {
		e.log.Warn().Err(err).Msg("failed to persist account snapshot")
	}

	return st, nil
}

// pruneGhosts drops internally tracked positions that no longer exist on
// the venue and returns the manage list without them.
func (e *Engine) pruneGhosts(cycleID string, account *hyperliquid.AccountStatus, manage []string) []string {
	live := make(map[string]bool, len(account.Positions))
	for _, p := range account.Positions {
		live[p.Symbol] = true
	}

	kept := manage[:0]
	for _, symbol := range manage {
		if live[symbol] {
			kept = append(kept, symbol)
			continue
		}

		e.log.Warn().Str("symbol", symbol).Msg("ghost trade: tracked position missing on venue")
		pos, _ := e.risk.GetPosition(symbol)
		e.risk.RemovePosition(symbol)

		e.mu.Lock()
		tradeID, tracked := e.activeTrades[symbol]
		delete(e.activeTrades, symbol)
		e.mu.Unlock()
		if tracked && pos != nil {
			if err := e.trades.CloseTrade(tradeID, pos.EntryPrice, 0, 0, 0, e.now(), store.ExitReasonGhost); err != nil {
				e.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to close ghost trade record")
			}
		}
		e.recordOp(cycleID, "account_sync", symbol, "ghost_removed", "executed", "position missing on venue")
	}
	return kept
}

// riskSweep closes every position whose SL or TP line was crossed.
func (e *Engine) riskSweep(ctx context.Context, cycleID string, cc *cycleContext) {
	held := e.risk.GetStatus().Positions
	if len(held) == 0 {
		return
	}

	prices := make(map[string]float64, len(held))
	var missing []string
	for symbol := range held {
		if a, ok := cc.analyses[symbol]; ok && a.Price > 0 {
			prices[symbol] = a.Price
		} else {
			missing = append(missing, symbol)
		}
	}
	if len(missing) > 0 {
		if mids, err := e.venue.AllMids(ctx); err == nil {
			for _, symbol := range missing {
				if px, ok := mids[symbol]; ok {
					prices[symbol] = px
				}
			}
		} else {
			e.log.Warn().Err(err).Msg("mids unavailable for risk sweep")
		}
	}

	for _, exit := range e.risk.CheckPositions(prices) {
		d := &decision.Decision{
			Operation:  decision.OpClose,
			Close:      &decision.CloseParams{Symbol: exit.Symbol},
			Reason:     exit.Reason,
			Confidence: 1,
		}
		out := e.executor.Execute(ctx, d)
		status := string(out.Status)

		if out.Status == execution.StatusExecuted || out.Status == execution.StatusSkipped {
			e.settleClose(cycleID, exit.Symbol, exit.Direction, exit.PnL,
				pctChange(exit.EntryPrice, exit.ExitPrice, exit.Direction), exit.ExitPrice, exit.Reason)
		} else {
			e.log.Error().Str("symbol", exit.Symbol).Str("reason", out.Reason).
				Msg("forced close failed, position stays supervised")
		}
		e.recordOp(cycleID, "risk_sweep", exit.Symbol, "close_"+exit.Reason, status, out.Reason)
	}

	e.notifyBreakerTransition()
}

// managePhase asks the model to close or hold the held positions.
func (e *Engine) managePhase(ctx context.Context, cycleID string, manage []string, account *hyperliquid.AccountStatus, cc *cycleContext) {
	pc := decision.PromptContext{
		Phase:      decision.PhaseManage,
		CycleID:    cycleID,
		Symbols:    manage,
		BalanceUSD: account.BalanceUSD,
		Positions:  e.positionViews(cc),
		Market:     e.formatMarket(manage, cc),
		RiskStatus: formatRiskStatus(e.risk.GetStatus()),
	}
	res := e.decider.Decide(ctx, pc)
	e.saveContext(cycleID, "manage", res)

	d := res.Decision
	switch d.Operation {
	case decision.OpHold:
		e.recordOp(cycleID, "manage", "", "hold", "noop", d.Reason)

	case decision.OpOpen:
		e.recordOp(cycleID, "manage", d.Symbol(), "open", "rejected", "open not allowed in manage phase")

	case decision.OpClose:
		symbol := d.Close.Symbol
		if !containsSymbol(manage, symbol) {
			e.recordOp(cycleID, "manage", symbol, "close", "rejected", "symbol not held")
			return
		}

		pos, _ := e.risk.GetPosition(symbol)
		out := e.executor.Execute(ctx, d)
		if out.Status == execution.StatusExecuted && pos != nil {
			exitPrice := out.AvgPrice
			pnl := pos.PnL(exitPrice)
			e.settleClose(cycleID, symbol, pos.Direction, pnl,
				pctChange(pos.EntryPrice, exitPrice, pos.Direction), exitPrice, store.ExitReasonAIClose)
		}
		e.recordOp(cycleID, "manage", symbol, "close", string(out.Status), out.Reason)
		e.notifyBreakerTransition()
	}
}

// scoutPhase asks the model for a new entry and gates it through trend
// confirmation, confidence and risk admission.
func (e *Engine) scoutPhase(ctx context.Context, cycleID string, scout []string, account *hyperliquid.AccountStatus, cc *cycleContext) {
	pc := decision.PromptContext{
		Phase:      decision.PhaseScout,
		CycleID:    cycleID,
		Symbols:    scout,
		BalanceUSD: account.BalanceUSD,
		Positions:  e.positionViews(cc),
		Market:     e.formatMarket(scout, cc),
		RiskStatus: formatRiskStatus(e.risk.GetStatus()),
	}
	res := e.decider.Decide(ctx, pc)
	e.saveContext(cycleID, "scout", res)

	d := res.Decision
	switch d.Operation {
	case decision.OpHold:
		e.recordOp(cycleID, "scout", "", "hold", "noop", d.Reason)

	case decision.OpClose:
		e.recordOp(cycleID, "scout", d.Symbol(), "close", "rejected", "close not allowed in scout phase")

	case decision.OpOpen:
		o := d.Open
		if !containsSymbol(scout, o.Symbol) {
			e.recordOp(cycleID, "scout", o.Symbol, "open", "rejected", "symbol outside scout batch")
			return
		}
		if d.Confidence < e.cfg.MinConfidence {
			e.recordOp(cycleID, "scout", o.Symbol, "open", "rejected",
				fmt.Sprintf("confidence %.2f below minimum %.2f", d.Confidence, e.cfg.MinConfidence))
			return
		}
		if reason, ok := e.confirmTrend(ctx, o); !ok {
			e.recordOp(cycleID, "scout", o.Symbol, "open", "rejected", reason)
			return
		}

		out := e.executor.Execute(ctx, d)
		opID := e.recordOp(cycleID, "scout", o.Symbol, "open", string(out.Status), out.Reason)
		if out.Status == execution.StatusExecuted {
			rec := &store.TradeRecord{
				Symbol:      o.Symbol,
				Direction:   o.Direction,
				EntryPrice:  out.AvgPrice,
				Size:        out.Size,
				SizeUSD:     out.Size * out.AvgPrice,
				Leverage:    o.Leverage,
				OrderID:     out.OrderID,
				OperationID: opID,
				OpenedAt:    e.now(),
			}
			pos, tracked := e.risk.GetPosition(o.Symbol)
			if tracked {
				rec.StopLossPrice = pos.StopLossPrice
				rec.TakeProfitPrice = pos.TakeProfitPrice
			}

			tradeID, err := e.trades.InsertOpen(rec)
			if err != nil {
				e.log.Warn().Err(err).Str("symbol", o.Symbol).Msg("failed to persist opened trade")
			} else {
				e.mu.Lock()
				e.activeTrades[o.Symbol] = tradeID
				e.mu.Unlock()
			}

			if tracked {
				e.notifier.TradeOpened(o.Symbol, o.Direction, out.Size*out.AvgPrice,
					o.Leverage, out.AvgPrice, pos.StopLossPrice, pos.TakeProfitPrice)
			}
			e.hub.Publish(events.Event{
				Type: events.TypeTradeOpened, CycleID: cycleID, Symbol: o.Symbol,
				Message: fmt.Sprintf("opened %s %s", o.Direction, o.Symbol), Data: out,
			})
		}
	}
}

// confirmTrend applies the multi-timeframe gate to an open decision.
func (e *Engine) confirmTrend(ctx context.Context, o *decision.OpenParams) (string, bool) {
	if !e.cfg.TrendConfirmationEnabled || e.trendGate == nil {
		return "", true
	}

	conf := e.trendGate.Confirm(ctx, o.Symbol, nil)
	if !conf.ShouldTrade {
		return fmt.Sprintf("trend gate: %s", conf.String()), false
	}
	if conf.RecommendedDirection != "" && conf.RecommendedDirection != o.Direction {
		return fmt.Sprintf("trend gate: recommends %s, decision is %s", conf.RecommendedDirection, o.Direction), false
	}
	if e.cfg.SkipPoorEntry && conf.EntryQuality == "wait" {
		return "trend gate: entry quality is wait", false
	}
	return "", true
}

// settleClose records a realized close everywhere: risk stats, trade
// table, notifier and event hub.
func (e *Engine) settleClose(cycleID, symbol, direction string, pnl, pnlPct, exitPrice float64, reason string) {
	e.risk.RecordTradeResult(pnl)

	e.mu.Lock()
	tradeID, tracked := e.activeTrades[symbol]
	delete(e.activeTrades, symbol)
	e.mu.Unlock()
	if tracked {
		if err := e.trades.CloseTrade(tradeID, exitPrice, pnl, pnlPct, 0, e.now(), reason); err != nil {
			e.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to close trade record")
		}
	}

	e.notifier.TradeClosed(symbol, direction, pnl, pnlPct, reason)
	e.hub.Publish(events.Event{
		Type: events.TypeTradeClosed, CycleID: cycleID, Symbol: symbol,
		Message: fmt.Sprintf("closed %s %s (%s, pnl %.2f)", direction, symbol, reason, pnl),
	})
}

// notifyBreakerTransition alerts exactly once per breaker activation.
func (e *Engine) notifyBreakerTransition() {
	st := e.risk.GetStatus()

	e.mu.Lock()
	fire := st.CircuitBreakerActive && !e.breakerNotified
	e.breakerNotified = st.CircuitBreakerActive
	e.mu.Unlock()

	if fire {
		e.notifier.CircuitBreaker(st.DailyPnL, "daily loss limit reached")
		e.hub.Publish(events.Event{Type: events.TypeBreaker, Message: "circuit breaker active"})
	}
}

func (e *Engine) positionViews(cc *cycleContext) []decision.PositionView {
	st := e.risk.GetStatus()
	views := make([]decision.PositionView, 0, len(st.Positions))
	for symbol, p := range st.Positions {
		v := decision.PositionView{
			Symbol:     symbol,
			Direction:  p.Direction,
			EntryPrice: p.EntryPrice,
			Size:       p.Size,
			Leverage:   p.Leverage,
		}
		if a, ok := cc.analyses[symbol]; ok {
			v.MarkPrice = a.Price
			v.UnrealizedPnL = p.PnL(a.Price)
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Symbol < views[j].Symbol })
	return views
}

// formatMarket renders the indicator blocks plus the feed texts for the
// given symbols.
func (e *Engine) formatMarket(symbols []string, cc *cycleContext) string {
	var sb strings.Builder
	for _, symbol := range symbols {
		if a, ok := cc.analyses[symbol]; ok {
			sb.WriteString(a.Format())
			sb.WriteString("\n")
		} else {
			fmt.Fprintf(&sb, "=== %s ===\nNo indicator data this cycle.\n\n", symbol)
		}
		if snap, ok := cc.snapshots[symbol]; ok && snap != nil {
			sb.WriteString(formatSnapshot(snap))
		}
	}
	if cc.feeds != nil {
		fmt.Fprintf(&sb, "== SENTIMENT ==\n%s\n\n", cc.feeds.SentimentText)
		fmt.Fprintf(&sb, "== FORECASTS ==\n%s\n\n", cc.feeds.ForecastText)
		fmt.Fprintf(&sb, "== WHALE ALERTS ==\n%s\n\n", cc.feeds.WhaleText)
		fmt.Fprintf(&sb, "== NEWS ==\n%s\n", cc.feeds.NewsText)
	}
	return sb.String()
}

// formatSnapshot renders the cross-venue aggregates for one symbol.
func formatSnapshot(snap *providers.Snapshot) string {
	agg := snap.GlobalMarket
	if agg.SourcesCount == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Cross-venue (%d sources): avg %.4f, spread %.2f%%, funding avg %.6f\n",
		agg.SourcesCount, agg.AveragePrice, agg.PriceSpreadPct, agg.AverageFundingRate)
	if agg.HyperliquidDeviationPct != nil {
		fmt.Fprintf(&sb, "Hyperliquid deviation vs global: %+.2f%%\n", *agg.HyperliquidDeviationPct)
	}
	sb.WriteString("\n")
	return sb.String()
}

func formatRiskStatus(st risk.Status) string {
	return fmt.Sprintf("daily_pnl: %.2f\nconsecutive_losses: %d\ncircuit_breaker: %t\nopen_positions: %d",
		st.DailyPnL, st.ConsecutiveLosses, st.CircuitBreakerActive, st.OpenPositions)
}

func (e *Engine) saveContext(cycleID, phase string, res *decision.Result) {
	decisionJSON, err := json.Marshal(res.Decision)
	if err != nil {
		decisionJSON = []byte("{}")
	}
	if err := e.ops.SaveContext(&store.AIContext{
		CycleID:      cycleID,
		Phase:        phase,
		Model:        res.Model,
		SystemPrompt: res.SystemPrompt,
		UserPrompt:   res.UserPrompt,
		RawResponse:  res.RawResponse,
		Reasoning:    res.Reasoning,
		Decision:     string(decisionJSON),
		Fallback:     res.Fallback,
		DurationMs:   res.DurationMs,
	}); err != nil {
		e.log.Warn().Err(err).Str("phase", phase).Msg("failed to persist ai context")
	}
}

// recordOp appends the step and returns its row id, 0 when the write
// failed.
func (e *Engine) recordOp(cycleID, phase, symbol, operation, status, detail string) int64 {
	id, err := e.ops.SaveOperation(&store.BotOperation{
		CycleID:   cycleID,
		Phase:     phase,
		Symbol:    symbol,
		Operation: operation,
		Status:    status,
		Detail:    truncate(detail, 500),
	})
	if err != nil {
		e.log.Warn().Err(err).Str("phase", phase).Msg("failed to persist operation")
		return 0
	}
	return id
}

// Status reports engine liveness for the API.
func (e *Engine) Status() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return map[string]any{
		"cycle_count":    e.cycleCount,
		"last_cycle_at":  e.lastCycleAt,
		"rotation_index": e.rotationIndex,
		"active_trades":  len(e.activeTrades),
	}
}

func unionOf(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func containsSymbol(symbols []string, symbol string) bool {
	for _, s := range symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

func pctChange(entry, exit float64, direction string) float64 {
	if entry == 0 {
		return 0
	}
	if direction == "short" {
		return (entry - exit) / entry * 100
	}
	return (exit - entry) / entry * 100
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
