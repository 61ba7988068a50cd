package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the portfolio risk limits.
type Config struct {
	MaxDailyLossPct      float64 // percent of balance
	MaxDailyLossUSD      float64
	MaxPositionPct       float64 // percent of balance per position
	DefaultStopLossPct   float64
	DefaultTakeProfitPct float64
	MaxConsecutiveLosses int
	CooldownAfterLosses  time.Duration
	PerTradeRiskFraction float64 // fraction of balance risked per trade
}

func DefaultConfig() Config {
	return Config{
		MaxDailyLossPct:      5.0,
		MaxDailyLossUSD:      500.0,
		MaxPositionPct:       30.0,
		DefaultStopLossPct:   2.0,
		DefaultTakeProfitPct: 5.0,
		MaxConsecutiveLosses: 3,
		CooldownAfterLosses:  30 * time.Minute,
		PerTradeRiskFraction: 0.02,
	}
}

// Admission is the verdict of an open-position check.
type Admission struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Sizing is the outcome of fixed-fractional position sizing.
type Sizing struct {
	SizeUSD          float64 `json:"size_usd"`
	EffectivePortion float64 `json:"effective_portion"`
	RiskUSD          float64 `json:"risk_usd"`
}

// ExitEvent marks a position whose SL or TP line was crossed. The caller
// performs the actual close.
type ExitEvent struct {
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction"`
	Reason     string    `json:"reason"` // stop_loss or take_profit
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"`
	Position   *Position `json:"-"`
}

// Status is a read-only snapshot of the manager state.
type Status struct {
	DailyPnL             float64              `json:"daily_pnl"`
	ConsecutiveLosses    int                  `json:"consecutive_losses"`
	CircuitBreakerActive bool                 `json:"circuit_breaker_active"`
	OpenPositions        int                  `json:"open_positions"`
	Positions            map[string]*Position `json:"positions"`
}

// Manager enforces the daily loss ceiling, loss-streak cooldown and
// per-position limits. State is in-memory only and resets on restart.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu                sync.Mutex
	positions         map[string]*Position
	dailyPnL          float64
	dailyResetDate    time.Time
	consecutiveLosses int
	lastLossTime      time.Time
	breakerActive     bool

	now func() time.Time
}

func NewManager(cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:            cfg,
		log:            log,
		positions:      make(map[string]*Position),
		dailyResetDate: time.Now().UTC(),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// resetDailyIfNeeded zeroes daily stats once the UTC date rolls over.
// Callers must hold the mutex.
func (m *Manager) resetDailyIfNeeded() {
	now := m.now()
	y1, m1, d1 := m.dailyResetDate.Date()
	y2, m2, d2 := now.Date()
	if time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC).After(time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)) {
		m.log.Info().Msg("daily risk stats reset")
		m.dailyPnL = 0
		m.dailyResetDate = now
		m.breakerActive = false
	}
}

// CanOpenPosition gates a new entry. A forced close (opening the opposite
// side to flatten a stuck position) is always admitted.
func (m *Manager) CanOpenPosition(balanceUSD float64, forcedClose bool) Admission {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetDailyIfNeeded()

	if forcedClose {
		return Admission{Allowed: true, Reason: "forced close"}
	}

	if m.breakerActive {
		return Admission{Allowed: false, Reason: fmt.Sprintf("circuit breaker active, daily loss $%.2f", abs(m.dailyPnL))}
	}

	if abs(m.dailyPnL) >= m.cfg.MaxDailyLossUSD {
		m.breakerActive = true
		return Admission{Allowed: false, Reason: fmt.Sprintf("max daily loss reached: $%.2f", abs(m.dailyPnL))}
	}

	if balanceUSD > 0 {
		lossPct := abs(m.dailyPnL) / balanceUSD * 100
		if lossPct >= m.cfg.MaxDailyLossPct {
			m.breakerActive = true
			return Admission{Allowed: false, Reason: fmt.Sprintf("max daily loss pct reached: %.1f%%", lossPct)}
		}
	}

	if m.consecutiveLosses >= m.cfg.MaxConsecutiveLosses && !m.lastLossTime.IsZero() {
		cooldownEnd := m.lastLossTime.Add(m.cfg.CooldownAfterLosses)
		if now := m.now(); now.Before(cooldownEnd) {
			remaining := cooldownEnd.Sub(now).Round(time.Minute)
			return Admission{Allowed: false, Reason: fmt.Sprintf("cooldown after %d losses, %s remaining", m.consecutiveLosses, remaining)}
		}
		m.consecutiveLosses = 0
	}

	return Admission{Allowed: true, Reason: "OK"}
}

// CalculatePositionSize applies fixed-fractional sizing: the full SL move
// should cost at most the per-trade risk fraction of balance.
func (m *Manager) CalculatePositionSize(balanceUSD, requestedPortion, stopLossPct float64) Sizing {
	riskAmount := balanceUSD * m.cfg.PerTradeRiskFraction

	sizeFromRisk := balanceUSD * requestedPortion
	if stopLossPct > 0 {
		sizeFromRisk = riskAmount / stopLossPct * 100
	}

	maxSize := balanceUSD * m.cfg.MaxPositionPct / 100
	requestedSize := balanceUSD * requestedPortion

	finalSize := min3(requestedSize, sizeFromRisk, maxSize)

	portion := 0.0
	if balanceUSD > 0 {
		portion = finalSize / balanceUSD
	}

	m.log.Info().Float64("requested_portion", requestedPortion).
		Float64("risk_based_size", sizeFromRisk).Float64("final_size", finalSize).
		Float64("effective_portion", portion).Msg("position sizing")

	return Sizing{SizeUSD: finalSize, EffectivePortion: portion, RiskUSD: riskAmount}
}

// RegisterPosition computes SL/TP prices from the entry and starts
// supervising the position. Re-registering a symbol replaces it.
func (m *Manager) RegisterPosition(symbol, direction string, entryPrice, size float64, leverage int, stopLossPct, takeProfitPct float64) *Position {
	var slPrice, tpPrice float64
	if direction == "long" {
		slPrice = entryPrice * (1 - stopLossPct/100)
		tpPrice = entryPrice * (1 + takeProfitPct/100)
	} else {
		slPrice = entryPrice * (1 + stopLossPct/100)
		tpPrice = entryPrice * (1 - takeProfitPct/100)
	}

	p := &Position{
		Symbol:          symbol,
		Direction:       direction,
		EntryPrice:      entryPrice,
		Size:            size,
		Leverage:        leverage,
		StopLossPrice:   slPrice,
		TakeProfitPrice: tpPrice,
		OpenedAt:        m.now(),
	}

	m.mu.Lock()
	m.positions[symbol] = p
	m.mu.Unlock()

	m.log.Info().Str("symbol", symbol).Str("direction", direction).
		Float64("entry", entryPrice).Float64("sl", slPrice).Float64("tp", tpPrice).
		Msg("position registered")
	return p
}

// CheckPositions sweeps every supervised position against fresh prices and
// returns the exits to perform. Symbols missing a price are skipped.
func (m *Manager) CheckPositions(currentPrices map[string]float64) []ExitEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var exits []ExitEvent
	for symbol, p := range m.positions {
		price, ok := currentPrices[symbol]
		if !ok {
			continue
		}
		reason := p.CheckExit(price)
		if reason == "" {
			continue
		}
		exits = append(exits, ExitEvent{
			Symbol:     symbol,
			Direction:  p.Direction,
			Reason:     reason,
			EntryPrice: p.EntryPrice,
			ExitPrice:  price,
			PnL:        p.PnL(price),
			Position:   p,
		})
		m.log.Warn().Str("symbol", symbol).Str("reason", reason).
			Float64("price", price).Float64("entry", p.EntryPrice).
			Float64("pnl", p.PnL(price)).Msg("exit condition hit")
	}
	return exits
}

// RecordTradeResult folds a realized PnL into the daily stats and the
// loss streak.
func (m *Manager) RecordTradeResult(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetDailyIfNeeded()
	m.dailyPnL += pnl

	if pnl < 0 {
		m.consecutiveLosses++
		m.lastLossTime = m.now()
		m.log.Warn().Float64("pnl", pnl).Int("consecutive", m.consecutiveLosses).
			Float64("daily_pnl", m.dailyPnL).Msg("loss recorded")
	} else {
		m.consecutiveLosses = 0
		m.log.Info().Float64("pnl", pnl).Float64("daily_pnl", m.dailyPnL).Msg("profit recorded")
	}
}

// RemovePosition stops supervising a symbol.
func (m *Manager) RemovePosition(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[symbol]; ok {
		delete(m.positions, symbol)
		m.log.Info().Str("symbol", symbol).Msg("position removed from tracking")
	}
}

// GetPosition returns the supervised position for a symbol, if any.
func (m *Manager) GetPosition(symbol string) (*Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	return p, ok
}

// GetStatus snapshots the manager for prompts and the API.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	positions := make(map[string]*Position, len(m.positions))
	for s, p := range m.positions {
		cp := *p
		positions[s] = &cp
	}
	return Status{
		DailyPnL:             m.dailyPnL,
		ConsecutiveLosses:    m.consecutiveLosses,
		CircuitBreakerActive: m.breakerActive,
		OpenPositions:        len(m.positions),
		Positions:            positions,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
