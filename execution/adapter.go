// Package execution bridges validated decisions to the venue with
// risk-aware sizing and idempotent closes.
package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"hyper-agent/decision"
	"hyper-agent/hyperliquid"
	"hyper-agent/risk"
)

// Venue is the slice of the exchange client the adapter drives.
type Venue interface {
	AccountStatus(ctx context.Context) (*hyperliquid.AccountStatus, error)
	Asset(symbol string) (hyperliquid.AssetMeta, error)
	AllMids(ctx context.Context) (map[string]float64, error)
	SetLeverage(ctx context.Context, symbol string, leverage int, isCross bool) error
	MarketOpen(ctx context.Context, symbol string, isBuy bool, size, slippage float64) (*hyperliquid.OrderResult, error)
	MarketClose(ctx context.Context, symbol string) (*hyperliquid.OrderResult, error)
}

// Status classifies the outcome of one executed decision.
type Status string

const (
	StatusExecuted Status = "executed"
	StatusSkipped  Status = "skipped"
	StatusRejected Status = "rejected"
	StatusError    Status = "error"
	StatusNoop     Status = "noop"
)

// Outcome is the adapter's report back to the orchestrator.
type Outcome struct {
	Status    Status  `json:"status"`
	Reason    string  `json:"reason,omitempty"`
	Symbol    string  `json:"symbol,omitempty"`
	Direction string  `json:"direction,omitempty"`
	Size      float64 `json:"size,omitempty"`
	AvgPrice  float64 `json:"avg_price,omitempty"`
	OrderID   int64   `json:"order_id,omitempty"`
}

// Adapter executes decisions against the venue, consulting the risk
// manager on every open and keeping its registry consistent on closes.
type Adapter struct {
	venue Venue
	risk  *risk.Manager
	log   zerolog.Logger

	slippage      float64
	leverageGrace time.Duration
}

func NewAdapter(venue Venue, riskMgr *risk.Manager, log zerolog.Logger) *Adapter {
	return &Adapter{
		venue:    venue,
		risk:     riskMgr,
		log:      log,
		slippage: hyperliquid.DefaultSlippage,
		// The venue applies leverage asynchronously; orders racing the
		// update get the old margin schedule.
		leverageGrace: 2 * time.Second,
	}
}

// Execute routes one decision. Hold is a no-op; unknown operations error.
func (a *Adapter) Execute(ctx context.Context, d *decision.Decision) *Outcome {
	switch d.Operation {
	case decision.OpHold:
		return &Outcome{Status: StatusNoop, Reason: "hold"}
	case decision.OpClose:
		return a.closePosition(ctx, d.Close.Symbol)
	case decision.OpOpen:
		return a.openPosition(ctx, d)
	default:
		return &Outcome{Status: StatusError, Reason: fmt.Sprintf("unknown operation %q", d.Operation)}
	}
}

// closePosition flattens a live position. A symbol with no live position
// is treated as already closed: risk tracking is cleaned and the close is
// reported as skipped.
func (a *Adapter) closePosition(ctx context.Context, symbol string) *Outcome {
	st, err := a.venue.AccountStatus(ctx)
	if err != nil {
		return &Outcome{Status: StatusError, Symbol: symbol, Reason: fmt.Sprintf("account status: %v", err)}
	}

	pos, found := hyperliquid.FindPosition(st.Positions, symbol)
	if !found {
		a.risk.RemovePosition(symbol)
		a.log.Info().Str("symbol", symbol).Msg("close requested but no live position, cleaned tracking")
		return &Outcome{Status: StatusSkipped, Symbol: symbol, Reason: "no live position"}
	}

	res, err := a.venue.MarketClose(ctx, pos.Symbol)
	if err != nil {
		return &Outcome{Status: StatusError, Symbol: pos.Symbol, Reason: err.Error()}
	}
	if res != nil && res.ErrorMsg != "" {
		return &Outcome{Status: StatusError, Symbol: pos.Symbol, Reason: res.ErrorMsg}
	}

	// A nil result means the close found nothing to do; an accepted IoC
	// that did not fill comes back unfilled with zero size. Either way the
	// position is still live, so flatten with an opposite-side order.
	if res == nil || !res.Filled {
		res, err = a.alternateClose(ctx, pos)
		if err != nil {
			return &Outcome{Status: StatusError, Symbol: pos.Symbol, Reason: err.Error()}
		}
	}
	if res == nil || !res.Filled {
		return &Outcome{Status: StatusError, Symbol: pos.Symbol,
			Reason: "close order did not fill, position stays supervised"}
	}

	a.risk.RemovePosition(symbol)
	a.risk.RemovePosition(pos.Symbol)

	out := &Outcome{
		Status:    StatusExecuted,
		Symbol:    pos.Symbol,
		Direction: pos.Side(),
		Size:      res.TotalSz,
		AvgPrice:  res.AvgPx,
		OrderID:   res.Oid,
	}
	a.log.Info().Str("symbol", pos.Symbol).Float64("size", out.Size).Msg("position closed")
	return out
}

// alternateClose opens the opposite side for the exact observed size. The
// risk gate is consulted with the forced-close flag so an armed breaker
// cannot trap a position open.
func (a *Adapter) alternateClose(ctx context.Context, pos hyperliquid.Position) (*hyperliquid.OrderResult, error) {
	if adm := a.risk.CanOpenPosition(0, true); !adm.Allowed {
		return nil, fmt.Errorf("alternate close denied: %s", adm.Reason)
	}

	size := math.Abs(pos.Size)
	isBuy := pos.Size < 0 // buying back a short

	a.log.Warn().Str("symbol", pos.Symbol).Float64("size", size).
		Msg("market close returned nothing, flattening with opposite-side order")

	res, err := a.venue.MarketOpen(ctx, pos.Symbol, isBuy, size, a.slippage)
	if err != nil {
		return nil, fmt.Errorf("alternate close: %w", err)
	}
	if res != nil && res.ErrorMsg != "" {
		return nil, fmt.Errorf("alternate close: %s", res.ErrorMsg)
	}
	return res, nil
}

// openPosition runs the full entry pipeline: risk admission, sizing,
// leverage, order, registration.
func (a *Adapter) openPosition(ctx context.Context, d *decision.Decision) *Outcome {
	o := d.Open

	st, err := a.venue.AccountStatus(ctx)
	if err != nil {
		return &Outcome{Status: StatusError, Symbol: o.Symbol, Reason: fmt.Sprintf("account status: %v", err)}
	}
	balance := st.BalanceUSD
	if balance <= 0 {
		return &Outcome{Status: StatusRejected, Symbol: o.Symbol, Reason: "no balance available"}
	}

	if adm := a.risk.CanOpenPosition(balance, false); !adm.Allowed {
		return &Outcome{Status: StatusRejected, Symbol: o.Symbol, Reason: adm.Reason}
	}

	sizing := a.risk.CalculatePositionSize(balance, o.TargetPortionOfBalance, o.StopLossPct)
	o.TargetPortionOfBalance = sizing.EffectivePortion

	meta, err := a.venue.Asset(o.Symbol)
	if err != nil {
		return &Outcome{Status: StatusError, Symbol: o.Symbol, Reason: err.Error()}
	}

	if err := a.venue.SetLeverage(ctx, o.Symbol, o.Leverage, true); err != nil {
		return &Outcome{Status: StatusError, Symbol: o.Symbol, Reason: fmt.Sprintf("set leverage: %v", err)}
	}
	select {
	case <-time.After(a.leverageGrace):
	case <-ctx.Done():
		return &Outcome{Status: StatusError, Symbol: o.Symbol, Reason: ctx.Err().Error()}
	}

	mids, err := a.venue.AllMids(ctx)
	if err != nil {
		return &Outcome{Status: StatusError, Symbol: o.Symbol, Reason: fmt.Sprintf("mids: %v", err)}
	}
	mark, ok := mids[o.Symbol]
	if !ok || mark <= 0 {
		return &Outcome{Status: StatusError, Symbol: o.Symbol, Reason: "no mark price"}
	}

	rawSize := balance * o.TargetPortionOfBalance * float64(o.Leverage) / mark
	if rawSize < meta.MinSz {
		return &Outcome{Status: StatusRejected, Symbol: o.Symbol,
			Reason: fmt.Sprintf("size %.8f below venue minimum %.8f", rawSize, meta.MinSz)}
	}
	size := hyperliquid.RoundSize(rawSize, meta.SzDecimals, meta.MinSz)
	if size <= 0 {
		return &Outcome{Status: StatusRejected, Symbol: o.Symbol, Reason: "size rounds to zero"}
	}

	isBuy := o.Direction == "long"
	res, err := a.venue.MarketOpen(ctx, o.Symbol, isBuy, size, a.slippage)
	if err != nil {
		return &Outcome{Status: StatusError, Symbol: o.Symbol, Reason: err.Error()}
	}
	if res == nil {
		return &Outcome{Status: StatusError, Symbol: o.Symbol, Reason: "order returned no result"}
	}
	if res.ErrorMsg != "" {
		return &Outcome{Status: StatusError, Symbol: o.Symbol, Reason: res.ErrorMsg}
	}

	entryPrice := res.AvgPx
	if entryPrice <= 0 {
		entryPrice = mark
	}
	filled := res.TotalSz
	if filled <= 0 {
		filled = size
	}

	a.risk.RegisterPosition(o.Symbol, o.Direction, entryPrice, filled, o.Leverage, o.StopLossPct, o.TakeProfitPct)

	a.log.Info().Str("symbol", o.Symbol).Str("direction", o.Direction).
		Float64("size", filled).Float64("entry", entryPrice).Int("leverage", o.Leverage).
		Msg("position opened")

	return &Outcome{
		Status:    StatusExecuted,
		Symbol:    o.Symbol,
		Direction: o.Direction,
		Size:      filled,
		AvgPrice:  entryPrice,
		OrderID:   res.Oid,
	}
}
