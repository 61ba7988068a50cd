// Package history repairs divergence between the local trade records and
// the venue's fill history. It runs in its own worker, independent of the
// trading cycle, so records converge even after a crash mid-trade.
package history

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hyper-agent/hyperliquid"
	"hyper-agent/store"
)

// Venue is the slice of the exchange client the reconciler reads.
type Venue interface {
	UserFills(ctx context.Context) ([]hyperliquid.Fill, error)
}

// Reconciler periodically folds venue fills into the trade table.
type Reconciler struct {
	venue  Venue
	trades *store.TradeStore
	log    zerolog.Logger

	interval  time.Duration
	tolerance time.Duration
}

func NewReconciler(venue Venue, trades *store.TradeStore, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		venue:     venue,
		trades:    trades,
		log:       log,
		interval:  30 * time.Second,
		tolerance: 5 * time.Second,
	}
}

// Run syncs immediately and then on every tick until the context ends.
func (r *Reconciler) Run(ctx context.Context) {
	if err := r.Sync(ctx); err != nil {
		r.log.Warn().Err(err).Msg("history sync failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sync(ctx); err != nil {
				r.log.Warn().Err(err).Msg("history sync failed")
			}
		}
	}
}

// Sync replays the venue fill history into the trade table. Replays are
// idempotent: every insert is guarded by an order-id or time-window dedupe.
func (r *Reconciler) Sync(ctx context.Context) error {
	fills, err := r.venue.UserFills(ctx)
	if err != nil {
		return err
	}

	sort.Slice(fills, func(i, j int) bool { return fills[i].Time < fills[j].Time })

	for _, fill := range fills {
		action, direction, ok := classify(fill.Dir)
		if !ok {
			continue
		}
		switch action {
		case "open":
			err = r.syncOpen(fill, direction)
		case "close":
			err = r.syncClose(fill, direction)
		}
		if err != nil {
			r.log.Warn().Err(err).Str("symbol", fill.Coin).Str("dir", fill.Dir).
				Msg("fill reconciliation failed")
		}
	}
	return nil
}

func (r *Reconciler) syncOpen(fill hyperliquid.Fill, direction string) error {
	at := time.UnixMilli(fill.Time).UTC()

	seen, err := r.trades.HasOpenFill(fill.Oid, fill.Coin, at, r.tolerance)
	if err != nil || seen {
		return err
	}

	px, sz := parseF(fill.Px), parseF(fill.Sz)
	_, err = r.trades.InsertOpen(&store.TradeRecord{
		Symbol:     fill.Coin,
		Direction:  direction,
		EntryPrice: px,
		Size:       sz,
		SizeUSD:    px * sz,
		OrderID:    fill.Oid,
		OpenedAt:   at,
	})
	if err == nil {
		r.log.Info().Str("symbol", fill.Coin).Str("direction", direction).
			Msg("recovered missed open from fill history")
	}
	return err
}

func (r *Reconciler) syncClose(fill hyperliquid.Fill, direction string) error {
	at := time.UnixMilli(fill.Time).UTC()

	seen, err := r.trades.HasClosedNear(fill.Coin, at, r.tolerance)
	if err != nil || seen {
		return err
	}

	exitPrice := parseF(fill.Px)
	size := parseF(fill.Sz)
	pnl := parseF(fill.ClosedPnl)

	rec, err := r.trades.LatestOpen(fill.Coin, direction)
	if err != nil {
		return err
	}

	if rec != nil {
		pnlPct := pnlPct(rec.EntryPrice, exitPrice, direction)
		if err := r.trades.CloseTrade(rec.ID, exitPrice, pnl, pnlPct, parseF(fill.Fee), at, store.ExitReasonSyncedFill); err != nil {
			return err
		}
		r.log.Info().Str("symbol", fill.Coin).Float64("pnl", pnl).
			Msg("closed tracked trade from fill history")
		return nil
	}

	// No tracked open: reconstruct the entry price from the reported pnl.
	entry := exitPrice
	if size > 0 {
		if direction == "long" {
			entry = exitPrice - pnl/size
		} else {
			entry = exitPrice + pnl/size
		}
	}

	_, err = r.trades.InsertClosed(&store.TradeRecord{
		Symbol:     fill.Coin,
		Direction:  direction,
		EntryPrice: entry,
		ExitPrice:  exitPrice,
		Size:       size,
		SizeUSD:    exitPrice * size,
		PnL:        pnl,
		PnLPct:     pnlPct(entry, exitPrice, direction),
		FeesUSD:    parseF(fill.Fee),
		ExitReason: store.ExitReasonSyncedHist,
		OrderID:    fill.Oid,
		OpenedAt:   at,
		ClosedAt:   &at,
	})
	if err == nil {
		r.log.Info().Str("symbol", fill.Coin).Float64("entry", entry).
			Msg("reconstructed untracked close from fill history")
	}
	return err
}

// classify maps a fill direction label ("Open Long", "Close Short", ...) to
// the action and position direction. Spot and liquidation labels are skipped.
func classify(dir string) (action, direction string, ok bool) {
	parts := strings.Fields(dir)
	if len(parts) != 2 {
		return "", "", false
	}
	action = strings.ToLower(parts[0])
	direction = strings.ToLower(parts[1])
	if action != "open" && action != "close" {
		return "", "", false
	}
	if direction != "long" && direction != "short" {
		return "", "", false
	}
	return action, direction, true
}

func pnlPct(entry, exit float64, direction string) float64 {
	if entry == 0 {
		return 0
	}
	if direction == "short" {
		return (entry - exit) / entry * 100
	}
	return (exit - entry) / entry * 100
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
