package store

import (
	"database/sql"
	"time"
)

// Trade status constants.
const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

// Exit reason constants. Reconciler-written reasons are prefixed synced_.
const (
	ExitReasonStopLoss   = "stop_loss"
	ExitReasonTakeProfit = "take_profit"
	ExitReasonAIClose    = "ai_close"
	ExitReasonGhost      = "ghost_removed"
	ExitReasonSyncedFill = "synced_fill"
	ExitReasonSyncedHist = "synced_history"
)

// TradeRecord is one trade lifecycle row. A row starts open and is closed
// exactly once, either by the orchestrator or by the reconciler.
type TradeRecord struct {
	ID              int64      `json:"id"`
	Symbol          string     `json:"symbol"`
	Direction       string     `json:"direction"` // "long" or "short"
	EntryPrice      float64    `json:"entry_price"`
	ExitPrice       float64    `json:"exit_price"`
	Size            float64    `json:"size"`
	SizeUSD         float64    `json:"size_usd"`
	Leverage        int        `json:"leverage"`
	StopLossPrice   float64    `json:"stop_loss_price"`
	TakeProfitPrice float64    `json:"take_profit_price"`
	PnL             float64    `json:"pnl"`
	PnLPct          float64    `json:"pnl_pct"`
	FeesUSD         float64    `json:"fees_usd"`
	DurationMinutes float64    `json:"duration_minutes"`
	Status          string     `json:"status"`
	ExitReason      string     `json:"exit_reason"`
	OrderID         int64      `json:"order_id"`
	OperationID     int64      `json:"operation_id"` // bot_operations row that triggered the open
	OpenedAt        time.Time  `json:"opened_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// TradeStore handles trade record persistence.
type TradeStore struct{}

func NewTradeStore() *TradeStore {
	return &TradeStore{}
}

// InsertOpen records a newly opened trade and returns its row id.
func (s *TradeStore) InsertOpen(t *TradeRecord) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO trades (symbol, direction, entry_price, size, size_usd, leverage,
			stop_loss_price, take_profit_price, status, order_id, operation_id, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Symbol, t.Direction, t.EntryPrice, t.Size, t.SizeUSD, t.Leverage,
		t.StopLossPrice, t.TakeProfitPrice, TradeStatusOpen, t.OrderID, t.OperationID, t.OpenedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CloseTrade marks an open row closed with its exit fill. Duration is
// derived from the recorded open time.
func (s *TradeStore) CloseTrade(id int64, exitPrice, pnl, pnlPct, feesUSD float64, closedAt time.Time, reason string) error {
	_, err := db.Exec(`
		UPDATE trades SET exit_price = ?, pnl = ?, pnl_pct = ?, fees_usd = ?,
			duration_minutes = ROUND((julianday(?) - julianday(opened_at)) * 1440, 2),
			status = ?, exit_reason = ?, closed_at = ?
		WHERE id = ? AND status = ?
	`, exitPrice, pnl, pnlPct, feesUSD, closedAt.UTC(),
		TradeStatusClosed, reason, closedAt.UTC(), id, TradeStatusOpen)
	return err
}

// InsertClosed records a trade that was never tracked while open, built
// entirely from exchange history.
func (s *TradeStore) InsertClosed(t *TradeRecord) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO trades (symbol, direction, entry_price, exit_price, size, size_usd, leverage,
			pnl, pnl_pct, fees_usd, duration_minutes, status, exit_reason, order_id, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Symbol, t.Direction, t.EntryPrice, t.ExitPrice, t.Size, t.SizeUSD, t.Leverage,
		t.PnL, t.PnLPct, t.FeesUSD, t.DurationMinutes,
		TradeStatusClosed, t.ExitReason, t.OrderID, t.OpenedAt.UTC(), t.ClosedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// HasOpenFill reports whether an open fill is already recorded, matched by
// venue order id or by symbol within the given time tolerance.
func (s *TradeStore) HasOpenFill(orderID int64, symbol string, at time.Time, tol time.Duration) (bool, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM trades
		WHERE (order_id = ? AND order_id != 0)
		   OR (symbol = ? AND opened_at BETWEEN ? AND ?)
	`, orderID, symbol, at.Add(-tol).UTC(), at.Add(tol).UTC()).Scan(&n)
	return n > 0, err
}

// HasClosedNear reports whether a closed record for the symbol already
// exists within the time tolerance.
func (s *TradeStore) HasClosedNear(symbol string, at time.Time, tol time.Duration) (bool, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM trades
		WHERE symbol = ? AND status = ? AND closed_at BETWEEN ? AND ?
	`, symbol, TradeStatusClosed, at.Add(-tol).UTC(), at.Add(tol).UTC()).Scan(&n)
	return n > 0, err
}

// LatestOpen returns the most recently opened open trade for (symbol,
// direction), or nil when none exists.
func (s *TradeStore) LatestOpen(symbol, direction string) (*TradeRecord, error) {
	row := db.QueryRow(`
		SELECT id, symbol, direction, entry_price, exit_price, size, size_usd, leverage,
			stop_loss_price, take_profit_price, pnl, pnl_pct, fees_usd, duration_minutes,
			status, exit_reason, order_id, operation_id, opened_at, closed_at
		FROM trades
		WHERE symbol = ? AND direction = ? AND status = ?
		ORDER BY opened_at DESC LIMIT 1
	`, symbol, direction, TradeStatusOpen)

	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// OpenTrades returns every open record, oldest first.
func (s *TradeStore) OpenTrades() ([]*TradeRecord, error) {
	return s.query(`
		SELECT id, symbol, direction, entry_price, exit_price, size, size_usd, leverage,
			stop_loss_price, take_profit_price, pnl, pnl_pct, fees_usd, duration_minutes,
			status, exit_reason, order_id, operation_id, opened_at, closed_at
		FROM trades WHERE status = ? ORDER BY opened_at ASC
	`, TradeStatusOpen)
}

// Recent returns the newest trades regardless of status.
func (s *TradeStore) Recent(limit int) ([]*TradeRecord, error) {
	return s.query(`
		SELECT id, symbol, direction, entry_price, exit_price, size, size_usd, leverage,
			stop_loss_price, take_profit_price, pnl, pnl_pct, fees_usd, duration_minutes,
			status, exit_reason, order_id, operation_id, opened_at, closed_at
		FROM trades ORDER BY opened_at DESC LIMIT ?
	`, limit)
}

// TotalPnL sums realized pnl across closed trades.
func (s *TradeStore) TotalPnL() (float64, error) {
	var pnl float64
	err := db.QueryRow(`
		SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE status = ?
	`, TradeStatusClosed).Scan(&pnl)
	return pnl, err
}

func (s *TradeStore) query(q string, args ...any) ([]*TradeRecord, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(r rowScanner) (*TradeRecord, error) {
	var t TradeRecord
	var closedAt sql.NullTime
	err := r.Scan(&t.ID, &t.Symbol, &t.Direction, &t.EntryPrice, &t.ExitPrice, &t.Size, &t.SizeUSD,
		&t.Leverage, &t.StopLossPrice, &t.TakeProfitPrice, &t.PnL, &t.PnLPct, &t.FeesUSD,
		&t.DurationMinutes, &t.Status, &t.ExitReason, &t.OrderID, &t.OperationID, &t.OpenedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	if closedAt.Valid {
		ts := closedAt.Time
		t.ClosedAt = &ts
	}
	return &t, nil
}
