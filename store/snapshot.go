package store

import (
	"time"
)

// AccountSnapshot is one equity observation.
type AccountSnapshot struct {
	ID              int64     `json:"id"`
	BalanceUSD      float64   `json:"balance_usd"`
	PerpsBalanceUSD float64   `json:"perps_balance_usd"`
	SpotBalanceUSD  float64   `json:"spot_balance_usd"`
	UnrealizedPnL   float64   `json:"unrealized_pnl"`
	OpenPositions   int       `json:"open_positions"`
	CreatedAt       time.Time `json:"created_at"`
}

// PositionRow is one open position as observed with a snapshot.
type PositionRow struct {
	ID         int64   `json:"id"`
	SnapshotID int64   `json:"snapshot_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
	MarkPrice  float64 `json:"mark_price"`
	PnLUSD     float64 `json:"pnl_usd"`
	Leverage   int     `json:"leverage"`
}

// SnapshotStore handles account snapshot persistence.
type SnapshotStore struct{}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Save writes the snapshot and its open position rows in one transaction.
func (s *SnapshotStore) Save(snap *AccountSnapshot, positions []PositionRow) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO account_snapshots (balance_usd, perps_balance_usd, spot_balance_usd, unrealized_pnl, open_positions)
		VALUES (?, ?, ?, ?, ?)
	`, snap.BalanceUSD, snap.PerpsBalanceUSD, snap.SpotBalanceUSD, snap.UnrealizedPnL, snap.OpenPositions)
	if err != nil {
		return err
	}
	snapID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	snap.ID = snapID

	for _, p := range positions {
		if _, err := tx.Exec(`
			INSERT INTO open_positions (snapshot_id, symbol, side, size, entry_price, mark_price, pnl_usd, leverage)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, snapID, p.Symbol, p.Side, p.Size, p.EntryPrice, p.MarkPrice, p.PnLUSD, p.Leverage); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PositionsBySnapshot returns the open positions recorded with a snapshot.
func (s *SnapshotStore) PositionsBySnapshot(snapshotID int64) ([]*PositionRow, error) {
	rows, err := db.Query(`
		SELECT id, snapshot_id, symbol, side, size, entry_price, mark_price, pnl_usd, leverage
		FROM open_positions WHERE snapshot_id = ? ORDER BY symbol ASC
	`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PositionRow
	for rows.Next() {
		var p PositionRow
		if err := rows.Scan(&p.ID, &p.SnapshotID, &p.Symbol, &p.Side, &p.Size,
			&p.EntryPrice, &p.MarkPrice, &p.PnLUSD, &p.Leverage); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Latest returns the most recent snapshot, or nil when none exists.
func (s *SnapshotStore) Latest() (*AccountSnapshot, error) {
	snaps, err := s.Recent(1)
	if err != nil || len(snaps) == 0 {
		return nil, err
	}
	return snaps[0], nil
}

func (s *SnapshotStore) Recent(limit int) ([]*AccountSnapshot, error) {
	rows, err := db.Query(`
		SELECT id, balance_usd, perps_balance_usd, spot_balance_usd, unrealized_pnl, open_positions, created_at
		FROM account_snapshots ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AccountSnapshot
	for rows.Next() {
		var snap AccountSnapshot
		if err := rows.Scan(&snap.ID, &snap.BalanceUSD, &snap.PerpsBalanceUSD,
			&snap.SpotBalanceUSD, &snap.UnrealizedPnL, &snap.OpenPositions, &snap.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}
