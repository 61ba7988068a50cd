package store

import (
	"encoding/json"
	"time"

	"hyper-agent/screener"
)

// ScreeningRow is one persisted screener run.
type ScreeningRow struct {
	ID            int64     `json:"id"`
	ScreeningType string    `json:"screening_type"`
	SelectedCoins []string  `json:"selected_coins"`
	ExcludedCoins []string  `json:"excluded_coins"`
	ExcludedCount int       `json:"excluded_count"`
	NextRebalance time.Time `json:"next_rebalance"`
	CreatedAt     time.Time `json:"created_at"`
}

// ScoreRow is one coin's score within a screening run.
type ScoreRow struct {
	ID          int64              `json:"id"`
	ScreeningID int64              `json:"screening_id"`
	Symbol      string             `json:"symbol"`
	Score       float64            `json:"score"`
	Rank        int                `json:"rank"`
	Factors     map[string]float64 `json:"factors"`
	CreatedAt   time.Time          `json:"created_at"`
}

// ScreeningStore handles screener run persistence.
type ScreeningStore struct{}

func NewScreeningStore() *ScreeningStore {
	return &ScreeningStore{}
}

// SaveResult persists a screening run and its per-coin scores in one
// transaction, returning the screening row id.
func (s *ScreeningStore) SaveResult(res *screener.Result) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	symbols := make([]string, 0, len(res.SelectedCoins))
	for _, c := range res.SelectedCoins {
		symbols = append(symbols, c.Symbol)
	}
	selected, err := json.Marshal(symbols)
	if err != nil {
		return 0, err
	}
	excluded, err := json.Marshal(res.ExcludedCoins)
	if err != nil {
		return 0, err
	}

	row, err := tx.Exec(`
		INSERT INTO coin_screenings (screening_type, selected_coins, excluded_coins, excluded_count, next_rebalance)
		VALUES (?, ?, ?, ?, ?)
	`, res.ScreeningType, string(selected), string(excluded), len(res.ExcludedCoins), res.NextRebalance.UTC())
	if err != nil {
		return 0, err
	}
	screeningID, err := row.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO coin_scores_history (screening_id, symbol, score, rank, factors)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, c := range res.SelectedCoins {
		factors, err := json.Marshal(c.Factors)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.Exec(screeningID, c.Symbol, c.Score, c.Rank, string(factors)); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return screeningID, nil
}

// RecentScreenings returns the newest screening runs, most recent first.
func (s *ScreeningStore) RecentScreenings(limit int) ([]*ScreeningRow, error) {
	rows, err := db.Query(`
		SELECT id, screening_type, selected_coins, excluded_coins, excluded_count, next_rebalance, created_at
		FROM coin_screenings ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScreeningRow
	for rows.Next() {
		var r ScreeningRow
		var selected, excluded string
		if err := rows.Scan(&r.ID, &r.ScreeningType, &selected, &excluded, &r.ExcludedCount,
			&r.NextRebalance, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(selected), &r.SelectedCoins); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(excluded), &r.ExcludedCoins); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ScoresByScreening returns the scores behind one screening run, by rank.
func (s *ScreeningStore) ScoresByScreening(screeningID int64) ([]*ScoreRow, error) {
	rows, err := db.Query(`
		SELECT id, screening_id, symbol, score, rank, factors, created_at
		FROM coin_scores_history WHERE screening_id = ? ORDER BY rank ASC
	`, screeningID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScoreRow
	for rows.Next() {
		var r ScoreRow
		var factors string
		if err := rows.Scan(&r.ID, &r.ScreeningID, &r.Symbol, &r.Score, &r.Rank,
			&factors, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(factors), &r.Factors); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
