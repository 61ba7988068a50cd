package store

import (
	"context"
	"time"

	"hyper-agent/llm"
)

// UsageStore persists LLM token spend. It implements llm.UsageStore.
type UsageStore struct{}

func NewUsageStore() *UsageStore {
	return &UsageStore{}
}

func (s *UsageStore) SaveUsage(ctx context.Context, rec llm.UsageRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO llm_usage (id, model, operation, ticker, cycle_id,
			prompt_tokens, completion_tokens, total_tokens, response_time_ms,
			input_cost_usd, output_cost_usd, total_cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Model, rec.Operation, rec.Ticker, rec.CycleID,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.ResponseTimeMs,
		rec.InputCostUSD, rec.OutputCostUSD, rec.TotalCostUSD, rec.Timestamp.UTC())
	return err
}

// UsageSummary is aggregate token spend for one model.
type UsageSummary struct {
	Model            string  `json:"model"`
	Calls            int     `json:"calls"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// SummarizeSince aggregates usage per model from the given time.
func (s *UsageStore) SummarizeSince(since time.Time) ([]*UsageSummary, error) {
	rows, err := db.Query(`
		SELECT model, COUNT(*), COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(total_cost_usd), 0)
		FROM llm_usage WHERE created_at >= ?
		GROUP BY model ORDER BY SUM(total_cost_usd) DESC
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UsageSummary
	for rows.Next() {
		var u UsageSummary
		if err := rows.Scan(&u.Model, &u.Calls, &u.PromptTokens,
			&u.CompletionTokens, &u.CostUSD); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}
