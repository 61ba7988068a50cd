package store

import (
	"time"
)

// BotOperation is one appended orchestrator step.
type BotOperation struct {
	ID        int64     `json:"id"`
	CycleID   string    `json:"cycle_id"`
	Phase     string    `json:"phase"`
	Symbol    string    `json:"symbol,omitempty"`
	Operation string    `json:"operation"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AIContext is the full prompt/response exchange behind one decision.
type AIContext struct {
	ID           int64     `json:"id"`
	CycleID      string    `json:"cycle_id"`
	Phase        string    `json:"phase"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt"`
	UserPrompt   string    `json:"user_prompt"`
	RawResponse  string    `json:"raw_response"`
	Reasoning    string    `json:"reasoning,omitempty"`
	Decision     string    `json:"decision"`
	Fallback     bool      `json:"fallback"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// OperationStore handles cycle operation and AI context persistence.
type OperationStore struct{}

func NewOperationStore() *OperationStore {
	return &OperationStore{}
}

// SaveOperation appends one step and returns its row id so trade records
// can link back to the operation that produced them.
func (s *OperationStore) SaveOperation(op *BotOperation) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO bot_operations (cycle_id, phase, symbol, operation, status, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`, op.CycleID, op.Phase, op.Symbol, op.Operation, op.Status, op.Detail)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *OperationStore) SaveContext(c *AIContext) error {
	_, err := db.Exec(`
		INSERT INTO ai_contexts (cycle_id, phase, model, system_prompt, user_prompt,
			raw_response, reasoning, decision, fallback, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.CycleID, c.Phase, c.Model, c.SystemPrompt, c.UserPrompt,
		c.RawResponse, c.Reasoning, c.Decision, c.Fallback, c.DurationMs)
	return err
}

// RecentOperations returns the newest operations, most recent first.
func (s *OperationStore) RecentOperations(limit int) ([]*BotOperation, error) {
	rows, err := db.Query(`
		SELECT id, cycle_id, phase, symbol, operation, status, detail, created_at
		FROM bot_operations ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BotOperation
	for rows.Next() {
		var op BotOperation
		if err := rows.Scan(&op.ID, &op.CycleID, &op.Phase, &op.Symbol,
			&op.Operation, &op.Status, &op.Detail, &op.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &op)
	}
	return out, rows.Err()
}

// ContextsByCycle returns every AI exchange recorded for a cycle.
func (s *OperationStore) ContextsByCycle(cycleID string) ([]*AIContext, error) {
	rows, err := db.Query(`
		SELECT id, cycle_id, phase, model, system_prompt, user_prompt,
			raw_response, reasoning, decision, fallback, duration_ms, created_at
		FROM ai_contexts WHERE cycle_id = ? ORDER BY id ASC
	`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AIContext
	for rows.Next() {
		var c AIContext
		if err := rows.Scan(&c.ID, &c.CycleID, &c.Phase, &c.Model, &c.SystemPrompt,
			&c.UserPrompt, &c.RawResponse, &c.Reasoning, &c.Decision,
			&c.Fallback, &c.DurationMs, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
