package llm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// tokenPrice is USD per 1M tokens.
type tokenPrice struct {
	Input  float64
	Output float64
}

// pricing maps wire model ids to their per-million-token cost. Unlisted
// models fall back to "default".
var pricing = map[string]tokenPrice{
	"gpt-4o":            {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":       {Input: 0.15, Output: 0.60},
	"gpt-4.1-mini":      {Input: 0.40, Output: 1.60},
	"gpt-4.1-nano":      {Input: 0.10, Output: 0.40},
	"deepseek-chat":     {Input: 0.14, Output: 0.28},
	"deepseek-reasoner": {Input: 0.55, Output: 2.19},
	"default":           {Input: 1.00, Output: 2.00},
}

// UsageRecord is one LLM call's token accounting. TotalCostUSD is always
// InputCostUSD + OutputCostUSD.
type UsageRecord struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Model            string    `json:"model"`
	Operation        string    `json:"operation"` // manage, scout, screening...
	Ticker           string    `json:"ticker,omitempty"`
	CycleID          string    `json:"cycle_id,omitempty"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	ResponseTimeMs   int64     `json:"response_time_ms"`
	InputCostUSD     float64   `json:"input_cost_usd"`
	OutputCostUSD    float64   `json:"output_cost_usd"`
	TotalCostUSD     float64   `json:"total_cost_usd"`
}

// UsageStore persists usage records; the sqlite store implements it.
type UsageStore interface {
	SaveUsage(ctx context.Context, rec UsageRecord) error
}

// Tracker prices every chat call and writes it through to the store. When
// the store fails, records are buffered in memory and retried on the next
// write.
type Tracker struct {
	store UsageStore
	log   zerolog.Logger

	mu     sync.Mutex
	buffer []UsageRecord
}

func NewTracker(store UsageStore, log zerolog.Logger) *Tracker {
	return &Tracker{store: store, log: log}
}

// CostSplit prices the input and output sides of a call separately for
// the given wire model id.
func CostSplit(modelID string, promptTokens, completionTokens int) (input, output float64) {
	price, ok := pricing[modelID]
	if !ok {
		price = pricing["default"]
	}
	return float64(promptTokens) / 1e6 * price.Input, float64(completionTokens) / 1e6 * price.Output
}

// Cost computes the total USD price of a call for the given wire model id.
func Cost(modelID string, promptTokens, completionTokens int) float64 {
	in, out := CostSplit(modelID, promptTokens, completionTokens)
	return in + out
}

// CallInfo describes one completed chat call for accounting.
type CallInfo struct {
	ModelKey  string
	Operation string
	Ticker    string
	CycleID   string

	PromptTokens     int
	CompletionTokens int
	ResponseTime     time.Duration
}

// Record accounts one call. The registry key is resolved to the wire model
// id for pricing; unknown keys price at the default rate.
func (t *Tracker) Record(ctx context.Context, call CallInfo) UsageRecord {
	modelID := call.ModelKey
	if cfg, ok := availableModels[call.ModelKey]; ok {
		modelID = cfg.ModelID
	}
	inCost, outCost := CostSplit(modelID, call.PromptTokens, call.CompletionTokens)

	rec := UsageRecord{
		ID:               uuid.NewString(),
		Timestamp:        time.Now().UTC(),
		Model:            modelID,
		Operation:        call.Operation,
		Ticker:           call.Ticker,
		CycleID:          call.CycleID,
		PromptTokens:     call.PromptTokens,
		CompletionTokens: call.CompletionTokens,
		TotalTokens:      call.PromptTokens + call.CompletionTokens,
		ResponseTimeMs:   call.ResponseTime.Milliseconds(),
		InputCostUSD:     inCost,
		OutputCostUSD:    outCost,
		TotalCostUSD:     inCost + outCost,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.store == nil {
		t.buffer = append(t.buffer, rec)
		return rec
	}

	// Drain any earlier failures first so ordering survives.
	t.flushLocked(ctx)
	if err := t.store.SaveUsage(ctx, rec); err != nil {
		t.log.Warn().Err(err).Msg("usage write failed, buffering")
		t.buffer = append(t.buffer, rec)
	}
	return rec
}

// Buffered returns how many records are waiting for a store retry.
func (t *Tracker) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

func (t *Tracker) flushLocked(ctx context.Context) {
	if t.store == nil || len(t.buffer) == 0 {
		return
	}
	kept := t.buffer[:0]
	for _, rec := range t.buffer {
		if err := t.store.SaveUsage(ctx, rec); err != nil {
			kept = append(kept, rec)
		}
	}
	t.buffer = kept
}
