package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefault(t *testing.T) {
	t.Setenv("DEFAULT_AI_MODEL", "")
	r := NewRegistry(zerolog.Nop())
	assert.Equal(t, "deepseek", r.Current())
}

func TestRegistryRejectsUnknownEnvModel(t *testing.T) {
	t.Setenv("DEFAULT_AI_MODEL", "no-such-model")
	r := NewRegistry(zerolog.Nop())
	assert.Equal(t, DefaultModel, r.Current())
}

func TestRegistryEnvModelNeedsKey(t *testing.T) {
	t.Setenv("DEFAULT_AI_MODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_API_KEY", "")
	r := NewRegistry(zerolog.Nop())
	assert.Equal(t, DefaultModel, r.Current())

	t.Setenv("OPENAI_API_KEY", "sk-test")
	r = NewRegistry(zerolog.Nop())
	assert.Equal(t, "gpt-4o-mini", r.Current())
}

func TestRegistrySetCurrent(t *testing.T) {
	t.Setenv("DEFAULT_AI_MODEL", "")
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	r := NewRegistry(zerolog.Nop())

	assert.True(t, r.SetCurrent("deepseek-reasoner"))
	assert.Equal(t, "deepseek-reasoner", r.Current())
	assert.False(t, r.SetCurrent("nope"))
	assert.Equal(t, "deepseek-reasoner", r.Current())
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	list := r.List()
	require.Len(t, list, 4)

	byID := map[string]ModelInfo{}
	for _, m := range list {
		byID[m.ID] = m
	}
	assert.True(t, byID["gpt-5.1"].SupportsReasoning)
	assert.True(t, byID["gpt-5.1"].SupportsJSONSchema)
	assert.False(t, byID["deepseek"].SupportsJSONSchema)
	assert.Equal(t, "deepseek-reasoner", byID["deepseek-reasoner"].ModelID)
}

func TestCost(t *testing.T) {
	// 1M prompt + 1M completion at deepseek-chat rates.
	assert.InDelta(t, 0.14+0.28, Cost("deepseek-chat", 1_000_000, 1_000_000), 1e-9)
	// Unknown models price at the default rate.
	assert.InDelta(t, 1.00+2.00, Cost("mystery-model", 1_000_000, 1_000_000), 1e-9)
	assert.InDelta(t, 2.50*0.5, Cost("gpt-4o", 500_000, 0), 1e-9)
}

type fakeUsageStore struct {
	saved []UsageRecord
	fail  bool
}

func (f *fakeUsageStore) SaveUsage(_ context.Context, rec UsageRecord) error {
	if f.fail {
		return errors.New("db locked")
	}
	f.saved = append(f.saved, rec)
	return nil
}

func TestTrackerRecord(t *testing.T) {
	store := &fakeUsageStore{}
	tr := NewTracker(store, zerolog.Nop())

	rec := tr.Record(context.Background(), CallInfo{
		ModelKey: "deepseek", Operation: "scout",
		Ticker: "BTC,ETH", CycleID: "scout_20260824_120000",
		PromptTokens: 1000, CompletionTokens: 500,
		ResponseTime: 1500 * time.Millisecond,
	})
	assert.Equal(t, "deepseek-chat", rec.Model)
	assert.Equal(t, 1500, rec.TotalTokens)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "BTC,ETH", rec.Ticker)
	assert.Equal(t, "scout_20260824_120000", rec.CycleID)
	assert.Equal(t, int64(1500), rec.ResponseTimeMs)
	assert.InDelta(t, 1000.0/1e6*0.14, rec.InputCostUSD, 1e-12)
	assert.InDelta(t, 500.0/1e6*0.28, rec.OutputCostUSD, 1e-12)
	assert.InDelta(t, rec.InputCostUSD+rec.OutputCostUSD, rec.TotalCostUSD, 1e-12)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "scout", store.saved[0].Operation)
	assert.Zero(t, tr.Buffered())
}

func TestTrackerBuffersOnStoreFailure(t *testing.T) {
	store := &fakeUsageStore{fail: true}
	tr := NewTracker(store, zerolog.Nop())

	call := CallInfo{ModelKey: "deepseek", Operation: "manage", PromptTokens: 10, CompletionTokens: 10}
	tr.Record(context.Background(), call)
	tr.Record(context.Background(), call)
	assert.Equal(t, 2, tr.Buffered())
	assert.Empty(t, store.saved)

	// Store recovers: the next record drains the buffer first.
	store.fail = false
	tr.Record(context.Background(), call)
	assert.Zero(t, tr.Buffered())
	assert.Len(t, store.saved, 3)
}
