package decision

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hyper-agent/llm"
)

// Engine calls the model chain and returns a validated decision. Any
// total failure degrades to a safe hold, never an error the cycle would
// have to handle.
type Engine struct {
	client   *llm.Client
	registry *llm.Registry
	log      zerolog.Logger
}

func NewEngine(client *llm.Client, registry *llm.Registry, log zerolog.Logger) *Engine {
	return &Engine{client: client, registry: registry, log: log}
}

// Decide runs one phase: build prompts, walk the model fallback chain,
// parse and validate. The first model is always the configured default;
// later attempts move to the next available model.
func (e *Engine) Decide(ctx context.Context, pc PromptContext) *Result {
	systemPrompt := BuildSystemPrompt(pc.Phase)
	userPrompt := BuildUserPrompt(pc)
	start := time.Now()

	result := &Result{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Timestamp:    start.UTC(),
	}

	var lastErr error
	for _, modelKey := range e.modelChain() {
		d, raw, reasoning, err := e.tryModel(ctx, modelKey, pc, systemPrompt, userPrompt)
		if err != nil {
			lastErr = err
			e.log.Warn().Err(err).Str("model", modelKey).Msg("decision attempt failed, trying next model")
			continue
		}
		result.Decision = d
		result.Warnings = Warnings(d)
		result.Model = modelKey
		result.RawResponse = raw
		result.Reasoning = reasoning
		result.DurationMs = time.Since(start).Milliseconds()
		for _, w := range result.Warnings {
			e.log.Warn().Str("model", modelKey).Str("warning", w).Msg("decision warning")
		}
		return result
	}

	reason := "fallback: no model produced a valid decision"
	if lastErr != nil {
		reason = fmt.Sprintf("fallback after model errors: %v", lastErr)
	}
	e.log.Error().Err(lastErr).Msg("all decision models failed, holding")

	result.Decision = SafeHold(reason)
	result.Fallback = true
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

func (e *Engine) tryModel(ctx context.Context, modelKey string, pc PromptContext, systemPrompt, userPrompt string) (*Decision, string, string, error) {
	cfg, _ := e.registry.Get(modelKey)

	opts := llm.ChatOptions{
		Temperature: 0.3,
		ForceJSON:   true,
		Ticker:      strings.Join(pc.Symbols, ","),
		CycleID:     pc.CycleID,
	}
	if cfg.SupportsJSONSchema {
		opts.JSONSchema = Schema
	}

	res, err := e.client.Chat(ctx, modelKey, string(pc.Phase), []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, opts)
	if err != nil {
		return nil, "", "", err
	}

	d, err := Parse(res.Content)
	if err != nil {
		return nil, res.Content, res.Reasoning, err
	}
	if err := Validate(d); err != nil {
		return nil, res.Content, res.Reasoning, fmt.Errorf("decision rejected: %w", err)
	}
	return d, res.Content, res.Reasoning, nil
}

// modelChain is the configured default followed by every other available
// model in stable order.
func (e *Engine) modelChain() []string {
	current := e.registry.Current()
	chain := []string{current}

	var rest []string
	for _, info := range e.registry.List() {
		if info.ID != current && info.Available {
			rest = append(rest, info.ID)
		}
	}
	sort.Strings(rest)
	return append(chain, rest...)
}
