package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string          `json:"model"`
	Messages            []Message       `json:"messages"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	Temperature         float64         `json:"temperature,omitempty"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema interface{} `json:"json_schema,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role             string `json:"role"`
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error,omitempty"`
}

// ChatResult is the content plus usage for one completed request.
type ChatResult struct {
	Content          string
	Reasoning        string
	PromptTokens     int
	CompletionTokens int
}

// ChatOptions tune a single request.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
	JSONSchema  interface{} // strict schema, used only when the model supports it
	ForceJSON   bool        // request a JSON object response

	// Accounting labels written through to the usage tracker.
	Ticker  string
	CycleID string
}

// Client sends chat completions to whichever OpenAI-compatible backend the
// model config points at.
type Client struct {
	registry   *Registry
	tracker    *Tracker
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(registry *Registry, tracker *Tracker, log zerolog.Logger) *Client {
	return &Client{
		registry: registry,
		tracker:  tracker,
		// Reasoning models can take minutes.
		httpClient: &http.Client{Timeout: 180 * time.Second},
		log:        log,
	}
}

// Chat calls the given model with up to three attempts on transient errors
// (2s, 4s, 8s backoff). Usage is recorded against operation.
func (c *Client) Chat(ctx context.Context, modelKey, operation string, messages []Message, opts ChatOptions) (*ChatResult, error) {
	cfg, ok := c.registry.Get(modelKey)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", modelKey)
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("no API key for model %s (%s)", modelKey, cfg.APIKeyEnv)
	}

	const maxRetries = 3
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, err := c.doChat(ctx, cfg, apiKey, operation, messages, opts, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return nil, err
		}
		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			c.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).
				Str("model", modelKey).Msg("chat retry")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doChat(ctx context.Context, cfg ModelConfig, apiKey, operation string, messages []Message, opts ChatOptions, attempt int) (*ChatResult, error) {
	start := time.Now()

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	req := chatRequest{
		Model:       cfg.ModelID,
		Messages:    messages,
		Temperature: opts.Temperature,
	}
	if cfg.UseMaxCompletionTokens {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}
	if opts.JSONSchema != nil && cfg.SupportsJSONSchema {
		req.ResponseFormat = &responseFormat{Type: "json_schema", JSONSchema: opts.JSONSchema}
	} else if opts.ForceJSON || opts.JSONSchema != nil {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	c.log.Debug().Str("model", cfg.ModelID).Int("attempt", attempt).
		Int("prompt_bytes", len(body)).Msg("sending chat request")

	resp, err := c.httpClient.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("chat request failed after %v: %w", elapsed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat API status %d: %.300s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("unmarshal chat response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("chat API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	c.log.Debug().Dur("elapsed", elapsed).Str("model", cfg.ModelID).
		Int("total_tokens", chatResp.Usage.TotalTokens).Msg("chat response received")

	if c.tracker != nil {
		c.tracker.Record(ctx, CallInfo{
			ModelKey:         cfg.Key,
			Operation:        operation,
			Ticker:           opts.Ticker,
			CycleID:          opts.CycleID,
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			ResponseTime:     elapsed,
		})
	}

	return &ChatResult{
		Content:          chatResp.Choices[0].Message.Content,
		Reasoning:        chatResp.Choices[0].Message.ReasoningContent,
		PromptTokens:     chatResp.Usage.PromptTokens,
		CompletionTokens: chatResp.Usage.CompletionTokens,
	}, nil
}

// isRetryableError reports whether the failure is transient.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout",
		"deadline exceeded",
		"connection reset",
		"connection refused",
		"temporary failure",
		"no such host",
		"eof",
		"stream error",
		"status 429",
		"status 502",
		"status 503",
		"status 504",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
