// Package llm talks to OpenAI-compatible chat APIs and tracks token spend.
package llm

import (
	"os"

	"github.com/rs/zerolog"
)

// ModelConfig describes one chat model and the API quirks it needs.
type ModelConfig struct {
	Key      string // registry key, e.g. "deepseek"
	Name     string // display name
	ModelID  string // wire model identifier
	Provider string // "openai" or "deepseek"

	APIKeyEnv string
	BaseURL   string // empty means the OpenAI default

	SupportsJSONSchema     bool // strict json_schema response format
	SupportsReasoning      bool // emits reasoning_content
	UseMaxCompletionTokens bool // newer OpenAI models reject max_tokens
}

const (
	openAIBaseURL   = "https://api.openai.com/v1"
	deepSeekBaseURL = "https://api.deepseek.com"

	// DefaultModel is used when DEFAULT_AI_MODEL is unset or invalid.
	DefaultModel = "deepseek"
)

var availableModels = map[string]ModelConfig{
	"gpt-5.1": {
		Key:                    "gpt-5.1",
		Name:                   "GPT-5.1",
		ModelID:                "gpt-5.1-2025-11-13",
		Provider:               "openai",
		APIKeyEnv:              "OPENAI_API_KEY",
		SupportsJSONSchema:     true,
		SupportsReasoning:      true,
		UseMaxCompletionTokens: true,
	},
	"gpt-4o-mini": {
		Key:                "gpt-4o-mini",
		Name:               "GPT-4o Mini",
		ModelID:            "gpt-4o-mini",
		Provider:           "openai",
		APIKeyEnv:          "OPENAI_API_KEY",
		SupportsJSONSchema: true,
	},
	"deepseek": {
		Key:       "deepseek",
		Name:      "DeepSeek V3",
		ModelID:   "deepseek-chat",
		Provider:  "deepseek",
		APIKeyEnv: "DEEPSEEK_API_KEY",
		BaseURL:   deepSeekBaseURL,
	},
	"deepseek-reasoner": {
		Key:               "deepseek-reasoner",
		Name:              "DeepSeek R1 (Reasoner)",
		ModelID:           "deepseek-reasoner",
		Provider:          "deepseek",
		APIKeyEnv:         "DEEPSEEK_API_KEY",
		BaseURL:           deepSeekBaseURL,
		SupportsReasoning: true,
	},
}

// Registry resolves model keys to configs and holds the current default.
type Registry struct {
	current string
	log     zerolog.Logger
}

// NewRegistry picks the current model from DEFAULT_AI_MODEL, falling back
// to DefaultModel when the requested one is unknown or has no API key.
func NewRegistry(log zerolog.Logger) *Registry {
	r := &Registry{current: DefaultModel, log: log}

	env := os.Getenv("DEFAULT_AI_MODEL")
	if env == "" || env == DefaultModel {
		return r
	}
	if _, ok := availableModels[env]; !ok {
		log.Warn().Str("model", env).Str("fallback", DefaultModel).Msg("unknown model in DEFAULT_AI_MODEL")
		return r
	}
	if !r.Available(env) {
		log.Warn().Str("model", env).Str("fallback", DefaultModel).Msg("model from DEFAULT_AI_MODEL has no API key")
		return r
	}
	r.current = env
	log.Info().Str("model", env).Msg("default model set from environment")
	return r
}

// Get returns the config for a key, ok=false for unknown keys.
func (r *Registry) Get(key string) (ModelConfig, bool) {
	cfg, ok := availableModels[key]
	return cfg, ok
}

// Current is the active model key.
func (r *Registry) Current() string { return r.current }

// SetCurrent switches the active model; unknown or keyless models are
// rejected.
func (r *Registry) SetCurrent(key string) bool {
	if !r.Available(key) {
		r.log.Error().Str("model", key).Msg("model not available")
		return false
	}
	r.current = key
	r.log.Info().Str("model", key).Msg("model switched")
	return true
}

// Available reports whether the model exists and its API key is set.
func (r *Registry) Available(key string) bool {
	cfg, ok := availableModels[key]
	return ok && os.Getenv(cfg.APIKeyEnv) != ""
}

// ModelInfo is the API-facing description of one registry entry.
type ModelInfo struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	ModelID            string `json:"model_id"`
	Provider           string `json:"provider"`
	Available          bool   `json:"available"`
	SupportsJSONSchema bool   `json:"supports_json_schema"`
	SupportsReasoning  bool   `json:"supports_reasoning"`
}

// List describes every registered model and whether it is usable now.
func (r *Registry) List() []ModelInfo {
	out := make([]ModelInfo, 0, len(availableModels))
	for key, cfg := range availableModels {
		out = append(out, ModelInfo{
			ID:                 key,
			Name:               cfg.Name,
			ModelID:            cfg.ModelID,
			Provider:           cfg.Provider,
			Available:          os.Getenv(cfg.APIKeyEnv) != "",
			SupportsJSONSchema: cfg.SupportsJSONSchema,
			SupportsReasoning:  cfg.SupportsReasoning,
		})
	}
	return out
}
