// Package decision turns market context into validated trading decisions
// through an LLM, with model fallback and a safe hold default.
package decision

import "time"

// Operation is the decision variant tag.
type Operation string

const (
	OpHold  Operation = "hold"
	OpOpen  Operation = "open"
	OpClose Operation = "close"
)

// OpenParams carries the parameters of an open decision.
type OpenParams struct {
	Symbol                 string  `json:"symbol"`
	Direction              string  `json:"direction"` // "long" or "short"
	TargetPortionOfBalance float64 `json:"target_portion_of_balance"`
	Leverage               int     `json:"leverage"`
	StopLossPct            float64 `json:"stop_loss_pct"`
	TakeProfitPct          float64 `json:"take_profit_pct"`
}

// CloseParams names the position to flatten.
type CloseParams struct {
	Symbol string `json:"symbol"`
}

// Decision is a tagged variant: exactly one of Open/Close is set for the
// matching operation, both nil for hold.
type Decision struct {
	Operation  Operation    `json:"operation"`
	Open       *OpenParams  `json:"open,omitempty"`
	Close      *CloseParams `json:"close,omitempty"`
	Reason     string       `json:"reason"`
	Confidence float64      `json:"confidence"`
}

// Symbol returns the decision's target symbol, "" for hold.
func (d *Decision) Symbol() string {
	switch d.Operation {
	case OpOpen:
		if d.Open != nil {
			return d.Open.Symbol
		}
	case OpClose:
		if d.Close != nil {
			return d.Close.Symbol
		}
	}
	return ""
}

// SafeHold is the fallback decision when every model attempt failed.
func SafeHold(reason string) *Decision {
	return &Decision{Operation: OpHold, Reason: reason, Confidence: 0}
}

// Result is one completed decision call, including everything the
// operation log wants.
type Result struct {
	Decision     *Decision `json:"decision"`
	Warnings     []string  `json:"warnings,omitempty"`
	Model        string    `json:"model"`
	RawResponse  string    `json:"raw_response"`
	Reasoning    string    `json:"reasoning,omitempty"`
	SystemPrompt string    `json:"system_prompt"`
	UserPrompt   string    `json:"user_prompt"`
	Timestamp    time.Time `json:"timestamp"`
	DurationMs   int64     `json:"duration_ms"`
	Fallback     bool      `json:"fallback"` // true when SafeHold was returned
}

// wireDecision is the flat JSON shape the model emits.
type wireDecision struct {
	Operation              string  `json:"operation"`
	Symbol                 string  `json:"symbol"`
	Direction              string  `json:"direction"`
	TargetPortionOfBalance float64 `json:"target_portion_of_balance"`
	Leverage               int     `json:"leverage"`
	StopLossPct            float64 `json:"stop_loss_pct"`
	TakeProfitPct          float64 `json:"take_profit_pct"`
	Reason                 string  `json:"reason"`
	Confidence             float64 `json:"confidence"`
}

// Schema is the strict JSON schema sent to schema-capable providers.
var Schema = map[string]interface{}{
	"name":   "trading_decision",
	"strict": true,
	"schema": map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"required": []string{
			"operation", "symbol", "direction", "target_portion_of_balance",
			"leverage", "stop_loss_pct", "take_profit_pct", "reason", "confidence",
		},
		"properties": map[string]interface{}{
			"operation":                 map[string]interface{}{"type": "string", "enum": []string{"open", "close", "hold"}},
			"symbol":                    map[string]interface{}{"type": "string"},
			"direction":                 map[string]interface{}{"type": "string", "enum": []string{"long", "short", ""}},
			"target_portion_of_balance": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
			"leverage":                  map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 10},
			"stop_loss_pct":             map[string]interface{}{"type": "number", "minimum": 0, "maximum": 10},
			"take_profit_pct":           map[string]interface{}{"type": "number", "minimum": 0, "maximum": 50},
			"reason":                    map[string]interface{}{"type": "string"},
			"confidence":                map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
		},
	},
}
