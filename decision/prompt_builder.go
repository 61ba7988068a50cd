package decision

import (
	"fmt"
	"strings"
	"time"
)

// Phase selects the system instruction: manage supervises held positions,
// scout hunts for new entries.
type Phase string

const (
	PhaseManage Phase = "manage"
	PhaseScout  Phase = "scout"
)

// PositionView is one held position as shown to the model.
type PositionView struct {
	Symbol        string
	Direction     string
	EntryPrice    float64
	Size          float64
	Leverage      int
	MarkPrice     float64
	UnrealizedPnL float64
}

// PromptContext is everything one decision call sees.
type PromptContext struct {
	Phase      Phase
	CycleID    string   // accounting label for usage records
	Symbols    []string // the symbols this phase may act on
	BalanceUSD float64
	Positions  []PositionView
	Market     string // formatted indicator + feed block
	RiskStatus string // formatted risk manager snapshot
}

const schemaInstruction = `Respond with ONLY one JSON object, no prose outside it:

{
  "operation": "open" | "close" | "hold",
  "symbol": "<SYMBOL or empty for hold>",
  "direction": "long" | "short" | "",
  "target_portion_of_balance": 0.0-1.0,
  "leverage": 1-10,
  "stop_loss_pct": 0.5-10,
  "take_profit_pct": 1-50,
  "reason": "10-500 chars explaining the decision",
  "confidence": 0.0-1.0
}

For "close" and "hold", set direction to "" and the numeric fields to 0.`

const manageInstruction = `You are managing OPEN cryptocurrency perpetual positions.

Allowed operations: "close" or "hold" ONLY. Never "open".
- CLOSE when the trade thesis is invalidated, momentum has reversed
  against the position, or significant profit is at risk.
- HOLD when the position is behaving as planned.
Only act on the held symbols listed in the data.`

const scoutInstruction = `You are scouting for NEW cryptocurrency perpetual entries.

Allowed operations: "open" or "hold" ONLY. Never "close"; held positions
are managed elsewhere and must be ignored.
- OPEN only on a clear setup: trend, momentum and levels agree.
- Keep stop_loss_pct tight relative to take_profit_pct (aim for 2:1 or
  better reward-to-risk).
- If nothing qualifies, HOLD with confidence in your patience.
Only pick symbols from the scout list in the data.`

// BuildSystemPrompt returns the phase instruction plus the response
// schema.
func BuildSystemPrompt(phase Phase) string {
	instruction := scoutInstruction
	if phase == PhaseManage {
		instruction = manageInstruction
	}
	return instruction + "\n\n" + schemaInstruction
}

// BuildUserPrompt renders the portfolio, risk state and market context as
// one text block.
func BuildUserPrompt(pc PromptContext) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Account balance: $%.2f\n", pc.BalanceUSD)

	if pc.Phase == PhaseManage {
		fmt.Fprintf(&sb, "Held symbols (your scope): %s\n", strings.Join(pc.Symbols, ", "))
	} else {
		fmt.Fprintf(&sb, "Scout symbols (your scope): %s\n", strings.Join(pc.Symbols, ", "))
	}

	sb.WriteString("\n== PORTFOLIO ==\n")
	if len(pc.Positions) == 0 {
		sb.WriteString("No open positions.\n")
	}
	for _, p := range pc.Positions {
		fmt.Fprintf(&sb, "%s %s: entry=%.6g size=%.6g lev=%dx mark=%.6g uPnL=$%.2f\n",
			p.Symbol, p.Direction, p.EntryPrice, p.Size, p.Leverage, p.MarkPrice, p.UnrealizedPnL)
	}

	sb.WriteString("\n== RISK STATUS ==\n")
	sb.WriteString(strings.TrimSpace(pc.RiskStatus))
	sb.WriteString("\n\n== MARKET CONTEXT ==\n")
	sb.WriteString(strings.TrimSpace(pc.Market))
	sb.WriteString("\n\nDecide now.")

	return sb.String()
}
