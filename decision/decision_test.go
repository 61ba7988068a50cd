package decision

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOpenJSON() string {
	return `{
		"operation": "open",
		"symbol": "btc",
		"direction": "LONG",
		"target_portion_of_balance": 0.1,
		"leverage": 3,
		"stop_loss_pct": 2.0,
		"take_profit_pct": 6.0,
		"reason": "Breakout above resistance with volume",
		"confidence": 0.75
	}`
}

func TestParsePlainJSON(t *testing.T) {
	d, err := Parse(validOpenJSON())
	require.NoError(t, err)

	assert.Equal(t, OpOpen, d.Operation)
	require.NotNil(t, d.Open)
	assert.Equal(t, "BTC", d.Open.Symbol)
	assert.Equal(t, "long", d.Open.Direction)
	assert.Equal(t, 3, d.Open.Leverage)
	assert.Equal(t, 0.75, d.Confidence)
	assert.Equal(t, "BTC", d.Symbol())
}

func TestParseMarkdownFence(t *testing.T) {
	response := "Here is my analysis.\n```json\n" + validOpenJSON() + "\n```\nGood luck."
	d, err := Parse(response)
	require.NoError(t, err)
	assert.Equal(t, OpOpen, d.Operation)
}

func TestParseDecisionTag(t *testing.T) {
	response := "<decision>" + validOpenJSON() + "</decision>"
	d, err := Parse(response)
	require.NoError(t, err)
	assert.Equal(t, "BTC", d.Open.Symbol)
}

func TestParseCurlyQuotes(t *testing.T) {
	response := `{“operation”: “hold”, “reason”: “nothing to do here”, “confidence”: 0.8}`
	d, err := Parse(response)
	require.NoError(t, err)
	assert.Equal(t, OpHold, d.Operation)
}

func TestParseNoJSONIsSafeHold(t *testing.T) {
	d, err := Parse("I think the market looks choppy today, better to wait.")
	require.NoError(t, err)
	assert.Equal(t, OpHold, d.Operation)
	assert.Zero(t, d.Confidence)
	assert.Contains(t, d.Reason, "no structured decision")
}

func TestParseClose(t *testing.T) {
	d, err := Parse(`{"operation": "close", "symbol": "eth", "reason": "thesis invalidated by breakdown", "confidence": 0.7}`)
	require.NoError(t, err)
	assert.Equal(t, OpClose, d.Operation)
	require.NotNil(t, d.Close)
	assert.Equal(t, "ETH", d.Close.Symbol)
	assert.Equal(t, "ETH", d.Symbol())
}

func TestParseRejectsUnknownOperation(t *testing.T) {
	_, err := Parse(`{"operation": "flip", "symbol": "BTC", "reason": "?", "confidence": 0.5}`)
	assert.Error(t, err)
}

func TestParseRejectsCloseWithoutSymbol(t *testing.T) {
	_, err := Parse(`{"operation": "close", "reason": "closing something somewhere", "confidence": 0.5}`)
	assert.Error(t, err)
}

func mustParse(t *testing.T, s string) *Decision {
	t.Helper()
	d, err := Parse(s)
	require.NoError(t, err)
	return d
}

func TestValidateOpenBounds(t *testing.T) {
	d := mustParse(t, validOpenJSON())
	assert.NoError(t, Validate(d))

	cases := []struct {
		name   string
		mutate func(*Decision)
	}{
		{"leverage too high", func(d *Decision) { d.Open.Leverage = 11 }},
		{"leverage zero", func(d *Decision) { d.Open.Leverage = 0 }},
		{"stop loss too tight", func(d *Decision) { d.Open.StopLossPct = 0.25 }},
		{"stop loss too wide", func(d *Decision) { d.Open.StopLossPct = 12 }},
		{"take profit too small", func(d *Decision) { d.Open.TakeProfitPct = 0.5 }},
		{"take profit too large", func(d *Decision) { d.Open.TakeProfitPct = 60 }},
		{"portion zero", func(d *Decision) { d.Open.TargetPortionOfBalance = 0 }},
		{"portion above one", func(d *Decision) { d.Open.TargetPortionOfBalance = 1.5 }},
		{"bad direction", func(d *Decision) { d.Open.Direction = "sideways" }},
		{"reason too short", func(d *Decision) { d.Reason = "go up" }},
		{"reason too long", func(d *Decision) { d.Reason = strings.Repeat("x", 501) }},
		{"confidence above one", func(d *Decision) { d.Confidence = 1.2 }},
	}
	for _, tc := range cases {
		d := mustParse(t, validOpenJSON())
		tc.mutate(d)
		assert.Error(t, Validate(d), tc.name)
	}
}

func TestValidateHoldAlwaysPasses(t *testing.T) {
	assert.NoError(t, Validate(SafeHold("nothing to do")))
}

func TestWarnings(t *testing.T) {
	d := mustParse(t, validOpenJSON())
	assert.Empty(t, Warnings(d))

	d.Open.TakeProfitPct = 1.5 // rr = 0.75
	d.Confidence = 0.2
	d.Open.TargetPortionOfBalance = 0.3 // 0.9x exposure at 3x
	w := Warnings(d)
	require.Len(t, w, 3)
	assert.Contains(t, w[0], "reward-to-risk")
	assert.Contains(t, w[1], "low confidence")
	assert.Contains(t, w[2], "exposure")

	assert.Nil(t, Warnings(SafeHold("holding")))
}

func TestBuildSystemPrompt(t *testing.T) {
	manage := BuildSystemPrompt(PhaseManage)
	assert.Contains(t, manage, `"close" or "hold" ONLY`)
	assert.Contains(t, manage, `"operation"`)

	scout := BuildSystemPrompt(PhaseScout)
	assert.Contains(t, scout, `"open" or "hold" ONLY`)
}

func TestBuildUserPrompt(t *testing.T) {
	prompt := BuildUserPrompt(PromptContext{
		Phase:      PhaseManage,
		Symbols:    []string{"BTC", "ETH"},
		BalanceUSD: 12345.67,
		Positions: []PositionView{
			{Symbol: "BTC", Direction: "long", EntryPrice: 50000, Size: 0.1, Leverage: 3, MarkPrice: 51000, UnrealizedPnL: 100},
		},
		Market:     "=== BTC ===\nPrice: 51000",
		RiskStatus: "daily_pnl: 0.00",
	})

	assert.Contains(t, prompt, "Held symbols (your scope): BTC, ETH")
	assert.Contains(t, prompt, "$12345.67")
	assert.Contains(t, prompt, "BTC long")
	assert.Contains(t, prompt, "== MARKET CONTEXT ==")
	assert.Contains(t, prompt, "daily_pnl")
}
