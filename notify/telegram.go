// Package notify pushes trade and system alerts to Telegram. An
// unconfigured notifier silently drops everything.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Telegram sends HTML messages through the bot API.
type Telegram struct {
	token      string
	chatID     string
	httpClient *http.Client
	baseURL    string
	log        zerolog.Logger
}

func NewTelegram(token, chatID string, log zerolog.Logger) *Telegram {
	t := &Telegram{
		token:      token,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://api.telegram.org",
		log:        log,
	}
	if !t.Enabled() {
		log.Warn().Msg("telegram notifier not configured, alerts disabled")
	}
	return t
}

func (t *Telegram) Enabled() bool {
	return t.token != "" && t.chatID != ""
}

// Send delivers one HTML message. Failures are logged, never propagated;
// notifications must not affect trading.
func (t *Telegram) Send(message string) {
	if !t.Enabled() {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "HTML",
	})
	if err != nil {
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	resp, err := t.httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.log.Warn().Err(err).Msg("telegram send failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.log.Warn().Int("status", resp.StatusCode).Msg("telegram send rejected")
	}
}

func (t *Telegram) TradeOpened(symbol, direction string, sizeUSD float64, leverage int, entry, stopLoss, takeProfit float64) {
	t.Send(fmt.Sprintf(`<b>TRADE OPENED</b>

<b>Asset:</b> %s
<b>Direction:</b> %s
<b>Size:</b> $%.2f
<b>Leverage:</b> %dx
<b>Entry:</b> $%.2f
<b>Stop Loss:</b> $%.2f
<b>Take Profit:</b> $%.2f`,
		symbol, strings.ToUpper(direction), sizeUSD, leverage, entry, stopLoss, takeProfit))
}

func (t *Telegram) TradeClosed(symbol, direction string, pnl, pnlPct float64, reason string) {
	t.Send(fmt.Sprintf(`<b>TRADE CLOSED</b>

<b>Asset:</b> %s
<b>Direction:</b> %s
<b>P&amp;L:</b> $%+.2f (%+.2f%%)
<b>Reason:</b> %s`,
		symbol, strings.ToUpper(direction), pnl, pnlPct, reason))
}

func (t *Telegram) CircuitBreaker(dailyLoss float64, reason string) {
	t.Send(fmt.Sprintf(`<b>CIRCUIT BREAKER ACTIVE</b>

<b>Daily loss:</b> $%.2f
<b>Reason:</b> %s

No new positions will be opened until the next UTC day.`,
		abs(dailyLoss), reason))
}

func (t *Telegram) CriticalError(errType, errMsg string) {
	if len(errMsg) > 200 {
		errMsg = errMsg[:200]
	}
	t.Send(fmt.Sprintf(`<b>ERROR</b>

<b>Type:</b> %s
<b>Message:</b> %s`, errType, errMsg))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
