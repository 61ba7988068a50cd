package feeds

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// WhaleAlert is one parsed large-transfer alert.
type WhaleAlert struct {
	Amount      string  `json:"amount"`      // "39,995 #ETH"
	USDValue    string  `json:"usd_value"`   // "$119,668,458"
	Description string  `json:"description"` // "transferred from #okex to unknown wallet"
	Link        string  `json:"link"`
	USDNumeric  float64 `json:"usd_numeric"`
}

var relevantAssets = []string{"BTC", "ETH", "SOL", "USDT", "USDC"}

var knownExchanges = []string{
	"binance", "okex", "okx", "coinbase", "kraken", "bitfinex",
	"huobi", "kucoin", "bybit", "gate.io", "bitmex",
	"gemini", "crypto.com", "bitstamp",
}

type whaleResponse struct {
	Alerts []string `json:"alerts"`
}

// fetchWhaleAlerts pulls the public alert feed. Alerts arrive as CSV lines
// (timestamp,emoji,amount,usd,description,link); the five largest relevant
// ones are kept.
func (f *Fetcher) fetchWhaleAlerts(ctx context.Context) (string, []WhaleAlert, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.whaleURL, nil)
	if err != nil {
		return "", nil, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("whale alert status %d", resp.StatusCode)
	}

	var body whaleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", nil, err
	}

	alerts := parseWhaleAlerts(body.Alerts)
	if len(alerts) == 0 {
		return "No relevant whale alerts in recent hours.", nil, nil
	}

	var sb strings.Builder
	sb.WriteString("Large transfers:\n")
	for _, a := range alerts {
		fmt.Fprintf(&sb, "- %s (%s) %s\n", a.Amount, a.USDValue, a.Description)
	}
	return strings.TrimRight(sb.String(), "\n"), alerts, nil
}

func parseWhaleAlerts(raw []string) []WhaleAlert {
	var out []WhaleAlert
	for _, line := range raw {
		r := csv.NewReader(strings.NewReader(line))
		parts, err := r.Read()
		if err != nil || len(parts) < 6 {
			continue
		}

		amount := strings.Trim(strings.TrimSpace(parts[2]), `"`)
		usdValue := strings.Trim(strings.TrimSpace(parts[3]), `"`)
		description := strings.Trim(strings.TrimSpace(parts[4]), `"`)
		link := strings.TrimSpace(parts[5])

		if !isRelevantAlert(amount, description) {
			continue
		}
		if usdValue != "" && !strings.HasPrefix(usdValue, "$") {
			usdValue = "$" + strings.TrimSpace(strings.ReplaceAll(usdValue, "USD", ""))
		}

		out = append(out, WhaleAlert{
			Amount:      amount,
			USDValue:    usdValue,
			Description: description,
			Link:        link,
			USDNumeric:  parseUSD(usdValue),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].USDNumeric > out[j].USDNumeric })
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

func isRelevantAlert(amount, description string) bool {
	amountUpper := strings.ToUpper(amount)
	descUpper := strings.ToUpper(description)
	descLower := strings.ToLower(description)

	for _, asset := range relevantAssets {
		if strings.Contains(amountUpper, asset) || strings.Contains(descUpper, asset) {
			return true
		}
	}
	for _, ex := range knownExchanges {
		if strings.Contains(descLower, ex) {
			return true
		}
	}
	return false
}

func parseUSD(s string) float64 {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
