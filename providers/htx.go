package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// HTX (ex-Huobi) serves spot merged tickers.
type HTX struct {
	http *http.Client
}

func (h *HTX) Name() string { return "htx" }

func (h *HTX) CheckAvailability(ctx context.Context) bool {
	var out struct{}
	return getJSON(ctx, h.http, "https://api.huobi.pro/v1/common/timestamp", &out) == nil
}

func (h *HTX) MarketData(ctx context.Context, symbol string) (*Ticker, error) {
	var resp struct {
		Status string `json:"status"`
		Tick   struct {
			Close float64 `json:"close"`
			Vol   float64 `json:"vol"` // 24h quote volume
		} `json:"tick"`
	}

	url := fmt.Sprintf("https://api.huobi.pro/market/detail/merged?symbol=%susdt", strings.ToLower(symbol))
	if err := getJSON(ctx, h.http, url, &resp); err != nil {
		return nil, fmt.Errorf("htx ticker %s: %w", symbol, err)
	}
	if resp.Status != "ok" || resp.Tick.Close == 0 {
		return nil, fmt.Errorf("htx: no data for %s", symbol)
	}

	return &Ticker{
		Price:     resp.Tick.Close,
		Volume24h: resp.Tick.Vol,
		Source:    "htx_spot",
	}, nil
}
