package providers

import (
	"context"
	"fmt"
	"net/http"
)

// MEXC serves spot 24h tickers.
type MEXC struct {
	http *http.Client
}

func (m *MEXC) Name() string { return "mexc" }

func (m *MEXC) CheckAvailability(ctx context.Context) bool {
	var out struct{}
	return getJSON(ctx, m.http, "https://api.mexc.com/api/v3/ping", &out) == nil
}

func (m *MEXC) MarketData(ctx context.Context, symbol string) (*Ticker, error) {
	var resp struct {
		LastPrice   string `json:"lastPrice"`
		QuoteVolume string `json:"quoteVolume"`
	}

	url := fmt.Sprintf("https://api.mexc.com/api/v3/ticker/24hr?symbol=%sUSDT", symbol)
	if err := getJSON(ctx, m.http, url, &resp); err != nil {
		return nil, fmt.Errorf("mexc ticker %s: %w", symbol, err)
	}
	if resp.LastPrice == "" {
		return nil, fmt.Errorf("mexc: no data for %s", symbol)
	}

	return &Ticker{
		Price:     atof(resp.LastPrice),
		Volume24h: atof(resp.QuoteVolume),
		Source:    "mexc_spot",
	}, nil
}
