package providers

import (
	"context"
	"fmt"
	"net/http"
)

// BingX serves perpetual swap tickers.
type BingX struct {
	http *http.Client
}

func (b *BingX) Name() string { return "bingx" }

func (b *BingX) CheckAvailability(ctx context.Context) bool {
	var out struct{}
	return getJSON(ctx, b.http, "https://open-api.bingx.com/openApi/swap/v2/server/time", &out) == nil
}

func (b *BingX) MarketData(ctx context.Context, symbol string) (*Ticker, error) {
	var resp struct {
		Code int `json:"code"`
		Data struct {
			LastPrice string `json:"lastPrice"`
			Volume    string `json:"volume"`
		} `json:"data"`
	}

	url := fmt.Sprintf("https://open-api.bingx.com/openApi/swap/v2/quote/ticker?symbol=%s-USDT", symbol)
	if err := getJSON(ctx, b.http, url, &resp); err != nil {
		return nil, fmt.Errorf("bingx ticker %s: %w", symbol, err)
	}
	if resp.Code != 0 || resp.Data.LastPrice == "" {
		return nil, fmt.Errorf("bingx: no data for %s", symbol)
	}

	price := atof(resp.Data.LastPrice)
	return &Ticker{
		Price:     price,
		Volume24h: atof(resp.Data.Volume) * price, // base volume to USD notional
		Source:    "bingx_swap",
	}, nil
}
