package providers

import (
	"context"
	"fmt"
	"net/http"
)

// CryptoCom serves spot tickers.
type CryptoCom struct {
	http *http.Client
}

func (c *CryptoCom) Name() string { return "cryptocom" }

func (c *CryptoCom) CheckAvailability(ctx context.Context) bool {
	var out struct{}
	return getJSON(ctx, c.http, "https://api.crypto.com/exchange/v1/public/get-instruments", &out) == nil
}

func (c *CryptoCom) MarketData(ctx context.Context, symbol string) (*Ticker, error) {
	var resp struct {
		Code   int `json:"code"`
		Result struct {
			Data []struct {
				A  string `json:"a"`  // last trade price
				Vv string `json:"vv"` // 24h volume value (USD)
			} `json:"data"`
		} `json:"result"`
	}

	url := fmt.Sprintf("https://api.crypto.com/exchange/v1/public/get-tickers?instrument_name=%s_USDT", symbol)
	if err := getJSON(ctx, c.http, url, &resp); err != nil {
		return nil, fmt.Errorf("cryptocom ticker %s: %w", symbol, err)
	}
	if resp.Code != 0 || len(resp.Result.Data) == 0 {
		return nil, fmt.Errorf("cryptocom: no data for %s", symbol)
	}

	row := resp.Result.Data[0]
	return &Ticker{
		Price:     atof(row.A),
		Volume24h: atof(row.Vv),
		Source:    "cryptocom_spot",
	}, nil
}
