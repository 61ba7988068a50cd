package providers

import (
	"context"
	"fmt"
	"net/http"
)

// Bitget serves spot tickers.
type Bitget struct {
	http *http.Client
}

func (b *Bitget) Name() string { return "bitget" }

func (b *Bitget) CheckAvailability(ctx context.Context) bool {
	var out struct{}
	return getJSON(ctx, b.http, "https://api.bitget.com/api/v2/public/time", &out) == nil
}

func (b *Bitget) MarketData(ctx context.Context, symbol string) (*Ticker, error) {
	var resp struct {
		Code string `json:"code"`
		Data []struct {
			LastPr      string `json:"lastPr"`
			QuoteVolume string `json:"quoteVolume"`
			UsdtVolume  string `json:"usdtVolume"`
		} `json:"data"`
	}

	url := fmt.Sprintf("https://api.bitget.com/api/v2/spot/market/tickers?symbol=%sUSDT", symbol)
	if err := getJSON(ctx, b.http, url, &resp); err != nil {
		return nil, fmt.Errorf("bitget ticker %s: %w", symbol, err)
	}
	if resp.Code != "00000" || len(resp.Data) == 0 {
		return nil, fmt.Errorf("bitget: no data for %s", symbol)
	}

	row := resp.Data[0]
	vol := atof(row.UsdtVolume)
	if vol == 0 {
		vol = atof(row.QuoteVolume)
	}

	return &Ticker{
		Price:     atof(row.LastPr),
		Volume24h: vol,
		Source:    "bitget_spot",
	}, nil
}
