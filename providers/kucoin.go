package providers

import (
	"context"
	"fmt"
	"net/http"
)

// KuCoin serves spot market stats.
type KuCoin struct {
	http *http.Client
}

func (k *KuCoin) Name() string { return "kucoin" }

func (k *KuCoin) CheckAvailability(ctx context.Context) bool {
	var out struct{}
	return getJSON(ctx, k.http, "https://api.kucoin.com/api/v1/timestamp", &out) == nil
}

func (k *KuCoin) MarketData(ctx context.Context, symbol string) (*Ticker, error) {
	var resp struct {
		Code string `json:"code"`
		Data struct {
			Last     string `json:"last"`
			VolValue string `json:"volValue"` // 24h quote volume
		} `json:"data"`
	}

	url := fmt.Sprintf("https://api.kucoin.com/api/v1/market/stats?symbol=%s-USDT", symbol)
	if err := getJSON(ctx, k.http, url, &resp); err != nil {
		return nil, fmt.Errorf("kucoin ticker %s: %w", symbol, err)
	}
	if resp.Code != "200000" || resp.Data.Last == "" {
		return nil, fmt.Errorf("kucoin: no data for %s", symbol)
	}

	return &Ticker{
		Price:     atof(resp.Data.Last),
		Volume24h: atof(resp.Data.VolValue),
		Source:    "kucoin_spot",
	}, nil
}
