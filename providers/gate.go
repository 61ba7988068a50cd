package providers

import (
	"context"
	"fmt"
	"net/http"
)

// Gate serves spot tickers.
type Gate struct {
	http *http.Client
}

func (g *Gate) Name() string { return "gate" }

func (g *Gate) CheckAvailability(ctx context.Context) bool {
	var out interface{}
	return getJSON(ctx, g.http, "https://api.gateio.ws/api/v4/spot/time", &out) == nil
}

func (g *Gate) MarketData(ctx context.Context, symbol string) (*Ticker, error) {
	var resp []struct {
		Last        string `json:"last"`
		QuoteVolume string `json:"quote_volume"`
	}

	url := fmt.Sprintf("https://api.gateio.ws/api/v4/spot/tickers?currency_pair=%s_USDT", symbol)
	if err := getJSON(ctx, g.http, url, &resp); err != nil {
		return nil, fmt.Errorf("gate ticker %s: %w", symbol, err)
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("gate: no data for %s", symbol)
	}

	return &Ticker{
		Price:     atof(resp[0].Last),
		Volume24h: atof(resp[0].QuoteVolume),
		Source:    "gate_spot",
	}, nil
}
