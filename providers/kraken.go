package providers

import (
	"context"
	"fmt"
	"net/http"
)

// Kraken serves spot tickers; no derivatives fields.
type Kraken struct {
	http *http.Client
}

func (k *Kraken) Name() string { return "kraken" }

func (k *Kraken) CheckAvailability(ctx context.Context) bool {
	var out struct{}
	return getJSON(ctx, k.http, "https://api.kraken.com/0/public/Time", &out) == nil
}

func (k *Kraken) MarketData(ctx context.Context, symbol string) (*Ticker, error) {
	var resp struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			C []string `json:"c"` // last trade [price, lot volume]
			V []string `json:"v"` // volume [today, 24h]
		} `json:"result"`
	}

	url := fmt.Sprintf("https://api.kraken.com/0/public/Ticker?pair=%sUSD", symbol)
	if err := getJSON(ctx, k.http, url, &resp); err != nil {
		return nil, fmt.Errorf("kraken ticker %s: %w", symbol, err)
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("kraken: %v", resp.Error)
	}

	// Result key is venue-internal (e.g. XXBTZUSD); take the first entry.
	for _, row := range resp.Result {
		if len(row.C) == 0 || len(row.V) < 2 {
			break
		}
		price := atof(row.C[0])
		return &Ticker{
			Price:     price,
			Volume24h: atof(row.V[1]) * price, // base volume to USD notional
			Source:    "kraken_spot",
		}, nil
	}
	return nil, fmt.Errorf("kraken: no data for %s", symbol)
}
