package providers

import (
	"context"
	"fmt"
	"net/http"
)

// Bybit serves linear perpetual tickers including funding and OI.
type Bybit struct {
	http *http.Client
}

func (b *Bybit) Name() string { return "bybit" }

func (b *Bybit) CheckAvailability(ctx context.Context) bool {
	var out struct{}
	return getJSON(ctx, b.http, "https://api.bybit.com/v5/market/time", &out) == nil
}

func (b *Bybit) MarketData(ctx context.Context, symbol string) (*Ticker, error) {
	var resp struct {
		RetCode int `json:"retCode"`
		Result  struct {
			List []struct {
				LastPrice    string `json:"lastPrice"`
				Turnover24h  string `json:"turnover24h"`
				FundingRate  string `json:"fundingRate"`
				OpenInterest string `json:"openInterest"`
			} `json:"list"`
		} `json:"result"`
	}

	url := fmt.Sprintf("https://api.bybit.com/v5/market/tickers?category=linear&symbol=%sUSDT", symbol)
	if err := getJSON(ctx, b.http, url, &resp); err != nil {
		return nil, fmt.Errorf("bybit ticker %s: %w", symbol, err)
	}
	if resp.RetCode != 0 || len(resp.Result.List) == 0 {
		return nil, fmt.Errorf("bybit: no data for %s", symbol)
	}

	row := resp.Result.List[0]
	return &Ticker{
		Price:        atof(row.LastPrice),
		Volume24h:    atof(row.Turnover24h),
		FundingRate:  ptr(atof(row.FundingRate)),
		OpenInterest: ptr(atof(row.OpenInterest)),
		Source:       "bybit_linear",
	}, nil
}
