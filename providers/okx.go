package providers

import (
	"context"
	"fmt"
	"net/http"
)

// OKX serves perpetual swap tickers.
type OKX struct {
	http *http.Client
}

func (o *OKX) Name() string { return "okx" }

func (o *OKX) CheckAvailability(ctx context.Context) bool {
	var out struct{}
	return getJSON(ctx, o.http, "https://www.okx.com/api/v5/public/time", &out) == nil
}

func (o *OKX) MarketData(ctx context.Context, symbol string) (*Ticker, error) {
	var resp struct {
		Code string `json:"code"`
		Data []struct {
			Last      string `json:"last"`
			VolCcy24h string `json:"volCcy24h"`
		} `json:"data"`
	}

	url := fmt.Sprintf("https://www.okx.com/api/v5/market/ticker?instId=%s-USDT-SWAP", symbol)
	if err := getJSON(ctx, o.http, url, &resp); err != nil {
		return nil, fmt.Errorf("okx ticker %s: %w", symbol, err)
	}
	if resp.Code != "0" || len(resp.Data) == 0 {
		return nil, fmt.Errorf("okx: no data for %s", symbol)
	}

	row := resp.Data[0]
	t := &Ticker{
		Price:     atof(row.Last),
		Volume24h: atof(row.VolCcy24h),
		Source:    "okx_swap",
	}

	var funding struct {
		Data []struct {
			FundingRate string `json:"fundingRate"`
		} `json:"data"`
	}
	url = fmt.Sprintf("https://www.okx.com/api/v5/public/funding-rate?instId=%s-USDT-SWAP", symbol)
	if err := getJSON(ctx, o.http, url, &funding); err == nil && len(funding.Data) > 0 {
		t.FundingRate = ptr(atof(funding.Data[0].FundingRate))
	}

	return t, nil
}
