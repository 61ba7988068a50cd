package providers

import (
	"context"
	"fmt"
	"net/http"
)

// Binance serves USDT-margined futures tickers with funding.
type Binance struct {
	http *http.Client
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) CheckAvailability(ctx context.Context) bool {
	var out struct{}
	return getJSON(ctx, b.http, "https://fapi.binance.com/fapi/v1/ping", &out) == nil
}

func (b *Binance) MarketData(ctx context.Context, symbol string) (*Ticker, error) {
	pair := symbol + "USDT"

	var ticker struct {
		LastPrice   string `json:"lastPrice"`
		QuoteVolume string `json:"quoteVolume"`
	}
	url := fmt.Sprintf("https://fapi.binance.com/fapi/v1/ticker/24hr?symbol=%s", pair)
	if err := getJSON(ctx, b.http, url, &ticker); err != nil {
		return nil, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}

	t := &Ticker{
		Price:     atof(ticker.LastPrice),
		Volume24h: atof(ticker.QuoteVolume),
		Source:    "binance_futures",
	}

	// Funding is a second endpoint; best-effort.
	var premium struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	url = fmt.Sprintf("https://fapi.binance.com/fapi/v1/premiumIndex?symbol=%s", pair)
	if err := getJSON(ctx, b.http, url, &premium); err == nil {
		t.FundingRate = ptr(atof(premium.LastFundingRate))
	}

	return t, nil
}
