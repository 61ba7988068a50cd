package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Ticker is the uniform market-data contract every provider returns.
// FundingRate and OpenInterest are nil where the venue has no derivatives
// surface.
type Ticker struct {
	Price        float64  `json:"price"`
	Volume24h    float64  `json:"volume_24h"`
	FundingRate  *float64 `json:"funding_rate,omitempty"`
	OpenInterest *float64 `json:"open_interest,omitempty"`
	Source       string   `json:"source"`
}

// Provider is one external exchange data source.
type Provider interface {
	Name() string
	CheckAvailability(ctx context.Context) bool
	MarketData(ctx context.Context, symbol string) (*Ticker, error)
}

// registry maps provider names to constructors. Adding an exchange means
// adding one entry here and one file implementing Provider.
var registry = map[string]func(*http.Client) Provider{
	"binance":    func(c *http.Client) Provider { return &Binance{http: c} },
	"bybit":      func(c *http.Client) Provider { return &Bybit{http: c} },
	"okx":        func(c *http.Client) Provider { return &OKX{http: c} },
	"kraken":     func(c *http.Client) Provider { return &Kraken{http: c} },
	"kucoin":     func(c *http.Client) Provider { return &KuCoin{http: c} },
	"mexc":       func(c *http.Client) Provider { return &MEXC{http: c} },
	"gate":       func(c *http.Client) Provider { return &Gate{http: c} },
	"bitget":     func(c *http.Client) Provider { return &Bitget{http: c} },
	"bingx":      func(c *http.Client) Provider { return &BingX{http: c} },
	"htx":        func(c *http.Client) Provider { return &HTX{http: c} },
	"cryptocom":  func(c *http.Client) Provider { return &CryptoCom{http: c} },
	"crypto_com": func(c *http.Client) Provider { return &CryptoCom{http: c} },
}

// FromConfig instantiates the enabled providers. Unknown names are logged
// and skipped, never fatal.
func FromConfig(names []string, timeout time.Duration, log zerolog.Logger) []Provider {
	httpClient := &http.Client{Timeout: timeout}

	out := make([]Provider, 0, len(names))
	for _, name := range names {
		ctor, ok := registry[name]
		if !ok {
			log.Warn().Str("provider", name).Msg("unknown market data provider, skipping")
			continue
		}
		p := ctor(httpClient)
		out = append(out, p)
		log.Info().Str("provider", p.Name()).Msg("market data provider enabled")
	}
	return out
}

// Known returns whether a provider name is registered.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// getJSON issues one GET and decodes the body.
func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func decodeJSON(r io.Reader, out interface{}) error {
	return json.NewDecoder(r).Decode(out)
}

// atof tolerates the string-encoded numbers most exchange APIs return.
func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func ptr(f float64) *float64 { return &f }
