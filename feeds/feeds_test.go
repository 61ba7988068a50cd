package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyper-agent/hyperliquid"
)

type fakeVenue struct {
	closes map[string][]float64
	err    error
}

func (f *fakeVenue) CandlesSnapshot(_ context.Context, symbol, interval string, _ int) ([]hyperliquid.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	closes := f.closes[symbol+"/"+interval]
	out := make([]hyperliquid.Candle, len(closes))
	for i, px := range closes {
		out[i] = hyperliquid.Candle{Close: fmt.Sprintf("%f", px)}
	}
	return out, nil
}

func rising(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestFetchSentiment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"value":"72","value_classification":"Greed"}]}`)
	}))
	defer srv.Close()

	f := NewFetcher(nil, "", zerolog.Nop())
	f.sentimentURL = srv.URL

	text, s, err := f.fetchSentiment(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 72, s.Value)
	assert.Equal(t, "Greed", s.Classification)
	assert.Contains(t, text, "72 (Greed)")
}

func TestFetchNewsRequiresKey(t *testing.T) {
	f := NewFetcher(nil, "", zerolog.Nop())
	_, err := f.fetchNews(context.Background(), []string{"BTC"})
	assert.Error(t, err)
}

func TestFetchNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("auth_token"))
		assert.Equal(t, "BTC,ETH", r.URL.Query().Get("currencies"))
		fmt.Fprint(w, `{"results":[{"title":"BTC breaks out","source":{"title":"Wire"}}]}`)
	}))
	defer srv.Close()

	f := NewFetcher(nil, "k", zerolog.Nop())
	f.newsURL = srv.URL

	text, err := f.fetchNews(context.Background(), []string{"BTC", "ETH"})
	require.NoError(t, err)
	assert.Contains(t, text, "[Wire] BTC breaks out")
}

func TestParseWhaleAlerts(t *testing.T) {
	raw := []string{
		`1700000000,🚨,"39,995 #ETH","$119,668,458","transferred from #okex to unknown wallet",https://whale-alert.io/transaction/ethereum/0xabc`,
		`1700000001,🚨,"1,000,000 #SHIB","$20","transferred from unknown wallet to unknown wallet",https://whale-alert.io/transaction/ethereum/0xdef`,
		`1700000002,🚨,"5,000 #BTC","$250,000,000","transferred from unknown wallet to #binance",https://whale-alert.io/transaction/bitcoin/abc`,
		`malformed line`,
	}

	alerts := parseWhaleAlerts(raw)
	require.Len(t, alerts, 2, "irrelevant and malformed alerts are dropped")
	assert.Equal(t, "5,000 #BTC", alerts[0].Amount, "sorted by USD value descending")
	assert.Equal(t, 250000000.0, alerts[0].USDNumeric)
	assert.Equal(t, "39,995 #ETH", alerts[1].Amount)
}

func TestProjectNext(t *testing.T) {
	fc, ok := projectNext("BTC", "1h", rising(30, 100, 1))
	require.True(t, ok)
	assert.Equal(t, "up", fc.Direction)
	assert.Greater(t, fc.PredictedPrice, fc.CurrentPrice)
	// A perfect line extrapolates exactly one step.
	assert.InDelta(t, fc.CurrentPrice+1, fc.PredictedPrice, 1e-6)

	_, ok = projectNext("BTC", "1h", rising(5, 100, 1))
	assert.False(t, ok, "too few closes")
}

func TestGatherDegradesToPlaceholders(t *testing.T) {
	f := NewFetcher(&fakeVenue{err: errors.New("venue down")}, "", zerolog.Nop())
	// Point the HTTP sources at nothing routable.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	f.sentimentURL = srv.URL
	f.whaleURL = srv.URL

	out := f.Gather(context.Background(), []string{"BTC"})
	require.NotNil(t, out)
	assert.Equal(t, newsPlaceholder, out.NewsText)
	assert.Equal(t, sentimentPlaceholder, out.SentimentText)
	assert.Equal(t, forecastPlaceholder, out.ForecastText)
	assert.Equal(t, whalePlaceholder, out.WhaleText)
	assert.Nil(t, out.Sentiment)
}

func TestGatherCollectsForecasts(t *testing.T) {
	venue := &fakeVenue{closes: map[string][]float64{
		"BTC/15m": rising(50, 50000, 10),
		"BTC/1h":  rising(50, 50000, 25),
	}}
	f := NewFetcher(venue, "", zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	f.sentimentURL = srv.URL
	f.whaleURL = srv.URL

	out := f.Gather(context.Background(), []string{"BTC"})
	require.Len(t, out.Forecasts, 2)
	assert.Contains(t, out.ForecastText, "BTC 15m")
	assert.Contains(t, out.ForecastText, "BTC 1h")
}
