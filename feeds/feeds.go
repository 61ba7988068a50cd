// Package feeds produces auxiliary decision context: news, market
// sentiment, short-horizon forecasts and whale-transfer alerts. Every
// source is best-effort; a failure yields placeholder text so the cycle
// never stalls on context.
package feeds

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hyper-agent/hyperliquid"
)

const (
	newsPlaceholder      = "News unavailable"
	sentimentPlaceholder = "Sentiment unavailable"
	forecastPlaceholder  = "Forecasts unavailable"
	whalePlaceholder     = "Whale alerts unavailable"
)

// Context is the gathered auxiliary context for one cycle. Text fields are
// always set; structured fields are nil when the source failed.
type Context struct {
	NewsText      string
	SentimentText string
	Sentiment     *Sentiment
	ForecastText  string
	Forecasts     []Forecast
	WhaleText     string
	Whales        []WhaleAlert
}

// Venue supplies candles for the forecaster.
type Venue interface {
	CandlesSnapshot(ctx context.Context, symbol, interval string, limit int) ([]hyperliquid.Candle, error)
}

// Fetcher gathers all sources concurrently.
type Fetcher struct {
	httpClient *http.Client
	venue      Venue
	log        zerolog.Logger

	cryptoPanicKey string

	newsURL      string
	sentimentURL string
	whaleURL     string
}

func NewFetcher(venue Venue, cryptoPanicKey string, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		venue:          venue,
		log:            log,
		cryptoPanicKey: cryptoPanicKey,
		newsURL:        "https://cryptopanic.com/api/v1/posts/",
		sentimentURL:   "https://api.alternative.me/fng/?limit=1",
		whaleURL:       "https://whale-alert.io/data.json?alerts=9&news=true",
	}
}

// Gather fetches every source in parallel and always returns a usable
// context.
func (f *Fetcher) Gather(ctx context.Context, symbols []string) *Context {
	out := &Context{
		NewsText:      newsPlaceholder,
		SentimentText: sentimentPlaceholder,
		ForecastText:  forecastPlaceholder,
		WhaleText:     whalePlaceholder,
	}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		if text, err := f.fetchNews(ctx, symbols); err == nil {
			out.NewsText = text
		} else {
			f.log.Warn().Err(err).Msg("news feed failed")
		}
	}()
	go func() {
		defer wg.Done()
		if text, s, err := f.fetchSentiment(ctx); err == nil {
			out.SentimentText, out.Sentiment = text, s
		} else {
			f.log.Warn().Err(err).Msg("sentiment feed failed")
		}
	}()
	go func() {
		defer wg.Done()
		if text, fc, err := f.fetchForecasts(ctx, symbols); err == nil {
			out.ForecastText, out.Forecasts = text, fc
		} else {
			f.log.Warn().Err(err).Msg("forecast feed failed")
		}
	}()
	go func() {
		defer wg.Done()
		if text, alerts, err := f.fetchWhaleAlerts(ctx); err == nil {
			out.WhaleText, out.Whales = text, alerts
		} else {
			f.log.Warn().Err(err).Msg("whale feed failed")
		}
	}()

	wg.Wait()
	return out
}
