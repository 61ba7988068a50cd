package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"hyper-agent/api"
	"hyper-agent/config"
	"hyper-agent/decision"
	"hyper-agent/events"
	"hyper-agent/execution"
	"hyper-agent/feeds"
	"hyper-agent/history"
	"hyper-agent/hyperliquid"
	"hyper-agent/indicators"
	"hyper-agent/llm"
	"hyper-agent/notify"
	"hyper-agent/providers"
	"hyper-agent/risk"
	"hyper-agent/screener"
	"hyper-agent/store"
	"hyper-agent/trader"
	"hyper-agent/trend"
)

func main() {
	log := newLogger()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Info().
		Bool("testnet", cfg.Testnet).
		Bool("screening", cfg.ScreeningEnabled).
		Int("cycle_minutes", cfg.CycleIntervalMinutes).
		Str("model", cfg.DefaultAIModel).
		Msg("configuration loaded")

	if err := store.Init(cfg.DataDir); err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := hyperliquid.NewClient(ctx, cfg.MasterAccountAddress, cfg.PrivateKey, cfg.Testnet, log)
	if err != nil {
		log.Fatal().Err(err).Msg("venue client init failed")
	}

	provTimeout := time.Duration(cfg.ProviderTimeoutSec) * time.Second
	provs := providers.FromConfig(cfg.MarketDataProviders, provTimeout, log)
	aggregator := providers.NewAggregator(&venuePrimary{client: client}, provs, provTimeout, log)

	gecko := providers.NewCoinGecko(cfg.CoinGeckoAPIKey)
	scr, err := screener.New(client, gecko, filepath.Join(cfg.DataDir, "screener"), cfg.TopNCoins, cfg.FallbackTickers, log)
	if err != nil {
		log.Fatal().Err(err).Msg("screener init failed")
	}

	registry := llm.NewRegistry(log)
	tracker := llm.NewTracker(store.NewUsageStore(), log)
	llmClient := llm.NewClient(registry, tracker, log)

	riskMgr := risk.NewManager(riskConfig(cfg), log)

	hub := events.NewHub(log)
	go hub.Run()

	engine := trader.NewEngine(cfg, trader.Deps{
		Venue:     client,
		Universe:  scr,
		Analyzer:  indicators.NewEngine(client, log),
		Feeds:     feeds.NewFetcher(client, cfg.CryptoPanicAPIKey, log),
		Decider:   decision.NewEngine(llmClient, registry, log),
		Executor:  execution.NewAdapter(client, riskMgr, log),
		TrendGate: trend.NewEngine(client, trend.Config{
			ADXThreshold:  cfg.ADXThreshold,
			RSIOverbought: cfg.RSIOverbought,
			RSIOversold:   cfg.RSIOversold,
			MinConfidence: cfg.MinTrendConfidence,
			AllowScalping: cfg.AllowScalping,
		}, log),
		Snapshots: aggregator,
		Risk:      riskMgr,
		Hub:       hub,
		Notifier:  notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, log),
	}, log)

	reconciler := history.NewReconciler(client, store.NewTradeStore(), log)
	go reconciler.Run(ctx)

	server := api.NewServer(cfg.APIPort, engine, riskMgr, hub, registry, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("api server stopped")
		}
	}()

	scheduler := trader.NewScheduler(engine, client, scr, cfg.CycleIntervalMinutes, log)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler start failed")
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	scheduler.Stop()
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if l, err := zerolog.ParseLevel(raw); err == nil {
			level = l
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

func riskConfig(cfg *config.Config) risk.Config {
	rc := risk.DefaultConfig()
	rc.MaxDailyLossPct = cfg.MaxDailyLossPct
	rc.MaxDailyLossUSD = cfg.MaxDailyLossUSD
	rc.MaxPositionPct = cfg.MaxPositionPct
	rc.DefaultStopLossPct = cfg.DefaultStopLossPct
	rc.DefaultTakeProfitPct = cfg.DefaultTakeProfitPct
	rc.MaxConsecutiveLosses = cfg.MaxConsecutiveLosses
	rc.CooldownAfterLosses = time.Duration(cfg.CooldownAfterLossesMin) * time.Minute
	return rc
}

// venuePrimary adapts the venue client to the aggregator's primary-source
// contract using the asset context endpoint.
type venuePrimary struct {
	client *hyperliquid.Client
}

func (v *venuePrimary) MarketData(ctx context.Context, symbol string) (*providers.Ticker, error) {
	meta, ctxs, err := v.client.MetaAndAssetCtxs(ctx)
	if err != nil {
		return nil, err
	}
	for i, asset := range meta.Universe {
		if asset.Name != symbol || i >= len(ctxs) {
			continue
		}
		ac := ctxs[i]
		funding := ac.FundingFloat()
		oi := ac.OpenInterestFloat()
		return &providers.Ticker{
			Price:        ac.MarkPxFloat(),
			Volume24h:    ac.DayNtlVlmFloat(),
			FundingRate:  &funding,
			OpenInterest: &oi,
			Source:       "hyperliquid",
		}, nil
	}
	return nil, fmt.Errorf("symbol %s not in venue universe", symbol)
}
