package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Venue
	Testnet              bool
	MasterAccountAddress string
	WalletAddress        string
	PrivateKey           string

	// Universe
	Tickers         []string
	FallbackTickers []string

	// Cycle
	CycleIntervalMinutes int

	// Screening
	ScreeningEnabled  bool
	TopNCoins         int
	AnalysisBatchSize int
	CoinGeckoAPIKey   string

	// Trend confirmation
	TrendConfirmationEnabled bool
	MinTrendConfidence       float64
	ADXThreshold             float64
	RSIOverbought            float64
	RSIOversold              float64
	SkipPoorEntry            bool
	AllowScalping            bool

	// Risk
	MaxDailyLossUSD        float64
	MaxDailyLossPct        float64
	MaxPositionPct         float64
	DefaultStopLossPct     float64
	DefaultTakeProfitPct   float64
	MaxConsecutiveLosses   int
	CooldownAfterLossesMin int

	// Decisions
	MinConfidence  float64
	DefaultAIModel string

	// Market data providers
	MarketDataProviders []string
	ProviderTimeoutSec  int

	// Aux feeds
	CryptoPanicAPIKey string

	// Notifications
	TelegramBotToken string
	TelegramChatID   string

	// Server
	APIPort string

	// Storage
	DataDir string
}

// marketDataFile mirrors config/market_data.yaml.
type marketDataFile struct {
	Providers []string `yaml:"providers"`
	Timeout   int      `yaml:"timeout"`
}

var cfg *Config

func Load() *Config {
	godotenv.Load()

	testnet := getEnvBool("TESTNET", true)

	cfg = &Config{
		Testnet:              testnet,
		MasterAccountAddress: credential("MASTER_ACCOUNT_ADDRESS", testnet),
		WalletAddress:        credential("WALLET_ADDRESS", testnet),
		PrivateKey:           credential("PRIVATE_KEY", testnet),

		Tickers:         getEnvList("TICKERS", []string{"BTC", "ETH", "SOL"}),
		FallbackTickers: getEnvList("FALLBACK_TICKERS", []string{"BTC", "ETH", "SOL"}),

		CycleIntervalMinutes: getEnvInt("CYCLE_INTERVAL_MINUTES", 5),

		ScreeningEnabled:  getEnvBool("SCREENING_ENABLED", true),
		TopNCoins:         getEnvInt("TOP_N_COINS", 20),
		AnalysisBatchSize: getEnvInt("ANALYSIS_BATCH_SIZE", 5),
		CoinGeckoAPIKey:   getEnv("COINGECKO_API_KEY", ""),

		TrendConfirmationEnabled: getEnvBool("TREND_CONFIRMATION_ENABLED", true),
		MinTrendConfidence:       getEnvFloat("MIN_TREND_CONFIDENCE", 0.6),
		ADXThreshold:             getEnvFloat("ADX_THRESHOLD", 25),
		RSIOverbought:            getEnvFloat("RSI_OVERBOUGHT", 70),
		RSIOversold:              getEnvFloat("RSI_OVERSOLD", 30),
		SkipPoorEntry:            getEnvBool("SKIP_POOR_ENTRY", true),
		AllowScalping:            getEnvBool("ALLOW_SCALPING", false),

		MaxDailyLossUSD:        getEnvFloat("MAX_DAILY_LOSS_USD", 500),
		MaxDailyLossPct:        getEnvFloat("MAX_DAILY_LOSS_PCT", 5),
		MaxPositionPct:         getEnvFloat("MAX_POSITION_PCT", 30),
		DefaultStopLossPct:     getEnvFloat("DEFAULT_STOP_LOSS_PCT", 2),
		DefaultTakeProfitPct:   getEnvFloat("DEFAULT_TAKE_PROFIT_PCT", 5),
		MaxConsecutiveLosses:   getEnvInt("MAX_CONSECUTIVE_LOSSES", 3),
		CooldownAfterLossesMin: getEnvInt("COOLDOWN_AFTER_LOSSES_MINUTES", 30),

		MinConfidence:  getEnvFloat("MIN_CONFIDENCE", 0.4),
		DefaultAIModel: getEnv("DEFAULT_AI_MODEL", "deepseek"),

		MarketDataProviders: nil,
		ProviderTimeoutSec:  5,

		CryptoPanicAPIKey: getEnv("CRYPTOPANIC_API_KEY", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		APIPort: getEnv("API_PORT", "8080"),
		DataDir: getEnv("DATA_DIR", "data"),
	}

	cfg.MarketDataProviders, cfg.ProviderTimeoutSec = loadMarketData()

	return cfg
}

func Get() *Config {
	if cfg == nil {
		Load()
	}
	return cfg
}

// Validate reports fatal configuration problems. Called once at startup.
func (c *Config) Validate() error {
	if c.MasterAccountAddress == "" {
		return fmt.Errorf("MASTER_ACCOUNT_ADDRESS is required")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}
	if c.CycleIntervalMinutes < 1 {
		return fmt.Errorf("CYCLE_INTERVAL_MINUTES must be >= 1, got %d", c.CycleIntervalMinutes)
	}
	if c.AnalysisBatchSize < 1 {
		return fmt.Errorf("ANALYSIS_BATCH_SIZE must be >= 1, got %d", c.AnalysisBatchSize)
	}
	if c.TopNCoins < c.AnalysisBatchSize {
		return fmt.Errorf("TOP_N_COINS (%d) must be >= ANALYSIS_BATCH_SIZE (%d)", c.TopNCoins, c.AnalysisBatchSize)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be in [0,1], got %.2f", c.MinConfidence)
	}
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 100 {
		return fmt.Errorf("MAX_POSITION_PCT must be in (0,100], got %.1f", c.MaxPositionPct)
	}
	return nil
}

// credential resolves an address/key env var, preferring TESTNET_* variants
// when running against the sandbox.
func credential(key string, testnet bool) string {
	if testnet {
		if v := os.Getenv("TESTNET_" + key); v != "" {
			return v
		}
	}
	return os.Getenv(key)
}

// loadMarketData reads the provider list from config/market_data.yaml when
// present; MARKET_DATA_PROVIDERS overrides the file.
func loadMarketData() ([]string, int) {
	providers := []string{}
	timeout := 5

	for _, p := range []string{"config/market_data.yaml", "market_data.yaml"} {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var f marketDataFile
		if err := yaml.Unmarshal(data, &f); err == nil {
			if len(f.Providers) > 0 {
				providers = f.Providers
			}
			if f.Timeout > 0 {
				timeout = f.Timeout
			}
		}
		break
	}

	if env := os.Getenv("MARKET_DATA_PROVIDERS"); env != "" {
		providers = splitList(env)
	}

	return providers, timeout
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		return splitList(val)
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		i, err := strconv.Atoi(val)
		if err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return defaultVal
}
