package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all bootstrap configuration. Engine knobs seeded from here are
// live-tunable afterwards through the control surface.
type Config struct {
	// Exchange
	APIKey    string
	APISecret string
	Live      bool

	// Telegram (optional)
	TelegramToken  string
	TelegramChatID int64

	// Mode
	Debug bool

	// Tick source
	QuoteCurrency   string
	PollInterval    time.Duration
	MarketRefresh   time.Duration
	BalanceRefresh  time.Duration
	TickStreamURL   string // optional push feed; empty means poll

	// Surfaces
	HTTPAddr    string
	DatabaseDSN string // empty disables persistence

	// Engine settings (initial values)
	CheckRatePeriod      time.Duration
	ExplosionThreshold   decimal.Decimal
	RisingCountThreshold int
	SellGrowth1          decimal.Decimal
	SellGrowth2          decimal.Decimal
	SellGrowth2After     time.Duration
	SellGrowth3          decimal.Decimal
	SellGrowth3After     time.Duration
	SellFall             decimal.Decimal
	OrderBudget          decimal.Decimal
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		APIKey:    os.Getenv("EXCHANGE_API_KEY"),
		APISecret: os.Getenv("EXCHANGE_API_SECRET"),
		Live:      getEnvBool("LIVE", false),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		Debug: getEnvBool("DEBUG", false),

		QuoteCurrency:  getEnv("QUOTE_CURRENCY", "BTC"),
		PollInterval:   getEnvDuration("POLL_INTERVAL", 10*time.Second),
		MarketRefresh:  getEnvDuration("MARKET_REFRESH_INTERVAL", 30*time.Minute),
		BalanceRefresh: getEnvDuration("BALANCE_REFRESH_INTERVAL", 5*time.Minute),
		TickStreamURL:  os.Getenv("TICK_STREAM_URL"),

		HTTPAddr:    getEnv("HTTP_ADDR", ":3000"),
		DatabaseDSN: getEnv("DATABASE_DSN", "data/pumpbot.db"),

		CheckRatePeriod:      getEnvDuration("CHECK_RATE_PERIOD", 3*time.Minute),
		ExplosionThreshold:   getEnvDecimal("EXPLOSION_THRESHOLD", decimal.NewFromFloat(0.03)),
		RisingCountThreshold: getEnvInt("RISING_COUNT_THRESHOLD", 3),
		SellGrowth1:          getEnvDecimal("SELL_GROWTH_THRESHOLD_1", decimal.NewFromFloat(0.05)),
		SellGrowth2:          getEnvDecimal("SELL_GROWTH_THRESHOLD_2", decimal.NewFromFloat(0.03)),
		SellGrowth2After:     getEnvDuration("SELL_GROWTH_THRESHOLD_2_AFTER", 20*time.Minute),
		SellGrowth3:          getEnvDecimal("SELL_GROWTH_THRESHOLD_3", decimal.NewFromFloat(0.01)),
		SellGrowth3After:     getEnvDuration("SELL_GROWTH_THRESHOLD_3_AFTER", 60*time.Minute),
		SellFall:             getEnvDecimal("SELL_FALL_THRESHOLD", decimal.NewFromFloat(-0.04)),
		OrderBudget:          getEnvDecimal("ORDER_BUDGET", decimal.NewFromFloat(0.005)),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	// Real execution demands credentials up front; dry run needs none.
	if cfg.Live && (cfg.APIKey == "" || cfg.APISecret == "") {
		return nil, fmt.Errorf("LIVE=true requires EXCHANGE_API_KEY and EXCHANGE_API_SECRET")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
