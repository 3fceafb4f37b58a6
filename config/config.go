package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"alert-systemv1/internal/dsl"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Bar feed
	FeedURL string

	// Notification backends (empty = disabled)
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	// Logging
	LogLevel string

	// Optional path to a JSON file of rule definitions. When empty the
	// built-in rule library is loaded instead.
	RulesPath string

	// MarketHoursOnly gates the feed connection to NSE trading hours.
	MarketHoursOnly bool

	// Timeframes the builder derives from the feed's base bars
	// (comma-separated tokens, e.g. "5m,15m,1h,1d").
	BaseTimeframe string
	EnabledTFs    string

	// Rule evaluation limits
	MaxNodes      int
	MaxCallDepth  int
	MaxTimeframes int
	MaxLookback   int
	EvalTimeoutMs int
	LookbackBars  int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		FeedURL: getEnv("FEED_URL", "ws://localhost:9001/bars"),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		RulesPath: getEnv("RULES_PATH", ""),

		MarketHoursOnly: strings.EqualFold(getEnv("MARKET_HOURS_ONLY", "false"), "true"),

		BaseTimeframe: getEnv("BASE_TF", "1m"),
		EnabledTFs:    getEnv("ENABLED_TFS", "5m,15m,1h,1d"),

		MaxNodes:      getEnvInt("LIMIT_MAX_NODES", 256),
		MaxCallDepth:  getEnvInt("LIMIT_MAX_CALL_DEPTH", 16),
		MaxTimeframes: getEnvInt("LIMIT_MAX_TIMEFRAMES", 4),
		MaxLookback:   getEnvInt("LIMIT_MAX_LOOKBACK", 1000),
		EvalTimeoutMs: getEnvInt("EVAL_TIMEOUT_MS", 5000),
		LookbackBars:  getEnvInt("LOOKBACK_BARS", 500),
	}
}

// ParseTFs parses the EnabledTFs string into validated timeframe tokens.
// Invalid tokens are skipped with a warning rather than aborting startup.
func (c *Config) ParseTFs() []string {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := dsl.ParseTimeframe(p); err != nil {
			log.Printf("[config] skipping invalid TF value: %q", p)
			continue
		}
		tfs = append(tfs, p)
	}
	return tfs
}

// Limits assembles the rule-evaluation guardrails from the loaded knobs.
func (c *Config) Limits() dsl.Limits {
	return dsl.Limits{
		MaxNodes:      c.MaxNodes,
		MaxCallDepth:  c.MaxCallDepth,
		MaxTimeframes: c.MaxTimeframes,
		MaxLookback:   c.MaxLookback,
		Timeout:       time.Duration(c.EvalTimeoutMs) * time.Millisecond,
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
