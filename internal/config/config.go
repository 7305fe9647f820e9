package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Agent
	IntervalMS       int      `yaml:"interval_ms"`
	MaxTradePct      float64  `yaml:"max_trade_pct"`
	PollIntervalMS   int      `yaml:"poll_interval_ms"`
	PollMaxAttempts  int      `yaml:"poll_max_attempts"`
	DecisionStrategy string   `yaml:"decision_strategy"`
	BaseAsset        string   `yaml:"base_asset"`
	SkipTokens       []string `yaml:"skip_tokens"`
	ChainName        string   `yaml:"chain_name"`

	// Upstream agent service
	BankrAPIKey     string  `yaml:"-"`
	BankrAPIURL     string  `yaml:"bankr_api_url"`
	BankrRatePerSec float64 `yaml:"bankr_rate_per_sec"`

	// Store
	StoreDriver string `yaml:"store_driver"`
	DBHost      string `yaml:"db_host"`
	DBPort      int    `yaml:"db_port"`
	DBName      string `yaml:"db_name"`
	DBUser      string `yaml:"db_user"`
	DBPassword  string `yaml:"-"`

	// REST API
	APIPort         int    `yaml:"api_port"`
	APIKey          string `yaml:"-"`
	CORSAllowOrigin string `yaml:"cors_allow_origin"`

	// Notifications
	WebhookURL           string `yaml:"webhook_url"`
	BotName              string `yaml:"bot_name"`
	TelegramBotToken     string `yaml:"-"`
	TelegramChatID       int64  `yaml:"telegram_chat_id"`
	StatusReportSchedule string `yaml:"status_report_schedule"`

	// Risk Management
	MaxDailyTrades     int     `yaml:"max_daily_trades"`
	MaxPositionSizeUSD float64 `yaml:"max_position_size_usd"`
	StopLossPercent    float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent  float64 `yaml:"take_profit_percent"`

	// Chain
	ChainRPCURL string `yaml:"chain_rpc_url"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		IntervalMS:       180000,
		MaxTradePct:      15,
		PollIntervalMS:   3000,
		PollMaxAttempts:  100,
		DecisionStrategy: "local",
		BaseAsset:        "USDC",
		SkipTokens:       []string{"USDC", "USDT", "DAI", "USD", "ETH", "WETH"},
		ChainName:        "base",

		BankrAPIURL:     "https://api.bankr.bot",
		BankrRatePerSec: 2,

		StoreDriver: "postgres",
		DBHost:      "localhost",
		DBPort:      5432,
		DBName:      "trahn_agent",

		APIPort:         3001,
		CORSAllowOrigin: "*",

		BotName:              "TrahnAgent",
		StatusReportSchedule: "@every 1h",

		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load reads .env, then the optional YAML file named by AGENT_CONFIG_FILE,
// then environment variables. Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("AGENT_CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	// Agent
	c.IntervalMS = envInt("AGENT_INTERVAL_MS", c.IntervalMS)
	c.MaxTradePct = envFloat("AGENT_MAX_TRADE_PCT", c.MaxTradePct)
	c.PollIntervalMS = envInt("POLL_INTERVAL_MS", c.PollIntervalMS)
	c.PollMaxAttempts = envInt("POLL_MAX_ATTEMPTS", c.PollMaxAttempts)
	c.DecisionStrategy = envStr("DECISION_STRATEGY", c.DecisionStrategy)
	c.BaseAsset = strings.ToUpper(envStr("BASE_ASSET", c.BaseAsset))
	c.SkipTokens = envList("SKIP_TOKENS", c.SkipTokens)
	c.ChainName = envStr("CHAIN_NAME", c.ChainName)

	// Upstream
	c.BankrAPIKey = envStr("BANKR_API_KEY", c.BankrAPIKey)
	c.BankrAPIURL = envStr("BANKR_API_URL", c.BankrAPIURL)
	c.BankrRatePerSec = envFloat("BANKR_RATE_PER_SEC", c.BankrRatePerSec)

	// Store
	c.StoreDriver = envStr("STORE_DRIVER", c.StoreDriver)
	c.DBHost = envStr("DB_HOST", c.DBHost)
	c.DBPort = envInt("DB_PORT", c.DBPort)
	c.DBName = envStr("DB_NAME", c.DBName)
	c.DBUser = envStr("DB_USER", c.DBUser)
	c.DBPassword = envStr("DB_PASSWORD", c.DBPassword)

	// API
	c.APIPort = envInt("API_PORT", c.APIPort)
	c.APIKey = envStr("API_KEY", c.APIKey)
	c.CORSAllowOrigin = envStr("CORS_ALLOW_ORIGIN", c.CORSAllowOrigin)

	// Notifications
	c.WebhookURL = envStr("WEBHOOK_URL", c.WebhookURL)
	c.BotName = envStr("BOT_NAME", c.BotName)
	c.TelegramBotToken = envStr("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.TelegramChatID = envInt64("TELEGRAM_CHAT_ID", c.TelegramChatID)
	c.StatusReportSchedule = envStr("STATUS_REPORT_SCHEDULE", c.StatusReportSchedule)

	// Risk
	c.MaxDailyTrades = envInt("MAX_DAILY_TRADES", c.MaxDailyTrades)
	c.MaxPositionSizeUSD = envFloat("MAX_POSITION_SIZE_USD", c.MaxPositionSizeUSD)
	c.StopLossPercent = envFloat("STOP_LOSS_PERCENT", c.StopLossPercent)
	c.TakeProfitPercent = envFloat("TAKE_PROFIT_PERCENT", c.TakeProfitPercent)

	c.ChainRPCURL = envStr("CHAIN_RPC_URL", c.ChainRPCURL)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("LOG_FORMAT", c.LogFormat)
}

// Validate collects every hard error; soft problems are logged as warnings.
func (c *Config) Validate(logger zerolog.Logger) error {
	var errs []string

	if c.BankrAPIKey == "" {
		errs = append(errs, "BANKR_API_KEY is required")
	}
	if c.IntervalMS <= 0 {
		errs = append(errs, "AGENT_INTERVAL_MS must be positive")
	}
	if c.PollIntervalMS <= 0 {
		errs = append(errs, "POLL_INTERVAL_MS must be positive")
	}
	if c.PollMaxAttempts <= 0 {
		errs = append(errs, "POLL_MAX_ATTEMPTS must be positive")
	}
	if c.MaxTradePct <= 0 || c.MaxTradePct > 100 {
		errs = append(errs, "AGENT_MAX_TRADE_PCT must be in (0, 100]")
	}
	if c.BaseAsset == "" {
		errs = append(errs, "BASE_ASSET is required")
	}
	switch c.DecisionStrategy {
	case "local", "upstream":
	default:
		errs = append(errs, fmt.Sprintf("DECISION_STRATEGY %q is not one of local, upstream", c.DecisionStrategy))
	}
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER %q is not one of postgres, memory", c.StoreDriver))
	}
	if c.StoreDriver == "postgres" && c.DBUser == "" {
		errs = append(errs, "DB_USER is required for the postgres store")
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, "TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	if c.StopLossPercent == 0 && c.TakeProfitPercent == 0 {
		logger.Warn().Msg("STOP_LOSS_PERCENT and TAKE_PROFIT_PERCENT are both 0, no portfolio circuit breakers active")
	}
	if c.MaxDailyTrades == 0 && c.MaxPositionSizeUSD == 0 {
		logger.Warn().Msg("MAX_DAILY_TRADES and MAX_POSITION_SIZE_USD are both 0, no per-trade limits active")
	}
	if c.APIKey == "" {
		logger.Warn().Msg("API_KEY not set, REST API has no authentication")
	}
	if c.StoreDriver == "memory" {
		logger.Warn().Msg("memory store selected, trades and logs are lost on exit")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print(logger zerolog.Logger) {
	logger.Info().
		Str("chain", c.ChainName).
		Str("base_asset", c.BaseAsset).
		Strs("skip", c.SkipTokens).
		Str("strategy", c.DecisionStrategy).
		Dur("interval", c.Interval()).
		Float64("max_trade_pct", c.MaxTradePct).
		Dur("poll_interval", c.PollInterval()).
		Int("poll_max_attempts", c.PollMaxAttempts).
		Msg("agent configuration")
	logger.Info().
		Str("store", c.StoreDriver).
		Str("upstream", c.BankrAPIURL).
		Int("api_port", c.APIPort).
		Str("webhook", boolLabel(c.WebhookURL != "", "configured", "not set")).
		Str("telegram", boolLabel(c.TelegramBotToken != "", "configured", "not set")).
		Str("chain_rpc", boolLabel(c.ChainRPCURL != "", "configured", "not set")).
		Str("status_report", c.StatusReportSchedule).
		Msg("integrations")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envList splits a comma separated value, uppercasing each entry.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
