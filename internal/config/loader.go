package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RECALLBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads RECALLBOT_* environment variables and overwrites the
// matching Config fields when a variable is set and non-empty.
func applyEnvOverrides(cfg *Config) {
	// ── API ──
	setStr(&cfg.API.URL, "RECALLBOT_API_URL")
	setStr(&cfg.API.Key, "RECALLBOT_API_KEY")
	setStr(&cfg.API.Key, "RECALL_API_KEY") // compatibility alias
	setStr(&cfg.API.EncryptedKeyPath, "RECALLBOT_API_ENCRYPTED_KEY_PATH")
	setStr(&cfg.API.KeyPassword, "RECALLBOT_API_KEY_PASSWORD")
	setDuration(&cfg.API.Timeout, "RECALLBOT_API_TIMEOUT")
	setInt(&cfg.API.RetryCount, "RECALLBOT_API_RETRY_COUNT")

	// ── Portfolio ──
	setFloat64(&cfg.Portfolio.RebalanceThreshold, "RECALLBOT_PORTFOLIO_REBALANCE_THRESHOLD")
	setFloat64(&cfg.Portfolio.MinTradeAmount, "RECALLBOT_PORTFOLIO_MIN_TRADE_AMOUNT")
	setFloat64(&cfg.Portfolio.MaxSlippage, "RECALLBOT_PORTFOLIO_MAX_SLIPPAGE")
	setStr(&cfg.Portfolio.QuoteSymbol, "RECALLBOT_PORTFOLIO_QUOTE_SYMBOL")

	setStr(&cfg.Tokens.Path, "RECALLBOT_TOKENS_PATH")

	// ── Strategy ──
	setBool(&cfg.Strategy.Momentum.Enabled, "RECALLBOT_STRATEGY_MOMENTUM_ENABLED")
	setDuration(&cfg.Strategy.Momentum.Lookback, "RECALLBOT_STRATEGY_MOMENTUM_LOOKBACK")
	setBool(&cfg.Strategy.MeanReversion.Enabled, "RECALLBOT_STRATEGY_MEAN_REVERSION_ENABLED")
	setDuration(&cfg.Strategy.MeanReversion.Lookback, "RECALLBOT_STRATEGY_MEAN_REVERSION_LOOKBACK")
	setFloat64(&cfg.Strategy.MinSignalStrength, "RECALLBOT_STRATEGY_MIN_SIGNAL_STRENGTH")
	setFloat64(&cfg.Strategy.MaxPositionSize, "RECALLBOT_STRATEGY_MAX_POSITION_SIZE")

	// ── Schedule ──
	setDuration(&cfg.Schedule.Rebalance, "RECALLBOT_SCHEDULE_REBALANCE")
	setDuration(&cfg.Schedule.Signals, "RECALLBOT_SCHEDULE_SIGNALS")
	setDuration(&cfg.Schedule.PriceMonitor, "RECALLBOT_SCHEDULE_PRICE_MONITOR")
	setDuration(&cfg.Schedule.Status, "RECALLBOT_SCHEDULE_STATUS")
	setDuration(&cfg.Schedule.DailyReport, "RECALLBOT_SCHEDULE_DAILY_REPORT")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "RECALLBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "RECALLBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "RECALLBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RECALLBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RECALLBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RECALLBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "RECALLBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RECALLBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "RECALLBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "RECALLBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "RECALLBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "RECALLBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "RECALLBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RECALLBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RECALLBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RECALLBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RECALLBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RECALLBOT_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.TradeRateLimit, "RECALLBOT_REDIS_TRADE_RATE_LIMIT")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "RECALLBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "RECALLBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RECALLBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "RECALLBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RECALLBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RECALLBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RECALLBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RECALLBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ReportPrefix, "RECALLBOT_S3_REPORT_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "RECALLBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "RECALLBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "RECALLBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "RECALLBOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "RECALLBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RECALLBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RECALLBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RECALLBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RECALLBOT_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.Level, "RECALLBOT_LOG_LEVEL")
	setStr(&cfg.Log.File, "RECALLBOT_LOG_FILE")

	// ── Top-level ──
	setStr(&cfg.Mode, "RECALLBOT_MODE")
	setBool(&cfg.DryRun, "RECALLBOT_DRY_RUN")
	setStr(&cfg.ReportDir, "RECALLBOT_REPORT_DIR")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
