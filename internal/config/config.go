// Package config defines the top-level configuration for the recall trading
// bot and provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// allocationEpsilon is the tolerance for target allocations summing to 1.
const allocationEpsilon = 0.01

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by RECALLBOT_* environment variables.
type Config struct {
	API        APIConfig        `toml:"api"`
	Portfolio  PortfolioConfig  `toml:"portfolio"`
	Tokens     TokensConfig     `toml:"tokens"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Risk       RiskConfig       `toml:"risk"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	MarketData MarketDataConfig `toml:"market_data"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Log        LogConfig        `toml:"log"`
	Mode       string           `toml:"mode"`
	DryRun     bool             `toml:"dry_run"`
	ReportDir  string           `toml:"report_dir"`
}

// APIConfig holds the trading competition API endpoint and credentials.
type APIConfig struct {
	URL              string   `toml:"url"`
	Key              string   `toml:"key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	Timeout          duration `toml:"timeout"`
	RetryCount       int      `toml:"retry_count"`
}

// TargetAllocation is one entry of the ordered target portfolio. Chain is
// optional and disambiguates symbols listed on several chains.
type TargetAllocation struct {
	Symbol     string  `toml:"symbol"`
	Chain      string  `toml:"chain"`
	Allocation float64 `toml:"allocation"`
}

// PortfolioConfig holds rebalancing parameters. Targets keep their file order,
// which is also the greedy pairing order.
type PortfolioConfig struct {
	Targets            []TargetAllocation `toml:"targets"`
	RebalanceThreshold float64            `toml:"rebalance_threshold"`
	MinTradeAmount     float64            `toml:"min_trade_amount"`
	MaxSlippage        float64            `toml:"max_slippage"`
	QuoteSymbol        string             `toml:"quote_symbol"`
	RebalancePause     duration           `toml:"rebalance_pause"`
	SignalPause        duration           `toml:"signal_pause"`
}

// TokensConfig points at the token catalog file.
type TokensConfig struct {
	Path string `toml:"path"`
}

// MomentumConfig holds trend-following parameters.
type MomentumConfig struct {
	Enabled    bool               `toml:"enabled"`
	Lookback   duration           `toml:"lookback"`
	Thresholds map[string]float64 `toml:"thresholds"`
}

// MeanReversionConfig holds contrarian strategy parameters.
type MeanReversionConfig struct {
	Enabled          bool               `toml:"enabled"`
	Lookback         duration           `toml:"lookback"`
	MinSamples       int                `toml:"min_samples"`
	ZScoreThresholds map[string]float64 `toml:"z_score_thresholds"`
}

// StrategyConfig holds signal generation and sizing parameters.
type StrategyConfig struct {
	Momentum          MomentumConfig      `toml:"momentum"`
	MeanReversion     MeanReversionConfig `toml:"mean_reversion"`
	PositionSizing    map[string]float64  `toml:"position_sizing"`
	MinSignalStrength float64             `toml:"min_signal_strength"`
	MaxPositionSize   float64             `toml:"max_position_size"`
	StopLoss          float64             `toml:"stop_loss"`
}

// RiskConfig holds portfolio-level risk limits.
type RiskConfig struct {
	VolatilityMultipliers    map[string]float64 `toml:"volatility_multipliers"`
	MaxSingleAssetAllocation float64            `toml:"max_single_asset_allocation"`
	MaxMemeAllocation        float64            `toml:"max_meme_allocation"`
}

// ScheduleConfig holds the periodic job intervals used in run mode.
type ScheduleConfig struct {
	Rebalance    duration `toml:"rebalance"`
	Signals      duration `toml:"signals"`
	PriceMonitor duration `toml:"price_monitor"`
	Status       duration `toml:"status"`
	DailyReport  duration `toml:"daily_report"`
	CycleLockTTL duration `toml:"cycle_lock_ttl"`
}

// MarketDataConfig holds price cache and alert parameters.
type MarketDataConfig struct {
	PriceTTL       duration `toml:"price_ttl"`
	AlertThreshold float64  `toml:"alert_threshold"`
}

// PostgresConfig holds PostgreSQL / Supabase connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled         bool     `toml:"enabled"`
	Addr            string   `toml:"addr"`
	Password        string   `toml:"password"`
	DB              int      `toml:"db"`
	PoolSize        int      `toml:"pool_size"`
	MaxRetries      int      `toml:"max_retries"`
	TLSEnabled      bool     `toml:"tls_enabled"`
	StreamMaxLen    int      `toml:"stream_max_len"`
	TradeRateLimit  int      `toml:"trade_rate_limit"`
	TradeRateWindow duration `toml:"trade_rate_window"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	ReportPrefix   string `toml:"report_prefix"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// LogConfig controls log level and the optional rotating log file.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		API: APIConfig{
			URL:        "https://api.sandbox.competitions.recall.network/api",
			Timeout:    duration{30 * time.Second},
			RetryCount: 3,
		},
		Portfolio: PortfolioConfig{
			RebalanceThreshold: 0.05,
			MinTradeAmount:     10,
			MaxSlippage:        0.01,
			QuoteSymbol:        "USDC",
			RebalancePause:     duration{time.Second},
			SignalPause:        duration{2 * time.Second},
		},
		Tokens: TokensConfig{
			Path: "config/tokens.toml",
		},
		Strategy: StrategyConfig{
			Momentum: MomentumConfig{
				Enabled:  true,
				Lookback: duration{24 * time.Hour},
				Thresholds: map[string]float64{
					"default": 0.05,
				},
			},
			MeanReversion: MeanReversionConfig{
				Enabled:    true,
				Lookback:   duration{48 * time.Hour},
				MinSamples: 10,
				ZScoreThresholds: map[string]float64{
					"default": 2.0,
				},
			},
			PositionSizing: map[string]float64{
				"default": 0.10,
			},
			MinSignalStrength: 0.1,
			MaxPositionSize:   0.3,
			StopLoss:          0.05,
		},
		Risk: RiskConfig{
			VolatilityMultipliers:    map[string]float64{},
			MaxSingleAssetAllocation: 0.30,
			MaxMemeAllocation:        0.20,
		},
		Schedule: ScheduleConfig{
			Rebalance:    duration{time.Hour},
			Signals:      duration{30 * time.Minute},
			PriceMonitor: duration{15 * time.Minute},
			Status:       duration{6 * time.Hour},
			DailyReport:  duration{24 * time.Hour},
			CycleLockTTL: duration{10 * time.Minute},
		},
		MarketData: MarketDataConfig{
			PriceTTL:       duration{time.Minute},
			AlertThreshold: 0.05,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        20,
			MaxRetries:      3,
			StreamMaxLen:    10000,
			TradeRateLimit:  30,
			TradeRateWindow: duration{time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "recallbot-reports",
			ForcePathStyle: true,
			ReportPrefix:   "reports",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"rebalance", "trade_failed", "price_alert", "daily_report"},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Mode:      "run",
		ReportDir: "logs",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":       true,
	"status":    true,
	"report":    true,
	"rebalance": true,
	"signals":   true,
}

// validLogLevels enumerates the accepted values for Config.Log.Level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// TargetMap returns the target allocations keyed by symbol.
func (c *Config) TargetMap() map[string]float64 {
	out := make(map[string]float64, len(c.Portfolio.Targets))
	for _, t := range c.Portfolio.Targets {
		out[t.Symbol] += t.Allocation
	}
	return out
}

// minMeanReversionSamples is the smallest window a z-score is computed over.
const minMeanReversionSamples = 10

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, status, report, rebalance, signals)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("unknown log level %q (valid: debug, info, warn, error)", c.Log.Level))
	}

	// API credentials.
	if c.API.URL == "" {
		errs = append(errs, "api: url must not be empty")
	}
	if c.API.Key == "" && c.API.EncryptedKeyPath == "" {
		errs = append(errs, "api: either key or encrypted_key_path must be set")
	}
	if c.API.EncryptedKeyPath != "" && c.API.KeyPassword == "" {
		errs = append(errs, "api: key_password is required when encrypted_key_path is set")
	}

	errs = append(errs, c.validatePortfolio()...)

	if c.Tokens.Path == "" {
		errs = append(errs, "tokens: path must not be empty")
	}

	// Strategy
	if c.Strategy.MaxPositionSize <= 0 || c.Strategy.MaxPositionSize > 1 {
		errs = append(errs, "strategy: max_position_size must be in (0, 1]")
	}
	if c.Strategy.MinSignalStrength < 0 || c.Strategy.MinSignalStrength >= 1 {
		errs = append(errs, "strategy: min_signal_strength must be in [0, 1)")
	}
	if c.Strategy.Momentum.Lookback.Duration <= 0 {
		errs = append(errs, "strategy.momentum: lookback must be > 0")
	}
	if c.Strategy.MeanReversion.Lookback.Duration <= 0 {
		errs = append(errs, "strategy.mean_reversion: lookback must be > 0")
	}
	if c.Strategy.MeanReversion.MinSamples < minMeanReversionSamples {
		errs = append(errs, fmt.Sprintf("strategy.mean_reversion: min_samples must be >= %d", minMeanReversionSamples))
	}
	for k, v := range c.Strategy.Momentum.Thresholds {
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("strategy.momentum: threshold %q must be > 0", k))
		}
	}
	for k, v := range c.Strategy.MeanReversion.ZScoreThresholds {
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("strategy.mean_reversion: z_score_threshold %q must be > 0", k))
		}
	}

	// Risk
	if c.Risk.MaxSingleAssetAllocation <= 0 || c.Risk.MaxSingleAssetAllocation > 1 {
		errs = append(errs, "risk: max_single_asset_allocation must be in (0, 1]")
	}
	if c.Risk.MaxMemeAllocation < 0 || c.Risk.MaxMemeAllocation > 1 {
		errs = append(errs, "risk: max_meme_allocation must be in [0, 1]")
	}
	for k, v := range c.Risk.VolatilityMultipliers {
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("risk: volatility_multiplier %q must be > 0", k))
		}
	}

	// Schedule
	for name, d := range map[string]duration{
		"rebalance":     c.Schedule.Rebalance,
		"signals":       c.Schedule.Signals,
		"price_monitor": c.Schedule.PriceMonitor,
		"status":        c.Schedule.Status,
		"daily_report":  c.Schedule.DailyReport,
	} {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("schedule: %s must be > 0", name))
		}
	}

	if c.MarketData.PriceTTL.Duration <= 0 {
		errs = append(errs, "market_data: price_ttl must be > 0")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// validatePortfolio checks the target allocations and rebalance parameters.
func (c *Config) validatePortfolio() []string {
	var errs []string

	if len(c.Portfolio.Targets) == 0 {
		errs = append(errs, "portfolio: at least one target allocation is required")
	}

	seen := make(map[string]bool, len(c.Portfolio.Targets))
	var sum float64
	for _, t := range c.Portfolio.Targets {
		if t.Symbol == "" {
			errs = append(errs, "portfolio: target symbol must not be empty")
			continue
		}
		key := t.Symbol + "/" + t.Chain
		if seen[key] {
			errs = append(errs, fmt.Sprintf("portfolio: duplicate target %s", t.Symbol))
		}
		seen[key] = true
		if t.Allocation < 0 || t.Allocation > 1 {
			errs = append(errs, fmt.Sprintf("portfolio: target %s allocation %.4f must be in [0, 1]", t.Symbol, t.Allocation))
		}
		if t.Allocation > c.Risk.MaxSingleAssetAllocation && c.Risk.MaxSingleAssetAllocation > 0 {
			errs = append(errs, fmt.Sprintf("portfolio: target %s allocation %.4f exceeds max_single_asset_allocation %.4f",
				t.Symbol, t.Allocation, c.Risk.MaxSingleAssetAllocation))
		}
		sum += t.Allocation
	}
	if len(c.Portfolio.Targets) > 0 && math.Abs(sum-1) > allocationEpsilon {
		errs = append(errs, fmt.Sprintf("portfolio: target allocations sum to %.4f, expected 1.0 ± %.2f", sum, allocationEpsilon))
	}

	if c.Portfolio.RebalanceThreshold <= 0 || c.Portfolio.RebalanceThreshold >= 1 {
		errs = append(errs, "portfolio: rebalance_threshold must be in (0, 1)")
	}
	if c.Portfolio.MinTradeAmount < 0 {
		errs = append(errs, "portfolio: min_trade_amount must be >= 0")
	}
	if c.Portfolio.MaxSlippage < 0 || c.Portfolio.MaxSlippage >= 1 {
		errs = append(errs, "portfolio: max_slippage must be in [0, 1)")
	}
	if c.Portfolio.QuoteSymbol == "" {
		errs = append(errs, "portfolio: quote_symbol must not be empty")
	}
	return errs
}
