package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/recallbot/internal/blob/s3"
	"github.com/alanyoungcy/recallbot/internal/cache/redis"
	"github.com/alanyoungcy/recallbot/internal/catalog"
	"github.com/alanyoungcy/recallbot/internal/config"
	"github.com/alanyoungcy/recallbot/internal/crypto"
	"github.com/alanyoungcy/recallbot/internal/domain"
	"github.com/alanyoungcy/recallbot/internal/executor"
	"github.com/alanyoungcy/recallbot/internal/marketdata"
	"github.com/alanyoungcy/recallbot/internal/notify"
	"github.com/alanyoungcy/recallbot/internal/platform/recall"
	"github.com/alanyoungcy/recallbot/internal/server/ws"
	"github.com/alanyoungcy/recallbot/internal/service"
	"github.com/alanyoungcy/recallbot/internal/store/postgres"
	"github.com/alanyoungcy/recallbot/internal/strategy"
)

// Dependencies bundles everything the modes need. It is built by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	// Account is a fingerprint of the API key, used to scope locks and
	// rate limits.
	Account string

	API     *recall.Client
	Catalog *catalog.Catalog
	Prices  *marketdata.Cache
	Monitor *marketdata.PriceMonitor

	Strategies *strategy.Registry
	Manager    *strategy.Manager
	// Windows is the longest-lived strategy price window, for analysis
	// endpoints; nil when no strategy is enabled.
	Windows *marketdata.Windows
	Executor   *executor.Executor

	Risk      *service.RiskService
	Portfolio *service.PortfolioService
	Signals   *service.SignalService
	Reports   *service.ReportService

	// Optional infrastructure; nil when not configured.
	TradeStore    domain.TradeStore
	SnapshotStore domain.SnapshotStore
	AuditStore    domain.AuditStore
	LockManager   domain.LockManager
	RateLimiter   domain.RateLimiter
	BlobWriter    domain.BlobWriter
	Archiver      *s3blob.TradeArchiver

	// Bus is Redis when configured, otherwise in-process.
	Bus      domain.SignalBus
	Notifier *notify.Notifier
}

// Wire builds all dependencies from cfg. Every returned error leaves nothing
// open.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	apiKey, err := crypto.LoadAPIKey(crypto.KeyConfig{
		APIKey:           cfg.API.Key,
		EncryptedKeyPath: cfg.API.EncryptedKeyPath,
		KeyPassword:      cfg.API.KeyPassword,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: api key: %w", err))
	}

	deps := &Dependencies{Account: crypto.Fingerprint(apiKey)}

	deps.API = recall.New(recall.Config{
		BaseURL:    cfg.API.URL,
		APIKey:     apiKey,
		Timeout:    cfg.API.Timeout.Duration,
		RetryCount: cfg.API.RetryCount,
	}, logger)

	deps.Catalog, err = catalog.Load(cfg.Tokens.Path, catalog.Limits{
		MaxMemeAllocation:        cfg.Risk.MaxMemeAllocation,
		MaxSingleAssetAllocation: cfg.Risk.MaxSingleAssetAllocation,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: token catalog: %w", err))
	}

	deps.Prices = marketdata.NewCache(deps.API, cfg.MarketData.PriceTTL.Duration, logger)
	deps.Monitor = marketdata.NewPriceMonitor(deps.Prices, cfg.MarketData.AlertThreshold, logger)

	// ── Redis ──
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  "recallbot",
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Prices.SetShared(redis.NewPriceCache(rc, cfg.MarketData.PriceTTL.Duration))
		deps.LockManager = redis.NewLockManager(rc)
		deps.RateLimiter = redis.NewRateLimiter(rc, cfg.Redis.TradeRateLimit, cfg.Redis.TradeRateWindow.Duration)
		deps.Bus = redis.NewSignalBus(rc, int64(cfg.Redis.StreamMaxLen))
	} else {
		deps.Bus = ws.NewLocalBus(cfg.Redis.StreamMaxLen)
	}

	// ── PostgreSQL ──
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.TradeStore = postgres.NewTradeStore(pg.Pool())
		deps.SnapshotStore = postgres.NewSnapshotStore(pg.Pool())
		deps.AuditStore = postgres.NewAuditStore(pg.Pool())
	}

	// ── S3 ──
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := sc.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable, uploads may fail",
				slog.String("bucket", sc.Bucket()),
				slog.String("error", err.Error()),
			)
		}
		deps.BlobWriter = s3blob.NewWriter(sc)
		if deps.TradeStore != nil {
			deps.Archiver = s3blob.NewTradeArchiver(deps.BlobWriter, deps.TradeStore, deps.AuditStore, "archive")
		}
	}

	// ── Notifications ──
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	wireTrading(cfg, deps, logger)

	if err := deps.Risk.ValidateTargets(deps.Portfolio.Targets()); err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	return deps, cleanup, nil
}

// wireTrading builds the strategies, executor and services on top of the
// infrastructure in deps.
func wireTrading(cfg *config.Config, deps *Dependencies, logger *slog.Logger) {
	stratCfg := strategyConfig(cfg)
	deps.Strategies = strategy.NewRegistry()
	if cfg.Strategy.Momentum.Enabled {
		m := strategy.NewMomentum(stratCfg, deps.Catalog, deps.Prices, logger)
		deps.Strategies.Register(m)
		deps.Windows = m.Windows()
	}
	if cfg.Strategy.MeanReversion.Enabled {
		mr := strategy.NewMeanReversion(stratCfg, deps.Catalog, deps.Prices, logger)
		deps.Strategies.Register(mr)
		if deps.Windows == nil || mr.Windows().Lookback() > deps.Windows.Lookback() {
			deps.Windows = mr.Windows()
		}
	}
	deps.Manager = strategy.NewManager(deps.Strategies, logger)

	deps.Risk = service.NewRiskService(deps.Catalog, deps.Prices, service.RiskConfig{
		MaxSlippage:     cfg.Portfolio.MaxSlippage,
		MinTradeAmount:  cfg.Portfolio.MinTradeAmount,
		MaxPositionSize: cfg.Strategy.MaxPositionSize,
	}, logger)

	deps.Executor = executor.NewExecutor(deps.API, logger)
	deps.Executor.SetDryRun(cfg.DryRun)
	deps.Executor.SetRiskChecker(deps.Risk, deps.API)
	deps.Executor.SetRecording(deps.TradeStore, deps.AuditStore, deps.Bus)
	if deps.RateLimiter != nil {
		deps.Executor.SetRateLimit(executor.RateLimit{
			Limiter: deps.RateLimiter,
			Key:     "trades:" + deps.Account,
			Limit:   cfg.Redis.TradeRateLimit,
			Window:  cfg.Redis.TradeRateWindow.Duration,
		})
	}

	deps.Portfolio = service.NewPortfolioService(deps.API, deps.Catalog, deps.Prices, deps.Executor, service.PortfolioConfig{
		Targets:            targets(cfg),
		RebalanceThreshold: cfg.Portfolio.RebalanceThreshold,
		MinTradeAmount:     cfg.Portfolio.MinTradeAmount,
		Pause:              cfg.Portfolio.RebalancePause.Duration,
	}, logger)
	if deps.SnapshotStore != nil {
		deps.Portfolio.SetSnapshotStore(deps.SnapshotStore)
	}

	sizing := "momentum"
	if !cfg.Strategy.Momentum.Enabled {
		sizing = "mean_reversion"
	}
	deps.Signals = service.NewSignalService(deps.Manager, deps.Portfolio, deps.Catalog, deps.Prices, deps.Executor, service.SignalConfig{
		MinSignalStrength: cfg.Strategy.MinSignalStrength,
		MinTradeAmount:    cfg.Portfolio.MinTradeAmount,
		QuoteSymbol:       cfg.Portfolio.QuoteSymbol,
		Pause:             cfg.Portfolio.SignalPause.Duration,
		SizingStrategy:    sizing,
	}, logger)
	deps.Signals.SetPositionCapper(deps.Risk)
	deps.Signals.SetBus(deps.Bus)

	deps.Reports = service.NewReportService(deps.API, deps.Portfolio, deps.BlobWriter, service.ReportConfig{
		Dir:        cfg.ReportDir,
		BlobPrefix: cfg.S3.ReportPrefix,
	}, logger)
}

func targets(cfg *config.Config) []service.Target {
	out := make([]service.Target, 0, len(cfg.Portfolio.Targets))
	for _, t := range cfg.Portfolio.Targets {
		out = append(out, service.Target{Symbol: t.Symbol, Chain: t.Chain, Allocation: t.Allocation})
	}
	return out
}

func strategyConfig(cfg *config.Config) strategy.Config {
	return strategy.Config{
		MomentumLookback:        cfg.Strategy.Momentum.Lookback.Duration,
		MomentumThresholds:      cfg.Strategy.Momentum.Thresholds,
		MeanReversionLookback:   cfg.Strategy.MeanReversion.Lookback.Duration,
		MeanReversionMinSamples: cfg.Strategy.MeanReversion.MinSamples,
		ZScoreThresholds:        cfg.Strategy.MeanReversion.ZScoreThresholds,
		PositionSizing:          cfg.Strategy.PositionSizing,
		VolatilityMultipliers:   cfg.Risk.VolatilityMultipliers,
		MaxPositionSize:         cfg.Strategy.MaxPositionSize,
	}
}
