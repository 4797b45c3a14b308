// Package app wires the bot's dependencies and runs the selected mode: the
// long-running scheduler with its optional HTTP API, or a one-shot status,
// report, rebalance or signals cycle.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alanyoungcy/recallbot/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// the cleanup functions run on shutdown in reverse order.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	started time.Time
	closers []func()
}

// New creates an App. Reports printed by the status mode go to stdout.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "app")),
		out:     os.Stdout,
		started: time.Now().UTC(),
	}
}

// Run wires all dependencies and runs the configured mode until it finishes
// or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.Bool("dry_run", a.cfg.DryRun),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	a.logger.InfoContext(ctx, "dependencies ready",
		slog.String("account", deps.Account),
		slog.Any("strategies", deps.Strategies.List()),
		slog.Bool("redis", deps.LockManager != nil),
		slog.Bool("postgres", deps.TradeStore != nil),
		slog.Bool("s3", deps.BlobWriter != nil),
		slog.Bool("notify", deps.Notifier.Enabled()),
	)

	switch strings.ToLower(a.cfg.Mode) {
	case "run":
		return a.RunMode(ctx, deps)
	case "status":
		return a.StatusMode(ctx, deps)
	case "report":
		return a.ReportMode(ctx, deps)
	case "rebalance":
		return a.RebalanceMode(ctx, deps)
	case "signals":
		return a.SignalsMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close releases all resources. Subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
