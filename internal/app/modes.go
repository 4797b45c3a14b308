package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/recallbot/internal/domain"
	"github.com/alanyoungcy/recallbot/internal/marketdata"
	"github.com/alanyoungcy/recallbot/internal/notify"
	"github.com/alanyoungcy/recallbot/internal/server"
	"github.com/alanyoungcy/recallbot/internal/server/handler"
	"github.com/alanyoungcy/recallbot/internal/server/ws"
)

func (a *App) scheduler(deps *Dependencies, jobList []Job) *Scheduler {
	return NewScheduler(jobList, deps.LockManager, "cycle:"+deps.Account,
		a.cfg.Schedule.CycleLockTTL.Duration, a.logger)
}

// RunMode checks the API, records an initial status snapshot and then runs
// the scheduler (and the HTTP server when enabled) until ctx is cancelled.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	if !deps.API.Health(ctx) {
		a.logger.WarnContext(ctx, "trading API health check failed, continuing")
	}
	if err := deps.API.ValidateAPIKey(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.logger.InfoContext(ctx, "token catalog loaded", slog.String("summary", deps.Catalog.Summary()))

	j := newJobs(deps, a.logger)
	sched := a.scheduler(deps, j.schedule(scheduleIntervals{
		rebalance:    a.cfg.Schedule.Rebalance.Duration,
		signals:      a.cfg.Schedule.Signals.Duration,
		priceMonitor: a.cfg.Schedule.PriceMonitor.Duration,
		status:       a.cfg.Schedule.Status.Duration,
		dailyReport:  a.cfg.Schedule.DailyReport.Duration,
	}))

	if err := sched.RunOnce(ctx, Job{Name: "status", Exclusive: true, Run: j.status}); err != nil {
		a.logger.WarnContext(ctx, "initial status failed", slog.String("error", err.Error()))
	}
	j.notify(ctx, notify.EventStartup, "Bot Started",
		fmt.Sprintf("mode=run dry_run=%t strategies=%v", a.cfg.DryRun, deps.Strategies.List()))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error {
		return reloadOnSignal(ctx, hup, func(ctx context.Context) error {
			return sched.RunOnce(ctx, Job{Name: "catalog_reload", Exclusive: true, Run: j.reloadCatalog})
		}, a.logger)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Bus, ws.Status{
		Mode:       a.cfg.Mode,
		DryRun:     a.cfg.DryRun,
		Strategies: deps.Strategies.List(),
		StartedAt:  a.started,
	}, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.API),
		Status: handler.NewStatusHandler(handler.StatusInfo{
			Mode:       a.cfg.Mode,
			DryRun:     a.cfg.DryRun,
			Strategies: deps.Strategies.List(),
			StartedAt:  a.started,
		}, deps.API, a.logger),
		Portfolio: handler.NewPortfolioHandler(deps.Portfolio, a.logger),
		Signals:   handler.NewSignalHandler(deps.Signals),
		Tokens:    handler.NewTokenHandler(deps.Catalog, priceWindows(deps.Windows)),
		Trades:    handler.NewTradeHandler(deps.TradeStore, deps.API, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// reloadOnSignal runs reload every time sig fires until ctx is done. Reload
// failures are logged and the loop keeps waiting.
func reloadOnSignal(ctx context.Context, sig <-chan os.Signal, reload func(context.Context) error, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sig:
			if err := reload(ctx); err != nil {
				logger.WarnContext(ctx, "catalog reload failed", slog.String("error", err.Error()))
			}
		}
	}
}

// priceWindows keeps a nil *marketdata.Windows from becoming a non-nil
// interface.
func priceWindows(w *marketdata.Windows) handler.PriceWindows {
	if w == nil {
		return nil
	}
	return w
}

// StatusMode prints the portfolio report.
func (a *App) StatusMode(ctx context.Context, deps *Dependencies) error {
	report, err := deps.Portfolio.Report(ctx)
	if err != nil {
		return fmt.Errorf("app: status: %w", err)
	}
	_, err = fmt.Fprintln(a.out, report)
	return err
}

// ReportMode writes the daily report.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies) error {
	path, err := deps.Reports.WriteDailyReport(ctx)
	if err != nil {
		return fmt.Errorf("app: report: %w", err)
	}
	a.logger.InfoContext(ctx, "daily report written", slog.String("path", path))
	return nil
}

// RebalanceMode runs one rebalance cycle under the cycle lock.
func (a *App) RebalanceMode(ctx context.Context, deps *Dependencies) error {
	j := newJobs(deps, a.logger)
	return a.oneShot(ctx, deps, Job{Name: "rebalance", Exclusive: true, Run: j.rebalance})
}

// SignalsMode runs one signal cycle under the cycle lock.
func (a *App) SignalsMode(ctx context.Context, deps *Dependencies) error {
	j := newJobs(deps, a.logger)
	return a.oneShot(ctx, deps, Job{Name: "signals", Exclusive: true, Run: j.executeSignals})
}

func (a *App) oneShot(ctx context.Context, deps *Dependencies, job Job) error {
	err := a.scheduler(deps, nil).RunOnce(ctx, job)
	if errors.Is(err, domain.ErrLockHeld) {
		return fmt.Errorf("app: another cycle is running: %w", err)
	}
	return err
}
