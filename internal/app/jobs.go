package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
	"github.com/alanyoungcy/recallbot/internal/notify"
	"github.com/alanyoungcy/recallbot/internal/service"
)

type rebalancer interface {
	ExecuteRebalance(ctx context.Context) (service.RebalanceResult, error)
}

type signalRunner interface {
	ExecuteSignals(ctx context.Context) (service.SignalResult, error)
}

type snapshotter interface {
	RecordSnapshot(ctx context.Context) (domain.PortfolioStatus, error)
}

type dailyReporter interface {
	DailyReport(ctx context.Context) string
	WriteDailyReport(ctx context.Context) (string, error)
}

type dayArchiver interface {
	ArchiveDay(ctx context.Context, day time.Time) (int, error)
}

type alertChecker interface {
	Check(ctx context.Context, assets []domain.Asset) []domain.PriceAlert
}

type catalogReloader interface {
	Reload() error
	Summary() string
}

type eventNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// jobs holds the periodic cycle bodies. Optional collaborators may be nil.
type jobs struct {
	portfolio rebalancer
	signals   signalRunner
	snapshots snapshotter
	reports   dailyReporter
	archiver  dayArchiver
	monitor   alertChecker
	catalog   catalogReloader
	assets    func() []domain.Asset
	bus       domain.SignalBus
	notifier  eventNotifier
	logger    *slog.Logger
	now       func() time.Time
}

func newJobs(deps *Dependencies, logger *slog.Logger) *jobs {
	j := &jobs{
		portfolio: deps.Portfolio,
		signals:   deps.Signals,
		snapshots: deps.Portfolio,
		reports:   deps.Reports,
		monitor:   deps.Monitor,
		catalog:   deps.Catalog,
		assets:    deps.Catalog.NonStablecoin,
		bus:       deps.Bus,
		notifier:  deps.Notifier,
		logger:    logger.With(slog.String("component", "jobs")),
		now:       func() time.Time { return time.Now().UTC() },
	}
	if deps.Archiver != nil {
		j.archiver = deps.Archiver
	}
	return j
}

// schedule returns the run-mode job table.
func (j *jobs) schedule(s scheduleIntervals) []Job {
	return []Job{
		{Name: "rebalance", Interval: s.rebalance, Exclusive: true, Run: j.rebalance},
		{Name: "signals", Interval: s.signals, Exclusive: true, Run: j.executeSignals},
		{Name: "price_monitor", Interval: s.priceMonitor, Run: j.priceMonitor},
		{Name: "status", Interval: s.status, Exclusive: true, Run: j.status},
		{Name: "daily_report", Interval: s.dailyReport, Run: j.dailyReport},
	}
}

type scheduleIntervals struct {
	rebalance, signals, priceMonitor, status, dailyReport time.Duration
}

func (j *jobs) rebalance(ctx context.Context) error {
	result, err := j.portfolio.ExecuteRebalance(ctx)
	if len(result.Intents) > 0 {
		j.notify(ctx, notify.EventRebalance, "Portfolio Rebalance", result.Message())
	}
	j.notifyFailures(ctx, result.Records)
	return err
}

func (j *jobs) executeSignals(ctx context.Context) error {
	result, err := j.signals.ExecuteSignals(ctx)
	j.notifyFailures(ctx, result.Records)
	return err
}

func (j *jobs) priceMonitor(ctx context.Context) error {
	alerts := j.monitor.Check(ctx, j.assets())
	if len(alerts) == 0 {
		return nil
	}
	lines := make([]string, 0, len(alerts))
	for _, a := range alerts {
		j.publish(ctx, domain.ChannelAlerts, a)
		lines = append(lines, fmt.Sprintf("%s: %+.2f%% ($%.6g -> $%.6g)",
			a.Symbol, a.Change*100, a.LastPrice, a.CurrentPrice))
	}
	j.notify(ctx, notify.EventPriceAlert, "Price Alert", strings.Join(lines, "\n"))
	return nil
}

// reloadCatalog swaps in the token catalog file's current contents. A bad
// file leaves the loaded catalog untouched.
func (j *jobs) reloadCatalog(ctx context.Context) error {
	if err := j.catalog.Reload(); err != nil {
		return fmt.Errorf("reload catalog: %w", err)
	}
	j.logger.InfoContext(ctx, "token catalog reloaded", slog.String("summary", j.catalog.Summary()))
	return nil
}

func (j *jobs) status(ctx context.Context) error {
	status, err := j.snapshots.RecordSnapshot(ctx)
	if err != nil {
		return err
	}
	j.logger.InfoContext(ctx, "portfolio status",
		slog.Float64("total_value", status.TotalValue),
		slog.String("source", status.Source),
		slog.Int("targets", len(status.Targets)),
	)
	j.publish(ctx, domain.ChannelStatus, status)
	return nil
}

func (j *jobs) dailyReport(ctx context.Context) error {
	path, err := j.reports.WriteDailyReport(ctx)
	if err != nil {
		return err
	}
	j.logger.InfoContext(ctx, "daily report written", slog.String("path", path))
	j.notify(ctx, notify.EventDailyReport, "Daily Report", j.reports.DailyReport(ctx))

	if j.archiver != nil {
		day := j.now().AddDate(0, 0, -1)
		n, err := j.archiver.ArchiveDay(ctx, day)
		if err != nil {
			return fmt.Errorf("archive trades: %w", err)
		}
		j.logger.InfoContext(ctx, "trades archived",
			slog.String("day", day.Format(time.DateOnly)),
			slog.Int("records", n),
		)
	}
	return nil
}

func (j *jobs) notifyFailures(ctx context.Context, records []domain.TradeRecord) {
	for _, rec := range records {
		if rec.Status != domain.TradeStatusFailed {
			continue
		}
		j.notify(ctx, notify.EventTradeFailed, "Trade Failed", fmt.Sprintf("%s -> %s ($%.2f): %s",
			rec.Order.FromSymbol, rec.Order.ToSymbol, rec.Order.USDAmount, rec.Error))
	}
}

func (j *jobs) notify(ctx context.Context, event, title, message string) {
	if j.notifier == nil {
		return
	}
	if err := j.notifier.Notify(ctx, event, title, message); err != nil {
		j.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (j *jobs) publish(ctx context.Context, channel string, v any) {
	if j.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := j.bus.Publish(ctx, channel, payload); err != nil {
		j.logger.WarnContext(ctx, "publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
