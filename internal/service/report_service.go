package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// ReportAPI is the part of the trading API the daily report reads.
type ReportAPI interface {
	CompetitionStatus(ctx context.Context) (domain.CompetitionStatus, error)
	History(ctx context.Context) ([]domain.TradeHistoryEntry, error)
	Trades(ctx context.Context, limit int) ([]domain.TradeHistoryEntry, error)
	Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

// PerformanceSource reports portfolio performance.
type PerformanceSource interface {
	Performance(ctx context.Context) (domain.Performance, error)
}

// ReportConfig controls where reports are written.
type ReportConfig struct {
	Dir        string // local directory for daily_report_YYYYMMDD.txt
	BlobPrefix string // object key prefix for archived reports
}

const (
	recentTradeLimit = 5
	leaderboardLimit = 3
)

// ReportService produces the daily report and archives it.
type ReportService struct {
	api    ReportAPI
	perf   PerformanceSource
	blob   domain.BlobWriter
	cfg    ReportConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewReportService creates a ReportService. blob may be nil.
func NewReportService(
	api ReportAPI,
	perf PerformanceSource,
	blob domain.BlobWriter,
	cfg ReportConfig,
	logger *slog.Logger,
) *ReportService {
	if cfg.Dir == "" {
		cfg.Dir = "logs"
	}
	if cfg.BlobPrefix == "" {
		cfg.BlobPrefix = "reports"
	}
	return &ReportService{
		api:    api,
		perf:   perf,
		blob:   blob,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "report_service")),
		now:    time.Now,
	}
}

// DailyReport renders the daily report. Sections whose data cannot be
// fetched are reported as unavailable rather than failing the report.
func (s *ReportService) DailyReport(ctx context.Context) string {
	now := s.now()
	rule := strings.Repeat("=", 60)

	var b strings.Builder
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "DAILY REPORT - %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "PORTFOLIO PERFORMANCE:")
	if perf, err := s.perf.Performance(ctx); err != nil {
		s.logger.WarnContext(ctx, "performance unavailable", slog.String("error", err.Error()))
		fmt.Fprintln(&b, "Performance unavailable")
	} else {
		fmt.Fprintf(&b, "Total Value: %s\n", formatUSD(perf.TotalValue))
		fmt.Fprintf(&b, "Total Return: %.2f%%\n", perf.TotalReturnPct)
		fmt.Fprintf(&b, "Daily Return: %.2f%%\n", perf.DailyReturnPct)
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "COMPETITION STATUS:")
	status := "Unknown"
	if cs, err := s.api.CompetitionStatus(ctx); err != nil {
		s.logger.WarnContext(ctx, "competition status unavailable", slog.String("error", err.Error()))
	} else if cs.Status != "" {
		status = cs.Status
	}
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintln(&b)

	if board, err := s.api.Leaderboard(ctx); err != nil {
		s.logger.DebugContext(ctx, "leaderboard unavailable", slog.String("error", err.Error()))
	} else if len(board) > 0 {
		if len(board) > leaderboardLimit {
			board = board[:leaderboardLimit]
		}
		fmt.Fprintln(&b, "LEADERBOARD:")
		for _, e := range board {
			fmt.Fprintf(&b, "%d. %s %s\n", e.Rank, e.AgentName, formatUSD(e.PortfolioUSD))
		}
		fmt.Fprintln(&b)
	}

	trades := s.recentTrades(ctx)
	fmt.Fprintf(&b, "RECENT TRADES (%d):\n", len(trades))
	for _, t := range trades {
		fmt.Fprintf(&b, "- %s: %s -> %s\n", t.Timestamp.UTC().Format(time.RFC3339), tokenLabel(t.FromSymbol, t.FromToken), tokenLabel(t.ToSymbol, t.ToToken))
	}
	b.WriteString(rule)
	return b.String()
}

func tokenLabel(symbol, address string) string {
	if symbol != "" {
		return symbol
	}
	return address
}

// recentTrades returns the last few trades from the account history,
// falling back to the trades endpoint.
func (s *ReportService) recentTrades(ctx context.Context) []domain.TradeHistoryEntry {
	history, err := s.api.History(ctx)
	if err != nil || len(history) == 0 {
		if err != nil {
			s.logger.DebugContext(ctx, "history unavailable, using trades", slog.String("error", err.Error()))
		}
		history, err = s.api.Trades(ctx, recentTradeLimit)
		if err != nil {
			s.logger.WarnContext(ctx, "trade history unavailable", slog.String("error", err.Error()))
			return nil
		}
	}
	if len(history) > recentTradeLimit {
		history = history[len(history)-recentTradeLimit:]
	}
	return history
}

// WriteDailyReport renders the daily report, writes it to the report
// directory and archives it to object storage when configured. It returns
// the local file path.
func (s *ReportService) WriteDailyReport(ctx context.Context) (string, error) {
	report := s.DailyReport(ctx)
	now := s.now()

	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("report_service: create dir: %w", err)
	}
	file := filepath.Join(s.cfg.Dir, "daily_report_"+now.Format("20060102")+".txt")
	if err := os.WriteFile(file, []byte(report), 0o644); err != nil {
		return "", fmt.Errorf("report_service: write %s: %w", file, err)
	}
	s.logger.InfoContext(ctx, "daily report written", slog.String("path", file))

	if s.blob != nil {
		key := path.Join(s.cfg.BlobPrefix, now.Format("2006/01/02"), "daily_report.txt")
		if err := s.blob.Put(ctx, key, bytes.NewReader([]byte(report)), "text/plain; charset=utf-8"); err != nil {
			return file, fmt.Errorf("report_service: archive %s: %w", key, err)
		}
		s.logger.InfoContext(ctx, "daily report archived", slog.String("key", key))
	}
	return file, nil
}
