package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

type fakePerf struct {
	perf domain.Performance
	err  error
}

func (f fakePerf) Performance(context.Context) (domain.Performance, error) { return f.perf, f.err }

type fakeBlob struct {
	puts map[string]string
}

func (f *fakeBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	if f.puts == nil {
		f.puts = map[string]string{}
	}
	f.puts[path] = buf.String()
	return nil
}

func (f *fakeBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return f.Put(ctx, path, data, "")
}

func trade(id, from, to string, at time.Time) domain.TradeHistoryEntry {
	return domain.TradeHistoryEntry{ID: id, FromSymbol: from, ToSymbol: to, Timestamp: at}
}

func TestDailyReport(t *testing.T) {
	at := time.Date(2025, 7, 3, 10, 0, 0, 0, time.UTC)
	var history []domain.TradeHistoryEntry
	for i := 0; i < 7; i++ {
		history = append(history, trade("t", "USDC", "WETH", at.Add(time.Duration(i)*time.Hour)))
	}
	api := &fakeAPI{
		competition: domain.CompetitionStatus{Status: "active"},
		history:     history,
		leaderboard: []domain.LeaderboardEntry{
			{Rank: 1, AgentName: "alpha", PortfolioUSD: 12000},
			{Rank: 2, AgentName: "recallbot", PortfolioUSD: 3500},
			{Rank: 3, AgentName: "gamma", PortfolioUSD: 3000},
			{Rank: 4, AgentName: "delta", PortfolioUSD: 2000},
		},
	}
	svc := NewReportService(api, fakePerf{perf: domain.Performance{TotalValue: 3500, TotalReturnPct: 11.11, DailyReturnPct: 0.72}}, nil, ReportConfig{}, testLogger())
	svc.now = func() time.Time { return time.Date(2025, 7, 4, 9, 30, 0, 0, time.UTC) }

	report := svc.DailyReport(context.Background())
	lines := strings.Split(report, "\n")
	assert.Equal(t, strings.Repeat("=", 60), lines[0])
	assert.Equal(t, "DAILY REPORT - 2025-07-04 09:30:00", lines[1])
	assert.Contains(t, report, "Total Value: $3,500.00")
	assert.Contains(t, report, "Total Return: 11.11%")
	assert.Contains(t, report, "Status: active")
	assert.Contains(t, report, "1. alpha $12,000.00")
	assert.Contains(t, report, "3. gamma $3,000.00")
	assert.NotContains(t, report, "delta")
	assert.Contains(t, report, "RECENT TRADES (5):")
	assert.Contains(t, report, "- 2025-07-03T16:00:00Z: USDC -> WETH")
	assert.NotContains(t, report, "2025-07-03T11:00:00Z")
}

func TestDailyReportFallsBackToTrades(t *testing.T) {
	at := time.Date(2025, 7, 3, 10, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		competitionErr: errUpstream,
		historyErr:     errUpstream,
		trades:         []domain.TradeHistoryEntry{{FromToken: "0xA", ToToken: "0xB", Timestamp: at}},
	}
	svc := NewReportService(api, fakePerf{err: domain.ErrPortfolioUnavailable}, nil, ReportConfig{}, testLogger())

	report := svc.DailyReport(context.Background())
	assert.Contains(t, report, "Performance unavailable")
	assert.Contains(t, report, "Status: Unknown")
	assert.Contains(t, report, "RECENT TRADES (1):")
	assert.Contains(t, report, "0xA -> 0xB")
}

func TestWriteDailyReport(t *testing.T) {
	dir := t.TempDir()
	blob := &fakeBlob{}
	svc := NewReportService(&fakeAPI{}, fakePerf{}, blob, ReportConfig{Dir: dir, BlobPrefix: "reports"}, testLogger())
	svc.now = func() time.Time { return time.Date(2025, 7, 4, 9, 30, 0, 0, time.UTC) }

	file, err := svc.WriteDailyReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "daily_report_20250704.txt"), file)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DAILY REPORT")
	assert.Equal(t, string(data), blob.puts["reports/2025/07/04/daily_report.txt"])
}
