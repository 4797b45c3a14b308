package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/recallbot/internal/catalog"
	"github.com/alanyoungcy/recallbot/internal/domain"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testCatalog() *catalog.Catalog {
	assets := []domain.Asset{
		{Symbol: "USDC", Address: "0xUSDC", Chain: "ethereum", Category: domain.CategoryStablecoin, Enabled: true},
		{Symbol: "WETH", Address: "0xWETH", Chain: "ethereum", Category: domain.CategoryMajor, Enabled: true},
		{Symbol: "WBTC", Address: "0xWBTC", Chain: "ethereum", Category: domain.CategoryMajor, Enabled: true},
		{Symbol: "SHIB", Address: "0xSHIB", Chain: "ethereum", Category: domain.CategoryMeme, Enabled: false},
		{Symbol: "USDC", Address: "usdc-sol", Chain: "solana", Category: domain.CategoryStablecoin, Enabled: true},
		{Symbol: "SOL", Address: "sol-mint", Chain: "solana", Category: domain.CategoryMajor, Enabled: true},
		{Symbol: "BONK", Address: "bonk-mint", Chain: "solana", Category: domain.CategoryMeme, Enabled: true},
	}
	return catalog.New(assets, catalog.Limits{MaxMemeAllocation: 0.2, MaxSingleAssetAllocation: 0.5}, testLogger())
}

type fakeAPI struct {
	portfolio    domain.PortfolioValuation
	portfolioErr error
	balances     []domain.Balance
	balancesErr  error

	competition    domain.CompetitionStatus
	competitionErr error
	history        []domain.TradeHistoryEntry
	historyErr     error
	trades         []domain.TradeHistoryEntry
	tradesErr      error
	leaderboard    []domain.LeaderboardEntry
}

func (f *fakeAPI) Portfolio(context.Context) (domain.PortfolioValuation, error) {
	return f.portfolio, f.portfolioErr
}

func (f *fakeAPI) Balances(context.Context) ([]domain.Balance, error) {
	return f.balances, f.balancesErr
}

func (f *fakeAPI) CompetitionStatus(context.Context) (domain.CompetitionStatus, error) {
	return f.competition, f.competitionErr
}

func (f *fakeAPI) Leaderboard(context.Context) ([]domain.LeaderboardEntry, error) {
	return f.leaderboard, nil
}

func (f *fakeAPI) History(context.Context) ([]domain.TradeHistoryEntry, error) {
	return f.history, f.historyErr
}

func (f *fakeAPI) Trades(_ context.Context, limit int) ([]domain.TradeHistoryEntry, error) {
	if f.tradesErr != nil {
		return nil, f.tradesErr
	}
	if len(f.trades) > limit {
		return f.trades[:limit], nil
	}
	return f.trades, nil
}

// fakePrices is keyed by asset key.
type fakePrices map[string]float64

func (f fakePrices) Price(_ context.Context, a domain.Asset) (float64, bool) {
	p, ok := f[a.Key]
	return p, ok && p > 0
}

type fakeExecutor struct {
	orders []domain.TradeOrder
	pause  time.Duration
	calls  int
}

func (f *fakeExecutor) Execute(_ context.Context, orders []domain.TradeOrder, pause time.Duration) ([]domain.TradeRecord, error) {
	f.calls++
	f.orders = append(f.orders, orders...)
	f.pause = pause
	recs := make([]domain.TradeRecord, 0, len(orders))
	for _, o := range orders {
		recs = append(recs, domain.TradeRecord{Order: o, Status: domain.TradeStatusExecuted})
	}
	return recs, nil
}

type fakeSnapshots struct {
	first  *domain.PortfolioStatus
	daily  *domain.PortfolioStatus
	stored []domain.PortfolioStatus
}

func (f *fakeSnapshots) Insert(_ context.Context, s domain.PortfolioStatus) error {
	f.stored = append(f.stored, s)
	return nil
}

func (f *fakeSnapshots) First(context.Context) (domain.PortfolioStatus, error) {
	if f.first == nil {
		return domain.PortfolioStatus{}, domain.ErrNotFound
	}
	return *f.first, nil
}

func (f *fakeSnapshots) LatestBefore(context.Context, time.Time) (domain.PortfolioStatus, error) {
	if f.daily == nil {
		return domain.PortfolioStatus{}, domain.ErrNotFound
	}
	return *f.daily, nil
}

var errUpstream = errors.New("upstream down")
