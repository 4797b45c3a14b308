package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

var ethTargets = []Target{
	{Symbol: "USDC", Chain: "ethereum", Allocation: 0.4},
	{Symbol: "WETH", Allocation: 0.3},
	{Symbol: "WBTC", Allocation: 0.3},
}

func newPortfolioService(api *fakeAPI, prices fakePrices, exec *fakeExecutor, targets []Target) *PortfolioService {
	return NewPortfolioService(api, testCatalog(), prices, exec, PortfolioConfig{
		Targets:            targets,
		RebalanceThreshold: 0.05,
		MinTradeAmount:     10,
		Pause:              time.Second,
	}, testLogger())
}

func ethPortfolio() *fakeAPI {
	return &fakeAPI{portfolio: domain.PortfolioValuation{
		TotalValue: 2000,
		Tokens: []domain.TokenValue{
			{Symbol: "USDC", Chain: "evm", Value: 500},
			{Symbol: "WETH", Chain: "evm", Value: 300},
			{Symbol: "WBTC", Chain: "evm", Value: 200},
			{Symbol: "USDC", Chain: "svm", Value: 250},
			{Symbol: "PEPE", Chain: "evm", Value: 750},
		},
	}}
}

func TestStatusFromPortfolio(t *testing.T) {
	svc := newPortfolioService(ethPortfolio(), nil, &fakeExecutor{}, ethTargets)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "portfolio", status.Source)
	assert.InDelta(t, 1000, status.TotalValue, 1e-9)
	require.Len(t, status.Targets, 3)

	want := []struct {
		symbol  string
		current float64
		drift   float64
	}{
		{"USDC", 0.5, 0.1},
		{"WETH", 0.3, 0},
		{"WBTC", 0.2, -0.1},
	}
	for i, w := range want {
		got := status.Targets[i]
		assert.Equal(t, w.symbol, got.Symbol)
		assert.Equal(t, "ethereum", got.Chain)
		assert.InDelta(t, w.current, got.CurrentAllocation, 1e-9, w.symbol)
		assert.InDelta(t, w.drift, got.Drift, 1e-9, w.symbol)
	}
}

func TestStatusFallsBackToBalances(t *testing.T) {
	api := &fakeAPI{
		portfolio: domain.PortfolioValuation{TotalValue: 0},
		balances: []domain.Balance{
			{Symbol: "USDC", Chain: "evm", Amount: 600, USDValue: 600},
			{Symbol: "WETH", Chain: "evm", Amount: 0.1},
			{Symbol: "WBTC", Chain: "evm", Amount: 1, USDValue: 100},
			{Symbol: "SOL", Chain: "svm", Amount: 5, USDValue: 800},
		},
	}
	svc := newPortfolioService(api, fakePrices{"WETH": 3000}, &fakeExecutor{}, ethTargets)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "balances", status.Source)
	assert.InDelta(t, 1000, status.TotalValue, 1e-9)
	weth, ok := status.Target("WETH")
	require.True(t, ok)
	assert.InDelta(t, 300, weth.CurrentValue, 1e-9)
}

func TestStatusPortfolioErrorFallsBack(t *testing.T) {
	api := &fakeAPI{
		portfolioErr: errUpstream,
		balances:     []domain.Balance{{Symbol: "USDC", Chain: "evm", Amount: 100, USDValue: 100}},
	}
	svc := newPortfolioService(api, nil, &fakeExecutor{}, ethTargets)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100, status.TotalValue, 1e-9)
}

func TestStatusUnavailable(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeAPI
	}{
		{"empty", &fakeAPI{}},
		{"balances fail", &fakeAPI{balancesErr: errUpstream}},
		{"balance without price", &fakeAPI{balances: []domain.Balance{{Symbol: "WETH", Chain: "evm", Amount: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newPortfolioService(tt.api, fakePrices{}, &fakeExecutor{}, ethTargets)
			_, err := svc.Status(context.Background())
			require.ErrorIs(t, err, domain.ErrPortfolioUnavailable)
		})
	}
}

func TestCalculateTrades(t *testing.T) {
	svc := newPortfolioService(ethPortfolio(), nil, &fakeExecutor{}, ethTargets)

	intents, err := svc.CalculateTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "USDC", intents[0].From)
	assert.Equal(t, "WBTC", intents[0].To)
	assert.Equal(t, "ethereum", intents[0].Chain)
	assert.InDelta(t, 100, intents[0].USDAmount, 1e-9)
}

func statusOf(total float64, rows ...domain.PortfolioTarget) domain.PortfolioStatus {
	for i := range rows {
		rows[i].CurrentAllocation = rows[i].CurrentValue / total
		rows[i].Drift = rows[i].CurrentAllocation - rows[i].TargetAllocation
	}
	return domain.PortfolioStatus{TotalValue: total, Targets: rows}
}

func TestTradesForDrawsDownBothSides(t *testing.T) {
	svc := newPortfolioService(&fakeAPI{}, nil, &fakeExecutor{}, nil)
	status := statusOf(1000,
		domain.PortfolioTarget{Symbol: "A", Chain: "ethereum", TargetAllocation: 0.25, CurrentValue: 400},
		domain.PortfolioTarget{Symbol: "B", Chain: "ethereum", TargetAllocation: 0.25, CurrentValue: 350},
		domain.PortfolioTarget{Symbol: "C", Chain: "ethereum", TargetAllocation: 0.25, CurrentValue: 150},
		domain.PortfolioTarget{Symbol: "D", Chain: "ethereum", TargetAllocation: 0.25, CurrentValue: 100},
	)

	intents := svc.tradesFor(context.Background(), status)
	require.Len(t, intents, 3)
	assert.Equal(t, domain.TradeIntent{From: "A", To: "C", Chain: "ethereum", USDAmount: 100}, intents[0])
	assert.Equal(t, "A", intents[1].From)
	assert.Equal(t, "D", intents[1].To)
	assert.InDelta(t, 50, intents[1].USDAmount, 1e-9)
	assert.Equal(t, "B", intents[2].From)
	assert.Equal(t, "D", intents[2].To)
	assert.InDelta(t, 100, intents[2].USDAmount, 1e-9)
}

func TestTradesForDriftAtThresholdIsIgnored(t *testing.T) {
	svc := newPortfolioService(&fakeAPI{}, nil, &fakeExecutor{}, nil)
	status := domain.PortfolioStatus{
		TotalValue: 1000,
		Targets: []domain.PortfolioTarget{
			{Symbol: "A", Chain: "ethereum", TargetAllocation: 0.5, CurrentValue: 550, CurrentAllocation: 0.55, Drift: 0.05},
			{Symbol: "B", Chain: "ethereum", TargetAllocation: 0.5, CurrentValue: 450, CurrentAllocation: 0.45, Drift: -0.05},
		},
	}
	assert.Empty(t, svc.tradesFor(context.Background(), status))
}

func TestTradesForSkipsCrossChain(t *testing.T) {
	svc := newPortfolioService(&fakeAPI{}, nil, &fakeExecutor{}, nil)
	status := statusOf(1000,
		domain.PortfolioTarget{Symbol: "WETH", Chain: "ethereum", TargetAllocation: 0.5, CurrentValue: 800},
		domain.PortfolioTarget{Symbol: "SOL", Chain: "solana", TargetAllocation: 0.5, CurrentValue: 200},
	)
	assert.Empty(t, svc.tradesFor(context.Background(), status))
}

func TestTradesForBelowMinimum(t *testing.T) {
	svc := newPortfolioService(&fakeAPI{}, nil, &fakeExecutor{}, nil)
	status := statusOf(100,
		domain.PortfolioTarget{Symbol: "A", Chain: "ethereum", TargetAllocation: 0.5, CurrentValue: 58},
		domain.PortfolioTarget{Symbol: "B", Chain: "ethereum", TargetAllocation: 0.5, CurrentValue: 42},
	)
	assert.Empty(t, svc.tradesFor(context.Background(), status))
}

func TestExecuteRebalance(t *testing.T) {
	exec := &fakeExecutor{}
	svc := newPortfolioService(ethPortfolio(), fakePrices{"USDC_ethereum": 1}, exec, ethTargets)

	res, err := svc.ExecuteRebalance(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Intents, 1)
	require.Len(t, exec.orders, 1)
	assert.Equal(t, time.Second, exec.pause)

	o := exec.orders[0]
	assert.Equal(t, "USDC", o.FromSymbol)
	assert.Equal(t, "WBTC", o.ToSymbol)
	assert.Equal(t, "0xUSDC", o.FromAddress)
	assert.Equal(t, "0xWBTC", o.ToAddress)
	assert.InDelta(t, 100, o.Quantity, 1e-9)
	assert.Equal(t, domain.TradeSourceRebalance, o.Source)
	assert.Contains(t, res.Message(), "1 executed")
}

func TestExecuteRebalanceSkipsMissingPrice(t *testing.T) {
	exec := &fakeExecutor{}
	svc := newPortfolioService(ethPortfolio(), fakePrices{}, exec, ethTargets)

	res, err := svc.ExecuteRebalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, exec.orders)
}

func TestExecuteRebalanceNoActionNeeded(t *testing.T) {
	api := &fakeAPI{portfolio: domain.PortfolioValuation{
		TotalValue: 1000,
		Tokens: []domain.TokenValue{
			{Symbol: "USDC", Chain: "evm", Value: 400},
			{Symbol: "WETH", Chain: "evm", Value: 310},
			{Symbol: "WBTC", Chain: "evm", Value: 290},
		},
	}}
	exec := &fakeExecutor{}
	svc := newPortfolioService(api, nil, exec, ethTargets)

	res, err := svc.ExecuteRebalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "no action needed", res.Message())
	assert.Zero(t, exec.calls)
}

func TestExecuteRebalanceStatusFailure(t *testing.T) {
	svc := newPortfolioService(&fakeAPI{}, nil, &fakeExecutor{}, ethTargets)
	_, err := svc.ExecuteRebalance(context.Background())
	require.ErrorIs(t, err, domain.ErrPortfolioUnavailable)
}

func TestPerformance(t *testing.T) {
	svc := newPortfolioService(ethPortfolio(), nil, &fakeExecutor{}, ethTargets)

	perf, err := svc.Performance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1000, perf.TotalValue, 1e-9)
	assert.Zero(t, perf.TotalReturnPct)

	snaps := &fakeSnapshots{
		first: &domain.PortfolioStatus{TotalValue: 800},
		daily: &domain.PortfolioStatus{TotalValue: 950},
	}
	svc.SetSnapshotStore(snaps)
	perf, err = svc.Performance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 200, perf.TotalReturn, 1e-9)
	assert.InDelta(t, 25, perf.TotalReturnPct, 1e-9)
	assert.InDelta(t, 50, perf.DailyReturn, 1e-9)

	_, err = svc.RecordSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps.stored, 1)
	assert.InDelta(t, 1000, snaps.stored[0].TotalValue, 1e-9)
}

func TestReport(t *testing.T) {
	svc := newPortfolioService(ethPortfolio(), nil, &fakeExecutor{}, ethTargets)

	report, err := svc.Report(context.Background())
	require.NoError(t, err)
	lines := strings.Split(report, "\n")
	assert.Equal(t, strings.Repeat("=", 50), lines[0])
	assert.Equal(t, "PORTFOLIO REPORT", lines[1])
	assert.Contains(t, report, "Total Value: $1,000.00")
	assert.Contains(t, report, "USDC  : Target 40.0% | Current 50.0% | Drift +10.0% | Value $500.00")
	assert.Contains(t, report, "WBTC  : Target 30.0% | Current 20.0% | Drift -10.0% | Value $200.00")
	assert.Contains(t, report, "REBALANCE RECOMMENDATIONS:")
	assert.Contains(t, report, "Trade $100.00: USDC -> WBTC")
}

func TestFormatUSD(t *testing.T) {
	tests := map[float64]string{
		0:          "$0.00",
		12.345:     "$12.35",
		1234.5:     "$1,234.50",
		1234567.89: "$1,234,567.89",
		-2500:      "-$2,500.00",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatUSD(in))
	}
}
