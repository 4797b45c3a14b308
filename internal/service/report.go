package service

import (
	"context"
	"fmt"
	"strings"
)

// Report renders the portfolio report: performance, current allocations and
// rebalance recommendations.
func (s *PortfolioService) Report(ctx context.Context) (string, error) {
	status, err := s.Status(ctx)
	if err != nil {
		return "", err
	}
	perf, err := s.Performance(ctx)
	if err != nil {
		return "", err
	}
	trades := s.tradesFor(ctx, status)

	rule := strings.Repeat("=", 50)
	var b strings.Builder
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "PORTFOLIO REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Total Value: %s\n", formatUSD(perf.TotalValue))
	fmt.Fprintf(&b, "Total Return: %.2f%%\n", perf.TotalReturnPct)
	fmt.Fprintf(&b, "Daily Return: %.2f%%\n", perf.DailyReturnPct)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "CURRENT ALLOCATIONS:")
	fmt.Fprintln(&b, strings.Repeat("-", 30))
	for _, t := range status.Targets {
		fmt.Fprintf(&b, "%-6s: Target %s | Current %s | Drift %s | Value %s\n",
			t.Symbol,
			formatPct(t.TargetAllocation),
			formatPct(t.CurrentAllocation),
			formatSignedPct(t.Drift),
			formatUSD(t.CurrentValue),
		)
	}

	fmt.Fprintln(&b)
	if len(trades) == 0 {
		fmt.Fprintln(&b, "No rebalancing needed.")
	} else {
		fmt.Fprintln(&b, "REBALANCE RECOMMENDATIONS:")
		fmt.Fprintln(&b, strings.Repeat("-", 30))
		for _, tr := range trades {
			fmt.Fprintf(&b, "Trade %s: %s -> %s\n", formatUSD(tr.USDAmount), tr.From, tr.To)
		}
	}
	b.WriteString(rule)
	return b.String(), nil
}
