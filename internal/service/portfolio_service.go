// Package service holds the trading cycles: portfolio valuation and
// rebalancing, signal execution, risk checks and reports.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
	"github.com/alanyoungcy/recallbot/internal/marketdata"
)

// Target is one configured allocation. Chain may be empty, in which case the
// symbol is resolved through the catalog.
type Target struct {
	Symbol     string
	Chain      string
	Allocation float64
}

// PortfolioAPI is the read side of the trading API used for valuation.
type PortfolioAPI interface {
	Portfolio(ctx context.Context) (domain.PortfolioValuation, error)
	Balances(ctx context.Context) ([]domain.Balance, error)
}

// AssetCatalog resolves configured symbols to tradable assets.
type AssetCatalog interface {
	Get(key string) (domain.Asset, bool)
	Lookup(symbol, chain string) (domain.Asset, bool)
	Resolve(symbol, chain string) (domain.Asset, bool)
}

// TradeExecutor submits sized orders sequentially.
type TradeExecutor interface {
	Execute(ctx context.Context, orders []domain.TradeOrder, pause time.Duration) ([]domain.TradeRecord, error)
}

// PortfolioConfig holds the rebalancer parameters.
type PortfolioConfig struct {
	Targets            []Target
	RebalanceThreshold float64
	MinTradeAmount     float64
	Pause              time.Duration
}

// RebalanceResult describes one rebalance cycle.
type RebalanceResult struct {
	Intents []domain.TradeIntent
	Records []domain.TradeRecord
	Skipped int
}

// Message summarises the cycle for logs and notifications.
func (r RebalanceResult) Message() string {
	if len(r.Intents) == 0 {
		return "no action needed"
	}
	var executed, failed int
	for _, rec := range r.Records {
		switch rec.Status {
		case domain.TradeStatusExecuted, domain.TradeStatusDryRun:
			executed++
		default:
			failed++
		}
	}
	return fmt.Sprintf("%d trades planned: %d executed, %d failed, %d skipped",
		len(r.Intents), executed, failed, r.Skipped)
}

// PortfolioService values the portfolio against the configured targets and
// rebalances it. It holds no state between calls.
type PortfolioService struct {
	api       PortfolioAPI
	catalog   AssetCatalog
	prices    marketdata.PriceReader
	executor  TradeExecutor
	snapshots domain.SnapshotStore
	cfg       PortfolioConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewPortfolioService creates a PortfolioService with all required
// dependencies.
func NewPortfolioService(
	api PortfolioAPI,
	catalog AssetCatalog,
	prices marketdata.PriceReader,
	executor TradeExecutor,
	cfg PortfolioConfig,
	logger *slog.Logger,
) *PortfolioService {
	return &PortfolioService{
		api:      api,
		catalog:  catalog,
		prices:   prices,
		executor: executor,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "portfolio_service")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetSnapshotStore enables snapshot persistence and snapshot-based
// performance figures.
func (s *PortfolioService) SetSnapshotStore(store domain.SnapshotStore) {
	s.snapshots = store
}

// Targets returns the configured targets.
func (s *PortfolioService) Targets() []Target {
	return append([]Target(nil), s.cfg.Targets...)
}

// apiChain maps the API's chain family names onto catalog chain names.
func apiChain(chain string) string {
	switch strings.ToLower(chain) {
	case "evm", "eth":
		return "ethereum"
	case "svm":
		return "solana"
	default:
		return strings.ToLower(chain)
	}
}

// resolvedTarget pairs a configured target with its catalog asset.
type resolvedTarget struct {
	Target
	asset domain.Asset
	found bool
}

func (s *PortfolioService) resolveTargets() []resolvedTarget {
	out := make([]resolvedTarget, 0, len(s.cfg.Targets))
	for _, t := range s.cfg.Targets {
		a, ok := s.catalog.Resolve(t.Symbol, t.Chain)
		if ok && !a.Enabled {
			ok = false
		}
		if !ok {
			s.logger.Warn("target asset not in catalog",
				slog.String("symbol", t.Symbol),
				slog.String("chain", t.Chain),
			)
		}
		out = append(out, resolvedTarget{Target: t, asset: a, found: ok})
	}
	return out
}

func holdingKey(symbol, chain string) string {
	return strings.ToUpper(symbol) + "/" + chain
}

// Status values the configured targets. The authoritative portfolio
// valuation is used when it reports a positive total; otherwise balances are
// valued individually. It returns domain.ErrPortfolioUnavailable when no
// positive total can be established.
func (s *PortfolioService) Status(ctx context.Context) (domain.PortfolioStatus, error) {
	targets := s.resolveTargets()

	values, source, err := s.valueFromPortfolio(ctx, targets)
	if err != nil || sum(values) <= 0 {
		if err != nil {
			s.logger.WarnContext(ctx, "portfolio valuation failed, falling back to balances",
				slog.String("error", err.Error()),
			)
		}
		values, source, err = s.valueFromBalances(ctx, targets)
		if err != nil {
			return domain.PortfolioStatus{}, fmt.Errorf("portfolio_service: status: %w: %w", domain.ErrPortfolioUnavailable, err)
		}
	}

	total := sum(values)
	if total <= 0 {
		return domain.PortfolioStatus{}, fmt.Errorf("portfolio_service: status: %w", domain.ErrPortfolioUnavailable)
	}

	status := domain.PortfolioStatus{
		TotalValue: total,
		Targets:    make([]domain.PortfolioTarget, 0, len(targets)),
		Source:     source,
		TakenAt:    s.now(),
	}
	for _, t := range targets {
		chain := t.Chain
		if t.found {
			chain = t.asset.Chain
		}
		value := values[holdingKey(t.Symbol, chain)]
		current := value / total
		status.Targets = append(status.Targets, domain.PortfolioTarget{
			Symbol:            t.Symbol,
			Chain:             chain,
			TargetAllocation:  t.Allocation,
			CurrentAllocation: current,
			CurrentValue:      value,
			Drift:             current - t.Allocation,
		})
	}
	return status, nil
}

func sum(values map[string]float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// configured returns the set of holding keys the targets cover.
func configured(targets []resolvedTarget) map[string]bool {
	keys := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t.found {
			keys[holdingKey(t.Symbol, t.asset.Chain)] = true
		}
	}
	return keys
}

func (s *PortfolioService) valueFromPortfolio(ctx context.Context, targets []resolvedTarget) (map[string]float64, string, error) {
	valuation, err := s.api.Portfolio(ctx)
	if err != nil {
		return nil, "", err
	}
	if valuation.TotalValue <= 0 {
		return nil, "portfolio", nil
	}

	keys := configured(targets)
	values := make(map[string]float64)
	for _, tok := range valuation.Tokens {
		key := holdingKey(tok.Symbol, apiChain(tok.Chain))
		if keys[key] {
			values[key] += tok.Value
		}
	}
	return values, "portfolio", nil
}

func (s *PortfolioService) valueFromBalances(ctx context.Context, targets []resolvedTarget) (map[string]float64, string, error) {
	balances, err := s.api.Balances(ctx)
	if err != nil {
		return nil, "", err
	}

	keys := configured(targets)
	values := make(map[string]float64)
	for _, b := range balances {
		chain := apiChain(b.Chain)
		key := holdingKey(b.Symbol, chain)
		if !keys[key] {
			continue
		}
		value := b.USDValue
		if value <= 0 && b.Amount > 0 {
			asset, ok := s.catalog.Lookup(strings.ToUpper(b.Symbol), chain)
			if !ok {
				continue
			}
			price, ok := s.prices.Price(ctx, asset)
			if !ok {
				s.logger.WarnContext(ctx, "no price for balance",
					slog.String("symbol", b.Symbol),
					slog.String("chain", chain),
				)
				continue
			}
			value = b.Amount * price
		}
		values[key] += value
	}
	return values, "balances", nil
}

// ── Rebalancing ──

// imbalance is a target's excess (over) or deficit (under) in USD.
type imbalance struct {
	symbol string
	chain  string
	amount float64
}

// CalculateTrades returns the same-chain swaps that move the portfolio back
// toward its targets.
func (s *PortfolioService) CalculateTrades(ctx context.Context) ([]domain.TradeIntent, error) {
	status, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	return s.tradesFor(ctx, status), nil
}

// tradesFor pairs over-allocated targets with under-allocated ones in
// configuration order. Only targets whose drift strictly exceeds the
// threshold are considered, and both sides are drawn down as trades are
// planned.
func (s *PortfolioService) tradesFor(ctx context.Context, status domain.PortfolioStatus) []domain.TradeIntent {
	var over, under []*imbalance
	for _, t := range status.Targets {
		if math.Abs(t.Drift) <= s.cfg.RebalanceThreshold {
			continue
		}
		diff := t.TargetAllocation*status.TotalValue - t.CurrentValue
		switch {
		case diff > s.cfg.MinTradeAmount:
			under = append(under, &imbalance{symbol: t.Symbol, chain: t.Chain, amount: diff})
		case diff < -s.cfg.MinTradeAmount:
			over = append(over, &imbalance{symbol: t.Symbol, chain: t.Chain, amount: -diff})
		}
	}

	var intents []domain.TradeIntent
	for _, from := range over {
		for _, to := range under {
			if from.amount < s.cfg.MinTradeAmount {
				break
			}
			if to.amount < s.cfg.MinTradeAmount {
				continue
			}
			if from.chain != to.chain {
				s.logger.WarnContext(ctx, "skipping cross-chain rebalance pair",
					slog.String("from", from.symbol),
					slog.String("from_chain", from.chain),
					slog.String("to", to.symbol),
					slog.String("to_chain", to.chain),
				)
				continue
			}
			amount := math.Min(from.amount, to.amount)
			if amount < s.cfg.MinTradeAmount {
				continue
			}
			intents = append(intents, domain.TradeIntent{
				From:      from.symbol,
				To:        to.symbol,
				Chain:     from.chain,
				USDAmount: amount,
			})
			from.amount -= amount
			to.amount -= amount
		}
	}
	return intents
}

// ExecuteRebalance plans and executes one rebalance cycle. Every planned
// trade is attempted; individual failures are logged and recorded in the
// result. An error is returned only when the portfolio could not be valued
// or the cycle was cancelled.
func (s *PortfolioService) ExecuteRebalance(ctx context.Context) (RebalanceResult, error) {
	intents, err := s.CalculateTrades(ctx)
	if err != nil {
		return RebalanceResult{}, err
	}
	result := RebalanceResult{Intents: intents}
	if len(intents) == 0 {
		s.logger.InfoContext(ctx, "portfolio balanced, no action needed")
		return result, nil
	}

	orders := make([]domain.TradeOrder, 0, len(intents))
	for _, in := range intents {
		order, err := s.orderFor(ctx, in)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping rebalance trade",
				slog.String("from", in.From),
				slog.String("to", in.To),
				slog.Float64("usd_amount", in.USDAmount),
				slog.String("error", err.Error()),
			)
			result.Skipped++
			continue
		}
		orders = append(orders, order)
	}

	records, err := s.executor.Execute(ctx, orders, s.cfg.Pause)
	result.Records = records
	s.logger.InfoContext(ctx, "rebalance complete", slog.String("summary", result.Message()))
	if err != nil {
		return result, fmt.Errorf("portfolio_service: execute rebalance: %w", err)
	}
	return result, nil
}

func (s *PortfolioService) orderFor(ctx context.Context, in domain.TradeIntent) (domain.TradeOrder, error) {
	from, ok := s.catalog.Lookup(in.From, in.Chain)
	if !ok {
		return domain.TradeOrder{}, fmt.Errorf("resolve %s on %s: %w", in.From, in.Chain, domain.ErrNotFound)
	}
	to, ok := s.catalog.Lookup(in.To, in.Chain)
	if !ok {
		return domain.TradeOrder{}, fmt.Errorf("resolve %s on %s: %w", in.To, in.Chain, domain.ErrNotFound)
	}
	price, ok := s.prices.Price(ctx, from)
	if !ok {
		return domain.TradeOrder{}, fmt.Errorf("price %s: %w", from.Key, domain.ErrPriceUnavailable)
	}
	return domain.TradeOrder{
		FromSymbol:  from.Symbol,
		ToSymbol:    to.Symbol,
		FromAddress: from.Address,
		ToAddress:   to.Address,
		Chain:       in.Chain,
		Quantity:    in.USDAmount / price,
		USDAmount:   in.USDAmount,
		Price:       price,
		Reason:      fmt.Sprintf("Portfolio rebalancing: %s -> %s", from.Symbol, to.Symbol),
		Source:      domain.TradeSourceRebalance,
		CreatedAt:   s.now(),
	}, nil
}

// ── Snapshots and performance ──

// RecordSnapshot takes a status snapshot and persists it when a snapshot
// store is configured.
func (s *PortfolioService) RecordSnapshot(ctx context.Context) (domain.PortfolioStatus, error) {
	status, err := s.Status(ctx)
	if err != nil {
		return domain.PortfolioStatus{}, err
	}
	if s.snapshots != nil {
		if err := s.snapshots.Insert(ctx, status); err != nil {
			s.logger.WarnContext(ctx, "snapshot insert failed", slog.String("error", err.Error()))
		}
	}
	return status, nil
}

// Performance reports the current value and the returns since the first
// snapshot and since the newest snapshot at least a day old. Returns are
// zero when no such snapshot exists.
func (s *PortfolioService) Performance(ctx context.Context) (domain.Performance, error) {
	status, err := s.Status(ctx)
	if err != nil {
		return domain.Performance{}, err
	}
	perf := domain.Performance{TotalValue: status.TotalValue}
	if s.snapshots == nil {
		return perf, nil
	}

	if first, err := s.snapshots.First(ctx); err == nil {
		perf.TotalReturn, perf.TotalReturnPct = change(first.TotalValue, status.TotalValue)
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "first snapshot lookup failed", slog.String("error", err.Error()))
	}

	if prev, err := s.snapshots.LatestBefore(ctx, s.now().Add(-24*time.Hour)); err == nil {
		perf.DailyReturn, perf.DailyReturnPct = change(prev.TotalValue, status.TotalValue)
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "daily snapshot lookup failed", slog.String("error", err.Error()))
	}
	return perf, nil
}

func change(from, to float64) (abs, pct float64) {
	if from <= 0 {
		return 0, 0
	}
	abs = to - from
	return abs, abs / from * 100
}
