package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/recallbot/internal/domain"
	"github.com/alanyoungcy/recallbot/internal/marketdata"
)

// RiskConfig holds the tunable parameters for risk checks.
type RiskConfig struct {
	MaxSlippage         float64 // fraction, e.g. 0.01
	MinTradeAmount      float64 // USD
	MaxPositionSize     float64 // fraction of capital
	AllocationTolerance float64 // allowed deviation of the target sum from 1
}

// AllocationValidator checks allocations against catalog caps.
type AllocationValidator interface {
	Resolve(symbol, chain string) (domain.Asset, bool)
	Lookup(symbol, chain string) (domain.Asset, bool)
	ValidateAllocation(allocations map[string]float64) error
}

// RiskService validates targets and checks orders before they are
// submitted.
type RiskService struct {
	catalog AllocationValidator
	prices  marketdata.PriceReader
	cfg     RiskConfig
	logger  *slog.Logger
}

// NewRiskService creates a RiskService with all required dependencies.
func NewRiskService(
	catalog AllocationValidator,
	prices marketdata.PriceReader,
	cfg RiskConfig,
	logger *slog.Logger,
) *RiskService {
	if cfg.AllocationTolerance <= 0 {
		cfg.AllocationTolerance = 0.01
	}
	return &RiskService{
		catalog: catalog,
		prices:  prices,
		cfg:     cfg,
		logger:  logger,
	}
}

// ValidateTargets checks that the allocations sum to one within tolerance,
// that each lies in [0, 1], that every symbol is an enabled catalog asset
// and that the catalog's single-asset and meme caps hold. All problems are
// reported together.
func (s *RiskService) ValidateTargets(targets []Target) error {
	var (
		total float64
		errs  []error
	)
	allocations := make(map[string]float64, len(targets))
	for _, t := range targets {
		total += t.Allocation
		if t.Allocation < 0 || t.Allocation > 1 {
			errs = append(errs, fmt.Errorf("%s allocation %.4f outside [0, 1]", t.Symbol, t.Allocation))
		}
		a, ok := s.catalog.Resolve(t.Symbol, t.Chain)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("%s is not in the token catalog", t.Symbol))
		case !a.Enabled:
			errs = append(errs, fmt.Errorf("%s on %s is disabled in the token catalog", t.Symbol, a.Chain))
		}
		allocations[t.Symbol] += t.Allocation
	}
	if math.Abs(total-1) > s.cfg.AllocationTolerance {
		errs = append(errs, fmt.Errorf("allocations sum to %.4f, want 1.0", total))
	}
	if err := s.catalog.ValidateAllocation(allocations); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("risk_service: %w: %w", domain.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// CapPosition clamps a USD position size to capital x MaxPositionSize.
func (s *RiskService) CapPosition(usd, capital float64) float64 {
	if s.cfg.MaxPositionSize <= 0 {
		return usd
	}
	return math.Min(usd, capital*s.cfg.MaxPositionSize)
}

// CheckTrade validates an order before submission.
//
// Checks performed:
//  1. Trade size at or above the minimum
//  2. Source and destination on the same chain
//  3. Quoted slippage within bounds, when a quote is available
func (s *RiskService) CheckTrade(ctx context.Context, order domain.TradeOrder, quote *domain.Quote) error {
	// Check 1: minimum trade size.
	if order.USDAmount < s.cfg.MinTradeAmount {
		s.logger.WarnContext(ctx, "risk_service: trade below minimum",
			slog.String("order_id", order.ID),
			slog.Float64("usd_amount", order.USDAmount),
			slog.Float64("min", s.cfg.MinTradeAmount),
		)
		return fmt.Errorf("risk_service: %.2f USD: %w", order.USDAmount, domain.ErrBelowMinimum)
	}

	// Check 2: same chain.
	to, ok := s.catalog.Lookup(order.ToSymbol, order.Chain)
	if !ok {
		return fmt.Errorf("risk_service: %s on %s: %w", order.ToSymbol, order.Chain, domain.ErrCrossChain)
	}

	// Check 3: slippage.
	if quote == nil || s.cfg.MaxSlippage <= 0 {
		return nil
	}
	toPrice, ok := s.prices.Price(ctx, to)
	if !ok {
		// Without a destination price the expected output is unknown.
		s.logger.WarnContext(ctx, "risk_service: cannot estimate slippage, no price",
			slog.String("asset", to.Key),
		)
		return nil
	}
	expected := order.USDAmount / toPrice
	if expected <= 0 {
		return nil
	}
	slippage := (expected - quote.ToAmount) / expected
	if slippage > s.cfg.MaxSlippage {
		s.logger.WarnContext(ctx, "risk_service: slippage exceeds limit",
			slog.String("order_id", order.ID),
			slog.Float64("expected", expected),
			slog.Float64("quoted", quote.ToAmount),
			slog.Float64("slippage", slippage),
			slog.Float64("max", s.cfg.MaxSlippage),
		)
		return fmt.Errorf("risk_service: %.2f%% > %.2f%%: %w",
			slippage*100, s.cfg.MaxSlippage*100, domain.ErrSlippageExceeded)
	}
	return nil
}
