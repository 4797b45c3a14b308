package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
	"github.com/alanyoungcy/recallbot/internal/marketdata"
	"github.com/alanyoungcy/recallbot/internal/strategy"
)

// SignalConfig holds the signal cycle parameters.
type SignalConfig struct {
	MinSignalStrength float64
	MinTradeAmount    float64
	QuoteSymbol       string // settlement asset, e.g. USDC
	Pause             time.Duration
	// SizingStrategy sizes combined signals.
	SizingStrategy string
}

// Capital reports the capital available for position sizing.
type Capital interface {
	Status(ctx context.Context) (domain.PortfolioStatus, error)
}

// PositionCapper clamps position sizes.
type PositionCapper interface {
	CapPosition(usd, capital float64) float64
}

// SignalResult describes one signal cycle.
type SignalResult struct {
	Signals    []domain.Signal
	Actionable int
	Records    []domain.TradeRecord
	Skipped    int
}

// SignalService turns combined strategy signals into trades against the
// quote asset.
type SignalService struct {
	manager  *strategy.Manager
	capital  Capital
	catalog  AssetCatalog
	prices   marketdata.PriceReader
	executor TradeExecutor
	capper   PositionCapper
	bus      domain.SignalBus
	cfg      SignalConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewSignalService creates a SignalService with all required dependencies.
func NewSignalService(
	manager *strategy.Manager,
	capital Capital,
	catalog AssetCatalog,
	prices marketdata.PriceReader,
	executor TradeExecutor,
	cfg SignalConfig,
	logger *slog.Logger,
) *SignalService {
	if cfg.QuoteSymbol == "" {
		cfg.QuoteSymbol = "USDC"
	}
	if cfg.SizingStrategy == "" {
		cfg.SizingStrategy = "momentum"
	}
	return &SignalService{
		manager:  manager,
		capital:  capital,
		catalog:  catalog,
		prices:   prices,
		executor: executor,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "signal_service")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetPositionCapper applies an extra cap to every sized position.
func (s *SignalService) SetPositionCapper(c PositionCapper) { s.capper = c }

// SetBus publishes every combined signal on the signals channel.
func (s *SignalService) SetBus(bus domain.SignalBus) { s.bus = bus }

// RecentSignals returns the most recent combined signals, newest first.
func (s *SignalService) RecentSignals(limit int) []domain.Signal {
	return s.manager.RecentSignals(limit)
}

// ExecuteSignals runs one signal cycle. It fails only when no capital figure
// is available or the cycle was cancelled; orders that cannot be built are
// logged and skipped.
func (s *SignalService) ExecuteSignals(ctx context.Context) (SignalResult, error) {
	signals := s.manager.GenerateCombinedSignals(ctx)
	result := SignalResult{Signals: signals}
	s.publish(ctx, signals)

	actionable := strategy.Actionable(signals, s.cfg.MinSignalStrength)
	result.Actionable = len(actionable)
	if len(actionable) == 0 {
		s.logger.InfoContext(ctx, "no actionable signals", slog.Int("signals", len(signals)))
		return result, nil
	}

	status, err := s.capital.Status(ctx)
	if err != nil {
		return result, fmt.Errorf("signal_service: capital: %w", err)
	}
	capital := status.TotalValue

	orders := make([]domain.TradeOrder, 0, len(actionable))
	for _, sig := range actionable {
		order, err := s.orderFor(ctx, sig, capital)
		if err != nil {
			s.logger.InfoContext(ctx, "signal not traded",
				slog.String("asset", sig.Symbol),
				slog.String("action", string(sig.Action)),
				slog.String("reason", err.Error()),
			)
			result.Skipped++
			continue
		}
		orders = append(orders, order)
	}

	records, err := s.executor.Execute(ctx, orders, s.cfg.Pause)
	result.Records = records
	s.logger.InfoContext(ctx, "signal cycle complete",
		slog.Int("signals", len(signals)),
		slog.Int("actionable", result.Actionable),
		slog.Int("submitted", len(records)),
		slog.Int("skipped", result.Skipped),
	)
	if err != nil {
		return result, fmt.Errorf("signal_service: execute: %w", err)
	}
	return result, nil
}

func (s *SignalService) sizer(sig domain.Signal) (strategy.Strategy, error) {
	name := sig.Source
	if name == strategy.CombinedSource {
		name = s.cfg.SizingStrategy
	}
	return s.manager.Registry().Get(name)
}

func (s *SignalService) orderFor(ctx context.Context, sig domain.Signal, capital float64) (domain.TradeOrder, error) {
	sizer, err := s.sizer(sig)
	if err != nil {
		return domain.TradeOrder{}, err
	}
	usd := sizer.PositionSize(sig, capital)
	if s.capper != nil {
		usd = s.capper.CapPosition(usd, capital)
	}
	if usd < s.cfg.MinTradeAmount {
		return domain.TradeOrder{}, fmt.Errorf("size %.2f USD: %w", usd, domain.ErrBelowMinimum)
	}

	asset, ok := s.catalog.Get(sig.Symbol)
	if !ok {
		return domain.TradeOrder{}, fmt.Errorf("asset %s: %w", sig.Symbol, domain.ErrNotFound)
	}
	quote, ok := s.catalog.Lookup(s.cfg.QuoteSymbol, asset.Chain)
	if !ok {
		return domain.TradeOrder{}, fmt.Errorf("%s on %s: %w", s.cfg.QuoteSymbol, asset.Chain, domain.ErrNotFound)
	}

	from, to := quote, asset
	if sig.Action == domain.ActionSell {
		from, to = asset, quote
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
		Chain:       asset.Chain,
		Quantity:    usd / price,
		USDAmount:   usd,
		Price:       price,
		Reason:      fmt.Sprintf("%s signal: %s", sig.Source, sig.Reason),
		Source:      domain.TradeSourceSignal,
		CreatedAt:   s.now(),
	}, nil
}

func (s *SignalService) publish(ctx context.Context, signals []domain.Signal) {
	if s.bus == nil {
		return
	}
	for _, sig := range signals {
		payload, err := json.Marshal(sig)
		if err != nil {
			continue
		}
		if err := s.bus.Publish(ctx, domain.ChannelSignals, payload); err != nil {
			s.logger.WarnContext(ctx, "publish signal failed",
				slog.String("asset", sig.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}
