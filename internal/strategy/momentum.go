package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
	"github.com/alanyoungcy/recallbot/internal/marketdata"
)

// Momentum follows the trend: a rise over the lookback window larger than
// the asset's threshold is a buy, a fall is a sell.
type Momentum struct {
	cfg     Config
	assets  AssetSource
	prices  marketdata.PriceReader
	windows *marketdata.Windows
	logger  *slog.Logger
	now     func() time.Time
}

// NewMomentum creates a Momentum strategy with its own rolling windows.
func NewMomentum(cfg Config, assets AssetSource, prices marketdata.PriceReader, logger *slog.Logger) *Momentum {
	lookback := cfg.MomentumLookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &Momentum{
		cfg:     cfg,
		assets:  assets,
		prices:  prices,
		windows: marketdata.NewWindows(lookback),
		logger:  logger.With(slog.String("strategy", "momentum")),
		now:     time.Now,
	}
}

// Name returns the strategy identifier.
func (m *Momentum) Name() string { return "momentum" }

// Windows exposes the rolling windows for status reporting.
func (m *Momentum) Windows() *marketdata.Windows { return m.windows }

// GenerateSignals samples each enabled non-stablecoin asset.
func (m *Momentum) GenerateSignals(ctx context.Context) ([]domain.Signal, error) {
	var signals []domain.Signal
	for _, a := range m.assets.NonStablecoin() {
		if err := ctx.Err(); err != nil {
			return signals, err
		}
		price, ok := m.prices.Price(ctx, a)
		if !ok {
			continue
		}
		now := m.now()
		window := m.windows.Append(a.Key, price, now)
		if sig, ok := m.evaluate(a, window, now); ok {
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

func (m *Momentum) evaluate(a domain.Asset, window []domain.PriceSample, now time.Time) (domain.Signal, bool) {
	ret, ok := marketdata.Return(window)
	if !ok {
		return domain.Signal{}, false
	}

	threshold := m.cfg.momentumThreshold(a)
	sig := domain.Signal{
		Symbol:    a.Key,
		Source:    m.Name(),
		Timestamp: now,
	}
	switch {
	case ret > threshold:
		sig.Action = domain.ActionBuy
		sig.Strength = math.Min(math.Abs(ret)/threshold, 1.0)
		sig.Reason = fmt.Sprintf("Positive momentum: %.2f%%", ret*100)
	case ret < -threshold:
		sig.Action = domain.ActionSell
		sig.Strength = math.Min(math.Abs(ret)/threshold, 1.0)
		sig.Reason = fmt.Sprintf("Negative momentum: %.2f%%", ret*100)
	default:
		sig.Action = domain.ActionHold
		sig.Reason = "No significant momentum"
	}

	if sig.Action != domain.ActionHold {
		m.logger.Info("momentum signal",
			slog.String("asset", a.Key),
			slog.String("action", string(sig.Action)),
			slog.Float64("return", ret),
			slog.Float64("threshold", threshold),
			slog.Float64("strength", sig.Strength),
		)
	}
	return sig, true
}

// PositionSize is capital * category ratio * strength, capped at
// capital * max position size.
func (m *Momentum) PositionSize(sig domain.Signal, capital float64) float64 {
	a, _ := m.assets.Get(sig.Symbol)
	return m.cfg.sizePosition(m.cfg.positionRatio(a), sig.Strength, capital)
}
