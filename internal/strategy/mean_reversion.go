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

// MeanReversion implements a strategy that buys when the current price is
// significantly below the window mean and sells when it is significantly
// above. "Significantly" is measured in population standard deviations
// (the category z-score threshold).
type MeanReversion struct {
	cfg     Config
	assets  AssetSource
	prices  marketdata.PriceReader
	windows *marketdata.Windows
	logger  *slog.Logger
	now     func() time.Time
}

// NewMeanReversion creates a MeanReversion strategy with its own rolling
// windows.
func NewMeanReversion(cfg Config, assets AssetSource, prices marketdata.PriceReader, logger *slog.Logger) *MeanReversion {
	lookback := cfg.MeanReversionLookback
	if lookback <= 0 {
		lookback = 48 * time.Hour
	}
	return &MeanReversion{
		cfg:     cfg,
		assets:  assets,
		prices:  prices,
		windows: marketdata.NewWindows(lookback),
		logger:  logger.With(slog.String("strategy", "mean_reversion")),
		now:     time.Now,
	}
}

// Name returns the strategy identifier.
func (mr *MeanReversion) Name() string { return "mean_reversion" }

// Windows exposes the rolling windows for status reporting.
func (mr *MeanReversion) Windows() *marketdata.Windows { return mr.windows }

// GenerateSignals samples each enabled non-stablecoin asset. The current
// price is part of the window it is scored against.
func (mr *MeanReversion) GenerateSignals(ctx context.Context) ([]domain.Signal, error) {
	var signals []domain.Signal
	for _, a := range mr.assets.NonStablecoin() {
		if err := ctx.Err(); err != nil {
			return signals, err
		}
		price, ok := mr.prices.Price(ctx, a)
		if !ok {
			continue
		}
		now := mr.now()
		window := mr.windows.Append(a.Key, price, now)
		if sig, ok := mr.evaluate(a, price, window, now); ok {
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

func (mr *MeanReversion) evaluate(a domain.Asset, current float64, window []domain.PriceSample, now time.Time) (domain.Signal, bool) {
	if len(window) < mr.cfg.minSamples() {
		return domain.Signal{}, false
	}
	mean, std := marketdata.MeanStdDev(marketdata.Prices(window))
	if std == 0 {
		return domain.Signal{}, false
	}

	z := (current - mean) / std
	threshold := mr.cfg.zScoreThreshold(a)
	sig := domain.Signal{
		Symbol:    a.Key,
		Source:    mr.Name(),
		Timestamp: now,
	}
	switch {
	case z > threshold:
		sig.Action = domain.ActionSell
		sig.Strength = math.Min(math.Abs(z)/threshold, 1.0)
		sig.Reason = fmt.Sprintf("Price too high (Z-score: %.2f)", z)
	case z < -threshold:
		sig.Action = domain.ActionBuy
		sig.Strength = math.Min(math.Abs(z)/threshold, 1.0)
		sig.Reason = fmt.Sprintf("Price too low (Z-score: %.2f)", z)
	default:
		sig.Action = domain.ActionHold
		sig.Reason = fmt.Sprintf("Price normal (Z-score: %.2f)", z)
	}

	if sig.Action != domain.ActionHold {
		mr.logger.Info("mean reversion signal",
			slog.String("asset", a.Key),
			slog.String("action", string(sig.Action)),
			slog.Float64("price", current),
			slog.Float64("mean", mean),
			slog.Float64("z_score", z),
		)
	}
	return sig, true
}

// PositionSize uses half the category ratio momentum would use.
func (mr *MeanReversion) PositionSize(sig domain.Signal, capital float64) float64 {
	a, _ := mr.assets.Get(sig.Symbol)
	return mr.cfg.sizePosition(mr.cfg.positionRatio(a)/2, sig.Strength, capital)
}
