package strategy

import (
	"context"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// Strategy defines the contract for signal generators.
type Strategy interface {
	Name() string
	// GenerateSignals evaluates every candidate asset once. Assets without
	// enough data produce no signal at all.
	GenerateSignals(ctx context.Context) ([]domain.Signal, error)
	// PositionSize returns the USD amount to trade for sig given the
	// available capital.
	PositionSize(sig domain.Signal, capital float64) float64
}

// AssetSource is the subset of the token catalog strategies need.
type AssetSource interface {
	NonStablecoin() []domain.Asset
	Get(key string) (domain.Asset, bool)
}

// Fallbacks applied when neither the category nor "default" is configured.
const (
	defaultMomentumThreshold = 0.05
	defaultZScoreThreshold   = 2.0
	defaultPositionRatio     = 0.10
	defaultMaxPositionSize   = 0.3
	defaultMinSamples        = 10
)

// Config holds strategy parameters. Threshold and ratio maps are keyed by
// asset category with an optional "default" entry; VolatilityMultipliers is
// keyed by volatility tier.
type Config struct {
	MomentumLookback        time.Duration
	MomentumThresholds      map[string]float64
	MeanReversionLookback   time.Duration
	MeanReversionMinSamples int
	ZScoreThresholds        map[string]float64
	PositionSizing          map[string]float64
	VolatilityMultipliers   map[string]float64
	MaxPositionSize         float64
}

// byCategory looks up category, then "default", then fallback.
func byCategory(m map[string]float64, category domain.Category, fallback float64) float64 {
	if v, ok := m[string(category)]; ok {
		return v
	}
	if v, ok := m["default"]; ok {
		return v
	}
	return fallback
}

func (c Config) momentumThreshold(a domain.Asset) float64 {
	base := byCategory(c.MomentumThresholds, a.Category, defaultMomentumThreshold)
	mult, ok := c.VolatilityMultipliers[string(a.Volatility)]
	if !ok {
		mult = 1.0
	}
	return base * mult
}

func (c Config) zScoreThreshold(a domain.Asset) float64 {
	return byCategory(c.ZScoreThresholds, a.Category, defaultZScoreThreshold)
}

func (c Config) positionRatio(a domain.Asset) float64 {
	return byCategory(c.PositionSizing, a.Category, defaultPositionRatio)
}

func (c Config) maxPositionSize() float64 {
	if c.MaxPositionSize > 0 {
		return c.MaxPositionSize
	}
	return defaultMaxPositionSize
}

func (c Config) minSamples() int {
	if c.MeanReversionMinSamples > defaultMinSamples {
		return c.MeanReversionMinSamples
	}
	return defaultMinSamples
}

// sizePosition is capital * ratio * strength capped at capital * max.
func (c Config) sizePosition(ratio, strength, capital float64) float64 {
	size := capital * ratio * strength
	if limit := capital * c.maxPositionSize(); size > limit {
		return limit
	}
	return size
}
