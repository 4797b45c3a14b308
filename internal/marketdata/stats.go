package marketdata

import (
	"math"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// fibRatio is the retracement used for support and resistance levels.
const fibRatio = 0.618

// minLevelSamples is the smallest window SupportResistance accepts.
const minLevelSamples = 10

// flatTolerance is the relative spread below which a window counts as flat.
const flatTolerance = 1e-9

// Levels are Fibonacci support and resistance levels of a window.
type Levels struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
	Min        float64 `json:"min_price"`
	Max        float64 `json:"max_price"`
	Mean       float64 `json:"avg_price"`
}

// Prices extracts the price column of samples.
func Prices(samples []domain.PriceSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Price
	}
	return out
}

// Return computes (last - first) / first. ok is false for fewer than two
// samples or a non-positive first price.
func Return(samples []domain.PriceSample) (float64, bool) {
	if len(samples) < 2 {
		return 0, false
	}
	first := samples[0].Price
	if first <= 0 {
		return 0, false
	}
	return (samples[len(samples)-1].Price - first) / first, true
}

// MeanStdDev returns the mean and population standard deviation of values.
// A spread that is only rounding noise relative to the mean is reported as
// zero.
func MeanStdDev(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	std = math.Sqrt(variance)
	if std <= flatTolerance*math.Abs(mean) {
		std = 0
	}
	return mean, std
}

// Volatility is the population standard deviation of simple returns between
// consecutive samples. Pairs with a non-positive base price are skipped.
func Volatility(samples []domain.PriceSample) (float64, bool) {
	if len(samples) < 2 {
		return 0, false
	}
	returns := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		prev := samples[i-1].Price
		if prev > 0 {
			returns = append(returns, (samples[i].Price-prev)/prev)
		}
	}
	if len(returns) == 0 {
		return 0, false
	}
	_, std := MeanStdDev(returns)
	return std, true
}

// SupportResistance computes levels 61.8% of the way from the mean to the
// window extremes. It needs at least ten samples.
func SupportResistance(samples []domain.PriceSample) (Levels, bool) {
	if len(samples) < minLevelSamples {
		return Levels{}, false
	}
	prices := Prices(samples)
	lo, hi := prices[0], prices[0]
	for _, p := range prices[1:] {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	mean, _ := MeanStdDev(prices)
	return Levels{
		Support:    mean - (mean-lo)*fibRatio,
		Resistance: mean + (hi-mean)*fibRatio,
		Min:        lo,
		Max:        hi,
		Mean:       mean,
	}, true
}
