package marketdata

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// PriceMonitor raises alerts when an asset's price moves more than a
// threshold between two consecutive checks.
type PriceMonitor struct {
	prices    PriceReader
	threshold float64
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.Mutex
	last map[string]float64
}

// NewPriceMonitor creates a monitor. threshold <= 0 defaults to 5%.
func NewPriceMonitor(prices PriceReader, threshold float64, logger *slog.Logger) *PriceMonitor {
	if threshold <= 0 {
		threshold = 0.05
	}
	return &PriceMonitor{
		prices:    prices,
		threshold: threshold,
		logger:    logger.With(slog.String("component", "price_monitor")),
		now:       time.Now,
		last:      make(map[string]float64),
	}
}

// Check compares each asset's current price with the previous observation.
// Assets without a price are skipped and keep their previous observation.
func (m *PriceMonitor) Check(ctx context.Context, assets []domain.Asset) []domain.PriceAlert {
	var alerts []domain.PriceAlert

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range assets {
		current, ok := m.prices.Price(ctx, a)
		if !ok {
			continue
		}
		if last, seen := m.last[a.Key]; seen && last > 0 {
			change := (current - last) / last
			if math.Abs(change) >= m.threshold {
				alerts = append(alerts, domain.PriceAlert{
					Symbol:       a.Key,
					LastPrice:    last,
					CurrentPrice: current,
					Change:       change,
					Timestamp:    m.now(),
				})
				m.logger.InfoContext(ctx, "price alert",
					slog.String("symbol", a.Key),
					slog.Float64("change_pct", change*100),
				)
			}
		}
		m.last[a.Key] = current
	}
	return alerts
}
