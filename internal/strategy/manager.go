package strategy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// Manager runs every registered strategy for one evaluation cycle and merges
// their output. It keeps the most recent combined signals for status APIs.
type Manager struct {
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time

	mu            sync.Mutex
	recentSignals []domain.Signal
	recentLimit   int
}

// NewManager creates a Manager over the strategies in registry.
func NewManager(registry *Registry, logger *slog.Logger) *Manager {
	return &Manager{
		registry:    registry,
		logger:      logger.With(slog.String("component", "strategy_manager")),
		now:         time.Now,
		recentLimit: 200,
	}
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *Registry { return m.registry }

// GenerateCombinedSignals runs the strategies sequentially. A strategy that
// fails is logged and skipped; the others still contribute.
func (m *Manager) GenerateCombinedSignals(ctx context.Context) []domain.Signal {
	var all []domain.Signal
	for _, s := range m.registry.All() {
		if ctx.Err() != nil {
			break
		}
		signals, err := s.GenerateSignals(ctx)
		if err != nil {
			m.logger.ErrorContext(ctx, "strategy failed",
				slog.String("strategy", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		all = append(all, signals...)
	}

	combined := Combine(all, m.now())
	m.record(combined)
	return combined
}

func (m *Manager) record(signals []domain.Signal) {
	if len(signals) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recentSignals = append(m.recentSignals, signals...)
	if over := len(m.recentSignals) - m.recentLimit; over > 0 {
		m.recentSignals = append([]domain.Signal(nil), m.recentSignals[over:]...)
	}
}

// RecentSignals returns up to limit most recent combined signals, newest
// first.
func (m *Manager) RecentSignals(limit int) []domain.Signal {
	if limit <= 0 {
		limit = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.recentSignals)
	if limit > n {
		limit = n
	}
	out := make([]domain.Signal, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.recentSignals[i])
	}
	return out
}
