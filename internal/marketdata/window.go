package marketdata

import (
	"sync"
	"time"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

// series is one asset's ordered samples with its own lock.
type series struct {
	mu      sync.Mutex
	samples []domain.PriceSample
}

// Windows maintains a rolling lookback window of price samples per asset.
// Each strategy owns its own Windows so lookbacks stay independent.
type Windows struct {
	lookback time.Duration

	mu     sync.Mutex // guards the map only
	series map[string]*series
}

// NewWindows creates an empty window set with the given lookback.
func NewWindows(lookback time.Duration) *Windows {
	return &Windows{
		lookback: lookback,
		series:   make(map[string]*series),
	}
}

// Lookback returns the configured window length.
func (w *Windows) Lookback() time.Duration { return w.lookback }

func (w *Windows) get(key string) *series {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.series[key]
	if !ok {
		s = &series{}
		w.series[key] = s
	}
	return s
}

// Append records a sample, evicts samples older than the lookback relative to
// ts, and returns a copy of the remaining window.
func (w *Windows) Append(key string, price float64, ts time.Time) []domain.PriceSample {
	s := w.get(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, domain.PriceSample{Price: price, Time: ts})
	s.trim(ts.Add(-w.lookback))
	return s.snapshot()
}

// Snapshot returns a copy of the current window for key.
func (w *Windows) Snapshot(key string) []domain.PriceSample {
	s := w.get(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Len returns the number of samples held for key.
func (w *Windows) Len(key string) int {
	s := w.get(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// trim drops samples older than cutoff. The caller must hold s.mu.
func (s *series) trim(cutoff time.Time) {
	i := 0
	for i < len(s.samples) && s.samples[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = append(s.samples[:0:0], s.samples[i:]...)
	}
}

func (s *series) snapshot() []domain.PriceSample {
	if len(s.samples) == 0 {
		return nil
	}
	out := make([]domain.PriceSample, len(s.samples))
	copy(out, s.samples)
	return out
}
