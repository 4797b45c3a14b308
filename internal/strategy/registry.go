package strategy

import (
	"fmt"
	"sync"
)

// Registry manages a named collection of strategies that can be looked up at
// runtime. Registration order is preserved because the manager runs
// strategies in that order. It is safe for concurrent use.
type Registry struct {
	strategies map[string]Strategy
	order      []string
	mu         sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy under its Name. Registering the same name again
// replaces the strategy but keeps its position.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := s.Name()
	if _, exists := r.strategies[name]; !exists {
		r.order = append(r.order, name)
	}
	r.strategies[name] = s
}

// Get retrieves a strategy by name. It returns an error when the name is not
// registered.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", name)
	}
	return s, nil
}

// List returns the names of all registered strategies in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns the registered strategies in registration order.
func (r *Registry) All() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.strategies[n])
	}
	return out
}
