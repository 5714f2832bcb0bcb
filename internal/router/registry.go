package router

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/af-corp/aegis-chat/internal/config"
	"github.com/af-corp/aegis-chat/internal/llm"
)

// ErrBackendUnavailable is returned when the family has no backend configured
// or its circuit breaker is open.
var ErrBackendUnavailable = errors.New("backend unavailable")

// Route is a resolved model bound to the backend that serves it.
type Route struct {
	ModelID string
	Family  Family
	Backend llm.Backend
}

// Registry maps backend families to backends and gates them with circuit
// breakers.
type Registry struct {
	mu       sync.RWMutex
	backends map[Family]llm.Backend
	health   *HealthTracker
}

func NewRegistry(health *HealthTracker) *Registry {
	if health == nil {
		health = NewHealthTracker(5, DefaultRecoveryProbeInterval)
	}
	return &Registry{
		backends: make(map[Family]llm.Backend),
		health:   health,
	}
}

func (r *Registry) Register(family Family, backend llm.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[family] = backend
}

func (r *Registry) Get(family Family) (llm.Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[family]
	return b, ok
}

// Route binds modelID to its family's backend.
func (r *Registry) Route(modelID string) (Route, error) {
	family := FamilyFor(modelID)
	backend, ok := r.Get(family)
	if !ok {
		return Route{}, fmt.Errorf("route %s: no %s backend configured: %w", modelID, family, ErrBackendUnavailable)
	}
	if !r.health.IsAvailable(string(family)) {
		return Route{}, fmt.Errorf("route %s: %s circuit open: %w", modelID, family, ErrBackendUnavailable)
	}
	return Route{ModelID: modelID, Family: family, Backend: backend}, nil
}

// Report feeds a call outcome into the family's circuit breaker.
func (r *Registry) Report(family Family, err error) {
	if err != nil {
		r.health.RecordFailure(string(family))
		return
	}
	r.health.RecordSuccess(string(family))
}

// BuildFromConfig registers the backends that have enough configuration to
// run. A family without a backend is reported as unavailable at route time.
func BuildFromConfig(cfg *config.BackendsConfig) (*Registry, error) {
	health := NewHealthTracker(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.RecoveryProbeInterval)
	registry := NewRegistry(health)

	if cfg.Aggregator.APIKey != "" {
		agg, err := llm.NewOpenRouter(cfg.Aggregator)
		if err != nil {
			return nil, fmt.Errorf("create aggregator backend: %w", err)
		}
		registry.Register(FamilyAggregator, agg)
	} else {
		slog.Warn("aggregator api key not set, aggregator models are unavailable")
	}

	if cfg.Local.BaseURL != "" {
		local, err := llm.NewOllama(cfg.Local)
		if err != nil {
			return nil, fmt.Errorf("create local backend: %w", err)
		}
		registry.Register(FamilyLocal, local)
	}

	return registry, nil
}

// Reload swaps in the backends registered on next. Circuit state is kept.
func (r *Registry) Reload(next *Registry) {
	next.mu.RLock()
	backends := maps.Clone(next.backends)
	next.mu.RUnlock()

	r.mu.Lock()
	r.backends = backends
	r.mu.Unlock()
}

// Status reports the circuit state of every registered family.
func (r *Registry) Status() map[string]string {
	r.mu.RLock()
	families := make([]Family, 0, len(r.backends))
	for f := range r.backends {
		families = append(families, f)
	}
	r.mu.RUnlock()

	out := make(map[string]string, len(families))
	for _, f := range families {
		out[string(f)] = r.health.Breaker(string(f)).State().String()
	}
	return out
}
