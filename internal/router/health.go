package router

import (
	"log/slog"
	"sync"
	"time"
)

// HealthTracker keeps one circuit breaker per backend family.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	failureThreshold      int
	recoveryProbeInterval time.Duration
}

func NewHealthTracker(failureThreshold int, recoveryProbeInterval time.Duration) *HealthTracker {
	return &HealthTracker{
		breakers:              make(map[string]*CircuitBreaker),
		failureThreshold:      failureThreshold,
		recoveryProbeInterval: recoveryProbeInterval,
	}
}

// Breaker returns (or lazily creates) the circuit breaker for a backend.
func (ht *HealthTracker) Breaker(backend string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[backend]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	if cb, ok := ht.breakers[backend]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ht.failureThreshold, ht.recoveryProbeInterval)
	ht.breakers[backend] = cb
	return cb
}

func (ht *HealthTracker) IsAvailable(backend string) bool {
	return ht.Breaker(backend).Allow()
}

func (ht *HealthTracker) RecordSuccess(backend string) {
	ht.Breaker(backend).RecordSuccess()
}

func (ht *HealthTracker) RecordFailure(backend string) {
	cb := ht.Breaker(backend)
	before := cb.State()
	cb.RecordFailure()
	if after := cb.State(); after == StateOpen && before != StateOpen {
		slog.Warn("backend circuit opened", "backend", backend, "probe_interval", ht.recoveryProbeInterval)
	}
}

// States reports the current state of every known breaker.
func (ht *HealthTracker) States() map[string]string {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	out := make(map[string]string, len(ht.breakers))
	for name, cb := range ht.breakers {
		out[name] = cb.State().String()
	}
	return out
}
