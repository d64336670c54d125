package resilience

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker exposes a circuit breaker's state. *Client implements it.
type Breaker interface {
	CircuitBreakerState() gobreaker.State
	CircuitBreakerCounts() gobreaker.Counts
}

// Provider status values.
const (
	StatusUp       = "UP"
	StatusDegraded = "DEGRADED"
	StatusDown     = "DOWN"
)

// ProviderStatus is a snapshot of one provider's health.
type ProviderStatus struct {
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	Circuit       string     `json:"circuit"`
	Requests      uint32     `json:"requests"`
	Failures      uint32     `json:"failures"`
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
}

// Registry tracks the geo providers a process talks to. The ops status
// endpoint and the readiness probe read from it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	breaker       Breaker
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry), now: time.Now}
}

// Register tracks b under name, replacing any earlier registration.
func (r *Registry) Register(name string, b Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{breaker: b}
}

// RecordSuccess notes a successful call. Unknown names are ignored.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		now := r.now()
		e.lastSuccessAt = &now
	}
}

// RecordFailure notes a failed call and its error. Unknown names are ignored.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		now := r.now()
		e.lastFailureAt = &now
		if err != nil {
			e.lastError = err.Error()
		}
	}
}

// Status returns the snapshot for one provider.
func (r *Registry) Status(name string) (ProviderStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return ProviderStatus{}, false
	}
	return e.status(name), true
}

// Statuses returns every provider's snapshot, sorted by name.
func (r *Registry) Statuses() []ProviderStatus {
	r.mu.RLock()
	out := make([]ProviderStatus, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, e.status(name))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Check fails while any provider's circuit is open, so a readiness probe
// takes the instance out of rotation until the provider recovers. A half-open
// circuit still passes.
func (r *Registry) Check(context.Context) error {
	var down []string
	for _, s := range r.Statuses() {
		if s.Status == StatusDown {
			down = append(down, s.Name)
		}
	}
	if len(down) > 0 {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, strings.Join(down, ", "))
	}
	return nil
}

func (e *entry) status(name string) ProviderStatus {
	state := e.breaker.CircuitBreakerState()
	counts := e.breaker.CircuitBreakerCounts()

	status := StatusUp
	switch state {
	case gobreaker.StateOpen:
		status = StatusDown
	case gobreaker.StateHalfOpen:
		status = StatusDegraded
	}

	return ProviderStatus{
		Name:          name,
		Status:        status,
		Circuit:       state.String(),
		Requests:      counts.Requests,
		Failures:      counts.TotalFailures,
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
		LastError:     e.lastError,
	}
}
