// Package health aggregates named subsystem probes for the /health
// endpoint.
package health

import (
	"context"
	"sort"
	"sync"
)

// Status is the outcome of one subsystem probe.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes a single subsystem.
type Checker func(ctx context.Context) Status

// Registry holds named checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register adds or replaces the checker for name.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers[name] = check
	r.mu.Unlock()
}

// CheckAll runs every checker and reports the aggregate plus each
// subsystem's status, ordered by name for stable output.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	names := make([]string, 0, len(r.checkers))
	checks := make(map[string]Checker, len(r.checkers))
	for name, c := range r.checkers {
		names = append(names, name)
		checks[name] = c
	}
	r.mu.RUnlock()
	sort.Strings(names)

	healthy = true
	for _, name := range names {
		st := checks[name](ctx)
		if !st.Healthy {
			healthy = false
		}
		statuses = append(statuses, st)
	}
	return healthy, statuses
}
