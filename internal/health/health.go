// Package health aggregates readiness probes for the gateway's dependencies.
// The server registers one check per backing service (store, audit sinks) and
// the health endpoint reports the per-dependency results plus the aggregate.
package health

import (
	"context"
	"sync"
)

// Check probes one dependency. The returned detail is informational and is
// reported on healthy results too; a non-nil error marks the dependency down
// and its message becomes the detail.
type Check func(ctx context.Context) (detail string, err error)

// Status is the reported state of one dependency.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Registry holds named checks. Re-registering a name replaces the previous
// check; results keep first-registration order.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
	order  []string
}

// NewRegistry creates an empty check registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Check)}
}

// Register adds or replaces the check for a dependency.
func (r *Registry) Register(name string, c Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[name]; !exists {
		r.order = append(r.order, name)
	}
	r.checks[name] = c
}

// Run executes every check and reports the aggregate. A registry with no
// checks is healthy.
func (r *Registry) Run(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	checks := make([]Check, len(names))
	for i, name := range names {
		checks[i] = r.checks[name]
	}
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(names))
	for i, name := range names {
		detail, err := checks[i](ctx)
		st := Status{Name: name, Healthy: err == nil, Detail: detail}
		if err != nil {
			st.Detail = err.Error()
			healthy = false
		}
		statuses[i] = st
	}
	return healthy, statuses
}
