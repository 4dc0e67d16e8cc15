package check

import (
	"fmt"
	"time"
)

// Registry holds checks in registration order
type Registry struct {
	checks []Check
	names  map[string]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a check. Names must be unique.
func (r *Registry) Register(c Check) error {
	if c == nil || c.Name() == "" {
		return fmt.Errorf("check must have a name")
	}
	if _, exists := r.names[c.Name()]; exists {
		return fmt.Errorf("check %q already registered", c.Name())
	}
	r.names[c.Name()] = struct{}{}
	r.checks = append(r.checks, c)
	return nil
}

// MustRegister is Register that panics on error
func (r *Registry) MustRegister(checks ...Check) *Registry {
	for _, c := range checks {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// Checks returns the registered checks
func (r *Registry) Checks() []Check {
	out := make([]Check, len(r.checks))
	copy(out, r.checks)
	return out
}

// DefaultRegistry registers the built-in checks
func DefaultRegistry(taskOverdueAfter time.Duration) *Registry {
	return NewRegistry().MustRegister(
		EnvironmentCheck{},
		SecurityAdvisoryCheck{},
		AdminWorkerCheck{},
		ScheduledTaskCheck{OverdueAfter: taskOverdueAfter},
	)
}
