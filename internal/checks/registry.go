package checks

import (
	"fmt"
	"sort"

	"mergegate/internal/policy"
)

// Registry is the closed name -> implementation lookup for check types. It is
// populated once at startup; its contract is exact match or an explicit
// not-found error, not open plugin discovery.
type Registry struct {
	checks map[policy.CheckType]Check
}

func NewRegistry(checks ...Check) *Registry {
	r := &Registry{checks: make(map[policy.CheckType]Check, len(checks))}
	for _, c := range checks {
		if _, exists := r.checks[c.Type()]; exists {
			panic(fmt.Sprintf("check type %s already registered", c.Type()))
		}
		r.checks[c.Type()] = c
	}
	return r
}

// Resolve returns the implementation for a check type.
func (r *Registry) Resolve(t policy.CheckType) (Check, error) {
	c, ok := r.checks[t]
	if !ok {
		return nil, fmt.Errorf("check type not found: %s", t)
	}
	return c, nil
}

// List returns every registered check, ordered by type name.
func (r *Registry) List() []Check {
	out := make([]Check, 0, len(r.checks))
	for _, c := range r.checks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}
