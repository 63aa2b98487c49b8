package breaker

import (
	"sort"
	"sync"
)

// Registry holds named breakers so monitoring surfaces can enumerate them.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	defaults Options
}

// NewRegistry creates a Registry. Defaults apply to breakers created via
// GetOrCreate.
func NewRegistry(defaults Options) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
	}
}

// GetOrCreate returns the breaker for name, creating it with the registry
// defaults on first use.
func (r *Registry) GetOrCreate(name string) (*Breaker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b, nil
	}
	b, err := New(name, r.defaults)
	if err != nil {
		return nil, err
	}
	r.breakers[name] = b
	return b, nil
}

// Get returns the breaker for name, or ok=false if it was never created.
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Statuses returns snapshots of all registered breakers, sorted by name.
func (r *Registry) Statuses() []Status {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
