package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/waabox/pakdeck/internal/domain"
)

// Registry maps platform identifiers to Adapter implementations.
// Lookups take a read lock only; calls into the resolved adapters are never
// serialized by the registry.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]domain.Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]domain.Adapter)}
}

// Register associates a platform name (e.g., "npm") with an adapter.
// Registering the same platform twice replaces the previous adapter.
func (r *Registry) Register(platform string, a domain.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[platform] = a
}

// Resolve returns the adapter registered for platform.
// Returns an error wrapping domain.ErrAdapterNotFound if none is registered.
func (r *Registry) Resolve(platform string) (domain.Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[platform]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no adapter registered for platform %q: %w", platform, domain.ErrAdapterNotFound)
	}
	return a, nil
}

// Platforms returns the registered platform names in sorted order.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
