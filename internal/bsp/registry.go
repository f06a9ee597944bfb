package bsp

import (
	"fmt"
	"sync"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
)

// Registry maps provider keys to adapters. A default key resolves tenants
// whose credentials name no provider.
type Registry struct {
	mu         sync.RWMutex
	adapters   map[string]Adapter
	defaultKey string
}

// NewRegistry creates an empty registry with the given default provider key.
func NewRegistry(defaultKey string) *Registry {
	return &Registry{
		adapters:   make(map[string]Adapter),
		defaultKey: defaultKey,
	}
}

// Register adds an adapter under its own name. Later registrations replace
// earlier ones.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
}

// Resolve returns the adapter for the given key, falling back to the default
// when the key is empty.
func (r *Registry) Resolve(key string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if key == "" {
		key = r.defaultKey
	}
	adapter, ok := r.adapters[key]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q", apperrors.ErrNoAdapter, key)
	}
	return adapter, nil
}

// Keys returns the registered provider keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.adapters))
	for key := range r.adapters {
		keys = append(keys, key)
	}
	return keys
}
