package provider

import (
	"context"
	"sync"
	"time"
)

// Registry holds all registered provider adapters keyed by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderName]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[ProviderName]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not registered.
func (r *Registry) Get(name ProviderName) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// All returns all registered providers in a stable order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Provider
	for _, name := range AllProviderNames() {
		if p, ok := r.providers[name]; ok {
			result = append(result, p)
		}
	}
	return result
}

// Status is the outcome of a single provider connection check.
type Status struct {
	Provider ProviderName  `json:"provider"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Latency  time.Duration `json:"latency"`
}

// CheckAll runs TestConnection on every registered provider sequentially.
func (r *Registry) CheckAll(ctx context.Context) []Status {
	providers := r.All()
	statuses := make([]Status, 0, len(providers))
	for _, p := range providers {
		start := time.Now()
		err := p.TestConnection(ctx)
		st := Status{Provider: p.Name(), OK: err == nil, Latency: time.Since(start)}
		if err != nil {
			st.Error = err.Error()
		}
		statuses = append(statuses, st)
	}
	return statuses
}
