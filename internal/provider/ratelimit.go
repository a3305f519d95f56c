package provider

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterMap holds one rate.Limiter per provider, created once at startup.
type RateLimiterMap struct {
	mu       sync.RWMutex
	limiters map[ProviderName]*rate.Limiter
}

// NewRateLimiterMap creates limiters for every provider from the capability table.
func NewRateLimiterMap() *RateLimiterMap {
	caps := ProviderCapabilities()
	m := &RateLimiterMap{
		limiters: make(map[ProviderName]*rate.Limiter, len(caps)),
	}
	for name, c := range caps {
		if c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
			continue
		}
		burst := max(c.RateLimit.Burst, 1)
		m.limiters[name] = rate.NewLimiter(rate.Limit(c.RateLimit.RequestsPerSecond), burst)
	}
	return m
}

// NewUnlimitedRateLimiterMap creates a map with no limiters (for tests).
func NewUnlimitedRateLimiterMap() *RateLimiterMap {
	return &RateLimiterMap{limiters: make(map[ProviderName]*rate.Limiter)}
}

// Set replaces the limiter for a provider.
func (m *RateLimiterMap) Set(name ProviderName, limit rate.Limit, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(limit, burst)
}

// Wait blocks until the rate limiter for the given provider allows a request,
// or the context is canceled.
func (m *RateLimiterMap) Wait(ctx context.Context, name ProviderName) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}
