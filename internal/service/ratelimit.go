package service

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures a per-provider token bucket.
type RateLimiterConfig struct {
	RequestsPerSecond float64 // Refill rate; zero or negative disables limiting
	Burst             int     // Maximum bucket capacity
}

// DefaultRateLimiterConfig returns default configuration.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

func (c RateLimiterConfig) limiter() *rate.Limiter {
	if c.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := c.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.RequestsPerSecond), burst)
}

// RateLimiterRegistry manages rate limiters for multiple providers.
type RateLimiterRegistry struct {
	limiters map[string]*rate.Limiter
	configs  map[string]RateLimiterConfig
	fallback RateLimiterConfig
	mu       sync.Mutex
}

// NewRateLimiterRegistry creates a registry. Providers without an explicit
// config use fallback.
func NewRateLimiterRegistry(fallback RateLimiterConfig) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		configs:  make(map[string]RateLimiterConfig),
		fallback: fallback,
	}
}

// Get returns the rate limiter for a provider, creating it on first use.
func (r *RateLimiterRegistry) Get(provider string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, ok := r.limiters[provider]; ok {
		return limiter
	}

	cfg, ok := r.configs[provider]
	if !ok {
		cfg = r.fallback
	}
	limiter := cfg.limiter()
	r.limiters[provider] = limiter
	return limiter
}

// Wait blocks until the provider's bucket has a token or ctx is done.
func (r *RateLimiterRegistry) Wait(ctx context.Context, provider string) error {
	return r.Get(provider).Wait(ctx)
}

// SetConfig updates the configuration for a provider.
func (r *RateLimiterRegistry) SetConfig(provider string, cfg RateLimiterConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[provider] = cfg
	r.limiters[provider] = cfg.limiter()
}

// RateLimiterStatus contains status information.
type RateLimiterStatus struct {
	Available         float64 `json:"available"`
	Burst             int     `json:"burst"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

// Status returns rate limiter status for all providers seen so far.
func (r *RateLimiterRegistry) Status() map[string]RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := make(map[string]RateLimiterStatus, len(r.limiters))
	for name, limiter := range r.limiters {
		rps := float64(limiter.Limit())
		if limiter.Limit() == rate.Inf {
			rps = 0
		}
		status[name] = RateLimiterStatus{
			Available:         limiter.Tokens(),
			Burst:             limiter.Burst(),
			RequestsPerSecond: rps,
		}
	}
	return status
}

// List returns provider names with explicit configs, sorted.
func (r *RateLimiterRegistry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
