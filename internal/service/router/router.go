// Package router selects a model backend for each generation request. It
// walks a role's fallback chain, skipping providers whose circuit breaker is
// open, and records every outcome against the provider that produced it.
package router

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/logging"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service"
)

// Config configures the router.
type Config struct {
	Breaker        BreakerConfig
	RequestTimeout time.Duration
}

// DefaultConfig returns the default router configuration.
func DefaultConfig() Config {
	return Config{
		Breaker:        DefaultBreakerConfig(),
		RequestTimeout: 2 * time.Minute,
	}
}

// Router routes generation requests across providers.
// Breaker state is process-wide and shared by every session using the router.
type Router struct {
	cfg      Config
	models   *ModelRegistry
	limiters *service.RateLimiterRegistry
	metrics  *service.Metrics
	logger   *logging.Logger
	now      func() time.Time

	mu       sync.RWMutex
	backends map[string]core.Backend
	breakers map[string]*CircuitBreaker
}

// Option configures a Router.
type Option func(*Router)

// WithRateLimiters sets the per-provider rate limiters.
func WithRateLimiters(r *service.RateLimiterRegistry) Option {
	return func(rt *Router) { rt.limiters = r }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *service.Metrics) Option {
	return func(rt *Router) { rt.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(rt *Router) { rt.logger = l }
}

// WithClock overrides the clock used by breakers and latency measurement.
func WithClock(now func() time.Time) Option {
	return func(rt *Router) { rt.now = now }
}

// New creates a router over the given model registry.
func New(cfg Config, models *ModelRegistry, opts ...Option) *Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	r := &Router{
		cfg:      cfg,
		models:   models,
		logger:   logging.NewNop(),
		now:      time.Now,
		backends: make(map[string]core.Backend),
		breakers: make(map[string]*CircuitBreaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a backend under its Name().
func (r *Router) Register(b core.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := b.Name()
	r.backends[name] = b
	if _, ok := r.breakers[name]; !ok {
		r.breakers[name] = NewCircuitBreaker(r.cfg.Breaker, r.now)
	}
}

// Providers returns registered provider names, sorted.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns the model registry.
func (r *Router) Models() *ModelRegistry {
	return r.models
}

func (r *Router) lookup(provider string) (core.Backend, *CircuitBreaker) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[provider], r.breakers[provider]
}

// Route sends req to the first model in role's chain that succeeds.
// A model override is tried ahead of the chain. Providers with an open
// circuit are skipped without being called. When every entry fails, the
// returned DomainError carries the dominant failure kind and wraps the last
// ProviderError.
func (r *Router) Route(ctx context.Context, role string, req core.GenerationRequest) (*core.GenerationResponse, error) {
	models := r.models.Resolve(role).Models()
	if req.ModelOverride != "" {
		if ref, err := ParseModelRef(req.ModelOverride); err == nil {
			models = append([]ModelRef{ref}, models...)
		} else {
			r.logger.Warn("ignoring invalid model override", "override", req.ModelOverride, "error", err)
		}
	}
	req.Role = role
	if req.MaxTokens <= 0 {
		req.MaxTokens = core.DefaultMaxTokens
	}

	attempts := make([]*core.ProviderError, 0, len(models))
	for _, ref := range models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		backend, breaker := r.lookup(ref.Provider)
		if backend == nil {
			r.logger.Debug("no backend registered for chain entry", "role", role, "model", ref.String())
			continue
		}
		log := r.logger.WithProvider(ref.Provider).With("model", ref.Model, "role", role)

		permit, ok := breaker.Allow()
		if !ok {
			log.Debug("circuit open, skipping provider")
			r.metrics.ObserveProviderAttempt(ref.Provider, ref.Model, service.OutcomeSkipped)
			attempts = append(attempts, &core.ProviderError{
				Provider: ref.Provider,
				Model:    ref.Model,
				Kind:     core.KindOutage,
				Message:  "circuit breaker open",
			})
			continue
		}

		if r.limiters != nil {
			if err := r.limiters.Wait(ctx, ref.Provider); err != nil {
				permit.Release()
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				// The local limiter cannot admit the call before the deadline;
				// the provider itself never saw the request.
				attempts = append(attempts, &core.ProviderError{
					Provider: ref.Provider,
					Model:    ref.Model,
					Kind:     core.KindRateLimit,
					Message:  "local rate limit: " + err.Error(),
					Cause:    err,
				})
				r.metrics.ObserveProviderAttempt(ref.Provider, ref.Model, string(core.KindRateLimit))
				continue
			}
		}

		resp, err := r.attempt(ctx, backend, ref, req)
		if err == nil {
			permit.Success()
			r.publishCircuit(ref.Provider, breaker)
			r.metrics.ObserveProviderSuccess(ref.Provider, ref.Model,
				time.Duration(resp.LatencyMs)*time.Millisecond, resp.Cost, resp.TokensIn, resp.TokensOut)
			return resp, nil
		}

		// Caller cancellation is not the provider's fault.
		if ctx.Err() != nil {
			permit.Release()
			return nil, ctx.Err()
		}

		pe := core.ClassifyProviderError(ref.Provider, ref.Model, err)
		attempts = append(attempts, pe)
		if permit.Failure() {
			log.Warn("circuit breaker opened", "failures", breaker.Snapshot().ConsecutiveFailures)
		}
		r.publishCircuit(ref.Provider, breaker)
		r.metrics.ObserveProviderAttempt(ref.Provider, ref.Model, string(pe.Kind))
		log.Warn("generation attempt failed, trying next model", "kind", pe.Kind, "error", pe.Message)
	}

	if len(attempts) == 0 {
		return nil, core.ErrInvalidRequest("no registered backend serves role " + role).
			WithDetail("role", role)
	}
	return nil, core.ExhaustedChainError(role, attempts)
}

func (r *Router) attempt(ctx context.Context, backend core.Backend, ref ModelRef, req core.GenerationRequest) (*core.GenerationResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	req.Model = ref.Model
	start := r.now()
	resp, err := backend.Generate(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &core.ProviderError{
				Provider: ref.Provider,
				Model:    ref.Model,
				Kind:     core.KindOutage,
				Message:  "request timed out after " + r.cfg.RequestTimeout.String(),
				Cause:    err,
			}
		}
		return nil, err
	}
	if resp == nil {
		return nil, &core.ProviderError{Provider: ref.Provider, Model: ref.Model, Kind: core.KindUnknown, Message: "empty response"}
	}
	if resp.ModelUsed == "" {
		resp.ModelUsed = ref.String()
	}
	if resp.LatencyMs == 0 {
		resp.LatencyMs = r.now().Sub(start).Milliseconds()
	}
	return resp, nil
}

func (r *Router) publishCircuit(provider string, cb *CircuitBreaker) {
	var v float64
	switch cb.State() {
	case core.CircuitHalfOpen:
		v = 1
	case core.CircuitOpen:
		v = 2
	}
	r.metrics.SetCircuitState(provider, v)
}

// ProviderStats is the per-provider view returned by GetStats.
type ProviderStats struct {
	Provider string `json:"provider"`
	Snapshot
}

// GetStats returns stats for every registered provider, sorted by name.
func (r *Router) GetStats() []ProviderStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderStats, 0, len(r.breakers))
	for name, cb := range r.breakers {
		out = append(out, ProviderStats{Provider: name, Snapshot: cb.Snapshot()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// ProviderHealth returns the health of a provider.
func (r *Router) ProviderHealth(provider string) (core.ProviderHealth, error) {
	_, cb := r.lookup(provider)
	if cb == nil {
		return "", core.ErrNotFound("provider", provider)
	}
	return cb.Health(), nil
}

// CircuitState returns the circuit state of a provider.
func (r *Router) CircuitState(provider string) (core.CircuitState, error) {
	_, cb := r.lookup(provider)
	if cb == nil {
		return "", core.ErrNotFound("provider", provider)
	}
	return cb.State(), nil
}

// ResetProvider forces a provider's circuit closed and clears its counters.
func (r *Router) ResetProvider(provider string) error {
	_, cb := r.lookup(provider)
	if cb == nil {
		return core.ErrNotFound("provider", provider)
	}
	cb.Reset()
	r.publishCircuit(provider, cb)
	r.logger.Info("provider reset", "provider", provider)
	return nil
}
