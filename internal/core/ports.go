package core

import (
	"context"
)

// =============================================================================
// Backend Port
// =============================================================================

// Backend is a concrete model provider the router can send generation
// requests to.
type Backend interface {
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string

	// Generate runs a single completion against the named model.
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResponse, error)
}

// GenerationRequest configures one generation call.
type GenerationRequest struct {
	Role        string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int

	// ModelOverride, when set as "provider/model", is tried before the
	// role's configured chain.
	ModelOverride string

	// Model is filled in by the router with the concrete model of the
	// chain entry being attempted.
	Model string
}

// ProviderHealth is the coarse health of a provider as seen by the router.
type ProviderHealth string

const (
	HealthHealthy  ProviderHealth = "healthy"
	HealthDegraded ProviderHealth = "degraded"
	HealthDown     ProviderHealth = "down"
)

// CircuitState is the state of a provider's circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// DefaultMaxTokens is used when a request does not set MaxTokens.
const DefaultMaxTokens = 4096

// GenerationResponse contains the result of a successful generation.
type GenerationResponse struct {
	Text      string  `json:"text"`
	ModelUsed string  `json:"model_used"`
	LatencyMs int64   `json:"latency_ms"`
	Cost      float64 `json:"cost"`
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
}

// =============================================================================
// Session Repository Port
// =============================================================================

// SessionRepository persists session snapshots.
type SessionRepository interface {
	// Save persists a snapshot, replacing any previous one for the session.
	Save(ctx context.Context, snap *Snapshot) error

	// Load retrieves the latest snapshot for a session.
	// Returns a not-found DomainError when no snapshot exists.
	Load(ctx context.Context, sessionID string) (*Snapshot, error)

	// List returns summaries of all persisted sessions, most recent first.
	List(ctx context.Context) ([]SessionSummary, error)

	// Delete removes a persisted session.
	Delete(ctx context.Context, sessionID string) error

	// Close releases any held resources.
	Close() error
}
