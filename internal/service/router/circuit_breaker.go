package router

import (
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// BreakerConfig configures a provider circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// FailureWindow bounds how far apart consecutive failures may be; a
	// failure arriving after a longer quiet period restarts the count.
	FailureWindow time.Duration
	// Cooldown is how long the circuit stays open before admitting a trial.
	Cooldown time.Duration
	// HealthWindow is the number of recent outcomes used for the failure ratio.
	HealthWindow int
	// DegradedFailureRatio marks a closed provider degraded when exceeded.
	DegradedFailureRatio float64
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:     3,
		FailureWindow:        2 * time.Minute,
		Cooldown:             30 * time.Second,
		HealthWindow:         20,
		DegradedFailureRatio: 0.3,
	}
}

func (c BreakerConfig) normalized() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = d.FailureWindow
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.HealthWindow <= 0 {
		c.HealthWindow = d.HealthWindow
	}
	if c.DegradedFailureRatio <= 0 {
		c.DegradedFailureRatio = d.DegradedFailureRatio
	}
	return c
}

// CircuitBreaker tracks the health of one provider. Closed circuits admit
// every request; an open circuit admits nothing until the cooldown elapses,
// then admits exactly one trial request in the half-open state. Only the
// outcome of that trial moves the circuit out of half-open.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg BreakerConfig
	now func() time.Time

	state               core.CircuitState
	consecutiveFailures int
	lastFailureAt       time.Time
	openedAt            time.Time
	trial               uint64 // id of the trial in flight, 0 when none
	lastTrial           uint64

	requests  int64
	successes int64
	failures  int64

	recent    []bool // ring of recent outcomes, true = failure
	recentPos int
	recentLen int
}

// Permit is an admission handed out by Allow. Exactly one of Success,
// Failure or Release must be called on it.
type Permit struct {
	cb    *CircuitBreaker
	trial uint64
}

// Trial reports whether the permit holds the half-open trial slot.
func (p Permit) Trial() bool { return p.trial != 0 }

// Success records a successful request.
func (p Permit) Success() { p.cb.recordSuccess(p.trial) }

// Failure records a failed request and reports whether the circuit opened.
func (p Permit) Failure() bool { return p.cb.recordFailure(p.trial) }

// Release gives the permit back without an outcome, e.g. when the caller
// cancelled before the provider answered.
func (p Permit) Release() { p.cb.release(p.trial) }

// NewCircuitBreaker creates a breaker in the closed state. A nil clock uses time.Now.
func NewCircuitBreaker(cfg BreakerConfig, clock func() time.Time) *CircuitBreaker {
	cfg = cfg.normalized()
	if clock == nil {
		clock = time.Now
	}
	return &CircuitBreaker{
		cfg:    cfg,
		now:    clock,
		state:  core.CircuitClosed,
		recent: make([]bool, cfg.HealthWindow),
	}
}

// Allow asks to send a request now. It performs the open -> half-open
// transition once the cooldown has elapsed, in which case the returned
// permit holds the single trial slot.
func (cb *CircuitBreaker) Allow() (Permit, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case core.CircuitClosed:
		return Permit{cb: cb}, true
	case core.CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return Permit{}, false
		}
		cb.state = core.CircuitHalfOpen
		return cb.startTrialLocked(), true
	case core.CircuitHalfOpen:
		if cb.trial != 0 {
			return Permit{}, false
		}
		return cb.startTrialLocked(), true
	}
	return Permit{}, false
}

func (cb *CircuitBreaker) startTrialLocked() Permit {
	cb.lastTrial++
	cb.trial = cb.lastTrial
	return Permit{cb: cb, trial: cb.trial}
}

// holdsTrialLocked reports whether trial is the half-open trial in flight.
func (cb *CircuitBreaker) holdsTrialLocked(trial uint64) bool {
	return trial != 0 && trial == cb.trial && cb.state == core.CircuitHalfOpen
}

func (cb *CircuitBreaker) release(trial uint64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.holdsTrialLocked(trial) {
		cb.trial = 0
	}
}

func (cb *CircuitBreaker) recordSuccess(trial uint64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	cb.successes++
	cb.pushOutcome(false)

	switch {
	case cb.state == core.CircuitClosed:
		cb.consecutiveFailures = 0
	case cb.holdsTrialLocked(trial):
		cb.state = core.CircuitClosed
		cb.consecutiveFailures = 0
		cb.trial = 0
	}
}

func (cb *CircuitBreaker) recordFailure(trial uint64) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.requests++
	cb.failures++
	cb.pushOutcome(true)

	switch {
	case cb.holdsTrialLocked(trial):
		cb.state = core.CircuitOpen
		cb.openedAt = now
		cb.trial = 0
		cb.consecutiveFailures++
		cb.lastFailureAt = now
		return true
	case cb.state != core.CircuitClosed:
		// Answer to a request admitted before the circuit opened.
		return false
	}

	if !cb.lastFailureAt.IsZero() && now.Sub(cb.lastFailureAt) > cb.cfg.FailureWindow {
		cb.consecutiveFailures = 0
	}
	cb.consecutiveFailures++
	cb.lastFailureAt = now

	if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
		cb.state = core.CircuitOpen
		cb.openedAt = now
		return true
	}
	return false
}

// Reset forces the circuit closed and clears all counters. Permits issued
// before the reset no longer affect the circuit state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = core.CircuitClosed
	cb.consecutiveFailures = 0
	cb.lastFailureAt = time.Time{}
	cb.openedAt = time.Time{}
	cb.trial = 0
	cb.requests, cb.successes, cb.failures = 0, 0, 0
	cb.recent = make([]bool, cb.cfg.HealthWindow)
	cb.recentPos, cb.recentLen = 0, 0
}

// State returns the current circuit state without side effects.
func (cb *CircuitBreaker) State() core.CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Health derives provider health from circuit state and recent failure ratio.
func (cb *CircuitBreaker) Health() core.ProviderHealth {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.healthLocked()
}

func (cb *CircuitBreaker) healthLocked() core.ProviderHealth {
	switch {
	case cb.state == core.CircuitOpen:
		return core.HealthDown
	case cb.state == core.CircuitHalfOpen:
		return core.HealthDegraded
	case cb.failureRatioLocked() > cb.cfg.DegradedFailureRatio:
		return core.HealthDegraded
	default:
		return core.HealthHealthy
	}
}

func (cb *CircuitBreaker) failureRatioLocked() float64 {
	if cb.recentLen == 0 {
		return 0
	}
	failed := 0
	for i := 0; i < cb.recentLen; i++ {
		if cb.recent[i] {
			failed++
		}
	}
	return float64(failed) / float64(cb.recentLen)
}

func (cb *CircuitBreaker) pushOutcome(failed bool) {
	cb.recent[cb.recentPos] = failed
	cb.recentPos = (cb.recentPos + 1) % len(cb.recent)
	if cb.recentLen < len(cb.recent) {
		cb.recentLen++
	}
}

// Snapshot is a consistent read of the breaker's counters.
type Snapshot struct {
	Health              core.ProviderHealth `json:"health"`
	CircuitState        core.CircuitState   `json:"circuit_state"`
	SuccessRate         float64             `json:"success_rate"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	Requests            int64               `json:"requests"`
	Failures            int64               `json:"failures"`
	RecentFailureRatio  float64             `json:"recent_failure_ratio"`
	CooldownUntil       *time.Time          `json:"cooldown_until,omitempty"`
}

// Snapshot returns the breaker's counters. SuccessRate is 1 when no request
// has been recorded.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	rate := 1.0
	if cb.requests > 0 {
		rate = float64(cb.successes) / float64(cb.requests)
	}
	s := Snapshot{
		Health:              cb.healthLocked(),
		CircuitState:        cb.state,
		SuccessRate:         rate,
		ConsecutiveFailures: cb.consecutiveFailures,
		Requests:            cb.requests,
		Failures:            cb.failures,
		RecentFailureRatio:  cb.failureRatioLocked(),
	}
	if cb.state == core.CircuitOpen {
		until := cb.openedAt.Add(cb.cfg.Cooldown)
		s.CooldownUntil = &until
	}
	return s
}
