package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "quorum_spec"

// Metrics collects pipeline, provider and tool metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	ProviderCost     *prometheus.CounterVec
	ProviderTokens   *prometheus.CounterVec
	CircuitState     *prometheus.GaugeVec
	ToolCalls        *prometheus.CounterVec
	ToolLatency      *prometheus.HistogramVec
	StageDuration    *prometheus.HistogramVec
	Rounds           *prometheus.CounterVec
	ApprovalRate     prometheus.Histogram
}

// NewMetrics creates the metric vectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "provider",
				Name:      "requests_total",
				Help:      "Generation attempts by provider, model and outcome",
			},
			[]string{"provider", "model", "outcome"},
		),
		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "provider",
				Name:      "latency_seconds",
				Help:      "Latency of successful generation calls",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),
		ProviderCost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "provider",
				Name:      "cost_usd_total",
				Help:      "Estimated spend by provider",
			},
			[]string{"provider"},
		),
		ProviderTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "provider",
				Name:      "tokens_total",
				Help:      "Tokens processed by provider and direction",
			},
			[]string{"provider", "direction"},
		),
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "provider",
				Name:      "circuit_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"provider"},
		),
		ToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "tool",
				Name:      "calls_total",
				Help:      "Tool invocations by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		ToolLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "tool",
				Name:      "latency_seconds",
				Help:      "Tool invocation latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
			},
			[]string{"tool"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Stage wall time by stage and outcome",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"stage", "outcome"},
		),
		Rounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "rounds_total",
				Help:      "Completed rounds by decision",
			},
			[]string{"decision"},
		),
		ApprovalRate: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "approval_rate",
				Help:      "Approval rate of completed rounds",
				Buckets:   []float64{0, 0.2, 0.4, 0.6, 0.8, 1},
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.ProviderRequests, m.ProviderLatency, m.ProviderCost, m.ProviderTokens,
			m.CircuitState, m.ToolCalls, m.ToolLatency, m.StageDuration,
			m.Rounds, m.ApprovalRate,
		)
	}
	return m
}

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeSkipped  = "skipped"
	OutcomeFinalize = "finalize"
	OutcomeContinue = "continue"
)

// ObserveProviderSuccess records a successful generation.
func (m *Metrics) ObserveProviderSuccess(provider, model string, latency time.Duration, cost float64, tokensIn, tokensOut int) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, model, OutcomeSuccess).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(latency.Seconds())
	if cost > 0 {
		m.ProviderCost.WithLabelValues(provider).Add(cost)
	}
	m.ProviderTokens.WithLabelValues(provider, "in").Add(float64(tokensIn))
	m.ProviderTokens.WithLabelValues(provider, "out").Add(float64(tokensOut))
}

// ObserveProviderAttempt records a non-successful attempt with outcome as
// the error kind or OutcomeSkipped.
func (m *Metrics) ObserveProviderAttempt(provider, model, outcome string) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, model, outcome).Inc()
}

// SetCircuitState publishes the breaker state as 0, 1 or 2.
func (m *Metrics) SetCircuitState(provider string, value float64) {
	if m == nil {
		return
	}
	m.CircuitState.WithLabelValues(provider).Set(value)
}

// ObserveTool records one tool invocation.
func (m *Metrics) ObserveTool(tool string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
	m.ToolLatency.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveStage records stage wall time.
func (m *Metrics) ObserveStage(stage string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
	}
	m.StageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// ObserveRound records a completed round and its consensus decision.
func (m *Metrics) ObserveRound(d Decision) {
	if m == nil {
		return
	}
	decision := OutcomeContinue
	if d.Finalize {
		decision = OutcomeFinalize
	}
	m.Rounds.WithLabelValues(decision).Inc()
	m.ApprovalRate.Observe(d.ApprovalRate)
}
