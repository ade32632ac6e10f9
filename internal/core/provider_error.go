package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ProviderErrorKind classifies a single failed generation attempt.
type ProviderErrorKind string

const (
	KindRateLimit      ProviderErrorKind = "rateLimit"
	KindOutage         ProviderErrorKind = "outage"
	KindInvalidRequest ProviderErrorKind = "invalidRequest"
	KindUnknown        ProviderErrorKind = "unknown"
)

// ProviderError describes one failed attempt against a backend model.
type ProviderError struct {
	Provider   string
	Model      string
	Kind       ProviderErrorKind
	StatusCode int
	Message    string
	RetryAfter *time.Duration
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = "request failed"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s/%s %s (status=%d): %s", e.Provider, e.Model, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s/%s %s: %s", e.Provider, e.Model, e.Kind, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderErrorFromStatus classifies an HTTP failure by status code, refining
// ambiguous codes with message hints.
func NewProviderErrorFromStatus(provider, model string, status int, message string) *ProviderError {
	pe := &ProviderError{
		Provider:   provider,
		Model:      model,
		StatusCode: status,
		Message:    message,
	}
	switch {
	case status == http.StatusTooManyRequests:
		pe.Kind = KindRateLimit
	case status == http.StatusRequestTimeout || status >= 500:
		pe.Kind = KindOutage
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity ||
		status == http.StatusRequestEntityTooLarge || status == http.StatusNotFound:
		pe.Kind = KindInvalidRequest
		if looksRateLimited(message) {
			pe.Kind = KindRateLimit
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		// Bad credentials take the provider out of service for this process.
		pe.Kind = KindOutage
	default:
		pe.Kind = classifyMessage(message)
	}
	return pe
}

// ClassifyProviderError converts an arbitrary backend error into a ProviderError.
func ClassifyProviderError(provider, model string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			pe.Provider = provider
		}
		if pe.Model == "" {
			pe.Model = model
		}
		return pe
	}
	kind := classifyMessage(err.Error())
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindOutage
	}
	return &ProviderError{
		Provider: provider,
		Model:    model,
		Kind:     kind,
		Message:  err.Error(),
		Cause:    err,
	}
}

func looksRateLimited(msg string) bool {
	return containsAny(msg, "rate limit", "rate_limit", "too many requests", "quota exceeded", "429")
}

func classifyMessage(msg string) ProviderErrorKind {
	switch {
	case looksRateLimited(msg):
		return KindRateLimit
	case containsAny(msg, "timeout", "deadline exceeded", "connection refused", "connection reset",
		"no such host", "network unreachable", "service unavailable", "bad gateway",
		"gateway timeout", "overloaded", "internal server error", "eof"):
		return KindOutage
	case containsAny(msg, "invalid request", "invalid_request", "context length", "too many tokens",
		"does not exist", "model not found"):
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// ParseRetryAfter parses a Retry-After header (seconds or HTTP-date).
func ParseRetryAfter(v string, now time.Time) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

// DominantKind picks the kind that best describes a set of failed attempts:
// the most frequent kind, ties broken by rateLimit > outage > invalidRequest > unknown.
func DominantKind(attempts []*ProviderError) ProviderErrorKind {
	if len(attempts) == 0 {
		return KindUnknown
	}
	counts := make(map[ProviderErrorKind]int)
	for _, a := range attempts {
		if a != nil {
			counts[a.Kind]++
		}
	}
	best := KindUnknown
	bestCount := -1
	// Iterating in priority order makes the first kind win ties.
	for _, k := range []ProviderErrorKind{KindRateLimit, KindOutage, KindInvalidRequest, KindUnknown} {
		c := counts[k]
		if c > bestCount {
			best = k
			bestCount = c
		}
	}
	return best
}

// ExhaustedChainError builds the error returned once a fallback chain has no
// entries left. The category follows the dominant attempt kind.
func ExhaustedChainError(role string, attempts []*ProviderError) *DomainError {
	kind := DominantKind(attempts)
	msg := fmt.Sprintf("all %d models in the %q fallback chain failed", len(attempts), role)

	var err *DomainError
	switch kind {
	case KindRateLimit:
		err = ErrRateLimit(msg)
	case KindOutage:
		err = ErrOutage(msg)
	case KindInvalidRequest:
		err = ErrInvalidRequest(msg)
	default:
		err = ErrUnknownProvider(msg)
	}

	summary := make([]string, 0, len(attempts))
	for _, a := range attempts {
		summary = append(summary, a.Error())
	}
	err.WithDetail("role", role).WithDetail("attempts", summary)
	if len(attempts) > 0 {
		err.WithCause(attempts[len(attempts)-1])
	}
	return err
}
