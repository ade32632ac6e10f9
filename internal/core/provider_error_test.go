package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderErrorFromStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    ProviderErrorKind
	}{
		{"429", 429, "slow down", KindRateLimit},
		{"500", 500, "boom", KindOutage},
		{"503", 503, "", KindOutage},
		{"408", 408, "", KindOutage},
		{"401", 401, "bad key", KindOutage},
		{"400", 400, "bad field", KindInvalidRequest},
		{"400 with quota message", 400, "Quota exceeded for model", KindRateLimit},
		{"404", 404, "model missing", KindInvalidRequest},
		{"422", 422, "", KindInvalidRequest},
		{"418 unclassified", 418, "teapot", KindUnknown},
		{"418 overloaded", 418, "server overloaded", KindOutage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := NewProviderErrorFromStatus("openai", "gpt-4o", tt.status, tt.message)
			assert.Equal(t, tt.want, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestClassifyProviderError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, ClassifyProviderError("p", "m", nil))
	})

	t.Run("deadline exceeded is outage", func(t *testing.T) {
		err := fmt.Errorf("call: %w", context.DeadlineExceeded)
		pe := ClassifyProviderError("p", "m", err)
		assert.Equal(t, KindOutage, pe.Kind)
		assert.True(t, errors.Is(pe, context.DeadlineExceeded))
	})

	t.Run("existing provider error keeps kind and fills names", func(t *testing.T) {
		orig := &ProviderError{Kind: KindInvalidRequest, Message: "bad"}
		pe := ClassifyProviderError("anthropic", "claude", fmt.Errorf("wrapped: %w", orig))
		assert.Same(t, orig, pe)
		assert.Equal(t, "anthropic", pe.Provider)
		assert.Equal(t, "claude", pe.Model)
	})

	t.Run("message hints", func(t *testing.T) {
		assert.Equal(t, KindRateLimit, ClassifyProviderError("p", "m", errors.New("Rate limit reached")).Kind)
		assert.Equal(t, KindOutage, ClassifyProviderError("p", "m", errors.New("connection refused")).Kind)
		assert.Equal(t, KindUnknown, ClassifyProviderError("p", "m", errors.New("weird")).Kind)
	})
}

func TestProviderError_Error(t *testing.T) {
	pe := &ProviderError{Provider: "openai", Model: "gpt-4o", Kind: KindRateLimit, StatusCode: 429, Message: "slow"}
	assert.Equal(t, "openai/gpt-4o rateLimit (status=429): slow", pe.Error())

	pe = &ProviderError{Provider: "openai", Model: "gpt-4o", Kind: KindUnknown}
	assert.Equal(t, "openai/gpt-4o unknown: request failed", pe.Error())
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	d := ParseRetryAfter("30", now)
	require.NotNil(t, d)
	assert.Equal(t, 30*time.Second, *d)

	d = ParseRetryAfter(now.Add(time.Minute).Format(http.TimeFormat), now)
	require.NotNil(t, d)
	assert.Equal(t, time.Minute, *d)

	assert.Nil(t, ParseRetryAfter("", now))
	assert.Nil(t, ParseRetryAfter("soon", now))
}

func TestDominantKind(t *testing.T) {
	mk := func(kinds ...ProviderErrorKind) []*ProviderError {
		out := make([]*ProviderError, 0, len(kinds))
		for _, k := range kinds {
			out = append(out, &ProviderError{Kind: k})
		}
		return out
	}

	tests := []struct {
		name     string
		attempts []*ProviderError
		want     ProviderErrorKind
	}{
		{"empty", nil, KindUnknown},
		{"single outage", mk(KindOutage), KindOutage},
		{"majority wins", mk(KindOutage, KindInvalidRequest, KindInvalidRequest), KindInvalidRequest},
		{"tie prefers rate limit", mk(KindOutage, KindRateLimit), KindRateLimit},
		{"tie prefers outage over invalid", mk(KindInvalidRequest, KindOutage), KindOutage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DominantKind(tt.attempts))
		})
	}
}

func TestExhaustedChainError(t *testing.T) {
	attempts := []*ProviderError{
		{Provider: "openai", Model: "gpt-4o", Kind: KindRateLimit},
		{Provider: "anthropic", Model: "claude", Kind: KindRateLimit},
	}
	err := ExhaustedChainError("synthesis", attempts)

	assert.Equal(t, ErrCatRateLimit, err.Category)
	assert.Equal(t, "synthesis", err.Details["role"])
	assert.Len(t, err.Details["attempts"], 2)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "anthropic", pe.Provider)

	empty := ExhaustedChainError("questions", nil)
	assert.Equal(t, ErrCatUnknown, empty.Category)
	assert.Nil(t, empty.Cause)
}
