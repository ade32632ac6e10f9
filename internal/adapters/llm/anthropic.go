package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

const (
	defaultAnthropicURL     = "https://api.anthropic.com"
	defaultAnthropicVersion = "2023-06-01"
)

// AnthropicConfig configures the Anthropic Messages API backend.
type AnthropicConfig struct {
	Name       string
	APIKey     string
	BaseURL    string
	Version    string
	Pricing    Pricing
	HTTPClient *http.Client
}

// AnthropicBackend calls the Messages API.
type AnthropicBackend struct {
	name    string
	apiKey  string
	baseURL string
	version string
	pricing Pricing
	client  *http.Client
	now     func() time.Time
}

// NewAnthropicBackend creates a backend. Name defaults to "anthropic".
func NewAnthropicBackend(cfg AnthropicConfig) *AnthropicBackend {
	b := &AnthropicBackend{
		name:    cfg.Name,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		version: cfg.Version,
		pricing: cfg.Pricing,
		client:  cfg.HTTPClient,
		now:     time.Now,
	}
	if b.name == "" {
		b.name = "anthropic"
	}
	if b.baseURL == "" {
		b.baseURL = defaultAnthropicURL
	}
	if b.version == "" {
		b.version = defaultAnthropicVersion
	}
	if b.client == nil {
		b.client = &http.Client{}
	}
	return b
}

// Name returns the provider name.
func (b *AnthropicBackend) Name() string { return b.name }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends one Messages API request.
func (b *AnthropicBackend) Generate(ctx context.Context, req core.GenerationRequest) (*core.GenerationResponse, error) {
	body := anthropicRequest{
		Model:     req.Model,
		MaxTokens: maxTokens(req.MaxTokens),
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Prompt}},
	}
	if req.Temperature > 0 {
		t := req.Temperature
		if t > 1 {
			t = 1
		}
		body.Temperature = &t
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", b.apiKey)
	httpReq.Header.Set("anthropic-version", b.version)

	start := b.now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, core.ClassifyProviderError(b.name, req.Model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, core.ClassifyProviderError(b.name, req.Model, fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		var apiErr anthropicError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Type + ": " + apiErr.Error.Message
		}
		pe := core.NewProviderErrorFromStatus(b.name, req.Model, resp.StatusCode, msg)
		pe.RetryAfter = core.ParseRetryAfter(resp.Header.Get("Retry-After"), b.now())
		return nil, pe
	}

	var out anthropicResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &core.ProviderError{Provider: b.name, Model: req.Model, Kind: core.KindUnknown, Message: "malformed response body", Cause: err}
	}
	var text strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, &core.ProviderError{Provider: b.name, Model: req.Model, Kind: core.KindUnknown, Message: "response contained no text"}
	}

	model := out.Model
	if model == "" {
		model = req.Model
	}
	return &core.GenerationResponse{
		Text:      text.String(),
		ModelUsed: b.name + "/" + model,
		LatencyMs: b.now().Sub(start).Milliseconds(),
		TokensIn:  out.Usage.InputTokens,
		TokensOut: out.Usage.OutputTokens,
		Cost:      b.pricing.Cost(out.Usage.InputTokens, out.Usage.OutputTokens),
	}, nil
}

var _ core.Backend = (*AnthropicBackend)(nil)
