package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// OpenAIConfig configures an OpenAI-compatible backend. BaseURL lets the same
// backend talk to OpenRouter, Groq or a local gateway.
type OpenAIConfig struct {
	Name       string
	APIKey     string
	BaseURL    string
	Pricing    Pricing
	HTTPClient *http.Client
}

// OpenAIBackend calls the chat completions API.
type OpenAIBackend struct {
	name    string
	client  *openai.Client
	pricing Pricing
	now     func() time.Time
}

// NewOpenAIBackend creates a backend. Name defaults to "openai".
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	return &OpenAIBackend{
		name:    name,
		client:  openai.NewClientWithConfig(oc),
		pricing: cfg.Pricing,
		now:     time.Now,
	}
}

// Name returns the provider name.
func (b *OpenAIBackend) Name() string { return b.name }

// Generate runs one chat completion.
func (b *OpenAIBackend) Generate(ctx context.Context, req core.GenerationRequest) (*core.GenerationResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	start := b.now()
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   maxTokens(req.MaxTokens),
	})
	if err != nil {
		return nil, b.classify(req.Model, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, &core.ProviderError{Provider: b.name, Model: req.Model, Kind: core.KindUnknown, Message: "response contained no text"}
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &core.GenerationResponse{
		Text:      resp.Choices[0].Message.Content,
		ModelUsed: b.name + "/" + model,
		LatencyMs: b.now().Sub(start).Milliseconds(),
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
		Cost:      b.pricing.Cost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}, nil
}

func (b *OpenAIBackend) classify(model string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		pe := core.NewProviderErrorFromStatus(b.name, model, apiErr.HTTPStatusCode, apiErr.Message)
		pe.Cause = err
		return pe
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		msg := string(reqErr.Body)
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		pe := core.NewProviderErrorFromStatus(b.name, model, reqErr.HTTPStatusCode, msg)
		pe.Cause = err
		return pe
	}
	return core.ClassifyProviderError(b.name, model, err)
}

var _ core.Backend = (*OpenAIBackend)(nil)
