package llm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// Backend types.
const (
	TypeOpenAI    = "openai"
	TypeAnthropic = "anthropic"
)

// ProviderSpec describes one configured provider.
type ProviderSpec struct {
	Name    string
	Type    string
	BaseURL string
	APIKey  string
	Pricing Pricing
	Client  *http.Client
}

// NewBackend builds the backend for spec. An empty type is inferred from the
// provider name.
func NewBackend(spec ProviderSpec) (core.Backend, error) {
	typ := strings.ToLower(strings.TrimSpace(spec.Type))
	if typ == "" {
		typ = TypeOpenAI
		if spec.Name == TypeAnthropic {
			typ = TypeAnthropic
		}
	}
	switch typ {
	case TypeOpenAI:
		return NewOpenAIBackend(OpenAIConfig{
			Name: spec.Name, APIKey: spec.APIKey, BaseURL: spec.BaseURL, Pricing: spec.Pricing, HTTPClient: spec.Client,
		}), nil
	case TypeAnthropic:
		return NewAnthropicBackend(AnthropicConfig{
			Name: spec.Name, APIKey: spec.APIKey, BaseURL: spec.BaseURL, Pricing: spec.Pricing, HTTPClient: spec.Client,
		}), nil
	default:
		return nil, core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("provider %s: unknown type %q (want openai or anthropic)", spec.Name, spec.Type))
	}
}
