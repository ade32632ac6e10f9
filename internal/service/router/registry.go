package router

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ModelRef identifies a concrete model on a provider.
type ModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ParseModelRef parses "provider/model". The model part may itself contain
// slashes (e.g. "openrouter/meta-llama/llama-3").
func ParseModelRef(s string) (ModelRef, error) {
	s = strings.TrimSpace(s)
	provider, model, ok := strings.Cut(s, "/")
	if !ok || provider == "" || model == "" {
		return ModelRef{}, fmt.Errorf("invalid model reference %q: expected provider/model", s)
	}
	return ModelRef{Provider: provider, Model: model}, nil
}

// String returns "provider/model".
func (m ModelRef) String() string {
	return m.Provider + "/" + m.Model
}

// Chain is a primary model plus ordered fallbacks.
type Chain struct {
	Primary   ModelRef   `json:"primary"`
	Fallbacks []ModelRef `json:"fallbacks,omitempty"`
}

// Models returns the chain entries in attempt order.
func (c Chain) Models() []ModelRef {
	out := make([]ModelRef, 0, 1+len(c.Fallbacks))
	out = append(out, c.Primary)
	out = append(out, c.Fallbacks...)
	return out
}

// ParseChain builds a chain from string references. The first entry is the primary.
func ParseChain(refs []string) (Chain, error) {
	if len(refs) == 0 {
		return Chain{}, fmt.Errorf("empty model chain")
	}
	models := make([]ModelRef, 0, len(refs))
	for _, r := range refs {
		m, err := ParseModelRef(r)
		if err != nil {
			return Chain{}, err
		}
		models = append(models, m)
	}
	return Chain{Primary: models[0], Fallbacks: models[1:]}, nil
}

// ModelRegistry maps roles (persona ids and stage names) to fallback chains.
// Roles without an explicit chain use the default chain.
type ModelRegistry struct {
	mu       sync.RWMutex
	chains   map[string]Chain
	fallback Chain
}

// NewModelRegistry creates a registry with the given default chain.
func NewModelRegistry(defaultChain Chain) *ModelRegistry {
	return &ModelRegistry{
		chains:   make(map[string]Chain),
		fallback: defaultChain,
	}
}

// Set assigns a chain to a role.
func (r *ModelRegistry) Set(role string, chain Chain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[role] = chain
}

// Resolve returns the chain for a role.
func (r *ModelRegistry) Resolve(role string) Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.chains[role]; ok {
		return c
	}
	return r.fallback
}

// Roles returns the roles with an explicit chain, sorted.
func (r *ModelRegistry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles := make([]string, 0, len(r.chains))
	for role := range r.chains {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
