package pipeline

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

//go:embed prompts/*.md.tmpl
var promptsFS embed.FS

// Template names.
const (
	tmplModerator         = "moderator"
	tmplPersona           = "persona"
	tmplQuestions         = "questions"
	tmplChallenge         = "challenge"
	tmplChallengeResponse = "challenge-response"
	tmplResolution        = "resolution"
	tmplSynthesis         = "synthesis"
	tmplReview            = "review"
	tmplVote              = "vote"
	tmplSpec              = "spec"
)

// maxJSONInPrompt bounds how much of a tool payload is inlined into a prompt.
const maxJSONInPrompt = 1500

// PromptData is the input to every stage template.
type PromptData struct {
	Idea         string
	Round        int
	Comment      string
	Personas     []core.PersonaConfig
	Current      core.Round
	Previous     *core.Round
	Rounds       []core.Round
	MaxQuestions int
}

// PromptRenderer renders prompts from the embedded templates.
type PromptRenderer struct {
	templates map[string]*template.Template
	mu        sync.RWMutex
}

// NewPromptRenderer parses every embedded template.
func NewPromptRenderer() (*PromptRenderer, error) {
	r := &PromptRenderer{templates: make(map[string]*template.Template)}
	if err := r.loadTemplates(); err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	return r, nil
}

func (r *PromptRenderer) loadTemplates() error {
	return fs.WalkDir(promptsFS, "prompts", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md.tmpl") {
			return nil
		}
		content, err := promptsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(path, "prompts/"), ".md.tmpl")
		tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(string(content))
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.templates[name] = tmpl
		return nil
	})
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join":      strings.Join,
		"trimSpace": strings.TrimSpace,
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
		"add":       func(a, b int) int { return a + b },
		"json":      compactJSON,
	}
}

func compactJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(b)
	if len(s) > maxJSONInPrompt {
		s = s[:maxJSONInPrompt] + "..."
	}
	return s
}

// Render executes the named stage template.
func (r *PromptRenderer) Render(name string, data PromptData) (string, error) {
	return r.render(name, data)
}

// ModeratorSystem returns the system prompt for stage-level requests.
func (r *PromptRenderer) ModeratorSystem() (string, error) {
	return r.render(tmplModerator, nil)
}

// PersonaSystem renders a persona's own template and wraps it in the shared
// persona system prompt.
func (r *PromptRenderer) PersonaSystem(p core.PersonaConfig, idea string) (string, error) {
	own, err := template.New(p.ID).Parse(p.PromptTemplate)
	if err != nil {
		return "", fmt.Errorf("parsing persona %s template: %w", p.ID, err)
	}
	var buf bytes.Buffer
	if err := own.Execute(&buf, struct {
		ID, Name, Idea string
	}{p.ID, p.DisplayName(), idea}); err != nil {
		return "", fmt.Errorf("executing persona %s template: %w", p.ID, err)
	}
	return r.render(tmplPersona, struct {
		Persona, Idea string
	}{strings.TrimSpace(buf.String()), idea})
}

func (r *PromptRenderer) render(name string, data interface{}) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %q not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.String(), nil
}

// ListTemplates returns available template names.
func (r *PromptRenderer) ListTemplates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
