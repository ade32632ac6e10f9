package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/fsutil"
)

var (
	personaValidate *validator.Validate
	personaIDRe     = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

func init() {
	personaValidate = validator.New()
	_ = personaValidate.RegisterValidation("personaid", func(fl validator.FieldLevel) bool {
		return personaIDRe.MatchString(fl.Field().String())
	})
}

// personaRules adds the id format check on top of the struct tags declared on
// core.PersonaConfig.
type personaRules struct {
	ID string `validate:"personaid"`
}

// DefaultPersonas returns the built-in roster.
func DefaultPersonas() []core.PersonaConfig {
	return []core.PersonaConfig{
		{
			ID:          "product-manager",
			Name:        "Product Manager",
			Temperature: 0.7,
			Enabled:     true,
			PromptTemplate: "You are {{.Name}}, a senior product manager. You care about the target user, " +
				"the problem being solved, scope for a first release, and how success is measured. " +
				"Push back on features that do not serve the core use case of: {{.Idea}}",
		},
		{
			ID:          "architect",
			Name:        "Software Architect",
			Temperature: 0.4,
			Enabled:     true,
			PromptTemplate: "You are {{.Name}}. You evaluate technical feasibility, system boundaries, data models, " +
				"integrations and operational cost. Prefer boring, proven technology unless there is a clear reason not to.",
		},
		{
			ID:          "ux-designer",
			Name:        "UX Designer",
			Temperature: 0.8,
			Enabled:     true,
			PromptTemplate: "You are {{.Name}}. You focus on user journeys, onboarding, accessibility and the " +
				"smallest interface that lets a first-time user succeed.",
		},
		{
			ID:          "security-engineer",
			Name:        "Security Engineer",
			Temperature: 0.3,
			Enabled:     true,
			PromptTemplate: "You are {{.Name}}. You look for abuse cases, privacy obligations, data retention, " +
				"authentication weaknesses and compliance requirements.",
		},
		{
			ID:          "devils-advocate",
			Name:        "Devil's Advocate",
			Temperature: 0.9,
			Enabled:     true,
			PromptTemplate: "You are {{.Name}}. Your job is to find the weakest assumptions in the plan, argue the " +
				"strongest counter-position, and refuse to approve anything that has not addressed its main risks.",
		},
	}
}

type personaFile struct {
	Personas []core.PersonaConfig `yaml:"personas"`
}

// LoadPersonas reads a YAML roster file of the form
//
//	personas:
//	  - id: architect
//	    name: Software Architect
//	    prompt_template: "You are ..."
//	    temperature: 0.4
//	    enabled: true
func LoadPersonas(path string) ([]core.PersonaConfig, error) {
	data, err := fsutil.ReadFile(path, 0)
	if err != nil {
		return nil, fmt.Errorf("reading persona roster: %w", err)
	}
	var f personaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, core.ErrValidation(core.CodeInvalidPersona, "parsing persona roster: "+err.Error()).WithCause(err)
	}
	if err := ValidatePersonas(f.Personas); err != nil {
		return nil, err
	}
	return f.Personas, nil
}

// ValidatePersonas checks every persona and the roster as a whole: IDs must
// be unique, templates must parse and at least one persona must be enabled.
func ValidatePersonas(personas []core.PersonaConfig) error {
	if len(personas) == 0 {
		return core.ErrValidation(core.CodeNoPersonas, "at least one persona is required")
	}
	seen := make(map[string]bool, len(personas))
	enabled := 0
	var problems []string
	for i, p := range personas {
		label := p.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		if err := personaValidate.Struct(p); err != nil {
			problems = append(problems, fmt.Sprintf("persona %s: %s", label, describeValidation(err)))
			continue
		}
		if err := personaValidate.Struct(personaRules{ID: p.ID}); err != nil {
			problems = append(problems, fmt.Sprintf("persona %s: id must be lowercase letters, digits, '-' or '_'", label))
			continue
		}
		if seen[p.ID] {
			problems = append(problems, fmt.Sprintf("persona %s: duplicate id", label))
			continue
		}
		seen[p.ID] = true
		if _, err := template.New(p.ID).Option("missingkey=error").Parse(p.PromptTemplate); err != nil {
			problems = append(problems, fmt.Sprintf("persona %s: prompt template: %v", label, err))
			continue
		}
		if p.Enabled {
			enabled++
		}
	}
	if len(problems) > 0 {
		return core.ErrValidation(core.CodeInvalidPersona, strings.Join(problems, "; "))
	}
	if enabled == 0 {
		return core.ErrValidation(core.CodeNoPersonas, "no persona is enabled")
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "gte", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be between 0 and 2", field))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s is longer than %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	sort.Strings(msgs)
	return strings.Join(msgs, ", ")
}

// PersonaIDs returns the ids of the given personas in order.
func PersonaIDs(personas []core.PersonaConfig) []string {
	ids := make([]string, len(personas))
	for i, p := range personas {
		ids[i] = p.ID
	}
	return ids
}
