package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

var structValidate = validator.New()

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs the struct tag rules and the cross-field checks.
func (v *Validator) Validate(cfg *Config) error {
	v.validateTags(cfg)
	v.validateModels(cfg)
	v.validateProviders(cfg)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateTags(cfg *Config) {
	err := structValidate.Struct(cfg)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.addError("config", nil, err.Error())
		return
	}
	for _, fe := range verrs {
		v.addError(fieldPath(fe.Namespace()), fe.Value(), tagMessage(fe))
	}
}

// fieldPath turns "Config.Router.FailureThreshold" into "Router.FailureThreshold".
func fieldPath(ns string) string {
	return strings.TrimPrefix(ns, "Config.")
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "url":
		return "must be a URL"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// validateModels checks that every chain entry is provider/model and, outside
// dry-run mode, names a configured provider.
func (v *Validator) validateModels(cfg *Config) {
	check := func(field string, chain []string) {
		for i, ref := range chain {
			provider, model, ok := strings.Cut(strings.TrimSpace(ref), "/")
			if !ok || provider == "" || model == "" {
				v.addError(fmt.Sprintf("%s[%d]", field, i), ref, "must be provider/model")
				continue
			}
			if cfg.DryRun {
				continue
			}
			if _, known := cfg.Providers[provider]; !known {
				v.addError(fmt.Sprintf("%s[%d]", field, i), ref, "unknown provider "+provider)
			}
		}
	}
	check("models.default", cfg.Models.Default)

	roles := make([]string, 0, len(cfg.Models.Roles))
	for role := range cfg.Models.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		check("models.roles."+role, cfg.Models.Roles[role])
	}
}

func (v *Validator) validateProviders(cfg *Config) {
	if cfg.DryRun {
		return
	}
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.Contains(name, "/") {
			v.addError("providers."+name, name, "provider names cannot contain /")
		}
	}
}

// Validate validates cfg and wraps failures as a configuration error.
func Validate(cfg *Config) error {
	if err := NewValidator().Validate(cfg); err != nil {
		return core.ErrValidation(core.CodeInvalidConfig, "invalid configuration").WithCause(err)
	}
	return nil
}
