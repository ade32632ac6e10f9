package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/testutil"
)

func TestDefaultPersonasAreValid(t *testing.T) {
	personas := DefaultPersonas()
	require.NoError(t, ValidatePersonas(personas))
	assert.Equal(t, []string{"product-manager", "architect", "ux-designer", "security-engineer", "devils-advocate"}, PersonaIDs(personas))
}

func TestValidatePersonas(t *testing.T) {
	valid := func() []core.PersonaConfig { return testutil.NewTestPersonas(2) }

	tests := []struct {
		name    string
		mutate  func([]core.PersonaConfig) []core.PersonaConfig
		code    string
		message string
	}{
		{"empty roster", func([]core.PersonaConfig) []core.PersonaConfig { return nil }, core.CodeNoPersonas, "at least one"},
		{"missing id", func(p []core.PersonaConfig) []core.PersonaConfig { p[0].ID = ""; return p }, core.CodeInvalidPersona, "id is required"},
		{"bad id", func(p []core.PersonaConfig) []core.PersonaConfig { p[0].ID = "Bad ID"; return p }, core.CodeInvalidPersona, "lowercase"},
		{"duplicate", func(p []core.PersonaConfig) []core.PersonaConfig { p[1].ID = p[0].ID; return p }, core.CodeInvalidPersona, "duplicate"},
		{"temperature", func(p []core.PersonaConfig) []core.PersonaConfig { p[0].Temperature = 3; return p }, core.CodeInvalidPersona, "between 0 and 2"},
		{"missing template", func(p []core.PersonaConfig) []core.PersonaConfig { p[0].PromptTemplate = ""; return p }, core.CodeInvalidPersona, "prompttemplate is required"},
		{"broken template", func(p []core.PersonaConfig) []core.PersonaConfig { p[0].PromptTemplate = "{{.Name"; return p }, core.CodeInvalidPersona, "prompt template"},
		{"all disabled", func(p []core.PersonaConfig) []core.PersonaConfig {
			for i := range p {
				p[i].Enabled = false
			}
			return p
		}, core.CodeNoPersonas, "no persona is enabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePersonas(tt.mutate(valid()))
			require.Error(t, err)
			assert.True(t, core.IsCode(err, tt.code), "got %v", err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadPersonas(t *testing.T) {
	dir := testutil.TempDir(t)
	path := testutil.TempFile(t, dir, "personas.yaml", `personas:
  - id: cfo
    name: Chief Financial Officer
    prompt_template: "You are {{.Name}}. Judge {{.Idea}} on unit economics."
    temperature: 0.3
    enabled: true
  - id: lawyer
    prompt_template: "You are a lawyer."
    temperature: 0.2
    enabled: false
`)

	personas, err := LoadPersonas(path)
	require.NoError(t, err)
	require.Len(t, personas, 2)
	assert.Equal(t, "cfo", personas[0].ID)
	assert.Equal(t, 0.3, personas[0].Temperature)
	assert.False(t, personas[1].Enabled)
	assert.Equal(t, "lawyer", personas[1].DisplayName())
}

func TestLoadPersonas_Errors(t *testing.T) {
	dir := testutil.TempDir(t)

	_, err := LoadPersonas(dir + "/missing.yaml")
	require.Error(t, err)

	bad := testutil.TempFile(t, dir, "bad.yaml", "personas: [unclosed")
	_, err = LoadPersonas(bad)
	assert.True(t, core.IsCode(err, core.CodeInvalidPersona))

	empty := testutil.TempFile(t, dir, "empty.yaml", "personas: []\n")
	_, err = LoadPersonas(empty)
	assert.True(t, core.IsCode(err, core.CodeNoPersonas))
}
