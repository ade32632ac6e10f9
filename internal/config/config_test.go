package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/testutil"
)

func loadFile(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := testutil.TempFile(t, testutil.TempDir(t), "config.yaml", content)
	return NewLoader().WithConfigFile(path).Load()
}

func TestLoader_DefaultConfigYAMLIsValid(t *testing.T) {
	cfg, err := loadFile(t, DefaultConfigYAML)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, []string{"openai/gpt-4o-mini", "anthropic/claude-3-5-haiku-latest"}, cfg.Models.Default)
	assert.Equal(t, 30*time.Second, cfg.Router.Cooldown)
	assert.Equal(t, 3, cfg.Router.FailureThreshold)
	assert.Equal(t, 0.6, cfg.Consensus.ApprovalThreshold)
	assert.Equal(t, 24*time.Hour, cfg.State.MaxSnapshotAge)
	assert.Equal(t, "anthropic", cfg.Providers["anthropic"].Type)
	assert.Len(t, cfg.Models.Roles["spec"], 2)
}

func TestLoader_DefaultsWithoutProvidersRequireDryRun(t *testing.T) {
	_, err := loadFile(t, "log:\n  level: debug\n")
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeInvalidConfig))
	assert.Contains(t, err.Error(), "unknown provider openai")

	cfg, err := loadFile(t, "dry_run: true\n")
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, DefaultStatePath, cfg.State.Path)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("QUORUM_SPEC_CONSENSUS_MAX_ROUNDS", "5")
	t.Setenv("QUORUM_SPEC_DRY_RUN", "true")

	cfg, err := loadFile(t, "consensus:\n  max_rounds: 2\n")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Consensus.MaxRounds)
	assert.True(t, cfg.DryRun)
}

func TestLoader_ResolvesSecretsFromEnv(t *testing.T) {
	t.Setenv("MY_OPENAI_KEY", "sk-from-env")
	t.Setenv("GROQ_API_KEY", "gsk-implicit")
	t.Setenv("TAVILY_API_KEY", "tvly")

	cfg, err := loadFile(t, `
providers:
  openai:
    api_key_env: MY_OPENAI_KEY
  groq:
    base_url: https://api.groq.com/openai/v1
models:
  default: [openai/gpt-4o-mini, groq/llama-3.1-70b]
`)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Providers["openai"].APIKey)
	assert.Equal(t, "gsk-implicit", cfg.Providers["groq"].APIKey)
	assert.Equal(t, "tvly", cfg.Tools.WebSearch.APIKey)
}

func TestLoader_MalformedFile(t *testing.T) {
	_, err := loadFile(t, "log: [unclosed\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestValidator(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Log:       LogConfig{Level: "info", Format: "auto"},
			Providers: map[string]ProviderConfig{"openai": {Type: "openai"}},
			Models:    ModelsConfig{Default: []string{"openai/gpt-4o"}},
			Router: RouterConfig{
				FailureThreshold: 3, FailureWindow: time.Minute, Cooldown: time.Second,
				RequestTimeout: time.Minute, HealthWindow: 10, DegradedFailureRatio: 0.5,
			},
			Tools:     ToolsConfig{Timeout: time.Second, MaxConcurrent: 1},
			Consensus: ConsensusConfig{ApprovalThreshold: 0.6, MaxRounds: 3},
			State:     StateConfig{Backend: "sqlite", Path: "x.db", MaxSnapshotAge: time.Hour},
			Server:    ServerConfig{Addr: ":8080"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "Log.Level"},
		{"zero threshold", func(c *Config) { c.Consensus.ApprovalThreshold = 0 }, "Consensus.ApprovalThreshold"},
		{"too many rounds", func(c *Config) { c.Consensus.MaxRounds = 50 }, "Consensus.MaxRounds"},
		{"unknown backend", func(c *Config) { c.State.Backend = "redis" }, "State.Backend"},
		{"bad provider type", func(c *Config) { c.Providers["openai"] = ProviderConfig{Type: "bard"} }, "Type"},
		{"malformed model ref", func(c *Config) { c.Models.Default = []string{"gpt-4o"} }, "models.default[0]"},
		{"unknown provider in role", func(c *Config) {
			c.Models.Roles = map[string][]string{"spec": {"anthropic/claude"}}
		}, "models.roles.spec[0]"},
		{"empty default chain", func(c *Config) { c.Models.Default = nil }, "Models.Default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := NewValidator().Validate(cfg)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)
			found := false
			for _, e := range verrs {
				if strings.HasSuffix(e.Field, tt.field) {
					found = true
				}
			}
			assert.True(t, found, "no error for %s in %v", tt.field, verrs)
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(testutil.TempDir(t), "nested", ".quorum-spec.yaml")
	require.NoError(t, WriteDefault(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigYAML, string(data))

	assert.Error(t, WriteDefault(path, false))
	assert.NoError(t, WriteDefault(path, true))
}
