// Package config loads quorum-spec configuration from defaults, config files,
// the environment and CLI flags.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log       LogConfig                 `mapstructure:"log" yaml:"log"`
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers" validate:"dive"`
	Models    ModelsConfig              `mapstructure:"models" yaml:"models"`
	Router    RouterConfig              `mapstructure:"router" yaml:"router"`
	Tools     ToolsConfig               `mapstructure:"tools" yaml:"tools"`
	Pipeline  PipelineConfig            `mapstructure:"pipeline" yaml:"pipeline"`
	Consensus ConsensusConfig           `mapstructure:"consensus" yaml:"consensus"`
	State     StateConfig               `mapstructure:"state" yaml:"state"`
	Server    ServerConfig              `mapstructure:"server" yaml:"server"`
	DryRun    bool                      `mapstructure:"dry_run" yaml:"dry_run"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=auto text json"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// ProviderConfig configures one model provider.
type ProviderConfig struct {
	Type              string  `mapstructure:"type" yaml:"type" validate:"omitempty,oneof=openai anthropic"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url,omitempty" validate:"omitempty,url"`
	APIKey            string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	APIKeyEnv         string  `mapstructure:"api_key_env" yaml:"api_key_env,omitempty"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" yaml:"burst" validate:"gte=0"`
	CostPer1KInput    float64 `mapstructure:"cost_per_1k_input" yaml:"cost_per_1k_input" validate:"gte=0"`
	CostPer1KOutput   float64 `mapstructure:"cost_per_1k_output" yaml:"cost_per_1k_output" validate:"gte=0"`
}

// ModelsConfig maps roles to model chains. A chain is a list of
// "provider/model" references; the first is the primary.
type ModelsConfig struct {
	Default []string            `mapstructure:"default" yaml:"default" validate:"min=1,dive,required"`
	Roles   map[string][]string `mapstructure:"roles" yaml:"roles,omitempty" validate:"dive,min=1,dive,required"`
}

// RouterConfig configures the provider router and its circuit breakers.
type RouterConfig struct {
	FailureThreshold     int           `mapstructure:"failure_threshold" yaml:"failure_threshold" validate:"gte=1"`
	FailureWindow        time.Duration `mapstructure:"failure_window" yaml:"failure_window" validate:"gt=0"`
	Cooldown             time.Duration `mapstructure:"cooldown" yaml:"cooldown" validate:"gt=0"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
	HealthWindow         int           `mapstructure:"health_window" yaml:"health_window" validate:"gte=1"`
	DegradedFailureRatio float64       `mapstructure:"degraded_failure_ratio" yaml:"degraded_failure_ratio" validate:"gt=0,lte=1"`
}

// ToolsConfig configures the research tools.
type ToolsConfig struct {
	Timeout       time.Duration   `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	MaxConcurrent int             `mapstructure:"max_concurrent" yaml:"max_concurrent" validate:"gte=1"`
	WebSearch     WebSearchConfig `mapstructure:"web_search" yaml:"web_search"`
	GitHub        GitHubConfig    `mapstructure:"github" yaml:"github"`
	NPM           NPMConfig       `mapstructure:"npm" yaml:"npm"`
}

// WebSearchConfig configures the web_search tool.
type WebSearchConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	APIKeyEnv   string  `mapstructure:"api_key_env" yaml:"api_key_env,omitempty"`
	CostPerCall float64 `mapstructure:"cost_per_call" yaml:"cost_per_call" validate:"gte=0"`
}

// GitHubConfig configures the github_search tool.
type GitHubConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Token    string `mapstructure:"token" yaml:"token,omitempty"`
	TokenEnv string `mapstructure:"token_env" yaml:"token_env,omitempty"`
}

// NPMConfig configures the npm_search tool.
type NPMConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// PipelineConfig configures the stage orchestrator.
type PipelineConfig struct {
	ResearchTool         string `mapstructure:"research_tool" yaml:"research_tool"`
	MaxResearchQuestions int    `mapstructure:"max_research_questions" yaml:"max_research_questions" validate:"gte=0,lte=20"`
	MaxParallel          int    `mapstructure:"max_parallel" yaml:"max_parallel" validate:"gte=0"`
	SpecMaxTokens        int    `mapstructure:"spec_max_tokens" yaml:"spec_max_tokens" validate:"gte=0"`
	PersonasFile         string `mapstructure:"personas_file" yaml:"personas_file,omitempty"`
}

// ConsensusConfig configures the consensus policy.
type ConsensusConfig struct {
	ApprovalThreshold float64 `mapstructure:"approval_threshold" yaml:"approval_threshold" validate:"gt=0,lte=1"`
	MaxRounds         int     `mapstructure:"max_rounds" yaml:"max_rounds" validate:"gte=1,lte=10"`
}

// StateConfig configures session persistence.
type StateConfig struct {
	Backend        string        `mapstructure:"backend" yaml:"backend" validate:"oneof=sqlite json"`
	Path           string        `mapstructure:"path" yaml:"path" validate:"required"`
	BackupPath     string        `mapstructure:"backup_path" yaml:"backup_path,omitempty"`
	MaxSnapshotAge time.Duration `mapstructure:"max_snapshot_age" yaml:"max_snapshot_age" validate:"gt=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr" yaml:"addr" validate:"required"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins,omitempty"`
}
