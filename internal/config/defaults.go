package config

import "github.com/spf13/viper"

// Default values shared by the loader and the generated config file.
const (
	DefaultStatePath  = ".quorum-spec/state/sessions.db"
	DefaultServerAddr = "127.0.0.1:8085"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")

	v.SetDefault("models.default", []string{"openai/gpt-4o-mini"})

	v.SetDefault("router.failure_threshold", 3)
	v.SetDefault("router.failure_window", "2m")
	v.SetDefault("router.cooldown", "30s")
	v.SetDefault("router.request_timeout", "2m")
	v.SetDefault("router.health_window", 20)
	v.SetDefault("router.degraded_failure_ratio", 0.3)

	v.SetDefault("tools.timeout", "15s")
	v.SetDefault("tools.max_concurrent", 4)
	v.SetDefault("tools.web_search.endpoint", "https://api.tavily.com/search")
	v.SetDefault("tools.web_search.api_key_env", "TAVILY_API_KEY")
	v.SetDefault("tools.web_search.cost_per_call", 0.001)
	v.SetDefault("tools.github.enabled", true)
	v.SetDefault("tools.github.token_env", "GITHUB_TOKEN")
	v.SetDefault("tools.npm.enabled", true)

	v.SetDefault("pipeline.research_tool", "web_search")
	v.SetDefault("pipeline.max_research_questions", 5)
	v.SetDefault("pipeline.max_parallel", 0)
	v.SetDefault("pipeline.spec_max_tokens", 8192)

	v.SetDefault("consensus.approval_threshold", 0.6)
	v.SetDefault("consensus.max_rounds", 3)

	v.SetDefault("state.backend", "sqlite")
	v.SetDefault("state.path", DefaultStatePath)
	v.SetDefault("state.max_snapshot_age", "24h")

	v.SetDefault("server.addr", DefaultServerAddr)

	v.SetDefault("dry_run", false)
}

// DefaultConfigYAML is the file written by `quorum-spec init`.
const DefaultConfigYAML = `# quorum-spec configuration
# Values not set here use built-in defaults. Every key can be overridden with
# a QUORUM_SPEC_ environment variable, e.g. QUORUM_SPEC_CONSENSUS_MAX_ROUNDS=5.

log:
  level: info
  format: auto

providers:
  openai:
    type: openai
    api_key_env: OPENAI_API_KEY
    requests_per_second: 2
    burst: 4
    cost_per_1k_input: 0.00015
    cost_per_1k_output: 0.0006
  anthropic:
    type: anthropic
    api_key_env: ANTHROPIC_API_KEY
    requests_per_second: 1
    burst: 2
    cost_per_1k_input: 0.003
    cost_per_1k_output: 0.015

# Model chains: the first entry is the primary, the rest are fallbacks.
# Roles are persona ids or stage names (questions, challenge, review, spec).
models:
  default:
    - openai/gpt-4o-mini
    - anthropic/claude-3-5-haiku-latest
  roles:
    spec:
      - anthropic/claude-3-5-sonnet-latest
      - openai/gpt-4o

router:
  failure_threshold: 3
  failure_window: 2m
  cooldown: 30s
  request_timeout: 2m

tools:
  timeout: 15s
  max_concurrent: 4
  web_search:
    endpoint: https://api.tavily.com/search
    api_key_env: TAVILY_API_KEY
  github:
    enabled: true
    token_env: GITHUB_TOKEN
  npm:
    enabled: true

pipeline:
  research_tool: web_search
  max_research_questions: 5
  # personas_file: personas.yaml

consensus:
  approval_threshold: 0.6
  max_rounds: 3

state:
  backend: sqlite
  path: .quorum-spec/state/sessions.db
  max_snapshot_age: 24h

server:
  addr: 127.0.0.1:8085

# Run offline with canned model output and search results.
dry_run: false
`
