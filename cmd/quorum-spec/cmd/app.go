package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/adapters/dryrun"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/adapters/llm"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/config"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/events"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/logging"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service/pipeline"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service/router"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service/tools"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	gatherer prometheus.Gatherer
	metrics  *service.Metrics
	limiters *service.RateLimiterRegistry
	router   *router.Router
	tools    *tools.Registry
	repo     core.SessionRepository
	bus      *events.EventBus
	manager  *pipeline.Manager
	personas []core.PersonaConfig
	diag     *diagnostics.Collector
	logFile  io.Closer
}

func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	return loader.Load()
}

func newLogger(cfg config.LogConfig) (*logging.Logger, io.Closer, error) {
	lc := logging.Config{Level: cfg.Level, Format: cfg.Format, Output: os.Stderr}
	if cfg.File == "" {
		return logging.New(lc), nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	lc.Output = f
	return logging.New(lc), f, nil
}

// newApp loads configuration and wires every component.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildApp(cfg)
}

func buildApp(cfg *config.Config) (*app, error) {
	logger, logFile, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, logFile: logFile}
	a.diag = diagnostics.New(cfg.State.Path)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.gatherer = reg
	a.metrics = service.NewMetrics(reg)

	if err := a.wireRouter(); err != nil {
		a.close()
		return nil, err
	}
	if err := a.wireTools(); err != nil {
		a.close()
		return nil, err
	}

	a.personas = pipeline.DefaultPersonas()
	if cfg.Pipeline.PersonasFile != "" {
		if a.personas, err = pipeline.LoadPersonas(cfg.Pipeline.PersonasFile); err != nil {
			a.close()
			return nil, err
		}
	}

	a.repo, err = state.NewRepository(state.Options{
		Backend:    cfg.State.Backend,
		Path:       cfg.State.Path,
		BackupPath: cfg.State.BackupPath,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	prompts, err := pipeline.NewPromptRenderer()
	if err != nil {
		a.close()
		return nil, err
	}
	a.bus = events.New(256)
	a.manager = pipeline.NewManager(pipelineConfig(cfg), a.router, a.tools, prompts,
		pipeline.WithRepository(a.repo),
		pipeline.WithEventBus(a.bus),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithLogger(logger),
	)
	return a, nil
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.ResearchTool = cfg.Pipeline.ResearchTool
	pc.MaxResearchQuestions = cfg.Pipeline.MaxResearchQuestions
	pc.MaxParallel = cfg.Pipeline.MaxParallel
	if cfg.Pipeline.SpecMaxTokens > 0 {
		pc.SpecMaxTokens = cfg.Pipeline.SpecMaxTokens
	}
	pc.Policy = service.ConsensusPolicy{
		ApprovalThreshold: cfg.Consensus.ApprovalThreshold,
		MaxRounds:         cfg.Consensus.MaxRounds,
	}.Normalized()
	pc.MaxSnapshotAge = cfg.State.MaxSnapshotAge
	return pc
}

func (a *app) wireRouter() error {
	cfg := a.cfg
	a.limiters = service.NewRateLimiterRegistry(service.DefaultRateLimiterConfig())

	var models *router.ModelRegistry
	if cfg.DryRun {
		chain, err := router.ParseChain([]string{dryrun.ProviderName + "/offline"})
		if err != nil {
			return err
		}
		models = router.NewModelRegistry(chain)
	} else {
		chain, err := router.ParseChain(cfg.Models.Default)
		if err != nil {
			return core.ErrValidation(core.CodeInvalidConfig, "models.default: "+err.Error())
		}
		models = router.NewModelRegistry(chain)
		for role, refs := range cfg.Models.Roles {
			roleChain, err := router.ParseChain(refs)
			if err != nil {
				return core.ErrValidation(core.CodeInvalidConfig, "models.roles."+role+": "+err.Error())
			}
			models.Set(role, roleChain)
		}
	}

	a.router = router.New(router.Config{
		Breaker: router.BreakerConfig{
			FailureThreshold:     cfg.Router.FailureThreshold,
			FailureWindow:        cfg.Router.FailureWindow,
			Cooldown:             cfg.Router.Cooldown,
			HealthWindow:         cfg.Router.HealthWindow,
			DegradedFailureRatio: cfg.Router.DegradedFailureRatio,
		},
		RequestTimeout: cfg.Router.RequestTimeout,
	}, models,
		router.WithRateLimiters(a.limiters),
		router.WithMetrics(a.metrics),
		router.WithLogger(a.logger),
	)

	if cfg.DryRun {
		a.router.Register(dryrun.New())
		a.logger.Info("dry-run mode: using the offline backend")
		return nil
	}
	for name, p := range cfg.Providers {
		backend, err := llm.NewBackend(llm.ProviderSpec{
			Name:    name,
			Type:    p.Type,
			BaseURL: p.BaseURL,
			APIKey:  p.APIKey,
			Pricing: llm.Pricing{InputPer1K: p.CostPer1KInput, OutputPer1K: p.CostPer1KOutput},
		})
		if err != nil {
			return err
		}
		if p.APIKey == "" {
			a.logger.Warn("provider has no API key; requests will fail over", "provider", name)
		}
		if p.RequestsPerSecond > 0 {
			a.limiters.SetConfig(name, service.RateLimiterConfig{RequestsPerSecond: p.RequestsPerSecond, Burst: p.Burst})
		}
		a.router.Register(backend)
	}
	return nil
}

func (a *app) wireTools() error {
	cfg := a.cfg
	a.tools = tools.NewRegistry(tools.Config{
		Timeout:       cfg.Tools.Timeout,
		MaxConcurrent: cfg.Tools.MaxConcurrent,
	}, tools.WithMetrics(a.metrics), tools.WithLogger(a.logger))

	if cfg.DryRun {
		return a.tools.Register(dryrun.NewSearchTool(cfg.Pipeline.ResearchTool))
	}

	if ws := cfg.Tools.WebSearch; ws.APIKey != "" {
		if err := a.tools.Register(tools.NewWebSearch(tools.WebSearchConfig{
			Endpoint:    ws.Endpoint,
			APIKey:      ws.APIKey,
			CostPerCall: ws.CostPerCall,
		})); err != nil {
			return err
		}
	} else {
		a.logger.Warn("web_search has no API key; research stage will record failures")
	}
	if cfg.Tools.GitHub.Enabled {
		if err := a.tools.Register(tools.NewGitHubSearch(tools.GitHubSearchConfig{Token: cfg.Tools.GitHub.Token})); err != nil {
			return err
		}
	}
	if cfg.Tools.NPM.Enabled {
		if err := a.tools.Register(tools.NewNPMSearch(tools.NPMSearchConfig{})); err != nil {
			return err
		}
	}
	return nil
}

// close stops background runs and releases resources.
func (a *app) close() {
	if a.manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.manager.Shutdown(ctx); err != nil {
			a.logger.Warn("sessions still running at shutdown", "error", err)
		}
		cancel()
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.logger.Warn("closing session repository", "error", err)
		}
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
