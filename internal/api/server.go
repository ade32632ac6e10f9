// Package api exposes sessions, providers, tools and events over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/events"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/logging"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service/router"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service/tools"
)

// SessionService is the session surface the API drives.
type SessionService interface {
	Create(idea string, personas []core.PersonaConfig) (string, error)
	Get(ctx context.Context, id string) (*core.SessionState, error)
	List(ctx context.Context) ([]core.SessionSummary, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id, comment string) (bool, error)
	Running(id string) bool
}

// ProviderService reports and resets provider health.
type ProviderService interface {
	GetStats() []router.ProviderStats
	ResetProvider(provider string) error
}

// SystemReporter reports host and process resources.
type SystemReporter interface {
	Collect(ctx context.Context) diagnostics.Report
}

// ToolCatalog lists registered tools.
type ToolCatalog interface {
	Describe() []tools.Definition
}

// Server provides the HTTP API.
type Server struct {
	router    chi.Router
	sessions  SessionService
	providers ProviderService
	tools     ToolCatalog
	eventBus  *events.EventBus
	gatherer  prometheus.Gatherer
	personas  []core.PersonaConfig
	personaMu sync.RWMutex
	system    SystemReporter
	origins   []string
	logger    *logging.Logger
	now       func() time.Time
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithEventBus enables the SSE endpoint.
func WithEventBus(bus *events.EventBus) ServerOption {
	return func(s *Server) {
		s.eventBus = bus
	}
}

// WithGatherer serves metrics from g on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithDefaultPersonas sets the roster used when a create request names none.
func WithDefaultPersonas(personas []core.PersonaConfig) ServerOption {
	return func(s *Server) {
		s.personas = personas
	}
}

// WithSystemReporter serves host diagnostics on /api/v1/system.
func WithSystemReporter(r SystemReporter) ServerOption {
	return func(s *Server) {
		s.system = r
	}
}

// SetDefaultPersonas replaces the fallback roster, e.g. after the roster
// file changes.
func (s *Server) SetDefaultPersonas(personas []core.PersonaConfig) {
	s.personaMu.Lock()
	defer s.personaMu.Unlock()
	s.personas = personas
}

func (s *Server) defaultPersonas() []core.PersonaConfig {
	s.personaMu.RLock()
	defer s.personaMu.RUnlock()
	return s.personas
}

// WithCORSOrigins restricts CORS to origins. The default allows any origin.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.origins = origins
	}
}

// NewServer creates a new API server.
func NewServer(sessions SessionService, providers ProviderService, catalog ToolCatalog, opts ...ServerOption) *Server {
	s := &Server{
		sessions:  sessions,
		providers: providers,
		tools:     catalog,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// The event stream is long-lived and stays outside the request timeout.
		r.Get("/events", s.handleSSE)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/providers", s.handleListProviders)
			r.Post("/providers/{provider}/reset", s.handleResetProvider)
			r.Get("/tools", s.handleListTools)
			if s.system != nil {
				r.Get("/system", s.handleSystem)
			}

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", s.handleListSessions)
				r.Post("/", s.handleCreateSession)
				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/", s.handleGetSession)
					r.Post("/pause", s.handlePauseSession)
					r.Post("/resume", s.handleResumeSession)
				})
			})
		})
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error("failed to encode response", "error", err)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"time":           s.now().UTC().Format(time.RFC3339),
		"providers":      len(s.providers.GetStats()),
		"events_dropped": s.eventBus.Dropped(),
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
