package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/adapters/dryrun"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/events"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service/pipeline"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service/router"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service/tools"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/testutil"
)

type stubSystem struct{}

func (stubSystem) Collect(context.Context) diagnostics.Report {
	return diagnostics.Report{Process: diagnostics.ProcessMetrics{Goroutines: 7}}
}

type testEnv struct {
	server  *Server
	srv     *httptest.Server
	manager *pipeline.Manager
	router  *router.Router
	bus     *events.EventBus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)

	chain, err := router.ParseChain([]string{"dryrun/offline"})
	require.NoError(t, err)
	rt := router.New(router.DefaultConfig(), router.NewModelRegistry(chain), router.WithMetrics(metrics))
	rt.Register(dryrun.New())

	toolReg := tools.NewRegistry(tools.DefaultConfig(), tools.WithMetrics(metrics))
	require.NoError(t, toolReg.Register(dryrun.NewSearchTool("web_search")))

	prompts, err := pipeline.NewPromptRenderer()
	require.NoError(t, err)
	bus := events.New(256)
	manager := pipeline.NewManager(pipeline.DefaultConfig(), rt, toolReg, prompts,
		pipeline.WithRepository(testutil.NewMockRepository()),
		pipeline.WithEventBus(bus),
		pipeline.WithMetrics(metrics),
	)

	s := NewServer(manager, rt, toolReg,
		WithEventBus(bus),
		WithGatherer(reg),
		WithDefaultPersonas(pipeline.DefaultPersonas()),
		WithSystemReporter(stubSystem{}),
	)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
		bus.Close()
	})
	return &testEnv{server: s, srv: srv, manager: manager, router: rt, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["providers"])
	assert.Contains(t, body, "events_dropped")
}

func TestServer_SessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/sessions", createSessionRequest{Idea: "A habit tracker for teams"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createSessionResponse
	decode(t, resp, &created)
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, "/api/v1/sessions/"+created.SessionID, resp.Header.Get("Location"))

	env.manager.Wait()

	resp = env.do(t, http.MethodGet, "/api/v1/sessions/"+created.SessionID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st SessionResponse
	decode(t, resp, &st)
	assert.Equal(t, core.SessionComplete, st.Status)
	assert.False(t, st.Running)
	assert.Contains(t, st.GeneratedDocument, "Product Specification")
	assert.Len(t, st.Rounds, 1)

	resp = env.do(t, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []core.SessionSummary
	decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, created.SessionID, list[0].SessionID)

	// Nothing to resume on a completed session.
	resp = env.do(t, http.MethodPost, "/api/v1/sessions/"+created.SessionID+"/resume", resumeRequest{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resumed resumeResponse
	decode(t, resp, &resumed)
	assert.False(t, resumed.Started)
}

func TestServer_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/sessions", createSessionRequest{Idea: "   "})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body errorBody
	decode(t, resp, &body)
	assert.Equal(t, core.CodeEmptyIdea, body.Code)

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/v1/sessions", strings.NewReader(`{"idea":"x","extra":1}`))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestServer_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/sessions/missing"},
		{http.MethodPost, "/api/v1/sessions/missing/pause"},
		{http.MethodPost, "/api/v1/sessions/missing/resume"},
	} {
		resp := env.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, tc.path)
	}
}

func TestServer_ProvidersAndReset(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/providers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats []router.ProviderStats
	decode(t, resp, &stats)
	require.Len(t, stats, 1)
	assert.Equal(t, dryrun.ProviderName, stats[0].Provider)
	assert.Equal(t, core.CircuitClosed, stats[0].CircuitState)

	resp = env.do(t, http.MethodPost, "/api/v1/providers/dryrun/reset", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/providers/nope/reset", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Tools(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/tools", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var defs []tools.Definition
	decode(t, resp, &defs)
	require.Len(t, defs, 1)
	assert.Equal(t, "web_search", defs[0].Name)
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.Create("A habit tracker for teams", pipeline.DefaultPersonas())
	require.NoError(t, err)
	env.manager.Wait()

	resp := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "quorum_spec_provider_requests_total")
}

func TestServer_EventStream(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/api/v1/events?types="+events.TypeSessionCompleted, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event: "))
			}
		}
	}
	require.Equal(t, "connected", readEvent())

	_, err = env.manager.Create("A habit tracker for teams", pipeline.DefaultPersonas())
	require.NoError(t, err)
	assert.Equal(t, events.TypeSessionCompleted, readEvent())
}

func TestServer_System(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/system", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report diagnostics.Report
	decode(t, resp, &report)
	assert.Equal(t, 7, report.Process.Goroutines)
}

func TestServer_SetDefaultPersonas(t *testing.T) {
	env := newTestEnv(t)
	env.server.SetDefaultPersonas(testutil.NewTestPersonas(2))

	resp := env.do(t, http.MethodPost, "/api/v1/sessions", createSessionRequest{Idea: "A habit tracker for teams"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createSessionResponse
	decode(t, resp, &created)
	env.manager.Wait()

	st, err := env.manager.Get(context.Background(), created.SessionID)
	require.NoError(t, err)
	assert.Len(t, st.Personas, 2)
}
