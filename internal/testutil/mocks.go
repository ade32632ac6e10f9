package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// MockBackend implements core.Backend for testing.
type MockBackend struct {
	name         string
	generateFunc func(context.Context, core.GenerationRequest) (*core.GenerationResponse, error)
	calls        []MockCall
	mu           sync.Mutex
}

// MockCall records a call to the mock.
type MockCall struct {
	Method    string
	Args      interface{}
	Timestamp time.Time
}

// NewMockBackend creates a new mock backend.
func NewMockBackend(name string) *MockBackend {
	return &MockBackend{
		name:  name,
		calls: make([]MockCall, 0),
	}
}

// Name returns the provider name.
func (m *MockBackend) Name() string {
	return m.name
}

// Generate mocks a generation call.
func (m *MockBackend) Generate(ctx context.Context, req core.GenerationRequest) (*core.GenerationResponse, error) {
	m.recordCall("Generate", req)

	m.mu.Lock()
	fn := m.generateFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}

	promptPreview := req.Prompt
	if len(promptPreview) > 50 {
		promptPreview = promptPreview[:50]
	}
	return &core.GenerationResponse{
		Text:      fmt.Sprintf("Mock response for: %s", promptPreview),
		ModelUsed: m.name + "/" + req.Model,
		LatencyMs: 5,
		TokensIn:  100,
		TokensOut: 50,
		Cost:      0.001,
	}, nil
}

// WithGenerateFunc sets a custom generate function.
func (m *MockBackend) WithGenerateFunc(fn func(context.Context, core.GenerationRequest) (*core.GenerationResponse, error)) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateFunc = fn
	return m
}

// WithError configures the mock to always fail.
func (m *MockBackend) WithError(err error) *MockBackend {
	return m.WithGenerateFunc(func(context.Context, core.GenerationRequest) (*core.GenerationResponse, error) {
		return nil, err
	})
}

// WithResponse configures a fixed response text.
func (m *MockBackend) WithResponse(text string) *MockBackend {
	return m.WithGenerateFunc(func(_ context.Context, req core.GenerationRequest) (*core.GenerationResponse, error) {
		return &core.GenerationResponse{
			Text:      text,
			ModelUsed: m.name + "/" + req.Model,
			LatencyMs: 5,
			TokensIn:  100,
			TokensOut: len(text) / 4,
		}, nil
	})
}

// Calls returns recorded calls.
func (m *MockBackend) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall{}, m.calls...)
}

// CallCount returns number of calls to a method.
func (m *MockBackend) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Requests returns the generation requests received, in call order.
func (m *MockBackend) Requests() []core.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.GenerationRequest, 0, len(m.calls))
	for _, c := range m.calls {
		if req, ok := c.Args.(core.GenerationRequest); ok {
			out = append(out, req)
		}
	}
	return out
}

// Reset clears call history.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make([]MockCall, 0)
}

func (m *MockBackend) recordCall(method string, args interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method:    method,
		Args:      args,
		Timestamp: time.Now(),
	})
}

// MockTool implements core.Tool for testing.
type MockTool struct {
	name        string
	params      []core.ParamSpec
	executeFunc func(context.Context, map[string]interface{}) (*core.ToolOutput, error)
	calls       []map[string]interface{}
	mu          sync.Mutex
}

// NewMockTool creates a mock tool with a single required "query" parameter.
func NewMockTool(name string) *MockTool {
	return &MockTool{
		name: name,
		params: []core.ParamSpec{
			{Name: "query", Type: core.ParamString, Required: true},
		},
	}
}

// Name returns the tool name.
func (m *MockTool) Name() string { return m.name }

// Description returns a fixed description.
func (m *MockTool) Description() string { return "mock tool " + m.name }

// Params returns the declared parameters.
func (m *MockTool) Params() []core.ParamSpec { return m.params }

// Execute mocks tool execution.
func (m *MockTool) Execute(ctx context.Context, params map[string]interface{}) (*core.ToolOutput, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params)
	fn := m.executeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, params)
	}
	return &core.ToolOutput{
		Data:   map[string]interface{}{"echo": params["query"]},
		Cost:   0.01,
		Source: m.name,
	}, nil
}

// WithParams replaces the declared parameters.
func (m *MockTool) WithParams(params ...core.ParamSpec) *MockTool {
	m.params = params
	return m
}

// WithExecuteFunc sets a custom execute function.
func (m *MockTool) WithExecuteFunc(fn func(context.Context, map[string]interface{}) (*core.ToolOutput, error)) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executeFunc = fn
	return m
}

// WithError configures the tool to always fail.
func (m *MockTool) WithError(err error) *MockTool {
	return m.WithExecuteFunc(func(context.Context, map[string]interface{}) (*core.ToolOutput, error) {
		return nil, err
	})
}

// CallCount returns the number of Execute calls.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastParams returns the params of the most recent call.
func (m *MockTool) LastParams() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// MockRepository implements core.SessionRepository in memory.
type MockRepository struct {
	snapshots map[string]*core.Snapshot
	saveFunc  func(*core.Snapshot) error
	saves     int
	mu        sync.Mutex
}

// NewMockRepository creates an empty repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{snapshots: make(map[string]*core.Snapshot)}
}

// Save stores the snapshot.
func (m *MockRepository) Save(_ context.Context, snap *core.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveFunc != nil {
		return m.saveFunc(snap)
	}
	m.snapshots[snap.SessionID] = snap
	return nil
}

// Load returns the stored snapshot.
func (m *MockRepository) Load(_ context.Context, id string) (*core.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[id]
	if !ok {
		return nil, core.ErrNotFound("session", id)
	}
	return snap, nil
}

// List returns summaries of stored snapshots, newest first.
func (m *MockRepository) List(_ context.Context) ([]core.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.SessionSummary, 0, len(m.snapshots))
	for id, snap := range m.snapshots {
		sum := core.SessionSummary{SessionID: id, UpdatedAt: snap.Timestamp, SnapshotAt: snap.Timestamp}
		if snap.SessionState != nil {
			sum.Idea = snap.SessionState.Idea
			sum.Status = snap.SessionState.Status
			sum.Rounds = len(snap.SessionState.Rounds)
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Delete removes a snapshot.
func (m *MockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[id]; !ok {
		return core.ErrNotFound("session", id)
	}
	delete(m.snapshots, id)
	return nil
}

// Close is a no-op.
func (m *MockRepository) Close() error { return nil }

// SaveCount returns the number of Save calls.
func (m *MockRepository) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// WithSaveError configures save to return an error.
func (m *MockRepository) WithSaveError(err error) *MockRepository {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveFunc = func(*core.Snapshot) error { return err }
	return m
}

// Ensure interfaces are implemented
var _ core.Backend = (*MockBackend)(nil)
var _ core.Tool = (*MockTool)(nil)
var _ core.SessionRepository = (*MockRepository)(nil)
