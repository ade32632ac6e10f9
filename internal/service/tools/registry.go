// Package tools holds the research tool catalog. The registry validates
// parameters against each tool's declared schema, bounds every call with a
// timeout, and normalizes outcomes into core.ToolResult values. Dispatch never
// returns an error: failures are reported inside the result.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/logging"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service"
)

const (
	DefaultTimeout       = 15 * time.Second
	DefaultMaxConcurrent = 5
)

// Config configures the registry.
type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout, MaxConcurrent: DefaultMaxConcurrent}
}

type registeredTool struct {
	tool   core.Tool
	params []core.ParamSpec
	schema *jsonschema.Schema
}

// Registry is a concurrency-safe catalog of tools.
type Registry struct {
	cfg     Config
	metrics *service.Metrics
	logger  *logging.Logger
	now     func() time.Time

	mu    sync.RWMutex
	tools map[string]registeredTool
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics sets the metrics collector.
func WithMetrics(m *service.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock overrides the clock used for duration metadata.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	r := &Registry{
		cfg:    cfg,
		logger: logging.NewNop(),
		now:    time.Now,
		tools:  make(map[string]registeredTool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Registering a name twice replaces the earlier tool.
func (r *Registry) Register(t core.Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return core.ErrValidation("TOOL_NAME_REQUIRED", "tool name is required")
	}
	params := t.Params()
	schema, err := compileSchema(name, params)
	if err != nil {
		return core.ErrValidation("TOOL_SCHEMA_INVALID",
			fmt.Sprintf("tool %q: invalid parameter schema: %v", name, err)).WithCause(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = registeredTool{tool: t, params: params, schema: schema}
	return nil
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Definition describes a registered tool for listings.
type Definition struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Params      []core.ParamSpec `json:"params"`
}

// Describe returns every tool definition, sorted by name.
func (r *Registry) Describe() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for name, rt := range r.tools {
		out = append(out, Definition{Name: name, Description: rt.tool.Description(), Params: rt.params})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch validates params and runs the named tool under the configured
// timeout.
func (r *Registry) Dispatch(ctx context.Context, name string, params map[string]interface{}) core.ToolResult {
	start := r.now()

	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return r.fail(name, start, fmt.Sprintf("unknown tool %q (available: %s)", name, strings.Join(r.Names(), ", ")))
	}

	args, err := validateParams(rt, params)
	if err != nil {
		r.logger.Debug("tool params rejected", "tool", name, "error", err)
		return r.fail(name, start, errorMessage(err))
	}

	out, err := r.execute(ctx, name, rt.tool, args)
	if err != nil {
		r.logger.Warn("tool call failed", "tool", name, "error", err, "retryable", core.IsRetryable(err))
		return r.fail(name, start, errorMessage(err))
	}

	d := r.now().Sub(start)
	r.metrics.ObserveTool(name, true, d)
	source := out.Source
	if source == "" {
		source = name
	}
	return core.ToolResult{
		Success:  true,
		Data:     out.Data,
		Metadata: core.ToolMetadata{Duration: d, Cost: out.Cost, Source: source},
	}
}

func (r *Registry) fail(name string, start time.Time, msg string) core.ToolResult {
	d := r.now().Sub(start)
	r.metrics.ObserveTool(name, false, d)
	return core.ToolResult{
		Success:  false,
		Error:    msg,
		Metadata: core.ToolMetadata{Duration: d, Source: name},
	}
}

type execOutcome struct {
	out *core.ToolOutput
	err error
}

// execute runs t under the call timeout. Failures come back as tool
// execution errors and expired deadlines as timeout errors.
func (r *Registry) execute(ctx context.Context, name string, t core.Tool, args map[string]interface{}) (*core.ToolOutput, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	done := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- execOutcome{err: core.ErrToolExecution(name, fmt.Sprintf("tool panicked: %v", p))}
			}
		}()
		out, err := t.Execute(callCtx, args)
		if err == nil && out == nil {
			err = core.ErrToolExecution(name, "tool returned no output")
		}
		done <- execOutcome{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return res.out, nil
		}
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, r.timeoutError(name).WithCause(res.err)
		}
		return nil, asToolError(name, res.err)
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, core.ErrToolExecution(name, "canceled: "+ctx.Err().Error()).WithCause(ctx.Err())
		}
		return nil, r.timeoutError(name)
	}
}

func (r *Registry) timeoutError(name string) *core.DomainError {
	return core.ErrTimeout(fmt.Sprintf("timed out after %s", r.cfg.Timeout)).WithDetail("tool", name)
}

func asToolError(name string, err error) error {
	var de *core.DomainError
	if errors.As(err, &de) {
		return err
	}
	return core.ErrToolExecution(name, err.Error()).WithCause(err)
}

// Call is one entry of a concurrent dispatch.
type Call struct {
	Name   string
	Params map[string]interface{}
}

// DispatchAll runs calls concurrently, at most MaxConcurrent at a time, and
// waits for all of them to settle. Results are returned in call order.
func (r *Registry) DispatchAll(ctx context.Context, calls []Call) []core.ToolResult {
	results := make([]core.ToolResult, len(calls))
	var g errgroup.Group
	g.SetLimit(r.cfg.MaxConcurrent)
	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			results[i] = r.Dispatch(ctx, c.Name, c.Params)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// validateParams applies defaults, checks required parameters and then
// validates types against the compiled schema. The returned map is a fresh
// copy in JSON-normalized form.
func validateParams(rt registeredTool, params map[string]interface{}) (map[string]interface{}, error) {
	args := make(map[string]interface{}, len(params)+len(rt.params))
	for k, v := range params {
		args[k] = v
	}
	for _, p := range rt.params {
		if _, ok := args[p.Name]; !ok && p.Default != nil {
			args[p.Name] = p.Default
		}
	}
	for _, p := range rt.params {
		v, ok := args[p.Name]
		if p.Required && (!ok || v == nil) {
			return nil, core.ErrValidation(core.CodeMissingParam,
				fmt.Sprintf("missing required parameter %q", p.Name))
		}
	}

	normalized, err := normalizeJSON(args)
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidParam, "parameters are not JSON-serializable: "+err.Error())
	}
	if err := rt.schema.Validate(normalized); err != nil {
		return nil, core.ErrValidation(core.CodeInvalidParam, "invalid parameters: "+schemaMessage(err))
	}
	m, _ := normalized.(map[string]interface{})
	return m, nil
}

func errorMessage(err error) string {
	var de *core.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

func normalizeJSON(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func schemaMessage(err error) string {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := strings.TrimPrefix(leaf.InstanceLocation, "/")
		if loc == "" {
			return leaf.Message
		}
		return fmt.Sprintf("%s: %s", loc, leaf.Message)
	}
	return err.Error()
}

func compileSchema(name string, params []core.ParamSpec) (*jsonschema.Schema, error) {
	props := make(map[string]interface{}, len(params))
	for _, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter without a name")
		}
		switch p.Type {
		case core.ParamString, core.ParamInteger, core.ParamNumber,
			core.ParamBoolean, core.ParamArray, core.ParamObject:
		default:
			return nil, fmt.Errorf("parameter %q: unsupported type %q", p.Name, p.Type)
		}
		prop := map[string]interface{}{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
	}
	doc := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	url := name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile(url)
}
