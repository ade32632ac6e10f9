// Package dryrun provides an offline backend and search tool that return
// canned, deterministic output. It lets the whole pipeline run without API
// keys.
package dryrun

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// ProviderName is the provider name the backend registers under.
const ProviderName = "dryrun"

var headingRe = regexp.MustCompile(`^# Round (\d+): (.+)`)

// Backend answers each stage prompt with well-formed JSON derived from the
// prompt heading.
type Backend struct {
	approveFrom int
	calls       atomic.Int64
}

// Option configures the backend.
type Option func(*Backend)

// WithApprovalFrom makes every vote before round n a rejection. The default
// approves in round 1.
func WithApprovalFrom(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.approveFrom = n
		}
	}
}

// New creates a dry-run backend.
func New(opts ...Option) *Backend {
	b := &Backend{approveFrom: 1}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns ProviderName.
func (b *Backend) Name() string { return ProviderName }

// Calls returns how many requests the backend has answered.
func (b *Backend) Calls() int64 { return b.calls.Load() }

// Generate returns a canned answer for the stage named in the prompt heading.
func (b *Backend) Generate(ctx context.Context, req core.GenerationRequest) (*core.GenerationResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.calls.Add(1)

	heading := strings.SplitN(strings.TrimSpace(req.Prompt), "\n", 2)[0]
	round, kind := 0, ""
	if m := headingRe.FindStringSubmatch(heading); m != nil {
		round, _ = strconv.Atoi(m[1])
		kind = m[2]
	}

	var text string
	switch kind {
	case "clarifying questions":
		text = `{"questions":[{"text":"Who is the primary user and what problem hurts most today?"},{"text":"Which constraint matters most: cost, time or scale?"}]}`
	case "challenges":
		text = fmt.Sprintf(`{"challenges":[{"target":"scope","text":"Round %d still tries to cover too many use cases at once."}]}`, round)
	case "respond to challenges":
		text = "Agreed. The first release should cover the single most painful workflow and defer the rest."
	case "resolve the debate":
		text = `{"resolutions":[{"challenge_id":"c1","resolution":"Limit the first release to one core workflow.","outcome":"accepted"}]}`
	case "your synthesis":
		text = `{"content":"Deliver a narrow first release around the core workflow, then expand.","key_points":["single core workflow","measurable success criteria"],"risks":["scope creep"],"recommendations":["ship an MVP within one quarter"]}`
	case "review":
		text = `{"score":80,"summary":"Coherent and buildable.","issues":[{"severity":"minor","description":"Success metrics need numbers."}]}`
	case "vote":
		approved := round >= b.approveFrom
		text = fmt.Sprintf(`{"approved":%t,"reasoning":"dry-run vote for round %d","confidence":0.7}`, approved, round)
	default:
		text = specDocument
	}

	model := req.Model
	if model == "" {
		model = "offline"
	}
	return &core.GenerationResponse{
		Text:      text,
		ModelUsed: ProviderName + "/" + model,
		TokensIn:  len(req.Prompt) / 4,
		TokensOut: len(text) / 4,
	}, nil
}

const specDocument = "# Product Specification (dry run)\n\n" +
	"## Overview\n\nA narrow first release focused on the core workflow.\n\n" +
	"## Requirements\n\n- Users can complete the core workflow end to end.\n- Progress is saved automatically.\n\n" +
	"## Tech stack\n\n```json\n" +
	`{"tech_stack":[{"name":"Go","category":"backend"},{"name":"SQLite","category":"storage"}]}` +
	"\n```\n"

var _ core.Backend = (*Backend)(nil)
