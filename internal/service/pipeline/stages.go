package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service/tools"
)

// Sampling temperatures for moderator requests. Persona requests use the
// persona's own temperature.
const (
	tempQuestions  = 0.7
	tempChallenge  = 0.9
	tempResolution = 0.3
	tempReview     = 0.2
	tempSpec       = 0.4
)

type stageStats struct {
	mu       sync.Mutex
	requests int
	cost     float64
}

func (s *stageStats) add(resp *core.GenerationResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.cost += resp.Cost
}

// stageExec carries the inputs and accumulated outputs of one stage run.
type stageExec struct {
	o        *Orchestrator
	idea     string
	personas []core.PersonaConfig
	round    core.Round
	previous *core.Round
	dialogue []core.DialogueEntry
	stats    stageStats
}

func (e *stageExec) run(ctx context.Context, stage core.Stage) (map[string]interface{}, error) {
	switch stage {
	case core.StageQuestions:
		return e.questions(ctx)
	case core.StageResearch:
		return e.research(ctx)
	case core.StageChallenge:
		return e.challenge(ctx)
	case core.StageSynthesis:
		return e.synthesis(ctx)
	case core.StageReview:
		return e.review(ctx)
	case core.StageVoting:
		return e.voting(ctx)
	default:
		return nil, fmt.Errorf("stage %q is not a round stage", stage)
	}
}

func (e *stageExec) data() PromptData {
	return PromptData{
		Idea:         e.idea,
		Round:        e.round.Number,
		Comment:      e.round.UserComment,
		Personas:     e.personas,
		Current:      e.round,
		Previous:     e.previous,
		MaxQuestions: maxQuestions,
	}
}

func (e *stageExec) generate(ctx context.Context, role, system, prompt string, temperature float64, maxTokens int) (string, error) {
	resp, err := e.o.gen.Route(ctx, role, core.GenerationRequest{
		System:      system,
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	e.stats.add(resp)
	return resp.Text, nil
}

// moderated sends one stage-level request using the moderator system prompt.
// The role is the stage name, so model chains can be configured per stage.
func (e *stageExec) moderated(ctx context.Context, stage core.Stage, tmpl string, temperature float64, maxTokens int, pd PromptData) (string, error) {
	system, err := e.o.prompts.ModeratorSystem()
	if err != nil {
		return "", err
	}
	prompt, err := e.o.prompts.Render(tmpl, pd)
	if err != nil {
		return "", err
	}
	return e.generate(ctx, string(stage), system, prompt, temperature, maxTokens)
}

// perPersona runs fn once per enabled persona and waits for all of them. The
// first failure cancels the remaining requests and fails the stage.
func (e *stageExec) perPersona(ctx context.Context, tmpl string, fn func(i int, p core.PersonaConfig, text string) error) error {
	limit := e.o.cfg.MaxParallel
	if limit <= 0 {
		limit = len(e.personas)
	}
	pd := e.data()
	prompt, err := e.o.prompts.Render(tmpl, pd)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range e.personas {
		i, p := i, p
		g.Go(func() error {
			system, err := e.o.prompts.PersonaSystem(p, e.idea)
			if err != nil {
				return err
			}
			text, err := e.generate(gctx, p.ID, system, prompt, p.Temperature, 0)
			if err != nil {
				return fmt.Errorf("persona %s: %w", p.ID, err)
			}
			return fn(i, p, text)
		})
	}
	return g.Wait()
}

func (e *stageExec) say(speaker, kind, content string) {
	e.dialogue = append(e.dialogue, core.DialogueEntry{
		Speaker: speaker,
		Content: content,
		Kind:    kind,
		Round:   e.round.Number,
	})
}

func (e *stageExec) questions(ctx context.Context) (map[string]interface{}, error) {
	text, err := e.moderated(ctx, core.StageQuestions, tmplQuestions, tempQuestions, 0, e.data())
	if err != nil {
		return nil, err
	}
	qs, err := parseQuestions(text, maxQuestions, e.personas)
	if err != nil {
		return nil, err
	}
	e.round.Questions = qs
	for _, q := range qs {
		speaker := q.Persona
		if speaker == "" {
			speaker = core.SpeakerModerator
		}
		e.say(speaker, core.DialogueQuestion, q.Text)
	}
	return map[string]interface{}{"questions": len(qs)}, nil
}

// research dispatches one tool call per question for the first
// MaxResearchQuestions questions. Failed calls are kept with their error.
func (e *stageExec) research(ctx context.Context) (map[string]interface{}, error) {
	qs := e.round.Questions
	if n := e.o.cfg.MaxResearchQuestions; len(qs) > n {
		qs = qs[:n]
	}
	tool := e.o.cfg.ResearchTool
	calls := make([]tools.Call, len(qs))
	for i, q := range qs {
		calls[i] = tools.Call{Name: tool, Params: map[string]interface{}{"query": q.Text}}
	}

	results := e.o.tools.DispatchAll(ctx, calls)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]core.ResearchResult, len(qs))
	succeeded, toolCost := 0, 0.0
	var failures []string
	for i, q := range qs {
		out[i] = core.ResearchResult{QuestionID: q.ID, Question: q.Text, Tool: tool, Result: results[i]}
		if results[i].Success {
			succeeded++
			toolCost += results[i].Metadata.Cost
		} else {
			failures = append(failures, results[i].Error)
		}
	}
	e.round.ResearchResults = out

	if len(failures) > 0 {
		e.o.logger.Warn("research calls failed", "failed", len(failures), "dispatched", len(qs), "first_error", failures[0])
	}
	return map[string]interface{}{
		"tool":       tool,
		"dispatched": len(qs),
		"succeeded":  succeeded,
		"failed":     len(qs) - succeeded,
		"tool_cost":  toolCost,
	}, nil
}

func (e *stageExec) challenge(ctx context.Context) (map[string]interface{}, error) {
	text, err := e.moderated(ctx, core.StageChallenge, tmplChallenge, tempChallenge, 0, e.data())
	if err != nil {
		return nil, err
	}
	challenges, err := parseChallenges(text)
	if err != nil {
		return nil, err
	}
	e.round.Challenges = challenges
	e.round.ChallengeResponses = nil
	e.round.DebateResolutions = nil
	if len(challenges) == 0 {
		return map[string]interface{}{"challenges": 0}, nil
	}
	for _, c := range challenges {
		e.say(core.SpeakerModerator, core.DialogueChallenge, c.Text)
	}

	responses := make([]core.ChallengeResponse, len(e.personas))
	err = e.perPersona(ctx, tmplChallengeResponse, func(i int, p core.PersonaConfig, text string) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return emptyOutput(core.StageChallenge, "persona "+p.ID+" returned an empty response")
		}
		responses[i] = core.ChallengeResponse{PersonaID: p.ID, Response: text}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.round.ChallengeResponses = responses
	for _, r := range responses {
		e.say(r.PersonaID, core.DialogueResponse, r.Response)
	}

	text, err = e.moderated(ctx, core.StageChallenge, tmplResolution, tempResolution, 0, e.data())
	if err != nil {
		return nil, err
	}
	resolutions, err := parseResolutions(text, challenges)
	if err != nil {
		return nil, err
	}
	e.round.DebateResolutions = resolutions

	counts := map[string]int{}
	for _, r := range resolutions {
		counts[r.Outcome]++
		e.say(core.SpeakerModerator, core.DialogueResolution, fmt.Sprintf("%s (%s): %s", r.ChallengeID, r.Outcome, r.Resolution))
	}
	return map[string]interface{}{
		"challenges": len(challenges),
		"responses":  len(responses),
		"accepted":   counts[OutcomeAccepted],
		"rejected":   counts[OutcomeRejected],
		"open":       counts[OutcomeOpen],
	}, nil
}

func (e *stageExec) synthesis(ctx context.Context) (map[string]interface{}, error) {
	syntheses := make([]core.Synthesis, len(e.personas))
	err := e.perPersona(ctx, tmplSynthesis, func(i int, p core.PersonaConfig, text string) error {
		s, err := parseSynthesis(p.ID, text)
		if err != nil {
			return err
		}
		syntheses[i] = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.round.Syntheses = syntheses
	for _, s := range syntheses {
		e.say(s.PersonaID, core.DialogueSynthesis, s.Content)
	}
	return map[string]interface{}{
		"syntheses":     len(syntheses),
		"agreement":     service.SynthesisAgreement(syntheses),
		"shared_points": len(service.SharedPoints(syntheses)),
	}, nil
}

func (e *stageExec) review(ctx context.Context) (map[string]interface{}, error) {
	text, err := e.moderated(ctx, core.StageReview, tmplReview, tempReview, 0, e.data())
	if err != nil {
		return nil, err
	}
	rr, err := parseReview(text, e.personas)
	if err != nil {
		return nil, err
	}
	e.round.ReviewResult = rr
	verdict := "failed"
	if rr.Passed {
		verdict = "passed"
	}
	e.say(core.SpeakerModerator, core.DialogueReview, fmt.Sprintf("Review %s with score %.0f. %s", verdict, rr.Score, rr.Summary))
	return map[string]interface{}{
		"score":    rr.Score,
		"passed":   rr.Passed,
		"critical": rr.CountBySeverity(core.SeverityCritical),
		"major":    rr.CountBySeverity(core.SeverityMajor),
		"minor":    rr.CountBySeverity(core.SeverityMinor),
	}, nil
}

func (e *stageExec) voting(ctx context.Context) (map[string]interface{}, error) {
	votes := make([]core.Vote, len(e.personas))
	err := e.perPersona(ctx, tmplVote, func(i int, p core.PersonaConfig, text string) error {
		approved, reasoning, confidence, err := parseVote(text)
		if err != nil {
			return fmt.Errorf("persona %s: %w", p.ID, err)
		}
		votes[i] = core.Vote{
			PersonaID:  p.ID,
			Approved:   approved,
			Reasoning:  reasoning,
			Confidence: confidence,
			Timestamp:  e.o.now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.round.Votes = votes

	approved := 0
	for _, v := range votes {
		word := "rejects"
		if v.Approved {
			word = "approves"
			approved++
		}
		e.say(v.PersonaID, core.DialogueVote, fmt.Sprintf("%s: %s", word, v.Reasoning))
	}
	return map[string]interface{}{
		"approved":      approved,
		"total":         len(votes),
		"approval_rate": service.ApprovalRate(votes),
	}, nil
}

func (e *stageExec) spec(ctx context.Context, rounds []core.Round) (string, []core.TechStackItem, error) {
	pd := e.data()
	pd.Rounds = rounds
	text, err := e.moderated(ctx, core.StageSpec, tmplSpec, tempSpec, e.o.cfg.SpecMaxTokens, pd)
	if err != nil {
		return "", nil, err
	}
	return parseSpec(text)
}
