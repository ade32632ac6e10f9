// Package pipeline drives a deliberation session: each round runs the fixed
// stage sequence (questions, research, challenge, synthesis, review, voting),
// the consensus policy decides whether to finalize, and the final spec stage
// produces the document.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/events"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/logging"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service/tools"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/session"
)

// Generator routes a generation request for a role (persona id or stage name).
type Generator interface {
	Route(ctx context.Context, role string, req core.GenerationRequest) (*core.GenerationResponse, error)
}

// ToolDispatcher runs research tool calls concurrently.
type ToolDispatcher interface {
	DispatchAll(ctx context.Context, calls []tools.Call) []core.ToolResult
}

// Config configures the orchestrator.
type Config struct {
	ResearchTool         string
	MaxResearchQuestions int
	// MaxParallel bounds concurrent persona requests; zero means one per persona.
	MaxParallel int
	Policy      service.ConsensusPolicy
	// SpecMaxTokens is the token budget for the final document.
	SpecMaxTokens int
	// MaxSnapshotAge bounds how old a persisted session may be when reopened.
	MaxSnapshotAge time.Duration
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		ResearchTool:         "web_search",
		MaxResearchQuestions: 5,
		Policy:               service.DefaultConsensusPolicy(),
		SpecMaxTokens:        8192,
		MaxSnapshotAge:       session.DefaultMaxSnapshotAge,
	}
}

// maxQuestions is how many questions the questions stage keeps.
const maxQuestions = 8

// Orchestrator runs one session. A single run may be active at a time;
// Pause may be called concurrently with a run.
type Orchestrator struct {
	cfg     Config
	gen     Generator
	tools   ToolDispatcher
	store   *session.Store
	prompts *PromptRenderer
	repo    core.SessionRepository
	bus     *events.EventBus
	metrics *service.Metrics
	logger  *logging.Logger
	now     func() time.Time

	runMu     sync.Mutex
	persistMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRepository persists a snapshot after every stage transition.
func WithRepository(repo core.SessionRepository) Option {
	return func(o *Orchestrator) { o.repo = repo }
}

// WithEventBus publishes session events.
func WithEventBus(bus *events.EventBus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *service.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator writing into store.
func New(cfg Config, gen Generator, dispatcher ToolDispatcher, store *session.Store, prompts *PromptRenderer, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.ResearchTool == "" {
		cfg.ResearchTool = def.ResearchTool
	}
	if cfg.MaxResearchQuestions <= 0 {
		cfg.MaxResearchQuestions = def.MaxResearchQuestions
	}
	if cfg.SpecMaxTokens <= 0 {
		cfg.SpecMaxTokens = def.SpecMaxTokens
	}
	if cfg.MaxSnapshotAge <= 0 {
		cfg.MaxSnapshotAge = def.MaxSnapshotAge
	}
	cfg.Policy = cfg.Policy.Normalized()
	o := &Orchestrator{
		cfg:     cfg,
		gen:     gen,
		tools:   dispatcher,
		store:   store,
		prompts: prompts,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store returns the session store.
func (o *Orchestrator) Store() *session.Store {
	return o.store
}

// Start resets the store to a new session and runs it from round 1. An empty
// sessionID gets a generated one.
func (o *Orchestrator) Start(ctx context.Context, sessionID, idea string, personas []core.PersonaConfig) error {
	idea = strings.TrimSpace(idea)
	if err := ValidateInput(idea, personas); err != nil {
		return err
	}
	if !o.runMu.TryLock() {
		return errRunInProgress()
	}
	defer o.runMu.Unlock()

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	o.store.StartSession(sessionID, idea, personas)
	enabled := o.store.State().EnabledPersonas()
	o.store.AddHistory(core.HistorySessionStarted, 0, "", map[string]interface{}{
		"personas": PersonaIDs(enabled),
	})
	o.bus.Publish(events.NewSessionStartedEvent(sessionID, idea, PersonaIDs(enabled)))
	o.logger.WithSession(sessionID).Info("session started", "personas", len(enabled))

	return o.run(ctx, 1, "")
}

// ValidateInput checks an idea and persona roster before a session starts.
func ValidateInput(idea string, personas []core.PersonaConfig) error {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return core.ErrValidation(core.CodeEmptyIdea, "idea must not be empty")
	}
	if len(idea) > core.MaxIdeaLength {
		return core.ErrValidation(core.CodeIdeaTooLong,
			fmt.Sprintf("idea is %d bytes, limit is %d", len(idea), core.MaxIdeaLength))
	}
	return ValidatePersonas(personas)
}

// Run executes rounds starting at roundNumber until the session finalizes,
// pauses at a checkpoint, or a stage fails. Re-invoking Run with the number
// of a round that failed continues that round from the failed stage.
func (o *Orchestrator) Run(ctx context.Context, roundNumber int, comment string) error {
	if !o.runMu.TryLock() {
		return errRunInProgress()
	}
	defer o.runMu.Unlock()
	return o.run(ctx, roundNumber, comment)
}

// Pause stops the session from automatically starting its next round. Work in
// flight is not interrupted.
func (o *Orchestrator) Pause(ctx context.Context) error {
	st := o.store.State()
	if st.Status == core.SessionComplete {
		return core.ErrState(core.CodeSessionComplete, "session is already complete")
	}
	if st.IsPaused {
		return nil
	}
	o.store.SetPaused(true)
	o.store.AddHistory(core.HistorySessionPaused, currentRoundNumber(st), "", map[string]interface{}{"requested": true})
	o.bus.Publish(events.NewSessionPausedEvent(st.SessionID, 0))
	o.logger.WithSession(st.SessionID).Info("pause requested")
	o.persist(ctx)
	return nil
}

// Resume continues a session paused at a checkpoint. comment, when non-empty,
// is recorded before the next round starts and replaces the checkpoint's
// comment. Without a checkpoint Resume does nothing.
func (o *Orchestrator) Resume(ctx context.Context, comment string) error {
	pending := o.store.State().PendingResume
	if pending == nil {
		return nil
	}
	if !o.runMu.TryLock() {
		return errRunInProgress()
	}
	defer o.runMu.Unlock()

	st := o.store.State()
	if st.PendingResume == nil {
		return nil
	}
	p := *st.PendingResume
	comment = strings.TrimSpace(comment)
	effective := comment
	if effective == "" {
		effective = p.UserComment
	}

	o.store.SetPaused(false)
	if comment != "" {
		o.store.AddHistory(core.HistoryUserComment, p.NextRound, "", map[string]interface{}{"comment": comment})
		o.store.AddDialogue(core.DialogueEntry{
			Speaker: core.SpeakerUser,
			Content: comment,
			Kind:    core.DialogueComment,
			Round:   p.NextRound,
		})
		o.bus.Publish(events.NewUserCommentEvent(st.SessionID, comment))
	}
	o.store.AddHistory(core.HistorySessionResumed, p.NextRound, "", map[string]interface{}{"next_round": p.NextRound})
	o.bus.Publish(events.NewSessionResumedEvent(st.SessionID, p.NextRound, effective))
	o.logger.WithSession(st.SessionID).Info("session resumed", "round", p.NextRound)

	return o.run(ctx, p.NextRound, effective)
}

// run is the round loop. It is iterative so long sessions do not grow the
// stack. Callers hold runMu.
func (o *Orchestrator) run(ctx context.Context, roundNumber int, comment string) error {
	st := o.store.State()
	if st.Idea == "" {
		return core.ErrState(core.CodeSessionNotFound, "no session has been started")
	}
	if st.Status == core.SessionComplete {
		return core.ErrState(core.CodeSessionComplete, "session is already complete")
	}
	sessionID := st.SessionID

	n := roundNumber
	for {
		round, err := o.prepareRound(n, comment)
		if err != nil {
			return err
		}
		o.store.SetStatus(core.SessionRunning)

		decision, err := o.runRound(ctx, round)
		if err != nil {
			return o.fail(ctx, round.Number, err)
		}
		if decision.Finalize {
			if err := o.finalize(ctx); err != nil {
				return o.fail(ctx, round.Number, err)
			}
			return nil
		}

		if o.store.State().IsPaused {
			next := n + 1
			if err := o.store.SetPendingResume(&core.PendingResume{
				Idea:        o.store.State().Idea,
				NextRound:   next,
				UserComment: comment,
			}); err != nil {
				return err
			}
			o.store.AddHistory(core.HistorySessionPaused, n, "", map[string]interface{}{"next_round": next})
			o.bus.PublishPriority(events.NewSessionPausedEvent(sessionID, next))
			o.logger.WithSession(sessionID).Info("session paused at checkpoint", "next_round", next)
			o.persist(ctx)
			return nil
		}
		n++
	}
}

// prepareRound creates round n, or re-enters it when it is the current round.
func (o *Orchestrator) prepareRound(n int, comment string) (core.Round, error) {
	st := o.store.State()
	last := st.CurrentRound()
	resumed := false

	var round core.Round
	switch {
	case last == nil && n == 1:
		round = core.NewRound(1, comment, o.now())
		if err := o.store.AddRound(round); err != nil {
			return core.Round{}, err
		}
	case last != nil && last.Number == n:
		round = last.Clone()
		resumed = true
		if round.Status != core.RoundComplete {
			round.Status = core.RoundInProgress
			if comment != "" {
				round.UserComment = comment
			}
			if err := o.store.UpdateCurrentRound(round); err != nil {
				return core.Round{}, err
			}
		}
	case last != nil && n == last.Number+1:
		if last.Status != core.RoundComplete {
			return core.Round{}, core.ErrState(core.CodeInvalidRound,
				fmt.Sprintf("round %d is not complete; resume it before starting round %d", last.Number, n))
		}
		round = core.NewRound(n, comment, o.now())
		if err := o.store.AddRound(round); err != nil {
			return core.Round{}, err
		}
	default:
		current := 0
		if last != nil {
			current = last.Number
		}
		return core.Round{}, core.ErrState(core.CodeInvalidRound,
			fmt.Sprintf("cannot run round %d; current round is %d", n, current))
	}

	data := map[string]interface{}{"resumed": resumed}
	if round.UserComment != "" {
		data["comment"] = round.UserComment
	}
	o.store.AddHistory(core.HistoryRoundStarted, n, round.Stage, data)
	o.bus.Publish(events.NewRoundStartedEvent(st.SessionID, n, round.UserComment))
	return round, nil
}

// runRound runs the remaining stages of r and evaluates consensus.
func (o *Orchestrator) runRound(ctx context.Context, r core.Round) (service.Decision, error) {
	if r.Status != core.RoundComplete {
		from := core.StageOrder(r.Stage)
		for _, stage := range core.RoundStages() {
			if core.StageOrder(stage) < from {
				continue
			}
			next, err := o.runStage(ctx, r, stage)
			if err != nil {
				return service.Decision{}, err
			}
			r = next
		}
	}

	decision := o.cfg.Policy.Evaluate(r)
	sessionID := o.store.State().SessionID
	o.store.AddHistory(core.HistoryRoundCompleted, r.Number, core.StageVoting, map[string]interface{}{
		"approved": decision.Approved,
		"total":    decision.Total,
	})
	o.store.AddHistory(core.HistoryConsensus, r.Number, "", map[string]interface{}{
		"approval_rate": decision.ApprovalRate,
		"threshold":     o.cfg.Policy.ApprovalThreshold,
		"finalize":      decision.Finalize,
		"round_cap_hit": decision.RoundCapHit,
		"agreement":     decision.Agreement,
	})
	o.metrics.ObserveRound(decision)
	o.bus.Publish(events.NewRoundCompletedEvent(sessionID, r.Number, decision.ApprovalRate,
		decision.Approved, decision.Total, decision.Finalize))
	o.logger.WithSession(sessionID).WithRound(r.Number).Info("round complete",
		"approval_rate", decision.ApprovalRate, "finalize", decision.Finalize)
	o.persist(ctx)
	return decision, nil
}

// runStage executes one stage and publishes the updated round as a whole value.
func (o *Orchestrator) runStage(ctx context.Context, r core.Round, stage core.Stage) (core.Round, error) {
	st := o.store.State()
	log := o.logger.WithSession(st.SessionID).WithRound(r.Number).WithStage(string(stage))
	start := o.now()

	r.Stage = stage
	if err := o.store.UpdateCurrentRound(r); err != nil {
		return r, err
	}
	o.store.AddHistory(core.HistoryStageStarted, r.Number, stage, nil)
	o.bus.Publish(events.NewStageStartedEvent(st.SessionID, r.Number, string(stage)))
	log.Debug("stage started")

	if err := ctx.Err(); err != nil {
		return r, o.stageFailed(ctx, r, stage, start, err)
	}

	exec := &stageExec{o: o, idea: st.Idea, personas: st.EnabledPersonas(), round: r.Clone()}
	exec.previous = previousRound(st, r.Number)
	data, err := exec.run(ctx, stage)
	if err != nil {
		return r, o.stageFailed(ctx, r, stage, start, err)
	}
	next := exec.round
	if stage == core.StageVoting {
		if len(next.Votes) == 0 {
			return r, o.stageFailed(ctx, r, stage, start, emptyOutput(stage, "no votes recorded"))
		}
		t := o.now()
		next.Status = core.RoundComplete
		next.CompletedAt = &t
	}
	if err := o.store.UpdateCurrentRound(next); err != nil {
		return r, err
	}
	if len(exec.dialogue) > 0 {
		o.store.AddDialogue(exec.dialogue...)
	}

	d := o.now().Sub(start)
	if data == nil {
		data = map[string]interface{}{}
	}
	data["duration_ms"] = d.Milliseconds()
	data["requests"] = exec.stats.requests
	data["cost"] = exec.stats.cost
	o.store.AddHistory(core.HistoryStageCompleted, r.Number, stage, data)
	o.metrics.ObserveStage(string(stage), true, d)
	o.bus.Publish(events.NewStageCompletedEvent(st.SessionID, r.Number, string(stage), d, data))
	log.Info("stage completed", "duration", d, "requests", exec.stats.requests)
	o.persist(ctx)
	return next, nil
}

func (o *Orchestrator) stageFailed(ctx context.Context, r core.Round, stage core.Stage, start time.Time, cause error) error {
	d := o.now().Sub(start)
	sessionID := o.store.State().SessionID
	o.store.AddHistory(core.HistoryStageFailed, r.Number, stage, map[string]interface{}{
		"error":       cause.Error(),
		"category":    string(core.GetCategory(cause)),
		"retryable":   core.IsRetryable(cause),
		"duration_ms": d.Milliseconds(),
	})
	o.metrics.ObserveStage(string(stage), false, d)
	o.bus.Publish(events.NewStageFailedEvent(sessionID, r.Number, string(stage), d, cause))
	o.logger.WithSession(sessionID).WithRound(r.Number).WithStage(string(stage)).
		Error("stage failed", "error", cause)
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	return core.ErrStageFailure(stage, r.Number, cause)
}

// finalize runs the spec stage against every recorded round.
func (o *Orchestrator) finalize(ctx context.Context) error {
	st := o.store.State()
	last := st.CurrentRound()
	if last == nil {
		return core.ErrState(core.CodeInvalidRound, "no rounds to finalize")
	}
	r := last.Clone()
	if r.Stage != core.StageSpec {
		r.Stage = core.StageSpec
		if err := o.store.UpdateCurrentRound(r); err != nil {
			return err
		}
	}

	log := o.logger.WithSession(st.SessionID).WithStage(string(core.StageSpec))
	start := o.now()
	o.store.AddHistory(core.HistoryStageStarted, r.Number, core.StageSpec, nil)
	o.bus.Publish(events.NewStageStartedEvent(st.SessionID, r.Number, string(core.StageSpec)))

	exec := &stageExec{o: o, idea: st.Idea, personas: st.EnabledPersonas(), round: r}
	doc, stack, err := exec.spec(ctx, o.store.State().Rounds)
	if err != nil {
		return o.stageFailed(ctx, r, core.StageSpec, start, err)
	}

	o.store.SetGeneratedDocument(doc, stack)
	o.store.SetStatus(core.SessionComplete)
	d := o.now().Sub(start)
	data := map[string]interface{}{
		"document_bytes": len(doc),
		"tech_stack":     len(stack),
		"duration_ms":    d.Milliseconds(),
		"cost":           exec.stats.cost,
	}
	o.store.AddHistory(core.HistoryStageCompleted, r.Number, core.StageSpec, data)
	o.store.AddHistory(core.HistorySessionCompleted, r.Number, "", map[string]interface{}{"rounds": len(o.store.State().Rounds)})
	o.metrics.ObserveStage(string(core.StageSpec), true, d)
	o.bus.Publish(events.NewStageCompletedEvent(st.SessionID, r.Number, string(core.StageSpec), d, data))
	o.bus.PublishPriority(events.NewSessionCompletedEvent(st.SessionID, len(o.store.State().Rounds), len(doc), len(stack)))
	log.Info("specification generated", "bytes", len(doc), "tech_stack", len(stack))
	o.persist(ctx)
	return nil
}

// fail records a halted run. The failed round keeps its in-progress status so
// the run can be retried with the same round number.
func (o *Orchestrator) fail(ctx context.Context, round int, err error) error {
	st := o.store.State()
	if errors.Is(err, context.Canceled) {
		o.store.SetStatus(core.SessionIdle)
		o.store.AddHistory(core.HistoryWarning, round, "", map[string]interface{}{"message": "run canceled"})
		o.persist(ctx)
		return err
	}
	o.store.SetStatus(core.SessionFailed)
	title, msg := core.UserMessage(err)
	stage := ""
	if cur := st.CurrentRound(); cur != nil {
		stage = string(cur.Stage)
	}
	o.bus.PublishPriority(events.NewSessionFailedEvent(st.SessionID, round, stage, title, msg))
	o.persist(ctx)
	return err
}

// persist saves a snapshot. Failures are logged and do not stop the run.
func (o *Orchestrator) persist(ctx context.Context) {
	if o.repo == nil {
		return
	}
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	snap := o.store.Snapshot()
	if err := o.repo.Save(saveCtx, snap); err != nil {
		o.logger.WithSession(snap.SessionID).Warn("failed to persist snapshot", "error", err)
	}
}

func errRunInProgress() error {
	return core.ErrState(core.CodeRunInProgress, "a run is already in progress for this session")
}

func currentRoundNumber(st *core.SessionState) int {
	if r := st.CurrentRound(); r != nil {
		return r.Number
	}
	return 0
}

func previousRound(st *core.SessionState, n int) *core.Round {
	for i := len(st.Rounds) - 1; i >= 0; i-- {
		if st.Rounds[i].Number == n-1 {
			r := st.Rounds[i].Clone()
			return &r
		}
	}
	return nil
}
