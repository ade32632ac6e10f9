package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/session"
)

// Manager owns one orchestrator per session and runs them in the background.
// Sessions not in memory are reopened from the repository on demand.
type Manager struct {
	cfg     Config
	gen     Generator
	tools   ToolDispatcher
	prompts *PromptRenderer
	opts    []Option
	base    *Orchestrator

	mu       sync.Mutex
	sessions map[string]*managedSession
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

type managedSession struct {
	orch    *Orchestrator
	running atomic.Bool
	touched atomic.Int64
}

// NewManager creates a manager. opts are applied to every orchestrator it
// creates.
func NewManager(cfg Config, gen Generator, dispatcher ToolDispatcher, prompts *PromptRenderer, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	base := New(cfg, gen, dispatcher, session.NewStore(), prompts, opts...)
	return &Manager{
		cfg:      base.cfg,
		gen:      gen,
		tools:    dispatcher,
		prompts:  prompts,
		opts:     opts,
		base:     base,
		sessions: make(map[string]*managedSession),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Manager) newSession() *managedSession {
	store := session.NewStore(session.WithClock(m.base.now))
	ms := &managedSession{orch: New(m.cfg, m.gen, m.tools, store, m.prompts, m.opts...)}
	ms.touched.Store(m.base.now().UnixNano())
	return ms
}

// Create validates the input, registers a new session and starts running it
// in the background. It returns the session id.
func (m *Manager) Create(idea string, personas []core.PersonaConfig) (string, error) {
	if err := ValidateInput(idea, personas); err != nil {
		return "", err
	}
	id := uuid.NewString()
	ms := m.newSession()
	ms.orch.Store().StartSession(id, idea, personas)

	m.mu.Lock()
	m.sessions[id] = ms
	m.mu.Unlock()

	ms.running.Store(true)
	m.launch(id, ms, func(ctx context.Context) error {
		return ms.orch.Start(ctx, id, idea, personas)
	})
	return id, nil
}

// Open returns the orchestrator for a session, reopening it from the
// repository when it is not in memory. A persisted session older than
// MaxSnapshotAge is rejected.
func (m *Manager) Open(ctx context.Context, id string) (*Orchestrator, error) {
	ms, err := m.open(ctx, id)
	if err != nil {
		return nil, err
	}
	return ms.orch, nil
}

func (m *Manager) open(ctx context.Context, id string) (*managedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ms, ok := m.sessions[id]; ok {
		return ms, nil
	}
	if m.base.repo == nil {
		return nil, core.ErrNotFound("session", id)
	}
	snap, err := m.base.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	ms := m.newSession()
	if err := ms.orch.Store().Hydrate(snap, session.HydrateOptions{
		MaxAge: m.cfg.MaxSnapshotAge,
		Policy: m.cfg.Policy,
	}); err != nil {
		return nil, err
	}
	m.sessions[id] = ms
	m.base.logger.WithSession(id).Info("session reopened", "rounds", len(ms.orch.Store().State().Rounds))
	return ms, nil
}

// Get returns the current state of a session. In-memory sessions report
// live state; others are read from the repository without reopening them.
func (m *Manager) Get(ctx context.Context, id string) (*core.SessionState, error) {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return ms.orch.Store().State(), nil
	}
	snap, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	st := *snap.SessionState
	if len(st.Dialogue) == 0 {
		st.Dialogue = snap.DialogueEntries
	}
	return &st, nil
}

// Dialogue returns the dialogue transcript of a session.
func (m *Manager) Dialogue(ctx context.Context, id string) ([]core.DialogueEntry, error) {
	st, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return st.Dialogue, nil
}

func (m *Manager) load(ctx context.Context, id string) (*core.Snapshot, error) {
	if m.base.repo == nil {
		return nil, core.ErrNotFound("session", id)
	}
	snap, err := m.base.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.SessionState == nil {
		return nil, core.ErrState(core.CodeStateCorrupted, "snapshot has no session state")
	}
	if err := session.CheckAge(snap, m.base.now(), m.cfg.MaxSnapshotAge); err != nil {
		return nil, err
	}
	return snap, nil
}

// List returns every known session, most recently updated first. Live
// sessions override their persisted summaries. Persisted sessions past the
// staleness window are included with Stale set.
func (m *Manager) List(ctx context.Context) ([]core.SessionSummary, error) {
	byID := make(map[string]core.SessionSummary)
	if m.base.repo != nil {
		persisted, err := m.base.repo.List(ctx)
		if err != nil {
			return nil, err
		}
		now := m.base.now()
		for _, s := range persisted {
			s.Stale = session.IsStale(s.SnapshotAt, now, m.cfg.MaxSnapshotAge)
			byID[s.SessionID] = s
		}
	}

	m.mu.Lock()
	for id, ms := range m.sessions {
		st := ms.orch.Store().State()
		updated := time.Unix(0, ms.touched.Load())
		if n := len(st.History); n > 0 {
			updated = st.History[n-1].Timestamp
		}
		byID[id] = core.SessionSummary{
			SessionID: id,
			Idea:      st.Idea,
			Status:    st.Status,
			Rounds:    len(st.Rounds),
			UpdatedAt: updated,
		}
	}
	m.mu.Unlock()

	out := make([]core.SessionSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Pause asks a session to stop at its next checkpoint.
func (m *Manager) Pause(ctx context.Context, id string) error {
	ms, err := m.open(ctx, id)
	if err != nil {
		return err
	}
	return ms.orch.Pause(ctx)
}

// Resume continues a paused session in the background. It reports whether a
// run was started; a session without a checkpoint is left untouched.
func (m *Manager) Resume(ctx context.Context, id, comment string) (bool, error) {
	ms, err := m.open(ctx, id)
	if err != nil {
		return false, err
	}
	if ms.orch.Store().State().PendingResume == nil {
		return false, nil
	}
	if !ms.running.CompareAndSwap(false, true) {
		return false, errRunInProgress()
	}
	// The previous run may have consumed the checkpoint before we claimed.
	if ms.orch.Store().State().PendingResume == nil {
		ms.running.Store(false)
		return false, nil
	}
	m.launch(id, ms, func(ctx context.Context) error {
		return ms.orch.Resume(ctx, comment)
	})
	return true, nil
}

// Retry re-runs the current round of a failed or interrupted session from
// the stage where it stopped.
func (m *Manager) Retry(ctx context.Context, id string) error {
	ms, err := m.open(ctx, id)
	if err != nil {
		return err
	}
	if !ms.running.CompareAndSwap(false, true) {
		return errRunInProgress()
	}
	st := ms.orch.Store().State()
	switch {
	case st.Status == core.SessionComplete:
		ms.running.Store(false)
		return core.ErrState(core.CodeSessionComplete, "session is already complete")
	case st.PendingResume != nil:
		ms.running.Store(false)
		return core.ErrState(core.CodeInvalidRound, "session is paused at a checkpoint; resume it instead")
	}
	n := currentRoundNumber(st)
	if n == 0 {
		n = 1
	}
	m.launch(id, ms, func(ctx context.Context) error {
		return ms.orch.Run(ctx, n, "")
	})
	return nil
}

// Delete removes a session that is not running.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	if ok && ms.running.Load() {
		m.mu.Unlock()
		return errRunInProgress()
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.base.repo == nil {
		if !ok {
			return core.ErrNotFound("session", id)
		}
		return nil
	}
	err := m.base.repo.Delete(ctx, id)
	if ok && core.IsCategory(err, core.ErrCatNotFound) {
		return nil
	}
	return err
}

// Running reports whether a session currently has an active run.
func (m *Manager) Running(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	return ok && ms.running.Load()
}

// launch runs fn in the background. The caller must already hold the
// session's running flag; launch clears it when fn returns.
func (m *Manager) launch(id string, ms *managedSession, fn func(context.Context) error) {
	ms.touched.Store(m.base.now().UnixNano())
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ms.running.Store(false)
		err := fn(m.ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			m.base.logger.WithSession(id).Info("session run canceled")
		default:
			m.base.logger.WithSession(id).Warn("session run ended with error", "error", err)
		}
	}()
}

// Wait blocks until every background run has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels every background run and waits for them to stop, or for
// ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
