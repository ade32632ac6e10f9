// Package session holds the in-memory state of one deliberation run.
//
// A Store has a single writer (the orchestrator task that owns the run) and
// any number of readers. Every mutation builds a new SessionState value with
// fresh slices and publishes it atomically, so a reader holding a state never
// observes a partially written round.
package session

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// Store owns Round, Vote and SessionState lifetimes for one run.
type Store struct {
	mu      sync.Mutex
	state   atomic.Pointer[core.SessionState]
	now     func() time.Time
	entropy io.Reader
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a store holding an empty idle session.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Store(emptyState(""))
	return s
}

func emptyState(sessionID string) *core.SessionState {
	return &core.SessionState{
		SessionID:         sessionID,
		Status:            core.SessionIdle,
		Rounds:            []core.Round{},
		CurrentRoundIndex: -1,
		History:           []core.HistoryEntry{},
		Dialogue:          []core.DialogueEntry{},
	}
}

// State returns the current published state. Callers must treat it as
// read-only; use Snapshot for a copy that may be modified.
func (s *Store) State() *core.SessionState {
	return s.state.Load()
}

// update applies fn to a shallow copy of the current state and publishes the
// result. fn must replace, never modify, any slice it changes.
func (s *Store) update(fn func(next *core.SessionState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.state.Load()
	if err := fn(&next); err != nil {
		return err
	}
	s.state.Store(&next)
	return nil
}

// StartSession resets the store to an empty running session.
func (s *Store) StartSession(sessionID, idea string, personas []core.PersonaConfig) {
	_ = s.update(func(next *core.SessionState) error {
		*next = *emptyState(sessionID)
		next.Idea = idea
		next.Status = core.SessionRunning
		next.Personas = append([]core.PersonaConfig(nil), personas...)
		return nil
	})
}

// ResetSession discards all state, keeping nothing.
func (s *Store) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Store(emptyState(""))
}

// AddRound appends a round and points CurrentRoundIndex at it. Round numbers
// must increase by exactly one.
func (s *Store) AddRound(r core.Round) error {
	return s.update(func(next *core.SessionState) error {
		want := 1
		if n := len(next.Rounds); n > 0 {
			want = next.Rounds[n-1].Number + 1
		}
		if r.Number != want {
			return core.ErrState(core.CodeInvalidRound,
				fmt.Sprintf("round %d cannot follow round %d", r.Number, want-1))
		}
		rounds := make([]core.Round, len(next.Rounds), len(next.Rounds)+1)
		copy(rounds, next.Rounds)
		next.Rounds = append(rounds, r.Clone())
		next.CurrentRoundIndex = len(next.Rounds) - 1
		return nil
	})
}

// UpdateCurrentRound replaces the last round by whole value. The number must
// match the round being replaced.
func (s *Store) UpdateCurrentRound(r core.Round) error {
	return s.update(func(next *core.SessionState) error {
		n := len(next.Rounds)
		if n == 0 {
			return core.ErrState(core.CodeInvalidRound, "no round to update")
		}
		if next.Rounds[n-1].Number != r.Number {
			return core.ErrState(core.CodeInvalidRound,
				fmt.Sprintf("current round is %d, got %d", next.Rounds[n-1].Number, r.Number))
		}
		rounds := make([]core.Round, n)
		copy(rounds, next.Rounds)
		rounds[n-1] = r.Clone()
		next.Rounds = rounds
		return nil
	})
}

// AddHistory appends an event to the log. Timestamps never go backwards even
// if the clock does.
func (s *Store) AddHistory(typ string, round int, stage core.Stage, data map[string]interface{}) core.HistoryEntry {
	var entry core.HistoryEntry
	_ = s.update(func(next *core.SessionState) error {
		ts := s.now()
		if n := len(next.History); n > 0 && ts.Before(next.History[n-1].Timestamp) {
			ts = next.History[n-1].Timestamp
		}
		entry = core.HistoryEntry{
			ID:        ulid.MustNew(ulid.Timestamp(ts), s.entropy).String(),
			Type:      typ,
			Round:     round,
			Stage:     stage,
			Data:      copyData(data),
			Timestamp: ts,
		}
		history := make([]core.HistoryEntry, len(next.History), len(next.History)+1)
		copy(history, next.History)
		next.History = append(history, entry)
		return nil
	})
	return entry
}

// AddDialogue appends entries to the transcript.
func (s *Store) AddDialogue(entries ...core.DialogueEntry) {
	if len(entries) == 0 {
		return
	}
	_ = s.update(func(next *core.SessionState) error {
		ts := s.now()
		dialogue := make([]core.DialogueEntry, len(next.Dialogue), len(next.Dialogue)+len(entries))
		copy(dialogue, next.Dialogue)
		for _, e := range entries {
			if e.Timestamp.IsZero() {
				e.Timestamp = ts
			}
			dialogue = append(dialogue, e)
		}
		next.Dialogue = dialogue
		return nil
	})
}

// SetPaused sets the pause flag. Clearing it also clears PendingResume.
func (s *Store) SetPaused(paused bool) {
	_ = s.update(func(next *core.SessionState) error {
		next.IsPaused = paused
		if !paused {
			next.PendingResume = nil
			if next.Status == core.SessionPaused {
				next.Status = core.SessionIdle
			}
		}
		return nil
	})
}

// SetPendingResume records where a paused session continues from. It
// refuses a checkpoint while the session is not paused.
func (s *Store) SetPendingResume(p *core.PendingResume) error {
	return s.update(func(next *core.SessionState) error {
		if p == nil {
			next.PendingResume = nil
			return nil
		}
		if !next.IsPaused {
			return core.ErrState(core.CodeInvalidRound, "pending resume requires a paused session")
		}
		cp := *p
		next.PendingResume = &cp
		next.Status = core.SessionPaused
		return nil
	})
}

// SetStatus sets the session status.
func (s *Store) SetStatus(status core.SessionStatus) {
	_ = s.update(func(next *core.SessionState) error {
		next.Status = status
		return nil
	})
}

// SetGeneratedDocument stores the final document and derived tech stack.
func (s *Store) SetGeneratedDocument(doc string, techStack []core.TechStackItem) {
	_ = s.update(func(next *core.SessionState) error {
		next.GeneratedDocument = doc
		next.TechStack = append([]core.TechStackItem(nil), techStack...)
		return nil
	})
}

// Snapshot returns a deep copy of the state in its persisted form.
func (s *Store) Snapshot() *core.Snapshot {
	st := s.state.Load()
	cp := cloneState(st)
	return &core.Snapshot{
		Version:           core.SnapshotVersion,
		SessionID:         st.SessionID,
		GeneratedDocument: st.GeneratedDocument,
		DialogueEntries:   append([]core.DialogueEntry(nil), st.Dialogue...),
		SessionState:      cp,
		Timestamp:         s.now(),
	}
}

func cloneState(st *core.SessionState) *core.SessionState {
	cp := *st
	cp.Rounds = make([]core.Round, len(st.Rounds))
	for i, r := range st.Rounds {
		cp.Rounds[i] = r.Clone()
	}
	cp.History = append([]core.HistoryEntry(nil), st.History...)
	cp.Dialogue = append([]core.DialogueEntry(nil), st.Dialogue...)
	cp.TechStack = append([]core.TechStackItem(nil), st.TechStack...)
	cp.Personas = append([]core.PersonaConfig(nil), st.Personas...)
	if st.PendingResume != nil {
		pr := *st.PendingResume
		cp.PendingResume = &pr
	}
	return &cp
}

func copyData(data map[string]interface{}) map[string]interface{} {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
