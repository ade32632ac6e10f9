package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// NewTestSession creates a SessionState with sensible defaults for tests.
// Use functional options to override specific fields.
func NewTestSession(opts ...func(*core.SessionState)) *core.SessionState {
	s := &core.SessionState{
		SessionID: "sess-test",
		Idea:      "Build a fitness app",
		Status:    core.SessionIdle,
		Rounds:    make([]core.Round, 0),
		History:   make([]core.HistoryEntry, 0),
		Personas:  NewTestPersonas(3),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewTestPersonas returns n enabled personas with ids p1..pn.
func NewTestPersonas(n int) []core.PersonaConfig {
	out := make([]core.PersonaConfig, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, core.PersonaConfig{
			ID:             fmt.Sprintf("p%d", i),
			Name:           fmt.Sprintf("Persona %d", i),
			PromptTemplate: "You are persona {{.Name}}.",
			Temperature:    0.7,
			Enabled:        true,
		})
	}
	return out
}

// NewCompletedRound returns a sealed round with one vote per approval flag.
func NewCompletedRound(number int, approvals ...bool) core.Round {
	now := time.Now()
	r := core.NewRound(number, "", now)
	r.Stage = core.StageVoting
	r.Status = core.RoundComplete
	r.CompletedAt = &now
	for i, a := range approvals {
		r.Votes = append(r.Votes, core.Vote{
			PersonaID: fmt.Sprintf("p%d", i+1),
			Approved:  a,
			Reasoning: "test",
			Timestamp: now,
		})
	}
	return r
}

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock starting at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
