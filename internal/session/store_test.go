package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/testutil"
)

func newStore(t *testing.T) (*Store, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s := NewStore(WithClock(clock.Now))
	s.StartSession("sess-1", "Build a fitness app", testutil.NewTestPersonas(3))
	return s, clock
}

func TestStore_StartSession(t *testing.T) {
	s, _ := newStore(t)
	st := s.State()

	assert.Equal(t, "sess-1", st.SessionID)
	assert.Equal(t, core.SessionRunning, st.Status)
	assert.Empty(t, st.Rounds)
	assert.Equal(t, -1, st.CurrentRoundIndex)
	assert.Len(t, st.Personas, 3)
}

func TestStore_AddRoundNumbering(t *testing.T) {
	s, clock := newStore(t)

	require.NoError(t, s.AddRound(core.NewRound(1, "", clock.Now())))
	assert.Equal(t, 0, s.State().CurrentRoundIndex)

	err := s.AddRound(core.NewRound(3, "", clock.Now()))
	assert.True(t, core.IsCategory(err, core.ErrCatState))

	require.NoError(t, s.AddRound(core.NewRound(2, "", clock.Now())))
	assert.Equal(t, 1, s.State().CurrentRoundIndex)
	assert.Equal(t, 2, s.State().CurrentRound().Number)
}

func TestStore_UpdateCurrentRoundReplacesWholeValue(t *testing.T) {
	s, clock := newStore(t)
	require.NoError(t, s.AddRound(core.NewRound(1, "", clock.Now())))

	before := s.State()
	r := before.Rounds[0]
	r.Stage = core.StageResearch
	r.Questions = []core.Question{{ID: "q1", Text: "Who is the user?"}}
	require.NoError(t, s.UpdateCurrentRound(r))

	// The earlier published state is untouched.
	assert.Equal(t, core.StageQuestions, before.Rounds[0].Stage)
	assert.Empty(t, before.Rounds[0].Questions)
	assert.Equal(t, core.StageResearch, s.State().Rounds[0].Stage)

	r.Number = 5
	assert.Error(t, s.UpdateCurrentRound(r))
}

func TestStore_UpdateWithoutRound(t *testing.T) {
	s, clock := newStore(t)
	err := s.UpdateCurrentRound(core.NewRound(1, "", clock.Now()))
	assert.True(t, core.IsCategory(err, core.ErrCatState))
}

func TestStore_HistoryMonotonic(t *testing.T) {
	s, clock := newStore(t)

	a := s.AddHistory(core.HistoryRoundStarted, 1, "", nil)
	clock.Advance(-time.Minute)
	b := s.AddHistory(core.HistoryStageStarted, 1, core.StageQuestions, map[string]interface{}{"k": 1})

	assert.False(t, b.Timestamp.Before(a.Timestamp))
	assert.Less(t, a.ID, b.ID, "IDs sort in append order")
	assert.Len(t, s.State().History, 2)
	assert.Equal(t, 1, s.State().History[1].Data["k"])
}

func TestStore_PauseAndPendingResume(t *testing.T) {
	s, _ := newStore(t)

	err := s.SetPendingResume(&core.PendingResume{Idea: "x", NextRound: 2})
	assert.Error(t, err, "checkpoint requires pause")

	s.SetPaused(true)
	require.NoError(t, s.SetPendingResume(&core.PendingResume{Idea: "x", NextRound: 2}))
	assert.Equal(t, core.SessionPaused, s.State().Status)

	s.SetPaused(false)
	assert.Nil(t, s.State().PendingResume)
	assert.False(t, s.State().IsPaused)
}

func TestStore_GeneratedDocumentAndReset(t *testing.T) {
	s, _ := newStore(t)
	s.SetGeneratedDocument("# Spec", []core.TechStackItem{{Category: "backend", Name: "Go"}})
	s.AddDialogue(core.DialogueEntry{Speaker: core.SpeakerUser, Content: "hi", Kind: core.DialogueComment})

	snap := s.Snapshot()
	assert.Equal(t, "# Spec", snap.GeneratedDocument)
	assert.Len(t, snap.DialogueEntries, 1)
	assert.Equal(t, core.SnapshotVersion, snap.Version)

	s.ResetSession()
	assert.Empty(t, s.State().SessionID)
	assert.Empty(t, s.State().GeneratedDocument)
}

func TestStore_ConcurrentReadersSeeWholeRounds(t *testing.T) {
	s, clock := newStore(t)
	require.NoError(t, s.AddRound(core.NewRound(1, "", clock.Now())))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			r := s.State().CurrentRound()
			// Votes and stage are written together; a reader never sees one without the other.
			if len(r.Votes) > 0 && r.Stage != core.StageVoting {
				t.Errorf("torn round: %d votes at stage %s", len(r.Votes), r.Stage)
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		r := s.State().Rounds[0]
		r.Stage = core.StageVoting
		r.Votes = append(r.Votes, core.Vote{PersonaID: "p1", Approved: true})
		require.NoError(t, s.UpdateCurrentRound(r))

		r.Stage = core.StageReview
		r.Votes = nil
		require.NoError(t, s.UpdateCurrentRound(r))
	}
	close(stop)
	wg.Wait()
}

func pausedSnapshot(t *testing.T, clock *testutil.FakeClock, approvals ...bool) *core.Snapshot {
	t.Helper()
	st := testutil.NewTestSession()
	st.Rounds = []core.Round{testutil.NewCompletedRound(1, approvals...)}
	st.IsPaused = true
	st.Status = core.SessionPaused
	st.PendingResume = &core.PendingResume{Idea: st.Idea, NextRound: 2, UserComment: "c"}
	return &core.Snapshot{SessionID: st.SessionID, SessionState: st, Timestamp: clock.Now()}
}

func TestHydrate_ValidCheckpoint(t *testing.T) {
	clock := testutil.NewFakeClock(time.Now())
	s := NewStore(WithClock(clock.Now))

	require.NoError(t, s.Hydrate(pausedSnapshot(t, clock, false, false, true), HydrateOptions{
		MaxAge: DefaultMaxSnapshotAge,
		Policy: service.DefaultConsensusPolicy(),
	}))

	st := s.State()
	require.NotNil(t, st.PendingResume)
	assert.Equal(t, 2, st.PendingResume.NextRound)
	assert.Equal(t, 0, st.CurrentRoundIndex)
	assert.Equal(t, core.SessionPaused, st.Status)
}

func TestHydrate_DiscardsInconsistentCheckpoint(t *testing.T) {
	clock := testutil.NewFakeClock(time.Now())

	tests := []struct {
		name   string
		mutate func(*core.SessionState)
	}{
		{"consensus reached", func(st *core.SessionState) {
			st.Rounds = []core.Round{testutil.NewCompletedRound(1, true, true, false)}
		}},
		{"wrong next round", func(st *core.SessionState) { st.PendingResume.NextRound = 4 }},
		{"not paused", func(st *core.SessionState) { st.IsPaused = false }},
		{"round in progress", func(st *core.SessionState) { st.Rounds[0].Status = core.RoundInProgress }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := pausedSnapshot(t, clock, false, false, true)
			tt.mutate(snap.SessionState)

			s := NewStore(WithClock(clock.Now))
			require.NoError(t, s.Hydrate(snap, HydrateOptions{Policy: service.DefaultConsensusPolicy()}))

			st := s.State()
			assert.Nil(t, st.PendingResume)
			require.NotEmpty(t, st.History)
			assert.Equal(t, core.HistoryCheckpointDrop, st.History[len(st.History)-1].Type)
		})
	}
}

func TestHydrate_Stale(t *testing.T) {
	clock := testutil.NewFakeClock(time.Now())
	snap := pausedSnapshot(t, clock, false)
	clock.Advance(25 * time.Hour)

	s := NewStore(WithClock(clock.Now))
	err := s.Hydrate(snap, HydrateOptions{MaxAge: DefaultMaxSnapshotAge})

	assert.True(t, core.IsCategory(err, core.ErrCatState))
	assert.Empty(t, s.State().SessionID, "store untouched on rejection")
}

func TestHydrate_ToleratesMissingFields(t *testing.T) {
	clock := testutil.NewFakeClock(time.Now())
	snap := &core.Snapshot{
		SessionID:         "old",
		GeneratedDocument: "# Doc",
		DialogueEntries:   []core.DialogueEntry{{Speaker: "p1", Content: "hi"}},
		SessionState: &core.SessionState{
			Idea:   "idea",
			Status: core.SessionRunning,
			Rounds: []core.Round{{Number: 1}},
		},
	}

	s := NewStore(WithClock(clock.Now))
	require.NoError(t, s.Hydrate(snap, HydrateOptions{MaxAge: time.Hour}))

	st := s.State()
	assert.Equal(t, "old", st.SessionID)
	assert.Equal(t, "# Doc", st.GeneratedDocument)
	assert.Len(t, st.Dialogue, 1)
	assert.NotNil(t, st.History)
	assert.Equal(t, core.SessionIdle, st.Status)
	assert.Equal(t, core.RoundInProgress, st.Rounds[0].Status)
	assert.Equal(t, core.StageQuestions, st.Rounds[0].Stage)
}

func TestHydrate_RejectsCorrupt(t *testing.T) {
	s := NewStore()
	assert.Error(t, s.Hydrate(nil, HydrateOptions{}))
	assert.Error(t, s.Hydrate(&core.Snapshot{}, HydrateOptions{}))

	err := s.Hydrate(&core.Snapshot{SessionState: &core.SessionState{
		Rounds: []core.Round{{Number: 1}, {Number: 3}},
	}}, HydrateOptions{})
	assert.True(t, core.IsCategory(err, core.ErrCatState))
}

func TestCheckAge(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	snap := &core.Snapshot{SessionID: "s", Timestamp: now.Add(-25 * time.Hour)}

	err := CheckAge(snap, now, DefaultMaxSnapshotAge)
	assert.True(t, core.IsCode(err, core.CodeStaleSnapshot))
	assert.NoError(t, CheckAge(snap, now, 0))
	assert.NoError(t, CheckAge(&core.Snapshot{SessionID: "s"}, now, DefaultMaxSnapshotAge))

	assert.True(t, IsStale(snap.Timestamp, now, DefaultMaxSnapshotAge))
	assert.False(t, IsStale(now.Add(-time.Hour), now, DefaultMaxSnapshotAge))
	assert.False(t, IsStale(time.Time{}, now, DefaultMaxSnapshotAge))
}
