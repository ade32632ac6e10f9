package session

import (
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service"
)

// DefaultMaxSnapshotAge is how old a snapshot may be before it is discarded.
const DefaultMaxSnapshotAge = 24 * time.Hour

// HydrateOptions controls snapshot acceptance.
type HydrateOptions struct {
	// MaxAge rejects snapshots older than this. Zero disables the check.
	MaxAge time.Duration
	// Policy is used to decide whether a checkpoint could legitimately exist.
	Policy service.ConsensusPolicy
}

// CheckAge rejects a snapshot taken more than maxAge before now. A zero
// maxAge or an unstamped snapshot always passes.
func CheckAge(snap *core.Snapshot, now time.Time, maxAge time.Duration) error {
	if maxAge <= 0 || snap.Timestamp.IsZero() {
		return nil
	}
	if age := now.Sub(snap.Timestamp); age > maxAge {
		return core.ErrState(core.CodeStaleSnapshot,
			fmt.Sprintf("snapshot is %s old (limit %s)", age.Round(time.Minute), maxAge)).
			WithDetail("session_id", snap.SessionID)
	}
	return nil
}

// IsStale reports whether a snapshot taken at takenAt is past maxAge.
func IsStale(takenAt, now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && !takenAt.IsZero() && now.Sub(takenAt) > maxAge
}

// Hydrate replaces the store contents with a persisted snapshot. Missing
// optional fields are filled with defaults. A pending resume checkpoint that
// does not match the restored rounds is discarded and logged to history.
func (s *Store) Hydrate(snap *core.Snapshot, opts HydrateOptions) error {
	if snap == nil || snap.SessionState == nil {
		return core.ErrState(core.CodeStateCorrupted, "snapshot has no session state")
	}
	if err := CheckAge(snap, s.now(), opts.MaxAge); err != nil {
		return err
	}

	st := cloneState(snap.SessionState)
	if st.SessionID == "" {
		st.SessionID = snap.SessionID
	}
	if st.GeneratedDocument == "" {
		st.GeneratedDocument = snap.GeneratedDocument
	}
	if len(st.Dialogue) == 0 {
		st.Dialogue = append([]core.DialogueEntry(nil), snap.DialogueEntries...)
	}
	if st.Rounds == nil {
		st.Rounds = []core.Round{}
	}
	if st.History == nil {
		st.History = []core.HistoryEntry{}
	}
	if st.Dialogue == nil {
		st.Dialogue = []core.DialogueEntry{}
	}

	for i := range st.Rounds {
		r := &st.Rounds[i]
		if r.Number < 1 || (i > 0 && r.Number != st.Rounds[i-1].Number+1) {
			return core.ErrState(core.CodeStateCorrupted,
				fmt.Sprintf("round numbers are not consecutive at index %d", i))
		}
		if r.Status == "" {
			r.Status = core.RoundInProgress
		}
		if r.Stage == "" {
			r.Stage = core.StageQuestions
		}
	}
	st.CurrentRoundIndex = len(st.Rounds) - 1

	switch st.Status {
	case "":
		st.Status = core.SessionIdle
	case core.SessionRunning:
		// The process that owned the run is gone.
		st.Status = core.SessionIdle
	}

	var dropReason string
	if st.PendingResume != nil {
		if reason := validatePending(st, opts.Policy.Normalized()); reason != "" {
			dropReason = reason
			st.PendingResume = nil
			if st.Status == core.SessionPaused {
				st.Status = core.SessionIdle
			}
		} else if st.PendingResume.Idea == "" {
			st.PendingResume.Idea = st.Idea
		}
	}

	s.mu.Lock()
	s.state.Store(st)
	s.mu.Unlock()

	if dropReason != "" {
		s.AddHistory(core.HistoryCheckpointDrop, 0, "", map[string]interface{}{"reason": dropReason})
	}
	return nil
}

// validatePending returns why st.PendingResume cannot be trusted, or "".
func validatePending(st *core.SessionState, policy service.ConsensusPolicy) string {
	p := st.PendingResume
	if !st.IsPaused {
		return "session is not paused"
	}
	if len(st.Rounds) == 0 {
		return "no rounds recorded"
	}
	last := st.Rounds[len(st.Rounds)-1]
	if last.Status != core.RoundComplete {
		return fmt.Sprintf("round %d is not complete", last.Number)
	}
	if p.NextRound != last.Number+1 {
		return fmt.Sprintf("next round %d does not follow round %d", p.NextRound, last.Number)
	}
	if policy.ShouldFinalize(service.ApprovalRate(last.Votes), last.Number) {
		return fmt.Sprintf("round %d reached consensus", last.Number)
	}
	if p.Idea == "" && st.Idea == "" {
		return "no idea recorded"
	}
	return ""
}
