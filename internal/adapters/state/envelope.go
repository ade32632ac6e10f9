package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// encodeSnapshot returns the JSON form of snap and its checksum. The checksum
// covers exactly the returned bytes.
func encodeSnapshot(snap *core.Snapshot) ([]byte, string, error) {
	if snap == nil || snap.SessionID == "" {
		return nil, "", core.ErrValidation("SNAPSHOT_INVALID", "snapshot has no session id")
	}
	if snap.Version == 0 {
		snap.Version = core.SnapshotVersion
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, "", fmt.Errorf("marshaling snapshot: %w", err)
	}
	return data, checksum(data), nil
}

func decodeSnapshot(data []byte, want string) (*core.Snapshot, error) {
	if want != "" && checksum(data) != want {
		return nil, core.ErrState(core.CodeStateCorrupted, "checksum mismatch")
	}
	var snap core.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, core.ErrState(core.CodeStateCorrupted, "unreadable snapshot").WithCause(err)
	}
	if snap.Version > core.SnapshotVersion {
		return nil, core.ErrState(core.CodeStateCorrupted,
			fmt.Sprintf("snapshot version %d is newer than supported version %d", snap.Version, core.SnapshotVersion))
	}
	return &snap, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func summarize(snap *core.Snapshot, updated time.Time) core.SessionSummary {
	s := core.SessionSummary{SessionID: snap.SessionID, UpdatedAt: updated, SnapshotAt: snap.Timestamp}
	if st := snap.SessionState; st != nil {
		s.Idea = st.Idea
		s.Status = st.Status
		s.Rounds = len(st.Rounds)
	}
	return s
}
