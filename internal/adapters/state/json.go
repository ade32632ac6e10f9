package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

var sessionFileRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// JSONRepository stores each session as <dir>/<session-id>.json with the
// previous version kept as <session-id>.json.bak.
type JSONRepository struct {
	dir string
	now func() time.Time
	mu  sync.RWMutex
}

// JSONOption configures the repository.
type JSONOption func(*JSONRepository)

// WithJSONClock overrides the clock used for envelope timestamps.
func WithJSONClock(now func() time.Time) JSONOption {
	return func(r *JSONRepository) {
		r.now = now
	}
}

// NewJSONRepository creates a repository rooted at dir.
func NewJSONRepository(dir string, opts ...JSONOption) (*JSONRepository, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	r := &JSONRepository{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *JSONRepository) path(sessionID string) (string, error) {
	if !sessionFileRe.MatchString(sessionID) {
		return "", core.ErrValidation("SNAPSHOT_INVALID", fmt.Sprintf("invalid session id %q", sessionID))
	}
	return filepath.Join(r.dir, sessionID+".json"), nil
}

// Save writes the snapshot atomically after copying the current file to the
// backup path.
func (r *JSONRepository) Save(_ context.Context, snap *core.Snapshot) error {
	data, sum, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	path, err := r.path(snap.SessionID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, err := os.ReadFile(path); err == nil {
		if err := atomicWriteFile(path+".bak", prev, 0o600); err != nil {
			return fmt.Errorf("creating backup: %w", err)
		}
	}

	env := struct {
		Version   int             `json:"version"`
		Checksum  string          `json:"checksum"`
		UpdatedAt time.Time       `json:"updated_at"`
		Snapshot  json.RawMessage `json:"snapshot"`
	}{core.SnapshotVersion, sum, r.now(), data}
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	if err := atomicWriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

// Load reads a session, falling back to its backup when the main file is
// unreadable or fails its checksum.
func (r *JSONRepository) Load(_ context.Context, sessionID string) (*core.Snapshot, error) {
	path, err := r.path(sessionID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, _, err := readEnvelope(path)
	if err == nil {
		return snap, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, core.ErrNotFound("session", sessionID)
	}
	backup, _, backupErr := readEnvelope(path + ".bak")
	if backupErr != nil {
		return nil, fmt.Errorf("loading session %s: %w (backup also failed: %v)", sessionID, err, backupErr)
	}
	return backup, nil
}

func readEnvelope(path string) (*core.Snapshot, time.Time, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path built from a validated session id
	if err != nil {
		return nil, time.Time{}, err
	}
	var env struct {
		Checksum  string          `json:"checksum"`
		UpdatedAt time.Time       `json:"updated_at"`
		Snapshot  json.RawMessage `json:"snapshot"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, time.Time{}, core.ErrState(core.CodeStateCorrupted, "unreadable envelope").WithCause(err)
	}
	// The envelope is indented on disk; the checksum covers the compact form.
	var compact bytes.Buffer
	if err := json.Compact(&compact, env.Snapshot); err != nil {
		return nil, time.Time{}, core.ErrState(core.CodeStateCorrupted, "unreadable snapshot").WithCause(err)
	}
	snap, err := decodeSnapshot(compact.Bytes(), env.Checksum)
	if err != nil {
		return nil, time.Time{}, err
	}
	return snap, env.UpdatedAt, nil
}

// List returns summaries of every readable session file, most recent first.
func (r *JSONRepository) List(_ context.Context) ([]core.SessionSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("reading state directory: %w", err)
	}
	var out []core.SessionSummary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		snap, updated, err := readEnvelope(filepath.Join(r.dir, name))
		if err != nil {
			continue
		}
		out = append(out, summarize(snap, updated))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Delete removes a session and its backup.
func (r *JSONRepository) Delete(_ context.Context, sessionID string) error {
	path, err := r.path(sessionID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return core.ErrNotFound("session", sessionID)
		}
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	_ = os.Remove(path + ".bak")
	return nil
}

// Dir returns the state directory.
func (r *JSONRepository) Dir() string {
	return r.dir
}

// Close is a no-op.
func (r *JSONRepository) Close() error { return nil }

var _ core.SessionRepository = (*JSONRepository)(nil)
