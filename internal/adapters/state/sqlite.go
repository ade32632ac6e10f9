package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

//go:embed migrations/001_sessions.sql
var migrationV1 string

// SQLiteRepository stores one row per session holding the latest snapshot.
type SQLiteRepository struct {
	dbPath     string
	backupPath string
	db         *sql.DB
	now        func() time.Time
	mu         sync.RWMutex
}

// SQLiteOption configures the repository.
type SQLiteOption func(*SQLiteRepository)

// WithSQLiteBackupPath sets the path Backup writes to.
func WithSQLiteBackupPath(path string) SQLiteOption {
	return func(r *SQLiteRepository) {
		r.backupPath = path
	}
}

// WithSQLiteClock overrides the clock used for row timestamps.
func WithSQLiteClock(now func() time.Time) SQLiteOption {
	return func(r *SQLiteRepository) {
		r.now = now
	}
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteRepository(dbPath string, opts ...SQLiteOption) (*SQLiteRepository, error) {
	r := &SQLiteRepository{
		dbPath:     dbPath,
		backupPath: dbPath + ".bak",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	r.db = db

	if err := r.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepository) migrate() error {
	var version int
	if err := r.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		version = 0
	}
	if version < 1 {
		if _, err := r.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// Save upserts the snapshot for its session.
func (r *SQLiteRepository) Save(ctx context.Context, snap *core.Snapshot) error {
	data, sum, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	sm := summarize(snap, r.now())

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, idea, status, rounds, snapshot_version, snapshot, checksum,
			snapshot_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			idea = excluded.idea,
			status = excluded.status,
			rounds = excluded.rounds,
			snapshot_version = excluded.snapshot_version,
			snapshot = excluded.snapshot,
			checksum = excluded.checksum,
			snapshot_at = excluded.snapshot_at,
			updated_at = excluded.updated_at
	`,
		sm.SessionID, sm.Idea, string(sm.Status), sm.Rounds, snap.Version, string(data), sum,
		snap.Timestamp, sm.UpdatedAt, sm.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", snap.SessionID, err)
	}
	return nil
}

// Load returns the latest snapshot of a session, verifying its checksum.
func (r *SQLiteRepository) Load(ctx context.Context, sessionID string) (*core.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var data, sum string
	err := r.db.QueryRowContext(ctx, "SELECT snapshot, checksum FROM sessions WHERE id = ?", sessionID).Scan(&data, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("session", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	return decodeSnapshot([]byte(data), sum)
}

// List returns session summaries, most recently updated first.
func (r *SQLiteRepository) List(ctx context.Context) ([]core.SessionSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, idea, status, rounds, updated_at, snapshot_at
		FROM sessions
		ORDER BY updated_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []core.SessionSummary
	for rows.Next() {
		var s core.SessionSummary
		var status string
		if err := rows.Scan(&s.SessionID, &s.Idea, &status, &s.Rounds, &s.UpdatedAt, &s.SnapshotAt); err != nil {
			return nil, fmt.Errorf("scanning session summary: %w", err)
		}
		s.Status = core.SessionStatus(status)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return out, nil
}

// Delete removes a session.
func (r *SQLiteRepository) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound("session", sessionID)
	}
	return nil
}

// Prune deletes sessions last updated before cutoff and returns how many were
// removed.
func (r *SQLiteRepository) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned sessions: %w", err)
	}
	return int(n), nil
}

// Backup copies the database to the backup path.
func (r *SQLiteRepository) Backup(ctx context.Context) error {
	if err := r.ensureWithinStateDir(r.backupPath); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing previous backup: %w", err)
	}
	quoted := strings.ReplaceAll(r.backupPath, "'", "''")
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ensureWithinStateDir(path string) error {
	baseAbs, err := filepath.Abs(filepath.Dir(r.dbPath))
	if err != nil {
		return fmt.Errorf("resolving state directory: %w", err)
	}
	pathAbs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	rel, err := filepath.Rel(baseAbs, pathAbs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("path escapes state directory")
	}
	return nil
}

// Path returns the database path.
func (r *SQLiteRepository) Path() string {
	return r.dbPath
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

var _ core.SessionRepository = (*SQLiteRepository)(nil)
