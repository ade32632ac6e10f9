package state

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/testutil"
)

func testSnapshot(id string, rounds int, ts time.Time) *core.Snapshot {
	st := testutil.NewTestSession(func(s *core.SessionState) {
		s.SessionID = id
		s.Status = core.SessionPaused
		s.IsPaused = true
	})
	for i := 1; i <= rounds; i++ {
		st.Rounds = append(st.Rounds, testutil.NewCompletedRound(i, false, false, true))
	}
	st.CurrentRoundIndex = len(st.Rounds) - 1
	st.PendingResume = &core.PendingResume{Idea: st.Idea, NextRound: rounds + 1}
	return &core.Snapshot{
		Version:         core.SnapshotVersion,
		SessionID:       id,
		DialogueEntries: []core.DialogueEntry{{Speaker: "p1", Content: "hello", Kind: core.DialogueSynthesis, Round: 1}},
		SessionState:    st,
		Timestamp:       ts,
	}
}

type repoFactory func(t *testing.T, clock *testutil.FakeClock) core.SessionRepository

func repoFactories() map[string]repoFactory {
	return map[string]repoFactory{
		"sqlite": func(t *testing.T, clock *testutil.FakeClock) core.SessionRepository {
			r, err := NewSQLiteRepository(filepath.Join(testutil.TempDir(t), "state.db"), WithSQLiteClock(clock.Now))
			require.NoError(t, err)
			t.Cleanup(func() { _ = r.Close() })
			return r
		},
		"json": func(t *testing.T, clock *testutil.FakeClock) core.SessionRepository {
			r, err := NewJSONRepository(filepath.Join(testutil.TempDir(t), "sessions"), WithJSONClock(clock.Now))
			require.NoError(t, err)
			return r
		},
	}
}

func TestRepository_SaveLoadRoundTrip(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
			repo := factory(t, clock)

			snap := testSnapshot("s1", 2, clock.Now())
			require.NoError(t, repo.Save(ctx, snap))

			got, err := repo.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "s1", got.SessionID)
			assert.True(t, got.Timestamp.Equal(snap.Timestamp))
			require.NotNil(t, got.SessionState)
			assert.Len(t, got.SessionState.Rounds, 2)
			assert.Equal(t, 3, got.SessionState.PendingResume.NextRound)
			assert.Len(t, got.DialogueEntries, 1)
			assert.Equal(t, 3, len(got.SessionState.Rounds[1].Votes))
		})
	}
}

func TestRepository_SaveReplaces(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
			repo := factory(t, clock)

			require.NoError(t, repo.Save(ctx, testSnapshot("s1", 1, clock.Now())))
			clock.Advance(time.Minute)
			require.NoError(t, repo.Save(ctx, testSnapshot("s1", 2, clock.Now())))

			got, err := repo.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, got.SessionState.Rounds, 2)

			list, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, 2, list[0].Rounds)
		})
	}
}

func TestRepository_ListOrder(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
			repo := factory(t, clock)
			start := clock.Now()

			for _, id := range []string{"old", "mid", "new"} {
				require.NoError(t, repo.Save(ctx, testSnapshot(id, 1, clock.Now())))
				clock.Advance(time.Minute)
			}

			list, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "new", list[0].SessionID)
			assert.Equal(t, "old", list[2].SessionID)
			assert.Equal(t, core.SessionPaused, list[0].Status)
			assert.Equal(t, "Build a fitness app", list[0].Idea)
			assert.WithinDuration(t, start, list[2].SnapshotAt, time.Second)
		})
	}
}

func TestRepository_NotFoundAndDelete(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := testutil.NewFakeClock(time.Now())
			repo := factory(t, clock)

			_, err := repo.Load(ctx, "missing")
			assert.True(t, core.IsCategory(err, core.ErrCatNotFound))

			require.NoError(t, repo.Save(ctx, testSnapshot("s1", 1, clock.Now())))
			require.NoError(t, repo.Delete(ctx, "s1"))
			_, err = repo.Load(ctx, "s1")
			assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
			assert.True(t, core.IsCategory(repo.Delete(ctx, "s1"), core.ErrCatNotFound))
		})
	}
}

func TestRepository_RejectsInvalidSnapshot(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			repo := factory(t, testutil.NewFakeClock(time.Now()))
			err := repo.Save(context.Background(), &core.Snapshot{})
			assert.True(t, core.IsCategory(err, core.ErrCatValidation))
		})
	}
}

func TestJSONRepository_FallsBackToBackup(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Now())
	dir := filepath.Join(testutil.TempDir(t), "sessions")
	repo, err := NewJSONRepository(dir, WithJSONClock(clock.Now))
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, testSnapshot("s1", 1, clock.Now())))
	require.NoError(t, repo.Save(ctx, testSnapshot("s1", 2, clock.Now())))

	path := filepath.Join(dir, "s1.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Edit the snapshot so the checksum no longer matches.
	corrupted := strings.Replace(string(data), "Build a fitness app", "Build a fatness app", 1)
	require.NotEqual(t, string(data), corrupted)
	require.NoError(t, os.WriteFile(path, []byte(corrupted), 0o600))

	got, err := repo.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got.SessionState.Rounds, 1, "expected the previous version from the backup")
}

func TestJSONRepository_RejectsPathTraversal(t *testing.T) {
	repo, err := NewJSONRepository(testutil.TempDir(t))
	require.NoError(t, err)
	_, err = repo.Load(context.Background(), "../etc/passwd")
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestSQLiteRepository_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	repo, err := NewSQLiteRepository(filepath.Join(testutil.TempDir(t), "state.db"))
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Save(ctx, testSnapshot("s1", 1, time.Now())))
	_, err = repo.db.ExecContext(ctx, "UPDATE sessions SET checksum = 'bad' WHERE id = 's1'")
	require.NoError(t, err)

	_, err = repo.Load(ctx, "s1")
	assert.True(t, core.IsCode(err, core.CodeStateCorrupted))
}

func TestSQLiteRepository_PruneAndBackup(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	dir := testutil.TempDir(t)
	repo, err := NewSQLiteRepository(filepath.Join(dir, "state.db"), WithSQLiteClock(clock.Now))
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Save(ctx, testSnapshot("old", 1, clock.Now())))
	clock.Advance(48 * time.Hour)
	require.NoError(t, repo.Save(ctx, testSnapshot("new", 1, clock.Now())))

	n, err := repo.Prune(ctx, clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].SessionID)

	require.NoError(t, repo.Backup(ctx))
	_, err = os.Stat(filepath.Join(dir, "state.db.bak"))
	assert.NoError(t, err)
}

func TestSQLiteRepository_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(testutil.TempDir(t), "state.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, testSnapshot("s1", 1, time.Now())))
	require.NoError(t, repo.Close())

	reopened, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
}

func TestNewRepository(t *testing.T) {
	dir := testutil.TempDir(t)

	repo, err := NewRepository(Options{Path: filepath.Join(dir, "state")})
	require.NoError(t, err)
	sqliteRepo, ok := repo.(*SQLiteRepository)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "state.db"), sqliteRepo.Path())
	require.NoError(t, repo.Close())

	repo, err = NewRepository(Options{Backend: "json", Path: filepath.Join(dir, "sessions")})
	require.NoError(t, err)
	assert.IsType(t, &JSONRepository{}, repo)

	_, err = NewRepository(Options{Backend: "redis", Path: dir})
	assert.True(t, core.IsCode(err, core.CodeInvalidConfig))
}
