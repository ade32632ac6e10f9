package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	c := New(filepath.Join(dir, "state", "sessions.db"))

	r := c.Collect(context.Background())
	assert.False(t, r.Timestamp.IsZero())
	assert.Positive(t, r.Process.Goroutines)
	assert.Equal(t, runtime.Version(), r.Process.GoVersion)
	if runtime.GOOS == "linux" {
		assert.Positive(t, r.Host.MemTotalMB)
		assert.Positive(t, r.Host.CPUThreads)
		require.NotNil(t, r.Disk)
		assert.Positive(t, r.Disk.TotalGB)
	}
}

func TestCollect_NoDiskPath(t *testing.T) {
	r := New("").Collect(context.Background())
	assert.Nil(t, r.Disk)
}

func TestCollect_Uptime(t *testing.T) {
	c := New("")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.started = base
	c.now = func() time.Time { return base.Add(90 * time.Second) }

	r := c.Collect(context.Background())
	assert.Equal(t, 90*time.Second, r.Process.Uptime)
}

func TestExistingParent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sessions.db")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	assert.Equal(t, dir, existingParent(filepath.Join(dir, "a", "b", "c.db")))
	assert.Equal(t, dir, existingParent(file))
	assert.Equal(t, dir, existingParent(dir))
}
