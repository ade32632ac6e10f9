package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/testutil"
)

const watchedRoster = `personas:
  - id: cfo
    prompt_template: "You are a CFO."
    temperature: 0.3
    enabled: true
`

func TestWatchPersonas_ReloadsOnChange(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("personas: []\n"), 0o600))

	var mu sync.Mutex
	var got []core.PersonaConfig
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- WatchPersonas(ctx, path, func(p []core.PersonaConfig) {
			mu.Lock()
			got = p
			mu.Unlock()
		}, nil)
	}()

	// Rewrite until the watcher, which may still be starting, picks it up.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(watchedRoster), 0o600)
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 5*time.Second, 400*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "cfo", got[0].ID)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchPersonas_MissingDirectory(t *testing.T) {
	err := WatchPersonas(context.Background(), filepath.Join(testutil.TempDir(t), "nope", "personas.yaml"),
		func([]core.PersonaConfig) {}, nil)
	assert.Error(t, err)
}
