package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// ErrTest is returned by mocks configured to fail.
var ErrTest = errors.New("test error")

// TempDir returns a per-test directory that is removed on cleanup.
func TempDir(t testing.TB) string {
	t.Helper()
	return t.TempDir()
}

// TempFile writes content under dir, creating parent directories, and
// returns the full path.
func TempFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("testutil: mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("testutil: write %s: %v", path, err)
	}
	return path
}
