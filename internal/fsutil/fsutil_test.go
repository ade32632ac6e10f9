package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("personas: []\n"), 0o600))

	data, err := ReadFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "personas: []\n", string(data))
}

func TestReadFile_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 64)), 0o600))

	_, err := ReadFile(path, 32)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 32 bytes")

	data, err := ReadFile(path, 64)
	require.NoError(t, err)
	assert.Len(t, data, 64)
}

func TestReadFile_Errors(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.yaml"), 0)
	assert.True(t, os.IsNotExist(err))

	_, err = ReadFile("/", 0)
	assert.Error(t, err)

	_, err = ReadFile(filepath.Join(t.TempDir(), "nope", "file"), 0)
	assert.Error(t, err)
}
