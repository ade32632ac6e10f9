//go:build !windows

package state

import (
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// atomicWriteFile replaces path with data via a temp file and rename.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return renameio.WriteFile(path, data, perm)
}
