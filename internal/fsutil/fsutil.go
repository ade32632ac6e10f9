// Package fsutil reads user-supplied files without following paths outside
// their directory.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultMaxBytes caps ReadFile when no limit is given.
const DefaultMaxBytes = 1 << 20

// ReadFile reads the named file through an os.Root opened at its directory,
// so the base name cannot traverse elsewhere. Files larger than maxBytes are
// rejected; maxBytes <= 0 means DefaultMaxBytes.
func ReadFile(path string, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	if base == "." || base == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file path %q", path)
	}

	root, err := os.OpenRoot(filepath.Dir(cleaned))
	if err != nil {
		return nil, err
	}
	defer root.Close()

	f, err := root.Open(base)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, maxBytes)
	}
	return data, nil
}
