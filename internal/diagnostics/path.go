package diagnostics

import (
	"os"
	"path/filepath"
)

// existingParent walks up from path to the nearest directory that exists, so
// disk usage can be reported before the store has been created.
func existingParent(path string) string {
	p := filepath.Clean(path)
	for {
		if info, err := os.Stat(p); err == nil {
			if info.IsDir() {
				return p
			}
			return filepath.Dir(p)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
