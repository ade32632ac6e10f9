package state

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Options configures repository creation.
type Options struct {
	// Backend is sqlite (default) or json.
	Backend string
	// Path is the database file for sqlite or the directory for json.
	Path string
	// BackupPath overrides the sqlite backup location.
	BackupPath string
}

// NewRepository creates the session repository selected by opts.Backend.
func NewRepository(opts Options) (core.SessionRepository, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendSQLite:
		path := opts.Path
		if !strings.HasSuffix(path, ".db") {
			path = strings.TrimSuffix(path, filepath.Ext(path)) + ".db"
		}
		var sqliteOpts []SQLiteOption
		if strings.TrimSpace(opts.BackupPath) != "" {
			sqliteOpts = append(sqliteOpts, WithSQLiteBackupPath(opts.BackupPath))
		}
		return NewSQLiteRepository(path, sqliteOpts...)
	case BackendJSON:
		return NewJSONRepository(opts.Path)
	default:
		return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("unknown state backend %q", opts.Backend))
	}
}
