// Package logging provides the structured logger shared by every component.
// Records carry session, round, stage and provider attributes, and secrets
// are redacted before any handler sees them.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Logger wraps slog.Logger with session-aware helpers.
type Logger struct {
	*slog.Logger
}

// Config configures the logger.
type Config struct {
	Level     string
	Format    string // auto, text, json
	Output    io.Writer
	AddSource bool
}

// New creates a logger. The auto format picks the console handler for
// terminals and JSON otherwise.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level), AddSource: cfg.AddSource}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		h = slog.NewJSONHandler(cfg.Output, opts)
	case "text":
		h = slog.NewTextHandler(cfg.Output, opts)
	default:
		if isTerminal(cfg.Output) {
			h = newConsoleHandler(cfg.Output, opts.Level.Level())
		} else {
			h = slog.NewJSONHandler(cfg.Output, opts)
		}
	}
	return &Logger{Logger: slog.New(newRedactHandler(h))}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// With returns a logger with extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithSession tags records with a session id.
func (l *Logger) WithSession(sessionID string) *Logger {
	return l.With(KeySession, sessionID)
}

// WithRound tags records with a round number.
func (l *Logger) WithRound(round int) *Logger {
	return l.With(KeyRound, round)
}

// WithStage tags records with a pipeline stage.
func (l *Logger) WithStage(stage string) *Logger {
	return l.With(KeyStage, stage)
}

// WithProvider tags records with a model provider.
func (l *Logger) WithProvider(provider string) *Logger {
	return l.With(KeyProvider, provider)
}

// Attribute keys set by the With helpers.
const (
	KeySession  = "session_id"
	KeyRound    = "round"
	KeyStage    = "stage"
	KeyProvider = "provider"
)
