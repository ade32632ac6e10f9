package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	levelStyles = map[slog.Level]lipgloss.Style{
		slog.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		slog.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		slog.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		slog.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
	levelNames = map[slog.Level]string{
		slog.LevelDebug: "DBG",
		slog.LevelInfo:  "INF",
		slog.LevelWarn:  "WRN",
		slog.LevelError: "ERR",
	}
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sessionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// consoleHandler writes one human-readable line per record:
//
//	15:04:05 INF [1a2b3c4d] stage complete round=2 stage=review
//
// The session id is shortened and moved in front of the message.
type consoleHandler struct {
	mu      *sync.Mutex
	w       io.Writer
	level   slog.Level
	session string
	prefix  string
	attrs   []slog.Attr
}

func newConsoleHandler(w io.Writer, level slog.Level) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(timeStyle.Render(r.Time.Format("15:04:05")))
	b.WriteByte(' ')
	b.WriteString(renderLevel(r.Level))

	session := h.session
	var attrs []slog.Attr
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == KeySession && h.prefix == "" {
			session = a.Value.String()
			return true
		}
		attrs = append(attrs, h.qualify(a))
		return true
	})
	if session != "" {
		b.WriteString(" " + sessionStyle.Render("["+shortID(session)+"]"))
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, a := range attrs {
		writeAttr(&b, a.Key, a.Value)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if a.Key == KeySession && h.prefix == "" {
			next.session = a.Value.String()
			continue
		}
		next.attrs = append(next.attrs, h.qualify(a))
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *consoleHandler) qualify(a slog.Attr) slog.Attr {
	if h.prefix == "" {
		return a
	}
	return slog.Attr{Key: h.prefix + a.Key, Value: a.Value}
}

func writeAttr(b *strings.Builder, key string, v slog.Value) {
	v = v.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, g := range v.Group() {
			writeAttr(b, key+"."+g.Key, g.Value)
		}
		return
	}
	s := v.String()
	if strings.ContainsAny(s, " \t\"=") {
		s = fmt.Sprintf("%q", s)
	}
	b.WriteString(" " + keyStyle.Render(key) + "=" + s)
}

func renderLevel(l slog.Level) string {
	name, ok := levelNames[l]
	if !ok {
		return l.String()
	}
	return levelStyles[l].Render(name)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
