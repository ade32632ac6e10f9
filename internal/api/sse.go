package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/events"
)

const sseKeepAlive = 25 * time.Second

// handleSSE streams bus events. ?session= limits the stream to one session and
// ?types= (comma separated) to some event types.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if s.eventBus == nil {
		s.respondError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}
	sessionID := r.URL.Query().Get("session")

	var ch <-chan events.Event
	if sessionID != "" {
		ch = s.eventBus.SubscribeForSession(sessionID, types...)
	} else {
		ch = s.eventBus.Subscribe(types...)
	}
	defer s.eventBus.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s.logger.Debug("SSE client connected", "remote_addr", r.RemoteAddr, "session_id", sessionID)
	s.sendSSEEvent(w, flusher, "connected", map[string]string{"status": "connected"})

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("SSE client disconnected", "remote_addr", r.RemoteAddr)
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			s.sendSSEEvent(w, flusher, event.EventType(), event)
		}
	}
}

// sendSSEEvent writes one event in text/event-stream framing.
func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}
