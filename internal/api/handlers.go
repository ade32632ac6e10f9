package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

const maxRequestBody = 1 << 20

type createSessionRequest struct {
	Idea     string               `json:"idea"`
	Personas []core.PersonaConfig `json:"personas,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type resumeRequest struct {
	Comment string `json:"comment"`
}

type resumeResponse struct {
	Started bool `json:"started"`
}

// SessionResponse is a session with its run flag.
type SessionResponse struct {
	*core.SessionState
	Running bool `json:"running"`
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	personas := req.Personas
	if len(personas) == 0 {
		personas = s.defaultPersonas()
	}
	id, err := s.sessions.Create(strings.TrimSpace(req.Idea), personas)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/sessions/"+id)
	s.respondJSON(w, http.StatusCreated, createSessionResponse{SessionID: id})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.List(r.Context())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	if list == nil {
		list = []core.SessionSummary{}
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	st, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, SessionResponse{SessionState: st, Running: s.sessions.Running(id)})
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Pause(r.Context(), id); err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "pause requested"})
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	started, err := s.sessions.Resume(r.Context(), chi.URLParam(r, "sessionID"), req.Comment)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	s.respondJSON(w, status, resumeResponse{Started: started})
}

func (s *Server) handleListProviders(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.providers.GetStats())
}

func (s *Server) handleResetProvider(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if err := s.providers.ResetProvider(provider); err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"provider": provider, "status": "reset"})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.tools.Describe())
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.system.Collect(r.Context()))
}
