package api

import (
	"errors"
	"net/http"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	switch core.GetCategory(err) {
	case core.ErrCatValidation:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatState:
		return http.StatusConflict, true
	case core.ErrCatRateLimit:
		return http.StatusTooManyRequests, true
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout, true
	case core.ErrCatOutage:
		return http.StatusBadGateway, true
	default:
		return http.StatusInternalServerError, true
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorBody{Error: message})
}

// respondDomainError maps err to a status and a user-facing message.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	status, ok := httpStatusForDomainError(err)
	if !ok {
		s.logger.Error("unhandled API error", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	var domErr *core.DomainError
	errors.As(err, &domErr)
	s.respondJSON(w, status, errorBody{Error: domErr.Message, Code: domErr.Code})
}
