package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gobeyondidentity/podnotes/pkg/account"
	"github.com/gobeyondidentity/podnotes/pkg/session"
)

type errorResponse struct {
	Error  string               `json:"error"`
	Fields []session.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", msg)
	writeJSON(w, status, errorResponse{Error: msg})
}

// mapError classifies err. The client sees generic for unclassified
// failures; the detail goes to the log only.
func (s *Server) mapError(w http.ResponseWriter, r *http.Request, err error, generic string) {
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Invalid note", Fields: verr.Fields})
	case errors.Is(err, account.ErrAuth), errors.Is(err, account.ErrDiscovery), errors.Is(err, account.ErrTransport):
		s.logger.Error("pod authentication failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "Pod authentication failed"})
	default:
		s.logger.Error(generic, "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: generic})
	}
}
