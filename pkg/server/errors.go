package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vango-dev/domcore/pkg/dom"
	"github.com/vango-dev/domcore/pkg/snapshot"
)

// Sentinel errors reported by the HTTP handlers.
var (
	// ErrManagerNotFound is returned when no manager is registered under an id.
	ErrManagerNotFound = errors.New("server: manager not found")

	// ErrInvalidManagerID is returned for a malformed {id} path parameter.
	ErrInvalidManagerID = errors.New("server: invalid manager id")

	// ErrNoFactory is returned by POST /managers when no factory is set.
	ErrNoFactory = errors.New("server: manager creation disabled")

	// ErrNoExporter is returned when snapshot export is not configured.
	ErrNoExporter = errors.New("server: snapshot export disabled")

	// ErrInvalidBody is returned for a request body that does not decode.
	ErrInvalidBody = errors.New("server: invalid request body")
)

// errorBody is the JSON body of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrManagerNotFound),
		errors.Is(err, snapshot.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidManagerID),
		errors.Is(err, ErrInvalidBody),
		errors.Is(err, dom.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, dom.ErrManagerClosed):
		return http.StatusGone
	case errors.Is(err, ErrNoFactory),
		errors.Is(err, ErrNoExporter):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
