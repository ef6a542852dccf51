package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

const maxBodyBytes = 1 << 20

// RequestError marks invalid client input.
type RequestError struct {
	msg string
}

func (e *RequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &RequestError{msg: fmt.Sprintf(format, args...)}
}

var clientErrors = []error{
	domain.ErrInvalidStatus,
	domain.ErrInvalidIdentity,
	domain.ErrInvalidSignal,
	domain.ErrInvalidRule,
	domain.ErrDraftSubmission,
	domain.ErrNoRuleVersion,
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return http.StatusBadRequest
	}
	if errors.Is(err, domain.ErrNotFound) {
		return http.StatusNotFound
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("rid", RID(r.Context())),
			slog.String("error", msg),
		)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON reads one JSON body into v. An empty body leaves v unchanged
// when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	if err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}
