package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// errorBody is returned for every rejected request. Attempt carries the
// authoritative attempt state when the rejection concerns one.
type errorBody struct {
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Field   string        `json:"field,omitempty"`
	Attempt *quiz.Attempt `json:"attempt,omitempty"`
}

var statusByCode = map[string]int{
	"not_found":            http.StatusNotFound,
	"forbidden":            http.StatusForbidden,
	"validation_failed":    http.StatusUnprocessableEntity,
	"not_available":        http.StatusForbidden,
	"max_attempts_reached": http.StatusForbidden,
	"not_in_progress":      http.StatusConflict,
	"time_limit_exceeded":  http.StatusConflict,
	"question_not_in_quiz": http.StatusBadRequest,
	"conflict":             http.StatusConflict,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := quiz.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: code, Message: "internal error"})
		return
	}
	body := errorBody{Error: code, Message: err.Error(), Attempt: quiz.AttemptOf(err)}
	var ve *quiz.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg})
}

// viewer reads the caller set by the JWT middleware.
func viewer(r *http.Request) quiz.Viewer {
	return quiz.Viewer{
		UserID: authmw.SubjectFromContext(r.Context()),
		Role:   rbac.RoleFromContext(r.Context()),
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
