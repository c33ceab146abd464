package http

import (
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// GET /attempts?quiz_id=...&user_id=...&status=...&limit=50&offset=0
// Students only ever see their own attempts; user_id is ignored for them.
func ListAttemptsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := svc.ListAttempts(r.Context(), viewer(r), quiz.AttemptListOpts{
			QuizID: strings.TrimSpace(q.Get("quiz_id")),
			UserID: strings.TrimSpace(q.Get("user_id")),
			Status: quiz.Status(strings.TrimSpace(q.Get("status"))),
			Limit:  parseIntDefault(q.Get("limit"), 50),
			Offset: parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		if list == nil {
			list = []quiz.Attempt{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"attempts": list})
	}
}
