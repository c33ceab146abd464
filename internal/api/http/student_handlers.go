package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// POST /quizzes/{quizID}/attempts
// 201 for a new attempt, 200 when an in-progress attempt is continued.
func StartAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.StartAttempt(r.Context(), viewer(r), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		status := http.StatusCreated
		if res.Continued {
			status = http.StatusOK
		}
		writeJSON(w, status, res)
	}
}

// POST /attempts/{attemptID}/answers  { "question_id": "...", "answer": [...] }
func SubmitAnswerHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in quiz.AnswerInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			badRequest(w, "bad json: "+err.Error())
			return
		}
		res, err := svc.SubmitAnswer(r.Context(), viewer(r), chi.URLParam(r, "attemptID"), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /attempts/{attemptID}/submit
func SubmitQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := svc.SubmitQuiz(r.Context(), viewer(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.GetAttempt(r.Context(), viewer(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GET /attempts/{attemptID}/questions
func AttemptQuestionsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs, err := svc.AttemptQuestions(r.Context(), viewer(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
	}
}
