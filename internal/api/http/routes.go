package http

import (
	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// Mount registers the protected quiz API (JWT -> role in context -> RBAC).
func Mount(r chi.Router, svc *quiz.Service, authSvc *authmw.AuthService) {
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(authSvc))

		pr.With(rbac.Require(rbac.PermQuizCreate)).
			Post("/quizzes", CreateQuizHandler(svc))

		pr.Route("/quizzes/{quizID}", func(qr chi.Router) {
			qr.With(rbac.Require(rbac.PermQuizView)).Get("/", GetQuizHandler(svc))
			qr.With(rbac.Require(rbac.PermQuizView)).Get("/questions", ListQuestionsHandler(svc))
			qr.With(rbac.Require(rbac.PermAttemptStart)).Get("/eligibility", EligibilityHandler(svc))
			qr.With(rbac.Require(rbac.PermAttemptStart)).Post("/attempts", StartAttemptHandler(svc))
			qr.With(rbac.Require(rbac.PermQuizAnalytics)).Get("/analytics", AnalyticsHandler(svc))
		})

		viewAny := rbac.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)
		pr.With(viewAny).Get("/attempts", ListAttemptsHandler(svc))
		pr.Route("/attempts/{attemptID}", func(ar chi.Router) {
			ar.With(viewAny).Get("/", GetAttemptHandler(svc))
			ar.With(viewAny).Get("/questions", AttemptQuestionsHandler(svc))
			ar.With(rbac.Require(rbac.PermAttemptAnswer)).Post("/answers", SubmitAnswerHandler(svc))
			ar.With(rbac.Require(rbac.PermAttemptSubmit)).Post("/submit", SubmitQuizHandler(svc))
			ar.With(rbac.Require(rbac.PermAttemptRegrade)).Post("/regrade", RegradeHandler(svc))
			ar.With(rbac.Require(rbac.PermAttemptViewAll)).Get("/events", AttemptEventsHandler(svc))
		})
	})
}
