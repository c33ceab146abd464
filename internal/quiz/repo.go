package quiz

import (
	"context"

	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

type AttemptListOpts struct {
	QuizID string // filter by quiz
	UserID string // filter by student
	Status Status // optional
	Limit  int    // 0 = no limit
	Offset int
}

// AttemptCount splits a user's attempts on a quiz by lifecycle.
type AttemptCount struct {
	Total    int
	Terminal int // completed + abandoned
}

// Store is the persistence boundary. Reads outside WithTx may observe any
// committed state; every status transition goes through WithTx.
type Store interface {
	PutQuiz(ctx context.Context, q Quiz) error
	GetQuiz(ctx context.Context, id string) (Quiz, error) // full quiz, answer keys included
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
	ListAnswers(ctx context.Context, attemptID string) ([]Answer, error)
	// ListQuizAnswers returns answers of every attempt of the quiz in status.
	ListQuizAnswers(ctx context.Context, quizID string, status Status) ([]Answer, error)
	ListEvents(ctx context.Context, key string) ([]syncx.Event, error)

	// WithTx runs fn atomically. If fn returns an error nothing it wrote is kept.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the read-modify-write surface available inside a transaction.
type Tx interface {
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	// LockAttempt reads the attempt and holds it until the tx ends.
	LockAttempt(ctx context.Context, id string) (Attempt, error)
	// LockUserQuiz serializes attempt creation for one (quiz, user) pair.
	LockUserQuiz(ctx context.Context, quizID, userID string) error
	FindInProgress(ctx context.Context, quizID, userID string) (Attempt, bool, error)
	CountAttempts(ctx context.Context, quizID, userID string) (AttemptCount, error)
	InsertAttempt(ctx context.Context, a Attempt) error
	UpdateAttempt(ctx context.Context, a Attempt) error
	// UpsertAnswer inserts or overwrites the (attempt, question) row and
	// returns the stored version.
	UpsertAnswer(ctx context.Context, ans Answer) (Answer, error)
	ListAnswers(ctx context.Context, attemptID string) ([]Answer, error)
	AppendEvent(ctx context.Context, e syncx.Event) error
}
