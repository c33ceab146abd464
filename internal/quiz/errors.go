package quiz

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation failed")
	ErrNotAvailable       = errors.New("quiz is not available")
	ErrMaxAttemptsReached = errors.New("maximum number of attempts reached")
	ErrNotInProgress      = errors.New("attempt is not in progress")
	ErrTimeLimitExceeded  = errors.New("time limit exceeded")
	ErrQuestionNotInQuiz  = errors.New("question does not belong to this quiz")
	ErrConflict           = errors.New("conflicting concurrent update")
)

// StateError rejects a transition and carries the authoritative attempt so
// the caller can reconcile.
type StateError struct {
	Err     error
	Attempt *Attempt
}

func (e *StateError) Error() string { return e.Err.Error() }
func (e *StateError) Unwrap() error { return e.Err }

func stateErr(err error, a *Attempt) error {
	if a == nil {
		return &StateError{Err: err}
	}
	cp := *a
	return &StateError{Err: err, Attempt: &cp}
}

// ValidationError reports a malformed request before any state is touched.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Code maps an error to its stable machine-readable kind.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.Is(err, ErrNotAvailable):
		return "not_available"
	case errors.Is(err, ErrMaxAttemptsReached):
		return "max_attempts_reached"
	case errors.Is(err, ErrNotInProgress):
		return "not_in_progress"
	case errors.Is(err, ErrTimeLimitExceeded):
		return "time_limit_exceeded"
	case errors.Is(err, ErrQuestionNotInQuiz):
		return "question_not_in_quiz"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}

// AttemptOf returns the attempt snapshot attached to a StateError, if any.
func AttemptOf(err error) *Attempt {
	var se *StateError
	if errors.As(err, &se) {
		return se.Attempt
	}
	return nil
}
