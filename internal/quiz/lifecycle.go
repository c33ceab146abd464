package quiz

import (
	"time"
)

// in_progress is the only state with outgoing edges.
var transitions = map[Status][]Status{
	StatusInProgress: {StatusCompleted, StatusAbandoned},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusAbandoned }

func (s Status) Valid() bool {
	return s == StatusInProgress || s.Terminal()
}

// IsAvailable reports whether the quiz can be started at now. Open-ended
// window bounds are unbounded.
func (q Quiz) IsAvailable(now time.Time) bool {
	if !q.IsPublished {
		return false
	}
	if q.AvailableFrom != nil && now.Before(*q.AvailableFrom) {
		return false
	}
	if q.AvailableUntil != nil && now.After(*q.AvailableUntil) {
		return false
	}
	return true
}

// TimeLimitSeconds returns the limit and whether there is one.
func (q Quiz) TimeLimitSeconds() (int64, bool) {
	if q.TimeLimitMinutes == nil || *q.TimeLimitMinutes <= 0 {
		return 0, false
	}
	return int64(*q.TimeLimitMinutes) * 60, true
}

// ElapsedSeconds is whole seconds since the attempt started, never negative.
func ElapsedSeconds(a Attempt, now time.Time) int64 {
	d := int64(now.Sub(a.StartedAt) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// TimeLimitExceeded is strict: an attempt is still valid at exactly the limit.
func TimeLimitExceeded(q Quiz, a Attempt, now time.Time) bool {
	limit, ok := q.TimeLimitSeconds()
	if !ok {
		return false
	}
	return ElapsedSeconds(a, now) > limit
}

// RemainingSeconds is nil when the quiz is unlimited or the attempt is over.
func RemainingSeconds(q Quiz, a Attempt, now time.Time) *int64 {
	limit, ok := q.TimeLimitSeconds()
	if !ok || a.Status != StatusInProgress {
		return nil
	}
	left := limit - ElapsedSeconds(a, now)
	if left < 0 {
		left = 0
	}
	return &left
}

func transition(a *Attempt, to Status) error {
	if !CanTransition(a.Status, to) {
		return stateErr(ErrNotInProgress, a)
	}
	a.Status = to
	return nil
}

// Complete finalizes the attempt timing. Scoring is applied separately.
func Complete(a *Attempt, now time.Time) error {
	if err := transition(a, StatusCompleted); err != nil {
		return err
	}
	at := now
	spent := ElapsedSeconds(*a, now)
	a.CompletedAt = &at
	a.TimeSpentSeconds = &spent
	return nil
}

func Abandon(a *Attempt) error {
	return transition(a, StatusAbandoned)
}

// CheckAnswerable validates that an answer may be recorded now. A
// time-limit violation is reported separately so the caller can abandon the
// attempt before rejecting the request.
func CheckAnswerable(q Quiz, a Attempt, now time.Time) error {
	if a.Status != StatusInProgress {
		return stateErr(ErrNotInProgress, &a)
	}
	if TimeLimitExceeded(q, a, now) {
		return stateErr(ErrTimeLimitExceeded, &a)
	}
	return nil
}
