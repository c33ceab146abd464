package quiz

import (
	"context"
	"fmt"
	"sort"
	"sync"

	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

type memState struct {
	quizzes  map[string]Quiz
	attempts map[string]Attempt
	answers  map[string]map[string]Answer // attemptID -> questionID -> answer
	events   []syncx.Event
}

func (s memState) clone() memState {
	out := memState{
		quizzes:  make(map[string]Quiz, len(s.quizzes)),
		attempts: make(map[string]Attempt, len(s.attempts)),
		answers:  make(map[string]map[string]Answer, len(s.answers)),
		events:   append([]syncx.Event(nil), s.events...),
	}
	for k, v := range s.quizzes {
		out.quizzes[k] = v
	}
	for k, v := range s.attempts {
		out.attempts[k] = v
	}
	for k, m := range s.answers {
		cp := make(map[string]Answer, len(m))
		for qk, a := range m {
			cp[qk] = a
		}
		out.answers[k] = cp
	}
	return out
}

// MemoryStore keeps everything in process. Transactions run against a copy
// that replaces the live state only when fn succeeds.
type MemoryStore struct {
	mu sync.Mutex
	st memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: memState{
		quizzes:  map[string]Quiz{},
		attempts: map[string]Attempt{},
		answers:  map[string]map[string]Answer{},
	}}
}

func (m *MemoryStore) PutQuiz(_ context.Context, q Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.Questions = append([]Question(nil), q.Questions...)
	sort.SliceStable(q.Questions, func(i, j int) bool {
		return q.Questions[i].OrderPosition < q.Questions[j].OrderPosition
	})
	m.st.quizzes[q.ID] = q
	return nil
}

func (m *MemoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getQuiz(id)
}

func (m *MemoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getAttempt(id)
}

func (m *MemoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attempt
	for _, a := range m.st.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].AttemptNumber > out[j].AttemptNumber
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ListAnswers(_ context.Context, attemptID string) ([]Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listAnswers(attemptID), nil
}

func (m *MemoryStore) ListQuizAnswers(_ context.Context, quizID string, status Status) ([]Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Answer
	for id, a := range m.st.attempts {
		if a.QuizID == quizID && a.Status == status {
			out = append(out, m.st.listAnswers(id)...)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AttemptID != out[j].AttemptID {
			return out[i].AttemptID < out[j].AttemptID
		}
		return out[i].QuestionID < out[j].QuestionID
	})
	return out, nil
}

func (m *MemoryStore) ListEvents(_ context.Context, key string) ([]syncx.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []syncx.Event
	for _, e := range m.st.events {
		if e.Key == key {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) WithTx(_ context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.st.clone()
	if err := fn(&memTx{st: &work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (s *memState) getQuiz(id string) (Quiz, error) {
	q, ok := s.quizzes[id]
	if !ok {
		return Quiz{}, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	q.Questions = append([]Question(nil), q.Questions...)
	return q, nil
}

func (s *memState) getAttempt(id string) (Attempt, error) {
	a, ok := s.attempts[id]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return a, nil
}

func (s *memState) listAnswers(attemptID string) []Answer {
	m := s.answers[attemptID]
	out := make([]Answer, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

// memTx runs with the store mutex already held.
type memTx struct {
	st *memState
}

func (t *memTx) GetQuiz(_ context.Context, id string) (Quiz, error) { return t.st.getQuiz(id) }

func (t *memTx) LockAttempt(_ context.Context, id string) (Attempt, error) {
	return t.st.getAttempt(id)
}

func (t *memTx) LockUserQuiz(context.Context, string, string) error { return nil }

func (t *memTx) FindInProgress(_ context.Context, quizID, userID string) (Attempt, bool, error) {
	var (
		best  Attempt
		found bool
	)
	for _, a := range t.st.attempts {
		if a.QuizID == quizID && a.UserID == userID && a.Status == StatusInProgress {
			if !found || a.AttemptNumber > best.AttemptNumber {
				best, found = a, true
			}
		}
	}
	return best, found, nil
}

func (t *memTx) CountAttempts(_ context.Context, quizID, userID string) (AttemptCount, error) {
	var c AttemptCount
	for _, a := range t.st.attempts {
		if a.QuizID != quizID || a.UserID != userID {
			continue
		}
		c.Total++
		if a.Status.Terminal() {
			c.Terminal++
		}
	}
	return c, nil
}

func (t *memTx) InsertAttempt(_ context.Context, a Attempt) error {
	if _, ok := t.st.attempts[a.ID]; ok {
		return fmt.Errorf("attempt %s: %w", a.ID, ErrConflict)
	}
	for _, o := range t.st.attempts {
		if o.QuizID == a.QuizID && o.UserID == a.UserID && o.AttemptNumber == a.AttemptNumber {
			return fmt.Errorf("insert attempt %d: %w", a.AttemptNumber, ErrConflict)
		}
	}
	t.st.attempts[a.ID] = a
	return nil
}

func (t *memTx) UpdateAttempt(_ context.Context, a Attempt) error {
	if _, ok := t.st.attempts[a.ID]; !ok {
		return fmt.Errorf("attempt %s: %w", a.ID, ErrNotFound)
	}
	t.st.attempts[a.ID] = a
	return nil
}

func (t *memTx) UpsertAnswer(_ context.Context, ans Answer) (Answer, error) {
	m, ok := t.st.answers[ans.AttemptID]
	if !ok {
		m = map[string]Answer{}
		t.st.answers[ans.AttemptID] = m
	}
	if prev, ok := m[ans.QuestionID]; ok {
		ans.ID = prev.ID
	}
	m[ans.QuestionID] = ans
	return ans, nil
}

func (t *memTx) ListAnswers(_ context.Context, attemptID string) ([]Answer, error) {
	return t.st.listAnswers(attemptID), nil
}

func (t *memTx) AppendEvent(_ context.Context, e syncx.Event) error {
	e.Seq = int64(len(t.st.events) + 1)
	if e.SiteID == "" {
		e.SiteID = syncx.DefaultSiteID
	}
	t.st.events = append(t.st.events, e)
	return nil
}
