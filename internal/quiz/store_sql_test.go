package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "quiz.db") +
		"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	conn, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewSQLStore(conn, string(db.DriverSQLite))
}

func TestSQLStore_QuizRoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	want := sampleQuiz()
	until := t0.Add(48 * time.Hour)
	want.AvailableUntil = &until
	require.NoError(t, store.PutQuiz(ctx, want))

	got, err := store.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, want.Title, got.Title)
	require.NotNil(t, got.TimeLimitMinutes)
	assert.Equal(t, 30, *got.TimeLimitMinutes)
	assert.True(t, got.PassingScore.Equal(dec("70")))
	assert.True(t, got.AvailableUntil.Equal(until))
	assert.Nil(t, got.AvailableFrom)
	assert.True(t, got.CreatedAt.Equal(want.CreatedAt))

	require.Len(t, got.Questions, 2)
	mc := got.Questions[0]
	assert.Equal(t, []string{"Paris", "Rome", "Madrid"}, mc.Options)
	assert.JSONEq(t, `[0]`, string(mc.CorrectAnswers))
	assert.True(t, mc.Points.Equal(dec("10")))
	assert.Nil(t, got.Questions[1].Options)

	_, err = store.GetQuiz(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_EndToEnd(t *testing.T) {
	store := newSQLiteStore(t)
	h := newHarness(t, store, sampleQuiz())
	ctx := context.Background()

	started := h.start(t, student, "quiz-1")
	again := h.start(t, student, "quiz-1")
	assert.Equal(t, started.Attempt.ID, again.Attempt.ID)

	id := started.Attempt.ID
	h.answer(t, student, id, "q-mc", `[1]`)
	h.answer(t, student, id, "q-mc", `[0]`)
	h.answer(t, student, id, "q-tf", `["false"]`)
	h.clock.Advance(90 * time.Second)
	done := h.submit(t, student, id)

	assert.Equal(t, "66.67", done.Score.StringFixed(2))
	assert.False(t, done.IsPassed)
	require.Len(t, done.Answers, 2)

	stored, err := store.GetAttempt(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Equal(t, "66.67", stored.Score.Decimal.StringFixed(2))
	assert.True(t, stored.TotalPoints.Decimal.Equal(dec("15")))
	require.NotNil(t, stored.IsPassed)
	assert.False(t, *stored.IsPassed)
	require.NotNil(t, stored.TimeSpentSeconds)
	assert.Equal(t, int64(90), *stored.TimeSpentSeconds)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CompletedAt.Equal(t0.Add(90*time.Second)))

	answers, err := store.ListAnswers(ctx, id)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.True(t, *answers[0].IsCorrect)
	assert.JSONEq(t, `[0]`, string(answers[0].Response))

	events, err := store.ListEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, EventAttemptStarted, events[0].Type)
	assert.Equal(t, EventAttemptCompleted, events[4].Type)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[4].Data, &payload))
	assert.Equal(t, "66.67", payload["score"])

	stats, err := h.svc.Analytics(ctx, owner, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Overview.TotalStudents)
	assert.Equal(t, 1, stats.Questions[1].TotalAnswers)
}

func TestSQLStore_TimeLimitAbandonIsCommitted(t *testing.T) {
	store := newSQLiteStore(t)
	h := newHarness(t, store, sampleQuiz())
	ctx := context.Background()
	id := h.start(t, student, "quiz-1").Attempt.ID

	h.clock.Advance(31 * time.Minute)
	_, err := h.svc.SubmitAnswer(ctx, student, id, AnswerInput{QuestionID: "q-mc", Answer: json.RawMessage(`[0]`)})
	require.ErrorIs(t, err, ErrTimeLimitExceeded)

	a, err := store.GetAttempt(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, a.Status)
	answers, err := store.ListAnswers(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestSQLStore_WithTxRollsBack(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.PutQuiz(ctx, sampleQuiz()))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertAttempt(ctx, Attempt{ID: "att-x", QuizID: "quiz-1", UserID: "stu-1",
			AttemptNumber: 1, Status: StatusInProgress, StartedAt: t0}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetAttempt(ctx, "att-x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_AttemptNumberIsUnique(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.PutQuiz(ctx, sampleQuiz()))

	insert := func(id string) error {
		return store.WithTx(ctx, func(tx Tx) error {
			return tx.InsertAttempt(ctx, Attempt{ID: id, QuizID: "quiz-1", UserID: "stu-1",
				AttemptNumber: 1, Status: StatusInProgress, StartedAt: t0})
		})
	}
	require.NoError(t, insert("att-1"))
	err := insert("att-2")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "conflict", Code(err))
}

func TestSQLStore_ListAttemptsFilters(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.PutQuiz(ctx, sampleQuiz()))

	score := decimal.NullDecimal{Decimal: dec("50"), Valid: true}
	rows := []Attempt{
		{ID: "a1", QuizID: "quiz-1", UserID: "stu-1", AttemptNumber: 1, Status: StatusCompleted, StartedAt: t0, Score: score},
		{ID: "a2", QuizID: "quiz-1", UserID: "stu-1", AttemptNumber: 2, Status: StatusInProgress, StartedAt: t0.Add(time.Minute)},
		{ID: "b1", QuizID: "quiz-1", UserID: "stu-2", AttemptNumber: 1, Status: StatusAbandoned, StartedAt: t0.Add(2 * time.Minute)},
	}
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		for _, a := range rows {
			if err := tx.InsertAttempt(ctx, a); err != nil {
				return err
			}
		}
		return nil
	}))

	all, err := store.ListAttempts(ctx, AttemptListOpts{QuizID: "quiz-1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b1", all[0].ID)

	mine, err := store.ListAttempts(ctx, AttemptListOpts{UserID: "stu-1", Status: StatusCompleted})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.True(t, mine[0].Score.Decimal.Equal(dec("50")))

	page, err := store.ListAttempts(ctx, AttemptListOpts{QuizID: "quiz-1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a2", page[0].ID)

	err = store.WithTx(ctx, func(tx Tx) error {
		cnt, err := tx.CountAttempts(ctx, "quiz-1", "stu-1")
		if err != nil {
			return err
		}
		assert.Equal(t, AttemptCount{Total: 2, Terminal: 1}, cnt)
		cur, ok, err := tx.FindInProgress(ctx, "quiz-1", "stu-1")
		if err != nil {
			return err
		}
		assert.True(t, ok)
		assert.Equal(t, "a2", cur.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLStore_ConcurrentStartsShareOneAttempt(t *testing.T) {
	store := newSQLiteStore(t)
	require.NoError(t, store.PutQuiz(context.Background(), sampleQuiz()))
	clk := &fakeClock{now: t0}
	svc := NewService(store, WithClock(clk.Now), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.StartAttempt(context.Background(), student, "quiz-1")
			ids[i], errs[i] = res.Attempt.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	all, err := store.ListAttempts(context.Background(), AttemptListOpts{QuizID: "quiz-1", UserID: student.UserID})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLStore_ConcurrentAnswersPastLimitAbandonOnce(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.PutQuiz(ctx, sampleQuiz()))
	clk := &fakeClock{now: t0}
	svc := NewService(store, WithClock(clk.Now), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	started, err := svc.StartAttempt(ctx, student, "quiz-1")
	require.NoError(t, err)
	id := started.Attempt.ID
	clk.Advance(31 * time.Minute)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := AnswerInput{QuestionID: "q-mc", Answer: json.RawMessage(`[0]`)}
			if i%2 == 1 {
				in = AnswerInput{QuestionID: "q-tf", Answer: json.RawMessage(`[true]`)}
			}
			_, errs[i] = svc.SubmitAnswer(context.Background(), student, id, in)
		}(i)
	}
	wg.Wait()

	expired := 0
	for _, err := range errs {
		require.Error(t, err)
		if errors.Is(err, ErrTimeLimitExceeded) {
			expired++
			continue
		}
		assert.ErrorIs(t, err, ErrNotInProgress)
	}
	assert.Equal(t, 1, expired, "only the first submission sees the running attempt")

	a, err := store.GetAttempt(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, a.Status)

	answers, err := store.ListAnswers(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, answers)

	events, err := store.ListEvents(ctx, id)
	require.NoError(t, err)
	abandoned := 0
	for _, e := range events {
		if e.Type == EventAttemptAbandoned {
			abandoned++
		}
	}
	assert.Equal(t, 1, abandoned)
}
