package quiz

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

func completedAttempt(id, user string, n int, score string, passed bool, spent int64) Attempt {
	return Attempt{
		ID: id, QuizID: "quiz-1", UserID: user, AttemptNumber: n, Status: StatusCompleted,
		StartedAt:        t0,
		Score:            decimal.NullDecimal{Decimal: dec(score), Valid: true},
		IsPassed:         &passed,
		TimeSpentSeconds: &spent,
	}
}

func graded(attemptID, questionID string, correct bool, points string) Answer {
	return Answer{
		AttemptID: attemptID, QuestionID: questionID, IsCorrect: &correct,
		PointsEarned: decimal.NullDecimal{Decimal: dec(points), Valid: true},
	}
}

func TestComputeAnalytics(t *testing.T) {
	attempts := []Attempt{
		completedAttempt("a1", "stu-1", 1, "66.67", false, 120),
		completedAttempt("a2", "stu-1", 2, "100", true, 300),
		completedAttempt("b1", "stu-2", 1, "33.33", false, 60),
		{ID: "c1", QuizID: "quiz-1", UserID: "stu-3", AttemptNumber: 1, Status: StatusAbandoned, StartedAt: t0},
	}
	answers := []Answer{
		graded("a1", "q-mc", true, "10"),
		graded("a1", "q-tf", false, "0"),
		graded("a2", "q-mc", true, "10"),
		graded("a2", "q-tf", true, "5"),
		graded("b1", "q-tf", true, "5"),
		graded("c1", "q-mc", false, "0"),
	}

	got := ComputeAnalytics(sampleQuiz(), attempts, answers)

	ov := got.Overview
	assert.Equal(t, 2, ov.TotalStudents)
	assert.Equal(t, 3, ov.TotalAttempts)
	assert.Equal(t, "66.67", ov.AverageScore.StringFixed(2))
	assert.Equal(t, 1, ov.PassedCount)
	assert.Equal(t, "50.00", ov.PassRate.StringFixed(2))
	assert.Equal(t, int64(180), ov.AvgTimeSpent)

	assert.Equal(t, []BandCount{{Band: grading.BandA, Count: 1}, {Band: grading.BandF, Count: 1}}, got.Distribution)

	require.Len(t, got.Questions, 2)
	mc, tf := got.Questions[0], got.Questions[1]
	assert.Equal(t, "q-mc", mc.QuestionID)
	assert.Equal(t, 2, mc.TotalAnswers)
	assert.Equal(t, 2, mc.CorrectAnswers)
	assert.Equal(t, "10.00", mc.AvgPoints.StringFixed(2))
	require.NotNil(t, mc.SuccessRate)
	assert.Equal(t, "100.00", mc.SuccessRate.StringFixed(2))

	assert.Equal(t, 3, tf.TotalAnswers)
	assert.Equal(t, 2, tf.CorrectAnswers)
	assert.Equal(t, "3.33", tf.AvgPoints.StringFixed(2))
	assert.Equal(t, "66.67", tf.SuccessRate.StringFixed(2))
}

func TestComputeAnalytics_BestAttemptTieKeepsEarliest(t *testing.T) {
	attempts := []Attempt{
		completedAttempt("a2", "stu-1", 2, "80", true, 500),
		completedAttempt("a1", "stu-1", 1, "80", true, 100),
	}
	got := ComputeAnalytics(sampleQuiz(), attempts, nil)
	assert.Equal(t, int64(100), got.Overview.AvgTimeSpent)
	assert.Equal(t, []BandCount{{Band: grading.BandB, Count: 1}}, got.Distribution)
}

func TestComputeAnalytics_NoAttempts(t *testing.T) {
	got := ComputeAnalytics(sampleQuiz(), nil, nil)
	assert.Zero(t, got.Overview.TotalStudents)
	assert.True(t, got.Overview.AverageScore.IsZero())
	assert.Empty(t, got.Distribution)
	require.Len(t, got.Questions, 2)
	assert.Nil(t, got.Questions[0].SuccessRate)
	assert.Zero(t, got.Questions[0].TotalAnswers)
}

func TestService_Analytics(t *testing.T) {
	h := newHarness(t, NewMemoryStore(), sampleQuiz())
	ctx := context.Background()

	id := h.start(t, student, "quiz-1").Attempt.ID
	h.answer(t, student, id, "q-mc", `[0]`)
	h.answer(t, student, id, "q-tf", `[true]`)
	h.submit(t, student, id)
	h.start(t, other, "quiz-1") // in progress, not counted

	for _, v := range []Viewer{student, teacher} {
		_, err := h.svc.Analytics(ctx, v, "quiz-1")
		assert.ErrorIs(t, err, ErrForbidden, v.UserID)
	}

	got, err := h.svc.Analytics(ctx, owner, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Overview.TotalStudents)
	assert.Equal(t, "100.00", got.Overview.PassRate.StringFixed(2))
	assert.Equal(t, 1, got.Questions[0].TotalAnswers)

	_, err = h.svc.Analytics(ctx, admin, "quiz-1")
	assert.NoError(t, err)
}
