package quiz

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

type Overview struct {
	TotalStudents int             `json:"total_students"`
	TotalAttempts int             `json:"total_attempts"`
	AverageScore  decimal.Decimal `json:"average_score"`
	PassedCount   int             `json:"passed_count"`
	PassRate      decimal.Decimal `json:"pass_rate"`
	AvgTimeSpent  int64           `json:"avg_time_spent"` // seconds
}

type QuestionStats struct {
	QuestionID     string           `json:"question_id"`
	Question       string           `json:"question"`
	Type           grading.Type     `json:"type"`
	TotalAnswers   int              `json:"total_answers"`
	CorrectAnswers int              `json:"correct_answers"`
	AvgPoints      decimal.Decimal  `json:"avg_points"`
	SuccessRate    *decimal.Decimal `json:"success_rate"` // nil when nobody answered
}

type BandCount struct {
	Band  grading.Band `json:"band"`
	Count int          `json:"count"`
}

type Analytics struct {
	QuizID       string          `json:"quiz_id"`
	Overview     Overview        `json:"overview"`
	Questions    []QuestionStats `json:"questions"`
	Distribution []BandCount     `json:"score_distribution"`
}

// Analytics reports on the completed attempts of a quiz. Only the quiz
// owner and admins may read it.
func (s *Service) Analytics(ctx context.Context, v Viewer, quizID string) (Analytics, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Analytics{}, err
	}
	if !v.Manages(q) {
		return Analytics{}, ErrForbidden
	}
	attempts, err := s.store.ListAttempts(ctx, AttemptListOpts{QuizID: quizID, Status: StatusCompleted})
	if err != nil {
		return Analytics{}, err
	}
	answers, err := s.store.ListQuizAnswers(ctx, quizID, StatusCompleted)
	if err != nil {
		return Analytics{}, err
	}
	return ComputeAnalytics(q, attempts, answers), nil
}

// ComputeAnalytics reduces completed attempts and their answers. Overview
// and distribution use each student's best attempt; per-question numbers
// use every completed attempt.
func ComputeAnalytics(q Quiz, attempts []Attempt, answers []Answer) Analytics {
	out := Analytics{QuizID: q.ID}

	best := map[string]Attempt{}
	var order []string
	for _, a := range attempts {
		if a.Status != StatusCompleted {
			continue
		}
		out.Overview.TotalAttempts++
		cur, seen := best[a.UserID]
		if !seen {
			order = append(order, a.UserID)
		}
		if !seen || a.Score.Decimal.GreaterThan(cur.Score.Decimal) ||
			(a.Score.Decimal.Equal(cur.Score.Decimal) && a.AttemptNumber < cur.AttemptNumber) {
			best[a.UserID] = a
		}
	}

	ov := &out.Overview
	ov.TotalStudents = len(order)
	counts := map[grading.Band]int{}
	sum := decimal.Zero
	var spent int64
	for _, uid := range order {
		a := best[uid]
		sum = sum.Add(a.Score.Decimal)
		if a.IsPassed != nil && *a.IsPassed {
			ov.PassedCount++
		}
		if a.TimeSpentSeconds != nil {
			spent += *a.TimeSpentSeconds
		}
		counts[grading.LetterBand(a.Score.Decimal)]++
	}
	if n := int64(ov.TotalStudents); n > 0 {
		ov.AverageScore = sum.DivRound(decimal.NewFromInt(n), 2)
		ov.PassRate = decimal.NewFromInt(int64(ov.PassedCount)).Mul(hundred).DivRound(decimal.NewFromInt(n), 2)
		ov.AvgTimeSpent = spent / n
	}

	for _, b := range grading.Bands {
		if c := counts[b]; c > 0 {
			out.Distribution = append(out.Distribution, BandCount{Band: b, Count: c})
		}
	}

	completed := make(map[string]bool, len(attempts))
	for _, a := range attempts {
		if a.Status == StatusCompleted {
			completed[a.ID] = true
		}
	}
	type acc struct {
		total, correct int
		points         decimal.Decimal
	}
	per := map[string]*acc{}
	for _, ans := range answers {
		if !completed[ans.AttemptID] {
			continue
		}
		st, ok := per[ans.QuestionID]
		if !ok {
			st = &acc{}
			per[ans.QuestionID] = st
		}
		st.total++
		if ans.IsCorrect != nil && *ans.IsCorrect {
			st.correct++
		}
		st.points = st.points.Add(ans.PointsEarned.Decimal)
	}
	for _, qq := range q.Questions {
		qs := QuestionStats{QuestionID: qq.ID, Question: qq.Question, Type: qq.Type}
		if st, ok := per[qq.ID]; ok && st.total > 0 {
			n := decimal.NewFromInt(int64(st.total))
			rate := decimal.NewFromInt(int64(st.correct)).Mul(hundred).DivRound(n, 2)
			qs.TotalAnswers = st.total
			qs.CorrectAnswers = st.correct
			qs.AvgPoints = st.points.DivRound(n, 2)
			qs.SuccessRate = &rate
		}
		out.Questions = append(out.Questions, qs)
	}
	return out
}
