package quiz

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

var (
	defaultPassingScore = decimal.NewFromInt(70)
	defaultPoints       = decimal.NewFromInt(1)
	minPoints           = decimal.RequireFromString("0.1")
	maxPoints           = decimal.NewFromInt(100)
	hundred             = decimal.NewFromInt(100)
)

// QuizDraft is the authoring payload. Nil fields take their defaults.
type QuizDraft struct {
	Title                  string           `json:"title"`
	Description            string           `json:"description"`
	Instructions           string           `json:"instructions"`
	TimeLimitMinutes       *int             `json:"time_limit_minutes"`
	MaxAttempts            *int             `json:"max_attempts"`
	PassingScore           *decimal.Decimal `json:"passing_score"`
	ShuffleQuestions       bool             `json:"shuffle_questions"`
	ShowResultsImmediately *bool            `json:"show_results_immediately"`
	AllowReview            *bool            `json:"allow_review"`
	IsPublished            bool             `json:"is_published"`
	AvailableFrom          *time.Time       `json:"available_from"`
	AvailableUntil         *time.Time       `json:"available_until"`
	Questions              []QuestionDraft  `json:"questions"`
}

type QuestionDraft struct {
	Type           grading.Type     `json:"type"`
	Question       string           `json:"question"`
	Options        []string         `json:"options"`
	CorrectAnswers json.RawMessage  `json:"correct_answers"`
	Explanation    string           `json:"explanation"`
	Points         *decimal.Decimal `json:"points"`
	CaseSensitive  bool             `json:"case_sensitive"`
}

func (d QuizDraft) build(now time.Time, author string, newID func() string) (Quiz, error) {
	q := Quiz{
		ID:                     newID(),
		Title:                  strings.TrimSpace(d.Title),
		Description:            d.Description,
		Instructions:           d.Instructions,
		CreatedBy:              author,
		TimeLimitMinutes:       d.TimeLimitMinutes,
		MaxAttempts:            1,
		PassingScore:           defaultPassingScore,
		ShuffleQuestions:       d.ShuffleQuestions,
		ShowResultsImmediately: true,
		AllowReview:            true,
		IsPublished:            d.IsPublished,
		AvailableFrom:          utcPtr(d.AvailableFrom),
		AvailableUntil:         utcPtr(d.AvailableUntil),
		CreatedAt:              now,
	}
	if d.MaxAttempts != nil {
		q.MaxAttempts = *d.MaxAttempts
	}
	if d.PassingScore != nil {
		q.PassingScore = *d.PassingScore
	}
	if d.ShowResultsImmediately != nil {
		q.ShowResultsImmediately = *d.ShowResultsImmediately
	}
	if d.AllowReview != nil {
		q.AllowReview = *d.AllowReview
	}

	switch {
	case q.Title == "":
		return Quiz{}, invalid("title", "required")
	case len(q.Title) > 255:
		return Quiz{}, invalid("title", "must be at most 255 characters")
	case q.TimeLimitMinutes != nil && (*q.TimeLimitMinutes < 1 || *q.TimeLimitMinutes > 480):
		return Quiz{}, invalid("time_limit_minutes", "must be between 1 and 480")
	case q.MaxAttempts < 1 || q.MaxAttempts > 10:
		return Quiz{}, invalid("max_attempts", "must be between 1 and 10")
	case q.PassingScore.IsNegative() || q.PassingScore.GreaterThan(hundred):
		return Quiz{}, invalid("passing_score", "must be between 0 and 100")
	case !q.PassingScore.Equal(q.PassingScore.Round(2)):
		return Quiz{}, invalid("passing_score", "at most 2 decimal places")
	case q.AvailableFrom != nil && q.AvailableUntil != nil && !q.AvailableUntil.After(*q.AvailableFrom):
		return Quiz{}, invalid("available_until", "must be after available_from")
	case len(d.Questions) == 0:
		return Quiz{}, invalid("questions", "at least one question is required")
	}

	for i, qd := range d.Questions {
		qq, err := qd.build(q.ID, i, newID)
		if err != nil {
			return Quiz{}, err
		}
		q.Questions = append(q.Questions, qq)
	}
	return q, nil
}

func (d QuestionDraft) build(quizID string, pos int, newID func() string) (Question, error) {
	field := func(name string) string { return fmt.Sprintf("questions[%d].%s", pos, name) }

	qq := Question{
		ID:             newID(),
		QuizID:         quizID,
		Type:           d.Type,
		Question:       strings.TrimSpace(d.Question),
		Options:        d.Options,
		CorrectAnswers: d.CorrectAnswers,
		Explanation:    d.Explanation,
		Points:         defaultPoints,
		OrderPosition:  pos + 1,
		CaseSensitive:  d.CaseSensitive,
	}
	if d.Points != nil {
		qq.Points = *d.Points
	}
	if !qq.Type.Valid() {
		return Question{}, invalid(field("type"), "unknown question type %q", d.Type)
	}
	if qq.Question == "" {
		return Question{}, invalid(field("question"), "required")
	}
	if qq.Points.LessThan(minPoints) || qq.Points.GreaterThan(maxPoints) {
		return Question{}, invalid(field("points"), "must be between 0.1 and 100")
	}
	if !qq.Points.Equal(qq.Points.Round(2)) {
		return Question{}, invalid(field("points"), "at most 2 decimal places")
	}
	if qq.Type != grading.TypeMultipleChoice {
		qq.Options = nil
	} else if len(qq.Options) < 2 {
		return Question{}, invalid(field("options"), "at least two options are required")
	}

	key, err := grading.ParseKey(qq.Type, qq.CorrectAnswers)
	if err != nil {
		return Question{}, invalid(field("correct_answers"), "%v", err)
	}
	for _, i := range key.Indices {
		if i >= len(qq.Options) {
			return Question{}, invalid(field("correct_answers"), "option index %d out of range", i)
		}
	}
	return qq, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC().Truncate(time.Second)
	return &u
}
