package quiz

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

type Question struct {
	ID             string          `json:"id"`
	QuizID         string          `json:"quiz_id"`
	Type           grading.Type    `json:"type"` // multiple_choice, true_false, short_answer
	Question       string          `json:"question"`
	Options        []string        `json:"options,omitempty"`         // multiple_choice only
	CorrectAnswers json.RawMessage `json:"correct_answers,omitempty"` // [0,2] | [true] | ["a","b"]
	Explanation    string          `json:"explanation,omitempty"`
	Points         decimal.Decimal `json:"points"`
	OrderPosition  int             `json:"order_position"`
	CaseSensitive  bool            `json:"case_sensitive,omitempty"`
}

// GradingView decodes the stored key into what the grader needs.
func (q Question) GradingView() (grading.Question, error) {
	key, err := grading.ParseKey(q.Type, q.CorrectAnswers)
	if err != nil {
		return grading.Question{}, err
	}
	return grading.Question{
		Type:          q.Type,
		Options:       q.Options,
		Key:           key,
		CaseSensitive: q.CaseSensitive,
		Points:        q.Points,
		Explanation:   q.Explanation,
	}, nil
}

// Public strips everything that would give the answer away.
func (q Question) Public() Question {
	q.CorrectAnswers = nil
	q.Explanation = ""
	q.CaseSensitive = false
	return q
}

type Quiz struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	CreatedBy    string `json:"created_by"`

	TimeLimitMinutes *int            `json:"time_limit_minutes"` // nil = unlimited
	MaxAttempts      int             `json:"max_attempts"`
	PassingScore     decimal.Decimal `json:"passing_score"` // percentage 0..100

	ShuffleQuestions       bool `json:"shuffle_questions"`
	ShowResultsImmediately bool `json:"show_results_immediately"`
	AllowReview            bool `json:"allow_review"`
	IsPublished            bool `json:"is_published"`

	AvailableFrom  *time.Time `json:"available_from"`
	AvailableUntil *time.Time `json:"available_until"`

	Questions []Question `json:"questions,omitempty"` // ordered by order_position
	CreatedAt time.Time  `json:"created_at"`
}

// Question looks up a question of this quiz by id.
func (q Quiz) Question(id string) (Question, bool) {
	for _, qq := range q.Questions {
		if qq.ID == id {
			return qq, true
		}
	}
	return Question{}, false
}

type Attempt struct {
	ID               string              `json:"id"`
	QuizID           string              `json:"quiz_id"`
	UserID           string              `json:"user_id"`
	AttemptNumber    int                 `json:"attempt_number"`
	Status           Status              `json:"status"`
	StartedAt        time.Time           `json:"started_at"`
	CompletedAt      *time.Time          `json:"completed_at"`
	Score            decimal.NullDecimal `json:"score"`
	TotalPoints      decimal.NullDecimal `json:"total_points"`
	EarnedPoints     decimal.NullDecimal `json:"earned_points"`
	IsPassed         *bool               `json:"is_passed"`
	TimeSpentSeconds *int64              `json:"time_spent_seconds"`
}

// Answer is unique per (attempt, question); resubmitting overwrites it.
type Answer struct {
	ID             string              `json:"id"`
	AttemptID      string              `json:"attempt_id"`
	QuestionID     string              `json:"question_id"`
	Response       json.RawMessage     `json:"answer"`
	IsCorrect      *bool               `json:"is_correct"`
	PointsEarned   decimal.NullDecimal `json:"points_earned"`
	PointsPossible decimal.Decimal     `json:"points_possible"`
	Feedback       string              `json:"feedback,omitempty"`
	UpdatedAt      time.Time           `json:"updated_at"`
}
