package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Event types written to the event log.
const (
	EventAttemptStarted   = "AttemptStarted"
	EventAnswerSubmitted  = "AnswerSubmitted"
	EventAttemptCompleted = "AttemptCompleted"
	EventAttemptAbandoned = "AttemptAbandoned"
	EventAttemptRegraded  = "AttemptRegraded"
)

// Viewer is the caller as resolved by the identity provider.
type Viewer struct {
	UserID string
	Role   string
}

func (v Viewer) Staff() bool { return v.Role == RoleTeacher || v.Role == RoleAdmin }

// Manages reports whether v may see answer keys and analytics of q.
func (v Viewer) Manages(q Quiz) bool {
	return v.Role == RoleAdmin || (v.Role == RoleTeacher && q.CreatedBy == v.UserID)
}

// Service coordinates attempt creation, answer grading and finalization.
type Service struct {
	store  Store
	grader grading.Grader
	log    *slog.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option  { return func(s *Service) { s.now = now } }
func WithLogger(l *slog.Logger) Option       { return func(s *Service) { s.log = l } }
func WithGrader(g grading.Grader) Option     { return func(s *Service) { s.grader = g } }
func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		grader: grading.NewDefaultGrader(),
		log:    slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// clock returns the current time at the one-second resolution timestamps are stored with.
func (s *Service) clock() time.Time { return s.now().UTC().Truncate(time.Second) }

type StartResult struct {
	Attempt          Attempt    `json:"attempt"`
	Continued        bool       `json:"continued"`
	RemainingSeconds *int64     `json:"remaining_time"`
	Questions        []Question `json:"questions"`
}

type AnswerInput struct {
	QuestionID string          `json:"question_id"`
	Answer     json.RawMessage `json:"answer"`
}

// AnswerResult withholds correctness unless the quiz shows results immediately.
type AnswerResult struct {
	QuestionID       string           `json:"question_id"`
	ResultsWithheld  bool             `json:"results_withheld"`
	IsCorrect        *bool            `json:"is_correct"`
	PointsEarned     *decimal.Decimal `json:"points_earned"`
	PointsPossible   decimal.Decimal  `json:"points_possible"`
	Feedback         *string          `json:"feedback"`
	RemainingSeconds *int64           `json:"remaining_time"`
}

type Completion struct {
	Attempt      Attempt         `json:"attempt"`
	Score        decimal.Decimal `json:"score"`
	IsPassed     bool            `json:"is_passed"`
	TotalPoints  decimal.Decimal `json:"total_points"`
	EarnedPoints decimal.Decimal `json:"earned_points"`
	Answers      []Answer        `json:"answers"` // nil unless the quiz allows review
}

type AttemptView struct {
	Attempt          Attempt  `json:"attempt"`
	RemainingSeconds *int64   `json:"remaining_time"`
	Answers          []Answer `json:"answers,omitempty"`
}

type Eligibility struct {
	CanTake        bool   `json:"can_take"`
	Available      bool   `json:"available"`
	AttemptsUsed   int    `json:"attempts_used"`
	MaxAttempts    int    `json:"max_attempts"`
	InProgressID   string `json:"in_progress_attempt_id,omitempty"`
	BlockingReason string `json:"reason,omitempty"`
}

// ---- quizzes ----

func (s *Service) CreateQuiz(ctx context.Context, v Viewer, d QuizDraft) (Quiz, error) {
	if !v.Staff() {
		return Quiz{}, ErrForbidden
	}
	q, err := d.build(s.clock(), v.UserID, s.newID)
	if err != nil {
		return Quiz{}, err
	}
	if err := s.store.PutQuiz(ctx, q); err != nil {
		return Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	s.log.Info("quiz created", "quiz_id", q.ID, "questions", len(q.Questions), "created_by", v.UserID)
	return q, nil
}

// GetQuiz hides answer keys and unavailable quizzes from everyone but the owner.
func (s *Service) GetQuiz(ctx context.Context, v Viewer, quizID string) (Quiz, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Quiz{}, err
	}
	if v.Manages(q) {
		return q, nil
	}
	if !q.IsAvailable(s.clock()) {
		return Quiz{}, ErrNotAvailable
	}
	for i := range q.Questions {
		q.Questions[i] = q.Questions[i].Public()
	}
	return q, nil
}

func (s *Service) ListQuestions(ctx context.Context, v Viewer, quizID string) ([]Question, error) {
	q, err := s.GetQuiz(ctx, v, quizID)
	if err != nil {
		return nil, err
	}
	return q.Questions, nil
}

// CanUserTake is true when the quiz is open and the user either has an
// attempt to continue or attempts left.
func (s *Service) CanUserTake(ctx context.Context, v Viewer, quizID string) (Eligibility, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Eligibility{}, err
	}
	attempts, err := s.store.ListAttempts(ctx, AttemptListOpts{QuizID: quizID, UserID: v.UserID})
	if err != nil {
		return Eligibility{}, err
	}
	now := s.clock()
	el := Eligibility{Available: q.IsAvailable(now), MaxAttempts: q.MaxAttempts}
	for _, a := range attempts {
		if a.Status == StatusInProgress && !TimeLimitExceeded(q, a, now) {
			el.InProgressID = a.ID
			continue
		}
		el.AttemptsUsed++
	}
	switch {
	case !el.Available:
		el.BlockingReason = Code(ErrNotAvailable)
	case el.InProgressID == "" && el.AttemptsUsed >= q.MaxAttempts:
		el.BlockingReason = Code(ErrMaxAttemptsReached)
	default:
		el.CanTake = true
	}
	return el, nil
}

// ---- attempt lifecycle ----

// StartAttempt returns the caller's running attempt if there is one,
// otherwise creates the next attempt.
func (s *Service) StartAttempt(ctx context.Context, v Viewer, quizID string) (StartResult, error) {
	if v.UserID == "" {
		return StartResult{}, invalid("user_id", "required")
	}
	now := s.clock()
	var (
		res    StartResult
		quiz   Quiz
		reject error
	)
	err := s.store.WithTx(ctx, func(tx Tx) error {
		q, err := tx.GetQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		quiz = q
		if !q.IsAvailable(now) {
			return stateErr(ErrNotAvailable, nil)
		}
		if err := tx.LockUserQuiz(ctx, quizID, v.UserID); err != nil {
			return err
		}
		cur, ok, err := tx.FindInProgress(ctx, quizID, v.UserID)
		if err != nil {
			return err
		}
		if ok {
			if !TimeLimitExceeded(q, cur, now) {
				res = StartResult{Attempt: cur, Continued: true}
				return nil
			}
			if err := s.abandon(ctx, tx, &cur, now); err != nil {
				return err
			}
		}
		cnt, err := tx.CountAttempts(ctx, quizID, v.UserID)
		if err != nil {
			return err
		}
		if cnt.Terminal >= q.MaxAttempts {
			// commit any lazy abandon above, then reject
			reject = stateErr(ErrMaxAttemptsReached, nil)
			return nil
		}
		a := Attempt{
			ID:            s.newID(),
			QuizID:        quizID,
			UserID:        v.UserID,
			AttemptNumber: cnt.Total + 1,
			Status:        StatusInProgress,
			StartedAt:     now,
		}
		if err := tx.InsertAttempt(ctx, a); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, EventAttemptStarted, a, map[string]any{"attempt_number": a.AttemptNumber}); err != nil {
			return err
		}
		res = StartResult{Attempt: a}
		return nil
	})
	if err != nil {
		return StartResult{}, err
	}
	if reject != nil {
		s.log.Info("attempt rejected", "quiz_id", quizID, "user_id", v.UserID, "reason", Code(reject))
		return StartResult{}, reject
	}
	if res.Continued {
		s.log.Info("attempt continued", "attempt_id", res.Attempt.ID, "quiz_id", quizID, "user_id", v.UserID)
	} else {
		s.log.Info("attempt started", "attempt_id", res.Attempt.ID, "quiz_id", quizID,
			"user_id", v.UserID, "attempt_number", res.Attempt.AttemptNumber)
	}
	res.RemainingSeconds = RemainingSeconds(quiz, res.Attempt, now)
	res.Questions = attemptQuestions(quiz, res.Attempt)
	return res, nil
}

// SubmitAnswer grades one answer and upserts it. A time-limit violation
// abandons the attempt (committed) and rejects the submission.
func (s *Service) SubmitAnswer(ctx context.Context, v Viewer, attemptID string, in AnswerInput) (AnswerResult, error) {
	if strings.TrimSpace(in.QuestionID) == "" {
		return AnswerResult{}, invalid("question_id", "required")
	}
	if err := grading.CheckShape(in.Answer); err != nil {
		return AnswerResult{}, invalid("answer", "%v", err)
	}
	now := s.clock()
	var (
		res    AnswerResult
		reject error
		graded grading.Result
	)
	err := s.store.WithTx(ctx, func(tx Tx) error {
		a, err := tx.LockAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.UserID != v.UserID {
			return ErrForbidden
		}
		q, err := tx.GetQuiz(ctx, a.QuizID)
		if err != nil {
			return err
		}
		question, ok := q.Question(in.QuestionID)
		if !ok {
			return stateErr(ErrQuestionNotInQuiz, &a)
		}
		if err := CheckAnswerable(q, a, now); err != nil {
			if !errors.Is(err, ErrTimeLimitExceeded) {
				return err
			}
			if err := s.abandon(ctx, tx, &a, now); err != nil {
				return err
			}
			reject = stateErr(ErrTimeLimitExceeded, &a)
			return nil
		}

		gq, err := question.GradingView()
		if err != nil {
			return fmt.Errorf("question %s: %w", question.ID, err)
		}
		resp, err := grading.ParseResponse(gq.Type, in.Answer)
		if err != nil {
			return invalid("answer", "%v", err)
		}
		graded = s.grader.Grade(gq, resp)
		stored, err := tx.UpsertAnswer(ctx, Answer{
			ID:             s.newID(),
			AttemptID:      a.ID,
			QuestionID:     question.ID,
			Response:       append(json.RawMessage(nil), in.Answer...),
			IsCorrect:      &graded.IsCorrect,
			PointsEarned:   decimal.NullDecimal{Decimal: graded.PointsEarned, Valid: true},
			PointsPossible: graded.PointsPossible,
			Feedback:       graded.Feedback,
			UpdatedAt:      now,
		})
		if err != nil {
			return err
		}
		if err := s.emit(ctx, tx, EventAnswerSubmitted, a, map[string]any{
			"question_id":   question.ID,
			"is_correct":    graded.IsCorrect,
			"points_earned": graded.PointsEarned,
		}); err != nil {
			return err
		}
		res = answerResult(q, a, stored, now)
		return nil
	})
	if err != nil {
		return AnswerResult{}, err
	}
	if reject != nil {
		return AnswerResult{}, reject
	}
	s.log.Debug("answer graded", "attempt_id", attemptID, "question_id", in.QuestionID,
		"is_correct", graded.IsCorrect, "points_earned", graded.PointsEarned.String())
	return res, nil
}

func answerResult(q Quiz, a Attempt, ans Answer, now time.Time) AnswerResult {
	res := AnswerResult{
		QuestionID:       ans.QuestionID,
		PointsPossible:   ans.PointsPossible,
		RemainingSeconds: RemainingSeconds(q, a, now),
		ResultsWithheld:  !q.ShowResultsImmediately,
	}
	if q.ShowResultsImmediately {
		res.IsCorrect = ans.IsCorrect
		if ans.PointsEarned.Valid {
			pe := ans.PointsEarned.Decimal
			res.PointsEarned = &pe
		}
		fb := ans.Feedback
		res.Feedback = &fb
	}
	return res
}

// SubmitQuiz completes the attempt and scores it.
func (s *Service) SubmitQuiz(ctx context.Context, v Viewer, attemptID string) (Completion, error) {
	now := s.clock()
	var out Completion
	err := s.store.WithTx(ctx, func(tx Tx) error {
		a, err := tx.LockAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.UserID != v.UserID {
			return ErrForbidden
		}
		q, err := tx.GetQuiz(ctx, a.QuizID)
		if err != nil {
			return err
		}
		if err := Complete(&a, now); err != nil {
			return err
		}
		answers, err := tx.ListAnswers(ctx, a.ID)
		if err != nil {
			return err
		}
		sum := Summarize(q, answers)
		applySummary(&a, sum)
		if err := tx.UpdateAttempt(ctx, a); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, EventAttemptCompleted, a, sum); err != nil {
			return err
		}
		out = Completion{
			Attempt:      a,
			Score:        sum.Score,
			IsPassed:     sum.IsPassed,
			TotalPoints:  sum.TotalPoints,
			EarnedPoints: sum.EarnedPoints,
		}
		if q.AllowReview {
			out.Answers = answers
			if out.Answers == nil {
				out.Answers = []Answer{}
			}
		}
		return nil
	})
	if err != nil {
		return Completion{}, err
	}
	s.log.Info("attempt completed", "attempt_id", attemptID, "score", out.Score.StringFixed(2),
		"is_passed", out.IsPassed, "time_spent_seconds", *out.Attempt.TimeSpentSeconds)
	return out, nil
}

// Regrade re-evaluates stored answers against the current questions and,
// for completed attempts, re-runs the aggregation.
func (s *Service) Regrade(ctx context.Context, v Viewer, attemptID string) (Attempt, error) {
	now := s.clock()
	var out Attempt
	changed := 0
	err := s.store.WithTx(ctx, func(tx Tx) error {
		a, err := tx.LockAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		q, err := tx.GetQuiz(ctx, a.QuizID)
		if err != nil {
			return err
		}
		if !v.Manages(q) {
			return ErrForbidden
		}
		answers, err := tx.ListAnswers(ctx, a.ID)
		if err != nil {
			return err
		}
		for i, ans := range answers {
			question, ok := q.Question(ans.QuestionID)
			if !ok {
				continue
			}
			gq, err := question.GradingView()
			if err != nil {
				return fmt.Errorf("question %s: %w", question.ID, err)
			}
			resp, err := grading.ParseResponse(gq.Type, ans.Response)
			if err != nil {
				resp = grading.Malformed{Raw: ans.Response, Reason: err.Error()}
			}
			r := s.grader.Grade(gq, resp)
			if ans.IsCorrect == nil || *ans.IsCorrect != r.IsCorrect ||
				!ans.PointsEarned.Decimal.Equal(r.PointsEarned) || !ans.PointsPossible.Equal(r.PointsPossible) {
				changed++
			}
			ans.IsCorrect = &r.IsCorrect
			ans.PointsEarned = decimal.NullDecimal{Decimal: r.PointsEarned, Valid: true}
			ans.PointsPossible = r.PointsPossible
			ans.Feedback = r.Feedback
			ans.UpdatedAt = now
			if answers[i], err = tx.UpsertAnswer(ctx, ans); err != nil {
				return err
			}
		}
		if a.Status == StatusCompleted {
			applySummary(&a, Summarize(q, answers))
			if err := tx.UpdateAttempt(ctx, a); err != nil {
				return err
			}
		}
		out = a
		return s.emit(ctx, tx, EventAttemptRegraded, a, map[string]any{"changed": changed, "by": v.UserID})
	})
	if err != nil {
		return Attempt{}, err
	}
	s.log.Info("attempt regraded", "attempt_id", attemptID, "changed_answers", changed, "by", v.UserID)
	return out, nil
}

func (s *Service) abandon(ctx context.Context, tx Tx, a *Attempt, now time.Time) error {
	if err := Abandon(a); err != nil {
		return err
	}
	if err := tx.UpdateAttempt(ctx, *a); err != nil {
		return err
	}
	s.log.Info("attempt abandoned", "attempt_id", a.ID, "quiz_id", a.QuizID, "user_id", a.UserID,
		"elapsed_seconds", ElapsedSeconds(*a, now))
	return s.emit(ctx, tx, EventAttemptAbandoned, *a, map[string]any{
		"reason":          Code(ErrTimeLimitExceeded),
		"elapsed_seconds": ElapsedSeconds(*a, now),
	})
}

func (s *Service) emit(ctx context.Context, tx Tx, typ string, a Attempt, data any) error {
	e, err := syncx.NewEvent(typ, a.ID, data, s.clock())
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, e)
}

// Summarize aggregates the answers of an attempt over every question of the
// quiz; unanswered questions earn nothing but still count toward the total.
func Summarize(q Quiz, answers []Answer) grading.Summary {
	byQuestion := make(map[string]Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	items := make([]grading.Item, 0, len(q.Questions))
	for _, qq := range q.Questions {
		if a, ok := byQuestion[qq.ID]; ok {
			items = append(items, grading.Item{PointsPossible: a.PointsPossible, PointsEarned: a.PointsEarned})
			continue
		}
		items = append(items, grading.Item{PointsPossible: qq.Points})
	}
	return grading.Aggregate(items, q.PassingScore)
}

func applySummary(a *Attempt, sum grading.Summary) {
	passed := sum.IsPassed
	a.Score = decimal.NullDecimal{Decimal: sum.Score, Valid: true}
	a.TotalPoints = decimal.NullDecimal{Decimal: sum.TotalPoints, Valid: true}
	a.EarnedPoints = decimal.NullDecimal{Decimal: sum.EarnedPoints, Valid: true}
	a.IsPassed = &passed
}

// ---- queries ----

func (s *Service) visibleAttempt(ctx context.Context, v Viewer, attemptID string) (Attempt, Quiz, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, Quiz{}, err
	}
	q, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, Quiz{}, err
	}
	if a.UserID != v.UserID && !v.Manages(q) {
		return Attempt{}, Quiz{}, ErrForbidden
	}
	return a, q, nil
}

func (s *Service) GetAttempt(ctx context.Context, v Viewer, attemptID string) (AttemptView, error) {
	a, q, err := s.visibleAttempt(ctx, v, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	view := AttemptView{Attempt: a, RemainingSeconds: RemainingSeconds(q, a, s.clock())}
	if v.Manages(q) || (a.Status == StatusCompleted && q.AllowReview) {
		if view.Answers, err = s.store.ListAnswers(ctx, a.ID); err != nil {
			return AttemptView{}, err
		}
	}
	return view, nil
}

// RemainingTime is nil for unlimited quizzes and finished attempts.
func (s *Service) RemainingTime(ctx context.Context, v Viewer, attemptID string) (*int64, error) {
	a, q, err := s.visibleAttempt(ctx, v, attemptID)
	if err != nil {
		return nil, err
	}
	return RemainingSeconds(q, a, s.clock()), nil
}

// AttemptQuestions lists the questions in the order this attempt sees them.
func (s *Service) AttemptQuestions(ctx context.Context, v Viewer, attemptID string) ([]Question, error) {
	a, q, err := s.visibleAttempt(ctx, v, attemptID)
	if err != nil {
		return nil, err
	}
	return attemptQuestions(q, a), nil
}

// ListAttempts scopes the listing to the caller: students see their own
// attempts, teachers the attempts of a quiz they manage, admins everything.
func (s *Service) ListAttempts(ctx context.Context, v Viewer, opts AttemptListOpts) ([]Attempt, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, invalid("status", "unknown status %q", opts.Status)
	}
	switch v.Role {
	case RoleAdmin:
	case RoleTeacher:
		if opts.QuizID == "" {
			return nil, invalid("quiz_id", "required")
		}
		q, err := s.store.GetQuiz(ctx, opts.QuizID)
		if err != nil {
			return nil, err
		}
		if !v.Manages(q) {
			return nil, ErrForbidden
		}
	default:
		opts.UserID = v.UserID
	}
	return s.store.ListAttempts(ctx, opts)
}

// AttemptEvents returns the event history of an attempt to quiz managers.
func (s *Service) AttemptEvents(ctx context.Context, v Viewer, attemptID string) ([]syncx.Event, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	q, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return nil, err
	}
	if !v.Manages(q) {
		return nil, ErrForbidden
	}
	return s.store.ListEvents(ctx, attemptID)
}

// attemptQuestions returns public questions, shuffled with a seed derived
// from the attempt id so the order is stable across requests.
func attemptQuestions(q Quiz, a Attempt) []Question {
	out := make([]Question, len(q.Questions))
	for i, qq := range q.Questions {
		out[i] = qq.Public()
	}
	if q.ShuffleQuestions && len(out) > 1 {
		h := fnv.New64a()
		_, _ = h.Write([]byte(a.ID))
		r := rand.New(rand.NewSource(int64(h.Sum64())))
		r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out
}
