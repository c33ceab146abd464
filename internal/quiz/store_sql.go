package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	events *syncx.EventRepo
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, events: syncx.NewEventRepo(db)}
}

func (s *SQLStore) postgres() bool { return s.driver == "postgres" }

const (
	quizCols     = `id,title,description,instructions,created_by,time_limit_minutes,max_attempts,passing_score,shuffle_questions,show_results_immediately,allow_review,is_published,available_from,available_until,created_at`
	questionCols = `id,quiz_id,type,question,options_json,correct_answers_json,explanation,points,order_position,case_sensitive`
	attemptCols  = `id,quiz_id,user_id,attempt_number,status,started_at,completed_at,score,total_points,earned_points,is_passed,time_spent_seconds`
	answerCols   = `id,attempt_id,question_id,answer_json,is_correct,points_earned,points_possible,feedback,updated_at`
)

func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz) error {
	return s.WithTx(ctx, func(t Tx) error {
		tx := t.(*sqlTx).tx
		_, err := tx.ExecContext(ctx, `INSERT INTO quizzes (`+quizCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description,
			  instructions=EXCLUDED.instructions, time_limit_minutes=EXCLUDED.time_limit_minutes,
			  max_attempts=EXCLUDED.max_attempts, passing_score=EXCLUDED.passing_score,
			  shuffle_questions=EXCLUDED.shuffle_questions, show_results_immediately=EXCLUDED.show_results_immediately,
			  allow_review=EXCLUDED.allow_review, is_published=EXCLUDED.is_published,
			  available_from=EXCLUDED.available_from, available_until=EXCLUDED.available_until`,
			q.ID, q.Title, q.Description, q.Instructions, q.CreatedBy, q.TimeLimitMinutes, q.MaxAttempts,
			q.PassingScore, q.ShuffleQuestions, q.ShowResultsImmediately, q.AllowReview, q.IsPublished,
			nullableUnix(q.AvailableFrom), nullableUnix(q.AvailableUntil), q.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("put quiz: %w", err)
		}
		for _, qq := range q.Questions {
			var opts any
			if qq.Options != nil {
				buf, err := json.Marshal(qq.Options)
				if err != nil {
					return err
				}
				opts = string(buf)
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO quiz_questions (`+questionCols+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
				ON CONFLICT (id) DO UPDATE SET type=EXCLUDED.type, question=EXCLUDED.question,
				  options_json=EXCLUDED.options_json, correct_answers_json=EXCLUDED.correct_answers_json,
				  explanation=EXCLUDED.explanation, points=EXCLUDED.points,
				  order_position=EXCLUDED.order_position, case_sensitive=EXCLUDED.case_sensitive`,
				qq.ID, q.ID, string(qq.Type), qq.Question, opts, string(qq.CorrectAnswers), qq.Explanation,
				qq.Points, qq.OrderPosition, qq.CaseSensitive)
			if err != nil {
				return fmt.Errorf("put question %s: %w", qq.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	return getQuiz(ctx, s.db, id)
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return getAttempt(ctx, s.db, id, "")
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if opts.QuizID != "" {
		add("quiz_id=$%d", opts.QuizID)
	}
	if opts.UserID != "" {
		add("user_id=$%d", opts.UserID)
	}
	if opts.Status != "" {
		add("status=$%d", string(opts.Status))
	}
	q := `SELECT ` + attemptCols + ` FROM quiz_attempts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC, attempt_number DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit, opts.Offset)
		q += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListAnswers(ctx context.Context, attemptID string) ([]Answer, error) {
	return listAnswers(ctx, s.db, attemptID)
}

func (s *SQLStore) ListQuizAnswers(ctx context.Context, quizID string, status Status) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.attempt_id, a.question_id, a.answer_json, a.is_correct, a.points_earned,
		       a.points_possible, a.feedback, a.updated_at
		FROM quiz_answers a
		JOIN quiz_attempts t ON t.id = a.attempt_id
		WHERE t.quiz_id=$1 AND t.status=$2
		ORDER BY a.attempt_id, a.question_id`, quizID, string(status))
	if err != nil {
		return nil, err
	}
	return collectAnswers(rows)
}

func (s *SQLStore) ListEvents(ctx context.Context, key string) ([]syncx.Event, error) {
	return s.events.ListByKey(ctx, key)
}

// WithTx starts a transaction, runs fn, and commits if fn returns nil.
// On SQLite the DSN should carry _txlock=immediate so concurrent writers
// queue on BEGIN instead of failing on upgrade.
func (s *SQLStore) WithTx(ctx context.Context, fn func(Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&sqlTx{tx: tx, store: s}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx    *sql.Tx
	store *SQLStore
}

func (t *sqlTx) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	return getQuiz(ctx, t.tx, id)
}

func (t *sqlTx) LockAttempt(ctx context.Context, id string) (Attempt, error) {
	suffix := ""
	if t.store.postgres() {
		suffix = " FOR UPDATE"
	}
	return getAttempt(ctx, t.tx, id, suffix)
}

func (t *sqlTx) LockUserQuiz(ctx context.Context, quizID, userID string) error {
	if !t.store.postgres() {
		return nil // the immediate write lock taken on BEGIN already serializes
	}
	_, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, quizID+"|"+userID)
	return err
}

func (t *sqlTx) FindInProgress(ctx context.Context, quizID, userID string) (Attempt, bool, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM quiz_attempts
		WHERE quiz_id=$1 AND user_id=$2 AND status=$3
		ORDER BY attempt_number DESC LIMIT 1`, quizID, userID, string(StatusInProgress))
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, err
	}
	return a, true, nil
}

func (t *sqlTx) CountAttempts(ctx context.Context, quizID, userID string) (AttemptCount, error) {
	var c AttemptCount
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status <> $3 THEN 1 ELSE 0 END), 0)
		FROM quiz_attempts WHERE quiz_id=$1 AND user_id=$2`,
		quizID, userID, string(StatusInProgress)).Scan(&c.Total, &c.Terminal)
	return c, err
}

func (t *sqlTx) InsertAttempt(ctx context.Context, a Attempt) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO quiz_attempts (`+attemptCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.QuizID, a.UserID, a.AttemptNumber, string(a.Status), a.StartedAt.Unix(),
		nullableUnix(a.CompletedAt), a.Score, a.TotalPoints, a.EarnedPoints, a.IsPassed, a.TimeSpentSeconds)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert attempt %d: %w", a.AttemptNumber, ErrConflict)
	}
	return err
}

func (t *sqlTx) UpdateAttempt(ctx context.Context, a Attempt) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE quiz_attempts SET status=$1, completed_at=$2, score=$3,
		total_points=$4, earned_points=$5, is_passed=$6, time_spent_seconds=$7 WHERE id=$8`,
		string(a.Status), nullableUnix(a.CompletedAt), a.Score, a.TotalPoints, a.EarnedPoints,
		a.IsPassed, a.TimeSpentSeconds, a.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("attempt %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

func (t *sqlTx) UpsertAnswer(ctx context.Context, ans Answer) (Answer, error) {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO quiz_answers (`+answerCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (attempt_id, question_id) DO UPDATE SET answer_json=EXCLUDED.answer_json,
		  is_correct=EXCLUDED.is_correct, points_earned=EXCLUDED.points_earned,
		  points_possible=EXCLUDED.points_possible, feedback=EXCLUDED.feedback, updated_at=EXCLUDED.updated_at`,
		ans.ID, ans.AttemptID, ans.QuestionID, string(ans.Response), ans.IsCorrect, ans.PointsEarned,
		ans.PointsPossible, ans.Feedback, ans.UpdatedAt.Unix())
	if err != nil {
		return Answer{}, fmt.Errorf("upsert answer: %w", err)
	}
	row := t.tx.QueryRowContext(ctx, `SELECT `+answerCols+` FROM quiz_answers WHERE attempt_id=$1 AND question_id=$2`,
		ans.AttemptID, ans.QuestionID)
	return scanAnswer(row)
}

func (t *sqlTx) ListAnswers(ctx context.Context, attemptID string) ([]Answer, error) {
	return listAnswers(ctx, t.tx, attemptID)
}

func (t *sqlTx) AppendEvent(ctx context.Context, e syncx.Event) error {
	return t.store.events.With(t.tx).Append(ctx, e)
}

// --- shared readers ---

func getQuiz(ctx context.Context, q queryer, id string) (Quiz, error) {
	row := q.QueryRowContext(ctx, `SELECT `+quizCols+` FROM quizzes WHERE id=$1`, id)
	var (
		z             Quiz
		limit         sql.NullInt64
		from, until   sql.NullInt64
		createdAtUnix int64
	)
	err := row.Scan(&z.ID, &z.Title, &z.Description, &z.Instructions, &z.CreatedBy, &limit, &z.MaxAttempts,
		&z.PassingScore, &z.ShuffleQuestions, &z.ShowResultsImmediately, &z.AllowReview, &z.IsPublished,
		&from, &until, &createdAtUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
		}
		return Quiz{}, err
	}
	if limit.Valid {
		m := int(limit.Int64)
		z.TimeLimitMinutes = &m
	}
	z.AvailableFrom = fromNullUnix(from)
	z.AvailableUntil = fromNullUnix(until)
	z.CreatedAt = time.Unix(createdAtUnix, 0).UTC()

	rows, err := q.QueryContext(ctx, `SELECT `+questionCols+` FROM quiz_questions
		WHERE quiz_id=$1 ORDER BY order_position, id`, id)
	if err != nil {
		return Quiz{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			qq      Question
			typ     string
			opts    sql.NullString
			correct string
		)
		if err := rows.Scan(&qq.ID, &qq.QuizID, &typ, &qq.Question, &opts, &correct, &qq.Explanation,
			&qq.Points, &qq.OrderPosition, &qq.CaseSensitive); err != nil {
			return Quiz{}, err
		}
		qq.Type = grading.Type(typ)
		qq.CorrectAnswers = json.RawMessage(correct)
		if opts.Valid && opts.String != "" {
			if err := json.Unmarshal([]byte(opts.String), &qq.Options); err != nil {
				return Quiz{}, fmt.Errorf("question %s options: %w", qq.ID, err)
			}
		}
		z.Questions = append(z.Questions, qq)
	}
	return z, rows.Err()
}

func getAttempt(ctx context.Context, q queryer, id, suffix string) (Attempt, error) {
	row := q.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM quiz_attempts WHERE id=$1`+suffix, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return a, err
}

func scanAttempt(sc scanner) (Attempt, error) {
	var (
		a         Attempt
		status    string
		started   int64
		completed sql.NullInt64
		passed    sql.NullBool
		spent     sql.NullInt64
	)
	if err := sc.Scan(&a.ID, &a.QuizID, &a.UserID, &a.AttemptNumber, &status, &started, &completed,
		&a.Score, &a.TotalPoints, &a.EarnedPoints, &passed, &spent); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	a.StartedAt = time.Unix(started, 0).UTC()
	a.CompletedAt = fromNullUnix(completed)
	if passed.Valid {
		v := passed.Bool
		a.IsPassed = &v
	}
	if spent.Valid {
		v := spent.Int64
		a.TimeSpentSeconds = &v
	}
	return a, nil
}

func listAnswers(ctx context.Context, q queryer, attemptID string) ([]Answer, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+answerCols+` FROM quiz_answers WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	return collectAnswers(rows)
}

func collectAnswers(rows *sql.Rows) ([]Answer, error) {
	defer rows.Close()
	var out []Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAnswer(sc scanner) (Answer, error) {
	var (
		a       Answer
		raw     string
		correct sql.NullBool
		updated int64
	)
	if err := sc.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &raw, &correct, &a.PointsEarned,
		&a.PointsPossible, &a.Feedback, &updated); err != nil {
		return Answer{}, err
	}
	a.Response = json.RawMessage(raw)
	if correct.Valid {
		v := correct.Bool
		a.IsCorrect = &v
	}
	a.UpdatedAt = time.Unix(updated, 0).UTC()
	return a, nil
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") // sqlite
}
