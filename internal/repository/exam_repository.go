package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// ExamRepository reads exam definitions. Authoring lives in another service,
// so apart from the access password this repository never writes.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam together with its ordered questions.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, status, class_id, allow_guests, start_date, end_date,
		        has_time_limit, time_limit_minutes, grace_period_seconds, max_attempts,
		        pass_percentage, access_password_hash, randomize_questions, randomize_options,
		        detect_tab_switch, max_tab_switches, show_results_immediately, show_correct_answers
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Status, &e.ClassID, &e.AllowGuests, &e.StartDate, &e.EndDate,
		&e.HasTimeLimit, &e.TimeLimitMinutes, &e.GracePeriodSeconds, &e.MaxAttempts,
		&e.PassPercentage, &e.AccessPasswordHash, &e.RandomizeQuestions, &e.RandomizeOptions,
		&e.DetectTabSwitch, &e.MaxTabSwitches, &e.ShowResultsImmediately, &e.ShowCorrectAnswers)
	if err != nil {
		return nil, translate(err)
	}

	questions, err := r.listQuestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	e.Questions = questions
	return e, nil
}

func (r *ExamRepository) listQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, type, text, points, requires_manual_grading, allow_partial_credit,
		        case_sensitive, options, correct_answers, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num, id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			q       model.Question
			options []byte
		)
		if err := rows.Scan(&q.ID, &q.Type, &q.Text, &q.Points, &q.RequiresManualGrading,
			&q.AllowPartialCredit, &q.CaseSensitive, &options, &q.CorrectAnswers, &q.OrderNum); err != nil {
			return nil, err
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &q.Options); err != nil {
				return nil, fmt.Errorf("decode options of %s: %w", q.ID, err)
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListPublishedIDs returns the ids of all published exams.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublishedIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exams WHERE status = $1 ORDER BY created_at DESC`,
		model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetAccessPasswordHash stores a bcrypt hash; an empty hash removes the password.
func (r *ExamRepository) SetAccessPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET access_password_hash = $1, updated_at = NOW() WHERE id = $2`,
		hash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
