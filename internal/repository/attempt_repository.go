package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-attempt/internal/model"
)

const attemptColumns = `id, exam_id, student_id, guest_id, attempt_number, status, submit_reason,
	started_at, submitted_at, time_taken_seconds, total_score, max_score, percentage, grade,
	pass_status, questions_answered, questions_flagged, tab_switches, violation_log,
	is_late_submission, is_sealed, sealed_at, sealed_hash, sealed_responses, question_order,
	option_order, graded_by, graded_at, instructor_feedback, created_at, updated_at`

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new attempt. The partial unique indexes reject a second
// in_progress attempt or a duplicate attempt number with ErrConflict.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	studentID, guestID := a.Taker.Columns()

	cols, err := encodeAttemptJSON(a)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (id, exam_id, student_id, guest_id, attempt_number, status,
		                            started_at, pass_status, violation_log, question_order, option_order)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		a.ID, a.ExamID, studentID, guestID, a.AttemptNumber, a.Status,
		a.StartedAt, a.PassStatus, cols.violationLog, cols.questionOrder, cols.optionOrder,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return translate(err)
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id)
	a, err := scanAttempt(row)
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// FindInProgress returns the taker's in_progress attempt for the exam, or ErrNotFound.
func (r *AttemptRepository) FindInProgress(ctx context.Context, examID uuid.UUID, t model.Taker) (*model.Attempt, error) {
	clause, arg := takerClause(t, 2)
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE exam_id = $1 AND `+clause+` AND status = 'in_progress'`,
		examID, arg,
	)
	a, err := scanAttempt(row)
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// CountByTaker returns how many attempts the taker has made at the exam.
func (r *AttemptRepository) CountByTaker(ctx context.Context, examID uuid.UUID, t model.Taker) (int, error) {
	clause, arg := takerClause(t, 2)
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts WHERE exam_id = $1 AND `+clause,
		examID, arg,
	).Scan(&n)
	return n, err
}

// ListByExam returns every attempt at an exam, most recent first.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]*model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE exam_id = $1 ORDER BY started_at DESC`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateIfStatus writes the lifecycle, score and grading columns of a while the
// stored row still has status expected, and appends events to violation_log.
// tab_switches and the seal columns are owned by RecordTabSwitch and SaveSeal.
// On success a is refreshed from the stored row. Losing the race yields
// ErrStaleState.
func (r *AttemptRepository) UpdateIfStatus(ctx context.Context, a *model.Attempt, expected model.AttemptStatus, events ...model.ViolationEvent) error {
	appended, err := encodeEvents(events...)
	if err != nil {
		return err
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE exam_attempts SET
		    status = $3, submit_reason = $4, submitted_at = $5, time_taken_seconds = $6,
		    total_score = $7, max_score = $8, percentage = $9, grade = $10, pass_status = $11,
		    questions_answered = $12, questions_flagged = $13, is_late_submission = $14,
		    graded_by = $15, graded_at = $16, instructor_feedback = $17,
		    violation_log = violation_log || $18::jsonb, updated_at = NOW()
		 WHERE id = $1 AND status = $2
		 RETURNING `+attemptColumns,
		a.ID, expected,
		a.Status, a.SubmitReason, a.SubmittedAt, a.TimeTakenSeconds,
		a.TotalScore, a.MaxScore, a.Percentage, a.Grade, a.PassStatus,
		a.QuestionsAnswered, a.QuestionsFlagged, a.IsLateSubmission,
		a.GradedBy, a.GradedAt, a.InstructorFeedback,
		appended,
	)
	return r.refresh(ctx, a, row)
}

// RecordTabSwitch increments tab_switches and appends the matching tab_switch
// event in one statement, so concurrent switches never share a count. Only an
// in_progress attempt is touched; otherwise the result is ErrStaleState.
func (r *AttemptRepository) RecordTabSwitch(ctx context.Context, id uuid.UUID, at time.Time, questionID string) (*model.Attempt, error) {
	event, err := json.Marshal(model.NewTabSwitchEvent(at, 0, questionID))
	if err != nil {
		return nil, fmt.Errorf("encode tab switch event: %w", err)
	}

	// the right-hand tab_switches is the pre-update value
	row := r.pool.QueryRow(ctx,
		`UPDATE exam_attempts SET
		    tab_switches = tab_switches + 1,
		    violation_log = violation_log || jsonb_build_array(
		        jsonb_set($2::jsonb, '{tab_switch,count}', to_jsonb(tab_switches + 1))),
		    updated_at = NOW()
		 WHERE id = $1 AND status = 'in_progress'
		 RETURNING `+attemptColumns,
		id, event,
	)
	a := &model.Attempt{ID: id}
	if err := r.refresh(ctx, a, row); err != nil {
		return nil, err
	}
	return a, nil
}

// SaveSeal writes the seal columns of a (is_sealed, sealed_at, sealed_hash and
// sealed_responses) and appends event, leaving the counters alone. It serves
// both sealing and unsealing an in_progress attempt.
func (r *AttemptRepository) SaveSeal(ctx context.Context, a *model.Attempt, event model.ViolationEvent) error {
	cols, err := encodeAttemptJSON(a)
	if err != nil {
		return err
	}
	appended, err := encodeEvents(event)
	if err != nil {
		return err
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE exam_attempts SET
		    is_sealed = $2, sealed_at = $3, sealed_hash = $4, sealed_responses = $5,
		    violation_log = violation_log || $6::jsonb, updated_at = NOW()
		 WHERE id = $1 AND status = 'in_progress'
		 RETURNING `+attemptColumns,
		a.ID, a.IsSealed, a.SealedAt, a.SealedHash, cols.sealedResponses, appended,
	)
	return r.refresh(ctx, a, row)
}

// AppendEvent adds one entry to the violation_log of an in_progress attempt.
func (r *AttemptRepository) AppendEvent(ctx context.Context, id uuid.UUID, event model.ViolationEvent) (*model.Attempt, error) {
	appended, err := encodeEvents(event)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE exam_attempts SET violation_log = violation_log || $2::jsonb, updated_at = NOW()
		 WHERE id = $1 AND status = 'in_progress'
		 RETURNING `+attemptColumns,
		id, appended,
	)
	a := &model.Attempt{ID: id}
	if err := r.refresh(ctx, a, row); err != nil {
		return nil, err
	}
	return a, nil
}

// refresh scans the RETURNING row of a guarded UPDATE into a. No row means
// the guard failed, which is ErrNotFound or ErrStaleState.
func (r *AttemptRepository) refresh(ctx context.Context, a *model.Attempt, row pgx.Row) error {
	fresh, err := scanAttempt(row)
	if err == nil {
		*a = *fresh
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM exam_attempts WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleState
}

// UpdateProgress stores the answered/flagged counters recomputed from response rows.
func (r *AttemptRepository) UpdateProgress(ctx context.Context, id uuid.UUID, answered, flagged int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts SET questions_answered = $2, questions_flagged = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, answered, flagged,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────

// takerClause renders the taker filter for placeholder $n.
func takerClause(t model.Taker, n int) (string, any) {
	if t.Kind == model.TakerGuest {
		return fmt.Sprintf("guest_id = $%d", n), t.GuestID
	}
	return fmt.Sprintf("student_id = $%d", n), t.StudentID
}

type attemptJSON struct {
	violationLog    []byte
	sealedResponses []byte
	questionOrder   []byte
	optionOrder     []byte
}

// encodeEvents renders events as a JSON array for a jsonb || append.
func encodeEvents(events ...model.ViolationEvent) ([]byte, error) {
	if events == nil {
		events = []model.ViolationEvent{}
	}
	out, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("encode violation events: %w", err)
	}
	return out, nil
}

func encodeAttemptJSON(a *model.Attempt) (attemptJSON, error) {
	var out attemptJSON
	var err error

	log := a.ViolationLog
	if log == nil {
		log = []model.ViolationEvent{}
	}
	if out.violationLog, err = json.Marshal(log); err != nil {
		return out, fmt.Errorf("encode violation_log: %w", err)
	}

	order := a.QuestionOrder
	if order == nil {
		order = []uuid.UUID{}
	}
	if out.questionOrder, err = json.Marshal(order); err != nil {
		return out, fmt.Errorf("encode question_order: %w", err)
	}

	// nil []byte binds as SQL NULL
	if a.SealedResponses != nil {
		if out.sealedResponses, err = json.Marshal(a.SealedResponses); err != nil {
			return out, fmt.Errorf("encode sealed_responses: %w", err)
		}
	}
	if a.OptionOrder != nil {
		if out.optionOrder, err = json.Marshal(a.OptionOrder); err != nil {
			return out, fmt.Errorf("encode option_order: %w", err)
		}
	}
	return out, nil
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	var (
		a                        model.Attempt
		studentID                *int
		guestID                  *string
		log, sealed, order, opts []byte
		submittedAt, sealedAt    *time.Time
	)
	err := row.Scan(
		&a.ID, &a.ExamID, &studentID, &guestID, &a.AttemptNumber, &a.Status, &a.SubmitReason,
		&a.StartedAt, &submittedAt, &a.TimeTakenSeconds, &a.TotalScore, &a.MaxScore, &a.Percentage, &a.Grade,
		&a.PassStatus, &a.QuestionsAnswered, &a.QuestionsFlagged, &a.TabSwitches, &log,
		&a.IsLateSubmission, &a.IsSealed, &sealedAt, &a.SealedHash, &sealed, &order,
		&opts, &a.GradedBy, &a.GradedAt, &a.InstructorFeedback, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Taker = model.TakerFromColumns(studentID, guestID)
	a.SubmittedAt = submittedAt
	a.SealedAt = sealedAt

	if len(log) > 0 {
		if err := json.Unmarshal(log, &a.ViolationLog); err != nil {
			return nil, fmt.Errorf("decode violation_log: %w", err)
		}
	}
	if len(sealed) > 0 {
		if err := json.Unmarshal(sealed, &a.SealedResponses); err != nil {
			return nil, fmt.Errorf("decode sealed_responses: %w", err)
		}
	}
	if len(order) > 0 {
		if err := json.Unmarshal(order, &a.QuestionOrder); err != nil {
			return nil, fmt.Errorf("decode question_order: %w", err)
		}
	}
	if len(opts) > 0 {
		if err := json.Unmarshal(opts, &a.OptionOrder); err != nil {
			return nil, fmt.Errorf("decode option_order: %w", err)
		}
	}
	return &a, nil
}
