package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-attempt/internal/model"
)

const responseColumns = `id, attempt_id, question_id, payload, is_flagged, is_correct, points_earned,
	max_points, requires_manual_grading, manually_graded, graded_by, feedback, graded_at,
	created_at, updated_at`

// ResponseRepository handles per-question response rows.
type ResponseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{pool: pool}
}

// Upsert writes the answer keyed by (attempt, question). Grading columns are
// left alone on update. created reports whether a new row was inserted.
func (r *ResponseRepository) Upsert(ctx context.Context, resp *model.Response) (bool, error) {
	payload, err := json.Marshal(resp.Payload)
	if err != nil {
		return false, fmt.Errorf("encode payload: %w", err)
	}
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}

	var created bool
	err = r.pool.QueryRow(ctx,
		`INSERT INTO attempt_responses (id, attempt_id, question_id, payload, is_flagged,
		                                max_points, requires_manual_grading)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE SET
		    payload = EXCLUDED.payload,
		    is_flagged = EXCLUDED.is_flagged,
		    max_points = EXCLUDED.max_points,
		    requires_manual_grading = EXCLUDED.requires_manual_grading,
		    updated_at = NOW()
		 RETURNING id, created_at, updated_at, (xmax = 0)`,
		resp.ID, resp.AttemptID, resp.QuestionID, payload, resp.IsFlagged,
		resp.MaxPoints, resp.RequiresManualGrading,
	).Scan(&resp.ID, &resp.CreatedAt, &resp.UpdatedAt, &created)
	if err != nil {
		return false, translate(err)
	}
	return created, nil
}

// GetByID retrieves a response by its UUID.
func (r *ResponseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Response, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+responseColumns+` FROM attempt_responses WHERE id = $1`, id)
	resp, err := scanResponse(row)
	if err != nil {
		return nil, translate(err)
	}
	return resp, nil
}

// ListByAttempt returns every response row of an attempt in creation order.
func (r *ResponseRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]*model.Response, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+responseColumns+` FROM attempt_responses
		 WHERE attempt_id = $1 ORDER BY created_at, id`,
		attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

// SaveGrades persists the grading columns of every row in one batch.
func (r *ResponseRepository) SaveGrades(ctx context.Context, rs []*model.Response) error {
	if len(rs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, resp := range rs {
		batch.Queue(
			`UPDATE attempt_responses SET
			    is_correct = $2, points_earned = $3, max_points = $4,
			    requires_manual_grading = $5, manually_graded = $6, graded_by = $7,
			    feedback = $8, graded_at = $9, updated_at = NOW()
			 WHERE id = $1`,
			resp.ID, resp.IsCorrect, resp.PointsEarned, resp.MaxPoints,
			resp.RequiresManualGrading, resp.ManuallyGraded, resp.GradedBy,
			resp.Feedback, resp.GradedAt,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, resp := range rs {
		tag, err := br.Exec()
		if err != nil {
			return fmt.Errorf("save grade for response %s: %w", resp.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("response %s: %w", resp.ID, ErrNotFound)
		}
	}
	return nil
}

func scanResponse(row pgx.Row) (*model.Response, error) {
	var (
		resp    model.Response
		payload []byte
	)
	err := row.Scan(
		&resp.ID, &resp.AttemptID, &resp.QuestionID, &payload, &resp.IsFlagged, &resp.IsCorrect,
		&resp.PointsEarned, &resp.MaxPoints, &resp.RequiresManualGrading, &resp.ManuallyGraded,
		&resp.GradedBy, &resp.Feedback, &resp.GradedAt, &resp.CreatedAt, &resp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &resp.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return &resp, nil
}
