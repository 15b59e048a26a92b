package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-attempt/internal/model"
)

const resumeRequestColumns = `id, attempt_id, exam_id, requester_name, requester_contact,
	client_time_remaining, server_time_remaining, original_started_at, interrupted_at, status,
	expires_at, responded_by, responded_at, decline_reason, created_at`

// ResumeRequestRepository handles resume request data access.
type ResumeRequestRepository struct {
	pool *pgxpool.Pool
}

// NewResumeRequestRepository creates a new ResumeRequestRepository.
func NewResumeRequestRepository(pool *pgxpool.Pool) *ResumeRequestRepository {
	return &ResumeRequestRepository{pool: pool}
}

// Create inserts a request. A second pending request for the same attempt
// violates uq_resume_requests_pending and returns ErrConflict.
func (r *ResumeRequestRepository) Create(ctx context.Context, req *model.ResumeRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO resume_requests (id, attempt_id, exam_id, requester_name, requester_contact,
		                              client_time_remaining, server_time_remaining, original_started_at,
		                              interrupted_at, status, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at`,
		req.ID, req.AttemptID, req.ExamID, req.RequesterName, req.RequesterContact,
		req.ClientTimeRemaining, req.ServerTimeRemaining, req.OriginalStartedAt,
		req.InterruptedAt, req.Status, req.ExpiresAt, req.CreatedAt,
	).Scan(&req.CreatedAt)
	return translate(err)
}

// GetByID retrieves a request by its UUID.
func (r *ResumeRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ResumeRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+resumeRequestColumns+` FROM resume_requests WHERE id = $1`, id)
	req, err := scanResumeRequest(row)
	if err != nil {
		return nil, translate(err)
	}
	return req, nil
}

// FindPending returns the attempt's pending request, or ErrNotFound.
func (r *ResumeRequestRepository) FindPending(ctx context.Context, attemptID uuid.UUID) (*model.ResumeRequest, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+resumeRequestColumns+` FROM resume_requests
		 WHERE attempt_id = $1 AND status = 'pending'`,
		attemptID,
	)
	req, err := scanResumeRequest(row)
	if err != nil {
		return nil, translate(err)
	}
	return req, nil
}

// ListPendingByExam returns pending requests for an exam, oldest first.
func (r *ResumeRequestRepository) ListPendingByExam(ctx context.Context, examID uuid.UUID) ([]*model.ResumeRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+resumeRequestColumns+` FROM resume_requests
		 WHERE exam_id = $1 AND status = 'pending'
		 ORDER BY created_at`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ResumeRequest
	for rows.Next() {
		req, err := scanResumeRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// UpdateIfPending stores a terminal transition. Returns ErrStaleState if the
// request already left pending.
func (r *ResumeRequestRepository) UpdateIfPending(ctx context.Context, req *model.ResumeRequest) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE resume_requests SET
		    status = $2, server_time_remaining = $3, responded_by = $4,
		    responded_at = $5, decline_reason = $6
		 WHERE id = $1 AND status = 'pending'`,
		req.ID, req.Status, req.ServerTimeRemaining, req.RespondedBy,
		req.RespondedAt, req.DeclineReason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

func scanResumeRequest(row pgx.Row) (*model.ResumeRequest, error) {
	var req model.ResumeRequest
	err := row.Scan(
		&req.ID, &req.AttemptID, &req.ExamID, &req.RequesterName, &req.RequesterContact,
		&req.ClientTimeRemaining, &req.ServerTimeRemaining, &req.OriginalStartedAt, &req.InterruptedAt, &req.Status,
		&req.ExpiresAt, &req.RespondedBy, &req.RespondedAt, &req.DeclineReason, &req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
