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

// ViolationRepository writes violation records to attempt_violations.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

var violationColumns = []string{"attempt_id", "exam_id", "kind", "detail", "occurred_at"}

// CopyViolations bulk-inserts the batch with COPY. Any malformed record fails
// the whole batch.
func (r *ViolationRepository) CopyViolations(ctx context.Context, recs []model.ViolationRecord) error {
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		row, err := violationRow(rec)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	_, err := r.pool.CopyFrom(ctx, pgx.Identifier{"attempt_violations"}, violationColumns, pgx.CopyFromRows(rows))
	return err
}

// InsertViolation writes a single record.
func (r *ViolationRepository) InsertViolation(ctx context.Context, rec model.ViolationRecord) error {
	row, err := violationRow(rec)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempt_violations (attempt_id, exam_id, kind, detail, occurred_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		row...,
	)
	return err
}

func violationRow(rec model.ViolationRecord) ([]any, error) {
	attemptID, err := uuid.Parse(rec.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("attempt id %q: %w", rec.AttemptID, err)
	}
	examID, err := uuid.Parse(rec.ExamID)
	if err != nil {
		return nil, fmt.Errorf("exam id %q: %w", rec.ExamID, err)
	}
	detail, err := json.Marshal(rec.Event)
	if err != nil {
		return nil, fmt.Errorf("encode detail: %w", err)
	}
	return []any{attemptID, examID, string(rec.Event.Kind), string(detail), rec.Event.At}, nil
}
