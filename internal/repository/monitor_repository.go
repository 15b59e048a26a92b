package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptProgress is the live monitor's view of one in-progress attempt.
type AttemptProgress struct {
	AttemptID         uuid.UUID
	QuestionsAnswered int
	TabSwitches       int
	IsSealed          bool
}

// MonitorRepository provides data access for the live exam monitoring feature.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetInProgress returns progress counters for every in_progress attempt of the exam.
func (r *MonitorRepository) GetInProgress(ctx context.Context, examID uuid.UUID) ([]AttemptProgress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, questions_answered, tab_switches, is_sealed
		 FROM exam_attempts
		 WHERE exam_id = $1 AND status = 'in_progress'`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptProgress
	for rows.Next() {
		var p AttemptProgress
		if err := rows.Scan(&p.AttemptID, &p.QuestionsAnswered, &p.TabSwitches, &p.IsSealed); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetViolationCounts returns the number of persisted violation events per attempt.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, COUNT(*)
		 FROM attempt_violations
		 WHERE exam_id = $1
		 GROUP BY attempt_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}
