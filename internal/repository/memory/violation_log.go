package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// ViolationLog stands in for both the Redis queue and the attempt_violations
// table: enqueued records are immediately visible to the monitor.
type ViolationLog struct {
	mu      sync.Mutex
	records []model.ViolationRecord
}

func NewViolationLog() *ViolationLog {
	return &ViolationLog{}
}

func (l *ViolationLog) Enqueue(_ context.Context, rec model.ViolationRecord) error {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
	return nil
}

// Records returns a copy of everything enqueued.
func (l *ViolationLog) Records() []model.ViolationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.ViolationRecord(nil), l.records...)
}

// Monitor answers the live monitor queries from the in-memory stores.
type Monitor struct {
	attempts   *AttemptStore
	violations *ViolationLog
}

func NewMonitor(attempts *AttemptStore, violations *ViolationLog) *Monitor {
	return &Monitor{attempts: attempts, violations: violations}
}

func (m *Monitor) GetInProgress(ctx context.Context, examID uuid.UUID) ([]repository.AttemptProgress, error) {
	attempts, err := m.attempts.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	var out []repository.AttemptProgress
	for _, a := range attempts {
		if !a.IsInProgress() {
			continue
		}
		out = append(out, repository.AttemptProgress{
			AttemptID:         a.ID,
			QuestionsAnswered: a.QuestionsAnswered,
			TabSwitches:       a.TabSwitches,
			IsSealed:          a.IsSealed,
		})
	}
	return out, nil
}

func (m *Monitor) GetViolationCounts(_ context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64)
	for _, rec := range m.violations.Records() {
		if rec.ExamID != examID.String() {
			continue
		}
		id, err := uuid.Parse(rec.AttemptID)
		if err != nil {
			continue
		}
		counts[id]++
	}
	return counts, nil
}
