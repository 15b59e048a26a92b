package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// ExamCatalog supplies read-only exam definitions.
type ExamCatalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// AttemptStore persists attempts. UpdateIfStatus is a compare-and-set on
// status and returns repository.ErrStaleState when the row moved on. The
// tab counter, the seal columns and the violation log each have their own
// column-scoped write so concurrent writers never overwrite one another.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	FindInProgress(ctx context.Context, examID uuid.UUID, t model.Taker) (*model.Attempt, error)
	CountByTaker(ctx context.Context, examID uuid.UUID, t model.Taker) (int, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]*model.Attempt, error)
	UpdateIfStatus(ctx context.Context, a *model.Attempt, expected model.AttemptStatus, events ...model.ViolationEvent) error
	RecordTabSwitch(ctx context.Context, id uuid.UUID, at time.Time, questionID string) (*model.Attempt, error)
	SaveSeal(ctx context.Context, a *model.Attempt, event model.ViolationEvent) error
	AppendEvent(ctx context.Context, id uuid.UUID, event model.ViolationEvent) (*model.Attempt, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, answered, flagged int) error
}

// ResponseStore persists one row per (attempt, question).
type ResponseStore interface {
	Upsert(ctx context.Context, r *model.Response) (created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Response, error)
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]*model.Response, error)
	SaveGrades(ctx context.Context, rs []*model.Response) error
}

// ResumeRequestStore persists resume requests. At most one pending per attempt.
type ResumeRequestStore interface {
	Create(ctx context.Context, r *model.ResumeRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ResumeRequest, error)
	FindPending(ctx context.Context, attemptID uuid.UUID) (*model.ResumeRequest, error)
	ListPendingByExam(ctx context.Context, examID uuid.UUID) ([]*model.ResumeRequest, error)
	UpdateIfPending(ctx context.Context, r *model.ResumeRequest) error
}

// ViolationSink receives violation events for the live monitor.
type ViolationSink interface {
	Enqueue(ctx context.Context, rec model.ViolationRecord) error
}

// MonitorSource answers live progress queries.
type MonitorSource interface {
	GetInProgress(ctx context.Context, examID uuid.UUID) ([]repository.AttemptProgress, error)
	GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[uuid.UUID]int64, error)
}

var (
	_ ExamCatalog        = (*repository.ExamRepository)(nil)
	_ ExamCatalog        = (*repository.CachedExamRepository)(nil)
	_ AttemptStore       = (*repository.AttemptRepository)(nil)
	_ ResponseStore      = (*repository.ResponseRepository)(nil)
	_ ResumeRequestStore = (*repository.ResumeRequestRepository)(nil)
	_ ViolationSink      = (*repository.ViolationQueue)(nil)
	_ MonitorSource      = (*repository.MonitorRepository)(nil)
)
