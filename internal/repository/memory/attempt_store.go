// Package memory holds in-process implementations of the storage interfaces.
// They back STORAGE_DRIVER=memory and the service tests, and enforce the same
// uniqueness rules as the Postgres schema.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-attempt/internal/clock"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

type AttemptStore struct {
	mu    sync.RWMutex
	clock clock.Clock
	rows  map[uuid.UUID]*model.Attempt
}

func NewAttemptStore(clk clock.Clock) *AttemptStore {
	return &AttemptStore{clock: clk, rows: make(map[uuid.UUID]*model.Attempt)}
}

func (s *AttemptStore) Create(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rows {
		if existing.ExamID != a.ExamID || existing.Taker != a.Taker {
			continue
		}
		if existing.AttemptNumber == a.AttemptNumber {
			return repository.ErrConflict
		}
		if existing.IsInProgress() && a.IsInProgress() {
			return repository.ErrConflict
		}
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := s.clock.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.rows[a.ID] = a.Clone()
	return nil
}

func (s *AttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *AttemptStore) FindInProgress(_ context.Context, examID uuid.UUID, t model.Taker) (*model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.rows {
		if a.ExamID == examID && a.Taker == t && a.IsInProgress() {
			return a.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *AttemptStore) CountByTaker(_ context.Context, examID uuid.UUID, t model.Taker) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.rows {
		if a.ExamID == examID && a.Taker == t {
			n++
		}
	}
	return n, nil
}

func (s *AttemptStore) ListByExam(_ context.Context, examID uuid.UUID) ([]*model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Attempt
	for _, a := range s.rows {
		if a.ExamID == examID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *AttemptStore) UpdateIfStatus(_ context.Context, a *model.Attempt, expected model.AttemptStatus, events ...model.ViolationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.guarded(a.ID, expected)
	if err != nil {
		return err
	}

	// identity, start, tab and seal columns are not written here
	next := current.Clone()
	next.Status = a.Status
	next.SubmitReason = a.SubmitReason
	next.SubmittedAt = a.SubmittedAt
	next.TimeTakenSeconds = a.TimeTakenSeconds
	next.TotalScore = a.TotalScore
	next.MaxScore = a.MaxScore
	next.Percentage = a.Percentage
	next.Grade = a.Grade
	next.PassStatus = a.PassStatus
	next.QuestionsAnswered = a.QuestionsAnswered
	next.QuestionsFlagged = a.QuestionsFlagged
	next.IsLateSubmission = a.IsLateSubmission
	next.GradedBy = a.GradedBy
	next.GradedAt = a.GradedAt
	next.InstructorFeedback = a.InstructorFeedback
	for _, e := range events {
		next.AppendEvent(e)
	}
	next.UpdatedAt = s.clock.Now()

	s.rows[a.ID] = next.Clone()
	*a = *next
	return nil
}

func (s *AttemptStore) RecordTabSwitch(_ context.Context, id uuid.UUID, at time.Time, questionID string) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.guarded(id, model.AttemptInProgress)
	if err != nil {
		return nil, err
	}
	current.TabSwitches++
	current.AppendEvent(model.NewTabSwitchEvent(at, current.TabSwitches, questionID))
	current.UpdatedAt = s.clock.Now()
	return current.Clone(), nil
}

func (s *AttemptStore) SaveSeal(_ context.Context, a *model.Attempt, event model.ViolationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.guarded(a.ID, model.AttemptInProgress)
	if err != nil {
		return err
	}
	sealed := a.Clone()
	current.IsSealed = sealed.IsSealed
	current.SealedAt = sealed.SealedAt
	current.SealedHash = sealed.SealedHash
	current.SealedResponses = sealed.SealedResponses
	current.AppendEvent(event)
	current.UpdatedAt = s.clock.Now()

	*a = *current.Clone()
	return nil
}

func (s *AttemptStore) AppendEvent(_ context.Context, id uuid.UUID, event model.ViolationEvent) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.guarded(id, model.AttemptInProgress)
	if err != nil {
		return nil, err
	}
	current.AppendEvent(event)
	current.UpdatedAt = s.clock.Now()
	return current.Clone(), nil
}

// guarded returns the stored row itself. Callers must hold mu.
func (s *AttemptStore) guarded(id uuid.UUID, expected model.AttemptStatus) (*model.Attempt, error) {
	current, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if current.Status != expected {
		return nil, repository.ErrStaleState
	}
	return current, nil
}

func (s *AttemptStore) UpdateProgress(_ context.Context, id uuid.UUID, answered, flagged int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.QuestionsAnswered = answered
	a.QuestionsFlagged = flagged
	a.UpdatedAt = s.clock.Now()
	return nil
}
