package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-attempt/internal/clock"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

type responseKey struct {
	attemptID  uuid.UUID
	questionID uuid.UUID
}

type ResponseStore struct {
	mu    sync.RWMutex
	clock clock.Clock
	rows  map[uuid.UUID]*model.Response
	byKey map[responseKey]uuid.UUID
	// insertion order per attempt
	order map[uuid.UUID][]uuid.UUID
}

func NewResponseStore(clk clock.Clock) *ResponseStore {
	return &ResponseStore{
		clock: clk,
		rows:  make(map[uuid.UUID]*model.Response),
		byKey: make(map[responseKey]uuid.UUID),
		order: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *ResponseStore) Upsert(_ context.Context, r *model.Response) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	key := responseKey{attemptID: r.AttemptID, questionID: r.QuestionID}

	if id, ok := s.byKey[key]; ok {
		existing := s.rows[id]
		existing.Payload = r.Payload.Clone()
		existing.IsFlagged = r.IsFlagged
		existing.MaxPoints = r.MaxPoints
		existing.RequiresManualGrading = r.RequiresManualGrading
		existing.UpdatedAt = now

		r.ID, r.CreatedAt, r.UpdatedAt = existing.ID, existing.CreatedAt, now
		return false, nil
	}

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt, r.UpdatedAt = now, now
	s.rows[r.ID] = r.Clone()
	s.byKey[key] = r.ID
	s.order[r.AttemptID] = append(s.order[r.AttemptID], r.ID)
	return true, nil
}

func (s *ResponseStore) GetByID(_ context.Context, id uuid.UUID) (*model.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *ResponseStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]*model.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order[attemptID]
	out := make([]*model.Response, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.rows[id].Clone())
	}
	return out, nil
}

func (s *ResponseStore) SaveGrades(_ context.Context, rs []*model.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rs {
		if _, ok := s.rows[r.ID]; !ok {
			return fmt.Errorf("response %s: %w", r.ID, repository.ErrNotFound)
		}
	}

	now := s.clock.Now()
	for _, r := range rs {
		existing := s.rows[r.ID]
		c := r.Clone()
		existing.IsCorrect = c.IsCorrect
		existing.PointsEarned = c.PointsEarned
		existing.MaxPoints = c.MaxPoints
		existing.RequiresManualGrading = c.RequiresManualGrading
		existing.ManuallyGraded = c.ManuallyGraded
		existing.GradedBy = c.GradedBy
		existing.Feedback = c.Feedback
		existing.GradedAt = c.GradedAt
		existing.UpdatedAt = now
	}
	return nil
}

// Count returns the number of stored rows, for tests.
func (s *ResponseStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
