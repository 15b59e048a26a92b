package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

type ResumeRequestStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*model.ResumeRequest
}

func NewResumeRequestStore() *ResumeRequestStore {
	return &ResumeRequestStore{rows: make(map[uuid.UUID]*model.ResumeRequest)}
}

func (s *ResumeRequestStore) Create(_ context.Context, r *model.ResumeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.IsPending() {
		for _, existing := range s.rows {
			if existing.AttemptID == r.AttemptID && existing.IsPending() {
				return repository.ErrConflict
			}
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	s.rows[r.ID] = r.Clone()
	return nil
}

func (s *ResumeRequestStore) GetByID(_ context.Context, id uuid.UUID) (*model.ResumeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *ResumeRequestStore) FindPending(_ context.Context, attemptID uuid.UUID) (*model.ResumeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rows {
		if r.AttemptID == attemptID && r.IsPending() {
			return r.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *ResumeRequestStore) ListPendingByExam(_ context.Context, examID uuid.UUID) ([]*model.ResumeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.ResumeRequest
	for _, r := range s.rows {
		if r.ExamID == examID && r.IsPending() {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *ResumeRequestStore) UpdateIfPending(_ context.Context, r *model.ResumeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rows[r.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if !current.IsPending() {
		return repository.ErrStaleState
	}

	c := r.Clone()
	current.Status = c.Status
	current.ServerTimeRemaining = c.ServerTimeRemaining
	current.RespondedBy = c.RespondedBy
	current.RespondedAt = c.RespondedAt
	current.DeclineReason = c.DeclineReason
	return nil
}
