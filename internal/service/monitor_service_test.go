package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

type MonitorServiceSuite struct {
	lifecycleSuite
}

func TestMonitorServiceSuite(t *testing.T) {
	suite.Run(t, new(MonitorServiceSuite))
}

func (s *MonitorServiceSuite) TestGetProgress() {
	a := s.start(model.StudentTaker(1))
	b := s.start(model.StudentTaker(2))
	done := s.start(model.StudentTaker(3))

	s.answer(a, s.fx.single, opt(3))
	s.answer(a, s.fx.multi, opts(11))
	for i := 0; i < 2; i++ {
		_, err := s.lifecycle.LogTabSwitch(s.ctx, b.ID, b.Taker, "")
		s.Require().NoError(err)
	}
	_, err := s.lifecycle.Submit(s.ctx, done.ID, done.Taker)
	s.Require().NoError(err)

	snap, err := s.monitor.GetProgress(s.ctx, s.fx.exam.ID)
	s.Require().NoError(err)
	s.Len(snap.Attempts, 2)
	s.Equal(int64(2), snap.TotalViolations)

	byID := make(map[uuid.UUID]AttemptSnapshot)
	for _, row := range snap.Attempts {
		byID[row.AttemptID] = row
	}
	s.Equal(2, byID[a.ID].QuestionsAnswered)
	s.Equal(2, byID[b.ID].TabSwitches)
	s.Equal(int64(2), byID[b.ID].Violations)
}

type stubMonitorSource struct {
	progress    []repository.AttemptProgress
	progressErr error
	countsErr   error
}

func (s stubMonitorSource) GetInProgress(context.Context, uuid.UUID) ([]repository.AttemptProgress, error) {
	return s.progress, s.progressErr
}

func (s stubMonitorSource) GetViolationCounts(context.Context, uuid.UUID) (map[uuid.UUID]int64, error) {
	if s.countsErr != nil {
		return nil, s.countsErr
	}
	out := make(map[uuid.UUID]int64)
	for _, p := range s.progress {
		out[p.AttemptID] = 1
	}
	return out, nil
}

func TestMonitorService_ViolationCountsAreBestEffort(t *testing.T) {
	id := uuid.New()
	svc := NewMonitorService(stubMonitorSource{
		progress:  []repository.AttemptProgress{{AttemptID: id, QuestionsAnswered: 4}},
		countsErr: errors.New("table missing"),
	}, zerolog.Nop())

	snap, err := svc.GetProgress(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, snap.Attempts, 1)
	assert.Equal(t, 4, snap.Attempts[0].QuestionsAnswered)
	assert.Zero(t, snap.TotalViolations)
}

func TestMonitorService_ProgressErrorFails(t *testing.T) {
	svc := NewMonitorService(stubMonitorSource{progressErr: errors.New("db down")}, zerolog.Nop())

	_, err := svc.GetProgress(context.Background(), uuid.New())
	assert.Error(t, err)
}
