package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MonitorService orchestrates live exam monitoring.
type MonitorService struct {
	source MonitorSource
	log    zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(source MonitorSource, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		source: source,
		log:    log.With().Str("component", "monitor_service").Logger(),
	}
}

// AttemptSnapshot is one in-progress attempt as the instructor sees it.
type AttemptSnapshot struct {
	AttemptID         uuid.UUID `json:"attempt_id"`
	QuestionsAnswered int       `json:"questions_answered"`
	TabSwitches       int       `json:"tab_switches"`
	IsSealed          bool      `json:"is_sealed"`
	Violations        int64     `json:"violations"`
}

// ProgressSnapshot is the periodic refresh pushed to the monitor stream.
type ProgressSnapshot struct {
	Attempts        []AttemptSnapshot `json:"attempts"`
	TotalViolations int64             `json:"total_violations"`
}

// GetProgress fetches in-progress attempts and violation counts concurrently.
// Progress is required; violation counts are best effort.
func (s *MonitorService) GetProgress(ctx context.Context, examID uuid.UUID) (*ProgressSnapshot, error) {
	var (
		counts   map[uuid.UUID]int64
		countErr error
	)

	g, gctx := errgroup.WithContext(ctx)

	snapshot := &ProgressSnapshot{Attempts: []AttemptSnapshot{}}
	g.Go(func() error {
		rows, err := s.source.GetInProgress(gctx, examID)
		if err != nil {
			return err
		}
		for _, r := range rows {
			snapshot.Attempts = append(snapshot.Attempts, AttemptSnapshot{
				AttemptID:         r.AttemptID,
				QuestionsAnswered: r.QuestionsAnswered,
				TabSwitches:       r.TabSwitches,
				IsSealed:          r.IsSealed,
			})
		}
		return nil
	})
	g.Go(func() error {
		counts, countErr = s.source.GetViolationCounts(gctx, examID)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if countErr != nil {
		s.log.Warn().Err(countErr).Str("exam_id", examID.String()).Msg("Violation counts unavailable")
		return snapshot, nil
	}
	for i := range snapshot.Attempts {
		snapshot.Attempts[i].Violations = counts[snapshot.Attempts[i].AttemptID]
	}
	for _, n := range counts {
		snapshot.TotalViolations += n
	}
	return snapshot, nil
}
