package service

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-attempt/internal/clock"
	"github.com/stemsi/exstem-attempt/internal/grading"
	"github.com/stemsi/exstem-attempt/internal/metrics"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/notify"
)

// GradingService handles instructor grading after submission.
type GradingService struct {
	exams     ExamCatalog
	attempts  AttemptStore
	responses ResponseStore
	notifier  broadcaster
	clock     clock.Clock
	metrics   *metrics.Metrics
	log       zerolog.Logger

	correctThreshold float64
	concurrency      int
}

// NewGradingService creates a new GradingService. correctThreshold is the
// fraction of max points at which a manual grade counts as correct.
func NewGradingService(
	exams ExamCatalog,
	attempts AttemptStore,
	responses ResponseStore,
	pub notify.Publisher,
	clk clock.Clock,
	m *metrics.Metrics,
	correctThreshold float64,
	concurrency int,
	log zerolog.Logger,
) *GradingService {
	log = log.With().Str("component", "grading_service").Logger()
	if correctThreshold <= 0 || correctThreshold > 1 {
		correctThreshold = 0.5
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &GradingService{
		exams:            exams,
		attempts:         attempts,
		responses:        responses,
		notifier:         newBroadcaster(pub, m, log),
		clock:            clk,
		metrics:          m,
		log:              log,
		correctThreshold: correctThreshold,
		concurrency:      concurrency,
	}
}

// GradeInput is one manual grade.
type GradeInput struct {
	ResponseID   uuid.UUID
	PointsEarned float64
	Feedback     string
	GraderID     int
}

// GradeResponseManually scores one response and recalculates its attempt.
func (s *GradingService) GradeResponseManually(ctx context.Context, in GradeInput) (*model.Response, error) {
	r, err := s.responses.GetByID(ctx, in.ResponseID)
	if err != nil {
		return nil, storeErr(err, "response")
	}
	a, err := s.gradableAttempt(ctx, r.AttemptID)
	if err != nil {
		return nil, err
	}

	graded, err := s.applyGrade(ctx, r, in)
	if err != nil {
		return nil, err
	}
	if _, err := s.RecalculateAttemptScore(ctx, a.ID); err != nil {
		return nil, err
	}

	s.notifyGraded(ctx, a, graded)
	return graded, nil
}

// GradeResponsesBulk grades many responses. Responses of the same attempt are
// graded in order and followed by a single recalculation; different attempts
// run concurrently.
func (s *GradingService) GradeResponsesBulk(ctx context.Context, items []GradeInput) ([]*model.Response, error) {
	type job struct {
		index int
		input GradeInput
		row   *model.Response
	}

	byAttempt := make(map[uuid.UUID][]job)
	var order []uuid.UUID
	for i, in := range items {
		r, err := s.responses.GetByID(ctx, in.ResponseID)
		if err != nil {
			return nil, storeErr(err, fmt.Sprintf("response %s", in.ResponseID))
		}
		if _, ok := byAttempt[r.AttemptID]; !ok {
			order = append(order, r.AttemptID)
		}
		byAttempt[r.AttemptID] = append(byAttempt[r.AttemptID], job{index: i, input: in, row: r})
	}

	out := make([]*model.Response, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, attemptID := range order {
		jobs := byAttempt[attemptID]
		g.Go(func() error {
			a, err := s.gradableAttempt(gctx, attemptID)
			if err != nil {
				return err
			}
			for _, j := range jobs {
				graded, err := s.applyGrade(gctx, j.row, j.input)
				if err != nil {
					return err
				}
				// each goroutine owns distinct indexes
				out[j.index] = graded
			}
			if _, err := s.RecalculateAttemptScore(gctx, attemptID); err != nil {
				return err
			}
			for _, j := range jobs {
				s.notifyGraded(gctx, a, out[j.index])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.log.Info().Int("responses", len(items)).Int("attempts", len(order)).Msg("Bulk grading complete")
	return out, nil
}

// gradableAttempt loads an attempt that accepts manual grades: submitted but
// not yet graded.
func (s *GradingService) gradableAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, storeErr(err, "attempt")
	}
	switch a.Status {
	case model.AttemptInProgress:
		return nil, fmt.Errorf("%w: attempt is still in progress", ErrInvalidState)
	case model.AttemptGraded:
		return nil, fmt.Errorf("%w: attempt is already graded", ErrInvalidState)
	}
	return a, nil
}

func (s *GradingService) applyGrade(ctx context.Context, r *model.Response, in GradeInput) (*model.Response, error) {
	now := s.clock.Now()
	points := grading.Round2(math.Min(math.Max(in.PointsEarned, 0), r.MaxPoints))
	correct := points >= s.correctThreshold*r.MaxPoints
	grader := in.GraderID

	next := r.Clone()
	next.PointsEarned = points
	next.IsCorrect = &correct
	next.ManuallyGraded = true
	next.GradedBy = &grader
	next.GradedAt = &now
	next.Feedback = in.Feedback

	if err := s.responses.SaveGrades(ctx, []*model.Response{next}); err != nil {
		return nil, storeErr(err, "save grade")
	}
	s.metrics.IncManualGrading()
	return next, nil
}

func (s *GradingService) notifyGraded(ctx context.Context, a *model.Attempt, r *model.Response) {
	s.notifier.send(ctx, notify.EventResponseGraded, map[string]any{
		"attempt_id":    a.ID,
		"response_id":   r.ID,
		"question_id":   r.QuestionID,
		"points_earned": r.PointsEarned,
		"max_points":    r.MaxPoints,
		"is_correct":    r.IsCorrect,
	}, notify.ExamRoom(a.ExamID), notify.AttemptRoom(a.ID))
}

// RecalculateAttemptScore recomputes the attempt totals from its responses and
// promotes it to graded once nothing awaits manual grading.
func (s *GradingService) RecalculateAttemptScore(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, storeErr(err, "attempt")
	}
	switch a.Status {
	case model.AttemptInProgress:
		return nil, fmt.Errorf("%w: attempt is still in progress", ErrInvalidState)
	case model.AttemptGraded:
		return a, nil
	}

	sum, err := s.summarize(ctx, a)
	if err != nil {
		return nil, err
	}

	next := a.Clone()
	applySummary(next, sum)
	if sum.PendingManual == 0 {
		now := s.clock.Now()
		next.Status = model.AttemptGraded
		next.GradedAt = &now
	}
	if err := s.attempts.UpdateIfStatus(ctx, next, a.Status); err != nil {
		return nil, storeErr(err, "recalculate attempt")
	}

	s.log.Debug().
		Str("attempt_id", a.ID.String()).
		Float64("total_score", next.TotalScore).
		Int("pending_manual", sum.PendingManual).
		Msg("Attempt score recalculated")
	return next, nil
}

// Finalize closes grading for an attempt. Once graded only the instructor
// feedback can still change.
func (s *GradingService) Finalize(ctx context.Context, attemptID uuid.UUID, feedback string, graderID int) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, storeErr(err, "attempt")
	}
	if a.IsInProgress() {
		return nil, fmt.Errorf("%w: attempt is still in progress", ErrInvalidState)
	}

	now := s.clock.Now()
	next := a.Clone()
	next.InstructorFeedback = feedback

	if a.Status == model.AttemptGraded {
		if next.GradedBy == nil {
			next.GradedBy = &graderID
		}
	} else {
		sum, err := s.summarize(ctx, a)
		if err != nil {
			return nil, err
		}
		if sum.PendingManual > 0 {
			return nil, fmt.Errorf("%w: %d response(s) left", ErrPendingGrading, sum.PendingManual)
		}
		applySummary(next, sum)
		next.Status = model.AttemptGraded
		next.GradedBy = &graderID
		next.GradedAt = &now
	}

	if err := s.attempts.UpdateIfStatus(ctx, next, a.Status); err != nil {
		return nil, storeErr(err, "finalize attempt")
	}

	s.log.Info().
		Str("attempt_id", next.ID.String()).
		Int("graded_by", graderID).
		Float64("total_score", next.TotalScore).
		Msg("Attempt grading finalized")

	s.notifier.send(ctx, notify.EventAttemptFinalized, map[string]any{
		"attempt_id":  next.ID,
		"total_score": next.TotalScore,
		"max_score":   next.MaxScore,
		"percentage":  next.Percentage,
		"grade":       next.Grade,
		"pass_status": next.PassStatus,
		"graded_at":   next.GradedAt,
	}, notify.ExamRoom(next.ExamID), notify.AttemptRoom(next.ID))

	return next, nil
}

func (s *GradingService) summarize(ctx context.Context, a *model.Attempt) (grading.Summary, error) {
	exam, err := s.exams.GetByID(ctx, a.ExamID)
	if err != nil {
		return grading.Summary{}, storeErr(err, "exam")
	}
	rows, err := s.responses.ListByAttempt(ctx, a.ID)
	if err != nil {
		return grading.Summary{}, storeErr(err, "list responses")
	}
	return grading.Summarize(rows, exam.PassPercentage), nil
}
