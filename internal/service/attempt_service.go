package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-attempt/internal/clock"
	"github.com/stemsi/exstem-attempt/internal/grading"
	"github.com/stemsi/exstem-attempt/internal/metrics"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/notify"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// AttemptService owns attempt status transitions, time-remaining computation
// and violation counting. Expiry is evaluated lazily on every call; nothing
// here runs on a timer.
type AttemptService struct {
	exams      ExamCatalog
	attempts   AttemptStore
	responses  ResponseStore
	violations ViolationSink
	notifier   broadcaster
	clock      clock.Clock
	metrics    *metrics.Metrics
	log        zerolog.Logger

	shuffle func(n int, swap func(i, j int))
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	exams ExamCatalog,
	attempts AttemptStore,
	responses ResponseStore,
	violations ViolationSink,
	pub notify.Publisher,
	clk clock.Clock,
	m *metrics.Metrics,
	log zerolog.Logger,
) *AttemptService {
	log = log.With().Str("component", "attempt_service").Logger()
	return &AttemptService{
		exams:      exams,
		attempts:   attempts,
		responses:  responses,
		violations: violations,
		notifier:   newBroadcaster(pub, m, log),
		clock:      clk,
		metrics:    m,
		log:        log,
		shuffle:    rand.Shuffle,
	}
}

// ─── Start ──────────────────────────────────────────────────────────

// StartInput carries a start request. ClassID is the student's class from
// the token and is only consulted for class-restricted exams.
type StartInput struct {
	ExamID   uuid.UUID
	Taker    model.Taker
	ClassID  *int
	Password string
}

// StartResult is what a taker needs to render the exam.
type StartResult struct {
	Attempt              *model.Attempt           `json:"attempt"`
	Questions            []model.QuestionForTaker `json:"questions"`
	TimeRemainingSeconds *int                     `json:"time_remaining_seconds"`
	Resumed              bool                     `json:"resumed"`
}

// Start opens a new attempt or resumes the taker's in-progress one.
func (s *AttemptService) Start(ctx context.Context, in StartInput) (*StartResult, error) {
	if err := in.Taker.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	}

	exam, err := s.exams.GetByID(ctx, in.ExamID)
	if err != nil {
		return nil, storeErr(err, "exam")
	}
	if err := s.checkEligibility(exam, in); err != nil {
		return nil, err
	}

	// An existing attempt is resumed before the limit check so a taker on
	// their last allowed attempt can still get back into it.
	existing, err := s.attempts.FindInProgress(ctx, exam.ID, in.Taker)
	switch {
	case err == nil:
		a, err := s.ReconcileStaleAttempt(ctx, exam, existing)
		if err != nil {
			return nil, err
		}
		return s.startResult(exam, a, true), nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storeErr(err, "in-progress attempt")
	}

	prior, err := s.attempts.CountByTaker(ctx, exam.ID, in.Taker)
	if err != nil {
		return nil, storeErr(err, "attempt count")
	}
	if exam.MaxAttempts > 0 && prior >= exam.MaxAttempts {
		return nil, fmt.Errorf("%w: %d of %d used", ErrLimitReached, prior, exam.MaxAttempts)
	}

	now := s.clock.Now()
	a := &model.Attempt{
		ID:            uuid.New(),
		ExamID:        exam.ID,
		Taker:         in.Taker,
		AttemptNumber: prior + 1,
		Status:        model.AttemptInProgress,
		StartedAt:     now,
		PassStatus:    model.PassStatusPending,
		ViolationLog:  []model.ViolationEvent{},
		QuestionOrder: s.materializeQuestionOrder(exam),
		OptionOrder:   s.materializeOptionOrder(exam),
	}

	if err := s.attempts.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// A concurrent start won; hand back its attempt.
			winner, findErr := s.attempts.FindInProgress(ctx, exam.ID, in.Taker)
			if findErr == nil {
				return s.startResult(exam, winner, true), nil
			}
			return nil, fmt.Errorf("%w: attempt %d already exists", ErrInvalidState, a.AttemptNumber)
		}
		return nil, storeErr(err, "create attempt")
	}

	s.metrics.IncAttemptStarted(string(in.Taker.Kind))
	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("exam_id", exam.ID.String()).
		Str("taker", in.Taker.Key()).
		Int("attempt_number", a.AttemptNumber).
		Msg("Attempt started")

	s.notifier.send(ctx, notify.EventStarted, map[string]any{
		"attempt_id":     a.ID,
		"taker":          a.Taker,
		"attempt_number": a.AttemptNumber,
		"started_at":     a.StartedAt,
	}, notify.ExamRoom(exam.ID))

	return s.startResult(exam, a, false), nil
}

func (s *AttemptService) checkEligibility(exam *model.Exam, in StartInput) error {
	if exam.Status != model.ExamStatusPublished {
		return fmt.Errorf("%w: exam is %s", ErrInvalidState, exam.Status)
	}

	switch in.Taker.Kind {
	case model.TakerGuest:
		if !exam.AllowGuests {
			return fmt.Errorf("%w: exam does not admit guests", ErrForbidden)
		}
	case model.TakerStudent:
		if exam.ClassID != nil && (in.ClassID == nil || *in.ClassID != *exam.ClassID) {
			return fmt.Errorf("%w: exam is restricted to another class", ErrForbidden)
		}
	}

	now := s.clock.Now()
	if exam.StartDate != nil && now.Before(*exam.StartDate) {
		return fmt.Errorf("%w: opens at %s", ErrOutOfWindow, exam.StartDate.Format(time.RFC3339))
	}
	if exam.EndDate != nil && now.After(*exam.EndDate) {
		return fmt.Errorf("%w: closed at %s", ErrOutOfWindow, exam.EndDate.Format(time.RFC3339))
	}

	if exam.RequiresPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(exam.AccessPasswordHash), []byte(in.Password)); err != nil {
			return fmt.Errorf("%w: wrong access password", ErrForbidden)
		}
	}
	return nil
}

func (s *AttemptService) startResult(exam *model.Exam, a *model.Attempt, resumed bool) *StartResult {
	return &StartResult{
		Attempt:              a,
		Questions:            questionsForTaker(exam, a),
		TimeRemainingSeconds: s.TimeRemaining(exam, a),
		Resumed:              resumed,
	}
}

// materializeQuestionOrder fixes the question order once at start.
func (s *AttemptService) materializeQuestionOrder(exam *model.Exam) []uuid.UUID {
	ids := orderedQuestionIDs(exam)
	if exam.RandomizeQuestions {
		s.shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}
	return ids
}

// materializeOptionOrder shuffles each choice question's options independently
// of the question order. Returns nil when options are not randomized.
func (s *AttemptService) materializeOptionOrder(exam *model.Exam) map[uuid.UUID][]int64 {
	if !exam.RandomizeOptions {
		return nil
	}
	out := make(map[uuid.UUID][]int64)
	for _, q := range exam.Questions {
		if !q.IsChoice() || len(q.Options) < 2 {
			continue
		}
		ids := make([]int64, len(q.Options))
		for i, o := range q.Options {
			ids[i] = o.ID
		}
		s.shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		out[q.ID] = ids
	}
	return out
}

// ReconcileStaleAttempt auto-submits an in-progress attempt whose time limit
// lapsed while nobody touched it. A fresh attempt is returned unchanged; an
// expired one comes back as the final attempt wrapped in *ExpiredError.
func (s *AttemptService) ReconcileStaleAttempt(ctx context.Context, exam *model.Exam, a *model.Attempt) (*model.Attempt, error) {
	if !a.IsInProgress() || !s.isExpired(exam, a) {
		return a, nil
	}
	final, err := s.finish(ctx, exam, a, finishOptions{
		status: model.AttemptAutoSubmitted,
		reason: model.SubmitReasonTimeLimit,
	})
	if err != nil {
		return nil, err
	}
	return final, &ExpiredError{Attempt: final}
}

// ─── Time ───────────────────────────────────────────────────────────

// TimeRemaining returns nil for untimed exams, otherwise the seconds left
// before the time limit, clamped at zero. Grace is not included.
func (s *AttemptService) TimeRemaining(exam *model.Exam, a *model.Attempt) *int {
	if !exam.IsTimed() {
		return nil
	}
	remaining := int(exam.TimeLimit().Seconds()) - elapsedSeconds(s.clock.Now(), a.StartedAt)
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// isExpired reports whether now is at or past the limit plus grace.
func (s *AttemptService) isExpired(exam *model.Exam, a *model.Attempt) bool {
	if !exam.IsTimed() {
		return false
	}
	return !s.clock.Now().Before(deadline(exam, a))
}

func deadline(exam *model.Exam, a *model.Attempt) time.Time {
	return a.StartedAt.Add(exam.TimeLimit() + exam.Grace())
}

func elapsedSeconds(now, since time.Time) int {
	d := now.Sub(since)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// ─── Responses ──────────────────────────────────────────────────────

// RecordInput is one answer from the taker.
type RecordInput struct {
	AttemptID  uuid.UUID
	Taker      model.Taker
	QuestionID uuid.UUID
	Payload    model.ResponsePayload
	IsFlagged  bool
}

// RecordResponse upserts the answer for one question. After expiry the
// attempt is auto-submitted instead and *ExpiredError is returned.
func (s *AttemptService) RecordResponse(ctx context.Context, in RecordInput) (*model.Response, error) {
	a, exam, err := s.loadOwned(ctx, in.AttemptID, in.Taker)
	if err != nil {
		return nil, err
	}
	if !a.IsInProgress() {
		return nil, fmt.Errorf("%w: attempt is %s", ErrInvalidState, a.Status)
	}
	if _, err := s.ReconcileStaleAttempt(ctx, exam, a); err != nil {
		return nil, err
	}

	q, ok := exam.Question(in.QuestionID)
	if !ok {
		return nil, fmt.Errorf("%w: question %s is not part of this exam", ErrNotFound, in.QuestionID)
	}

	resp, err := s.upsertResponse(ctx, a, q, in.Payload, in.IsFlagged)
	if err != nil {
		return nil, err
	}
	answered, flagged, err := s.refreshProgress(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	s.notifier.send(ctx, notify.EventResponseSaved, map[string]any{
		"attempt_id":         a.ID,
		"question_id":        q.ID,
		"questions_answered": answered,
		"questions_flagged":  flagged,
	}, notify.ExamRoom(a.ExamID))

	return resp, nil
}

// upsertResponse writes the raw answer. Grading columns are filled at submit.
func (s *AttemptService) upsertResponse(ctx context.Context, a *model.Attempt, q *model.Question, p model.ResponsePayload, flagged bool) (*model.Response, error) {
	resp := &model.Response{
		AttemptID:             a.ID,
		QuestionID:            q.ID,
		Payload:               p.Clone(),
		IsFlagged:             flagged,
		MaxPoints:             q.Points,
		RequiresManualGrading: q.NeedsManualGrading(),
	}
	if _, err := s.responses.Upsert(ctx, resp); err != nil {
		return nil, storeErr(err, "save response")
	}
	return resp, nil
}

// refreshProgress recomputes the answered and flagged counters from stored
// rows so retries never double count.
func (s *AttemptService) refreshProgress(ctx context.Context, attemptID uuid.UUID) (int, int, error) {
	rows, err := s.responses.ListByAttempt(ctx, attemptID)
	if err != nil {
		return 0, 0, storeErr(err, "list responses")
	}
	answered, flagged := 0, 0
	for _, r := range rows {
		if !r.Payload.IsEmpty() {
			answered++
		}
		if r.IsFlagged {
			flagged++
		}
	}
	if err := s.attempts.UpdateProgress(ctx, attemptID, answered, flagged); err != nil {
		return 0, 0, storeErr(err, "update progress")
	}
	return answered, flagged, nil
}

// ─── Tab switches ───────────────────────────────────────────────────

// TabSwitchResult reports the counter after a tab switch.
type TabSwitchResult struct {
	TabSwitches    int            `json:"tab_switches"`
	MaxTabSwitches int            `json:"max_tab_switches"`
	AutoSubmitted  bool           `json:"auto_submitted"`
	Attempt        *model.Attempt `json:"attempt,omitempty"`
}

// LogTabSwitch counts a tab switch. It is a no-op once the attempt left
// in_progress. Reaching the exam's threshold auto-submits the attempt.
func (s *AttemptService) LogTabSwitch(ctx context.Context, attemptID uuid.UUID, t model.Taker, currentQuestionID string) (*TabSwitchResult, error) {
	a, exam, err := s.loadOwned(ctx, attemptID, t)
	if err != nil {
		return nil, err
	}
	result := &TabSwitchResult{TabSwitches: a.TabSwitches, MaxTabSwitches: exam.MaxTabSwitches}
	if !a.IsInProgress() {
		return result, nil
	}
	if _, err := s.ReconcileStaleAttempt(ctx, exam, a); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	next, err := s.attempts.RecordTabSwitch(ctx, a.ID, now, currentQuestionID)
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return result, nil
		}
		return nil, storeErr(err, "log tab switch")
	}
	s.enqueueViolation(ctx, next, model.NewTabSwitchEvent(now, next.TabSwitches, currentQuestionID))
	result.TabSwitches = next.TabSwitches

	s.notifier.send(ctx, notify.EventTabSwitch, map[string]any{
		"attempt_id":       next.ID,
		"tab_switches":     next.TabSwitches,
		"max_tab_switches": exam.MaxTabSwitches,
	}, notify.ExamRoom(next.ExamID))

	if exam.DetectTabSwitch && exam.MaxTabSwitches > 0 && next.TabSwitches >= exam.MaxTabSwitches {
		final, err := s.finish(ctx, exam, next, finishOptions{
			status: model.AttemptAutoSubmitted,
			reason: model.SubmitReasonTabSwitch,
		})
		if err != nil {
			return nil, err
		}
		result.AutoSubmitted = true
		result.Attempt = final
	}
	return result, nil
}

func (s *AttemptService) enqueueViolation(ctx context.Context, a *model.Attempt, e model.ViolationEvent) {
	if s.violations == nil {
		return
	}
	rec := model.ViolationRecord{AttemptID: a.ID.String(), ExamID: a.ExamID.String(), Event: e}
	if err := s.violations.Enqueue(ctx, rec); err != nil {
		s.log.Warn().Err(err).
			Str("attempt_id", a.ID.String()).
			Str("kind", string(e.Kind)).
			Msg("Failed to queue violation event")
	}
}

// ─── Submit ─────────────────────────────────────────────────────────

// SubmitResult is the final attempt plus the score view when visible.
type SubmitResult struct {
	Attempt *model.Attempt `json:"attempt"`
	Result  *AttemptResult `json:"result,omitempty"`
}

// Submit ends the attempt on the taker's request. Submitting an attempt that
// already left in_progress succeeds without changing anything. Past the
// deadline the attempt is closed as a time-limit auto-submit.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, t model.Taker) (*SubmitResult, error) {
	a, exam, err := s.loadOwned(ctx, attemptID, t)
	if err != nil {
		return nil, err
	}

	final := a
	if a.IsInProgress() {
		opts := finishOptions{status: model.AttemptSubmitted, reason: model.SubmitReasonTaker}
		if s.isExpired(exam, a) {
			opts = finishOptions{status: model.AttemptAutoSubmitted, reason: model.SubmitReasonTimeLimit}
		}
		if final, err = s.finish(ctx, exam, a, opts); err != nil {
			return nil, err
		}
	}
	return s.submitResult(ctx, exam, final)
}

// AutoSubmit closes an attempt on the system's behalf. It is idempotent.
func (s *AttemptService) AutoSubmit(ctx context.Context, attemptID uuid.UUID, reason model.SubmitReason) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, storeErr(err, "attempt")
	}
	if !a.IsInProgress() {
		return a, nil
	}
	exam, err := s.exams.GetByID(ctx, a.ExamID)
	if err != nil {
		return nil, storeErr(err, "exam")
	}
	return s.finish(ctx, exam, a, finishOptions{status: model.AttemptAutoSubmitted, reason: reason})
}

func (s *AttemptService) submitResult(ctx context.Context, exam *model.Exam, a *model.Attempt) (*SubmitResult, error) {
	out := &SubmitResult{Attempt: a}
	if !exam.ShowResultsImmediately {
		return out, nil
	}
	rows, err := s.responses.ListByAttempt(ctx, a.ID)
	if err != nil {
		return nil, storeErr(err, "list responses")
	}
	out.Result = buildResult(exam, a, rows)
	return out, nil
}

type finishOptions struct {
	status model.AttemptStatus
	reason model.SubmitReason
	// endAt overrides "now" as the end of the attempt for time_taken.
	endAt *time.Time
	late  *model.LateDetail
}

// finish grades every response and moves the attempt out of in_progress with
// a compare-and-set. Losing the race returns the winner's attempt.
func (s *AttemptService) finish(ctx context.Context, exam *model.Exam, a *model.Attempt, opts finishOptions) (*model.Attempt, error) {
	now := s.clock.Now()

	rows, err := s.gradeAll(ctx, exam, a)
	if err != nil {
		return nil, err
	}
	summary := grading.Summarize(rows, exam.PassPercentage)

	next := a.Clone()
	next.Status = opts.status
	next.SubmitReason = opts.reason
	next.SubmittedAt = &now

	end := now
	if opts.endAt != nil {
		end = *opts.endAt
	}
	taken := elapsedSeconds(end, next.StartedAt)
	next.TimeTakenSeconds = &taken

	applySummary(next, summary)
	next.QuestionsAnswered = summary.AnsweredCount
	next.QuestionsFlagged = summary.FlaggedCount
	if summary.PendingManual == 0 {
		next.Status = model.AttemptGraded
		next.GradedAt = &now
	}

	var events []model.ViolationEvent
	if opts.status == model.AttemptAutoSubmitted {
		events = append(events, model.NewAutoSubmitEvent(now, opts.reason))
	}
	if opts.late != nil {
		next.IsLateSubmission = true
		events = append(events, model.ViolationEvent{Kind: model.ViolationLateSubmission, At: now, Late: opts.late})
	}

	if err := s.attempts.UpdateIfStatus(ctx, next, model.AttemptInProgress, events...); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			winner, getErr := s.attempts.GetByID(ctx, a.ID)
			if getErr != nil {
				return nil, storeErr(getErr, "attempt")
			}
			return winner, nil
		}
		return nil, storeErr(err, "submit attempt")
	}

	s.metrics.IncSubmission(string(next.Status), string(opts.reason))
	s.log.Info().
		Str("attempt_id", next.ID.String()).
		Str("exam_id", next.ExamID.String()).
		Str("status", string(next.Status)).
		Str("reason", string(opts.reason)).
		Float64("score", next.TotalScore).
		Msg("Attempt submitted")

	s.notifier.send(ctx, notify.EventSubmitted, map[string]any{
		"attempt_id":   next.ID,
		"status":       next.Status,
		"reason":       next.SubmitReason,
		"total_score":  next.TotalScore,
		"max_score":    next.MaxScore,
		"percentage":   next.Percentage,
		"submitted_at": next.SubmittedAt,
	}, notify.ExamRoom(next.ExamID), notify.AttemptRoom(next.ID))

	return next, nil
}

// gradeAll grades every question of the exam for the attempt. Unanswered
// questions get a blank row so max_score covers the whole exam. A blank
// choice or fill-blank answer is wrong; a blank essay or short answer still
// waits for a grader like any other.
func (s *AttemptService) gradeAll(ctx context.Context, exam *model.Exam, a *model.Attempt) ([]*model.Response, error) {
	existing, err := s.responses.ListByAttempt(ctx, a.ID)
	if err != nil {
		return nil, storeErr(err, "list responses")
	}
	byQuestion := make(map[uuid.UUID]*model.Response, len(existing))
	for _, r := range existing {
		byQuestion[r.QuestionID] = r
	}

	rows := make([]*model.Response, 0, len(exam.Questions))
	for i := range exam.Questions {
		q := &exam.Questions[i]
		r, ok := byQuestion[q.ID]
		if !ok {
			r = &model.Response{AttemptID: a.ID, QuestionID: q.ID, MaxPoints: q.Points}
			if _, err := s.responses.Upsert(ctx, r); err != nil {
				return nil, storeErr(err, "materialize response")
			}
		}

		r.MaxPoints = q.Points
		if r.Payload.IsEmpty() && !q.NeedsManualGrading() {
			r.IsCorrect = boolPtr(false)
			r.PointsEarned = 0
			r.RequiresManualGrading = false
		} else {
			res := grading.Grade(q, r.Payload)
			r.IsCorrect = res.IsCorrect
			r.PointsEarned = res.PointsEarned
			r.RequiresManualGrading = res.RequiresManualGrading
		}
		rows = append(rows, r)
	}

	if err := s.responses.SaveGrades(ctx, rows); err != nil {
		return nil, storeErr(err, "save grades")
	}
	return rows, nil
}

func applySummary(a *model.Attempt, sum grading.Summary) {
	a.TotalScore = sum.TotalScore
	a.MaxScore = sum.MaxScore
	a.Percentage = sum.Percentage
	a.Grade = sum.Grade
	switch {
	case sum.PendingManual > 0:
		a.PassStatus = model.PassStatusPending
	case sum.Passed:
		a.PassStatus = model.PassStatusPassed
	default:
		a.PassStatus = model.PassStatusFailed
	}
}

// ─── Reads ──────────────────────────────────────────────────────────

// AttemptState is everything a taker needs to rebuild the exam page.
type AttemptState struct {
	Attempt              *model.Attempt           `json:"attempt"`
	Questions            []model.QuestionForTaker `json:"questions"`
	Responses            []*model.Response        `json:"responses"`
	TimeRemainingSeconds *int                     `json:"time_remaining_seconds"`
	Result               *AttemptResult           `json:"result,omitempty"`
}

// GetAttemptState returns the attempt with its stored question order and
// responses. An expired attempt is auto-submitted first.
func (s *AttemptService) GetAttemptState(ctx context.Context, attemptID uuid.UUID, t model.Taker) (*AttemptState, error) {
	a, exam, err := s.loadOwned(ctx, attemptID, t)
	if err != nil {
		return nil, err
	}
	a, err = s.ReconcileStaleAttempt(ctx, exam, a)
	var expired *ExpiredError
	if err != nil && !errors.As(err, &expired) {
		return nil, err
	}

	rows, err := s.responses.ListByAttempt(ctx, a.ID)
	if err != nil {
		return nil, storeErr(err, "list responses")
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })

	state := &AttemptState{
		Attempt:   a,
		Questions: questionsForTaker(exam, a),
		Responses: rows,
	}
	if a.IsInProgress() {
		state.TimeRemainingSeconds = s.TimeRemaining(exam, a)
		// grading output stays hidden while the attempt is open
		for _, r := range rows {
			r.IsCorrect = nil
			r.PointsEarned = 0
		}
	} else {
		state.Result = buildResult(exam, a, rows)
		if state.Result == nil {
			for _, r := range rows {
				r.IsCorrect = nil
				r.PointsEarned = 0
			}
		}
	}
	return state, nil
}

// loadOwned loads an attempt, its exam, and checks the caller owns it.
func (s *AttemptService) loadOwned(ctx context.Context, attemptID uuid.UUID, t model.Taker) (*model.Attempt, *model.Exam, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, nil, storeErr(err, "attempt")
	}
	if !a.BelongsTo(t) {
		return nil, nil, fmt.Errorf("%w: attempt belongs to another taker", ErrForbidden)
	}
	exam, err := s.exams.GetByID(ctx, a.ExamID)
	if err != nil {
		return nil, nil, storeErr(err, "exam")
	}
	return a, exam, nil
}

func boolPtr(b bool) *bool {
	return &b
}
