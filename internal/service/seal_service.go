package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/clock"
	"github.com/stemsi/exstem-attempt/internal/metrics"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/notify"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// SealService coordinates sealing a disconnected attempt and resuming or
// auto-submitting it afterwards.
type SealService struct {
	lifecycle *AttemptService
	attempts  AttemptStore
	requests  ResumeRequestStore
	notifier  broadcaster
	clock     clock.Clock
	metrics   *metrics.Metrics
	log       zerolog.Logger

	resumeTTL time.Duration
}

// NewSealService creates a new SealService sharing the lifecycle's stores.
func NewSealService(
	lifecycle *AttemptService,
	requests ResumeRequestStore,
	pub notify.Publisher,
	resumeTTL time.Duration,
	log zerolog.Logger,
) *SealService {
	log = log.With().Str("component", "seal_service").Logger()
	if resumeTTL <= 0 {
		resumeTTL = 10 * time.Minute
	}
	return &SealService{
		lifecycle: lifecycle,
		attempts:  lifecycle.attempts,
		requests:  requests,
		notifier:  newBroadcaster(pub, lifecycle.metrics, log),
		clock:     lifecycle.clock,
		metrics:   lifecycle.metrics,
		log:       log,
		resumeTTL: resumeTTL,
	}
}

// ─── Seal ───────────────────────────────────────────────────────────

// SealInput is the client's local snapshot handed over before it goes offline.
// SealedAt is the client clock in unix milliseconds; zero means "now".
type SealInput struct {
	AttemptID           uuid.UUID
	Taker               model.Taker
	Snapshot            map[uuid.UUID]model.ResponsePayload
	SealedAt            int64
	IntegrityHash       string
	Reason              string
	TimeRemainingAtSeal *int
}

// Seal stores the snapshot on the attempt without grading it. Sealing again
// replaces the previous seal.
func (s *SealService) Seal(ctx context.Context, in SealInput) (*model.Attempt, error) {
	a, _, err := s.lifecycle.loadOwned(ctx, in.AttemptID, in.Taker)
	if err != nil {
		return nil, err
	}
	if !a.IsInProgress() {
		return nil, fmt.Errorf("%w: attempt is %s", ErrInvalidState, a.Status)
	}

	now := s.clock.Now()
	sealedAt := clampSealTime(in.SealedAt, a.StartedAt, now)

	next := a.Clone()
	next.IsSealed = true
	next.SealedAt = &sealedAt
	next.SealedHash = in.IntegrityHash
	next.SealedResponses = make(map[uuid.UUID]model.ResponsePayload, len(in.Snapshot))
	for qid, p := range in.Snapshot {
		next.SealedResponses[qid] = p.Clone()
	}
	event := model.ViolationEvent{
		Kind: model.ViolationSealed,
		At:   now,
		Seal: &model.SealDetail{
			Reason:              in.Reason,
			IntegrityHash:       in.IntegrityHash,
			ClientTimestamp:     in.SealedAt,
			TimeRemainingAtSeal: in.TimeRemainingAtSeal,
			SnapshotSize:        len(in.Snapshot),
		},
	}
	if err := s.attempts.SaveSeal(ctx, next, event); err != nil {
		return nil, storeErr(err, "seal attempt")
	}
	s.lifecycle.enqueueViolation(ctx, next, event)

	s.log.Info().
		Str("attempt_id", next.ID.String()).
		Str("reason", in.Reason).
		Int("snapshot_size", len(in.Snapshot)).
		Msg("Attempt sealed")

	s.notifier.send(ctx, notify.EventSealed, map[string]any{
		"attempt_id": next.ID,
		"reason":     in.Reason,
		"sealed_at":  sealedAt,
	}, notify.ExamRoom(next.ExamID))

	return next, nil
}

// clampSealTime converts the client timestamp and keeps it inside
// [startedAt, now] so a skewed client clock cannot move time_taken.
func clampSealTime(clientMillis int64, startedAt, now time.Time) time.Time {
	if clientMillis <= 0 {
		return now
	}
	t := time.UnixMilli(clientMillis).UTC()
	if t.Before(startedAt) {
		return startedAt
	}
	if t.After(now) {
		return now
	}
	return t
}

// AutoSubmitSealed replays the sealed snapshot and auto-submits the attempt,
// taking time_taken from the seal instead of the wall clock. Arriving after
// the deadline flags the attempt as late but still submits it.
func (s *SealService) AutoSubmitSealed(ctx context.Context, attemptID uuid.UUID, t model.Taker) (*SubmitResult, error) {
	a, exam, err := s.lifecycle.loadOwned(ctx, attemptID, t)
	if err != nil {
		return nil, err
	}
	if !a.IsSealed {
		return nil, fmt.Errorf("%w: attempt is not sealed", ErrInvalidState)
	}
	if !a.IsInProgress() {
		return s.lifecycle.submitResult(ctx, exam, a)
	}

	if err := s.replaySnapshot(ctx, exam, a); err != nil {
		return nil, err
	}

	opts := finishOptions{
		status: model.AttemptAutoSubmitted,
		reason: model.SubmitReasonSealed,
		endAt:  a.SealedAt,
		late:   lateDetail(exam, a, s.clock.Now()),
	}
	final, err := s.lifecycle.finish(ctx, exam, a, opts)
	if err != nil {
		return nil, err
	}
	if opts.late != nil {
		s.log.Warn().
			Str("attempt_id", final.ID.String()).
			Time("deadline", opts.late.Deadline).
			Msg("Sealed attempt submitted after deadline")
	}
	return s.lifecycle.submitResult(ctx, exam, final)
}

// lateDetail returns nil when now is still inside the attempt's window. The
// window ends at the time limit plus grace or the exam's end date, whichever
// comes first.
func lateDetail(exam *model.Exam, a *model.Attempt, now time.Time) *model.LateDetail {
	var end *time.Time
	if exam.IsTimed() {
		d := deadline(exam, a)
		end = &d
	}
	if exam.EndDate != nil && (end == nil || exam.EndDate.Before(*end)) {
		d := *exam.EndDate
		end = &d
	}
	if end == nil || !now.After(*end) {
		return nil
	}
	return &model.LateDetail{Deadline: *end, ReceivedAt: now}
}

// replaySnapshot writes the sealed answers through the same upsert as
// RecordResponse. Empty entries and questions outside the exam are skipped.
// Entries are applied in question id order so replays are deterministic.
func (s *SealService) replaySnapshot(ctx context.Context, exam *model.Exam, a *model.Attempt) error {
	if len(a.SealedResponses) == 0 {
		return nil
	}

	existing, err := s.lifecycle.responses.ListByAttempt(ctx, a.ID)
	if err != nil {
		return storeErr(err, "list responses")
	}
	flagged := make(map[uuid.UUID]bool, len(existing))
	for _, r := range existing {
		flagged[r.QuestionID] = r.IsFlagged
	}

	ids := make([]uuid.UUID, 0, len(a.SealedResponses))
	for qid := range a.SealedResponses {
		ids = append(ids, qid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, qid := range ids {
		payload := a.SealedResponses[qid]
		if payload.IsEmpty() {
			continue
		}
		q, ok := exam.Question(qid)
		if !ok {
			s.log.Debug().
				Str("attempt_id", a.ID.String()).
				Str("question_id", qid.String()).
				Msg("Skipping sealed answer for unknown question")
			continue
		}
		if _, err := s.lifecycle.upsertResponse(ctx, a, q, payload, flagged[qid]); err != nil {
			return err
		}
	}

	_, _, err = s.lifecycle.refreshProgress(ctx, a.ID)
	return err
}

// ─── Resume requests ────────────────────────────────────────────────

// ResumeInput is a taker's request to continue after reconnecting.
type ResumeInput struct {
	AttemptID           uuid.UUID
	Taker               model.Taker
	ClientTimeRemaining *int
	RequesterName       string
	RequesterContact    string
}

// RequestResume returns the attempt's pending request, or opens a new one
// that an instructor must approve before the given expiry.
func (s *SealService) RequestResume(ctx context.Context, in ResumeInput) (*model.ResumeRequest, error) {
	a, exam, err := s.lifecycle.loadOwned(ctx, in.AttemptID, in.Taker)
	if err != nil {
		return nil, err
	}
	if !a.IsInProgress() {
		return nil, fmt.Errorf("%w: attempt is %s", ErrInvalidState, a.Status)
	}

	pending, err := s.requests.FindPending(ctx, a.ID)
	switch {
	case err == nil:
		pending, err = s.expireIfLapsed(ctx, pending)
		if err != nil {
			return nil, err
		}
		if pending.IsPending() {
			return pending, nil
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storeErr(err, "pending resume request")
	}

	now := s.clock.Now()
	interrupted := now
	if a.SealedAt != nil {
		interrupted = *a.SealedAt
	}
	req := &model.ResumeRequest{
		ID:                  uuid.New(),
		AttemptID:           a.ID,
		ExamID:              a.ExamID,
		RequesterName:       in.RequesterName,
		RequesterContact:    in.RequesterContact,
		ClientTimeRemaining: in.ClientTimeRemaining,
		ServerTimeRemaining: s.lifecycle.TimeRemaining(exam, a),
		OriginalStartedAt:   a.StartedAt,
		InterruptedAt:       interrupted,
		Status:              model.ResumePending,
		ExpiresAt:           now.Add(s.resumeTTL),
		CreatedAt:           now,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			existing, findErr := s.requests.FindPending(ctx, a.ID)
			if findErr != nil {
				return nil, storeErr(findErr, "pending resume request")
			}
			return existing, nil
		}
		return nil, storeErr(err, "create resume request")
	}

	s.appendAttemptEvent(ctx, a.ID, model.ViolationEvent{
		Kind:   model.ViolationResumeRequested,
		At:     now,
		Resume: &model.ResumeDetail{RequestID: req.ID.String(), TimeRemaining: req.ServerTimeRemaining},
	})
	s.metrics.IncResumeRequest("requested")

	s.notifier.send(ctx, notify.EventResumeRequested, map[string]any{
		"request_id":            req.ID,
		"attempt_id":            a.ID,
		"requester_name":        req.RequesterName,
		"client_time_remaining": req.ClientTimeRemaining,
		"server_time_remaining": req.ServerTimeRemaining,
		"expires_at":            req.ExpiresAt,
	}, notify.ExamRoom(a.ExamID))

	return req, nil
}

// Approve lets the taker continue. With no time left the request expires
// instead and the taker is told so.
func (s *SealService) Approve(ctx context.Context, requestID uuid.UUID, responderID int) (*model.ResumeRequest, error) {
	req, err := s.loadPending(ctx, requestID)
	if err != nil {
		return nil, err
	}

	a, err := s.attempts.GetByID(ctx, req.AttemptID)
	if err != nil {
		return nil, storeErr(err, "attempt")
	}
	if !a.IsInProgress() {
		return nil, fmt.Errorf("%w: attempt is %s", ErrInvalidState, a.Status)
	}
	exam, err := s.lifecycle.exams.GetByID(ctx, a.ExamID)
	if err != nil {
		return nil, storeErr(err, "exam")
	}

	now := s.clock.Now()
	remaining := s.lifecycle.TimeRemaining(exam, a)
	next := req.Clone()
	next.RespondedBy = &responderID
	next.RespondedAt = &now
	next.ServerTimeRemaining = remaining

	if remaining != nil && *remaining <= 0 {
		next.Status = model.ResumeExpired
		if err := s.requests.UpdateIfPending(ctx, next); err != nil {
			return nil, storeErr(err, "expire resume request")
		}
		s.metrics.IncResumeRequest("expired")
		s.notifier.send(ctx, notify.EventResumeDeclined, map[string]any{
			"request_id": next.ID,
			"attempt_id": a.ID,
			"reason":     "time expired",
		}, notify.AttemptRoom(a.ID))
		return nil, fmt.Errorf("%w: no time left to resume", ErrExpired)
	}

	// replay and unseal first; a failure here leaves the request pending
	if err := s.replaySnapshot(ctx, exam, a); err != nil {
		return nil, err
	}
	unsealed := a.Clone()
	unsealed.IsSealed = false
	event := model.ViolationEvent{
		Kind:   model.ViolationResumeApproved,
		At:     now,
		Resume: &model.ResumeDetail{RequestID: next.ID.String(), ResponderID: &responderID, TimeRemaining: remaining},
	}
	if err := s.attempts.SaveSeal(ctx, unsealed, event); err != nil {
		return nil, storeErr(err, "unseal attempt")
	}

	next.Status = model.ResumeApproved
	if err := s.requests.UpdateIfPending(ctx, next); err != nil {
		s.reseal(ctx, a, next.ID)
		return nil, storeErr(err, "approve resume request")
	}

	s.metrics.IncResumeRequest("approved")
	s.log.Info().
		Str("request_id", next.ID.String()).
		Str("attempt_id", a.ID.String()).
		Int("responder_id", responderID).
		Msg("Resume approved")

	s.notifier.send(ctx, notify.EventResumeApproved, map[string]any{
		"request_id":             next.ID,
		"attempt_id":             a.ID,
		"time_remaining_seconds": remaining,
	}, notify.AttemptRoom(a.ID), notify.ExamRoom(a.ExamID))

	return next, nil
}

// Decline rejects a pending request.
func (s *SealService) Decline(ctx context.Context, requestID uuid.UUID, responderID int, reason string) (*model.ResumeRequest, error) {
	req, err := s.loadPending(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	next := req.Clone()
	next.Status = model.ResumeDeclined
	next.RespondedBy = &responderID
	next.RespondedAt = &now
	next.DeclineReason = reason
	if err := s.requests.UpdateIfPending(ctx, next); err != nil {
		return nil, storeErr(err, "decline resume request")
	}

	s.appendAttemptEvent(ctx, next.AttemptID, model.ViolationEvent{
		Kind:   model.ViolationResumeDeclined,
		At:     now,
		Resume: &model.ResumeDetail{RequestID: next.ID.String(), ResponderID: &responderID, Reason: reason},
	})
	s.metrics.IncResumeRequest("declined")

	s.notifier.send(ctx, notify.EventResumeDeclined, map[string]any{
		"request_id": next.ID,
		"attempt_id": next.AttemptID,
		"reason":     reason,
	}, notify.AttemptRoom(next.AttemptID))

	return next, nil
}

// ResumeRequestStatus is what a waiting taker polls.
type ResumeRequestStatus struct {
	RequestID            uuid.UUID          `json:"request_id"`
	Status               model.ResumeStatus `json:"status"`
	ExpiresAt            time.Time          `json:"expires_at"`
	TimeRemainingSeconds *int               `json:"time_remaining_seconds,omitempty"`
	DeclineReason        string             `json:"decline_reason,omitempty"`
}

// GetResumeRequestStatus reads one request for its owner, expiring it first
// when its window has passed.
func (s *SealService) GetResumeRequestStatus(ctx context.Context, requestID uuid.UUID, t model.Taker) (*ResumeRequestStatus, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, storeErr(err, "resume request")
	}
	a, exam, err := s.lifecycle.loadOwned(ctx, req.AttemptID, t)
	if err != nil {
		return nil, err
	}
	if req, err = s.expireIfLapsed(ctx, req); err != nil {
		return nil, err
	}

	out := &ResumeRequestStatus{
		RequestID:     req.ID,
		Status:        req.Status,
		ExpiresAt:     req.ExpiresAt,
		DeclineReason: req.DeclineReason,
	}
	if req.Status == model.ResumeApproved && a.IsInProgress() {
		out.TimeRemainingSeconds = s.lifecycle.TimeRemaining(exam, a)
	}
	return out, nil
}

// ListPendingResumeRequests returns the exam's open requests oldest first.
// Lapsed requests are expired on the way and left out.
func (s *SealService) ListPendingResumeRequests(ctx context.Context, examID uuid.UUID) ([]*model.ResumeRequest, error) {
	rows, err := s.requests.ListPendingByExam(ctx, examID)
	if err != nil {
		return nil, storeErr(err, "list resume requests")
	}
	out := make([]*model.ResumeRequest, 0, len(rows))
	for _, r := range rows {
		r, err := s.expireIfLapsed(ctx, r)
		if err != nil {
			return nil, err
		}
		if r.IsPending() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *SealService) loadPending(ctx context.Context, requestID uuid.UUID) (*model.ResumeRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, storeErr(err, "resume request")
	}
	if req, err = s.expireIfLapsed(ctx, req); err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, fmt.Errorf("%w: resume request is %s", ErrInvalidState, req.Status)
	}
	return req, nil
}

// expireIfLapsed flips a pending request past its expiry to expired. Losing
// the race to an instructor returns the instructor's outcome.
func (s *SealService) expireIfLapsed(ctx context.Context, req *model.ResumeRequest) (*model.ResumeRequest, error) {
	if !req.HasLapsed(s.clock.Now()) {
		return req, nil
	}
	next := req.Clone()
	next.Status = model.ResumeExpired
	if err := s.requests.UpdateIfPending(ctx, next); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			current, getErr := s.requests.GetByID(ctx, req.ID)
			if getErr != nil {
				return nil, storeErr(getErr, "resume request")
			}
			return current, nil
		}
		return nil, storeErr(err, "expire resume request")
	}
	s.metrics.IncResumeRequest("expired")
	return next, nil
}

// reseal puts the seal back after the request was answered by someone else
// between the unseal and the approval.
func (s *SealService) reseal(ctx context.Context, a *model.Attempt, requestID uuid.UUID) {
	sealed := a.Clone()
	sealed.IsSealed = true
	event := model.ViolationEvent{Kind: model.ViolationSealed, At: s.clock.Now(), Seal: &model.SealDetail{
		Reason:        "resume request " + requestID.String() + " was not approved",
		IntegrityHash: a.SealedHash,
		SnapshotSize:  len(a.SealedResponses),
	}}
	if err := s.attempts.SaveSeal(ctx, sealed, event); err != nil {
		s.log.Error().Err(err).
			Str("attempt_id", a.ID.String()).
			Str("request_id", requestID.String()).
			Msg("Failed to restore seal")
	}
}

// appendAttemptEvent adds an audit entry to an in-progress attempt. It is
// best effort: a finished attempt keeps its final log.
func (s *SealService) appendAttemptEvent(ctx context.Context, attemptID uuid.UUID, e model.ViolationEvent) {
	next, err := s.attempts.AppendEvent(ctx, attemptID, e)
	if errors.Is(err, repository.ErrStaleState) {
		return
	}
	if err != nil {
		s.log.Warn().Err(err).
			Str("attempt_id", attemptID.String()).
			Str("kind", string(e.Kind)).
			Msg("Failed to append attempt event")
		return
	}
	s.lifecycle.enqueueViolation(ctx, next, e)
}
