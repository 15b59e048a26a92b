package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/notify"
)

type AttemptServiceSuite struct {
	lifecycleSuite
}

func TestAttemptServiceSuite(t *testing.T) {
	suite.Run(t, new(AttemptServiceSuite))
}

// ─── Start ──────────────────────────────────────────────────────────

func (s *AttemptServiceSuite) TestStart_CreatesAttempt() {
	res, err := s.lifecycle.Start(s.ctx, StartInput{ExamID: s.fx.exam.ID, Taker: s.student})
	s.Require().NoError(err)

	a := res.Attempt
	s.Equal(model.AttemptInProgress, a.Status)
	s.Equal(1, a.AttemptNumber)
	s.Equal(t0, a.StartedAt)
	s.Equal(model.PassStatusPending, a.PassStatus)
	s.False(res.Resumed)
	s.Equal([]uuid.UUID{s.fx.single, s.fx.multi, s.fx.fillBlank, s.fx.essay}, a.QuestionOrder)
	s.Require().NotNil(res.TimeRemainingSeconds)
	s.Equal(30*60, *res.TimeRemainingSeconds)

	s.Require().Len(res.Questions, 4)
	s.Equal(1, res.Questions[0].Position)
	s.Len(res.Questions[0].Options, 3)

	s.Len(s.recorder.Find(notify.ExamRoom(s.fx.exam.ID), notify.EventStarted), 1)
}

func (s *AttemptServiceSuite) TestStart_ResumesInProgressAttempt() {
	first := s.start(s.student)
	s.clock.Advance(5 * time.Minute)

	res, err := s.lifecycle.Start(s.ctx, StartInput{ExamID: s.fx.exam.ID, Taker: s.student})
	s.Require().NoError(err)
	s.True(res.Resumed)
	s.Equal(first.ID, res.Attempt.ID)
	s.Equal(first.QuestionOrder, res.Attempt.QuestionOrder)
	s.Equal(25*60, *res.TimeRemainingSeconds)

	n, err := s.attempts.CountByTaker(s.ctx, s.fx.exam.ID, s.student)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *AttemptServiceSuite) TestStart_ExpiredAttemptIsAutoSubmitted() {
	first := s.start(s.student)
	s.clock.Advance(31 * time.Minute)

	_, err := s.lifecycle.Start(s.ctx, StartInput{ExamID: s.fx.exam.ID, Taker: s.student})
	s.Require().ErrorIs(err, ErrExpired)

	var expired *ExpiredError
	s.Require().True(errors.As(err, &expired))
	s.Equal(first.ID, expired.Attempt.ID)
	s.Equal(model.SubmitReasonTimeLimit, expired.Attempt.SubmitReason)
	s.NotEqual(model.AttemptInProgress, s.reload(first.ID).Status)

	// the next start opens attempt number two
	second := s.start(s.student)
	s.NotEqual(first.ID, second.ID)
	s.Equal(2, second.AttemptNumber)
}

func (s *AttemptServiceSuite) TestStart_LimitReached() {
	s.useExam(newExamFixture(func(e *model.Exam) { e.MaxAttempts = 1 }))
	a := s.start(s.student)
	_, err := s.lifecycle.Submit(s.ctx, a.ID, s.student)
	s.Require().NoError(err)

	_, err = s.lifecycle.Start(s.ctx, StartInput{ExamID: s.fx.exam.ID, Taker: s.student})
	s.ErrorIs(err, ErrLimitReached)
}

func (s *AttemptServiceSuite) TestStart_UnlimitedAttempts() {
	s.useExam(newExamFixture(func(e *model.Exam) { e.MaxAttempts = 0 }))
	for i := 1; i <= 3; i++ {
		a := s.start(s.student)
		s.Equal(i, a.AttemptNumber)
		_, err := s.lifecycle.Submit(s.ctx, a.ID, s.student)
		s.Require().NoError(err)
	}
}

func (s *AttemptServiceSuite) TestStart_Eligibility() {
	classID, otherClass := 7, 8

	cases := []struct {
		name    string
		mod     func(*model.Exam)
		taker   model.Taker
		classID *int
		pass    string
		wantErr error
	}{
		{name: "draft", mod: func(e *model.Exam) { e.Status = model.ExamStatusDraft }, taker: s.student, wantErr: ErrInvalidState},
		{name: "archived", mod: func(e *model.Exam) { e.Status = model.ExamStatusArchived }, taker: s.student, wantErr: ErrInvalidState},
		{name: "other class", mod: func(e *model.Exam) { e.ClassID = &classID }, taker: s.student, classID: &otherClass, wantErr: ErrForbidden},
		{name: "no class claim", mod: func(e *model.Exam) { e.ClassID = &classID }, taker: s.student, wantErr: ErrForbidden},
		{name: "matching class", mod: func(e *model.Exam) { e.ClassID = &classID }, taker: s.student, classID: &classID},
		{name: "guest not admitted", taker: model.GuestTaker("g-1"), wantErr: ErrForbidden},
		{name: "guest admitted", mod: func(e *model.Exam) { e.AllowGuests = true }, taker: model.GuestTaker("g-1")},
		{name: "not yet open", mod: func(e *model.Exam) { at := t0.Add(time.Hour); e.StartDate = &at }, taker: s.student, wantErr: ErrOutOfWindow},
		{name: "closed", mod: func(e *model.Exam) { at := t0.Add(-time.Minute); e.EndDate = &at }, taker: s.student, wantErr: ErrOutOfWindow},
		{name: "wrong password", mod: withPassword("s3cret"), taker: s.student, pass: "guess", wantErr: ErrForbidden},
		{name: "right password", mod: withPassword("s3cret"), taker: s.student, pass: "s3cret"},
		{name: "malformed taker", taker: model.Taker{Kind: model.TakerStudent}, wantErr: ErrForbidden},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			var fx examFixture
			if tc.mod != nil {
				fx = newExamFixture(tc.mod)
			} else {
				fx = newExamFixture()
			}
			s.exams.Put(fx.exam)

			res, err := s.lifecycle.Start(s.ctx, StartInput{
				ExamID:   fx.exam.ID,
				Taker:    tc.taker,
				ClassID:  tc.classID,
				Password: tc.pass,
			})
			if tc.wantErr != nil {
				s.ErrorIs(err, tc.wantErr)
				return
			}
			s.Require().NoError(err)
			s.Equal(tc.taker, res.Attempt.Taker)
		})
	}
}

func (s *AttemptServiceSuite) TestStart_MissingExam() {
	_, err := s.lifecycle.Start(s.ctx, StartInput{ExamID: uuid.New(), Taker: s.student})
	s.ErrorIs(err, ErrNotFound)
}

func (s *AttemptServiceSuite) TestStart_RandomizedOrderIsMaterializedOnce() {
	s.useExam(newExamFixture(func(e *model.Exam) {
		e.RandomizeQuestions = true
		e.RandomizeOptions = true
	}))
	calls := 0
	s.lifecycle.shuffle = func(n int, swap func(i, j int)) {
		calls++
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}

	res, err := s.lifecycle.Start(s.ctx, StartInput{ExamID: s.fx.exam.ID, Taker: s.student})
	s.Require().NoError(err)
	want := []uuid.UUID{s.fx.essay, s.fx.fillBlank, s.fx.multi, s.fx.single}
	s.Equal(want, res.Attempt.QuestionOrder)
	s.Equal([]int64{3, 2, 1}, res.Attempt.OptionOrder[s.fx.single])

	last := res.Questions[3]
	s.Equal(s.fx.single, last.ID)
	s.Equal(int64(3), last.Options[0].ID)

	shuffles := calls
	again, err := s.lifecycle.Start(s.ctx, StartInput{ExamID: s.fx.exam.ID, Taker: s.student})
	s.Require().NoError(err)
	s.Equal(want, again.Attempt.QuestionOrder)

	state, err := s.lifecycle.GetAttemptState(s.ctx, res.Attempt.ID, s.student)
	s.Require().NoError(err)
	s.Equal(s.fx.essay, state.Questions[0].ID)
	s.Equal(shuffles, calls, "resuming must not reshuffle")
}

// ─── Time ───────────────────────────────────────────────────────────

func (s *AttemptServiceSuite) TestTimeRemaining_NonIncreasingAndClamped() {
	a := s.start(s.student)

	prev := *s.lifecycle.TimeRemaining(s.fx.exam, a)
	for i := 0; i < 20; i++ {
		s.clock.Advance(3*time.Minute + 7*time.Second)
		got := s.lifecycle.TimeRemaining(s.fx.exam, a)
		s.Require().NotNil(got)
		s.LessOrEqual(*got, prev)
		s.GreaterOrEqual(*got, 0)
		prev = *got
	}
	s.Equal(0, prev)
}

func (s *AttemptServiceSuite) TestTimeRemaining_Untimed() {
	s.useExam(newExamFixture(untimed))
	a := s.start(s.student)
	s.clock.Advance(10 * time.Hour)
	s.Nil(s.lifecycle.TimeRemaining(s.fx.exam, a))
}

func (s *AttemptServiceSuite) TestGraceExtendsExpiry() {
	s.useExam(newExamFixture(func(e *model.Exam) { e.GracePeriodSeconds = 120 }))
	a := s.start(s.student)

	s.clock.Advance(31 * time.Minute)
	s.Equal(0, *s.lifecycle.TimeRemaining(s.fx.exam, a))
	s.answer(a, s.fx.single, opt(3))

	s.clock.Advance(time.Minute)
	_, err := s.lifecycle.RecordResponse(s.ctx, RecordInput{AttemptID: a.ID, Taker: s.student, QuestionID: s.fx.multi, Payload: opts(11)})
	s.ErrorIs(err, ErrExpired)
}

// ─── Responses ──────────────────────────────────────────────────────

func (s *AttemptServiceSuite) TestRecordResponse_UpsertsOneRowPerQuestion() {
	a := s.start(s.student)

	s.answer(a, s.fx.single, opt(2))
	_, err := s.lifecycle.RecordResponse(s.ctx, RecordInput{AttemptID: a.ID, Taker: s.student, QuestionID: s.fx.single, Payload: opt(3), IsFlagged: true})
	s.Require().NoError(err)

	rows, err := s.responses.ListByAttempt(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(int64(3), *rows[0].Payload.SelectedOption)

	got := s.reload(a.ID)
	s.Equal(1, got.QuestionsAnswered)
	s.Equal(1, got.QuestionsFlagged)

	// retries do not double count, and unflagging is picked up
	s.answer(a, s.fx.single, opt(3))
	got = s.reload(a.ID)
	s.Equal(1, got.QuestionsAnswered)
	s.Equal(0, got.QuestionsFlagged)

	saved := s.recorder.Find(notify.ExamRoom(s.fx.exam.ID), notify.EventResponseSaved)
	s.Len(saved, 3)
}

func (s *AttemptServiceSuite) TestRecordResponse_EmptyPayloadIsNotAnswered() {
	a := s.start(s.student)
	s.answer(a, s.fx.fillBlank, text("   "))
	s.Equal(0, s.reload(a.ID).QuestionsAnswered)
}

func (s *AttemptServiceSuite) TestRecordResponse_Rejections() {
	a := s.start(s.student)

	_, err := s.lifecycle.RecordResponse(s.ctx, RecordInput{AttemptID: a.ID, Taker: s.student, QuestionID: uuid.New(), Payload: opt(1)})
	s.ErrorIs(err, ErrNotFound)

	_, err = s.lifecycle.RecordResponse(s.ctx, RecordInput{AttemptID: a.ID, Taker: model.StudentTaker(99), QuestionID: s.fx.single, Payload: opt(1)})
	s.ErrorIs(err, ErrForbidden)

	_, err = s.lifecycle.RecordResponse(s.ctx, RecordInput{AttemptID: uuid.New(), Taker: s.student, QuestionID: s.fx.single, Payload: opt(1)})
	s.ErrorIs(err, ErrNotFound)

	_, err = s.lifecycle.Submit(s.ctx, a.ID, s.student)
	s.Require().NoError(err)
	_, err = s.lifecycle.RecordResponse(s.ctx, RecordInput{AttemptID: a.ID, Taker: s.student, QuestionID: s.fx.single, Payload: opt(1)})
	s.ErrorIs(err, ErrInvalidState)
}

// Thirty minute exam, answer at T0+31min: Expired and auto_submitted.
func (s *AttemptServiceSuite) TestRecordResponse_AfterTimeLimit() {
	a := s.start(s.student)
	s.answer(a, s.fx.essay, text("An object keeps its state of motion."))

	s.clock.Advance(31 * time.Minute)
	_, err := s.lifecycle.RecordResponse(s.ctx, RecordInput{AttemptID: a.ID, Taker: s.student, QuestionID: s.fx.single, Payload: opt(3)})
	s.Require().ErrorIs(err, ErrExpired)

	got := s.reload(a.ID)
	s.Equal(model.AttemptAutoSubmitted, got.Status)
	s.Equal(model.SubmitReasonTimeLimit, got.SubmitReason)
	s.True(hasEvent(got, model.ViolationAutoSubmitted))
	s.True(s.responseFor(a.ID, s.fx.single).Payload.IsEmpty(), "late answer must not be saved")
}

// ─── Tab switches ───────────────────────────────────────────────────

func (s *AttemptServiceSuite) TestLogTabSwitch_AutoSubmitsAtThreshold() {
	s.useExam(newExamFixture(func(e *model.Exam) {
		e.DetectTabSwitch = true
		e.MaxTabSwitches = 3
	}))
	a := s.start(s.student)

	for i := 1; i <= 2; i++ {
		res, err := s.lifecycle.LogTabSwitch(s.ctx, a.ID, s.student, s.fx.single.String())
		s.Require().NoError(err)
		s.Equal(i, res.TabSwitches)
		s.Equal(3, res.MaxTabSwitches)
		s.False(res.AutoSubmitted)
	}

	res, err := s.lifecycle.LogTabSwitch(s.ctx, a.ID, s.student, s.fx.multi.String())
	s.Require().NoError(err)
	s.True(res.AutoSubmitted)
	s.Require().NotNil(res.Attempt)
	s.Equal(model.SubmitReasonTabSwitch, res.Attempt.SubmitReason)

	// no-op once the attempt is closed
	res, err = s.lifecycle.LogTabSwitch(s.ctx, a.ID, s.student, "")
	s.Require().NoError(err)
	s.Equal(3, res.TabSwitches)
	s.False(res.AutoSubmitted)

	got := s.reload(a.ID)
	s.Equal(3, got.TabSwitches)
	s.True(hasEvent(got, model.ViolationAutoSubmitted))
	s.Len(s.violations.Records(), 3)
}

func (s *AttemptServiceSuite) TestLogTabSwitch_CountsWithoutDetection() {
	s.useExam(newExamFixture(func(e *model.Exam) { e.MaxTabSwitches = 1 }))
	a := s.start(s.student)

	for i := 0; i < 3; i++ {
		res, err := s.lifecycle.LogTabSwitch(s.ctx, a.ID, s.student, "")
		s.Require().NoError(err)
		s.False(res.AutoSubmitted)
	}
	s.Equal(model.AttemptInProgress, s.reload(a.ID).Status)
	s.Len(s.recorder.Find(notify.ExamRoom(s.fx.exam.ID), notify.EventTabSwitch), 3)
}

func (s *AttemptServiceSuite) TestLogTabSwitch_ConcurrentSwitchesAreAllCounted() {
	s.useExam(newExamFixture(func(e *model.Exam) { e.MaxTabSwitches = 50 }))
	a := s.start(s.student)
	s.useAttemptStore(&scriptedAttempts{AttemptStore: s.attempts, readDelay: 5 * time.Millisecond})

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := s.lifecycle.LogTabSwitch(s.ctx, a.ID, s.student, "")
			return err
		})
	}
	s.Require().NoError(g.Wait())

	got := s.reload(a.ID)
	s.Equal(10, got.TabSwitches)
	s.Require().Len(got.ViolationLog, 10)
	seen := make(map[int]bool)
	for _, e := range got.ViolationLog {
		s.Require().NotNil(e.TabSwitch)
		seen[e.TabSwitch.Count] = true
	}
	s.Len(seen, 10, "every switch gets its own count")
	s.Len(s.violations.Records(), 10)
}

func (s *AttemptServiceSuite) TestLogTabSwitch_KeepsCountersWrittenMeanwhile() {
	a := s.start(s.student)
	store := &scriptedAttempts{AttemptStore: s.attempts}
	store.afterRead = func() {
		store.afterRead = nil
		s.Require().NoError(s.attempts.UpdateProgress(s.ctx, a.ID, 3, 1))
	}
	s.useAttemptStore(store)

	_, err := s.lifecycle.LogTabSwitch(s.ctx, a.ID, s.student, "")
	s.Require().NoError(err)

	got := s.reload(a.ID)
	s.Equal(1, got.TabSwitches)
	s.Equal(3, got.QuestionsAnswered)
	s.Equal(1, got.QuestionsFlagged)
}

// ─── Submit ─────────────────────────────────────────────────────────

func (s *AttemptServiceSuite) answerAllButEssay(a *model.Attempt) {
	s.answer(a, s.fx.single, opt(3))
	s.answer(a, s.fx.multi, opts(11, 12, 13, 15))
	s.answer(a, s.fx.fillBlank, text(" jakarta "))
}

func (s *AttemptServiceSuite) TestSubmit_IsIdempotent() {
	a := s.start(s.student)
	s.answerAllButEssay(a)
	s.clock.Advance(12 * time.Minute)

	first, err := s.lifecycle.Submit(s.ctx, a.ID, s.student)
	s.Require().NoError(err)
	s.clock.Advance(time.Minute)
	second, err := s.lifecycle.Submit(s.ctx, a.ID, s.student)
	s.Require().NoError(err)

	for _, res := range []*SubmitResult{first, second} {
		s.Equal(19.0, res.Attempt.TotalScore)
		s.Equal(33.0, res.Attempt.MaxScore)
		s.Equal(57.58, res.Attempt.Percentage)
		s.Equal("F", res.Attempt.Grade)
		s.Equal(model.PassStatusPending, res.Attempt.PassStatus)
		s.Equal(model.AttemptSubmitted, res.Attempt.Status)
		s.Equal(12*60, *res.Attempt.TimeTakenSeconds)
	}

	// the unanswered essay got a blank row so max_score covers the exam, and
	// it still waits for a grader
	s.Equal(4, s.responses.Count())
	essay := s.responseFor(a.ID, s.fx.essay)
	s.True(essay.RequiresManualGrading)
	s.Nil(essay.IsCorrect)
	s.Equal(0.0, essay.PointsEarned)

	s.Len(s.recorder.Find(notify.ExamRoom(s.fx.exam.ID), notify.EventSubmitted), 1)
	s.Len(s.recorder.Find(notify.AttemptRoom(a.ID), notify.EventSubmitted), 1)
}

func (s *AttemptServiceSuite) TestSubmit_ResultVisibility() {
	a := s.start(s.student)
	s.answerAllButEssay(a)
	res, err := s.lifecycle.Submit(s.ctx, a.ID, s.student)
	s.Require().NoError(err)
	s.Nil(res.Result)

	s.useExam(newExamFixture(showResults))
	b := s.start(s.student)
	s.answer(b, s.fx.single, opt(3))
	res, err = s.lifecycle.Submit(s.ctx, b.ID, s.student)
	s.Require().NoError(err)
	s.Require().NotNil(res.Result)
	s.Equal(10.0, res.Result.TotalScore)
	s.Len(res.Result.Responses, 4)
	for _, rr := range res.Result.Responses {
		if rr.QuestionID == s.fx.single {
			s.Equal([]int64{3}, rr.CorrectOptions)
			s.True(*rr.IsCorrect)
		}
	}
}

func (s *AttemptServiceSuite) TestSubmit_AfterDeadlineIsTimeLimitAutoSubmit() {
	a := s.start(s.student)
	s.answer(a, s.fx.single, opt(3))
	s.clock.Advance(45 * time.Minute)

	res, err := s.lifecycle.Submit(s.ctx, a.ID, s.student)
	s.Require().NoError(err)
	s.Equal(model.SubmitReasonTimeLimit, res.Attempt.SubmitReason)
	s.True(hasEvent(res.Attempt, model.ViolationAutoSubmitted))
}

func (s *AttemptServiceSuite) TestSubmit_WithEssayAwaitsManualGrading() {
	a := s.start(s.student)
	s.answer(a, s.fx.essay, text("Inertia resists changes in motion."))

	res, err := s.lifecycle.Submit(s.ctx, a.ID, s.student)
	s.Require().NoError(err)
	s.Equal(model.AttemptSubmitted, res.Attempt.Status)
	s.Equal(model.PassStatusPending, res.Attempt.PassStatus)

	essay := s.responseFor(a.ID, s.fx.essay)
	s.True(essay.RequiresManualGrading)
	s.Nil(essay.IsCorrect)
	s.Equal(0.0, essay.PointsEarned)
}

func (s *AttemptServiceSuite) TestSubmit_BlankAnswersWithoutEssay() {
	s.useExam(newExamFixture(noEssay))
	a := s.start(s.student)
	s.answer(a, s.fx.single, opt(3))

	res, err := s.lifecycle.Submit(s.ctx, a.ID, s.student)
	s.Require().NoError(err)
	s.Equal(model.AttemptGraded, res.Attempt.Status)
	s.Equal(10.0, res.Attempt.TotalScore)
	s.Equal(23.0, res.Attempt.MaxScore)

	for _, qid := range []uuid.UUID{s.fx.multi, s.fx.fillBlank} {
		r := s.responseFor(a.ID, qid)
		s.False(r.RequiresManualGrading)
		s.Require().NotNil(r.IsCorrect)
		s.False(*r.IsCorrect)
	}
}

func (s *AttemptServiceSuite) TestSubmit_NotificationFailureIsSwallowed() {
	s.recorder.Err = errors.New("redis down")
	s.useExam(newExamFixture(noEssay))
	a := s.start(s.student)

	res, err := s.lifecycle.Submit(s.ctx, a.ID, s.student)
	s.Require().NoError(err)
	s.Equal(model.AttemptGraded, res.Attempt.Status)
}

func (s *AttemptServiceSuite) TestAutoSubmit_Idempotent() {
	a := s.start(s.student)

	first, err := s.lifecycle.AutoSubmit(s.ctx, a.ID, model.SubmitReasonTimeLimit)
	s.Require().NoError(err)
	second, err := s.lifecycle.AutoSubmit(s.ctx, a.ID, model.SubmitReasonTabSwitch)
	s.Require().NoError(err)
	s.Equal(first.SubmitReason, second.SubmitReason)
	s.Equal(model.SubmitReasonTimeLimit, second.SubmitReason)
}

// ─── Reads ──────────────────────────────────────────────────────────

func (s *AttemptServiceSuite) TestGetAttemptState_HidesGradingWhileOpen() {
	a := s.start(s.student)
	s.answer(a, s.fx.single, opt(3))
	s.clock.Advance(2 * time.Minute)

	state, err := s.lifecycle.GetAttemptState(s.ctx, a.ID, s.student)
	s.Require().NoError(err)
	s.Equal(28*60, *state.TimeRemainingSeconds)
	s.Require().Len(state.Responses, 1)
	s.Nil(state.Responses[0].IsCorrect)
	s.Nil(state.Result)

	_, err = s.lifecycle.GetAttemptState(s.ctx, a.ID, model.GuestTaker("intruder"))
	s.ErrorIs(err, ErrForbidden)
}

func (s *AttemptServiceSuite) TestGetAttemptState_ReconcilesExpiredAttempt() {
	a := s.start(s.student)
	s.clock.Advance(time.Hour)

	state, err := s.lifecycle.GetAttemptState(s.ctx, a.ID, s.student)
	s.Require().NoError(err)
	s.NotEqual(model.AttemptInProgress, state.Attempt.Status)
	s.Nil(state.TimeRemainingSeconds)
}
