package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/notify"
)

type GradingServiceSuite struct {
	lifecycleSuite
}

func TestGradingServiceSuite(t *testing.T) {
	suite.Run(t, new(GradingServiceSuite))
}

// twoEssays turns the fill-in-the-blank question into a five point essay.
func twoEssays(e *model.Exam) {
	e.Questions[2].Type = model.QuestionTypeEssay
	e.Questions[2].CorrectAnswers = nil
}

// submitted starts, answers and submits an attempt for t.
func (s *GradingServiceSuite) submitted(t model.Taker, answers map[uuid.UUID]model.ResponsePayload) *model.Attempt {
	a := s.start(t)
	for qid, p := range answers {
		s.answer(a, qid, p)
	}
	res, err := s.lifecycle.Submit(s.ctx, a.ID, t)
	s.Require().NoError(err)
	return res.Attempt
}

// Essay: manual grading required, Finalize fails before grading and succeeds after.
func (s *GradingServiceSuite) TestEssayFlow() {
	a := s.submitted(s.student, map[uuid.UUID]model.ResponsePayload{
		s.fx.single: opt(3),
		s.fx.essay:  text("Inertia is resistance to change in motion."),
	})
	s.Equal(model.AttemptSubmitted, a.Status)
	s.Equal(10.0, a.TotalScore)

	_, err := s.grading.Finalize(s.ctx, a.ID, "Well done", 3)
	s.Require().ErrorIs(err, ErrPendingGrading)

	essay := s.responseFor(a.ID, s.fx.essay)
	graded, err := s.grading.GradeResponseManually(s.ctx, GradeInput{ResponseID: essay.ID, PointsEarned: 7, Feedback: "Clear", GraderID: 3})
	s.Require().NoError(err)
	s.True(*graded.IsCorrect)
	s.True(graded.ManuallyGraded)
	s.Equal(7.0, graded.PointsEarned)
	s.Equal("Clear", graded.Feedback)

	got := s.reload(a.ID)
	s.Equal(model.AttemptGraded, got.Status)
	s.Equal(17.0, got.TotalScore)
	s.Equal(33.0, got.MaxScore)

	final, err := s.grading.Finalize(s.ctx, a.ID, "Well done", 3)
	s.Require().NoError(err)
	s.Equal(model.AttemptGraded, final.Status)
	s.Equal("Well done", final.InstructorFeedback)
	s.Equal(3, *final.GradedBy)

	s.Len(s.recorder.Find(notify.ExamRoom(s.fx.exam.ID), notify.EventResponseGraded), 1)
	s.Len(s.recorder.Find(notify.AttemptRoom(a.ID), notify.EventResponseGraded), 1)
	s.Len(s.recorder.Find(notify.ExamRoom(s.fx.exam.ID), notify.EventAttemptFinalized), 1)
	s.Len(s.recorder.Find(notify.AttemptRoom(a.ID), notify.EventAttemptFinalized), 1)
}

func (s *GradingServiceSuite) TestGradeResponseManually_ClampsPoints() {
	s.useExam(newExamFixture(twoEssays))
	a := s.submitted(s.student, map[uuid.UUID]model.ResponsePayload{
		s.fx.essay:     text("first"),
		s.fx.fillBlank: text("second"),
	})

	over, err := s.grading.GradeResponseManually(s.ctx, GradeInput{ResponseID: s.responseFor(a.ID, s.fx.essay).ID, PointsEarned: 50})
	s.Require().NoError(err)
	s.Equal(10.0, over.PointsEarned)

	// one essay still pending
	s.Equal(model.AttemptSubmitted, s.reload(a.ID).Status)
	s.Equal(10.0, s.reload(a.ID).TotalScore)

	under, err := s.grading.GradeResponseManually(s.ctx, GradeInput{ResponseID: s.responseFor(a.ID, s.fx.fillBlank).ID, PointsEarned: -3})
	s.Require().NoError(err)
	s.Equal(0.0, under.PointsEarned)
	s.False(*under.IsCorrect)

	got := s.reload(a.ID)
	s.Equal(model.AttemptGraded, got.Status)
	s.Equal(10.0, got.TotalScore)
	s.Equal(model.PassStatusFailed, got.PassStatus)
}

func (s *GradingServiceSuite) TestGradeResponseManually_ThresholdIsInclusive() {
	a := s.submitted(s.student, map[uuid.UUID]model.ResponsePayload{s.fx.essay: text("half right")})

	r, err := s.grading.GradeResponseManually(s.ctx, GradeInput{ResponseID: s.responseFor(a.ID, s.fx.essay).ID, PointsEarned: 5})
	s.Require().NoError(err)
	s.True(*r.IsCorrect)
}

func (s *GradingServiceSuite) TestGradeResponseManually_ZeroPointQuestion() {
	s.useExam(newExamFixture(func(e *model.Exam) { e.Questions[3].Points = 0 }))
	a := s.submitted(s.student, map[uuid.UUID]model.ResponsePayload{s.fx.essay: text("ungraded reflection")})

	r, err := s.grading.GradeResponseManually(s.ctx, GradeInput{ResponseID: s.responseFor(a.ID, s.fx.essay).ID, PointsEarned: 3})
	s.Require().NoError(err)
	s.Equal(0.0, r.PointsEarned)
	s.Require().NotNil(r.IsCorrect)
	s.True(*r.IsCorrect, "full marks on a zero point question")
}

func (s *GradingServiceSuite) TestFinalize_UnansweredEssayIsPendingUntilGraded() {
	a := s.submitted(s.student, map[uuid.UUID]model.ResponsePayload{s.fx.single: opt(3)})
	s.Equal(model.AttemptSubmitted, a.Status)
	s.Equal(model.PassStatusPending, a.PassStatus)

	essay := s.responseFor(a.ID, s.fx.essay)
	s.True(essay.RequiresManualGrading)
	s.Nil(essay.IsCorrect)

	_, err := s.grading.Finalize(s.ctx, a.ID, "", 3)
	s.Require().ErrorIs(err, ErrPendingGrading)

	_, err = s.grading.GradeResponseManually(s.ctx, GradeInput{ResponseID: essay.ID, PointsEarned: 0, GraderID: 3})
	s.Require().NoError(err)

	final, err := s.grading.Finalize(s.ctx, a.ID, "", 3)
	s.Require().NoError(err)
	s.Equal(model.AttemptGraded, final.Status)
	s.Equal(10.0, final.TotalScore)
}

func (s *GradingServiceSuite) TestGradeResponseManually_Rejections() {
	_, err := s.grading.GradeResponseManually(s.ctx, GradeInput{ResponseID: uuid.New(), PointsEarned: 1})
	s.ErrorIs(err, ErrNotFound)

	open := s.start(s.student)
	row := s.answer(open, s.fx.essay, text("draft"))
	_, err = s.grading.GradeResponseManually(s.ctx, GradeInput{ResponseID: row.ID, PointsEarned: 1})
	s.ErrorIs(err, ErrInvalidState)

	s.useExam(newExamFixture(noEssay))
	done := s.submitted(model.StudentTaker(7), map[uuid.UUID]model.ResponsePayload{s.fx.single: opt(3)})
	s.Equal(model.AttemptGraded, done.Status)
	_, err = s.grading.GradeResponseManually(s.ctx, GradeInput{ResponseID: s.responseFor(done.ID, s.fx.single).ID, PointsEarned: 1})
	s.ErrorIs(err, ErrInvalidState)
}

func (s *GradingServiceSuite) TestGradeResponsesBulk() {
	s.useExam(newExamFixture(twoEssays))

	var items []GradeInput
	var attempts []*model.Attempt
	for i := 1; i <= 3; i++ {
		a := s.submitted(model.StudentTaker(100+i), map[uuid.UUID]model.ResponsePayload{
			s.fx.essay:     text("essay"),
			s.fx.fillBlank: text("short"),
		})
		attempts = append(attempts, a)
		items = append(items,
			GradeInput{ResponseID: s.responseFor(a.ID, s.fx.essay).ID, PointsEarned: float64(i * 2), GraderID: 3},
			GradeInput{ResponseID: s.responseFor(a.ID, s.fx.fillBlank).ID, PointsEarned: 5, GraderID: 3},
		)
	}

	out, err := s.grading.GradeResponsesBulk(s.ctx, items)
	s.Require().NoError(err)
	s.Require().Len(out, len(items))
	for i, r := range out {
		s.Equal(items[i].ResponseID, r.ID)
	}

	for i, a := range attempts {
		got := s.reload(a.ID)
		s.Equal(model.AttemptGraded, got.Status)
		s.Equal(float64((i+1)*2+5), got.TotalScore)
		s.Len(s.recorder.Find(notify.AttemptRoom(a.ID), notify.EventResponseGraded), 2)
	}
}

func (s *GradingServiceSuite) TestGradeResponsesBulk_FailsOnUnknownResponse() {
	_, err := s.grading.GradeResponsesBulk(s.ctx, []GradeInput{{ResponseID: uuid.New()}})
	s.ErrorIs(err, ErrNotFound)
}

func (s *GradingServiceSuite) TestRecalculateAttemptScore() {
	open := s.start(s.student)
	_, err := s.grading.RecalculateAttemptScore(s.ctx, open.ID)
	s.ErrorIs(err, ErrInvalidState)

	a := s.submitted(model.StudentTaker(8), map[uuid.UUID]model.ResponsePayload{
		s.fx.single: opt(3),
		s.fx.essay:  text("pending"),
	})
	got, err := s.grading.RecalculateAttemptScore(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(model.AttemptSubmitted, got.Status)
	s.Equal(10.0, got.TotalScore)
	s.Equal(33.0, got.MaxScore)
	s.Equal(model.PassStatusPending, got.PassStatus)
}

func (s *GradingServiceSuite) TestFinalize_InProgress() {
	a := s.start(s.student)
	_, err := s.grading.Finalize(s.ctx, a.ID, "", 1)
	s.ErrorIs(err, ErrInvalidState)
}

func (s *GradingServiceSuite) TestFinalize_GradedAttemptOnlyChangesFeedback() {
	s.useExam(newExamFixture(noEssay))
	a := s.submitted(s.student, map[uuid.UUID]model.ResponsePayload{s.fx.single: opt(3)})
	s.Equal(model.AttemptGraded, a.Status)
	s.Nil(a.GradedBy)

	first, err := s.grading.Finalize(s.ctx, a.ID, "Keep practising", 2)
	s.Require().NoError(err)
	s.Equal("Keep practising", first.InstructorFeedback)
	s.Equal(2, *first.GradedBy)
	s.Equal(a.TotalScore, first.TotalScore)
	s.Equal(a.GradedAt, first.GradedAt)

	second, err := s.grading.Finalize(s.ctx, a.ID, "Revised note", 3)
	s.Require().NoError(err)
	s.Equal("Revised note", second.InstructorFeedback)
	s.Equal(2, *second.GradedBy)
}
