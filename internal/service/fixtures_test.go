package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-attempt/internal/clock"
	"github.com/stemsi/exstem-attempt/internal/metrics"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/notify"
	"github.com/stemsi/exstem-attempt/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// examFixture is a four-question exam: single choice, multi choice with
// partial credit, fill in the blank and an essay.
type examFixture struct {
	exam      *model.Exam
	single    uuid.UUID
	multi     uuid.UUID
	fillBlank uuid.UUID
	essay     uuid.UUID
}

func newExamFixture(mods ...func(*model.Exam)) examFixture {
	f := examFixture{
		single:    uuid.New(),
		multi:     uuid.New(),
		fillBlank: uuid.New(),
		essay:     uuid.New(),
	}
	start, end := t0.Add(-time.Hour), t0.Add(24*time.Hour)
	f.exam = &model.Exam{
		ID:               uuid.New(),
		Title:            "Physics midterm",
		Status:           model.ExamStatusPublished,
		StartDate:        &start,
		EndDate:          &end,
		HasTimeLimit:     true,
		TimeLimitMinutes: 30,
		MaxAttempts:      2,
		PassPercentage:   60,
		Questions: []model.Question{
			{
				ID: f.single, Type: model.QuestionTypeSingleChoice, Text: "Unit of force?", Points: 10, OrderNum: 1,
				Options: []model.Option{{ID: 1, Text: "Joule"}, {ID: 2, Text: "Watt"}, {ID: 3, Text: "Newton", IsCorrect: true}},
			},
			{
				ID: f.multi, Type: model.QuestionTypeMultiChoice, Text: "Vector quantities?", Points: 8, OrderNum: 2,
				AllowPartialCredit: true,
				Options: []model.Option{
					{ID: 11, Text: "Velocity", IsCorrect: true},
					{ID: 12, Text: "Force", IsCorrect: true},
					{ID: 13, Text: "Momentum", IsCorrect: true},
					{ID: 14, Text: "Displacement", IsCorrect: true},
					{ID: 15, Text: "Mass"},
				},
			},
			{
				ID: f.fillBlank, Type: model.QuestionTypeFillBlank, Text: "Capital of Indonesia?", Points: 5, OrderNum: 3,
				CorrectAnswers: []string{"Jakarta"},
			},
			{ID: f.essay, Type: model.QuestionTypeEssay, Text: "Explain inertia.", Points: 10, OrderNum: 4},
		},
	}
	for _, mod := range mods {
		mod(f.exam)
	}
	return f
}

func untimed(e *model.Exam) {
	e.HasTimeLimit = false
	e.TimeLimitMinutes = 0
}

// noEssay drops the essay so every question is scored on submit.
func noEssay(e *model.Exam) {
	e.Questions = e.Questions[:3]
}

func showResults(e *model.Exam) {
	e.ShowResultsImmediately = true
	e.ShowCorrectAnswers = true
}

func withPassword(password string) func(*model.Exam) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return func(e *model.Exam) { e.AccessPasswordHash = string(hash) }
}

func opt(id int64) model.ResponsePayload {
	return model.ResponsePayload{SelectedOption: &id}
}

func opts(ids ...int64) model.ResponsePayload {
	return model.ResponsePayload{SelectedOptions: ids}
}

func text(s string) model.ResponsePayload {
	return model.ResponsePayload{Text: &s}
}

// lifecycleSuite wires every service onto the in-memory stores.
type lifecycleSuite struct {
	suite.Suite

	ctx        context.Context
	clock      *clock.Fake
	exams      *memory.ExamCatalog
	attempts   *memory.AttemptStore
	responses  *memory.ResponseStore
	requests   *memory.ResumeRequestStore
	violations *memory.ViolationLog
	recorder   *notify.Recorder
	registry   *prometheus.Registry

	lifecycle *AttemptService
	seal      *SealService
	grading   *GradingService
	monitor   *MonitorService

	fx      examFixture
	student model.Taker
}

func (s *lifecycleSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewFake(t0)
	s.exams = memory.NewExamCatalog()
	s.attempts = memory.NewAttemptStore(s.clock)
	s.responses = memory.NewResponseStore(s.clock)
	s.requests = memory.NewResumeRequestStore()
	s.violations = memory.NewViolationLog()
	s.recorder = notify.NewRecorder()
	s.registry = prometheus.NewRegistry()

	m := metrics.NewWithRegistry(s.registry)
	log := zerolog.Nop()

	s.lifecycle = NewAttemptService(s.exams, s.attempts, s.responses, s.violations, s.recorder, s.clock, m, log)
	s.seal = NewSealService(s.lifecycle, s.requests, s.recorder, 10*time.Minute, log)
	s.grading = NewGradingService(s.exams, s.attempts, s.responses, s.recorder, s.clock, m, 0.5, 4, log)
	s.monitor = NewMonitorService(memory.NewMonitor(s.attempts, s.violations), log)

	s.student = model.StudentTaker(42)
	s.useExam(newExamFixture())
}

func (s *lifecycleSuite) useExam(fx examFixture) {
	s.fx = fx
	s.exams.Put(fx.exam)
}

func (s *lifecycleSuite) start(t model.Taker) *model.Attempt {
	res, err := s.lifecycle.Start(s.ctx, StartInput{ExamID: s.fx.exam.ID, Taker: t})
	s.Require().NoError(err)
	return res.Attempt
}

func (s *lifecycleSuite) answer(a *model.Attempt, questionID uuid.UUID, p model.ResponsePayload) *model.Response {
	r, err := s.lifecycle.RecordResponse(s.ctx, RecordInput{AttemptID: a.ID, Taker: a.Taker, QuestionID: questionID, Payload: p})
	s.Require().NoError(err)
	return r
}

func (s *lifecycleSuite) reload(id uuid.UUID) *model.Attempt {
	a, err := s.attempts.GetByID(s.ctx, id)
	s.Require().NoError(err)
	return a
}

func (s *lifecycleSuite) responseFor(attemptID, questionID uuid.UUID) *model.Response {
	rows, err := s.responses.ListByAttempt(s.ctx, attemptID)
	s.Require().NoError(err)
	for _, r := range rows {
		if r.QuestionID == questionID {
			return r
		}
	}
	s.FailNow("response not found", "question %s", questionID)
	return nil
}

// useAttemptStore rebuilds the attempt and seal services on top of store.
func (s *lifecycleSuite) useAttemptStore(store AttemptStore) {
	s.registry = prometheus.NewRegistry()
	log := zerolog.Nop()
	s.lifecycle = NewAttemptService(s.exams, store, s.responses, s.violations, s.recorder, s.clock, metrics.NewWithRegistry(s.registry), log)
	s.seal = NewSealService(s.lifecycle, s.requests, s.recorder, 10*time.Minute, log)
}

// scriptedAttempts wraps the memory store to stand in for other writers:
// afterRead runs between a service's read and its write, and sealErr fails
// seal writes.
type scriptedAttempts struct {
	*memory.AttemptStore

	readDelay  time.Duration
	afterRead  func()
	beforeSeal func()
	sealErr    error
}

func (s *scriptedAttempts) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := s.AttemptStore.GetByID(ctx, id)
	time.Sleep(s.readDelay)
	if s.afterRead != nil {
		s.afterRead()
	}
	return a, err
}

func (s *scriptedAttempts) SaveSeal(ctx context.Context, a *model.Attempt, event model.ViolationEvent) error {
	if s.beforeSeal != nil {
		s.beforeSeal()
	}
	if s.sealErr != nil {
		return s.sealErr
	}
	return s.AttemptStore.SaveSeal(ctx, a, event)
}

func hasEvent(a *model.Attempt, kind model.ViolationKind) bool {
	for _, e := range a.ViolationLog {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
