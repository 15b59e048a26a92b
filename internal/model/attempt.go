package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states.
type AttemptStatus string

const (
	AttemptInProgress    AttemptStatus = "in_progress"
	AttemptSubmitted     AttemptStatus = "submitted"
	AttemptAutoSubmitted AttemptStatus = "auto_submitted"
	AttemptGraded        AttemptStatus = "graded"
)

// SubmitReason records what ended an attempt.
type SubmitReason string

const (
	SubmitReasonTaker     SubmitReason = "taker"
	SubmitReasonTimeLimit SubmitReason = "time_limit"
	SubmitReasonTabSwitch SubmitReason = "tab_switch"
	SubmitReasonSealed    SubmitReason = "sealed"
)

// PassStatus is the pass/fail outcome, pending while manual grading is outstanding.
type PassStatus string

const (
	PassStatusPending PassStatus = "pending"
	PassStatusPassed  PassStatus = "passed"
	PassStatusFailed  PassStatus = "failed"
)

// Attempt is one taker's single try at an exam.
type Attempt struct {
	ID            uuid.UUID     `json:"id"`
	ExamID        uuid.UUID     `json:"exam_id"`
	Taker         Taker         `json:"taker"`
	AttemptNumber int           `json:"attempt_number"`
	Status        AttemptStatus `json:"status"`
	SubmitReason  SubmitReason  `json:"submit_reason,omitempty"`

	StartedAt        time.Time  `json:"started_at"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	TimeTakenSeconds *int       `json:"time_taken_seconds,omitempty"`

	TotalScore float64    `json:"total_score"`
	MaxScore   float64    `json:"max_score"`
	Percentage float64    `json:"percentage"`
	Grade      string     `json:"grade,omitempty"`
	PassStatus PassStatus `json:"pass_status"`

	QuestionsAnswered int `json:"questions_answered"`
	QuestionsFlagged  int `json:"questions_flagged"`

	TabSwitches      int              `json:"tab_switches"`
	ViolationLog     []ViolationEvent `json:"violation_log"`
	IsLateSubmission bool             `json:"is_late_submission"`

	IsSealed        bool                          `json:"is_sealed"`
	SealedAt        *time.Time                    `json:"sealed_at,omitempty"`
	SealedHash      string                        `json:"sealed_hash,omitempty"`
	SealedResponses map[uuid.UUID]ResponsePayload `json:"sealed_responses,omitempty"`

	QuestionOrder []uuid.UUID           `json:"question_order"`
	OptionOrder   map[uuid.UUID][]int64 `json:"option_order,omitempty"`

	GradedBy           *int       `json:"graded_by,omitempty"`
	GradedAt           *time.Time `json:"graded_at,omitempty"`
	InstructorFeedback string     `json:"instructor_feedback,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsInProgress reports whether the attempt still accepts taker input.
func (a *Attempt) IsInProgress() bool {
	return a.Status == AttemptInProgress
}

// BelongsTo reports whether the attempt was started by t.
func (a *Attempt) BelongsTo(t Taker) bool {
	return a.Taker == t
}

// AppendEvent adds an entry to the violation log.
func (a *Attempt) AppendEvent(e ViolationEvent) {
	a.ViolationLog = append(a.ViolationLog, e)
}

// Clone returns a deep copy, used by the in-memory stores so callers never
// share mutable state with the stored row.
func (a *Attempt) Clone() *Attempt {
	c := *a
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		c.SubmittedAt = &t
	}
	if a.TimeTakenSeconds != nil {
		v := *a.TimeTakenSeconds
		c.TimeTakenSeconds = &v
	}
	if a.SealedAt != nil {
		t := *a.SealedAt
		c.SealedAt = &t
	}
	if a.GradedBy != nil {
		v := *a.GradedBy
		c.GradedBy = &v
	}
	if a.GradedAt != nil {
		t := *a.GradedAt
		c.GradedAt = &t
	}
	c.ViolationLog = append([]ViolationEvent(nil), a.ViolationLog...)
	c.QuestionOrder = append([]uuid.UUID(nil), a.QuestionOrder...)
	if a.SealedResponses != nil {
		c.SealedResponses = make(map[uuid.UUID]ResponsePayload, len(a.SealedResponses))
		for k, v := range a.SealedResponses {
			c.SealedResponses[k] = v.Clone()
		}
	}
	if a.OptionOrder != nil {
		c.OptionOrder = make(map[uuid.UUID][]int64, len(a.OptionOrder))
		for k, v := range a.OptionOrder {
			c.OptionOrder[k] = append([]int64(nil), v...)
		}
	}
	return &c
}
