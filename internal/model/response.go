package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ResponsePayload is the raw answer. Only the field matching the question
// type is read by the grader.
type ResponsePayload struct {
	SelectedOption  *int64  `json:"selected_option,omitempty"`
	SelectedOptions []int64 `json:"selected_options,omitempty"`
	Text            *string `json:"text,omitempty"`
}

// IsEmpty reports whether the payload carries no answer at all.
func (p ResponsePayload) IsEmpty() bool {
	if p.SelectedOption != nil || len(p.SelectedOptions) > 0 {
		return false
	}
	return p.Text == nil || strings.TrimSpace(*p.Text) == ""
}

// Clone deep-copies the payload.
func (p ResponsePayload) Clone() ResponsePayload {
	c := ResponsePayload{}
	if p.SelectedOption != nil {
		v := *p.SelectedOption
		c.SelectedOption = &v
	}
	if p.SelectedOptions != nil {
		c.SelectedOptions = append([]int64(nil), p.SelectedOptions...)
	}
	if p.Text != nil {
		v := *p.Text
		c.Text = &v
	}
	return c
}

// Response is one row per (attempt, question).
type Response struct {
	ID         uuid.UUID       `json:"id"`
	AttemptID  uuid.UUID       `json:"attempt_id"`
	QuestionID uuid.UUID       `json:"question_id"`
	Payload    ResponsePayload `json:"payload"`
	IsFlagged  bool            `json:"is_flagged"`

	IsCorrect    *bool   `json:"is_correct"`
	PointsEarned float64 `json:"points_earned"`
	MaxPoints    float64 `json:"max_points"`

	RequiresManualGrading bool       `json:"requires_manual_grading"`
	ManuallyGraded        bool       `json:"manually_graded"`
	GradedBy              *int       `json:"graded_by,omitempty"`
	Feedback              string     `json:"feedback,omitempty"`
	GradedAt              *time.Time `json:"graded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PendingManualGrading reports whether a human still has to score this row.
func (r *Response) PendingManualGrading() bool {
	return r.RequiresManualGrading && !r.ManuallyGraded
}

// Clone deep-copies the row.
func (r *Response) Clone() *Response {
	c := *r
	c.Payload = r.Payload.Clone()
	if r.IsCorrect != nil {
		v := *r.IsCorrect
		c.IsCorrect = &v
	}
	if r.GradedBy != nil {
		v := *r.GradedBy
		c.GradedBy = &v
	}
	if r.GradedAt != nil {
		t := *r.GradedAt
		c.GradedAt = &t
	}
	return &c
}
