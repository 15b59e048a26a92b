package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam definition.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "draft"
	ExamStatusPublished ExamStatus = "published"
	ExamStatusArchived  ExamStatus = "archived"
)

// Exam is the read-only exam definition consumed by the attempt lifecycle.
// Authoring lives elsewhere; this service never writes it except for the
// access password hash set by cmd/exam-password.
type Exam struct {
	ID                 uuid.UUID  `json:"id"`
	Title              string     `json:"title"`
	Status             ExamStatus `json:"status"`
	ClassID            *int       `json:"class_id,omitempty"`
	AllowGuests        bool       `json:"allow_guests"`
	StartDate          *time.Time `json:"start_date,omitempty"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	HasTimeLimit       bool       `json:"has_time_limit"`
	TimeLimitMinutes   int        `json:"time_limit_minutes"`
	GracePeriodSeconds int        `json:"grace_period_seconds"`
	MaxAttempts        int        `json:"max_attempts"`
	PassPercentage     float64    `json:"pass_percentage"`
	AccessPasswordHash string     `json:"access_password_hash,omitempty"`
	RandomizeQuestions bool       `json:"randomize_questions"`
	RandomizeOptions   bool       `json:"randomize_options"`
	DetectTabSwitch    bool       `json:"detect_tab_switch"`
	MaxTabSwitches     int        `json:"max_tab_switches"`

	ShowResultsImmediately bool `json:"show_results_immediately"`
	ShowCorrectAnswers     bool `json:"show_correct_answers"`

	Questions []Question `json:"questions"`
}

// IsTimed reports whether the exam enforces a time limit.
func (e *Exam) IsTimed() bool {
	return e.HasTimeLimit && e.TimeLimitMinutes > 0
}

// TimeLimit returns the configured limit, zero when untimed.
func (e *Exam) TimeLimit() time.Duration {
	if !e.IsTimed() {
		return 0
	}
	return time.Duration(e.TimeLimitMinutes) * time.Minute
}

// Grace returns the tolerated overrun after the time limit.
func (e *Exam) Grace() time.Duration {
	if e.GracePeriodSeconds <= 0 {
		return 0
	}
	return time.Duration(e.GracePeriodSeconds) * time.Second
}

// Question looks up a question by id.
func (e *Exam) Question(id uuid.UUID) (*Question, bool) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i], true
		}
	}
	return nil, false
}

// RequiresPassword reports whether an access password must be supplied on start.
func (e *Exam) RequiresPassword() bool {
	return e.AccessPasswordHash != ""
}
