package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ViolationKind tags each entry of an attempt's violation log.
type ViolationKind string

const (
	ViolationTabSwitch       ViolationKind = "tab_switch"
	ViolationSealed          ViolationKind = "sealed"
	ViolationAutoSubmitted   ViolationKind = "auto_submitted"
	ViolationLateSubmission  ViolationKind = "late_submission"
	ViolationResumeRequested ViolationKind = "resume_requested"
	ViolationResumeApproved  ViolationKind = "resume_approved"
	ViolationResumeDeclined  ViolationKind = "resume_declined"
)

// ViolationEvent is a tagged union: Kind selects which detail pointer is set.
type ViolationEvent struct {
	Kind ViolationKind `json:"kind"`
	At   time.Time     `json:"at"`

	TabSwitch  *TabSwitchDetail  `json:"tab_switch,omitempty"`
	Seal       *SealDetail       `json:"seal,omitempty"`
	AutoSubmit *AutoSubmitDetail `json:"auto_submit,omitempty"`
	Late       *LateDetail       `json:"late,omitempty"`
	Resume     *ResumeDetail     `json:"resume,omitempty"`
}

type TabSwitchDetail struct {
	Count             int    `json:"count"`
	CurrentQuestionID string `json:"current_question_id,omitempty"`
}

type SealDetail struct {
	Reason              string `json:"reason"`
	IntegrityHash       string `json:"integrity_hash"`
	ClientTimestamp     int64  `json:"client_timestamp"`
	TimeRemainingAtSeal *int   `json:"time_remaining_at_seal,omitempty"`
	SnapshotSize        int    `json:"snapshot_size"`
}

type AutoSubmitDetail struct {
	Reason SubmitReason `json:"reason"`
}

type LateDetail struct {
	Deadline   time.Time `json:"deadline"`
	ReceivedAt time.Time `json:"received_at"`
}

type ResumeDetail struct {
	RequestID     string `json:"request_id"`
	ResponderID   *int   `json:"responder_id,omitempty"`
	TimeRemaining *int   `json:"time_remaining,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// NewTabSwitchEvent builds a tab_switch log entry.
func NewTabSwitchEvent(at time.Time, count int, questionID string) ViolationEvent {
	return ViolationEvent{Kind: ViolationTabSwitch, At: at, TabSwitch: &TabSwitchDetail{Count: count, CurrentQuestionID: questionID}}
}

// NewAutoSubmitEvent builds an auto_submitted log entry.
func NewAutoSubmitEvent(at time.Time, reason SubmitReason) ViolationEvent {
	return ViolationEvent{Kind: ViolationAutoSubmitted, At: at, AutoSubmit: &AutoSubmitDetail{Reason: reason}}
}

// ViolationRecord is the queued copy of a log entry persisted to
// attempt_violations for the live monitor.
type ViolationRecord struct {
	AttemptID string         `json:"attempt_id"`
	ExamID    string         `json:"exam_id"`
	Event     ViolationEvent `json:"event"`
}

// Validate reports whether the record can be written: both ids must parse.
func (r ViolationRecord) Validate() error {
	if _, err := uuid.Parse(r.AttemptID); err != nil {
		return fmt.Errorf("attempt id %q: %w", r.AttemptID, err)
	}
	if _, err := uuid.Parse(r.ExamID); err != nil {
		return fmt.Errorf("exam id %q: %w", r.ExamID, err)
	}
	if r.Event.Kind == "" {
		return fmt.Errorf("violation kind is empty")
	}
	return nil
}
