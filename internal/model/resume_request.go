package model

import (
	"time"

	"github.com/google/uuid"
)

// ResumeStatus enumerates resume request states. Every state except pending is terminal.
type ResumeStatus string

const (
	ResumePending  ResumeStatus = "pending"
	ResumeApproved ResumeStatus = "approved"
	ResumeDeclined ResumeStatus = "declined"
	ResumeExpired  ResumeStatus = "expired"
)

// ResumeRequest is a taker's ask to continue a sealed attempt after reconnecting.
type ResumeRequest struct {
	ID                  uuid.UUID    `json:"id"`
	AttemptID           uuid.UUID    `json:"attempt_id"`
	ExamID              uuid.UUID    `json:"exam_id"`
	RequesterName       string       `json:"requester_name"`
	RequesterContact    string       `json:"requester_contact,omitempty"`
	ClientTimeRemaining *int         `json:"client_time_remaining,omitempty"`
	ServerTimeRemaining *int         `json:"server_time_remaining,omitempty"`
	OriginalStartedAt   time.Time    `json:"original_started_at"`
	InterruptedAt       time.Time    `json:"interrupted_at"`
	Status              ResumeStatus `json:"status"`
	ExpiresAt           time.Time    `json:"expires_at"`
	RespondedBy         *int         `json:"responded_by,omitempty"`
	RespondedAt         *time.Time   `json:"responded_at,omitempty"`
	DeclineReason       string       `json:"decline_reason,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
}

// IsPending reports whether the request still awaits an instructor.
func (r *ResumeRequest) IsPending() bool {
	return r.Status == ResumePending
}

// HasLapsed reports whether a pending request's window has passed at now.
func (r *ResumeRequest) HasLapsed(now time.Time) bool {
	return r.Status == ResumePending && !now.Before(r.ExpiresAt)
}

// Clone deep-copies the request.
func (r *ResumeRequest) Clone() *ResumeRequest {
	c := *r
	if r.ClientTimeRemaining != nil {
		v := *r.ClientTimeRemaining
		c.ClientTimeRemaining = &v
	}
	if r.ServerTimeRemaining != nil {
		v := *r.ServerTimeRemaining
		c.ServerTimeRemaining = &v
	}
	if r.RespondedBy != nil {
		v := *r.RespondedBy
		c.RespondedBy = &v
	}
	if r.RespondedAt != nil {
		t := *r.RespondedAt
		c.RespondedAt = &t
	}
	return &c
}
