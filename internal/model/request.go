package model

import "github.com/google/uuid"

// ─── Taker requests ─────────────────────────────────────────────────

// StartAttemptRequest opens or resumes an attempt.
type StartAttemptRequest struct {
	ExamID   uuid.UUID `json:"exam_id" binding:"required"`
	Password string    `json:"password"`
}

// RecordResponseRequest saves one answer.
type RecordResponseRequest struct {
	QuestionID uuid.UUID       `json:"question_id" binding:"required"`
	Payload    ResponsePayload `json:"payload"`
	IsFlagged  bool            `json:"is_flagged"`
}

// TabSwitchRequest reports that the taker left the exam tab.
type TabSwitchRequest struct {
	CurrentQuestionID string `json:"current_question_id" binding:"omitempty,uuid"`
}

// SealRequest hands the client's local snapshot to the server.
type SealRequest struct {
	Snapshot            map[uuid.UUID]ResponsePayload `json:"snapshot"`
	SealedAt            int64                         `json:"sealed_at" binding:"gte=0"`
	IntegrityHash       string                        `json:"integrity_hash" binding:"max=256"`
	Reason              string                        `json:"reason" binding:"max=255"`
	TimeRemainingAtSeal *int                          `json:"time_remaining_at_seal" binding:"omitempty,gte=0"`
}

// ResumeRequestBody asks an instructor to let the taker continue.
type ResumeRequestBody struct {
	ClientTimeRemaining *int   `json:"client_time_remaining" binding:"omitempty,gte=0"`
	RequesterName       string `json:"requester_name" binding:"required,max=255"`
	RequesterContact    string `json:"requester_contact" binding:"max=255"`
}

// GuestTokenRequest issues a guest token for open exams.
type GuestTokenRequest struct {
	Name string `json:"name" binding:"required,min=2,max=100"`
}

// ─── Instructor requests ────────────────────────────────────────────

// DeclineResumeRequest carries the instructor's reason.
type DeclineResumeRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// GradeResponseRequest scores one response by hand.
type GradeResponseRequest struct {
	PointsEarned *float64 `json:"points_earned" binding:"required"`
	Feedback     string   `json:"feedback" binding:"max=2000"`
}

// FinalizeAttemptRequest closes grading with optional feedback.
type FinalizeAttemptRequest struct {
	Feedback string `json:"feedback" binding:"max=5000"`
}

// BulkGradeItem is one entry of a bulk grading request.
type BulkGradeItem struct {
	ResponseID   uuid.UUID `json:"response_id" binding:"required"`
	PointsEarned *float64  `json:"points_earned" binding:"required"`
	Feedback     string    `json:"feedback" binding:"max=2000"`
}

// BulkGradeRequest grades many responses, possibly across attempts.
type BulkGradeRequest struct {
	Items []BulkGradeItem `json:"items" binding:"required,min=1,max=500,dive"`
}
