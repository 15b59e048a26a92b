// Package notify is the fire-and-forget broadcast port used by the attempt
// lifecycle to keep watchers (instructors, the taker's result page) current.
// Delivery is best effort; callers never fail an operation on a publish error.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Room scopes a notification, e.g. "exam:<id>" or "attempt:<id>".
type Room string

// ExamRoom is watched by instructors monitoring an exam.
func ExamRoom(examID uuid.UUID) Room {
	return Room("exam:" + examID.String())
}

// AttemptRoom is watched by the taker of a single attempt.
func AttemptRoom(attemptID uuid.UUID) Room {
	return Room("attempt:" + attemptID.String())
}

// Event names a notification.
type Event string

const (
	EventStarted       Event = "exam:started"
	EventResponseSaved Event = "exam:response_saved"
	EventTabSwitch     Event = "exam:tab_switch"
	EventSealed        Event = "exam:sealed"
	EventSubmitted     Event = "exam:submitted"

	EventResumeRequested Event = "resume:requested"
	EventResumeApproved  Event = "resume:approved"
	EventResumeDeclined  Event = "resume:declined"

	EventResponseGraded   Event = "grading:response_graded"
	EventAttemptFinalized Event = "grading:attempt_finalized"
)

// Publisher broadcasts event with payload to everyone in room.
type Publisher interface {
	Publish(ctx context.Context, room Room, event Event, payload any) error
}

// Message is the envelope written to the transport.
type Message struct {
	Room    Room            `json:"room"`
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

// Encode marshals payload into a Message envelope.
func Encode(room Room, event Event, payload any, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Room: room, Event: event, Payload: raw, SentAt: at})
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Publish(context.Context, Room, Event, any) error { return nil }
