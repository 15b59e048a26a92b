package model

import (
	"errors"
	"fmt"
)

// TakerKind discriminates the Taker variant.
type TakerKind string

const (
	TakerStudent TakerKind = "student"
	TakerGuest   TakerKind = "guest"
)

// Taker identifies who sits an attempt: either a registered student or a guest.
// Exactly one of StudentID/GuestID is meaningful, selected by Kind.
type Taker struct {
	Kind      TakerKind `json:"kind"`
	StudentID int       `json:"student_id,omitempty"`
	GuestID   string    `json:"guest_id,omitempty"`
}

// StudentTaker builds the Student variant.
func StudentTaker(id int) Taker {
	return Taker{Kind: TakerStudent, StudentID: id}
}

// GuestTaker builds the Guest variant.
func GuestTaker(id string) Taker {
	return Taker{Kind: TakerGuest, GuestID: id}
}

// Validate checks the variant is well formed.
func (t Taker) Validate() error {
	switch t.Kind {
	case TakerStudent:
		if t.StudentID <= 0 || t.GuestID != "" {
			return errors.New("student taker requires a positive student id only")
		}
	case TakerGuest:
		if t.GuestID == "" || t.StudentID != 0 {
			return errors.New("guest taker requires a guest id only")
		}
	default:
		return fmt.Errorf("unknown taker kind %q", t.Kind)
	}
	return nil
}

// Key renders a stable identity string, e.g. "student:12".
func (t Taker) Key() string {
	if t.Kind == TakerGuest {
		return "guest:" + t.GuestID
	}
	return fmt.Sprintf("student:%d", t.StudentID)
}

// Columns returns the two nullable storage columns.
func (t Taker) Columns() (*int, *string) {
	if t.Kind == TakerGuest {
		id := t.GuestID
		return nil, &id
	}
	id := t.StudentID
	return &id, nil
}

// TakerFromColumns rebuilds the variant from nullable storage columns.
func TakerFromColumns(studentID *int, guestID *string) Taker {
	if studentID != nil {
		return StudentTaker(*studentID)
	}
	if guestID != nil {
		return GuestTaker(*guestID)
	}
	return Taker{}
}
