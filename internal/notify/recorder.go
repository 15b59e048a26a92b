package notify

import (
	"context"
	"sync"
)

// Recorded is one captured Publish call.
type Recorded struct {
	Room    Room
	Event   Event
	Payload any
}

// Recorder captures notifications in memory. Setting Err makes every Publish
// fail after recording, which tests use to prove failures are swallowed.
type Recorder struct {
	mu   sync.Mutex
	msgs []Recorded
	Err  error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, room Room, event Event, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, Recorded{Room: room, Event: event, Payload: payload})
	return r.Err
}

// All returns a copy of everything recorded so far.
func (r *Recorder) All() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.msgs...)
}

// Find returns the recorded messages for event in room.
func (r *Recorder) Find(room Room, event Event) []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Recorded
	for _, m := range r.msgs {
		if m.Room == room && m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// Reset drops everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}
