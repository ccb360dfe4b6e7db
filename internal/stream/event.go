// internal/stream/event.go
package stream

// EventType names a protocol event
type EventType string

const (
	TypeUserMessageSaved EventType = "user_message_saved"
	TypeContent          EventType = "content"
	TypeDone             EventType = "done"
	TypeError            EventType = "error"
	TypeCancelled        EventType = "cancelled"
)

// Known reports whether t is part of the protocol
func (t EventType) Known() bool {
	switch t {
	case TypeUserMessageSaved, TypeContent, TypeDone, TypeError, TypeCancelled:
		return true
	default:
		return false
	}
}

// Event is one decoded frame of the send-message stream
type Event struct {
	Type          EventType `json:"type"`
	Data          string    `json:"data,omitempty"`
	Error         string    `json:"error,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	UserMessageID *int64    `json:"user_message_id,omitempty"`
	AIMessageID   *int64    `json:"ai_message_id,omitempty"`

	// Synthetic is set on events produced locally when the stream broke
	Synthetic bool `json:"-"`
}

// Terminal reports whether the event ends the stream
func (e Event) Terminal() bool {
	switch e.Type {
	case TypeDone, TypeError, TypeCancelled:
		return true
	default:
		return false
	}
}

// Source yields events one at a time until the stream ends
type Source interface {
	Next() (Event, bool)
	Close() error
}

// FromEvents returns a Source replaying a fixed sequence.
// Like the decoder it stops after the first terminal event.
func FromEvents(events ...Event) Source {
	return &replay{events: events}
}

type replay struct {
	events []Event
	pos    int
	done   bool
}

func (r *replay) Next() (Event, bool) {
	if r.done || r.pos >= len(r.events) {
		r.done = true
		return Event{}, false
	}
	ev := r.events[r.pos]
	r.pos++
	if ev.Terminal() {
		r.done = true
	}
	return ev, true
}

func (r *replay) Close() error {
	r.done = true
	return nil
}

// ID returns a pointer to id, for building events by hand
func ID(id int64) *int64 {
	return &id
}
