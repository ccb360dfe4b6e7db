// internal/chat/state.go
package chat

import (
	"errors"
	"fmt"
)

// Phase is where a session is in its current interaction
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseStreaming
	PhaseDone
	PhaseErrored
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	case PhaseDone:
		return "done"
	case PhaseErrored:
		return "errored"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Active reports whether a request is in flight
func (p Phase) Active() bool {
	return p == PhaseSending || p == PhaseStreaming
}

// Terminal reports whether the interaction has ended
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseErrored || p == PhaseCancelled
}

// Common error types
var (
	ErrBusy           = errors.New("a reply is still streaming")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrNothingToRetry = errors.New("no failed or cancelled message to retry")
)

// TransportError means the connection failed before the backend could answer
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BackendError carries the backend's own error message. The send can be retried.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return e.Message
}

// State is a snapshot of the current interaction
type State struct {
	Phase Phase

	// Content is the assistant text received so far. It is cleared once the
	// reply is committed as a message and kept as failed output otherwise.
	Content string

	Err          error
	CancelReason string
	Prompt       string
	RunID        string
}

// Update is published on every change during an interaction
type Update struct {
	SessionID int64
	State     State
}

// Terminal reports whether this is the last update of the interaction
func (u Update) Terminal() bool {
	return u.State.Phase.Terminal()
}
