package app

import (
	"context"
	"errors"
	"fmt"
)

// SessionHandler receives the discrete events a live session emits. Calls
// arrive at most once per event; ordering between a final user transcript and
// its correction is not guaranteed relative to the assistant's reply.
type SessionHandler interface {
	OnUserFinal(text string)
	OnAssistantFinal(text string)
	OnUserCorrection(text string)
	OnSessionError(err error)
}

// Session is the live connection abstraction. Implementations deliver events
// to the handler registered before Start.
//
// UpdateInstructions must be called before Start: the session's initial
// handshake snapshots the instruction payload, and a later update can lose
// the race against it.
type Session interface {
	Start(ctx context.Context) error
	Stop()
	// SendText may be called before the session is connected; the text is
	// queued and delivered once the session starts.
	SendText(text string)
	UpdateInstructions(text string)
	RequestMicPermission(ctx context.Context) (bool, error)
	SetHandler(h SessionHandler)
}

// ErrPermissionDenied is surfaced to the UI boundary when microphone access
// is refused; the core does not retry.
var ErrPermissionDenied = errors.New("microphone permission denied")

// SessionError wraps transport/connection failures. Non-fatal: transcript
// state is unaffected.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session error: %s", e.Op)
	}
	return fmt.Sprintf("session error: %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
