package session

import (
	"context"
	"errors"

	"github.com/qmuntal/stateless"
)

// Status reflects where a session is in its lifecycle.
type Status string

const (
	StatusConnecting  Status = "connecting"
	StatusActive      Status = "active"
	StatusTearingDown Status = "tearing_down"
	StatusClosed      Status = "closed"
)

const (
	triggerRegistered = "registered"
	triggerTeardown   = "teardown"
	triggerReleased   = "released"
)

var ErrInvalidSessionID = errors.New("session id must be a valid UUID")

// Conn is the transport handle the registry writes to. gorilla's *websocket.Conn
// satisfies it; tests use a recording fake.
type Conn interface {
	WriteJSON(v any) error
}

// Summarizer runs once per teardown. Implemented by the chat package and
// injected to keep the dependency direction chat -> session.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID string) error
}

// newLifecycle builds the per-session state machine. There is no transition
// back to active; teardown always ends in closed.
func newLifecycle() *stateless.StateMachine {
	sm := stateless.NewStateMachine(StatusConnecting)
	sm.Configure(StatusConnecting).Permit(triggerRegistered, StatusActive)
	sm.Configure(StatusActive).Permit(triggerTeardown, StatusTearingDown)
	sm.Configure(StatusTearingDown).Permit(triggerReleased, StatusClosed)
	return sm
}
