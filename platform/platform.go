package platform

import (
	"context"
	"fmt"
	"time"
)

// StatusChecker reports whether the watched account is currently live.
// Implementations return an error on network or decode failures; callers treat
// that as "no information" for the current cycle.
type StatusChecker interface {
	IsLive(ctx context.Context) (bool, error)
}

// Connector opens a streaming session for the watched account.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is an open connection to the platform's live data stream.
// Events is never closed; readers stop selecting on it after Close.
type Session interface {
	Events() <-chan Event
	Close() error
}

// EventKind enumerates the events a session can push.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventStreamEnded
	EventControl
	EventComment
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventStreamEnded:
		return "stream_ended"
	case EventControl:
		return "control"
	case EventComment:
		return "comment"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a single asynchronous signal from an open session.
// Code is set for EventControl, User/Text for EventComment, Err optionally for
// EventDisconnected.
type Event struct {
	Kind EventKind
	Code ControlCode
	User string
	Text string
	Err  error
	At   time.Time
}
