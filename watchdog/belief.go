package watchdog

import (
	"fmt"
	"time"
)

// Belief is the watchdog's current guess of the stream state.
type Belief int32

const (
	Unknown Belief = iota
	Offline
	Live
)

func (b Belief) String() string {
	switch b {
	case Unknown:
		return "unknown"
	case Offline:
		return "offline"
	case Live:
		return "live"
	default:
		return fmt.Sprintf("belief(%d)", int32(b))
	}
}

// MarshalText renders the belief by name in JSON and logs.
func (b Belief) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// Transition reasons.
const (
	ReasonPoll         = "poll"
	ReasonStreamEnded  = "stream_ended"
	ReasonDisconnected = "disconnected"
	reasonControl      = "control:"
)

// Transition describes one belief change.
type Transition struct {
	ID       string    `json:"id"`
	Platform string    `json:"platform"`
	Account  string    `json:"account"`
	From     Belief    `json:"from"`
	To       Belief    `json:"to"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// Snapshot is a point-in-time copy of the watchdog state.
type Snapshot struct {
	Platform     string    `json:"platform"`
	Account      string    `json:"account"`
	Belief       Belief    `json:"belief"`
	Connected    bool      `json:"connected"`
	Polls        int       `json:"polls"`
	Transitions  int       `json:"transitions"`
	LastPoll     time.Time `json:"last_poll,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
	LiveSince    time.Time `json:"live_since,omitzero"`
	TransitionID string    `json:"transition_id,omitempty"`
}
