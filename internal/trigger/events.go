package trigger

import (
	"time"

	"github.com/google/uuid"

	"github.com/emmett/whispering/internal/capture"
)

// Event is an observable change of session state. The set is closed.
type Event interface {
	isEvent()
}

// SessionArmed reports a toggle_vad session waiting for speech.
type SessionArmed struct {
	ID uuid.UUID
}

// SessionStarted reports the start of recording. At is the stream time the
// recording covers from, before look-back is added.
type SessionStarted struct {
	ID uuid.UUID
	At time.Duration
}

// SessionEnded carries the finalized audio of a session.
type SessionEnded struct {
	ID        uuid.UUID
	Utterance capture.Utterance
}

// SessionCancelled reports a session discarded without an utterance.
type SessionCancelled struct {
	ID     uuid.UUID
	Reason CancelReason
}

// Failure surfaces an error the machine recovered from.
type Failure struct {
	Err error
}

func (SessionArmed) isEvent()     {}
func (SessionStarted) isEvent()   {}
func (SessionEnded) isEvent()     {}
func (SessionCancelled) isEvent() {}
func (Failure) isEvent()          {}

// CancelReason says why a session was discarded.
type CancelReason int

const (
	ReasonUser CancelReason = iota
	ReasonDisarmed
	ReasonDeviceLost
	ReasonFailure
)

func (r CancelReason) String() string {
	switch r {
	case ReasonDisarmed:
		return "disarmed"
	case ReasonDeviceLost:
		return "device lost"
	case ReasonFailure:
		return "failure"
	default:
		return "user"
	}
}
