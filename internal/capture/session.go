// Package capture holds the audio of a recording session: the look-back
// pre-buffer and the session buffer it is spliced into.
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emmett/whispering/internal/audio"
)

// State is the lifecycle position of a recording session.
type State int

const (
	Idle State = iota
	Armed
	Recording
	Finalizing
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// ErrInvalidTransition is returned for any transition that does not move the
// session forward through Idle, Armed, Recording, Finalizing.
var ErrInvalidTransition = errors.New("invalid session transition")

// Utterance is the finalized audio of one session in the capture layout.
type Utterance struct {
	SessionID  uuid.UUID
	Samples    []float32
	SampleRate int
	Channels   int
	// Start and End are stream times.
	Start time.Duration
	End   time.Duration
}

// Frames returns the number of sample frames
func (u Utterance) Frames() int {
	if u.Channels <= 0 {
		return 0
	}
	return len(u.Samples) / u.Channels
}

// Duration returns the audio length
func (u Utterance) Duration() time.Duration {
	return audio.DurationOf(u.Frames(), u.SampleRate)
}

// Empty reports whether the utterance holds no audio
func (u Utterance) Empty() bool {
	return u.Frames() == 0
}

// Session accumulates the audio of one activation.
type Session struct {
	ID      uuid.UUID
	Created time.Time

	state      State
	sampleRate int
	channels   int
	buf        []float32
	start      time.Duration
}

// NewSession creates an Idle session for audio at rate and channels
func NewSession(rate, channels int) *Session {
	if channels < 1 {
		channels = 1
	}
	return &Session{
		ID:         uuid.New(),
		Created:    time.Now(),
		sampleRate: rate,
		channels:   channels,
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return s.state
}

// Start returns the stream time of the first buffered sample
func (s *Session) Start() time.Duration {
	return s.start
}

// Duration returns the buffered audio length
func (s *Session) Duration() time.Duration {
	return audio.DurationOf(len(s.buf)/s.channels, s.sampleRate)
}

// Arm moves Idle to Armed
func (s *Session) Arm() error {
	if s.state != Idle {
		return fmt.Errorf("%w: arm from %s", ErrInvalidTransition, s.state)
	}
	s.state = Armed
	return nil
}

// Begin starts recording at stream time at with an empty buffer
func (s *Session) Begin(at time.Duration) error {
	return s.Splice(nil, at)
}

// Splice starts recording with the look-back snapshot already in the buffer.
// The snapshot ends at stream time at, so the session starts at at minus the
// snapshot duration.
func (s *Session) Splice(snapshot []float32, at time.Duration) error {
	if s.state != Idle && s.state != Armed {
		return fmt.Errorf("%w: record from %s", ErrInvalidTransition, s.state)
	}
	if len(snapshot)%s.channels != 0 {
		return fmt.Errorf("snapshot of %d samples is not frame aligned", len(snapshot))
	}

	s.buf = make([]float32, len(snapshot), len(snapshot)+s.sampleRate*s.channels)
	copy(s.buf, snapshot)
	s.start = at - audio.DurationOf(len(snapshot)/s.channels, s.sampleRate)
	s.state = Recording
	return nil
}

// Append extends the buffer with interleaved samples
func (s *Session) Append(samples []float32) error {
	if s.state != Recording {
		return fmt.Errorf("%w: append while %s", ErrInvalidTransition, s.state)
	}
	s.buf = append(s.buf, samples...)
	return nil
}

// Finalize ends recording and hands the buffer over as an Utterance. The
// session keeps no reference to the samples afterwards.
func (s *Session) Finalize() (Utterance, error) {
	if s.state != Recording {
		return Utterance{}, fmt.Errorf("%w: finalize from %s", ErrInvalidTransition, s.state)
	}
	s.state = Finalizing

	u := Utterance{
		SessionID:  s.ID,
		Samples:    s.buf,
		SampleRate: s.sampleRate,
		Channels:   s.channels,
		Start:      s.start,
	}
	u.End = u.Start + u.Duration()
	s.buf = nil
	return u, nil
}

// Release drops the buffer and returns the session to Idle
func (s *Session) Release() {
	s.buf = nil
	s.state = Idle
}
