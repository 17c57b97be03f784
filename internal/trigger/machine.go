package trigger

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/emmett/whispering/internal/apperr"
	"github.com/emmett/whispering/internal/audio"
	"github.com/emmett/whispering/internal/capture"
	"github.com/emmett/whispering/internal/input"
	"github.com/emmett/whispering/internal/vad"
)

// Config holds what the machine needs at construction
type Config struct {
	Mode Mode

	// CancelKeys, when set, discard the current session once all of them are
	// held, whatever else is held with them
	CancelKeys input.Combo

	// SampleRate and Channels describe every frame fed to the machine
	SampleRate int
	Channels   int

	// Detector drives ToggleVAD. When it is nil, ToggleVAD activations
	// surface DetectorErr and leave the machine Idle.
	Detector    *vad.Detector
	DetectorErr error
}

// Machine is the session state machine. It is not safe for concurrent use;
// Processor owns it on a single goroutine. Every method returns the events
// the call produced, in order.
type Machine struct {
	mode       Mode
	cancelKeys input.Combo
	rate       int
	channels   int

	detector    *vad.Detector
	detectorErr error

	pre     *capture.PreBuffer
	session *capture.Session

	pressed    map[input.Key]bool
	comboHeld  bool
	cancelHeld bool

	// stream time just after the last fed frame
	now time.Duration
}

// NewMachine creates an Idle machine
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Mode == nil {
		return nil, fmt.Errorf("activation mode is required")
	}
	if len(cfg.Mode.Keys()) == 0 {
		return nil, fmt.Errorf("activation keys are required")
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("invalid audio layout: %d Hz, %d channels", cfg.SampleRate, cfg.Channels)
	}

	m := &Machine{
		mode:        cfg.Mode,
		cancelKeys:  cfg.CancelKeys,
		rate:        cfg.SampleRate,
		channels:    cfg.Channels,
		detector:    cfg.Detector,
		detectorErr: cfg.DetectorErr,
		pre:         capture.NewPreBuffer(PreBufferOf(cfg.Mode), cfg.SampleRate, cfg.Channels),
		pressed:     make(map[input.Key]bool),
	}

	if _, ok := cfg.Mode.(ToggleVAD); ok && m.detector == nil && m.detectorErr == nil {
		m.detectorErr = apperr.VADModel("activate", errors.New("no voice activity detector loaded"))
	}
	if m.detectorErr != nil && !apperr.Is(m.detectorErr, apperr.KindVADModel) {
		m.detectorErr = apperr.VADModel("activate", m.detectorErr)
	}

	return m, nil
}

// Mode returns the activation mode
func (m *Machine) Mode() Mode {
	return m.mode
}

// State returns the state of the current session, Idle when there is none
func (m *Machine) State() capture.State {
	if m.session == nil {
		return capture.Idle
	}
	return m.session.State()
}

// SessionID returns the current session's ID
func (m *Machine) SessionID() (uuid.UUID, bool) {
	if m.session == nil {
		return uuid.Nil, false
	}
	return m.session.ID, true
}

// Now returns the stream time just after the last frame fed
func (m *Machine) Now() time.Duration {
	return m.now
}

// PreBuffered returns the amount of look-back audio held
func (m *Machine) PreBuffered() time.Duration {
	return m.pre.Duration()
}

// FeedTrigger applies one key transition. Repeated presses of a held key and
// releases of a key that is not held are ignored.
func (m *Machine) FeedTrigger(ev input.Event) []Event {
	switch ev.Edge {
	case input.Down:
		if m.pressed[ev.Key] {
			return nil
		}
		m.pressed[ev.Key] = true

		if !m.cancelHeld && m.cancelKeys.Matches(m.pressed) {
			m.cancelHeld = true
			return m.cancel(ReasonUser)
		}
		if !m.comboHeld && m.mode.Keys().Matches(m.pressed) {
			m.comboHeld = true
			return m.comboDown()
		}

	case input.Up:
		if !m.pressed[ev.Key] {
			return nil
		}
		delete(m.pressed, ev.Key)

		if m.cancelHeld && m.cancelKeys.Contains(ev.Key) {
			m.cancelHeld = false
		}
		if m.comboHeld && m.mode.Keys().Contains(ev.Key) {
			m.comboHeld = false
			return m.comboUp()
		}
	}
	return nil
}

func (m *Machine) comboDown() []Event {
	switch m.mode.(type) {
	case PushToTalk:
		if m.session == nil {
			return m.begin()
		}

	case Toggle:
		if m.session == nil {
			return m.begin()
		}
		if m.session.State() == capture.Recording {
			return m.finalize()
		}

	case ToggleVAD:
		if m.detector == nil {
			return []Event{Failure{Err: m.detectorErr}}
		}
		if m.session == nil {
			return m.arm()
		}
		switch m.session.State() {
		case capture.Armed:
			return m.cancel(ReasonDisarmed)
		case capture.Recording:
			return m.finalize()
		}
	}
	return nil
}

// comboUp only ends push-to-talk; the toggle modes act on presses
func (m *Machine) comboUp() []Event {
	if _, ok := m.mode.(PushToTalk); !ok {
		return nil
	}
	if m.session != nil && m.session.State() == capture.Recording {
		return m.finalize()
	}
	return nil
}

// FeedAudio applies one captured frame. Every frame feeds the look-back
// buffer; frames inside a recording are appended to the session. In
// ToggleVAD the frame is split at the exact sample where a voice activity
// signal fires.
func (m *Machine) FeedAudio(f audio.Frame) []Event {
	if f.Channels != m.channels || f.SampleRate != m.rate {
		slog.Warn("Dropping frame with unexpected layout",
			"channels", f.Channels, "sample_rate", f.SampleRate,
			"want_channels", m.channels, "want_sample_rate", m.rate)
		return nil
	}
	defer func() { m.now = f.End() }()

	if m.session == nil {
		m.pre.Write(f.Samples)
		return nil
	}
	if _, ok := m.mode.(ToggleVAD); !ok {
		m.consume(f.Samples)
		return nil
	}

	signals, err := m.detector.Process(audio.Downmix(f.Samples, f.Channels), f.Timestamp)

	var out []Event
	pos := 0
	for _, sig := range signals {
		if m.session == nil {
			break
		}
		m.consume(f.Samples[pos*m.channels : sig.Offset*m.channels])
		pos = sig.Offset

		switch sig.Signal {
		case vad.StartReady:
			if m.session.State() == capture.Armed {
				out = append(out, m.record(sig.At)...)
			}
		case vad.StopReady:
			if m.session.State() == capture.Recording {
				out = append(out, m.finalize()...)
			}
		}
	}
	m.consume(f.Samples[pos*m.channels:])

	if err != nil {
		out = append(out, m.cancel(ReasonFailure)...)
		out = append(out, Failure{Err: err})
	}
	return out
}

// consume routes samples to the look-back buffer and, while recording, to
// the session.
func (m *Machine) consume(samples []float32) {
	if len(samples) == 0 {
		return
	}
	m.pre.Write(samples)
	if m.session != nil && m.session.State() == capture.Recording {
		_ = m.session.Append(samples)
	}
}

// Cancel discards the current session without an utterance
func (m *Machine) Cancel() []Event {
	return m.cancel(ReasonUser)
}

// DeviceLost cancels the current session, clears the look-back buffer and
// surfaces the loss as a single DeviceError.
func (m *Machine) DeviceLost(err error) []Event {
	out := m.cancel(ReasonDeviceLost)
	m.pre.Reset()
	if m.detector != nil {
		m.detector.Reset()
	}

	if !apperr.Is(err, apperr.KindDevice) {
		err = apperr.Device("capture", err)
	}
	return append(out, Failure{Err: err})
}

func (m *Machine) begin() []Event {
	s := capture.NewSession(m.rate, m.channels)
	if err := s.Begin(m.now); err != nil {
		return []Event{Failure{Err: err}}
	}
	m.session = s
	return []Event{SessionStarted{ID: s.ID, At: m.now}}
}

func (m *Machine) arm() []Event {
	s := capture.NewSession(m.rate, m.channels)
	if err := s.Arm(); err != nil {
		return []Event{Failure{Err: err}}
	}
	m.session = s
	m.detector.Reset()
	return []Event{SessionArmed{ID: s.ID}}
}

// record moves an armed session to Recording, seeded with the look-back
// buffer that ends at stream time at.
func (m *Machine) record(at time.Duration) []Event {
	if err := m.session.Splice(m.pre.Snapshot(), at); err != nil {
		return m.fail(err)
	}
	return []Event{SessionStarted{ID: m.session.ID, At: at}}
}

func (m *Machine) finalize() []Event {
	s := m.session
	u, err := s.Finalize()
	if err != nil {
		return m.fail(err)
	}
	s.Release()
	m.session = nil
	if m.detector != nil {
		m.detector.Reset()
	}
	return []Event{SessionEnded{ID: s.ID, Utterance: u}}
}

func (m *Machine) cancel(reason CancelReason) []Event {
	if m.session == nil {
		return nil
	}
	s := m.session
	s.Release()
	m.session = nil
	if m.detector != nil {
		m.detector.Reset()
	}
	return []Event{SessionCancelled{ID: s.ID, Reason: reason}}
}

// fail drops a session whose transition was refused
func (m *Machine) fail(err error) []Event {
	return append(m.cancel(ReasonFailure), Failure{Err: err})
}
