// Package trigger turns key transitions, audio frames and voice activity
// into recording sessions.
package trigger

import (
	"time"

	"github.com/emmett/whispering/internal/input"
	"github.com/emmett/whispering/internal/vad"
)

// Mode is the activation behaviour. The set of modes is closed: PushToTalk,
// Toggle and ToggleVAD.
type Mode interface {
	// Keys returns the activation combination.
	Keys() input.Combo
	// Name returns the configuration tag of the mode.
	Name() string
	isMode()
}

// PushToTalk records while the combination is held.
type PushToTalk struct {
	Combo input.Combo
}

func (m PushToTalk) Keys() input.Combo { return m.Combo }
func (PushToTalk) Name() string        { return "push_to_talk" }
func (PushToTalk) isMode()             {}

// Toggle starts recording on one press of the combination and stops on the
// next.
type Toggle struct {
	Combo input.Combo
}

func (m Toggle) Keys() input.Combo { return m.Combo }
func (Toggle) Name() string        { return "toggle" }
func (Toggle) isMode()             {}

// ToggleVAD arms on a press of the combination; voice activity then starts
// and stops the recording.
type ToggleVAD struct {
	Combo             input.Combo
	Threshold         float64
	SpeechDuration    time.Duration
	SilenceDuration   time.Duration
	PreBufferDuration time.Duration
}

func (m ToggleVAD) Keys() input.Combo { return m.Combo }
func (ToggleVAD) Name() string        { return "toggle_vad" }
func (ToggleVAD) isMode()             {}

// DefaultToggleVAD returns ToggleVAD with the default hysteresis.
func DefaultToggleVAD(combo input.Combo) ToggleVAD {
	d := vad.DefaultConfig()
	return ToggleVAD{
		Combo:             combo,
		Threshold:         d.Threshold,
		SpeechDuration:    d.SpeechDuration,
		SilenceDuration:   d.SilenceDuration,
		PreBufferDuration: time.Second,
	}
}

// VADConfig returns the detector settings for the mode.
func (m ToggleVAD) VADConfig(window time.Duration) vad.Config {
	return vad.Config{
		Threshold:       m.Threshold,
		SpeechDuration:  m.SpeechDuration,
		SilenceDuration: m.SilenceDuration,
		Window:          window,
	}
}

// PreBufferOf returns the look-back duration a mode needs.
func PreBufferOf(m Mode) time.Duration {
	switch m := m.(type) {
	case ToggleVAD:
		return m.PreBufferDuration
	case PushToTalk, Toggle:
		return 0
	default:
		return 0
	}
}
