// Package vad classifies audio windows as speech or silence and reports
// when sustained speech or silence crosses the configured hysteresis.
package vad

import (
	"fmt"
	"time"

	"github.com/emmett/whispering/internal/apperr"
	"github.com/emmett/whispering/internal/audio"
)

// Signal is a hysteresis crossing reported by the Detector.
type Signal int

const (
	// StartReady fires when continuous speech first reaches SpeechDuration.
	StartReady Signal = iota + 1
	// StopReady fires when continuous silence first reaches SilenceDuration.
	StopReady
)

func (s Signal) String() string {
	switch s {
	case StartReady:
		return "start-ready"
	case StopReady:
		return "stop-ready"
	default:
		return "unknown"
	}
}

// Event is a Signal located in the stream.
type Event struct {
	Signal Signal
	// At is the stream time of the end of the window that crossed.
	At time.Duration
	// Offset is the sample frame index, within the slice passed to Process,
	// just after that window.
	Offset int
	// Probability is the classifier output for that window.
	Probability float64
}

// Config holds the detector hysteresis settings
type Config struct {
	// Threshold is the probability a window must exceed to count as speech
	Threshold float64

	// SpeechDuration of continuous speech before StartReady
	SpeechDuration time.Duration

	// SilenceDuration of continuous silence before StopReady
	SilenceDuration time.Duration

	// Window is the analysis window length
	Window time.Duration
}

// DefaultWindow is 512 samples at 16kHz.
const DefaultWindow = 32 * time.Millisecond

// DefaultConfig returns the toggle_vad defaults
func DefaultConfig() Config {
	return Config{
		Threshold:       0.5,
		SpeechDuration:  time.Second,
		SilenceDuration: 2 * time.Second,
		Window:          DefaultWindow,
	}
}

// Validate checks the configuration ranges
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("vad threshold must be within [0, 1], got %v", c.Threshold)
	}
	if c.SpeechDuration < 0 || c.SilenceDuration < 0 {
		return fmt.Errorf("vad durations must not be negative")
	}
	if c.Window < 0 {
		return fmt.Errorf("vad window must not be negative")
	}
	return nil
}

// Detector accumulates per-window classifications into speech and silence
// run lengths. It is not safe for concurrent use; one goroutine owns it.
type Detector struct {
	cfg        Config
	classifier Classifier
	sampleRate int
	window     int

	speechNeed  int
	silenceNeed int

	// partial window carried between calls
	pending []float32

	speech      int
	silence     int
	startFired  bool
	stopFired   bool
	probability float64

	// Observe, when set, is called once per classified window.
	Observe func(probability float64, speech bool)
}

// NewDetector creates a detector for mono audio at sampleRate. A nil
// classifier is a VADModelError.
func NewDetector(cfg Config, classifier Classifier, sampleRate int) (*Detector, error) {
	if classifier == nil {
		return nil, apperr.VADModel("create detector", fmt.Errorf("no classifier loaded"))
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}

	window := audio.FramesIn(cfg.Window, sampleRate)
	if window < 1 {
		window = 1
	}

	return &Detector{
		cfg:         cfg,
		classifier:  classifier,
		sampleRate:  sampleRate,
		window:      window,
		speechNeed:  audio.FramesIn(cfg.SpeechDuration, sampleRate),
		silenceNeed: audio.FramesIn(cfg.SilenceDuration, sampleRate),
		pending:     make([]float32, 0, window),
	}, nil
}

// WindowSize returns the analysis window length in samples
func (d *Detector) WindowSize() int {
	return d.window
}

// Probability returns the classifier output of the last complete window
func (d *Detector) Probability() float64 {
	return d.probability
}

// SpeechAccumulated returns the current run of speech
func (d *Detector) SpeechAccumulated() time.Duration {
	return audio.DurationOf(d.speech, d.sampleRate)
}

// SilenceAccumulated returns the current run of silence
func (d *Detector) SilenceAccumulated() time.Duration {
	return audio.DurationOf(d.silence, d.sampleRate)
}

// Process classifies mono samples whose first sample sits at stream time ts.
// Samples that do not fill a window are kept for the next call, so window
// boundaries depend only on the sample sequence.
func (d *Detector) Process(mono []float32, ts time.Duration) ([]Event, error) {
	var events []Event

	pos := 0
	for pos < len(mono) {
		need := d.window - len(d.pending)
		take := min(need, len(mono)-pos)
		d.pending = append(d.pending, mono[pos:pos+take]...)
		pos += take

		if len(d.pending) < d.window {
			break
		}

		p, err := d.classifier.Probability(d.pending, d.sampleRate)
		if err != nil {
			d.pending = d.pending[:0]
			return events, apperr.VADModel("classify window", err)
		}
		d.pending = d.pending[:0]

		at := ts + audio.DurationOf(pos, d.sampleRate)
		if sig, ok := d.step(p); ok {
			events = append(events, Event{Signal: sig, At: at, Offset: pos, Probability: p})
		}
	}

	return events, nil
}

// step advances the accumulators by one window
func (d *Detector) step(p float64) (Signal, bool) {
	d.probability = p
	speech := p > d.cfg.Threshold
	if d.Observe != nil {
		d.Observe(p, speech)
	}

	if speech {
		d.speech += d.window
		d.silence = 0
		d.stopFired = false
		if !d.startFired && d.speech >= d.speechNeed {
			d.startFired = true
			return StartReady, true
		}
		return 0, false
	}

	d.silence += d.window
	d.speech = 0
	d.startFired = false
	if !d.stopFired && d.silence >= d.silenceNeed {
		d.stopFired = true
		return StopReady, true
	}
	return 0, false
}

// Reset clears the accumulators and any partial window
func (d *Detector) Reset() {
	d.pending = d.pending[:0]
	d.speech = 0
	d.silence = 0
	d.startFired = false
	d.stopFired = false
	d.probability = 0
}
