// Package dispatch runs transcription on its own worker, one utterance at a
// time, with a single waiting slot.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emmett/whispering/internal/apperr"
	"github.com/emmett/whispering/internal/audio"
	"github.com/emmett/whispering/internal/capture"
	"github.com/emmett/whispering/internal/metrics"
	"github.com/emmett/whispering/internal/stt"
)

var (
	// ErrEmptyUtterance is returned for an utterance without audio.
	ErrEmptyUtterance = errors.New("empty utterance")
	// ErrTooShort is returned for an utterance below the minimum duration.
	ErrTooShort = errors.New("utterance too short")
	// ErrModelUnavailable is returned when no engine is loaded.
	ErrModelUnavailable = errors.New("transcription model unavailable")
)

// DefaultMinDuration is the shortest utterance sent to the engine.
const DefaultMinDuration = 100 * time.Millisecond

// Result is the outcome of one utterance.
type Result struct {
	SessionID     uuid.UUID
	Text          string
	Err           error
	AudioDuration time.Duration
	Elapsed       time.Duration
	// Samples is the 16kHz mono audio the engine received.
	Samples []float32
}

// Config holds dispatcher settings
type Config struct {
	// Prompt is resolved once and sent with every utterance
	Prompt stt.Prompt

	// MinDuration rejects shorter utterances
	MinDuration time.Duration

	// ResultBuffer is the capacity of the Results channel
	ResultBuffer int
}

// Dispatcher owns the transcription worker. Submit never blocks: an
// utterance waits in a single slot, and a newer one replaces it if the
// worker has not picked it up yet.
type Dispatcher struct {
	engine      stt.Transcriber
	prompt      string
	minDuration time.Duration
	metrics     *metrics.Metrics

	mu       sync.Mutex
	queued   *capture.Utterance
	busy     bool
	inFlight uuid.UUID
	discard  bool

	wake    chan struct{}
	results chan Result
}

// New creates a dispatcher. A nil engine fails every utterance with
// ErrModelUnavailable.
func New(engine stt.Transcriber, cfg Config, m *metrics.Metrics) *Dispatcher {
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = DefaultMinDuration
	}
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = 4
	}
	return &Dispatcher{
		engine:      engine,
		prompt:      stt.ResolvePrompt(cfg.Prompt),
		minDuration: cfg.MinDuration,
		metrics:     m,
		wake:        make(chan struct{}, 1),
		results:     make(chan Result, cfg.ResultBuffer),
	}
}

// Results returns the transcription results. It is closed when Run returns.
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// Submit hands u to the worker. If another utterance is still waiting it is
// dropped and its session ID returned.
func (d *Dispatcher) Submit(u capture.Utterance) (replaced uuid.UUID, ok bool) {
	d.mu.Lock()
	if d.queued != nil {
		replaced, ok = d.queued.SessionID, true
	}
	d.queued = &u
	d.mu.Unlock()

	if ok {
		d.metrics.RecordQueueReplacement()
		slog.Info("Replaced waiting utterance", "dropped", replaced, "session", u.SessionID)
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return replaced, ok
}

// Discard drops the waiting utterance and marks the running one so its
// result is not published. It returns how many utterances were affected.
func (d *Dispatcher) Discard() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	if d.queued != nil {
		d.queued = nil
		n++
	}
	if d.busy && !d.discard {
		d.discard = true
		n++
	}
	return n
}

// Busy reports whether a transcription is running
func (d *Dispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

// Pending reports whether an utterance is waiting
func (d *Dispatcher) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queued != nil
}

// Run processes utterances until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.results)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.wake:
		}

		for {
			u, ok := d.take()
			if !ok {
				break
			}

			res := d.transcribe(ctx, u)
			if d.finish() {
				slog.Info("Discarded transcription of cancelled session", "session", u.SessionID)
				continue
			}

			select {
			case d.results <- res:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (d *Dispatcher) take() (capture.Utterance, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.queued == nil {
		return capture.Utterance{}, false
	}
	u := *d.queued
	d.queued = nil
	d.busy = true
	d.discard = false
	d.inFlight = u.SessionID
	return u, true
}

// finish clears the running job and reports whether it was discarded
func (d *Dispatcher) finish() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	dropped := d.discard
	d.busy = false
	d.discard = false
	d.inFlight = uuid.Nil
	return dropped
}

func (d *Dispatcher) transcribe(ctx context.Context, u capture.Utterance) Result {
	start := time.Now()
	res := Result{SessionID: u.SessionID, AudioDuration: u.Duration()}

	samples, err := audio.ToTarget(u.Samples, u.SampleRate, u.Channels)
	switch {
	case err != nil:
		res.Err = apperr.Transcription("resample", err)
	case len(samples) == 0:
		res.Err = apperr.Transcription("check utterance", ErrEmptyUtterance)
	case res.AudioDuration < d.minDuration:
		res.Err = apperr.Transcription("check utterance",
			fmt.Errorf("%w: %v < %v", ErrTooShort, res.AudioDuration, d.minDuration))
	case d.engine == nil:
		res.Err = apperr.Transcription("transcribe", ErrModelUnavailable)
	default:
		res.Samples = samples
		text, err := d.engine.Transcribe(ctx, samples, d.prompt)
		if err != nil {
			res.Err = apperr.Transcription("transcribe", err)
		}
		res.Text = text
		d.metrics.RecordTranscription(time.Since(start), err)
	}

	res.Elapsed = time.Since(start)
	if res.Err == nil {
		slog.Debug("Transcribed utterance",
			"session", u.SessionID,
			"audio", res.AudioDuration,
			"elapsed", res.Elapsed,
			"chars", len(res.Text))
	}
	return res
}
