package trigger

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/emmett/whispering/internal/apperr"
	"github.com/emmett/whispering/internal/audio"
	"github.com/emmett/whispering/internal/capture"
	"github.com/emmett/whispering/internal/input"
	"github.com/emmett/whispering/internal/metrics"
)

// Processor is the single goroutine that owns a Machine. Audio frames, key
// events, device errors and cancel requests reach it only through channels.
type Processor struct {
	machine *Machine
	frames  <-chan audio.Frame
	keys    <-chan input.Event
	errs    <-chan error
	cancel  chan struct{}
	events  chan Event
	metrics *metrics.Metrics

	state atomic.Int32
}

// Option configures a Processor
type Option func(*Processor)

// WithMetrics records session and frame counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithEventBuffer sets the capacity of the Events channel
func WithEventBuffer(n int) Option {
	return func(p *Processor) { p.events = make(chan Event, n) }
}

// NewProcessor wires a machine to its inputs. Any channel may be nil.
func NewProcessor(m *Machine, frames <-chan audio.Frame, keys <-chan input.Event, errs <-chan error, opts ...Option) *Processor {
	p := &Processor{
		machine: m,
		frames:  frames,
		keys:    keys,
		errs:    errs,
		cancel:  make(chan struct{}, 1),
		events:  make(chan Event, 16),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Events returns the machine's events. It is closed when Run returns.
func (p *Processor) Events() <-chan Event {
	return p.events
}

// Cancel asks the processor to discard the current session. It never blocks.
func (p *Processor) Cancel() {
	select {
	case p.cancel <- struct{}{}:
	default:
	}
}

// State returns the session state as of the last processed input. It is safe
// to call from any goroutine.
func (p *Processor) State() capture.State {
	return capture.State(p.state.Load())
}

// Run processes inputs until ctx is cancelled
func (p *Processor) Run(ctx context.Context) error {
	defer close(p.events)

	frames, keys, errs := p.frames, p.keys, p.errs
	for {
		var out []Event

		select {
		case <-ctx.Done():
			return nil

		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			p.metrics.RecordFrame()
			out = p.machine.FeedAudio(f)

		case ev, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			out = p.machine.FeedTrigger(ev)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			out = p.machine.DeviceLost(err)

		case <-p.cancel:
			out = p.machine.Cancel()
		}

		p.state.Store(int32(p.machine.State()))

		for _, ev := range out {
			p.observe(ev)
			select {
			case p.events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// observe logs and counts an event before it is published
func (p *Processor) observe(ev Event) {
	switch ev := ev.(type) {
	case SessionArmed:
		slog.Info("Listening for speech", "session", ev.ID)
	case SessionStarted:
		p.metrics.RecordSessionStarted()
		slog.Info("Recording started", "session", ev.ID, "at", ev.At)
	case SessionEnded:
		p.metrics.RecordSessionEnded(ev.Utterance.Duration())
		slog.Info("Recording finished", "session", ev.ID, "duration", ev.Utterance.Duration())
	case SessionCancelled:
		p.metrics.RecordSessionCancelled()
		slog.Info("Recording cancelled", "session", ev.ID, "reason", ev.Reason)
	case Failure:
		p.metrics.RecordError(apperr.KindOf(ev.Err).String())
		slog.Warn("Activation failure", "error", ev.Err)
	}
}
