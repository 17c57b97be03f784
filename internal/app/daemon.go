package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/emmett/whispering/internal/apperr"
	"github.com/emmett/whispering/internal/audio"
	"github.com/emmett/whispering/internal/dispatch"
	"github.com/emmett/whispering/internal/input"
	"github.com/emmett/whispering/internal/metrics"
	"github.com/emmett/whispering/internal/notify"
	"github.com/emmett/whispering/internal/output"
	"github.com/emmett/whispering/internal/postprocess"
	"github.com/emmett/whispering/internal/resilience"
	"github.com/emmett/whispering/internal/stt"
	"github.com/emmett/whispering/internal/trigger"
)

// HealthReporter receives the daemon's readiness
type HealthReporter interface {
	SetServing(ok bool)
}

// eventWriter is implemented by sinks that also record daemon events
type eventWriter interface {
	Event(eventType, message string) error
}

// Components are the parts the daemon drives. Build assembles the real ones;
// tests supply fakes.
type Components struct {
	Audio      audio.Source
	Input      input.Source
	Processor  *trigger.Processor
	Dispatcher *dispatch.Dispatcher
	Engine     stt.Transcriber
	Table      *postprocess.Table
	Sink       output.Sink
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
	Health     HealthReporter

	// Autosend presses Return after delivering text
	Autosend bool

	// RecordingPath, when set, receives the last transcribed utterance as WAV
	RecordingPath string

	// Reconnect overrides the backoff used after device loss
	Reconnect resilience.RetryConfig

	// Services run alongside the pipeline until it stops
	Services []Service
}

// Service is a named background server such as the metrics endpoint
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// Daemon routes session events to the dispatcher and transcription results
// to the output sink
type Daemon struct {
	c Components

	reconnecting atomic.Bool
	wg           sync.WaitGroup
}

// NewDaemon creates a daemon from its components
func NewDaemon(c Components) *Daemon {
	if c.Notifier == nil {
		c.Notifier = notify.Disabled{}
	}
	if c.Reconnect.MaxRetries == 0 {
		c.Reconnect = resilience.DeviceRetryConfig()
	}
	return &Daemon{c: c}
}

// Run starts capture and blocks until ctx is cancelled
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.c.Audio.Start(ctx); err != nil {
		return apperr.Device("start capture", err)
	}
	defer d.c.Audio.Stop()

	if err := d.c.Input.Start(ctx); err != nil {
		return err
	}
	defer d.c.Input.Stop()

	for _, svc := range d.c.Services {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := svc.Run(ctx); err != nil {
				slog.Error("Service stopped", "service", svc.Name, "error", err)
			}
		}()
	}

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.c.Processor.Run(ctx)
	}()
	go func() {
		defer d.wg.Done()
		d.c.Dispatcher.Run(ctx)
	}()
	defer func() {
		cancel()
		d.wg.Wait()
	}()

	d.setServing(true)
	defer d.setServing(false)
	slog.Info("Daemon ready")

	events := d.c.Processor.Events()
	results := d.c.Dispatcher.Results()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Daemon stopping")
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.handleEvent(ctx, ev)

		case res, ok := <-results:
			if !ok {
				return nil
			}
			d.handleResult(ctx, res)
		}
	}
}

// Close releases the sink and the engine
func (d *Daemon) Close() error {
	var errs []error
	if d.c.Sink != nil {
		errs = append(errs, d.c.Sink.Close())
	}
	if d.c.Engine != nil {
		errs = append(errs, d.c.Engine.Close())
	}
	return errors.Join(errs...)
}

func (d *Daemon) handleEvent(ctx context.Context, ev trigger.Event) {
	switch ev := ev.(type) {
	case trigger.SessionArmed:
		d.c.Notifier.Notify(notify.Listening, "")
		d.streamEvent("session_armed", ev.ID.String())

	case trigger.SessionStarted:
		d.c.Notifier.Notify(notify.Recording, "")
		d.streamEvent("session_started", ev.ID.String())

	case trigger.SessionEnded:
		if replaced, ok := d.c.Dispatcher.Submit(ev.Utterance); ok {
			slog.Info("Dropped waiting utterance for a newer one", "dropped", replaced)
		}
		d.c.Notifier.Notify(notify.Transcribing, "")
		d.streamEvent("session_ended", ev.ID.String())

	case trigger.SessionCancelled:
		if ev.Reason == trigger.ReasonUser {
			if n := d.c.Dispatcher.Discard(); n > 0 {
				slog.Info("Discarded pending transcriptions", "count", n)
			}
		}
		d.streamEvent("session_cancelled", ev.Reason.String())

	case trigger.Failure:
		kind := apperr.KindOf(ev.Err)
		d.c.Notifier.Notify(failureLabel(kind), ev.Err.Error())
		d.streamEvent("failure", ev.Err.Error())

		if kind == apperr.KindDevice {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.reconnect(ctx)
			}()
		}
	}
}

func (d *Daemon) handleResult(ctx context.Context, res dispatch.Result) {
	if res.Samples != nil && d.c.RecordingPath != "" {
		if err := audio.WriteWAVFile(d.c.RecordingPath, res.Samples, stt.SampleRate, 1); err != nil {
			slog.Warn("Failed to save recording", "path", d.c.RecordingPath, "error", err)
		}
	}

	if res.Err != nil {
		if errors.Is(res.Err, dispatch.ErrEmptyUtterance) || errors.Is(res.Err, dispatch.ErrTooShort) {
			slog.Info("Utterance skipped", "session", res.SessionID, "reason", res.Err)
			d.c.Notifier.Notify(notify.NoVoiceDetected, "")
			return
		}
		slog.Error("Transcription failed", "session", res.SessionID, "error", res.Err)
		d.c.Metrics.RecordError(apperr.KindOf(res.Err).String())
		d.c.Notifier.Notify(failureLabel(apperr.KindTranscription), res.Err.Error())
		return
	}

	text := d.c.Table.Process(res.Text)
	slog.Info("Transcribed",
		"session", res.SessionID,
		"audio", res.AudioDuration,
		"elapsed", res.Elapsed,
		"text", text)

	if text == "" {
		d.c.Notifier.Notify(notify.NoVoiceDetected, "")
		return
	}
	d.c.Notifier.Notify(notify.Summary(text), text)

	if err := d.c.Sink.Deliver(ctx, text, d.c.Autosend); err != nil {
		slog.Error("Failed to deliver text", "error", err)
		d.c.Metrics.RecordError(apperr.KindOf(err).String())
		d.c.Notifier.Notify(failureLabel(apperr.KindOutput), err.Error())
	}
}

// reconnect reopens the capture device with backoff. Only one attempt runs
// at a time.
func (d *Daemon) reconnect(ctx context.Context) {
	if !d.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer d.reconnecting.Store(false)

	d.setServing(false)
	slog.Warn("Capture device lost, reconnecting")

	err := resilience.Retry(ctx, d.c.Reconnect, func() error {
		if err := d.c.Audio.Reconnect(ctx); err != nil {
			return apperr.Device("reconnect", err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Capture device did not come back", "error", err)
			d.c.Notifier.Notify("Microphone unavailable", err.Error())
		}
		return
	}

	slog.Info("Capture device reconnected")
	d.setServing(true)
}

func (d *Daemon) setServing(ok bool) {
	if d.c.Health != nil {
		d.c.Health.SetServing(ok)
	}
}

func (d *Daemon) streamEvent(eventType, message string) {
	if w, ok := d.c.Sink.(eventWriter); ok {
		if err := w.Event(eventType, message); err != nil {
			slog.Debug("Failed to write event", "type", eventType, "error", err)
		}
	}
}

func failureLabel(kind apperr.Kind) string {
	switch kind {
	case apperr.KindDevice:
		return "Microphone error"
	case apperr.KindVADModel:
		return "Voice detection unavailable"
	case apperr.KindTranscription:
		return "Transcription failed"
	case apperr.KindOutput:
		return "Could not paste text"
	default:
		return "Error"
	}
}
