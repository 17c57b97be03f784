package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the Prometheus collectors of the capture daemon.
// All Record methods are safe on a nil receiver so components can run
// without metrics.
type Metrics struct {
	// Session metrics
	SessionsStarted   prometheus.Counter
	SessionsEnded     prometheus.Counter
	SessionsCancelled prometheus.Counter
	UtteranceDuration prometheus.Histogram

	// Audio metrics
	FramesProcessed prometheus.Counter
	FramesDropped   prometheus.Counter

	// VAD metrics
	VADWindows       prometheus.Counter
	VADSpeechWindows prometheus.Counter

	// Dispatch metrics
	QueueReplacements     prometheus.Counter
	TranscriptionDuration prometheus.Histogram
	TranscriptionFailures prometheus.Counter

	// Errors by kind
	Errors *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "whispering_sessions_started_total",
			Help: "Recording sessions that entered the recording state",
		}),
		SessionsEnded: f.NewCounter(prometheus.CounterOpts{
			Name: "whispering_sessions_ended_total",
			Help: "Recording sessions finalized into an utterance",
		}),
		SessionsCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "whispering_sessions_cancelled_total",
			Help: "Sessions discarded before finalization",
		}),
		UtteranceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "whispering_utterance_duration_seconds",
			Help:    "Audio duration of finalized utterances",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~1 minute
		}),
		FramesProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "whispering_audio_frames_processed_total",
			Help: "Audio frames consumed by the processing task",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "whispering_audio_frames_dropped_total",
			Help: "Audio frames dropped because the hand-off channel was full",
		}),
		VADWindows: f.NewCounter(prometheus.CounterOpts{
			Name: "whispering_vad_windows_total",
			Help: "VAD analysis windows classified",
		}),
		VADSpeechWindows: f.NewCounter(prometheus.CounterOpts{
			Name: "whispering_vad_speech_windows_total",
			Help: "VAD analysis windows classified as speech",
		}),
		QueueReplacements: f.NewCounter(prometheus.CounterOpts{
			Name: "whispering_dispatch_queue_replacements_total",
			Help: "Queued utterances replaced by a newer one before transcription started",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "whispering_transcription_duration_seconds",
			Help:    "Wall time of inference calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		TranscriptionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "whispering_transcription_failures_total",
			Help: "Transcriptions that returned an error",
		}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whispering_errors_total",
			Help: "Recovered pipeline errors by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) RecordSessionStarted() {
	if m != nil {
		m.SessionsStarted.Inc()
	}
}

func (m *Metrics) RecordSessionEnded(audio time.Duration) {
	if m != nil {
		m.SessionsEnded.Inc()
		m.UtteranceDuration.Observe(audio.Seconds())
	}
}

func (m *Metrics) RecordSessionCancelled() {
	if m != nil {
		m.SessionsCancelled.Inc()
	}
}

func (m *Metrics) RecordFrame() {
	if m != nil {
		m.FramesProcessed.Inc()
	}
}

func (m *Metrics) RecordFrameDropped() {
	if m != nil {
		m.FramesDropped.Inc()
	}
}

func (m *Metrics) RecordVADWindow(speech bool) {
	if m == nil {
		return
	}
	m.VADWindows.Inc()
	if speech {
		m.VADSpeechWindows.Inc()
	}
}

func (m *Metrics) RecordQueueReplacement() {
	if m != nil {
		m.QueueReplacements.Inc()
	}
}

func (m *Metrics) RecordTranscription(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.TranscriptionFailures.Inc()
	}
}

func (m *Metrics) RecordError(kind string) {
	if m != nil {
		m.Errors.WithLabelValues(kind).Inc()
	}
}

// Serve exposes the registry on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
