package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/emmett/whispering/internal/apperr"
	"github.com/emmett/whispering/internal/audio"
	"github.com/emmett/whispering/internal/capture"
	"github.com/emmett/whispering/internal/dispatch"
	"github.com/emmett/whispering/internal/input"
	"github.com/emmett/whispering/internal/metrics"
	"github.com/emmett/whispering/internal/notify"
	"github.com/emmett/whispering/internal/postprocess"
	"github.com/emmett/whispering/internal/resilience"
	"github.com/emmett/whispering/internal/stt"
	"github.com/emmett/whispering/internal/trigger"
)

const testRate = 16000

type fakeAudio struct {
	frames chan audio.Frame
	errs   chan error

	mu          sync.Mutex
	failures    int
	reconnects  int
	reconnected chan struct{}
}

func newFakeAudio() *fakeAudio {
	return &fakeAudio{
		frames:      make(chan audio.Frame),
		errs:        make(chan error),
		reconnected: make(chan struct{}, 1),
	}
}

func (f *fakeAudio) Start(context.Context) error { return nil }
func (f *fakeAudio) Stop() error                 { return nil }
func (f *fakeAudio) Frames() <-chan audio.Frame  { return f.frames }
func (f *fakeAudio) Errors() <-chan error        { return f.errs }
func (f *fakeAudio) IsRunning() bool             { return true }

func (f *fakeAudio) Reconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	if f.failures > 0 {
		f.failures--
		return audio.ErrDeviceLost
	}
	f.reconnected <- struct{}{}
	return nil
}

type fakeInput struct {
	events chan input.Event
}

func (f *fakeInput) Start(context.Context) error { return nil }
func (f *fakeInput) Stop()                       {}
func (f *fakeInput) Events() <-chan input.Event  { return f.events }

type textEngine struct {
	text string
	err  error
}

func (e textEngine) Transcribe(context.Context, []float32, string) (string, error) {
	return e.text, e.err
}

func (textEngine) Close() error { return nil }

type recordingSink struct {
	err       error
	delivered chan string
	autosend  []bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{delivered: make(chan string, 4)}
}

func (s *recordingSink) Deliver(_ context.Context, text string, autosend bool) error {
	if s.err != nil {
		return s.err
	}
	s.autosend = append(s.autosend, autosend)
	s.delivered <- text
	return nil
}

func (s *recordingSink) Close() error { return nil }

type recordingNotifier struct {
	mu     sync.Mutex
	labels []string
}

func (n *recordingNotifier) Notify(label, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.labels = append(n.labels, label)
}

func (n *recordingNotifier) has(label string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, l := range n.labels {
		if l == label {
			return true
		}
	}
	return false
}

type recordingHealth struct {
	mu     sync.Mutex
	states []bool
}

func (h *recordingHealth) SetServing(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, ok)
}

func (h *recordingHealth) last() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.states) > 0 && h.states[len(h.states)-1]
}

type harness struct {
	daemon   *Daemon
	audio    *fakeAudio
	keys     chan input.Event
	sink     *recordingSink
	notifier *recordingNotifier
	health   *recordingHealth
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, engine stt.Transcriber, recording string) *harness {
	t.Helper()

	combo := input.Combo{input.ControlLeft, input.Space}
	machine, err := trigger.NewMachine(trigger.Config{
		Mode:       trigger.PushToTalk{Combo: combo},
		SampleRate: testRate,
		Channels:   1,
	})
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}

	table, err := postprocess.NewTable([]postprocess.Rule{{From: "cube control", To: "kubectl"}})
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		audio:    newFakeAudio(),
		keys:     make(chan input.Event),
		sink:     newRecordingSink(),
		notifier: &recordingNotifier{},
		health:   &recordingHealth{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	h.daemon = NewDaemon(Components{
		Audio:         h.audio,
		Input:         &fakeInput{events: h.keys},
		Processor:     trigger.NewProcessor(machine, h.audio.frames, h.keys, h.audio.errs, trigger.WithMetrics(h.metrics)),
		Dispatcher:    dispatch.New(engine, dispatch.Config{}, h.metrics),
		Engine:        engine,
		Table:         table,
		Sink:          h.sink,
		Notifier:      h.notifier,
		Metrics:       h.metrics,
		Health:        h.health,
		Autosend:      true,
		RecordingPath: recording,
		Reconnect: resilience.RetryConfig{
			MaxRetries:  5,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
			IsRetryable: resilience.IsRetryable,
		},
	})
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.daemon.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run() did not return after cancel")
		}
	})
}

// speak holds the combo over half a second of audio
func (h *harness) speak() {
	h.keys <- input.Event{Key: input.ControlLeft, Edge: input.Down}
	h.keys <- input.Event{Key: input.Space, Edge: input.Down}
	for i := 0; i < 25; i++ {
		h.audio.frames <- audio.Frame{
			Samples:    make([]float32, 320),
			Channels:   1,
			SampleRate: testRate,
			Timestamp:  audio.DurationOf(i*320, testRate),
		}
	}
	h.keys <- input.Event{Key: input.Space, Edge: input.Up}
	h.keys <- input.Event{Key: input.ControlLeft, Edge: input.Up}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDaemonDeliversTranscript(t *testing.T) {
	recording := filepath.Join(t.TempDir(), "last.wav")
	h := newHarness(t, textEngine{text: " run cube control apply "}, recording)
	h.run(t)

	h.speak()

	select {
	case got := <-h.sink.delivered:
		if got != "run kubectl apply" {
			t.Errorf("delivered %q, want %q", got, "run kubectl apply")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	if len(h.sink.autosend) != 1 || !h.sink.autosend[0] {
		t.Errorf("autosend = %v, want [true]", h.sink.autosend)
	}
	for _, label := range []string{notify.Recording, notify.Transcribing, notify.Summary("run kubectl apply")} {
		if !h.notifier.has(label) {
			t.Errorf("missing notification %q", label)
		}
	}
	if !h.health.last() {
		t.Error("daemon not reported serving")
	}

	f, err := os.Open(recording)
	if err != nil {
		t.Fatalf("recording not written: %v", err)
	}
	defer f.Close()
	samples, rate, channels, err := audio.DecodeWAV(f)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != stt.SampleRate || channels != 1 || len(samples) != 25*320 {
		t.Errorf("recording = %d samples at %d Hz x%d, want %d at %d Hz mono", len(samples), rate, channels, 25*320, stt.SampleRate)
	}
}

func TestDaemonBlankTranscript(t *testing.T) {
	h := newHarness(t, textEngine{text: "   "}, "")
	h.run(t)

	h.speak()

	waitFor(t, "no-voice notification", func() bool { return h.notifier.has(notify.NoVoiceDetected) })
	select {
	case got := <-h.sink.delivered:
		t.Errorf("delivered %q, want nothing", got)
	default:
	}
}

func TestDaemonReconnectsAfterDeviceLoss(t *testing.T) {
	h := newHarness(t, textEngine{}, "")
	h.audio.failures = 2
	h.run(t)

	h.audio.errs <- audio.ErrDeviceLost

	select {
	case <-h.audio.reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconnect")
	}

	h.audio.mu.Lock()
	attempts := h.audio.reconnects
	h.audio.mu.Unlock()
	if attempts != 3 {
		t.Errorf("reconnect attempts = %d, want 3", attempts)
	}

	waitFor(t, "serving after reconnect", h.health.last)
	if got := testutil.ToFloat64(h.metrics.Errors.WithLabelValues("device")); got != 1 {
		t.Errorf("device errors = %v, want 1", got)
	}
	if !h.notifier.has("Microphone error") {
		t.Error("device failure not notified")
	}
}

func TestHandleEventUserCancelDiscards(t *testing.T) {
	tests := []struct {
		reason      trigger.CancelReason
		wantPending bool
	}{
		{trigger.ReasonUser, false},
		{trigger.ReasonDisarmed, true},
		{trigger.ReasonDeviceLost, true},
	}

	for _, tt := range tests {
		t.Run(tt.reason.String(), func(t *testing.T) {
			h := newHarness(t, textEngine{}, "")
			h.daemon.c.Dispatcher.Submit(capture.Utterance{
				SessionID:  uuid.New(),
				Samples:    make([]float32, testRate),
				SampleRate: testRate,
				Channels:   1,
			})

			h.daemon.handleEvent(context.Background(), trigger.SessionCancelled{ID: uuid.New(), Reason: tt.reason})

			if got := h.daemon.c.Dispatcher.Pending(); got != tt.wantPending {
				t.Errorf("Pending() = %v, want %v", got, tt.wantPending)
			}
		})
	}
}

// Failures are counted where the trigger processor observes them, so the
// daemon only notifies.
func TestHandleEventFailureNotCounted(t *testing.T) {
	h := newHarness(t, textEngine{}, "")

	err := apperr.VADModel("classify", errors.New("model crashed"))
	h.daemon.handleEvent(context.Background(), trigger.Failure{Err: err})

	if !h.notifier.has("Voice detection unavailable") {
		t.Errorf("notifications = %v, want voice detection failure", h.notifier.labels)
	}
	if got := testutil.ToFloat64(h.metrics.Errors.WithLabelValues("vad_model")); got != 0 {
		t.Errorf("vad_model errors = %v, want 0", got)
	}
}

func TestHandleResultFailures(t *testing.T) {
	tests := []struct {
		name      string
		res       dispatch.Result
		sinkErr   error
		wantLabel string
		wantKind  string
	}{
		{
			name:      "too short",
			res:       dispatch.Result{Err: apperr.Transcription("check", dispatch.ErrTooShort)},
			wantLabel: notify.NoVoiceDetected,
		},
		{
			name:      "empty",
			res:       dispatch.Result{Err: apperr.Transcription("check", dispatch.ErrEmptyUtterance)},
			wantLabel: notify.NoVoiceDetected,
		},
		{
			name:      "engine",
			res:       dispatch.Result{Err: apperr.Transcription("transcribe", errors.New("model crashed"))},
			wantLabel: "Transcription failed",
			wantKind:  "transcription",
		},
		{
			name:      "paste",
			res:       dispatch.Result{Text: "hello"},
			sinkErr:   apperr.Output("paste", errors.New("no display")),
			wantLabel: "Could not paste text",
			wantKind:  "output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, textEngine{}, "")
			h.sink.err = tt.sinkErr

			h.daemon.handleResult(context.Background(), tt.res)

			if !h.notifier.has(tt.wantLabel) {
				t.Errorf("notifications = %v, want %q", h.notifier.labels, tt.wantLabel)
			}
			if tt.wantKind != "" {
				if got := testutil.ToFloat64(h.metrics.Errors.WithLabelValues(tt.wantKind)); got != 1 {
					t.Errorf("%s errors = %v, want 1", tt.wantKind, got)
				}
			}
		})
	}
}

func TestDaemonRunsServices(t *testing.T) {
	h := newHarness(t, textEngine{}, "")
	started := make(chan struct{})
	stopped := make(chan struct{})
	h.daemon.c.Services = []Service{{
		Name: "probe",
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			close(stopped)
			return nil
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.daemon.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("service not started")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	select {
	case <-stopped:
	default:
		t.Error("Run() returned before the service stopped")
	}
}
