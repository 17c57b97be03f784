package vad

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/emmett/whispering/internal/apperr"
)

const rate = 16000

// meanClassifier treats the mean sample value as the probability
type meanClassifier struct{}

func (meanClassifier) Probability(window []float32, _ int) (float64, error) {
	var sum float64
	for _, s := range window {
		sum += float64(s)
	}
	return sum / float64(len(window)), nil
}

type failingClassifier struct{}

func (failingClassifier) Probability([]float32, int) (float64, error) {
	return 0, errors.New("model crashed")
}

func constant(v float32, d time.Duration) []float32 {
	out := make([]float32, int(d)*rate/int(time.Second))
	for i := range out {
		out[i] = v
	}
	return out
}

// feed runs samples through d in chunks of size n
func feed(t *testing.T, d *Detector, samples []float32, n int) []Event {
	t.Helper()
	var events []Event
	for pos := 0; pos < len(samples); pos += n {
		end := min(pos+n, len(samples))
		ts := time.Duration(pos) * time.Second / rate
		evs, err := d.Process(samples[pos:end], ts)
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		events = append(events, evs...)
	}
	return events
}

func newDetector(t *testing.T, speech, silence time.Duration) *Detector {
	t.Helper()
	d, err := NewDetector(Config{
		Threshold:       0.5,
		SpeechDuration:  speech,
		SilenceDuration: silence,
		Window:          DefaultWindow,
	}, meanClassifier{}, rate)
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	return d
}

func TestDetectorHysteresis(t *testing.T) {
	d := newDetector(t, 300*time.Millisecond, time.Second)

	samples := append(constant(0.9, 3*time.Second), constant(0, 2*time.Second)...)
	events := feed(t, d, samples, 160)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}

	start, stop := events[0], events[1]
	if start.Signal != StartReady {
		t.Errorf("events[0] = %v, want start-ready", start.Signal)
	}
	if start.At < 300*time.Millisecond || start.At > 300*time.Millisecond+DefaultWindow {
		t.Errorf("start-ready at %v, want within one window after 300ms", start.At)
	}

	if stop.Signal != StopReady {
		t.Errorf("events[1] = %v, want stop-ready", stop.Signal)
	}
	// silence begins at 3s; stop must not come before a full second of it
	if stop.At-time.Second < 3*time.Second {
		t.Errorf("stop-ready at %v is earlier than 1s after speech ended", stop.At)
	}
	if stop.At > 4*time.Second+2*DefaultWindow {
		t.Errorf("stop-ready at %v, want about 4s", stop.At)
	}
}

func TestDetectorIgnoresShortBursts(t *testing.T) {
	d := newDetector(t, 300*time.Millisecond, time.Second)

	var samples []float32
	for i := 0; i < 5; i++ {
		samples = append(samples, constant(0.9, 200*time.Millisecond)...)
		samples = append(samples, constant(0, 100*time.Millisecond)...)
	}

	for _, ev := range feed(t, d, samples, 512) {
		if ev.Signal == StartReady {
			t.Fatalf("start-ready at %v from bursts shorter than the speech duration", ev.At)
		}
	}
}

func TestDetectorChunkingIndependent(t *testing.T) {
	samples := append(constant(0, 700*time.Millisecond), constant(0.8, 2*time.Second)...)
	samples = append(samples, constant(0.1, 1500*time.Millisecond)...)

	var runs [][]Event
	for _, n := range []int{160, 441, 1024, len(samples)} {
		d := newDetector(t, 500*time.Millisecond, time.Second)
		runs = append(runs, feed(t, d, samples, n))
	}

	for i := 1; i < len(runs); i++ {
		if len(runs[i]) != len(runs[0]) {
			t.Fatalf("run %d has %d events, run 0 has %d", i, len(runs[i]), len(runs[0]))
		}
		for j := range runs[0] {
			if runs[i][j].Signal != runs[0][j].Signal || runs[i][j].At != runs[0][j].At {
				t.Errorf("run %d event %d = %+v, want %+v", i, j, runs[i][j], runs[0][j])
			}
		}
	}
}

func TestDetectorRearms(t *testing.T) {
	d := newDetector(t, 100*time.Millisecond, 64*time.Millisecond)

	samples := constant(0.9, time.Second)
	samples = append(samples, constant(0, 100*time.Millisecond)...)
	samples = append(samples, constant(0.9, time.Second)...)

	var starts, stops int
	for _, ev := range feed(t, d, samples, 512) {
		switch ev.Signal {
		case StartReady:
			starts++
		case StopReady:
			stops++
		}
	}
	if starts != 2 {
		t.Errorf("start-ready fired %d times, want 2", starts)
	}
	if stops != 1 {
		t.Errorf("stop-ready fired %d times, want 1", stops)
	}
}

func TestDetectorOffsets(t *testing.T) {
	d := newDetector(t, 300*time.Millisecond, time.Second)

	events, err := d.Process(constant(0.9, time.Second), 5*time.Second)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	// ten 512-sample windows cover 300ms
	if events[0].Offset != 5120 {
		t.Errorf("Offset = %d, want 5120", events[0].Offset)
	}
	if want := 5*time.Second + 320*time.Millisecond; events[0].At != want {
		t.Errorf("At = %v, want %v", events[0].At, want)
	}
}

func TestDetectorReset(t *testing.T) {
	d := newDetector(t, 300*time.Millisecond, time.Second)

	feed(t, d, constant(0.9, 200*time.Millisecond), 100)
	if d.SpeechAccumulated() == 0 {
		t.Fatal("SpeechAccumulated() = 0 after speech")
	}
	d.Reset()
	if d.SpeechAccumulated() != 0 || d.SilenceAccumulated() != 0 {
		t.Errorf("accumulators not cleared by Reset")
	}

	// a fresh run of 200ms must not complete the previous one
	for _, ev := range feed(t, d, constant(0.9, 200*time.Millisecond), 100) {
		t.Errorf("unexpected %v after Reset", ev.Signal)
	}
}

// fixedClassifier returns the same probability for every window
type fixedClassifier float64

func (c fixedClassifier) Probability([]float32, int) (float64, error) {
	return float64(c), nil
}

func TestDetectorThresholdIsExclusive(t *testing.T) {
	tests := []struct {
		name string
		p    float64
		want bool
	}{
		{"at threshold", 0.5, false},
		{"just above", 0.51, true},
		{"below", 0.49, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDetector(Config{
				Threshold:       0.5,
				SpeechDuration:  300 * time.Millisecond,
				SilenceDuration: time.Second,
				Window:          DefaultWindow,
			}, fixedClassifier(tt.p), rate)
			if err != nil {
				t.Fatalf("NewDetector() error = %v", err)
			}

			var started bool
			for _, ev := range feed(t, d, constant(0, time.Second), 160) {
				if ev.Signal == StartReady {
					started = true
				}
			}
			if started != tt.want {
				t.Errorf("start-ready fired = %v, want %v", started, tt.want)
			}
		})
	}
}

func TestDetectorObserve(t *testing.T) {
	d := newDetector(t, time.Second, time.Second)

	var windows, speech int
	d.Observe = func(_ float64, isSpeech bool) {
		windows++
		if isSpeech {
			speech++
		}
	}
	feed(t, d, constant(0.9, 320*time.Millisecond), 160)
	if windows != 10 || speech != 10 {
		t.Errorf("observed %d windows (%d speech), want 10 (10)", windows, speech)
	}
}

func TestDetectorErrors(t *testing.T) {
	if _, err := NewDetector(DefaultConfig(), nil, rate); !apperr.Is(err, apperr.KindVADModel) {
		t.Errorf("NewDetector(nil) error = %v, want VADModel error", err)
	}

	if _, err := NewDetector(Config{Threshold: 1.5}, meanClassifier{}, rate); err == nil {
		t.Error("NewDetector(threshold 1.5) error = nil, want error")
	}

	d, err := NewDetector(DefaultConfig(), failingClassifier{}, rate)
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	if _, err := d.Process(constant(0.5, 100*time.Millisecond), 0); !apperr.Is(err, apperr.KindVADModel) {
		t.Errorf("Process() error = %v, want VADModel error", err)
	}
}

func TestEnergyClassifier(t *testing.T) {
	c := NewEnergyClassifier()

	sine := func(amp float64) []float32 {
		out := make([]float32, 512)
		for i := range out {
			out[i] = float32(amp * math.Sin(2*math.Pi*float64(i)/32))
		}
		return out
	}

	tests := []struct {
		name   string
		window []float32
		want   float64
	}{
		{"digital silence", make([]float32, 512), 0},
		{"loud", sine(0.9), 1},
		// amplitude sqrt(2)*0.01 gives an RMS of 0.01, -40 dBFS
		{"midpoint", sine(math.Sqrt2 * 0.01), 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Probability(tt.window, rate)
			if err != nil {
				t.Fatalf("Probability() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-3 {
				t.Errorf("Probability() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewClassifier(t *testing.T) {
	if _, err := NewClassifier("energy"); err != nil {
		t.Errorf("NewClassifier(energy) error = %v", err)
	}
	if _, err := NewClassifier("silero"); !apperr.Is(err, apperr.KindVADModel) {
		t.Errorf("NewClassifier(silero) error = %v, want VADModel error", err)
	}
}
