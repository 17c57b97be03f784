package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordOnNilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSessionStarted()
	m.RecordSessionEnded(time.Second)
	m.RecordVADWindow(true)
	m.RecordTranscription(time.Second, errors.New("x"))
	m.RecordError("device")
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordSessionStarted()
	m.RecordSessionStarted()
	m.RecordVADWindow(true)
	m.RecordVADWindow(false)
	m.RecordTranscription(10*time.Millisecond, errors.New("failed"))
	m.RecordTranscription(10*time.Millisecond, nil)
	m.RecordError("device")

	if got := testutil.ToFloat64(m.SessionsStarted); got != 2 {
		t.Errorf("SessionsStarted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.VADWindows); got != 2 {
		t.Errorf("VADWindows = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.VADSpeechWindows); got != 1 {
		t.Errorf("VADSpeechWindows = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TranscriptionFailures); got != 1 {
		t.Errorf("TranscriptionFailures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Errors.WithLabelValues("device")); got != 1 {
		t.Errorf("Errors{device} = %v, want 1", got)
	}
}
