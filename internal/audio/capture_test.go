package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestDecode(t *testing.T) {
	t.Run("i16", func(t *testing.T) {
		data := make([]byte, 6)
		binary.LittleEndian.PutUint16(data[0:], uint16(int16(16384)))
		binary.LittleEndian.PutUint16(data[2:], uint16(0x8000)) // -32768
		binary.LittleEndian.PutUint16(data[4:], 0)

		got := Decode(data, FormatI16)
		want := []float32{0.5, -1, 0}
		if len(got) != len(want) {
			t.Fatalf("len = %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("f32", func(t *testing.T) {
		data := make([]byte, 8)
		binary.LittleEndian.PutUint32(data[0:], math.Float32bits(0.25))
		binary.LittleEndian.PutUint32(data[4:], math.Float32bits(-0.75))

		got := Decode(data, FormatF32)
		if len(got) != 2 || got[0] != 0.25 || got[1] != -0.75 {
			t.Errorf("Decode() = %v, want [0.25 -0.75]", got)
		}
	})
}

func TestDurationConversions(t *testing.T) {
	tests := []struct {
		frames int
		rate   int
		want   time.Duration
	}{
		{16000, 16000, time.Second},
		{512, 16000, 32 * time.Millisecond},
		{441, 44100, 10 * time.Millisecond},
		{0, 16000, 0},
		{100, 0, 0},
	}
	for _, tt := range tests {
		if got := DurationOf(tt.frames, tt.rate); got != tt.want {
			t.Errorf("DurationOf(%d, %d) = %v, want %v", tt.frames, tt.rate, got, tt.want)
		}
	}

	if got := FramesIn(300*time.Millisecond, 16000); got != 4800 {
		t.Errorf("FramesIn(300ms) = %d, want 4800", got)
	}
	if got := FramesIn(time.Nanosecond, 16000); got != 1 {
		t.Errorf("FramesIn(1ns) = %d, want 1 (rounded up)", got)
	}
	if got := FramesIn(0, 16000); got != 0 {
		t.Errorf("FramesIn(0) = %d, want 0", got)
	}
}

func TestFrameTiming(t *testing.T) {
	f := Frame{
		Samples:    make([]float32, 2*800),
		Channels:   2,
		SampleRate: 16000,
		Timestamp:  time.Second,
	}
	if got := f.FrameCount(); got != 800 {
		t.Errorf("FrameCount() = %d, want 800", got)
	}
	if got := f.Duration(); got != 50*time.Millisecond {
		t.Errorf("Duration() = %v, want 50ms", got)
	}
	if got := f.End(); got != 1050*time.Millisecond {
		t.Errorf("End() = %v, want 1.05s", got)
	}
}

func TestParseSampleFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    SampleFormat
		wantErr bool
	}{
		{"f32", FormatF32, false},
		{"I16", FormatI16, false},
		{"u8", FormatF32, true},
	}
	for _, tt := range tests {
		got, err := ParseSampleFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSampleFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSampleFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS([]float32{0.5, -0.5, 0.5, -0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS(square) = %v, want 0.5", got)
	}
}

func TestMatchDevice(t *testing.T) {
	devices := []DeviceInfo{
		{Index: 0, Name: "sysdefault:CARD=PCH", IsDefault: true},
		{Index: 1, Name: "HD Pro Webcam C920"},
		{Index: 2, Name: "C920"},
	}

	tests := []struct {
		name    string
		search  string
		want    int
		wantErr bool
	}{
		{"exact wins", "C920", 2, false},
		{"substring", "webcam", 1, false},
		{"missing", "Yeti", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchDevice(devices, tt.search)
			if (err != nil) != tt.wantErr {
				t.Fatalf("MatchDevice() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.Index != tt.want {
				t.Errorf("MatchDevice() = %d, want %d", got.Index, tt.want)
			}
		})
	}
}
