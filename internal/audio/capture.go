package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrDeviceLost is sent on a Source's error channel when the capture device
// stops underneath a running source.
var ErrDeviceLost = errors.New("capture device lost")

// SampleFormat is the device sample format.
type SampleFormat int

const (
	FormatF32 SampleFormat = iota
	FormatI16
)

func (f SampleFormat) String() string {
	switch f {
	case FormatI16:
		return "i16"
	default:
		return "f32"
	}
}

// BytesPerSample returns the size of one sample of one channel.
func (f SampleFormat) BytesPerSample() int {
	if f == FormatI16 {
		return 2
	}
	return 4
}

// ParseSampleFormat accepts "f32" and "i16".
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch strings.ToLower(s) {
	case "f32":
		return FormatF32, nil
	case "i16":
		return FormatI16, nil
	default:
		return FormatF32, fmt.Errorf("unknown sample format: %s", s)
	}
}

// CaptureConfig holds configuration for audio capture
type CaptureConfig struct {
	// SampleRate is the number of samples per second (Hz)
	SampleRate uint32

	// Channels is the number of interleaved channels
	Channels uint32

	// Format is the sample format requested from the device
	Format SampleFormat

	// BufferFrames is the device period size in frames
	// Smaller = lower latency, higher CPU usage
	BufferFrames uint32

	// QueueSize is the capacity of the frame hand-off channel
	QueueSize int

	// DeviceName selects a capture device by name; empty uses the default
	DeviceName string
}

// DefaultConfig returns the capture defaults: 16kHz mono f32.
func DefaultConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:   16000,
		Channels:     1,
		Format:       FormatF32,
		BufferFrames: 512, // 32ms at 16kHz
		QueueSize:    64,
	}
}

// Frame is a chunk of captured audio normalized to [-1, 1].
type Frame struct {
	// Samples are interleaved by channel.
	Samples    []float32
	Channels   int
	SampleRate int
	Format     SampleFormat
	// Timestamp is the stream time of the first sample, derived from the
	// number of frames captured before it.
	Timestamp time.Duration
}

// FrameCount returns the number of sample frames (samples per channel).
func (f Frame) FrameCount() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Samples) / f.Channels
}

// Duration returns the audio duration of the frame.
func (f Frame) Duration() time.Duration {
	return DurationOf(f.FrameCount(), f.SampleRate)
}

// End returns the stream time just after the last sample.
func (f Frame) End() time.Duration {
	return f.Timestamp + f.Duration()
}

// Source is the interface for audio frame producers
type Source interface {
	// Start begins audio capture
	Start(ctx context.Context) error

	// Stop stops audio capture and closes the channels
	Stop() error

	// Reconnect re-opens the device after ErrDeviceLost, keeping the channels
	Reconnect(ctx context.Context) error

	// Frames returns a channel that receives audio frames
	Frames() <-chan Frame

	// Errors returns a channel that receives capture errors
	Errors() <-chan error

	// IsRunning returns true if capture is currently active
	IsRunning() bool
}

// NewSource creates the default capture source for the configuration
func NewSource(config CaptureConfig) (Source, error) {
	return NewMalgoSource(config)
}

// DurationOf converts a sample frame count at rate into a duration using
// integer arithmetic only.
func DurationOf(frames, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(rate))
}

// FramesIn converts a duration into a sample frame count at rate, rounding up.
func FramesIn(d time.Duration, rate int) int {
	if d <= 0 || rate <= 0 {
		return 0
	}
	n := int64(d) * int64(rate)
	frames := n / int64(time.Second)
	if n%int64(time.Second) != 0 {
		frames++
	}
	return int(frames)
}

// Decode converts little-endian device bytes into normalized samples.
func Decode(data []byte, format SampleFormat) []float32 {
	size := format.BytesPerSample()
	out := make([]float32, len(data)/size)
	for i := range out {
		switch format {
		case FormatI16:
			v := int16(binary.LittleEndian.Uint16(data[i*2:]))
			out[i] = float32(v) / 32768.0
		default:
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
	}
	return out
}

// Downmix averages interleaved channels into one. Mono input is returned as is.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(samples[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// RMS returns the root mean square of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
