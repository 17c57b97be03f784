package capture

import (
	"time"

	"github.com/emmett/whispering/internal/audio"
)

// PreBuffer is a look-back ring of the most recent audio. It keeps at most
// its capacity of interleaved samples and overwrites the oldest once full.
// It is owned by a single goroutine and does no locking.
type PreBuffer struct {
	buffer   []float32
	size     int
	channels int
	rate     int
	writePos int
	full     bool
}

// NewPreBuffer creates a ring holding d of audio at rate and channels. The
// capacity is rounded down to whole sample frames so a snapshot never spans
// more than d. A zero duration gives a ring that stores nothing.
func NewPreBuffer(d time.Duration, rate, channels int) *PreBuffer {
	if channels < 1 {
		channels = 1
	}
	frames := 0
	if d > 0 && rate > 0 {
		frames = int(int64(d) * int64(rate) / int64(time.Second))
	}
	size := frames * channels
	return &PreBuffer{
		buffer:   make([]float32, size),
		size:     size,
		channels: channels,
		rate:     rate,
	}
}

// Write appends interleaved samples, overwriting the oldest when full
func (pb *PreBuffer) Write(samples []float32) {
	if pb.size == 0 || len(samples) == 0 {
		return
	}

	if len(samples) >= pb.size {
		copy(pb.buffer, samples[len(samples)-pb.size:])
		pb.writePos = 0
		pb.full = true
		return
	}

	n := copy(pb.buffer[pb.writePos:], samples)
	if n < len(samples) {
		copy(pb.buffer, samples[n:])
	}
	end := pb.writePos + len(samples)
	if end >= pb.size {
		pb.full = true
	}
	pb.writePos = end % pb.size
}

// Snapshot returns a copy of the buffered samples, oldest first
func (pb *PreBuffer) Snapshot() []float32 {
	if !pb.full {
		out := make([]float32, pb.writePos)
		copy(out, pb.buffer[:pb.writePos])
		return out
	}
	out := make([]float32, pb.size)
	n := copy(out, pb.buffer[pb.writePos:])
	copy(out[n:], pb.buffer[:pb.writePos])
	return out
}

// Len returns the number of buffered samples
func (pb *PreBuffer) Len() int {
	if pb.full {
		return pb.size
	}
	return pb.writePos
}

// Duration returns the amount of audio currently buffered
func (pb *PreBuffer) Duration() time.Duration {
	return audio.DurationOf(pb.Len()/pb.channels, pb.rate)
}

// Size returns the capacity in samples
func (pb *PreBuffer) Size() int {
	return pb.size
}

// Reset empties the buffer
func (pb *PreBuffer) Reset() {
	pb.writePos = 0
	pb.full = false
}
