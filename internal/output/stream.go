package output

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/emmett/whispering/internal/apperr"
)

// StreamSink writes transcriptions to a writer through a Formatter
type StreamSink struct {
	mu        sync.Mutex
	formatter Formatter
	closer    io.Closer
	index     int
}

// NewStreamSink creates a stream sink. closer, if not nil, is closed by Close.
func NewStreamSink(format string, w io.Writer, closer io.Closer) (*StreamSink, error) {
	f, err := NewFormatter(format, w)
	if err != nil {
		return nil, err
	}
	if closer == nil {
		closer = nopCloser{}
	}
	return &StreamSink{formatter: f, closer: closer}, nil
}

// Deliver writes text as the next result
func (s *StreamSink) Deliver(ctx context.Context, text string, autosend bool) error {
	if err := ctx.Err(); err != nil {
		return apperr.Output("write result", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.index++
	err := s.formatter.WriteResult(TranscriptionResult{
		Index:     s.index,
		Text:      text,
		Autosend:  autosend,
		Timestamp: time.Now(),
	})
	if err != nil {
		return apperr.Output("write result", err)
	}
	return nil
}

// Event writes a daemon event to the stream
func (s *StreamSink) Event(eventType, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formatter.WriteEvent(eventType, message)
}

func (s *StreamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closer.Close()
}
