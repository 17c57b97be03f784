// Package output delivers transcribed text to the focused application or a
// stream.
package output

import (
	"context"
	"fmt"
	"os"

	"github.com/emmett/whispering/internal/apperr"
)

// Sink receives final text
type Sink interface {
	// Deliver outputs text. With autosend the sink also submits it.
	Deliver(ctx context.Context, text string, autosend bool) error

	// Close releases resources
	Close() error
}

// New creates the sink for an output mode: "paste" or "stream". For stream
// mode file selects the destination; empty means stdout.
func New(mode, format, file string) (Sink, error) {
	switch mode {
	case "paste", "":
		kb, err := NewKeyboard(true)
		if err != nil {
			return nil, apperr.Output("open keyboard", err)
		}
		return NewPasteSink(SystemClipboard{}, kb), nil
	case "stream":
		return OpenStreamSink(format, file)
	default:
		return nil, fmt.Errorf("unknown output mode: %s", mode)
	}
}

// OpenStreamSink writes to file, or stdout when file is empty
func OpenStreamSink(format, file string) (*StreamSink, error) {
	if file == "" {
		return NewStreamSink(format, os.Stdout, nil)
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, apperr.Output("open output file", err)
	}
	s, err := NewStreamSink(format, f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
