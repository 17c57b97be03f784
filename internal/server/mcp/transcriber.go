package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/emmett/whispering/internal/apperr"
	"github.com/emmett/whispering/internal/audio"
	"github.com/emmett/whispering/internal/postprocess"
	"github.com/emmett/whispering/internal/stt"
)

// TranscriptionService transcribes uploaded WAV files one at a time
type TranscriptionService struct {
	engine stt.Transcriber
	prompt stt.Prompt
	table  *postprocess.Table
	mu     sync.Mutex
}

// NewTranscriptionService creates a service around a loaded engine
func NewTranscriptionService(engine stt.Transcriber, prompt stt.Prompt, table *postprocess.Table) *TranscriptionService {
	return &TranscriptionService{
		engine: engine,
		prompt: prompt,
		table:  table,
	}
}

// TranscribeAudio decodes the WAV payload, resamples it to 16kHz mono and
// runs the engine
func (ts *TranscriptionService) TranscribeAudio(ctx context.Context, args TranscribeArgs) (*TranscribeResult, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	startTime := time.Now()

	data, err := base64.StdEncoding.DecodeString(args.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}

	samples, rate, channels, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV: %w", err)
	}
	if len(samples) == 0 {
		return nil, apperr.Transcription("decode", fmt.Errorf("empty utterance"))
	}

	mono, err := audio.ToTarget(samples, rate, channels)
	if err != nil {
		return nil, apperr.Transcription("resample", err)
	}

	text, err := ts.engine.Transcribe(ctx, mono, stt.ResolvePrompt(ts.promptFor(args)))
	if err != nil {
		return nil, apperr.Transcription("transcribe", err)
	}

	return &TranscribeResult{
		Text:     ts.table.Process(text),
		Duration: audio.DurationOf(len(samples)/channels, rate).Seconds(),
		Elapsed:  time.Since(startTime).Seconds(),
	}, nil
}

// promptFor lets a call override the configured prompt
func (ts *TranscriptionService) promptFor(args TranscribeArgs) stt.Prompt {
	switch {
	case args.Prompt != "":
		return stt.RawPrompt{Text: args.Prompt}
	case len(args.Vocabulary) > 0:
		return stt.Vocabulary{Words: args.Vocabulary}
	default:
		return ts.prompt
	}
}

// Close releases the engine
func (ts *TranscriptionService) Close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.engine.Close()
}
