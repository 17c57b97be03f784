package stt

import (
	"context"
	"fmt"
	"time"
)

// SampleRate is the audio rate every engine receives
const SampleRate = 16000

// Transcriber converts a finished utterance into text
type Transcriber interface {
	// Transcribe recognizes 16kHz mono samples in [-1, 1]. prompt is an
	// optional initial context; engines that cannot use one ignore it.
	Transcribe(ctx context.Context, samples []float32, prompt string) (string, error)

	// Close releases resources
	Close() error
}

// Config holds configuration for the STT engine
type Config struct {
	// Engine selects the backend: "whisper" or "vosk"
	Engine string

	// ModelPath is the model file (whisper) or directory (vosk)
	ModelPath string

	// Binary is the whisper.cpp executable; looked up on PATH when empty
	Binary string

	// Language is passed to engines that accept one; empty auto-detects
	Language string

	// Threads for the whisper.cpp CLI; zero keeps its default
	Threads int
}

// New creates the configured engine
func New(config Config) (Transcriber, error) {
	switch config.Engine {
	case "", "whisper":
		return NewWhisperCLI(config)
	case "vosk":
		engine := NewVoskEngine()
		if err := engine.Initialize(config); err != nil {
			return nil, err
		}
		return engine, nil
	default:
		return nil, fmt.Errorf("unknown engine: %s", config.Engine)
	}
}

// Warmup runs one second of silence through the engine so the first real
// utterance does not pay for model loading.
func Warmup(ctx context.Context, t Transcriber) (time.Duration, error) {
	start := time.Now()
	if _, err := t.Transcribe(ctx, make([]float32, SampleRate), ""); err != nil {
		return time.Since(start), fmt.Errorf("warmup failed: %w", err)
	}
	return time.Since(start), nil
}
