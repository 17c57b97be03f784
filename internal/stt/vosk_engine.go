package stt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"
)

// VoskEngine implements Transcriber using Vosk
type VoskEngine struct {
	model       *vosk.VoskModel
	recognizer  *vosk.VoskRecognizer
	config      Config
	mu          sync.Mutex
	initialized bool
}

// VoskResult represents the JSON result from Vosk
type VoskResult struct {
	Text   string `json:"text"`
	Result []struct {
		Conf  float64 `json:"conf"`
		End   float64 `json:"end"`
		Start float64 `json:"start"`
		Word  string  `json:"word"`
	} `json:"result,omitempty"`
}

// NewVoskEngine creates a new Vosk STT engine
func NewVoskEngine() *VoskEngine {
	return &VoskEngine{}
}

// Initialize loads the model directory and creates a 16kHz recognizer
func (v *VoskEngine) Initialize(config Config) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.initialized {
		return fmt.Errorf("engine already initialized")
	}

	// Set log level (0 = errors only, higher = more verbose)
	vosk.SetLogLevel(-1) // Suppress logs

	model, err := vosk.NewModel(config.ModelPath)
	if err != nil {
		return fmt.Errorf("failed to load model from %s: %w", config.ModelPath, err)
	}
	if model == nil {
		return fmt.Errorf("failed to load model from %s: model returned nil", config.ModelPath)
	}
	v.model = model

	recognizer, err := vosk.NewRecognizer(model, float64(SampleRate))
	if err != nil {
		model.Free()
		return fmt.Errorf("failed to create recognizer: %w", err)
	}
	v.recognizer = recognizer
	v.recognizer.SetWords(1)

	v.config = config
	v.initialized = true

	return nil
}

// Transcribe feeds the utterance as 16-bit PCM and returns the final result.
// Vosk has no notion of an initial prompt, so prompt is ignored.
func (v *VoskEngine) Transcribe(ctx context.Context, samples []float32, prompt string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return "", fmt.Errorf("engine not initialized")
	}
	if prompt != "" {
		slog.Debug("Vosk ignores the initial prompt")
	}

	// Feed in chunks so cancellation is observed between them
	const chunk = SampleRate / 2
	pcm := toPCM16(samples)
	for off := 0; off < len(pcm); off += chunk * 2 {
		select {
		case <-ctx.Done():
			v.recognizer.Reset()
			return "", ctx.Err()
		default:
		}
		end := min(off+chunk*2, len(pcm))
		v.recognizer.AcceptWaveform(pcm[off:end])
	}

	var result VoskResult
	if err := json.Unmarshal([]byte(v.recognizer.FinalResult()), &result); err != nil {
		return "", fmt.Errorf("failed to parse final result: %w", err)
	}

	slog.Debug("Vosk result", "words", len(result.Result), "confidence", averageConfidence(result))
	return strings.TrimSpace(result.Text), nil
}

// Close releases resources
func (v *VoskEngine) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return nil
	}

	if v.recognizer != nil {
		v.recognizer.Free()
		v.recognizer = nil
	}
	if v.model != nil {
		v.model.Free()
		v.model = nil
	}

	v.initialized = false
	return nil
}

// IsInitialized returns true if the engine is initialized
func (v *VoskEngine) IsInitialized() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.initialized
}

// toPCM16 converts normalized samples into little-endian 16-bit PCM
func toPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		v = math.Max(-32768, math.Min(32767, v))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// averageConfidence calculates the average confidence from word results
func averageConfidence(result VoskResult) float64 {
	if len(result.Result) == 0 {
		return 0.0
	}

	var sum float64
	for _, word := range result.Result {
		sum += word.Conf
	}

	return sum / float64(len(result.Result))
}
