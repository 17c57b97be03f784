package stt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/emmett/whispering/internal/audio"
)

// binaryNames are the names whisper.cpp's CLI is installed under
var binaryNames = []string{"whisper-cli", "whisper-cpp", "whisper", "main"}

// WhisperCLI transcribes by running the whisper.cpp command line tool on a
// temporary WAV file.
type WhisperCLI struct {
	binary    string
	modelPath string
	language  string
	threads   int
}

// NewWhisperCLI checks the model file and locates the binary
func NewWhisperCLI(config Config) (*WhisperCLI, error) {
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("whisper model not available: %w", err)
	}

	binary := config.Binary
	if binary == "" {
		binary = findWhisperBinary()
	}
	if binary == "" {
		return nil, fmt.Errorf("whisper.cpp binary not found, install whisper.cpp or set model.binary")
	}

	return &WhisperCLI{
		binary:    binary,
		modelPath: config.ModelPath,
		language:  config.Language,
		threads:   config.Threads,
	}, nil
}

// Transcribe writes samples to a temporary WAV file and runs the binary on it
func (w *WhisperCLI) Transcribe(ctx context.Context, samples []float32, prompt string) (string, error) {
	f, err := os.CreateTemp("", "whispering-*.wav")
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if err := audio.EncodeWAV(f, samples, SampleRate, 1); err != nil {
		f.Close()
		return "", fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close audio file: %w", err)
	}

	cmd := exec.CommandContext(ctx, w.binary, w.args(path, prompt)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper.cpp failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseWhisperOutput(stdout.String()), nil
}

// Close is a no-op; every call runs its own process
func (w *WhisperCLI) Close() error {
	return nil
}

func (w *WhisperCLI) args(wavPath, prompt string) []string {
	args := []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"--no-timestamps",
		"--no-prints",
	}
	if w.language != "" {
		args = append(args, "-l", w.language)
	}
	if w.threads > 0 {
		args = append(args, "-t", strconv.Itoa(w.threads))
	}
	if prompt != "" {
		args = append(args, "--prompt", prompt)
	}
	return args
}

// parseWhisperOutput joins the transcript lines printed on stdout
func parseWhisperOutput(out string) string {
	var parts []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func findWhisperBinary() string {
	for _, name := range binaryNames {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	homeDir, _ := os.UserHomeDir()
	locations := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		filepath.Join(homeDir, ".local", "bin"),
		filepath.Join(homeDir, "whisper.cpp", "build", "bin"),
	}
	for _, loc := range locations {
		for _, name := range binaryNames {
			path := filepath.Join(loc, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
	}
	return ""
}
