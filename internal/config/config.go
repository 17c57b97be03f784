package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/emmett/whispering/internal/apperr"
	"github.com/emmett/whispering/internal/audio"
	"github.com/emmett/whispering/internal/input"
	"github.com/emmett/whispering/internal/logging"
	"github.com/emmett/whispering/internal/postprocess"
	"github.com/emmett/whispering/internal/stt"
	"github.com/emmett/whispering/internal/trigger"
	"github.com/emmett/whispering/internal/vad"
)

// Trigger types
const (
	TriggerPushToTalk = "push_to_talk"
	TriggerToggle     = "toggle"
	TriggerToggleVAD  = "toggle_vad"
)

// Prompt types
const (
	PromptNone       = "none"
	PromptVocabulary = "vocabulary"
	PromptRaw        = "raw"
)

// Output modes
const (
	OutputPaste  = "paste"
	OutputStream = "stream"
)

// Config represents the application configuration
type Config struct {
	// Audio capture settings
	Audio struct {
		Channels     int    `yaml:"channels"`
		SampleRate   int    `yaml:"sample_rate"`
		SampleFormat string `yaml:"sample_format"`
		Device       string `yaml:"device"`
		BufferFrames int    `yaml:"buffer_frames"`
		QueueSize    int    `yaml:"queue_size"`
	} `yaml:"audio"`

	// File locations; a leading ~ is expanded
	Paths struct {
		CacheDir      string `yaml:"cache_dir"`
		RecordingPath string `yaml:"recording_path"`
	} `yaml:"paths"`

	// Model settings
	Model struct {
		Engine       string       `yaml:"engine"`
		Repo         string       `yaml:"repo"`
		Filename     string       `yaml:"filename"`
		Binary       string       `yaml:"binary"`
		Language     string       `yaml:"language"`
		Threads      int          `yaml:"threads"`
		MinDuration  float64      `yaml:"min_duration"`
		Prompt       PromptConfig `yaml:"prompt"`
		Replacements Replacements `yaml:"replacements"`
	} `yaml:"model"`

	// Activation settings
	Activation struct {
		Trigger    TriggerConfig `yaml:"trigger"`
		Keys       []string      `yaml:"keys"`
		CancelKeys []string      `yaml:"cancel_keys"`
		Input      string        `yaml:"input"`
		Notify     bool          `yaml:"notify"`
		Autosend   bool          `yaml:"autosend"`
	} `yaml:"activation"`

	// VAD settings
	VAD struct {
		Classifier string  `yaml:"classifier"`
		Window     float64 `yaml:"window"`
	} `yaml:"vad"`

	// Output settings
	Output struct {
		Mode   string `yaml:"mode"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"output"`

	// Logging settings
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"logging"`

	// Metrics settings
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`

	// Server settings
	Server struct {
		GRPCAddr string `yaml:"grpc_addr"`
	} `yaml:"server"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Audio defaults
	cfg.Audio.Channels = 1
	cfg.Audio.SampleRate = 16000
	cfg.Audio.SampleFormat = "f32"
	cfg.Audio.BufferFrames = 512
	cfg.Audio.QueueSize = 64

	// Path defaults
	cfg.Paths.CacheDir = "~/.cache/whispering"
	cfg.Paths.RecordingPath = "~/.cache/whispering/recorded.wav"

	// Model defaults
	cfg.Model.Engine = "whisper"
	cfg.Model.Repo = "ggerganov/whisper.cpp"
	cfg.Model.Filename = "ggml-base.en.bin"
	cfg.Model.MinDuration = 0.1
	cfg.Model.Prompt = PromptConfig{Type: PromptNone}

	// Activation defaults
	cfg.Activation.Trigger = TriggerConfig{Type: TriggerPushToTalk}
	cfg.Activation.Keys = []string{"ControlLeft", "Space"}
	cfg.Activation.CancelKeys = []string{}
	cfg.Activation.Input = "hook"
	cfg.Activation.Notify = true
	cfg.Activation.Autosend = false

	// VAD defaults
	cfg.VAD.Classifier = "energy"
	cfg.VAD.Window = vad.DefaultWindow.Seconds()

	// Output defaults
	cfg.Output.Mode = OutputPaste
	cfg.Output.Format = "json"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	// Metrics defaults
	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9464"

	return cfg
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Config("load", fmt.Errorf("failed to read config file: %w", err))
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, apperr.Config("load", fmt.Errorf("failed to parse config file %s: %w", path, err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperr.Config("validate", fmt.Errorf("%s: %w", path, err))
	}

	return cfg, nil
}

// UserConfigPath returns $XDG_CONFIG_HOME/whispering/config.yaml or the
// platform equivalent
func UserConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "whispering", "config.yaml"), nil
}

// LoadWithFallback attempts to load configuration from multiple locations and
// returns the path it used.
// Priority: explicit path > user config dir > ~/.whisperingrc > /etc/whispering/config.yaml
// When none exists the defaults are written to the user config path.
func LoadWithFallback(explicitPath string) (*Config, string, error) {
	// If explicit path is provided, use it
	if explicitPath != "" {
		cfg, err := Load(explicitPath)
		return cfg, explicitPath, err
	}

	var candidates []string
	userPath, userErr := UserConfigPath()
	if userErr == nil {
		candidates = append(candidates, userPath)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".whisperingrc"))
	}
	candidates = append(candidates, "/etc/whispering/config.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := Load(path)
		return cfg, path, err
	}

	// No config file found, write the defaults where the user will look for them
	cfg := DefaultConfig()
	if userErr != nil {
		return cfg, "", nil
	}
	if err := cfg.Save(userPath); err != nil {
		slog.Warn("Could not write default config", "path", userPath, "error", err)
		return cfg, "", nil
	}
	slog.Info("Wrote default config", "path", userPath)
	return cfg, userPath, nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// envOverrides maps environment variables to the keys they replace
var envOverrides = map[string]func(c *Config, v string){
	"WHISPERING_LOG_LEVEL":      func(c *Config, v string) { c.Logging.Level = v },
	"WHISPERING_MODEL_ENGINE":   func(c *Config, v string) { c.Model.Engine = v },
	"WHISPERING_MODEL_FILENAME": func(c *Config, v string) { c.Model.Filename = v },
	"WHISPERING_AUDIO_DEVICE":   func(c *Config, v string) { c.Audio.Device = v },
	"WHISPERING_METRICS_ADDR":   func(c *Config, v string) { c.Metrics.Addr = v },
}

// ApplyEnv loads .env files (missing ones are ignored) and applies
// WHISPERING_* overrides.
func (c *Config) ApplyEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return apperr.Config("load env", fmt.Errorf("%s: %w", f, err))
		}
	}

	for key, apply := range envOverrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			apply(c, v)
		}
	}
	return c.Validate()
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Audio.Channels >= 1, "audio.channels must be at least 1, got %d", c.Audio.Channels)
	check(c.Audio.SampleRate >= 8000 && c.Audio.SampleRate <= 192000,
		"audio.sample_rate must be within 8000-192000, got %d", c.Audio.SampleRate)
	if _, err := audio.ParseSampleFormat(c.Audio.SampleFormat); err != nil {
		errs = append(errs, fmt.Errorf("audio.sample_format: %w", err))
	}
	check(c.Audio.BufferFrames >= 0, "audio.buffer_frames must not be negative")
	check(c.Audio.QueueSize >= 0, "audio.queue_size must not be negative")

	switch c.Model.Engine {
	case "whisper", "vosk":
	default:
		errs = append(errs, fmt.Errorf("model.engine: unknown engine %q", c.Model.Engine))
	}
	check(c.Model.Filename != "", "model.filename is required")
	check(c.Model.MinDuration >= 0, "model.min_duration must not be negative")
	check(c.Model.Threads >= 0, "model.threads must not be negative")
	if _, err := c.Model.Prompt.Value(); err != nil {
		errs = append(errs, fmt.Errorf("model.prompt: %w", err))
	}
	if _, err := postprocess.NewTable(c.Model.Replacements); err != nil {
		errs = append(errs, fmt.Errorf("model.replacements: %w", err))
	}

	if err := c.Activation.Trigger.validate(); err != nil {
		errs = append(errs, fmt.Errorf("activation.trigger: %w", err))
	}
	if _, err := input.ParseCombo(c.Activation.Keys); err != nil {
		errs = append(errs, fmt.Errorf("activation.keys: %w", err))
	}
	if len(c.Activation.CancelKeys) > 0 {
		if _, err := input.ParseCombo(c.Activation.CancelKeys); err != nil {
			errs = append(errs, fmt.Errorf("activation.cancel_keys: %w", err))
		}
	}
	switch c.Activation.Input {
	case "hook", "hotkey":
	default:
		errs = append(errs, fmt.Errorf("activation.input: unknown input %q", c.Activation.Input))
	}

	if _, err := vad.NewClassifier(c.VAD.Classifier); err != nil {
		errs = append(errs, fmt.Errorf("vad.classifier: %w", err))
	}
	check(c.VAD.Window > 0, "vad.window must be positive")

	switch c.Output.Mode {
	case OutputPaste, OutputStream:
	default:
		errs = append(errs, fmt.Errorf("output.mode: unknown mode %q", c.Output.Mode))
	}
	switch c.Output.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("output.format: unknown format %q", c.Output.Format))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json", "":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	check(!c.Metrics.Enabled || c.Metrics.Addr != "", "metrics.addr is required when metrics are enabled")

	return errors.Join(errs...)
}

// Mode builds the activation mode
func (c *Config) Mode() (trigger.Mode, error) {
	combo, err := input.ParseCombo(c.Activation.Keys)
	if err != nil {
		return nil, err
	}

	t := c.Activation.Trigger
	switch t.Type {
	case TriggerPushToTalk, "":
		return trigger.PushToTalk{Combo: combo}, nil
	case TriggerToggle:
		return trigger.Toggle{Combo: combo}, nil
	case TriggerToggleVAD:
		return trigger.ToggleVAD{
			Combo:             combo,
			Threshold:         t.Threshold,
			SpeechDuration:    seconds(t.SpeechDuration),
			SilenceDuration:   seconds(t.SilenceDuration),
			PreBufferDuration: seconds(t.PreBufferDuration),
		}, nil
	default:
		return nil, fmt.Errorf("unknown trigger type %q", t.Type)
	}
}

// CancelCombo returns the cancel keys, nil when none are set
func (c *Config) CancelCombo() (input.Combo, error) {
	if len(c.Activation.CancelKeys) == 0 {
		return nil, nil
	}
	return input.ParseCombo(c.Activation.CancelKeys)
}

// CaptureConfig returns the audio capture settings
func (c *Config) CaptureConfig() (audio.CaptureConfig, error) {
	format, err := audio.ParseSampleFormat(c.Audio.SampleFormat)
	if err != nil {
		return audio.CaptureConfig{}, err
	}
	return audio.CaptureConfig{
		SampleRate:   uint32(c.Audio.SampleRate),
		Channels:     uint32(c.Audio.Channels),
		Format:       format,
		BufferFrames: uint32(c.Audio.BufferFrames),
		QueueSize:    c.Audio.QueueSize,
		DeviceName:   c.Audio.Device,
	}, nil
}

// STTConfig returns the engine settings for a resolved model path
func (c *Config) STTConfig(modelPath string) stt.Config {
	return stt.Config{
		Engine:    c.Model.Engine,
		ModelPath: modelPath,
		Binary:    ExpandPath(c.Model.Binary),
		Language:  c.Model.Language,
		Threads:   c.Model.Threads,
	}
}

// LoggingOptions returns the logger settings
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		File:   ExpandPath(c.Logging.File),
	}
}

// MinDuration returns model.min_duration
func (c *Config) MinDuration() time.Duration {
	return seconds(c.Model.MinDuration)
}

// VADWindow returns vad.window
func (c *Config) VADWindow() time.Duration {
	return seconds(c.VAD.Window)
}

// CacheDir returns the expanded cache directory
func (c *Config) CacheDir() string {
	return ExpandPath(c.Paths.CacheDir)
}

// RecordingPath returns the expanded recording path
func (c *Config) RecordingPath() string {
	return ExpandPath(c.Paths.RecordingPath)
}

// ExpandPath replaces a leading ~ with the home directory
func ExpandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
