package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/emmett/whispering/internal/audio"
	"github.com/emmett/whispering/internal/config"
	"github.com/emmett/whispering/internal/dispatch"
	"github.com/emmett/whispering/internal/input"
	"github.com/emmett/whispering/internal/metrics"
	"github.com/emmett/whispering/internal/models"
	"github.com/emmett/whispering/internal/notify"
	"github.com/emmett/whispering/internal/output"
	grpcserver "github.com/emmett/whispering/internal/server/grpc"
	"github.com/emmett/whispering/internal/stt"
	"github.com/emmett/whispering/internal/trigger"
	"github.com/emmett/whispering/internal/vad"
)

// Options adjust Build for the command line
type Options struct {
	// DryRun prints transcripts to stdout instead of pasting them
	DryRun bool
}

// Build assembles the daemon from configuration: model, engine, capture,
// input, state machine, dispatcher and output
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Daemon, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var c Components
	c.Metrics = m
	c.Autosend = cfg.Activation.Autosend
	c.RecordingPath = cfg.RecordingPath()

	prompt, err := cfg.Model.Prompt.Value()
	if err != nil {
		return nil, err
	}
	if c.Table, err = cfg.Model.Replacements.Table(); err != nil {
		return nil, err
	}

	modelPath, err := NewModelManager(models.NewManager(cfg.CacheDir())).EnsureModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if c.Engine, err = stt.New(cfg.STTConfig(modelPath)); err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	fail := func(err error) (*Daemon, error) {
		c.Engine.Close()
		return nil, err
	}

	elapsed, err := stt.Warmup(ctx, c.Engine)
	if err != nil {
		return fail(err)
	}
	slog.Info("Engine ready", "engine", cfg.Model.Engine, "model", modelPath, "warmup", elapsed)

	if cfg.Audio.Device != "" {
		if dev, err := NewDeviceManager().SelectDevice(cfg.Audio.Device); err != nil {
			slog.Warn("Configured capture device not found, using default", "device", cfg.Audio.Device, "error", err)
		} else {
			slog.Info("Using capture device", "device", dev.Name)
		}
	}

	capCfg, err := cfg.CaptureConfig()
	if err != nil {
		return fail(err)
	}
	src, err := audio.NewMalgoSource(capCfg)
	if err != nil {
		return fail(err)
	}
	src.OnOverflow(m.RecordFrameDropped)
	c.Audio = src

	mode, err := cfg.Mode()
	if err != nil {
		return fail(err)
	}
	cancelKeys, err := cfg.CancelCombo()
	if err != nil {
		return fail(err)
	}

	machineCfg := trigger.Config{
		Mode:       mode,
		CancelKeys: cancelKeys,
		SampleRate: int(capCfg.SampleRate),
		Channels:   int(capCfg.Channels),
	}
	if tv, ok := mode.(trigger.ToggleVAD); ok {
		machineCfg.Detector, machineCfg.DetectorErr = newDetector(cfg, tv, int(capCfg.SampleRate), m)
		if machineCfg.DetectorErr != nil {
			slog.Error("Voice activity detector unavailable", "error", machineCfg.DetectorErr)
		}
	}
	machine, err := trigger.NewMachine(machineCfg)
	if err != nil {
		return fail(err)
	}

	combos := []input.Combo{mode.Keys()}
	if len(cancelKeys) > 0 {
		combos = append(combos, cancelKeys)
	}
	if c.Input, err = input.NewSource(cfg.Activation.Input, combos...); err != nil {
		return fail(err)
	}

	c.Processor = trigger.NewProcessor(machine, src.Frames(), c.Input.Events(), src.Errors(), trigger.WithMetrics(m))
	c.Dispatcher = dispatch.New(c.Engine, dispatch.Config{
		Prompt:      prompt,
		MinDuration: cfg.MinDuration(),
	}, m)

	if opts.DryRun {
		c.Sink, err = output.OpenStreamSink(cfg.Output.Format, "")
	} else {
		c.Sink, err = output.New(cfg.Output.Mode, cfg.Output.Format, config.ExpandPath(cfg.Output.File))
	}
	if err != nil {
		return fail(err)
	}

	switch {
	case !cfg.Activation.Notify:
		c.Notifier = notify.Disabled{}
	case opts.DryRun || cfg.Output.Mode == config.OutputStream:
		c.Notifier = output.NewConsoleOutput(output.ConsoleConfig{ShowTimestamp: true})
	default:
		c.Notifier = notify.NewDesktop()
	}

	if cfg.Metrics.Enabled {
		addr := cfg.Metrics.Addr
		c.Services = append(c.Services, Service{
			Name: "metrics",
			Run:  func(ctx context.Context) error { return metrics.Serve(ctx, addr, reg) },
		})
	}
	if cfg.Server.GRPCAddr != "" {
		health := grpcserver.NewServer(grpcserver.Config{Addr: cfg.Server.GRPCAddr})
		c.Health = health
		c.Services = append(c.Services, Service{Name: "grpc", Run: health.Start})
	}

	slog.Info("Activation configured",
		"trigger", mode.Name(),
		"keys", mode.Keys().String(),
		"cancel_keys", cancelKeys.String(),
		"output", cfg.Output.Mode,
		"dry_run", opts.DryRun)

	return NewDaemon(c), nil
}

// newDetector loads the configured classifier. A failure is returned for the
// machine to surface on each activation rather than stopping the daemon.
func newDetector(cfg *config.Config, mode trigger.ToggleVAD, rate int, m *metrics.Metrics) (*vad.Detector, error) {
	classifier, err := vad.NewClassifier(cfg.VAD.Classifier)
	if err != nil {
		return nil, err
	}
	d, err := vad.NewDetector(mode.VADConfig(cfg.VADWindow()), classifier, rate)
	if err != nil {
		return nil, err
	}
	d.Observe = func(_ float64, speech bool) { m.RecordVADWindow(speech) }
	return d, nil
}
