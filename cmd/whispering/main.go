package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/emmett/whispering/internal/app"
	"github.com/emmett/whispering/internal/apperr"
	"github.com/emmett/whispering/internal/config"
	"github.com/emmett/whispering/internal/logging"
	"github.com/emmett/whispering/internal/models"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

// CLI flags
var (
	configFile     = flag.String("config", "", "Path to configuration file (default: user config dir, created on first run)")
	listModels     = flag.Bool("list-models", false, "List all available models for download")
	listDownloaded = flag.Bool("list-downloaded", false, "List all downloaded models")
	downloadModel  = flag.String("download-model", "", "Download a specific model by name")
	listDevices    = flag.Bool("list-devices", false, "List all available audio input devices")
	logLevel       = flag.String("log-level", "", "Override logging.level: debug, info, warn, error")
	dryRun         = flag.Bool("dry-run", false, "Print transcripts to stdout instead of pasting them")
	showVersion    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Whispering v%s\n", Version)
		fmt.Printf("  Commit:  %s\n", GitCommit)
		fmt.Printf("  Branch:  %s\n", GitBranch)
		fmt.Printf("  Built:   %s\n", BuildTime)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if apperr.Is(err, apperr.KindConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, path, err := config.LoadWithFallback(*configFile)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(".env"); err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return apperr.Config("validate "+path, err)
	}

	closer, err := logging.Setup(cfg.LoggingOptions())
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listDevices {
		return app.NewDeviceManager().ListDevices()
	}

	mgr := app.NewModelManager(models.NewManager(cfg.CacheDir()))
	switch {
	case *listModels:
		return mgr.ListModels()
	case *listDownloaded:
		return mgr.ListDownloaded()
	case *downloadModel != "":
		return mgr.Download(ctx, *downloadModel)
	}

	slog.Info("Starting whispering",
		"version", Version,
		"commit", GitCommit,
		"config", path)

	daemon, err := app.Build(ctx, cfg, app.Options{DryRun: *dryRun})
	if err != nil {
		return err
	}
	defer daemon.Close()

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Shut down")
	return nil
}
