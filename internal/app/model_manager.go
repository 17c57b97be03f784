package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/emmett/whispering/internal/config"
	"github.com/emmett/whispering/internal/models"
)

type ModelManager struct {
	models *models.Manager
	out    io.Writer
}

func NewModelManager(mgr *models.Manager) *ModelManager {
	return &ModelManager{models: mgr, out: os.Stdout}
}

func (m *ModelManager) ListModels() error {
	fmt.Fprintln(m.out, "Available models for download:")
	fmt.Fprintln(m.out)

	for i, model := range models.AvailableModels {
		fmt.Fprintf(m.out, "%d. %s\n", i+1, model.Name)
		fmt.Fprintf(m.out, "   Engine:   %s\n", model.Engine)
		fmt.Fprintf(m.out, "   Language: %s\n", model.Language)
		fmt.Fprintf(m.out, "   Size:     %s\n", model.Size)
		fmt.Fprintf(m.out, "   Info:     %s\n", model.Description)

		if m.models.IsDownloaded(model.Name) {
			fmt.Fprintf(m.out, "   Status:   Downloaded\n")
		} else {
			fmt.Fprintf(m.out, "   Status:   Not downloaded\n")
		}
		fmt.Fprintln(m.out)
	}

	fmt.Fprintln(m.out, "To download a model, use:")
	fmt.Fprintln(m.out, "  whispering --download-model <model-name>")
	return nil
}

func (m *ModelManager) ListDownloaded() error {
	downloaded, err := m.models.ListDownloaded()
	if err != nil {
		return fmt.Errorf("error listing models: %w", err)
	}

	if len(downloaded) == 0 {
		fmt.Fprintln(m.out, "No models downloaded yet.")
		return nil
	}

	fmt.Fprintf(m.out, "Downloaded models (%d):\n\n", len(downloaded))
	for i, name := range downloaded {
		fmt.Fprintf(m.out, "%d. %s", i+1, name)
		if name == models.DefaultFilename {
			fmt.Fprint(m.out, " [DEFAULT]")
		}
		fmt.Fprintln(m.out)
		fmt.Fprintf(m.out, "   Path: %s\n", m.models.Path(name))
	}
	return nil
}

func (m *ModelManager) Download(ctx context.Context, name string) error {
	model := models.FindModel(name)
	if model == nil {
		return fmt.Errorf("unknown model: %s (see --list-models)", name)
	}

	if m.models.IsDownloaded(name) {
		fmt.Fprintf(m.out, "Model '%s' is already downloaded.\n", name)
		fmt.Fprintf(m.out, "Location: %s\n", m.models.Path(name))
		return nil
	}

	fmt.Fprintf(m.out, "Downloading model: %s (%s)\n", model.Name, model.Size)
	fmt.Fprintf(m.out, "Description: %s\n\n", model.Description)

	path, err := m.models.Download(ctx, name, m.printProgress)
	if err != nil {
		return fmt.Errorf("error downloading model: %w", err)
	}

	fmt.Fprintln(m.out)
	fmt.Fprintf(m.out, "Model '%s' downloaded to %s\n", name, path)
	return nil
}

// EnsureModel resolves the configured model to a local path, fetching it on
// first run
func (m *ModelManager) EnsureModel(ctx context.Context, cfg *config.Config) (string, error) {
	if m.models.IsDownloaded(cfg.Model.Filename) {
		return m.models.Path(cfg.Model.Filename), nil
	}

	slog.Info("Model not cached, downloading", "engine", cfg.Model.Engine, "model", cfg.Model.Filename)
	start := time.Now()

	path, err := m.models.Ensure(ctx, cfg.Model.Engine, cfg.Model.Repo, cfg.Model.Filename, logProgress())
	if err != nil {
		return "", fmt.Errorf("failed to fetch model: %w", err)
	}

	slog.Info("Model downloaded", "path", path, "elapsed", time.Since(start).Round(time.Millisecond))
	return path, nil
}

func (m *ModelManager) printProgress(downloaded, total int64) {
	if total <= 0 {
		fmt.Fprintf(m.out, "\rProgress: %d bytes", downloaded)
		return
	}
	percent := float64(downloaded) / float64(total) * 100
	fmt.Fprintf(m.out, "\rProgress: %.1f%% (%d/%d bytes)", percent, downloaded, total)
}

// logProgress logs at most once per 10 percent
func logProgress() models.Progress {
	last := -1
	return func(downloaded, total int64) {
		if total <= 0 {
			return
		}
		step := int(downloaded * 10 / total)
		if step == last {
			return
		}
		last = step
		slog.Info("Downloading model", "percent", step*10, "bytes", downloaded, "total", total)
	}
}
