package models

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/emmett/whispering/internal/resilience"
)

// Engine names a model family
const (
	EngineWhisper = "whisper"
	EngineVosk    = "vosk"
)

// Model describes a downloadable model
type Model struct {
	Name        string
	Engine      string
	Language    string
	Size        string
	Description string
	// Repo and Filename locate whisper models on Hugging Face
	Repo     string
	Filename string
	// URL is the archive of a vosk model
	URL string
}

// DefaultRepo and DefaultFilename name the default whisper model
const (
	DefaultRepo     = "ggerganov/whisper.cpp"
	DefaultFilename = "ggml-base.en.bin"
)

// DefaultBaseURL is the Hugging Face host
const DefaultBaseURL = "https://huggingface.co"

// AvailableModels is the catalog shown by --list-models
var AvailableModels = []Model{
	{
		Name:        "ggml-tiny.en.bin",
		Engine:      EngineWhisper,
		Language:    "en",
		Size:        "75M",
		Description: "Fastest whisper model, English only",
		Repo:        DefaultRepo,
		Filename:    "ggml-tiny.en.bin",
	},
	{
		Name:        "ggml-base.en.bin",
		Engine:      EngineWhisper,
		Language:    "en",
		Size:        "142M",
		Description: "Default whisper model, English only",
		Repo:        DefaultRepo,
		Filename:    "ggml-base.en.bin",
	},
	{
		Name:        "ggml-small.en.bin",
		Engine:      EngineWhisper,
		Language:    "en",
		Size:        "466M",
		Description: "More accurate whisper model, English only",
		Repo:        DefaultRepo,
		Filename:    "ggml-small.en.bin",
	},
	{
		Name:        "ggml-base.bin",
		Engine:      EngineWhisper,
		Language:    "multilingual",
		Size:        "142M",
		Description: "Multilingual whisper model",
		Repo:        DefaultRepo,
		Filename:    "ggml-base.bin",
	},
	{
		Name:        "vosk-model-small-en-us-0.15",
		Engine:      EngineVosk,
		Language:    "en-US",
		Size:        "40M",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-small-en-us-0.15.zip",
		Description: "Lightweight English model, fast but less accurate",
	},
	{
		Name:        "vosk-model-en-us-0.22-lgraph",
		Engine:      EngineVosk,
		Language:    "en-US",
		Size:        "128M",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-en-us-0.22-lgraph.zip",
		Description: "Medium English model, balanced speed and accuracy",
	},
	{
		Name:        "vosk-model-en-us-0.22",
		Engine:      EngineVosk,
		Language:    "en-US",
		Size:        "1.8G",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-en-us-0.22.zip",
		Description: "Large English model, slower but more accurate",
	},
}

// FindModel finds a model by name in the catalog
func FindModel(name string) *Model {
	for _, model := range AvailableModels {
		if model.Name == name {
			return &model
		}
	}
	return nil
}

// Progress is called as bytes arrive; total is -1 when unknown
type Progress func(downloaded, total int64)

// Manager fetches models into a cache directory
type Manager struct {
	Dir     string
	BaseURL string
	Client  *http.Client
	Retry   resilience.RetryConfig
}

// NewManager creates a manager caching into dir
func NewManager(dir string) *Manager {
	return &Manager{
		Dir:     dir,
		BaseURL: DefaultBaseURL,
		Client:  http.DefaultClient,
		Retry:   resilience.DefaultRetryConfig(),
	}
}

// ModelURL builds the download URL of a file in a Hugging Face repo
func ModelURL(baseURL, repo, filename string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.Trim(repo, "/") + "/resolve/main/" + filename
}

// Path returns where name is stored in the cache
func (m *Manager) Path(name string) string {
	return filepath.Join(m.Dir, name)
}

// IsDownloaded reports whether name is in the cache. Whisper models are
// files, vosk models directories.
func (m *Manager) IsDownloaded(name string) bool {
	info, err := os.Stat(m.Path(name))
	if err != nil {
		return false
	}
	if info.IsDir() {
		return strings.HasPrefix(name, "vosk-model-")
	}
	return info.Size() > 0
}

// Ensure returns the local path of the model, downloading it first if it is
// not cached. For the whisper engine filename is fetched from repo; for vosk
// it names a catalog entry.
func (m *Manager) Ensure(ctx context.Context, engine, repo, filename string, progress Progress) (string, error) {
	path := m.Path(filename)
	if m.IsDownloaded(filename) {
		slog.Debug("Model cached", "path", path)
		return path, nil
	}

	switch engine {
	case EngineVosk:
		model := FindModel(filename)
		if model == nil || model.Engine != EngineVosk {
			return "", fmt.Errorf("unknown vosk model: %s", filename)
		}
		if err := m.downloadArchive(ctx, model, progress); err != nil {
			return "", err
		}
	case EngineWhisper, "":
		if repo == "" {
			repo = DefaultRepo
		}
		if err := m.download(ctx, ModelURL(m.BaseURL, repo, filename), path, progress); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unknown engine: %s", engine)
	}

	return path, nil
}

// Download fetches a catalog model by name
func (m *Manager) Download(ctx context.Context, name string, progress Progress) (string, error) {
	model := FindModel(name)
	if model == nil {
		return "", fmt.Errorf("unknown model: %s", name)
	}
	return m.Ensure(ctx, model.Engine, model.Repo, model.Name, progress)
}

// download fetches url to dest with retries
func (m *Manager) download(ctx context.Context, url, dest string, progress Progress) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	slog.Info("Downloading model", "url", url, "dest", dest)
	err := resilience.Retry(ctx, m.Retry, func() error {
		return m.fetch(ctx, url, dest, progress)
	})
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	return nil
}

func (m *Manager) fetch(ctx context.Context, url, dest string, progress Progress) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("build request: %w", err))
	}

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("download failed with status: %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resilience.Permanent(err)
		}
		return err
	}

	tmpPath := dest + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("create temp file: %w", err))
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // no-op after the rename
	}()

	total := resp.ContentLength
	var downloaded int64
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return resilience.Permanent(fmt.Errorf("write file: %w", werr))
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
	}

	if total > 0 && downloaded != total {
		return fmt.Errorf("short download: got %d of %d bytes", downloaded, total)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return resilience.Permanent(fmt.Errorf("rename file: %w", err))
	}
	return nil
}

// downloadArchive fetches a vosk zip and extracts it into the cache
func (m *Manager) downloadArchive(ctx context.Context, model *Model, progress Progress) error {
	zipPath := m.Path(model.Name + ".zip")
	defer os.Remove(zipPath)

	if err := m.download(ctx, model.URL, zipPath, progress); err != nil {
		return err
	}

	slog.Info("Extracting model", "name", model.Name)
	if err := extractZip(zipPath, m.Dir); err != nil {
		return fmt.Errorf("failed to extract model: %w", err)
	}
	return nil
}

// extractZip extracts a zip file to the specified directory
func extractZip(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		fpath := filepath.Join(destDir, f.Name)

		// Check for ZipSlip vulnerability
		if !strings.HasPrefix(fpath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path: %s", fpath)
		}

		if f.FileInfo().IsDir() {
			os.MkdirAll(fpath, os.ModePerm)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
			return err
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return err
		}

		_, err = io.Copy(outFile, rc)
		outFile.Close()
		rc.Close()

		if err != nil {
			return err
		}
	}

	return nil
}

// ListDownloaded lists cached whisper files and vosk directories
func (m *Manager) ListDownloaded() ([]string, error) {
	entries, err := os.ReadDir(m.Dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read models directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir() && strings.HasPrefix(name, "vosk-model-"):
			names = append(names, name)
		case !entry.IsDir() && strings.HasPrefix(name, "ggml-") && strings.HasSuffix(name, ".bin"):
			names = append(names, name)
		}
	}
	return names, nil
}
