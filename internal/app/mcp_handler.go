package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/emmett/whispering/internal/config"
	"github.com/emmett/whispering/internal/models"
	"github.com/emmett/whispering/internal/server/mcp"
	"github.com/emmett/whispering/internal/stt"
)

// MCPHandler runs the transcription tools over the Model Context Protocol
type MCPHandler struct {
	cfg        *config.Config
	configPath string
	version    string
	gitCommit  string
	out        io.Writer
}

// NewMCPHandler creates a new MCP handler
func NewMCPHandler(cfg *config.Config, configPath, version, gitCommit string) *MCPHandler {
	return &MCPHandler{
		cfg:        cfg,
		configPath: configPath,
		version:    version,
		gitCommit:  gitCommit,
		out:        os.Stderr,
	}
}

// Run serves on stdin/stdout until ctx is done or the client disconnects
func (h *MCPHandler) Run(ctx context.Context) error {
	fmt.Fprintf(h.out, "Starting MCP server...\n")
	fmt.Fprintf(h.out, "Version: %s (commit: %s)\n\n", h.version, h.gitCommit)

	mgr := models.NewManager(h.cfg.CacheDir())
	modelPath, err := NewModelManager(mgr).EnsureModel(ctx, h.cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(h.out, "Model path: %s\n\n", modelPath)

	prompt, err := h.cfg.Model.Prompt.Value()
	if err != nil {
		return err
	}
	table, err := h.cfg.Model.Replacements.Table()
	if err != nil {
		return err
	}

	engine, err := stt.New(h.cfg.STTConfig(modelPath))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	h.printClientConfig()

	server := mcp.NewServer(mcp.Config{
		ServerName:    "whispering-mcp",
		ServerVersion: h.version,
	}, mcp.NewTranscriptionService(engine, prompt, table), mgr)
	defer server.Stop()

	fmt.Fprintf(h.out, "MCP server ready. Listening on stdin/stdout...\n")
	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

type mcpServerEntry struct {
	Type    string   `json:"type,omitempty"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// clientConfig returns the mcpServers block a client needs to launch us
func (h *MCPHandler) clientConfig() map[string]map[string]mcpServerEntry {
	execPath, err := os.Executable()
	if err != nil {
		execPath = "whispering-mcp"
	}
	var args []string
	if h.configPath != "" {
		args = []string{"--config", h.configPath}
	}
	return map[string]map[string]mcpServerEntry{
		"mcpServers": {
			"whispering": {Command: execPath, Args: args},
		},
	}
}

func (h *MCPHandler) printClientConfig() {
	data, err := json.MarshalIndent(h.clientConfig(), "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(h.out, "MCP Client Configuration:\n%s\n\n", data)
}
