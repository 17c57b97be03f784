package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/emmett/whispering/internal/models"
)

type Config struct {
	ServerName    string
	ServerVersion string
}

type Server struct {
	config    Config
	mcpServer *sdk.Server
	service   *TranscriptionService
	models    *models.Manager
}

// NewServer exposes the service and the model cache as MCP tools
func NewServer(cfg Config, service *TranscriptionService, mgr *models.Manager) *Server {
	s := &Server{
		config:  cfg,
		service: service,
		models:  mgr,
	}

	// Create MCP server
	s.mcpServer = sdk.NewServer(&sdk.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}, nil)

	// Register tools
	s.registerTools()

	return s
}

// Start serves over stdio until ctx is done or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &sdk.StdioTransport{})
}

func (s *Server) Stop() error {
	if s.service != nil {
		return s.service.Close()
	}
	return nil
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "transcribe_audio",
		Description: "Transcribe a WAV recording to text with the configured speech model and replacements",
	}, s.handleTranscribeAudio)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "list_models",
		Description: "List speech models and whether they are cached locally",
	}, s.handleListModels)
}
