package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/emmett/whispering/internal/models"
)

func (s *Server) handleTranscribeAudio(ctx context.Context, req *sdk.CallToolRequest, args TranscribeArgs) (*sdk.CallToolResult, any, error) {
	result, err := s.service.TranscribeAudio(ctx, args)
	if err != nil {
		return nil, nil, fmt.Errorf("transcription failed: %w", err)
	}

	return &sdk.CallToolResult{
		Content: []sdk.Content{
			&sdk.TextContent{Text: result.Text},
			&sdk.TextContent{Text: fmt.Sprintf("Duration: %.2fs, Elapsed: %.2fs", result.Duration, result.Elapsed)},
		},
	}, nil, nil
}

func (s *Server) handleListModels(ctx context.Context, req *sdk.CallToolRequest, args ListModelsArgs) (*sdk.CallToolResult, any, error) {
	infos := s.listModels()

	content := []sdk.Content{
		&sdk.TextContent{Text: fmt.Sprintf("Available models (%d):", len(infos))},
	}
	for _, m := range infos {
		status := "not downloaded"
		if m.Downloaded {
			status = "downloaded"
		}
		content = append(content, &sdk.TextContent{
			Text: fmt.Sprintf("- %s [%s, %s, %s] %s", m.Name, m.Engine, m.Size, status, m.Description),
		})
	}

	return &sdk.CallToolResult{Content: content}, nil, nil
}

func (s *Server) listModels() []ModelInfo {
	infos := make([]ModelInfo, 0, len(models.AvailableModels))
	for _, m := range models.AvailableModels {
		infos = append(infos, ModelInfo{
			Name:        m.Name,
			Engine:      m.Engine,
			Language:    m.Language,
			Size:        m.Size,
			Description: m.Description,
			Downloaded:  s.models != nil && s.models.IsDownloaded(m.Name),
		})
	}
	return infos
}
