package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/substrfind/internal/engine"
)

const (
	// ServerName is the MCP server name
	ServerName = "substrfind"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	engine *engine.Engine
}

// NewServer creates a new MCP server instance backed by eng. The server does
// not own eng; the caller closes it.
func NewServer(eng *engine.Engine) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:    mcpServer,
		engine: eng,
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(scanDirectoryTool(), s.handleScanDirectory)
	s.mcp.AddTool(findSubstringTool(), s.handleFindSubstring)
	s.mcp.AddTool(openDirectoryTool(), s.handleOpenDirectory)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(recentEventsTool(), s.handleRecentEvents)

	return nil
}
