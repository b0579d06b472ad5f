// Package mcp exposes the error log over the Model Context Protocol so agents
// can list, inspect, triage and analyze captured errors.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/mcp/tools"
)

// ServerName is the name reported to MCP clients.
const ServerName = "bugsneak"

const instructions = "Bugsneak groups runtime errors by fingerprint. " +
	"Use list_errors to find recurring problems, get_error for the stack trace and code snippet, " +
	"and update_error_status to resolve or ignore a group once handled."

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance.
func NewServer(name, version string, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
		server.WithRecovery(),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterTools registers the health and error log tools.
func (s *Server) RegisterTools(version string, dbCheck tools.HealthCheck, deps *tools.ErrorLogToolDeps) {
	tools.RegisterHealthTool(s.mcp, version, dbCheck)
	if deps.Logger == nil {
		deps.Logger = s.logger
	}
	tools.RegisterErrorLogTools(s.mcp, deps)
	s.logger.Info("MCP tools registered", zap.Bool("analysis", deps.Analysis != nil))
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
