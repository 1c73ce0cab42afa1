package mcp

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/mcp/tools"
)

const instructions = "csn-graph exposes entities parsed from CSN metadata files, " +
	"the relationships discovered between them, and cached schema, data and csn graphs. " +
	"Every tool returns {success, data} or {success: false, error: {code, message}}. " +
	"Graph node keys look like product-<name>, table-<schema>-<table> and record-<schema>-<table>-<pk>."

// Server wraps the mcp-go MCPServer with the csn-graph tool set.
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
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// NewGraphServer creates a server with every csn-graph tool registered.
func NewGraphServer(version string, deps *tools.ToolDeps, logger *zap.Logger) *Server {
	s := NewServer("csn-graph", version, logger)
	tools.RegisterAll(s.mcp, deps, version)
	return s
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// ServeStdio serves MCP over the given streams until ctx is cancelled or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("Serving MCP over stdio")
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	return stdio.Listen(ctx, in, out)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
