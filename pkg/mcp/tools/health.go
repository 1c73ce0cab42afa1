package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
)

type healthResult struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Entities   int                        `json:"entities"`
	Store      bool                       `json:"store"`
	DataSource *datasource.ConnectionInfo `json:"datasource,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool reports the version, the CSN corpus size and the configured backends.
func RegisterHealthTool(s *server.MCPServer, deps *ToolDeps, version string) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, handle(deps, "health", false, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		result := healthResult{
			Status:  "ok",
			Version: version,
			Store:   deps.Scopes != nil,
		}
		if deps.Entities != nil {
			result.Entities = len(deps.Entities.ListEntities())
		}
		if deps.DataSource != nil {
			info := deps.DataSource.GetConnectionInfo()
			result.DataSource = &info
		}
		return result, nil
	}))
}
