package tools

import (
	"github.com/mark3labs/mcp-go/server"
)

// RegisterAll registers every csn-graph tool. Store-backed tools are always
// registered; without a store they return a store_error result.
func RegisterAll(s *server.MCPServer, deps *ToolDeps, version string) {
	RegisterHealthTool(s, deps, version)
	RegisterEntityTools(s, deps)
	RegisterRelationshipTools(s, deps)
	RegisterGraphTools(s, deps)
	RegisterQueryTools(s, deps)
}
