package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/csn-graph/pkg/models"
	"github.com/ekaya-inc/csn-graph/pkg/services"
)

var graphTypeEnum = mcp.Enum(string(models.GraphTypeSchema), string(models.GraphTypeData), string(models.GraphTypeCSN))

// RegisterGraphTools registers graph build and cache MCP tools.
func RegisterGraphTools(s *server.MCPServer, deps *ToolDeps) {
	registerGetGraphTool(s, deps)
	registerRefreshGraphTool(s, deps)
	registerGraphCacheStatusTool(s, deps)
	registerClearGraphCacheTool(s, deps)
}

// optionalGraphType validates the graph_type argument. Empty selects the
// configured default.
func optionalGraphType(req mcp.CallToolRequest) (models.GraphType, error) {
	raw := getOptionalString(req, "graph_type")
	if raw == "" {
		return "", nil
	}
	return models.ParseGraphType(raw)
}

func registerGetGraphTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_graph",
		mcp.WithDescription(
			"Get a materialized graph. 'schema' has a node per data product and table with contains and fk edges; "+
				"'data' has a node per sampled record with edges where foreign key values match; "+
				"'csn' has a node per CSN entity. Served from the cache unless use_cache=false.",
		),
		mcp.WithString("graph_type", mcp.Description("Optional - schema, data or csn (default from configuration)"), graphTypeEnum),
		mcp.WithBoolean("use_cache", mcp.Description("Optional - Serve a cached snapshot when one exists")),
		mcp.WithNumber("max_records_per_table", mcp.Description("Optional - Data graphs only, 1..100 (default 20)")),
		mcp.WithBoolean("filter_orphans", mcp.Description("Optional - Data graphs only, drop records without edges")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, handle(deps, "get_graph", true, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		graphType, err := optionalGraphType(req)
		if err != nil {
			return nil, err
		}
		maxRecords, _, err := getOptionalInt(req, "max_records_per_table")
		if err != nil {
			return nil, err
		}
		graphReq := services.GraphRequest{GraphType: graphType, MaxRecordsPerTable: maxRecords}
		if v, ok := getOptionalBool(req, "use_cache"); ok {
			graphReq.UseCache = &v
		}
		if v, ok := getOptionalBool(req, "filter_orphans"); ok {
			graphReq.FilterOrphans = &v
		}
		return deps.Graphs.GetGraph(ctx, graphReq)
	}))
}

func registerRefreshGraphTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"refresh_graph",
		mcp.WithDescription(
			"Rebuild everything: clear the CSN caches and the relationship store, rediscover relationships, "+
				"clear every cached graph and rebuild each graph type the configured backends support.",
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, handle(deps, "refresh_graph", true, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		return deps.Graphs.Refresh(ctx)
	}))
}

func registerGraphCacheStatusTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"graph_cache_status",
		mcp.WithDescription("Report whether a graph snapshot is cached, its node and edge counts and when it was written."),
		mcp.WithString("graph_type", mcp.Required(), mcp.Description("schema, data or csn"), graphTypeEnum),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "graph_cache_status", true, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		raw, err := requireString(req, "graph_type")
		if err != nil {
			return nil, err
		}
		graphType, err := models.ParseGraphType(raw)
		if err != nil {
			return nil, err
		}
		return deps.Graphs.CacheStatus(ctx, graphType)
	}))
}

type clearGraphCacheResult struct {
	Cleared []models.GraphType `json:"cleared"`
}

func registerClearGraphCacheTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"clear_graph_cache",
		mcp.WithDescription("Delete the cached snapshot of one graph type, or of every type when graph_type is omitted."),
		mcp.WithString("graph_type", mcp.Description("Optional - schema, data or csn"), graphTypeEnum),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "clear_graph_cache", true, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		graphType, err := optionalGraphType(req)
		if err != nil {
			return nil, err
		}
		if graphType == "" {
			if err := deps.Graphs.ClearCache(ctx, nil); err != nil {
				return nil, err
			}
			return clearGraphCacheResult{Cleared: models.AllGraphTypes}, nil
		}
		if err := deps.Graphs.ClearCache(ctx, &graphType); err != nil {
			return nil, err
		}
		return clearGraphCacheResult{Cleared: []models.GraphType{graphType}}, nil
	}))
}
