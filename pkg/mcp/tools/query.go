package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/services"
)

var directionEnum = mcp.Enum(string(services.DirectionOutgoing), string(services.DirectionIncoming), string(services.DirectionBoth))

// RegisterQueryTools registers graph query MCP tools.
func RegisterQueryTools(s *server.MCPServer, deps *ToolDeps) {
	registerGetNeighborsTool(s, deps)
	registerShortestPathTool(s, deps)
	registerTraverseTool(s, deps)
}

func queryDirection(req mcp.CallToolRequest) (services.Direction, error) {
	return services.ParseDirection(getOptionalString(req, "direction"))
}

type neighborsResult struct {
	NodeKey   string              `json:"node_key"`
	Neighbors []services.Neighbor `json:"neighbors"`
	Count     int                 `json:"count"`
}

func registerGetNeighborsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_neighbors",
		mcp.WithDescription(
			"List nodes one edge away from a node, with the connecting edge. "+
				"Node keys look like 'table-<schema>-<table>', 'product-<name>' or 'record-<schema>-<table>-<pk>'. "+
				"An unknown node returns an empty list.",
		),
		mcp.WithString("node_key", mcp.Required(), mcp.Description("Key of the node to start from")),
		mcp.WithString("graph_type", mcp.Description("Optional - schema, data or csn"), graphTypeEnum),
		mcp.WithString("direction", mcp.Description("Optional - outgoing, incoming or both (default)"), directionEnum),
		mcp.WithArray("edge_types", mcp.Description("Optional - Only follow these edge types (contains, fk, composition, association)"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("limit", mcp.Description("Optional - Maximum neighbors to return (0 = no limit)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "get_neighbors", true, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		key, err := requireString(req, "node_key")
		if err != nil {
			return nil, err
		}
		graphType, err := optionalGraphType(req)
		if err != nil {
			return nil, err
		}
		dir, err := queryDirection(req)
		if err != nil {
			return nil, err
		}
		edgeTypes, err := getStringSlice(req, "edge_types")
		if err != nil {
			return nil, err
		}
		limit, _, err := getOptionalInt(req, "limit")
		if err != nil {
			return nil, err
		}

		neighbors, err := deps.Graphs.GetNeighbors(ctx, graphType, key, dir, edgeTypes, limit)
		if err != nil {
			return nil, err
		}
		return neighborsResult{NodeKey: key, Neighbors: neighbors, Count: len(neighbors)}, nil
	}))
}

type shortestPathResult struct {
	Found bool           `json:"found"`
	Path  *services.Path `json:"path,omitempty"`
}

func registerShortestPathTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"shortest_path",
		mcp.WithDescription(
			"Find the shortest directed path between two nodes with breadth-first search. "+
				"Returns found=false when no path of at most max_hops edges exists.",
		),
		mcp.WithString("start", mcp.Required(), mcp.Description("Start node key")),
		mcp.WithString("end", mcp.Required(), mcp.Description("End node key")),
		mcp.WithString("graph_type", mcp.Description("Optional - schema, data or csn"), graphTypeEnum),
		mcp.WithNumber("max_hops", mcp.Description("Optional - Maximum path length in edges (default 10)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "shortest_path", true, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		start, err := requireString(req, "start")
		if err != nil {
			return nil, err
		}
		end, err := requireString(req, "end")
		if err != nil {
			return nil, err
		}
		graphType, err := optionalGraphType(req)
		if err != nil {
			return nil, err
		}
		maxHops, ok, err := getOptionalInt(req, "max_hops")
		if err != nil {
			return nil, err
		}
		if !ok {
			maxHops = services.DefaultMaxHops
		}

		path, err := deps.Graphs.ShortestPath(ctx, graphType, start, end, maxHops)
		if err != nil {
			return nil, err
		}
		return shortestPathResult{Found: path != nil, Path: path}, nil
	}))
}

type traverseResult struct {
	Start string                   `json:"start"`
	Nodes []services.TraversedNode `json:"nodes"`
	Count int                      `json:"count"`
}

func registerTraverseTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"traverse",
		mcp.WithDescription(
			"Breadth-first traversal from a node: every node within 'depth' edges, each reported once "+
				"with the depth it was first reached at. The start node is included at depth 0.",
		),
		mcp.WithString("start", mcp.Required(), mcp.Description("Start node key")),
		mcp.WithNumber("depth", mcp.Required(), mcp.Description("Maximum depth in edges")),
		mcp.WithString("graph_type", mcp.Description("Optional - schema, data or csn"), graphTypeEnum),
		mcp.WithString("direction", mcp.Description("Optional - outgoing, incoming or both (default)"), directionEnum),
		mcp.WithArray("edge_types", mcp.Description("Optional - Only follow these edge types"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "traverse", true, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		start, err := requireString(req, "start")
		if err != nil {
			return nil, err
		}
		depth, ok, err := getOptionalInt(req, "depth")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("parameter 'depth' is required: %w", apperrors.ErrInvalidInput)
		}
		graphType, err := optionalGraphType(req)
		if err != nil {
			return nil, err
		}
		dir, err := queryDirection(req)
		if err != nil {
			return nil, err
		}
		edgeTypes, err := getStringSlice(req, "edge_types")
		if err != nil {
			return nil, err
		}

		nodes, err := deps.Graphs.Traverse(ctx, graphType, start, depth, dir, edgeTypes)
		if err != nil {
			return nil, err
		}
		return traverseResult{Start: start, Nodes: nodes, Count: len(nodes)}, nil
	}))
}
