package tools

import (
	"context"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// RegisterEntityTools registers the CSN catalog tools.
func RegisterEntityTools(s *server.MCPServer, deps *ToolDeps) {
	registerListEntitiesTool(s, deps)
	registerGetEntityTool(s, deps)
	registerAssociationStatisticsTool(s, deps)
}

type listEntitiesResult struct {
	Entities []string `json:"entities"`
	Count    int      `json:"count"`
}

func registerListEntitiesTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_entities",
		mcp.WithDescription(
			"List the simple names of every entity defined in the CSN corpus. "+
				"Use 'filter' to keep only names containing a case-insensitive substring.",
		),
		mcp.WithString(
			"filter",
			mcp.Description("Optional - Case-insensitive substring the entity name must contain"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "list_entities", false, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		filter := strings.ToLower(getOptionalString(req, "filter"))
		names := make([]string, 0)
		for _, name := range deps.Entities.ListEntities() {
			if filter == "" || strings.Contains(strings.ToLower(name), filter) {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		return listEntitiesResult{Entities: names, Count: len(names)}, nil
	}))
}

type getEntityResult struct {
	Found       bool                `json:"found"`
	Entity      *models.Entity      `json:"entity,omitempty"`
	ForeignKeys []models.ForeignKey `json:"foreign_keys,omitempty"`
}

func registerGetEntityTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_entity",
		mcp.WithDescription(
			"Get the columns, primary keys, associations and derived foreign keys of one CSN entity. "+
				"Accepts the simple name ('PurchaseOrder') or the namespaced name ('po.PurchaseOrder'). "+
				"An unknown entity returns found=false.",
		),
		mcp.WithString(
			"name",
			mcp.Required(),
			mcp.Description("Entity name"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "get_entity", false, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		name, err := requireString(req, "name")
		if err != nil {
			return nil, err
		}
		entity, err := deps.Entities.GetEntityMetadata(name)
		if err != nil {
			return nil, err
		}
		if entity == nil {
			return getEntityResult{Found: false}, nil
		}
		return getEntityResult{
			Found:       true,
			Entity:      entity,
			ForeignKeys: deps.Entities.GetForeignKeys(entity.Name),
		}, nil
	}))
}

type associationStatisticsResult struct {
	Cardinality map[models.Cardinality]int `json:"cardinality"`
	ManyToMany  []models.ManyToManyPair    `json:"many_to_many"`
	Complexity  models.ComplexityMetrics   `json:"complexity"`
}

func registerAssociationStatisticsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"association_statistics",
		mcp.WithDescription(
			"Summarize the CSN association graph: counts per cardinality, detected many-to-many bridge pairs, "+
				"and complexity metrics (connected components, cyclic groups, most connected entities).",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "association_statistics", false, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		pairs := deps.Associations.FindManyToManyRelationships()
		if pairs == nil {
			pairs = []models.ManyToManyPair{}
		}
		return associationStatisticsResult{
			Cardinality: deps.Associations.GetCardinalityStatistics(),
			ManyToMany:  pairs,
			Complexity:  deps.Associations.GetRelationshipComplexityMetrics(),
		}, nil
	}))
}
