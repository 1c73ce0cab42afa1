package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// RegisterRelationshipTools registers relationship ontology MCP tools.
func RegisterRelationshipTools(s *server.MCPServer, deps *ToolDeps) {
	registerDiscoverRelationshipsTool(s, deps)
	registerListRelationshipsTool(s, deps)
	registerAddManualRelationshipTool(s, deps)
	registerVerifyRelationshipTool(s, deps)
	registerDisableRelationshipTool(s, deps)
	registerOntologyStatisticsTool(s, deps)
}

type relationshipsResult struct {
	Relationships []*models.Relationship `json:"relationships"`
	Count         int                    `json:"count"`
}

func newRelationshipsResult(rels []*models.Relationship) relationshipsResult {
	if rels == nil {
		rels = []*models.Relationship{}
	}
	return relationshipsResult{Relationships: rels, Count: len(rels)}
}

func registerDiscoverRelationshipsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"discover_relationships",
		mcp.WithDescription(
			"Run relationship discovery over the CSN corpus without touching the store. "+
				"Explicit associations score 1.0; naming-based inferences score 0.7 for a name match, "+
				"+0.2 when the column is the target's primary key and +0.1 when the types agree. "+
				"Results are ordered by confidence, highest first.",
		),
		mcp.WithNumber(
			"min_confidence",
			mcp.Description("Optional - Minimum confidence in [0,1] (default 0)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "discover_relationships", false, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		minConfidence, _ := getOptionalFloat(req, "min_confidence")
		rels, err := deps.Ontology.DiscoverRelationships(ctx, minConfidence)
		if err != nil {
			return nil, err
		}
		return newRelationshipsResult(rels), nil
	}))
}

func registerListRelationshipsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_relationships",
		mcp.WithDescription(
			"List relationships persisted in the ontology store. "+
				"With 'table', only active relationships where the table is source or target are returned.",
		),
		mcp.WithBoolean(
			"active_only",
			mcp.Description("Optional - Exclude disabled relationships (default true)"),
		),
		mcp.WithString(
			"table",
			mcp.Description("Optional - Entity name that must be the source or target"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "list_relationships", true, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		activeOnly, ok := getOptionalBool(req, "active_only")
		if !ok {
			activeOnly = true
		}
		rels, err := deps.Ontology.ListRelationships(ctx, activeOnly, getOptionalString(req, "table"))
		if err != nil {
			return nil, err
		}
		return newRelationshipsResult(rels), nil
	}))
}

func registerAddManualRelationshipTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"add_manual_relationship",
		mcp.WithDescription(
			"Add or replace a manual relationship with upsert semantics on "+
				"(from_entity, from_column, to_entity, to_column). Manual relationships have confidence 1.0, "+
				"survive refreshes and are never overwritten by discovery. "+
				"Example: add_manual_relationship(from_entity='Invoice', from_column='PurchaseOrder', to_entity='PurchaseOrder', to_column='PurchaseOrder')",
		),
		mcp.WithString("from_entity", mcp.Required(), mcp.Description("Source entity name")),
		mcp.WithString("from_column", mcp.Required(), mcp.Description("Source column name")),
		mcp.WithString("to_entity", mcp.Required(), mcp.Description("Target entity name")),
		mcp.WithString("to_column", mcp.Description("Optional - Target column name")),
		mcp.WithString(
			"relationship_type",
			mcp.Description("Optional - foreign_key (default), composition or association"),
			mcp.Enum(models.RelationshipTypeForeignKey, models.RelationshipTypeComposition, models.RelationshipTypeAssociation),
		),
		mcp.WithString(
			"cardinality",
			mcp.Description("Optional - one_to_one, one_to_many, many_to_one or many_to_many"),
			mcp.Enum(string(models.CardinalityOneToOne), string(models.CardinalityOneToMany),
				string(models.CardinalityManyToOne), string(models.CardinalityManyToMany)),
		),
		mcp.WithString("notes", mcp.Description("Optional - Free-text notes stored with the relationship")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "add_manual_relationship", true, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		rel := models.Relationship{
			ToColumn:         getOptionalString(req, "to_column"),
			RelationshipType: getOptionalString(req, "relationship_type"),
			Cardinality:      models.Cardinality(getOptionalString(req, "cardinality")),
		}
		var err error
		if rel.FromEntity, err = requireString(req, "from_entity"); err != nil {
			return nil, err
		}
		if rel.FromColumn, err = requireString(req, "from_column"); err != nil {
			return nil, err
		}
		if rel.ToEntity, err = requireString(req, "to_entity"); err != nil {
			return nil, err
		}
		if rel.RelationshipType != "" && !isRelationshipType(rel.RelationshipType) {
			return nil, fmt.Errorf("invalid relationship_type %q: %w", rel.RelationshipType, apperrors.ErrInvalidInput)
		}
		if rel.Cardinality != "" && !models.IsValidCardinality(string(rel.Cardinality)) {
			return nil, fmt.Errorf("invalid cardinality %q: %w", rel.Cardinality, apperrors.ErrInvalidInput)
		}
		rel.IsComposition = rel.RelationshipType == models.RelationshipTypeComposition
		if notes := getOptionalString(req, "notes"); notes != "" {
			rel.Notes = &notes
		}
		return deps.Ontology.AddManualRelationship(ctx, rel)
	}))
}

func isRelationshipType(s string) bool {
	switch s {
	case models.RelationshipTypeForeignKey, models.RelationshipTypeComposition, models.RelationshipTypeAssociation:
		return true
	}
	return false
}

func parseRelationshipID(req mcp.CallToolRequest) (uuid.UUID, error) {
	raw, err := requireString(req, "id")
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid relationship id %q: %w", raw, apperrors.ErrInvalidInput)
	}
	return id, nil
}

type verifyRelationshipResult struct {
	Found        bool                 `json:"found"`
	Relationship *models.Relationship `json:"relationship,omitempty"`
}

func registerVerifyRelationshipTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"verify_relationship",
		mcp.WithDescription(
			"Mark a stored relationship as verified by a person: confidence becomes 1.0 and the discovery "+
				"method manual_verified. An unknown id returns found=false.",
		),
		mcp.WithString("id", mcp.Required(), mcp.Description("Relationship id (UUID)")),
		mcp.WithString("notes", mcp.Description("Optional - Verification notes")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "verify_relationship", true, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		id, err := parseRelationshipID(req)
		if err != nil {
			return nil, err
		}
		var notes *string
		if n := getOptionalString(req, "notes"); n != "" {
			notes = &n
		}
		rel, err := deps.Ontology.VerifyRelationship(ctx, id, notes)
		if err != nil {
			return nil, err
		}
		return verifyRelationshipResult{Found: rel != nil, Relationship: rel}, nil
	}))
}

type disableRelationshipResult struct {
	ID       string `json:"id"`
	Disabled bool   `json:"disabled"`
}

func registerDisableRelationshipTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"disable_relationship",
		mcp.WithDescription(
			"Disable a stored relationship. The row keeps its slot so discovery will not recreate it. "+
				"disabled=false means the id was unknown.",
		),
		mcp.WithString("id", mcp.Required(), mcp.Description("Relationship id (UUID)")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "disable_relationship", true, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		id, err := parseRelationshipID(req)
		if err != nil {
			return nil, err
		}
		ok, err := deps.Ontology.DisableRelationship(ctx, id)
		if err != nil {
			return nil, err
		}
		return disableRelationshipResult{ID: id.String(), Disabled: ok}, nil
	}))
}

func registerOntologyStatisticsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"ontology_statistics",
		mcp.WithDescription(
			"Count stored relationships by confidence band (high >= 0.9, medium >= 0.7, low) and by "+
				"discovery method, and report when discovery last ran.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, handle(deps, "ontology_statistics", true, func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		return deps.Ontology.GetStatistics(ctx)
	}))
}
