// Package tools provides MCP tool implementations for csn-graph.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/database"
	"github.com/ekaya-inc/csn-graph/pkg/metrics"
	"github.com/ekaya-inc/csn-graph/pkg/models"
	"github.com/ekaya-inc/csn-graph/pkg/services"
)

// ToolDeps contains the services MCP tools call into.
type ToolDeps struct {
	Scopes       database.ScopeProvider // nil when no store is configured
	Entities     services.EntityCatalog
	Associations services.AssociationCatalog
	Ontology     services.OntologyService
	Graphs       services.GraphService
	DataSource   datasource.DataSource // nil when no data source is configured
	Logger       *zap.Logger
}

// AcquireToolAccess opens a store scope for one tool call. Tools that only
// touch in-memory CSN state pass needsStore=false and get ctx back unchanged.
// The cleanup function must always be called.
func AcquireToolAccess(ctx context.Context, deps *ToolDeps, toolName string, needsStore bool) (context.Context, func(), error) {
	start := time.Now()
	finish := func() {
		deps.Logger.Debug("Tool call finished",
			zap.String("tool", toolName),
			zap.Duration("duration", time.Since(start)))
	}

	if !needsStore {
		return ctx, finish, nil
	}
	if deps.Scopes == nil {
		return nil, nil, fmt.Errorf("%s needs the graph store, which is not configured: %w", toolName, apperrors.ErrStore)
	}

	scopedCtx, cleanup, err := deps.Scopes.WithScope(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire database connection: %w: %w", apperrors.ErrStore, err)
	}
	return scopedCtx, func() {
		cleanup()
		finish()
	}, nil
}

// toolFunc does the work of one tool and returns the result payload.
type toolFunc func(ctx context.Context, req mcp.CallToolRequest) (any, error)

// handle adapts fn to an MCP handler. Every outcome, including failures, is
// returned as a structured result so the client can act on it.
func handle(deps *ToolDeps, toolName string, needsStore bool, fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		scopedCtx, cleanup, err := AcquireToolAccess(ctx, deps, toolName, needsStore)
		if err != nil {
			deps.Logger.Error("Tool access failed", zap.String("tool", toolName), zap.Error(err))
			metrics.ToolCalls.WithLabelValues(toolName, apperrors.Code(err)).Inc()
			return NewFailureResult(err), nil
		}
		defer cleanup()

		data, err := fn(scopedCtx, req)
		if err != nil {
			code := apperrors.Code(err)
			if code == apperrors.CodeInternal || code == apperrors.CodeStoreError {
				deps.Logger.Error("Tool failed", zap.String("tool", toolName), zap.Error(err))
			}
			metrics.ToolCalls.WithLabelValues(toolName, code).Inc()
			return NewFailureResult(err), nil
		}
		metrics.ToolCalls.WithLabelValues(toolName, "ok").Inc()
		return NewResult(models.OK(data)), nil
	}
}
