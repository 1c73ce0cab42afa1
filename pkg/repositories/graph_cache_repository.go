package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/csn-graph/pkg/database"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// GraphCacheRepository stores one materialized graph snapshot per graph type.
type GraphCacheRepository interface {
	// SaveGraph atomically replaces the snapshot for graph.GraphType.
	SaveGraph(ctx context.Context, graph *models.Graph) error
	// LoadGraph returns nil when no snapshot exists.
	LoadGraph(ctx context.Context, graphType models.GraphType) (*models.Graph, error)
	CheckCacheStatus(ctx context.Context, graphType models.GraphType) (*models.CacheStatus, error)
	// ClearCache removes the snapshot for graphType, or every snapshot when nil.
	ClearCache(ctx context.Context, graphType *models.GraphType) error
}

type graphCacheRepository struct{}

// NewGraphCacheRepository creates a new GraphCacheRepository.
func NewGraphCacheRepository() GraphCacheRepository {
	return &graphCacheRepository{}
}

var _ GraphCacheRepository = (*graphCacheRepository)(nil)

func (r *graphCacheRepository) SaveGraph(ctx context.Context, graph *models.Graph) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	statsJSON, err := json.Marshal(graph.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal graph stats: %w", err)
	}

	nodeRows := make([][]any, len(graph.Nodes))
	for i, n := range graph.Nodes {
		props, err := marshalProperties(n.Properties)
		if err != nil {
			return fmt.Errorf("failed to marshal properties of node %s: %w", n.Key, err)
		}
		nodeRows[i] = []any{n.Key, n.Label, n.Type, props}
	}

	edgeRows := make([][]any, len(graph.Edges))
	for i, e := range graph.Edges {
		props, err := marshalProperties(e.Properties)
		if err != nil {
			return fmt.Errorf("failed to marshal properties of edge %s->%s: %w", e.From, e.To, err)
		}
		edgeRows[i] = []any{e.From, e.To, e.Type, e.Label, props}
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	// Nodes and edges of the prior snapshot cascade.
	if _, err := tx.Exec(ctx, `DELETE FROM graph_ontology WHERE graph_type = $1`, string(graph.GraphType)); err != nil {
		return fmt.Errorf("failed to delete prior graph snapshot: %w", err)
	}

	ontologyID := uuid.New()
	now := time.Now()
	_, err = tx.Exec(ctx, `
		INSERT INTO graph_ontology (ontology_id, graph_type, description, stats, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		ontologyID, string(graph.GraphType), graph.Description, statsJSON, now)
	if err != nil {
		return fmt.Errorf("failed to create graph snapshot: %w", err)
	}

	if len(nodeRows) > 0 {
		for i := range nodeRows {
			nodeRows[i] = append([]any{ontologyID}, nodeRows[i]...)
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"graph_nodes"},
			[]string{"ontology_id", "node_key", "node_label", "node_type", "properties_json"},
			pgx.CopyFromRows(nodeRows),
		)
		if err != nil {
			return fmt.Errorf("failed to insert graph nodes: %w", err)
		}
	}

	if len(edgeRows) > 0 {
		for i := range edgeRows {
			edgeRows[i] = append([]any{ontologyID}, edgeRows[i]...)
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"graph_edges"},
			[]string{"ontology_id", "from_node_key", "to_node_key", "edge_type", "edge_label", "properties_json"},
			pgx.CopyFromRows(edgeRows),
		)
		if err != nil {
			return fmt.Errorf("failed to insert graph edges: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	graph.CachedAt = &now
	return nil
}

func (r *graphCacheRepository) LoadGraph(ctx context.Context, graphType models.GraphType) (*models.Graph, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	var ontologyID uuid.UUID
	var statsJSON []byte
	var updatedAt time.Time
	graph := &models.Graph{GraphType: graphType, FromCache: true}

	err := scope.Conn.QueryRow(ctx, `
		SELECT ontology_id, description, stats, updated_at
		FROM graph_ontology
		WHERE graph_type = $1`, string(graphType),
	).Scan(&ontologyID, &graph.Description, &statsJSON, &updatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load graph snapshot: %w", err)
	}
	graph.CachedAt = &updatedAt

	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &graph.Stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal graph stats: %w", err)
		}
	}

	nodes, err := loadNodes(ctx, scope.Conn, ontologyID)
	if err != nil {
		return nil, err
	}
	edges, err := loadEdges(ctx, scope.Conn, ontologyID)
	if err != nil {
		return nil, err
	}
	graph.Nodes = nodes
	graph.Edges = edges
	graph.ComputeStats()

	return graph, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadNodes(ctx context.Context, q querier, ontologyID uuid.UUID) ([]models.GraphNode, error) {
	rows, err := q.Query(ctx, `
		SELECT node_key, node_label, node_type, properties_json
		FROM graph_nodes
		WHERE ontology_id = $1
		ORDER BY node_id`, ontologyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query graph nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]models.GraphNode, 0)
	for rows.Next() {
		var n models.GraphNode
		var props []byte
		if err := rows.Scan(&n.Key, &n.Label, &n.Type, &props); err != nil {
			return nil, fmt.Errorf("failed to scan graph node: %w", err)
		}
		if n.Properties, err = unmarshalProperties(props); err != nil {
			return nil, fmt.Errorf("failed to unmarshal properties of node %s: %w", n.Key, err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating graph nodes: %w", err)
	}
	return nodes, nil
}

func loadEdges(ctx context.Context, q querier, ontologyID uuid.UUID) ([]models.GraphEdge, error) {
	rows, err := q.Query(ctx, `
		SELECT from_node_key, to_node_key, edge_type, edge_label, properties_json
		FROM graph_edges
		WHERE ontology_id = $1
		ORDER BY edge_id`, ontologyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query graph edges: %w", err)
	}
	defer rows.Close()

	edges := make([]models.GraphEdge, 0)
	for rows.Next() {
		var e models.GraphEdge
		var props []byte
		if err := rows.Scan(&e.From, &e.To, &e.Type, &e.Label, &props); err != nil {
			return nil, fmt.Errorf("failed to scan graph edge: %w", err)
		}
		if e.Properties, err = unmarshalProperties(props); err != nil {
			return nil, fmt.Errorf("failed to unmarshal properties of edge %s->%s: %w", e.From, e.To, err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating graph edges: %w", err)
	}
	return edges, nil
}

func (r *graphCacheRepository) CheckCacheStatus(ctx context.Context, graphType models.GraphType) (*models.CacheStatus, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	status := &models.CacheStatus{GraphType: graphType}
	var updatedAt time.Time

	err := scope.Conn.QueryRow(ctx, `
		SELECT o.updated_at,
		       (SELECT COUNT(*) FROM graph_nodes n WHERE n.ontology_id = o.ontology_id),
		       (SELECT COUNT(*) FROM graph_edges e WHERE e.ontology_id = o.ontology_id)
		FROM graph_ontology o
		WHERE o.graph_type = $1`, string(graphType),
	).Scan(&updatedAt, &status.NodeCount, &status.EdgeCount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return status, nil
		}
		return nil, fmt.Errorf("failed to check graph cache status: %w", err)
	}

	status.Exists = true
	status.LastUpdated = &updatedAt
	return status, nil
}

func (r *graphCacheRepository) ClearCache(ctx context.Context, graphType *models.GraphType) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	var err error
	if graphType == nil {
		_, err = scope.Conn.Exec(ctx, `DELETE FROM graph_ontology`)
	} else {
		_, err = scope.Conn.Exec(ctx, `DELETE FROM graph_ontology WHERE graph_type = $1`, string(*graphType))
	}
	if err != nil {
		return fmt.Errorf("failed to clear graph cache: %w", err)
	}
	return nil
}

func marshalProperties(props map[string]any) ([]byte, error) {
	if props == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(props)
}

func unmarshalProperties(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var props map[string]any
	if err := json.Unmarshal(b, &props); err != nil {
		return nil, err
	}
	if len(props) == 0 {
		return nil, nil
	}
	return props, nil
}
