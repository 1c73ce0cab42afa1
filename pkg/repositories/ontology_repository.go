package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/csn-graph/pkg/database"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// Well-known graph_ontology_metadata keys.
const (
	MetadataKeyLastDiscovery      = "last_discovery"
	MetadataKeyTotalRelationships = "total_relationships"
)

// OntologyRepository provides data access for the persisted relationship ontology.
type OntologyRepository interface {
	GetAllRelationships(ctx context.Context, activeOnly bool) ([]*models.Relationship, error)
	GetRelationshipsForTable(ctx context.Context, table string) ([]*models.Relationship, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Relationship, error)
	IsCacheValid(ctx context.Context) (bool, error)

	// PersistRelationships upserts every candidate in one transaction.
	// An existing row is updated only when the candidate has strictly higher
	// confidence, or a different discovery method at no lower confidence.
	// Manual rows are only replaced by manual candidates. Candidates without a
	// discovery method take defaultMethod.
	PersistRelationships(ctx context.Context, rels []*models.Relationship, defaultMethod string) (inserted, updated int, err error)

	AddManualRelationship(ctx context.Context, rel *models.Relationship) (*models.Relationship, error)
	VerifyRelationship(ctx context.Context, id uuid.UUID, notes *string) (*models.Relationship, error)
	DisableRelationship(ctx context.Context, id uuid.UUID) (bool, error)
	ClearCache(ctx context.Context) error
	GetStatistics(ctx context.Context) (*models.OntologyStatistics, error)
}

type ontologyRepository struct{}

// NewOntologyRepository creates a new OntologyRepository.
func NewOntologyRepository() OntologyRepository {
	return &ontologyRepository{}
}

var _ OntologyRepository = (*ontologyRepository)(nil)

const relationshipColumns = `
	edge_id, source_table, source_column, target_table, target_column,
	relationship_type, confidence, discovery_method, inferred, cardinality,
	conditions, is_composition, is_many_to_many, is_active, notes,
	created_at, updated_at, association_field`

func (r *ontologyRepository) GetAllRelationships(ctx context.Context, activeOnly bool) ([]*models.Relationship, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + relationshipColumns + `
		FROM graph_schema_edges
		WHERE ($1 = false OR is_active = true)
		ORDER BY confidence DESC, source_table, source_column, target_table, target_column`

	rows, err := scope.Conn.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	return collectRelationships(rows)
}

func (r *ontologyRepository) GetRelationshipsForTable(ctx context.Context, table string) ([]*models.Relationship, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + relationshipColumns + `
		FROM graph_schema_edges
		WHERE is_active = true AND (source_table = $1 OR target_table = $1)
		ORDER BY confidence DESC, source_table, source_column`

	rows, err := scope.Conn.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships for table: %w", err)
	}
	defer rows.Close()

	return collectRelationships(rows)
}

func (r *ontologyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Relationship, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `SELECT `+relationshipColumns+` FROM graph_schema_edges WHERE edge_id = $1`, id)
	rel, err := scanRelationship(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rel, nil
}

func (r *ontologyRepository) IsCacheValid(ctx context.Context) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	var exists bool
	if err := scope.Conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM graph_schema_edges)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check relationship cache: %w", err)
	}
	return exists, nil
}

func (r *ontologyRepository) PersistRelationships(ctx context.Context, rels []*models.Relationship, defaultMethod string) (int, int, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, 0, fmt.Errorf("no database scope in context")
	}

	if defaultMethod != "" && !models.IsValidDiscoveryMethod(defaultMethod) {
		return 0, 0, fmt.Errorf("invalid discovery method: %q", defaultMethod)
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	// xmax = 0 only for freshly inserted tuples. A conflicting row that fails
	// the WHERE clause returns no row at all.
	query := `
		INSERT INTO graph_schema_edges (
			edge_id, source_table, source_column, target_table, target_column,
			relationship_type, confidence, discovery_method, inferred, cardinality,
			conditions, is_composition, is_many_to_many, is_active, notes,
			created_at, updated_at, association_field
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, true, $14, $15, $15, $16)
		ON CONFLICT (source_table, source_column, target_table, target_column) DO UPDATE SET
			relationship_type = EXCLUDED.relationship_type,
			association_field = EXCLUDED.association_field,
			confidence = EXCLUDED.confidence,
			discovery_method = EXCLUDED.discovery_method,
			inferred = EXCLUDED.inferred,
			cardinality = EXCLUDED.cardinality,
			conditions = EXCLUDED.conditions,
			is_composition = EXCLUDED.is_composition,
			is_many_to_many = EXCLUDED.is_many_to_many,
			updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.confidence > graph_schema_edges.confidence
		   OR (EXCLUDED.discovery_method <> graph_schema_edges.discovery_method
		       AND EXCLUDED.confidence >= graph_schema_edges.confidence
		       AND (graph_schema_edges.discovery_method NOT IN ('manual_override', 'manual_verified')
		            OR EXCLUDED.discovery_method IN ('manual_override', 'manual_verified')))
		RETURNING (xmax = 0) AS inserted`

	now := time.Now()
	inserted, updated := 0, 0
	for _, rel := range rels {
		method := rel.DiscoveryMethod
		if method == "" {
			method = defaultMethod
		}
		if !models.IsValidDiscoveryMethod(method) {
			return 0, 0, fmt.Errorf("invalid discovery method %q for %s.%s", method, rel.FromEntity, rel.FromColumn)
		}

		conditionsJSON, err := marshalConditions(rel.Conditions)
		if err != nil {
			return 0, 0, err
		}

		var wasInsert bool
		err = tx.QueryRow(ctx, query,
			uuid.New(), rel.FromEntity, rel.FromColumn, rel.ToEntity, rel.ToColumn,
			relationshipType(rel), rel.Confidence, method, rel.Inferred, nullableCardinality(rel.Cardinality),
			conditionsJSON, rel.IsComposition, rel.IsManyToMany, rel.Notes, now, rel.AssociationField,
		).Scan(&wasInsert)
		if err == pgx.ErrNoRows {
			continue
		}
		if err != nil {
			return 0, 0, fmt.Errorf("failed to upsert relationship %s.%s -> %s: %w",
				rel.FromEntity, rel.FromColumn, rel.ToEntity, err)
		}
		if wasInsert {
			inserted++
		} else {
			updated++
		}
	}

	if err := writeDiscoveryMetadata(ctx, tx, now); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, updated, nil
}

func writeDiscoveryMetadata(ctx context.Context, tx pgx.Tx, now time.Time) error {
	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM graph_schema_edges`).Scan(&total); err != nil {
		return fmt.Errorf("failed to count relationships: %w", err)
	}

	query := `
		INSERT INTO graph_ontology_metadata (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	if _, err := tx.Exec(ctx, query, MetadataKeyLastDiscovery, now.UTC().Format(time.RFC3339Nano), now); err != nil {
		return fmt.Errorf("failed to write %s: %w", MetadataKeyLastDiscovery, err)
	}
	if _, err := tx.Exec(ctx, query, MetadataKeyTotalRelationships, strconv.Itoa(total), now); err != nil {
		return fmt.Errorf("failed to write %s: %w", MetadataKeyTotalRelationships, err)
	}
	return nil
}

func (r *ontologyRepository) AddManualRelationship(ctx context.Context, rel *models.Relationship) (*models.Relationship, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	conditionsJSON, err := marshalConditions(rel.Conditions)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO graph_schema_edges (
			edge_id, source_table, source_column, target_table, target_column,
			relationship_type, confidence, discovery_method, inferred, cardinality,
			conditions, is_composition, is_many_to_many, is_active, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 1.0, 'manual_override', false, $7, $8, $9, $10, true, $11, $12, $12)
		ON CONFLICT (source_table, source_column, target_table, target_column) DO UPDATE SET
			relationship_type = EXCLUDED.relationship_type,
			confidence = 1.0,
			discovery_method = 'manual_override',
			inferred = false,
			cardinality = EXCLUDED.cardinality,
			conditions = EXCLUDED.conditions,
			is_composition = EXCLUDED.is_composition,
			is_many_to_many = EXCLUDED.is_many_to_many,
			is_active = true,
			notes = COALESCE(EXCLUDED.notes, graph_schema_edges.notes),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + relationshipColumns

	row := scope.Conn.QueryRow(ctx, query,
		uuid.New(), rel.FromEntity, rel.FromColumn, rel.ToEntity, rel.ToColumn,
		relationshipType(rel), nullableCardinality(rel.Cardinality),
		conditionsJSON, rel.IsComposition, rel.IsManyToMany, rel.Notes, time.Now(),
	)
	saved, err := scanRelationship(row)
	if err != nil {
		return nil, fmt.Errorf("failed to add manual relationship: %w", err)
	}
	return saved, nil
}

func (r *ontologyRepository) VerifyRelationship(ctx context.Context, id uuid.UUID, notes *string) (*models.Relationship, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE graph_schema_edges
		SET discovery_method = 'manual_verified',
		    confidence = 1.0,
		    notes = COALESCE($2, notes),
		    updated_at = $3
		WHERE edge_id = $1
		RETURNING ` + relationshipColumns

	rel, err := scanRelationship(scope.Conn.QueryRow(ctx, query, id, notes, time.Now()))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to verify relationship: %w", err)
	}
	return rel, nil
}

func (r *ontologyRepository) DisableRelationship(ctx context.Context, id uuid.UUID) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	tag, err := scope.Conn.Exec(ctx,
		`UPDATE graph_schema_edges SET is_active = false, updated_at = $2 WHERE edge_id = $1`,
		id, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to disable relationship: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ontologyRepository) ClearCache(ctx context.Context) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if _, err := tx.Exec(ctx, `DELETE FROM graph_schema_edges`); err != nil {
		return fmt.Errorf("failed to clear relationships: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM graph_ontology_metadata`); err != nil {
		return fmt.Errorf("failed to clear ontology metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *ontologyRepository) GetStatistics(ctx context.Context) (*models.OntologyStatistics, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	stats := &models.OntologyStatistics{
		ByConfidence:      map[string]int{},
		ByDiscoveryMethod: map[string]int{},
	}

	query := `
		SELECT discovery_method,
		       CASE WHEN confidence >= 0.9 THEN 'high'
		            WHEN confidence >= 0.7 THEN 'medium'
		            ELSE 'low' END AS band,
		       is_active,
		       COUNT(*)
		FROM graph_schema_edges
		GROUP BY 1, 2, 3`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationship statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var method, band string
		var active bool
		var count int
		if err := rows.Scan(&method, &band, &active, &count); err != nil {
			return nil, fmt.Errorf("failed to scan relationship statistics: %w", err)
		}
		stats.TotalRelationships += count
		if !active {
			continue
		}
		stats.ActiveRelationships += count
		stats.ByConfidence[band] += count
		stats.ByDiscoveryMethod[method] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relationship statistics: %w", err)
	}

	var lastDiscovery string
	err = scope.Conn.QueryRow(ctx,
		`SELECT value FROM graph_ontology_metadata WHERE key = $1`, MetadataKeyLastDiscovery,
	).Scan(&lastDiscovery)
	switch {
	case err == pgx.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", MetadataKeyLastDiscovery, err)
	default:
		if t, perr := time.Parse(time.RFC3339Nano, lastDiscovery); perr == nil {
			stats.LastRefresh = &t
		}
	}

	return stats, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func collectRelationships(rows pgx.Rows) ([]*models.Relationship, error) {
	relationships := make([]*models.Relationship, 0)
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		relationships = append(relationships, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relationships: %w", err)
	}
	return relationships, nil
}

func scanRelationship(row pgx.Row) (*models.Relationship, error) {
	var rel models.Relationship
	var cardinality *string
	var conditionsJSON []byte

	err := row.Scan(
		&rel.ID, &rel.FromEntity, &rel.FromColumn, &rel.ToEntity, &rel.ToColumn,
		&rel.RelationshipType, &rel.Confidence, &rel.DiscoveryMethod, &rel.Inferred, &cardinality,
		&conditionsJSON, &rel.IsComposition, &rel.IsManyToMany, &rel.IsActive, &rel.Notes,
		&rel.CreatedAt, &rel.UpdatedAt, &rel.AssociationField,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan relationship: %w", err)
	}

	if cardinality != nil {
		rel.Cardinality = models.Cardinality(*cardinality)
	}
	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &rel.Conditions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
		}
		if len(rel.Conditions) == 0 {
			rel.Conditions = nil
		}
	}

	return &rel, nil
}

func marshalConditions(conds []models.OnCondition) ([]byte, error) {
	if conds == nil {
		return []byte("[]"), nil
	}
	b, err := json.Marshal(conds)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conditions: %w", err)
	}
	return b, nil
}

func nullableCardinality(c models.Cardinality) *string {
	if c == "" {
		return nil
	}
	s := string(c)
	return &s
}

func relationshipType(rel *models.Relationship) string {
	if rel.RelationshipType == "" {
		return models.RelationshipTypeForeignKey
	}
	return rel.RelationshipType
}
