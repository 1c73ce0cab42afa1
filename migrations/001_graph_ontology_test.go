//go:build integration

package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/csn-graph/pkg/testhelpers"
)

// Test_001_GraphOntology verifies migration 001 creates the ontology and graph cache tables.
func Test_001_GraphOntology(t *testing.T) {
	storeDB := testhelpers.GetStoreDB(t)
	ctx := context.Background()

	for _, table := range []string{
		"graph_schema_edges",
		"graph_ontology_metadata",
		"graph_ontology",
		"graph_nodes",
		"graph_edges",
	} {
		var exists bool
		err := storeDB.DB.Pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public'
				AND table_name = $1
			)
		`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	columns := map[string]string{
		"edge_id":          "uuid",
		"source_table":     "text",
		"target_column":    "text",
		"confidence":       "double precision",
		"discovery_method": "text",
		"conditions":       "jsonb",
		"is_active":        "boolean",
		"created_at":       "timestamp with time zone",
		"updated_at":       "timestamp with time zone",
	}
	for colName, expectedType := range columns {
		var dataType string
		err := storeDB.DB.Pool.QueryRow(ctx, `
			SELECT data_type
			FROM information_schema.columns
			WHERE table_name = 'graph_schema_edges'
			AND column_name = $1
		`, colName).Scan(&dataType)
		require.NoError(t, err, "Column %s should exist", colName)
		assert.Equal(t, expectedType, dataType, "Column %s should have type %s", colName, expectedType)
	}

	for _, index := range []string{"idx_graph_schema_edges_key", "idx_graph_ontology_type"} {
		var isUnique bool
		err := storeDB.DB.Pool.QueryRow(ctx, `
			SELECT i.indisunique
			FROM pg_index i
			JOIN pg_class c ON c.oid = i.indexrelid
			WHERE c.relname = $1
		`, index).Scan(&isUnique)
		require.NoError(t, err, "index %s should exist", index)
		assert.True(t, isUnique, "index %s should be unique", index)
	}

	// Snapshot children cascade with their parent
	var deleteRule string
	err := storeDB.DB.Pool.QueryRow(ctx, `
		SELECT rc.delete_rule
		FROM information_schema.referential_constraints rc
		JOIN information_schema.table_constraints tc ON tc.constraint_name = rc.constraint_name
		WHERE tc.table_name = 'graph_nodes'
	`).Scan(&deleteRule)
	require.NoError(t, err)
	assert.Equal(t, "CASCADE", deleteRule)
}
