package postgres

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
)

// GetDataProducts returns the configured products, or one product per user schema.
func (a *Adapter) GetDataProducts(ctx context.Context) ([]datasource.DataProduct, error) {
	if a.products != nil {
		return a.products, nil
	}

	const query = `
		SELECT DISTINCT table_schema
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY table_schema
	`

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query schemas: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan schema: %w", err)
		}
		schemas = append(schemas, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schemas: %w", err)
	}

	return datasource.SchemaProducts(schemas), nil
}

// GetTables returns the base tables of a schema.
func (a *Adapter) GetTables(ctx context.Context, schemaName string) ([]datasource.Table, error) {
	const query = `
		SELECT
			t.table_schema,
			t.table_name,
			COALESCE(c.reltuples::bigint, 0) as row_count
		FROM information_schema.tables t
		LEFT JOIN pg_namespace n ON n.nspname = t.table_schema
		LEFT JOIN pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema = $1
		ORDER BY t.table_name
	`

	rows, err := a.pool.Query(ctx, query, schemaName)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.Table
	for rows.Next() {
		var t datasource.Table
		if err := rows.Scan(&t.Schema, &t.Name, &t.RowCount); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		if t.RowCount < 0 {
			// reltuples is -1 for never-analyzed tables
			t.RowCount = 0
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// GetTableStructure returns columns for a specific table.
// Uses pg_index.indisprimary so composite primary keys are reported on every member column.
func (a *Adapter) GetTableStructure(ctx context.Context, schemaName, tableName string) ([]datasource.Column, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' as is_nullable,
			COALESCE(pk.is_pk, false) as is_primary_key,
			c.ordinal_position
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname as column_name, true as is_pk
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisprimary = true
			  AND n.nspname = $1
			  AND t.relname = $2
		) pk ON c.column_name = pk.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := a.pool.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []datasource.Column
	for rows.Next() {
		var c datasource.Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.IsNullable, &c.IsPrimaryKey, &c.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}
