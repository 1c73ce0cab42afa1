package mssql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
)

// GetDataProducts returns the configured products, or one product per schema holding user tables.
func (a *Adapter) GetDataProducts(ctx context.Context) ([]datasource.DataProduct, error) {
	if a.products != nil {
		return a.products, nil
	}

	rows, err := a.db.QueryContext(ctx, `
	SELECT DISTINCT SCHEMA_NAME(t.schema_id) AS table_schema
	FROM sys.tables t
	WHERE t.is_ms_shipped = 0
	ORDER BY table_schema
	`)
	if err != nil {
		return nil, fmt.Errorf("query schemas: %w", err)
	}
	schemas, err := datasource.ScanStrings(rows)
	if err != nil {
		return nil, err
	}
	return datasource.SchemaProducts(schemas), nil
}

// GetTables returns user tables of a schema with partition row counts.
func (a *Adapter) GetTables(ctx context.Context, schemaName string) ([]datasource.Table, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(t.schema_id) AS table_schema,
	    t.name AS table_name,
	    SUM(p.rows) AS row_count
	FROM sys.tables t
	INNER JOIN sys.partitions p ON t.object_id = p.object_id
	WHERE p.index_id IN (0, 1)  -- Heap or clustered index
	  AND t.is_ms_shipped = 0   -- Exclude system tables
	  AND SCHEMA_NAME(t.schema_id) = @schema
	GROUP BY t.schema_id, t.name
	ORDER BY table_name
	`

	rows, err := a.db.QueryContext(ctx, query, sql.Named("schema", schemaName))
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.Table
	for rows.Next() {
		var t datasource.Table
		if err := rows.Scan(&t.Schema, &t.Name, &t.RowCount); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}

	return tables, nil
}

// GetTableStructure returns columns for a specific table.
func (a *Adapter) GetTableStructure(ctx context.Context, schemaName, tableName string) ([]datasource.Column, error) {
	query := `
	SET NOCOUNT ON;
	SELECT
	    c.name AS column_name,
	    tp.name AS data_type,
	    CASE WHEN c.is_nullable = 1 THEN 1 ELSE 0 END AS is_nullable,
	    c.column_id AS ordinal_position,
	    CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS is_primary_key
	FROM sys.columns c
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_primary_key = 1
	) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
	WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	ORDER BY c.column_id
	`

	rows, err := a.db.QueryContext(ctx, query,
		sql.Named("schema", schemaName),
		sql.Named("table", tableName),
	)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []datasource.Column
	for rows.Next() {
		var col datasource.Column
		var isNullable, isPrimary int

		if err := rows.Scan(&col.Name, &col.DataType, &isNullable, &col.OrdinalPosition, &isPrimary); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}

		col.IsNullable = isNullable == 1
		col.IsPrimaryKey = isPrimary == 1
		col.DataType = mapSQLServerType(col.DataType)

		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}

	return columns, nil
}
