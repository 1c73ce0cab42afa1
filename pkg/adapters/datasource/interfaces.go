package datasource

import (
	"context"

	"github.com/huandu/go-sqlbuilder"
)

// MaxQueryLimit is the hard cap on rows returned by ExecuteQuery.
// This protects against unbounded queries that could exhaust memory.
const MaxQueryLimit = 1000

// DataSource is the capability set the graph builder needs from an external
// relational backend. Each implementation owns its connection and must be
// closed when done.
type DataSource interface {
	// GetDataProducts returns the data products exposed by the source.
	// A data product groups the tables of one schema.
	GetDataProducts(ctx context.Context) ([]DataProduct, error)

	// GetTables returns the user tables of a schema.
	GetTables(ctx context.Context, schemaName string) ([]Table, error)

	// GetTableStructure returns the columns of a table in ordinal order.
	GetTableStructure(ctx context.Context, schemaName, tableName string) ([]Column, error)

	// ExecuteQuery runs a single read-only SELECT. The query is wrapped with a
	// dialect-specific bound of MaxQueryLimit rows.
	ExecuteQuery(ctx context.Context, sqlQuery string) (*QueryExecutionResult, error)

	// GetConnectionInfo describes the connection with credentials removed.
	GetConnectionInfo() ConnectionInfo

	// Flavor is the SQL dialect used to build queries for this source.
	Flavor() sqlbuilder.Flavor

	// TestConnection verifies the source is reachable.
	TestConnection(ctx context.Context) error

	Close() error
}

// DataProduct is a named grouping of tables, backed by one schema.
type DataProduct struct {
	ProductName string `json:"productName" yaml:"name"`
	SchemaName  string `json:"schemaName" yaml:"schema"`
	DisplayName string `json:"displayName,omitempty" yaml:"display_name"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Table represents a database table.
type Table struct {
	Schema   string `json:"schema"`
	Name     string `json:"TABLE_NAME"`
	RowCount int64  `json:"row_count,omitempty"`
}

// Column represents a database column.
type Column struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	IsNullable      bool   `json:"is_nullable"`
	IsPrimaryKey    bool   `json:"is_primary_key"`
	OrdinalPosition int    `json:"ordinal_position"`
}

// ColumnInfo describes a result column with database-agnostic type information.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "TEXT", "INT4", "VARCHAR")
}

// QueryExecutionResult holds the results from executing a query.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ConnectionInfo is a credential-free description of a connection.
type ConnectionInfo struct {
	Type     string `json:"type"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	DSN      string `json:"dsn,omitempty"` // sanitized
}

// PrimaryKeys returns the primary-key column names in declared order.
func PrimaryKeys(columns []Column) []string {
	var pks []string
	for _, c := range columns {
		if c.IsPrimaryKey {
			pks = append(pks, c.Name)
		}
	}
	return pks
}
