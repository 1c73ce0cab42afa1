package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
	"github.com/ekaya-inc/csn-graph/pkg/logging"
	"github.com/ekaya-inc/csn-graph/pkg/metrics"
)

// Type is the registry key of this adapter.
const Type = "postgres"

// Adapter provides PostgreSQL connectivity.
type Adapter struct {
	config   *Config
	pool     *pgxpool.Pool
	products []datasource.DataProduct // explicit products from options, nil = per schema
	logger   *zap.Logger
}

var _ datasource.DataSource = (*Adapter)(nil)

// NewAdapter creates a PostgreSQL adapter with its own pool.
func NewAdapter(ctx context.Context, cfg *Config, products []datasource.DataProduct, logger *zap.Logger) (*Adapter, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &Adapter{
		config:   cfg,
		pool:     pool,
		products: products,
		logger:   logger.Named("postgres-datasource"),
	}, nil
}

// TestConnection verifies the database is reachable with valid credentials.
// It checks:
// 1. Server connectivity (ping)
// 2. Correct database name (to prevent connecting to wrong/default database)
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := a.pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}

	// PostgreSQL database names are case-sensitive, but we compare
	// case-insensitively to match MSSQL behavior
	if a.config.Database != "" && !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}

	return nil
}

// Close releases the pool.
func (a *Adapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}

func (a *Adapter) Flavor() sqlbuilder.Flavor {
	return sqlbuilder.PostgreSQL
}

func (a *Adapter) GetConnectionInfo() datasource.ConnectionInfo {
	info := datasource.ConnectionInfo{
		Type:     Type,
		Host:     a.config.Host,
		Port:     a.config.Port,
		Database: a.config.Database,
	}
	if a.config.DSN != "" {
		info.DSN = logging.SanitizeConnectionString(a.config.DSN)
	}
	return info
}

// ExecuteQuery runs a read-only query bounded by datasource.MaxQueryLimit.
func (a *Adapter) ExecuteQuery(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
	normalized, err := datasource.PrepareQuery(sqlQuery)
	if err != nil {
		return nil, err
	}
	queryToRun := fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", normalized, datasource.MaxQueryLimit)

	result, err := a.query(ctx, queryToRun)
	if err != nil {
		metrics.DataSourceQueries.WithLabelValues(Type, "error").Inc()
		a.logger.Warn("Query failed",
			zap.String("query", logging.SanitizeQuery(normalized)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}
	metrics.DataSourceQueries.WithLabelValues(Type, "success").Inc()
	return result, nil
}

func (a *Adapter) query(ctx context.Context, queryToRun string) (*datasource.QueryExecutionResult, error) {
	rows, err := a.pool.Query(ctx, queryToRun)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = datasource.ColumnInfo{
			Name: fd.Name,
			Type: pgTypeNameFromOID(fd.DataTypeOID),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// QuoteIdentifier safely quotes a SQL identifier using PostgreSQL's standard
// double-quote quoting.
func QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// pgTypeNameFromOID maps PostgreSQL type OIDs to human-readable type names.
// This covers the common key and scalar types; unknown types return "UNKNOWN".
func pgTypeNameFromOID(oid uint32) string {
	switch oid {
	case 16:
		return "BOOL"
	case 17:
		return "BYTEA"
	case 18:
		return "CHAR"
	case 20:
		return "INT8"
	case 21:
		return "INT2"
	case 23:
		return "INT4"
	case 25:
		return "TEXT"
	case 114:
		return "JSON"
	case 700:
		return "FLOAT4"
	case 701:
		return "FLOAT8"
	case 1042:
		return "BPCHAR"
	case 1043:
		return "VARCHAR"
	case 1082:
		return "DATE"
	case 1114:
		return "TIMESTAMP"
	case 1184:
		return "TIMESTAMPTZ"
	case 1700:
		return "NUMERIC"
	case 2950:
		return "UUID"
	case 3802:
		return "JSONB"
	default:
		return "UNKNOWN"
	}
}
