package mssql

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
	"github.com/ekaya-inc/csn-graph/pkg/logging"
	"github.com/ekaya-inc/csn-graph/pkg/metrics"
)

// Type is the registry key of this adapter.
const Type = "mssql"

// Adapter provides SQL Server connectivity with SQL or Azure AD service principal authentication.
type Adapter struct {
	config   *Config
	db       *sqlx.DB
	products []datasource.DataProduct // explicit products from options, nil = per schema
	logger   *zap.Logger
}

var _ datasource.DataSource = (*Adapter)(nil)

// NewAdapter opens a SQL Server connection pool. Connectivity is checked by TestConnection.
func NewAdapter(cfg *Config, products []datasource.DataProduct, logger *zap.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sqlx.Open(cfg.DriverName(), cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", cfg.AuthMethod, err)
	}

	return &Adapter{
		config:   cfg,
		db:       db,
		products: products,
		logger:   logger.Named("mssql-datasource"),
	}, nil
}

// TestConnection verifies the database is reachable with valid credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	// Run a simple query to ensure we have database access
	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	return nil
}

func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Adapter) Flavor() sqlbuilder.Flavor {
	return sqlbuilder.SQLServer
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
// SQL Server has no LIMIT, so the query is wrapped with TOP.
func (a *Adapter) ExecuteQuery(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
	normalized, err := datasource.PrepareQuery(sqlQuery)
	if err != nil {
		return nil, err
	}
	queryToRun := wrapWithTop(normalized, datasource.MaxQueryLimit)

	rows, err := a.db.QueryxContext(ctx, queryToRun)
	if err != nil {
		metrics.DataSourceQueries.WithLabelValues(Type, "error").Inc()
		a.logger.Warn("Query failed",
			zap.String("query", logging.SanitizeQuery(normalized)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	result, err := datasource.CollectSQLRows(rows, mapSQLServerType, isStringType)
	if err != nil {
		metrics.DataSourceQueries.WithLabelValues(Type, "error").Inc()
		return nil, err
	}
	metrics.DataSourceQueries.WithLabelValues(Type, "success").Inc()
	return result, nil
}

func wrapWithTop(query string, limit int) string {
	return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", limit, query)
}
