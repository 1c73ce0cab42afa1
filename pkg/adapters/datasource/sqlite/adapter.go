package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
	"github.com/ekaya-inc/csn-graph/pkg/logging"
	"github.com/ekaya-inc/csn-graph/pkg/metrics"
)

// Type is the registry key of this adapter.
const Type = "sqlite"

// Adapter reads a single SQLite database file.
type Adapter struct {
	config   *Config
	db       *sqlx.DB
	products []datasource.DataProduct
	logger   *zap.Logger
}

var _ datasource.DataSource = (*Adapter)(nil)

// NewAdapter opens the database file. Connectivity is checked by TestConnection.
func NewAdapter(cfg *Config, products []datasource.DataProduct, logger *zap.Logger) (*Adapter, error) {
	db, err := sqlx.Open("sqlite3", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps file: URIs with shared state consistent.
	db.SetMaxOpenConns(1)

	return &Adapter{
		config:   cfg,
		db:       db,
		products: products,
		logger:   logger.Named("sqlite-datasource"),
	}, nil
}

func (a *Adapter) TestConnection(ctx context.Context) error {
	var n int
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master").Scan(&n); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) Flavor() sqlbuilder.Flavor {
	return sqlbuilder.SQLite
}

func (a *Adapter) GetConnectionInfo() datasource.ConnectionInfo {
	return datasource.ConnectionInfo{
		Type:     Type,
		Database: a.config.Path,
		DSN:      logging.SanitizeConnectionString(a.config.ConnectionString()),
	}
}

// ExecuteQuery runs a read-only query bounded by datasource.MaxQueryLimit.
func (a *Adapter) ExecuteQuery(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
	normalized, err := datasource.PrepareQuery(sqlQuery)
	if err != nil {
		return nil, err
	}
	queryToRun := fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", normalized, datasource.MaxQueryLimit)

	rows, err := a.db.QueryxContext(ctx, queryToRun)
	if err != nil {
		metrics.DataSourceQueries.WithLabelValues(Type, "error").Inc()
		a.logger.Warn("Query failed",
			zap.String("query", logging.SanitizeQuery(normalized)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	result, err := datasource.CollectSQLRows(rows, strings.ToUpper, isTextType)
	if err != nil {
		metrics.DataSourceQueries.WithLabelValues(Type, "error").Inc()
		return nil, err
	}
	metrics.DataSourceQueries.WithLabelValues(Type, "success").Inc()
	return result, nil
}

// isTextType applies SQLite's type affinity rules for TEXT.
func isTextType(declType string) bool {
	t := strings.ToUpper(declType)
	return t == "" || strings.Contains(t, "CHAR") || strings.Contains(t, "CLOB") || strings.Contains(t, "TEXT")
}

// quoteIdent double-quotes an identifier for SQLite.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
