package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// DB is the graph store connection pool.
type DB struct {
	*pgxpool.Pool
}

// Config holds graph store connection settings. Zero values take the defaults below.
type Config struct {
	URL              string
	MaxConnections   int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	ApplicationName  string
	StatementTimeout time.Duration
}

const (
	defaultMaxConnections   = 10
	defaultMaxConnLifetime  = time.Hour
	defaultMaxConnIdleTime  = 30 * time.Minute
	defaultApplicationName  = "csn-graph"
	defaultStatementTimeout = 60 * time.Second
)

// NewConnection opens the pool and pings the store once.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = orDefault(cfg.MaxConnections, defaultMaxConnections)
	poolConfig.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, defaultMaxConnLifetime)
	poolConfig.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, defaultMaxConnIdleTime)

	// Snapshot saves write every node of a graph in one transaction; bound them.
	params := poolConfig.ConnConfig.RuntimeParams
	params["application_name"] = orDefault(cfg.ApplicationName, defaultApplicationName)
	params["statement_timeout"] = strconv.FormatInt(orDefault(cfg.StatementTimeout, defaultStatementTimeout).Milliseconds(), 10)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Migrate applies the embedded migrations over a database/sql view of the pool.
func (db *DB) Migrate(logger *zap.Logger) error {
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()
	return RunMigrations(sqlDB, logger)
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
