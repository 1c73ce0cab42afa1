package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/database"
)

// PostgresImage is the stock PostgreSQL image used for integration tests.
const PostgresImage = "postgres:16-alpine"

// TestDB holds a shared test database container and connection pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "csn_graph_test",
			"POSTGRES_USER":     "csn",
			"POSTGRES_PASSWORD": "test_password",
		},
		// Postgres logs readiness twice: once for the init server, once for the real one.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://csn:test_password@%s:%s/csn_graph_test?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
	}, nil
}

// StoreDB holds the store database connection with migrations applied.
// Use this for testing services and repositories against a real database.
type StoreDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedStoreDB     *StoreDB
	sharedStoreDBOnce sync.Once
	sharedStoreDBErr  error
)

// GetStoreDB returns a shared store database for integration tests.
// The database has migrations applied and is reused across all tests.
func GetStoreDB(t *testing.T) *StoreDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	testDB := GetTestDB(t)

	sharedStoreDBOnce.Do(func() {
		sharedStoreDB, sharedStoreDBErr = setupStoreDB(testDB)
	})

	if sharedStoreDBErr != nil {
		t.Fatalf("Failed to setup store database: %v", sharedStoreDBErr)
	}

	return sharedStoreDB
}

func setupStoreDB(testDB *TestDB) (*StoreDB, error) {
	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            testDB.ConnStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to store database: %w", err)
	}

	if err := db.Migrate(zap.NewNop()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &StoreDB{
		DB:      db,
		ConnStr: testDB.ConnStr,
	}, nil
}

// ScopedContext returns a context carrying a dedicated store connection.
func (s *StoreDB) ScopedContext(t *testing.T) context.Context {
	t.Helper()
	ctx := context.Background()
	scope, err := s.DB.NewScope(ctx)
	if err != nil {
		t.Fatalf("failed to create database scope: %v", err)
	}
	t.Cleanup(scope.Close)
	return database.SetScope(ctx, scope)
}

// Truncate empties the given tables between tests.
func (s *StoreDB) Truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		if _, err := s.DB.Pool.Exec(context.Background(), "TRUNCATE "+table+" CASCADE"); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}
