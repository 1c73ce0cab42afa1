//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDB_Connection(t *testing.T) {
	testDB := GetTestDB(t)

	var one int
	if err := testDB.Pool.QueryRow(context.Background(), "SELECT 1").Scan(&one); err != nil {
		t.Fatalf("failed to query test database: %v", err)
	}
	if one != 1 {
		t.Errorf("expected 1, got %d", one)
	}
}

func TestStoreDB_MigrationsApplied(t *testing.T) {
	storeDB := GetStoreDB(t)

	var version int
	var dirty bool
	err := storeDB.DB.Pool.QueryRow(context.Background(),
		"SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty)
	if err != nil {
		t.Fatalf("failed to read schema_migrations: %v", err)
	}
	if dirty {
		t.Error("expected clean migration state")
	}
	if version < 1 {
		t.Errorf("expected at least version 1, got %d", version)
	}
}
