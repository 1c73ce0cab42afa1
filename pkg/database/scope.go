package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Scope wraps a single pooled connection confined to one call stack.
type Scope struct {
	Conn *pgxpool.Conn
}

// Close releases the connection back to the pool.
func (s *Scope) Close() {
	if s.Conn == nil {
		return
	}
	s.Conn.Release()
	s.Conn = nil
}

// NewScope acquires a connection for the duration of one operation.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) NewScope(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Scope{Conn: conn}, nil
}
