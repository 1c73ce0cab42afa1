package database

import (
	"context"
)

type contextKey string

const (
	// ScopeKey is the context key for storing the request-scoped database connection.
	ScopeKey contextKey = "dbScope"
)

// GetScope retrieves the request-scoped database connection from context.
// Returns nil and false if not present.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok
}

// SetScope stores the request-scoped database connection in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// ScopeProvider creates connection-scoped contexts for store operations.
type ScopeProvider interface {
	// WithScope returns a context carrying a dedicated connection.
	// The cleanup function must be called when the scope is no longer needed.
	WithScope(ctx context.Context) (context.Context, func(), error)
}

type scopeProvider struct {
	db *DB
}

// NewScopeProvider creates a ScopeProvider for the given database.
func NewScopeProvider(db *DB) ScopeProvider {
	return &scopeProvider{db: db}
}

func (p *scopeProvider) WithScope(ctx context.Context) (context.Context, func(), error) {
	if _, ok := GetScope(ctx); ok {
		return ctx, func() {}, nil
	}
	scope, err := p.db.NewScope(ctx)
	if err != nil {
		return nil, nil, err
	}
	return SetScope(ctx, scope), scope.Close, nil
}
