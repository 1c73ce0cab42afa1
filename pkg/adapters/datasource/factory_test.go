package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/huandu/go-sqlbuilder"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
)

// flakySource fails TestConnection a fixed number of times.
type flakySource struct {
	failures int
	pingErr  error
	pings    int
	closed   bool
}

func (f *flakySource) GetDataProducts(context.Context) ([]DataProduct, error) { return nil, nil }
func (f *flakySource) GetTables(context.Context, string) ([]Table, error)     { return nil, nil }
func (f *flakySource) GetTableStructure(context.Context, string, string) ([]Column, error) {
	return nil, nil
}
func (f *flakySource) ExecuteQuery(context.Context, string) (*QueryExecutionResult, error) {
	return &QueryExecutionResult{}, nil
}
func (f *flakySource) GetConnectionInfo() ConnectionInfo { return ConnectionInfo{Type: "flaky"} }
func (f *flakySource) Flavor() sqlbuilder.Flavor         { return sqlbuilder.PostgreSQL }
func (f *flakySource) Close() error {
	f.closed = true
	return nil
}

func (f *flakySource) TestConnection(context.Context) error {
	f.pings++
	if f.pings <= f.failures {
		return f.pingErr
	}
	return nil
}

func registerFlaky(t *testing.T, typ string, src *flakySource) {
	t.Helper()
	Register(AdapterRegistration{
		Info: AdapterInfo{Type: typ, DisplayName: "Flaky"},
		Factory: func(ctx context.Context, cfg Config, logger *zap.Logger) (DataSource, error) {
			return src, nil
		},
	})
}

func TestOpen_UnknownType(t *testing.T) {
	registerFlaky(t, "flaky-listed", &flakySource{})

	_, err := Open(context.Background(), Config{Type: "oracle"}, zap.NewNop())
	assert.ErrorIs(t, err, apperrors.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "flaky-listed")
}

func TestOpen_ConnectionFailureClosesSource(t *testing.T) {
	src := &flakySource{failures: 1, pingErr: errors.New("connect: connection refused")}
	registerFlaky(t, "flaky-down", src)

	_, err := Open(context.Background(), Config{Type: "flaky-down"}, zap.NewNop())
	assert.ErrorIs(t, err, apperrors.ErrSourceUnavailable)
	assert.Equal(t, 1, src.pings, "connection failures are not retried")
	assert.True(t, src.closed)
}
