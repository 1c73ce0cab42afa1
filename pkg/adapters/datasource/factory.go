package datasource

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/logging"
)

// Config selects and configures a data source adapter.
type Config struct {
	Type    string
	DSN     string
	Options map[string]any
}

// Open creates the adapter registered for cfg.Type and verifies connectivity.
// Failures are reported as apperrors.ErrSourceUnavailable.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (DataSource, error) {
	factory := GetFactory(cfg.Type)
	if factory == nil {
		available := make([]string, 0)
		for _, info := range RegisteredAdapters() {
			available = append(available, info.Type)
		}
		return nil, fmt.Errorf("unsupported datasource type: %s (available: %s): %w",
			cfg.Type, strings.Join(available, ", "), apperrors.ErrSourceUnavailable)
	}

	ds, err := factory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s datasource: %s: %w", cfg.Type, logging.SanitizeError(err), apperrors.ErrSourceUnavailable)
	}

	if err := ds.TestConnection(ctx); err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("failed to connect to %s datasource: %s: %w", cfg.Type, logging.SanitizeError(err), apperrors.ErrSourceUnavailable)
	}

	info := ds.GetConnectionInfo()
	logger.Info("Connected to datasource",
		zap.String("type", info.Type),
		zap.String("host", info.Host),
		zap.String("database", info.Database))

	return ds, nil
}
