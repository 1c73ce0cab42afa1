package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        Type,
			DisplayName: "PostgreSQL",
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
		},
		Factory: func(ctx context.Context, cfg datasource.Config, logger *zap.Logger) (datasource.DataSource, error) {
			pgCfg, err := FromDatasourceConfig(cfg)
			if err != nil {
				return nil, err
			}
			products, _, err := datasource.ProductsFromOptions(cfg.Options)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, pgCfg, products, logger)
		},
	})
}
