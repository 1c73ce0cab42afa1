package sqlite

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        Type,
			DisplayName: "SQLite",
			Description: "Read a local SQLite database file",
		},
		Factory: func(_ context.Context, cfg datasource.Config, logger *zap.Logger) (datasource.DataSource, error) {
			sqliteCfg, err := FromDatasourceConfig(cfg)
			if err != nil {
				return nil, err
			}
			products, _, err := datasource.ProductsFromOptions(cfg.Options)
			if err != nil {
				return nil, err
			}
			return NewAdapter(sqliteCfg, products, logger)
		},
	})
}
