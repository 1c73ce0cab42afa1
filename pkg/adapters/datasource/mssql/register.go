package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        Type,
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2019+, Azure SQL Database",
		},
		Factory: func(_ context.Context, cfg datasource.Config, logger *zap.Logger) (datasource.DataSource, error) {
			msCfg, err := FromDatasourceConfig(cfg)
			if err != nil {
				return nil, err
			}
			products, _, err := datasource.ProductsFromOptions(cfg.Options)
			if err != nil {
				return nil, err
			}
			return NewAdapter(msCfg, products, logger)
		},
	})
}
