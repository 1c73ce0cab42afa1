package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/config"
	"github.com/ekaya-inc/csn-graph/pkg/csn"
	"github.com/ekaya-inc/csn-graph/pkg/database"
	"github.com/ekaya-inc/csn-graph/pkg/logging"
	"github.com/ekaya-inc/csn-graph/pkg/mcp/tools"
	"github.com/ekaya-inc/csn-graph/pkg/repositories"
	"github.com/ekaya-inc/csn-graph/pkg/services"
)

// app holds the wired component graph for one CLI invocation.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	parser   *csn.Parser
	assocs   *csn.AssociationParser
	mapper   services.RelationshipMapper
	ontology services.OntologyService
	graphs   services.GraphService

	db     *database.DB
	scopes database.ScopeProvider
	source datasource.DataSource
}

// openOptions selects which backends a command needs.
type openOptions struct {
	store      bool
	dataSource bool
	// tolerant degrades to no store or data source instead of failing.
	tolerant bool
}

// newApp wires the CSN catalog, the services and, on request, the graph
// store and the data source.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts openOptions) (*app, error) {
	store, err := csn.NewFileStore(cfg.CSN.Directory, cfg.CSN.CacheSize, logger)
	if err != nil {
		return nil, err
	}
	parser := csn.NewParser(store, logger)
	assocs := csn.NewAssociationParser(parser, cfg.Discovery.BridgeThreshold, logger)

	a := &app{
		cfg:    cfg,
		logger: logger,
		parser: parser,
		assocs: assocs,
		mapper: services.NewRelationshipMapper(parser, assocs, logger),
	}

	if opts.store {
		if err := a.openStore(ctx); err != nil {
			if !opts.tolerant {
				return nil, err
			}
			logger.Warn("Graph store unavailable, store-backed operations will fail", zap.Error(err))
		}
	}

	if opts.dataSource && cfg.Datasource.Enabled() {
		ds, err := datasource.Open(ctx, datasource.Config{
			Type:    cfg.Datasource.Type,
			DSN:     config.ResolveDSNHostForDocker(cfg.Datasource.DSN),
			Options: cfg.Datasource.Options,
		}, logger)
		if err != nil {
			if !opts.tolerant {
				a.Close()
				return nil, err
			}
			logger.Warn("Data source unavailable, schema and data graphs are disabled", zap.Error(err))
		} else {
			a.source = ds
		}
	}

	a.ontology = services.NewOntologyService(
		repositories.NewOntologyRepository(),
		a.mapper,
		parser,
		assocs,
		services.OntologyServiceConfig{
			MinConfidence: cfg.Discovery.MinConfidence,
			OverridesFile: cfg.Discovery.OverridesFile,
		},
		logger,
	)

	a.graphs = services.NewGraphService(
		repositories.NewGraphCacheRepository(),
		a.ontology,
		services.NewGraphBuilder(a.source, parser, logger),
		services.GraphServiceConfig{
			DefaultGraphType:   cfg.Graph.DefaultGraphType(),
			UseCache:           cfg.Graph.UseCache,
			MaxRecordsPerTable: cfg.Graph.MaxRecordsPerTable,
			FilterOrphans:      cfg.Graph.FilterOrphans,
		},
		logger,
	)

	return a, nil
}

// openStore connects to the graph store and applies pending migrations.
func (a *app) openStore(ctx context.Context) error {
	dbCfg := a.cfg.Database
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            dbCfg.ConnectionString(),
		MaxConnections: dbCfg.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to graph store at %s: %s: %w",
			logging.SanitizeConnectionString(dbCfg.ConnectionString()), logging.SanitizeError(err), apperrors.ErrStore)
	}

	if err := db.Migrate(a.logger); err != nil {
		db.Close()
		return fmt.Errorf("%w: %w", apperrors.ErrStore, err)
	}

	a.db = db
	a.scopes = database.NewScopeProvider(db)
	return nil
}

// withStore runs fn with a store connection in its context.
func (a *app) withStore(ctx context.Context, fn func(ctx context.Context) error) error {
	if a.scopes == nil {
		return fmt.Errorf("graph store is not configured: %w", apperrors.ErrStore)
	}
	scoped, cleanup, err := a.scopes.WithScope(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire database connection: %w: %w", apperrors.ErrStore, err)
	}
	defer cleanup()
	return fn(scoped)
}

// toolDeps exposes the wired services to the MCP tool layer.
func (a *app) toolDeps() *tools.ToolDeps {
	return &tools.ToolDeps{
		Scopes:       a.scopes,
		Entities:     a.parser,
		Associations: a.assocs,
		Ontology:     a.ontology,
		Graphs:       a.graphs,
		DataSource:   a.source,
		Logger:       a.logger,
	}
}

// Close releases the store pool and the data source.
func (a *app) Close() {
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.logger.Warn("Failed to close data source", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
