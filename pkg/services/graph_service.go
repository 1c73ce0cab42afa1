package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/logging"
	"github.com/ekaya-inc/csn-graph/pkg/metrics"
	"github.com/ekaya-inc/csn-graph/pkg/models"
	"github.com/ekaya-inc/csn-graph/pkg/repositories"
)

// GraphRequest asks for one graph. Nil fields take the service defaults.
type GraphRequest struct {
	GraphType          models.GraphType
	UseCache           *bool
	MaxRecordsPerTable int
	FilterOrphans      *bool
}

// GraphRefreshResult reports a full rebuild.
type GraphRefreshResult struct {
	Ontology *OntologyRefreshResult                 `json:"ontology"`
	Graphs   map[models.GraphType]models.GraphStats `json:"graphs"`
	Skipped  []models.GraphType                     `json:"skipped,omitempty"`
	Duration time.Duration                          `json:"duration_ns"`
}

// GraphService serves materialized graphs, from the cache when allowed, and
// answers graph queries over them.
type GraphService interface {
	GetGraph(ctx context.Context, req GraphRequest) (*models.Graph, error)

	// Refresh rebuilds the ontology, clears every cached snapshot and rebuilds
	// each graph type the builder supports.
	Refresh(ctx context.Context) (*GraphRefreshResult, error)

	CacheStatus(ctx context.Context, graphType models.GraphType) (*models.CacheStatus, error)
	ClearCache(ctx context.Context, graphType *models.GraphType) error

	GetNeighbors(ctx context.Context, graphType models.GraphType, key string, dir Direction, edgeTypes []string, limit int) ([]Neighbor, error)
	ShortestPath(ctx context.Context, graphType models.GraphType, start, end string, maxHops int) (*Path, error)
	Traverse(ctx context.Context, graphType models.GraphType, start string, depth int, dir Direction, edgeTypes []string) ([]TraversedNode, error)
}

// GraphServiceConfig holds request defaults.
type GraphServiceConfig struct {
	DefaultGraphType   models.GraphType
	UseCache           bool
	MaxRecordsPerTable int
	FilterOrphans      bool
}

type graphService struct {
	cache    repositories.GraphCacheRepository
	ontology OntologyService
	builder  GraphBuilder
	cfg      GraphServiceConfig
	logger   *zap.Logger

	mu      sync.Mutex
	indexes map[models.GraphType]*GraphIndex
}

// NewGraphService creates a new GraphService.
func NewGraphService(
	cache repositories.GraphCacheRepository,
	ontology OntologyService,
	builder GraphBuilder,
	cfg GraphServiceConfig,
	logger *zap.Logger,
) GraphService {
	if cfg.DefaultGraphType == "" {
		cfg.DefaultGraphType = models.GraphTypeSchema
	}
	if cfg.MaxRecordsPerTable == 0 {
		cfg.MaxRecordsPerTable = DefaultMaxRecordsPerTable
	}
	return &graphService{
		cache:    cache,
		ontology: ontology,
		builder:  builder,
		cfg:      cfg,
		logger:   logger.Named("graph"),
		indexes:  make(map[models.GraphType]*GraphIndex),
	}
}

var _ GraphService = (*graphService)(nil)

func (s *graphService) options(req GraphRequest) (GraphBuildOptions, bool) {
	opts := GraphBuildOptions{
		GraphType:          req.GraphType,
		MaxRecordsPerTable: req.MaxRecordsPerTable,
		FilterOrphans:      s.cfg.FilterOrphans,
	}
	if opts.GraphType == "" {
		opts.GraphType = s.cfg.DefaultGraphType
	}
	if opts.MaxRecordsPerTable == 0 {
		opts.MaxRecordsPerTable = s.cfg.MaxRecordsPerTable
	}
	if req.FilterOrphans != nil {
		opts.FilterOrphans = *req.FilterOrphans
	}
	useCache := s.cfg.UseCache
	if req.UseCache != nil {
		useCache = *req.UseCache
	}
	return opts, useCache
}

func (s *graphService) GetGraph(ctx context.Context, req GraphRequest) (*models.Graph, error) {
	opts, useCache := s.options(req)
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if useCache {
		cached, err := s.cache.LoadGraph(ctx, opts.GraphType)
		if err != nil {
			return nil, storeError("load cached graph", err)
		}
		if cached != nil {
			metrics.GraphCacheRequests.WithLabelValues(string(opts.GraphType), "hit").Inc()
			s.logger.Debug("Serving graph from cache", zap.String("graph_type", string(opts.GraphType)))
			return cached, nil
		}
		metrics.GraphCacheRequests.WithLabelValues(string(opts.GraphType), "miss").Inc()
	} else {
		metrics.GraphCacheRequests.WithLabelValues(string(opts.GraphType), "bypass").Inc()
	}

	return s.build(ctx, opts)
}

// build constructs a graph and writes it to the cache. A cache write failure
// is logged and the built graph is still returned.
func (s *graphService) build(ctx context.Context, opts GraphBuildOptions) (*models.Graph, error) {
	rels, err := s.ontology.ActiveRelationships(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	graph, err := s.builder.Build(ctx, opts, rels)
	metrics.GraphBuildDuration.WithLabelValues(string(opts.GraphType)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GraphBuildsTotal.WithLabelValues(string(opts.GraphType), "error").Inc()
		return nil, err
	}
	metrics.GraphBuildsTotal.WithLabelValues(string(opts.GraphType), "success").Inc()

	if err := s.cache.SaveGraph(ctx, graph); err != nil {
		metrics.GraphCacheWriteFailures.WithLabelValues(string(opts.GraphType)).Inc()
		s.logger.Warn("Failed to cache graph",
			zap.String("graph_type", string(opts.GraphType)),
			zap.String("error", logging.SanitizeError(err)))
	}

	s.mu.Lock()
	s.indexes[opts.GraphType] = NewGraphIndex(graph)
	s.mu.Unlock()

	return graph, nil
}

func (s *graphService) Refresh(ctx context.Context) (*GraphRefreshResult, error) {
	start := time.Now()

	ontology, err := s.ontology.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ClearCache(ctx, nil); err != nil {
		return nil, err
	}

	result := &GraphRefreshResult{
		Ontology: ontology,
		Graphs:   make(map[models.GraphType]models.GraphStats),
	}
	for _, t := range models.AllGraphTypes {
		if !s.builder.Supports(t) {
			result.Skipped = append(result.Skipped, t)
			continue
		}
		opts, _ := s.options(GraphRequest{GraphType: t})
		graph, err := s.build(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild %s graph: %w", t, err)
		}
		result.Graphs[t] = graph.Stats

		components, islands := s.indexFor(t).FindConnectedComponents()
		LogConnectivity(t, components, islands, s.logger)
	}
	result.Duration = time.Since(start)

	s.logger.Info("Graphs refreshed",
		zap.Int("rebuilt", len(result.Graphs)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (s *graphService) indexFor(t models.GraphType) *GraphIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexes[t]
}

func (s *graphService) CacheStatus(ctx context.Context, graphType models.GraphType) (*models.CacheStatus, error) {
	if _, err := models.ParseGraphType(string(graphType)); err != nil {
		return nil, err
	}
	status, err := s.cache.CheckCacheStatus(ctx, graphType)
	if err != nil {
		return nil, storeError("check graph cache", err)
	}
	return status, nil
}

func (s *graphService) ClearCache(ctx context.Context, graphType *models.GraphType) error {
	if graphType != nil {
		if _, err := models.ParseGraphType(string(*graphType)); err != nil {
			return err
		}
	}
	if err := s.cache.ClearCache(ctx, graphType); err != nil {
		return storeError("clear graph cache", err)
	}

	s.mu.Lock()
	if graphType == nil {
		s.indexes = make(map[models.GraphType]*GraphIndex)
	} else {
		delete(s.indexes, *graphType)
	}
	s.mu.Unlock()
	return nil
}

// index returns the in-memory view of a graph, loading it on first use.
func (s *graphService) index(ctx context.Context, graphType models.GraphType) (*GraphIndex, error) {
	if graphType == "" {
		graphType = s.cfg.DefaultGraphType
	}
	if idx := s.indexFor(graphType); idx != nil {
		return idx, nil
	}

	graph, err := s.GetGraph(ctx, GraphRequest{GraphType: graphType})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indexes[graphType]; ok {
		return idx, nil
	}
	idx := NewGraphIndex(graph)
	s.indexes[graphType] = idx
	return idx, nil
}

func (s *graphService) GetNeighbors(ctx context.Context, graphType models.GraphType, key string, dir Direction, edgeTypes []string, limit int) ([]Neighbor, error) {
	if _, err := ParseDirection(string(dir)); err != nil {
		return nil, err
	}
	idx, err := s.index(ctx, graphType)
	if err != nil {
		return nil, err
	}
	return idx.GetNeighbors(key, dir, edgeTypes, limit)
}

func (s *graphService) ShortestPath(ctx context.Context, graphType models.GraphType, start, end string, maxHops int) (*Path, error) {
	idx, err := s.index(ctx, graphType)
	if err != nil {
		return nil, err
	}
	return idx.ShortestPath(start, end, maxHops)
}

func (s *graphService) Traverse(ctx context.Context, graphType models.GraphType, start string, depth int, dir Direction, edgeTypes []string) ([]TraversedNode, error) {
	if _, err := ParseDirection(string(dir)); err != nil {
		return nil, err
	}
	idx, err := s.index(ctx, graphType)
	if err != nil {
		return nil, err
	}
	return idx.Traverse(start, depth, dir, edgeTypes)
}
