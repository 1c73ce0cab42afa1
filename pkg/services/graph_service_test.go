package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// countingBuilder counts Build calls on the wrapped builder.
type countingBuilder struct {
	GraphBuilder
	builds atomic.Int32
}

func (b *countingBuilder) Build(ctx context.Context, opts GraphBuildOptions, rels []*models.Relationship) (*models.Graph, error) {
	b.builds.Add(1)
	return b.GraphBuilder.Build(ctx, opts, rels)
}

type graphServiceFixture struct {
	svc     GraphService
	cache   *fakeGraphCache
	repo    *fakeOntologyRepository
	builder *countingBuilder
}

func newGraphServiceFixture(t *testing.T, source datasource.DataSource) *graphServiceFixture {
	t.Helper()
	parser, assocs := newTestCatalogs(t, purchasingCSN)
	mapper := NewRelationshipMapper(parser, assocs, zap.NewNop())
	repo := &fakeOntologyRepository{}
	ontology := NewOntologyService(repo, mapper, parser, assocs, OntologyServiceConfig{MinConfidence: 0.5}, zap.NewNop())

	builder := &countingBuilder{GraphBuilder: NewGraphBuilder(source, parser, zap.NewNop())}
	cache := newFakeGraphCache()
	svc := NewGraphService(cache, ontology, builder, GraphServiceConfig{
		DefaultGraphType: models.GraphTypeSchema,
		UseCache:         true,
		FilterOrphans:    true,
	}, zap.NewNop())
	return &graphServiceFixture{svc: svc, cache: cache, repo: repo, builder: builder}
}

func boolPtr(b bool) *bool { return &b }

func TestGraphService_ServesFromCache(t *testing.T) {
	f := newGraphServiceFixture(t, purchasingSource())
	ctx := context.Background()

	first, err := f.svc.GetGraph(ctx, GraphRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.GraphTypeSchema, first.GraphType)
	assert.False(t, first.FromCache)
	assert.Equal(t, int32(1), f.builder.builds.Load())

	second, err := f.svc.GetGraph(ctx, GraphRequest{GraphType: models.GraphTypeSchema})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Stats.NodeCount, second.Stats.NodeCount)
	assert.Equal(t, int32(1), f.builder.builds.Load())

	_, err = f.svc.GetGraph(ctx, GraphRequest{UseCache: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.builder.builds.Load())
}

func TestGraphService_CacheWriteFailureIsNotFatal(t *testing.T) {
	f := newGraphServiceFixture(t, purchasingSource())
	f.cache.saveErr = errors.New("disk full")

	graph, err := f.svc.GetGraph(context.Background(), GraphRequest{GraphType: models.GraphTypeCSN})
	require.NoError(t, err)
	assert.NotEmpty(t, graph.Nodes)
	assert.Equal(t, 1, f.cache.saves)

	status, err := f.svc.CacheStatus(context.Background(), models.GraphTypeCSN)
	require.NoError(t, err)
	assert.False(t, status.Exists)
}

func TestGraphService_RequestOverrides(t *testing.T) {
	f := newGraphServiceFixture(t, purchasingSource())
	ctx := context.Background()

	graph, err := f.svc.GetGraph(ctx, GraphRequest{
		GraphType:          models.GraphTypeData,
		MaxRecordsPerTable: 1,
		FilterOrphans:      boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, graph.Stats.NodeCount)
	assert.Zero(t, graph.Stats.OrphansFiltered)

	_, err = f.svc.GetGraph(ctx, GraphRequest{GraphType: models.GraphTypeData, MaxRecordsPerTable: 101})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.GetGraph(ctx, GraphRequest{GraphType: "sparql"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestGraphService_RefreshRebuildsEverything(t *testing.T) {
	f := newGraphServiceFixture(t, purchasingSource())
	ctx := context.Background()

	stale := &models.Graph{GraphType: models.GraphTypeSchema, Nodes: []models.GraphNode{{Key: "stale"}}}
	require.NoError(t, f.cache.SaveGraph(ctx, stale))

	result, err := f.svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Ontology.Discovered)
	assert.Len(t, result.Graphs, 3)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, 1, f.repo.clears)

	for _, gt := range models.AllGraphTypes {
		status, err := f.svc.CacheStatus(ctx, gt)
		require.NoError(t, err)
		assert.True(t, status.Exists, gt)
	}

	schema, err := f.svc.GetGraph(ctx, GraphRequest{GraphType: models.GraphTypeSchema})
	require.NoError(t, err)
	for _, n := range schema.Nodes {
		assert.NotEqual(t, "stale", n.Key)
	}
}

func TestGraphService_RefreshWithoutSource(t *testing.T) {
	f := newGraphServiceFixture(t, nil)

	result, err := f.svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Graphs, 1)
	assert.Contains(t, result.Graphs, models.GraphTypeCSN)
	assert.ElementsMatch(t, []models.GraphType{models.GraphTypeSchema, models.GraphTypeData}, result.Skipped)

	_, err = f.svc.GetGraph(context.Background(), GraphRequest{GraphType: models.GraphTypeSchema})
	assert.ErrorIs(t, err, apperrors.ErrSourceUnavailable)
}

func TestGraphService_ClearCache(t *testing.T) {
	f := newGraphServiceFixture(t, purchasingSource())
	ctx := context.Background()
	_, err := f.svc.Refresh(ctx)
	require.NoError(t, err)

	schema := models.GraphTypeSchema
	require.NoError(t, f.svc.ClearCache(ctx, &schema))
	status, err := f.svc.CacheStatus(ctx, models.GraphTypeSchema)
	require.NoError(t, err)
	assert.False(t, status.Exists)
	status, err = f.svc.CacheStatus(ctx, models.GraphTypeCSN)
	require.NoError(t, err)
	assert.True(t, status.Exists)

	require.NoError(t, f.svc.ClearCache(ctx, nil))
	for _, gt := range models.AllGraphTypes {
		g, err := f.cache.LoadGraph(ctx, gt)
		require.NoError(t, err)
		assert.Nil(t, g)
	}

	bad := models.GraphType("sparql")
	assert.ErrorIs(t, f.svc.ClearCache(ctx, &bad), apperrors.ErrInvalidInput)
	_, err = f.svc.CacheStatus(ctx, bad)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestGraphService_Queries(t *testing.T) {
	f := newGraphServiceFixture(t, purchasingSource())
	ctx := context.Background()

	neighbors, err := f.svc.GetNeighbors(ctx, models.GraphTypeSchema, "product-sales", DirectionOutgoing, nil, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"table-public-purchase_order", "table-public-supplier"}, neighborKeys(neighbors))

	path, err := f.svc.ShortestPath(ctx, models.GraphTypeSchema, "product-sales", "table-public-supplier", DefaultMaxHops)
	require.NoError(t, err)
	require.NotNil(t, path)
	assert.Equal(t, 1, path.Length)

	nodes, err := f.svc.Traverse(ctx, "", "product-sales", 2, DirectionBoth, []string{models.EdgeTypeContains})
	require.NoError(t, err)
	assert.Len(t, nodes, 3)

	empty, err := f.svc.GetNeighbors(ctx, models.GraphTypeSchema, "missing", DirectionBoth, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.svc.ShortestPath(ctx, models.GraphTypeSchema, "a", "b", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.Traverse(ctx, models.GraphTypeSchema, "product-sales", 1, "up", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	// The in-memory view is built once and reused.
	assert.Equal(t, int32(1), f.builder.builds.Load())
}
