package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/csn"
	"github.com/ekaya-inc/csn-graph/pkg/database"
	"github.com/ekaya-inc/csn-graph/pkg/models"
	"github.com/ekaya-inc/csn-graph/pkg/services"
)

const testCSN = `{"definitions": {
  "po.PurchaseOrder": {"kind": "entity", "elements": {
    "PurchaseOrder": {"type": "cds.String", "key": true},
    "Supplier": {"type": "cds.String"},
    "_Items": {"type": "cds.Composition", "target": "po.PurchaseOrderItem", "cardinality": {"max": "*"},
      "on": [{"ref": ["_Items", "PurchaseOrder"]}, "=", {"ref": ["PurchaseOrder"]}]}
  }},
  "po.PurchaseOrderItem": {"kind": "entity", "elements": {
    "PurchaseOrder": {"type": "cds.String", "key": true},
    "Item": {"type": "cds.String", "key": true}
  }},
  "md.Supplier": {"kind": "entity", "elements": {
    "Supplier": {"type": "cds.String", "key": true}
  }}
}}`

// fakeScopes hands out no-op scopes and counts them.
type fakeScopes struct {
	opened, closed int
	err            error
}

var _ database.ScopeProvider = (*fakeScopes)(nil)

func (f *fakeScopes) WithScope(ctx context.Context) (context.Context, func(), error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.opened++
	return ctx, func() { f.closed++ }, nil
}

// mockOntologyService records the last call and returns canned values.
type mockOntologyService struct {
	relationships []*models.Relationship
	added         *models.Relationship
	verified      map[uuid.UUID]*models.Relationship
	lastActive    bool
	lastTable     string
}

var _ services.OntologyService = (*mockOntologyService)(nil)

func (m *mockOntologyService) Refresh(ctx context.Context) (*services.OntologyRefreshResult, error) {
	return &services.OntologyRefreshResult{Discovered: len(m.relationships)}, nil
}

func (m *mockOntologyService) DiscoverRelationships(ctx context.Context, minConfidence float64) ([]*models.Relationship, error) {
	if minConfidence < 0 || minConfidence > 1 {
		return nil, apperrors.ErrInvalidInput
	}
	var out []*models.Relationship
	for _, r := range m.relationships {
		if r.Confidence >= minConfidence {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockOntologyService) ListRelationships(ctx context.Context, activeOnly bool, table string) ([]*models.Relationship, error) {
	m.lastActive, m.lastTable = activeOnly, table
	return m.relationships, nil
}

func (m *mockOntologyService) ActiveRelationships(ctx context.Context) ([]*models.Relationship, error) {
	return m.relationships, nil
}

func (m *mockOntologyService) AddManualRelationship(ctx context.Context, rel models.Relationship) (*models.Relationship, error) {
	rel.ID = uuid.New()
	rel.Confidence = 1.0
	rel.DiscoveryMethod = models.DiscoveryMethodManualOverride
	m.added = &rel
	return &rel, nil
}

func (m *mockOntologyService) VerifyRelationship(ctx context.Context, id uuid.UUID, notes *string) (*models.Relationship, error) {
	return m.verified[id], nil
}

func (m *mockOntologyService) DisableRelationship(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.verified[id]
	return ok, nil
}

func (m *mockOntologyService) GetStatistics(ctx context.Context) (*models.OntologyStatistics, error) {
	return &models.OntologyStatistics{TotalRelationships: len(m.relationships)}, nil
}

// mockGraphService serves a fixed graph through a real GraphIndex.
type mockGraphService struct {
	graph       *models.Graph
	lastRequest services.GraphRequest
	lastHops    int
	cleared     []*models.GraphType
	failWith    error
}

var _ services.GraphService = (*mockGraphService)(nil)

func (m *mockGraphService) GetGraph(ctx context.Context, req services.GraphRequest) (*models.Graph, error) {
	m.lastRequest = req
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.graph, nil
}

func (m *mockGraphService) Refresh(ctx context.Context) (*services.GraphRefreshResult, error) {
	return &services.GraphRefreshResult{
		Graphs: map[models.GraphType]models.GraphStats{models.GraphTypeSchema: m.graph.Stats},
	}, nil
}

func (m *mockGraphService) CacheStatus(ctx context.Context, graphType models.GraphType) (*models.CacheStatus, error) {
	return &models.CacheStatus{GraphType: graphType, Exists: true, NodeCount: len(m.graph.Nodes)}, nil
}

func (m *mockGraphService) ClearCache(ctx context.Context, graphType *models.GraphType) error {
	m.cleared = append(m.cleared, graphType)
	return nil
}

func (m *mockGraphService) GetNeighbors(ctx context.Context, graphType models.GraphType, key string, dir services.Direction, edgeTypes []string, limit int) ([]services.Neighbor, error) {
	return services.NewGraphIndex(m.graph).GetNeighbors(key, dir, edgeTypes, limit)
}

func (m *mockGraphService) ShortestPath(ctx context.Context, graphType models.GraphType, start, end string, maxHops int) (*services.Path, error) {
	m.lastHops = maxHops
	return services.NewGraphIndex(m.graph).ShortestPath(start, end, maxHops)
}

func (m *mockGraphService) Traverse(ctx context.Context, graphType models.GraphType, start string, depth int, dir services.Direction, edgeTypes []string) ([]services.TraversedNode, error) {
	return services.NewGraphIndex(m.graph).Traverse(start, depth, dir, edgeTypes)
}

func testGraph() *models.Graph {
	g := &models.Graph{
		GraphType: models.GraphTypeSchema,
		Nodes: []models.GraphNode{
			{Key: "product-sales", Label: "sales", Type: models.NodeTypeProduct},
			{Key: "table-public-purchase_order", Label: "purchase_order", Type: models.NodeTypeTable},
			{Key: "table-public-supplier", Label: "supplier", Type: models.NodeTypeTable},
		},
		Edges: []models.GraphEdge{
			{From: "product-sales", To: "table-public-purchase_order", Type: models.EdgeTypeContains},
			{From: "product-sales", To: "table-public-supplier", Type: models.EdgeTypeContains},
			{From: "table-public-purchase_order", To: "table-public-supplier", Type: models.EdgeTypeFK, Label: "Supplier"},
		},
	}
	g.ComputeStats()
	return g
}

type testDeps struct {
	*ToolDeps
	scopes   *fakeScopes
	ontology *mockOntologyService
	graphs   *mockGraphService
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "po.json"), []byte(testCSN), 0o644))
	store, err := csn.NewFileStore(dir, 0, zap.NewNop())
	require.NoError(t, err)
	parser := csn.NewParser(store, zap.NewNop())

	scopes := &fakeScopes{}
	ontology := &mockOntologyService{verified: make(map[uuid.UUID]*models.Relationship)}
	graphs := &mockGraphService{graph: testGraph()}
	return &testDeps{
		ToolDeps: &ToolDeps{
			Scopes:       scopes,
			Entities:     parser,
			Associations: csn.NewAssociationParser(parser, 0, zap.NewNop()),
			Ontology:     ontology,
			Graphs:       graphs,
			Logger:       zap.NewNop(),
		},
		scopes:   scopes,
		ontology: ontology,
		graphs:   graphs,
	}
}
