package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/csn-graph/pkg/models"
	"github.com/ekaya-inc/csn-graph/pkg/repositories"
)

// fakeOntologyRepository keeps relationships in memory with the same
// one-row-per-key rule as the Postgres repository.
type fakeOntologyRepository struct {
	mu          sync.Mutex
	rows        []*models.Relationship
	lastRefresh *time.Time
	clears      int
	err         error
}

var _ repositories.OntologyRepository = (*fakeOntologyRepository)(nil)

func (r *fakeOntologyRepository) find(key models.RelationshipKey) *models.Relationship {
	for _, row := range r.rows {
		if row.Key() == key {
			return row
		}
	}
	return nil
}

func (r *fakeOntologyRepository) GetAllRelationships(ctx context.Context, activeOnly bool) ([]*models.Relationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*models.Relationship
	for _, row := range r.rows {
		if !activeOnly || row.IsActive {
			out = append(out, cloneRelationship(row))
		}
	}
	return out, nil
}

func (r *fakeOntologyRepository) GetRelationshipsForTable(ctx context.Context, table string) ([]*models.Relationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Relationship
	for _, row := range r.rows {
		if row.IsActive && (row.FromEntity == table || row.ToEntity == table) {
			out = append(out, cloneRelationship(row))
		}
	}
	return out, nil
}

func (r *fakeOntologyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Relationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			return cloneRelationship(row), nil
		}
	}
	return nil, nil
}

func (r *fakeOntologyRepository) IsCacheValid(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	return len(r.rows) > 0, nil
}

func (r *fakeOntologyRepository) PersistRelationships(ctx context.Context, rels []*models.Relationship, defaultMethod string) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, 0, r.err
	}
	inserted, updated := 0, 0
	for _, rel := range rels {
		c := cloneRelationship(rel)
		if c.DiscoveryMethod == "" {
			c.DiscoveryMethod = defaultMethod
		}
		if existing := r.find(c.Key()); existing != nil {
			if c.Confidence > existing.Confidence {
				c.ID = existing.ID
				*existing = *c
				updated++
			}
			continue
		}
		c.ID = uuid.New()
		r.rows = append(r.rows, c)
		inserted++
	}
	now := time.Now()
	r.lastRefresh = &now
	return inserted, updated, nil
}

func (r *fakeOntologyRepository) AddManualRelationship(ctx context.Context, rel *models.Relationship) (*models.Relationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	c := cloneRelationship(rel)
	if existing := r.find(c.Key()); existing != nil {
		c.ID = existing.ID
		*existing = *c
		return cloneRelationship(existing), nil
	}
	c.ID = uuid.New()
	r.rows = append(r.rows, c)
	return cloneRelationship(c), nil
}

func (r *fakeOntologyRepository) VerifyRelationship(ctx context.Context, id uuid.UUID, notes *string) (*models.Relationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			row.DiscoveryMethod = models.DiscoveryMethodManualVerified
			row.Confidence = 1.0
			row.Notes = notes
			return cloneRelationship(row), nil
		}
	}
	return nil, nil
}

func (r *fakeOntologyRepository) DisableRelationship(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			row.IsActive = false
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeOntologyRepository) ClearCache(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.rows = nil
	r.clears++
	return nil
}

func (r *fakeOntologyRepository) GetStatistics(ctx context.Context) (*models.OntologyStatistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &models.OntologyStatistics{
		ByConfidence:      make(map[string]int),
		ByDiscoveryMethod: make(map[string]int),
		LastRefresh:       r.lastRefresh,
	}
	for _, row := range r.rows {
		stats.TotalRelationships++
		if row.IsActive {
			stats.ActiveRelationships++
		}
		stats.ByConfidence[models.ConfidenceBand(row.Confidence)]++
		stats.ByDiscoveryMethod[row.DiscoveryMethod]++
	}
	return stats, nil
}

// fakeGraphCache keeps one snapshot per graph type in memory.
type fakeGraphCache struct {
	mu      sync.Mutex
	graphs  map[models.GraphType]*models.Graph
	saveErr error
	saves   int
	loads   int
}

var _ repositories.GraphCacheRepository = (*fakeGraphCache)(nil)

func newFakeGraphCache() *fakeGraphCache {
	return &fakeGraphCache{graphs: make(map[models.GraphType]*models.Graph)}
}

func (c *fakeGraphCache) SaveGraph(ctx context.Context, graph *models.Graph) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	if c.saveErr != nil {
		return c.saveErr
	}
	stored := *graph
	stored.FromCache = true
	c.graphs[graph.GraphType] = &stored
	return nil
}

func (c *fakeGraphCache) LoadGraph(ctx context.Context, graphType models.GraphType) (*models.Graph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	return c.graphs[graphType], nil
}

func (c *fakeGraphCache) CheckCacheStatus(ctx context.Context, graphType models.GraphType) (*models.CacheStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := &models.CacheStatus{GraphType: graphType}
	if g, ok := c.graphs[graphType]; ok {
		status.Exists = true
		status.NodeCount = len(g.Nodes)
		status.EdgeCount = len(g.Edges)
	}
	return status, nil
}

func (c *fakeGraphCache) ClearCache(ctx context.Context, graphType *models.GraphType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if graphType == nil {
		c.graphs = make(map[models.GraphType]*models.Graph)
		return nil
	}
	delete(c.graphs, *graphType)
	return nil
}
