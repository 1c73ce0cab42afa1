package services

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/csn"
	"github.com/ekaya-inc/csn-graph/pkg/metrics"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// Inferred-tier scoring weights.
const (
	scoreNameMatch = 0.7
	scorePKMatch   = 0.2
	scoreTypeMatch = 0.1
)

// EntityCatalog is the read side of the CSN parser.
type EntityCatalog interface {
	ListEntities() []string
	Entities() []*models.Entity
	GetEntityMetadata(name string) (*models.Entity, error)
	GetPrimaryKeys(name string) []string
	GetForeignKeys(name string) []models.ForeignKey
	GetColumnMetadata(entity, column string) (*models.Column, error)
	ClearCache()
}

// AssociationCatalog is the read side of the association parser.
type AssociationCatalog interface {
	ParseAllAssociations() []models.Association
	FindManyToManyRelationships() []models.ManyToManyPair
	GetCardinalityStatistics() map[models.Cardinality]int
	GetRelationshipComplexityMetrics() models.ComplexityMetrics
	ClearCache()
}

var (
	_ EntityCatalog      = (*csn.Parser)(nil)
	_ AssociationCatalog = (*csn.AssociationParser)(nil)
)

// RelationshipMapper fuses explicit CSN associations with naming-based
// inferred foreign keys and manual overrides.
type RelationshipMapper interface {
	// DiscoverRelationships returns relationships with confidence >= minConfidence,
	// highest confidence first. The full set is memoized until ClearCache.
	DiscoverRelationships(minConfidence float64) ([]*models.Relationship, error)

	// AddManualRelationship merges a user-supplied relationship into every
	// subsequent discovery result.
	AddManualRelationship(rel models.Relationship) (*models.Relationship, error)

	// ClearCache drops the memoized relationship set. Manual relationships are kept.
	ClearCache()
}

type relationshipMapper struct {
	entities     EntityCatalog
	associations AssociationCatalog
	logger       *zap.Logger

	mu     sync.Mutex
	cached []*models.Relationship
	manual []*models.Relationship
}

// NewRelationshipMapper creates a new RelationshipMapper.
func NewRelationshipMapper(entities EntityCatalog, associations AssociationCatalog, logger *zap.Logger) RelationshipMapper {
	return &relationshipMapper{
		entities:     entities,
		associations: associations,
		logger:       logger.Named("relationship-mapper"),
	}
}

var _ RelationshipMapper = (*relationshipMapper)(nil)

func (m *relationshipMapper) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil
}

func (m *relationshipMapper) AddManualRelationship(rel models.Relationship) (*models.Relationship, error) {
	if rel.FromEntity == "" || rel.FromColumn == "" || rel.ToEntity == "" {
		return nil, fmt.Errorf("manual relationship needs from_entity, from_column and to_entity: %w", apperrors.ErrInvalidInput)
	}

	now := time.Now()
	rel.Confidence = 1.0
	rel.Inferred = false
	rel.DiscoveryMethod = models.DiscoveryMethodManualOverride
	rel.IsActive = true
	if rel.RelationshipType == "" {
		rel.RelationshipType = models.RelationshipTypeForeignKey
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}
	rel.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.manual {
		if existing.Key() == rel.Key() {
			m.manual[i] = &rel
			m.cached = nil
			return cloneRelationship(&rel), nil
		}
	}
	m.manual = append(m.manual, &rel)
	m.cached = nil
	return cloneRelationship(&rel), nil
}

func (m *relationshipMapper) DiscoverRelationships(minConfidence float64) ([]*models.Relationship, error) {
	if minConfidence < 0 || minConfidence > 1 || math.IsNaN(minConfidence) {
		return nil, fmt.Errorf("min_confidence %v outside [0,1]: %w", minConfidence, apperrors.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached == nil {
		m.cached = m.discoverLocked()
	}

	var out []*models.Relationship
	for _, rel := range m.cached {
		if rel.Confidence >= minConfidence {
			out = append(out, cloneRelationship(rel))
		}
	}
	return out, nil
}

func (m *relationshipMapper) discoverLocked() []*models.Relationship {
	entities := m.entities.Entities()
	byName := make(map[string]*models.Entity, len(entities))
	for _, e := range entities {
		byName[e.Name] = e
	}

	now := time.Now()
	var ordered []*models.Relationship
	index := make(map[models.RelationshipKey]int)
	coveredPairs := make(map[[2]string]bool)

	add := func(rel *models.Relationship) {
		if i, ok := index[rel.Key()]; ok {
			ordered[i] = rel
			return
		}
		index[rel.Key()] = len(ordered)
		ordered = append(ordered, rel)
	}

	explicit := 0
	for _, assoc := range m.associations.ParseAllAssociations() {
		for _, rel := range explicitRelationships(assoc, byName, now) {
			add(rel)
			coveredPairs[[2]string{rel.FromEntity, rel.ToEntity}] = true
			explicit++
		}
	}

	inferred := 0
	for _, source := range entities {
		for _, col := range source.Columns {
			if col.IsKey {
				continue
			}
			target, ok := byName[col.Name]
			if !ok || target.Name == source.Name {
				continue
			}
			if coveredPairs[[2]string{source.Name, target.Name}] {
				continue
			}
			add(inferRelationship(source, col, target, now))
			inferred++
		}
	}

	for _, rel := range m.manual {
		add(cloneRelationship(rel))
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Confidence > ordered[j].Confidence
	})

	metrics.RelationshipsDiscovered.WithLabelValues(models.DiscoveryMethodExplicitCSN).Set(float64(explicit))
	metrics.RelationshipsDiscovered.WithLabelValues(models.DiscoveryMethodInferredNaming).Set(float64(inferred))
	metrics.RelationshipsDiscovered.WithLabelValues(models.DiscoveryMethodManualOverride).Set(float64(len(m.manual)))

	m.logger.Info("Discovered relationships",
		zap.Int("explicit", explicit),
		zap.Int("inferred", inferred),
		zap.Int("manual", len(m.manual)),
		zap.Int("total", len(ordered)))

	return ordered
}

// explicitRelationships turns one association into one relationship per
// column pair it joins on.
func explicitRelationships(assoc models.Association, byName map[string]*models.Entity, now time.Time) []*models.Relationship {
	target := models.SimpleName(assoc.TargetEntity)

	var targetPKs []string
	if t, ok := byName[target]; ok {
		targetPKs = t.PrimaryKeys
	}

	relType := models.RelationshipTypeAssociation
	switch {
	case assoc.IsComposition:
		relType = models.RelationshipTypeComposition
	case assoc.Cardinality == models.CardinalityManyToOne || assoc.Cardinality == models.CardinalityOneToOne:
		relType = models.RelationshipTypeForeignKey
	}

	fks := csn.AssociationForeignKeys(assoc, targetPKs)
	rels := make([]*models.Relationship, 0, len(fks))
	for _, fk := range fks {
		rels = append(rels, &models.Relationship{
			FromEntity:       models.SimpleName(assoc.SourceEntity),
			FromColumn:       fk.Column,
			ToEntity:         target,
			ToColumn:         fk.ReferencesColumn,
			AssociationField: assoc.FieldName,
			RelationshipType: relType,
			Confidence:       1.0,
			Inferred:         false,
			DiscoveryMethod:  models.DiscoveryMethodExplicitCSN,
			Cardinality:      assoc.Cardinality,
			Conditions:       assoc.Conditions,
			IsComposition:    assoc.IsComposition,
			IsManyToMany:     assoc.IsManyToMany,
			IsActive:         true,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return rels
}

// inferRelationship scores a column whose name matches another entity.
func inferRelationship(source *models.Entity, col models.Column, target *models.Entity, now time.Time) *models.Relationship {
	score := scoreNameMatch

	toColumn := ""
	if len(target.PrimaryKeys) > 0 {
		toColumn = target.PrimaryKeys[0]
	}
	if target.IsPrimaryKey(col.Name) {
		score += scorePKMatch
		toColumn = col.Name
	}
	if pk := target.Column(toColumn); pk != nil && pk.Type == col.Type {
		score += scoreTypeMatch
	}

	return &models.Relationship{
		FromEntity:       source.Name,
		FromColumn:       col.Name,
		ToEntity:         target.Name,
		ToColumn:         toColumn,
		RelationshipType: models.RelationshipTypeForeignKey,
		Confidence:       roundConfidence(score),
		Inferred:         true,
		DiscoveryMethod:  models.DiscoveryMethodInferredNaming,
		Cardinality:      models.CardinalityManyToOne,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// roundConfidence clamps to [0,1] and removes float noise from summed weights.
func roundConfidence(c float64) float64 {
	c = math.Round(c*100) / 100
	return math.Max(0, math.Min(1, c))
}

func cloneRelationship(rel *models.Relationship) *models.Relationship {
	c := *rel
	if rel.Conditions != nil {
		c.Conditions = append([]models.OnCondition(nil), rel.Conditions...)
	}
	if rel.Notes != nil {
		n := *rel.Notes
		c.Notes = &n
	}
	return &c
}
