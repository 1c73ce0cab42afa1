package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/metrics"
	"github.com/ekaya-inc/csn-graph/pkg/models"
	"github.com/ekaya-inc/csn-graph/pkg/repositories"
)

// OntologyRefreshResult reports one ontology rebuild.
type OntologyRefreshResult struct {
	Discovered int           `json:"discovered"`
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Overrides  int           `json:"overrides"`
	Duration   time.Duration `json:"duration_ns"`
}

// OntologyService fuses CSN discovery with the persisted relationship store.
type OntologyService interface {
	// Refresh clears the store and every in-memory CSN cache, rediscovers
	// relationships, persists those at or above the configured minimum
	// confidence and applies the overrides file.
	Refresh(ctx context.Context) (*OntologyRefreshResult, error)

	// DiscoverRelationships runs in-memory discovery without touching the store.
	DiscoverRelationships(ctx context.Context, minConfidence float64) ([]*models.Relationship, error)

	// ListRelationships reads the store. A non-empty table restricts the result
	// to active relationships where the table is source or target.
	ListRelationships(ctx context.Context, activeOnly bool, table string) ([]*models.Relationship, error)

	// ActiveRelationships returns the stored active relationships, populating
	// the store first when it is empty.
	ActiveRelationships(ctx context.Context) ([]*models.Relationship, error)

	AddManualRelationship(ctx context.Context, rel models.Relationship) (*models.Relationship, error)

	// VerifyRelationship returns nil when id is unknown.
	VerifyRelationship(ctx context.Context, id uuid.UUID, notes *string) (*models.Relationship, error)

	// DisableRelationship reports whether a row was disabled.
	DisableRelationship(ctx context.Context, id uuid.UUID) (bool, error)

	GetStatistics(ctx context.Context) (*models.OntologyStatistics, error)
}

// OntologyServiceConfig tunes discovery persistence.
type OntologyServiceConfig struct {
	MinConfidence float64
	OverridesFile string
}

type ontologyService struct {
	repo     repositories.OntologyRepository
	mapper   RelationshipMapper
	entities EntityCatalog
	assocs   AssociationCatalog
	cfg      OntologyServiceConfig
	logger   *zap.Logger
}

// NewOntologyService creates a new OntologyService.
func NewOntologyService(
	repo repositories.OntologyRepository,
	mapper RelationshipMapper,
	entities EntityCatalog,
	assocs AssociationCatalog,
	cfg OntologyServiceConfig,
	logger *zap.Logger,
) OntologyService {
	return &ontologyService{
		repo:     repo,
		mapper:   mapper,
		entities: entities,
		assocs:   assocs,
		cfg:      cfg,
		logger:   logger.Named("ontology"),
	}
}

var _ OntologyService = (*ontologyService)(nil)

// storeError tags a repository failure for structured results.
func storeError(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, apperrors.ErrStore, err)
}

func (s *ontologyService) Refresh(ctx context.Context) (*OntologyRefreshResult, error) {
	start := time.Now()

	var overrides []models.Relationship
	if s.cfg.OverridesFile != "" {
		var err error
		if overrides, err = LoadRelationshipOverrides(s.cfg.OverridesFile); err != nil {
			return nil, err
		}
	}

	if err := s.repo.ClearCache(ctx); err != nil {
		return nil, storeError("clear ontology", err)
	}

	s.entities.ClearCache()
	s.assocs.ClearCache()
	s.mapper.ClearCache()

	for _, o := range overrides {
		if _, err := s.mapper.AddManualRelationship(o); err != nil {
			return nil, err
		}
	}

	rels, err := s.mapper.DiscoverRelationships(s.cfg.MinConfidence)
	if err != nil {
		return nil, err
	}

	inserted, updated, err := s.repo.PersistRelationships(ctx, rels, models.DiscoveryMethodExplicitCSN)
	if err != nil {
		return nil, storeError("persist relationships", err)
	}
	metrics.RelationshipsPersisted.WithLabelValues("inserted").Add(float64(inserted))
	metrics.RelationshipsPersisted.WithLabelValues("updated").Add(float64(updated))

	result := &OntologyRefreshResult{
		Discovered: len(rels),
		Inserted:   inserted,
		Updated:    updated,
		Overrides:  len(overrides),
		Duration:   time.Since(start),
	}

	s.logger.Info("Ontology refreshed",
		zap.Int("discovered", result.Discovered),
		zap.Int("inserted", inserted),
		zap.Int("updated", updated),
		zap.Int("overrides", result.Overrides),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (s *ontologyService) DiscoverRelationships(ctx context.Context, minConfidence float64) ([]*models.Relationship, error) {
	return s.mapper.DiscoverRelationships(minConfidence)
}

func (s *ontologyService) ListRelationships(ctx context.Context, activeOnly bool, table string) ([]*models.Relationship, error) {
	var (
		rels []*models.Relationship
		err  error
	)
	if table != "" {
		rels, err = s.repo.GetRelationshipsForTable(ctx, table)
	} else {
		rels, err = s.repo.GetAllRelationships(ctx, activeOnly)
	}
	if err != nil {
		return nil, storeError("list relationships", err)
	}
	return rels, nil
}

func (s *ontologyService) ActiveRelationships(ctx context.Context) ([]*models.Relationship, error) {
	valid, err := s.repo.IsCacheValid(ctx)
	if err != nil {
		return nil, storeError("check ontology", err)
	}
	if !valid {
		s.logger.Info("Ontology store empty, running discovery")
		if _, err := s.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return s.ListRelationships(ctx, true, "")
}

func (s *ontologyService) AddManualRelationship(ctx context.Context, rel models.Relationship) (*models.Relationship, error) {
	merged, err := s.mapper.AddManualRelationship(rel)
	if err != nil {
		return nil, err
	}
	saved, err := s.repo.AddManualRelationship(ctx, merged)
	if err != nil {
		return nil, storeError("add manual relationship", err)
	}
	s.logger.Info("Manual relationship added",
		zap.String("from", saved.FromEntity+"."+saved.FromColumn),
		zap.String("to", saved.ToEntity+"."+saved.ToColumn))
	return saved, nil
}

func (s *ontologyService) VerifyRelationship(ctx context.Context, id uuid.UUID, notes *string) (*models.Relationship, error) {
	rel, err := s.repo.VerifyRelationship(ctx, id, notes)
	if err != nil {
		return nil, storeError("verify relationship", err)
	}
	return rel, nil
}

func (s *ontologyService) DisableRelationship(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.repo.DisableRelationship(ctx, id)
	if err != nil {
		return false, storeError("disable relationship", err)
	}
	return ok, nil
}

func (s *ontologyService) GetStatistics(ctx context.Context) (*models.OntologyStatistics, error) {
	stats, err := s.repo.GetStatistics(ctx)
	if err != nil {
		return nil, storeError("get ontology statistics", err)
	}
	return stats, nil
}
