package csn

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// DefaultBridgeThreshold is the share of an entity's fields that must be
// associations before it is treated as a join table.
const DefaultBridgeThreshold = 0.5

// AssociationParser extracts associations from every parsed entity and
// classifies many-to-many bridges. Results are memoized until ClearCache.
type AssociationParser struct {
	parser          *Parser
	bridgeThreshold float64
	logger          *zap.Logger

	mu           sync.Mutex
	associations []models.Association
	pairs        []models.ManyToManyPair
	parsed       bool
}

// NewAssociationParser creates an AssociationParser. A threshold outside
// (0, 1) falls back to DefaultBridgeThreshold.
func NewAssociationParser(parser *Parser, bridgeThreshold float64, logger *zap.Logger) *AssociationParser {
	if bridgeThreshold <= 0 || bridgeThreshold >= 1 {
		bridgeThreshold = DefaultBridgeThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssociationParser{
		parser:          parser,
		bridgeThreshold: bridgeThreshold,
		logger:          logger.Named("csn-associations"),
	}
}

// ClearCache drops memoized associations. The underlying Parser is not reset.
func (a *AssociationParser) ClearCache() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.associations = nil
	a.pairs = nil
	a.parsed = false
}

// ParseAllAssociations returns every association of the corpus with
// many-to-many flags applied.
func (a *AssociationParser) ParseAllAssociations() []models.Association {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ensureParsedLocked()
	return append([]models.Association(nil), a.associations...)
}

// FindManyToManyRelationships returns one pair per unordered combination of
// associations leaving a bridge entity.
func (a *AssociationParser) FindManyToManyRelationships() []models.ManyToManyPair {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ensureParsedLocked()
	return append([]models.ManyToManyPair(nil), a.pairs...)
}

// GetCardinalityStatistics counts associations per cardinality.
func (a *AssociationParser) GetCardinalityStatistics() map[models.Cardinality]int {
	stats := make(map[models.Cardinality]int)
	for _, assoc := range a.ParseAllAssociations() {
		stats[assoc.Cardinality]++
	}
	return stats
}

func (a *AssociationParser) ensureParsedLocked() {
	if a.parsed {
		return
	}

	var all []models.Association
	var pairs []models.ManyToManyPair

	for _, entity := range a.parser.Entities() {
		if len(entity.Associations) == 0 {
			continue
		}

		assocs := append([]models.Association(nil), entity.Associations...)
		if a.isBridge(entity) {
			for i := range assocs {
				assocs[i].IsManyToMany = true
			}
			for i := 0; i < len(assocs); i++ {
				for j := i + 1; j < len(assocs); j++ {
					pairs = append(pairs, models.ManyToManyPair{
						Bridge: entity.Name,
						A:      assocs[i],
						B:      assocs[j],
					})
				}
			}
			a.logger.Debug("Detected bridge entity",
				zap.String("entity", entity.Name),
				zap.Int("associations", len(assocs)))
		}
		all = append(all, assocs...)
	}

	a.associations = all
	a.pairs = pairs
	a.parsed = true

	a.logger.Info("Parsed associations",
		zap.Int("associations", len(all)),
		zap.Int("many_to_many_pairs", len(pairs)))
}

// isBridge reports whether entity has at least two associations and those
// associations make up more than the threshold share of its fields. Columns
// that only realize one of the associations (managed keys or ON-clause
// columns) are not counted as separate fields.
func (a *AssociationParser) isBridge(entity *models.Entity) bool {
	if len(entity.Associations) < 2 {
		return false
	}

	fkColumns := make(map[string]bool)
	for _, assoc := range entity.Associations {
		for _, fk := range AssociationForeignKeys(assoc, nil) {
			if fk.Column != assoc.FieldName {
				fkColumns[fk.Column] = true
			}
		}
	}

	fields := len(entity.Associations)
	for _, col := range entity.Columns {
		if !fkColumns[col.Name] {
			fields++
		}
	}

	return float64(len(entity.Associations))/float64(fields) > a.bridgeThreshold
}
