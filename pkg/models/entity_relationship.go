package models

import (
	"time"

	"github.com/google/uuid"
)

// Discovery methods for relationships.
const (
	DiscoveryMethodExplicitCSN    = "explicit_csn"    // Declared association in CSN
	DiscoveryMethodInferredNaming = "inferred_naming" // Column name matches another entity
	DiscoveryMethodManualOverride = "manual_override" // Added by a user
	DiscoveryMethodManualVerified = "manual_verified" // Confirmed by a user
)

// IsValidDiscoveryMethod checks if the given string is a known discovery method.
func IsValidDiscoveryMethod(s string) bool {
	switch s {
	case DiscoveryMethodExplicitCSN, DiscoveryMethodInferredNaming,
		DiscoveryMethodManualOverride, DiscoveryMethodManualVerified:
		return true
	}
	return false
}

// Relationship types.
const (
	RelationshipTypeForeignKey  = "foreign_key"
	RelationshipTypeComposition = "composition"
	RelationshipTypeAssociation = "association"
)

// Relationship is the fused form of an explicit association, an inferred
// foreign key or a manual override. Stored in graph_schema_edges.
type Relationship struct {
	ID               uuid.UUID     `json:"id"`
	FromEntity       string        `json:"from_entity"`
	FromColumn       string        `json:"from_column"`
	ToEntity         string        `json:"to_entity"`
	ToColumn         string        `json:"to_column"`
	AssociationField string        `json:"association_field,omitempty"` // declaring association, explicit only
	RelationshipType string        `json:"relationship_type"`
	Confidence       float64       `json:"confidence"`
	Inferred         bool          `json:"inferred"`
	DiscoveryMethod  string        `json:"discovery_method"`
	Cardinality      Cardinality   `json:"cardinality,omitempty"`
	Conditions       []OnCondition `json:"conditions,omitempty"`
	IsComposition    bool          `json:"is_composition"`
	IsManyToMany     bool          `json:"is_many_to_many"`
	Notes            *string       `json:"notes,omitempty"`
	IsActive         bool          `json:"is_active"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// RelationshipKey is the identity of a relationship.
type RelationshipKey struct {
	FromEntity string
	FromColumn string
	ToEntity   string
	ToColumn   string
}

// Key returns the identity tuple of r.
func (r *Relationship) Key() RelationshipKey {
	return RelationshipKey{r.FromEntity, r.FromColumn, r.ToEntity, r.ToColumn}
}

// OntologyStatistics summarizes the persisted relationship set.
type OntologyStatistics struct {
	TotalRelationships  int            `json:"total_relationships"`
	ActiveRelationships int            `json:"active_relationships"`
	ByConfidence        map[string]int `json:"by_confidence"`
	ByDiscoveryMethod   map[string]int `json:"by_discovery_method"`
	LastRefresh         *time.Time     `json:"last_refresh,omitempty"`
}

// Confidence bands used by OntologyStatistics.
const (
	ConfidenceBandHigh   = "high"   // >= 0.9
	ConfidenceBandMedium = "medium" // >= 0.7
	ConfidenceBandLow    = "low"
)

// ConfidenceBand buckets a confidence value.
func ConfidenceBand(c float64) string {
	switch {
	case c >= 0.9:
		return ConfidenceBandHigh
	case c >= 0.7:
		return ConfidenceBandMedium
	default:
		return ConfidenceBandLow
	}
}
