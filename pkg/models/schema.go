package models

import "strings"

// EntityKind is the only CSN definition kind the parser indexes.
const EntityKind = "entity"

// Cardinality describes the multiplicity of an association.
type Cardinality string

const (
	CardinalityOneToOne   Cardinality = "one_to_one"
	CardinalityOneToMany  Cardinality = "one_to_many"
	CardinalityManyToOne  Cardinality = "many_to_one"
	CardinalityManyToMany Cardinality = "many_to_many"
)

// Short returns the compact notation used in edge labels ("1:1", "1:n", "n:1", "n:n").
func (c Cardinality) Short() string {
	switch c {
	case CardinalityOneToOne:
		return "1:1"
	case CardinalityOneToMany:
		return "1:n"
	case CardinalityManyToOne:
		return "n:1"
	case CardinalityManyToMany:
		return "n:n"
	default:
		return ""
	}
}

// IsValidCardinality checks if the given string is a known cardinality.
func IsValidCardinality(s string) bool {
	switch Cardinality(s) {
	case CardinalityOneToOne, CardinalityOneToMany, CardinalityManyToOne, CardinalityManyToMany:
		return true
	}
	return false
}

// Entity is a single business object parsed from a CSN definition.
type Entity struct {
	QualifiedName string        `json:"qualified_name"`
	Name          string        `json:"name"`
	Kind          string        `json:"kind"`
	Label         string        `json:"label,omitempty"`
	SourceFile    string        `json:"source_file,omitempty"`
	Columns       []Column      `json:"columns"`
	PrimaryKeys   []string      `json:"primary_keys"`
	Associations  []Association `json:"associations"`
}

// Column returns the named column, or nil.
func (e *Entity) Column(name string) *Column {
	for i := range e.Columns {
		if e.Columns[i].Name == name {
			return &e.Columns[i]
		}
	}
	return nil
}

// IsPrimaryKey reports whether name is one of the entity's key columns.
func (e *Entity) IsPrimaryKey(name string) bool {
	for _, pk := range e.PrimaryKeys {
		if pk == name {
			return true
		}
	}
	return false
}

// FieldCount is the number of columns plus associations.
func (e *Entity) FieldCount() int {
	return len(e.Columns) + len(e.Associations)
}

// Column is a scalar element of a CSN entity.
type Column struct {
	Name               string            `json:"name"`
	Type               string            `json:"type"`
	Length             *int              `json:"length,omitempty"`
	Scale              *int              `json:"scale,omitempty"`
	IsKey              bool              `json:"is_key"`
	Nullable           bool              `json:"nullable"`
	Label              string            `json:"label,omitempty"`
	Description        string            `json:"description,omitempty"`
	SemanticType       string            `json:"semantic_type,omitempty"`
	SemanticProperties map[string]string `json:"semantic_properties,omitempty"`
	Annotations        map[string]any    `json:"annotations,omitempty"`
}

// OnCondition is one (left, operator, right) triple of an association ON-clause.
type OnCondition struct {
	Left     string `json:"left"`
	Operator string `json:"operator"`
	Right    string `json:"right"`
}

func (c OnCondition) String() string {
	return c.Left + " " + c.Operator + " " + c.Right
}

// SummarizeConditions renders conditions as "a = b AND c = d".
func SummarizeConditions(conds []OnCondition) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}

// Association is a navigable link declared on a CSN entity.
type Association struct {
	SourceEntity  string        `json:"source_entity"`
	FieldName     string        `json:"field_name"`
	TargetEntity  string        `json:"target_entity"`
	Cardinality   Cardinality   `json:"cardinality"`
	Conditions    []OnCondition `json:"conditions,omitempty"`
	ForeignKeys   []string      `json:"foreign_keys,omitempty"`
	IsComposition bool          `json:"is_composition"`
	IsManyToMany  bool          `json:"is_many_to_many"`
	Confidence    float64       `json:"confidence"`
}

// ForeignKey is a column reference derived from a many-to-one association.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencesTable  string `json:"references_table"`
	ReferencesColumn string `json:"references_column"`
}

// ManyToManyPair links two associations that leave the same bridge entity.
type ManyToManyPair struct {
	Bridge string      `json:"bridge"`
	A      Association `json:"a"`
	B      Association `json:"b"`
}

// EntityConnectivity counts associations touching one entity.
type EntityConnectivity struct {
	Entity   string `json:"entity"`
	Outgoing int    `json:"outgoing"`
	Incoming int    `json:"incoming"`
}

// ComplexityMetrics summarizes the association graph of a CSN corpus.
type ComplexityMetrics struct {
	TotalEntities              int                  `json:"total_entities"`
	EntitiesWithAssociations   int                  `json:"entities_with_associations"`
	TotalAssociations          int                  `json:"total_associations"`
	AvgAssociationsPerEntity   float64              `json:"avg_associations_per_entity"`
	MaxAssociationsPerEntity   int                  `json:"max_associations_per_entity"`
	CompositionCount           int                  `json:"composition_count"`
	ManyToManyCount            int                  `json:"many_to_many_count"`
	AssociationsWithConditions int                  `json:"associations_with_conditions"`
	ConnectedComponents        int                  `json:"connected_components"`
	CyclicGroups               int                  `json:"cyclic_groups"`
	MostConnected              []EntityConnectivity `json:"most_connected"`
}

// SimpleName strips any namespace prefix from a CSN name.
func SimpleName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
