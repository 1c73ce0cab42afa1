package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/csn"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// newTestCatalogs writes each CSN document into a temp dir and returns
// parser-backed catalogs over it.
func newTestCatalogs(t *testing.T, docs ...string) (*csn.Parser, *csn.AssociationParser) {
	t.Helper()
	dir := t.TempDir()
	for i, doc := range docs {
		name := filepath.Join(dir, string(rune('a'+i))+".json")
		require.NoError(t, os.WriteFile(name, []byte(doc), 0o644))
	}
	store, err := csn.NewFileStore(dir, 0, zap.NewNop())
	require.NoError(t, err)
	parser := csn.NewParser(store, zap.NewNop())
	return parser, csn.NewAssociationParser(parser, 0, zap.NewNop())
}

func newTestMapper(t *testing.T, docs ...string) RelationshipMapper {
	t.Helper()
	parser, assocs := newTestCatalogs(t, docs...)
	return NewRelationshipMapper(parser, assocs, zap.NewNop())
}

const purchasingCSN = `{
  "definitions": {
    "po.PurchaseOrder": {
      "kind": "entity",
      "elements": {
        "PurchaseOrder": {"type": "cds.String", "length": 10, "key": true},
        "Supplier": {"type": "cds.String", "length": 10}
      }
    },
    "po.PurchaseOrderItem": {
      "kind": "entity",
      "elements": {
        "PurchaseOrderItem": {"type": "cds.String", "key": true},
        "PurchaseOrder": {"type": "cds.String"},
        "Material": {"type": "cds.String"},
        "_PurchaseOrder": {
          "type": "cds.Association", "target": "po.PurchaseOrder", "cardinality": {"max": 1},
          "on": [{"ref": ["PurchaseOrder"]}, "=", {"ref": ["_PurchaseOrder", "PurchaseOrder"]}]
        }
      }
    },
    "md.Supplier": {
      "kind": "entity",
      "elements": {
        "Supplier": {"type": "cds.String", "key": true},
        "Supplier_Name": {"type": "cds.String"}
      }
    },
    "md.Material": {
      "kind": "entity",
      "elements": {
        "MaterialID": {"type": "cds.Integer", "key": true}
      }
    },
    "fi.Invoice": {
      "kind": "entity",
      "elements": {
        "Invoice": {"type": "cds.String", "key": true},
        "Supplier": {"type": "cds.String"},
        "Invoice_Total": {"type": "cds.Decimal"}
      }
    }
  }
}`

func findRelationship(rels []*models.Relationship, from, col, to string) []*models.Relationship {
	var out []*models.Relationship
	for _, r := range rels {
		if r.FromEntity == from && r.FromColumn == col && r.ToEntity == to {
			out = append(out, r)
		}
	}
	return out
}

func TestRelationshipMapper_ExplicitSuppressesInferred(t *testing.T) {
	mapper := newTestMapper(t, purchasingCSN)

	rels, err := mapper.DiscoverRelationships(0)
	require.NoError(t, err)

	var pair []*models.Relationship
	for _, r := range rels {
		if r.FromEntity == "PurchaseOrderItem" && r.ToEntity == "PurchaseOrder" {
			pair = append(pair, r)
		}
	}
	require.Len(t, pair, 1)
	assert.False(t, pair[0].Inferred)
	assert.Equal(t, 1.0, pair[0].Confidence)
	assert.Equal(t, models.DiscoveryMethodExplicitCSN, pair[0].DiscoveryMethod)
	assert.Equal(t, "PurchaseOrder", pair[0].FromColumn)
	assert.Equal(t, "PurchaseOrder", pair[0].ToColumn)
	assert.Equal(t, models.RelationshipTypeForeignKey, pair[0].RelationshipType)
	require.Len(t, pair[0].Conditions, 1)
	assert.Equal(t, "PurchaseOrder = _PurchaseOrder.PurchaseOrder", pair[0].Conditions[0].String())
}

func TestRelationshipMapper_InferredConfidence(t *testing.T) {
	mapper := newTestMapper(t, purchasingCSN)

	rels, err := mapper.DiscoverRelationships(0)
	require.NoError(t, err)

	matches := findRelationship(rels, "Invoice", "Supplier", "Supplier")
	require.Len(t, matches, 1)
	rel := matches[0]
	assert.True(t, rel.Inferred)
	assert.Equal(t, 1.0, rel.Confidence, "0.7 name + 0.2 pk + 0.1 type")
	assert.Equal(t, "Supplier", rel.ToColumn)
	assert.Equal(t, models.DiscoveryMethodInferredNaming, rel.DiscoveryMethod)
	assert.Equal(t, models.CardinalityManyToOne, rel.Cardinality)
}

func TestRelationshipMapper_InferredPartialScores(t *testing.T) {
	mapper := newTestMapper(t, purchasingCSN)

	rels, err := mapper.DiscoverRelationships(0)
	require.NoError(t, err)

	// Material column matches entity name only; target PK is MaterialID (Integer)
	matches := findRelationship(rels, "PurchaseOrderItem", "Material", "Material")
	require.Len(t, matches, 1)
	assert.Equal(t, 0.7, matches[0].Confidence)
	assert.Equal(t, "MaterialID", matches[0].ToColumn)

	for _, r := range rels {
		assert.GreaterOrEqual(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 1.0)
	}
}

func TestRelationshipMapper_NeverEmitsInferredSelfReference(t *testing.T) {
	mapper := newTestMapper(t, `{"definitions": {
	  "hr.Employee": {"kind": "entity", "elements": {
	    "ID": {"type": "cds.String", "key": true},
	    "Employee": {"type": "cds.String"}
	  }}
	}}`)

	rels, err := mapper.DiscoverRelationships(0)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestRelationshipMapper_MinConfidenceAndOrdering(t *testing.T) {
	mapper := newTestMapper(t, purchasingCSN)

	all, err := mapper.DiscoverRelationships(0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Confidence, all[i].Confidence)
	}

	high, err := mapper.DiscoverRelationships(0.9)
	require.NoError(t, err)
	assert.Len(t, high, 3)
	for _, r := range high {
		assert.GreaterOrEqual(t, r.Confidence, 0.9)
	}

	_, err = mapper.DiscoverRelationships(1.5)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

const salesCSN = `{
  "definitions": {
    "sales.Order": {
      "kind": "entity",
      "elements": {
        "Order": {"type": "cds.String", "key": true},
        "Customer": {"type": "cds.String"},
        "to_Customer": {"type": "cds.Association", "target": "sales.Customer", "keys": [{"ref": ["Customer"]}]},
        "_Items": {"type": "cds.Composition", "target": "sales.OrderProduct", "cardinality": {"max": "*"}}
      }
    },
    "sales.Product": {
      "kind": "entity",
      "elements": {"Product": {"type": "cds.String", "key": true}}
    },
    "sales.Customer": {
      "kind": "entity",
      "elements": {
        "Customer": {"type": "cds.String", "key": true},
        "Supplier": {"type": "cds.String"}
      }
    },
    "sales.OrderProduct": {
      "kind": "entity",
      "elements": {
        "ID": {"type": "cds.UUID", "key": true},
        "to_Order": {"type": "cds.Association", "target": "sales.Order"},
        "to_Product": {"type": "cds.Association", "target": "sales.Product"}
      }
    }
  }
}`

func TestRelationshipMapper_ExplicitRelationshipsTraceToAssociations(t *testing.T) {
	parser, assocs := newTestCatalogs(t, purchasingCSN, salesCSN)
	mapper := NewRelationshipMapper(parser, assocs, zap.NewNop())

	rels, err := mapper.DiscoverRelationships(0)
	require.NoError(t, err)
	require.NotEmpty(t, rels)

	type declared struct{ source, field, target string }
	known := make(map[declared]bool)
	for _, a := range assocs.ParseAllAssociations() {
		known[declared{models.SimpleName(a.SourceEntity), a.FieldName, models.SimpleName(a.TargetEntity)}] = true
	}

	explicit := 0
	for _, r := range rels {
		assert.GreaterOrEqual(t, r.Confidence, 0.0, "%s.%s", r.FromEntity, r.FromColumn)
		assert.LessOrEqual(t, r.Confidence, 1.0, "%s.%s", r.FromEntity, r.FromColumn)
		if r.Inferred {
			assert.Empty(t, r.AssociationField)
			continue
		}
		explicit++
		require.NotEmpty(t, r.AssociationField, "%s.%s", r.FromEntity, r.FromColumn)
		assert.True(t, known[declared{r.FromEntity, r.AssociationField, r.ToEntity}],
			"no association %s.%s -> %s", r.FromEntity, r.AssociationField, r.ToEntity)
	}
	assert.GreaterOrEqual(t, explicit, 5)

	pair := findRelationship(rels, "PurchaseOrderItem", "PurchaseOrder", "PurchaseOrder")
	require.Len(t, pair, 1)
	assert.Equal(t, "_PurchaseOrder", pair[0].AssociationField)
}

func TestRelationshipMapper_ManualRelationships(t *testing.T) {
	mapper := newTestMapper(t, purchasingCSN)

	before, err := mapper.DiscoverRelationships(0)
	require.NoError(t, err)

	manual, err := mapper.AddManualRelationship(models.Relationship{
		FromEntity: "Invoice",
		FromColumn: "PurchaseOrder",
		ToEntity:   "PurchaseOrder",
		ToColumn:   "PurchaseOrder",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DiscoveryMethodManualOverride, manual.DiscoveryMethod)
	assert.Equal(t, 1.0, manual.Confidence)
	assert.False(t, manual.Inferred)

	after, err := mapper.DiscoverRelationships(0)
	require.NoError(t, err)
	assert.Len(t, after, len(before)+1)
	assert.Len(t, findRelationship(after, "Invoice", "PurchaseOrder", "PurchaseOrder"), 1)

	// Overriding an inferred relationship replaces it in place
	_, err = mapper.AddManualRelationship(models.Relationship{
		FromEntity: "PurchaseOrderItem",
		FromColumn: "Material",
		ToEntity:   "Material",
		ToColumn:   "MaterialID",
	})
	require.NoError(t, err)
	after, err = mapper.DiscoverRelationships(0)
	require.NoError(t, err)
	matches := findRelationship(after, "PurchaseOrderItem", "Material", "Material")
	require.Len(t, matches, 1)
	assert.Equal(t, models.DiscoveryMethodManualOverride, matches[0].DiscoveryMethod)
	assert.Equal(t, 1.0, matches[0].Confidence)

	_, err = mapper.AddManualRelationship(models.Relationship{FromEntity: "Invoice"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRelationshipMapper_MemoizedUntilClearCache(t *testing.T) {
	parser, assocs := newTestCatalogs(t, purchasingCSN)
	mapper := NewRelationshipMapper(parser, assocs, zap.NewNop())

	first, err := mapper.DiscoverRelationships(0)
	require.NoError(t, err)

	// Returned slices are copies
	first[0].Confidence = 0.01

	second, err := mapper.DiscoverRelationships(0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, second[0].Confidence)

	mapper.ClearCache()
	third, err := mapper.DiscoverRelationships(0)
	require.NoError(t, err)
	assert.Len(t, third, len(second))
}

func TestRelationshipMapper_NamespaceNormalization(t *testing.T) {
	mapper := newTestMapper(t, `{"definitions": {
	  "a.b.Header": {"kind": "entity", "elements": {
	    "ID": {"type": "cds.String", "key": true},
	    "_Partner": {"type": "cds.Association", "target": "com.sap.partner.BusinessPartner", "keys": [{"ref": ["ID"]}]}
	  }}
	}}`)

	rels, err := mapper.DiscoverRelationships(0)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "Header", rels[0].FromEntity)
	assert.Equal(t, "BusinessPartner", rels[0].ToEntity)
}
