package csn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/models"
)

const purchaseOrderCSN = `{
  "definitions": {
    "purchaseorder.PurchaseOrder": {
      "kind": "entity",
      "@EndUserText.label": "Purchase Order",
      "elements": {
        "PurchaseOrder": {"type": "cds.String", "length": 10, "key": true, "@title": "PO Number"},
        "Supplier": {"type": "cds.String", "length": "10", "@Common.Label": "Supplier", "@EndUserText.quickInfo": "Vendor account"},
        "NetAmount": {
          "type": "cds.Decimal", "length": 15, "scale": 2, "notNull": true,
          "@Semantics.amount.currencyCode": {"=": "Currency"},
          "@EndUserText.label": "Net Amount"
        },
        "Currency": {"type": "cds.String", "length": 5, "@Semantics.currencyCode": true},
        "to_Supplier": {
          "type": "cds.Association",
          "target": "supplier.Supplier",
          "cardinality": {"max": 1},
          "on": [{"ref": ["Supplier"]}, "=", {"ref": ["to_Supplier", "Supplier"]}]
        }
      }
    }
  }
}`

const supplierCSN = `[{
  "definitions": {
    "supplier.Supplier": {
      "kind": "entity",
      "elements": {
        "Supplier": {"type": "cds.String", "length": 10, "key": true},
        "SupplierName": {"type": "cds.String", "length": 80}
      }
    },
    "supplier.SupplierType": {"kind": "type", "type": "cds.String"}
  }
}]`

func writeCSN(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestParser(t *testing.T, files map[string]string) *Parser {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		writeCSN(t, dir, name, content)
	}
	store, err := NewFileStore(dir, 0, zap.NewNop())
	require.NoError(t, err)
	return NewParser(store, zap.NewNop())
}

func TestParser_ParseSingleEntity(t *testing.T) {
	p := newTestParser(t, map[string]string{"po.json": purchaseOrderCSN})

	assert.Equal(t, []string{"PurchaseOrder"}, p.ListEntities())

	entity, err := p.GetEntityMetadata("PurchaseOrder")
	require.NoError(t, err)
	require.NotNil(t, entity)

	assert.Equal(t, "purchaseorder.PurchaseOrder", entity.QualifiedName)
	assert.Equal(t, "Purchase Order", entity.Label)
	assert.Equal(t, []string{"PurchaseOrder"}, entity.PrimaryKeys)
	require.Len(t, entity.Associations, 1)

	assoc := entity.Associations[0]
	assert.Equal(t, "PurchaseOrder", assoc.SourceEntity)
	assert.Equal(t, "to_Supplier", assoc.FieldName)
	assert.Equal(t, "Supplier", assoc.TargetEntity)
	assert.Equal(t, models.CardinalityManyToOne, assoc.Cardinality)
	assert.Equal(t, 1.0, assoc.Confidence)
	require.Len(t, assoc.Conditions, 1)
	assert.Equal(t, "Supplier = to_Supplier.Supplier", assoc.Conditions[0].String())
}

func TestParser_ColumnAnnotations(t *testing.T) {
	p := newTestParser(t, map[string]string{"po.json": purchaseOrderCSN})

	names := func() []string {
		entity, err := p.GetEntityMetadata("PurchaseOrder")
		require.NoError(t, err)
		var out []string
		for _, c := range entity.Columns {
			out = append(out, c.Name)
		}
		return out
	}()
	assert.Equal(t, []string{"PurchaseOrder", "Supplier", "NetAmount", "Currency"}, names, "columns keep declaration order")

	key, err := p.GetColumnMetadata("PurchaseOrder", "PurchaseOrder")
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.True(t, key.IsKey)
	assert.False(t, key.Nullable)
	assert.Equal(t, "PO Number", key.Label)
	require.NotNil(t, key.Length)
	assert.Equal(t, 10, *key.Length)

	supplier, err := p.GetColumnMetadata("PurchaseOrder", "Supplier")
	require.NoError(t, err)
	assert.Equal(t, "Supplier", supplier.Label)
	assert.Equal(t, "Vendor account", supplier.Description)
	assert.True(t, supplier.Nullable)
	require.NotNil(t, supplier.Length, "string lengths are accepted")
	assert.Equal(t, 10, *supplier.Length)

	amount, err := p.GetColumnMetadata("PurchaseOrder", "NetAmount")
	require.NoError(t, err)
	assert.Equal(t, "Net Amount", amount.Label)
	assert.Empty(t, amount.SemanticType)
	assert.Equal(t, map[string]string{"amount.currencyCode": "Currency"}, amount.SemanticProperties)
	assert.False(t, amount.Nullable)
	require.NotNil(t, amount.Scale)
	assert.Equal(t, 2, *amount.Scale)
	assert.Contains(t, amount.Annotations, "@Semantics.amount.currencyCode")

	currency, err := p.GetColumnMetadata("PurchaseOrder", "Currency")
	require.NoError(t, err)
	assert.Equal(t, "currencyCode", currency.SemanticType)
	assert.Equal(t, true, currency.Annotations["@Semantics.currencyCode"])
}

func TestParser_MissingEntityAndColumn(t *testing.T) {
	p := newTestParser(t, map[string]string{"po.json": purchaseOrderCSN})

	entity, err := p.GetEntityMetadata("DoesNotExist")
	assert.NoError(t, err)
	assert.Nil(t, entity)

	col, err := p.GetColumnMetadata("PurchaseOrder", "Nope")
	assert.NoError(t, err)
	assert.Nil(t, col)

	col, err = p.GetColumnMetadata("Nope", "Supplier")
	assert.NoError(t, err)
	assert.Nil(t, col)

	assert.Empty(t, p.GetPrimaryKeys("Nope"))
	assert.Empty(t, p.GetForeignKeys("Nope"))
}

func TestParser_ListWrappedDocumentAndNonEntityKinds(t *testing.T) {
	p := newTestParser(t, map[string]string{"supplier.json": supplierCSN})

	assert.Equal(t, []string{"Supplier"}, p.ListEntities())
	assert.Equal(t, []string{"Supplier"}, p.GetPrimaryKeys("supplier.Supplier"))

	entity, err := p.GetEntityMetadata("Supplier")
	require.NoError(t, err)
	assert.Equal(t, "Supplier", entity.Label, "label falls back to the simple name")
}

func TestParser_GetForeignKeys(t *testing.T) {
	p := newTestParser(t, map[string]string{
		"po.json":       purchaseOrderCSN,
		"supplier.json": supplierCSN,
	})

	fks := p.GetForeignKeys("PurchaseOrder")
	require.Len(t, fks, 1)
	assert.Equal(t, models.ForeignKey{
		Column:           "Supplier",
		ReferencesTable:  "Supplier",
		ReferencesColumn: "Supplier",
	}, fks[0])
}

func TestParser_SkipsMalformedFiles(t *testing.T) {
	p := newTestParser(t, map[string]string{
		"a_broken.json": `{"definitions": {`,
		"po.json":       purchaseOrderCSN,
		"notes.txt":     "not csn",
	})

	assert.Equal(t, []string{"PurchaseOrder"}, p.ListEntities())
}

func TestParser_EmptyAndMissingDirectory(t *testing.T) {
	p := newTestParser(t, nil)
	assert.Empty(t, p.ListEntities())
	assert.Empty(t, p.Entities())

	store, err := NewFileStore(filepath.Join(t.TempDir(), "missing"), 4, nil)
	require.NoError(t, err)
	assert.Empty(t, NewParser(store, nil).ListEntities())
}

func TestParser_AssociationWithoutTargetIsSkipped(t *testing.T) {
	p := newTestParser(t, map[string]string{"x.json": `{
	  "definitions": {
	    "ns.Order": {
	      "kind": "entity",
	      "elements": {
	        "ID": {"type": "cds.UUID", "key": true},
	        "to_Nowhere": {"type": "cds.Association"},
	        "to_Customer": {"type": "cds.Association", "target": "ns.Customer", "keys": [{"ref": ["ID"]}]},
	        "Items": {"type": "cds.Composition", "target": "ns.OrderItem", "cardinality": {"max": "*"},
	                  "on": [{"ref": ["Items", "Order"]}, "=", {"ref": ["$self"]}]}
	      }
	    }
	  }
	}`})

	entity, err := p.GetEntityMetadata("Order")
	require.NoError(t, err)
	require.Len(t, entity.Associations, 2)

	assert.Equal(t, "Customer", entity.Associations[0].TargetEntity)
	assert.Equal(t, []string{"ID"}, entity.Associations[0].ForeignKeys)
	assert.False(t, entity.Associations[0].IsComposition)

	items := entity.Associations[1]
	assert.True(t, items.IsComposition)
	assert.Equal(t, models.CardinalityOneToMany, items.Cardinality)
	assert.Equal(t, "Items.Order = $self", items.Conditions[0].String())
}

func TestParser_ClearCache(t *testing.T) {
	dir := t.TempDir()
	writeCSN(t, dir, "po.json", purchaseOrderCSN)
	store, err := NewFileStore(dir, 2, zap.NewNop())
	require.NoError(t, err)
	p := NewParser(store, zap.NewNop())

	assert.Equal(t, []string{"PurchaseOrder"}, p.ListEntities())

	writeCSN(t, dir, "supplier.json", supplierCSN)
	assert.Equal(t, []string{"PurchaseOrder"}, p.ListEntities(), "index is memoized")

	p.ClearCache()
	assert.Equal(t, []string{"PurchaseOrder", "Supplier"}, p.ListEntities())
}

func TestParser_DuplicateSimpleNameKeepsFirst(t *testing.T) {
	p := newTestParser(t, map[string]string{
		"a.json": `{"definitions": {"a.Thing": {"kind": "entity", "elements": {"A": {"type": "cds.String", "key": true}}}}}`,
		"b.json": `{"definitions": {"b.Thing": {"kind": "entity", "elements": {"B": {"type": "cds.String", "key": true}}}}}`,
	})

	assert.Equal(t, []string{"Thing"}, p.ListEntities())
	assert.Equal(t, []string{"A"}, p.GetPrimaryKeys("Thing"))
}
