package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductsFromOptions(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		products, ok, err := ProductsFromOptions(map[string]any{"host": "db"})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, products)
	})

	t.Run("configured", func(t *testing.T) {
		products, ok, err := ProductsFromOptions(map[string]any{
			"products": []any{
				map[string]any{"name": "Purchasing", "schema": "purchasing", "display_name": "Purchasing"},
				map[string]any{"schema": "sales"},
			},
		})
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, products, 2)
		assert.Equal(t, DataProduct{ProductName: "Purchasing", SchemaName: "purchasing", DisplayName: "Purchasing"}, products[0])
		assert.Equal(t, "sales", products[1].ProductName, "name defaults to schema")
	})

	t.Run("missing schema", func(t *testing.T) {
		_, _, err := ProductsFromOptions(map[string]any{
			"products": []any{map[string]any{"name": "Orphan"}},
		})
		assert.Error(t, err)
	})
}

func TestScalarOptions(t *testing.T) {
	options := map[string]any{
		"host":    "db.internal",
		"port":    float64(5433),
		"timeout": "45",
		"encrypt": "true",
		"trust":   true,
	}

	assert.Equal(t, "db.internal", StringOption(options, "host"))
	assert.Equal(t, "5433", StringOption(options, "port"))
	assert.Equal(t, "", StringOption(options, "missing"))

	assert.Equal(t, 5433, IntOption(options, "port", 0))
	assert.Equal(t, 45, IntOption(options, "timeout", 0))
	assert.Equal(t, 30, IntOption(options, "missing", 30))
	assert.Equal(t, 7, IntOption(map[string]any{"n": "x"}, "n", 7))

	assert.True(t, BoolOption(options, "encrypt"))
	assert.True(t, BoolOption(options, "trust"))
	assert.False(t, BoolOption(options, "host"))
}

func TestPrimaryKeys(t *testing.T) {
	cols := []Column{
		{Name: "CompanyCode", IsPrimaryKey: true},
		{Name: "Amount"},
		{Name: "FiscalYear", IsPrimaryKey: true},
	}
	assert.Equal(t, []string{"CompanyCode", "FiscalYear"}, PrimaryKeys(cols))
	assert.Nil(t, PrimaryKeys(nil))
}
