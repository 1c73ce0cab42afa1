package datasource

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// OptionsProductsKey is the options key holding an explicit data product list.
const OptionsProductsKey = "products"

// ProductsFromOptions decodes the optional explicit data product list.
// Returns false when none is configured, in which case adapters expose one
// product per user schema.
func ProductsFromOptions(options map[string]any) ([]DataProduct, bool, error) {
	raw, ok := options[OptionsProductsKey]
	if !ok || raw == nil {
		return nil, false, nil
	}

	// Round-trip through YAML so both config-file and JSON-decoded shapes work.
	b, err := yaml.Marshal(raw)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode products option: %w", err)
	}
	var products []DataProduct
	if err := yaml.Unmarshal(b, &products); err != nil {
		return nil, false, fmt.Errorf("invalid products option: %w", err)
	}
	for i, p := range products {
		if p.SchemaName == "" {
			return nil, false, fmt.Errorf("products[%d]: schema is required", i)
		}
		if p.ProductName == "" {
			products[i].ProductName = p.SchemaName
		}
	}
	return products, true, nil
}

// StringOption returns a string option, accepting any scalar.
func StringOption(options map[string]any, key string) string {
	switch v := options[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// IntOption returns an int option or def when absent or unparseable.
func IntOption(options map[string]any, key string, def int) int {
	switch v := options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64: // JSON numbers are float64
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// BoolOption returns a bool option ("true", true are truthy).
func BoolOption(options map[string]any, key string) bool {
	switch v := options[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
	return false
}

// SchemaProducts builds one data product per schema.
func SchemaProducts(schemas []string) []DataProduct {
	products := make([]DataProduct, 0, len(schemas))
	for _, s := range schemas {
		products = append(products, DataProduct{ProductName: s, SchemaName: s, DisplayName: s})
	}
	return products
}
