package tools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
)

func requestWith(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestRequireString(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    string
		wantErr bool
	}{
		{"present", map[string]any{"name": "Supplier"}, "Supplier", false},
		{"trimmed", map[string]any{"name": "  Supplier\n"}, "Supplier", false},
		{"blank", map[string]any{"name": "   "}, "", true},
		{"missing", map[string]any{}, "", true},
		{"wrong type", map[string]any{"name": 42.0}, "", true},
		{"no arguments", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := requireString(requestWith(tt.args), "name")
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetOptionalInt(t *testing.T) {
	tests := []struct {
		name        string
		value       any
		want        int
		wantPresent bool
		wantErr     bool
	}{
		{"whole number", 20.0, 20, true, false},
		{"zero", 0.0, 0, true, false},
		{"negative", -3.0, -3, true, false},
		{"fraction", 2.5, 0, false, true},
		{"string", "20", 0, false, true},
		{"null", nil, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, present, err := getOptionalInt(requestWith(map[string]any{"limit": tt.value}), "limit")
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantPresent, present)
		})
	}

	_, present, err := getOptionalInt(requestWith(nil), "limit")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestGetStringSlice(t *testing.T) {
	got, err := getStringSlice(requestWith(map[string]any{"edge_types": []any{"fk", "contains"}}), "edge_types")
	require.NoError(t, err)
	assert.Equal(t, []string{"fk", "contains"}, got)

	got, err = getStringSlice(requestWith(map[string]any{}), "edge_types")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = getStringSlice(requestWith(map[string]any{"edge_types": []any{"fk", 1.0}}), "edge_types")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = getStringSlice(requestWith(map[string]any{"edge_types": "fk"}), "edge_types")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestOptionalScalars(t *testing.T) {
	req := requestWith(map[string]any{"use_cache": false, "min_confidence": 0.8, "filter": " po "})

	b, ok := getOptionalBool(req, "use_cache")
	assert.True(t, ok)
	assert.False(t, b)
	_, ok = getOptionalBool(req, "filter_orphans")
	assert.False(t, ok)

	f, ok := getOptionalFloat(req, "min_confidence")
	assert.True(t, ok)
	assert.Equal(t, 0.8, f)

	assert.Equal(t, "po", getOptionalString(req, "filter"))
	assert.Empty(t, getOptionalString(req, "missing"))
}
