package csn

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantKeys  []string
		wantParse bool
	}{
		{name: "object", input: `{"definitions": {"a.A": {}, "b.B": {}}}`, wantKeys: []string{"a.A", "b.B"}},
		{name: "wrapped list", input: `[{"definitions": {"z.Z": {}, "a.A": {}}}]`, wantKeys: []string{"z.Z", "a.A"}},
		{name: "empty list", input: `[]`, wantKeys: nil},
		{name: "no definitions", input: `{"$version": "2.0"}`, wantKeys: nil},
		{name: "truncated", input: `{"definitions": {`, wantParse: true},
		{name: "empty", input: ``, wantParse: true},
		{name: "scalar", input: `"csn"`, wantParse: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Decode([]byte(tt.input))
			if tt.wantParse {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperrors.ErrParse))
				return
			}
			require.NoError(t, err)

			var keys []string
			for pair := doc.Definitions.Oldest(); pair != nil; pair = pair.Next() {
				keys = append(keys, pair.Key)
			}
			assert.Equal(t, tt.wantKeys, keys, "definition order is preserved")
		})
	}
}

func TestFileStore_LoadCachesDocuments(t *testing.T) {
	dir := t.TempDir()
	writeCSN(t, dir, "po.json", purchaseOrderCSN)

	store, err := NewFileStore(dir, 1, zap.NewNop())
	require.NoError(t, err)

	path := filepath.Join(dir, "po.json")
	first, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, first.Path)

	// Overwrite on disk; the cached copy is still served
	writeCSN(t, dir, "po.json", supplierCSN)
	second, err := store.Load(path)
	require.NoError(t, err)
	assert.Same(t, first, second)

	store.ClearCache()
	third, err := store.Load(path)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	_, ok := third.Definitions.Get("supplier.Supplier")
	assert.True(t, ok)
}

func TestFileStore_LoadMalformed(t *testing.T) {
	dir := t.TempDir()
	writeCSN(t, dir, "bad.json", `{"definitions": [`)

	store, err := NewFileStore(dir, 0, nil)
	require.NoError(t, err)

	_, err = store.Load(filepath.Join(dir, "bad.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrParse)
}

func TestFileStore_Files(t *testing.T) {
	dir := t.TempDir()
	writeCSN(t, dir, "b.json", `{}`)
	writeCSN(t, dir, "a.JSON", `{}`)
	writeCSN(t, dir, "readme.md", `# csn`)

	store, err := NewFileStore(dir, 0, nil)
	require.NoError(t, err)

	files, err := store.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.JSON"), filepath.Join(dir, "b.json")}, files)
}
