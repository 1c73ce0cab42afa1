package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
)

func TestPrepareQuery(t *testing.T) {
	q, err := PrepareQuery(`  SELECT "PurchaseOrder" FROM "po"."PurchaseOrder" LIMIT 20;  `)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "PurchaseOrder" FROM "po"."PurchaseOrder" LIMIT 20`, q)

	_, err = PrepareQuery(`DELETE FROM "po"."PurchaseOrder"`)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = PrepareQuery(`SELECT 1; DROP TABLE x`)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
