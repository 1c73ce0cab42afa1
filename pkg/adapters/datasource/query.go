package datasource

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	sqlpkg "github.com/ekaya-inc/csn-graph/pkg/sql"
)

// PrepareQuery validates that sqlQuery is a single read-only statement and
// returns it normalized. Rejections wrap apperrors.ErrInvalidInput.
func PrepareQuery(sqlQuery string) (string, error) {
	result := sqlpkg.ValidateAndNormalize(sqlQuery)
	if result.Error != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, result.Error)
	}
	return result.NormalizedSQL, nil
}

// ColumnTypeMapper maps a driver type name to the adapter's canonical name.
type ColumnTypeMapper func(databaseTypeName string) string

// CollectSQLRows drains database/sql rows into a QueryExecutionResult using
// sqlx.MapScan. Text columns that the driver returns as []byte are converted
// to string.
func CollectSQLRows(rows *sqlx.Rows, mapType ColumnTypeMapper, isText func(string) bool) (*QueryExecutionResult, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]ColumnInfo, len(columnTypes))
	for i, ct := range columnTypes {
		columns[i] = ColumnInfo{Name: ct.Name(), Type: mapType(ct.DatabaseTypeName())}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		rowMap := make(map[string]any, len(columns))
		if err := rows.MapScan(rowMap); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for _, ct := range columnTypes {
			if b, ok := rowMap[ct.Name()].([]byte); ok && isText(ct.DatabaseTypeName()) {
				rowMap[ct.Name()] = string(b)
			}
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// ScanStrings reads a single-column string result set.
func ScanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate values: %w", err)
	}
	return out, nil
}
