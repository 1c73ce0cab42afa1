package sqlite

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/csn-graph/pkg/adapters/datasource"
)

// GetDataProducts returns the configured products or a single product for the main schema.
func (a *Adapter) GetDataProducts(ctx context.Context) ([]datasource.DataProduct, error) {
	if a.products != nil {
		return a.products, nil
	}
	return datasource.SchemaProducts([]string{MainSchema}), nil
}

// GetTables lists user tables. Only the main schema is supported.
func (a *Adapter) GetTables(ctx context.Context, schemaName string) ([]datasource.Table, error) {
	if schemaName != MainSchema {
		return nil, nil
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	names, err := datasource.ScanStrings(rows)
	if err != nil {
		return nil, err
	}

	tables := make([]datasource.Table, 0, len(names))
	for _, name := range names {
		t := datasource.Table{Schema: MainSchema, Name: name}
		if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(name)).Scan(&t.RowCount); err != nil {
			return nil, fmt.Errorf("count rows of %s: %w", name, err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

type tableInfoRow struct {
	CID       int     `db:"cid"`
	Name      string  `db:"name"`
	Type      string  `db:"type"`
	NotNull   int     `db:"notnull"`
	DfltValue *string `db:"dflt_value"`
	PK        int     `db:"pk"`
}

// GetTableStructure reads PRAGMA table_info. pk > 0 marks primary key members.
func (a *Adapter) GetTableStructure(ctx context.Context, schemaName, tableName string) ([]datasource.Column, error) {
	if schemaName != MainSchema {
		return nil, nil
	}

	var info []tableInfoRow
	if err := a.db.SelectContext(ctx, &info, "PRAGMA table_info("+quoteIdent(tableName)+")"); err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	columns := make([]datasource.Column, 0, len(info))
	for _, r := range info {
		columns = append(columns, datasource.Column{
			Name:            r.Name,
			DataType:        r.Type,
			IsNullable:      r.NotNull == 0 && r.PK == 0,
			IsPrimaryKey:    r.PK > 0,
			OrdinalPosition: r.CID + 1,
		})
	}
	return columns, nil
}
