package mssql

import "strings"

// canonicalTypes maps SQL Server type names onto the names the postgres and
// sqlite adapters report, so sampled record properties look alike across sources.
var canonicalTypes = map[string]string{
	"INT":              "INTEGER",
	"DECIMAL":          "NUMERIC",
	"NUMERIC":          "NUMERIC",
	"MONEY":            "MONEY",
	"SMALLMONEY":       "MONEY",
	"FLOAT":            "DOUBLE PRECISION",
	"CHAR":             "CHAR",
	"NCHAR":            "CHAR",
	"VARCHAR":          "VARCHAR",
	"NVARCHAR":         "VARCHAR",
	"TEXT":             "TEXT",
	"NTEXT":            "TEXT",
	"BINARY":           "BYTEA",
	"VARBINARY":        "BYTEA",
	"IMAGE":            "BLOB",
	"DATETIME":         "TIMESTAMP",
	"DATETIME2":        "TIMESTAMP",
	"SMALLDATETIME":    "TIMESTAMP",
	"DATETIMEOFFSET":   "TIMESTAMP WITH TIME ZONE",
	"BIT":              "BOOLEAN",
	"UNIQUEIDENTIFIER": "UUID",
}

// mapSQLServerType returns the canonical name for a SQL Server type.
// Unknown types are returned upper-cased.
func mapSQLServerType(sqlServerType string) string {
	upper := strings.ToUpper(sqlServerType)
	if canonical, ok := canonicalTypes[upper]; ok {
		return canonical
	}
	return upper
}

// isStringType reports whether the driver may hand back the column as []byte text.
func isStringType(sqlType string) bool {
	switch mapSQLServerType(sqlType) {
	case "CHAR", "VARCHAR", "TEXT":
		return true
	}
	return false
}
