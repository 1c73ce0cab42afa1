// Package sql guards the SQL the graph builder sends to external data sources.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrNotReadOnly indicates the query is not a SELECT.
	ErrNotReadOnly = errors.New("only SELECT statements may be executed against a data source")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize checks that SQL is a single read-only statement and
// strips the trailing semicolon.
//
// The validation order is:
// 1. Strip trailing semicolon and whitespace (normalize)
// 2. Check for multiple statements (any remaining semicolons outside string literals)
// 3. Require a leading SELECT or WITH keyword
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)

	if sqlQuery == "" {
		return ValidationResult{NormalizedSQL: sqlQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)

	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}

	if !isReadOnly(normalized) {
		return ValidationResult{Error: ErrNotReadOnly}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

func isReadOnly(sqlQuery string) bool {
	fields := strings.Fields(sqlQuery)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH":
		return true
	}
	return false
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of string literals or quoted identifiers.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBracket
	)

	state := stateNormal

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			case '[':
				state = stateBracket
			}
		case stateSingleQuote:
			// A doubled quote ('') exits and immediately re-enters
			if char == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' {
				state = stateNormal
			}
		case stateBracket:
			if char == ']' {
				state = stateNormal
			}
		}
	}

	return false
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")

	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}

	return sqlQuery
}
