package sql

import (
	"fmt"
	"strings"
	"unicode"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on an identifier.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Kind        string // schema, table or column
	Value       string // The identifier that was checked
}

func (r *InjectionCheckResult) Error() string {
	if r.Fingerprint != "" {
		return fmt.Sprintf("suspicious %s identifier %q (fingerprint %s)", r.Kind, r.Value, r.Fingerprint)
	}
	return fmt.Sprintf("invalid %s identifier %q", r.Kind, r.Value)
}

// rejectedChars cannot appear in an identifier: quote characters of every
// supported dialect, statement terminators and NUL.
const rejectedChars = "\"`[]';\x00"

// CheckIdentifierForInjection screens a schema, table or column name before it is
// placed in a sampling query. Names come from CSN files and data source catalogs,
// neither of which is trusted.
//
// Returns nil when the identifier is clean.
func CheckIdentifierForInjection(kind, name string) *InjectionCheckResult {
	if name == "" || strings.ContainsAny(name, rejectedChars) || strings.Contains(name, "--") {
		return &InjectionCheckResult{IsSQLi: true, Kind: kind, Value: name}
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return &InjectionCheckResult{IsSQLi: true, Kind: kind, Value: name}
		}
	}

	isSQLi, fingerprint := libinjection.IsSQLi(name)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Kind:        kind,
			Value:       name,
		}
	}

	return nil
}

// CheckIdentifiers validates every identifier of kind and returns the failures.
// Returns an empty slice if all identifiers are clean.
func CheckIdentifiers(kind string, names ...string) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for _, name := range names {
		if result := CheckIdentifierForInjection(kind, name); result != nil {
			results = append(results, result)
		}
	}
	return results
}
