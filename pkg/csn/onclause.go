package csn

import (
	"encoding/json"
	"strings"

	"github.com/ekaya-inc/csn-graph/pkg/jsonutil"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

type onToken struct {
	text    string
	operand bool
}

// ParseOnClause flattens a CSN "on" array into (ref, operator, ref) triples.
// Logical connectives and parentheses between triples are skipped.
func ParseOnClause(items []json.RawMessage) []models.OnCondition {
	tokens := flattenOn(items, nil)

	var conds []models.OnCondition
	var pending []string

	for _, tok := range tokens {
		if !tok.operand {
			if len(pending) == 1 {
				pending = append(pending, tok.text)
			}
			// connective, parenthesis or stray keyword
			continue
		}
		if len(pending) == 2 {
			conds = append(conds, models.OnCondition{
				Left:     pending[0],
				Operator: pending[1],
				Right:    tok.text,
			})
			pending = nil
			continue
		}
		pending = []string{tok.text}
	}

	return conds
}

func flattenOn(items []json.RawMessage, out []onToken) []onToken {
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, onToken{text: s})
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}

		if xpr, ok := obj["xpr"]; ok {
			var nested []json.RawMessage
			if err := json.Unmarshal(xpr, &nested); err == nil {
				out = flattenOn(nested, out)
			}
			continue
		}

		if text, ok := operandText(obj); ok {
			out = append(out, onToken{text: text, operand: true})
		}
	}
	return out
}

func operandText(obj map[string]json.RawMessage) (string, bool) {
	if raw, ok := obj["ref"]; ok {
		var ref []json.RawMessage
		if err := json.Unmarshal(raw, &ref); err == nil && len(ref) > 0 {
			return joinRef(ref), true
		}
	}
	if raw, ok := obj["val"]; ok {
		return jsonutil.FlexibleStringValue(raw), true
	}
	if raw, ok := obj["#"]; ok {
		return "#" + jsonutil.FlexibleStringValue(raw), true
	}
	return "", false
}

// joinRef joins ref segments with ".". Segments may be plain strings or
// objects carrying an "id" (path steps with filters).
func joinRef(ref []json.RawMessage) string {
	parts := make([]string, 0, len(ref))
	for _, seg := range ref {
		if s := refSegment(seg); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ".")
}

func refSegment(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var step struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &step); err == nil {
		return step.ID
	}
	return ""
}
