package csn

import (
	"encoding/json"
	"strings"

	"github.com/ekaya-inc/csn-graph/pkg/jsonutil"
)

var (
	labelAnnotations       = []string{"@title", "@Common.Label", "@EndUserText.label"}
	descriptionAnnotations = []string{"@EndUserText.quickInfo", "@Common.QuickInfo"}
)

const semanticsPrefix = "@Semantics."

// annotations holds the @-prefixed keys of one CSN element or definition.
type annotations struct {
	keys []string
	raw  map[string]json.RawMessage
}

func collectAnnotations(keys []string, fields map[string]json.RawMessage) annotations {
	a := annotations{raw: make(map[string]json.RawMessage)}
	for _, k := range keys {
		if strings.HasPrefix(k, "@") {
			a.keys = append(a.keys, k)
			a.raw[k] = fields[k]
		}
	}
	return a
}

// firstString returns the first non-empty value among names.
func (a annotations) firstString(names []string) string {
	for _, name := range names {
		if v := strings.TrimSpace(jsonutil.FlexibleStringValue(a.raw[name])); v != "" {
			return v
		}
	}
	return ""
}

func (a annotations) label() string {
	return a.firstString(labelAnnotations)
}

func (a annotations) description() string {
	return a.firstString(descriptionAnnotations)
}

// semantics splits @Semantics.<x> into a semantic type and
// @Semantics.<x>.<y> into properties keyed "<x>.<y>".
func (a annotations) semantics() (string, map[string]string) {
	var semanticType string
	var props map[string]string

	for _, k := range a.keys {
		if !strings.HasPrefix(k, semanticsPrefix) {
			continue
		}
		rest := strings.TrimPrefix(k, semanticsPrefix)
		if rest == "" {
			continue
		}
		if !strings.Contains(rest, ".") {
			if semanticType == "" {
				semanticType = rest
			}
			continue
		}
		if props == nil {
			props = make(map[string]string)
		}
		props[rest] = semanticValue(a.raw[k])
	}

	return semanticType, props
}

// semanticValue unwraps {"=": "Element"} references and scalars.
func semanticValue(raw json.RawMessage) string {
	var ref map[string]json.RawMessage
	if err := json.Unmarshal(raw, &ref); err == nil {
		if v, ok := ref["="]; ok {
			return jsonutil.FlexibleStringValue(v)
		}
	}
	return jsonutil.FlexibleStringValue(raw)
}

// values decodes every annotation into plain Go values.
func (a annotations) values() map[string]any {
	if len(a.keys) == 0 {
		return nil
	}
	out := make(map[string]any, len(a.keys))
	for _, k := range a.keys {
		out[k] = jsonutil.AnyValue(a.raw[k])
	}
	return out
}
