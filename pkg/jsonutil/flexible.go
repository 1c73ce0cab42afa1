package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling CSN
// annotations that carry numbers or booleans instead of strings. Returns
// empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	// Try string first
	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	// Try number
	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	// Try boolean
	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	// Fallback: return raw string representation
	return string(raw)
}

// FlexibleIntValue reads an integer that may be encoded as a number or a
// numeric string (CSN length/scale). Returns nil when absent or not numeric.
func FlexibleIntValue(raw json.RawMessage) *int {
	s := strings.TrimSpace(FlexibleStringValue(raw))
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

// FlexibleBoolValue reads a boolean that may be encoded as true/false or
// "true"/"false". Anything else is false.
func FlexibleBoolValue(raw json.RawMessage) bool {
	b, err := strconv.ParseBool(FlexibleStringValue(raw))
	return err == nil && b
}

// AnyValue decodes raw into a generic Go value, or nil when it cannot be decoded.
func AnyValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
