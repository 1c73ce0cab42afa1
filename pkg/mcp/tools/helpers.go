package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
)

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// requireString extracts a required, non-blank string argument.
func requireString(req mcp.CallToolRequest, key string) (string, error) {
	val, ok := arguments(req)[key].(string)
	val = strings.TrimSpace(val)
	if !ok || val == "" {
		return "", fmt.Errorf("parameter '%s' is required: %w", key, apperrors.ErrInvalidInput)
	}
	return val, nil
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return strings.TrimSpace(val)
}

// getOptionalFloat extracts an optional float argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	val, ok := arguments(req)[key].(float64)
	return val, ok
}

// getOptionalInt extracts an optional integer argument. JSON numbers arrive
// as float64; fractional values are rejected.
func getOptionalInt(req mcp.CallToolRequest, key string) (int, bool, error) {
	raw, present := arguments(req)[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	f, ok := raw.(float64)
	if !ok || f != float64(int(f)) {
		return 0, false, fmt.Errorf("parameter '%s' must be an integer: %w", key, apperrors.ErrInvalidInput)
	}
	return int(f), true, nil
}

// getOptionalBool extracts an optional boolean parameter from the request.
func getOptionalBool(req mcp.CallToolRequest, key string) (bool, bool) {
	val, ok := arguments(req)[key].(bool)
	return val, ok
}

// getStringSlice extracts an optional array of strings.
func getStringSlice(req mcp.CallToolRequest, key string) ([]string, error) {
	raw, present := arguments(req)[key]
	if !present || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("parameter '%s' must be an array of strings: %w", key, apperrors.ErrInvalidInput)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("parameter '%s' must be an array of strings: %w", key, apperrors.ErrInvalidInput)
		}
		out = append(out, s)
	}
	return out, nil
}
