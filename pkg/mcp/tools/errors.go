package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/models"
)

// NewResult renders a structured result as tool output. Failed results are
// flagged IsError so clients surface them, but the JSON body is always the
// {"success": ..., "error": {...}} envelope.
func NewResult(res models.Result) *mcp.CallToolResult {
	body, err := json.Marshal(res)
	if err != nil {
		body, _ = json.Marshal(models.Result{
			Error: &models.ResultError{Code: apperrors.CodeInternal, Message: "failed to encode result: " + err.Error()},
		})
		res.Success = false
	}
	result := mcp.NewToolResultText(string(body))
	result.IsError = !res.Success
	return result
}

// NewErrorResult creates a failed result with an explicit code.
//
// Example:
//
//	if key == "" {
//	    return NewErrorResult("invalid_input", "parameter 'node_key' cannot be empty"), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewResult(models.Result{Error: &models.ResultError{Code: code, Message: message}})
}

// NewFailureResult classifies err and renders it as a failed result.
func NewFailureResult(err error) *mcp.CallToolResult {
	return NewResult(models.Fail(err))
}
