package models

import (
	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
	"github.com/ekaya-inc/csn-graph/pkg/logging"
)

// ResultError is the error half of a structured result.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the envelope returned at every public boundary:
// {"success": true, "data": ...} or {"success": false, "error": {...}}.
type Result struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ResultError `json:"error,omitempty"`
}

// OK wraps data in a successful result.
func OK(data any) Result {
	return Result{Success: true, Data: data}
}

// Fail maps err onto a failed result. Credentials are scrubbed from the message.
func Fail(err error) Result {
	return Result{
		Success: false,
		Error: &ResultError{
			Code:    apperrors.Code(err),
			Message: logging.SanitizeError(err),
		},
	}
}
