package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrParse             = errors.New("parse error")
	ErrStore             = errors.New("store error")
	ErrSourceUnavailable = errors.New("data source unavailable")
)

// Error codes reported in structured failure results.
const (
	CodeInvalidInput      = "invalid_input"
	CodeNotFound          = "not_found"
	CodeParseError        = "parse_error"
	CodeStoreError        = "store_error"
	CodeSourceUnavailable = "source_unavailable"
	CodeConflict          = "conflict"
	CodeInternal          = "internal_error"
)

// Code classifies err into one of the structured error codes.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrParse):
		return CodeParseError
	case errors.Is(err, ErrStore):
		return CodeStoreError
	case errors.Is(err, ErrSourceUnavailable):
		return CodeSourceUnavailable
	case errors.Is(err, ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}
