// Package errors provides the typed error taxonomy for the Finanzas SD core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error codes
const (
	CodeNotFound         = "NOT_FOUND"
	CodeCollision        = "BASELINE_COLLISION"
	CodeValidation       = "VALIDATION_FAILED"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
)

// FinError is a structured error with code, severity and resource context.
type FinError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	ResourceID  string   `json:"resource_id,omitempty"`
	Recoverable bool     `json:"recoverable"`
	cause       error
}

func (e *FinError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("[%s] %s: %s (resource: %s)", e.Severity, e.Code, e.Message, e.ResourceID)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

func (e *FinError) Unwrap() error {
	return e.cause
}

// NewNotFound creates an error for identifiers or records that cannot be resolved.
func NewNotFound(message, resourceID string) *FinError {
	return &FinError{
		Code:       CodeNotFound,
		Message:    message,
		Severity:   SeverityError,
		ResourceID: resourceID,
	}
}

// NewCollision creates an error for a write that would violate baseline isolation.
func NewCollision(message, resourceID string) *FinError {
	return &FinError{
		Code:       CodeCollision,
		Message:    message,
		Severity:   SeverityError,
		ResourceID: resourceID,
	}
}

// NewValidation creates an error for a malformed estimate line or request.
func NewValidation(message, resourceID string) *FinError {
	return &FinError{
		Code:       CodeValidation,
		Message:    message,
		Severity:   SeverityWarning,
		ResourceID: resourceID,
	}
}

// NewStoreUnavailable wraps a backing-store I/O failure. Always retryable by the caller;
// the core never retries internally.
func NewStoreUnavailable(message string, cause error) *FinError {
	return &FinError{
		Code:        CodeStoreUnavailable,
		Message:     message,
		Severity:    SeverityError,
		Recoverable: true,
		cause:       cause,
	}
}

// CodeOf returns the FinError code carried by err (unwrapping as needed),
// or "" when err is not a FinError.
func CodeOf(err error) string {
	var fe *FinError
	if stderrors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

func IsNotFound(err error) bool         { return CodeOf(err) == CodeNotFound }
func IsCollision(err error) bool        { return CodeOf(err) == CodeCollision }
func IsValidation(err error) bool       { return CodeOf(err) == CodeValidation }
func IsStoreUnavailable(err error) bool { return CodeOf(err) == CodeStoreUnavailable }
