package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by every storage backend when a lookup misses
var ErrNotFound = errors.New("not found")

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrDatabaseError  = "DATABASE_ERROR"
	ErrNotFoundCode   = "NOT_FOUND"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
	ErrValidation     = "VALIDATION_ERROR"
)

// OperationError is returned at the service boundary. Its message is the
// generic "failed to <op>" text shown to users; the cause stays reachable
// through errors.Is / errors.As.
type OperationError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *OperationError) Error() string {
	return "failed to " + e.Op
}

// Unwrap returns the underlying cause
func (e *OperationError) Unwrap() error {
	return e.Err
}

// NewOperationError wraps err as a failure of op
func NewOperationError(op string, err error) *OperationError {
	return &OperationError{Op: op, Err: err}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
