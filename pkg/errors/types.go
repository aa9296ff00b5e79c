package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"

	// ErrorTypeValidation represents input validation errors
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeNotFound represents resource not found errors
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeConflict represents resource conflict errors
	ErrorTypeConflict ErrorType = "conflict"

	// ErrorTypeInvalidState represents operations attempted against an entity
	// whose current lifecycle state does not permit them
	ErrorTypeInvalidState ErrorType = "invalid_state"

	// ErrorTypeExternal represents failures of external dependencies
	// (store, key management, audit trail)
	ErrorTypeExternal ErrorType = "external"

	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
)

// AppError represents an application error with additional context
type AppError struct {
	Type      ErrorType         `json:"type"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Err       error             `json:"-"`
	Retryable bool              `json:"retryable"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is implements error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Common error instances
var (
	// ErrInternal represents a generic internal error
	ErrInternal = &AppError{
		Type:      ErrorTypeInternal,
		Code:      "INTERNAL_ERROR",
		Message:   "An internal error occurred",
		Retryable: false,
	}

	// ErrValidation represents a generic validation error
	ErrValidation = &AppError{
		Type:      ErrorTypeValidation,
		Code:      "VALIDATION_ERROR",
		Message:   "Validation failed",
		Retryable: false,
	}

	// ErrNotFound represents a generic not found error
	ErrNotFound = &AppError{
		Type:      ErrorTypeNotFound,
		Code:      "NOT_FOUND",
		Message:   "Resource not found",
		Retryable: false,
	}

	// ErrConflict represents a generic conflict error
	ErrConflict = &AppError{
		Type:      ErrorTypeConflict,
		Code:      "CONFLICT",
		Message:   "Resource conflict",
		Retryable: false,
	}

	// ErrInvalidState represents an operation refused because of the entity's
	// current lifecycle state
	ErrInvalidState = &AppError{
		Type:      ErrorTypeInvalidState,
		Code:      "INVALID_STATE",
		Message:   "Operation not allowed in current state",
		Retryable: false,
	}

	// ErrExternalService represents an external dependency error
	ErrExternalService = &AppError{
		Type:      ErrorTypeExternal,
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   "External service error",
		Retryable: true,
	}

	// ErrKeyNotFound represents a key absent from the key management provider
	ErrKeyNotFound = &AppError{
		Type:      ErrorTypeNotFound,
		Code:      "KEY_NOT_FOUND",
		Message:   "Encryption key not found",
		Retryable: false,
	}
)

// New creates a new AppError
func New(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// NewValidation creates a validation error with the given message
func NewValidation(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Code:    "VALIDATION_ERROR",
		Message: message,
	}
}

// NewNotFound creates a not-found error for the given resource
func NewNotFound(resource, id string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInvalidState creates an invalid-state error with the given message
func NewInvalidState(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidState,
		Code:    "INVALID_STATE",
		Message: message,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetType returns the error type
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetCode returns the error code
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}

// IsType reports whether err carries the given error type
func IsType(err error, errType ErrorType) bool {
	return GetType(err) == errType
}
