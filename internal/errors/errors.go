package errors

import (
	"errors"
	"fmt"

	"github.com/graph-scanner/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents parameter validation errors; these
	// fail fast before any store access and are never retried
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents missing resource errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategorySystem represents every other failure, store errors
	// included; those reach callers as plain wrapped errors
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with a category and stable code
type CategorizedError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInvalidParameterError creates a validation error for one parameter
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryValidation,
		Code:     "INVALID_PARAMETER",
		Message:  fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewDepthError creates a validation error for an out-of-range depth
func NewDepthError(depth, min, max int) *CategorizedError {
	return &CategorizedError{
		Category: CategoryValidation,
		Code:     "INVALID_DEPTH",
		Message:  fmt.Sprintf("depth %d out of range [%d, %d]", depth, min, max),
		Details: map[string]interface{}{
			"depth": depth,
			"min":   min,
			"max":   max,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryNotFound,
		Code:     "NOT_FOUND",
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategorySystem,
		Code:     "INTERNAL_ERROR",
		Message:  message,
		Cause:    cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError by its code
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	switch err.Code {
	case "INVALID_PARAMETER", "INVALID_DEPTH", "INVALID_WEIGHT_TYPE", "VALIDATION_ERROR":
		return &CategorizedError{
			Category: CategoryValidation,
			Code:     err.Code,
			Message:  err.Message,
			Details:  err.Details,
		}
	case "NOT_FOUND":
		return &CategorizedError{
			Category: CategoryNotFound,
			Code:     err.Code,
			Message:  err.Message,
			Details:  err.Details,
		}
	default:
		return &CategorizedError{
			Category: CategorySystem,
			Code:     err.Code,
			Message:  err.Message,
			Details:  err.Details,
		}
	}
}

// IsValidation reports whether err is a parameter validation failure.
// Validation failures are terminal: retrying the identical call can
// never succeed.
func IsValidation(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryValidation
}
