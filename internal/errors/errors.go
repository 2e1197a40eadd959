package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryTransient represents network, timeout and rate-limit failures
	CategoryTransient ErrorCategory = "transient"
	// CategoryNotFound represents a missing upstream entity (e.g. an unknown account)
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryPersistence represents leaderboard store failures
	CategoryPersistence ErrorCategory = "persistence"
	// CategoryConfiguration represents missing or invalid configuration
	CategoryConfiguration ErrorCategory = "configuration"
	// CategoryInternal represents anything not categorized above
	CategoryInternal ErrorCategory = "internal"
)

// CategorizedError represents an error with a category and a stable code
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

// Transient errors

// NewTransientError wraps a network or timeout failure from an upstream source
func NewTransientError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTransient,
		Code:     "UPSTREAM_UNAVAILABLE",
		Message:  fmt.Sprintf("upstream unavailable: %s", source),
		Cause:    cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewRateLimitError creates a rate limit error for an upstream source
func NewRateLimitError(source string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTransient,
		Code:     "RATE_LIMITED",
		Message:  fmt.Sprintf("rate limit exceeded: %s", source),
		Details: map[string]interface{}{
			"source": source,
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

// NewPersistenceError creates a store error
func NewPersistenceError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryPersistence,
		Code:     "PERSISTENCE_ERROR",
		Message:  fmt.Sprintf("store error during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(setting string, reason string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryConfiguration,
		Code:     "INVALID_CONFIGURATION",
		Message:  fmt.Sprintf("invalid configuration '%s': %s", setting, reason),
		Details: map[string]interface{}{
			"setting": setting,
			"reason":  reason,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryInternal,
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

	// If already categorized anywhere in the chain, return that
	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	if isTransient(err) {
		return NewTransientError("unknown", err)
	}

	return NewInternalError("unexpected error", err)
}

// isTransient recognizes timeouts and rate limits that arrive uncategorized
func isTransient(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused")
}

// CategoryOf returns the category of err, or "" for nil
func CategoryOf(err error) ErrorCategory {
	if catErr := Categorize(err); catErr != nil {
		return catErr.Category
	}
	return ""
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}
	return CategoryOf(err) == CategoryTransient
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return CategoryOf(err) == CategoryNotFound
}

// IsPersistence reports whether err is a store error
func IsPersistence(err error) bool {
	return CategoryOf(err) == CategoryPersistence
}
