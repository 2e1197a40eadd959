// Package adapter wraps the upstream sources a refresh cycle reads from:
// the Hive JSON-RPC API and EVM contract reads.
package adapter

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/skatehive-leaderboard/internal/errors"
)

var (
	// ErrAccountNotFound indicates the Hive account does not exist
	ErrAccountNotFound = errors.New("hive account not found")

	// ErrNoEndpoints indicates every configured endpoint is unavailable
	ErrNoEndpoints = errors.New("no upstream endpoint available")

	// ErrInvalidAsset indicates a Hive asset string could not be parsed
	ErrInvalidAsset = errors.New("invalid asset amount")
)

// AdapterError wraps errors with the upstream and operation that failed
type AdapterError struct {
	Source  string // "hive" or the EVM network name
	Op      string // Operation that failed (e.g., "GetAccountInfo", "balanceOf")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("adapter error [%s:%s]: %v (details: %+v)", e.Source, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("adapter error [%s:%s]: %v", e.Source, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(source, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Source:  source,
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// accountNotFound returns a categorized not-found error wrapping ErrAccountNotFound
func accountNotFound(username string) error {
	return &apperrors.CategorizedError{
		Category: apperrors.CategoryNotFound,
		Code:     "ACCOUNT_NOT_FOUND",
		Message:  fmt.Sprintf("account not found: %s", username),
		Cause:    ErrAccountNotFound,
		Details: map[string]interface{}{
			"username": username,
		},
	}
}

// IsRateLimitError checks if an error indicates rate limiting (429)
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "throttl")
}

// shouldFailover determines if an error warrants moving to another endpoint
func shouldFailover(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimitError(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "eof")
}
