// Package errors provides structured error handling for imudex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Parse and resolution misses (per-file, non-fatal)
//   - 3XX: Storage errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

import "fmt"

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Parse/resolution misses (200-299)
	ErrCodeParseMiss         = "ERR_201_PARSE_MISS"
	ErrCodeResolutionMiss    = "ERR_202_RESOLUTION_MISS"
	ErrCodeManifestMalformed = "ERR_203_MANIFEST_MALFORMED"

	// Storage errors (300-399)
	ErrCodeStoreBusy    = "ERR_301_STORE_BUSY"
	ErrCodeStoreCorrupt = "ERR_302_STORE_CORRUPT"
	ErrCodeStoreFailed  = "ERR_303_STORE_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidPath  = "ERR_402_INVALID_PATH"
	ErrCodeNotFound     = "ERR_403_NOT_FOUND"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// Error is the structured error type for imudex. It carries a stable code
// for logging and API mapping, plus a retryable flag the watcher's retry
// loop keys off.
type Error struct {
	// Code is the unique error code (e.g. "ERR_301_STORE_BUSY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works across wrapping.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an Error with the given code and message. The retryable
// flag is derived from the code: lock/busy contention is the only
// transient class in this system. Constraint violations, corruption and
// other hard storage failures repeat identically on retry and must not
// reach the destructive rebuild fallback.
func New(code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: code == ErrCodeStoreBusy,
	}
}

// Wrap creates an Error from an existing error, reusing its message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IsRetryable reports whether err is a retryable Error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetCode extracts the code from an Error, or "" for foreign errors.
func GetCode(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
