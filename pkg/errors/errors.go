// Package errors provides structured errors for the wheel installer with
// stable error codes. Codes let callers and tests branch on failure classes
// without matching message text.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrIO           ErrorCode = "IO"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"

	// Wheel validation errors. These are fatal and occur before any file is
	// written into the environment.
	ErrInvalidWheel      ErrorCode = "INVALID_WHEEL"
	ErrInvalidFilename   ErrorCode = "INVALID_FILENAME"
	ErrMismatchedName    ErrorCode = "MISMATCHED_NAME"
	ErrMismatchedVersion ErrorCode = "MISMATCHED_VERSION"

	// Manifest errors
	ErrRecordFile    ErrorCode = "RECORD_FILE"
	ErrMissingRecord ErrorCode = "MISSING_RECORD"

	// Linking errors
	ErrReflink ErrorCode = "REFLINK"

	// LINKS file errors (PEP 778)
	ErrLinksFormat      ErrorCode = "LINKS_FORMAT"
	ErrLinksPathEscape  ErrorCode = "LINKS_PATH_ESCAPE"
	ErrLinksCycle       ErrorCode = "LINKS_CYCLE"
	ErrLinksDangling    ErrorCode = "LINKS_DANGLING"
	ErrLinksUnsupported ErrorCode = "LINKS_UNSUPPORTED"

	// Environment errors
	ErrBrokenEnv ErrorCode = "BROKEN_ENV"
)

// InstallError represents a structured error with code and details
type InstallError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *InstallError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *InstallError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *InstallError) Is(target error) bool {
	var targetErr *InstallError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new InstallError with the given code and message
func New(code ErrorCode, message string) *InstallError {
	return &InstallError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new InstallError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *InstallError {
	return &InstallError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an InstallError
func Wrap(err error, code ErrorCode, message string) *InstallError {
	if err == nil {
		return nil
	}
	return &InstallError{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *InstallError {
	if err == nil {
		return nil
	}
	return &InstallError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *InstallError) WithDetail(key string, value interface{}) *InstallError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var installErr *InstallError
	if errors.As(err, &installErr) {
		return installErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not an InstallError
func GetErrorCode(err error) ErrorCode {
	var installErr *InstallError
	if errors.As(err, &installErr) {
		return installErr.Code
	}
	return ErrUnknown
}
