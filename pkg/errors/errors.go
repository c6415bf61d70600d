/*
Package errors provides structured error handling for the system.

It defines a standard AppError type that includes:
  - Error Code (standardized strings like NOT_FOUND, INTERNAL)
  - Message (human-readable description)
  - Underlying Error (chaining)

It also provides helpers for common error scenarios and conversion to HTTP/gRPC status codes.
*/
package errors

import (
	"errors"
	"fmt"
)

// Standard error codes shared across packages. Packages are free to define
// their own codes (see pkg/bus/errors.go) as long as they build an AppError.
const (
	CodeNotFound  = "NOT_FOUND"
	CodeConflict  = "CONFLICT"
	CodeInvalid   = "INVALID"
	CodeInternal  = "INTERNAL"
	CodeTimeout   = "TIMEOUT"
	CodeCancelled = "CANCELLED"
)

// AppError is the structured error type used throughout the module.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New builds an AppError with the given code, message and optional cause.
func New(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause}
}

// Wrap attaches a message to an existing error under the generic INTERNAL code.
// Use New with an explicit code when the failure has a known classification.
func Wrap(err error, message string) *AppError {
	return New(CodeInternal, message, err)
}

// NotFound builds a NOT_FOUND AppError.
func NotFound(message string, cause error) *AppError {
	return New(CodeNotFound, message, cause)
}

// Conflict builds a CONFLICT AppError.
func Conflict(message string, cause error) *AppError {
	return New(CodeConflict, message, cause)
}

// Invalid builds an INVALID AppError.
func Invalid(message string, cause error) *AppError {
	return New(CodeInvalid, message, cause)
}

// Timeout builds a TIMEOUT AppError.
func Timeout(message string, cause error) *AppError {
	return New(CodeTimeout, message, cause)
}

// Cancelled builds a CANCELLED AppError.
func Cancelled(message string, cause error) *AppError {
	return New(CodeCancelled, message, cause)
}

// CodeOf returns the Code of err if it (or something it wraps) is an
// *AppError, and "" otherwise.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err (or something it wraps) is an *AppError with the given code.
func Is(err error, code string) bool {
	return CodeOf(err) == code
}
