// Package errors provides application errors carrying a machine-readable code
// alongside the human message. Handlers map codes to transport status; services
// only ever construct and inspect codes.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies an application error.
type ErrorCode string

const (
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeInvalidState    ErrorCode = "INVALID_STATE"
	ErrCodeDuplicate       ErrorCode = "DUPLICATE"
	ErrCodePolicyViolation ErrorCode = "POLICY_VIOLATION"
	ErrCodeConfiguration   ErrorCode = "CONFIGURATION"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeInternal        ErrorCode = "INTERNAL"
)

// Error is the concrete error type used across the service.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error with a code and message.
func New(code ErrorCode, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a code and formatted message.
func Newf(code ErrorCode, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code ErrorCode, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports a missing (or not tenant-owned) entity.
func NotFound(entity, id string) error {
	return Newf(ErrCodeNotFound, "%s %s not found", entity, id)
}

// Duplicate reports a uniqueness conflict.
func Duplicate(entity, detail string) error {
	return Newf(ErrCodeDuplicate, "%s already exists: %s", entity, detail)
}

// InvalidState reports an operation attempted against an ineligible status.
// The current status is always part of the message.
func InvalidState(entity, operation, status string) error {
	return Newf(ErrCodeInvalidState, "%s cannot be %s (status: %s)", entity, operation, status)
}

// InvalidInput reports a malformed field value.
func InvalidInput(field, detail string) error {
	return Newf(ErrCodeInvalidInput, "invalid %s: %s", field, detail)
}

// CodeOf extracts the application code from err, or ErrCodeInternal when the
// error did not originate here.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
