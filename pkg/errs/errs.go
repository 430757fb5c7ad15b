package errs

import (
	"context"
	"errors"
	"fmt"
)

// Code identifies why an operation failed or was cancelled
type Code string

const (
	Aborted    Code = "ABORTED"
	Cancelled  Code = "CANCELLED"
	Destroyed  Code = "DESTROYED"
	Detached   Code = "DETACHED"
	NoTarget   Code = "NO_TARGET"
	Rejected   Code = "REJECTED"
	Removed    Code = "REMOVED"
	Superseded Code = "SUPERSEDED"
	Timeout    Code = "TIMEOUT"
)

// Error is the single error type produced by the core. Third-party handler
// errors are never converted into it; they pass through unchanged.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New creates an error with the given code and message
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error chaining an underlying cause
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Cause == nil:
		return string(e.Code)
	case e.Cause == nil:
		return string(e.Code) + ": " + e.Message
	case e.Message == "":
		return string(e.Code) + ": " + e.Cause.Error()
	default:
		return string(e.Code) + ": " + e.Message + ": " + e.Cause.Error()
	}
}

// Unwrap returns the chained cause, if any
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches against other taxonomy errors by code, so
// errors.Is(err, errs.New(errs.Aborted, "")) works across wrapping
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Code == e.Code
	}
	return false
}

// IsCode reports whether err is (or wraps) a taxonomy error with the given code
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsStoreError reports whether err is (or wraps) a taxonomy error
func IsStoreError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// CodeOf extracts the taxonomy code from err; ok is false for foreign errors
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// CauseOf translates a context's cancellation cause into a taxonomy error.
// Contexts cancelled by the core always carry one; foreign cancellations
// (plain context.Canceled, deadlines) map to CANCELLED and TIMEOUT.
func CauseOf(ctx context.Context) *Error {
	cause := context.Cause(ctx)
	if cause == nil {
		return nil
	}
	var e *Error
	if errors.As(cause, &e) {
		return e
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return Wrap(Timeout, "context deadline exceeded", cause)
	}
	return Wrap(Cancelled, "context cancelled", cause)
}
