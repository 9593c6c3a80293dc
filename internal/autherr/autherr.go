// Package autherr defines the failure taxonomy for authentication flows.
// Errors carry a stable code so callers can distinguish retryable transport
// failures from terminal ones without string matching.
package autherr

import (
	"errors"
	"fmt"
	"time"
)

// Code identifies a class of authentication failure.
type Code string

// Failure classes.
const (
	CodeNetworkError   Code = "NETWORK_ERROR"
	CodeTimeout        Code = "TIMEOUT"
	CodeInvalidToken   Code = "INVALID_TOKEN"
	CodeBackendError   Code = "BACKEND_ERROR"
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeSessionExpired Code = "SESSION_EXPIRED"
	CodeUnknown        Code = "UNKNOWN"
)

// Error is a classified authentication failure. It is never persisted;
// its lifetime is the failed operation that produced it.
type Error struct {
	Code      Code
	Message   string
	Details   map[string]any
	Timestamp time.Time
	cause     error
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates an Error that records err as its cause.
func Wrap(code Code, message string, err error) *Error {
	e := New(code, message)
	e.cause = err
	return e
}

// WithDetail attaches a structured detail and returns the same Error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether the failure class is worth retrying.
// Transport-level failures are; protocol-level rejections are not.
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeNetworkError, CodeTimeout, CodeBackendError:
		return true
	default:
		return false
	}
}

// CodeOf extracts the failure code from any error.
// Non-classified errors report CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries the given failure code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// From coerces any error into a classified Error, attaching CodeUnknown
// to errors that carry no classification.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(CodeUnknown, "unclassified failure", err)
}
