// File: error.go
// Title: Structured Error
// Description: Error type carrying a code, severity and details. Wraps
//              arbitrary errors while staying compatible with errors.Is/As.
// Author: msto63
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-09-30
//
// Change History:
// - 2025-01-24 v0.1.0: Initial implementation with stack traces and i18n keys
// - 2026-09-30 v0.2.0: Dropped stack traces and localization

package error

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Error represents a structured error with context, codes, and metadata
type Error struct {
	message   string
	cause     error
	code      Code
	severity  Severity
	timestamp time.Time
	operation string
	details   map[string]interface{}
}

// New creates a new Error with the given message
func New(message string) *Error {
	return &Error{
		message:   message,
		code:      CodeUnknown,
		severity:  SeverityMedium,
		timestamp: time.Now(),
	}
}

// Newf creates a new Error with a formatted message
func Newf(format string, args ...interface{}) *Error {
	e := New(fmt.Sprintf(format, args...))
	return e
}

// Wrap wraps err with message. Code, severity and details are inherited
// from err when it is an *Error. Wrap(nil, ...) returns nil.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	wrapped := &Error{
		message:   message,
		cause:     err,
		code:      CodeUnknown,
		severity:  SeverityMedium,
		timestamp: time.Now(),
	}
	var inner *Error
	if errors.As(err, &inner) {
		wrapped.code = inner.code
		wrapped.severity = inner.severity
		for k, v := range inner.details {
			wrapped.setDetail(k, v)
		}
	}
	return wrapped
}

// Error implements the standard error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.message, e.cause.Error())
	}
	return e.message
}

// Unwrap returns the underlying cause for error unwrapping
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCode sets the code and derives the severity from it
func (e *Error) WithCode(code Code) *Error {
	e.code = code
	e.severity = GetSeverityFromCode(code)
	return e
}

// WithSeverity overrides the severity
func (e *Error) WithSeverity(severity Severity) *Error {
	e.severity = severity
	return e
}

// WithOperation records the operation that failed
func (e *Error) WithOperation(operation string) *Error {
	e.operation = operation
	return e
}

// WithDetail attaches a key/value detail
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.setDetail(key, value)
	return e
}

func (e *Error) setDetail(key string, value interface{}) {
	if e.details == nil {
		e.details = make(map[string]interface{})
	}
	e.details[key] = value
}

func (e *Error) Code() Code           { return e.code }
func (e *Error) Severity() Severity   { return e.severity }
func (e *Error) Timestamp() time.Time { return e.timestamp }
func (e *Error) Operation() string    { return e.operation }
func (e *Error) Message() string      { return e.message }
func (e *Error) Detail(key string) interface{} {
	return e.details[key]
}

// Details returns a copy of the detail map
func (e *Error) Details() map[string]interface{} {
	out := make(map[string]interface{}, len(e.details))
	for k, v := range e.details {
		out[k] = v
	}
	return out
}

// String renders code, operation and details for logs
func (e *Error) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.code, e.Error())
	if e.operation != "" {
		fmt.Fprintf(&b, " (op=%s)", e.operation)
	}
	if len(e.details) > 0 {
		keys := make([]string, 0, len(e.details))
		for k := range e.details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.details[k])
		}
	}
	return b.String()
}

// MarshalJSON renders the error for API responses
func (e *Error) MarshalJSON() ([]byte, error) {
	data := map[string]interface{}{
		"code":      e.code,
		"message":   e.Error(),
		"severity":  e.severity.String(),
		"timestamp": e.timestamp.Format(time.RFC3339),
	}
	if e.operation != "" {
		data["operation"] = e.operation
	}
	if len(e.details) > 0 {
		data["details"] = e.details
	}
	return json.Marshal(data)
}

// HasCode reports whether any error in err's chain carries code
func HasCode(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.code == code {
			return true
		}
		err = e.cause
	}
	return false
}

// GetCode returns the code of the outermost *Error in err's chain
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return CodeUnknown
}

// GetSeverity returns the severity of the outermost *Error in err's chain
func GetSeverity(err error) Severity {
	var e *Error
	if errors.As(err, &e) {
		return e.severity
	}
	return SeverityMedium
}
