// File: codes.go
// Title: Error Code Definitions
// Description: Error codes shared by the engine, the provider layer and the
//              HTTP surface. Codes classify an error; the message explains it.
// Author: msto63
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-09-30
//
// Change History:
// - 2025-01-24 v0.1.0: Initial implementation with core error codes
// - 2026-09-30 v0.2.0: Codes for control scripts, providers and locks

package error

// Code represents a structured error code for categorizing errors
type Code string

const (
	CodeUnknown      Code = "UNKNOWN"
	CodeInternal     Code = "INTERNAL"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeTimeout      Code = "TIMEOUT"
	CodeForbidden    Code = "FORBIDDEN"
	CodeCancelled    Code = "CANCELLED"

	// Providers and remote invocation
	CodeReferenceUnavailable Code = "REFERENCE_UNAVAILABLE"
	CodeRemoteError          Code = "REMOTE_ERROR"
	CodeConnectionFailed     Code = "CONNECTION_FAILED"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"

	// Execution
	CodeResourceLocked Code = "RESOURCE_LOCKED"
	CodeUnachievable   Code = "UNACHIEVABLE"
	CodeDuplicateGoal  Code = "DUPLICATE_GOAL"

	// Control scripts
	CodeScriptSyntax   Code = "SCRIPT_SYNTAX"
	CodeScriptSemantic Code = "SCRIPT_SEMANTIC"

	// Storage and configuration
	CodeDatabaseError Code = "DATABASE_ERROR"
	CodeConfigError   Code = "CONFIG_ERROR"
)

// String returns the string representation of the error code
func (c Code) String() string {
	return string(c)
}

// Category returns the high-level category of the error code
func (c Code) Category() string {
	switch c {
	case CodeReferenceUnavailable, CodeRemoteError, CodeConnectionFailed, CodeServiceUnavailable:
		return "provider"
	case CodeResourceLocked, CodeUnachievable, CodeDuplicateGoal, CodeTimeout, CodeForbidden, CodeCancelled:
		return "execution"
	case CodeScriptSyntax, CodeScriptSemantic:
		return "script"
	case CodeDatabaseError, CodeConfigError:
		return "infrastructure"
	default:
		return "generic"
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error code
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return 404
	case CodeForbidden:
		return 403
	case CodeInvalidInput, CodeScriptSyntax, CodeScriptSemantic:
		return 400
	case CodeDuplicateGoal, CodeResourceLocked:
		return 409
	case CodeTimeout:
		return 408
	case CodeReferenceUnavailable, CodeServiceUnavailable, CodeConnectionFailed:
		return 503
	case CodeRemoteError:
		return 502
	default:
		return 500
	}
}
