// File: severity.go
// Title: Error Severity
// Description: How bad an error is, derived from its code. Loggers use it
//              to choose the level a failure is reported at.
// Author: msto63
// Version: v0.3.0
// Created: 2025-01-24
// Modified: 2026-09-30
//
// Change History:
// - 2025-01-24 v0.1.0: Initial implementation with severity levels
// - 2026-09-30 v0.3.0: Severity follows the engine codes; ParseSeverity

package error

import "strings"

// Severity grades an error from expected to fatal
type Severity int

const (
	// SeverityLow is an expected outcome: a goal that cannot be achieved,
	// a cancelled goal, a bad request
	SeverityLow Severity = iota
	// SeverityMedium is a transient fault such as an unreachable provider
	SeverityMedium
	// SeverityHigh needs an operator: storage failures, internal faults
	SeverityHigh
	// SeverityCritical stops the process
	SeverityCritical
)

var severityNames = [...]string{"low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityLow || s > SeverityCritical {
		return "unknown"
	}
	return severityNames[s]
}

// ParseSeverity reads a severity name case-insensitively
func ParseSeverity(name string) (Severity, bool) {
	for i, n := range severityNames {
		if strings.EqualFold(n, name) {
			return Severity(i), true
		}
	}
	return SeverityMedium, false
}

// GetSeverityFromCode grades code. Codes not listed are medium.
func GetSeverityFromCode(code Code) Severity {
	switch code {
	case CodeConfigError:
		return SeverityCritical
	case CodeInternal, CodeDatabaseError:
		return SeverityHigh
	case CodeInvalidInput, CodeNotFound, CodeScriptSyntax, CodeScriptSemantic,
		CodeUnachievable, CodeForbidden, CodeCancelled, CodeDuplicateGoal:
		return SeverityLow
	}
	return SeverityMedium
}
