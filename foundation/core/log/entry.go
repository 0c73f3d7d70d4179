// File: entry.go
// Title: Log Entry Structure
// Description: A single log record with its context fields.
// Author: msto63
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-09-30
//
// Change History:
// - 2025-01-24 v0.1.0: Initial implementation
// - 2026-09-30 v0.2.0: Replaced user/request context with free-form fields

package log

import (
	"time"
)

// Fields holds structured key/value context for a log entry
type Fields map[string]interface{}

// Entry is one log record
type Entry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Logger    string
	Fields    Fields
	Error     error
	Caller    *CallerInfo
}

// CallerInfo locates the call site of a log statement
type CallerInfo struct {
	File     string
	Line     int
	Function string
}

func mergeFields(sets ...Fields) Fields {
	n := 0
	for _, s := range sets {
		n += len(s)
	}
	if n == 0 {
		return nil
	}
	out := make(Fields, n)
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}
