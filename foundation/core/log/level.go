// File: level.go
// Title: Log Levels
// Description: Log levels used to filter engine output.
// Author: msto63
// Version: v0.3.0
// Created: 2025-01-24
// Modified: 2026-09-30
//
// Change History:
// - 2025-01-24 v0.1.0: Initial implementation with standard log levels
// - 2026-09-30 v0.3.0: Dropped audit level; names kept in one table

package log

import (
	"fmt"
	"strings"
)

// Level is the importance of a log entry
type Level int

const (
	// LevelTrace is used for per-cycle interpreter output
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	// LevelFatal logs and terminates the process
	LevelFatal
)

var levelNames = [...]struct{ long, short string }{
	LevelTrace: {"TRACE", "TRAC"},
	LevelDebug: {"DEBUG", "DEBG"},
	LevelInfo:  {"INFO", "INFO"},
	LevelWarn:  {"WARN", "WARN"},
	LevelError: {"ERROR", "ERRO"},
	LevelFatal: {"FATAL", "FATL"},
}

func (l Level) valid() bool { return l >= LevelTrace && l <= LevelFatal }

// String returns the upper-case name of the level
func (l Level) String() string {
	if !l.valid() {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelNames[l].long
}

// ShortString returns a four letter form for aligned text output
func (l Level) ShortString() string {
	if !l.valid() {
		return "????"
	}
	return levelNames[l].short
}

// ShouldLog reports whether a message at msgLevel passes this threshold
func (l Level) ShouldLog(msgLevel Level) bool {
	return msgLevel >= l
}

// ParseLevel reads a level name case-insensitively. The empty string means
// info; "warning" is accepted for warn.
func ParseLevel(s string) (Level, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch name {
	case "":
		return LevelInfo, nil
	case "WARNING":
		return LevelWarn, nil
	}
	for l, n := range levelNames {
		if n.long == name {
			return Level(l), nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}
