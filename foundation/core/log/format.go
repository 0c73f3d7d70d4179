// File: format.go
// Title: Log Formatters
// Description: JSON output for machine consumption and text output for
//              terminals.
// Author: msto63
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-09-30
//
// Change History:
// - 2025-01-24 v0.1.0: Initial implementation with JSON, text, console, logfmt
// - 2026-09-30 v0.2.0: Kept JSON and text, fields sorted for stable output

package log

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Format selects a Formatter
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Formatter renders an Entry to bytes
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// JSONFormatter writes one JSON object per line
type JSONFormatter struct {
	TimestampFormat string
}

// NewJSONFormatter creates a JSON formatter with RFC3339 timestamps
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{TimestampFormat: time.RFC3339Nano}
}

// Format implements Formatter
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	data := make(map[string]interface{}, len(entry.Fields)+6)
	for k, v := range entry.Fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		data[k] = v
	}
	data["timestamp"] = entry.Timestamp.Format(f.TimestampFormat)
	data["level"] = entry.Level.String()
	data["message"] = entry.Message
	if entry.Logger != "" {
		data["logger"] = entry.Logger
	}
	if entry.Error != nil {
		data["error"] = entry.Error.Error()
	}
	if entry.Caller != nil {
		data["caller"] = fmt.Sprintf("%s:%d", entry.Caller.File, entry.Caller.Line)
	}
	out, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// TextFormatter writes human-readable lines
type TextFormatter struct {
	TimestampFormat  string
	DisableTimestamp bool
}

// NewTextFormatter creates a text formatter with short timestamps
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{TimestampFormat: "15:04:05.000"}
}

// Format implements Formatter
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var b strings.Builder
	if !f.DisableTimestamp {
		b.WriteString(entry.Timestamp.Format(f.TimestampFormat))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "[%s]", entry.Level.ShortString())
	if entry.Logger != "" {
		fmt.Fprintf(&b, " {%s}", entry.Logger)
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
		}
	}
	if entry.Error != nil {
		fmt.Fprintf(&b, " error=%q", entry.Error.Error())
	}
	if entry.Caller != nil {
		fmt.Fprintf(&b, " caller=%s:%d", entry.Caller.File, entry.Caller.Line)
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// GetFormatter returns the formatter for a format, JSON by default
func GetFormatter(format Format) Formatter {
	switch format {
	case FormatText:
		return NewTextFormatter()
	default:
		return NewJSONFormatter()
	}
}
