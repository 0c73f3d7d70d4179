// File: logger.go
// Title: Core Logger Implementation
// Description: Thread-safe leveled logger with immutable With* derivation.
// Author: msto63
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-09-30
//
// Change History:
// - 2025-01-24 v0.1.0: Initial implementation
// - 2026-09-30 v0.2.0: Shared output lock between derived loggers

package log

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Logger writes structured entries. Derived loggers share output and lock.
type Logger struct {
	level        Level
	formatter    Formatter
	out          *syncWriter
	name         string
	fields       Fields
	enableCaller bool
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// Config represents logger configuration
type Config struct {
	Level        Level
	Format       Format
	Output       io.Writer
	Name         string
	EnableCaller bool
}

// New creates a logger at info level writing JSON to stderr
func New() *Logger {
	return NewWithConfig(Config{Level: LevelInfo, Format: FormatJSON})
}

// NewWithConfig creates a new logger with the specified configuration
func NewWithConfig(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		level:        config.Level,
		formatter:    GetFormatter(config.Format),
		out:          &syncWriter{w: out},
		name:         config.Name,
		enableCaller: config.EnableCaller,
	}
}

func (l *Logger) clone() *Logger {
	c := *l
	return &c
}

// WithLevel returns a copy logging at level
func (l *Logger) WithLevel(level Level) *Logger {
	c := l.clone()
	c.level = level
	return c
}

// WithName returns a copy with the given logger name
func (l *Logger) WithName(name string) *Logger {
	c := l.clone()
	c.name = name
	return c
}

// WithField returns a copy carrying key=value on every entry
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(Fields{key: value})
}

// WithFields returns a copy carrying fields on every entry
func (l *Logger) WithFields(fields Fields) *Logger {
	c := l.clone()
	c.fields = mergeFields(l.fields, fields)
	return c
}

func (l *Logger) Trace(message string, fields ...Fields) { l.log(LevelTrace, message, nil, fields...) }
func (l *Logger) Debug(message string, fields ...Fields) { l.log(LevelDebug, message, nil, fields...) }
func (l *Logger) Info(message string, fields ...Fields)  { l.log(LevelInfo, message, nil, fields...) }
func (l *Logger) Warn(message string, fields ...Fields)  { l.log(LevelWarn, message, nil, fields...) }
func (l *Logger) Error(message string, fields ...Fields) { l.log(LevelError, message, nil, fields...) }

// Fatal logs and exits with status 1
func (l *Logger) Fatal(message string, fields ...Fields) {
	l.log(LevelFatal, message, nil, fields...)
	os.Exit(1)
}

// ErrorWithErr logs message at error level with err attached
func (l *Logger) ErrorWithErr(message string, err error, fields ...Fields) {
	l.log(LevelError, message, err, fields...)
}

// WarnWithErr logs message at warn level with err attached
func (l *Logger) WarnWithErr(message string, err error, fields ...Fields) {
	l.log(LevelWarn, message, err, fields...)
}

// IsLevelEnabled reports whether entries at level are written
func (l *Logger) IsLevelEnabled(level Level) bool {
	return l.level.ShouldLog(level)
}

// GetLevel returns the threshold
func (l *Logger) GetLevel() Level {
	return l.level
}

func (l *Logger) log(level Level, message string, err error, fields ...Fields) {
	if !l.level.ShouldLog(level) {
		return
	}
	entry := &Entry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Logger:    l.name,
		Fields:    mergeFields(append([]Fields{l.fields}, fields...)...),
		Error:     err,
	}
	if l.enableCaller {
		if pc, file, line, ok := runtime.Caller(2); ok {
			entry.Caller = &CallerInfo{File: filepath.Base(file), Line: line}
			if fn := runtime.FuncForPC(pc); fn != nil {
				entry.Caller.Function = fn.Name()
			}
		}
	}
	data, ferr := l.formatter.Format(entry)
	if ferr != nil {
		return
	}
	l.out.mu.Lock()
	_, _ = l.out.w.Write(data)
	l.out.mu.Unlock()
}

var (
	defaultLogger = New()
	defaultMu     sync.RWMutex
)

// Default returns the process-wide logger
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}
