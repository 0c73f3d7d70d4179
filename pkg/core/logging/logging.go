// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     logging
// Description: Component loggers on top of the foundation logger
// Created:     2026-09-30
// License:     MIT
// ============================================================================

package logging

import (
	"io"
	"os"
	"sync"

	werr "github.com/msto63/wiener/foundation/core/error"
	wlog "github.com/msto63/wiener/foundation/core/log"
)

// Config holds the process-wide logging settings
type Config struct {
	// Level is one of trace, debug, info, warn, error
	Level string
	// Format is "json" or "text" (default: json)
	Format string
	// Output defaults to stderr
	Output io.Writer
	// Caller adds file:line to every entry
	Caller bool
}

var (
	mu   sync.RWMutex
	base = wlog.NewWithConfig(wlog.Config{Level: wlog.LevelInfo, Format: wlog.FormatJSON, Output: os.Stderr})
)

// Configure replaces the base logger all component loggers derive from.
// Loggers created before the call keep the old settings.
func Configure(cfg Config) error {
	level, err := wlog.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	format := wlog.FormatJSON
	if cfg.Format == "text" {
		format = wlog.FormatText
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	mu.Lock()
	base = wlog.NewWithConfig(wlog.Config{
		Level:        level,
		Format:       format,
		Output:       out,
		EnableCaller: cfg.Caller,
	})
	wlog.SetDefault(base)
	mu.Unlock()
	return nil
}

// Logger is a named component logger taking key/value pairs
type Logger struct {
	*wlog.Logger
	name string
}

// New creates a logger for a component
func New(name string) *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &Logger{Logger: base.WithName(name), name: name}
}

// Discard returns a logger that writes nothing
func Discard() *Logger {
	return &Logger{Logger: wlog.NewWithConfig(wlog.Config{Level: wlog.LevelFatal + 1, Output: io.Discard})}
}

// Name returns the component name
func (l *Logger) Name() string {
	return l.name
}

// With returns a logger carrying the given key/value pairs
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{Logger: l.Logger.WithFields(toFields(keysAndValues...)), name: l.name}
}

func (l *Logger) Trace(msg string, keysAndValues ...interface{}) {
	l.Logger.Trace(msg, toFields(keysAndValues...))
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.Logger.Debug(msg, toFields(keysAndValues...))
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.Logger.Info(msg, toFields(keysAndValues...))
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.Logger.Warn(msg, toFields(keysAndValues...))
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.Logger.Error(msg, toFields(keysAndValues...))
}

// Failure logs err at the level its severity calls for: expected outcomes
// at info, transient faults at warn, anything worse at error
func (l *Logger) Failure(msg string, err error, keysAndValues ...interface{}) {
	keysAndValues = append(keysAndValues, "error", err)
	switch werr.GetSeverity(err) {
	case werr.SeverityLow:
		l.Info(msg, keysAndValues...)
	case werr.SeverityMedium:
		l.Warn(msg, keysAndValues...)
	default:
		l.Error(msg, append(keysAndValues, "severity", werr.GetSeverity(err).String())...)
	}
}

// toFields converts key-value pairs to log fields. A trailing key without
// value and non-string keys are dropped.
func toFields(keysAndValues ...interface{}) wlog.Fields {
	if len(keysAndValues) == 0 {
		return nil
	}

	fields := make(wlog.Fields, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
