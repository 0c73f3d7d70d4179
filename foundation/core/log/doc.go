// File: doc.go
// Title: Structured Logging
// Description: Leveled, structured logging for the Wiener control middleware.
//              Every engine component (lock manager, interpreter, orchestrator,
//              provider table) logs through a named Logger carrying fields.
// Author: msto63
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-09-30
//
// Change History:
// - 2025-01-24 v0.1.0: Initial implementation
// - 2026-09-30 v0.2.0: Reduced to JSON and text output, goal/owner context fields

// Package log provides the structured logger used across Wiener.
//
//	logger := log.NewWithConfig(log.Config{Level: log.LevelDebug, Name: "orchestrator"})
//	logger.WithField("goal", 12).Info("goal submitted")
package log
