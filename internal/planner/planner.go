// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     planner
// Description: Planners for goals no script serves directly
// Created:     2026-09-30
// License:     MIT
// ============================================================================

// Package planner provides the planners the orchestrator delegates to.
//
// PABT plans in process with the PA-BT algorithm over the preconditions and
// effects of the loaded templates. Bridge forwards goals and state to an
// external planner through Redis and collects the plans it publishes back.
// Both hand plans to the engine as synthetic sequence scripts.
package planner

import (
	"errors"
	"time"

	"github.com/msto63/wiener/internal/script"
)

// ErrNotGround is returned for goals containing variables
var ErrNotGround = errors.New("goal is not ground")

// Goal is a planning request
type Goal struct {
	Predicate script.Term
	// Hard goals stay queued until planned; soft goals are dropped after the
	// first failed attempt
	Hard      bool
	Utility   float64
	Deadline  time.Time
	Submitted time.Time
}

// Expired reports whether the deadline passed at now
func (g Goal) Expired(now time.Time) bool {
	return !g.Deadline.IsZero() && now.After(g.Deadline)
}
