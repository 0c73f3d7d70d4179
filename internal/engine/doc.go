// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     engine
// Description: Stack-based script interpreter, one per goal
// Created:     2026-09-30
// License:     MIT
// ============================================================================

// Package engine runs control scripts. An Interpreter owns a stack of script
// instances for one goal and advances it one cycle at a time: control-flow
// tokens are evaluated in place, sub-scripts are pushed, and primitives are
// dispatched by category to a Handler.
//
// Failure is a value, not an error. A failing statement fails its script,
// conditions capture the failure as a result, and only the root status
// reaches the orchestrator together with a list of cause predicates such as
// unable(move) or timeout(grasp).
//
// Lock contention never blocks. The contested invocation stays unconsumed and
// the interpreter yields; the next cycle tries again.
package engine
