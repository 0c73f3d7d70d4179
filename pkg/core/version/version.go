// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     version
// Description: Release and wire protocol versions
// Created:     2026-09-30
// License:     MIT
// ============================================================================

package version

import "fmt"

const (
	// Release is the version of the wiener binary
	Release = "0.3.0"

	// ScriptFormat is the version of the YAML script definition format
	ScriptFormat = "1"

	// ProviderProtocol is the version of the provider gRPC service
	ProviderProtocol = "v1"
)

// Set at link time with -ldflags "-X .../version.Commit=..."
var (
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String describes the build for `wiener version`
func String() string {
	return fmt.Sprintf("wiener %s (commit %s, built %s, provider protocol %s, script format %s)",
		Release, Commit, BuildDate, ProviderProtocol, ScriptFormat)
}
