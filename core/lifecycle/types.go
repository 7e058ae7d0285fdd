// Package lifecycle implements the Lifecycle Adapter (spec §4.5): the thin
// boundary that translates host events into calls on the Stream Writer,
// Checkpoint Manager, and Session Restorer. It is the interface the
// out-of-scope host/dispatcher is specified against, grounded on the
// teacher's cmd-layer wiring in run_session.go that translates CLI flags
// into core library calls — generalized here from CLI-flags-to-library-calls
// into host-events-to-library-calls.
package lifecycle

import (
	"github.com/continuity-store/continuity/core/restore"
	"github.com/continuity-store/continuity/core/stream"
)

// HealthStatus is the boot.post health check result.
type HealthStatus struct {
	Stats      stream.Stats
	CanRecover bool
}

// BootResult is returned by Boot.
type BootResult struct {
	Health     HealthStatus
	Resumption restore.ImplicitResumption
}

// AgentStartResult is returned by BeforeAgentStart.
type AgentStartResult struct {
	Restored         bool
	ImplicitRestored bool
	Summary          *restore.ActivitySummary
}

// ToolCallDecision is returned by BeforeToolCall.
type ToolCallDecision struct {
	// Block is true when a critical tool call's append failed and the
	// adapter is configured to block on persistence failure.
	Block bool
	// ParentActionID correlates AfterToolCall/ToolError back to this call,
	// when the writer accepted the pre-execution entry. At logLevel off the
	// writer accepts without writing, so ParentActionID and Logged are set
	// even though nothing reached disk.
	ParentActionID string
	Logged         bool
}
