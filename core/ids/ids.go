// Package ids mints the identifiers the continuity store attaches to
// action envelopes and checkpoints.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// NewActionID returns an opaque unique identifier for an action envelope.
func NewActionID() string {
	return uuid.NewString()
}

// NewCheckpointID mints "checkpoint-<epoch-ms>-<short-random>" per spec
// §4.3. epochMillis is supplied by the caller (not read from the clock
// here) so checkpoint creation stays deterministic under test.
func NewCheckpointID(epochMillis int64) string {
	return fmt.Sprintf("checkpoint-%d-%s", epochMillis, uuid.NewString()[:8])
}
