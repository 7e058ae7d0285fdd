// Package checkpoint defines the wire shape of checkpoint payloads, the
// compaction manifest, and its recovery-info block (spec §3, §4.3).
package checkpoint

const SchemaVersion = "1.0.0"

// Data is the full payload the host supplies to createCheckpoint. Fields
// beyond SessionID/MessageCount/Timestamp are treated as opaque metadata
// the host wants preserved verbatim for manual inspection.
type Data struct {
	SessionID    string         `json:"sessionId"`
	MessageCount int            `json:"messageCount"`
	Timestamp    string         `json:"timestamp"`
	Summary      string         `json:"summary,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// MessageRange is the inclusive-exclusive window of original messages the
// recovery info covers.
type MessageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// RecoveryInfo is embedded in the compaction manifest.
type RecoveryInfo struct {
	OriginalMessageRange MessageRange `json:"originalMessageRange"`
	CompactedAt          string       `json:"compactedAt"`
	CanRecover           bool         `json:"canRecover"`
}

// Manifest is the single COMPACTION_MANIFEST.json, overwritten on each new
// checkpoint.
type Manifest struct {
	SchemaVersion string       `json:"schema_version"`
	Checkpoint    Data         `json:"checkpoint"`
	CheckpointID  string       `json:"checkpointId"`
	RecoveryInfo  RecoveryInfo `json:"recoveryInfo"`
}

// Record is the full per-checkpoint payload persisted at
// checkpoints/checkpoint-<id>.json: the checkpoint data plus its minted id
// and creation time, so listCheckpoints can sort without re-parsing names.
type Record struct {
	CheckpointID string `json:"checkpointId"`
	CreatedAt    string `json:"createdAt"`
	Data         Data   `json:"data"`
}
