// Package action defines the wire shape of one line in an action stream
// file: the header, the action envelope, and the integrity chain link.
package action

import "encoding/json"

const SchemaVersion = "1.0.0"

// Type is drawn from the small open set spec §3 enumerates. Unknown values
// are accepted by readers (the set is explicitly open) but the constants
// below name every type the lifecycle adapter currently emits.
type Type string

const (
	TypeAgentStart                Type = "agent_start"
	TypeAgentEnd                  Type = "agent_end"
	TypeAgentError                Type = "agent_error"
	TypeToolCall                  Type = "tool_call"
	TypeToolResult                Type = "tool_result"
	TypeToolError                 Type = "tool_error"
	TypeMessageReceived           Type = "message_received"
	TypeMessageSending            Type = "message_sending"
	TypeMessageSendFailed         Type = "message_send_failed"
	TypeResponseError             Type = "response_error"
	TypeCompaction                Type = "compaction"
	TypeCompactionComplete        Type = "compaction_complete"
	TypeContinuityRestore         Type = "continuity_restore"
	TypeContinuityImplicitRestore Type = "continuity_implicit_restore"
)

// Severity is one of the four fixed levels spec §3 defines.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Integrity is the hash-chain link attached to an entry once sealed by the
// stream writer. Previous is the literal "genesis" for the first
// hash-enabled entry in the chain.
type Integrity struct {
	Hash     string `json:"hash"`
	Previous string `json:"previous"`
}

// Envelope is one action record: created by the lifecycle adapter, sealed
// by the stream writer (which adds Sequence and Integrity), and immutable
// thereafter.
type Envelope struct {
	ID             string          `json:"id"`
	Sequence       int64           `json:"sequence,omitempty"`
	Timestamp      string          `json:"timestamp"`
	Type           Type            `json:"type"`
	Severity       Severity        `json:"severity"`
	Platform       string          `json:"platform"`
	Description    string          `json:"description"`
	ToolName       string          `json:"toolName,omitempty"`
	ToolParams     json.RawMessage `json:"toolParams,omitempty"`
	SessionID      string          `json:"sessionId,omitempty"`
	ParentActionID string          `json:"parentActionId,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	Integrity      *Integrity      `json:"_integrity,omitempty"`
}

// Header is the first line of every stream file.
type Header struct {
	Header           bool   `json:"_header"`
	SchemaVersion    string `json:"schema_version"`
	Created          string `json:"created"`
	IntegrityEnabled bool   `json:"integrity_enabled"`
}

// State is the persisted contents of .state.json.
type State struct {
	Sequence int64   `json:"sequence"`
	LastHash *string `json:"lastHash"`
}

// EmergencyEnvelope is an Envelope plus the two fields appendEmergency
// attaches; it is never hash-chained.
type EmergencyEnvelope struct {
	Envelope
	Emergency          bool   `json:"_emergency"`
	EmergencyTimestamp string `json:"_emergency_timestamp"`
}
