// Package restore implements the Session Restorer (spec §4.4): decides
// whether to treat a fresh agent start as a continuation of recent prior
// activity, and summarizes what is known about a session's history.
// Grounded on the teacher's core/runpack.GetSessionStatus and the
// choplin-agentlog/choplin-codexlog SessionSummaryProvider/EventProvider
// interfaces from the example pack.
package restore

import "github.com/continuity-store/continuity/core/schema/v1/action"

// KeyDecision is one high-signal entry surfaced by restoreContext:
// severity critical/high, or type decision/commit.
type KeyDecision struct {
	ActionID    string          `json:"actionId"`
	Type        action.Type     `json:"type"`
	Severity    action.Severity `json:"severity"`
	Description string          `json:"description"`
	Timestamp   string          `json:"timestamp"`
}

// WorkflowHint names an inferred active workflow and the action count that
// contributed to it.
type WorkflowHint struct {
	Workflow string `json:"workflow"`
	Count    int    `json:"count"`
}

// ActivitySummary is the restoreContext result.
type ActivitySummary struct {
	SessionID       string         `json:"sessionId"`
	ActionCount     int            `json:"actionCount"`
	DurationSeconds float64        `json:"durationSeconds"`
	TypeHistogram   map[string]int `json:"typeHistogram"`
	CriticalCount   int            `json:"criticalCount"`
	HighCount       int            `json:"highCount"`
	KeyDecisions    []KeyDecision  `json:"keyDecisions"`
	ActiveWorkflows []WorkflowHint `json:"activeWorkflows"`
	HumanGap        string         `json:"humanGap"`
}

// ImplicitResumption is the detectImplicitResumption result.
type ImplicitResumption struct {
	ShouldRestore    bool             `json:"shouldRestore"`
	LastActivityTime string           `json:"lastActivityTime,omitempty"`
	GapMinutes       float64          `json:"gapMinutes"`
	ThresholdMinutes float64          `json:"thresholdMinutes"`
	RecentContext    *ActivitySummary `json:"recentContext,omitempty"`
}

// RecentActivitySummary is the getRecentActivitySummary result.
type RecentActivitySummary struct {
	Count            int      `json:"count"`
	DistinctSessions int      `json:"distinctSessions"`
	Highlights       []string `json:"highlights"`
}
