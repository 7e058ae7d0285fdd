package restore

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/continuity-store/continuity/core/config"
	"github.com/continuity-store/continuity/core/schema/v1/action"
	"github.com/continuity-store/continuity/core/stream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newWriterAt(t *testing.T, dir string, now func() time.Time) *stream.Writer {
	t.Helper()
	cfg := config.Config{LogLevel: config.LogLevelEverything, StoragePath: dir, EnableIntegrityCheck: true}
	writer := stream.New(cfg, discardLogger(), now)
	if err := writer.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return writer
}

// TestDetectImplicitResumptionNoPriorActivity covers the "none" branch:
// an empty stream never triggers resumption.
func TestDetectImplicitResumptionNoPriorActivity(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	writer := newWriterAt(t, dir, func() time.Time { return base })
	restorer := New(writer, func() time.Time { return base })

	result, err := restorer.DetectImplicitResumption(30)
	if err != nil {
		t.Fatalf("DetectImplicitResumption: %v", err)
	}
	if result.ShouldRestore {
		t.Fatal("expected shouldRestore=false with no prior activity")
	}
}

// TestDetectImplicitResumptionWithinThreshold covers the restore branch.
func TestDetectImplicitResumptionWithinThreshold(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	clock := base
	writer := newWriterAt(t, dir, func() time.Time { return clock })
	writer.Append(action.Envelope{Type: action.TypeToolCall, Severity: action.SeverityLow, Description: "earlier action"})

	clock = base.Add(10 * time.Minute)
	restorer := New(writer, func() time.Time { return clock })

	result, err := restorer.DetectImplicitResumption(30)
	if err != nil {
		t.Fatalf("DetectImplicitResumption: %v", err)
	}
	if !result.ShouldRestore {
		t.Fatalf("expected shouldRestore=true for a 10 minute gap under a 30 minute threshold, got %+v", result)
	}
	if result.RecentContext == nil {
		t.Fatal("expected a recentContext summary when restoring")
	}
}

// TestDetectImplicitResumptionBeyondThreshold covers the no-restore branch.
func TestDetectImplicitResumptionBeyondThreshold(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	clock := base
	writer := newWriterAt(t, dir, func() time.Time { return clock })
	writer.Append(action.Envelope{Type: action.TypeToolCall, Severity: action.SeverityLow, Description: "earlier action"})

	clock = base.Add(time.Hour)
	restorer := New(writer, func() time.Time { return clock })

	result, err := restorer.DetectImplicitResumption(30)
	if err != nil {
		t.Fatalf("DetectImplicitResumption: %v", err)
	}
	if result.ShouldRestore {
		t.Fatalf("expected shouldRestore=false for a 60 minute gap beyond a 30 minute threshold, got %+v", result)
	}
	if result.RecentContext != nil {
		t.Fatal("expected no recentContext when not restoring")
	}
}

// TestRestoreContextFiltersBySessionAndExtractsKeyDecisions covers the bulk
// of spec §4.4's restoreContext contract.
func TestRestoreContextFiltersBySessionAndExtractsKeyDecisions(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	writer := newWriterAt(t, dir, func() time.Time { return base })

	writer.Append(action.Envelope{
		Type: action.TypeToolCall, Severity: action.SeverityLow,
		SessionID: "session-a", ToolName: "write_file", Description: "wrote a file",
	})
	writer.Append(action.Envelope{
		Type: action.TypeAgentError, Severity: action.SeverityCritical,
		SessionID: "session-a", Description: "a critical failure",
	})
	writer.Append(action.Envelope{
		Type: action.TypeToolCall, Severity: action.SeverityLow,
		SessionID: "session-b", ToolName: "exec_command", Description: "unrelated session",
	})

	restorer := New(writer, func() time.Time { return base })
	summary, err := restorer.RestoreContext("session-a")
	if err != nil {
		t.Fatalf("RestoreContext: %v", err)
	}
	if summary.ActionCount != 2 {
		t.Fatalf("expected 2 matched actions for session-a, got %d", summary.ActionCount)
	}
	if summary.CriticalCount != 1 {
		t.Fatalf("expected 1 critical action, got %d", summary.CriticalCount)
	}
	if len(summary.KeyDecisions) != 1 {
		t.Fatalf("expected 1 key decision (the critical entry), got %d", len(summary.KeyDecisions))
	}
	foundFileOps := false
	for _, hint := range summary.ActiveWorkflows {
		if hint.Workflow == "file-operations" {
			foundFileOps = true
		}
	}
	if !foundFileOps {
		t.Fatalf("expected file-operations workflow inferred from write_file tool, got %+v", summary.ActiveWorkflows)
	}
}

// TestRestoreContextNoMatchingSession covers the empty-match branch.
func TestRestoreContextNoMatchingSession(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	writer := newWriterAt(t, dir, func() time.Time { return base })
	writer.Append(action.Envelope{Type: action.TypeToolCall, Severity: action.SeverityLow, SessionID: "session-a", Description: "x"})

	restorer := New(writer, func() time.Time { return base })
	summary, err := restorer.RestoreContext("session-nonexistent")
	if err != nil {
		t.Fatalf("RestoreContext: %v", err)
	}
	if summary.ActionCount != 0 {
		t.Fatalf("expected 0 matched actions, got %d", summary.ActionCount)
	}
}

// TestGetRecentActivitySummaryCountsDistinctSessionsAndHighlights covers
// spec §4.4's getRecentActivitySummary.
func TestGetRecentActivitySummaryCountsDistinctSessionsAndHighlights(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	writer := newWriterAt(t, dir, func() time.Time { return base })

	writer.Append(action.Envelope{Type: action.TypeAgentStart, Severity: action.SeverityLow, SessionID: "session-a", Description: "agent one started"})
	writer.Append(action.Envelope{Type: action.TypeAgentError, Severity: action.SeverityCritical, SessionID: "session-a", Description: "something broke"})
	writer.Append(action.Envelope{Type: action.TypeAgentStart, Severity: action.SeverityLow, SessionID: "session-b", Description: "agent two started"})

	restorer := New(writer, func() time.Time { return base })
	summary, err := restorer.GetRecentActivitySummary(1)
	if err != nil {
		t.Fatalf("GetRecentActivitySummary: %v", err)
	}
	if summary.Count != 3 {
		t.Fatalf("expected 3 actions in the last hour, got %d", summary.Count)
	}
	if summary.DistinctSessions != 2 {
		t.Fatalf("expected 2 distinct sessions, got %d", summary.DistinctSessions)
	}
	if len(summary.Highlights) == 0 {
		t.Fatal("expected at least one highlight")
	}
}

// TestGetRecentActivitySummaryCapsHighlightsAtFive.
func TestGetRecentActivitySummaryCapsHighlightsAtFive(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	writer := newWriterAt(t, dir, func() time.Time { return base })

	for i := 0; i < 8; i++ {
		writer.Append(action.Envelope{Type: action.TypeAgentError, Severity: action.SeverityCritical, SessionID: "session-a", Description: "failure"})
	}

	restorer := New(writer, func() time.Time { return base })
	summary, err := restorer.GetRecentActivitySummary(1)
	if err != nil {
		t.Fatalf("GetRecentActivitySummary: %v", err)
	}
	if len(summary.Highlights) != 5 {
		t.Fatalf("expected highlights capped at 5, got %d", len(summary.Highlights))
	}
}
