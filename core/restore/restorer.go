package restore

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/continuity-store/continuity/core/schema/v1/action"
	"github.com/continuity-store/continuity/core/stream"
)

const restoreContextQueryLimit = 100

// toolWorkflowPatterns is the fixed substring→workflow map spec §4.4 names.
var toolWorkflowPatterns = []struct {
	pattern  string
	workflow string
}{
	{"write", "file-operations"},
	{"edit", "file-operations"},
	{"exec", "command-execution"},
	{"browser", "web-browsing"},
	{"nodes", "device-management"},
	{"message", "messaging"},
}

// Restorer is the Session Restorer. It reads through a stream.Writer, so
// it observes exactly what the writer has committed (spec §5's read
// visibility rule).
type Restorer struct {
	writer *stream.Writer
	now    func() time.Time
}

// New constructs a Restorer over writer. now defaults to time.Now when nil.
func New(writer *stream.Writer, now func() time.Time) *Restorer {
	if now == nil {
		now = time.Now
	}
	return &Restorer{writer: writer, now: now}
}

// DetectImplicitResumption implements spec §4.4's detectImplicitResumption.
func (r *Restorer) DetectImplicitResumption(thresholdMinutes float64) (ImplicitResumption, error) {
	lastActionTimestamp, ok, err := r.writer.LastActionTimestamp()
	if err != nil {
		return ImplicitResumption{}, err
	}
	if !ok {
		return ImplicitResumption{ShouldRestore: false, GapMinutes: math.Inf(1)}, nil
	}

	lastActionTime, parseErr := time.Parse(time.RFC3339, lastActionTimestamp)
	if parseErr != nil {
		return ImplicitResumption{ShouldRestore: false, GapMinutes: math.Inf(1)}, nil
	}

	gapMinutes := r.now().UTC().Sub(lastActionTime).Minutes()
	if gapMinutes >= thresholdMinutes {
		return ImplicitResumption{
			ShouldRestore:    false,
			LastActivityTime: lastActionTimestamp,
			GapMinutes:       gapMinutes,
			ThresholdMinutes: thresholdMinutes,
		}, nil
	}

	summary, err := r.getRecentActivitySummaryForSession(1)
	if err != nil {
		return ImplicitResumption{}, err
	}
	return ImplicitResumption{
		ShouldRestore:    true,
		LastActivityTime: lastActionTimestamp,
		GapMinutes:       gapMinutes,
		ThresholdMinutes: thresholdMinutes,
		RecentContext:    &summary,
	}, nil
}

// RestoreContext implements spec §4.4's restoreContext.
func (r *Restorer) RestoreContext(sessionID string) (ActivitySummary, error) {
	entries, err := r.writer.QueryActions(stream.QueryOptions{})
	if err != nil {
		return ActivitySummary{}, err
	}
	if len(entries) > restoreContextQueryLimit {
		entries = entries[len(entries)-restoreContextQueryLimit:]
	}

	var matched []action.Envelope
	for _, entry := range entries {
		if entry.SessionID == sessionID {
			matched = append(matched, entry)
		}
	}

	summary := ActivitySummary{
		SessionID:     sessionID,
		ActionCount:   len(matched),
		TypeHistogram: map[string]int{},
	}
	if len(matched) == 0 {
		summary.HumanGap = "no prior activity"
		return summary, nil
	}

	workflowCounts := map[string]int{}
	first, firstErr := time.Parse(time.RFC3339, matched[0].Timestamp)
	last, lastErr := time.Parse(time.RFC3339, matched[len(matched)-1].Timestamp)
	if firstErr == nil && lastErr == nil {
		summary.DurationSeconds = last.Sub(first).Seconds()
	}

	for _, entry := range matched {
		summary.TypeHistogram[string(entry.Type)]++
		switch entry.Severity {
		case action.SeverityCritical:
			summary.CriticalCount++
		case action.SeverityHigh:
			summary.HighCount++
		}
		if isKeyDecision(entry) {
			summary.KeyDecisions = append(summary.KeyDecisions, KeyDecision{
				ActionID: entry.ID, Type: entry.Type, Severity: entry.Severity,
				Description: entry.Description, Timestamp: entry.Timestamp,
			})
		}
		for _, workflow := range inferWorkflows(entry) {
			workflowCounts[workflow]++
		}
	}

	summary.ActiveWorkflows = sortedWorkflowHints(workflowCounts)

	lastActionTimestamp, ok, err := r.writer.LastActionTimestamp()
	if err == nil && ok {
		if parsed, parseErr := time.Parse(time.RFC3339, lastActionTimestamp); parseErr == nil {
			summary.HumanGap = humanize.Time(parsed)
		}
	}
	return summary, nil
}

// GetRecentActivitySummary implements spec §4.4's getRecentActivitySummary.
func (r *Restorer) GetRecentActivitySummary(hoursBack float64) (RecentActivitySummary, error) {
	since := r.now().UTC().Add(-time.Duration(hoursBack * float64(time.Hour)))
	entries, err := r.writer.QueryActions(stream.QueryOptions{Since: formatTimestamp(since)})
	if err != nil {
		return RecentActivitySummary{}, err
	}

	sessions := map[string]struct{}{}
	var highlights []string
	for _, entry := range entries {
		if entry.SessionID != "" {
			sessions[entry.SessionID] = struct{}{}
		}
		if len(highlights) >= 5 {
			continue
		}
		if entry.Severity == action.SeverityCritical {
			highlights = append(highlights, "critical: "+entry.Description)
		} else if entry.Type == action.TypeAgentStart {
			highlights = append(highlights, "session started: "+entry.Description)
		}
	}
	if len(highlights) > 5 {
		highlights = highlights[:5]
	}

	return RecentActivitySummary{
		Count:            len(entries),
		DistinctSessions: len(sessions),
		Highlights:       highlights,
	}, nil
}

// getRecentActivitySummaryForSession gathers the one-hour summary
// detectImplicitResumption embeds as recentContext. It is session-agnostic
// (drawn from the most recent hour across all sessions), matching the
// spec's "gather a one-hour summary" instruction, which names no session
// filter at this call site.
func (r *Restorer) getRecentActivitySummaryForSession(hoursBack float64) (ActivitySummary, error) {
	since := r.now().UTC().Add(-time.Duration(hoursBack * float64(time.Hour)))
	entries, err := r.writer.QueryActions(stream.QueryOptions{Since: formatTimestamp(since)})
	if err != nil {
		return ActivitySummary{}, err
	}

	summary := ActivitySummary{TypeHistogram: map[string]int{}, ActionCount: len(entries)}
	workflowCounts := map[string]int{}
	for _, entry := range entries {
		summary.TypeHistogram[string(entry.Type)]++
		switch entry.Severity {
		case action.SeverityCritical:
			summary.CriticalCount++
		case action.SeverityHigh:
			summary.HighCount++
		}
		if isKeyDecision(entry) {
			summary.KeyDecisions = append(summary.KeyDecisions, KeyDecision{
				ActionID: entry.ID, Type: entry.Type, Severity: entry.Severity,
				Description: entry.Description, Timestamp: entry.Timestamp,
			})
		}
		for _, workflow := range inferWorkflows(entry) {
			workflowCounts[workflow]++
		}
	}
	summary.ActiveWorkflows = sortedWorkflowHints(workflowCounts)
	return summary, nil
}

func isKeyDecision(entry action.Envelope) bool {
	if entry.Severity == action.SeverityCritical || entry.Severity == action.SeverityHigh {
		return true
	}
	return string(entry.Type) == "decision" || string(entry.Type) == "commit"
}

func inferWorkflows(entry action.Envelope) []string {
	if entry.Metadata != nil {
		if workflow, ok := entry.Metadata["workflow"].(string); ok && workflow != "" {
			return []string{workflow}
		}
	}
	toolName := strings.ToLower(entry.ToolName)
	if toolName == "" {
		return nil
	}
	for _, mapping := range toolWorkflowPatterns {
		if strings.Contains(toolName, mapping.pattern) {
			return []string{mapping.workflow}
		}
	}
	return nil
}

func sortedWorkflowHints(counts map[string]int) []WorkflowHint {
	if len(counts) == 0 {
		return nil
	}
	hints := make([]WorkflowHint, 0, len(counts))
	for workflow, count := range counts {
		hints = append(hints, WorkflowHint{Workflow: workflow, Count: count})
	}
	sort.Slice(hints, func(i, j int) bool {
		if hints[i].Count != hints[j].Count {
			return hints[i].Count > hints[j].Count
		}
		return hints[i].Workflow < hints[j].Workflow
	})
	return hints
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
