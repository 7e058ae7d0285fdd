package lifecycle

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/continuity-store/continuity/core/checkpoint"
	"github.com/continuity-store/continuity/core/config"
	"github.com/continuity-store/continuity/core/ids"
	"github.com/continuity-store/continuity/core/logging"
	"github.com/continuity-store/continuity/core/restore"
	"github.com/continuity-store/continuity/core/schema/v1/action"
	checkpointschema "github.com/continuity-store/continuity/core/schema/v1/checkpoint"
	"github.com/continuity-store/continuity/core/stream"
)

// decisionalPattern gates message_sending entries under logLevel ==
// judgment, per spec §4.5.
var decisionalPattern = regexp.MustCompile(`(?i)\b(decide|decision|conclude|conclusion|recommend|analysis|think|believe)\b`)

// Adapter is the Lifecycle Adapter. One Adapter is constructed per host
// process/platform and bound to a single storagePath's Writer, Manager, and
// Restorer.
type Adapter struct {
	writer      *stream.Writer
	checkpoints *checkpoint.Manager
	restorer    *restore.Restorer
	logger      *slog.Logger

	logLevel                  config.LogLevel
	blockOnPersistenceFailure bool
	resumeThresholdMinutes    float64
	criticalToolPatterns      []string
	platform                  string
	now                       func() time.Time
}

// New constructs an Adapter. platform tags every envelope's Platform field;
// now defaults to time.Now when nil.
func New(writer *stream.Writer, checkpoints *checkpoint.Manager, restorer *restore.Restorer, cfg config.Config, platform string, logger *slog.Logger, now func() time.Time) *Adapter {
	if now == nil {
		now = time.Now
	}
	return &Adapter{
		writer:                    writer,
		checkpoints:               checkpoints,
		restorer:                  restorer,
		logger:                    logging.Component(logger, "lifecycle"),
		logLevel:                  cfg.LogLevel,
		blockOnPersistenceFailure: cfg.BlockOnPersistenceFailure,
		resumeThresholdMinutes:    cfg.ImplicitResumeThresholdMinutes,
		criticalToolPatterns:      cfg.CriticalToolPatterns,
		platform:                  platform,
		now:                       now,
	}
}

// Boot handles the boot.post host event: initialize the store, run a health
// check, and fire implicit-resume detection.
func (a *Adapter) Boot() (BootResult, error) {
	if err := a.writer.Initialize(); err != nil {
		return BootResult{}, err
	}
	health, err := a.healthCheck()
	if err != nil {
		return BootResult{}, err
	}
	resumption, err := a.restorer.DetectImplicitResumption(a.resumeThresholdMinutes)
	if err != nil {
		return BootResult{Health: health}, err
	}
	return BootResult{Health: health, Resumption: resumption}, nil
}

func (a *Adapter) healthCheck() (HealthStatus, error) {
	stats, err := a.writer.GetStats()
	if err != nil {
		return HealthStatus{}, err
	}
	canRecover, err := a.checkpoints.CanRecover()
	if err != nil {
		a.logger.Warn("health check could not read recovery status", "error", err)
	}
	return HealthStatus{Stats: stats, CanRecover: canRecover}, nil
}

// Shutdown handles the shutdown.pre host event: persist state.
func (a *Adapter) Shutdown() error {
	return a.writer.Close()
}

// BeforeAgentStart handles the before_agent_start host event. resumedFrom,
// when non-empty, names a sessionId the host is explicitly resuming.
func (a *Adapter) BeforeAgentStart(sessionID, resumedFrom, description string) (AgentStartResult, error) {
	result := AgentStartResult{}
	if resumedFrom != "" {
		summary, err := a.restorer.RestoreContext(resumedFrom)
		if err != nil {
			return result, err
		}
		a.appendEntry(sessionID, "", action.TypeContinuityRestore, action.SeverityMedium,
			"restored context for session "+resumedFrom, "", nil, nil)
		result.Restored = true
		result.Summary = &summary
	} else {
		resumption, err := a.restorer.DetectImplicitResumption(a.resumeThresholdMinutes)
		if err != nil {
			return result, err
		}
		if resumption.ShouldRestore {
			a.appendEntry(sessionID, "", action.TypeContinuityImplicitRestore, action.SeverityMedium,
				"implicit resumption detected", "", nil, nil)
			result.ImplicitRestored = true
			result.Summary = resumption.RecentContext
		}
	}
	a.appendEntry(sessionID, "", action.TypeAgentStart, action.SeverityLow, description, "", nil, nil)
	return result, nil
}

// AgentEnd handles the agent_end host event.
func (a *Adapter) AgentEnd(sessionID, description string) {
	a.appendEntry(sessionID, "", action.TypeAgentEnd, action.SeverityLow, description, "", nil, nil)
}

// AgentError handles the agent_error host event.
func (a *Adapter) AgentError(sessionID, description string) {
	a.appendEntry(sessionID, "", action.TypeAgentError, action.SeverityCritical, description, "", nil, nil)
}

// BeforeToolCall handles the before_tool_call host event (spec §4.1
// "Severity and criticality" + §4.5's contract row).
func (a *Adapter) BeforeToolCall(sessionID, toolName, description string, toolParams json.RawMessage) ToolCallDecision {
	critical := isCriticalTool(toolName, a.criticalToolPatterns)
	if !critical && !a.logsRoutineEntries() {
		return ToolCallDecision{}
	}

	severity := action.SeverityLow
	if critical {
		severity = action.SeverityCritical
	}
	id, ok := a.appendEntry(sessionID, "", action.TypeToolCall, severity, description, toolName, toolParams, nil)
	if !ok {
		if critical && a.blockOnPersistenceFailure {
			return ToolCallDecision{Block: true}
		}
		return ToolCallDecision{}
	}
	return ToolCallDecision{ParentActionID: id, Logged: true}
}

// AfterToolCall handles the after_tool_call host event. parentActionID
// should be the ParentActionID from the matching BeforeToolCall, if any.
func (a *Adapter) AfterToolCall(sessionID, toolName, parentActionID, description string) {
	if parentActionID == "" && !a.logsRoutineEntries() {
		return
	}
	a.appendEntry(sessionID, parentActionID, action.TypeToolResult, action.SeverityLow, description, toolName, nil, nil)
}

// ToolError handles the tool_error host event.
func (a *Adapter) ToolError(sessionID, toolName, parentActionID, description string) {
	a.appendEntry(sessionID, parentActionID, action.TypeToolError, action.SeverityHigh, description, toolName, nil, nil)
}

// MessageReceived handles the message_received host event.
func (a *Adapter) MessageReceived(sessionID, description string) {
	a.appendEntry(sessionID, "", action.TypeMessageReceived, action.SeverityLow, description, "", nil, nil)
}

// MessageSending handles the message_sending host event. Under
// logLevel == judgment, the message is admitted only when content matches
// the decisional regex. Returns whether the entry was logged.
func (a *Adapter) MessageSending(sessionID, content, description string) bool {
	if a.logLevel == config.LogLevelJudgment && !decisionalPattern.MatchString(content) {
		return false
	}
	_, ok := a.appendEntry(sessionID, "", action.TypeMessageSending, action.SeverityMedium, description, "", nil, nil)
	return ok
}

// MessageSent handles the message_sent host event. Only failed sends are
// logged (as message_send_failed), per spec §4.5.
func (a *Adapter) MessageSent(sessionID string, failed bool, description string) {
	if !failed {
		return
	}
	a.appendEntry(sessionID, "", action.TypeMessageSendFailed, action.SeverityHigh, description, "", nil, nil)
}

// BeforeCompaction handles the before_compaction host event: create a
// checkpoint, then log a compaction entry referencing it.
func (a *Adapter) BeforeCompaction(sessionID string, data checkpointschema.Data, epochMillis int64) (string, error) {
	checkpointID, err := a.checkpoints.CreateCheckpoint(data, epochMillis)
	if err != nil {
		a.logger.Warn("checkpoint creation failed", "error", err)
		return "", err
	}
	a.appendEntry(sessionID, "", action.TypeCompaction, action.SeverityMedium,
		"compaction checkpoint "+checkpointID, "", nil, map[string]any{"checkpointId": checkpointID})
	return checkpointID, nil
}

// AfterCompaction handles the after_compaction host event.
func (a *Adapter) AfterCompaction(sessionID, checkpointID string) {
	a.appendEntry(sessionID, "", action.TypeCompactionComplete, action.SeverityLow,
		"compaction complete "+checkpointID, "", nil, map[string]any{"checkpointId": checkpointID})
}

func (a *Adapter) logsRoutineEntries() bool {
	return a.logLevel == config.LogLevelEverything
}

func (a *Adapter) appendEntry(sessionID, parentActionID string, typ action.Type, severity action.Severity, description, toolName string, toolParams json.RawMessage, metadata map[string]any) (string, bool) {
	id := ids.NewActionID()
	entry := action.Envelope{
		ID:             id,
		Timestamp:      formatTimestamp(a.now()),
		Type:           typ,
		Severity:       severity,
		Platform:       a.platform,
		Description:    description,
		ToolName:       toolName,
		ToolParams:     toolParams,
		SessionID:      sessionID,
		ParentActionID: parentActionID,
		Metadata:       metadata,
	}
	ok := a.writer.Append(entry)
	return id, ok
}

// isCriticalTool classifies a tool by substring-matching configured
// patterns against its lowercased name, per spec §4.1.
func isCriticalTool(toolName string, patterns []string) bool {
	lowered := strings.ToLower(toolName)
	for _, pattern := range patterns {
		if pattern != "" && strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
