package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/continuity-store/continuity/core/restore"
	"github.com/continuity-store/continuity/core/stream"
)

type restorePreviewOutput struct {
	OK      bool                    `json:"ok"`
	Summary restore.ActivitySummary `json:"summary"`
	Error   string                  `json:"error,omitempty"`
}

func runRestorePreview(arguments []string) int {
	flagSet := pflag.NewFlagSet("restore-preview", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flags := bindCommonFlags(flagSet)
	var sessionID string
	var jsonOutput bool
	flagSet.StringVar(&sessionID, "session", "", "session id to preview a restore for")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")

	if err := flagSet.Parse(arguments); err != nil {
		return writeRestorePreviewError(jsonOutput, err)
	}
	if sessionID == "" {
		err := fmt.Errorf("missing required --session <id>")
		if jsonOutput {
			return writeJSON(restorePreviewOutput{OK: false, Error: err.Error()}, exitInvalidInput)
		}
		fmt.Fprintf(os.Stderr, "continuityctl restore-preview: %v\n", err)
		return exitInvalidInput
	}

	cfg, err := flags.loadConfig()
	if err != nil {
		return writeRestorePreviewError(jsonOutput, err)
	}

	writer := stream.New(cfg, quietLogger(), nil)
	if err := writer.Initialize(); err != nil {
		return writeRestorePreviewError(jsonOutput, err)
	}
	defer writer.Close()

	restorer := restore.New(writer, nil)
	summary, err := restorer.RestoreContext(sessionID)
	if err != nil {
		return writeRestorePreviewError(jsonOutput, err)
	}

	if jsonOutput {
		return writeJSON(restorePreviewOutput{OK: true, Summary: summary}, exitOK)
	}

	fmt.Printf("session %s: %d action(s) over %.0fs (gap %s)\n", summary.SessionID, summary.ActionCount, summary.DurationSeconds, summary.HumanGap)
	fmt.Printf("  critical=%d high=%d\n", summary.CriticalCount, summary.HighCount)
	for _, decision := range summary.KeyDecisions {
		fmt.Printf("  [%s] %s: %s\n", decision.Timestamp, decision.Type, decision.Description)
	}
	for _, workflow := range summary.ActiveWorkflows {
		fmt.Printf("  workflow %s (%d)\n", workflow.Workflow, workflow.Count)
	}
	return exitOK
}

func writeRestorePreviewError(jsonOutput bool, err error) int {
	if jsonOutput {
		return writeJSON(restorePreviewOutput{OK: false, Error: err.Error()}, exitStoreError)
	}
	fmt.Fprintf(os.Stderr, "continuityctl restore-preview: %v\n", err)
	return exitStoreError
}
