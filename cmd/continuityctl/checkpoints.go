package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/continuity-store/continuity/core/checkpoint"
	checkpointschema "github.com/continuity-store/continuity/core/schema/v1/checkpoint"
)

type checkpointsOutput struct {
	OK          bool                      `json:"ok"`
	Checkpoints []checkpointschema.Record `json:"checkpoints"`
	Error       string                    `json:"error,omitempty"`
}

func runCheckpoints(arguments []string) int {
	flagSet := pflag.NewFlagSet("checkpoints", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flags := bindCommonFlags(flagSet)
	var jsonOutput bool
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")

	if err := flagSet.Parse(arguments); err != nil {
		return writeCheckpointsError(jsonOutput, err)
	}

	cfg, err := flags.loadConfig()
	if err != nil {
		return writeCheckpointsError(jsonOutput, err)
	}

	manager := checkpoint.New(cfg.StoragePath, quietLogger())
	records, err := manager.ListCheckpoints()
	if err != nil {
		return writeCheckpointsError(jsonOutput, err)
	}

	if jsonOutput {
		return writeJSON(checkpointsOutput{OK: true, Checkpoints: records}, exitOK)
	}

	if len(records) == 0 {
		printWarnLine("checkpoints", "none recorded yet")
		return exitOK
	}
	for _, record := range records {
		fmt.Printf("%s  session=%s  messages=%d  created=%s\n",
			record.CheckpointID, record.Data.SessionID, record.Data.MessageCount, record.CreatedAt)
	}
	return exitOK
}

func writeCheckpointsError(jsonOutput bool, err error) int {
	if jsonOutput {
		return writeJSON(checkpointsOutput{OK: false, Error: err.Error()}, exitStoreError)
	}
	fmt.Fprintf(os.Stderr, "continuityctl checkpoints: %v\n", err)
	return exitStoreError
}
