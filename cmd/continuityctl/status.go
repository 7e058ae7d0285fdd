package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/continuity-store/continuity/core/checkpoint"
	"github.com/continuity-store/continuity/core/stream"
)

type statusOutput struct {
	OK          bool         `json:"ok"`
	StoragePath string       `json:"storagePath"`
	Stats       stream.Stats `json:"stats"`
	CanRecover  bool         `json:"canRecover"`
	Error       string       `json:"error,omitempty"`
}

func runStatus(arguments []string) int {
	flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flags := bindCommonFlags(flagSet)
	var jsonOutput bool
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")

	if err := flagSet.Parse(arguments); err != nil {
		return writeStatusError(jsonOutput, err)
	}

	cfg, err := flags.loadConfig()
	if err != nil {
		return writeStatusError(jsonOutput, err)
	}

	writer := stream.New(cfg, quietLogger(), nil)
	if err := writer.Initialize(); err != nil {
		return writeStatusError(jsonOutput, err)
	}
	defer writer.Close()

	stats, err := writer.GetStats()
	if err != nil {
		return writeStatusError(jsonOutput, err)
	}

	manager := checkpoint.New(cfg.StoragePath, quietLogger())
	canRecover, err := manager.CanRecover()
	if err != nil {
		return writeStatusError(jsonOutput, err)
	}

	output := statusOutput{OK: true, StoragePath: cfg.StoragePath, Stats: stats, CanRecover: canRecover}
	if jsonOutput {
		return writeJSON(output, exitOK)
	}

	printStatusLine("storage path", true, cfg.StoragePath)
	printStatusLine("stream files", stats.StreamFiles > 0, fmt.Sprintf("%d file(s)", stats.StreamFiles))
	printStatusLine("total actions", true, fmt.Sprintf("%d", stats.TotalActions))
	if stats.LastActionTime == "" {
		printWarnLine("last action", "no actions recorded yet")
	} else {
		printStatusLine("last action", true, stats.LastActionTime)
	}
	if canRecover {
		printStatusLine("recovery", true, "a checkpoint is available")
	} else {
		printWarnLine("recovery", "no recoverable checkpoint")
	}
	return exitOK
}

func writeStatusError(jsonOutput bool, err error) int {
	if jsonOutput {
		return writeJSON(statusOutput{OK: false, Error: err.Error()}, exitStoreError)
	}
	fmt.Fprintf(os.Stderr, "continuityctl status: %v\n", err)
	return exitStoreError
}
