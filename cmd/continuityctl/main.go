// Command continuityctl is an operator-facing diagnostic tool over a
// continuity store: it inspects stream health, validates entries and
// manifests against schema, lists checkpoints, previews what a session
// restore would surface, and tails the live stream. It never appends
// action entries itself. status and restore-preview do initialize the
// store (creating its directories and today's stream header if missing)
// and rewrite .state.json on exit; the other subcommands only read.
package main

import (
	"fmt"
	"os"
)

var version = "0.0.0-dev"

const (
	exitOK             = 0
	exitInvalidInput   = 1
	exitValidateFailed = 2
	exitStoreError     = 3
)

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	if len(arguments) < 2 {
		fmt.Println("continuityctl", version)
		return exitOK
	}

	switch arguments[1] {
	case "status":
		return runStatus(arguments[2:])
	case "validate":
		return runValidate(arguments[2:])
	case "checkpoints":
		return runCheckpoints(arguments[2:])
	case "restore-preview":
		return runRestorePreview(arguments[2:])
	case "tail":
		return runTail(arguments[2:])
	case "version", "--version", "-v":
		fmt.Println("continuityctl", version)
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  continuityctl status [--storage-path <dir>] [--config <path>] [--json]")
	fmt.Println("  continuityctl validate [--storage-path <dir>] [--config <path>] [--json]")
	fmt.Println("  continuityctl validate --file <path> [--schema <action|checkpoint>] [--jsonl]")
	fmt.Println("  continuityctl checkpoints [--storage-path <dir>] [--config <path>] [--json]")
	fmt.Println("  continuityctl restore-preview --session <id> [--storage-path <dir>] [--config <path>] [--json]")
	fmt.Println("  continuityctl tail [--storage-path <dir>] [--config <path>] [--follow]")
}
