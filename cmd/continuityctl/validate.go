package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/continuity-store/continuity/core/schema/validate"
	streamvalidate "github.com/continuity-store/continuity/core/validate"
)

const (
	schemasDirEnv    = "CONTINUITY_SCHEMAS_DIR"
	defaultSchemaDir = "schemas/v1"
)

var schemaAliases = map[string]string{
	"action":     "action/envelope.schema.json",
	"envelope":   "action/envelope.schema.json",
	"checkpoint": "checkpoint/manifest.schema.json",
	"manifest":   "checkpoint/manifest.schema.json",
}

// runValidate has two modes. With --file, it checks a single JSON or JSONL
// document against one of the two wire schemas (for pipeline/CI use).
// Without it, it re-walks the live stream and certifies the chain
// invariants the writer promises (spec's validateStream).
func runValidate(arguments []string) int {
	flagSet := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flags := bindCommonFlags(flagSet)
	var filePath string
	var schemaName string
	var jsonl bool
	var jsonOutput bool
	flagSet.StringVar(&filePath, "file", "", "validate a single JSON/JSONL document against a wire schema, instead of the live stream")
	flagSet.StringVar(&schemaName, "schema", "action", "schema to validate --file against: action or checkpoint")
	flagSet.BoolVar(&jsonl, "jsonl", false, "treat --file as newline-delimited JSON")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")

	if err := flagSet.Parse(arguments); err != nil {
		fmt.Fprintf(os.Stderr, "continuityctl validate: %v\n", err)
		return exitInvalidInput
	}

	if filePath != "" {
		return runValidateFile(filePath, schemaName, jsonl)
	}
	return runValidateStream(flags, jsonOutput)
}

func runValidateFile(filePath, schemaName string, jsonl bool) int {
	relSchema, ok := schemaAliases[schemaName]
	if !ok {
		fmt.Fprintf(os.Stderr, "continuityctl validate: unknown schema %q (want action or checkpoint)\n", schemaName)
		return exitInvalidInput
	}
	schemaPath := filepath.Join(schemaDir(), relSchema)

	var err error
	if jsonl {
		err = validate.ValidateJSONLFile(schemaPath, filePath)
	} else {
		err = validate.ValidateJSONFile(schemaPath, filePath)
	}
	if err != nil {
		colorFail.Print("FAIL ")
		fmt.Println(filePath)
		fmt.Printf("  %v\n", err)
		return exitValidateFailed
	}
	colorPass.Print("PASS ")
	fmt.Println(filePath)
	return exitOK
}

type validateStreamOutput struct {
	OK     bool                           `json:"ok"`
	Report streamvalidate.IntegrityReport `json:"report,omitempty"`
	Error  string                         `json:"error,omitempty"`
}

func runValidateStream(flags *commonFlags, jsonOutput bool) int {
	cfg, err := flags.loadConfig()
	if err != nil {
		return writeValidateStreamError(jsonOutput, err)
	}

	report, err := streamvalidate.ValidateStream(cfg.StoragePath)
	if err != nil {
		return writeValidateStreamError(jsonOutput, err)
	}

	exitCode := exitOK
	if !report.Valid {
		exitCode = exitValidateFailed
	}
	if jsonOutput {
		return writeJSON(validateStreamOutput{OK: report.Valid, Report: report}, exitCode)
	}

	if report.Valid {
		colorPass.Print("PASS ")
		fmt.Printf("%d action(s) checked, chain intact\n", report.TotalChecked)
		return exitOK
	}
	colorFail.Print("FAIL ")
	fmt.Printf("%d action(s) checked, %d violation(s)\n", report.TotalChecked, len(report.Errors))
	for _, violation := range report.Errors {
		fmt.Printf("  [%s] %s (sequence=%d): %s\n", violation.Kind, violation.File, violation.Sequence, violation.Detail)
	}
	return exitValidateFailed
}

func writeValidateStreamError(jsonOutput bool, err error) int {
	if jsonOutput {
		return writeJSON(validateStreamOutput{OK: false, Error: err.Error()}, exitStoreError)
	}
	fmt.Fprintf(os.Stderr, "continuityctl validate: %v\n", err)
	return exitStoreError
}

func schemaDir() string {
	if dir := os.Getenv(schemasDirEnv); dir != "" {
		return dir
	}
	return defaultSchemaDir
}
