package validate_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/continuity-store/continuity/core/config"
	"github.com/continuity-store/continuity/core/schema/v1/action"
	"github.com/continuity-store/continuity/core/stream"
	"github.com/continuity-store/continuity/core/validate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newWriter(t *testing.T, dir string) *stream.Writer {
	t.Helper()
	cfg := config.Config{LogLevel: config.LogLevelEverything, StoragePath: dir, EnableIntegrityCheck: true}
	fixedNow := func() time.Time { return time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC) }
	writer := stream.New(cfg, discardLogger(), fixedNow)
	if err := writer.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return writer
}

func appendEntries(t *testing.T, writer *stream.Writer, descriptions ...string) {
	t.Helper()
	for _, description := range descriptions {
		entry := action.Envelope{
			Type:        action.TypeToolCall,
			Severity:    action.SeverityLow,
			Platform:    "test-harness",
			Description: description,
		}
		if ok := writer.Append(entry); !ok {
			t.Fatalf("append %q failed", description)
		}
	}
}

// TestValidateStreamValidChain covers P4/scenario-2-style happy path: a
// freshly written chain validates clean.
func TestValidateStreamValidChain(t *testing.T) {
	dir := t.TempDir()
	writer := newWriter(t, dir)
	appendEntries(t, writer, "one", "two", "three")

	report, err := validate.ValidateStream(dir)
	if err != nil {
		t.Fatalf("validate.ValidateStream: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected valid report, got errors: %+v", report.Errors)
	}
	if report.TotalChecked != 3 {
		t.Fatalf("expected totalChecked=3, got %d", report.TotalChecked)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("expected no errors, got %+v", report.Errors)
	}
}

// TestValidateStreamDetectsHashMismatch covers P7/scenario-5: tampering
// with a field changes the recomputed hash for that entry.
func TestValidateStreamDetectsHashMismatch(t *testing.T) {
	dir := t.TempDir()
	writer := newWriter(t, dir)
	appendEntries(t, writer, "one", "two", "three")
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Index 2 is the second data entry (sequence 2): header=0, "one"=1,
	// "two"=2, "three"=3 — matching spec's tamper scenario exactly.
	tamperLine(t, writer.StreamPathForDate(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)), 2, func(entry map[string]any) {
		entry["description"] = "tampered"
	})

	report, err := validate.ValidateStream(dir)
	if err != nil {
		t.Fatalf("validate.ValidateStream: %v", err)
	}
	if report.Valid {
		t.Fatal("expected invalid report after tampering")
	}
	foundHashMismatch := false
	foundChainBreak := false
	for _, e := range report.Errors {
		if e.Kind == validate.ErrorKindHashMismatch {
			foundHashMismatch = true
		}
		if e.Kind == validate.ErrorKindChainBreak {
			foundChainBreak = true
		}
	}
	if !foundHashMismatch {
		t.Fatalf("expected a hash_mismatch error, got %+v", report.Errors)
	}
	// The tampered entry's hash no longer matches what entry 3 recorded as
	// "previous", so a chain_break at sequence 3 is also expected.
	if !foundChainBreak {
		t.Fatalf("expected a chain_break cascading from the tampered entry, got %+v", report.Errors)
	}
}

// TestValidateStreamDetectsDeletedLine covers P7's "deleting a middle
// line" clause.
func TestValidateStreamDetectsDeletedLine(t *testing.T) {
	dir := t.TempDir()
	writer := newWriter(t, dir)
	appendEntries(t, writer, "one", "two", "three")
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := writer.StreamPathForDate(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	lines := readLines(t, path)
	// header + 3 entries; drop the second entry (index 2).
	remaining := append(append([]string{}, lines[:2]...), lines[3:]...)
	writeLines(t, path, remaining)

	report, err := validate.ValidateStream(dir)
	if err != nil {
		t.Fatalf("validate.ValidateStream: %v", err)
	}
	if report.Valid {
		t.Fatal("expected invalid report after deleting a middle line")
	}
}

// TestValidateStreamTolerantOfLegacyEntries covers §4.2's rule that
// entries lacking _integrity pass through without error and do not
// perturb the rolling previousHash.
func TestValidateStreamTolerantOfLegacyEntries(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{LogLevel: config.LogLevelEverything, StoragePath: dir, EnableIntegrityCheck: false}
	fixedNow := func() time.Time { return time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC) }
	writer := stream.New(cfg, discardLogger(), fixedNow)
	if err := writer.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	appendEntries(t, writer, "legacy one", "legacy two")

	report, err := validate.ValidateStream(dir)
	if err != nil {
		t.Fatalf("validate.ValidateStream: %v", err)
	}
	if !report.Valid {
		t.Fatalf("legacy (non-integrity) entries should validate cleanly, got %+v", report.Errors)
	}
}

// TestGetLastHashReturnsMostRecentChainedHash verifies the helper the
// writer uses to self-heal after a missing .state.json.
func TestGetLastHashReturnsMostRecentChainedHash(t *testing.T) {
	dir := t.TempDir()
	writer := newWriter(t, dir)
	appendEntries(t, writer, "one", "two")

	hash, sequence, err := validate.GetLastHash(dir)
	if err != nil {
		t.Fatalf("validate.GetLastHash: %v", err)
	}
	if hash == nil || *hash == "" {
		t.Fatal("expected a non-nil last hash")
	}
	if sequence != 2 {
		t.Fatalf("expected sequence 2, got %d", sequence)
	}
}

// TestGetLastHashEmptyStream returns nils when no stream files exist.
func TestGetLastHashEmptyStream(t *testing.T) {
	dir := t.TempDir()
	hash, sequence, err := validate.GetLastHash(dir)
	if err != nil {
		t.Fatalf("validate.GetLastHash: %v", err)
	}
	if hash != nil || sequence != 0 {
		t.Fatalf("expected (nil, 0) for an empty stream, got (%v, %d)", hash, sequence)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var lines []string
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			lines = append(lines, string(content[start:i]))
			start = i + 1
		}
	}
	return lines
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	var content string
	for _, line := range lines {
		content += line + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func tamperLine(t *testing.T, path string, lineIndex int, mutate func(map[string]any)) {
	t.Helper()
	lines := readLines(t, path)
	if lineIndex >= len(lines) {
		t.Fatalf("line index %d out of range (have %d lines)", lineIndex, len(lines))
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[lineIndex]), &entry); err != nil {
		t.Fatalf("unmarshal line %d: %v", lineIndex, err)
	}
	mutate(entry)
	encoded, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal tampered line: %v", err)
	}
	lines[lineIndex] = string(encoded)
	writeLines(t, path, lines)
}
