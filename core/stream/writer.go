// Package stream implements the hash-chained append-only action log: the
// Stream Writer component of spec §4.1. It owns the current UTC day's log
// file, assigns sequence numbers, computes the integrity chain, rotates at
// the day boundary, and falls back to an emergency log when the primary
// path fails.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/continuity-store/continuity/core/canon"
	"github.com/continuity-store/continuity/core/config"
	"github.com/continuity-store/continuity/core/fsx"
	"github.com/continuity-store/continuity/core/ids"
	"github.com/continuity-store/continuity/core/logging"
	"github.com/continuity-store/continuity/core/schema/v1/action"
	"github.com/continuity-store/continuity/core/validate"
)

const (
	streamFilePrefix   = "action-stream-"
	streamFileSuffix   = ".jsonl"
	stateFileName      = ".state.json"
	manifestFileName   = "COMPACTION_MANIFEST.json"
	emergencyFileName  = "EMERGENCY_RECOVERY.jsonl"
	checkpointsDirName = "checkpoints"
	backupsDirName     = "backups"

	minFreeSpaceMB       = 100
	emergencyThresholdMB = 50

	dayLayout = "2006-01-02"
)

// Clock abstracts the wall clock so rotation and gap computations are
// deterministic under test.
type Clock func() time.Time

// Writer is the Stream Writer. Construct with New, then call Initialize
// before any Append.
type Writer struct {
	mu sync.Mutex

	storagePath               string
	logLevel                  config.LogLevel
	enableIntegrityCheck      bool
	now                       Clock
	logger                    *slog.Logger

	sequence          int64
	lastHash          *string
	currentStreamPath string
	emergencyMode     bool
	initialized       bool
}

// New constructs a Writer from configuration. now defaults to time.Now
// when nil.
func New(cfg config.Config, logger *slog.Logger, now Clock) *Writer {
	if now == nil {
		now = time.Now
	}
	return &Writer{
		storagePath:          cfg.StoragePath,
		logLevel:             cfg.LogLevel,
		enableIntegrityCheck: cfg.EnableIntegrityCheck,
		now:                  now,
		logger:               logging.Component(logger, "stream"),
	}
}

func (w *Writer) StoragePath() string { return w.storagePath }

func (w *Writer) StateFilePath() string { return filepath.Join(w.storagePath, stateFileName) }

func (w *Writer) EmergencyFilePath() string { return filepath.Join(w.storagePath, emergencyFileName) }

func (w *Writer) CheckpointsDir() string { return filepath.Join(w.storagePath, checkpointsDirName) }

func (w *Writer) ManifestPath() string { return filepath.Join(w.storagePath, manifestFileName) }

// StreamPathForDate returns the path of the day's stream file for t's UTC
// calendar date.
func (w *Writer) StreamPathForDate(t time.Time) string {
	return filepath.Join(w.storagePath, streamFilePrefix+t.UTC().Format(dayLayout)+streamFileSuffix)
}

// StreamFiles returns every action-stream-*.jsonl file under storagePath,
// sorted lexically (== chronologically, given the fixed-width date suffix).
func (w *Writer) StreamFiles() ([]string, error) {
	return fsx.ListFilesWithAffixes(w.storagePath, streamFilePrefix, streamFileSuffix)
}

// Initialize creates the storage directories, loads persisted state if
// present, and opens (or creates) the current day's stream file. Idempotent.
func (w *Writer) Initialize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.initializeLocked()
}

func (w *Writer) initializeLocked() error {
	if err := os.MkdirAll(w.storagePath, 0o750); err != nil {
		return fmt.Errorf("create storage path: %w", err)
	}
	if err := os.MkdirAll(w.CheckpointsDir(), 0o750); err != nil {
		return fmt.Errorf("create checkpoints dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(w.storagePath, backupsDirName), 0o750); err != nil {
		return fmt.Errorf("create backups dir: %w", err)
	}

	if err := w.loadState(); err != nil {
		return err
	}

	now := w.now().UTC()
	path := w.StreamPathForDate(now)
	if !statPathExists(path) {
		if err := w.writeHeader(path, now); err != nil {
			return err
		}
	}
	w.currentStreamPath = path
	w.initialized = true
	return nil
}

func (w *Writer) loadState() error {
	// #nosec G304 -- state path is derived from the configured storage path.
	content, err := os.ReadFile(w.StateFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return w.recoverLastHashFromStream()
		}
		return fmt.Errorf("read state file: %w", err)
	}
	var state action.State
	if err := json.Unmarshal(content, &state); err != nil {
		w.logger.Warn("state file is malformed, starting from genesis", "error", err)
		return nil
	}
	w.sequence = state.Sequence
	w.lastHash = state.LastHash
	return nil
}

// recoverLastHashFromStream resolves Open Question #1 in spec §9: when
// .state.json is missing, reconstruct lastHash by re-scanning the stream
// tail (via core/validate.GetLastHash) instead of silently chaining the
// next entry against "genesis".
func (w *Writer) recoverLastHashFromStream() error {
	hash, sequence, err := validate.GetLastHash(w.storagePath)
	if err != nil {
		w.logger.Warn("failed to recover last hash from stream tail", "error", err)
		return nil
	}
	w.lastHash = hash
	w.sequence = sequence
	return nil
}

func (w *Writer) writeHeader(path string, now time.Time) error {
	header := action.Header{
		Header:           true,
		SchemaVersion:    action.SchemaVersion,
		Created:          formatTimestamp(now),
		IntegrityEnabled: w.enableIntegrityCheck,
	}
	encoded, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal stream header: %w", err)
	}
	if err := fsx.CreateExclusive(path, append(encoded, '\n'), 0o600); err != nil {
		if err == fsx.ErrAlreadyExists {
			// Another writer created the day's file first; that writer's
			// header is authoritative. Not an error (spec §4.1 step "initialize").
			return nil
		}
		return fmt.Errorf("write stream header: %w", err)
	}
	return nil
}

// Append is the only mutation path (spec §4.1 "append"). It returns true
// iff the entry (or its emergency fallback) was durably written, except at
// logLevel off, where it returns true without writing anything.
func (w *Writer) Append(entry action.Envelope) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.logLevel == config.LogLevelOff {
		return true
	}
	if !w.initialized {
		w.logger.Error("append called before initialize")
		return w.appendEmergencyLocked(entry)
	}
	if w.emergencyMode {
		return w.appendEmergencyLocked(entry)
	}

	if freeMB, ok := freeSpaceMB(w.storagePath); ok {
		if freeMB < emergencyThresholdMB {
			w.logger.Error("CRITICAL: free space below emergency threshold", "free_mb", freeMB)
		}
		if freeMB < minFreeSpaceMB {
			w.logger.Error("disk exhausted, entering emergency mode", "free_mb", freeMB)
			w.emergencyMode = true
			return w.appendEmergencyLocked(entry)
		}
	}

	now := w.now().UTC()
	dayPath := w.StreamPathForDate(now)
	if dayPath != w.currentStreamPath {
		if err := w.writeHeader(dayPath, now); err != nil {
			w.logger.Error("rotation failed, falling back to emergency log", "error", err)
			w.emergencyMode = true
			return w.appendEmergencyLocked(entry)
		}
		w.currentStreamPath = dayPath
	}

	sealed := entry
	sealed.Sequence = w.sequence + 1
	if sealed.Timestamp == "" {
		sealed.Timestamp = formatTimestamp(now)
	}

	var nextHash string
	if w.enableIntegrityCheck {
		previous := "genesis"
		if w.lastHash != nil {
			previous = *w.lastHash
		}
		hash, err := computeHash(sealed, previous)
		if err != nil {
			w.logger.Error("hash computation failed", "error", err)
			return w.appendEmergencyLocked(entry)
		}
		sealed.Integrity = &action.Integrity{Hash: hash, Previous: previous}
		nextHash = hash
	}

	encoded, err := json.Marshal(sealed)
	if err != nil {
		w.logger.Error("serialize entry failed", "error", err)
		return w.appendEmergencyLocked(entry)
	}

	if err := fsx.AppendLineLocked(w.currentStreamPath, encoded, 0o600); err != nil {
		w.logger.Error("append failed, entering emergency mode", "error", err)
		w.emergencyMode = true
		return w.appendEmergencyLocked(entry)
	}

	w.sequence = sealed.Sequence
	if w.enableIntegrityCheck {
		hash := nextHash
		w.lastHash = &hash
	}
	return true
}

// appendEmergencyLocked writes entry, augmented with _emergency fields, to
// EMERGENCY_RECOVERY.jsonl. Caller must hold w.mu.
func (w *Writer) appendEmergencyLocked(entry action.Envelope) bool {
	emergency := action.EmergencyEnvelope{
		Envelope:           entry,
		Emergency:          true,
		EmergencyTimestamp: formatTimestamp(w.now().UTC()),
	}
	emergency.Integrity = nil
	if emergency.ID == "" {
		emergency.ID = ids.NewActionID()
	}
	encoded, err := json.Marshal(emergency)
	if err != nil {
		w.logger.Error("emergency serialize failed", "error", err)
		return false
	}
	if err := fsx.AppendLineLocked(w.EmergencyFilePath(), encoded, 0o600); err != nil {
		w.logger.Error("emergency append failed", "error", err)
		return false
	}
	return true
}

// Close persists .state.json (spec §4.1 "close").
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	state := action.State{Sequence: w.sequence, LastHash: w.lastHash}
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return fsx.WriteFileAtomic(w.StateFilePath(), encoded, 0o600)
}

// GetRecentActions streams the current day's file tail-first and returns
// up to limit most recent valid entries in forward order. Malformed lines
// are skipped silently.
func (w *Writer) GetRecentActions(limit int) ([]action.Envelope, error) {
	w.mu.Lock()
	path := w.currentStreamPath
	w.mu.Unlock()
	if path == "" || limit <= 0 {
		return nil, nil
	}
	lines, err := fsx.ReadNonEmptyLines(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []action.Envelope
	for i := len(lines) - 1; i >= 0 && len(entries) < limit; i-- {
		var envelope action.Envelope
		if json.Unmarshal([]byte(lines[i]), &envelope) != nil {
			continue
		}
		if envelope.ID == "" && envelope.Sequence == 0 {
			continue // header line
		}
		entries = append(entries, envelope)
	}
	// reverse into forward order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// QueryOptions filters queryActions (spec §4.1).
type QueryOptions struct {
	Type     action.Type
	Platform string
	Since    string
	Until    string
	Limit    int
}

// QueryActions iterates all stream files in chronological order, yielding
// entries matching every provided predicate, stopping at Limit (0 means
// unlimited).
func (w *Writer) QueryActions(opts QueryOptions) ([]action.Envelope, error) {
	files, err := w.StreamFiles()
	if err != nil {
		return nil, err
	}
	var results []action.Envelope
	for _, file := range files {
		lines, err := fsx.ReadNonEmptyLines(file)
		if err != nil {
			continue
		}
		for _, line := range lines {
			var envelope action.Envelope
			if json.Unmarshal([]byte(line), &envelope) != nil {
				continue
			}
			if envelope.ID == "" && envelope.Sequence == 0 {
				continue // header line
			}
			if opts.Type != "" && envelope.Type != opts.Type {
				continue
			}
			if opts.Platform != "" && envelope.Platform != opts.Platform {
				continue
			}
			if opts.Since != "" && envelope.Timestamp < opts.Since {
				continue
			}
			if opts.Until != "" && envelope.Timestamp > opts.Until {
				continue
			}
			results = append(results, envelope)
			if opts.Limit > 0 && len(results) >= opts.Limit {
				return results, nil
			}
		}
	}
	return results, nil
}

// Stats is the result of GetStats.
type Stats struct {
	TotalActions   int64
	StreamFiles    int
	StorageSizeMB  float64
	LastActionTime string
}

// GetStats returns aggregate stream statistics.
func (w *Writer) GetStats() (Stats, error) {
	w.mu.Lock()
	sequence := w.sequence
	w.mu.Unlock()

	files, err := w.StreamFiles()
	if err != nil {
		return Stats{}, err
	}
	var totalBytes int64
	for _, file := range files {
		if info, err := os.Stat(file); err == nil {
			totalBytes += info.Size()
		}
	}
	lastActionTime, _ := w.lastActionTime(files)
	return Stats{
		TotalActions:   sequence,
		StreamFiles:    len(files),
		StorageSizeMB:  float64(totalBytes) / (1024 * 1024),
		LastActionTime: lastActionTime,
	}, nil
}

// LastActionTimestamp reverse-scans the stream for the timestamp of the
// most recently appended entry, used by the session restorer's implicit
// resumption check.
func (w *Writer) LastActionTimestamp() (string, bool, error) {
	files, err := w.StreamFiles()
	if err != nil {
		return "", false, err
	}
	timestamp, ok := w.lastActionTime(files)
	return timestamp, ok, nil
}

func (w *Writer) lastActionTime(files []string) (string, bool) {
	for i := len(files) - 1; i >= 0; i-- {
		lines, err := fsx.ReadNonEmptyLines(files[i])
		if err != nil {
			continue
		}
		for j := len(lines) - 1; j >= 0; j-- {
			var envelope action.Envelope
			if json.Unmarshal([]byte(lines[j]), &envelope) != nil {
				continue
			}
			if envelope.ID == "" && envelope.Sequence == 0 {
				continue
			}
			return envelope.Timestamp, true
		}
	}
	return "", false
}

// computeHash implements spec §4.1's canonical serialization rule: the
// sequence-bearing entry without Integrity, JCS-canonicalized, concatenated
// with previous, then SHA-256 hex (core/canon.HashWithPrevious is shared
// with core/validate so the two can never disagree on the concatenation).
func computeHash(sealed action.Envelope, previous string) (string, error) {
	sealed.Integrity = nil
	raw, err := json.Marshal(sealed)
	if err != nil {
		return "", err
	}
	canonical, err := canon.CanonicalizeJSON(raw)
	if err != nil {
		return "", err
	}
	return canon.HashWithPrevious(canonical, previous)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
