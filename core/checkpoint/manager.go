// Package checkpoint implements the Checkpoint Manager (spec §4.3): it
// records a recovery-oriented snapshot just before the host compacts its
// in-memory context, and tracks whether that snapshot is still eligible
// for recovery. Grounded on the teacher's
// core/runpack.EmitSessionCheckpoint/WriteSessionChain/session-lock
// pattern, adapted from a digest-chained sequence of runpacks to a single
// "latest manifest + pruned checkpoint directory" shape.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/continuity-store/continuity/core/fsx"
	"github.com/continuity-store/continuity/core/ids"
	"github.com/continuity-store/continuity/core/logging"
	"github.com/continuity-store/continuity/core/schema/v1/checkpoint"
)

const (
	maxRetainedCheckpoints = 50
	checkpointsDirName     = "checkpoints"
	manifestFileName       = "COMPACTION_MANIFEST.json"
	recoveryWindowSize     = 100
)

// Manager is the Checkpoint Manager. All methods are safe for concurrent
// use.
type Manager struct {
	mu          sync.Mutex
	storagePath string
	now         func() string
	logger      *slog.Logger
}

// New constructs a Manager rooted at storagePath. The Manager reads no
// clock: callers stamp Data.Timestamp themselves and pass the epoch-millis
// value for the checkpoint id to each CreateCheckpoint call.
func New(storagePath string, logger *slog.Logger) *Manager {
	return &Manager{storagePath: storagePath, logger: logging.Component(logger, "checkpoint")}
}

func (m *Manager) checkpointsDir() string { return filepath.Join(m.storagePath, checkpointsDirName) }

func (m *Manager) manifestPath() string { return filepath.Join(m.storagePath, manifestFileName) }

func (m *Manager) checkpointPath(id string) string {
	return filepath.Join(m.checkpointsDir(), id+".json")
}

// CreateCheckpoint implements spec §4.3 steps 1-5.
func (m *Manager) CreateCheckpoint(data checkpoint.Data, epochMillis int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.checkpointsDir(), 0o750); err != nil {
		return "", fmt.Errorf("create checkpoints dir: %w", err)
	}

	checkpointID := ids.NewCheckpointID(epochMillis)
	record := checkpoint.Record{CheckpointID: checkpointID, CreatedAt: data.Timestamp, Data: data}
	encoded, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint record: %w", err)
	}
	if err := fsx.WriteFileAtomic(m.checkpointPath(checkpointID), encoded, 0o600); err != nil {
		return "", fmt.Errorf("write checkpoint record: %w", err)
	}

	start := data.MessageCount - recoveryWindowSize
	if start < 0 {
		start = 0
	}
	manifest := checkpoint.Manifest{
		SchemaVersion: checkpoint.SchemaVersion,
		Checkpoint:    data,
		CheckpointID:  checkpointID,
		RecoveryInfo: checkpoint.RecoveryInfo{
			OriginalMessageRange: checkpoint.MessageRange{Start: start, End: data.MessageCount},
			CompactedAt:          data.Timestamp,
			CanRecover:           true,
		},
	}
	if err := m.writeManifestLocked(manifest); err != nil {
		return "", err
	}

	if err := m.pruneLocked(); err != nil {
		m.logger.Warn("checkpoint pruning failed", "error", err)
	}

	return checkpointID, nil
}

func (m *Manager) writeManifestLocked(manifest checkpoint.Manifest) error {
	encoded, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal compaction manifest: %w", err)
	}
	if err := fsx.WriteFileAtomic(m.manifestPath(), encoded, 0o600); err != nil {
		return fmt.Errorf("write compaction manifest: %w", err)
	}
	return nil
}

// pruneLocked deletes the oldest checkpoints once more than
// maxRetainedCheckpoints exist on disk, sorted by timestamp. Caller must
// hold m.mu.
func (m *Manager) pruneLocked() error {
	records, err := m.listCheckpointsLocked()
	if err != nil {
		return err
	}
	if len(records) <= maxRetainedCheckpoints {
		return nil
	}
	// listCheckpointsLocked returns newest first; the excess tail is oldest.
	for _, record := range records[maxRetainedCheckpoints:] {
		if err := os.Remove(m.checkpointPath(record.CheckpointID)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("prune checkpoint %s: %w", record.CheckpointID, err)
		}
	}
	return nil
}

// GetLastCheckpoint returns the most recently created checkpoint record,
// or ok=false if none exist.
func (m *Manager) GetLastCheckpoint() (checkpoint.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records, err := m.listCheckpointsLocked()
	if err != nil {
		return checkpoint.Record{}, false, err
	}
	if len(records) == 0 {
		return checkpoint.Record{}, false, nil
	}
	return records[0], true, nil
}

// GetManifest reads COMPACTION_MANIFEST.json. ok is false if it does not
// exist.
func (m *Manager) GetManifest() (checkpoint.Manifest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getManifestLocked()
}

func (m *Manager) getManifestLocked() (checkpoint.Manifest, bool, error) {
	// #nosec G304 -- manifest path is derived from the configured storage path.
	content, err := os.ReadFile(m.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return checkpoint.Manifest{}, false, nil
		}
		return checkpoint.Manifest{}, false, fmt.Errorf("read compaction manifest: %w", err)
	}
	var manifest checkpoint.Manifest
	if err := json.Unmarshal(content, &manifest); err != nil {
		return checkpoint.Manifest{}, false, fmt.Errorf("parse compaction manifest: %w", err)
	}
	return manifest, true, nil
}

// ListCheckpoints returns every checkpoint record, newest first.
func (m *Manager) ListCheckpoints() ([]checkpoint.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCheckpointsLocked()
}

func (m *Manager) listCheckpointsLocked() ([]checkpoint.Record, error) {
	entries, err := os.ReadDir(m.checkpointsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list checkpoints dir: %w", err)
	}
	var records []checkpoint.Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		// #nosec G304 -- path is built from a directory listing under the configured storage path.
		content, readErr := os.ReadFile(filepath.Join(m.checkpointsDir(), entry.Name()))
		if readErr != nil {
			m.logger.Warn("failed to read checkpoint file", "file", entry.Name(), "error", readErr)
			continue
		}
		var record checkpoint.Record
		if jsonErr := json.Unmarshal(content, &record); jsonErr != nil {
			m.logger.Warn("failed to parse checkpoint file", "file", entry.Name(), "error", jsonErr)
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt > records[j].CreatedAt })
	return records, nil
}

// CanRecover is true iff the manifest exists, its recoveryInfo.canRecover
// is true, and the referenced checkpoint file still exists.
func (m *Manager) CanRecover() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	manifest, ok, err := m.getManifestLocked()
	if err != nil || !ok {
		return false, err
	}
	if !manifest.RecoveryInfo.CanRecover {
		return false, nil
	}
	if _, statErr := os.Stat(m.checkpointPath(manifest.CheckpointID)); statErr != nil {
		return false, nil
	}
	return true, nil
}

// MarkRecovered flips recoveryInfo.canRecover to false and rewrites the
// manifest, but only if the manifest's current checkpoint matches id.
func (m *Manager) MarkRecovered(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	manifest, ok, err := m.getManifestLocked()
	if err != nil {
		return err
	}
	if !ok || manifest.CheckpointID != id {
		return nil
	}
	manifest.RecoveryInfo.CanRecover = false
	return m.writeManifestLocked(manifest)
}
