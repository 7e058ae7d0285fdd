package validate

import (
	"encoding/json"

	"github.com/continuity-store/continuity/core/canon"
	"github.com/continuity-store/continuity/core/fsx"
)

const (
	streamFilePrefix = "action-stream-"
	streamFileSuffix = ".jsonl"
)

// streamEntry is the minimal shape validate needs from a line; it mirrors
// action.Envelope's wire fields without importing the action package, so
// that core/stream can depend on core/validate (for GetLastHash) without a
// cycle.
type streamEntry struct {
	ID        string `json:"id"`
	Sequence  int64  `json:"sequence,omitempty"`
	Timestamp string `json:"timestamp"`
	Integrity *struct {
		Hash     string `json:"hash"`
		Previous string `json:"previous"`
	} `json:"_integrity,omitempty"`
}

func (e streamEntry) isHeaderOrBlank() bool {
	return e.ID == "" && e.Sequence == 0
}

// StreamFiles lists action-stream-*.jsonl files under storagePath in
// chronological order.
func StreamFiles(storagePath string) ([]string, error) {
	return fsx.ListFilesWithAffixes(storagePath, streamFilePrefix, streamFileSuffix)
}

// ValidateStream re-derives I1 (monotonicity), I2 (chain), and I3 (hash
// soundness) by walking every stream file in order.
func ValidateStream(storagePath string) (IntegrityReport, error) {
	files, err := StreamFiles(storagePath)
	if err != nil {
		return IntegrityReport{}, err
	}

	report := IntegrityReport{SchemaVersion: reportSchemaVersion, Valid: true}
	var previousHash *string
	var expectedSequence int64

	for _, file := range files {
		lines, readErr := fsx.ReadNonEmptyLines(file)
		if readErr != nil {
			report.Valid = false
			report.Errors = append(report.Errors, IntegrityError{
				Kind: ErrorKindUnreadable, File: file, Detail: readErr.Error(),
			})
			continue
		}
		for _, line := range lines {
			var entry streamEntry
			if jsonErr := json.Unmarshal([]byte(line), &entry); jsonErr != nil {
				report.Valid = false
				report.Errors = append(report.Errors, IntegrityError{
					Kind: ErrorKindInvalidJSON, File: file, Detail: jsonErr.Error(),
				})
				continue
			}
			if entry.isHeaderOrBlank() {
				continue
			}

			expectedSequence++
			report.TotalChecked++
			if report.FirstAction == "" {
				report.FirstAction = entry.Timestamp
			}
			report.LastAction = entry.Timestamp

			if entry.Sequence != expectedSequence {
				report.Valid = false
				report.Errors = append(report.Errors, IntegrityError{
					Kind: ErrorKindChainBreak, File: file, Sequence: entry.Sequence,
					Detail: "sequence out of order or gapped",
				})
			}

			if entry.Integrity == nil {
				continue // legacy/non-chained entries are tolerated (spec §4.2)
			}

			expectedPrevious := "genesis"
			if previousHash != nil {
				expectedPrevious = *previousHash
			}
			if entry.Integrity.Previous != expectedPrevious {
				report.Valid = false
				report.Errors = append(report.Errors, IntegrityError{
					Kind: ErrorKindChainBreak, File: file, Sequence: entry.Sequence,
					Detail: "previous hash does not match the preceding chained entry",
				})
			}

			recomputed, hashErr := recomputeHash(line, entry.Integrity.Previous)
			if hashErr != nil || recomputed != entry.Integrity.Hash {
				report.Valid = false
				report.Errors = append(report.Errors, IntegrityError{
					Kind: ErrorKindHashMismatch, File: file, Sequence: entry.Sequence,
					Detail: "stored hash does not match recomputed hash",
				})
			}

			// Chain forward on the recomputed hash, not the stored one: a
			// tampered entry's content changes its true hash even though the
			// stale _integrity.hash field on disk does not, and the next
			// entry's previous pointer must be checked against that true
			// value so tampering cascades into a chain_break downstream.
			if hashErr == nil {
				previousHash = &recomputed
			} else {
				hash := entry.Integrity.Hash
				previousHash = &hash
			}
		}
	}
	return report, nil
}

// recomputeHash strips _integrity from the raw on-disk line and applies
// the same canonicalization the writer used to produce the hash, per spec
// §9's canonical serialization rule.
func recomputeHash(line string, previous string) (string, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &generic); err != nil {
		return "", err
	}
	delete(generic, "_integrity")
	raw, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	canonical, err := canon.CanonicalizeJSON(raw)
	if err != nil {
		return "", err
	}
	return canon.HashWithPrevious(canonical, previous)
}

// GetLastHash reverse-scans the stream tail for the most recent
// _integrity.hash, used by the writer to self-heal lastHash when
// .state.json is missing. The returned sequence is that of the most recent
// entry, chained or not.
func GetLastHash(storagePath string) (hash *string, sequence int64, err error) {
	files, err := StreamFiles(storagePath)
	if err != nil {
		return nil, 0, err
	}
	seenEntry := false
	for i := len(files) - 1; i >= 0; i-- {
		lines, readErr := fsx.ReadNonEmptyLines(files[i])
		if readErr != nil {
			return nil, 0, readErr
		}
		for j := len(lines) - 1; j >= 0; j-- {
			var entry streamEntry
			if json.Unmarshal([]byte(lines[j]), &entry) != nil {
				continue
			}
			if entry.isHeaderOrBlank() {
				continue
			}
			if !seenEntry {
				sequence = entry.Sequence
				seenEntry = true
			}
			if entry.Integrity != nil && entry.Integrity.Hash != "" {
				found := entry.Integrity.Hash
				return &found, sequence, nil
			}
		}
	}
	return nil, sequence, nil
}
