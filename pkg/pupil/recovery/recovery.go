// Package recovery implements the pupil's disk-backed recovery record:
// written atomically (temp file + rename) whenever the NOC client exhausts
// its retries, and replayed once at startup.
package recovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record is the recovery file's JSON shape.
type Record struct {
	Version       int             `json:"version"`
	FailedAt      time.Time       `json:"failedAt"`
	CorrelationID string          `json:"correlationId"`
	Source        string          `json:"source"`
	FailureReason string          `json:"failureReason"`
	NocDetails    json.RawMessage `json:"nocDetails"`
	RecoveredAt   *time.Time      `json:"recoveredAt,omitempty"`
}

const recordVersion = 1

// ErrCorrupt marks a recovery file that exists but cannot be decoded.
// Callers delete the file and continue rather than retrying forever.
var ErrCorrupt = errors.New("recovery file corrupt")

// Store manages the single recovery file under storagePath.
type Store struct {
	path string
}

// New creates a Store for the file storagePath/recoveryFileName.
func New(storagePath, recoveryFileName string) *Store {
	return &Store{path: filepath.Join(storagePath, recoveryFileName)}
}

// Path returns the recovery file's full path.
func (s *Store) Path() string { return s.path }

// Persist writes rec to disk via a temp file + atomic rename, so a crash
// mid-write never leaves a half-written recovery file behind.
func (s *Store) Persist(rec Record) error {
	rec.Version = recordVersion

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding recovery record: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating recovery directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".recovery-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp recovery file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp recovery file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp recovery file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming recovery file into place: %w", err)
	}
	return nil
}

// Load reads the recovery record, if one exists. The second return value is
// false when no recovery file is present.
func (s *Store) Load() (Record, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("reading recovery file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return rec, true, nil
}

// Delete removes the recovery file after a successful replay. A missing
// file is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing recovery file: %w", err)
	}
	return nil
}
