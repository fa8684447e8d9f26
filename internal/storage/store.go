// Package storage persists the session token pair, the builder snapshot and
// the one-shot password-reset flag to durable local files.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bunstack/internal/builder"
	"bunstack/internal/fileutil"
	"bunstack/internal/logging"
)

// SnapshotTTL is how long a persisted builder snapshot stays applicable.
const SnapshotTTL = 24 * time.Hour

var (
	// ErrNoSnapshot is returned when no snapshot has been persisted.
	ErrNoSnapshot = errors.New("no builder snapshot persisted")
	// ErrSnapshotExpired is returned for a snapshot older than SnapshotTTL.
	ErrSnapshotExpired = errors.New("builder snapshot expired")
	// ErrSnapshotInvalid is returned for a corrupt or base-less snapshot.
	ErrSnapshotInvalid = errors.New("builder snapshot invalid")
)

// File names inside the data directory. They mirror the storage keys the
// wire contract documents.
const (
	accessTokenFile  = "accessToken"
	refreshTokenFile = "refreshToken"
	snapshotFile     = "builder.json"
	resetFlagFile    = "resetFlag"
)

// Store reads and writes the keyed blobs under a single data directory.
// Writes are atomic (tmp + rename); reads treat missing files as zero values.
type Store struct {
	dir string

	// now is replaceable for TTL tests.
	now func() time.Time
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// SaveTokens persists the access/refresh token pair. The two files are
// written transactionally so a failure cannot leave one half of the pair
// stale.
func (s *Store) SaveTokens(access, refresh string) error {
	tx := fileutil.NewTransaction(s.dir)
	tx.Write(accessTokenFile, []byte(access))
	tx.Write(refreshTokenFile, []byte(refresh))
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to persist token pair: %w", err)
	}
	return nil
}

// LoadTokens returns the persisted token pair. Missing tokens come back as
// empty strings, not errors.
func (s *Store) LoadTokens() (access, refresh string) {
	return s.readString(accessTokenFile), s.readString(refreshTokenFile)
}

// ClearTokens removes both tokens.
func (s *Store) ClearTokens() {
	s.remove(accessTokenFile)
	s.remove(refreshTokenFile)
}

// SaveSnapshot persists the builder snapshot with its timestamp.
func (s *Store) SaveSnapshot(snap builder.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode builder snapshot: %w", err)
	}
	if err := fileutil.AtomicWrite(s.path(snapshotFile), data, 0o600); err != nil {
		return fmt.Errorf("failed to persist builder snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the persisted builder snapshot if it is still valid.
// Corrupt, base-less or expired snapshots are erased and reported with a
// typed error, never repaired.
func (s *Store) LoadSnapshot() (builder.Snapshot, error) {
	data, err := os.ReadFile(s.path(snapshotFile))
	if err != nil {
		if os.IsNotExist(err) {
			return builder.Snapshot{}, ErrNoSnapshot
		}
		return builder.Snapshot{}, fmt.Errorf("failed to read builder snapshot: %w", err)
	}

	var snap builder.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logging.Warn("discarding corrupt builder snapshot", "error", err)
		s.ClearSnapshot()
		return builder.Snapshot{}, ErrSnapshotInvalid
	}

	if snap.Base == nil {
		s.ClearSnapshot()
		return builder.Snapshot{}, ErrSnapshotInvalid
	}

	if snap.Timestamp.IsZero() || s.now().Sub(snap.Timestamp) > SnapshotTTL {
		s.ClearSnapshot()
		return builder.Snapshot{}, ErrSnapshotExpired
	}

	return snap, nil
}

// ClearSnapshot erases the persisted builder snapshot.
func (s *Store) ClearSnapshot() {
	s.remove(snapshotFile)
}

// SetResetFlag arms the one-shot gate for the password-reset flow.
func (s *Store) SetResetFlag() error {
	return fileutil.AtomicWrite(s.path(resetFlagFile), []byte("1"), 0o600)
}

// ConsumeResetFlag reports whether the reset flag was armed and disarms it.
// It returns true at most once per SetResetFlag.
func (s *Store) ConsumeResetFlag() bool {
	if s.readString(resetFlagFile) == "" {
		return false
	}
	s.remove(resetFlagFile)
	return true
}

// ClearSession flushes everything tied to the session: both tokens and the
// builder snapshot.
func (s *Store) ClearSession() {
	s.ClearTokens()
	s.ClearSnapshot()
}

func (s *Store) readString(name string) string {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (s *Store) remove(name string) {
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		logging.Warn("failed to remove stored key", "key", name, "error", err)
	}
}
