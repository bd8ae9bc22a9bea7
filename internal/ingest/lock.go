package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// LockFileName is created in the data directory while it is being written.
const LockFileName = ".ingest.lock"

// DataDirLock is an exclusive cross-process lock on a data directory.
// Readers do not take it.
type DataDirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDataDirLock prepares a lock for dataDir without acquiring it.
func NewDataDirLock(dataDir string) *DataDirLock {
	path := filepath.Join(dataDir, LockFileName)
	return &DataDirLock{path: path, flock: flock.New(path)}
}

// TryLock acquires the lock without blocking. A lock held by another
// process gives ErrCodeLocked.
func (l *DataDirLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return amerrors.New(amerrors.ErrCodeLocked,
			fmt.Sprintf("data directory is being written by another process (%s)", l.path), nil)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. It is safe on an unlocked lock.
func (l *DataDirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DataDirLock) Path() string {
	return l.path
}

// Locked reports whether this lock is held.
func (l *DataDirLock) Locked() bool {
	return l.locked
}
