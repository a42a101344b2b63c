package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
)

// SnapshotLock is a file lock next to the snapshot file. It keeps a second
// storewatch process from interleaving its writes with ours.
type SnapshotLock struct {
	lock *flock.Flock
	path string
}

// NewSnapshotLock creates a lock for the given snapshot path.
func NewSnapshotLock(dbPath string) (*SnapshotLock, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute snapshot path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("could not create snapshot dir: %w", err)
	}
	lockPath := absPath + lockFileSuffix
	return &SnapshotLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

func (l *SnapshotLock) Path() string { return l.path }

// Lock acquires the lock, waiting if necessary.
// It logs a message if it has to wait.
func (l *SnapshotLock) Lock() error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}

	if !locked {
		Log.Warnf("Another storewatch process is using %s, waiting for it to finish...", l.path)
		if err := l.lock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
		}
	}
	return nil
}

// Unlock releases the lock.
func (l *SnapshotLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}
