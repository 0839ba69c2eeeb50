package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

const lockFileSuffix = ".lock"

// DBLock serializes writers of the last-known-good SQLite file. The file
// lock covers other htbcard processes; a flock handle is reentrant within
// one process, so goroutines of this process queue on mu first.
type DBLock struct {
	mu   sync.Mutex
	file *flock.Flock
	path string
}

// NewDBLock creates the lock that sits next to the database file.
func NewDBLock(dbPath string) (*DBLock, error) {
	absPath, err := GetAbsDBPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute db path: %w", err)
	}
	return &DBLock{file: flock.New(absPath + lockFileSuffix), path: absPath + lockFileSuffix}, nil
}

// Lock blocks until this goroutine holds the lock, logging once when
// another process is in the way.
func (l *DBLock) Lock() error {
	l.mu.Lock()
	ok, err := l.file.TryLock()
	if err == nil && !ok {
		Log.Warnf("Another htbcard process is writing to %s, waiting for it to finish...", l.path)
		err = l.file.Lock()
	}
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	return nil
}

// Unlock releases a lock taken with Lock.
func (l *DBLock) Unlock() error {
	defer l.mu.Unlock()
	if err := l.file.Unlock(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return nil
}

// WithLock runs fn while holding the lock.
func (l *DBLock) WithLock(fn func() error) error {
	if err := l.Lock(); err != nil {
		return err
	}
	err := fn()
	if uerr := l.Unlock(); err == nil {
		err = uerr
	}
	return err
}

// GetAbsDBPath resolves the database path, defaulting to
// ~/.config/htbcard/htbcard.sqlite.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "htbcard", "htbcard.sqlite"), nil
	}
	return filepath.Abs(dbPath)
}

// EnsureDBDir creates the parent directory of the database file.
func EnsureDBDir(dbPath string) (string, error) {
	abs, err := GetAbsDBPath(dbPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create db directory: %w", err)
	}
	return abs, nil
}
