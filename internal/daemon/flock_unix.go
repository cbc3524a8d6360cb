//go:build unix

package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// AcquireLock takes an exclusive non-blocking flock on path, creating
// the file (and .agency/var) as needed. EWOULDBLOCK means another
// agencyd already owns this project.
func AcquireLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, fmt.Errorf("daemon lock held by another process")
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	return &FileLock{path: path, file: f}, nil
}

// Release unlocks and removes the lock file. Further calls are no-ops.
func (l *FileLock) Release() error {
	if l.file == nil {
		return nil
	}
	// Nil out first so a re-entrant call cannot unlock a reused fd
	f := l.file
	l.file = nil
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	err := f.Close()
	_ = os.Remove(l.path)
	return err
}

// IsLocked reports whether another process currently holds the lock.
// It probes by trying to take the lock itself and letting go on success.
func IsLocked(path string) bool {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return true
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return false
}
