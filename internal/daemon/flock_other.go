//go:build !unix

package daemon

// Flock is unix-only; elsewhere the pidfile check is the sole guard
// against a second daemon.

func AcquireLock(path string) (*FileLock, error) {
	return nil, nil
}

func (l *FileLock) Release() error {
	return nil
}

func IsLocked(path string) bool {
	return false
}
