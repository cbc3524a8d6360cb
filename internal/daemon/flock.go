package daemon

import "os"

// FileLock is the agencyd single-instance lock. Unlike the pidfile it
// cannot go stale: the kernel drops the lock when the holder dies, even
// on SIGKILL, so a held lock always means a live daemon.
type FileLock struct {
	path string
	file *os.File
}

// LockPath returns the path to the lock file.
func (l *FileLock) LockPath() string {
	return l.path
}
