// Package paths resolves the project root and the filesystem locations
// used by the agency daemon and its clients.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// AgencyDirName is the marker directory that identifies a project root.
const AgencyDirName = ".agency"

// FindProjectRoot walks up from startPath looking for a directory containing
// .agency/. This mimics how git traverses parent directories to find .git/.
// Returns the directory containing .agency/, or an error if none is found.
func FindProjectRoot(startPath string) (string, error) {
	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}

	dir := absPath
	for {
		agencyDir := filepath.Join(dir, AgencyDirName)
		info, err := os.Stat(agencyDir)
		if err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s/ directory found (searched from %s to /)", AgencyDirName, absPath)
		}
		dir = parent
	}
}

// AgencyDir returns the .agency/ directory for a project root.
func AgencyDir(projectRoot string) string {
	return filepath.Join(projectRoot, AgencyDirName)
}

// VarDir returns the runtime state directory (sockets, pidfiles, logs).
func VarDir(projectRoot string) string {
	return filepath.Join(AgencyDir(projectRoot), "var")
}

// TasksDir returns the directory holding task markdown files.
func TasksDir(projectRoot string) string {
	return filepath.Join(AgencyDir(projectRoot), "tasks")
}

// SocketPath returns the daemon's unix socket path for a project.
func SocketPath(projectRoot string) string {
	return filepath.Join(VarDir(projectRoot), "agencyd.sock")
}

// PIDPath returns the daemon pidfile path for a project.
func PIDPath(projectRoot string) string {
	return filepath.Join(VarDir(projectRoot), "agencyd.pid")
}

// LockPath returns the daemon flock path for a project.
func LockPath(projectRoot string) string {
	return filepath.Join(VarDir(projectRoot), "agencyd.lock")
}

// LogPath returns the log file the detached daemon writes to.
func LogPath(projectRoot string) string {
	return filepath.Join(VarDir(projectRoot), "agencyd.log")
}

// ConfigPath returns the project config file path.
func ConfigPath(projectRoot string) string {
	return filepath.Join(AgencyDir(projectRoot), "config.json")
}

// EnsureVarDir creates the var directory with owner-only permissions.
func EnsureVarDir(projectRoot string) error {
	if err := os.MkdirAll(VarDir(projectRoot), 0700); err != nil {
		return fmt.Errorf("create var directory: %w", err)
	}
	return nil
}
