package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PIDInfo contains daemon process metadata stored in the PID file.
type PIDInfo struct {
	PID         int       `json:"pid"`
	ProjectRoot string    `json:"project_root,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	SocketPath  string    `json:"socket_path,omitempty"`
}

// WritePIDFile writes process information to the PID file as JSON.
func WritePIDFile(path string, info PIDInfo) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal PID info: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	return nil
}

// ReadPIDFile reads process information from the PID file.
func ReadPIDFile(path string) (PIDInfo, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304 - path from internal var directory
	if err != nil {
		// Return error without wrapping to preserve os.IsNotExist check
		return PIDInfo{}, err
	}

	var info PIDInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return PIDInfo{}, fmt.Errorf("invalid PID file format: %w", err)
	}

	return info, nil
}

// CheckPIDFile checks if the PID file exists and if the process is running.
// Returns: (running bool, PIDInfo, error)
// - running: true if process is running, false if stale or doesn't exist
// - PIDInfo: process metadata from the file (PID=0 if file doesn't exist)
// - error: any error reading the file (nil if file doesn't exist).
func CheckPIDFile(path string) (bool, PIDInfo, error) {
	info, err := ReadPIDFile(path)
	if err != nil {
		// Missing file is the normal daemon-not-running case
		if os.IsNotExist(err) {
			return false, PIDInfo{}, nil
		}
		return false, PIDInfo{}, err
	}

	return ProcessAlive(info.PID), info, nil
}

// ValidatePIDProject checks if the PID file's project root matches the
// expected project root. Empty project roots return false; the flock is
// the arbiter when project affinity cannot be confirmed.
func ValidatePIDProject(info PIDInfo, expectedRoot string) bool {
	if info.ProjectRoot == "" {
		return false
	}
	return filepath.Clean(info.ProjectRoot) == filepath.Clean(expectedRoot)
}

// RemovePIDFile removes the PID file.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}
