package daemon

import (
	"context"
	"os"
	"syscall"
	"time"
)

// LivenessChecker periodically removes registry records whose owning
// process has exited. It is the backstop for TUIs that die without
// sending an unregister (crash, kill -9).
type LivenessChecker struct {
	registry *Registry
	interval time.Duration
	alive    func(pid int) bool
}

// NewLivenessChecker creates a checker sweeping at the given interval.
func NewLivenessChecker(registry *Registry, interval time.Duration) *LivenessChecker {
	return &LivenessChecker{
		registry: registry,
		interval: interval,
		alive:    ProcessAlive,
	}
}

// Run sweeps until the context is cancelled.
func (l *LivenessChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.registry.PurgeDead(l.alive)
		}
	}
}

// ProcessAlive checks whether a process with the given pid is running,
// by sending signal 0 (existence/permission probe, no actual signal).
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		// On unix FindProcess always succeeds; be conservative elsewhere.
		return false
	}

	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.EPERM {
		// Exists but owned by someone else.
		return true
	}
	return false
}
