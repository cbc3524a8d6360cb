package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Lifecycle manages the daemon lifecycle including signal handling and shutdown.
type Lifecycle struct {
	server       *Server
	liveness     *LivenessChecker
	pidFile      string
	projectRoot  string    // Project this daemon serves
	socketPath   string    // Unix socket path
	lockFile     string    // Lock file path for flock
	lock         *FileLock // File lock held for lifetime of daemon
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycle creates a new lifecycle manager.
// Liveness is optional - pass nil to disable the registry sweep.
func NewLifecycle(server *Server, pidFile string, liveness *LivenessChecker) *Lifecycle {
	return &Lifecycle{
		server:     server,
		liveness:   liveness,
		pidFile:    pidFile,
		shutdownCh: make(chan struct{}),
	}
}

// SetProjectInfo sets the project root and socket path for PID file metadata.
// This should be called before Run().
func (l *Lifecycle) SetProjectInfo(projectRoot, socketPath string) {
	l.projectRoot = projectRoot
	l.socketPath = socketPath
}

// SetLockFile sets the lock file path for flock-based process detection.
// This should be called before Run().
func (l *Lifecycle) SetLockFile(lockFile string) {
	l.lockFile = lockFile
}

// Run starts the server and handles signals until shutdown.
func (l *Lifecycle) Run(ctx context.Context) error {
	// 1. Acquire file lock for SIGKILL resilience (if configured)
	// The OS automatically releases this lock when the process dies (even SIGKILL)
	if l.lockFile != "" {
		lock, err := AcquireLock(l.lockFile)
		if err != nil {
			return fmt.Errorf("failed to acquire daemon lock: %w", err)
		}
		l.lock = lock
		// Register lock release immediately so all return paths are covered
		defer func() {
			if l.lock != nil {
				if err := l.lock.Release(); err != nil {
					fmt.Fprintf(os.Stderr, "warning: failed to release lock: %v\n", err)
				}
			}
		}()
	}

	// 2. Pre-startup validation: check for existing daemon
	existing, existingInfo, err := CheckPIDFile(l.pidFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to read existing PID file: %v\n", err)
		// Continue with startup - we'll overwrite the bad PID file
	} else if existing {
		if ValidatePIDProject(existingInfo, l.projectRoot) {
			return fmt.Errorf("daemon already running (PID %d) for project %s", existingInfo.PID, l.projectRoot)
		}
		// Different project - log warning and proceed
		fmt.Fprintf(os.Stderr, "WARNING: Daemon PID %d is running for different project %s, overwriting\n",
			existingInfo.PID, existingInfo.ProjectRoot)
	}
	// If process not running, PID file is stale - we'll overwrite it

	// 3. Write PID file with metadata
	pidInfo := PIDInfo{
		PID:         os.Getpid(),
		ProjectRoot: l.projectRoot,
		StartedAt:   time.Now().UTC(),
		SocketPath:  l.socketPath,
	}
	if err := WritePIDFile(l.pidFile, pidInfo); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 4. Safety net: clean up PID/socket files on ANY exit path
	var shutdownComplete atomic.Bool
	defer func() {
		if !shutdownComplete.Load() {
			// shutdown() didn't run - clean up manually
			_ = l.server.Stop() // Stops server and removes socket
			_ = RemovePIDFile(l.pidFile)
		}
	}()

	// 5. Start Unix socket server
	if err := l.server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	// 6. Start the registry liveness sweep if configured
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if l.liveness != nil {
		go l.liveness.Run(sweepCtx)
	}

	// Handle signals
	go l.handleSignals(ctx)

	// Wait for shutdown signal
	<-l.shutdownCh

	// Perform graceful shutdown
	shutdownComplete.Store(true)
	stopSweep()
	return l.shutdown()
}

// handleSignals listens for OS signals and triggers shutdown.
func (l *Lifecycle) handleSignals(_ context.Context) {
	sigCh := make(chan os.Signal, 1)

	// Register for SIGTERM and SIGINT (graceful shutdown)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh

	fmt.Fprintf(os.Stderr, "Received signal %v, initiating graceful shutdown...\n", sig)

	// Trigger shutdown (protected by sync.Once to prevent double-close)
	l.shutdownOnce.Do(func() {
		close(l.shutdownCh)
	})
}

// shutdown performs graceful shutdown sequence.
func (l *Lifecycle) shutdown() error {
	fmt.Fprintln(os.Stderr, "Starting graceful shutdown...")

	// Step 1: Close socket and stop the server
	// Stop() closes the listener and waits for in-flight requests with a timeout
	if err := l.server.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
		// Continue with cleanup even if stop fails
	}

	// Step 2: Remove PID file
	if err := RemovePIDFile(l.pidFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error removing PID file: %v\n", err)
		return err
	}

	// Step 3: Release file lock
	// Release here for clean shutdown; the defer in Run() is the safety net
	// for non-graceful exits. Release() is idempotent (nil-safe).
	if l.lock != nil {
		if err := l.lock.Release(); err != nil {
			fmt.Fprintf(os.Stderr, "Error releasing lock: %v\n", err)
		}
	}

	fmt.Fprintln(os.Stderr, "Graceful shutdown complete")
	return nil
}

// Shutdown triggers a graceful shutdown (can be called programmatically).
func (l *Lifecycle) Shutdown() {
	l.shutdownOnce.Do(func() {
		close(l.shutdownCh)
	})
}

// ShutdownWithTimeout triggers a shutdown and waits with a timeout
// Note: This should only be called when using Run() to manage the lifecycle.
func (l *Lifecycle) ShutdownWithTimeout(timeout time.Duration) error {
	l.Shutdown()

	select {
	case <-l.shutdownCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown signal not processed after %v", timeout)
	}
}
