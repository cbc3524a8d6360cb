package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/agency-sh/agency/internal/config"
	"github.com/agency-sh/agency/internal/daemon"
	"github.com/agency-sh/agency/internal/daemon/rpc"
	"github.com/agency-sh/agency/internal/paths"
)

// DaemonStatusResult contains daemon status information.
type DaemonStatusResult struct {
	Running     bool   `json:"running"`
	Status      string `json:"status"`
	PID         int    `json:"pid,omitempty"`
	ProjectRoot string `json:"project_root,omitempty"`
	Uptime      string `json:"uptime,omitempty"`
	Version     string `json:"version,omitempty"`
}

// DaemonRun runs the daemon in the foreground until it is shut down.
func DaemonRun(projectRoot, version string) error {
	cfg, err := config.Load(projectRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := paths.EnsureVarDir(projectRoot); err != nil {
		return fmt.Errorf("prepare var directory: %w", err)
	}

	socketPath := cfg.EffectiveSocketPath(projectRoot)
	clients := daemon.NewClientRegistry()
	broadcaster := daemon.NewBroadcaster()
	registry := daemon.NewRegistry(broadcaster)

	server := daemon.NewServer(socketPath, clients)
	server.OnDisconnect(broadcaster.DropPeer)

	liveness := daemon.NewLivenessChecker(registry, cfg.LivenessInterval())

	lifecycle := daemon.NewLifecycle(server, paths.PIDPath(projectRoot), liveness)
	lifecycle.SetProjectInfo(projectRoot, socketPath)
	lifecycle.SetLockFile(paths.LockPath(projectRoot))

	rpc.NewTuiHandler(registry).RegisterMethods(server)
	rpc.NewDaemonHandler(version, os.Getpid(), projectRoot, lifecycle).RegisterMethods(server)

	fmt.Fprintf(os.Stderr, "agencyd %s listening on %s\n", version, socketPath)
	return lifecycle.Run(context.Background())
}

// DaemonStart starts the daemon in the background, detached from the
// terminal, with its output going to the project log file.
func DaemonStart(projectRoot string) error {
	pidPath := paths.PIDPath(projectRoot)
	socketPath := paths.SocketPath(projectRoot)

	running, pidInfo, err := daemon.CheckPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running && daemon.ValidatePIDProject(pidInfo, projectRoot) {
		return fmt.Errorf("daemon is already running (PID %d)", pidInfo.PID)
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	if err := paths.EnsureVarDir(projectRoot); err != nil {
		return fmt.Errorf("prepare var directory: %w", err)
	}
	logFile, err := os.OpenFile(paths.LogPath(projectRoot), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open daemon log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	cmd := exec.Command(executable, "daemon", "run", "--project-root", projectRoot) //nolint:gosec // executable from os.Executable()
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // detach from the terminal
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	// Release the child so it gets adopted by init. Do NOT call
	// cmd.Wait() - the parent is about to exit and a goroutine calling
	// Wait() would be killed mid-syscall.
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("failed to release daemon process: %w", err)
	}

	// Wait for the socket so callers can connect immediately after
	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-timeout:
			return fmt.Errorf("timeout waiting for daemon to start")
		case <-ticker.C:
			if _, err := os.Stat(socketPath); err == nil {
				return nil
			}
		}
	}
}

// DaemonStop stops the daemon: shutdown RPC first, SIGTERM as fallback.
func DaemonStop(projectRoot string) error {
	pidPath := paths.PIDPath(projectRoot)

	running, pidInfo, err := daemon.CheckPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		return fmt.Errorf("daemon is not running")
	}

	if !askShutdownRPC(projectRoot) {
		process, err := os.FindProcess(pidInfo.PID)
		if err != nil {
			return fmt.Errorf("failed to find process %d: %w", pidInfo.PID, err)
		}
		if err := process.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to send SIGTERM to process %d: %w", pidInfo.PID, err)
		}
	}

	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-timeout:
			return fmt.Errorf("timeout waiting for daemon to stop (PID %d still running)", pidInfo.PID)
		case <-ticker.C:
			if running, _, _ := daemon.CheckPIDFile(pidPath); !running {
				return nil
			}
		}
	}
}

// askShutdownRPC requests a graceful shutdown over the socket. Reports
// whether the request was delivered.
func askShutdownRPC(projectRoot string) bool {
	client, err := daemon.NewClient(paths.SocketPath(projectRoot))
	if err != nil {
		return false
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = client.Call(ctx, "daemon.shutdown", struct{}{})
	return err == nil
}

// DaemonStatus checks the daemon status.
func DaemonStatus(projectRoot string) (*DaemonStatusResult, error) {
	pidPath := paths.PIDPath(projectRoot)

	running, pidInfo, err := daemon.CheckPIDFile(pidPath)
	if err != nil {
		return nil, fmt.Errorf("failed to check daemon status: %w", err)
	}

	status := "stopped"
	if running {
		status = "running"
	}
	result := &DaemonStatusResult{
		Running:     running,
		Status:      status,
		PID:         pidInfo.PID,
		ProjectRoot: pidInfo.ProjectRoot,
	}

	if running {
		if client, err := daemon.NewClient(paths.SocketPath(projectRoot)); err == nil {
			defer func() { _ = client.Close() }()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if raw, err := client.Call(ctx, "daemon.version", struct{}{}); err == nil {
				var version rpc.VersionResponse
				if jsonErr := unmarshal(raw, &version); jsonErr == nil {
					result.Version = version.Version
					result.Uptime = formatDuration(time.Duration(version.UptimeMS) * time.Millisecond)
				}
			}
		}
	}

	return result, nil
}

// FormatDaemonStatus formats the daemon status for display.
func FormatDaemonStatus(result *DaemonStatusResult) string {
	if !result.Running {
		return "Daemon:   not running\n"
	}

	out := fmt.Sprintf("Daemon:   running (PID %d)\n", result.PID)
	if result.ProjectRoot != "" {
		out += fmt.Sprintf("Project:  %s\n", result.ProjectRoot)
	}
	if result.Uptime != "" {
		out += fmt.Sprintf("Uptime:   %s\n", result.Uptime)
	}
	if result.Version != "" {
		out += fmt.Sprintf("Version:  %s\n", result.Version)
	}
	return out
}
