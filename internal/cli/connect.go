// Package cli implements the command surface: daemon lifecycle commands
// and the user-facing follow/tui/ls entry points.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/agency-sh/agency/internal/config"
	"github.com/agency-sh/agency/internal/daemon"
)

// noAutostartEnv disables spawning the daemon on connect failure.
const noAutostartEnv = "AGENCY_NO_AUTOSTART"

// Connect dials the project's daemon. When the socket is not there the
// daemon is started in the background first, unless AGENCY_NO_AUTOSTART=1.
func Connect(projectRoot string, cfg *config.Config) (*daemon.Client, error) {
	socketPath := cfg.EffectiveSocketPath(projectRoot)

	client, err := daemon.NewClient(socketPath)
	if err == nil {
		return client, nil
	}

	if os.Getenv(noAutostartEnv) == "1" {
		return nil, fmt.Errorf("daemon is not running at %s; start it with 'agency daemon start'", socketPath)
	}

	if startErr := DaemonStart(projectRoot); startErr != nil {
		return nil, fmt.Errorf("daemon autostart failed: %w", startErr)
	}

	client, err = daemon.WaitForSocket(socketPath, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("daemon started but socket never came up: %w", err)
	}
	return client, nil
}
