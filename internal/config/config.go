// Package config loads per-project configuration from .agency/config.json.
//
// All fields are optional; zero values fall back to defaults so a project
// without a config file works out of the box.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/agency-sh/agency/internal/paths"
)

// Defaults applied when the config file is absent or fields are unset.
const (
	DefaultSessionPrefix      = "agency"
	DefaultLivenessIntervalMS = 10_000
	DefaultChildGraceMS       = 3_000
)

// Config is the resolved per-project configuration.
type Config struct {
	// SocketPath overrides the daemon socket location. The
	// AGENCY_SOCKET_PATH environment variable takes precedence over this.
	SocketPath string `json:"socket_path,omitempty"`

	// SessionPrefix is the tmux session name prefix ("agency" by default).
	SessionPrefix string `json:"session_prefix,omitempty"`

	// SessionCommand is the argv started inside a new task session.
	// Empty means the user's shell ($SHELL, falling back to /bin/sh).
	SessionCommand []string `json:"session_command,omitempty"`

	// LivenessIntervalMS is the period of the daemon's TUI liveness sweep.
	LivenessIntervalMS int `json:"liveness_interval_ms,omitempty"`

	// ChildGraceMS is how long the follower waits for a child process to
	// exit after SIGTERM before force-killing it.
	ChildGraceMS int `json:"child_grace_ms,omitempty"`
}

// Load reads the project config, returning defaults when no file exists.
func Load(projectRoot string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(paths.ConfigPath(projectRoot))
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", paths.ConfigPath(projectRoot), err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SessionPrefix == "" {
		c.SessionPrefix = DefaultSessionPrefix
	}
	if c.LivenessIntervalMS <= 0 {
		c.LivenessIntervalMS = DefaultLivenessIntervalMS
	}
	if c.ChildGraceMS <= 0 {
		c.ChildGraceMS = DefaultChildGraceMS
	}
}

// EffectiveSocketPath resolves the daemon socket path for a project.
//
// Precedence: AGENCY_SOCKET_PATH env var, then the config file's
// socket_path, then the default under .agency/var/.
func (c *Config) EffectiveSocketPath(projectRoot string) string {
	if p := os.Getenv("AGENCY_SOCKET_PATH"); p != "" {
		return p
	}
	if c.SocketPath != "" {
		return c.SocketPath
	}
	return paths.SocketPath(projectRoot)
}

// LivenessInterval returns the liveness sweep period as a duration.
func (c *Config) LivenessInterval() time.Duration {
	return time.Duration(c.LivenessIntervalMS) * time.Millisecond
}

// ChildGrace returns the child termination grace period as a duration.
func (c *Config) ChildGrace() time.Duration {
	return time.Duration(c.ChildGraceMS) * time.Millisecond
}

// ShellCommand returns the argv to run inside a new session.
func (c *Config) ShellCommand() []string {
	if len(c.SessionCommand) > 0 {
		return c.SessionCommand
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return []string{shell}
}
