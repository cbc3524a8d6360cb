package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agency-sh/agency/internal/daemon"
)

// PingResponse represents the response from daemon.ping RPC.
type PingResponse struct {
	Pong bool `json:"pong"`
}

// VersionResponse represents the response from daemon.version RPC.
type VersionResponse struct {
	Version     string `json:"version"`
	PID         int    `json:"pid"`
	ProjectRoot string `json:"project_root"`
	UptimeMS    int64  `json:"uptime_ms"`
}

// ShutdownResponse represents the response from daemon.shutdown RPC.
type ShutdownResponse struct {
	ShuttingDown bool `json:"shutting_down"`
}

// DaemonHandler serves daemon introspection and control methods.
type DaemonHandler struct {
	startTime   time.Time
	version     string
	pid         int
	projectRoot string
	lifecycle   *daemon.Lifecycle
}

// NewDaemonHandler creates a new daemon control handler.
func NewDaemonHandler(version string, pid int, projectRoot string, lifecycle *daemon.Lifecycle) *DaemonHandler {
	return &DaemonHandler{
		startTime:   time.Now(),
		version:     version,
		pid:         pid,
		projectRoot: projectRoot,
		lifecycle:   lifecycle,
	}
}

// RegisterMethods wires the handler's methods into the server.
func (h *DaemonHandler) RegisterMethods(srv *daemon.Server) {
	srv.RegisterHandler("daemon.ping", h.HandlePing)
	srv.RegisterHandler("daemon.version", h.HandleVersion)
	srv.RegisterHandler("daemon.shutdown", h.HandleShutdown)
}

// HandlePing handles the daemon.ping request.
func (h *DaemonHandler) HandlePing(ctx context.Context, params json.RawMessage) (any, error) {
	return PingResponse{Pong: true}, nil
}

// HandleVersion handles the daemon.version request.
func (h *DaemonHandler) HandleVersion(ctx context.Context, params json.RawMessage) (any, error) {
	return VersionResponse{
		Version:     h.version,
		PID:         h.pid,
		ProjectRoot: h.projectRoot,
		UptimeMS:    time.Since(h.startTime).Milliseconds(),
	}, nil
}

// HandleShutdown handles the daemon.shutdown request. The response is
// written before the lifecycle tears the listener down because shutdown
// is triggered asynchronously.
func (h *DaemonHandler) HandleShutdown(ctx context.Context, params json.RawMessage) (any, error) {
	if h.lifecycle != nil {
		go h.lifecycle.Shutdown()
	}
	return ShutdownResponse{ShuttingDown: true}, nil
}
