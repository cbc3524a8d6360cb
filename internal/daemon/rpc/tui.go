package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agency-sh/agency/internal/daemon"
	"github.com/agency-sh/agency/internal/transport"
)

// RegisterRequest represents the request for tui.register RPC.
type RegisterRequest struct {
	Project string `json:"project"`
	PID     int    `json:"pid"`
}

// RegisterResponse represents the response from tui.register RPC.
type RegisterResponse struct {
	TuiID int `json:"tui_id"`
}

// UnregisterRequest represents the request for tui.unregister RPC.
type UnregisterRequest struct {
	Project string `json:"project"`
	TuiID   int    `json:"tui_id"`
}

// UnregisterResponse represents the response from tui.unregister RPC.
type UnregisterResponse struct {
	Removed bool `json:"removed"`
}

// FocusRequest represents the request for tui.focus RPC.
// TaskID is nil when the TUI has no task focused (cursor on empty list).
type FocusRequest struct {
	Project string `json:"project"`
	TuiID   int    `json:"tui_id"`
	TaskID  *int   `json:"task_id,omitempty"`
}

// FocusResponse represents the response from tui.focus RPC.
type FocusResponse struct {
	Known bool `json:"known"`
}

// ListRequest represents the request for tui.list RPC.
type ListRequest struct {
	Project string `json:"project"`
}

// ListResponse represents the response from tui.list RPC.
type ListResponse struct {
	Tuis []daemon.TuiInfo `json:"tuis"`
}

// FollowRequest represents the request for tui.follow RPC.
type FollowRequest struct {
	Project string `json:"project"`
	TuiID   int    `json:"tui_id"`
}

// FollowResponse represents the response from tui.follow RPC.
type FollowResponse struct {
	Following bool `json:"following"`
}

// TuiHandler serves the TUI registry methods.
type TuiHandler struct {
	registry *daemon.Registry
}

// NewTuiHandler creates a handler backed by the given registry.
func NewTuiHandler(registry *daemon.Registry) *TuiHandler {
	return &TuiHandler{registry: registry}
}

// RegisterMethods wires the handler's methods into the server.
func (h *TuiHandler) RegisterMethods(srv *daemon.Server) {
	srv.RegisterHandler("tui.register", h.HandleRegister)
	srv.RegisterHandler("tui.unregister", h.HandleUnregister)
	srv.RegisterHandler("tui.focus", h.HandleFocus)
	srv.RegisterHandler("tui.list", h.HandleList)
	srv.RegisterHandler("tui.follow", h.HandleFollow)
}

// HandleRegister handles the tui.register request.
func (h *TuiHandler) HandleRegister(ctx context.Context, params json.RawMessage) (any, error) {
	var req RegisterRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if req.Project == "" {
		return nil, fmt.Errorf("project is required")
	}
	if req.PID <= 0 {
		return nil, fmt.Errorf("pid must be positive")
	}

	id := h.registry.Register(req.Project, req.PID)
	return RegisterResponse{TuiID: id}, nil
}

// HandleUnregister handles the tui.unregister request.
func (h *TuiHandler) HandleUnregister(ctx context.Context, params json.RawMessage) (any, error) {
	var req UnregisterRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if req.Project == "" {
		return nil, fmt.Errorf("project is required")
	}

	removed := h.registry.Unregister(req.Project, req.TuiID)
	return UnregisterResponse{Removed: removed}, nil
}

// HandleFocus handles the tui.focus request. An unknown record is not an
// error: the sender may have been purged by the liveness sweep while its
// report was in flight.
func (h *TuiHandler) HandleFocus(ctx context.Context, params json.RawMessage) (any, error) {
	var req FocusRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if req.Project == "" {
		return nil, fmt.Errorf("project is required")
	}

	known := h.registry.SetFocus(req.Project, req.TuiID, req.TaskID)
	return FocusResponse{Known: known}, nil
}

// HandleList handles the tui.list request.
func (h *TuiHandler) HandleList(ctx context.Context, params json.RawMessage) (any, error) {
	var req ListRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if req.Project == "" {
		return nil, fmt.Errorf("project is required")
	}

	return ListResponse{Tuis: h.registry.List(req.Project)}, nil
}

// HandleFollow handles the tui.follow request. The caller's connection
// becomes the subscription endpoint; its life is the subscription's life.
func (h *TuiHandler) HandleFollow(ctx context.Context, params json.RawMessage) (any, error) {
	var req FollowRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if req.Project == "" {
		return nil, fmt.Errorf("project is required")
	}

	peer := transport.PeerFrom(ctx)
	if peer == nil {
		return nil, fmt.Errorf("follow requires a connected peer")
	}

	if !h.registry.Follow(req.Project, req.TuiID, peer) {
		return nil, fmt.Errorf("no TUI %d registered for project %s", req.TuiID, req.Project)
	}
	return FollowResponse{Following: true}, nil
}
