package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agency-sh/agency/internal/daemon"
)

func TestHandleRegister(t *testing.T) {
	tests := []struct {
		name    string
		params  string
		wantID  int
		wantErr bool
	}{
		{
			name:   "valid_registration",
			params: `{"project":"/p","pid":100}`,
			wantID: 1,
		},
		{
			name:    "missing_project",
			params:  `{"pid":100}`,
			wantErr: true,
		},
		{
			name:    "missing_pid",
			params:  `{"project":"/p"}`,
			wantErr: true,
		},
		{
			name:    "negative_pid",
			params:  `{"project":"/p","pid":-5}`,
			wantErr: true,
		},
		{
			name:    "malformed_json",
			params:  `{`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTuiHandler(daemon.NewRegistry(nil))
			result, err := h.HandleRegister(context.Background(), json.RawMessage(tt.params))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			resp := result.(RegisterResponse)
			if resp.TuiID != tt.wantID {
				t.Errorf("TuiID = %d, want %d", resp.TuiID, tt.wantID)
			}
		})
	}
}

func TestHandleFocusUnknownRecordIsNotAnError(t *testing.T) {
	h := NewTuiHandler(daemon.NewRegistry(nil))

	result, err := h.HandleFocus(context.Background(), json.RawMessage(`{"project":"/p","tui_id":3,"task_id":7}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.(FocusResponse).Known {
		t.Error("focus for unknown record reported known")
	}
}

func TestHandleFocusClearsTask(t *testing.T) {
	reg := daemon.NewRegistry(nil)
	h := NewTuiHandler(reg)

	if _, err := h.HandleRegister(context.Background(), json.RawMessage(`{"project":"/p","pid":10}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := h.HandleFocus(context.Background(), json.RawMessage(`{"project":"/p","tui_id":1,"task_id":4}`)); err != nil {
		t.Fatal(err)
	}
	// Omitted task_id means nothing is focused
	if _, err := h.HandleFocus(context.Background(), json.RawMessage(`{"project":"/p","tui_id":1}`)); err != nil {
		t.Fatal(err)
	}

	infos := reg.List("/p")
	if len(infos) != 1 || infos[0].FocusedTask != nil {
		t.Fatalf("focus not cleared: %+v", infos)
	}
}

func TestHandleUnregister(t *testing.T) {
	h := NewTuiHandler(daemon.NewRegistry(nil))

	if _, err := h.HandleRegister(context.Background(), json.RawMessage(`{"project":"/p","pid":10}`)); err != nil {
		t.Fatal(err)
	}

	result, err := h.HandleUnregister(context.Background(), json.RawMessage(`{"project":"/p","tui_id":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.(UnregisterResponse).Removed {
		t.Error("live record not removed")
	}

	result, err = h.HandleUnregister(context.Background(), json.RawMessage(`{"project":"/p","tui_id":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.(UnregisterResponse).Removed {
		t.Error("absent record reported removed")
	}
}

func TestHandleFollowWithoutPeer(t *testing.T) {
	h := NewTuiHandler(daemon.NewRegistry(nil))

	if _, err := h.HandleRegister(context.Background(), json.RawMessage(`{"project":"/p","pid":10}`)); err != nil {
		t.Fatal(err)
	}
	// No peer on the context: follow must refuse
	if _, err := h.HandleFollow(context.Background(), json.RawMessage(`{"project":"/p","tui_id":1}`)); err == nil {
		t.Fatal("expected error without a connected peer")
	}
}

func TestDaemonHandlerPing(t *testing.T) {
	h := NewDaemonHandler("1.0", 42, "/p", nil)

	result, err := h.HandlePing(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.(PingResponse).Pong {
		t.Error("ping did not pong")
	}

	result, err = h.HandleVersion(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	version := result.(VersionResponse)
	if version.Version != "1.0" || version.PID != 42 || version.ProjectRoot != "/p" {
		t.Errorf("unexpected version response %+v", version)
	}
}
