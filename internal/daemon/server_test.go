package daemon_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/agency-sh/agency/internal/daemon"
	"github.com/agency-sh/agency/internal/daemon/rpc"
)

// startTestDaemon wires a full server (registry, broadcaster, handlers)
// on a throwaway socket and returns the socket path.
func startTestDaemon(t *testing.T) (string, *daemon.Registry) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "agencyd.sock")
	clients := daemon.NewClientRegistry()
	broadcaster := daemon.NewBroadcaster()
	registry := daemon.NewRegistry(broadcaster)

	srv := daemon.NewServer(socketPath, clients)
	srv.OnDisconnect(broadcaster.DropPeer)
	rpc.NewTuiHandler(registry).RegisterMethods(srv)
	rpc.NewDaemonHandler("test", 1, "/test/project", nil).RegisterMethods(srv)

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })

	return socketPath, registry
}

func connect(t *testing.T, socketPath string) *daemon.Client {
	t.Helper()
	client, err := daemon.NewClient(socketPath)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func call[T any](t *testing.T, c *daemon.Client, method string, params any) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		t.Fatalf("%s failed: %v", method, err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("%s response unmarshal: %v", method, err)
	}
	return out
}

func TestRegisterListUnregisterRoundTrip(t *testing.T) {
	socketPath, _ := startTestDaemon(t)
	client := connect(t, socketPath)

	reg := call[rpc.RegisterResponse](t, client, "tui.register", rpc.RegisterRequest{Project: "proj", PID: 1234})
	if reg.TuiID != 1 {
		t.Fatalf("TuiID = %d, want 1", reg.TuiID)
	}

	list := call[rpc.ListResponse](t, client, "tui.list", rpc.ListRequest{Project: "proj"})
	if len(list.Tuis) != 1 || list.Tuis[0].PID != 1234 {
		t.Fatalf("unexpected list %+v", list.Tuis)
	}

	unreg := call[rpc.UnregisterResponse](t, client, "tui.unregister", rpc.UnregisterRequest{Project: "proj", TuiID: reg.TuiID})
	if !unreg.Removed {
		t.Fatal("unregister did not remove the record")
	}

	list = call[rpc.ListResponse](t, client, "tui.list", rpc.ListRequest{Project: "proj"})
	if len(list.Tuis) != 0 {
		t.Fatalf("list after unregister = %+v, want empty", list.Tuis)
	}
}

func TestCallUnknownMethod(t *testing.T) {
	socketPath, _ := startTestDaemon(t)
	client := connect(t, socketPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Call(ctx, "tui.nope", struct{}{}); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestCallInvalidParams(t *testing.T) {
	socketPath, _ := startTestDaemon(t)
	client := connect(t, socketPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Call(ctx, "tui.register", rpc.RegisterRequest{Project: "", PID: 1}); err == nil {
		t.Fatal("expected error for missing project")
	}
	if _, err := client.Call(ctx, "tui.register", rpc.RegisterRequest{Project: "proj", PID: 0}); err == nil {
		t.Fatal("expected error for non-positive pid")
	}
}

func TestFollowReceivesPushes(t *testing.T) {
	socketPath, _ := startTestDaemon(t)

	target := connect(t, socketPath)
	follower := connect(t, socketPath)

	reg := call[rpc.RegisterResponse](t, target, "tui.register", rpc.RegisterRequest{Project: "proj", PID: 1234})

	follow := call[rpc.FollowResponse](t, follower, "tui.follow", rpc.FollowRequest{Project: "proj", TuiID: reg.TuiID})
	if !follow.Following {
		t.Fatal("follow refused")
	}

	// Initial focus arrives first, even when nothing is focused yet
	initial := waitPush(t, follower, daemon.MethodFocus)
	var params daemon.FocusParams
	if err := json.Unmarshal(initial.Params, &params); err != nil {
		t.Fatal(err)
	}
	if params.TaskID != nil {
		t.Fatalf("initial task = %v, want nil", params.TaskID)
	}

	task := 7
	call[rpc.FocusResponse](t, target, "tui.focus", rpc.FocusRequest{Project: "proj", TuiID: reg.TuiID, TaskID: &task})

	update := waitPush(t, follower, daemon.MethodFocus)
	if err := json.Unmarshal(update.Params, &params); err != nil {
		t.Fatal(err)
	}
	if params.TaskID == nil || *params.TaskID != 7 {
		t.Fatalf("pushed task = %v, want 7", params.TaskID)
	}

	// Target unregisters: follower is told the target is gone
	call[rpc.UnregisterResponse](t, target, "tui.unregister", rpc.UnregisterRequest{Project: "proj", TuiID: reg.TuiID})
	waitPush(t, follower, daemon.MethodGone)
}

func TestFollowUnknownTUI(t *testing.T) {
	socketPath, _ := startTestDaemon(t)
	client := connect(t, socketPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Call(ctx, "tui.follow", rpc.FollowRequest{Project: "proj", TuiID: 42}); err == nil {
		t.Fatal("expected error following unknown TUI")
	}
}

func TestDaemonPingAndVersion(t *testing.T) {
	socketPath, _ := startTestDaemon(t)
	client := connect(t, socketPath)

	ping := call[rpc.PingResponse](t, client, "daemon.ping", struct{}{})
	if !ping.Pong {
		t.Fatal("ping did not pong")
	}

	version := call[rpc.VersionResponse](t, client, "daemon.version", struct{}{})
	if version.Version != "test" {
		t.Errorf("version = %q, want test", version.Version)
	}
	if version.ProjectRoot != "/test/project" {
		t.Errorf("project root = %q", version.ProjectRoot)
	}
}

func TestLivenessPurgePushesGone(t *testing.T) {
	socketPath, registry := startTestDaemon(t)

	target := connect(t, socketPath)
	follower := connect(t, socketPath)

	reg := call[rpc.RegisterResponse](t, target, "tui.register", rpc.RegisterRequest{Project: "proj", PID: 1234})
	call[rpc.FollowResponse](t, follower, "tui.follow", rpc.FollowRequest{Project: "proj", TuiID: reg.TuiID})
	waitPush(t, follower, daemon.MethodFocus)

	// Sweep with everything reported dead
	if purged := registry.PurgeDead(func(pid int) bool { return false }); purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	waitPush(t, follower, daemon.MethodGone)
}

func waitPush(t *testing.T, c *daemon.Client, method string) daemon.IncomingNotification {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case n, ok := <-c.Notifications():
			if !ok {
				t.Fatal("connection closed while waiting for push")
			}
			if n.Method == method {
				return n
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s push", method)
		}
	}
}
