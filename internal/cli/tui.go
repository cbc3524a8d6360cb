package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/agency-sh/agency/internal/config"
	"github.com/agency-sh/agency/internal/daemon/rpc"
	"github.com/agency-sh/agency/internal/paths"
	"github.com/agency-sh/agency/internal/tmux"
	"github.com/agency-sh/agency/internal/ui"
)

// RunTui registers this process with the daemon and runs the task list
// on the terminal. Unregistration on exit is best effort; the daemon's
// liveness sweep covers crashes.
func RunTui(projectRoot string, cfg *config.Config) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("agency tui needs an interactive terminal")
	}

	client, err := Connect(projectRoot, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	raw, err := client.Call(ctx, "tui.register", rpc.RegisterRequest{Project: projectRoot, PID: os.Getpid()})
	cancel()
	if err != nil {
		return fmt.Errorf("register with daemon: %w", err)
	}
	var reg rpc.RegisterResponse
	if err := unmarshal(raw, &reg); err != nil {
		return fmt.Errorf("register with daemon: %w", err)
	}

	report := func(taskID *int) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = client.Call(ctx, "tui.focus", rpc.FocusRequest{
			Project: projectRoot,
			TuiID:   reg.TuiID,
			TaskID:  taskID,
		})
	}

	runErr := ui.RunTui(ui.TuiConfig{
		TuiID:    reg.TuiID,
		TasksDir: paths.TasksDir(projectRoot),
		Backend:  tmux.NewBackend(cfg.SessionPrefix, projectRoot),
		Report:   report,
	})

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	_, _ = client.Call(ctx, "tui.unregister", rpc.UnregisterRequest{Project: projectRoot, TuiID: reg.TuiID})
	cancel()

	return runErr
}
