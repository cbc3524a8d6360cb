package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/agency-sh/agency/internal/config"
	"github.com/agency-sh/agency/internal/follower"
	"github.com/agency-sh/agency/internal/paths"
	"github.com/agency-sh/agency/internal/tmux"
)

// Follow runs the follower on the calling terminal until the followed
// TUI goes away or the user interrupts.
func Follow(projectRoot string, cfg *config.Config, explicitID int) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("agency follow needs an interactive terminal")
	}

	client, err := Connect(projectRoot, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tuiID, err := follower.ResolveTarget(ctx, client, projectRoot, explicitID)
	if err != nil {
		return err
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	ctl := follower.NewController(follower.Config{
		Client:   client,
		Backend:  tmux.NewBackend(cfg.SessionPrefix, projectRoot),
		Manager:  follower.NewManager(cfg.ChildGrace()),
		Project:  projectRoot,
		TasksDir: paths.TasksDir(projectRoot),
		ExePath:  exePath,
	})

	fmt.Fprintf(os.Stderr, "following TUI #%d (ctrl-c to stop)\n", tuiID)
	err = ctl.Run(ctx, tuiID)
	if errors.Is(err, follower.ErrTargetGone) {
		return fmt.Errorf("TUI #%d exited", tuiID)
	}
	return err
}
