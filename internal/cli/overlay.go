package cli

import (
	"fmt"

	"github.com/agency-sh/agency/internal/config"
	"github.com/agency-sh/agency/internal/task"
	"github.com/agency-sh/agency/internal/tmux"
	"github.com/agency-sh/agency/internal/ui"
)

// Overlay runs the session placeholder for one task. It reports whether
// the user started the session; the follower treats a clean exit after a
// start as the signal to attach.
func Overlay(projectRoot string, cfg *config.Config, taskID int, slug string) (bool, error) {
	if taskID <= 0 || slug == "" {
		return false, fmt.Errorf("overlay needs --task-id and --slug")
	}

	ref := task.Ref{ID: taskID, Slug: slug}
	backend := tmux.NewBackend(cfg.SessionPrefix, projectRoot)

	start := func() error {
		return backend.Start(ref, projectRoot, cfg.ShellCommand())
	}
	return ui.RunOverlay(ref.ID, ref.Slug, start)
}
