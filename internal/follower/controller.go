package follower

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/agency-sh/agency/internal/daemon"
	"github.com/agency-sh/agency/internal/daemon/rpc"
	"github.com/agency-sh/agency/internal/task"
	"github.com/agency-sh/agency/internal/tmux"
)

// ErrTargetGone is returned by Run when the followed TUI unregisters or
// is purged by the daemon's liveness sweep.
var ErrTargetGone = fmt.Errorf("followed TUI is gone")

// Controller follows one TUI's focus stream and keeps the terminal
// showing the matching tmux session, or the overlay when the session
// does not exist yet.
type Controller struct {
	client   *daemon.Client
	backend  *tmux.Backend
	manager  *Manager
	project  string
	tasksDir string
	exePath  string // self, re-executed for the overlay child
	log      io.Writer

	lastTask *int
}

// Config carries the controller's collaborators.
type Config struct {
	Client   *daemon.Client
	Backend  *tmux.Backend
	Manager  *Manager
	Project  string
	TasksDir string
	ExePath  string
	Log      io.Writer
}

// NewController creates a controller. Log defaults to stderr.
func NewController(cfg Config) *Controller {
	log := cfg.Log
	if log == nil {
		log = os.Stderr
	}
	return &Controller{
		client:   cfg.Client,
		backend:  cfg.Backend,
		manager:  cfg.Manager,
		project:  cfg.Project,
		tasksDir: cfg.TasksDir,
		exePath:  cfg.ExePath,
		log:      log,
	}
}

// ResolveTarget picks the TUI to follow. An explicit positive id wins;
// otherwise the daemon's list must contain exactly one entry. Zero or
// several entries is a fatal, actionable error.
func ResolveTarget(ctx context.Context, client *daemon.Client, project string, explicit int) (int, error) {
	if explicit > 0 {
		return explicit, nil
	}

	raw, err := client.Call(ctx, "tui.list", rpc.ListRequest{Project: project})
	if err != nil {
		return 0, fmt.Errorf("list TUIs: %w", err)
	}
	var list rpc.ListResponse
	if err := json.Unmarshal(raw, &list); err != nil {
		return 0, fmt.Errorf("list TUIs: %w", err)
	}

	switch len(list.Tuis) {
	case 0:
		return 0, fmt.Errorf("no TUI registered for this project; start one with 'agency tui'")
	case 1:
		return list.Tuis[0].TuiID, nil
	default:
		var b strings.Builder
		b.WriteString("several TUIs are registered; pass the id to follow:\n")
		for _, info := range list.Tuis {
			fmt.Fprintf(&b, "  agency follow %d  (pid %d)\n", info.TuiID, info.PID)
		}
		return 0, fmt.Errorf("%s", strings.TrimRight(b.String(), "\n"))
	}
}

// Run subscribes to the TUI's focus stream and drives the child slot
// until the context is cancelled, the target disappears, or the daemon
// connection drops. The child is always retired on the way out.
func (c *Controller) Run(ctx context.Context, tuiID int) error {
	defer c.manager.Retire()

	_, err := c.client.Call(ctx, "tui.follow", rpc.FollowRequest{Project: c.project, TuiID: tuiID})
	if err != nil {
		return fmt.Errorf("follow TUI %d: %w", tuiID, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case n, ok := <-c.client.Notifications():
			if !ok {
				return fmt.Errorf("daemon connection lost: %w", c.client.Err())
			}
			n, gone := c.drainLatest(n)
			if gone {
				return ErrTargetGone
			}
			if n.Method != daemon.MethodFocus {
				continue
			}
			var params daemon.FocusParams
			if err := json.Unmarshal(n.Params, &params); err != nil {
				fmt.Fprintf(c.log, "malformed focus push: %v\n", err)
				continue
			}
			c.lastTask = params.TaskID
			c.apply()

		case ev := <-c.manager.Events():
			if ev.Kind == KindOverlay && ev.ExitCode == 0 {
				// Overlay started the session; show it
				c.apply()
			}
			// Any other exit (detach, overlay quit) leaves the slot
			// empty and the subscription alive
		}
	}
}

// drainLatest empties the notification channel so that only the newest
// focus value is applied after a burst. A gone push short-circuits.
func (c *Controller) drainLatest(n daemon.IncomingNotification) (daemon.IncomingNotification, bool) {
	for {
		if n.Method == daemon.MethodGone {
			return n, true
		}
		select {
		case next, ok := <-c.client.Notifications():
			if !ok {
				return n, false
			}
			n = next
		default:
			return n, false
		}
	}
}

// apply reconciles the child slot with the last received focus value.
// Backend errors are logged and leave the subscription alive.
func (c *Controller) apply() {
	if c.lastTask == nil {
		c.manager.Retire()
		return
	}

	ref := c.refFor(*c.lastTask)
	exists, err := c.backend.SessionExists(ref)
	if err != nil {
		fmt.Fprintf(c.log, "tmux error: %v\n", err)
		return
	}

	if exists {
		cmd := c.backend.AttachCommand(ref)
		if err := c.manager.Spawn(KindAttach, cmd); err != nil {
			fmt.Fprintf(c.log, "attach failed: %v\n", err)
		}
		return
	}

	cmd := exec.Command(c.exePath, "overlay", //nolint:gosec // re-exec of own binary
		"--task-id", strconv.Itoa(ref.ID),
		"--slug", ref.Slug,
		"--project-root", c.project)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := c.manager.Spawn(KindOverlay, cmd); err != nil {
		fmt.Fprintf(c.log, "overlay failed: %v\n", err)
	}
}

// refFor resolves the task ref behind a focused id. A task file that
// vanished mid-follow still gets a usable ref so the overlay can name it.
func (c *Controller) refFor(id int) task.Ref {
	if ref, err := task.Resolve(c.tasksDir, id); err == nil {
		return ref
	}
	return task.Ref{ID: id, Slug: "task"}
}
