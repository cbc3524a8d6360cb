// Package tmux is the session backend: it wraps the tmux command line to
// query, start, attach, and kill per-task sessions. Sessions are named
// "<prefix>-<id>-<slug>" and tagged with the owning project root via the
// @agency_root session option so concurrent projects stay separated.
package tmux

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/agency-sh/agency/internal/task"
)

// Backend runs tmux commands for one project.
type Backend struct {
	Prefix      string // session name prefix, e.g. "agency"
	ProjectRoot string

	// run executes a prepared command and returns combined stdout.
	// Replaced in tests.
	run func(args ...string) ([]byte, error)
}

// Session describes one live tmux session owned by this backend.
type Session struct {
	Name     string
	Task     task.Ref
	Attached int // number of attached clients
}

// NewBackend creates a backend for the given project.
func NewBackend(prefix, projectRoot string) *Backend {
	b := &Backend{Prefix: prefix, ProjectRoot: projectRoot}
	b.run = func(args ...string) ([]byte, error) {
		return exec.Command("tmux", args...).Output()
	}
	return b
}

// NewBackendWithRunner creates a backend whose tmux invocations go
// through run instead of the tmux binary. For tests.
func NewBackendWithRunner(prefix, projectRoot string, run func(args ...string) ([]byte, error)) *Backend {
	return &Backend{Prefix: prefix, ProjectRoot: projectRoot, run: run}
}

// SessionName generates the tmux session name for a task.
func (b *Backend) SessionName(t task.Ref) string {
	return fmt.Sprintf("%s-%d-%s", b.Prefix, t.ID, t.Slug)
}

// ParseSessionName extracts the task ref from a session name, if the name
// belongs to this backend's prefix.
func (b *Backend) ParseSessionName(name string) (task.Ref, bool) {
	rest, ok := strings.CutPrefix(name, b.Prefix+"-")
	if !ok {
		return task.Ref{}, false
	}
	idPart, slug, ok := strings.Cut(rest, "-")
	if !ok {
		return task.Ref{}, false
	}
	id, err := strconv.Atoi(idPart)
	if err != nil || id <= 0 {
		return task.Ref{}, false
	}
	return task.Ref{ID: id, Slug: slug}, true
}

// SessionExists reports whether a live session exists for the task.
func (b *Backend) SessionExists(t task.Ref) (bool, error) {
	_, err := b.run("has-session", "-t", "="+b.SessionName(t))
	if err == nil {
		return true, nil
	}
	// has-session exits non-zero both when the session is missing and
	// when no server is running; treat either as "does not exist".
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("tmux has-session: %w", err)
}

// Start creates a detached session for the task running argv in dir.
func (b *Backend) Start(t task.Ref, dir string, argv []string) error {
	name := b.SessionName(t)
	args := []string{"new-session", "-d", "-s", name, "-c", dir}
	args = append(args, argv...)
	if _, err := b.run(args...); err != nil {
		return fmt.Errorf("tmux new-session for %s: %w", t, err)
	}
	// Tag the session with the project root for ListSessions filtering.
	if _, err := b.run("set-option", "-t", "="+name, "@agency_root", b.ProjectRoot); err != nil {
		return fmt.Errorf("tmux set-option @agency_root: %w", err)
	}
	// Minimal status line naming the task; detach is the usual tmux gesture.
	_, _ = b.run("set-option", "-t", "="+name, "status-left", " Agency ")
	_, _ = b.run("set-option", "-t", "="+name, "status-right",
		fmt.Sprintf(" Task %s (ID: %d) ", t.Slug, t.ID))
	return nil
}

// AttachCommand builds the command that attaches the calling terminal to the
// task's session. The caller wires stdio and owns the process lifetime.
func (b *Backend) AttachCommand(t task.Ref) *exec.Cmd {
	cmd := exec.Command("tmux", "attach-session", "-t", "="+b.SessionName(t))
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// Kill terminates the task's session.
func (b *Backend) Kill(t task.Ref) error {
	if _, err := b.run("kill-session", "-t", "="+b.SessionName(t)); err != nil {
		return fmt.Errorf("tmux kill-session for %s: %w", t, err)
	}
	return nil
}

// ListSessions returns the live sessions belonging to this project.
func (b *Backend) ListSessions() ([]Session, error) {
	out, err := b.run("list-sessions", "-F",
		"#{session_name}\x1f#{@agency_root}\x1f#{session_attached}")
	if err != nil {
		// No server running means no sessions.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) || isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("tmux list-sessions: %w", err)
	}
	return b.parseSessionList(string(out)), nil
}

// isNotFound reports whether the error means the tmux binary is missing.
func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

func (b *Backend) parseSessionList(out string) []Session {
	var sessions []Session
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\x1f")
		if len(parts) < 3 {
			continue
		}
		name, root, attachedTxt := parts[0], parts[1], parts[2]
		if root != b.ProjectRoot {
			continue
		}
		ref, ok := b.ParseSessionName(name)
		if !ok {
			continue
		}
		attached, _ := strconv.Atoi(attachedTxt)
		sessions = append(sessions, Session{Name: name, Task: ref, Attached: attached})
	}
	return sessions
}
