package follower

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ChildKind identifies what occupies the manager's single child slot.
type ChildKind int

const (
	KindNone ChildKind = iota
	KindAttach
	KindOverlay
)

func (k ChildKind) String() string {
	switch k {
	case KindAttach:
		return "attach"
	case KindOverlay:
		return "overlay"
	default:
		return "none"
	}
}

// ExitEvent reports that a child left the slot on its own.
type ExitEvent struct {
	Kind     ChildKind
	ExitCode int
	Err      error // non-exit errors from Wait
}

type child struct {
	kind ChildKind
	cmd  *exec.Cmd
	done chan struct{} // closed once Wait returns
}

// Manager owns the follower's foreground child. At most one child is
// live at any time: Spawn retires the current occupant completely
// before starting the replacement.
type Manager struct {
	grace  time.Duration
	events chan ExitEvent

	mu      sync.Mutex
	current *child
}

// NewManager creates a manager with the given retirement grace period.
func NewManager(grace time.Duration) *Manager {
	return &Manager{
		grace:  grace,
		events: make(chan ExitEvent, 4),
	}
}

// Events returns exit events for children that terminated on their own.
// Retirement does not produce an event: the caller initiated it.
func (m *Manager) Events() <-chan ExitEvent {
	return m.events
}

// Kind reports what currently occupies the slot.
func (m *Manager) Kind() ChildKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return KindNone
	}
	return m.current.kind
}

// Spawn retires any current child, then starts cmd in the slot.
func (m *Manager) Spawn(kind ChildKind, cmd *exec.Cmd) error {
	m.Retire()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s child: %w", kind, err)
	}

	c := &child{kind: kind, cmd: cmd, done: make(chan struct{})}
	m.mu.Lock()
	m.current = c
	m.mu.Unlock()

	go m.watch(c)
	return nil
}

// Retire terminates the current child and waits for it to be fully
// reaped: SIGTERM, then SIGKILL after the grace period. No-op when the
// slot is empty.
func (m *Manager) Retire() {
	m.mu.Lock()
	c := m.current
	m.current = nil
	m.mu.Unlock()
	if c == nil {
		return
	}

	_ = c.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-c.done:
		return
	case <-time.After(m.grace):
	}
	_ = c.cmd.Process.Kill()
	<-c.done
}

// watch reaps the child and reports the exit if the child was not
// retired in the meantime.
func (m *Manager) watch(c *child) {
	err := c.cmd.Wait()
	close(c.done)

	m.mu.Lock()
	natural := m.current == c
	if natural {
		m.current = nil
	}
	m.mu.Unlock()
	if !natural {
		return
	}

	ev := ExitEvent{Kind: c.kind}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		ev.ExitCode = 0
	case errors.As(err, &exitErr):
		ev.ExitCode = exitErr.ExitCode()
	default:
		ev.ExitCode = -1
		ev.Err = err
	}
	m.events <- ev
}
