package ui

import (
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func keyMsg(s string) tea.KeyMsg {
	if s == "esc" {
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestOverlayViewText(t *testing.T) {
	m := NewOverlay(12, "fix-login", nil)

	view := m.View()
	want := "No session for Task fix-login (ID: 12). Press s to start."
	if !strings.Contains(view, want) {
		t.Fatalf("view missing %q:\n%s", want, view)
	}
}

func TestOverlayStartKeyRunsStartAndQuits(t *testing.T) {
	started := false
	m := NewOverlay(1, "demo", func() error {
		started = true
		return nil
	})

	next, cmd := m.Update(keyMsg("s"))
	m = next.(OverlayModel)
	if cmd == nil {
		t.Fatal("s produced no command")
	}

	msg := cmd()
	if _, ok := msg.(sessionStartedMsg); !ok {
		t.Fatalf("start command returned %T, want sessionStartedMsg", msg)
	}
	if !started {
		t.Fatal("start function not invoked")
	}

	next, cmd = m.Update(msg)
	m = next.(OverlayModel)
	if !m.Started() {
		t.Fatal("model does not report started")
	}
	if cmd == nil {
		t.Fatal("expected quit command after start")
	}
}

func TestOverlayStartFailureStaysUp(t *testing.T) {
	m := NewOverlay(1, "demo", func() error {
		return fmt.Errorf("tmux unavailable")
	})

	next, cmd := m.Update(keyMsg("s"))
	m = next.(OverlayModel)
	msg := cmd()
	if _, ok := msg.(sessionStartErrMsg); !ok {
		t.Fatalf("start command returned %T, want sessionStartErrMsg", msg)
	}

	next, _ = m.Update(msg)
	m = next.(OverlayModel)
	if m.Started() {
		t.Fatal("failed start reported as started")
	}
	if !strings.Contains(m.View(), "tmux unavailable") {
		t.Fatal("view does not surface the start error")
	}

	// A second press retries
	_, cmd = m.Update(keyMsg("s"))
	if cmd == nil {
		t.Fatal("retry after failure produced no command")
	}
}

func TestOverlayStartIgnoredWhileStarting(t *testing.T) {
	calls := 0
	m := NewOverlay(1, "demo", func() error {
		calls++
		return nil
	})

	next, _ := m.Update(keyMsg("s"))
	m = next.(OverlayModel)
	_, cmd := m.Update(keyMsg("s"))
	if cmd != nil {
		t.Fatal("second s while starting produced a command")
	}
	_ = calls
}

func TestOverlayDismissKeys(t *testing.T) {
	for _, key := range []string{"q", "esc"} {
		m := NewOverlay(1, "demo", nil)
		next, cmd := m.Update(keyMsg(key))
		m = next.(OverlayModel)
		if cmd == nil {
			t.Fatalf("%s did not quit", key)
		}
		if m.Started() {
			t.Fatalf("%s reported started", key)
		}
	}
}
