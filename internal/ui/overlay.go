// Package ui holds the interactive terminal programs: the task list TUI
// and the overlay shown while a focused task has no session yet.
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	overlayTextStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("250"))
	overlayHintStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))
	overlayErrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))
)

type sessionStartedMsg struct{}

type sessionStartErrMsg struct{ err error }

// OverlayModel is the placeholder program shown in place of a missing
// tmux session. Pressing s runs start; success ends the program so the
// caller can attach.
type OverlayModel struct {
	taskID int
	slug   string
	start  func() error

	starting bool
	started  bool
	err      error
	width    int
	height   int
}

// NewOverlay creates the overlay for a focused task without a session.
func NewOverlay(taskID int, slug string, start func() error) OverlayModel {
	return OverlayModel{taskID: taskID, slug: slug, start: start}
}

// Started reports whether the session was started before the program ended.
func (m OverlayModel) Started() bool { return m.started }

func (m OverlayModel) Init() tea.Cmd { return nil }

func (m OverlayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "s":
			if m.starting {
				return m, nil
			}
			m.starting = true
			m.err = nil
			start := m.start
			return m, func() tea.Msg {
				if err := start(); err != nil {
					return sessionStartErrMsg{err: err}
				}
				return sessionStartedMsg{}
			}
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case sessionStartedMsg:
		m.started = true
		return m, tea.Quit

	case sessionStartErrMsg:
		m.starting = false
		m.err = msg.err
	}
	return m, nil
}

func (m OverlayModel) View() string {
	line := fmt.Sprintf("No session for Task %s (ID: %d). Press s to start.", m.slug, m.taskID)
	body := overlayTextStyle.Render(line)
	switch {
	case m.err != nil:
		body += "\n\n" + overlayErrStyle.Render(fmt.Sprintf("start failed: %v", m.err))
	case m.starting:
		body += "\n\n" + overlayHintStyle.Render("starting session...")
	default:
		body += "\n\n" + overlayHintStyle.Render("q to dismiss")
	}

	if m.width == 0 || m.height == 0 {
		return body
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
}

// RunOverlay runs the overlay program on the terminal. It reports
// whether the session was started.
func RunOverlay(taskID int, slug string, start func() error) (bool, error) {
	p := tea.NewProgram(NewOverlay(taskID, slug, start), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("overlay: %w", err)
	}
	model, ok := final.(OverlayModel)
	return ok && model.Started(), nil
}
