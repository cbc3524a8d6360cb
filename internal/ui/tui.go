package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/agency-sh/agency/internal/task"
	"github.com/agency-sh/agency/internal/tmux"
)

const sessionRefreshInterval = 5 * time.Second

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
	tableBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240"))
)

type tasksReloadedMsg struct {
	tasks []task.Ref
	err   error
}

type sessionsMsg struct {
	attached map[int]bool // task id -> session exists
}

type fsEventMsg struct{}

type sessionTickMsg struct{}

// TuiConfig wires the task list program.
type TuiConfig struct {
	TuiID    int
	TasksDir string
	Backend  *tmux.Backend

	// Report sends the focused task to the daemon. Best effort; called
	// off the update loop.
	Report func(taskID *int)
}

// TuiModel is the task list. It shows every task under .agency/tasks/
// with its session state and reports cursor moves as focus changes.
type TuiModel struct {
	cfg     TuiConfig
	table   table.Model
	tasks   []task.Ref
	watcher *fsnotify.Watcher

	lastReported *int
	loadErr      error
	width        int
	height       int
}

// NewTui creates the task list model. The watcher may be nil; the list
// then only refreshes on the periodic tick.
func NewTui(cfg TuiConfig, watcher *fsnotify.Watcher) TuiModel {
	columns := []table.Column{
		{Title: "ID", Width: 4},
		{Title: "Task", Width: 36},
		{Title: "Session", Width: 10},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	return TuiModel{cfg: cfg, table: t, watcher: watcher}
}

func (m TuiModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadTasks, m.loadSessions, sessionTick()}
	if m.watcher != nil {
		cmds = append(cmds, m.waitForFSEvent)
	}
	return tea.Batch(cmds...)
}

func (m TuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(4, msg.Height-6))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tasksReloadedMsg:
		m.loadErr = msg.err
		if msg.err == nil {
			m.tasks = msg.tasks
			m.rebuildRows(nil)
		}
		return m, m.reportFocusCmd()

	case sessionsMsg:
		m.rebuildRows(msg.attached)
		return m, nil

	case fsEventMsg:
		return m, tea.Batch(m.loadTasks, m.loadSessions, m.waitForFSEvent)

	case sessionTickMsg:
		return m, tea.Batch(m.loadSessions, sessionTick())
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, tea.Batch(cmd, m.reportFocusCmd())
}

func (m TuiModel) View() string {
	header := headerStyle.Render(fmt.Sprintf("Agency TUI #%d", m.cfg.TuiID))
	body := tableBorderStyle.Render(m.table.View())
	footer := footerStyle.Render("↑/↓ move focus · q quit")
	if m.loadErr != nil {
		footer = footerStyle.Render(fmt.Sprintf("task load error: %v", m.loadErr))
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// FocusedTask returns the task id under the cursor, nil when the list is
// empty.
func (m TuiModel) FocusedTask() *int {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.tasks) {
		return nil
	}
	id := m.tasks[i].ID
	return &id
}

// reportFocusCmd tells the daemon about the focused task when it changed
// since the last report.
func (m *TuiModel) reportFocusCmd() tea.Cmd {
	focused := m.FocusedTask()
	if equalFocus(focused, m.lastReported) {
		return nil
	}
	m.lastReported = focused
	if m.cfg.Report == nil {
		return nil
	}
	report := m.cfg.Report
	return func() tea.Msg {
		report(focused)
		return nil
	}
}

func equalFocus(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *TuiModel) rebuildRows(attached map[int]bool) {
	if attached == nil {
		attached = m.currentSessions()
	}
	rows := make([]table.Row, 0, len(m.tasks))
	for _, t := range m.tasks {
		status := "-"
		if attached[t.ID] {
			status = "live"
		}
		rows = append(rows, table.Row{strconv.Itoa(t.ID), t.Slug, status})
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

// currentSessions re-derives session state from the visible rows so a
// task reload does not blank the session column until the next tick.
func (m *TuiModel) currentSessions() map[int]bool {
	attached := make(map[int]bool)
	for _, row := range m.table.Rows() {
		if len(row) < 3 || row[2] != "live" {
			continue
		}
		if id, err := strconv.Atoi(row[0]); err == nil {
			attached[id] = true
		}
	}
	return attached
}

func (m TuiModel) loadTasks() tea.Msg {
	tasks, err := task.List(m.cfg.TasksDir)
	return tasksReloadedMsg{tasks: tasks, err: err}
}

func (m TuiModel) loadSessions() tea.Msg {
	attached := make(map[int]bool)
	if m.cfg.Backend != nil {
		sessions, err := m.cfg.Backend.ListSessions()
		if err == nil {
			for _, s := range sessions {
				attached[s.Task.ID] = true
			}
		}
	}
	return sessionsMsg{attached: attached}
}

func (m TuiModel) waitForFSEvent() tea.Msg {
	for {
		select {
		case _, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			return fsEventMsg{}
		case _, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			// Watch errors are non-fatal; the tick still refreshes
		}
	}
}

func sessionTick() tea.Cmd {
	return tea.Tick(sessionRefreshInterval, func(time.Time) tea.Msg {
		return sessionTickMsg{}
	})
}

// RunTui runs the task list on the terminal, watching tasksDir for
// changes while the program is up.
func RunTui(cfg TuiConfig) error {
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if werr := watcher.Add(cfg.TasksDir); werr != nil {
			_ = watcher.Close()
			watcher = nil
		}
	} else {
		watcher = nil
	}
	if watcher != nil {
		defer func() { _ = watcher.Close() }()
	}

	p := tea.NewProgram(NewTui(cfg, watcher), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
