package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/waabox/pakdeck/internal/domain"
	"github.com/waabox/pakdeck/internal/engine"
)

const (
	// RunningRefresh is the reload interval while the selected session is in flight.
	RunningRefresh = 2 * time.Second
	// IdleRefresh is the reload interval otherwise.
	IdleRefresh = 15 * time.Second
)

// SessionSource is what the viewer reads sessions from. *engine.Engine satisfies it.
type SessionSource interface {
	Sessions(pkg string) ([]domain.Session, error)
	Cleanup(pkg string, olderThan time.Duration) (int, error)
}

// SessionsLoadedMsg is sent when the package's sessions have been read.
// It is exported so that tests can inject it directly into AppModel.Update.
type SessionsLoadedMsg struct {
	Sessions []domain.Session
	Err      error
}

// CleanupDoneMsg is sent when a cleanup requested from the viewer finishes.
type CleanupDoneMsg struct {
	Removed int
	Err     error
}

type tickMsg struct{}

type viewState int

const (
	viewSessions viewState = iota
	viewPlatforms
	viewLogs
)

// AppModel is the root Bubbletea model for pakdeck watch.
type AppModel struct {
	pkg    string
	source SessionSource

	view      viewState
	list      SessionListModel
	selected  domain.Session
	platforms PlatformListModel

	loading bool
	err     error
	notice  string
	width   int
	height  int
	confirm bool

	logLines      []string
	logOffset     int
	logReturnView viewState
}

// NewAppModel creates the root application model for pkg.
func NewAppModel(pkg string, source SessionSource) AppModel {
	return AppModel{
		pkg:     pkg,
		source:  source,
		list:    NewSessionListModel(nil),
		loading: true,
	}
}

// Init triggers the initial session load.
func (m AppModel) Init() tea.Cmd {
	return tea.Batch(m.loadSessions(), tickEvery(RunningRefresh))
}

func (m AppModel) loadSessions() tea.Cmd {
	return func() tea.Msg {
		sessions, err := m.source.Sessions(m.pkg)
		return SessionsLoadedMsg{Sessions: sessions, Err: err}
	}
}

func (m AppModel) cleanup() tea.Cmd {
	return func() tea.Msg {
		n, err := m.source.Cleanup(m.pkg, 0)
		return CleanupDoneMsg{Removed: n, Err: err}
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return tickMsg{}
	})
}

func anyRunning(sessions []domain.Session) bool {
	for _, s := range sessions {
		if !s.Finished() {
			return true
		}
	}
	return false
}

// Update handles all incoming messages and key events.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case SessionsLoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.list = m.list.UpdateSessions(msg.Sessions)
		m.selected = m.list.SelectedSession()
		m.platforms = m.platforms.WithSession(m.selected)
		if m.view == viewLogs {
			m.logLines = logLines(m.selected)
		}

	case CleanupDoneMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.notice = fmt.Sprintf("removed %d finished session(s)", msg.Removed)
		m.loading = true
		return m, m.loadSessions()

	case tickMsg:
		interval := IdleRefresh
		if anyRunning(m.list.Sessions()) {
			interval = RunningRefresh
		}
		return m, tea.Batch(m.loadSessions(), tickEvery(interval))

	case tea.KeyMsg:
		if m.confirm {
			m.confirm = false
			switch msg.String() {
			case "y":
				return m, m.cleanup()
			case "q", "ctrl+c":
				return m, tea.Quit
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "ctrl+r":
			m.loading = true
			return m, m.loadSessions()
		}
		switch m.view {
		case viewSessions:
			return m.updateSessions(msg)
		case viewPlatforms:
			return m.updatePlatforms(msg)
		case viewLogs:
			return m.updateLogs(msg)
		}
	}
	return m, nil
}

func (m AppModel) updateSessions(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "down":
		m.list = m.list.MoveDown()
		m.selected = m.list.SelectedSession()
	case "up":
		m.list = m.list.MoveUp()
		m.selected = m.list.SelectedSession()
	case "enter":
		if len(m.list.Sessions()) > 0 {
			m.selected = m.list.SelectedSession()
			m.platforms = NewPlatformListModel(m.selected)
			m.view = viewPlatforms
		}
	case "l":
		if len(m.list.Sessions()) > 0 {
			m = m.openLogs()
		}
	case "c":
		m.confirm = true
		m.notice = ""
	}
	return m, nil
}

func (m AppModel) updatePlatforms(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "down":
		m.platforms = m.platforms.MoveDown()
	case "up":
		m.platforms = m.platforms.MoveUp()
	case "l":
		m = m.openLogs()
	case "esc":
		m.view = viewSessions
	}
	return m, nil
}

func (m AppModel) openLogs() AppModel {
	m.logReturnView = m.view
	m.view = viewLogs
	m.logLines = logLines(m.selected)
	m.logOffset = 0
	return m
}

func (m AppModel) updateLogs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	last := max(len(m.logLines)-1, 0)
	switch msg.String() {
	case "down":
		if m.logOffset < last {
			m.logOffset++
		}
	case "up":
		if m.logOffset > 0 {
			m.logOffset--
		}
	case "pgup":
		m.logOffset = max(m.logOffset-m.visibleLogLines(), 0)
	case "pgdown":
		m.logOffset = min(m.logOffset+m.visibleLogLines(), last)
	case "g":
		m.logOffset = 0
	case "G":
		m.logOffset = last
	case "esc":
		m.view = m.logReturnView
		m.logLines = nil
		m.logOffset = 0
	}
	return m, nil
}

const separator = "────────────────────────────────────────────────────────────\n"

// View renders the full TUI.
func (m AppModel) View() string {
	if m.view == viewLogs {
		return m.renderLogView()
	}
	if m.loading && !m.confirm {
		return "Loading sessions...\n"
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress 'ctrl+r' to retry or 'q' to quit.\n", m.err)
	}

	header := fmt.Sprintf(" pakdeck | %s", m.pkg)
	if m.selected.ID != "" {
		header += fmt.Sprintf(" %s  %s (%s)", m.selected.Version, m.selected.PipelineName, m.selected.Status)
	}
	header += "\n"

	if m.view == viewPlatforms {
		title := fmt.Sprintf(" Platforms for session %s\n", m.selected.ID)
		footer := " ↑/↓: navigate   l: logs   esc: back   ctrl+r: refresh   q: quit\n"
		return header + separator + title + m.platforms.View() + "\n" + separator + footer
	}

	title := " Sessions\n"
	status := fmt.Sprintf(" %s started %s\n", m.selected.ID, formatAge(m.selected.StartedAt))
	if m.notice != "" {
		status = " " + m.notice + "\n"
	}
	footer := " ↑/↓: navigate   enter: platforms   l: logs   c: clean up   ctrl+r: refresh   q: quit\n"
	if m.confirm {
		footer = fmt.Sprintf(" Remove finished sessions of %s? [y/N] \n", m.pkg)
	}
	return header + separator + title + m.list.View() + "\n" + separator + status + separator + footer
}

// visibleLogLines returns the number of log lines visible in the current terminal height.
func (m AppModel) visibleLogLines() int {
	lines := m.height - 4
	if lines < 10 {
		return 10
	}
	return lines
}

func (m AppModel) renderLogView() string {
	header := fmt.Sprintf(" pakdeck  %s %s  [logs] %s\n", m.pkg, m.selected.Version, m.selected.ID)
	footer := " ↑/↓: scroll   PgUp/PgDn: page   g/G: top/bottom   esc: back\n"
	if len(m.logLines) == 0 {
		return header + separator + "No log entries yet.\n" + separator + footer
	}
	start := min(max(m.logOffset, 0), len(m.logLines)-1)
	end := min(start+m.visibleLogLines(), len(m.logLines))
	return header + separator + strings.Join(m.logLines[start:end], "\n") + "\n" + separator + footer
}

func logLines(s domain.Session) []string {
	entries := engine.SessionLog(s)
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		ts := e.Timestamp.Local().Format("15:04:05.000")
		if e.Kind == engine.LogError {
			lines = append(lines, fmt.Sprintf(" %s  error    %s", ts, e.Message))
			continue
		}
		lines = append(lines, fmt.Sprintf(" %s  %-12s %s", ts, e.Stage, e.Status))
	}
	return lines
}

// Run starts the Bubbletea program for pkg and blocks until the user quits.
func Run(pkg string, source SessionSource) error {
	p := tea.NewProgram(NewAppModel(pkg, source), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("watch %s: %w", pkg, err)
	}
	return nil
}
