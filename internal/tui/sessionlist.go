package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/waabox/pakdeck/internal/domain"
)

// SessionListModel is an immutable Bubbletea-compatible model for the session list panel.
type SessionListModel struct {
	sessions []domain.Session
	cursor   int
}

// NewSessionListModel creates a session list model with the given sessions.
func NewSessionListModel(sessions []domain.Session) SessionListModel {
	return SessionListModel{sessions: sessions}
}

// UpdateSessions replaces the sessions while keeping the cursor on the
// previously selected session when it is still present.
func (m SessionListModel) UpdateSessions(sessions []domain.Session) SessionListModel {
	selected := m.SelectedSession().ID
	m.sessions = sessions
	m.cursor = 0
	for i, s := range sessions {
		if s.ID == selected {
			m.cursor = i
			break
		}
	}
	return m
}

// MoveDown returns a new model with the cursor moved down by one.
func (m SessionListModel) MoveDown() SessionListModel {
	if m.cursor < len(m.sessions)-1 {
		m.cursor++
	}
	return m
}

// MoveUp returns a new model with the cursor moved up by one.
func (m SessionListModel) MoveUp() SessionListModel {
	if m.cursor > 0 {
		m.cursor--
	}
	return m
}

// SelectedIndex returns the current cursor position.
func (m SessionListModel) SelectedIndex() int {
	return m.cursor
}

// SelectedSession returns the highlighted session, or a zero Session when the list is empty.
func (m SessionListModel) SelectedSession() domain.Session {
	if len(m.sessions) == 0 {
		return domain.Session{}
	}
	return m.sessions[m.cursor]
}

// Sessions returns the listed sessions.
func (m SessionListModel) Sessions() []domain.Session {
	return m.sessions
}

// View renders the session list as a string.
func (m SessionListModel) View() string {
	if len(m.sessions) == 0 {
		return "No sessions found."
	}
	var sb strings.Builder
	for i, s := range m.sessions {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		sb.WriteString(fmt.Sprintf("%s%s %-12s %-10s %-24s %s\n",
			prefix,
			sessionIcon(s.Status),
			truncate(s.Version, 12),
			truncate(s.PipelineName, 10),
			truncate(strings.Join(s.Platforms, ","), 24),
			formatAge(s.StartedAt),
		))
	}
	return sb.String()
}

func sessionIcon(s domain.SessionStatus) string {
	switch s {
	case domain.SessionCompleted:
		return "✓"
	case domain.SessionFailed:
		return "✗"
	case domain.SessionRunning:
		return "●"
	case domain.SessionInitialized:
		return "↷"
	default:
		return "?"
	}
}

func platformIcon(s domain.PlatformStatus) string {
	switch s {
	case domain.PlatformCompleted:
		return "✓"
	case domain.PlatformFailed:
		return "✗"
	case domain.PlatformRunning:
		return "●"
	case domain.PlatformPending:
		return "↷"
	case domain.PlatformRolledBack:
		return "↺"
	default:
		return "?"
	}
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "--"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
