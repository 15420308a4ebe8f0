package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/waabox/pakdeck/internal/domain"
)

// PlatformListModel is an immutable model for the per-platform outcome panel
// of one session.
type PlatformListModel struct {
	session domain.Session
	cursor  int
}

// NewPlatformListModel creates a platform list model for s.
func NewPlatformListModel(s domain.Session) PlatformListModel {
	return PlatformListModel{session: s}
}

// WithSession refreshes the session shown without moving the cursor.
func (m PlatformListModel) WithSession(s domain.Session) PlatformListModel {
	m.session = s
	if m.cursor >= len(s.Platforms) {
		m.cursor = max(len(s.Platforms)-1, 0)
	}
	return m
}

// MoveDown returns a new model with the cursor moved down by one.
func (m PlatformListModel) MoveDown() PlatformListModel {
	if m.cursor < len(m.session.Platforms)-1 {
		m.cursor++
	}
	return m
}

// MoveUp returns a new model with the cursor moved up by one.
func (m PlatformListModel) MoveUp() PlatformListModel {
	if m.cursor > 0 {
		m.cursor--
	}
	return m
}

// Cursor returns the current cursor position.
func (m PlatformListModel) Cursor() int {
	return m.cursor
}

// SelectedPlatform returns the highlighted platform name.
func (m PlatformListModel) SelectedPlatform() string {
	if len(m.session.Platforms) == 0 {
		return ""
	}
	return m.session.Platforms[m.cursor]
}

// View renders one row per platform with its status, completion time and
// the last recorded error of the highlighted platform.
func (m PlatformListModel) View() string {
	if len(m.session.Platforms) == 0 {
		return "No platforms in this session."
	}
	var sb strings.Builder
	for i, p := range m.session.Platforms {
		out := m.session.PlatformStatus[p]
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		took := "--"
		if out.CompletedAt != nil {
			took = out.CompletedAt.Sub(m.session.StartedAt).Round(time.Second).String()
		}
		sb.WriteString(fmt.Sprintf("%s%s %-16s %-12s %s\n",
			prefix,
			platformIcon(out.Status),
			truncate(p, 16),
			out.Status,
			took,
		))
	}
	if last := m.session.PlatformStatus[m.SelectedPlatform()].LastError; last != "" {
		sb.WriteString("\n  " + last + "\n")
	}
	return sb.String()
}
