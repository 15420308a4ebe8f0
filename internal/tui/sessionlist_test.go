package tui_test

import (
	"strings"
	"testing"

	"github.com/waabox/pakdeck/internal/domain"
	"github.com/waabox/pakdeck/internal/tui"
)

func TestSessionListModel_Navigates(t *testing.T) {
	m := tui.NewSessionListModel([]domain.Session{
		session("s2", "1.1.0", domain.SessionFailed),
		session("s1", "1.0.0", domain.SessionCompleted),
	})
	if m.SelectedSession().ID != "s2" {
		t.Fatalf("expected s2 selected, got %q", m.SelectedSession().ID)
	}
	m = m.MoveDown().MoveDown()
	if m.SelectedIndex() != 1 {
		t.Errorf("expected cursor clamped at 1, got %d", m.SelectedIndex())
	}
	m = m.MoveUp().MoveUp()
	if m.SelectedIndex() != 0 {
		t.Errorf("expected cursor clamped at 0, got %d", m.SelectedIndex())
	}
}

func TestSessionListModel_EmptyShowsMessage(t *testing.T) {
	m := tui.NewSessionListModel(nil)
	if !strings.Contains(m.View(), "No sessions") {
		t.Errorf("expected empty message, got:\n%s", m.View())
	}
	if m.SelectedSession().ID != "" {
		t.Error("expected zero session for empty list")
	}
}

func TestSessionListModel_UpdateFallsBackToTop(t *testing.T) {
	m := tui.NewSessionListModel([]domain.Session{
		session("s2", "1.1.0", domain.SessionFailed),
		session("s1", "1.0.0", domain.SessionCompleted),
	}).MoveDown()
	m = m.UpdateSessions([]domain.Session{session("s3", "1.2.0", domain.SessionRunning)})
	if m.SelectedSession().ID != "s3" {
		t.Errorf("expected cursor reset when selection disappears, got %q", m.SelectedSession().ID)
	}
}

func TestPlatformListModel_ShowsLastErrorOfSelection(t *testing.T) {
	m := tui.NewPlatformListModel(session("s1", "1.0.0", domain.SessionFailed))
	if strings.Contains(m.View(), "exit status 1") {
		t.Errorf("npm has no error, got:\n%s", m.View())
	}
	m = m.MoveDown()
	if m.SelectedPlatform() != "pypi" {
		t.Fatalf("expected pypi selected, got %q", m.SelectedPlatform())
	}
	if !strings.Contains(m.View(), "TaskFailed: pypi: deploy: exit status 1") {
		t.Errorf("expected pypi error in view, got:\n%s", m.View())
	}
}
