package session_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/waabox/pakdeck/internal/domain"
	"github.com/waabox/pakdeck/internal/session"
)

func TestFilePersister_WritesThroughEveryMutation(t *testing.T) {
	dir := t.TempDir()
	p := session.NewFilePersister(dir)
	s := session.NewStore(session.WithPersister(p))

	sess, _ := s.Create("@scope/demo", "1.0.0", []string{"npm"}, "quick")
	_ = s.Start(sess.ID)
	_ = s.SetPlatformStatus(sess.ID, "npm", domain.PlatformRunning, "")

	path := filepath.Join(dir, "sessions", "@scope%2Fdemo", sess.ID+".json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected session file at %s: %v", path, err)
	}

	// A second store sharing the directory sees mid-run progress.
	reader := session.NewStore(session.WithPersister(session.NewFilePersister(dir)))
	got, err := reader.Get(sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.SessionRunning || got.PlatformStatus["npm"].Status != domain.PlatformRunning {
		t.Errorf("expected running session with running npm, got %+v", got)
	}
	latest, err := reader.Latest("@scope/demo")
	if err != nil || latest.ID != sess.ID {
		t.Errorf("expected latest %s, got %s (%v)", sess.ID, latest.ID, err)
	}
}

func TestFilePersister_GetUnknown(t *testing.T) {
	p := session.NewFilePersister(t.TempDir())
	for _, id := range []string{"0190f5a2-0000-7000-8000-000000000000", "../../etc/passwd"} {
		if _, err := p.Get(id); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Errorf("%s: expected ErrSessionNotFound, got %v", id, err)
		}
	}
}

func TestFilePersister_CleanupDeletesFiles(t *testing.T) {
	dir := t.TempDir()
	s := session.NewStore(session.WithPersister(session.NewFilePersister(dir)))
	sess, _ := s.Create("demo", "1.0.0", []string{"npm"}, "quick")
	_, _ = s.Finalize(sess.ID)

	removed, err := s.Cleanup("demo", sess.StartedAt.Add(1))
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 removed, got %d (%v)", removed, err)
	}
	list, _ := session.NewFilePersister(dir).List("demo")
	if len(list) != 0 {
		t.Errorf("expected no stored sessions, got %d", len(list))
	}
}
