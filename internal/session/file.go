package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/waabox/pakdeck/internal/domain"
)

// FilePersister stores one JSON document per session at
// <root>/<package>/<id>.json, replacing it atomically on every save.
type FilePersister struct {
	root string
}

// Ensure FilePersister implements Persister.
var _ Persister = (*FilePersister)(nil)

// NewFilePersister stores sessions under <dataDir>/sessions.
func NewFilePersister(dataDir string) *FilePersister {
	return &FilePersister{root: filepath.Join(dataDir, "sessions")}
}

func (p *FilePersister) packageDir(pkg string) string {
	return filepath.Join(p.root, url.PathEscape(pkg))
}

// Save writes the session document through a temporary file and a rename so
// readers never observe a partial write.
func (p *FilePersister) Save(s domain.Session) error {
	dir := p.packageDir(s.Package)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+s.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, s.ID+".json")); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

// Get finds a session by id in any package directory.
func (p *FilePersister) Get(id string) (domain.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Session{}, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	matches, err := filepath.Glob(filepath.Join(p.root, "*", id+".json"))
	if err != nil {
		return domain.Session{}, err
	}
	if len(matches) == 0 {
		return domain.Session{}, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	return readSession(matches[0])
}

// List reads every session stored for pkg, in no particular order.
func (p *FilePersister) List(pkg string) ([]domain.Session, error) {
	dir := p.packageDir(pkg)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session dir: %w", err)
	}
	var list []domain.Session
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		sess, err := readSession(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		list = append(list, sess)
	}
	return list, nil
}

// Delete removes a stored session. Deleting a missing session is not an error.
func (p *FilePersister) Delete(pkg, id string) error {
	err := os.Remove(filepath.Join(p.packageDir(pkg), id+".json"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func readSession(path string) (domain.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Session{}, fmt.Errorf("reading session: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Session{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return s, nil
}
