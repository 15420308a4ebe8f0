// Package session implements the Session Store: the single source of truth for
// the progress and outcome of every deployment run.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waabox/pakdeck/internal/domain"
)

// Persister durably stores session snapshots so other processes can read them.
type Persister interface {
	Save(s domain.Session) error
	Get(id string) (domain.Session, error)
	List(pkg string) ([]domain.Session, error)
	Delete(pkg, id string) error
}

// Observer receives an event after every session mutation, in mutation order
// for any single session.
type Observer interface {
	Publish(e domain.Event)
}

// Option configures a Store.
type Option func(*Store)

// WithPersister makes the store write every mutation through p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithObserver registers o for mutation events.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used to report persistence problems.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

type entry struct {
	mu      sync.Mutex
	session domain.Session
}

// Store holds sessions in memory and optionally writes them through a Persister.
// Each session has its own lock; mutations of different sessions never contend
// beyond the map lookup.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*entry
	persister Persister
	observer  Observer
	now       func() time.Time
	logger    *slog.Logger
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*entry),
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts a new session in the initialized state with every platform pending.
// Duplicate platforms are collapsed, keeping the first occurrence.
func (s *Store) Create(pkg, version string, platforms []string, pipelineName string) (domain.Session, error) {
	if pkg == "" {
		return domain.Session{}, errors.New("package name is required")
	}
	if pkg == "." || pkg == ".." {
		return domain.Session{}, fmt.Errorf("package name %q is not allowed", pkg)
	}
	unique := make([]string, 0, len(platforms))
	seen := make(map[string]bool, len(platforms))
	for _, p := range platforms {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		unique = append(unique, p)
	}
	if len(unique) == 0 {
		return domain.Session{}, domain.ErrNoPlatforms
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Session{}, fmt.Errorf("generating session id: %w", err)
	}

	sess := domain.Session{
		ID:             id.String(),
		Package:        pkg,
		Version:        version,
		Platforms:      unique,
		PipelineName:   pipelineName,
		Status:         domain.SessionInitialized,
		StartedAt:      s.now().UTC(),
		StageLog:       []domain.StageLogEntry{},
		PlatformStatus: make(map[string]domain.PlatformOutcome, len(unique)),
		Errors:         []domain.ErrorEntry{},
	}
	for _, p := range unique {
		sess.PlatformStatus[p] = domain.PlatformOutcome{Status: domain.PlatformPending}
	}

	e := &entry{session: sess}
	e.mu.Lock()
	defer e.mu.Unlock()

	s.mu.Lock()
	s.sessions[sess.ID] = e
	s.mu.Unlock()

	s.commit(e, domain.Event{Type: domain.EventSessionCreated, Status: string(sess.Status)})
	return sess.Clone(), nil
}

// Start moves an initialized session to running.
func (s *Store) Start(id string) error {
	return s.mutate(id, func(sess *domain.Session) (domain.Event, error) {
		if sess.Status != domain.SessionInitialized {
			return domain.Event{}, fmt.Errorf("session %s is %s, not initialized", id, sess.Status)
		}
		sess.Status = domain.SessionRunning
		return domain.Event{Type: domain.EventSessionStarted, Status: string(sess.Status)}, nil
	})
}

// AppendStageLog records a stage transition.
func (s *Store) AppendStageLog(id string, stage domain.StageName, status domain.StageStatus) error {
	return s.mutate(id, func(sess *domain.Session) (domain.Event, error) {
		sess.StageLog = append(sess.StageLog, domain.StageLogEntry{Stage: stage, Status: status, Timestamp: s.now().UTC()})
		return domain.Event{Type: domain.EventStageLogged, Stage: stage, Status: string(status)}, nil
	})
}

// AppendError records an error message. Errors are kept in the order they arrive.
func (s *Store) AppendError(id, message string) error {
	return s.mutate(id, func(sess *domain.Session) (domain.Event, error) {
		sess.Errors = append(sess.Errors, domain.ErrorEntry{Error: message, Timestamp: s.now().UTC()})
		return domain.Event{Type: domain.EventErrorRecorded, Message: message}, nil
	})
}

// SetPlatformStatus overwrites the outcome of one platform. The platform must be
// part of the session and the transition must move its lifecycle forward.
// A non-empty detail becomes the platform's last error.
func (s *Store) SetPlatformStatus(id, platform string, status domain.PlatformStatus, detail string) error {
	return s.mutate(id, func(sess *domain.Session) (domain.Event, error) {
		current, ok := sess.PlatformStatus[platform]
		if !ok {
			return domain.Event{}, fmt.Errorf("%s in session %s: %w", platform, id, domain.ErrUnknownPlatform)
		}
		if !current.Status.CanTransition(status) {
			return domain.Event{}, fmt.Errorf("%s: %s -> %s: %w", platform, current.Status, status, domain.ErrInvalidTransition)
		}
		next := domain.PlatformOutcome{Status: status, LastError: current.LastError}
		if detail != "" {
			next.LastError = detail
		}
		if status.Terminal() {
			at := s.now().UTC()
			next.CompletedAt = &at
		}
		sess.PlatformStatus[platform] = next
		return domain.Event{Type: domain.EventPlatformStatus, Platform: platform, Status: string(status), Message: detail}, nil
	})
}

// Finalize aggregates platform outcomes into the session status and stamps the
// completion time. Finalizing twice returns the status set the first time.
func (s *Store) Finalize(id string) (domain.SessionStatus, error) {
	var final domain.SessionStatus
	err := s.mutate(id, func(sess *domain.Session) (domain.Event, error) {
		if sess.Finished() {
			final = sess.Status
			return domain.Event{}, nil
		}
		sess.Status = sess.Outcome()
		at := s.now().UTC()
		sess.CompletedAt = &at
		final = sess.Status
		return domain.Event{Type: domain.EventSessionFinalized, Status: string(sess.Status)}, nil
	})
	return final, err
}

// Get returns a snapshot of the session with id.
func (s *Store) Get(id string) (domain.Session, error) {
	if e := s.lookup(id); e != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.session.Clone(), nil
	}
	if s.persister != nil {
		sess, err := s.persister.Get(id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return domain.Session{}, err
		}
	}
	return domain.Session{}, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
}

// List returns every known session of pkg, newest first.
func (s *Store) List(pkg string) ([]domain.Session, error) {
	byID := make(map[string]domain.Session)
	if s.persister != nil {
		stored, err := s.persister.List(pkg)
		if err != nil {
			return nil, err
		}
		for _, sess := range stored {
			byID[sess.ID] = sess
		}
	}

	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()
	for _, e := range entries {
		e.mu.Lock()
		if e.session.Package == pkg {
			byID[e.session.ID] = e.session.Clone()
		}
		e.mu.Unlock()
	}

	list := make([]domain.Session, 0, len(byID))
	for _, sess := range byID {
		list = append(list, sess)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].StartedAt.After(list[j].StartedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list, nil
}

// Latest returns the most recent session of pkg.
func (s *Store) Latest(pkg string) (domain.Session, error) {
	list, err := s.List(pkg)
	if err != nil {
		return domain.Session{}, err
	}
	if len(list) == 0 {
		return domain.Session{}, fmt.Errorf("no sessions for package %q: %w", pkg, domain.ErrSessionNotFound)
	}
	return list[0], nil
}

// PreviousVersion returns the most recent version of pkg, other than exclude,
// that platform deployed successfully. A session counts when the platform
// completed and the deploy stage was entered, whatever the stage's overall
// outcome across other platforms. It returns "" when there is none.
func (s *Store) PreviousVersion(pkg, platform, exclude string) (string, error) {
	list, err := s.List(pkg)
	if err != nil {
		return "", err
	}
	for _, sess := range list {
		if sess.Version == exclude || sess.Version == "" {
			continue
		}
		if sess.PlatformStatus[platform].Status != domain.PlatformCompleted {
			continue
		}
		if deployed(sess) {
			return sess.Version, nil
		}
	}
	return "", nil
}

func deployed(sess domain.Session) bool {
	for _, l := range sess.StageLog {
		if l.Stage == domain.StageDeploy && l.Status == domain.StageStarted {
			return true
		}
	}
	return false
}

// Cleanup removes finished sessions of pkg that started before cutoff and
// returns how many were removed. Sessions still in progress are kept.
func (s *Store) Cleanup(pkg string, cutoff time.Time) (int, error) {
	list, err := s.List(pkg)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, sess := range list {
		if !sess.Finished() || !sess.StartedAt.Before(cutoff) {
			continue
		}
		if s.persister != nil {
			if err := s.persister.Delete(sess.Package, sess.ID); err != nil {
				return removed, fmt.Errorf("deleting session %s: %w", sess.ID, err)
			}
		}
		s.mu.Lock()
		delete(s.sessions, sess.ID)
		s.mu.Unlock()
		removed++
	}
	return removed, nil
}

func (s *Store) lookup(id string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// mutate applies fn to the session under its lock, then persists the result and
// publishes the event fn returned. A zero event type means nothing changed.
func (s *Store) mutate(id string, fn func(*domain.Session) (domain.Event, error)) error {
	e := s.lookup(id)
	if e == nil {
		return fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ev, err := fn(&e.session)
	if err != nil {
		return err
	}
	if ev.Type != "" {
		s.commit(e, ev)
	}
	return nil
}

// commit must be called with e.mu held.
func (s *Store) commit(e *entry, ev domain.Event) {
	sess := &e.session
	if s.persister != nil {
		if err := s.persister.Save(sess.Clone()); err != nil {
			s.logger.Warn("persisting session failed", "session_id", sess.ID, "error", err)
		}
	}
	if s.observer == nil {
		return
	}
	ev.SessionID = sess.ID
	ev.Package = sess.Package
	ev.Version = sess.Version
	ev.OccurredAt = s.now().UTC()
	if ev.Type == domain.EventSessionCreated || ev.Type == domain.EventSessionFinalized {
		snapshot := sess.Clone()
		ev.Session = &snapshot
	}
	s.observer.Publish(ev)
}
