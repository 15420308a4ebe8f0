// Package engine exposes the deployment operations consumed by the CLI, the
// HTTP API and the viewer: deploy, build, test, rollback, status and logs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/waabox/pakdeck/internal/domain"
	"github.com/waabox/pakdeck/internal/pipeline"
	"github.com/waabox/pakdeck/internal/runner"
	"github.com/waabox/pakdeck/internal/scheduler"
	"github.com/waabox/pakdeck/internal/session"
)

// DefaultPipeline is used when a request names none.
const DefaultPipeline = "standard"

// ErrInvalidRequest is returned for requests missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

// Pipelines provides pipeline definitions.
type Pipelines interface {
	Load(name string) (domain.PipelineDefinition, error)
	Definitions() []domain.PipelineDefinition
}

// Adapters provides platform adapters.
type Adapters interface {
	Resolve(platform string) (domain.Adapter, error)
	Platforms() []string
}

// Request identifies what to run.
type Request struct {
	Package   string   `json:"package"`
	Version   string   `json:"version"`
	Dir       string   `json:"dir"`
	Platforms []string `json:"platforms"`
	Pipeline  string   `json:"pipeline,omitempty"`
}

func (r Request) validate() error {
	switch {
	case r.Package == "":
		return fmt.Errorf("%w: package is required", ErrInvalidRequest)
	case r.Package == "." || r.Package == "..":
		return fmt.Errorf("%w: package name %q is not allowed", ErrInvalidRequest, r.Package)
	case r.Version == "":
		return fmt.Errorf("%w: version is required", ErrInvalidRequest)
	case len(r.Platforms) == 0:
		return fmt.Errorf("%w: %w", ErrInvalidRequest, domain.ErrNoPlatforms)
	}
	return nil
}

func (r Request) artifact() domain.Artifact {
	return domain.Artifact{Name: r.Package, Version: r.Version, Dir: r.Dir}
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	backoff         scheduler.Backoff
	rollbackTimeout time.Duration
	logger          *slog.Logger
}

// WithBackoff sets the retry backoff for platform tasks.
func WithBackoff(b scheduler.Backoff) Option {
	return func(o *options) { o.backoff = b }
}

// WithRollbackTimeout bounds each platform rollback call.
func WithRollbackTimeout(d time.Duration) Option {
	return func(o *options) { o.rollbackTimeout = d }
}

// WithLogger sets the logger shared by the engine components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Engine wires the registries, the session store, the scheduler and the runner.
type Engine struct {
	pipelines Pipelines
	adapters  Adapters
	store     *session.Store
	runner    *runner.Runner
	rollback  *runner.RollbackController
	logger    *slog.Logger
}

// New creates an Engine.
func New(pipelines Pipelines, adapters Adapters, store *session.Store, opts ...Option) *Engine {
	o := options{backoff: scheduler.DefaultBackoff}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	sched := scheduler.New(adapters, store, scheduler.WithBackoff(o.backoff), scheduler.WithLogger(o.logger))
	rb := runner.NewRollbackController(store, adapters, o.rollbackTimeout, o.logger)
	return &Engine{
		pipelines: pipelines,
		adapters:  adapters,
		store:     store,
		runner:    runner.New(store, sched, rb, o.logger),
		rollback:  rb,
		logger:    o.logger,
	}
}

// Deploy runs the named pipeline. An unknown pipeline fails before any session
// is created. When the run fails the finalized session is returned together with
// an error wrapping domain.ErrSessionFailed.
func (e *Engine) Deploy(ctx context.Context, req Request) (domain.Session, error) {
	if err := req.validate(); err != nil {
		return domain.Session{}, err
	}
	name := req.Pipeline
	if name == "" {
		name = DefaultPipeline
	}
	def, err := e.pipelines.Load(name)
	if err != nil {
		return domain.Session{}, err
	}
	return e.execute(ctx, req, def)
}

// Build runs the build capability on every platform.
func (e *Engine) Build(ctx context.Context, req Request) (domain.Session, error) {
	if err := req.validate(); err != nil {
		return domain.Session{}, err
	}
	return e.execute(ctx, req, pipeline.SingleStage(domain.StageBuild))
}

// Test runs the test capability on every platform.
func (e *Engine) Test(ctx context.Context, req Request) (domain.Session, error) {
	if err := req.validate(); err != nil {
		return domain.Session{}, err
	}
	return e.execute(ctx, req, pipeline.SingleStage(domain.StageTest))
}

func (e *Engine) execute(ctx context.Context, req Request, def domain.PipelineDefinition) (domain.Session, error) {
	sess, err := e.store.Create(req.Package, req.Version, req.Platforms, def.Name)
	if err != nil {
		return domain.Session{}, err
	}
	if _, err := e.runner.Run(ctx, sess.ID, def, req.artifact()); err != nil {
		return domain.Session{}, err
	}
	return e.result(sess.ID)
}

// Rollback reverts version of req.Package on each platform to the version the
// platform deployed before it, recording the run as a "rollback" session.
func (e *Engine) Rollback(ctx context.Context, req Request) (domain.Session, error) {
	if err := req.validate(); err != nil {
		return domain.Session{}, err
	}
	sess, err := e.store.Create(req.Package, req.Version, req.Platforms, string(domain.StageRollback))
	if err != nil {
		return domain.Session{}, err
	}
	if err := e.store.Start(sess.ID); err != nil {
		return domain.Session{}, err
	}
	if err := e.store.AppendStageLog(sess.ID, domain.StageRollback, domain.StageStarted); err != nil {
		return domain.Session{}, err
	}
	stageStatus := domain.StageCompleted
	if err := e.rollback.Restore(ctx, sess.ID, req.artifact(), sess.Platforms); err != nil {
		stageStatus = domain.StageFailed
	}
	if err := e.store.AppendStageLog(sess.ID, domain.StageRollback, stageStatus); err != nil {
		return domain.Session{}, err
	}
	if _, err := e.store.Finalize(sess.ID); err != nil {
		return domain.Session{}, err
	}
	return e.result(sess.ID)
}

func (e *Engine) result(id string) (domain.Session, error) {
	sess, err := e.store.Get(id)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.Status == domain.SessionFailed {
		return sess, fmt.Errorf("%s %s: %d error(s): %w", sess.Package, sess.Version, len(sess.Errors), domain.ErrSessionFailed)
	}
	return sess, nil
}

// Status returns the latest session of pkg.
func (e *Engine) Status(pkg string) (domain.Session, error) {
	return e.store.Latest(pkg)
}

// Session returns the session with id.
func (e *Engine) Session(id string) (domain.Session, error) {
	return e.store.Get(id)
}

// Sessions returns every session of pkg, newest first.
func (e *Engine) Sessions(pkg string) ([]domain.Session, error) {
	return e.store.List(pkg)
}

// Cleanup removes finished sessions of pkg older than olderThan.
func (e *Engine) Cleanup(pkg string, olderThan time.Duration) (int, error) {
	n, err := e.store.Cleanup(pkg, time.Now().Add(-olderThan))
	if err == nil && n > 0 {
		e.logger.Info("sessions removed", "package", pkg, "count", n)
	}
	return n, err
}

// Pipelines returns the available pipeline definitions.
func (e *Engine) Pipelines() []domain.PipelineDefinition {
	return e.pipelines.Definitions()
}

// Platforms returns the platforms with a registered adapter.
func (e *Engine) Platforms() []string {
	return e.adapters.Platforms()
}

// LogKind distinguishes stage transitions from errors in a log.
type LogKind string

const (
	LogStage LogKind = "stage"
	LogError LogKind = "error"
)

// LogEntry is one line of a package's deployment log.
type LogEntry struct {
	SessionID string             `json:"sessionId"`
	Version   string             `json:"version"`
	Timestamp time.Time          `json:"timestamp"`
	Kind      LogKind            `json:"kind"`
	Stage     domain.StageName   `json:"stage,omitempty"`
	Status    domain.StageStatus `json:"status,omitempty"`
	Message   string             `json:"message,omitempty"`
}

// Logs returns the stage transitions and errors of every session of pkg in
// chronological order.
func (e *Engine) Logs(pkg string) ([]LogEntry, error) {
	sessions, err := e.store.List(pkg)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no sessions for package %q: %w", pkg, domain.ErrSessionNotFound)
	}
	var entries []LogEntry
	for i := len(sessions) - 1; i >= 0; i-- {
		entries = append(entries, SessionLog(sessions[i])...)
	}
	return entries, nil
}

// SessionLog merges the stage log and errors of one session by timestamp.
// Entries with equal timestamps keep stage entries before errors.
func SessionLog(s domain.Session) []LogEntry {
	entries := make([]LogEntry, 0, len(s.StageLog)+len(s.Errors))
	for _, l := range s.StageLog {
		entries = append(entries, LogEntry{SessionID: s.ID, Version: s.Version, Timestamp: l.Timestamp, Kind: LogStage, Stage: l.Stage, Status: l.Status})
	}
	for _, er := range s.Errors {
		entries = append(entries, LogEntry{SessionID: s.ID, Version: s.Version, Timestamp: er.Timestamp, Kind: LogError, Message: er.Error})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries
}
