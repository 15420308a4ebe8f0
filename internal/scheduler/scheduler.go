// Package scheduler runs one pipeline stage across a set of platforms, either
// one at a time or through a bounded pool, applying the stage's timeout and
// retry policy to every platform task.
package scheduler

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/waabox/pakdeck/internal/domain"
)

// Recorder receives per-platform outcomes as soon as each task resolves.
type Recorder interface {
	SetPlatformStatus(id, platform string, status domain.PlatformStatus, detail string) error
	AppendError(id, message string) error
}

// Resolver looks up the adapter for a platform.
type Resolver interface {
	Resolve(platform string) (domain.Adapter, error)
}

// StageRequest describes one stage execution.
type StageRequest struct {
	SessionID string
	Artifact  domain.Artifact
	Stage     domain.StageSpec
	// Platforms in request order.
	Platforms []string
	// AbortOnFailure stops admitting tasks once any platform fails terminally.
	AbortOnFailure bool
	// FinalStage marks platforms that pass this stage as completed.
	FinalStage bool
}

// PlatformResult is the resolved outcome of one platform in a stage.
type PlatformResult struct {
	Platform   string
	Err        error
	Attempts   int
	Skipped    bool
	FinishedAt time.Time
}

// StageResult is returned once every admitted task has resolved.
type StageResult struct {
	Stage domain.StageName
	// Results in request order.
	Results []PlatformResult
	// Completed lists platforms that passed the stage, in completion order.
	Completed []string
	// Aborted is set when at least one platform was never admitted.
	Aborted bool
}

// Failed returns the platforms that ran and failed terminally.
func (r StageResult) Failed() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err != nil && !res.Skipped {
			out = append(out, res.Platform)
		}
	}
	return out
}

// Skipped returns the platforms that were never admitted.
func (r StageResult) Skipped() []string {
	var out []string
	for _, res := range r.Results {
		if res.Skipped {
			out = append(out, res.Platform)
		}
	}
	return out
}

// Succeeded returns the platforms that passed, in request order.
func (r StageResult) Succeeded() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err == nil && !res.Skipped {
			out = append(out, res.Platform)
		}
	}
	return out
}

// OK reports whether every platform passed.
func (r StageResult) OK() bool {
	for _, res := range r.Results {
		if res.Err != nil || res.Skipped {
			return false
		}
	}
	return true
}

// Backoff is an exponential delay between retry attempts.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff starts at 500ms and doubles up to 10s.
var DefaultBackoff = Backoff{Base: 500 * time.Millisecond, Max: 10 * time.Second}

// Delay returns the wait before retry number n (1-based).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	p := b.policy(n)
	var d time.Duration
	for range n {
		d = p.NextBackOff()
	}
	return d
}

// policy returns the retry schedule for a task allowed the given number of retries.
func (b Backoff) policy(retries int) backoff.BackOff {
	if b.Base <= 0 {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(retries))
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.Base
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = b.Max
	if b.Max <= 0 {
		exp.MaxInterval = time.Duration(math.MaxInt64)
	}
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(retries))
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithBackoff sets the retry backoff curve.
func WithBackoff(b Backoff) Option {
	return func(s *Scheduler) { s.backoff = b }
}

// WithLogger sets the logger for task progress.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scheduler executes stages. It holds no per-stage state and may run stages of
// different sessions concurrently.
type Scheduler struct {
	resolver Resolver
	recorder Recorder
	backoff  Backoff
	logger   *slog.Logger
}

// New creates a Scheduler that resolves adapters through resolver and reports
// outcomes to recorder.
func New(resolver Resolver, recorder Recorder, opts ...Option) *Scheduler {
	s := &Scheduler{
		resolver: resolver,
		recorder: recorder,
		backoff:  DefaultBackoff,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// stageRun is the shared state of one Run call.
type stageRun struct {
	req      StageRequest
	logger   *slog.Logger
	adapters []domain.Adapter
	results  []PlatformResult
	abort    atomic.Bool

	mu        sync.Mutex
	completed []string
}

// Run executes req.Stage for every platform and returns after all admitted
// tasks have resolved. Outcomes are recorded as each task finishes.
func (s *Scheduler) Run(ctx context.Context, req StageRequest) StageResult {
	run := &stageRun{
		req:      req,
		logger:   s.logger.With("session_id", req.SessionID, "stage", string(req.Stage.Name)),
		adapters: make([]domain.Adapter, len(req.Platforms)),
		results:  make([]PlatformResult, len(req.Platforms)),
	}

	pending := make([]int, 0, len(req.Platforms))
	for i, platform := range req.Platforms {
		run.results[i].Platform = platform
		a, err := s.resolver.Resolve(platform)
		if err != nil {
			s.fail(run, i, &domain.TaskError{Platform: platform, Stage: req.Stage.Name, Kind: domain.ErrAdapterNotFound, Err: err})
			continue
		}
		run.adapters[i] = a
		pending = append(pending, i)
	}

	if req.Stage.Concurrency() <= 1 {
		for _, i := range pending {
			s.admit(ctx, run, i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(req.Stage.Concurrency())
		for _, i := range pending {
			if run.abort.Load() {
				s.skip(run, i)
				continue
			}
			g.Go(func() error {
				s.admit(ctx, run, i)
				return nil
			})
		}
		_ = g.Wait()
	}

	result := StageResult{Stage: req.Stage.Name, Results: run.results, Completed: run.completed}
	for _, r := range run.results {
		if r.Skipped {
			result.Aborted = true
		}
	}
	return result
}

// admit runs the task for platform i unless the stage was aborted while it
// waited for a slot.
func (s *Scheduler) admit(ctx context.Context, run *stageRun, i int) {
	if run.abort.Load() {
		s.skip(run, i)
		return
	}
	platform := run.req.Platforms[i]
	if err := s.recorder.SetPlatformStatus(run.req.SessionID, platform, domain.PlatformRunning, ""); err != nil {
		run.logger.Warn("recording platform status failed", "platform", platform, "error", err)
	}

	attempts, err := s.execute(ctx, run, i)
	run.results[i].Attempts = attempts
	if err != nil {
		s.fail(run, i, err)
		return
	}

	run.results[i].FinishedAt = time.Now()
	if run.req.FinalStage {
		if err := s.recorder.SetPlatformStatus(run.req.SessionID, platform, domain.PlatformCompleted, ""); err != nil {
			run.logger.Warn("recording platform status failed", "platform", platform, "error", err)
		}
	}
	run.mu.Lock()
	run.completed = append(run.completed, platform)
	run.mu.Unlock()
}

// fail records the terminal failure of platform i. The abort flag is raised
// before the task's slot is released so no queued platform slips through.
func (s *Scheduler) fail(run *stageRun, i int, taskErr *domain.TaskError) {
	platform := run.req.Platforms[i]
	run.results[i].Err = taskErr
	run.results[i].FinishedAt = time.Now()
	if run.req.AbortOnFailure {
		run.abort.Store(true)
	}

	run.logger.Warn("platform task failed", "platform", platform, "kind", domain.KindOf(taskErr), "attempts", taskErr.Attempts, "error", taskErr.Err)
	if err := s.recorder.AppendError(run.req.SessionID, domain.Describe(taskErr)); err != nil {
		run.logger.Warn("recording error failed", "platform", platform, "error", err)
	}
	if err := s.recorder.SetPlatformStatus(run.req.SessionID, platform, domain.PlatformFailed, taskErr.Error()); err != nil {
		run.logger.Warn("recording platform status failed", "platform", platform, "error", err)
	}
}

func (s *Scheduler) skip(run *stageRun, i int) {
	run.results[i].Skipped = true
	run.results[i].Err = &domain.TaskError{
		Platform: run.req.Platforms[i],
		Stage:    run.req.Stage.Name,
		Kind:     domain.ErrStageAborted,
	}
	run.logger.Info("platform not admitted after stage failure", "platform", run.req.Platforms[i])
}
