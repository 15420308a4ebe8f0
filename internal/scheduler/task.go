package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/waabox/pakdeck/internal/domain"
)

// execute runs one platform task with the stage's timeout and retry budget.
// It returns the number of attempts made and, on terminal failure, the task error.
func (s *Scheduler) execute(ctx context.Context, run *stageRun, i int) (int, *domain.TaskError) {
	spec := run.req.Stage
	platform := run.req.Platforms[i]
	logger := run.logger.With("platform", platform)

	budget := 1
	if retryable(spec.Name) {
		budget += spec.Retries
	}

	var (
		lastErr  error
		timedOut bool
		attempts int
		waiting  bool
	)
	op := func() error {
		waiting = false
		attempts++
		timedOut, lastErr = attempt(ctx, spec, run.adapters[i], run.req.Artifact)
		if lastErr == nil {
			return nil
		}
		logger.Debug("attempt failed", "attempt", attempts, "timed_out", timedOut, "error", lastErr)
		if ctx.Err() != nil {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}
	notify := func(_ error, delay time.Duration) {
		waiting = true
		logger.Info("retrying platform task", "attempt", attempts+1, "delay", delay)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(s.backoff.policy(budget-1), ctx), notify)
	if err == nil {
		logger.Debug("platform task passed", "attempts", attempts)
		return attempts, nil
	}
	if waiting {
		// cancelled between attempts
		lastErr, timedOut = err, false
	}

	kind := domain.ErrTaskFailed
	switch {
	case spec.Name == domain.StageValidation:
		kind = domain.ErrValidationFailed
	case timedOut:
		kind = domain.ErrTaskTimeout
	}
	return attempts, &domain.TaskError{Platform: platform, Stage: spec.Name, Attempts: attempts, Kind: kind, Err: lastErr}
}

// attempt invokes the capability once under a hard deadline. An adapter that
// ignores its context is abandoned when the deadline passes.
func attempt(ctx context.Context, spec domain.StageSpec, a domain.Adapter, art domain.Artifact) (bool, error) {
	if spec.Timeout <= 0 {
		return false, invoke(ctx, spec.Name, a, art)
	}
	actx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- invoke(actx, spec.Name, a, art)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return true, fmt.Errorf("no result within %s: %w", spec.Timeout, err)
		}
		return false, err
	case <-actx.Done():
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("no result within %s", spec.Timeout)
	}
}
