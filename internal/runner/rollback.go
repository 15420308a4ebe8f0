package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/waabox/pakdeck/internal/domain"
)

// DefaultRollbackTimeout bounds each platform rollback call.
const DefaultRollbackTimeout = 10 * time.Minute

// Resolver looks up the adapter for a platform.
type Resolver interface {
	Resolve(platform string) (domain.Adapter, error)
}

// RollbackController reverts platforms to the version they ran before.
// Rollback failures are recorded on the session and never trigger further rollback.
type RollbackController struct {
	store    Store
	resolver Resolver
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRollbackController creates a controller. A zero timeout uses DefaultRollbackTimeout.
func NewRollbackController(store Store, resolver Resolver, timeout time.Duration, logger *slog.Logger) *RollbackController {
	if timeout <= 0 {
		timeout = DefaultRollbackTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RollbackController{store: store, resolver: resolver, timeout: timeout, logger: logger}
}

// Rollback reverts the platforms of a failed run in reverse completion order.
// completed lists the platforms that passed the deploy stage, in the order they finished.
// Platforms that roll back successfully are marked rolled_back.
// Rollback runs even when ctx is already canceled.
func (c *RollbackController) Rollback(ctx context.Context, id string, art domain.Artifact, completed []string) error {
	ctx = context.WithoutCancel(ctx)
	logger := c.logger.With("session_id", id)

	var errs []error
	for i := len(completed) - 1; i >= 0; i-- {
		platform := completed[i]
		if err := c.revert(ctx, logger, id, platform, art); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := c.store.SetPlatformStatus(id, platform, domain.PlatformRolledBack, ""); err != nil {
			logger.Warn("recording platform status failed", "platform", platform, "error", err)
		}
	}
	return errors.Join(errs...)
}

// Restore runs a standalone rollback of art on each platform, in the given
// order, for a session created solely for that purpose. Each platform moves
// to completed when its rollback succeeds and to failed otherwise.
func (c *RollbackController) Restore(ctx context.Context, id string, art domain.Artifact, platforms []string) error {
	logger := c.logger.With("session_id", id)

	var errs []error
	for _, platform := range platforms {
		if err := c.store.SetPlatformStatus(id, platform, domain.PlatformRunning, ""); err != nil {
			logger.Warn("recording platform status failed", "platform", platform, "error", err)
		}
		status, detail := domain.PlatformCompleted, ""
		if err := c.revert(ctx, logger, id, platform, art); err != nil {
			errs = append(errs, err)
			status, detail = domain.PlatformFailed, err.Error()
		}
		if err := c.store.SetPlatformStatus(id, platform, status, detail); err != nil {
			logger.Warn("recording platform status failed", "platform", platform, "error", err)
		}
	}
	return errors.Join(errs...)
}

// revert invokes one platform's rollback capability and records a failure on the session.
func (c *RollbackController) revert(ctx context.Context, logger *slog.Logger, id, platform string, art domain.Artifact) error {
	logger = logger.With("platform", platform)

	taskErr := &domain.TaskError{Platform: platform, Stage: domain.StageRollback, Attempts: 1, Kind: domain.ErrRollbackFailed}
	a, err := c.resolver.Resolve(platform)
	if err != nil {
		taskErr.Kind, taskErr.Attempts, taskErr.Err = domain.ErrAdapterNotFound, 0, err
		return c.record(logger, id, taskErr)
	}

	previous, err := c.store.PreviousVersion(art.Name, platform, art.Version)
	if err != nil {
		logger.Warn("looking up previous version failed", "error", err)
	}
	logger.Info("rolling back", "version", art.Version, "previous_version", previous)

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := a.Rollback(rctx, art, previous); err != nil {
		taskErr.Err = err
		return c.record(logger, id, taskErr)
	}
	return nil
}

func (c *RollbackController) record(logger *slog.Logger, id string, taskErr *domain.TaskError) error {
	logger.Warn("rollback failed", "kind", domain.KindOf(taskErr), "error", taskErr.Err)
	if err := c.store.AppendError(id, domain.Describe(taskErr)); err != nil {
		logger.Warn("recording error failed", "error", err)
	}
	return taskErr
}
