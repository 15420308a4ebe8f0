// Package runner walks a pipeline's stages for one session, applies the
// stage-failure policy and triggers rollback when the run fails.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/waabox/pakdeck/internal/domain"
	"github.com/waabox/pakdeck/internal/scheduler"
)

// Store is the subset of the session store the runner mutates.
type Store interface {
	Get(id string) (domain.Session, error)
	Start(id string) error
	AppendStageLog(id string, stage domain.StageName, status domain.StageStatus) error
	AppendError(id, message string) error
	SetPlatformStatus(id, platform string, status domain.PlatformStatus, detail string) error
	Finalize(id string) (domain.SessionStatus, error)
	PreviousVersion(pkg, platform, exclude string) (string, error)
}

// StageRunner executes a single stage.
type StageRunner interface {
	Run(ctx context.Context, req scheduler.StageRequest) scheduler.StageResult
}

// Runner drives one session through a pipeline definition.
type Runner struct {
	store    Store
	stages   StageRunner
	rollback *RollbackController
	logger   *slog.Logger
}

// New creates a Runner. rollback may be nil when no pipeline rolls back.
func New(store Store, stages StageRunner, rollback *RollbackController, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{store: store, stages: stages, rollback: rollback, logger: logger}
}

// Run executes def for the initialized session id and returns its final status.
// The error is non-nil only when the session itself cannot be read or updated;
// platform failures are reported through the session.
func (r *Runner) Run(ctx context.Context, id string, def domain.PipelineDefinition, art domain.Artifact) (domain.SessionStatus, error) {
	sess, err := r.store.Get(id)
	if err != nil {
		return "", err
	}
	if err := r.store.Start(id); err != nil {
		return "", err
	}
	logger := r.logger.With("session_id", id, "package", sess.Package, "version", sess.Version, "pipeline", def.Name)
	logger.Info("pipeline started", "platforms", sess.Platforms)

	active := sess.Platforms
	var (
		deployed []string
		failed   bool
		stopped  = -1
	)
	for i, spec := range def.Stages {
		if len(active) == 0 {
			stopped = i
			break
		}
		r.logStage(logger, id, spec.Name, domain.StageStarted)
		res := r.stages.Run(ctx, scheduler.StageRequest{
			SessionID:      id,
			Artifact:       art,
			Stage:          spec,
			Platforms:      active,
			AbortOnFailure: !def.ContinueOnPlatformFailure,
			FinalStage:     i == len(def.Stages)-1,
		})
		if spec.Name == domain.StageDeploy {
			deployed = append(deployed, res.Completed...)
		}
		if res.OK() {
			r.logStage(logger, id, spec.Name, domain.StageCompleted)
			continue
		}

		failed = true
		r.logStage(logger, id, spec.Name, domain.StageFailed)
		logger.Warn("stage failed", "stage", string(spec.Name), "failed", res.Failed(), "skipped", res.Skipped())
		if !def.ContinueOnPlatformFailure {
			stopped = i + 1
			r.abortRemaining(logger, id, spec.Name)
			break
		}
		active = res.Succeeded()
	}
	if stopped >= 0 {
		for _, spec := range def.Stages[stopped:] {
			r.logStage(logger, id, spec.Name, domain.StageAborted)
		}
	}

	if failed && def.RollbackOnFailure && len(deployed) > 0 && r.rollback != nil {
		r.logStage(logger, id, domain.StageRollback, domain.StageStarted)
		if err := r.rollback.Rollback(ctx, id, art, deployed); err != nil {
			r.logStage(logger, id, domain.StageRollback, domain.StageFailed)
		} else {
			r.logStage(logger, id, domain.StageRollback, domain.StageCompleted)
		}
	}

	status, err := r.store.Finalize(id)
	if err != nil {
		return "", err
	}
	logger.Info("pipeline finished", "status", string(status))
	return status, nil
}

// abortRemaining fails every platform that has not reached an outcome after
// the run stopped at stage. Those platforms may have passed stage themselves.
func (r *Runner) abortRemaining(logger *slog.Logger, id string, stage domain.StageName) {
	sess, err := r.store.Get(id)
	if err != nil {
		logger.Warn("reading session failed", "error", err)
		return
	}
	for _, p := range sess.Platforms {
		if sess.PlatformStatus[p].Status.Terminal() {
			continue
		}
		taskErr := &domain.TaskError{
			Platform: p,
			Stage:    stage,
			Kind:     domain.ErrStageAborted,
			Err:      fmt.Errorf("not continued after %s failed on another platform", stage),
		}
		if err := r.store.AppendError(id, domain.Describe(taskErr)); err != nil {
			logger.Warn("recording error failed", "platform", p, "error", err)
		}
		if err := r.store.SetPlatformStatus(id, p, domain.PlatformFailed, taskErr.Error()); err != nil {
			logger.Warn("recording platform status failed", "platform", p, "error", err)
		}
	}
}

func (r *Runner) logStage(logger *slog.Logger, id string, stage domain.StageName, status domain.StageStatus) {
	if err := r.store.AppendStageLog(id, stage, status); err != nil {
		logger.Warn("recording stage log failed", "stage", string(stage), "error", err)
	}
}
