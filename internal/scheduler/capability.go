package scheduler

import (
	"context"

	"github.com/waabox/pakdeck/internal/domain"
)

// invoke calls the adapter capability that serves stage.
// Hook stages use domain.Hooks when the adapter has it. Without hooks,
// pre_deploy builds the artifact and any other stage is a no-op.
func invoke(ctx context.Context, stage domain.StageName, a domain.Adapter, art domain.Artifact) error {
	switch stage {
	case domain.StageValidation:
		return a.Validate(ctx, art)
	case domain.StageDeploy:
		return a.Deploy(ctx, art)
	case domain.StageVerification:
		return a.Verify(ctx, art)
	case domain.StageBuild:
		return a.Build(ctx, art)
	case domain.StageTest:
		return a.Test(ctx, art)
	}
	if h, ok := a.(domain.Hooks); ok {
		return h.Hook(ctx, stage, art)
	}
	if stage == domain.StagePreDeploy {
		return a.Build(ctx, art)
	}
	return nil
}

// retryable reports whether failures of stage may be retried.
func retryable(stage domain.StageName) bool {
	return stage != domain.StageValidation
}
