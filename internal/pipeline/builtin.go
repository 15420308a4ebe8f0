package pipeline

import (
	"time"

	"github.com/waabox/pakdeck/internal/domain"
)

// DefaultTimeout applies to stages that do not declare one.
const DefaultTimeout = 5 * time.Minute

// DefaultMaxConcurrent applies to parallel stages that do not declare a bound.
const DefaultMaxConcurrent = 4

// Builtin returns the pipelines available without any pipeline files.
func Builtin() []domain.PipelineDefinition {
	return []domain.PipelineDefinition{
		{
			Name:        "standard",
			Description: "Validate, build, deploy and verify one platform at a time; roll back on failure",
			Stages: []domain.StageSpec{
				seq(domain.StageValidation, time.Minute, 0),
				seq(domain.StagePreDeploy, 10*time.Minute, 0),
				seq(domain.StageDeploy, 10*time.Minute, 2),
				seq(domain.StagePostDeploy, 5*time.Minute, 0),
				seq(domain.StageVerification, 2*time.Minute, 1),
			},
			RollbackOnFailure: true,
		},
		{
			Name:        "parallel",
			Description: "Run every stage across platforms concurrently; keep going past platform failures",
			Stages: []domain.StageSpec{
				par(domain.StageValidation, time.Minute, 0),
				par(domain.StagePreDeploy, 10*time.Minute, 0),
				par(domain.StageDeploy, 10*time.Minute, 2),
				par(domain.StagePostDeploy, 5*time.Minute, 0),
				par(domain.StageVerification, 2*time.Minute, 1),
			},
			ContinueOnPlatformFailure: true,
		},
		{
			Name:        "quick",
			Description: "Validate and deploy only",
			Stages: []domain.StageSpec{
				seq(domain.StageValidation, time.Minute, 0),
				seq(domain.StageDeploy, 10*time.Minute, 0),
			},
		},
	}
}

// SingleStage returns an ad-hoc pipeline running one stage sequentially, used
// for build and test invocations.
func SingleStage(stage domain.StageName) domain.PipelineDefinition {
	return domain.PipelineDefinition{
		Name:   string(stage),
		Stages: []domain.StageSpec{seq(stage, 30*time.Minute, 0)},
	}
}

func seq(name domain.StageName, timeout time.Duration, retries int) domain.StageSpec {
	return domain.StageSpec{Name: name, Mode: domain.ModeSequential, MaxConcurrency: 1, Timeout: timeout, Retries: retries}
}

func par(name domain.StageName, timeout time.Duration, retries int) domain.StageSpec {
	return domain.StageSpec{Name: name, Mode: domain.ModeParallel, MaxConcurrency: DefaultMaxConcurrent, Timeout: timeout, Retries: retries}
}
