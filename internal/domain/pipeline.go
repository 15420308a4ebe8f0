package domain

import (
	"slices"
	"time"
)

// StageName identifies one phase of a pipeline.
type StageName string

const (
	StageValidation   StageName = "validation"
	StagePreDeploy    StageName = "pre_deploy"
	StageDeploy       StageName = "deploy"
	StagePostDeploy   StageName = "post_deploy"
	StageVerification StageName = "verification"
	StageBuild        StageName = "build"
	StageTest         StageName = "test"
	StageRollback     StageName = "rollback"
)

// ExecutionMode controls how a stage fans out across platforms.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// StageSpec configures one stage of a pipeline.
type StageSpec struct {
	Name           StageName
	Mode           ExecutionMode
	MaxConcurrency int
	Timeout        time.Duration // per platform task
	Retries        int           // additional attempts after a failed one
}

// Concurrency returns how many platform tasks may run at once for the stage.
func (s StageSpec) Concurrency() int {
	if s.Mode != ModeParallel || s.MaxConcurrency < 1 {
		return 1
	}
	return s.MaxConcurrency
}

// PipelineDefinition is a named, ordered list of stages plus its failure policy.
type PipelineDefinition struct {
	Name                      string
	Description               string
	Stages                    []StageSpec
	RollbackOnFailure         bool
	ContinueOnPlatformFailure bool
}

// Clone returns a copy that shares no memory with p.
func (p PipelineDefinition) Clone() PipelineDefinition {
	p.Stages = slices.Clone(p.Stages)
	return p
}
