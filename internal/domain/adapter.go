package domain

import "context"

// Artifact identifies the package version being published and where its sources live.
type Artifact struct {
	Name    string
	Version string
	Dir     string
}

// Adapter is the port that every distribution platform integration implements.
// The engine knows nothing about npm, PyPI, container registries or any specific
// platform; it only interprets success or failure plus an optional diagnostic.
// Implementations must be safe for concurrent use.
type Adapter interface {
	Validate(ctx context.Context, a Artifact) error
	Build(ctx context.Context, a Artifact) error
	Test(ctx context.Context, a Artifact) error
	Deploy(ctx context.Context, a Artifact) error
	Verify(ctx context.Context, a Artifact) error
	Rollback(ctx context.Context, a Artifact, previousVersion string) error
}

// Hooks is implemented by adapters that run custom commands for hook stages
// such as pre_deploy and post_deploy.
type Hooks interface {
	Hook(ctx context.Context, stage StageName, a Artifact) error
}
