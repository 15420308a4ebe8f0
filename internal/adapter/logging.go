package adapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/waabox/pakdeck/internal/domain"
)

// LoggingAdapter wraps an Adapter and logs every capability call with its
// duration and outcome.
type LoggingAdapter struct {
	inner    domain.Adapter
	platform string
	logger   *slog.Logger
}

// Ensure LoggingAdapter implements Adapter.
var _ domain.Adapter = (*LoggingAdapter)(nil)

type hookedLoggingAdapter struct {
	*LoggingAdapter
	hooks domain.Hooks
}

// WithLogging decorates inner with call logging. The returned adapter also
// implements domain.Hooks when inner does, so stage dispatch is unchanged.
func WithLogging(inner domain.Adapter, platform string, logger *slog.Logger) domain.Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	la := &LoggingAdapter{
		inner:    inner,
		platform: platform,
		logger:   logger.With("platform", platform),
	}
	if h, ok := inner.(domain.Hooks); ok {
		return &hookedLoggingAdapter{LoggingAdapter: la, hooks: h}
	}
	return la
}

func (la *LoggingAdapter) observe(ctx context.Context, op string, a domain.Artifact, call func() error) error {
	start := time.Now()
	la.logger.DebugContext(ctx, "adapter call started", "op", op, "package", a.Name, "version", a.Version)
	err := call()
	elapsed := time.Since(start)
	if err != nil {
		la.logger.WarnContext(ctx, "adapter call failed", "op", op, "package", a.Name, "version", a.Version,
			"duration", elapsed, "error", err)
		return err
	}
	la.logger.InfoContext(ctx, "adapter call succeeded", "op", op, "package", a.Name, "version", a.Version,
		"duration", elapsed)
	return nil
}

func (la *LoggingAdapter) Validate(ctx context.Context, a domain.Artifact) error {
	return la.observe(ctx, "validate", a, func() error { return la.inner.Validate(ctx, a) })
}

func (la *LoggingAdapter) Build(ctx context.Context, a domain.Artifact) error {
	return la.observe(ctx, "build", a, func() error { return la.inner.Build(ctx, a) })
}

func (la *LoggingAdapter) Test(ctx context.Context, a domain.Artifact) error {
	return la.observe(ctx, "test", a, func() error { return la.inner.Test(ctx, a) })
}

func (la *LoggingAdapter) Deploy(ctx context.Context, a domain.Artifact) error {
	return la.observe(ctx, "deploy", a, func() error { return la.inner.Deploy(ctx, a) })
}

func (la *LoggingAdapter) Verify(ctx context.Context, a domain.Artifact) error {
	return la.observe(ctx, "verify", a, func() error { return la.inner.Verify(ctx, a) })
}

func (la *LoggingAdapter) Rollback(ctx context.Context, a domain.Artifact, previousVersion string) error {
	return la.observe(ctx, "rollback", a, func() error { return la.inner.Rollback(ctx, a, previousVersion) })
}

func (h *hookedLoggingAdapter) Hook(ctx context.Context, stage domain.StageName, a domain.Artifact) error {
	return h.observe(ctx, "hook:"+string(stage), a, func() error { return h.hooks.Hook(ctx, stage, a) })
}
