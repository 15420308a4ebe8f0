package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/waabox/pakdeck/internal/adapter"
	"github.com/waabox/pakdeck/internal/adapter/command"
	"github.com/waabox/pakdeck/internal/config"
	"github.com/waabox/pakdeck/internal/domain"
	"github.com/waabox/pakdeck/internal/engine"
	"github.com/waabox/pakdeck/internal/logging"
	"github.com/waabox/pakdeck/internal/pipeline"
	"github.com/waabox/pakdeck/internal/scheduler"
	"github.com/waabox/pakdeck/internal/session"
	"github.com/waabox/pakdeck/internal/sink"
	"github.com/waabox/pakdeck/internal/sink/objectstore"
	"github.com/waabox/pakdeck/internal/sink/postgres"
	"github.com/waabox/pakdeck/internal/sink/webhook"
)

// app is the fully wired engine for one command invocation.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	engine     *engine.Engine
	dispatcher *sink.Dispatcher
	closers    []func() error
}

// openApp loads configuration and wires the engine. Sinks are only connected
// when withSinks is set; read-only commands skip them.
func openApp(ctx context.Context, flags *rootFlags, stderr io.Writer, withSinks bool) (*app, error) {
	cfg, err := config.LoadFrom(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	logger, err := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	pipelines := pipeline.NewRegistry()
	loaded, err := pipelines.LoadDir(cfg.PipelinesDirOrDefault())
	if err != nil {
		return nil, err
	}
	if len(loaded) > 0 {
		logger.Debug("loaded pipeline files", "dir", cfg.PipelinesDirOrDefault(), "pipelines", loaded)
	}

	adapters := adapter.NewRegistry()
	for name, pc := range cfg.Platforms {
		adapters.Register(name, adapter.WithLogging(command.NewAdapter(name, command.Spec(pc)), name, logger))
	}

	a := &app{cfg: cfg, logger: logger}
	storeOpts := []session.Option{
		session.WithPersister(session.NewFilePersister(cfg.DataDirOrDefault())),
		session.WithLogger(logger),
	}
	if withSinks {
		sinks, err := a.openSinks(ctx)
		if err != nil {
			_ = a.close(ctx)
			return nil, err
		}
		if len(sinks) > 0 {
			a.dispatcher = sink.NewDispatcher(logger, sinks...)
			storeOpts = append(storeOpts, session.WithObserver(a.dispatcher))
		}
	}

	base, ceiling := cfg.BackoffOrDefault()
	a.engine = engine.New(pipelines, adapters, session.NewStore(storeOpts...),
		engine.WithBackoff(scheduler.Backoff{Base: base, Max: ceiling}),
		engine.WithRollbackTimeout(cfg.Retry.RollbackTimeout),
		engine.WithLogger(logger),
	)
	return a, nil
}

func (a *app) openSinks(ctx context.Context) ([]sink.Sink, error) {
	var sinks []sink.Sink

	if pg := a.cfg.Postgres; pg.URL != "" {
		db, err := postgres.Open(ctx, postgres.Config{
			URL:          pg.URL,
			MaxOpenConns: pg.MaxOpenConns,
			MaxIdleConns: pg.MaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres sink: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("postgres sink: %w", err)
		}
		sinks = append(sinks, postgres.NewSink(db))
	}

	if osc := a.cfg.ObjectStore; osc.Endpoint != "" {
		cfg := objectstore.Config{
			Endpoint:  osc.Endpoint,
			AccessKey: osc.AccessKey,
			SecretKey: osc.SecretKey,
			Bucket:    osc.Bucket,
			Region:    osc.Region,
			UseSSL:    osc.UseSSL,
			Prefix:    osc.Prefix,
		}
		client, err := objectstore.NewMinIOClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("objectstore sink: %w", err)
		}
		if err := objectstore.EnsureBucket(ctx, client, cfg); err != nil {
			return nil, fmt.Errorf("objectstore sink: %w", err)
		}
		sinks = append(sinks, objectstore.NewSink(client, cfg.Bucket, cfg.Prefix))
	}

	for _, wc := range a.cfg.Webhooks {
		s, err := webhook.NewSink(webhook.Config{
			URL:        wc.URL,
			Secret:     wc.Secret,
			Timeout:    wc.Timeout,
			MaxRetries: wc.MaxRetries,
			RetryDelay: wc.RetryDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("webhook sink: %w", err)
		}
		var out sink.Sink = s
		if len(wc.Events) > 0 {
			types := make([]domain.EventType, len(wc.Events))
			for i, e := range wc.Events {
				types[i] = domain.EventType(e)
			}
			out = sink.Filter(s, types...)
		}
		sinks = append(sinks, out)
	}
	return sinks, nil
}

// close drains the sink queue and releases connections.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.dispatcher != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		errs = append(errs, a.dispatcher.Close(flushCtx))
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// absDir resolves the package directory handed to adapters.
func absDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving package dir: %w", err)
	}
	return abs, nil
}
