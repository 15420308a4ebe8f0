// Package postgres records session events in PostgreSQL through the pgx
// database/sql driver. Both tables are insert-only.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/waabox/pakdeck/internal/domain"
)

// Config holds connection settings.
type Config struct {
	URL             string
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Validate checks the settings, filling defaults for zero values.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("postgres url is required")
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
	if c.MaxOpenConns < 1 {
		c.MaxOpenConns = 4
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("postgres max_idle_conns must be between 0 and max_open_conns")
	}
	if c.ConnMaxLifetime < 0 {
		return errors.New("postgres conn_max_lifetime must be >= 0")
	}
	return nil
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS deploy_events (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT NOT NULL,
	package     TEXT NOT NULL,
	version     TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	platform    TEXT,
	stage       TEXT,
	status      TEXT,
	message     TEXT,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS deploy_events_session_idx ON deploy_events (session_id);
CREATE TABLE IF NOT EXISTS deploy_sessions (
	session_id    TEXT PRIMARY KEY,
	package       TEXT NOT NULL,
	version       TEXT NOT NULL,
	pipeline_name TEXT NOT NULL,
	status        TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ,
	document      JSONB NOT NULL
);`

const insertEvent = `INSERT INTO deploy_events
	(session_id, package, version, event_type, platform, stage, status, message, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const insertSession = `INSERT INTO deploy_sessions
	(session_id, package, version, pipeline_name, status, started_at, completed_at, document)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (session_id) DO NOTHING`

// EnsureSchema creates the tables the sink writes to.
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Sink writes every event to deploy_events and each finalized session to deploy_sessions.
type Sink struct {
	db      Execer
	timeout time.Duration
}

// NewSink creates a sink writing through db.
func NewSink(db Execer) *Sink {
	return &Sink{db: db, timeout: 5 * time.Second}
}

// Name implements sink.Sink.
func (s *Sink) Name() string { return "postgres" }

// Emit implements sink.Sink.
func (s *Sink) Emit(ctx context.Context, e domain.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, insertEvent,
		e.SessionID, e.Package, e.Version, string(e.Type),
		nullString(e.Platform), nullString(string(e.Stage)), nullString(e.Status), nullString(e.Message),
		e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if e.Type != domain.EventSessionFinalized || e.Session == nil {
		return nil
	}

	doc, err := json.Marshal(e.Session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	var completedAt sql.NullTime
	if e.Session.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *e.Session.CompletedAt, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, insertSession,
		e.Session.ID, e.Session.Package, e.Session.Version, e.Session.PipelineName,
		string(e.Session.Status), e.Session.StartedAt, completedAt, doc,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
