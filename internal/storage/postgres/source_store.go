// Package postgres archives crawl sessions and their sources in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/data-hunter/internal/hunter"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Default table names.
const (
	DefaultSourceTable  = "hunter_sources"
	DefaultSessionTable = "hunter_sessions"
)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	SourceTable     string
	SessionTable    string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execPinger interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// SourceStore writes sessions and discovered sources.
type SourceStore struct {
	pool     execPinger
	sources  string
	sessions string
}

// NewSourceStore connects a pool for cfg.
func NewSourceStore(ctx context.Context, cfg Config) (*SourceStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewSourceStoreWithPool(pool, cfg.SourceTable, cfg.SessionTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewSourceStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSourceStoreWithPool(pool execPinger, sourceTable, sessionTable string) (*SourceStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if sourceTable == "" {
		sourceTable = DefaultSourceTable
	}
	if sessionTable == "" {
		sessionTable = DefaultSessionTable
	}
	for _, name := range []string{sourceTable, sessionTable} {
		if !validTableName.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return &SourceStore{pool: pool, sources: sourceTable, sessions: sessionTable}, nil
}

// Close releases the underlying pool resources.
func (s *SourceStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *SourceStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *SourceStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	session_id    TEXT PRIMARY KEY,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	source_count  INTEGER NOT NULL DEFAULT 0,
	target        INTEGER,
	custom_topics BOOLEAN NOT NULL DEFAULT FALSE
)`, s.sessions),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	session_id  TEXT NOT NULL,
	url         TEXT NOT NULL,
	topic       TEXT NOT NULL,
	description TEXT NOT NULL,
	found_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, url)
)`, s.sources),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// StartSession records a new session. Repeats are ignored.
func (s *SourceStore) StartSession(ctx context.Context, sessionID string, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (session_id, started_at)
VALUES ($1, $2)
ON CONFLICT (session_id) DO NOTHING`, s.sessions)
	if _, err := s.pool.Exec(ctx, query, sessionID, startedAt.UTC()); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// RecordSource stores one discovered source. A URL already stored for the
// session is left untouched.
func (s *SourceStore) RecordSource(ctx context.Context, sessionID string, src hunter.Source, foundAt time.Time) error {
	if src.URL == "" {
		return fmt.Errorf("source url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (session_id, url, topic, description, found_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (session_id, url) DO NOTHING`, s.sources)
	if _, err := s.pool.Exec(ctx, query, sessionID, src.URL, src.Topic, src.Description, foundAt.UTC()); err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

// FinishSession stamps the closing status onto a session.
func (s *SourceStore) FinishSession(ctx context.Context, sessionID string, finishedAt time.Time, st hunter.Status) error {
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $2, source_count = $3, target = $4, custom_topics = $5
WHERE session_id = $1`, s.sessions)
	if _, err := s.pool.Exec(ctx, query, sessionID, finishedAt.UTC(), st.Count, st.Target, st.HasCustomTopics); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}
