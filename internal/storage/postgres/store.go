// Package postgres persists crawl jobs and their page index in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool and table names.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	JobsTable       string        `mapstructure:"jobs_table"`
	PagesTable      string        `mapstructure:"pages_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements crawler.JobStore and crawler.PageIndex.
type Store struct {
	db    DB
	jobs  string
	pages string
	now   func() time.Time
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
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
	store, err := NewWithPool(pool, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store over an existing pool.
func NewWithPool(db DB, cfg Config) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	jobs := cfg.JobsTable
	if jobs == "" {
		jobs = "crawl_jobs"
	}
	pages := cfg.PagesTable
	if pages == "" {
		pages = "crawl_pages"
	}
	for _, table := range []string{jobs, pages} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Store{
		db:    db,
		jobs:  jobs,
		pages: pages,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureSchema creates the tables and indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	homepage_url TEXT NOT NULL,
	exclusion_patterns JSONB NOT NULL DEFAULT '[]',
	max_pages INTEGER NOT NULL,
	pages_crawled INTEGER NOT NULL DEFAULT 0,
	queued INTEGER NOT NULL DEFAULT 0,
	current_url TEXT NOT NULL DEFAULT '',
	result JSONB,
	error_text TEXT NOT NULL DEFAULT '',
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
)`, s.jobs),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_status_submitted_idx ON %s (status, submitted_at DESC)`, s.jobs, s.jobs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	job_id TEXT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	final_url TEXT NOT NULL,
	canonical_url TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	meta_description TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	bucket TEXT NOT NULL,
	http_status INTEGER NOT NULL,
	blob_uri TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (job_id, url)
)`, s.pages, s.jobs),
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}
