// Package postgres provides Postgres-backed append-only stores for
// high-volume rows (health probe results, visitor pageviews, events).
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Blackwoodproductions/webstack-services/internal/health"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PoolConfig controls the connection pool shared by the append stores.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPool opens a pgx pool from configuration.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
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
	return pool, nil
}

// ProbeStore inserts health probe result rows.
type ProbeStore struct {
	pool  execCloser
	table string
}

// NewProbeStore constructs a store over an existing pool. The pool may
// be shared with the other append stores.
func NewProbeStore(pool execCloser, table string) (*ProbeStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "health_probe_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ProbeStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ProbeStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordProbe inserts one probe observation.
func (s *ProbeStore) RecordProbe(ctx context.Context, result health.ProbeResult) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("probe store is not configured")
	}
	if result.ID == "" {
		return fmt.Errorf("probe id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	check_name,
	ok,
	status_code,
	latency_ms,
	error_text,
	observed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.table)

	args := []any{
		result.ID,
		result.Check,
		result.OK,
		result.StatusCode,
		result.Latency.Milliseconds(),
		result.ErrorText,
		result.ObservedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert probe result: %w", err)
	}
	return nil
}
