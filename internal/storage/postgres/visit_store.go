package postgres

import (
	"context"
	"fmt"

	"github.com/Blackwoodproductions/webstack-services/internal/visitors"
)

// VisitStore inserts visitor pageview rows.
type VisitStore struct {
	pool  execCloser
	table string
}

// NewVisitStore constructs a store over an existing pool.
func NewVisitStore(pool execCloser, table string) (*VisitStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "visitor_events"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &VisitStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *VisitStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordPageview inserts one pageview row.
func (s *VisitStore) RecordPageview(ctx context.Context, event visitors.PageviewEvent) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("visit store is not configured")
	}
	if event.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if event.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	session_id,
	domain,
	path,
	referrer,
	user_agent,
	occurred_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.table)

	args := []any{
		event.ID,
		event.SessionID,
		event.Domain,
		event.Path,
		event.Referrer,
		event.UserAgent,
		event.OccurredAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert pageview: %w", err)
	}
	return nil
}
