package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Blackwoodproductions/webstack-services/internal/events"
)

// EventStore inserts operational event rows. The events hub flushes
// batches through StoreBatch.
type EventStore struct {
	pool  execCloser
	table string
}

// NewEventStore constructs a store over an existing pool.
func NewEventStore(pool execCloser, table string) (*EventStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "operational_events"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &EventStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *EventStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreBatch inserts a batch of events row by row. A failed insert
// aborts the batch and reports how far it got.
func (s *EventStore) StoreBatch(ctx context.Context, batch []events.Event) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("event store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	job_uuid,
	ts,
	kind,
	site,
	url,
	bytes,
	pages,
	status_class,
	duration_ms,
	check_name,
	remedy,
	note
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, s.table)

	for i, event := range batch {
		var jobID *string
		if event.JobID != [16]byte{} {
			idStr := uuid.UUID(event.JobID).String()
			jobID = &idStr
		}
		args := []any{
			jobID,
			event.TS,
			string(event.Kind),
			event.Site,
			event.URL,
			event.Bytes,
			event.Pages,
			string(event.StatusClass),
			event.Dur.Milliseconds(),
			event.Check,
			event.Remedy,
			event.Note,
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return i, fmt.Errorf("insert event %d of %d: %w", i+1, len(batch), err)
		}
	}
	return len(batch), nil
}
