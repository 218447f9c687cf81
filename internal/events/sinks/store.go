package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Blackwoodproductions/webstack-services/internal/events"
)

// BatchStore persists event batches. The Postgres event store satisfies
// this interface.
type BatchStore interface {
	StoreBatch(ctx context.Context, batch []events.Event) (int, error)
}

// StoreSink persists event batches through a BatchStore.
type StoreSink struct {
	store  BatchStore
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided store.
func NewStoreSink(store BatchStore, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: store, logger: logger}
}

// Consume forwards the batch to the store. It respects ctx deadlines
// and reports how far a partially failed batch got.
func (s *StoreSink) Consume(ctx context.Context, batch []events.Event) error {
	if s == nil || s.store == nil || len(batch) == 0 {
		return nil
	}
	written, err := s.store.StoreBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("store events (%d of %d written): %w", written, len(batch), err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
