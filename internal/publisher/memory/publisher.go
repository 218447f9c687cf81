// Package memory provides an in-process publisher used when Pub/Sub is
// disabled (local development, tests).
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher keeps published completion payloads in memory so callers can
// inspect what the audit pipeline would have sent downstream.
type Publisher struct {
	mu     sync.RWMutex
	record []Record
}

// Record is one captured publish call.
type Record struct {
	Topic   string
	Payload any
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish captures the payload and returns a synthetic message ID. It never
// fails, matching the fire-and-forget posture of the real publisher.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record = append(p.record, Record{Topic: topic, Payload: payload})
	return fmt.Sprintf("local-%d", len(p.record)), nil
}

// Records returns a copy of everything published so far.
func (p *Publisher) Records() []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Record, len(p.record))
	copy(out, p.record)
	return out
}

// Len reports how many payloads were published.
func (p *Publisher) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.record)
}
