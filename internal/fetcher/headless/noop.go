package headless

import (
	"context"
	"errors"

	"github.com/Blackwoodproductions/webstack-services/internal/audit"
)

// Noop implements audit.Fetcher but always returns an error to indicate
// that headless rendering is not available in the current build.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns an error since this is a stub implementation.
func (Noop) Fetch(_ context.Context, _ audit.FetchRequest) (audit.FetchResponse, error) {
	return audit.FetchResponse{}, errors.New("headless fetcher not configured")
}
