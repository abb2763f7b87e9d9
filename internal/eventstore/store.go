// Package eventstore records the history of runs as an append-only event log in SQLite
// and projects it into per-run summaries.
package eventstore

import (
	"context"
	"time"
)

// Store persists and retrieves events.
type Store interface {
	Append(ctx context.Context, e Event) error
	// GetByRunID returns the events of one run in append order.
	GetByRunID(ctx context.Context, runID string) ([]Event, error)
	// GetRange returns the events recorded between start and end.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)
	Close() error
}
