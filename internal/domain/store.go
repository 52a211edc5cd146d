package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// FillFilter narrows a fill listing.
type FillFilter struct {
	Since        *time.Time // inclusive lower bound on the fill timestamp
	OpeningsOnly bool       // only fills whose direction starts with "Open "
	Traders      []string   // restrict to these addresses when non-empty
	NewestFirst  bool
}

// FillStore persists the latest fill snapshot of every tracked trader.
type FillStore interface {
	// ReplaceForTraders atomically drops the stored fills of the given traders
	// and inserts fills in their place.
	ReplaceForTraders(ctx context.Context, traders []string, fills []Fill) error
	// PruneExcept removes fills of every trader not in keep.
	PruneExcept(ctx context.Context, keep []string) (int64, error)
	List(ctx context.Context, filter FillFilter) ([]Fill, error)
	Count(ctx context.Context) (int64, error)
}

// TraderStore persists the curated list of tracked traders.
type TraderStore interface {
	ReplaceAll(ctx context.Context, traders []TrackedTrader) error
	List(ctx context.Context) ([]TrackedTrader, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// SignalStore keeps the consensus signals of each analysis cycle.
type SignalStore interface {
	SaveCycle(ctx context.Context, at time.Time, signals []AnnotatedSignal) error
	// Latest returns the signals of the most recent cycle, or ErrNotFound
	// when no cycle has been recorded.
	Latest(ctx context.Context) (time.Time, []AnnotatedSignal, error)
}
