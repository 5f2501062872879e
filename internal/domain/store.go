package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// PositionStore persists positions so a restart can rehydrate live exposure
// instead of losing track of it. Closed rows are immutable: CloseOut on an
// already-closed position returns ErrClosed.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	MarkClosing(ctx context.Context, id string, reason ExitReason, at time.Time) error
	CloseOut(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	// ListOpen returns every position not yet closed, including those caught
	// mid-Closing by a shutdown.
	ListOpen(ctx context.Context) ([]Position, error)
	ListClosedSince(ctx context.Context, since time.Time, opts ListOpts) ([]Position, error)
	SumPnLSince(ctx context.Context, since time.Time) (float64, error)
}

// AuditEntry is one row of the append-only audit log.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore records lifecycle events (opens, closes, bootstraps, halts).
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
