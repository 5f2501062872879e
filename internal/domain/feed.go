package domain

import (
	"context"
	"time"
)

// Cursor is the feed's opaque resumption token. It is ordered from the feed's
// perspective but is not a timestamp and must never be interpreted as one.
// Cursors live only in memory: a restart always re-bootstraps.
type Cursor string

// TeamScore is a per-side score update inside an event delta. TeamID may be
// zero in incremental updates that only move the score.
type TeamScore struct {
	SideIndex int
	TeamID    int64
	Score     int
}

// EventUpdate is one event's worth of change, either from a snapshot (all
// fields populated) or from an incremental batch (only changed fields
// present; nil pointers mean "not in this update"). Lines always arrive as
// full records with their sequence number.
type EventUpdate struct {
	Partition PartitionKey
	EventID   int64
	Status    *EventStatus
	Start     *time.Time
	Clock     *string
	Period    *int
	Scores    []TeamScore
	Lines     []MarketLine
}

// ChangeBatch is one causally-ordered unit of incremental change. Batches
// must be applied in the order received; elements within a batch likewise.
type ChangeBatch struct {
	Updates []EventUpdate
	// Dropped counts records discarded as malformed while decoding this
	// batch. The batch itself remains applicable.
	Dropped int
}

// ChangeSet is the result of one successful changes poll.
type ChangeSet struct {
	Cursor  Cursor
	Batches []ChangeBatch
}

// Snapshot is the full market graph returned by a bootstrap.
type Snapshot struct {
	Cursor  Cursor
	Teams   map[int64]Team
	Sources map[int]MarketSource
	Updates []EventUpdate
	Dropped int
}

// Feed is the upstream odds feed. Bootstrap fetches the full snapshot and an
// initial cursor; PollChanges returns ordered change batches plus the next
// cursor. Errors carry the taxonomy sentinels: ErrAuth, ErrTransient,
// ErrStaleCursor, ErrMalformedData.
type Feed interface {
	Bootstrap(ctx context.Context) (Snapshot, error)
	PollChanges(ctx context.Context, cursor Cursor) (ChangeSet, error)
}
