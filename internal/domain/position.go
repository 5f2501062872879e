package domain

import "time"

// PositionState tracks a position through its lifecycle. There is no
// persisted "proposed" state: an intent either opens a position or leaves no
// trace beyond the audit log.
type PositionState string

const (
	PositionOpen    PositionState = "open"
	PositionClosing PositionState = "closing"
	PositionClosed  PositionState = "closed"
)

// Position is a speculative stake against one market line's volatility.
// Mutated only by the position manager; closed positions are immutable and
// never re-opened — a later intent on the same line is a new position.
type Position struct {
	ID        string
	Line      LineID
	League    League
	Direction Direction
	Size      float64

	EntryPoints    float64
	EntryPrice     float64
	EntryDeviation float64 // implied-vol deviation pct at entry
	Confidence     float64 // signal confidence at entry
	EntryScore     [2]int  // score when opened, for blowout exit checks

	// StopLossDev is the absolute deviation level that triggers a stop,
	// fixed at open from the entry deviation and the configured multiplier.
	StopLossDev float64
	// MaxHoldUntil is the wall-clock deadline after which the position exits
	// regardless of market state. Enforced even when the feed is down.
	MaxHoldUntil time.Time

	State     PositionState
	OpenedAt  time.Time
	ClosingAt *time.Time
	ClosedAt  *time.Time

	ExitReason    ExitReason
	ExitPoints    *float64
	ExitPrice     *float64
	ExitDeviation *float64
	PnL           *float64
	// ClosedStale is set when no fresh exit price arrived within the grace
	// period and the position closed at its last known price.
	ClosedStale bool
}

// Closed reports whether the position has reached its terminal state.
func (p Position) Closed() bool {
	return p.State == PositionClosed
}

// RealizedPnL computes the deviation-space profit for a closed position:
// a vol seller profits as the deviation falls from its entry level, a buyer
// as it rises. Returns 0 when the entry deviation was 0 or the exit
// deviation is unknown. The result is deterministic in its inputs.
func RealizedPnL(direction Direction, size, entryDev float64, exitDev *float64) float64 {
	if exitDev == nil || entryDev == 0 {
		return 0
	}
	base := entryDev
	if base < 0 {
		base = -base
	}
	move := (entryDev - *exitDev) / base
	if direction == DirectionBuyVol {
		move = -move
	}
	return size * move
}
