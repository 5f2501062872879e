package domain

import "time"

// Direction is the volatility stance of an intent or position. Selling
// volatility bets on reversion toward the expected decay path; buying bets
// on continued excess movement.
type Direction string

const (
	DirectionBuyVol  Direction = "buy_vol"
	DirectionSellVol Direction = "sell_vol"
)

// VolSignal is the windowed movement summary for one line. Signals are
// ephemeral: derived on demand, never persisted, valid for one evaluation
// pass.
type VolSignal struct {
	Line       LineID
	Dispersion float64 // stddev of the observed metric over the window
	Drift      float64 // least-squares slope, metric units per minute
	Confidence float64 // 0..1, rises with sample count, decays with staleness
	Samples    int
	LastMetric float64 // most recent observed metric value
	ComputedAt time.Time
}

// TradeIntent is an accepted entry proposal, prior to risk-limit admission.
// The position manager may still reject it.
type TradeIntent struct {
	ID        string
	Line      LineID
	League    League
	Direction Direction
	// Size is the suggested stake in bankroll currency. The advisory step
	// may shrink it; the position manager never grows it.
	Size      float64
	Deviation float64 // implied-vol deviation pct at evaluation, 0 if not computable
	Signal    VolSignal
	CreatedAt time.Time
}

// ExitReason names which exit rule closed a position. The values are ordered
// by evaluation priority; stop-loss always wins a simultaneous breach.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitMaxHold    ExitReason = "max_hold"
	ExitSignal     ExitReason = "exit_signal"
	ExitEventFinal ExitReason = "event_final"
)

// LineView bundles the current market context for one line, for exit
// evaluation. Nil fields mean the data is unavailable this cycle; wall-clock
// exit rules still apply without it.
type LineView struct {
	Line      *MarketLine
	Event     *Event
	Signal    *VolSignal
	Deviation *float64 // current implied-vol deviation pct, when computable
}
