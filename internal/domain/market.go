package domain

import (
	"fmt"
	"time"
)

// LineID is the stable identity of a market line. Every field participates:
// the same event quoted pregame and live, or by two sources, is two lines.
type LineID struct {
	EventID         int64
	SideIndex       int // 0 away, 1 home (or over/under for totals)
	BetType         BetType
	PeriodType      PeriodType
	AlternateNumber int
	Scope           MarketScope
	SourceID        int
}

// Key renders the identity as a stable string for cache keys and logs.
func (id LineID) Key() string {
	return fmt.Sprintf("ev%d:si%d:bt%d:pt%d:an%d:%s:ms%d",
		id.EventID, id.SideIndex, int(id.BetType), int(id.PeriodType),
		id.AlternateNumber, id.Scope, id.SourceID)
}

// LineStatus reports whether the source is currently quoting the line.
type LineStatus string

const (
	LineAvailable   LineStatus = "available"
	LineUnavailable LineStatus = "unavailable"
)

// MarketLine is one source's current quote for one side of one bet type on
// one event. Sequence is non-decreasing per identity; updates carrying a
// sequence at or below the stored value are discarded by the store.
type MarketLine struct {
	ID       LineID
	Points   float64
	Price    float64 // in the units of Format
	Format   PriceFormat
	Status   LineStatus
	Sequence int64
	// SourceUnresolved is set when the line referenced a market source the
	// snapshot has not declared. The line is stored but consumers may skip it.
	SourceUnresolved bool
	UpdatedAt        time.Time
}

// EventTeam is one side's team and running score.
type EventTeam struct {
	TeamID int64
	Score  int
}

// Event is the game context shared by all of its market lines. Events carry
// no sequence number; updates are last-applied-wins in batch order.
type Event struct {
	ID     int64
	League League
	Status EventStatus
	Start  time.Time
	Clock  string // remaining time in the current period, "MM:SS"
	Period int
	Teams  [2]EventTeam // indexed by side
}

// Margin returns the away-minus-home score difference for side 0, negated
// for side 1, so a positive margin always means "this side leads".
func (e Event) Margin(sideIndex int) int {
	lead := e.Teams[0].Score - e.Teams[1].Score
	if sideIndex == 1 {
		lead = -lead
	}
	return lead
}

// PartitionKey mirrors the feed's own partitioning of events.
type PartitionKey struct {
	League     League
	PeriodType PeriodType
	Scope      MarketScope
}

func (p PartitionKey) String() string {
	return fmt.Sprintf("lg%d:pt%d:%s", int(p.League), int(p.PeriodType), p.Scope)
}

// Team is feed reference data for display.
type Team struct {
	ID           int64
	League       League
	Name         string
	Abbreviation string
}

// MarketSource is a sportsbook declared by the snapshot.
type MarketSource struct {
	ID     int
	Name   string
	Active bool
}
