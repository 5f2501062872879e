package domain

import "strconv"

// League identifies a sports league by the feed's numeric id.
type League int

const (
	LeagueNFL League = 1
	LeagueNBA League = 3
	LeagueCBB League = 4
)

// TrackedLeagues is the set of leagues the system ingests. Feed records for
// any other league are skipped at the parsing boundary.
var TrackedLeagues = map[League]bool{
	LeagueNFL: true,
	LeagueNBA: true,
	LeagueCBB: true,
}

func (l League) String() string {
	switch l {
	case LeagueNFL:
		return "NFL"
	case LeagueNBA:
		return "NBA"
	case LeagueCBB:
		return "CBB"
	}
	return "league" + strconv.Itoa(int(l))
}

// BetType identifies the wager type of a market line.
type BetType int

const (
	BetMoneyline BetType = 1
	BetSpread    BetType = 2
	BetTotal     BetType = 3
)

// TrackedBetTypes is the set of bet types the system ingests.
var TrackedBetTypes = map[BetType]bool{
	BetMoneyline: true,
	BetSpread:    true,
	BetTotal:     true,
}

func (b BetType) String() string {
	switch b {
	case BetMoneyline:
		return "moneyline"
	case BetSpread:
		return "spread"
	case BetTotal:
		return "total"
	}
	return "bet" + strconv.Itoa(int(b))
}

// HasPoints reports whether lines of this bet type quote a points handicap.
// Moneyline prices stand alone; spreads and totals carry points.
func (b BetType) HasPoints() bool {
	return b == BetSpread || b == BetTotal
}

// PeriodType identifies the portion of the game a line covers.
type PeriodType int

const (
	PeriodFullGame   PeriodType = 1
	PeriodFirstHalf  PeriodType = 2
	PeriodSecondHalf PeriodType = 3
)

func (p PeriodType) String() string {
	switch p {
	case PeriodFullGame:
		return "game"
	case PeriodFirstHalf:
		return "1H"
	case PeriodSecondHalf:
		return "2H"
	}
	return "pt" + strconv.Itoa(int(p))
}

// MarketScope separates pregame and live quoting of the same event. The two
// are distinct line identities in the feed.
type MarketScope string

const (
	ScopePregame MarketScope = "pregame"
	ScopeLive    MarketScope = "live"
)

// PriceFormat is the unit the source quotes its price in.
type PriceFormat int

const (
	FormatAmerican    PriceFormat = 1
	FormatDecimal     PriceFormat = 2
	FormatPercent     PriceFormat = 3
	FormatProbability PriceFormat = 4
	FormatSporttrade  PriceFormat = 5 // 0-100 contract price
)

func (f PriceFormat) String() string {
	switch f {
	case FormatAmerican:
		return "american"
	case FormatDecimal:
		return "decimal"
	case FormatPercent:
		return "percent"
	case FormatProbability:
		return "probability"
	case FormatSporttrade:
		return "sporttrade"
	}
	return "format" + strconv.Itoa(int(f))
}

// EventStatus is the lifecycle state of an event as reported by the feed.
type EventStatus int

const (
	EventScheduled EventStatus = 1
	EventLive      EventStatus = 2
	EventFinal     EventStatus = 3
	EventDelayed   EventStatus = 4
	EventPostponed EventStatus = 5
	EventCancelled EventStatus = 6
)

func (s EventStatus) String() string {
	switch s {
	case EventScheduled:
		return "scheduled"
	case EventLive:
		return "live"
	case EventFinal:
		return "final"
	case EventDelayed:
		return "delayed"
	case EventPostponed:
		return "postponed"
	case EventCancelled:
		return "cancelled"
	}
	return "status" + strconv.Itoa(int(s))
}

// Terminal reports whether no further market activity is expected. Lines of a
// terminal event are never eligible for new entries; open positions against
// them are closed out by the position manager.
func (s EventStatus) Terminal() bool {
	return s == EventFinal || s == EventCancelled
}

// defaultSourceNames names the sportsbooks the feed quotes, for display when
// a snapshot has not (yet) delivered the source table.
var defaultSourceNames = map[int]string{
	1:  "Pinnacle",
	2:  "FanDuel",
	4:  "DraftKings",
	6:  "BetMGM",
	7:  "Caesars",
	8:  "WynnBet",
	17: "Bet365",
	20: "BetRivers",
	22: "Barstool",
	24: "PointsBet",
	25: "SuperBook",
	27: "TwinSpires",
	36: "Circa",
	49: "BetUS",
	60: "BetOnline",
	66: "Heritage",
	67: "Bovada",
	69: "BetAnySports",
	77: "Bookmaker",
	78: "BetCRIS",
	86: "SBK",
	89: "SI Sportsbook",
	92: "Unibet",
}

// SourceName returns the display name for a market source id, falling back to
// a numeric placeholder for sources outside the built-in table.
func SourceName(id int) string {
	if name, ok := defaultSourceNames[id]; ok {
		return name
	}
	return "source" + strconv.Itoa(id)
}
