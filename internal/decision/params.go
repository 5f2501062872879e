// Package decision turns volatility signals into trade intents: eligibility
// gating, deviation thresholds, per-book tie-breaking, advisory consult, and
// exit rules for open positions.
package decision

import (
	"strings"
	"time"

	"github.com/voltrade/voltbot/internal/config"
	"github.com/voltrade/voltbot/internal/domain"
)

// DirectionConstraint limits which volatility stances a parameter row admits.
type DirectionConstraint string

const (
	ConstraintBoth     DirectionConstraint = "both"
	ConstraintSellOnly DirectionConstraint = "sell_only"
	ConstraintBuyOnly  DirectionConstraint = "buy_only"
)

// Allows reports whether the constraint admits the direction.
func (c DirectionConstraint) Allows(d domain.Direction) bool {
	switch c {
	case ConstraintSellOnly:
		return d == domain.DirectionSellVol
	case ConstraintBuyOnly:
		return d == domain.DirectionBuyVol
	default:
		return true
	}
}

// Params is one resolved parameter row: everything the engine needs to judge
// a line of a given league, bet type, and period type.
type Params struct {
	RegulationMinutes float64
	VolThreshold      float64 // implied-vol deviation pct that arms an entry
	SizeMultiplier    float64
	MaxHold           time.Duration
	MinConfidence     float64
	MinDispersion     float64
	Direction         DirectionConstraint
	PregameEntries    bool
}

// rowKey addresses one exact parameter row.
type rowKey struct {
	league domain.League
	bet    domain.BetType
	period domain.PeriodType
}

// Table resolves parameter rows. Lookup tries the exact (league, bet type,
// period type) row first, then the league default for full-game lines.
// Anything unresolved is untracked: observed and summarized, never traded.
type Table struct {
	exact    map[rowKey]Params
	byLeague map[domain.League]Params
}

// leaguesByName maps config section names to feed league ids.
var leaguesByName = map[string]domain.League{
	"nfl": domain.LeagueNFL,
	"nba": domain.LeagueNBA,
	"cbb": domain.LeagueCBB,
}

// NewTable builds the parameter table from the configured league blocks.
// Unknown league names are ignored; Validate has already flagged bad values.
func NewTable(leagues map[string]config.LeagueConfig, pregameEntries bool) *Table {
	t := &Table{
		exact:    make(map[rowKey]Params),
		byLeague: make(map[domain.League]Params),
	}
	for name, lc := range leagues {
		league, ok := leaguesByName[strings.ToLower(name)]
		if !ok {
			continue
		}
		direction := DirectionConstraint(lc.DirectionConstraint)
		if direction == "" {
			direction = ConstraintBoth
		}
		t.byLeague[league] = Params{
			RegulationMinutes: lc.RegulationMinutes,
			VolThreshold:      lc.VolThresholdPct,
			SizeMultiplier:    lc.SizeMultiplier,
			MaxHold:           time.Duration(lc.MaxHoldMinutes * float64(time.Minute)),
			MinConfidence:     lc.MinConfidence,
			MinDispersion:     lc.MinDispersion,
			Direction:         direction,
			PregameEntries:    pregameEntries,
		}
	}
	return t
}

// SetRow registers an exact parameter row, overriding the league default for
// that bet type and period type.
func (t *Table) SetRow(league domain.League, bet domain.BetType, period domain.PeriodType, p Params) {
	t.exact[rowKey{league: league, bet: bet, period: period}] = p
}

// Lookup resolves the parameter row for a line. The second return is false
// for untracked combinations. League defaults cover full-game lines only;
// period-partial lines trade only through an explicit row.
func (t *Table) Lookup(league domain.League, bet domain.BetType, period domain.PeriodType) (Params, bool) {
	if p, ok := t.exact[rowKey{league: league, bet: bet, period: period}]; ok {
		return p, true
	}
	if period == domain.PeriodFullGame && domain.TrackedBetTypes[bet] {
		if p, ok := t.byLeague[league]; ok {
			return p, true
		}
	}
	return Params{}, false
}
