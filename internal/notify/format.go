package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/voltrade/voltbot/internal/domain"
)

// Alert text lives here so every channel renders the same message. Titles and
// bodies are returned separately; senders decide how to emphasise the title.
// Bodies avoid markdown metacharacters (notably "_") so the Telegram parser
// never rejects a message.

// Matchup is the away-at-home display pair. Either name may be empty when
// team reference data has not resolved yet.
type Matchup struct {
	Away string
	Home string
}

func (m Matchup) String() string {
	if m.Away == "" || m.Home == "" {
		return "Teams N/A"
	}
	return m.Away + " @ " + m.Home
}

// EntryAlert carries the fields the entry text renders. Vol numbers are the
// ones the entry decision saw.
type EntryAlert struct {
	Position    domain.Position
	Matchup     Matchup
	Clock       string // "" renders as N/A
	ScoreDiff   int    // margin for the position's side
	LiveVol     float64
	ExpectedVol float64
	Deviation   float64 // pct, 0 for drift-based entries
	CurrentProb float64
	At          time.Time
}

// FormatEntry renders the new-position alert.
func FormatEntry(a EntryAlert) (string, string) {
	pos := a.Position

	var b strings.Builder
	fmt.Fprintf(&b, "Event: %d (%s)\n", pos.Line.EventID, pos.League)
	fmt.Fprintf(&b, "Matchup: %s\n", a.Matchup)
	fmt.Fprintf(&b, "Side: %s\n", positionSide(a.Matchup, pos))
	fmt.Fprintf(&b, "Price: %s\n", priceString(pos.EntryPrice))
	fmt.Fprintf(&b, "Action: %s\n", actionString(pos.Direction))
	fmt.Fprintf(&b, "Size: $%.2f\n", pos.Size)
	fmt.Fprintf(&b, "Game Clock: %s\n", orNA(a.Clock))
	fmt.Fprintf(&b, "Score Diff: %+d\n", a.ScoreDiff)
	b.WriteString("\nVolatility Analysis\n")
	fmt.Fprintf(&b, "Live Vol: %.2f\n", a.LiveVol)
	fmt.Fprintf(&b, "Expected Vol: %.2f\n", a.ExpectedVol)
	fmt.Fprintf(&b, "Deviation: %+.1f%%\n", a.Deviation)
	fmt.Fprintf(&b, "Confidence: %.0f%%\n", pos.Confidence*100)
	b.WriteString("\nMarket State\n")
	fmt.Fprintf(&b, "Current Prob: %.3f\n", a.CurrentProb)
	fmt.Fprintf(&b, "Timestamp: %s", formatTime(a.At))

	return "🚨 New Trade Alert", b.String()
}

// ExitAlert carries the fields the close alert renders. Final-state vol
// numbers are only rendered when the close saw fresh market data.
type ExitAlert struct {
	Position    domain.Position
	Matchup     Matchup
	Clock       string
	ScoreDiff   int
	LiveVol     float64
	ExpectedVol float64
	CurrentProb float64
	TotalPnL    float64
	At          time.Time
}

// FormatExit renders the position-closed alert.
func FormatExit(a ExitAlert) (string, string) {
	pos := a.Position
	var pnl float64
	if pos.PnL != nil {
		pnl = *pos.PnL
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Event: %d (%s)\n", pos.Line.EventID, pos.League)
	fmt.Fprintf(&b, "Matchup: %s\n", a.Matchup)
	fmt.Fprintf(&b, "Side: %s\n", sideName(a.Matchup, pos.Line.SideIndex))
	fmt.Fprintf(&b, "Exit Price: %s\n", ptrPriceString(pos.ExitPrice))
	fmt.Fprintf(&b, "Type: %s\n", actionString(pos.Direction))
	fmt.Fprintf(&b, "Exit Reason: %s\n", humanize(string(pos.ExitReason)))
	fmt.Fprintf(&b, "PnL: %s $%+.2f\n", pnlEmoji(pnl), pnl)
	fmt.Fprintf(&b, "Total PnL: $%+.2f\n", a.TotalPnL)
	fmt.Fprintf(&b, "Game Clock: %s\n", orNA(a.Clock))
	fmt.Fprintf(&b, "Score Diff: %+d\n", a.ScoreDiff)
	b.WriteString("\nFinal State\n")
	if pos.ClosedStale {
		b.WriteString("No fresh market data (closed stale)\n")
	} else {
		fmt.Fprintf(&b, "Live Vol: %.2f\n", a.LiveVol)
		fmt.Fprintf(&b, "Expected Vol: %.2f\n", a.ExpectedVol)
		if pos.ExitDeviation != nil {
			fmt.Fprintf(&b, "Deviation: %+.1f%%\n", *pos.ExitDeviation)
		}
		fmt.Fprintf(&b, "Current Prob: %.3f\n", a.CurrentProb)
	}
	fmt.Fprintf(&b, "Timestamp: %s", formatTime(a.At))

	return "💰 Position Closed", b.String()
}

// PregameGame is one matchup row of the pregame volatility summary. Spread
// is the home side's handicap; vols are Polson-Stern pregame implied vols.
type PregameGame struct {
	Matchup   Matchup
	Spread    float64
	HomeVol   float64
	AwayVol   float64
	HomePrice float64
	AwayPrice float64
}

// PregameLeague groups summary rows under a league heading.
type PregameLeague struct {
	Name  string
	Games []PregameGame
}

// FormatPregameSummary renders the periodic pregame volatility digest,
// grouped by league in the given order.
func FormatPregameSummary(leagues []PregameLeague, at time.Time) (string, string) {
	title := "📊 Pregame Volatility Summary"

	total := 0
	for _, lg := range leagues {
		total += len(lg.Games)
	}
	if total == 0 {
		return title, "No pregame events found"
	}

	var b strings.Builder
	b.WriteString(formatTime(at))
	b.WriteString("\n")
	for _, lg := range leagues {
		if len(lg.Games) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s Games (%d)\n", lg.Name, len(lg.Games))
		for _, g := range lg.Games {
			fmt.Fprintf(&b, "\n%s\n", g.Matchup)
			fmt.Fprintf(&b, "Spread: %+.1f\n", g.Spread)
			fmt.Fprintf(&b, "Home Vol: %.2f (%s)\n", g.HomeVol, priceString(g.HomePrice))
			fmt.Fprintf(&b, "Away Vol: %.2f (%s)\n", g.AwayVol, priceString(g.AwayPrice))
		}
	}
	return title, b.String()
}

// SummaryReport is the periodic performance digest.
type SummaryReport struct {
	OpenPositions int
	OpenExposure  float64
	ClosedCount   int
	PeriodPnL     float64
	TotalPnL      float64
	At            time.Time
}

// FormatSummary renders the periodic performance summary.
func FormatSummary(r SummaryReport) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Open Positions: %d\n", r.OpenPositions)
	fmt.Fprintf(&b, "Open Exposure: $%.2f\n", r.OpenExposure)
	fmt.Fprintf(&b, "Closed This Period: %d\n", r.ClosedCount)
	fmt.Fprintf(&b, "Period PnL: %s $%+.2f\n", pnlEmoji(r.PeriodPnL), r.PeriodPnL)
	fmt.Fprintf(&b, "Total PnL: $%+.2f\n", r.TotalPnL)
	fmt.Fprintf(&b, "Timestamp: %s", formatTime(r.At))
	return "📈 Performance Summary", b.String()
}

// FormatFeedError renders a feed failure alert. stage names the operation
// that failed (bootstrap, poll).
func FormatFeedError(stage string, err error, at time.Time) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Stage: %s\n", stage)
	fmt.Fprintf(&b, "Error: %v\n", err)
	fmt.Fprintf(&b, "Timestamp: %s", formatTime(at))
	return "⚠️ Feed Error", b.String()
}

// FormatFeedRecovered renders the all-clear after a feed outage.
func FormatFeedRecovered(downFor time.Duration, at time.Time) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Feed restored after %s\n", downFor.Round(time.Second))
	fmt.Fprintf(&b, "Timestamp: %s", formatTime(at))
	return "✅ Feed Recovered", b.String()
}

// FormatTradingHalted renders the operator-action-required halt alert.
func FormatTradingHalted(reason string, at time.Time) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Reason: %s\n", reason)
	b.WriteString("No new entries will be made. Open positions continue to be managed.\n")
	fmt.Fprintf(&b, "Timestamp: %s", formatTime(at))
	return "🛑 Trading Halted", b.String()
}

// positionSide renders the traded side with its points handicap when the bet
// type carries one.
func positionSide(m Matchup, pos domain.Position) string {
	name := sideName(m, pos.Line.SideIndex)
	if pos.Line.BetType.HasPoints() {
		return fmt.Sprintf("%s %+.1f", name, pos.EntryPoints)
	}
	return name
}

// sideName resolves a side index to its team name, falling back to the
// generic side label.
func sideName(m Matchup, sideIndex int) string {
	if sideIndex == 1 {
		if m.Home != "" {
			return m.Home
		}
		return "Home"
	}
	if m.Away != "" {
		return m.Away
	}
	return "Away"
}

// priceString renders an American-odds price, or N/A when no price is known.
func priceString(price float64) string {
	if price == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%+.0f", price)
}

func ptrPriceString(price *float64) string {
	if price == nil {
		return "N/A"
	}
	return priceString(*price)
}

// actionString renders a direction for display: "SELL VOL", "BUY VOL".
func actionString(d domain.Direction) string {
	return strings.ToUpper(humanize(string(d)))
}

// humanize swaps identifier underscores for spaces, also keeping the text
// safe for Telegram's markdown parser.
func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

func pnlEmoji(pnl float64) string {
	switch {
	case pnl > 0:
		return "🟢"
	case pnl < 0:
		return "🔴"
	}
	return "⚪️"
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
