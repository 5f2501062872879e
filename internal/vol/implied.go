// Package vol derives volatility statistics from market line movement: a
// windowed dispersion/drift engine plus the implied-volatility model that
// relates a spread and its price to an expected in-game decay path.
package vol

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/voltrade/voltbot/internal/domain"
)

// probitClamp bounds probabilities away from 0 and 1 before inversion, where
// the quantile function diverges.
const probitClamp = 1e-6

// maxElapsed caps the elapsed game fraction so the time-remaining factor
// sqrt(1-t) stays away from zero late in games and in overtime.
const maxElapsed = 0.99

// ImpliedProbability converts a price in the source's quoting format to a
// win probability. The result is not clamped; downstream consumers clamp at
// the quantile boundary.
func ImpliedProbability(price float64, format domain.PriceFormat) (float64, error) {
	switch format {
	case domain.FormatAmerican:
		if price == 0 {
			return 0, fmt.Errorf("vol: american price is zero: %w", domain.ErrInvalidInput)
		}
		if price > 0 {
			return 100 / (100 + price), nil
		}
		return -price / (-price + 100), nil
	case domain.FormatDecimal:
		if price <= 0 {
			return 0, fmt.Errorf("vol: decimal price %v not positive: %w", price, domain.ErrInvalidInput)
		}
		return 1 / price, nil
	case domain.FormatPercent, domain.FormatSporttrade:
		return price / 100, nil
	case domain.FormatProbability:
		if price <= 0 {
			return 0, fmt.Errorf("vol: probability %v not positive: %w", price, domain.ErrInvalidInput)
		}
		return price, nil
	default:
		return 0, fmt.Errorf("vol: price format %d unknown: %w", int(format), domain.ErrInvalidInput)
	}
}

// PregameImpliedVol infers the market's game-outcome volatility from a
// pregame spread and its price: |spread / Φ⁻¹(p)|, with the spread sign
// flipped for side index 1 so both sides express the side-0 frame. A
// probability at exactly 0.5 or at the clamp bounds carries no volatility
// information and errors.
func PregameImpliedVol(spread, prob float64, sideIndex int) (float64, error) {
	if sideIndex == 1 {
		spread = -spread
	}
	z, err := quantile(prob)
	if err != nil {
		return 0, err
	}
	return math.Abs(spread / z), nil
}

// LiveImpliedVol infers volatility from an in-game quote: the current lead,
// the expected remaining margin, and the price, scaled by the square root of
// time remaining.
func LiveImpliedVol(lead, expectedMargin, elapsed, prob float64) (float64, error) {
	t := clampElapsed(elapsed)
	z, err := quantile(prob)
	if err != nil {
		return 0, err
	}
	return math.Abs((lead + expectedMargin*(1-t)) / (z * math.Sqrt(1-t))), nil
}

// ExpectedVol is the pregame implied volatility decayed to the elapsed game
// fraction. Volatility burns off as sqrt of time remaining.
func ExpectedVol(pregameIV, elapsed float64) float64 {
	t := clampElapsed(elapsed)
	return pregameIV * math.Sqrt(1-t)
}

// Deviation is the percentage gap between live and expected volatility.
func Deviation(live, expected float64) (float64, error) {
	if expected == 0 {
		return 0, fmt.Errorf("vol: expected volatility is zero: %w", domain.ErrInvalidInput)
	}
	return (live - expected) / expected * 100, nil
}

// quantile is the standard normal inverse CDF, Φ⁻¹(p) = √2·erfinv(2p−1).
// Probabilities at or beyond the clamp bounds, and exactly 0.5, error: the
// quantile there is unusable as a divisor.
func quantile(p float64) (float64, error) {
	if math.IsNaN(p) || p <= probitClamp || p >= 1-probitClamp {
		return 0, fmt.Errorf("vol: probability %v outside usable range: %w", p, domain.ErrInvalidInput)
	}
	z := math.Sqrt2 * math.Erfinv(2*p-1)
	if z == 0 {
		return 0, fmt.Errorf("vol: probability 0.5 carries no direction: %w", domain.ErrInvalidInput)
	}
	return z, nil
}

func clampElapsed(t float64) float64 {
	if t < 0 || math.IsNaN(t) {
		return 0
	}
	if t > maxElapsed {
		return maxElapsed
	}
	return t
}

// leagueClock describes a league's regulation structure for clock math.
type leagueClock struct {
	periods       int
	periodMinutes float64
}

var leagueClocks = map[domain.League]leagueClock{
	domain.LeagueNFL: {periods: 4, periodMinutes: 15},
	domain.LeagueNBA: {periods: 4, periodMinutes: 12},
	domain.LeagueCBB: {periods: 2, periodMinutes: 20},
}

// ElapsedFraction converts a period number and a "MM:SS" remaining clock
// into the fraction of regulation played, in [0, 0.99]. Periods beyond
// regulation (overtime) saturate at the cap.
func ElapsedFraction(league domain.League, period int, clock string) (float64, error) {
	lc, ok := leagueClocks[league]
	if !ok {
		return 0, fmt.Errorf("vol: no clock model for %s: %w", league, domain.ErrInvalidInput)
	}
	if period < 1 {
		return 0, fmt.Errorf("vol: period %d before game start: %w", period, domain.ErrInvalidInput)
	}

	remaining, err := parseClock(clock)
	if err != nil {
		return 0, err
	}
	if remaining > lc.periodMinutes {
		remaining = lc.periodMinutes
	}

	regulation := float64(lc.periods) * lc.periodMinutes
	played := float64(period-1)*lc.periodMinutes + (lc.periodMinutes - remaining)
	return clampElapsed(played / regulation), nil
}

// parseClock parses "MM:SS" into minutes remaining.
func parseClock(clock string) (float64, error) {
	mm, ss, ok := strings.Cut(strings.TrimSpace(clock), ":")
	if !ok {
		return 0, fmt.Errorf("vol: game clock %q not MM:SS: %w", clock, domain.ErrInvalidInput)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || minutes < 0 {
		return 0, fmt.Errorf("vol: game clock %q minutes: %w", clock, domain.ErrInvalidInput)
	}
	seconds, err := strconv.Atoi(ss)
	if err != nil || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("vol: game clock %q seconds: %w", clock, domain.ErrInvalidInput)
	}
	return float64(minutes) + float64(seconds)/60, nil
}
