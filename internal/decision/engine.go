package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voltrade/voltbot/internal/domain"
	"github.com/voltrade/voltbot/internal/vol"
)

// MarketReader is the slice of the market store the engine reads: current
// quotes, game context, and pregame reference lines.
type MarketReader interface {
	Line(id domain.LineID) (domain.MarketLine, bool)
	Event(id int64) (domain.Event, bool)
	LinesInPartition(part domain.PartitionKey) []domain.MarketLine
	SourceName(id int) string
	Matchup(eventID int64) string
}

// lineGroup is a line identity with the market source dimension removed.
// Competing books quoting the same group race for one entry slot.
type lineGroup struct {
	eventID   int64
	sideIndex int
	betType   domain.BetType
	period    domain.PeriodType
	alternate int
	scope     domain.MarketScope
}

func groupOf(id domain.LineID) lineGroup {
	return lineGroup{
		eventID:   id.EventID,
		sideIndex: id.SideIndex,
		betType:   id.BetType,
		period:    id.PeriodType,
		alternate: id.AlternateNumber,
		scope:     id.Scope,
	}
}

// EngineConfig configures the decision engine.
type EngineConfig struct {
	Table   *Table
	Market  MarketReader
	Advisor domain.Advisor      // nil disables the advisory consult
	Limiter domain.RateLimiter  // nil disables advisory rate limiting
	Logger  *slog.Logger

	Bankroll      float64
	BaseSizePct   float64
	MaxSizePct    float64
	EntryCooldown time.Duration
	ReversionFrac float64
	BlowoutPoints int

	AdvisoryMinConfidence float64
	AdvisoryTimeout       time.Duration
	AdvisoryRatePerMin    int
}

// Engine evaluates lines against the parameter table and emits trade
// intents. Evaluate is safe for concurrent use; cooldown state is shared.
type Engine struct {
	table   *Table
	market  MarketReader
	advisor domain.Advisor
	limiter domain.RateLimiter
	logger  *slog.Logger

	bankroll      float64
	baseSizePct   float64
	maxSizePct    float64
	entryCooldown time.Duration
	reversionFrac float64
	blowoutPoints int

	advisoryMinConf float64
	advisoryTimeout time.Duration
	advisoryRate    int

	mu        sync.Mutex
	lastEntry map[lineGroup]time.Time
}

// NewEngine creates the decision engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		table:           cfg.Table,
		market:          cfg.Market,
		advisor:         cfg.Advisor,
		limiter:         cfg.Limiter,
		logger:          logger.With(slog.String("component", "decision")),
		bankroll:        cfg.Bankroll,
		baseSizePct:     cfg.BaseSizePct,
		maxSizePct:      cfg.MaxSizePct,
		entryCooldown:   cfg.EntryCooldown,
		reversionFrac:   cfg.ReversionFrac,
		blowoutPoints:   cfg.BlowoutPoints,
		advisoryMinConf: cfg.AdvisoryMinConfidence,
		advisoryTimeout: cfg.AdvisoryTimeout,
		advisoryRate:    cfg.AdvisoryRatePerMin,
		lastEntry:       make(map[lineGroup]time.Time),
	}
}

// Evaluate judges one line. The returned intent is a candidate: it still has
// to survive the tie-break in SelectIntents, the advisory consult, and the
// position manager's risk limits.
func (e *Engine) Evaluate(line domain.MarketLine, event domain.Event, sig domain.VolSignal, now time.Time) (domain.TradeIntent, bool) {
	params, ok := e.table.Lookup(event.League, line.ID.BetType, line.ID.PeriodType)
	if !ok {
		return domain.TradeIntent{}, false
	}

	// Eligibility.
	switch event.Status {
	case domain.EventFinal, domain.EventCancelled, domain.EventPostponed:
		return domain.TradeIntent{}, false
	}
	if line.Status != domain.LineAvailable || line.SourceUnresolved {
		return domain.TradeIntent{}, false
	}
	switch line.ID.Scope {
	case domain.ScopePregame:
		if !params.PregameEntries {
			return domain.TradeIntent{}, false
		}
	case domain.ScopeLive:
		if event.Status != domain.EventLive {
			return domain.TradeIntent{}, false
		}
	}

	// Window thresholds.
	if sig.Confidence < params.MinConfidence || sig.Dispersion < params.MinDispersion {
		return domain.TradeIntent{}, false
	}

	// Implied-vol deviation where computable, drift direction otherwise.
	var direction domain.Direction
	deviation, computable := e.DeviationFor(line, event)
	if computable {
		if math.Abs(deviation) < params.VolThreshold {
			return domain.TradeIntent{}, false
		}
		if deviation > 0 {
			direction = domain.DirectionSellVol
		} else {
			direction = domain.DirectionBuyVol
		}
	} else {
		deviation = 0
		switch {
		case sig.Drift > 0:
			direction = domain.DirectionSellVol
		case sig.Drift < 0:
			direction = domain.DirectionBuyVol
		default:
			return domain.TradeIntent{}, false
		}
	}

	if !params.Direction.Allows(direction) {
		return domain.TradeIntent{}, false
	}

	if e.onCooldown(groupOf(line.ID), now) {
		return domain.TradeIntent{}, false
	}

	return domain.TradeIntent{
		ID:        uuid.NewString(),
		Line:      line.ID,
		League:    event.League,
		Direction: direction,
		Size:      e.sizeHint(params, sig, deviation, computable),
		Deviation: deviation,
		Signal:    sig,
		CreatedAt: now,
	}, true
}

// DeviationFor computes the implied-volatility deviation for a live spread
// line: how far the live implied vol sits from the pregame vol decayed to
// the current game clock, as a percentage. The second return is false when
// any input is missing: not an error, the caller falls back to drift.
func (e *Engine) DeviationFor(line domain.MarketLine, event domain.Event) (float64, bool) {
	_, _, deviation, ok := e.VolContext(line, event)
	return deviation, ok
}

// VolContext exposes the live and expected implied vol behind DeviationFor,
// for alert rendering. The pregame vol anchors on the pregame spread points
// paired with the pregame moneyline probability; the live vol uses the
// line's own current price.
func (e *Engine) VolContext(line domain.MarketLine, event domain.Event) (live, expected, deviation float64, ok bool) {
	if line.ID.BetType != domain.BetSpread || line.ID.Scope != domain.ScopeLive {
		return 0, 0, 0, false
	}
	if event.Status != domain.EventLive || event.Clock == "" || event.Period == 0 {
		return 0, 0, 0, false
	}

	elapsed, err := vol.ElapsedFraction(event.League, event.Period, event.Clock)
	if err != nil {
		return 0, 0, 0, false
	}
	liveProb, err := vol.ImpliedProbability(line.Price, line.Format)
	if err != nil {
		return 0, 0, 0, false
	}

	refSpread, found := e.pregameReference(line.ID, event.League, domain.BetSpread, line.ID.AlternateNumber)
	if !found {
		return 0, 0, 0, false
	}
	refMoneyline, found := e.pregameReference(line.ID, event.League, domain.BetMoneyline, 0)
	if !found {
		return 0, 0, 0, false
	}
	mlProb, err := vol.ImpliedProbability(refMoneyline.Price, refMoneyline.Format)
	if err != nil {
		return 0, 0, 0, false
	}
	pregameIV, err := vol.PregameImpliedVol(refSpread.Points, mlProb, line.ID.SideIndex)
	if err != nil {
		return 0, 0, 0, false
	}

	// The side's own quoted points already carry the side's sign, so they
	// serve directly as the expected-margin anchor.
	lead := float64(event.Margin(line.ID.SideIndex))
	liveIV, err := vol.LiveImpliedVol(lead, refSpread.Points, elapsed, liveProb)
	if err != nil {
		return 0, 0, 0, false
	}

	expectedIV := vol.ExpectedVol(pregameIV, elapsed)
	deviation, err = vol.Deviation(liveIV, expectedIV)
	if err != nil {
		return 0, 0, 0, false
	}
	return liveIV, expectedIV, deviation, true
}

// pregameReference finds the pregame quote anchoring a live line's expected
// volatility: same event, side, and period, for the requested bet type and
// alternate. Among competing books the lowest market source id wins.
func (e *Engine) pregameReference(id domain.LineID, league domain.League, bet domain.BetType, alternate int) (domain.MarketLine, bool) {
	part := domain.PartitionKey{
		League:     league,
		PeriodType: id.PeriodType,
		Scope:      domain.ScopePregame,
	}

	var best domain.MarketLine
	found := false
	for _, candidate := range e.market.LinesInPartition(part) {
		cid := candidate.ID
		if cid.EventID != id.EventID || cid.SideIndex != id.SideIndex ||
			cid.BetType != bet || cid.AlternateNumber != alternate {
			continue
		}
		if candidate.SourceUnresolved {
			continue
		}
		if !found || cid.SourceID < best.ID.SourceID {
			best = candidate
			found = true
		}
	}
	return best, found
}

// sizeHint is the suggested stake: base fraction scaled by league weight,
// signal confidence, and deviation magnitude, capped at the max fraction.
func (e *Engine) sizeHint(params Params, sig domain.VolSignal, deviation float64, computable bool) float64 {
	devFactor := 1.0
	if computable && params.VolThreshold > 0 {
		devFactor = math.Min(2, math.Abs(deviation)/params.VolThreshold)
	}
	conf := math.Min(1, sig.Confidence)

	pct := e.baseSizePct * params.SizeMultiplier * conf * devFactor
	if pct > e.maxSizePct {
		pct = e.maxSizePct
	}
	return pct * e.bankroll
}

// SelectIntents resolves competing candidates: within each line group the
// lowest market source id wins, and the result is ordered by line identity
// so identical candidate sets always produce identical output.
func (e *Engine) SelectIntents(candidates []domain.TradeIntent) []domain.TradeIntent {
	if len(candidates) == 0 {
		return nil
	}

	winners := make(map[lineGroup]domain.TradeIntent, len(candidates))
	for _, c := range candidates {
		group := groupOf(c.Line)
		current, exists := winners[group]
		if !exists || c.Line.SourceID < current.Line.SourceID {
			winners[group] = c
		}
	}

	out := make([]domain.TradeIntent, 0, len(winners))
	for _, intent := range winners {
		out = append(out, intent)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Line.Key() < out[j].Line.Key()
	})
	return out
}

// Authorize runs the advisory consult on a selected intent. With no advisor
// configured the intent passes through unchanged. Every advisory failure
// rejects: an entry is never taken on a missing answer.
func (e *Engine) Authorize(ctx context.Context, intent domain.TradeIntent) (domain.TradeIntent, error) {
	if e.advisor == nil {
		return intent, nil
	}

	if e.limiter != nil {
		allowed, err := e.limiter.Allow(ctx, "advisory", e.advisoryRate, time.Minute)
		if err != nil || !allowed {
			return domain.TradeIntent{}, fmt.Errorf("decision: advisory rate limit: %w", domain.ErrRiskLimit)
		}
	}

	event, _ := e.market.Event(intent.Line.EventID)
	req := domain.AdvisoryRequest{
		Intent:     intent,
		Event:      event,
		Matchup:    e.market.Matchup(intent.Line.EventID),
		SourceName: e.market.SourceName(intent.Line.SourceID),
	}

	cctx, cancel := context.WithTimeout(ctx, e.advisoryTimeout)
	defer cancel()

	opinion, err := e.advisor.Advise(cctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.TradeIntent{}, fmt.Errorf("decision: advisory: %w", domain.ErrAdvisoryTimeout)
		}
		return domain.TradeIntent{}, fmt.Errorf("decision: advisory: %w", err)
	}
	if opinion.Recommendation != domain.AdviceProceed {
		return domain.TradeIntent{}, fmt.Errorf("decision: advisory rejected: %s", opinion.Analysis)
	}
	if opinion.Confidence < e.advisoryMinConf {
		return domain.TradeIntent{}, fmt.Errorf("decision: advisory confidence %.2f below floor %.2f",
			opinion.Confidence, e.advisoryMinConf)
	}

	// The opinion may shrink the stake, never grow it.
	if opinion.Size > 0 && opinion.Size < intent.Size {
		intent.Size = opinion.Size
	}
	return intent, nil
}

// MarkEntered records a successful entry for cooldown purposes. Called by
// the trading loop after the position manager accepts the intent, so a
// risk-limit rejection does not burn the group's cooldown.
func (e *Engine) MarkEntered(id domain.LineID, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastEntry[groupOf(id)] = at
}

func (e *Engine) onCooldown(group lineGroup, now time.Time) bool {
	if e.entryCooldown <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	last, ok := e.lastEntry[group]
	return ok && now.Sub(last) < e.entryCooldown
}

// EvaluateExit decides whether an open position should be closed on signal
// grounds: the deviation that justified the entry has mean-reverted, or the
// game has blown out since entry. Wall-clock and stop-loss exits belong to
// the position manager.
func (e *Engine) EvaluateExit(pos domain.Position, view domain.LineView) (domain.ExitReason, bool) {
	if view.Deviation != nil && pos.EntryDeviation != 0 {
		if math.Abs(*view.Deviation) <= e.reversionFrac*math.Abs(pos.EntryDeviation) {
			return domain.ExitSignal, true
		}
	}

	if view.Event != nil && e.blowoutPoints > 0 {
		entryMargin := pos.EntryScore[0] - pos.EntryScore[1]
		if pos.Line.SideIndex == 1 {
			entryMargin = -entryMargin
		}
		currentMargin := view.Event.Margin(pos.Line.SideIndex)
		if abs(currentMargin-entryMargin) > e.blowoutPoints {
			return domain.ExitSignal, true
		}
	}

	return "", false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
