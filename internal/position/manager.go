// Package position owns the lifecycle of open positions: risk-limit
// admission, exit rule evaluation, and persistence. All mutation funnels
// through one Manager, which is the pipeline's serialization point.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voltrade/voltbot/internal/domain"
)

// ExitAdviser supplies the signal-derived exit verdict for an open position.
// Implemented by the decision engine; wall-clock and stop-loss rules stay in
// the manager so they keep firing when the feed is down.
type ExitAdviser interface {
	EvaluateExit(pos domain.Position, view domain.LineView) (domain.ExitReason, bool)
}

// Entry carries everything needed to open a position from an authorized
// intent: the intent itself plus the quote and game state it was priced
// against, and the hold deadline from the parameter row.
type Entry struct {
	Intent  domain.TradeIntent
	Line    domain.MarketLine
	Event   domain.Event
	MaxHold time.Duration
}

// Exposure summarizes open stake for risk checks and the status surface.
type Exposure struct {
	Positions int
	Total     float64
	ByLeague  map[domain.League]float64
	ByEvent   map[int64]float64
}

// ManagerConfig configures the position manager. Store is required; Audit
// and Adviser are optional.
type ManagerConfig struct {
	Store   domain.PositionStore
	Audit   domain.AuditStore
	Adviser ExitAdviser
	Logger  *slog.Logger

	Bankroll     float64
	MaxPositions int
	MaxLeaguePct float64
	MaxEventPct  float64
	StopLossMult float64
	ExitGrace    time.Duration
}

// Manager tracks open positions in memory, mirrors every transition to the
// store, and enforces risk limits atomically under one lock.
type Manager struct {
	store   domain.PositionStore
	audit   domain.AuditStore
	adviser ExitAdviser
	logger  *slog.Logger

	bankroll     float64
	maxPositions int
	maxLeaguePct float64
	maxEventPct  float64
	stopLossMult float64
	exitGrace    time.Duration

	mu   sync.Mutex
	open map[string]*domain.Position // open and closing positions by id
}

// NewManager creates the position manager.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:        cfg.Store,
		audit:        cfg.Audit,
		adviser:      cfg.Adviser,
		logger:       logger.With(slog.String("component", "positions")),
		bankroll:     cfg.Bankroll,
		maxPositions: cfg.MaxPositions,
		maxLeaguePct: cfg.MaxLeaguePct,
		maxEventPct:  cfg.MaxEventPct,
		stopLossMult: cfg.StopLossMult,
		exitGrace:    cfg.ExitGrace,
		open:         make(map[string]*domain.Position),
	}
}

// Rehydrate reloads open and closing positions from the store after a
// restart, so exposure limits and hold deadlines pick up where they left
// off. Replaces any in-memory state.
func (m *Manager) Rehydrate(ctx context.Context) (int, error) {
	rows, err := m.store.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("position: rehydrate: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = make(map[string]*domain.Position, len(rows))
	for i := range rows {
		pos := rows[i]
		m.open[pos.ID] = &pos
	}
	m.logger.Info("positions rehydrated", slog.Int("count", len(rows)))
	return len(rows), nil
}

// Open admits an authorized intent against the risk limits and persists the
// new position. Admission and persistence happen under one lock so two
// intents can never both squeeze under a cap. Returns ErrRiskLimit when a
// limit would be breached.
func (m *Manager) Open(ctx context.Context, e Entry, now time.Time) (domain.Position, error) {
	if e.Intent.Size <= 0 {
		return domain.Position{}, fmt.Errorf("position: size %.2f: %w", e.Intent.Size, domain.ErrInvalidInput)
	}
	if e.MaxHold <= 0 {
		return domain.Position{}, fmt.Errorf("position: max hold %v: %w", e.MaxHold, domain.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxPositions > 0 && len(m.open) >= m.maxPositions {
		return domain.Position{}, fmt.Errorf("position: %d positions open: %w", len(m.open), domain.ErrRiskLimit)
	}
	for _, p := range m.open {
		if sameGroup(p.Line, e.Intent.Line) {
			return domain.Position{}, fmt.Errorf("position: already holding %s: %w", p.Line.Key(), domain.ErrRiskLimit)
		}
	}
	if m.maxLeaguePct > 0 && m.leagueExposureLocked(e.Intent.League)+e.Intent.Size > m.maxLeaguePct*m.bankroll {
		return domain.Position{}, fmt.Errorf("position: %s exposure cap: %w", e.Intent.League, domain.ErrRiskLimit)
	}
	if m.maxEventPct > 0 && m.eventExposureLocked(e.Intent.Line.EventID)+e.Intent.Size > m.maxEventPct*m.bankroll {
		return domain.Position{}, fmt.Errorf("position: event %d exposure cap: %w", e.Intent.Line.EventID, domain.ErrRiskLimit)
	}

	var stopLoss float64
	if dev := math.Abs(e.Intent.Deviation); dev > 0 && m.stopLossMult > 0 {
		stopLoss = m.stopLossMult * dev
	}

	pos := domain.Position{
		ID:             uuid.NewString(),
		Line:           e.Intent.Line,
		League:         e.Intent.League,
		Direction:      e.Intent.Direction,
		Size:           e.Intent.Size,
		EntryPoints:    e.Line.Points,
		EntryPrice:     e.Line.Price,
		EntryDeviation: e.Intent.Deviation,
		Confidence:     e.Intent.Signal.Confidence,
		EntryScore:     [2]int{e.Event.Teams[0].Score, e.Event.Teams[1].Score},
		StopLossDev:    stopLoss,
		MaxHoldUntil:   now.Add(e.MaxHold),
		State:          domain.PositionOpen,
		OpenedAt:       now,
	}

	if err := m.store.Create(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("position: persist open: %w", err)
	}
	m.open[pos.ID] = &pos

	m.logger.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.String("line", pos.Line.Key()),
		slog.String("direction", string(pos.Direction)),
		slog.Float64("size", pos.Size),
		slog.Float64("entry_deviation", pos.EntryDeviation))
	m.auditLog(ctx, "position_opened", map[string]any{
		"position_id": pos.ID,
		"line":        pos.Line.Key(),
		"league":      pos.League.String(),
		"direction":   string(pos.Direction),
		"size":        pos.Size,
	})
	return pos, nil
}

// EvaluateExits runs the exit rules over every tracked position and drives
// the Closing state machine. Views are keyed by position id; a missing or
// partial view disables only the rules that need it — the hold deadline and
// an armed stop keep firing off cached state while the feed is down.
//
// Rule order is fixed: stop-loss, hold deadline, adviser verdict, terminal
// event. A simultaneous breach always records the stop.
func (m *Manager) EvaluateExits(ctx context.Context, views map[string]domain.LineView, now time.Time) []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	var closed []domain.Position
	for _, pos := range m.sortedLocked() {
		view := views[pos.ID]

		if pos.State == domain.PositionOpen {
			reason, exit := m.exitReason(pos, view, now)
			if !exit {
				continue
			}
			at := now
			pos.State = domain.PositionClosing
			pos.ClosingAt = &at
			pos.ExitReason = reason
			m.logger.Info("position closing",
				slog.String("position_id", pos.ID),
				slog.String("reason", string(reason)))
			if err := m.store.MarkClosing(ctx, pos.ID, reason, now); err != nil {
				m.logger.Warn("mark closing failed", slog.String("position_id", pos.ID), slog.String("error", err.Error()))
			}
			m.auditLog(ctx, "position_closing", map[string]any{
				"position_id": pos.ID,
				"reason":      string(reason),
			})
		}

		// Closing completes on the first cycle with a price, or at the last
		// known price once the grace window runs out.
		switch {
		case view.Line != nil:
			closed = append(closed, m.closeLocked(ctx, pos, view, now, false))
		case pos.ClosingAt != nil && now.Sub(*pos.ClosingAt) >= m.exitGrace:
			closed = append(closed, m.closeLocked(ctx, pos, view, now, true))
		}
	}
	return closed
}

// exitReason applies the exit rules in priority order.
func (m *Manager) exitReason(pos *domain.Position, view domain.LineView, now time.Time) (domain.ExitReason, bool) {
	if pos.StopLossDev > 0 && view.Deviation != nil && math.Abs(*view.Deviation) >= pos.StopLossDev {
		return domain.ExitStopLoss, true
	}
	if !now.Before(pos.MaxHoldUntil) {
		return domain.ExitMaxHold, true
	}
	if m.adviser != nil {
		if reason, exit := m.adviser.EvaluateExit(*pos, view); exit {
			return reason, true
		}
	}
	if view.Event != nil && view.Event.Status.Terminal() {
		return domain.ExitEventFinal, true
	}
	return "", false
}

// closeLocked finalizes one position and drops it from tracking. The caller
// must hold m.mu. A failed store write leaves the row closing; it re-closes
// from the grace path after the next rehydrate.
func (m *Manager) closeLocked(ctx context.Context, pos *domain.Position, view domain.LineView, now time.Time, stale bool) domain.Position {
	if view.Line != nil {
		points, price := view.Line.Points, view.Line.Price
		pos.ExitPoints = &points
		pos.ExitPrice = &price
	}
	if view.Deviation != nil {
		dev := *view.Deviation
		pos.ExitDeviation = &dev
	}
	pnl := domain.RealizedPnL(pos.Direction, pos.Size, pos.EntryDeviation, pos.ExitDeviation)
	at := now
	pos.PnL = &pnl
	pos.State = domain.PositionClosed
	pos.ClosedAt = &at
	pos.ClosedStale = stale

	if err := m.store.CloseOut(ctx, *pos); err != nil {
		m.logger.Warn("close out failed", slog.String("position_id", pos.ID), slog.String("error", err.Error()))
	}
	delete(m.open, pos.ID)

	m.logger.Info("position closed",
		slog.String("position_id", pos.ID),
		slog.String("reason", string(pos.ExitReason)),
		slog.Float64("pnl", pnl),
		slog.Bool("stale", stale))
	m.auditLog(ctx, "position_closed", map[string]any{
		"position_id": pos.ID,
		"reason":      string(pos.ExitReason),
		"pnl":         pnl,
		"stale":       stale,
	})
	return *pos
}

// OpenPositions returns a copy of every tracked position, ordered by open
// time then id.
func (m *Manager) OpenPositions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, 0, len(m.open))
	for _, pos := range m.sortedLocked() {
		out = append(out, *pos)
	}
	return out
}

// TrackedViews lists the line identity each tracked position needs a view
// for, keyed by position id.
func (m *Manager) TrackedViews() map[string]domain.LineID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.LineID, len(m.open))
	for id, pos := range m.open {
		out[id] = pos.Line
	}
	return out
}

// Exposure reports current open stake totals.
func (m *Manager) Exposure() Exposure {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp := Exposure{
		Positions: len(m.open),
		ByLeague:  make(map[domain.League]float64),
		ByEvent:   make(map[int64]float64),
	}
	for _, pos := range m.open {
		exp.Total += pos.Size
		exp.ByLeague[pos.League] += pos.Size
		exp.ByEvent[pos.Line.EventID] += pos.Size
	}
	return exp
}

// sortedLocked returns tracked positions ordered by open time then id, so
// exit evaluation and limit accounting are deterministic. The caller must
// hold m.mu.
func (m *Manager) sortedLocked() []*domain.Position {
	out := make([]*domain.Position, 0, len(m.open))
	for _, pos := range m.open {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Manager) leagueExposureLocked(league domain.League) float64 {
	var sum float64
	for _, pos := range m.open {
		if pos.League == league {
			sum += pos.Size
		}
	}
	return sum
}

func (m *Manager) eventExposureLocked(eventID int64) float64 {
	var sum float64
	for _, pos := range m.open {
		if pos.Line.EventID == eventID {
			sum += pos.Size
		}
	}
	return sum
}

func (m *Manager) auditLog(ctx context.Context, event string, detail map[string]any) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Log(ctx, event, detail); err != nil {
		m.logger.Warn("audit write failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

// sameGroup reports whether two line identities differ only by market
// source. One group never carries two concurrent positions.
func sameGroup(a, b domain.LineID) bool {
	return a.EventID == b.EventID &&
		a.SideIndex == b.SideIndex &&
		a.BetType == b.BetType &&
		a.PeriodType == b.PeriodType &&
		a.AlternateNumber == b.AlternateNumber &&
		a.Scope == b.Scope
}
