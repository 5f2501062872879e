// Package pipeline drives the polling cycle: feed changes in, market state
// and volatility signals updated, entries and exits out.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voltrade/voltbot/internal/decision"
	"github.com/voltrade/voltbot/internal/domain"
	"github.com/voltrade/voltbot/internal/market"
	"github.com/voltrade/voltbot/internal/notify"
	"github.com/voltrade/voltbot/internal/platform/unabated"
	"github.com/voltrade/voltbot/internal/position"
	"github.com/voltrade/voltbot/internal/vol"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultEvalWorkers  = 8
	defaultPollFailures = 5
	defaultBootstraps   = 5
	defaultStaleAge     = 2 * time.Minute

	// statsEvery spaces the periodic cycle-counter log lines.
	statsEvery = 5 * time.Minute

	intentChannel   = "intents"
	positionChannel = "positions"
	positionStream  = "positions"
)

// PnLReader supplies the running realized-PnL total shown on close alerts.
type PnLReader interface {
	SumPnLSince(ctx context.Context, since time.Time) (float64, error)
}

// RunnerConfig wires the polling loop. Feed, Market, and Vol are required.
// Decision, Table, and Manager are nil in monitor mode, which reduces the
// cycle to observation; a nil Quotes, Cooldown, Bus, Archiver, or PnL skips
// only the side effect it backs.
type RunnerConfig struct {
	Feed     domain.Feed
	Market   *market.Store
	Vol      *vol.Engine
	Decision *decision.Engine
	Table    *decision.Table
	Manager  *position.Manager
	Notifier *notify.Notifier
	Quotes   domain.LineCache
	Cooldown domain.Cooldown
	Bus      domain.Bus
	Archiver domain.PositionArchiver
	PnL      PnLReader
	Logger   *slog.Logger

	PollInterval           time.Duration
	Backoff                unabated.Backoff
	MaxConsecutiveFailures int
	MaxBootstrapAttempts   int
	EvalWorkers            int
	StalePriceAge          time.Duration
	AlertCooldown          time.Duration
}

// Status is a point-in-time snapshot of the loop, published once per cycle
// for the ops endpoints.
type Status struct {
	Halted        bool
	Cursor        domain.Cursor
	LastPollAt    time.Time // last successful poll or bootstrap
	FeedDownSince time.Time // zero while the feed is healthy

	Cycles       int64
	PollFailures int64
	Batches      int64
	LinesApplied int64
	Malformed    int64
	Intents      int64
	Opened       int64
	Closed       int64
}

// Runner owns the poll cycle. All fields are confined to the Run goroutine
// except the halted flag and the published status snapshot, which the ops
// surface reads.
type Runner struct {
	feed     domain.Feed
	market   *market.Store
	vol      *vol.Engine
	decision *decision.Engine
	table    *decision.Table
	manager  *position.Manager
	notifier *notify.Notifier
	quotes   domain.LineCache
	cooldown domain.Cooldown
	bus      domain.Bus
	archiver domain.PositionArchiver
	pnl      PnLReader
	logger   *slog.Logger

	pollInterval  time.Duration
	backoff       unabated.Backoff
	maxFailures   int
	maxBootstraps int
	evalWorkers   int
	staleAge      time.Duration
	alertTTL      time.Duration

	cursor     domain.Cursor
	failures   int // consecutive transient poll failures
	halted     atomic.Bool
	downSince  time.Time // zero while the feed is healthy
	lastPollAt time.Time
	status     atomic.Pointer[Status]

	stats     runStats
	lastStats time.Time
}

type runStats struct {
	cycles    int64
	pollFails int64
	batches   int64
	applied   int64
	malformed int64
	intents   int64
	opened    int64
	closed    int64
}

// NewRunner creates the pipeline runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.EvalWorkers <= 0 {
		cfg.EvalWorkers = defaultEvalWorkers
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = defaultPollFailures
	}
	if cfg.MaxBootstrapAttempts <= 0 {
		cfg.MaxBootstrapAttempts = defaultBootstraps
	}
	if cfg.StalePriceAge <= 0 {
		cfg.StalePriceAge = defaultStaleAge
	}
	r := &Runner{
		feed:          cfg.Feed,
		market:        cfg.Market,
		vol:           cfg.Vol,
		decision:      cfg.Decision,
		table:         cfg.Table,
		manager:       cfg.Manager,
		notifier:      cfg.Notifier,
		quotes:        cfg.Quotes,
		cooldown:      cfg.Cooldown,
		bus:           cfg.Bus,
		archiver:      cfg.Archiver,
		pnl:           cfg.PnL,
		logger:        logger.With(slog.String("component", "pipeline")),
		pollInterval:  cfg.PollInterval,
		backoff:       cfg.Backoff,
		maxFailures:   cfg.MaxConsecutiveFailures,
		maxBootstraps: cfg.MaxBootstrapAttempts,
		evalWorkers:   cfg.EvalWorkers,
		staleAge:      cfg.StalePriceAge,
		alertTTL:      cfg.AlertCooldown,
		lastStats:     time.Now().UTC(),
	}
	r.status.Store(&Status{})
	return r
}

// Halted reports whether feed polling has stopped for good. Exit monitoring
// keeps running either way.
func (r *Runner) Halted() bool {
	return r.halted.Load()
}

// Status returns the snapshot published at the end of the last cycle.
func (r *Runner) Status() Status {
	return *r.status.Load()
}

// publishStatus refreshes the snapshot. Called only from the Run goroutine.
func (r *Runner) publishStatus() {
	r.status.Store(&Status{
		Halted:        r.halted.Load(),
		Cursor:        r.cursor,
		LastPollAt:    r.lastPollAt,
		FeedDownSince: r.downSince,
		Cycles:        r.stats.cycles,
		PollFailures:  r.stats.pollFails,
		Batches:       r.stats.batches,
		LinesApplied:  r.stats.applied,
		Malformed:     r.stats.malformed,
		Intents:       r.stats.intents,
		Opened:        r.stats.opened,
		Closed:        r.stats.closed,
	})
}

// Run bootstraps the market state and polls for changes until the context is
// cancelled. The in-flight cycle finishes before Run returns, so fetched
// batches are never half applied.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("pipeline runner starting",
		slog.Duration("poll_interval", r.pollInterval),
		slog.Int("eval_workers", r.evalWorkers))

	if err := r.bootstrap(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("pipeline runner stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.cycle(ctx); err != nil {
				return err
			}
		}
	}
}

// bootstrap fetches the full snapshot, retrying transient failures with
// backoff. An auth or malformed-payload failure, or running out of attempts,
// halts trading instead of returning an error: the loop still has positions
// to watch. Hold deadlines are checked between attempts so a slow bootstrap
// never delays a timeout exit.
func (r *Runner) bootstrap(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if attempt >= r.maxBootstraps {
			r.halt(ctx, fmt.Sprintf("bootstrap failed %d times", attempt))
			return nil
		}

		snap, err := r.feed.Bootstrap(ctx)
		if err == nil {
			r.applySnapshot(ctx, snap)
			r.markRecovered(ctx)
			r.failures = 0
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.noteFeedDown(ctx, "bootstrap", err)
		if errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrMalformedData) {
			r.halt(ctx, "bootstrap: "+err.Error())
			return nil
		}

		delay := r.backoff.Next(attempt)
		r.logger.Warn("bootstrap failed",
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		r.runExits(ctx, time.Now().UTC())
	}
}

// applySnapshot installs a fresh market graph and reseeds signal windows and
// cached quotes from the snapshot's lines.
func (r *Runner) applySnapshot(ctx context.Context, snap domain.Snapshot) {
	r.market.ApplySnapshot(snap)
	r.cursor = snap.Cursor
	r.lastPollAt = time.Now().UTC()
	r.stats.malformed += int64(snap.Dropped)

	var lines []domain.MarketLine
	for _, upd := range snap.Updates {
		lines = append(lines, upd.Lines...)
	}
	r.observe(lines)
	r.cacheQuotes(ctx, lines)

	stats := r.market.Stats()
	r.logger.Info("bootstrap complete",
		slog.Int("events", stats.Events),
		slog.Int("lines", stats.Lines),
		slog.Int("partitions", stats.Partitions),
		slog.Int("dropped", snap.Dropped))
	r.publishStatus()
}

// cycle is one tick of the loop. Polling stops once halted; exit evaluation
// never does.
func (r *Runner) cycle(ctx context.Context) error {
	now := time.Now().UTC()
	r.stats.cycles++
	defer r.publishStatus()
	defer r.logStats(now)

	if r.halted.Load() {
		r.runExits(ctx, now)
		return nil
	}

	cs, err := r.feed.PollChanges(ctx, r.cursor)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if berr := r.pollFailed(ctx, err); berr != nil {
			return berr
		}
		r.runExits(ctx, time.Now().UTC())
		return nil
	}

	r.markRecovered(ctx)
	r.failures = 0
	r.cursor = cs.Cursor
	r.lastPollAt = now

	changed := r.applyBatches(ctx, cs.Batches)
	if len(changed) > 0 && r.decision != nil && r.table != nil && r.manager != nil && !r.halted.Load() {
		for _, intent := range r.decision.SelectIntents(r.evaluate(changed, now)) {
			r.enter(ctx, intent, now)
		}
	}
	r.runExits(ctx, now)
	return nil
}

// pollFailed classifies a poll error. Auth failures halt; an expired cursor
// forces a re-bootstrap so the same cursor is never polled twice; transient
// failures ride the tick cadence until the consecutive-failure cap forces a
// re-bootstrap of its own.
func (r *Runner) pollFailed(ctx context.Context, err error) error {
	r.stats.pollFails++
	r.noteFeedDown(ctx, "poll", err)

	switch {
	case errors.Is(err, domain.ErrAuth):
		r.halt(ctx, "poll: "+err.Error())
	case errors.Is(err, domain.ErrStaleCursor):
		r.logger.Warn("cursor expired, re-bootstrapping",
			slog.String("cursor", string(r.cursor)))
		return r.bootstrap(ctx)
	default:
		r.failures++
		r.logger.Warn("poll failed",
			slog.Int("consecutive", r.failures),
			slog.String("error", err.Error()))
		if r.failures >= r.maxFailures {
			r.logger.Warn("too many consecutive poll failures, re-bootstrapping",
				slog.Int("failures", r.failures))
			return r.bootstrap(ctx)
		}
	}
	return nil
}

// applyBatches applies every batch in order and returns the distinct lines
// that changed, in their final state. Terminal events release their signal
// windows.
func (r *Runner) applyBatches(ctx context.Context, batches []domain.ChangeBatch) []domain.LineID {
	seen := make(map[domain.LineID]struct{})
	var terminal []int64
	for _, batch := range batches {
		r.stats.batches++
		r.stats.malformed += int64(batch.Dropped)

		applied := r.market.ApplyChanges(batch)
		r.stats.applied += int64(len(applied))
		r.observe(applied)
		r.cacheQuotes(ctx, applied)
		for _, ln := range applied {
			seen[ln.ID] = struct{}{}
		}
		for _, upd := range batch.Updates {
			if upd.Status != nil && upd.Status.Terminal() {
				terminal = append(terminal, upd.EventID)
			}
		}
	}
	for _, id := range terminal {
		r.vol.DropEvent(id)
	}

	out := make([]domain.LineID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

func (r *Runner) observe(lines []domain.MarketLine) {
	for _, ln := range lines {
		if err := r.vol.Observe(ln.ID, ln.Points, ln.Price, ln.Format, ln.UpdatedAt); err != nil {
			r.logger.Debug("observe failed",
				slog.String("line", ln.ID.Key()),
				slog.String("error", err.Error()))
		}
	}
}

// cacheQuotes pushes last-known prices to the quote cache. Best effort: the
// first write failure abandons the pass and the next cycle retries.
func (r *Runner) cacheQuotes(ctx context.Context, lines []domain.MarketLine) {
	if r.quotes == nil {
		return
	}
	for _, ln := range lines {
		prob, err := vol.ImpliedProbability(ln.Price, ln.Format)
		if err != nil {
			prob = 0
		}
		q := domain.Quote{Points: ln.Points, Price: ln.Price, Prob: prob, UpdatedAt: ln.UpdatedAt}
		if err := r.quotes.SetQuote(ctx, ln.ID, q); err != nil {
			r.logger.Warn("quote cache write failed", slog.String("error", err.Error()))
			return
		}
	}
}

// evaluate runs the decision engine over the changed lines in parallel.
// Lines share no mutable state and the engine is safe for concurrent use, so
// the only coordination is collecting candidates.
func (r *Runner) evaluate(changed []domain.LineID, now time.Time) []domain.TradeIntent {
	var (
		mu         sync.Mutex
		candidates []domain.TradeIntent
	)

	var g errgroup.Group
	g.SetLimit(r.evalWorkers)
	for _, id := range changed {
		id := id
		g.Go(func() error {
			line, ok := r.market.Line(id)
			if !ok {
				return nil
			}
			event, ok := r.market.Event(id.EventID)
			if !ok {
				return nil
			}
			sig, ok := r.vol.ComputeSignal(id, now)
			if !ok {
				return nil
			}
			intent, ok := r.decision.Evaluate(line, event, sig, now)
			if !ok {
				return nil
			}
			mu.Lock()
			candidates = append(candidates, intent)
			mu.Unlock()
			return nil
		})
	}
	g.Wait() // workers never fail
	return candidates
}

// enter authorizes one selected intent and opens the position. Risk-limit
// rejections are expected traffic, logged and dropped.
func (r *Runner) enter(ctx context.Context, intent domain.TradeIntent, now time.Time) {
	r.stats.intents++

	authorized, err := r.decision.Authorize(ctx, intent)
	if err != nil {
		r.logger.Info("intent rejected",
			slog.String("line", intent.Line.Key()),
			slog.String("error", err.Error()))
		return
	}
	r.publishIntent(ctx, authorized)

	line, ok := r.market.Line(authorized.Line)
	if !ok {
		return
	}
	event, _ := r.market.Event(authorized.Line.EventID)
	params, ok := r.table.Lookup(authorized.League, authorized.Line.BetType, authorized.Line.PeriodType)
	if !ok {
		return
	}

	pos, err := r.manager.Open(ctx, position.Entry{
		Intent:  authorized,
		Line:    line,
		Event:   event,
		MaxHold: params.MaxHold,
	}, now)
	if err != nil {
		if errors.Is(err, domain.ErrRiskLimit) {
			r.logger.Info("entry blocked by risk limit",
				slog.String("line", authorized.Line.Key()),
				slog.String("error", err.Error()))
		} else {
			r.logger.Warn("entry failed",
				slog.String("line", authorized.Line.Key()),
				slog.String("error", err.Error()))
		}
		return
	}
	r.stats.opened++
	r.decision.MarkEntered(pos.Line, now)

	r.entryAlert(ctx, pos, line, event, now)
	r.publishLifecycle(ctx, notify.EventPositionOpened, pos, now)
}

// runExits evaluates the exit rules for every tracked position against the
// freshest views available and fans out the results. Runs every cycle, poll
// success or not: hold deadlines and armed stops must never wait on the
// feed.
func (r *Runner) runExits(ctx context.Context, now time.Time) {
	if r.manager == nil {
		return
	}
	tracked := r.manager.TrackedViews()
	if len(tracked) == 0 {
		return
	}

	views := r.buildViews(ctx, tracked, now)
	closed := r.manager.EvaluateExits(ctx, views, now)
	if len(closed) == 0 {
		return
	}
	r.stats.closed += int64(len(closed))

	for _, pos := range closed {
		r.exitAlert(ctx, pos, views[pos.ID], now)
		r.publishLifecycle(ctx, notify.EventPositionClosed, pos, now)
	}
	if r.archiver != nil {
		if err := r.archiver.ArchiveClosed(ctx, closed); err != nil {
			r.logger.Warn("archive failed",
				slog.Int("count", len(closed)),
				slog.String("error", err.Error()))
		}
	}
}

// buildViews assembles the per-position market view for exit evaluation. A
// line counts as a fresh exit price only when its last update is inside the
// staleness window; anything older falls back to the quote cache, which
// survives restarts and outages.
func (r *Runner) buildViews(ctx context.Context, tracked map[string]domain.LineID, now time.Time) map[string]domain.LineView {
	views := make(map[string]domain.LineView, len(tracked))
	var missing []domain.LineID

	for posID, lineID := range tracked {
		var view domain.LineView
		if event, ok := r.market.Event(lineID.EventID); ok {
			view.Event = &event
		}
		if sig, ok := r.vol.ComputeSignal(lineID, now); ok {
			view.Signal = &sig
		}
		if line, ok := r.market.Line(lineID); ok && r.fresh(line.UpdatedAt, now) {
			view.Line = &line
			if view.Event != nil && r.decision != nil {
				if dev, ok := r.decision.DeviationFor(line, *view.Event); ok {
					view.Deviation = &dev
				}
			}
		} else {
			missing = append(missing, lineID)
		}
		views[posID] = view
	}

	if len(missing) == 0 || r.quotes == nil {
		return views
	}
	quotes, err := r.quotes.GetQuotes(ctx, missing)
	if err != nil {
		r.logger.Warn("quote cache read failed", slog.String("error", err.Error()))
		return views
	}
	for posID, lineID := range tracked {
		view := views[posID]
		if view.Line != nil {
			continue
		}
		q, ok := quotes[lineID]
		if !ok || !r.fresh(q.UpdatedAt, now) {
			continue
		}
		// The cache stores prices in the feed's native American units.
		line := domain.MarketLine{
			ID:        lineID,
			Points:    q.Points,
			Price:     q.Price,
			Format:    domain.FormatAmerican,
			Status:    domain.LineAvailable,
			UpdatedAt: q.UpdatedAt,
		}
		view.Line = &line
		views[posID] = view
	}
	return views
}

// fresh reports whether a quote timestamp is recent enough to close on.
func (r *Runner) fresh(ts, now time.Time) bool {
	return !ts.IsZero() && now.Sub(ts) <= r.staleAge
}

// halt stops feed polling for good. Open positions stay managed: hold
// deadlines and armed stops keep firing off cached state.
func (r *Runner) halt(ctx context.Context, reason string) {
	if r.halted.Swap(true) {
		return
	}
	r.publishStatus()
	r.logger.Error("trading halted", slog.String("reason", reason))
	title, msg := notify.FormatTradingHalted(reason, time.Now().UTC())
	r.alert(ctx, "trading_halted", notify.EventTradingHalted, title, msg)
}

// noteFeedDown records the outage start and alerts once per outage.
func (r *Runner) noteFeedDown(ctx context.Context, stage string, err error) {
	if !r.downSince.IsZero() {
		return
	}
	r.downSince = time.Now().UTC()
	title, msg := notify.FormatFeedError(stage, err, r.downSince)
	r.alert(ctx, "feed_error", notify.EventFeedError, title, msg)
}

// markRecovered clears the outage marker and alerts when one was active.
func (r *Runner) markRecovered(ctx context.Context) {
	if r.downSince.IsZero() {
		return
	}
	now := time.Now().UTC()
	downFor := now.Sub(r.downSince)
	r.downSince = time.Time{}
	r.logger.Info("feed recovered", slog.Duration("down_for", downFor))
	title, msg := notify.FormatFeedRecovered(downFor, now)
	r.alert(ctx, "feed_recovered", notify.EventFeedRecovered, title, msg)
}

// entryAlert renders and sends the new-position alert.
func (r *Runner) entryAlert(ctx context.Context, pos domain.Position, line domain.MarketLine, event domain.Event, now time.Time) {
	if r.notifier == nil {
		return
	}
	away, home := r.market.TeamLabels(pos.Line.EventID)
	a := notify.EntryAlert{
		Position:  pos,
		Matchup:   notify.Matchup{Away: away, Home: home},
		Clock:     event.Clock,
		ScoreDiff: event.Margin(pos.Line.SideIndex),
		At:        now,
	}
	if live, expected, dev, ok := r.decision.VolContext(line, event); ok {
		a.LiveVol, a.ExpectedVol, a.Deviation = live, expected, dev
	}
	if prob, err := vol.ImpliedProbability(line.Price, line.Format); err == nil {
		a.CurrentProb = prob
	}
	title, msg := notify.FormatEntry(a)
	r.alert(ctx, "entry:"+pos.Line.Key(), notify.EventPositionOpened, title, msg)
}

// exitAlert renders and sends the position-closed alert.
func (r *Runner) exitAlert(ctx context.Context, pos domain.Position, view domain.LineView, now time.Time) {
	if r.notifier == nil {
		return
	}
	away, home := r.market.TeamLabels(pos.Line.EventID)
	a := notify.ExitAlert{
		Position: pos,
		Matchup:  notify.Matchup{Away: away, Home: home},
		At:       now,
	}
	if view.Event != nil {
		a.Clock = view.Event.Clock
		a.ScoreDiff = view.Event.Margin(pos.Line.SideIndex)
	}
	if view.Line != nil && view.Event != nil && r.decision != nil {
		if live, expected, _, ok := r.decision.VolContext(*view.Line, *view.Event); ok {
			a.LiveVol, a.ExpectedVol = live, expected
		}
		if prob, err := vol.ImpliedProbability(view.Line.Price, view.Line.Format); err == nil {
			a.CurrentProb = prob
		}
	}
	if r.pnl != nil {
		if total, err := r.pnl.SumPnLSince(ctx, time.Time{}); err == nil {
			a.TotalPnL = total
		}
	}
	title, msg := notify.FormatExit(a)
	r.alert(ctx, "exit:"+pos.ID, notify.EventPositionClosed, title, msg)
}

// alert dedups and sends one notification. The cooldown guard fails open: a
// cache error never swallows an alert.
func (r *Runner) alert(ctx context.Context, key, event, title, message string) {
	if r.notifier == nil {
		return
	}
	if r.cooldown != nil && r.alertTTL > 0 {
		ok, err := r.cooldown.Acquire(ctx, "alert:"+key, r.alertTTL)
		if err != nil {
			r.logger.Warn("alert cooldown check failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		} else if !ok {
			return
		}
	}
	if err := r.notifier.Notify(ctx, event, title, message); err != nil {
		r.logger.Warn("alert delivery failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

type intentEvent struct {
	Type      string    `json:"type"`
	IntentID  string    `json:"intent_id"`
	Line      string    `json:"line"`
	League    string    `json:"league"`
	Direction string    `json:"direction"`
	Size      float64   `json:"size"`
	Deviation float64   `json:"deviation"`
	At        time.Time `json:"at"`
}

// publishIntent announces an authorized intent on the pub/sub channel.
func (r *Runner) publishIntent(ctx context.Context, intent domain.TradeIntent) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(intentEvent{
		Type:      "intent",
		IntentID:  intent.ID,
		Line:      intent.Line.Key(),
		League:    intent.League.String(),
		Direction: string(intent.Direction),
		Size:      intent.Size,
		Deviation: intent.Deviation,
		At:        intent.CreatedAt,
	})
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, intentChannel, payload); err != nil {
		r.logger.Debug("intent publish failed", slog.String("error", err.Error()))
	}
}

type lifecycleEvent struct {
	Type       string    `json:"type"`
	PositionID string    `json:"position_id"`
	Line       string    `json:"line"`
	League     string    `json:"league"`
	Direction  string    `json:"direction"`
	Size       float64   `json:"size"`
	Reason     string    `json:"reason,omitempty"`
	PnL        *float64  `json:"pnl,omitempty"`
	Stale      bool      `json:"stale,omitempty"`
	At         time.Time `json:"at"`
}

// publishLifecycle mirrors a lifecycle transition to the pub/sub channel and
// the durable positions stream.
func (r *Runner) publishLifecycle(ctx context.Context, kind string, pos domain.Position, at time.Time) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(lifecycleEvent{
		Type:       kind,
		PositionID: pos.ID,
		Line:       pos.Line.Key(),
		League:     pos.League.String(),
		Direction:  string(pos.Direction),
		Size:       pos.Size,
		Reason:     string(pos.ExitReason),
		PnL:        pos.PnL,
		Stale:      pos.ClosedStale,
		At:         at,
	})
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, positionChannel, payload); err != nil {
		r.logger.Debug("lifecycle publish failed", slog.String("error", err.Error()))
	}
	if err := r.bus.StreamAppend(ctx, positionStream, payload); err != nil {
		r.logger.Debug("lifecycle stream append failed", slog.String("error", err.Error()))
	}
}

// logStats emits the cycle counters on a coarse interval.
func (r *Runner) logStats(now time.Time) {
	if now.Sub(r.lastStats) < statsEvery {
		return
	}
	r.lastStats = now
	ms := r.market.Stats()
	r.logger.Info("pipeline stats",
		slog.Int64("cycles", r.stats.cycles),
		slog.Int64("poll_failures", r.stats.pollFails),
		slog.Int64("batches", r.stats.batches),
		slog.Int64("lines_applied", r.stats.applied),
		slog.Int64("malformed_dropped", r.stats.malformed),
		slog.Int64("intents", r.stats.intents),
		slog.Int64("opened", r.stats.opened),
		slog.Int64("closed", r.stats.closed),
		slog.Int("events", ms.Events),
		slog.Int("lines", ms.Lines),
		slog.Int64("stale_drops", ms.StaleDrops),
		slog.Int("tracked_windows", r.vol.TrackedLines()),
		slog.Bool("halted", r.halted.Load()))
}
