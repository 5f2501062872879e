package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voltrade/voltbot/internal/config"
	"github.com/voltrade/voltbot/internal/decision"
	"github.com/voltrade/voltbot/internal/domain"
	"github.com/voltrade/voltbot/internal/market"
	"github.com/voltrade/voltbot/internal/notify"
	"github.com/voltrade/voltbot/internal/platform/unabated"
	"github.com/voltrade/voltbot/internal/position"
	"github.com/voltrade/voltbot/internal/vol"
)

const (
	testEventID = int64(701)
	awayTeamID  = int64(201)
	homeTeamID  = int64(202)
)

var (
	livePartition = domain.PartitionKey{
		League:     domain.LeagueNFL,
		PeriodType: domain.PeriodFullGame,
		Scope:      domain.ScopeLive,
	}
	testLineID = domain.LineID{
		EventID:    testEventID,
		SideIndex:  0,
		BetType:    domain.BetSpread,
		PeriodType: domain.PeriodFullGame,
		Scope:      domain.ScopeLive,
		SourceID:   1,
	}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type bootResult struct {
	snap domain.Snapshot
	err  error
}

type pollResult struct {
	set domain.ChangeSet
	err error
}

// scriptFeed replays a fixed sequence of bootstrap and poll outcomes. Once
// the poll script is exhausted it signals idle and echoes empty change sets.
type scriptFeed struct {
	mu       sync.Mutex
	boots    []bootResult
	polls    []pollResult
	bootHits int
	cursors  []domain.Cursor

	idle     chan struct{}
	idleOnce sync.Once
}

func newScriptFeed(boots []bootResult, polls []pollResult) *scriptFeed {
	return &scriptFeed{boots: boots, polls: polls, idle: make(chan struct{})}
}

func (f *scriptFeed) Bootstrap(_ context.Context) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.bootHits
	f.bootHits++
	if i >= len(f.boots) {
		i = len(f.boots) - 1
	}
	return f.boots[i].snap, f.boots[i].err
}

func (f *scriptFeed) PollChanges(_ context.Context, cursor domain.Cursor) (domain.ChangeSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cursor)
	if len(f.polls) == 0 {
		f.idleOnce.Do(func() { close(f.idle) })
		return domain.ChangeSet{Cursor: cursor}, nil
	}
	next := f.polls[0]
	f.polls = f.polls[1:]
	return next.set, next.err
}

func (f *scriptFeed) bootstraps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bootHits
}

func (f *scriptFeed) polled() []domain.Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Cursor, len(f.cursors))
	copy(out, f.cursors)
	return out
}

type fakeStore struct {
	mu   sync.Mutex
	rows map[string]domain.Position
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]domain.Position)}
}

func (s *fakeStore) Create(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[pos.ID] = pos
	return nil
}

func (s *fakeStore) MarkClosing(_ context.Context, id string, reason domain.ExitReason, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	pos.State = domain.PositionClosing
	pos.ExitReason = reason
	pos.ClosingAt = &at
	s.rows[id] = pos
	return nil
}

func (s *fakeStore) CloseOut(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[pos.ID] = pos
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.rows[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (s *fakeStore) ListOpen(_ context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, pos := range s.rows {
		if pos.State != domain.PositionClosed {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (s *fakeStore) ListClosedSince(_ context.Context, _ time.Time, _ domain.ListOpts) ([]domain.Position, error) {
	return s.closed(), nil
}

func (s *fakeStore) SumPnLSince(_ context.Context, _ time.Time) (float64, error) {
	var sum float64
	for _, pos := range s.closed() {
		if pos.PnL != nil {
			sum += *pos.PnL
		}
	}
	return sum, nil
}

func (s *fakeStore) closed() []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, pos := range s.rows {
		if pos.State == domain.PositionClosed {
			out = append(out, pos)
		}
	}
	return out
}

type captureSender struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (c *captureSender) Send(_ context.Context, title, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
	c.bodies = append(c.bodies, message)
	return nil
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) countTitle(title string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.titles {
		if t == title {
			n++
		}
	}
	return n
}

func (c *captureSender) hasTitle(title string) bool { return c.countTitle(title) > 0 }

func (c *captureSender) allTitles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.titles))
	copy(out, c.titles)
	return out
}

func (c *captureSender) bodyContaining(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.bodies {
		if strings.Contains(b, substr) {
			return true
		}
	}
	return false
}

type fakeBus struct {
	mu       sync.Mutex
	channels map[string]int
	streams  map[string]int
}

func newFakeBus() *fakeBus {
	return &fakeBus{channels: make(map[string]int), streams: make(map[string]int)}
}

func (b *fakeBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels[channel]++
	return nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream]++
	return nil
}

func (b *fakeBus) StreamRead(_ context.Context, _ string, _ string, _ int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) published(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[channel]
}

func (b *fakeBus) appended(stream string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams[stream]
}

type fakeQuotes struct {
	mu   sync.Mutex
	data map[domain.LineID]domain.Quote
	sets int
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{data: make(map[domain.LineID]domain.Quote)}
}

func (q *fakeQuotes) SetQuote(_ context.Context, line domain.LineID, quote domain.Quote) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data[line] = quote
	q.sets++
	return nil
}

func (q *fakeQuotes) GetQuote(_ context.Context, line domain.LineID) (domain.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	quote, ok := q.data[line]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return quote, nil
}

func (q *fakeQuotes) GetQuotes(_ context.Context, lines []domain.LineID) (map[domain.LineID]domain.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[domain.LineID]domain.Quote)
	for _, id := range lines {
		if quote, ok := q.data[id]; ok {
			out[id] = quote
		}
	}
	return out, nil
}

func (q *fakeQuotes) setCalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sets
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived int
}

func (a *fakeArchiver) ArchiveClosed(_ context.Context, positions []domain.Position) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived += len(positions)
	return nil
}

func (a *fakeArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.archived
}

type rigOpts struct {
	staleAge time.Duration // 0 means 30m
	monitor  bool          // no decision engine or manager
}

type rig struct {
	feed     *scriptFeed
	store    *fakeStore
	market   *market.Store
	vol      *vol.Engine
	manager  *position.Manager
	sender   *captureSender
	bus      *fakeBus
	quotes   *fakeQuotes
	archiver *fakeArchiver
	runner   *Runner
}

func newRig(feed *scriptFeed, opts rigOpts) *rig {
	logger := testLogger()
	mkt := market.NewStore()
	volEng := vol.NewEngine(4, 30*time.Minute)
	sender := &captureSender{}
	bus := newFakeBus()
	quotes := newFakeQuotes()
	archiver := &fakeArchiver{}

	staleAge := opts.staleAge
	if staleAge <= 0 {
		staleAge = 30 * time.Minute
	}

	cfg := RunnerConfig{
		Feed:                   feed,
		Market:                 mkt,
		Vol:                    volEng,
		Notifier:               notify.NewNotifier([]notify.Sender{sender}, nil, logger),
		Quotes:                 quotes,
		Bus:                    bus,
		Logger:                 logger,
		PollInterval:           2 * time.Millisecond,
		Backoff:                unabated.Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2},
		MaxConsecutiveFailures: 3,
		MaxBootstrapAttempts:   3,
		EvalWorkers:            4,
		StalePriceAge:          staleAge,
	}

	out := &rig{
		feed: feed, store: newFakeStore(), market: mkt, vol: volEng,
		sender: sender, bus: bus, quotes: quotes, archiver: archiver,
	}
	if !opts.monitor {
		table := decision.NewTable(map[string]config.LeagueConfig{
			"nfl": {
				RegulationMinutes:   60,
				VolThresholdPct:     2.0,
				SizeMultiplier:      1.0,
				MaxHoldMinutes:      60,
				MinConfidence:       0.5,
				MinDispersion:       0.52,
				DirectionConstraint: "both",
			},
		}, false)
		eng := decision.NewEngine(decision.EngineConfig{
			Table:         table,
			Market:        mkt,
			Logger:        logger,
			Bankroll:      10000,
			BaseSizePct:   0.02,
			MaxSizePct:    0.05,
			ReversionFrac: 0.3,
			BlowoutPoints: 14,
		})
		out.manager = position.NewManager(position.ManagerConfig{
			Store:        out.store,
			Adviser:      eng,
			Logger:       logger,
			Bankroll:     10000,
			MaxPositions: 5,
			MaxLeaguePct: 0.5,
			MaxEventPct:  0.4,
			StopLossMult: 2.5,
		})
		cfg.Decision = eng
		cfg.Table = table
		cfg.Manager = out.manager
		cfg.Archiver = archiver
		cfg.PnL = out.store
	}
	out.runner = NewRunner(cfg)
	return out
}

// start runs the loop in the background and returns a stop function that
// cancels it and waits for a clean return.
func (r *rig) start(t *testing.T) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.runner.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("runner did not stop")
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func liveSnapshot(cursor domain.Cursor) domain.Snapshot {
	status := domain.EventLive
	clock := "12:00"
	period := 1
	start := time.Now().UTC().Add(-30 * time.Minute)
	return domain.Snapshot{
		Cursor: cursor,
		Teams: map[int64]domain.Team{
			awayTeamID: {ID: awayTeamID, League: domain.LeagueNFL, Name: "Denver", Abbreviation: "DEN"},
			homeTeamID: {ID: homeTeamID, League: domain.LeagueNFL, Name: "Kansas City", Abbreviation: "KC"},
		},
		Sources: map[int]domain.MarketSource{
			1: {ID: 1, Name: "Pinnacle", Active: true},
		},
		Updates: []domain.EventUpdate{{
			Partition: livePartition,
			EventID:   testEventID,
			Status:    &status,
			Start:     &start,
			Clock:     &clock,
			Period:    &period,
			Scores: []domain.TeamScore{
				{SideIndex: 0, TeamID: awayTeamID, Score: 10},
				{SideIndex: 1, TeamID: homeTeamID, Score: 7},
			},
		}},
	}
}

func linePoll(cursor domain.Cursor, seq int64, points, price float64, ts time.Time) pollResult {
	return pollResult{set: domain.ChangeSet{
		Cursor: cursor,
		Batches: []domain.ChangeBatch{{
			Updates: []domain.EventUpdate{{
				Partition: livePartition,
				EventID:   testEventID,
				Lines: []domain.MarketLine{{
					ID:        testLineID,
					Points:    points,
					Price:     price,
					Format:    domain.FormatAmerican,
					Status:    domain.LineAvailable,
					Sequence:  seq,
					UpdatedAt: ts,
				}},
			}},
		}},
	}}
}

// entryPolls walks the spread through enough movement to clear the
// dispersion floor, drifting away from the offense: a buy-vol entry.
func entryPolls(cursor domain.Cursor, base time.Time) []pollResult {
	return []pollResult{
		linePoll(cursor, 1, -3.5, -110, base),
		linePoll(cursor, 2, -4.5, -112, base.Add(time.Minute)),
		linePoll(cursor, 3, -5.0, -115, base.Add(2*time.Minute)),
		linePoll(cursor, 4, -4.0, -109, base.Add(3*time.Minute)),
	}
}

func finalPoll(cursor domain.Cursor, withLine bool, ts time.Time) pollResult {
	status := domain.EventFinal
	upd := domain.EventUpdate{
		Partition: livePartition,
		EventID:   testEventID,
		Status:    &status,
		Scores: []domain.TeamScore{
			{SideIndex: 0, Score: 17},
			{SideIndex: 1, Score: 14},
		},
	}
	if withLine {
		upd.Lines = []domain.MarketLine{{
			ID:        testLineID,
			Points:    -4.2,
			Price:     -118,
			Format:    domain.FormatAmerican,
			Status:    domain.LineAvailable,
			Sequence:  5,
			UpdatedAt: ts,
		}}
	}
	return pollResult{set: domain.ChangeSet{
		Cursor:  cursor,
		Batches: []domain.ChangeBatch{{Updates: []domain.EventUpdate{upd}}},
	}}
}

func TestRunnerOpensPositionFromDriftSignal(t *testing.T) {
	base := time.Now().UTC().Add(-3 * time.Minute)
	feed := newScriptFeed(
		[]bootResult{{snap: liveSnapshot("cur-1")}},
		entryPolls("cur-1", base),
	)
	r := newRig(feed, rigOpts{})
	stop := r.start(t)
	defer stop()

	waitFor(t, "position open", func() bool {
		return len(r.manager.OpenPositions()) == 1
	})
	<-feed.idle

	positions := r.manager.OpenPositions()
	if len(positions) != 1 {
		t.Fatalf("open positions = %d, want 1", len(positions))
	}
	pos := positions[0]
	if pos.Direction != domain.DirectionBuyVol {
		t.Errorf("direction = %s, want %s", pos.Direction, domain.DirectionBuyVol)
	}
	if pos.Line != testLineID {
		t.Errorf("line = %s, want %s", pos.Line.Key(), testLineID.Key())
	}
	if pos.Size <= 0 || pos.Size > 500 {
		t.Errorf("size = %.2f, want within (0, 500]", pos.Size)
	}
	if pos.EntryDeviation != 0 {
		t.Errorf("entry deviation = %.2f, want 0 for a drift entry", pos.EntryDeviation)
	}

	if !r.sender.hasTitle("🚨 New Trade Alert") {
		t.Errorf("no entry alert sent; titles captured: %v", r.sender.allTitles())
	}
	if got := r.bus.published(intentChannel); got == 0 {
		t.Errorf("no intents published")
	}
	if got := r.bus.appended(positionStream); got == 0 {
		t.Errorf("no lifecycle events appended to stream")
	}
	if got := r.quotes.setCalls(); got < 4 {
		t.Errorf("quote cache writes = %d, want >= 4", got)
	}
}

func TestRunnerRebootstrapsOnStaleCursor(t *testing.T) {
	feed := newScriptFeed(
		[]bootResult{
			{snap: liveSnapshot("cur-1")},
			{snap: liveSnapshot("cur-2")},
		},
		[]pollResult{{err: fmt.Errorf("unabated: changes: %w", domain.ErrStaleCursor)}},
	)
	r := newRig(feed, rigOpts{})
	stop := r.start(t)
	defer stop()

	<-feed.idle

	cursors := feed.polled()
	if len(cursors) == 0 || cursors[0] != "cur-1" {
		t.Fatalf("first poll cursor = %v, want cur-1", cursors)
	}
	for _, c := range cursors[1:] {
		if c == "cur-1" {
			t.Fatalf("expired cursor polled again: %v", cursors)
		}
	}
	waitFor(t, "second bootstrap", func() bool { return feed.bootstraps() == 2 })
	if r.runner.Halted() {
		t.Errorf("runner halted on a recoverable cursor expiry")
	}
	if !r.sender.hasTitle("⚠️ Feed Error") || !r.sender.hasTitle("✅ Feed Recovered") {
		t.Errorf("missing outage alerts; titles captured: %v", r.sender.allTitles())
	}
}

func TestRunnerClosesOnEventFinal(t *testing.T) {
	base := time.Now().UTC().Add(-3 * time.Minute)
	polls := entryPolls("cur-1", base)
	polls = append(polls, finalPoll("cur-1", true, time.Now().UTC()))
	feed := newScriptFeed([]bootResult{{snap: liveSnapshot("cur-1")}}, polls)
	r := newRig(feed, rigOpts{})
	stop := r.start(t)
	defer stop()

	waitFor(t, "position closed", func() bool { return len(r.store.closed()) == 1 })
	<-feed.idle

	pos := r.store.closed()[0]
	if pos.ExitReason != domain.ExitEventFinal {
		t.Errorf("exit reason = %s, want %s", pos.ExitReason, domain.ExitEventFinal)
	}
	if pos.ClosedStale {
		t.Errorf("closed stale despite a fresh exit price")
	}
	if pos.ExitPrice == nil {
		t.Errorf("exit price not recorded")
	} else if *pos.ExitPrice != -118 {
		t.Errorf("exit price = %.0f, want -118", *pos.ExitPrice)
	}
	if len(r.manager.OpenPositions()) != 0 {
		t.Errorf("position still tracked after close")
	}
	if !r.sender.hasTitle("💰 Position Closed") {
		t.Errorf("no close alert sent; titles captured: %v", r.sender.allTitles())
	}
	if r.archiver.count() != 1 {
		t.Errorf("archived = %d, want 1", r.archiver.count())
	}
}

func TestRunnerClosesStaleWhenFinalArrivesWithoutPrice(t *testing.T) {
	// Quotes last moved five minutes ago, past the staleness window, so the
	// terminal close has no fresh exit price and must flag the stale path.
	base := time.Now().UTC().Add(-8 * time.Minute)
	polls := entryPolls("cur-1", base)
	polls = append(polls, finalPoll("cur-1", false, time.Time{}))
	feed := newScriptFeed([]bootResult{{snap: liveSnapshot("cur-1")}}, polls)
	r := newRig(feed, rigOpts{staleAge: 3 * time.Minute})
	stop := r.start(t)
	defer stop()

	waitFor(t, "position closed", func() bool { return len(r.store.closed()) == 1 })

	pos := r.store.closed()[0]
	if pos.ExitReason != domain.ExitEventFinal {
		t.Errorf("exit reason = %s, want %s", pos.ExitReason, domain.ExitEventFinal)
	}
	if !pos.ClosedStale {
		t.Errorf("expected a stale close with no fresh exit price")
	}
	if pos.ExitPrice != nil {
		t.Errorf("exit price = %.0f, want none", *pos.ExitPrice)
	}
	if pos.PnL == nil || *pos.PnL != 0 {
		t.Errorf("pnl = %v, want 0 for an unknown exit deviation", pos.PnL)
	}
	waitFor(t, "stale close alert", func() bool {
		return r.sender.bodyContaining("No fresh market data")
	})
}

func TestRunnerHaltsOnAuthFailure(t *testing.T) {
	feed := newScriptFeed(
		[]bootResult{{snap: liveSnapshot("cur-1")}},
		[]pollResult{{err: fmt.Errorf("unabated: changes: %w", domain.ErrAuth)}},
	)
	r := newRig(feed, rigOpts{})
	stop := r.start(t)
	defer stop()

	waitFor(t, "halt alert", func() bool { return r.sender.hasTitle("🛑 Trading Halted") })
	if !r.runner.Halted() {
		t.Fatalf("runner not halted after auth failure")
	}

	before := len(feed.polled())
	time.Sleep(25 * time.Millisecond)
	if after := len(feed.polled()); after != before {
		t.Errorf("polling continued after halt: %d -> %d", before, after)
	}
}

func TestRunnerHaltsWhenBootstrapExhausted(t *testing.T) {
	feed := newScriptFeed(
		[]bootResult{{err: fmt.Errorf("unabated: snapshot: %w", domain.ErrTransient)}},
		nil,
	)
	r := newRig(feed, rigOpts{})
	stop := r.start(t)
	defer stop()

	waitFor(t, "halt alert", func() bool { return r.sender.hasTitle("🛑 Trading Halted") })
	if got := feed.bootstraps(); got != 3 {
		t.Errorf("bootstrap attempts = %d, want 3", got)
	}
	if got := len(feed.polled()); got != 0 {
		t.Errorf("polled %d times without a bootstrap", got)
	}
	if got := r.sender.countTitle("⚠️ Feed Error"); got != 1 {
		t.Errorf("feed error alerts = %d, want 1 per outage", got)
	}
}

func TestRunnerAlertsOnOutageAndRecovery(t *testing.T) {
	feed := newScriptFeed(
		[]bootResult{{snap: liveSnapshot("cur-1")}},
		[]pollResult{
			{set: domain.ChangeSet{Cursor: "cur-1"}},
			{err: fmt.Errorf("unabated: changes: %w", domain.ErrTransient)},
			{set: domain.ChangeSet{Cursor: "cur-1"}},
		},
	)
	r := newRig(feed, rigOpts{})
	stop := r.start(t)
	defer stop()

	<-feed.idle
	waitFor(t, "recovery alert", func() bool { return r.sender.hasTitle("✅ Feed Recovered") })

	if got := r.sender.countTitle("⚠️ Feed Error"); got != 1 {
		t.Errorf("feed error alerts = %d, want 1", got)
	}
	if got := feed.bootstraps(); got != 1 {
		t.Errorf("bootstraps = %d, want 1 for a single transient failure", got)
	}
	if r.runner.Halted() {
		t.Errorf("halted on a transient failure")
	}
}

func TestRunnerMonitorModeObservesWithoutTrading(t *testing.T) {
	base := time.Now().UTC().Add(-3 * time.Minute)
	feed := newScriptFeed(
		[]bootResult{{snap: liveSnapshot("cur-1")}},
		entryPolls("cur-1", base),
	)
	r := newRig(feed, rigOpts{monitor: true})
	stop := r.start(t)
	defer stop()

	<-feed.idle

	waitFor(t, "lines applied", func() bool { return r.market.Stats().AppliedLines == 4 })
	if got := r.vol.TrackedLines(); got != 1 {
		t.Errorf("tracked windows = %d, want 1", got)
	}
	r.store.mu.Lock()
	rows := len(r.store.rows)
	r.store.mu.Unlock()
	if rows != 0 {
		t.Errorf("positions created in monitor mode: %d", rows)
	}
	if r.sender.hasTitle("🚨 New Trade Alert") {
		t.Errorf("entry alert sent in monitor mode")
	}
	if got := r.quotes.setCalls(); got < 4 {
		t.Errorf("quote cache writes = %d, want >= 4", got)
	}
}
