package decision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/voltrade/voltbot/internal/config"
	"github.com/voltrade/voltbot/internal/domain"
	"github.com/voltrade/voltbot/internal/market"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(store *market.Store, opts ...func(*EngineConfig)) *Engine {
	cfg := EngineConfig{
		Table:                 NewTable(config.Defaults().Leagues, false),
		Market:                store,
		Logger:                testLogger(),
		Bankroll:              10_000,
		BaseSizePct:           0.05,
		MaxSizePct:            0.20,
		EntryCooldown:         10 * time.Minute,
		ReversionFrac:         0.3,
		BlowoutPoints:         14,
		AdvisoryMinConfidence: 0.7,
		AdvisoryTimeout:       50 * time.Millisecond,
		AdvisoryRatePerMin:    6,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewEngine(cfg)
}

func spreadID(event int64, side int, scope domain.MarketScope, source int) domain.LineID {
	return domain.LineID{
		EventID:    event,
		SideIndex:  side,
		BetType:    domain.BetSpread,
		PeriodType: domain.PeriodFullGame,
		Scope:      scope,
		SourceID:   source,
	}
}

func moneylineID(event int64, side int, scope domain.MarketScope, source int) domain.LineID {
	return domain.LineID{
		EventID:    event,
		SideIndex:  side,
		BetType:    domain.BetMoneyline,
		PeriodType: domain.PeriodFullGame,
		Scope:      scope,
		SourceID:   source,
	}
}

func quote(id domain.LineID, points, price float64) domain.MarketLine {
	return domain.MarketLine{
		ID:       id,
		Points:   points,
		Price:    price,
		Format:   domain.FormatAmerican,
		Status:   domain.LineAvailable,
		Sequence: 1,
	}
}

func driftSignal(id domain.LineID, drift float64, now time.Time) domain.VolSignal {
	return domain.VolSignal{
		Line:       id,
		Dispersion: 0.8,
		Drift:      drift,
		Confidence: 0.8,
		Samples:    6,
		LastMetric: -3.5,
		ComputedAt: now,
	}
}

// deviationFixture seeds a store with two live NFL games and their pregame
// anchors. Both quote the away side -3.5 at -150 with a -150 moneyline, so
// with 45 minutes of game time remaining the expected live margin path is
// 2.625 points. Event 501 has the away side up 7 (vol well above the decay
// path), event 502 up 1 (vol well below it). A second pregame book at worse
// numbers checks that the lowest source id anchors the reference.
func deviationFixture() *market.Store {
	pregame := domain.PartitionKey{League: domain.LeagueNFL, PeriodType: domain.PeriodFullGame, Scope: domain.ScopePregame}
	live := domain.PartitionKey{League: domain.LeagueNFL, PeriodType: domain.PeriodFullGame, Scope: domain.ScopeLive}

	liveStatus := domain.EventLive
	clock := "15:00"
	period := 2

	var updates []domain.EventUpdate
	for _, ev := range []struct {
		id        int64
		awayScore int
	}{
		{id: 501, awayScore: 27},
		{id: 502, awayScore: 21},
	} {
		updates = append(updates,
			domain.EventUpdate{
				Partition: pregame,
				EventID:   ev.id,
				Lines: []domain.MarketLine{
					quote(spreadID(ev.id, 0, domain.ScopePregame, 1), -3.5, -150),
					quote(spreadID(ev.id, 0, domain.ScopePregame, 7), -7.0, -200),
					quote(moneylineID(ev.id, 0, domain.ScopePregame, 1), 0, -150),
				},
			},
			domain.EventUpdate{
				Partition: live,
				EventID:   ev.id,
				Status:    &liveStatus,
				Clock:     &clock,
				Period:    &period,
				Scores: []domain.TeamScore{
					{SideIndex: 0, TeamID: 11, Score: ev.awayScore},
					{SideIndex: 1, TeamID: 12, Score: 20},
				},
				Lines: []domain.MarketLine{
					quote(spreadID(ev.id, 0, domain.ScopeLive, 7), -3.5, -150),
				},
			},
		)
	}

	store := market.NewStore()
	store.ApplySnapshot(domain.Snapshot{
		Cursor: "c1",
		Sources: map[int]domain.MarketSource{
			1: {ID: 1, Name: "Pinnacle", Active: true},
			7: {ID: 7, Name: "Caesars", Active: true},
		},
		Updates: updates,
	})
	return store
}

func TestEvaluateSellSignalFromDeviation(t *testing.T) {
	store := deviationFixture()
	eng := newTestEngine(store)
	now := time.Now()

	id := spreadID(501, 0, domain.ScopeLive, 7)
	line, ok := store.Line(id)
	if !ok {
		t.Fatalf("live line not in store")
	}
	event, _ := store.Event(501)

	// Drift is negative here: a computable deviation must override it.
	intent, ok := eng.Evaluate(line, event, driftSignal(id, -0.5, now), now)
	if !ok {
		t.Fatalf("expected an intent")
	}
	if intent.Direction != domain.DirectionSellVol {
		t.Errorf("direction = %s, want %s", intent.Direction, domain.DirectionSellVol)
	}
	// Live vol sits at 5/3 of the decayed pregame vol: +66.67%.
	if math.Abs(intent.Deviation-66.667) > 0.05 {
		t.Errorf("deviation = %.3f, want ~66.667", intent.Deviation)
	}
	if intent.League != domain.LeagueNFL {
		t.Errorf("league = %v, want NFL", intent.League)
	}
	// 5% base, NFL multiplier 1.0, confidence 0.8, deviation factor capped
	// at 2: 8% of a 10k bankroll.
	if math.Abs(intent.Size-800) > 1e-9 {
		t.Errorf("size = %.4f, want 800", intent.Size)
	}
	if intent.ID == "" {
		t.Errorf("intent id not assigned")
	}
	if intent.Line != id {
		t.Errorf("intent line = %v, want %v", intent.Line, id)
	}
}

func TestEvaluateBuySignalFromDeviation(t *testing.T) {
	store := deviationFixture()
	eng := newTestEngine(store)
	now := time.Now()

	id := spreadID(502, 0, domain.ScopeLive, 7)
	line, _ := store.Line(id)
	event, _ := store.Event(502)

	intent, ok := eng.Evaluate(line, event, driftSignal(id, 0.5, now), now)
	if !ok {
		t.Fatalf("expected an intent")
	}
	if intent.Direction != domain.DirectionBuyVol {
		t.Errorf("direction = %s, want %s", intent.Direction, domain.DirectionBuyVol)
	}
	if math.Abs(intent.Deviation-(-38.095)) > 0.05 {
		t.Errorf("deviation = %.3f, want ~-38.095", intent.Deviation)
	}
}

func TestEvaluateDeviationBelowThresholdRejects(t *testing.T) {
	store := deviationFixture()
	table := NewTable(config.Defaults().Leagues, false)
	params, _ := table.Lookup(domain.LeagueNFL, domain.BetSpread, domain.PeriodFullGame)
	params.VolThreshold = 80
	table.SetRow(domain.LeagueNFL, domain.BetSpread, domain.PeriodFullGame, params)

	eng := newTestEngine(store, func(cfg *EngineConfig) { cfg.Table = table })
	now := time.Now()

	id := spreadID(501, 0, domain.ScopeLive, 7)
	line, _ := store.Line(id)
	event, _ := store.Event(501)

	// 66.67% is under the 80% row threshold; a computable deviation that
	// misses the bar rejects outright, it never falls back to drift.
	if _, ok := eng.Evaluate(line, event, driftSignal(id, -0.5, now), now); ok {
		t.Fatalf("expected rejection below the deviation threshold")
	}
}

func TestEvaluateDriftFallback(t *testing.T) {
	eng := newTestEngine(market.NewStore())
	now := time.Now()

	id := moneylineID(601, 0, domain.ScopeLive, 7)
	line := quote(id, 0, -150)
	event := domain.Event{ID: 601, League: domain.LeagueNFL, Status: domain.EventLive, Clock: "5:00", Period: 3}

	tests := []struct {
		name    string
		drift   float64
		wantOK  bool
		wantDir domain.Direction
	}{
		{name: "rising metric sells vol", drift: 0.4, wantOK: true, wantDir: domain.DirectionSellVol},
		{name: "falling metric buys vol", drift: -0.4, wantOK: true, wantDir: domain.DirectionBuyVol},
		{name: "flat drift rejects", drift: 0, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, ok := eng.Evaluate(line, event, driftSignal(id, tt.drift, now), now)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if intent.Direction != tt.wantDir {
				t.Errorf("direction = %s, want %s", intent.Direction, tt.wantDir)
			}
			if intent.Deviation != 0 {
				t.Errorf("deviation = %v, want 0 on the drift channel", intent.Deviation)
			}
			// No deviation factor on the drift channel: 5% x 0.8 confidence.
			if math.Abs(intent.Size-400) > 1e-9 {
				t.Errorf("size = %.4f, want 400", intent.Size)
			}
		})
	}
}

func TestEvaluateEligibilityGates(t *testing.T) {
	eng := newTestEngine(market.NewStore())
	now := time.Now()

	id := moneylineID(601, 0, domain.ScopeLive, 7)
	goodLine := quote(id, 0, -150)
	liveEvent := domain.Event{ID: 601, League: domain.LeagueNFL, Status: domain.EventLive, Clock: "5:00", Period: 3}

	unavailable := goodLine
	unavailable.Status = domain.LineUnavailable
	unresolved := goodLine
	unresolved.SourceUnresolved = true

	eventWith := func(status domain.EventStatus) domain.Event {
		ev := liveEvent
		ev.Status = status
		return ev
	}

	tests := []struct {
		name  string
		line  domain.MarketLine
		event domain.Event
	}{
		{name: "final event", line: goodLine, event: eventWith(domain.EventFinal)},
		{name: "cancelled event", line: goodLine, event: eventWith(domain.EventCancelled)},
		{name: "postponed event", line: goodLine, event: eventWith(domain.EventPostponed)},
		{name: "live line on a delayed event", line: goodLine, event: eventWith(domain.EventDelayed)},
		{name: "line not quoted", line: unavailable, event: liveEvent},
		{name: "undeclared source", line: unresolved, event: liveEvent},
		{name: "untracked league", line: goodLine, event: domain.Event{ID: 601, League: domain.League(2), Status: domain.EventLive}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := eng.Evaluate(tt.line, tt.event, driftSignal(id, 0.4, now), now); ok {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestEvaluateWindowThresholds(t *testing.T) {
	eng := newTestEngine(market.NewStore())
	now := time.Now()

	id := moneylineID(601, 0, domain.ScopeLive, 7)
	line := quote(id, 0, -150)
	event := domain.Event{ID: 601, League: domain.LeagueNFL, Status: domain.EventLive, Clock: "5:00", Period: 3}

	weak := driftSignal(id, 0.4, now)
	weak.Confidence = 0.4
	if _, ok := eng.Evaluate(line, event, weak, now); ok {
		t.Errorf("expected rejection below the confidence floor")
	}

	flat := driftSignal(id, 0.4, now)
	flat.Dispersion = 0.4
	if _, ok := eng.Evaluate(line, event, flat, now); ok {
		t.Errorf("expected rejection below the dispersion floor")
	}
}

func TestEvaluatePregameScopeGate(t *testing.T) {
	now := time.Now()
	id := moneylineID(601, 0, domain.ScopePregame, 7)
	line := quote(id, 0, -150)
	event := domain.Event{ID: 601, League: domain.LeagueNFL, Status: domain.EventScheduled}

	closed := newTestEngine(market.NewStore())
	if _, ok := closed.Evaluate(line, event, driftSignal(id, 0.4, now), now); ok {
		t.Fatalf("pregame entry taken while disabled")
	}

	open := newTestEngine(market.NewStore(), func(cfg *EngineConfig) {
		cfg.Table = NewTable(config.Defaults().Leagues, true)
	})
	if _, ok := open.Evaluate(line, event, driftSignal(id, 0.4, now), now); !ok {
		t.Fatalf("pregame entry rejected while enabled")
	}
}

func TestEvaluateDirectionConstraint(t *testing.T) {
	table := NewTable(config.Defaults().Leagues, false)
	params, _ := table.Lookup(domain.LeagueNFL, domain.BetMoneyline, domain.PeriodFullGame)
	params.Direction = ConstraintSellOnly
	table.SetRow(domain.LeagueNFL, domain.BetMoneyline, domain.PeriodFullGame, params)

	eng := newTestEngine(market.NewStore(), func(cfg *EngineConfig) { cfg.Table = table })
	now := time.Now()

	id := moneylineID(601, 0, domain.ScopeLive, 7)
	line := quote(id, 0, -150)
	event := domain.Event{ID: 601, League: domain.LeagueNFL, Status: domain.EventLive, Clock: "5:00", Period: 3}

	if _, ok := eng.Evaluate(line, event, driftSignal(id, -0.4, now), now); ok {
		t.Errorf("buy intent admitted by a sell-only row")
	}
	if _, ok := eng.Evaluate(line, event, driftSignal(id, 0.4, now), now); !ok {
		t.Errorf("sell intent rejected by a sell-only row")
	}
}

func TestEntryCooldownPerLineGroup(t *testing.T) {
	eng := newTestEngine(market.NewStore())
	now := time.Now()

	id := moneylineID(601, 0, domain.ScopeLive, 7)
	line := quote(id, 0, -150)
	event := domain.Event{ID: 601, League: domain.LeagueNFL, Status: domain.EventLive, Clock: "5:00", Period: 3}
	sig := driftSignal(id, 0.4, now)

	// Evaluation alone never arms the cooldown: a rejected intent must not
	// block the next cycle's attempt.
	if _, ok := eng.Evaluate(line, event, sig, now); !ok {
		t.Fatalf("first evaluation rejected")
	}
	if _, ok := eng.Evaluate(line, event, sig, now); !ok {
		t.Fatalf("re-evaluation without an entry rejected")
	}

	eng.MarkEntered(id, now)
	if _, ok := eng.Evaluate(line, event, sig, now.Add(5*time.Minute)); ok {
		t.Errorf("entry admitted during cooldown")
	}

	// Another book quoting the same group shares the cooldown.
	other := quote(moneylineID(601, 0, domain.ScopeLive, 1), 0, -145)
	otherSig := driftSignal(other.ID, 0.4, now)
	if _, ok := eng.Evaluate(other, event, otherSig, now.Add(5*time.Minute)); ok {
		t.Errorf("sibling source admitted during cooldown")
	}

	if _, ok := eng.Evaluate(line, event, sig, now.Add(15*time.Minute)); !ok {
		t.Errorf("entry rejected after cooldown expired")
	}
}

func TestSelectIntentsLowestSourceWinsDeterministically(t *testing.T) {
	now := time.Now()
	mk := func(event int64, source int) domain.TradeIntent {
		id := moneylineID(event, 0, domain.ScopeLive, source)
		return domain.TradeIntent{
			ID:        id.Key(),
			Line:      id,
			League:    domain.LeagueNFL,
			Direction: domain.DirectionSellVol,
			Size:      100,
			CreatedAt: now,
		}
	}

	a7, a1 := mk(601, 7), mk(601, 1)
	b36 := mk(602, 36)

	eng := newTestEngine(market.NewStore())
	orders := [][]domain.TradeIntent{
		{a7, a1, b36},
		{b36, a1, a7},
		{a1, b36, a7},
	}
	for i, in := range orders {
		got := eng.SelectIntents(in)
		if len(got) != 2 {
			t.Fatalf("order %d: got %d intents, want 2", i, len(got))
		}
		// Output is ordered by line identity; event 601 sorts first.
		if got[0].Line != a1.Line {
			t.Errorf("order %d: winner = %v, want source 1", i, got[0].Line)
		}
		if got[1].Line != b36.Line {
			t.Errorf("order %d: second = %v, want event 602", i, got[1].Line)
		}
	}

	if got := eng.SelectIntents(nil); got != nil {
		t.Errorf("empty candidates produced %v", got)
	}
}

type stubAdvisor struct {
	opinion domain.Opinion
	err     error
	block   bool
	gotReq  *domain.AdvisoryRequest
}

func (a *stubAdvisor) Advise(ctx context.Context, req domain.AdvisoryRequest) (domain.Opinion, error) {
	if a.gotReq != nil {
		*a.gotReq = req
	}
	if a.block {
		<-ctx.Done()
		return domain.Opinion{}, ctx.Err()
	}
	return a.opinion, a.err
}

func (a *stubAdvisor) Name() string { return "stub" }

type stubLimiter struct {
	allow bool
	err   error
}

func (l stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.allow, l.err
}

func testIntent() domain.TradeIntent {
	id := moneylineID(601, 0, domain.ScopeLive, 7)
	return domain.TradeIntent{
		ID:        "intent-1",
		Line:      id,
		League:    domain.LeagueNFL,
		Direction: domain.DirectionSellVol,
		Size:      400,
		Deviation: 12,
		CreatedAt: time.Now(),
	}
}

func TestAuthorizeWithoutAdvisorPassesThrough(t *testing.T) {
	eng := newTestEngine(market.NewStore())
	intent := testIntent()
	got, err := eng.Authorize(context.Background(), intent)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if got.ID != intent.ID || got.Size != intent.Size {
		t.Errorf("intent altered without an advisor: %+v", got)
	}
}

func TestAuthorizeAdvisoryOutcomes(t *testing.T) {
	intent := testIntent()

	tests := []struct {
		name     string
		advisor  *stubAdvisor
		wantErr  bool
		wantIs   error
		wantSize float64
	}{
		{
			name:     "proceed keeps size",
			advisor:  &stubAdvisor{opinion: domain.Opinion{Recommendation: domain.AdviceProceed, Confidence: 0.9}},
			wantSize: 400,
		},
		{
			name:     "opinion shrinks size",
			advisor:  &stubAdvisor{opinion: domain.Opinion{Recommendation: domain.AdviceProceed, Confidence: 0.9, Size: 150}},
			wantSize: 150,
		},
		{
			name:     "opinion never grows size",
			advisor:  &stubAdvisor{opinion: domain.Opinion{Recommendation: domain.AdviceProceed, Confidence: 0.9, Size: 900}},
			wantSize: 400,
		},
		{
			name:    "explicit reject",
			advisor: &stubAdvisor{opinion: domain.Opinion{Recommendation: domain.AdviceReject, Confidence: 0.9}},
			wantErr: true,
		},
		{
			name:    "confidence below floor",
			advisor: &stubAdvisor{opinion: domain.Opinion{Recommendation: domain.AdviceProceed, Confidence: 0.3}},
			wantErr: true,
		},
		{
			name:    "advisor error rejects",
			advisor: &stubAdvisor{err: errors.New("upstream unavailable")},
			wantErr: true,
		},
		{
			name:    "timeout maps to the advisory sentinel",
			advisor: &stubAdvisor{block: true},
			wantErr: true,
			wantIs:  domain.ErrAdvisoryTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(market.NewStore(), func(cfg *EngineConfig) {
				cfg.Advisor = tt.advisor
				cfg.AdvisoryTimeout = 20 * time.Millisecond
			})
			got, err := eng.Authorize(context.Background(), intent)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error")
				}
				if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
					t.Fatalf("error = %v, want %v", err, tt.wantIs)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authorize: %v", err)
			}
			if got.Size != tt.wantSize {
				t.Errorf("size = %v, want %v", got.Size, tt.wantSize)
			}
		})
	}
}

func TestAuthorizeRateLimitFailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		limiter stubLimiter
	}{
		{name: "limit reached", limiter: stubLimiter{allow: false}},
		{name: "limiter backend error", limiter: stubLimiter{allow: true, err: errors.New("connection refused")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(market.NewStore(), func(cfg *EngineConfig) {
				cfg.Advisor = &stubAdvisor{opinion: domain.Opinion{Recommendation: domain.AdviceProceed, Confidence: 0.9}}
				cfg.Limiter = tt.limiter
			})
			_, err := eng.Authorize(context.Background(), testIntent())
			if !errors.Is(err, domain.ErrRiskLimit) {
				t.Fatalf("error = %v, want ErrRiskLimit", err)
			}
		})
	}
}

func TestAuthorizeBuildsRequestContext(t *testing.T) {
	var req domain.AdvisoryRequest
	eng := newTestEngine(deviationFixture(), func(cfg *EngineConfig) {
		cfg.Advisor = &stubAdvisor{
			opinion: domain.Opinion{Recommendation: domain.AdviceProceed, Confidence: 0.9},
			gotReq:  &req,
		}
	})

	intent := testIntent()
	intent.Line = spreadID(501, 0, domain.ScopeLive, 7)
	if _, err := eng.Authorize(context.Background(), intent); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if req.Intent.ID != intent.ID {
		t.Errorf("request intent = %q, want %q", req.Intent.ID, intent.ID)
	}
	if req.Event.ID != 501 {
		t.Errorf("request event = %d, want 501", req.Event.ID)
	}
	if req.SourceName != "Caesars" {
		t.Errorf("source name = %q, want Caesars", req.SourceName)
	}
}

func fptr(v float64) *float64 { return &v }

func TestEvaluateExitReversion(t *testing.T) {
	eng := newTestEngine(market.NewStore())
	pos := domain.Position{
		Line:           moneylineID(601, 0, domain.ScopeLive, 7),
		EntryDeviation: 50,
	}

	tests := []struct {
		name     string
		view     domain.LineView
		wantExit bool
	}{
		{name: "reverted inside the fraction", view: domain.LineView{Deviation: fptr(14)}, wantExit: true},
		{name: "reverted negative side", view: domain.LineView{Deviation: fptr(-12)}, wantExit: true},
		{name: "still stretched", view: domain.LineView{Deviation: fptr(20)}, wantExit: false},
		{name: "no current deviation", view: domain.LineView{}, wantExit: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, exit := eng.EvaluateExit(pos, tt.view)
			if exit != tt.wantExit {
				t.Fatalf("exit = %v, want %v", exit, tt.wantExit)
			}
			if exit && reason != domain.ExitSignal {
				t.Errorf("reason = %s, want %s", reason, domain.ExitSignal)
			}
		})
	}

	// A drift-channel entry has no deviation to revert.
	flat := pos
	flat.EntryDeviation = 0
	if _, exit := eng.EvaluateExit(flat, domain.LineView{Deviation: fptr(0.01)}); exit {
		t.Errorf("reversion fired on a zero entry deviation")
	}
}

func TestEvaluateExitBlowout(t *testing.T) {
	eng := newTestEngine(market.NewStore())

	event := func(away, home int) *domain.Event {
		return &domain.Event{
			ID:     601,
			League: domain.LeagueNFL,
			Status: domain.EventLive,
			Teams:  [2]domain.EventTeam{{Score: away}, {Score: home}},
		}
	}

	tests := []struct {
		name     string
		side     int
		entry    [2]int
		view     *domain.Event
		wantExit bool
	}{
		{name: "away side blown out", side: 0, entry: [2]int{10, 7}, view: event(31, 7), wantExit: true},
		{name: "home side blown out", side: 1, entry: [2]int{10, 7}, view: event(10, 35), wantExit: true},
		{name: "margin moved within range", side: 0, entry: [2]int{10, 7}, view: event(20, 7), wantExit: false},
		{name: "no event this cycle", side: 0, entry: [2]int{10, 7}, view: nil, wantExit: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := domain.Position{
				Line:       moneylineID(601, tt.side, domain.ScopeLive, 7),
				EntryScore: tt.entry,
			}
			_, exit := eng.EvaluateExit(pos, domain.LineView{Event: tt.view})
			if exit != tt.wantExit {
				t.Fatalf("exit = %v, want %v", exit, tt.wantExit)
			}
		})
	}
}
