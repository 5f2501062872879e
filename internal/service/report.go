package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/voltrade/voltbot/internal/domain"
	"github.com/voltrade/voltbot/internal/market"
	"github.com/voltrade/voltbot/internal/notify"
	"github.com/voltrade/voltbot/internal/position"
	"github.com/voltrade/voltbot/internal/vol"
)

// ClosedPnLStore is the slice of the position store the reporter reads.
type ClosedPnLStore interface {
	ListClosedSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.Position, error)
	SumPnLSince(ctx context.Context, since time.Time) (float64, error)
}

// ExposureView reports current open-position exposure.
type ExposureView interface {
	Exposure() position.Exposure
}

// ReportService produces the periodic operator digests: a performance
// summary from the position store and a pregame volatility summary from the
// market state. In monitor mode store and exposure are nil and the
// performance digest reports zeros.
type ReportService struct {
	market   *market.Store
	store    ClosedPnLStore
	exposure ExposureView
	notifier *notify.Notifier
	topN     int
	logger   *slog.Logger

	// lastSummary anchors the performance window. Run owns it; it advances
	// only when a summary was actually delivered.
	lastSummary time.Time
}

// NewReportService creates a ReportService. topN caps the games per league in
// the pregame digest.
func NewReportService(
	marketStore *market.Store,
	store ClosedPnLStore,
	exposure ExposureView,
	notifier *notify.Notifier,
	topN int,
	logger *slog.Logger,
) *ReportService {
	if topN <= 0 {
		topN = 5
	}
	return &ReportService{
		market:      marketStore,
		store:       store,
		exposure:    exposure,
		notifier:    notifier,
		topN:        topN,
		logger:      logger.With(slog.String("component", "report")),
		lastSummary: time.Now().UTC(),
	}
}

// Run emits digests on their configured cadences until the context ends. An
// interval of zero disables that digest. Call in a goroutine.
func (s *ReportService) Run(ctx context.Context, summaryEvery, pregameEvery time.Duration) error {
	var summaryC, pregameC <-chan time.Time
	if summaryEvery > 0 {
		t := time.NewTicker(summaryEvery)
		defer t.Stop()
		summaryC = t.C
	}
	if pregameEvery > 0 {
		t := time.NewTicker(pregameEvery)
		defer t.Stop()
		pregameC = t.C
	}
	if summaryC == nil && pregameC == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-summaryC:
			if err := s.SendPerformanceSummary(ctx, now.UTC()); err != nil {
				s.logger.ErrorContext(ctx, "performance summary failed", slog.String("error", err.Error()))
			}
		case now := <-pregameC:
			if err := s.SendPregameSummary(ctx, now.UTC()); err != nil {
				s.logger.ErrorContext(ctx, "pregame summary failed", slog.String("error", err.Error()))
			}
		}
	}
}

// PerformanceSummary assembles the digest for the window since the last
// summary.
func (s *ReportService) PerformanceSummary(ctx context.Context, now time.Time) (notify.SummaryReport, error) {
	report := notify.SummaryReport{At: now}

	if s.exposure != nil {
		exp := s.exposure.Exposure()
		report.OpenPositions = exp.Positions
		report.OpenExposure = exp.Total
	}

	if s.store != nil {
		closed, err := s.store.ListClosedSince(ctx, s.lastSummary, domain.ListOpts{})
		if err != nil {
			return notify.SummaryReport{}, fmt.Errorf("report: list closed: %w", err)
		}
		report.ClosedCount = len(closed)

		period, err := s.store.SumPnLSince(ctx, s.lastSummary)
		if err != nil {
			return notify.SummaryReport{}, fmt.Errorf("report: period pnl: %w", err)
		}
		report.PeriodPnL = period

		total, err := s.store.SumPnLSince(ctx, time.Time{})
		if err != nil {
			return notify.SummaryReport{}, fmt.Errorf("report: total pnl: %w", err)
		}
		report.TotalPnL = total
	}

	return report, nil
}

// SendPerformanceSummary builds and delivers the performance digest, then
// advances the summary window. Delivery failures are logged, not returned:
// the window still advances so a flaky channel cannot pile up giant reports.
func (s *ReportService) SendPerformanceSummary(ctx context.Context, now time.Time) error {
	report, err := s.PerformanceSummary(ctx, now)
	if err != nil {
		return err
	}

	title, msg := notify.FormatSummary(report)
	if err := s.notifier.Notify(ctx, notify.EventSummary, title, msg); err != nil {
		s.logger.WarnContext(ctx, "summary delivery failed", slog.String("error", err.Error()))
	}
	s.lastSummary = now
	return nil
}

// leagueOrder fixes the pregame digest's league ordering.
var leagueOrder = []domain.League{domain.LeagueNFL, domain.LeagueNBA, domain.LeagueCBB}

// pregameRow pairs a digest row with its ranking key.
type pregameRow struct {
	eventID int64
	rank    float64
	game    notify.PregameGame
}

// PregameVols scans full-game pregame markets and returns the biggest
// implied-vol games per league, at most topN each, ranked by the larger of
// the two sides' vols.
func (s *ReportService) PregameVols() []notify.PregameLeague {
	out := make([]notify.PregameLeague, 0, len(leagueOrder))
	for _, lg := range leagueOrder {
		rows := s.leaguePregameRows(lg)
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].rank != rows[j].rank {
				return rows[i].rank > rows[j].rank
			}
			return rows[i].eventID < rows[j].eventID
		})
		if len(rows) > s.topN {
			rows = rows[:s.topN]
		}
		games := make([]notify.PregameGame, 0, len(rows))
		for _, r := range rows {
			games = append(games, r.game)
		}
		out = append(out, notify.PregameLeague{Name: lg.String(), Games: games})
	}
	return out
}

// leaguePregameRows builds one candidate row per scheduled event that has a
// resolvable spread and moneyline quote on both sides.
func (s *ReportService) leaguePregameRows(lg domain.League) []pregameRow {
	part := domain.PartitionKey{League: lg, PeriodType: domain.PeriodFullGame, Scope: domain.ScopePregame}
	lines := s.market.LinesInPartition(part)
	if len(lines) == 0 {
		return nil
	}

	// One spread and one moneyline quote per event side, lowest source id as
	// the consensus anchor.
	type sideQuotes struct {
		spread *domain.MarketLine
		money  *domain.MarketLine
	}
	quotes := make(map[int64]*[2]sideQuotes)
	for i := range lines {
		line := lines[i]
		if line.Status != domain.LineAvailable || line.SourceUnresolved || line.ID.AlternateNumber != 0 {
			continue
		}
		side := line.ID.SideIndex
		if side < 0 || side > 1 {
			continue
		}
		ev := quotes[line.ID.EventID]
		if ev == nil {
			ev = &[2]sideQuotes{}
			quotes[line.ID.EventID] = ev
		}
		switch line.ID.BetType {
		case domain.BetSpread:
			if ev[side].spread == nil || line.ID.SourceID < ev[side].spread.ID.SourceID {
				cp := line
				ev[side].spread = &cp
			}
		case domain.BetMoneyline:
			if ev[side].money == nil || line.ID.SourceID < ev[side].money.ID.SourceID {
				cp := line
				ev[side].money = &cp
			}
		}
	}

	var rows []pregameRow
	for eventID, ev := range quotes {
		gameEv, ok := s.market.Event(eventID)
		if !ok || gameEv.Status != domain.EventScheduled {
			continue
		}
		away, home := ev[0], ev[1]
		if away.spread == nil || away.money == nil || home.spread == nil || home.money == nil {
			continue
		}
		awayVol, okA := sidePregameVol(*away.spread, *away.money, 0)
		homeVol, okH := sidePregameVol(*home.spread, *home.money, 1)
		if !okA || !okH {
			continue
		}

		awayName, homeName := s.market.TeamLabels(eventID)
		rows = append(rows, pregameRow{
			eventID: eventID,
			rank:    math.Max(awayVol, homeVol),
			game: notify.PregameGame{
				Matchup:   notify.Matchup{Away: awayName, Home: homeName},
				Spread:    home.spread.Points,
				HomeVol:   homeVol,
				AwayVol:   awayVol,
				HomePrice: home.money.Price,
				AwayPrice: away.money.Price,
			},
		})
	}
	return rows
}

// sidePregameVol converts one side's spread and moneyline quotes into its
// pregame implied vol. Pick-em and unparseable quotes report false.
func sidePregameVol(spread, money domain.MarketLine, sideIndex int) (float64, bool) {
	prob, err := vol.ImpliedProbability(money.Price, money.Format)
	if err != nil {
		return 0, false
	}
	iv, err := vol.PregameImpliedVol(spread.Points, prob, sideIndex)
	if err != nil {
		return 0, false
	}
	return iv, true
}

// SendPregameSummary delivers the pregame digest when at least one game
// qualifies.
func (s *ReportService) SendPregameSummary(ctx context.Context, now time.Time) error {
	leagues := s.PregameVols()
	total := 0
	for _, lg := range leagues {
		total += len(lg.Games)
	}
	if total == 0 {
		s.logger.DebugContext(ctx, "no pregame games to report")
		return nil
	}

	title, msg := notify.FormatPregameSummary(leagues, now)
	if err := s.notifier.Notify(ctx, notify.EventPregameSummary, title, msg); err != nil {
		s.logger.WarnContext(ctx, "pregame summary delivery failed", slog.String("error", err.Error()))
	}
	return nil
}
