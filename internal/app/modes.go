package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voltrade/voltbot/internal/decision"
	"github.com/voltrade/voltbot/internal/domain"
	"github.com/voltrade/voltbot/internal/market"
	"github.com/voltrade/voltbot/internal/pipeline"
	"github.com/voltrade/voltbot/internal/platform/unabated"
	"github.com/voltrade/voltbot/internal/position"
	"github.com/voltrade/voltbot/internal/server"
	"github.com/voltrade/voltbot/internal/server/handler"
	"github.com/voltrade/voltbot/internal/service"
	"github.com/voltrade/voltbot/internal/vol"
)

// TradeMode runs the full trading loop: feed polling, volatility tracking,
// entry decisions, position management, periodic reports, and the ops server.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)

	feed := a.newFeedClient()
	marketStore := market.NewStore()
	volEngine := vol.NewEngine(a.cfg.Engine.WindowSize, a.cfg.Engine.WindowMaxAge.Duration)

	table := decision.NewTable(a.cfg.Leagues, a.cfg.Trading.PregameEntries)
	engine := decision.NewEngine(decision.EngineConfig{
		Table:   table,
		Market:  marketStore,
		Advisor: deps.Advisor,
		Limiter: deps.RateLimiter,
		Logger:  a.logger,

		Bankroll:      a.cfg.Trading.Bankroll,
		BaseSizePct:   a.cfg.Trading.BaseSizePct,
		MaxSizePct:    a.cfg.Trading.MaxSizePct,
		EntryCooldown: a.cfg.Trading.EntryCooldown.Duration,
		ReversionFrac: a.cfg.Trading.ReversionFrac,
		BlowoutPoints: a.cfg.Trading.BlowoutPoints,

		AdvisoryMinConfidence: a.cfg.Advisory.MinConfidence,
		AdvisoryTimeout:       a.cfg.Advisory.Timeout.Duration,
		AdvisoryRatePerMin:    a.cfg.Advisory.RateLimitPerMin,
	})

	manager := position.NewManager(position.ManagerConfig{
		Store:   deps.PositionStore,
		Audit:   deps.AuditStore,
		Adviser: engine,
		Logger:  a.logger,

		Bankroll:     a.cfg.Trading.Bankroll,
		MaxPositions: a.cfg.Trading.MaxPositions,
		MaxLeaguePct: a.cfg.Trading.MaxLeaguePct,
		MaxEventPct:  a.cfg.Trading.MaxEventPct,
		StopLossMult: a.cfg.Trading.StopLossMult,
		ExitGrace:    a.cfg.Trading.ExitGrace.Duration,
	})

	// Open positions survive restarts. Reload them before the first poll so
	// exposure limits and hold deadlines resume where they left off.
	restored, err := manager.Rehydrate(ctx)
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}
	if restored > 0 {
		a.logger.InfoContext(ctx, "restored open positions", slog.Int("count", restored))
	}

	rc := a.runnerConfig(feed, marketStore, volEngine, deps)
	rc.Decision = engine
	rc.Table = table
	rc.Manager = manager
	rc.Archiver = deps.Archiver
	rc.PnL = deps.PositionStore
	runner := pipeline.NewRunner(rc)
	g.Go(func() error {
		return runner.Run(ctx)
	})

	reporter := service.NewReportService(marketStore, deps.PositionStore, manager, deps.Notifier, a.cfg.Report.PregameTopN, a.logger)
	g.Go(func() error {
		return reporter.Run(ctx, a.cfg.Report.SummaryInterval.Duration, a.cfg.Report.PregameInterval.Duration)
	})

	if a.cfg.Server.Enabled {
		a.startOpsServer(ctx, g, deps, runner, marketStore, volEngine, manager)
	}

	return g.Wait()
}

// MonitorMode runs the same polling loop in observation form: market state,
// volatility windows, pregame digests, and feed alerts, with no database and
// no entries.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	feed := a.newFeedClient()
	marketStore := market.NewStore()
	volEngine := vol.NewEngine(a.cfg.Engine.WindowSize, a.cfg.Engine.WindowMaxAge.Duration)

	runner := pipeline.NewRunner(a.runnerConfig(feed, marketStore, volEngine, deps))
	g.Go(func() error {
		return runner.Run(ctx)
	})

	// With no position store the performance digest reports zeros; the
	// pregame digest carries the mode.
	reporter := service.NewReportService(marketStore, nil, nil, deps.Notifier, a.cfg.Report.PregameTopN, a.logger)
	g.Go(func() error {
		return reporter.Run(ctx, a.cfg.Report.SummaryInterval.Duration, a.cfg.Report.PregameInterval.Duration)
	})

	if a.cfg.Server.Enabled {
		a.startOpsServer(ctx, g, deps, runner, marketStore, volEngine, nil)
	}

	return g.Wait()
}

// runnerConfig assembles the poll-loop wiring shared by both modes. Trade
// mode fills in the decision and position dependencies afterwards.
func (a *App) runnerConfig(feed domain.Feed, store *market.Store, engine *vol.Engine, deps *Dependencies) pipeline.RunnerConfig {
	return pipeline.RunnerConfig{
		Feed:     feed,
		Market:   store,
		Vol:      engine,
		Notifier: deps.Notifier,
		Quotes:   deps.Quotes,
		Cooldown: deps.Cooldown,
		Bus:      deps.Bus,
		Logger:   a.logger,

		PollInterval: a.cfg.Feed.PollInterval.Duration,
		Backoff: unabated.Backoff{
			Min:    a.cfg.Feed.BackoffMin.Duration,
			Max:    a.cfg.Feed.BackoffMax.Duration,
			Factor: a.cfg.Feed.BackoffFactor,
		},
		MaxConsecutiveFailures: a.cfg.Feed.MaxConsecutiveFailures,
		MaxBootstrapAttempts:   a.cfg.Feed.MaxBootstrapAttempts,
		EvalWorkers:            a.cfg.Engine.EvalWorkers,
		StalePriceAge:          a.cfg.Engine.StalePriceAge.Duration,
		AlertCooldown:          a.cfg.Notify.AlertCooldown.Duration,
	}
}

// newFeedClient builds the odds feed client from config.
func (a *App) newFeedClient() *unabated.Client {
	return unabated.NewClient(a.cfg.Feed.BaseURL, a.cfg.Feed.APIKey, a.cfg.Feed.RequestTimeout.Duration)
}

// startOpsServer adds the read-only HTTP surface to the errgroup. manager is
// nil in monitor mode; routes whose backing dependency is missing are not
// registered. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startOpsServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	runner *pipeline.Runner,
	marketStore *market.Store,
	volEngine *vol.Engine,
	manager *position.Manager,
) {
	var positions handler.PositionSource
	var exposure handler.ExposureView
	if manager != nil {
		positions = manager
		exposure = manager
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(),
		Status:    handler.NewStatusHandler(a.cfg.Mode, runner, marketStore, volEngine, exposure),
		Positions: handler.NewPositionHandler(positions),
		Markets:   handler.NewMarketHandler(marketStore),
		Events:    handler.NewEventsHandler(deps.Bus, "positions", a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.BlobReader, a.cfg.Archive.Prefix, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:      a.cfg.Server.Port,
		APIKey:    a.cfg.Server.APIKey,
		RateLimit: a.cfg.Server.RateLimit,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
