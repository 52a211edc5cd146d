package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/whalewatch/internal/pipeline"
	"github.com/alanyoungcy/whalewatch/internal/server"
	"github.com/alanyoungcy/whalewatch/internal/server/handler"
	"github.com/alanyoungcy/whalewatch/internal/server/ws"
	"github.com/alanyoungcy/whalewatch/internal/service"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// services holds the three long-lived services every mode is built from.
type services struct {
	discovery *service.DiscoveryService
	collector *service.CollectorService
	analysis  *service.AnalysisService
}

// buildServices creates the services over deps. Rendered sentiment tables are
// written to console when it is non-nil.
func (a *App) buildServices(deps *Dependencies, console io.Writer) services {
	discovery := service.NewDiscoveryService(
		deps.Exchange, deps.TraderStore, deps.AuditStore, a.cfg.Discovery.MaxTraders, a.logger,
	)

	var collectorOpts []service.CollectorOption
	if deps.LockManager != nil {
		collectorOpts = append(collectorOpts, service.WithCollectorLock(deps.LockManager))
	}
	if a.cfg.Collector.ArchiveRaw && deps.Archiver != nil {
		collectorOpts = append(collectorOpts, service.WithFillArchiver(deps.Archiver))
	}
	collector := service.NewCollectorService(
		deps.Exchange, deps.TraderStore, deps.FillStore, deps.AuditStore,
		a.cfg.Collector.Concurrency, a.logger, collectorOpts...,
	)

	analysisDeps := service.AnalysisDeps{
		Fills:       deps.FillStore,
		Traders:     deps.TraderStore,
		Signals:     deps.SignalStore,
		Audit:       deps.AuditStore,
		Market:      deps.Exchange,
		MarketCache: deps.MarketCache,
		Bus:         deps.SignalBus,
		Locker:      deps.LockManager,
		Dedup:       deps.Dedup,
		Sinks:       deps.Sinks,
		Console:     console,
	}
	if deps.Dispatcher != nil {
		analysisDeps.Dispatcher = deps.Dispatcher
	}
	analysis := service.NewAnalysisService(service.AnalysisConfig{
		MinTradeValue:   a.cfg.Analysis.MinTradeValue,
		ConsensusWindow: a.cfg.Analysis.ConsensusWindow.Duration,
		RecentWindow:    a.cfg.Analysis.RecentWindow.Duration,
		TrackNewTrades:  a.cfg.Analysis.TrackNewTrades,
		MarketCtxTTL:    a.cfg.Analysis.MarketCtxTTL.Duration,
	}, analysisDeps, a.logger)

	return services{discovery: discovery, collector: collector, analysis: analysis}
}

// DiscoverMode refreshes the tracked trader set once.
func (a *App) DiscoverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting discover mode")

	svc := a.buildServices(deps, nil)
	traders, err := svc.discovery.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("discover mode: %w", err)
	}
	for i, t := range traders {
		a.logger.InfoContext(ctx, "tracked trader",
			slog.Int("rank", i+1),
			slog.String("address", t.Address),
			slog.Float64("pnl", t.PnL),
		)
	}
	return nil
}

// CollectMode refreshes the stored fills of every tracked trader once.
func (a *App) CollectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting collect mode")

	svc := a.buildServices(deps, nil)
	res, err := svc.collector.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collect mode: %w", err)
	}
	a.logger.InfoContext(ctx, "collect mode finished",
		slog.Int("traders", res.Traders),
		slog.Int("failed", len(res.Failed)),
		slog.Int("fills", res.Fills),
		slog.Int64("pruned", res.Pruned),
		slog.Bool("skipped", res.Skipped),
	)
	return nil
}

// AnalyzeMode runs one analysis cycle over the stored fills and prints the
// sentiment tables to stdout.
func (a *App) AnalyzeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting analyze mode")

	svc := a.buildServices(deps, os.Stdout)
	res, err := svc.analysis.RunCycle(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("analyze mode: %w", err)
	}
	a.logger.InfoContext(ctx, "analyze mode finished",
		slog.Int("consensus", len(res.Consensus)),
		slog.Int("new_trades", len(res.NewTrades)),
		slog.Any("reports", res.Reports),
		slog.Bool("no_weights", res.NoWeights),
		slog.Duration("elapsed", res.Elapsed),
	)
	return nil
}

// ServeMode serves the API over whatever the pipeline of another process has
// stored. The analysis trigger is unavailable.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildServices(deps, nil)
	a.startHTTPServer(ctx, g, deps, svc.analysis, nil)
	return g.Wait()
}

// RunMode runs the discovery, collector and analysis loops together with the
// API server.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting run mode")

	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildServices(deps, nil)

	triggerCh := make(chan struct{}, 1)
	orch := pipeline.NewOrchestrator(
		svc.discovery, svc.collector, svc.analysis,
		pipeline.Intervals{
			Discovery: a.cfg.Discovery.Interval.Duration,
			Collect:   a.cfg.Collector.Interval.Duration,
			Analysis:  a.cfg.Analysis.Interval.Duration,
		},
		a.logger,
	).WithTriggerChannel(triggerCh)

	g.Go(func() error {
		return orch.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, svc.analysis, triggerCh)
	return g.Wait()
}

// startHTTPServer registers the API server, and the websocket hub when a
// signal bus is wired, on g. The server shuts down when ctx is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	analysis *service.AnalysisService,
	triggerCh chan<- struct{},
) {
	startedAt := time.Now().UTC()

	ph := handler.NewPipelineHandler(a.logger)
	if triggerCh != nil {
		ph = ph.WithTriggerChannel(triggerCh)
	}
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Health, a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, startedAt, analysis, a.logger),
		Positions: handler.NewPositionHandler(analysis, a.logger),
		Sentiment: handler.NewSentimentHandler(analysis, a.logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, a.logger),
		Pipeline:  ph,
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		handlers.Signals = handler.NewSignalHandler(deps.SignalBus, service.SignalChannel, a.logger)
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Channels:  []string{service.SignalChannel},
			Mode:      a.cfg.Mode,
			StartedAt: startedAt,
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	} else {
		a.logger.InfoContext(ctx, "redis disabled; websocket and signal history endpoints are off")
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
