// Package pipeline schedules the discovery, collection and analysis passes of
// a long-running whalewatch process.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/service"
)

// Discoverer refreshes the tracked trader set.
type Discoverer interface {
	Refresh(ctx context.Context) ([]domain.TrackedTrader, error)
}

// Collector refreshes the stored fills of tracked traders.
type Collector interface {
	Collect(ctx context.Context) (service.CollectResult, error)
}

// Analyzer runs one analysis cycle.
type Analyzer interface {
	RunCycle(ctx context.Context, now time.Time) (service.CycleResult, error)
}

// Intervals holds the period of each loop.
type Intervals struct {
	Discovery time.Duration
	Collect   time.Duration
	Analysis  time.Duration
}

// Orchestrator runs the discovery, collector and analysis loops.
type Orchestrator struct {
	discovery Discoverer
	collector Collector
	analyzer  Analyzer
	intervals Intervals
	trigger   <-chan struct{}
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrchestrator creates a new Orchestrator that coordinates all pipeline
// sub-systems.
func NewOrchestrator(
	discovery Discoverer,
	collector Collector,
	analyzer Analyzer,
	intervals Intervals,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		discovery: discovery,
		collector: collector,
		analyzer:  analyzer,
		intervals: intervals,
		logger:    logger.With(slog.String("component", "pipeline")),
		now:       time.Now,
	}
}

// WithTriggerChannel makes every receive on ch run one extra analysis cycle.
func (o *Orchestrator) WithTriggerChannel(ch <-chan struct{}) *Orchestrator {
	o.trigger = ch
	return o
}

// Run performs one discovery and one collection pass so the first analysis
// cycle sees data, then starts all three loops as concurrent goroutines using
// an errgroup. Pass failures are logged and retried on the next tick; Run
// returns when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("discovery_interval", o.intervals.Discovery),
		slog.Duration("collect_interval", o.intervals.Collect),
		slog.Duration("analysis_interval", o.intervals.Analysis),
	)

	o.discover(ctx)
	o.collect(ctx)
	if ctx.Err() != nil {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return o.loop(ctx, "discovery", o.intervals.Discovery, false, nil, o.discover)
	})
	g.Go(func() error {
		return o.loop(ctx, "collector", o.intervals.Collect, false, nil, o.collect)
	})
	g.Go(func() error {
		return o.loop(ctx, "analysis", o.intervals.Analysis, true, o.trigger, o.analyze)
	})

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

// loop runs pass every interval and on every receive from trigger until ctx
// is done, optionally once right away. A nil trigger never fires.
func (o *Orchestrator) loop(ctx context.Context, name string, interval time.Duration, immediate bool, trigger <-chan struct{}, pass func(context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("pipeline: %s interval must be positive, got %s", name, interval)
	}
	if immediate {
		pass(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("loop stopped", slog.String("loop", name))
			return nil
		case <-ticker.C:
			pass(ctx)
		case <-trigger:
			o.logger.Info("manual trigger", slog.String("loop", name))
			pass(ctx)
		}
	}
}

func (o *Orchestrator) discover(ctx context.Context) {
	if _, err := o.discovery.Refresh(ctx); err != nil && ctx.Err() == nil {
		o.logger.ErrorContext(ctx, "discovery pass failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) collect(ctx context.Context) {
	if _, err := o.collector.Collect(ctx); err != nil && ctx.Err() == nil {
		o.logger.ErrorContext(ctx, "collect pass failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) analyze(ctx context.Context) {
	if _, err := o.analyzer.RunCycle(ctx, o.now()); err != nil && ctx.Err() == nil {
		o.logger.ErrorContext(ctx, "analysis cycle failed", slog.String("error", err.Error()))
	}
}
