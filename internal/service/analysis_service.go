package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/analysis"
	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/metrics"
	"github.com/alanyoungcy/whalewatch/internal/notify"
	"github.com/alanyoungcy/whalewatch/internal/report"
)

// SignalChannel is the bus channel and stream consensus and new-trade events
// are published on.
const SignalChannel = "signals"

const (
	analysisLockKey = "analysis"
	analysisLockTTL = 5 * time.Minute
)

// AnalysisConfig holds the thresholds and windows of an analysis cycle.
type AnalysisConfig struct {
	MinTradeValue   float64
	ConsensusWindow time.Duration
	RecentWindow    time.Duration
	TrackNewTrades  bool
	MarketCtxTTL    time.Duration
}

func (c AnalysisConfig) withDefaults() AnalysisConfig {
	if c.MinTradeValue < 0 {
		c.MinTradeValue = analysis.DefaultMinTradeValue
	}
	if c.ConsensusWindow <= 0 {
		c.ConsensusWindow = 10 * time.Minute
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = 24 * time.Hour
	}
	if c.MarketCtxTTL <= 0 {
		c.MarketCtxTTL = time.Minute
	}
	return c
}

// AnalysisDeps lists the collaborators of an AnalysisService. Fills, Traders
// and Signals are required; every other field may be left nil.
type AnalysisDeps struct {
	Fills       domain.FillStore
	Traders     domain.TraderStore
	Signals     domain.SignalStore
	Audit       domain.AuditStore
	Market      MarketSource
	MarketCache domain.MarketContextCache
	Bus         domain.SignalBus
	Locker      domain.LockManager
	Dispatcher  RankedSender
	// Dedup suppresses notifications already sent by an earlier cycle.
	Dedup domain.Deduper
	Sinks []report.Sink
	// Console receives the rendered sentiment tables when set.
	Console io.Writer
}

// AnalysisService runs the engine over stored fills and fans the results out
// to report sinks, the signal bus and notification channels.
type AnalysisService struct {
	cfg    AnalysisConfig
	deps   AnalysisDeps
	logger *slog.Logger
}

// NewAnalysisService creates an AnalysisService.
func NewAnalysisService(cfg AnalysisConfig, deps AnalysisDeps, logger *slog.Logger) *AnalysisService {
	return &AnalysisService{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		logger: logger.With(slog.String("component", "analysis")),
	}
}

// CycleResult summarises one analysis cycle.
type CycleResult struct {
	Consensus []domain.AnnotatedSignal
	NewTrades []domain.Fill
	Weighted  []domain.SentimentRecord
	Recent    []domain.SentimentRecord
	Reports   []string
	NoWeights bool // weighted views were skipped for lack of trader PnL
	Skipped   bool // another replica held the analysis lock
	Notified  int
	Elapsed   time.Duration
}

// RunCycle runs consensus detection, new-trade tracking and both sentiment
// reports. Each step runs even if an earlier one failed; the failures are
// joined into the returned error and reported on the error channel.
func (s *AnalysisService) RunCycle(ctx context.Context, now time.Time) (CycleResult, error) {
	if s.deps.Locker != nil {
		unlock, err := s.deps.Locker.Acquire(ctx, analysisLockKey, analysisLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.InfoContext(ctx, "analysis: cycle already running elsewhere, skipping")
			return CycleResult{Skipped: true}, nil
		}
		if err != nil {
			return CycleResult{}, fmt.Errorf("analysis: acquire lock: %w", err)
		}
		defer unlock()
	}

	start := time.Now()
	var (
		res  CycleResult
		errs []error
	)

	consensus, sent, err := s.runConsensus(ctx, now)
	switch {
	case errors.Is(err, domain.ErrNoWeights):
		res.NoWeights = true
	case err != nil:
		errs = append(errs, err)
	}
	res.Consensus = consensus
	res.Notified += sent

	if s.cfg.TrackNewTrades && s.deps.Dispatcher != nil {
		trades, err := s.NewTrades(ctx, now)
		if err != nil {
			errs = append(errs, err)
		}
		res.NewTrades = trades
		n, sendErr := notifyOnce(ctx, s, notify.EventNewTrade, trades, tradeKey, report.NewTradeMessages)
		res.Notified += n
		if sendErr != nil {
			s.logger.WarnContext(ctx, "analysis: new trade notifications incomplete", slog.String("error", sendErr.Error()))
		}
	}

	weighted, loc, err := s.publishWeighted(ctx, now)
	switch {
	case errors.Is(err, domain.ErrNoWeights):
		res.NoWeights = true
	case err != nil:
		errs = append(errs, err)
	}
	res.Weighted = weighted
	res.Reports = append(res.Reports, loc...)

	recent, loc, err := s.publishRecent(ctx, now)
	if err != nil {
		errs = append(errs, err)
	}
	res.Recent = recent
	res.Reports = append(res.Reports, loc...)

	res.Elapsed = time.Since(start)
	metrics.CycleDuration.WithLabelValues("analyze").Observe(res.Elapsed.Seconds())

	cycleErr := errors.Join(errs...)
	s.auditCycle(ctx, now, res, cycleErr)
	if cycleErr != nil {
		s.reportError(ctx, cycleErr)
	}

	s.logger.InfoContext(ctx, "analysis: cycle complete",
		slog.Int("consensus", len(res.Consensus)),
		slog.Int("new_trades", len(res.NewTrades)),
		slog.Int("weighted_assets", len(res.Weighted)),
		slog.Int("recent_assets", len(res.Recent)),
		slog.Int("notified", res.Notified),
		slog.Bool("no_weights", res.NoWeights),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res, cycleErr
}

// Consensus detects consensus signals among openings inside the consensus
// window, annotates them with 24h price changes and records the cycle. It
// returns domain.ErrNoWeights when no tracked trader has positive PnL.
func (s *AnalysisService) Consensus(ctx context.Context, now time.Time) ([]domain.AnnotatedSignal, error) {
	weights, err := s.weights(ctx)
	if err != nil {
		return nil, err
	}

	since := now.Add(-s.cfg.ConsensusWindow)
	fills, err := s.deps.Fills.List(ctx, domain.FillFilter{Since: &since, OpeningsOnly: true})
	if err != nil {
		return nil, fmt.Errorf("analysis: list recent openings: %w", err)
	}
	recent := analysis.SelectOpenings(fills, since)

	signals := analysis.DetectConsensus(recent, weights, s.cfg.MinTradeValue)
	if len(signals) == 0 {
		s.logger.InfoContext(ctx, "analysis: no consensus above threshold",
			slog.Int("openings", len(recent)),
			slog.Float64("min_trade_value", s.cfg.MinTradeValue),
		)
		return nil, nil
	}

	annotated := analysis.Annotate(signals, s.marketContext(ctx))
	for _, a := range annotated {
		metrics.ConsensusSignals.WithLabelValues(a.Signal.Asset, string(a.Signal.Direction)).Inc()
	}

	if err := s.deps.Signals.SaveCycle(ctx, now, annotated); err != nil {
		return annotated, fmt.Errorf("analysis: save consensus: %w", err)
	}
	s.publish(ctx, "consensus", now, consensusPayload(annotated))
	return annotated, nil
}

func (s *AnalysisService) runConsensus(ctx context.Context, now time.Time) ([]domain.AnnotatedSignal, int, error) {
	annotated, err := s.Consensus(ctx, now)
	if errors.Is(err, domain.ErrNoWeights) {
		s.logger.InfoContext(ctx, "analysis: no trader pnl available, consensus skipped")
		return nil, 0, err
	}
	if len(annotated) == 0 || s.deps.Dispatcher == nil {
		return annotated, 0, err
	}

	sent, sendErr := notifyOnce(ctx, s, notify.EventConsensus, annotated, signalKey, report.ConsensusMessages)
	if sendErr != nil {
		s.logger.WarnContext(ctx, "analysis: consensus notifications incomplete",
			slog.Int("sent", sent),
			slog.Int("signals", len(annotated)),
			slog.String("error", sendErr.Error()),
		)
	}
	return annotated, sent, err
}

// dedupTTL covers the whole span in which a fill or signal can reappear.
func (s *AnalysisService) dedupTTL() time.Duration {
	return 2 * s.cfg.ConsensusWindow
}

// signalKey identifies a consensus signal by asset, direction and trader
// count, so a signal gaining traders is notified again.
func signalKey(a domain.AnnotatedSignal) string {
	return fmt.Sprintf("consensus:%s:%s:%d", a.Signal.Asset, a.Signal.Direction, a.Signal.TraderCount)
}

func tradeKey(f domain.Fill) string {
	if f.Hash != "" {
		return "trade:" + f.Hash + ":" + f.Trader
	}
	return fmt.Sprintf("trade:%s:%s:%d:%d", f.Trader, f.Asset, f.Timestamp, f.OrderID)
}

// notifyOnce sends the items not notified by an earlier cycle, in order, and
// records an item only once the dispatcher reports it delivered. Undelivered
// items are retried by the next cycle.
func notifyOnce[T any](
	ctx context.Context,
	s *AnalysisService,
	event string,
	items []T,
	key func(T) string,
	render func([]T) []notify.Message,
) (int, error) {
	unsent := unnotified(ctx, s, items, key)
	if len(unsent) == 0 {
		return 0, nil
	}
	delivered, err := s.deps.Dispatcher.SendRanked(ctx, event, render(unsent))
	if s.deps.Dedup != nil {
		// Recording must survive a cancellation that arrived mid-send.
		markCtx := context.WithoutCancel(ctx)
		for _, i := range delivered {
			if markErr := s.deps.Dedup.Mark(markCtx, key(unsent[i]), s.dedupTTL()); markErr != nil {
				s.logger.WarnContext(ctx, "analysis: dedup mark failed", slog.String("error", markErr.Error()))
			}
		}
	}
	return len(delivered), err
}

// unnotified keeps the items whose key the deduper has not recorded. With no
// deduper every item is kept; a failing deduper keeps the item too.
func unnotified[T any](ctx context.Context, s *AnalysisService, items []T, key func(T) string) []T {
	if s.deps.Dedup == nil {
		return items
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		seen, err := s.deps.Dedup.Seen(ctx, key(it))
		if err != nil {
			s.logger.WarnContext(ctx, "analysis: dedup check failed", slog.String("error", err.Error()))
			seen = false
		}
		if !seen {
			out = append(out, it)
		}
	}
	return out
}

// NewTrades returns the openings of every tracked trader inside the consensus
// window, newest first, and publishes them on the signal bus.
func (s *AnalysisService) NewTrades(ctx context.Context, now time.Time) ([]domain.Fill, error) {
	since := now.Add(-s.cfg.ConsensusWindow)
	fills, err := s.deps.Fills.List(ctx, domain.FillFilter{Since: &since, OpeningsOnly: true, NewestFirst: true})
	if err != nil {
		return nil, fmt.Errorf("analysis: list new trades: %w", err)
	}
	trades := analysis.SelectOpenings(fills, since)
	if len(trades) > 0 {
		s.publish(ctx, "new_trade", now, tradesPayload(trades))
	}
	return trades, nil
}

// WeightedSentiment aggregates every stored position with trader PnL as vote
// weight. It returns domain.ErrNoWeights when no tracked trader has positive
// PnL.
func (s *AnalysisService) WeightedSentiment(ctx context.Context) ([]domain.SentimentRecord, error) {
	weights, err := s.weights(ctx)
	if err != nil {
		return nil, err
	}
	fills, err := s.deps.Fills.List(ctx, domain.FillFilter{})
	if err != nil {
		return nil, fmt.Errorf("analysis: list fills: %w", err)
	}
	return analysis.Aggregate(analysis.Net(fills), weights), nil
}

// RecentSentiment aggregates, unweighted, the positions implied by fills in
// the recent window only.
func (s *AnalysisService) RecentSentiment(ctx context.Context, now time.Time) ([]domain.SentimentRecord, error) {
	since := now.Add(-s.cfg.RecentWindow)
	fills, err := s.deps.Fills.List(ctx, domain.FillFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("analysis: list recent fills: %w", err)
	}
	return analysis.Aggregate(analysis.Net(analysis.SelectSince(fills, since)), nil), nil
}

func (s *AnalysisService) publishWeighted(ctx context.Context, now time.Time) ([]domain.SentimentRecord, []string, error) {
	records, err := s.WeightedSentiment(ctx)
	if errors.Is(err, domain.ErrNoWeights) {
		s.logger.InfoContext(ctx, "analysis: no trader pnl available, weighted sentiment skipped")
		return nil, nil, err
	}
	if err != nil {
		return nil, nil, err
	}
	locs, err := s.writeReport(ctx, report.WeightedSentimentName, "PnL-Weighted Sentiment (All Positions)", now, records)
	return records, locs, err
}

func (s *AnalysisService) publishRecent(ctx context.Context, now time.Time) ([]domain.SentimentRecord, []string, error) {
	records, err := s.RecentSentiment(ctx, now)
	if err != nil {
		return nil, nil, err
	}
	title := fmt.Sprintf("Sentiment of Positions Opened in the Last %s", s.cfg.RecentWindow)
	locs, err := s.writeReport(ctx, report.RecentSentimentName, title, now, records)
	return records, locs, err
}

func (s *AnalysisService) writeReport(ctx context.Context, name, title string, now time.Time, records []domain.SentimentRecord) ([]string, error) {
	if len(records) == 0 {
		s.logger.InfoContext(ctx, "analysis: no positions to report", slog.String("report", name))
		return nil, nil
	}
	if s.deps.Console != nil {
		_, _ = io.WriteString(s.deps.Console, report.SentimentTable(title, records))
	}
	if len(s.deps.Sinks) == 0 {
		return nil, nil
	}

	data, err := report.SentimentCSV(records)
	if err != nil {
		return nil, fmt.Errorf("analysis: render %s: %w", name, err)
	}
	locs, err := report.Publish(ctx, s.deps.Sinks, name, now, data)
	if err != nil {
		err = fmt.Errorf("analysis: publish %s: %w", name, err)
	}
	for _, l := range locs {
		s.logger.InfoContext(ctx, "analysis: report written",
			slog.String("report", name),
			slog.String("location", l),
			slog.Int("assets", len(records)),
		)
	}
	return locs, err
}

// Positions returns the net positions derived from stored fills, for one
// trader when trader is non-empty.
func (s *AnalysisService) Positions(ctx context.Context, trader string) ([]domain.Position, error) {
	filter := domain.FillFilter{}
	if trader != "" {
		filter.Traders = []string{trader}
	}
	fills, err := s.deps.Fills.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("analysis: list fills: %w", err)
	}
	return analysis.Net(fills), nil
}

// Sentiment aggregates stored positions on demand. A positive window limits
// the input to fills newer than now-window; weighted applies trader PnL and
// fails with domain.ErrNoWeights when none is available.
func (s *AnalysisService) Sentiment(ctx context.Context, now time.Time, weighted bool, window time.Duration) ([]domain.SentimentRecord, error) {
	var weights domain.Weights
	if weighted {
		w, err := s.weights(ctx)
		if err != nil {
			return nil, err
		}
		weights = w
	}

	filter := domain.FillFilter{}
	if window > 0 {
		since := now.Add(-window)
		filter.Since = &since
	}
	fills, err := s.deps.Fills.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("analysis: list fills: %w", err)
	}
	return analysis.Aggregate(analysis.Net(fills), weights), nil
}

// LatestConsensus returns the most recent recorded cycle that produced
// consensus signals.
func (s *AnalysisService) LatestConsensus(ctx context.Context) (time.Time, []domain.AnnotatedSignal, error) {
	at, signals, err := s.deps.Signals.Latest(ctx)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("analysis: latest consensus: %w", err)
	}
	return at, signals, nil
}

func (s *AnalysisService) weights(ctx context.Context) (domain.Weights, error) {
	traders, err := s.deps.Traders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("analysis: list traders: %w", err)
	}
	w := analysis.WeightsFromTraders(traders)
	if w == nil {
		return nil, domain.ErrNoWeights
	}
	return w, nil
}

// marketContext reads through the cache to the exchange. Failures degrade to
// an empty context so signals are still delivered, marked "N/A".
func (s *AnalysisService) marketContext(ctx context.Context) domain.MarketContext {
	if s.deps.MarketCache != nil {
		mc, err := s.deps.MarketCache.GetContext(ctx)
		if err == nil {
			return mc
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "analysis: market context cache read failed", slog.String("error", err.Error()))
		}
	}
	if s.deps.Market == nil {
		return nil
	}

	mc, err := s.deps.Market.MarketContext(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "analysis: market context unavailable", slog.String("error", err.Error()))
		return nil
	}
	if s.deps.MarketCache != nil {
		if err := s.deps.MarketCache.SetContext(ctx, mc, s.cfg.MarketCtxTTL); err != nil {
			s.logger.WarnContext(ctx, "analysis: market context cache write failed", slog.String("error", err.Error()))
		}
	}
	return mc
}

func (s *AnalysisService) publish(ctx context.Context, event string, now time.Time, data any) {
	if s.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event": event,
		"at":    now.UTC().Format(time.RFC3339),
		"data":  data,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "analysis: encode bus event failed", slog.String("error", err.Error()))
		return
	}
	if err := s.deps.Bus.Publish(ctx, SignalChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "analysis: publish event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	if err := s.deps.Bus.StreamAppend(ctx, SignalChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "analysis: stream append failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AnalysisService) auditCycle(ctx context.Context, now time.Time, res CycleResult, cycleErr error) {
	if s.deps.Audit == nil {
		return
	}
	detail := map[string]any{
		"at":              now.UTC().Format(time.RFC3339),
		"consensus":       len(res.Consensus),
		"new_trades":      len(res.NewTrades),
		"weighted_assets": len(res.Weighted),
		"recent_assets":   len(res.Recent),
		"reports":         res.Reports,
		"no_weights":      res.NoWeights,
	}
	if cycleErr != nil {
		detail["error"] = cycleErr.Error()
	}
	if err := s.deps.Audit.Log(ctx, "analysis.cycle", detail); err != nil {
		s.logger.WarnContext(ctx, "analysis: audit log failed", slog.String("error", err.Error()))
	}
}

func (s *AnalysisService) reportError(ctx context.Context, err error) {
	if s.deps.Dispatcher == nil {
		return
	}
	msg := report.ErrorMessage("Analysis cycle failed", err)
	if _, sendErr := s.deps.Dispatcher.SendRanked(ctx, notify.EventError, []notify.Message{msg}); sendErr != nil {
		s.logger.WarnContext(ctx, "analysis: error notification failed", slog.String("error", sendErr.Error()))
	}
}

func consensusPayload(signals []domain.AnnotatedSignal) []map[string]any {
	out := make([]map[string]any, len(signals))
	for i, a := range signals {
		out[i] = map[string]any{
			"rank":         i + 1,
			"asset":        a.Signal.Asset,
			"direction":    string(a.Signal.Direction),
			"trader_count": a.Signal.TraderCount,
			"pnl_backing":  a.Signal.PnLBacking,
			"total_value":  a.Signal.TotalValue,
			"change_24h":   a.Change,
		}
	}
	return out
}

func tradesPayload(fills []domain.Fill) []map[string]any {
	out := make([]map[string]any, len(fills))
	for i, f := range fills {
		out[i] = map[string]any{
			"trader":    f.Trader,
			"asset":     f.Asset,
			"direction": f.Direction,
			"price":     f.Price,
			"size":      f.Size,
			"value":     f.Value(),
			"time":      f.Time().Format(time.RFC3339),
		}
	}
	return out
}

// CountFills returns the number of stored fills.
func (s *AnalysisService) CountFills(ctx context.Context) (int64, error) {
	n, err := s.deps.Fills.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("analysis: count fills: %w", err)
	}
	return n, nil
}

// TrackedTraders returns the current tracked trader set.
func (s *AnalysisService) TrackedTraders(ctx context.Context) ([]domain.TrackedTrader, error) {
	traders, err := s.deps.Traders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("analysis: list traders: %w", err)
	}
	return traders, nil
}
