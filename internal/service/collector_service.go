package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/metrics"
)

const (
	collectorLockKey = "collector"
	collectorLockTTL = 5 * time.Minute
)

// CollectResult summarises one collection pass.
type CollectResult struct {
	Traders     int      // tracked traders at the start of the pass
	Failed      []string // traders whose fetch failed and kept their previous fills
	Fills       int      // fills written
	Pruned      int64    // fills removed for traders no longer tracked
	ArchivePath string   // raw snapshot location, empty when archiving is off
	Skipped     bool     // another replica held the collector lock
}

// CollectorService refreshes the stored fill snapshot of every tracked trader.
type CollectorService struct {
	source      FillSource
	traders     domain.TraderStore
	fills       domain.FillStore
	audit       domain.AuditStore
	archiver    FillArchiver
	locker      domain.LockManager
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// CollectorOption customises a CollectorService.
type CollectorOption func(*CollectorService)

// WithFillArchiver uploads every collected snapshot through a.
func WithFillArchiver(a FillArchiver) CollectorOption {
	return func(s *CollectorService) { s.archiver = a }
}

// WithCollectorLock serialises collection passes across replicas.
func WithCollectorLock(lm domain.LockManager) CollectorOption {
	return func(s *CollectorService) { s.locker = lm }
}

// NewCollectorService creates a CollectorService fetching at most concurrency
// traders at once.
func NewCollectorService(
	source FillSource,
	traders domain.TraderStore,
	fills domain.FillStore,
	audit domain.AuditStore,
	concurrency int,
	logger *slog.Logger,
	opts ...CollectorOption,
) *CollectorService {
	if concurrency < 1 {
		concurrency = 1
	}
	s := &CollectorService{
		source:      source,
		traders:     traders,
		fills:       fills,
		audit:       audit,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "collector")),
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type traderFetch struct {
	fills []domain.Fill
	err   error
}

// Collect fetches the fills of every tracked trader and replaces their stored
// snapshot. A trader whose fetch fails keeps the fills stored by the previous
// pass; the pass only fails when every fetch fails.
func (s *CollectorService) Collect(ctx context.Context) (CollectResult, error) {
	if s.locker != nil {
		unlock, err := s.locker.Acquire(ctx, collectorLockKey, collectorLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.InfoContext(ctx, "collector: pass already running elsewhere, skipping")
			return CollectResult{Skipped: true}, nil
		}
		if err != nil {
			return CollectResult{}, fmt.Errorf("collector: acquire lock: %w", err)
		}
		defer unlock()
	}

	start := time.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues("collect").Observe(time.Since(start).Seconds())
	}()

	tracked, err := s.traders.List(ctx)
	if err != nil {
		return CollectResult{}, fmt.Errorf("collector: list traders: %w", err)
	}
	res := CollectResult{Traders: len(tracked)}
	metrics.TradersTracked.Set(float64(len(tracked)))

	addrs := make([]string, len(tracked))
	for i, t := range tracked {
		addrs[i] = t.Address
	}

	if len(tracked) == 0 {
		s.logger.WarnContext(ctx, "collector: no tracked traders, run discovery first")
		pruned, err := s.fills.PruneExcept(ctx, nil)
		if err != nil {
			return res, fmt.Errorf("collector: prune fills: %w", err)
		}
		res.Pruned = pruned
		return res, nil
	}

	results := s.fetchAll(ctx, addrs)
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("collector: %w", err)
	}

	var (
		fetched []string
		fills   []domain.Fill
		errs    []error
	)
	for i, r := range results {
		if r.err != nil {
			res.Failed = append(res.Failed, addrs[i])
			errs = append(errs, r.err)
			s.logger.WarnContext(ctx, "collector: fetch fills failed, keeping previous snapshot",
				slog.String("trader", addrs[i]),
				slog.String("error", r.err.Error()),
			)
			continue
		}
		fetched = append(fetched, addrs[i])
		fills = append(fills, r.fills...)
	}

	if len(fetched) == 0 {
		return res, fmt.Errorf("collector: every fill fetch failed: %w", errors.Join(errs...))
	}

	if err := s.fills.ReplaceForTraders(ctx, fetched, fills); err != nil {
		return res, fmt.Errorf("collector: store fills: %w", err)
	}
	res.Fills = len(fills)
	metrics.FillsIngested.Add(float64(len(fills)))

	pruned, err := s.fills.PruneExcept(ctx, addrs)
	if err != nil {
		return res, fmt.Errorf("collector: prune fills: %w", err)
	}
	res.Pruned = pruned

	if s.archiver != nil {
		path, err := s.archiver.ArchiveFills(ctx, s.now(), fills)
		if err != nil {
			s.logger.WarnContext(ctx, "collector: archive fills failed", slog.String("error", err.Error()))
		} else {
			res.ArchivePath = path
		}
	}

	if auditErr := s.audit.Log(ctx, "collector.collect", map[string]any{
		"traders": len(tracked),
		"failed":  res.Failed,
		"fills":   res.Fills,
		"pruned":  res.Pruned,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "collector: audit log failed", slog.String("error", auditErr.Error()))
	}

	s.logger.InfoContext(ctx, "collector: fills refreshed",
		slog.Int("traders", len(tracked)),
		slog.Int("failed", len(res.Failed)),
		slog.Int("fills", res.Fills),
		slog.Int64("pruned", res.Pruned),
		slog.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// fetchAll fetches every address with bounded concurrency. Results are indexed
// like addrs so the stored snapshot keeps the tracked order.
func (s *CollectorService) fetchAll(ctx context.Context, addrs []string) []traderFetch {
	results := make([]traderFetch, len(addrs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, addr := range addrs {
		g.Go(func() error {
			fills, err := s.source.UserFills(ctx, addr)
			if err != nil {
				results[i] = traderFetch{err: fmt.Errorf("fetch %s: %w", addr, err)}
				return nil
			}
			results[i] = traderFetch{fills: fills}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
