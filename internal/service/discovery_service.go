package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/metrics"
)

// DefaultMaxTraders is the size of the tracked set when none is configured.
const DefaultMaxTraders = 5

// DiscoveryService curates the tracked trader set from the public leaderboard.
type DiscoveryService struct {
	source     LeaderboardSource
	traders    domain.TraderStore
	audit      domain.AuditStore
	maxTraders int
	logger     *slog.Logger
	now        func() time.Time
}

// NewDiscoveryService creates a DiscoveryService. A non-positive maxTraders
// uses DefaultMaxTraders.
func NewDiscoveryService(
	source LeaderboardSource,
	traders domain.TraderStore,
	audit domain.AuditStore,
	maxTraders int,
	logger *slog.Logger,
) *DiscoveryService {
	if maxTraders <= 0 {
		maxTraders = DefaultMaxTraders
	}
	return &DiscoveryService{
		source:     source,
		traders:    traders,
		audit:      audit,
		maxTraders: maxTraders,
		logger:     logger.With(slog.String("component", "discovery")),
		now:        time.Now,
	}
}

// Refresh replaces the tracked set with the most profitable leaderboard
// traders. When no leaderboard row has positive PnL the current set is left
// untouched.
func (s *DiscoveryService) Refresh(ctx context.Context) ([]domain.TrackedTrader, error) {
	start := time.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues("discover").Observe(time.Since(start).Seconds())
	}()

	candidates, err := s.source.Leaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery: fetch leaderboard: %w", err)
	}

	top := SelectTopTraders(candidates, s.maxTraders)
	if len(top) == 0 {
		s.logger.WarnContext(ctx, "discovery: no profitable traders on leaderboard, keeping current set",
			slog.Int("candidates", len(candidates)),
		)
		return nil, nil
	}

	stamp := s.now().UTC()
	for i := range top {
		top[i].UpdatedAt = stamp
	}

	if err := s.traders.ReplaceAll(ctx, top); err != nil {
		return nil, fmt.Errorf("discovery: store traders: %w", err)
	}
	metrics.TradersTracked.Set(float64(len(top)))

	addrs := make([]string, len(top))
	for i, t := range top {
		addrs[i] = t.Address
	}
	if auditErr := s.audit.Log(ctx, "discovery.refresh", map[string]any{
		"candidates": len(candidates),
		"tracked":    addrs,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "discovery: audit log failed", slog.String("error", auditErr.Error()))
	}

	s.logger.InfoContext(ctx, "discovery: tracked traders refreshed",
		slog.Int("candidates", len(candidates)),
		slog.Int("tracked", len(top)),
		slog.Float64("top_pnl", top[0].PnL),
	)
	return top, nil
}

// SelectTopTraders keeps candidates with positive PnL, orders them by PnL
// descending (input order breaks ties) and returns at most n of them. The
// input slice is not modified.
func SelectTopTraders(candidates []domain.TrackedTrader, n int) []domain.TrackedTrader {
	out := make([]domain.TrackedTrader, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c.PnL <= 0 || c.Address == "" || seen[c.Address] {
			continue
		}
		seen[c.Address] = true
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PnL > out[j].PnL })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
