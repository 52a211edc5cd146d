package hyperliquid

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

const allTimeWindow = "allTime"

// Leaderboard returns every leaderboard row that carries a valid address and
// an all-time PnL. Ranking and filtering are left to the caller.
func (c *Client) Leaderboard(ctx context.Context) ([]domain.TrackedTrader, error) {
	var resp leaderboardResponse
	if err := c.get(ctx, "leaderboard", c.cfg.LeaderboardURL, &resp); err != nil {
		return nil, fmt.Errorf("hyperliquid: leaderboard: %w", err)
	}

	traders := make([]domain.TrackedTrader, 0, len(resp.LeaderboardRows))
	skipped := 0
	for _, row := range resp.LeaderboardRows {
		addr, err := NormalizeAddress(row.EthAddress)
		if err != nil {
			skipped++
			continue
		}
		pnl, ok := allTimePnL(row.WindowPerformances)
		if !ok {
			skipped++
			continue
		}
		traders = append(traders, domain.TrackedTrader{Address: addr, PnL: pnl})
	}

	if skipped > 0 {
		c.logger.DebugContext(ctx, "leaderboard rows skipped", slog.Int("count", skipped))
	}
	return traders, nil
}

func allTimePnL(perfs []windowPerformance) (float64, bool) {
	for _, p := range perfs {
		if p.Window != allTimeWindow {
			continue
		}
		d, err := decimal.NewFromString(p.PnL)
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	}
	return 0, false
}
