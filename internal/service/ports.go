package service

import (
	"context"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/notify"
)

// LeaderboardSource lists candidate traders with their all-time PnL.
type LeaderboardSource interface {
	Leaderboard(ctx context.Context) ([]domain.TrackedTrader, error)
}

// FillSource returns the recent fills of one trader.
type FillSource interface {
	UserFills(ctx context.Context, address string) ([]domain.Fill, error)
}

// MarketSource returns the current 24h price change of every listed asset.
type MarketSource interface {
	MarketContext(ctx context.Context) (domain.MarketContext, error)
}

// FillArchiver stores a raw copy of a collected fill snapshot.
type FillArchiver interface {
	ArchiveFills(ctx context.Context, at time.Time, fills []domain.Fill) (string, error)
}

// RankedSender delivers an ordered list of messages for one event type and
// returns the indices of the messages that were delivered.
type RankedSender interface {
	SendRanked(ctx context.Context, event string, msgs []notify.Message) ([]int, error)
}
