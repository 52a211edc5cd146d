package domain

import (
	"context"
	"time"
)

// MarketContextCache keeps the latest 24h price changes for a short time so
// repeated analysis cycles do not hit the exchange.
type MarketContextCache interface {
	SetContext(ctx context.Context, mc MarketContext, ttl time.Duration) error
	// GetContext returns ErrNotFound when nothing is cached.
	GetContext(ctx context.Context) (MarketContext, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Deduper remembers keys for a while so repeated analysis cycles do not
// notify the same event twice. Seen only reads; a key is recorded by Mark.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}
