package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// Deduper implements domain.Deduper with expiring keys, so every replica
// shares the record of what was already notified.
type Deduper struct {
	rdb *redis.Client
}

// NewDeduper creates a Deduper backed by the given Client.
func NewDeduper(c *Client) *Deduper {
	return &Deduper{rdb: c.Underlying()}
}

func dedupKey(key string) string {
	return "whalewatch:seen:" + key
}

// Seen reports whether key is still recorded.
func (d *Deduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.rdb.Exists(ctx, dedupKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: dedup seen %s: %w", key, err)
	}
	return n > 0, nil
}

// Mark records key for ttl.
func (d *Deduper) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := d.rdb.Set(ctx, dedupKey(key), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis: dedup mark %s: %w", key, err)
	}
	return nil
}

var _ domain.Deduper = (*Deduper)(nil)
