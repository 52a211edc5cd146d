package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// marketContextKey holds asset -> 24h percent change as a single hash so the
// whole context is replaced and expires together.
const marketContextKey = "mctx:24h"

// MarketContextCache implements domain.MarketContextCache using a Redis hash.
type MarketContextCache struct {
	rdb *redis.Client
}

// NewMarketContextCache creates a MarketContextCache backed by the given Client.
func NewMarketContextCache(c *Client) *MarketContextCache {
	return &MarketContextCache{rdb: c.Underlying()}
}

func encodeMarketContext(mc domain.MarketContext) map[string]interface{} {
	fields := make(map[string]interface{}, len(mc))
	for asset, change := range mc {
		fields[asset] = strconv.FormatFloat(change, 'f', -1, 64)
	}
	return fields
}

func decodeMarketContext(vals map[string]string) (domain.MarketContext, error) {
	mc := make(domain.MarketContext, len(vals))
	for asset, raw := range vals {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", asset, err)
		}
		mc[asset] = v
	}
	return mc, nil
}

// SetContext replaces the cached context atomically and sets its TTL. An
// empty context clears the cache.
func (c *MarketContextCache) SetContext(ctx context.Context, mc domain.MarketContext, ttl time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, marketContextKey)
		if len(mc) == 0 {
			return nil
		}
		pipe.HSet(ctx, marketContextKey, encodeMarketContext(mc))
		if ttl > 0 {
			pipe.Expire(ctx, marketContextKey, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: set market context: %w", err)
	}
	return nil
}

// GetContext returns the cached context, or domain.ErrNotFound when the key is
// absent or expired.
func (c *MarketContextCache) GetContext(ctx context.Context) (domain.MarketContext, error) {
	vals, err := c.rdb.HGetAll(ctx, marketContextKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get market context: %w", err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrNotFound
	}
	mc, err := decodeMarketContext(vals)
	if err != nil {
		return nil, fmt.Errorf("redis: decode market context: %w", err)
	}
	return mc, nil
}

// Compile-time interface check.
var _ domain.MarketContextCache = (*MarketContextCache)(nil)
