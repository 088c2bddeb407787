package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LevelsCache caches inventory level listings in Redis. Invalidation bumps a
// per-store generation counter instead of scanning keys, so stale entries
// simply age out under their TTL.
type LevelsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLevelsCache constructs the cache.
func NewLevelsCache(client *redis.Client, ttl time.Duration) *LevelsCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &LevelsCache{client: client, ttl: ttl}
}

func (c *LevelsCache) genKey(storeID int64) string {
	return fmt.Sprintf("inv:levels:%d:gen", storeID)
}

func (c *LevelsCache) key(storeID, gen int64, filter LevelsFilter) string {
	return fmt.Sprintf("inv:levels:%d:%d:%t:%d:%d", storeID, gen, filter.LowStockOnly, filter.Limit, filter.Offset)
}

func (c *LevelsCache) generation(ctx context.Context, storeID int64) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey(storeID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// Get returns the cached listing for the filter, if present.
func (c *LevelsCache) Get(ctx context.Context, storeID int64, filter LevelsFilter) ([]StockUnit, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	gen, err := c.generation(ctx, storeID)
	if err != nil {
		return nil, false, err
	}
	data, err := c.client.Get(ctx, c.key(storeID, gen, filter)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var units []StockUnit
	if err := json.Unmarshal(data, &units); err != nil {
		return nil, false, err
	}
	return units, true, nil
}

// Set stores the listing under the store's current generation.
func (c *LevelsCache) Set(ctx context.Context, storeID int64, filter LevelsFilter, units []StockUnit) error {
	if c == nil || c.client == nil {
		return nil
	}
	gen, err := c.generation(ctx, storeID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(units)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(storeID, gen, filter), data, c.ttl).Err()
}

// Invalidate drops all cached listings for the store by bumping its generation.
func (c *LevelsCache) Invalidate(ctx context.Context, storeID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, c.genKey(storeID)).Err()
}
