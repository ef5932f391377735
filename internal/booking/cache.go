package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"impfportal/internal/disease"
	"impfportal/internal/slots"
	"impfportal/pkg/domain"
)

// SearchCache holds next-free-slot lookups for read-heavy browsing. Entries
// are display-only: Reserve never consults the cache, so a stale entry costs
// at most one failed reservation attempt within the TTL.
type SearchCache interface {
	Get(ctx context.Context, siteID domain.SiteID, position disease.DosePosition) (*slots.Slot, bool)
	Set(ctx context.Context, siteID domain.SiteID, position disease.DosePosition, slot *slots.Slot)
	Invalidate(ctx context.Context, siteID domain.SiteID, position disease.DosePosition)
}

func cacheKey(siteID domain.SiteID, position disease.DosePosition) string {
	return fmt.Sprintf("slotsearch:%s:%s", siteID.String(), position)
}

// RedisSearchCache stores entries in Redis with a TTL.
type RedisSearchCache struct {
	client *goredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisSearchCache(client *goredis.Client, ttl time.Duration, logger *slog.Logger) *RedisSearchCache {
	return &RedisSearchCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisSearchCache) Get(ctx context.Context, siteID domain.SiteID, position disease.DosePosition) (*slots.Slot, bool) {
	raw, err := c.client.Get(ctx, cacheKey(siteID, position)).Bytes()
	if err != nil {
		return nil, false
	}
	var slot slots.Slot
	if err := json.Unmarshal(raw, &slot); err != nil {
		c.logger.Warn("discarding unreadable slot cache entry", "site_id", siteID.String(), "error", err)
		return nil, false
	}
	return &slot, true
}

func (c *RedisSearchCache) Set(ctx context.Context, siteID domain.SiteID, position disease.DosePosition, slot *slots.Slot) {
	raw, err := json.Marshal(slot)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(siteID, position), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("slot cache write failed", "site_id", siteID.String(), "error", err)
	}
}

func (c *RedisSearchCache) Invalidate(ctx context.Context, siteID domain.SiteID, position disease.DosePosition) {
	if err := c.client.Del(ctx, cacheKey(siteID, position)).Err(); err != nil {
		c.logger.Warn("slot cache invalidation failed", "site_id", siteID.String(), "error", err)
	}
}

// MemorySearchCache is the in-process fallback when Redis is not configured.
type MemorySearchCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryCacheEntry
	now     func() time.Time
}

type memoryCacheEntry struct {
	slot      slots.Slot
	expiresAt time.Time
}

func NewMemorySearchCache(ttl time.Duration) *MemorySearchCache {
	return &MemorySearchCache{
		ttl:     ttl,
		entries: make(map[string]memoryCacheEntry),
		now:     time.Now,
	}
}

func (c *MemorySearchCache) Get(ctx context.Context, siteID domain.SiteID, position disease.DosePosition) (*slots.Slot, bool) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey(siteID, position)]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	cloned := entry.slot
	return &cloned, true
}

func (c *MemorySearchCache) Set(ctx context.Context, siteID domain.SiteID, position disease.DosePosition, slot *slots.Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(siteID, position)] = memoryCacheEntry{
		slot:      *slot,
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *MemorySearchCache) Invalidate(ctx context.Context, siteID domain.SiteID, position disease.DosePosition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(siteID, position))
}
