package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docuvault/docuvault/internal/document/store"
	"github.com/docuvault/docuvault/pkg/logger"
)

const cacheKeyPrefix = "doc:"

// Cache is an optional Redis-backed record cache in front of the store. It
// holds committed records only; the ACL check still runs on every hit, so a
// cached record never widens access. Failures degrade to a miss.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache wraps a Redis client. ttl bounds staleness after out-of-band
// writes; zero means one hour.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached record and whether it was found.
func (c *Cache) Get(ctx context.Context, id string) (*store.Record, bool) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warnf("cache: get %s failed: %v", id, err)
		}
		return nil, false
	}
	var rec store.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		logger.Warnf("cache: corrupt entry for %s, dropping: %v", id, err)
		c.Invalidate(ctx, id)
		return nil, false
	}
	return &rec, true
}

// Set stores a committed record.
func (c *Cache) Set(ctx context.Context, rec *store.Record) {
	raw, err := json.Marshal(rec)
	if err != nil {
		logger.Warnf("cache: marshal %s failed: %v", rec.ID, err)
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+rec.ID, raw, c.ttl).Err(); err != nil {
		logger.Warnf("cache: set %s failed: %v", rec.ID, err)
	}
}

// Invalidate drops a record after a save or remove.
func (c *Cache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, cacheKeyPrefix+id).Err(); err != nil {
		logger.Warnf("cache: invalidate %s failed: %v", id, err)
	}
}
