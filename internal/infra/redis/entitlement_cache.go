package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"exam-attempt-service/internal/app"
)

// EntitlementCache caches subscription-gate decisions in Redis with a short
// TTL. The inner gate is typically a remote subscription service; attempt
// starts should not fan a burst of identical entitlement checks at it.
// Redis failures degrade to asking the inner gate directly.
type EntitlementCache struct {
	client *redis.Client
	gate   app.AccessGate
	ttl    time.Duration
}

func NewEntitlementCache(client *redis.Client, gate app.AccessGate, ttl time.Duration) *EntitlementCache {
	return &EntitlementCache{client: client, gate: gate, ttl: ttl}
}

func (c *EntitlementCache) HasAccess(ctx context.Context, userID, paperID string) (bool, error) {
	key := c.key(userID, paperID)

	if val, err := c.client.Get(ctx, key).Result(); err == nil {
		return val == "1", nil
	}

	allowed, err := c.gate.HasAccess(ctx, userID, paperID)
	if err != nil {
		return false, err
	}

	val := "0"
	if allowed {
		val = "1"
	}
	_ = c.client.Set(ctx, key, val, c.ttl).Err()
	return allowed, nil
}

func (c *EntitlementCache) key(userID, paperID string) string {
	return "entitlement:" + userID + ":" + paperID
}
