package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/pharmaledger/internal/shared"
)

// noGrant marks a cached negative lookup.
const noGrant = "none"

// Cache keeps grant lookups in Redis for a bounded time. A nil *Cache is a
// valid no-op cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache wires the grant cache. A non-positive ttl disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached grant. hit is false when the key is absent; a hit
// with a nil grant means the user holds no grant on the group.
func (c *Cache) Get(ctx context.Context, tenantID, userID, groupID int64) (grant *GroupPermission, hit bool, err error) {
	if c == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, shared.PermissionCacheKey(tenantID, userID, groupID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if raw == noGrant {
		return nil, true, nil
	}
	var p GroupPermission
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

// Put stores grant, or the negative marker when grant is nil.
func (c *Cache) Put(ctx context.Context, tenantID, userID, groupID int64, grant *GroupPermission) error {
	if c == nil {
		return nil
	}
	value := noGrant
	if grant != nil {
		payload, err := json.Marshal(grant)
		if err != nil {
			return err
		}
		value = string(payload)
	}
	return c.client.Set(ctx, shared.PermissionCacheKey(tenantID, userID, groupID), value, c.ttl).Err()
}

// Invalidate drops one cached grant.
func (c *Cache) Invalidate(ctx context.Context, tenantID, userID, groupID int64) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, shared.PermissionCacheKey(tenantID, userID, groupID)).Err()
}

// InvalidateUser drops every cached grant of a user.
func (c *Cache) InvalidateUser(ctx context.Context, tenantID, userID int64) error {
	return c.deleteMatching(ctx, shared.PermissionUserPattern(tenantID, userID))
}

// InvalidateGroup drops every cached grant on a group.
func (c *Cache) InvalidateGroup(ctx context.Context, tenantID, groupID int64) error {
	return c.deleteMatching(ctx, shared.PermissionGroupPattern(tenantID, groupID))
}

func (c *Cache) deleteMatching(ctx context.Context, pattern string) error {
	if c == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
