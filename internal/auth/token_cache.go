package auth

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	radix "github.com/mediocregopher/radix/v3"
)

// TokenCache caches parsed JWT claims in Redis, sharded by consistent hash,
// so hot sessions skip signature verification on every request.
type TokenCache struct {
	redis radix.Client
	ring  *ConsistentHashRing
	ttl   time.Duration
}

// NewTokenCache builds the cache.
func NewTokenCache(redis radix.Client, ring *ConsistentHashRing, ttl time.Duration) *TokenCache {
	if ring == nil {
		ring = NewConsistentHashRing(nil, 0)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenCache{
		redis: redis,
		ring:  ring,
		ttl:   ttl,
	}
}

func (c *TokenCache) cacheKey(token string) string {
	node := c.ring.GetNode(token)
	sum := sha1.Sum([]byte(token))
	return fmt.Sprintf("auction:auth:%s:%s", node, hex.EncodeToString(sum[:]))
}

// Get returns cached claims if present.
func (c *TokenCache) Get(ctx context.Context, token string) (*Claims, bool, error) {
	if c.redis == nil {
		return nil, false, nil
	}
	key := c.cacheKey(token)
	var raw string
	if err := c.redis.Do(radix.Cmd(&raw, "GET", key)); err != nil {
		return nil, false, err
	}
	if raw == "" {
		return nil, false, nil
	}
	var claims Claims
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		// corrupt entry, drop it and fall through to a full parse
		_ = c.redis.Do(radix.Cmd(nil, "DEL", key))
		return nil, false, nil
	}
	return &claims, true, nil
}

// Set stores parsed claims.
func (c *TokenCache) Set(ctx context.Context, token string, claims *Claims) error {
	if c.redis == nil || claims == nil {
		return nil
	}
	key := c.cacheKey(token)
	body, _ := json.Marshal(claims)
	return c.redis.Do(radix.FlatCmd(nil, "SETEX", key, int64(c.ttl/time.Second), body))
}
