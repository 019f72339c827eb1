// Package cache holds the Redis-backed credential cache. WebDAV
// clients send Basic auth on every request; caching a salted digest of
// verified pairs keeps bcrypt off the hot path.
package cache

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const credentialTTL = 5 * time.Minute

// CredentialCache remembers recently verified Basic credentials.
// Passwords never reach Redis: only an HMAC keyed by a per-process
// random value is stored.
type CredentialCache struct {
	rdb *redis.Client
	key []byte
}

// NewCredentialCache wraps an existing Redis client. The hmacKey
// should be random per process so cached digests are useless to
// anything else reading the cache.
func NewCredentialCache(rdb *redis.Client, hmacKey []byte) *CredentialCache {
	return &CredentialCache{rdb: rdb, key: hmacKey}
}

func (c *CredentialCache) digest(username, password string) (string, string) {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(username))
	mac.Write([]byte{0})
	mac.Write([]byte(password))
	return "basic:" + username, hex.EncodeToString(mac.Sum(nil))
}

// Check reports whether this exact pair was verified recently.
func (c *CredentialCache) Check(ctx context.Context, username, password string) bool {
	key, want := c.digest(username, password)
	got, err := c.rdb.Get(ctx, key).Result()
	return err == nil && hmac.Equal([]byte(got), []byte(want))
}

// Remember stores a verified pair for the cache window.
func (c *CredentialCache) Remember(ctx context.Context, username, password string) {
	key, digest := c.digest(username, password)
	// Failures only cost a bcrypt on the next request.
	c.rdb.Set(ctx, key, digest, credentialTTL)
}
