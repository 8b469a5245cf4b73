package utils

import (
	"context"
	"sync"
	"time"
)

// revokedEntry keeps expiration metadata for a revoked JWT.
type revokedEntry struct {
	expiresAt time.Time
}

var (
	revoked   = map[string]revokedEntry{}
	revokedMu sync.RWMutex
)

// BlacklistToken stores a token until its natural expiration to support
// logout semantics.
func BlacklistToken(token string, expiresAt time.Time) {
	// Prefer Redis: key with TTL until token expiration
	if rc := GetRedis(); rc != nil {
		ttl := time.Until(expiresAt)
		if ttl <= 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rc.Set(ctx, "auth:revoked:"+token, "1", ttl).Err()
		return
	}
	// Fallback to in-memory (single-instance only)
	revokedMu.Lock()
	revoked[token] = revokedEntry{expiresAt: expiresAt}
	revokedMu.Unlock()
}

// IsTokenBlacklisted checks if a token was revoked before natural expiration.
func IsTokenBlacklisted(token string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := rc.Exists(ctx, "auth:revoked:"+token).Result()
		if err == nil {
			return n > 0
		}
		// On Redis error fail-open to avoid accidental lockout
		return false
	}
	revokedMu.RLock()
	entry, ok := revoked[token]
	revokedMu.RUnlock()
	if !ok {
		return false
	}

	if time.Now().After(entry.expiresAt) {
		revokedMu.Lock()
		delete(revoked, token)
		revokedMu.Unlock()
		return false
	}

	return true
}
