package utils

import (
	"context"
	"sync"
	"time"
)

type slotEntry struct {
	expiresAt time.Time
}

var (
	slots   = map[string]slotEntry{}
	slotsMu sync.Mutex
)

// RedisThrottle hands out at most one slot per key per TTL across instances,
// falling back to process-local slots when Redis is unavailable.
type RedisThrottle struct{}

// Acquire claims the slot for key. It returns false while a previous claim
// is still live.
func (RedisThrottle) Acquire(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = time.Hour
	}
	// Prefer Redis SETNX for distributed consistency
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ok, err := rc.SetNX(ctx, "throttle:"+key, "1", ttl).Result()
		if err == nil {
			return ok
		}
		// fall through to in-memory on Redis error
	}
	slotsMu.Lock()
	defer slotsMu.Unlock()
	now := time.Now()
	for k, e := range slots {
		if now.After(e.expiresAt) {
			delete(slots, k)
		}
	}
	if e, held := slots[key]; held && now.Before(e.expiresAt) {
		return false
	}
	slots[key] = slotEntry{expiresAt: now.Add(ttl)}
	return true
}
