package utils

import (
	"context"
	"encoding/json"
	"time"
)

// RedisPublisher broadcasts aggregate-changed events on a Redis channel so UI
// collaborators can refresh without the engine knowing who listens.
// Publishing is best-effort: a down Redis only costs a stale screen.
type RedisPublisher struct {
	Channel string
}

// Publish sends one event with a JSON payload.
func (p RedisPublisher) Publish(event string, payload any) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	channel := p.Channel
	if channel == "" {
		channel = "paceline:events"
	}
	msg, err := json.Marshal(map[string]any{
		"event":   event,
		"payload": payload,
		"ts":      time.Now().Unix(),
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Publish(ctx, channel, msg).Err(); err != nil && Sugar != nil {
		Sugar.Debugw("event publish failed", "event", event, "err", err)
	}
}
