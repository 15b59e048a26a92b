package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-attempt/internal/config"
)

// RedisPublisher fans notifications out over Redis Pub/Sub. The SSE monitor and
// the WebSocket relay subscribe to the same channels.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, room Room, event Event, payload any) error {
	msg, err := Encode(room, event, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := p.rdb.Publish(ctx, Channel(room), msg).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event, room, err)
	}
	return nil
}

// Channel returns the Redis channel carrying room.
func Channel(room Room) string {
	return config.CacheKey.RoomChannel(string(room))
}
