package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel used when none is configured.
const DefaultRedisChannel = "frontdesk:escalations"

// Publisher is the subset of the Redis client used for notifications.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes notifications as JSON on a Redis channel.
type RedisNotifier struct {
	client  Publisher
	channel string
}

// NewRedisNotifier wraps an existing Redis client.
func NewRedisNotifier(client Publisher, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

// DialRedis creates a Redis client for addr. The connection is established lazily.
func DialRedis(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

func (r *RedisNotifier) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshalling notification: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", r.channel, err)
	}
	return nil
}
