package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultStream = "stream:price_alerts"

// RedisClient is the subset of the Redis client used for stream publishing.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisNotifier publishes alerts to a Redis stream.
type RedisNotifier struct {
	client RedisClient
	stream string
}

func NewRedisNotifier(client RedisClient, stream string) *RedisNotifier {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisNotifier{client: client, stream: stream}
}

func (n *RedisNotifier) Notify(ctx context.Context, a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: StreamValues(a.ID.String(), EventTypePriceDrop, a.ProductName, string(data), a.Timestamp),
	}

	if _, err := n.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// StreamValues is the field layout of every alert stream entry.
func StreamValues(id, eventType, product, data string, ts time.Time) map[string]interface{} {
	return map[string]interface{}{
		"data":        data,
		"type":        eventType,
		"timestamp":   fmt.Sprintf("%d", ts.UnixNano()),
		"original_id": id,
		"product":     product,
		"event_type":  eventType,
	}
}
