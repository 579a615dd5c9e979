package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultConsumerGroup = "price-alert-consumers"

// StreamReader is the subset of the Redis client used to consume alerts.
type StreamReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
}

type ConsumerConfig struct {
	Stream   string
	Group    string
	Name     string
	Block    time.Duration
	Count    int64
	ErrorGap time.Duration
	// ClaimIdle is how long an entry stays pending before Reclaim takes it
	// over; ClaimInterval spaces out the sweeps in Run.
	ClaimIdle     time.Duration
	ClaimInterval time.Duration
}

// Consumer reads price-drop alerts from a stream through a consumer group
// and hands each one to a Notifier. Entries are acknowledged once handled;
// failed ones stay pending until a later Reclaim retries them.
type Consumer struct {
	client  StreamReader
	handler Notifier
	cfg     ConsumerConfig
	logger  *slog.Logger
}

func NewConsumer(client StreamReader, handler Notifier, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Group == "" {
		cfg.Group = DefaultConsumerGroup
	}
	if cfg.Name == "" {
		cfg.Name = "consumer-1"
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if cfg.ErrorGap <= 0 {
		cfg.ErrorGap = time.Second
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = time.Minute
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:  client,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With("component", "alert_consumer"),
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	c.logger.Info("starting consumer", "stream", c.cfg.Stream, "group", c.cfg.Group)

	var lastClaim time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if time.Since(lastClaim) >= c.cfg.ClaimInterval {
			if _, err := c.Reclaim(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("failed to reclaim pending messages", "error", err)
			}
			lastClaim = time.Now()
		}

		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.ErrorGap):
			}
		}
	}
}

// Poll reads one batch and returns how many entries were acknowledged.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		acked += c.process(ctx, stream.Messages)
	}
	return acked, nil
}

// Reclaim takes over entries left pending longer than ClaimIdle, by this or
// any other consumer in the group, and handles them again. It returns how
// many were acknowledged.
func (c *Consumer) Reclaim(ctx context.Context) (int, error) {
	acked := 0
	start := "0-0"
	for {
		messages, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.cfg.Stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Name,
			MinIdle:  c.cfg.ClaimIdle,
			Start:    start,
			Count:    c.cfg.Count,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return acked, nil
			}
			return acked, fmt.Errorf("failed to claim pending messages: %w", err)
		}

		if len(messages) > 0 {
			c.logger.Info("reclaimed pending messages", "count", len(messages))
		}
		acked += c.process(ctx, messages)

		if next == "" || next == "0-0" || next == start {
			return acked, nil
		}
		start = next
	}
}

func (c *Consumer) process(ctx context.Context, messages []redis.XMessage) int {
	acked := 0
	for _, message := range messages {
		if err := c.handle(ctx, message); err != nil {
			c.logger.Error("failed to process message", "id", message.ID, "error", err)
			continue
		}
		if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, message.ID).Err(); err != nil {
			c.logger.Error("failed to acknowledge message", "id", message.ID, "error", err)
			continue
		}
		acked++
	}
	return acked
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) error {
	eventType, _ := msg.Values["event_type"].(string)
	if eventType != EventTypePriceDrop {
		c.logger.Debug("skipping event", "id", msg.ID, "event_type", eventType)
		return nil
	}

	// Undecodable entries would fail on every reclaim, so they are dropped.
	a, err := DecodeAlert(msg.Values)
	if err != nil {
		c.logger.Error("dropping malformed message", "id", msg.ID, "error", err)
		return nil
	}
	return c.handler.Notify(ctx, a)
}

// DecodeAlert parses the data field of a stream entry.
func DecodeAlert(values map[string]interface{}) (Alert, error) {
	data, ok := values["data"].(string)
	if !ok {
		return Alert{}, fmt.Errorf("missing data in event")
	}

	var a Alert
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return Alert{}, fmt.Errorf("failed to parse alert: %w", err)
	}
	return a, nil
}
