package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/price-tracker/internal/alert"
)

const relaySource = "price-tracker"

// OutboxRepo is the subset of OutboxRepository the relay needs.
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

// Relay publishes queued outbox events to their Redis streams.
type Relay struct {
	redis     alert.RedisClient
	outbox    OutboxRepo
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func NewRelay(db *DB, redisClient alert.RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		redis:     redisClient,
		outbox:    NewOutboxRepository(db),
		logger:    logger.With("component", "relay"),
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
	}
}

// Start drains the outbox every poll interval until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay",
		"interval", r.interval,
		"batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.processEvents(ctx); err != nil {
		r.logger.Error("failed to process events on startup", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.processEvents(ctx); err != nil {
				r.logger.Error("failed to process events", "error", err)
			}
		}
	}
}

func (r *Relay) processEvents(ctx context.Context) error {
	events, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending events: %w", err)
	}

	if len(events) == 0 {
		return nil
	}

	r.logger.Debug("processing events", "count", len(events))

	for _, event := range events {
		if err := r.processEvent(ctx, event); err != nil {
			r.logger.Error("failed to process event",
				"event_id", event.ID,
				"product", event.AggregateID,
				"error", err)
		}
	}

	return nil
}

func (r *Relay) processEvent(ctx context.Context, event *OutboxEvent) error {
	if err := r.publishToRedis(ctx, event); err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to mark event as failed",
				"event_id", event.ID,
				"error", markErr)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		r.logger.Error("failed to mark event as processed",
			"event_id", event.ID,
			"error", err)
		return err
	}

	r.logger.Info("event published",
		"event_id", event.ID,
		"event_type", event.EventType,
		"product", event.AggregateID,
		"target_stream", event.TargetStream)

	return nil
}

// publishToRedis writes the same entry layout as alert.RedisNotifier, so
// consumers decode both paths alike. Outbox bookkeeping rides along as extra
// fields.
func (r *Relay) publishToRedis(ctx context.Context, event *OutboxEvent) error {
	if !json.Valid(event.Payload) {
		return fmt.Errorf("invalid payload for event %s", event.ID)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, event.Payload); err != nil {
		return fmt.Errorf("failed to compact payload: %w", err)
	}

	values := alert.StreamValues(event.ID.String(), event.EventType, event.AggregateID, compact.String(), event.CreatedAt)
	values["aggregate_type"] = event.AggregateType
	values["retry_count"] = strconv.Itoa(event.RetryCount)
	values["source"] = relaySource

	args := &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: values,
	}

	if _, err := r.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	return nil
}
