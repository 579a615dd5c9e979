package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maltedev/price-tracker/internal/alert"
)

const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessed  = "processed"
	OutboxStatusFailed     = "failed"
	OutboxStatusDeadLetter = "dead_letter"

	// MaxRetryCount is the number of failed publishes before an event is dead-lettered.
	MaxRetryCount = 5

	AggregateProduct = "product"
)

// OutboxEvent is an alert waiting to be published to its stream.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	TargetStream  string          `db:"target_stream"`
	Status        string          `db:"status"`
	RetryCount    int             `db:"retry_count"`
	ErrorMessage  *string         `db:"error_message"`
	CreatedAt     time.Time       `db:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
}

// NewAlertEvent wraps a price-drop alert for the outbox.
func NewAlertEvent(a alert.Alert, stream string) (*OutboxEvent, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert: %w", err)
	}
	if stream == "" {
		stream = alert.DefaultStream
	}
	return &OutboxEvent{
		ID:            a.ID,
		AggregateType: AggregateProduct,
		AggregateID:   a.ProductName,
		EventType:     alert.EventTypePriceDrop,
		Payload:       payload,
		TargetStream:  stream,
	}, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type OutboxRepository struct {
	db *DB
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Insert writes the event outside of any transaction.
func (r *OutboxRepository) Insert(ctx context.Context, event *OutboxEvent) error {
	return r.insert(ctx, r.db.pool, event)
}

// InsertWithTx writes the event as part of tx.
func (r *OutboxRepository) InsertWithTx(ctx context.Context, tx execer, event *OutboxEvent) error {
	return r.insert(ctx, tx, event)
}

func (r *OutboxRepository) insert(ctx context.Context, ex execer, event *OutboxEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = OutboxStatusPending
	}
	if event.TargetStream == "" {
		event.TargetStream = alert.DefaultStream
	}

	now := time.Now()
	event.CreatedAt = now
	if event.NextRetryAt == nil {
		event.NextRetryAt = &now
	}

	query := `
		INSERT INTO outbox_event (
			id, aggregate_type, aggregate_id, event_type,
			payload, target_stream, status, retry_count,
			created_at, next_retry_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := ex.Exec(ctx, query,
		event.ID, event.AggregateType, event.AggregateID, event.EventType,
		event.Payload, event.TargetStream, event.Status, event.RetryCount,
		event.CreatedAt, event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return nil
}

// GetPending returns due pending or failed events, oldest first.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `
		SELECT
			id, aggregate_type, aggregate_id, event_type,
			payload, target_stream, status, retry_count,
			error_message, created_at, processed_at, next_retry_at
		FROM outbox_event
		WHERE status IN ($1, $2)
			AND next_retry_at <= $3
		ORDER BY created_at ASC
		LIMIT $4`

	rows, err := r.db.pool.Query(ctx, query,
		OutboxStatusPending, OutboxStatusFailed,
		time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		event := &OutboxEvent{}
		err := rows.Scan(
			&event.ID, &event.AggregateType, &event.AggregateID, &event.EventType,
			&event.Payload, &event.TargetStream, &event.Status, &event.RetryCount,
			&event.ErrorMessage, &event.CreatedAt, &event.ProcessedAt, &event.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.pool.Exec(ctx,
		`UPDATE outbox_event SET status = $1, processed_at = $2 WHERE id = $3`,
		OutboxStatusProcessed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("event not found: %s", id)
	}

	return nil
}

// MarkFailed bumps the retry count and schedules the next attempt, moving the
// event to the dead letter state after MaxRetryCount failures.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, processErr error) error {
	var retryCount int
	err := r.db.pool.QueryRow(ctx,
		"SELECT retry_count FROM outbox_event WHERE id = $1", id).Scan(&retryCount)
	if err != nil {
		return fmt.Errorf("failed to get retry count: %w", err)
	}

	retryCount++
	status := OutboxStatusFailed
	if retryCount >= MaxRetryCount {
		status = OutboxStatusDeadLetter
	}

	_, err = r.db.pool.Exec(ctx, `
		UPDATE outbox_event
		SET status = $1, retry_count = $2, error_message = $3, next_retry_at = $4
		WHERE id = $5`,
		status, retryCount, processErr.Error(), nextRetryTime(time.Now(), retryCount), id)
	if err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}

	return nil
}

// CountByStatus returns the number of events in each status.
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT status, COUNT(*) FROM outbox_event GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// nextRetryTime doubles the wait per failure (1s, 2s, 4s, ...) up to five minutes.
func nextRetryTime(now time.Time, retryCount int) time.Time {
	backoff := 300
	if retryCount < 9 {
		backoff = 1 << retryCount
		if backoff > 300 {
			backoff = 300
		}
	}
	return now.Add(time.Duration(backoff) * time.Second)
}

// OutboxNotifier queues alerts in the outbox for the Relay to publish.
type OutboxNotifier struct {
	outbox *OutboxRepository
	stream string
}

func NewOutboxNotifier(db *DB, stream string) *OutboxNotifier {
	return &OutboxNotifier{outbox: NewOutboxRepository(db), stream: stream}
}

func (n *OutboxNotifier) Notify(ctx context.Context, a alert.Alert) error {
	event, err := NewAlertEvent(a, n.stream)
	if err != nil {
		return err
	}
	return n.outbox.Insert(ctx, event)
}
