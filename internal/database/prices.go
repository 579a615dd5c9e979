package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/storage"
)

var _ storage.HistoryStore = (*PriceRepository)(nil)

// PriceRepository stores price history in Postgres. Rows are insert-only.
type PriceRepository struct {
	db *DB
}

func NewPriceRepository(db *DB) *PriceRepository {
	return &PriceRepository{db: db}
}

const insertPriceQuery = `
	INSERT INTO price_history (recorded_at, product_name, price, url, target_price, site)
	VALUES ($1, $2, $3, $4, $5, $6)`

func (r *PriceRepository) Append(ctx context.Context, rec models.PriceRecord) error {
	_, err := r.db.pool.Exec(ctx, insertPriceQuery,
		rec.Timestamp, rec.ProductName, rec.Price, rec.URL, rec.TargetPrice, string(rec.Site))
	if err != nil {
		return fmt.Errorf("failed to insert price record: %w", err)
	}
	return nil
}

// AppendWithEvent inserts the record and an outbox event in one transaction.
func (r *PriceRepository) AppendWithEvent(ctx context.Context, rec models.PriceRecord, event *OutboxEvent) error {
	outbox := NewOutboxRepository(r.db)
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertPriceQuery,
			rec.Timestamp, rec.ProductName, rec.Price, rec.URL, rec.TargetPrice, string(rec.Site)); err != nil {
			return fmt.Errorf("failed to insert price record: %w", err)
		}
		return outbox.InsertWithTx(ctx, tx, event)
	})
}

func (r *PriceRepository) Latest(ctx context.Context) ([]models.PriceRecord, error) {
	query := `
		SELECT DISTINCT ON (product_name)
			recorded_at, product_name, price::float8, url, target_price::float8, site
		FROM price_history
		ORDER BY product_name, recorded_at DESC, id DESC`

	return r.query(ctx, query)
}

func (r *PriceRepository) History(ctx context.Context, product string) ([]models.PriceRecord, error) {
	query := `
		SELECT recorded_at, product_name, price::float8, url, target_price::float8, site
		FROM price_history
		WHERE product_name = $1
		ORDER BY recorded_at ASC, id ASC`

	return r.query(ctx, query, product)
}

func (r *PriceRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM price_history").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count price records: %w", err)
	}
	return count, nil
}

// Close releases the pool.
func (r *PriceRepository) Close() error {
	r.db.Close()
	return nil
}

func (r *PriceRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.PriceRecord, error) {
	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var records []models.PriceRecord
	for rows.Next() {
		var rec models.PriceRecord
		var site string
		if err := rows.Scan(&rec.Timestamp, &rec.ProductName, &rec.Price, &rec.URL, &rec.TargetPrice, &site); err != nil {
			return nil, fmt.Errorf("failed to scan price record: %w", err)
		}
		rec.Site = models.Site(site)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}
