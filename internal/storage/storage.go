package storage

import (
	"context"
	"sort"

	"github.com/maltedev/price-tracker/internal/models"
)

// HistoryStore is an append-only price history. Rows are never updated or deleted.
type HistoryStore interface {
	Append(ctx context.Context, rec models.PriceRecord) error
	// Latest returns the most recent record per product, ordered by product name.
	Latest(ctx context.Context) ([]models.PriceRecord, error)
	// History returns every record of one product in insertion order.
	History(ctx context.Context, product string) ([]models.PriceRecord, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// LatestByProduct keeps the last record seen per product name.
func LatestByProduct(records []models.PriceRecord) []models.PriceRecord {
	latest := make(map[string]models.PriceRecord)
	for _, rec := range records {
		latest[rec.ProductName] = rec
	}

	out := make([]models.PriceRecord, 0, len(latest))
	for _, rec := range latest {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProductName < out[j].ProductName
	})
	return out
}
