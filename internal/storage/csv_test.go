package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/price-tracker/internal/models"
)

func record(name string, price float64, ts string) models.PriceRecord {
	t, _ := time.ParseInLocation(models.TimestampLayout, ts, time.Local)
	return models.PriceRecord{
		Timestamp:   t,
		ProductName: name,
		Price:       price,
		URL:         "https://www.amazon.com/dp/" + strings.ReplaceAll(name, " ", ""),
		TargetPrice: 250,
		Site:        models.SiteAmazon,
	}
}

func TestCSVStoreAppendAndRead(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "price_history.csv")

	store, err := NewCSVStore(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append(ctx, record("Sony Headphones", 278.00, "2025-03-01 10:00:00")))
	require.NoError(t, store.Append(ctx, record("Echo Dot", 49.99, "2025-03-01 10:00:10")))
	require.NoError(t, store.Append(ctx, record("Sony Headphones", 229.99, "2025-03-02 10:00:00")))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	history, err := store.History(ctx, "Sony Headphones")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 278.00, history[0].Price)
	assert.Equal(t, 229.99, history[1].Price)
	assert.Equal(t, models.SiteAmazon, history[1].Site)
	assert.Equal(t, "2025-03-02 10:00:00", history[1].Timestamp.Format(models.TimestampLayout))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "Echo Dot", latest[0].ProductName)
	assert.Equal(t, "Sony Headphones", latest[1].ProductName)
	assert.Equal(t, 229.99, latest[1].Price)
}

func TestCSVStoreWritesHeaderOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "price_history.csv")

	store, err := NewCSVStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, record("Echo Dot", 49.99, "2025-03-01 10:00:00")))

	reopened, err := NewCSVStore(path)
	require.NoError(t, err)
	require.NoError(t, reopened.Append(ctx, record("Echo Dot", 44.99, "2025-03-02 10:00:00")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,product_name,price,url,target_price,site", lines[0])
	assert.Equal(t, "2025-03-01 10:00:00,Echo Dot,49.99,https://www.amazon.com/dp/EchoDot,250.00,Amazon", lines[1])
}

func TestCSVStoreReadsLegacyRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "price_history.csv")
	legacy := "timestamp,product_name,price,url,target_price\n" +
		"2025-02-01 09:30:00,Kindle Paperwhite,139.99,https://www.amazon.com/dp/B08KTZ8249,120.0\n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	store, err := NewCSVStore(path)
	require.NoError(t, err)

	history, err := store.History(context.Background(), "Kindle Paperwhite")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 139.99, history[0].Price)
	assert.Equal(t, 120.0, history[0].TargetPrice)
	assert.Empty(t, history[0].Site)
}

func TestCSVStoreInvalidRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "price_history.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,product_name,price,url,target_price,site\nyesterday,x,abc,u,1,Amazon\n"), 0644))

	store, err := NewCSVStore(path)
	require.NoError(t, err)

	_, err = store.Count(context.Background())
	assert.Error(t, err)
}

func TestCSVStoreCancelledContext(t *testing.T) {
	store, err := NewCSVStore(filepath.Join(t.TempDir(), "price_history.csv"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Append(ctx, record("Echo Dot", 49.99, "2025-03-01 10:00:00")), context.Canceled)
}

func TestLatestByProduct(t *testing.T) {
	latest := LatestByProduct([]models.PriceRecord{
		record("b", 2, "2025-03-01 10:00:00"),
		record("a", 1, "2025-03-01 10:00:00"),
		record("b", 3, "2025-03-02 10:00:00"),
	})

	require.Len(t, latest, 2)
	assert.Equal(t, "a", latest[0].ProductName)
	assert.Equal(t, 3.0, latest[1].Price)
}
