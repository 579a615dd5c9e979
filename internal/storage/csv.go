package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/maltedev/price-tracker/internal/models"
)

var csvHeader = []string{"timestamp", "product_name", "price", "url", "target_price", "site"}

// CSVStore appends price records to a CSV file. Files written without the
// trailing site column are still readable.
type CSVStore struct {
	mu       sync.Mutex
	filename string
}

func NewCSVStore(filename string) (*CSVStore, error) {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	s := &CSVStore{filename: filename}

	info, err := os.Stat(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat history file: %w", err)
	}
	if os.IsNotExist(err) || info.Size() == 0 {
		if err := s.writeRows([][]string{csvHeader}); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *CSVStore) Append(ctx context.Context, rec models.PriceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeRows([][]string{{
		rec.Timestamp.Format(models.TimestampLayout),
		rec.ProductName,
		strconv.FormatFloat(rec.Price, 'f', 2, 64),
		rec.URL,
		strconv.FormatFloat(rec.TargetPrice, 'f', 2, 64),
		string(rec.Site),
	}})
}

func (s *CSVStore) Latest(ctx context.Context) ([]models.PriceRecord, error) {
	records, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return LatestByProduct(records), nil
}

func (s *CSVStore) History(ctx context.Context, product string) ([]models.PriceRecord, error) {
	records, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.PriceRecord
	for _, rec := range records {
		if rec.ProductName == product {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *CSVStore) Count(ctx context.Context) (int, error) {
	records, err := s.readAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *CSVStore) Close() error {
	return nil
}

func (s *CSVStore) writeRows(rows [][]string) error {
	f, err := os.OpenFile(s.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	return f.Close()
}

func (s *CSVStore) readAll(ctx context.Context) ([]models.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var records []models.PriceRecord
	for line := 1; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read history: %w", err)
		}
		if line == 1 && len(row) > 0 && row[0] == csvHeader[0] {
			continue
		}

		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("invalid history row %d: %w", line, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func parseRow(row []string) (models.PriceRecord, error) {
	if len(row) < 5 {
		return models.PriceRecord{}, fmt.Errorf("expected at least 5 columns, got %d", len(row))
	}

	ts, err := time.ParseInLocation(models.TimestampLayout, row[0], time.Local)
	if err != nil {
		return models.PriceRecord{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	price, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return models.PriceRecord{}, fmt.Errorf("failed to parse price: %w", err)
	}
	target, err := strconv.ParseFloat(row[4], 64)
	if err != nil {
		return models.PriceRecord{}, fmt.Errorf("failed to parse target price: %w", err)
	}

	rec := models.PriceRecord{
		Timestamp:   ts,
		ProductName: row[1],
		Price:       price,
		URL:         row[3],
		TargetPrice: target,
	}
	if len(row) > 5 {
		rec.Site = models.Site(row[5])
	}
	return rec, nil
}
