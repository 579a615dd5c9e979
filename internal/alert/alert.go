package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/price-tracker/internal/models"
)

const EventTypePriceDrop = "PRICE_DROP_ALERT"

// ShouldAlert reports whether price has dropped to or below target. A missing
// price or target never alerts.
func ShouldAlert(price, target float64) bool {
	return price > 0 && target > 0 && price <= target
}

// Alert is a price-drop notification for one product.
type Alert struct {
	ID          uuid.UUID   `json:"id"`
	RunID       string      `json:"run_id,omitempty"`
	ProductName string      `json:"product_name"`
	Site        models.Site `json:"site"`
	URL         string      `json:"url"`
	Title       string      `json:"title,omitempty"`
	Price       float64     `json:"price"`
	TargetPrice float64     `json:"target_price"`
	Timestamp   time.Time   `json:"timestamp"`
}

// New builds an alert from a product and a successful result.
func New(p models.ProductSpec, r *models.ExtractionResult) Alert {
	rec := models.NewPriceRecord(p, r)
	return Alert{
		ID:          uuid.New(),
		ProductName: p.Name,
		Site:        p.Site,
		URL:         p.URL,
		Title:       r.Title,
		Price:       rec.Price,
		TargetPrice: p.TargetPrice,
		Timestamp:   rec.Timestamp,
	}
}

// Message is the human-readable form of the alert.
func (a Alert) Message() string {
	return fmt.Sprintf("ALERT! %s is $%.2f (below target $%.2f)", a.ProductName, a.Price, a.TargetPrice)
}

type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "alert")}
}

func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	n.logger.Warn(a.Message(),
		"alert_id", a.ID,
		"product", a.ProductName,
		"site", a.Site,
		"price", a.Price,
		"target_price", a.TargetPrice,
		"url", a.URL)
	return nil
}

// MultiNotifier fans an alert out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
