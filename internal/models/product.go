package models

import (
	"strings"
	"time"
)

// TimestampLayout is the second-precision layout used for results and history rows.
const TimestampLayout = "2006-01-02 15:04:05"

type Site string

const (
	SiteAmazon  Site = "Amazon"
	SiteWalmart Site = "Walmart"
)

// ParseSite matches a retailer tag case-insensitively. Unknown tags are returned as-is.
func ParseSite(s string) Site {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "amazon":
		return SiteAmazon
	case "walmart":
		return SiteWalmart
	}
	return Site(strings.TrimSpace(s))
}

// ProductSpec is one configured product to track.
type ProductSpec struct {
	Name        string  `json:"name" yaml:"name"`
	URL         string  `json:"url" yaml:"url"`
	TargetPrice float64 `json:"target_price" yaml:"target_price"`
	Site        Site    `json:"site" yaml:"site"`
}

// ExtractionResult is the outcome of a single price check. Success implies a
// positive Price; a failed result always carries Error.
type ExtractionResult struct {
	Success   bool     `json:"success"`
	Price     *float64 `json:"price,omitempty"`
	Currency  string   `json:"currency,omitempty"`
	Title     string   `json:"title,omitempty"`
	URL       string   `json:"url"`
	Timestamp string   `json:"timestamp"`
	Error     string   `json:"error,omitempty"`
	Site      Site     `json:"site"`
}

// NewFailure builds a failed result stamped with the current time.
func NewFailure(site Site, url, msg string) *ExtractionResult {
	return &ExtractionResult{
		Success:   false,
		URL:       url,
		Timestamp: time.Now().Format(TimestampLayout),
		Error:     msg,
		Site:      site,
	}
}

// PriceValue returns the price or zero when absent.
func (r *ExtractionResult) PriceValue() float64 {
	if r == nil || r.Price == nil {
		return 0
	}
	return *r.Price
}

// PriceRecord is one appended row of price history.
type PriceRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	ProductName string    `json:"product_name"`
	Price       float64   `json:"price"`
	URL         string    `json:"url"`
	TargetPrice float64   `json:"target_price"`
	Site        Site      `json:"site"`
}

// NewPriceRecord converts a successful result into a history row.
func NewPriceRecord(p ProductSpec, r *ExtractionResult) PriceRecord {
	ts, err := time.ParseInLocation(TimestampLayout, r.Timestamp, time.Local)
	if err != nil {
		ts = time.Now()
	}
	return PriceRecord{
		Timestamp:   ts,
		ProductName: p.Name,
		Price:       r.PriceValue(),
		URL:         p.URL,
		TargetPrice: p.TargetPrice,
		Site:        p.Site,
	}
}
