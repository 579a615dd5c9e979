package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for price checks.
type Metrics struct {
	Registry      *prometheus.Registry
	ChecksTotal   *prometheus.CounterVec
	CheckDuration *prometheus.HistogramVec
	RetriesTotal  *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec
	LastPrice     *prometheus.GaugeVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	checks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_checks_total",
			Help: "Total price checks by site and outcome.",
		},
		[]string{"site", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_check_duration_seconds",
			Help:    "Duration of a single price check including the pre-navigation delay.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"site"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_check_retries_total",
			Help: "Total number of retried price checks.",
		},
		[]string{"site"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_check_errors_total",
			Help: "Total number of failed price checks by error type.",
		},
		[]string{"site", "error_type"},
	)
	lastPrice := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracked_product_price",
			Help: "Last observed price per tracked product.",
		},
		[]string{"product", "site"},
	)

	registry.MustRegister(checks, duration, retries, errorsTotal, lastPrice)

	return &Metrics{
		Registry:      registry,
		ChecksTotal:   checks,
		CheckDuration: duration,
		RetriesTotal:  retries,
		ErrorsTotal:   errorsTotal,
		LastPrice:     lastPrice,
	}
}

// ObserveCheck records the outcome and duration of one check.
func (m *Metrics) ObserveCheck(site string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.ChecksTotal.WithLabelValues(site, outcome).Inc()
	m.CheckDuration.WithLabelValues(site).Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries(site string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(site).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(site, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(site, errorType).Inc()
}

// SetPrice records the last price seen for a product.
func (m *Metrics) SetPrice(product, site string, price float64) {
	if m == nil {
		return
	}
	m.LastPrice.WithLabelValues(product, site).Set(price)
}
