package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/price-tracker/internal/alert"
	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/retry"
	"github.com/maltedev/price-tracker/internal/scraper"
	"github.com/maltedev/price-tracker/internal/storage"
)

var ErrUnsupportedSite = errors.New("unsupported site")

// ScraperFactory builds an unstarted scraper for a site.
type ScraperFactory func(site models.Site) (scraper.Scraper, error)

// RetailerFactory builds RetailerScrapers from the built-in rules.
func RetailerFactory(opts scraper.Options) ScraperFactory {
	return func(site models.Site) (scraper.Scraper, error) {
		rules, ok := scraper.RulesFor(site)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedSite, site)
		}
		return scraper.New(rules, opts), nil
	}
}

// Pacer spaces out consecutive product checks.
type Pacer interface {
	Wait(ctx context.Context) error
	RecordSuccess()
	RecordError()
}

type Options struct {
	Factory  ScraperFactory
	Store    storage.HistoryStore
	Notifier alert.Notifier
	Pacer    Pacer
	// Retry wraps every check in retry.Do with RetryOptions.
	Retry        bool
	RetryOptions retry.Options
	Metrics      *scraper.Metrics
	Logger       *slog.Logger
}

// Tracker checks every configured product once per Run.
type Tracker struct {
	factory  ScraperFactory
	store    storage.HistoryStore
	notifier alert.Notifier
	pacer    Pacer
	retry    bool
	retryOpt retry.Options
	metrics  *scraper.Metrics
	logger   *slog.Logger
}

func New(opts Options) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = alert.NewLogNotifier(logger)
	}
	retryOpt := opts.RetryOptions
	if retryOpt.Logger == nil {
		retryOpt.Logger = logger
	}
	return &Tracker{
		factory:  opts.Factory,
		store:    opts.Store,
		notifier: notifier,
		pacer:    opts.Pacer,
		retry:    opts.Retry,
		retryOpt: retryOpt,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "tracker"),
	}
}

// ProductResult is the outcome for one product in a run.
type ProductResult struct {
	Product    models.ProductSpec       `json:"product"`
	Extraction *models.ExtractionResult `json:"extraction"`
	Alerted    bool                     `json:"alerted"`
	Error      string                   `json:"error,omitempty"`
}

type Summary struct {
	RunID        string               `json:"run_id"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   time.Time            `json:"finished_at"`
	Checked      int                  `json:"checked"`
	Succeeded    int                  `json:"succeeded"`
	Failed       int                  `json:"failed"`
	Alerts       int                  `json:"alerts"`
	Results      []ProductResult      `json:"results"`
	TotalRecords int                  `json:"total_records"`
	Latest       []models.PriceRecord `json:"latest"`
}

// Run checks products grouped by site, one scraper per site. A failing
// product or site never aborts the batch, and every started scraper is
// closed before Run returns.
func (t *Tracker) Run(ctx context.Context, products []models.ProductSpec) Summary {
	summary := Summary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	logger := t.logger.With("run_id", summary.RunID)
	logger.Info("starting price tracking run", "products", len(products))

	first := true
	for _, group := range groupBySite(products) {
		if ctx.Err() != nil {
			break
		}
		results := t.runSite(ctx, logger, group.site, group.products, &first, summary.RunID)
		summary.Results = append(summary.Results, results...)
	}

	for _, r := range summary.Results {
		summary.Checked++
		switch {
		case r.Extraction != nil && r.Extraction.Success:
			summary.Succeeded++
		default:
			summary.Failed++
		}
		if r.Alerted {
			summary.Alerts++
		}
	}

	if t.store != nil {
		if n, err := t.store.Count(ctx); err != nil {
			logger.Error("failed to count history", "error", err)
		} else {
			summary.TotalRecords = n
		}
		if latest, err := t.store.Latest(ctx); err != nil {
			logger.Error("failed to read latest prices", "error", err)
		} else {
			summary.Latest = latest
		}
	}

	summary.FinishedAt = time.Now()
	logger.Info("price tracking complete",
		"checked", summary.Checked,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"alerts", summary.Alerts,
		"duration", summary.FinishedAt.Sub(summary.StartedAt))

	return summary
}

func (t *Tracker) runSite(ctx context.Context, logger *slog.Logger, site models.Site, products []models.ProductSpec, first *bool, runID string) (results []ProductResult) {
	logger = logger.With("site", string(site))

	fail := func(msg string) []ProductResult {
		out := make([]ProductResult, 0, len(products))
		for _, p := range products {
			out = append(out, ProductResult{
				Product:    p,
				Extraction: models.NewFailure(site, p.URL, msg),
				Error:      msg,
			})
		}
		return out
	}

	if t.factory == nil {
		return fail(ErrUnsupportedSite.Error())
	}
	s, err := t.factory(site)
	if err != nil {
		logger.Error("no scraper for site", "error", err)
		return fail(err.Error())
	}

	if err := s.Start(ctx); err != nil {
		logger.Error("failed to start scraper", "error", err)
		s.Close()
		return fail(err.Error())
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("failed to close scraper", "error", err)
		}
	}()

	for _, p := range products {
		if ctx.Err() != nil {
			logger.Warn("run cancelled", "error", ctx.Err())
			break
		}
		if !*first && t.pacer != nil {
			if err := t.pacer.Wait(ctx); err != nil {
				break
			}
		}
		*first = false

		results = append(results, t.checkProduct(ctx, logger, s, p, runID))
	}
	return results
}

func (t *Tracker) checkProduct(ctx context.Context, logger *slog.Logger, s scraper.Scraper, p models.ProductSpec, runID string) ProductResult {
	logger = logger.With("product", p.Name)
	logger.Info("checking product", "url", p.URL)

	var res *models.ExtractionResult
	if t.retry {
		opts := t.retryOpt
		site := string(s.Site())
		opts.OnAttempt = func(attempt int, _ *models.ExtractionResult) {
			if attempt > 1 {
				t.metrics.IncRetries(site)
			}
		}
		res = retry.Do(ctx, func(ctx context.Context) *models.ExtractionResult {
			return s.GetPrice(ctx, p.URL)
		}, opts)
	} else {
		res = s.GetPrice(ctx, p.URL)
	}

	result := ProductResult{Product: p, Extraction: res}

	if res == nil || !res.Success {
		msg := "unknown error"
		if res != nil {
			msg = res.Error
		}
		logger.Warn("could not get price", "error", msg)
		result.Error = msg
		if t.pacer != nil {
			t.pacer.RecordError()
		}
		return result
	}

	if t.pacer != nil {
		t.pacer.RecordSuccess()
	}

	rec := models.NewPriceRecord(p, res)
	t.metrics.SetPrice(p.Name, string(p.Site), rec.Price)

	if t.store != nil {
		if err := t.store.Append(ctx, rec); err != nil {
			logger.Error("failed to save price", "error", err)
			result.Error = fmt.Sprintf("failed to save price: %v", err)
		}
	}

	if alert.ShouldAlert(rec.Price, p.TargetPrice) {
		a := alert.New(p, res)
		a.RunID = runID
		if err := t.notifier.Notify(ctx, a); err != nil {
			logger.Error("failed to send alert", "error", err)
		}
		result.Alerted = true
	}

	logger.Info("price recorded", "price", rec.Price, "target_price", p.TargetPrice, "alert", result.Alerted)
	return result
}

type siteGroup struct {
	site     models.Site
	products []models.ProductSpec
}

// groupBySite keeps the first-seen order of sites and of products within a site.
func groupBySite(products []models.ProductSpec) []siteGroup {
	var groups []siteGroup
	index := make(map[models.Site]int)
	for _, p := range products {
		i, ok := index[p.Site]
		if !ok {
			i = len(groups)
			index[p.Site] = i
			groups = append(groups, siteGroup{site: p.Site})
		}
		groups[i].products = append(groups[i].products, p)
	}
	return groups
}

// Print writes a plain-text report of the run.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "Run %s: checked %d, succeeded %d, failed %d, alerts %d\n",
		s.RunID, s.Checked, s.Succeeded, s.Failed, s.Alerts)
	for _, r := range s.Results {
		if r.Extraction != nil && r.Extraction.Success {
			fmt.Fprintf(w, "  OK   %s: $%.2f\n", r.Product.Name, r.Extraction.PriceValue())
		} else {
			fmt.Fprintf(w, "  FAIL %s: %s\n", r.Product.Name, r.Error)
		}
	}
	fmt.Fprintf(w, "Total records: %d\n", s.TotalRecords)
	if len(s.Latest) > 0 {
		fmt.Fprintln(w, "Latest prices:")
		for _, rec := range s.Latest {
			fmt.Fprintf(w, "  - %s: $%.2f\n", rec.ProductName, rec.Price)
		}
	}
}
