package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/price-tracker/internal/browser"
	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/ratelimit"
	"github.com/maltedev/price-tracker/internal/retry"
)

var _ Scraper = (*RetailerScraper)(nil)

type Options struct {
	Launcher          Launcher
	Delay             *ratelimit.HumanDelay
	Detector          *browser.BlockDetector
	NavigationTimeout time.Duration
	// NetworkIdleTimeout, when positive, waits for the network to settle
	// after navigation on pages that support it.
	NetworkIdleTimeout time.Duration
	// Scroll enables a random scroll before extraction on pages that can
	// evaluate scripts.
	Scroll  bool
	Rand    *rand.Rand
	Metrics *Metrics
	Logger  *slog.Logger
}

// RetailerScraper drives one browser session through a retailer's
// extraction rules. A session must not be used by concurrent GetPrice calls;
// RetailerScraper serializes them.
type RetailerScraper struct {
	rules    Rules
	launcher Launcher
	delay    *ratelimit.HumanDelay
	detector *browser.BlockDetector
	timeout  time.Duration
	idle     time.Duration
	scroll   bool
	rng      *rand.Rand
	metrics  *Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	session Session
}

func New(rules Rules, opts Options) *RetailerScraper {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scraper", "site", string(rules.Site))

	rng := opts.Rand
	if rng == nil {
		rng = browser.NewRand(0)
	}

	launcher := opts.Launcher
	if launcher == nil {
		launcher = BrowserLauncher(browser.DefaultOptions())
	}

	delay := opts.Delay
	if delay == nil {
		delay = ratelimit.NewHumanDelay(2*time.Second, 4*time.Second, rng)
	}

	detector := opts.Detector
	if detector == nil {
		detector = browser.NewBlockDetector(logger)
	}

	timeout := opts.NavigationTimeout
	if timeout <= 0 {
		timeout = retry.DefaultNavigationTimeout
	}

	return &RetailerScraper{
		rules:    rules,
		launcher: launcher,
		delay:    delay,
		detector: detector,
		timeout:  timeout,
		idle:     opts.NetworkIdleTimeout,
		scroll:   opts.Scroll,
		rng:      rng,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

func (s *RetailerScraper) Site() models.Site {
	return s.rules.Site
}

// Start acquires the browser session. Calling Start again before Close
// returns ErrAlreadyStarted instead of leaking a second browser.
func (s *RetailerScraper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return ErrAlreadyStarted
	}

	session, err := s.launcher(ctx)
	if err != nil {
		return fmt.Errorf("failed to start %s scraper: %w", s.rules.Site, err)
	}
	s.session = session

	s.logger.Info("scraper started")
	return nil
}

// Close releases the session. It is safe to call more than once.
func (s *RetailerScraper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}

	err := s.session.Close()
	s.session = nil
	if err != nil {
		return fmt.Errorf("failed to close %s scraper: %w", s.rules.Site, err)
	}

	s.logger.Info("scraper closed")
	return nil
}

// GetPrice navigates to url and extracts price and title. It never panics
// and never returns an error; failures are reported in the result.
func (s *RetailerScraper) GetPrice(ctx context.Context, url string) (result *models.ExtractionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	site := string(s.rules.Site)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("price extraction panicked", "url", url, "panic", r)
			s.metrics.IncError(site, "panic")
			result = models.NewFailure(s.rules.Site, url, fmt.Sprint(r))
		}
		s.metrics.ObserveCheck(site, result.Success, time.Since(start))
	}()

	if s.session == nil {
		s.metrics.IncError(site, "not_started")
		return models.NewFailure(s.rules.Site, url, ErrNotStarted.Error())
	}

	if _, err := s.delay.Wait(ctx); err != nil {
		s.metrics.IncError(site, retry.Classify(err))
		return models.NewFailure(s.rules.Site, url, err.Error())
	}

	s.logger.Info("visiting product page", "url", url)

	page := s.session.Page()

	navErr := retry.Navigate(ctx, page, url, s.timeout)
	var statusErr *retry.StatusError
	if navErr != nil && !errors.As(navErr, &statusErr) {
		s.logger.Warn("navigation failed", "url", url, "error", navErr)
		s.metrics.IncError(site, retry.Classify(navErr))
		return models.NewFailure(s.rules.Site, url, navErr.Error())
	}

	if s.idle > 0 {
		if idler, ok := page.(browser.NetworkIdler); ok && !idler.WaitForNetworkIdle(s.idle) {
			s.logger.Debug("network did not settle", "url", url)
		}
	}

	// challenge pages are often served with an error status
	if s.detector.Check(page) {
		s.metrics.IncError(site, "blocked")
		return models.NewFailure(s.rules.Site, url, ErrBlocked.Error())
	}

	if statusErr != nil {
		s.logger.Warn("navigation returned error status", "url", url, "status", statusErr.Status)
		s.metrics.IncError(site, retry.ClassHTTPStatus)
		return models.NewFailure(s.rules.Site, url, statusErr.Error())
	}

	if s.scroll {
		if ev, ok := page.(browser.Evaluator); ok {
			if err := browser.HumanScroll(ctx, ev, s.rng); err != nil {
				s.logger.Debug("scroll failed", "url", url, "error", err)
			}
		}
	}

	return s.extract(page, url)
}

func (s *RetailerScraper) extract(page browser.Page, url string) *models.ExtractionResult {
	site := string(s.rules.Site)

	result := &models.ExtractionResult{
		URL:  url,
		Site: s.rules.Site,
	}

	priceText, selector, err := firstText(page, s.rules.PriceSelectors)
	if err != nil {
		s.metrics.IncError(site, "extraction")
		return models.NewFailure(s.rules.Site, url, err.Error())
	}
	if priceText != "" {
		if price, ok := NormalizePrice(priceText); ok && price > 0 {
			result.Price = &price
			s.logger.Debug("price matched", "selector", selector, "text", priceText)
		}
	}

	if len(s.rules.CurrencySelectors) > 0 {
		symbol, _, err := firstText(page, s.rules.CurrencySelectors)
		if err != nil {
			s.logger.Debug("currency lookup failed", "error", err)
		}
		result.Currency = symbol
	}

	if s.rules.TitleSelector != "" {
		title, _, err := firstText(page, []string{s.rules.TitleSelector})
		if err != nil {
			s.metrics.IncError(site, "extraction")
			return models.NewFailure(s.rules.Site, url, err.Error())
		}
		result.Title = TruncateTitle(title)
	}

	result.Timestamp = time.Now().Format(models.TimestampLayout)

	if result.Price == nil {
		result.Error = ErrPriceNotFound.Error()
		s.metrics.IncError(site, "price_not_found")
		s.logger.Warn("price not found", "url", url, "title", result.Title)
		return result
	}

	result.Success = true
	s.logger.Info("price extracted", "url", url, "price", *result.Price, "title", result.Title)
	return result
}

// firstText returns the trimmed text of the first selector that matches an
// element with non-empty text.
func firstText(page browser.Page, selectors []string) (string, string, error) {
	for _, selector := range selectors {
		el, err := page.FindFirst(selector)
		if err != nil {
			return "", "", fmt.Errorf("failed to query %q: %w", selector, err)
		}
		if el == nil {
			continue
		}
		text, err := el.Text()
		if err != nil {
			return "", "", fmt.Errorf("failed to read %q: %w", selector, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, selector, nil
		}
	}
	return "", "", nil
}
