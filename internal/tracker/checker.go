package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/scraper"
)

const defaultCacheSize = 256

// Checker runs on-demand price checks. Checks are serialized so each site's
// session only ever handles one navigation at a time. Successful results are
// cached for the configured TTL.
type Checker struct {
	mu       sync.Mutex
	factory  ScraperFactory
	scrapers map[models.Site]scraper.Scraper
	cache    *expirable.LRU[string, models.ExtractionResult]
	logger   *slog.Logger
}

func NewChecker(factory ScraperFactory, ttl time.Duration, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	var cache *expirable.LRU[string, models.ExtractionResult]
	if ttl > 0 {
		cache = expirable.NewLRU[string, models.ExtractionResult](defaultCacheSize, nil, ttl)
	}
	return &Checker{
		factory:  factory,
		scrapers: make(map[models.Site]scraper.Scraper),
		cache:    cache,
		logger:   logger.With("component", "checker"),
	}
}

// Check returns the current price at url. The error is non-nil only when no
// scraper could be started for site; extraction failures are in the result.
func (c *Checker) Check(ctx context.Context, site models.Site, url string) (*models.ExtractionResult, error) {
	key := string(site) + "|" + url

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			c.logger.Debug("serving cached result", "site", site, "url", url)
			return &cached, nil
		}
	}

	s, err := c.scraperFor(ctx, site)
	if err != nil {
		return nil, err
	}

	result := s.GetPrice(ctx, url)
	if result != nil && result.Success && c.cache != nil {
		c.cache.Add(key, *result)
	}
	return result, nil
}

func (c *Checker) scraperFor(ctx context.Context, site models.Site) (scraper.Scraper, error) {
	if s, ok := c.scrapers[site]; ok {
		return s, nil
	}
	if c.factory == nil {
		return nil, ErrUnsupportedSite
	}

	s, err := c.factory(site)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start scraper: %w", err)
	}

	c.logger.Info("scraper session opened", "site", site)
	c.scrapers[site] = s
	return s, nil
}

// Close releases every open session.
func (c *Checker) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for site, s := range c.scrapers {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", site, err))
		}
		delete(c.scrapers, site)
	}
	if c.cache != nil {
		c.cache.Purge()
	}
	return errors.Join(errs...)
}
