package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/price-tracker/internal/alert"
	"github.com/maltedev/price-tracker/internal/browser"
	"github.com/maltedev/price-tracker/internal/config"
	"github.com/maltedev/price-tracker/internal/database"
	"github.com/maltedev/price-tracker/internal/ratelimit"
	"github.com/maltedev/price-tracker/internal/retry"
	"github.com/maltedev/price-tracker/internal/scraper"
	"github.com/maltedev/price-tracker/internal/storage"
	"github.com/maltedev/price-tracker/internal/tracker"
)

// Deps holds the long-lived resources shared by the binaries.
type Deps struct {
	Config   *config.Config
	Logger   *slog.Logger
	Rand     *rand.Rand
	Metrics  *scraper.Metrics
	Store    storage.HistoryStore
	DB       *database.DB
	Redis    *redis.Client
	Notifier alert.Notifier
}

// Open connects the history store and alert sinks selected by cfg.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	d := &Deps{
		Config:  cfg,
		Logger:  logger,
		Rand:    browser.NewRand(cfg.Scraper.Seed),
		Metrics: scraper.NewMetrics(),
	}

	switch cfg.History.Backend {
	case config.HistoryBackendPostgres:
		db, err := database.New(ctx, DatabaseConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		d.DB = db
		d.Store = database.NewPriceRepository(db)
	default:
		store, err := storage.NewCSVStore(cfg.History.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open history file: %w", err)
		}
		d.Store = store
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			d.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		d.Redis = client
	}

	notifiers := alert.MultiNotifier{alert.NewLogNotifier(logger)}
	switch {
	case d.DB != nil:
		// The relay moves queued alerts to Redis.
		notifiers = append(notifiers, database.NewOutboxNotifier(d.DB, cfg.Redis.AlertStream))
	case d.Redis != nil:
		notifiers = append(notifiers, alert.NewRedisNotifier(d.Redis, cfg.Redis.AlertStream))
	}
	d.Notifier = notifiers

	return d, nil
}

// Close releases every opened resource. A Postgres store owns the pool.
func (d *Deps) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.Error("failed to close history store", "error", err)
		}
	}
	if d.Redis != nil {
		d.Redis.Close()
	}
}

// Relay returns an outbox relay when alerts are queued in Postgres and Redis
// is reachable.
func (d *Deps) Relay() *database.Relay {
	if d.DB == nil || d.Redis == nil || !d.Config.Redis.RelayEnabled {
		return nil
	}
	return database.NewRelay(d.DB, d.Redis, d.Logger, database.RelayConfig{
		PollInterval: d.Config.Redis.RelayPoll,
	})
}

// Tracker builds a tracker with the configured pacing and retry policy.
func (d *Deps) Tracker() *tracker.Tracker {
	return NewTracker(d.Config, d.Store, d.Notifier, d.Rand, d.Metrics, d.Logger)
}

func NewTracker(cfg *config.Config, store storage.HistoryStore, notifier alert.Notifier, rng *rand.Rand, metrics *scraper.Metrics, logger *slog.Logger) *tracker.Tracker {
	pause := cfg.Scraper.ProductPause
	pacer := ratelimit.NewAdaptiveRateLimiter(pause, pause, childRand(rng))

	retryOpts := retry.DefaultOptions()
	retryOpts.MaxRetries = cfg.Scraper.MaxRetries
	retryOpts.BaseDelay = cfg.Scraper.RetryDelay
	retryOpts.Logger = logger

	return tracker.New(tracker.Options{
		Factory:      tracker.RetailerFactory(ScraperOptions(cfg, rng, metrics, logger)),
		Store:        store,
		Notifier:     notifier,
		Pacer:        pacer,
		Retry:        cfg.Scraper.RetryEnabled,
		RetryOptions: retryOpts,
		Metrics:      metrics,
		Logger:       logger,
	})
}

// ScraperOptions maps configuration onto scraper options.
// Each call derives its own generator from rng, so option sets handed to
// different owners never share random state.
func ScraperOptions(cfg *config.Config, rng *rand.Rand, metrics *scraper.Metrics, logger *slog.Logger) scraper.Options {
	rng = childRand(rng)

	detector := browser.NewBlockDetector(logger)
	detector.FailClosed = !cfg.Scraper.BlockFailOpen

	return scraper.Options{
		Launcher:           scraper.BrowserLauncher(BrowserOptions(cfg, rng, logger)),
		Delay:              ratelimit.NewHumanDelay(cfg.Scraper.DelayMin, cfg.Scraper.DelayMax, rng),
		Detector:           detector,
		NavigationTimeout:  cfg.Browser.Timeout,
		NetworkIdleTimeout: cfg.Scraper.NetworkIdle,
		Scroll:             cfg.Scraper.Scroll,
		Rand:               rng,
		Metrics:            metrics,
		Logger:             logger,
	}
}

func BrowserOptions(cfg *config.Config, rng *rand.Rand, logger *slog.Logger) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Engine = browser.Engine(cfg.Browser.Engine)
	opts.Headless = cfg.Browser.Headless
	opts.Stealth = cfg.Browser.Stealth
	opts.Timeout = cfg.Browser.Timeout
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer
	opts.Fingerprinter = browser.NewFingerprinterWithPools(rng, cfg.Scraper.UserAgents, nil)
	opts.Logger = logger
	return opts
}

func childRand(parent *rand.Rand) *rand.Rand {
	if parent == nil {
		return browser.NewRand(0)
	}
	return browser.NewRand(parent.Int63() | 1)
}

func DatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		MaxConns: int32(cfg.Database.MaxConns),
	}
}
