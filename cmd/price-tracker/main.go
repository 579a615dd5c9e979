package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/price-tracker/internal/app"
	"github.com/maltedev/price-tracker/internal/config"
	"github.com/maltedev/price-tracker/pkg/logger"
)

func main() {
	var (
		productsFile = flag.String("products", "", "YAML file with products to track (overrides PRODUCTS_FILE)")
		historyFile  = flag.String("history", "", "CSV history file (overrides HISTORY_FILE)")
		headless     = flag.Bool("headless", true, "Run browser in headless mode")
		retryEnabled = flag.Bool("retry", false, "Retry failed checks with linear backoff")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *productsFile != "" {
		cfg.Scraper.ProductsFile = *productsFile
	}
	if *historyFile != "" {
		cfg.History.File = *historyFile
	}
	cfg.Browser.Headless = *headless && cfg.Browser.Headless
	cfg.Scraper.RetryEnabled = *retryEnabled || cfg.Scraper.RetryEnabled

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting price tracker")

	products, err := config.LoadProducts(cfg.Scraper.ProductsFile)
	if err != nil {
		logger.Error("Failed to load products", "error", err, "file", cfg.Scraper.ProductsFile)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	summary := deps.Tracker().Run(ctx, products)
	summary.Print(os.Stdout)

	if ctx.Err() != nil {
		logger.Warn("Run interrupted", "checked", summary.Checked, "total", len(products))
	}

	logger.Info("Price tracking complete",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"alerts", summary.Alerts,
	)
}
