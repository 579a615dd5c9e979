package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/price-tracker/internal/api"
	"github.com/maltedev/price-tracker/internal/app"
	"github.com/maltedev/price-tracker/internal/config"
	"github.com/maltedev/price-tracker/internal/database"
	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/tracker"
	"github.com/maltedev/price-tracker/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	// Initialize and start Relay for outbox processing
	if relay := deps.Relay(); relay != nil {
		go func() {
			if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("relay stopped with error", "error", err)
			}
		}()
	}

	checker := tracker.NewChecker(
		tracker.RetailerFactory(app.ScraperOptions(cfg, deps.Rand, deps.Metrics, logger)),
		cfg.Server.CheckCacheTTL,
		logger,
	)
	defer checker.Close()

	runs := tracker.NewRunManager(ctx, deps.Tracker(), func() ([]models.ProductSpec, error) {
		return config.LoadProducts(cfg.Scraper.ProductsFile)
	}, logger)

	var outbox api.OutboxStats
	if deps.DB != nil {
		outbox = database.NewOutboxRepository(deps.DB)
	}

	handlers := api.NewHandlers(deps.Store, checker, runs, outbox, logger)
	router := api.NewRouter(handlers, api.RouterOptions{
		RequestTimeout: cfg.Server.WriteTimeout,
		Registry:       deps.Metrics.Registry,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	runs.Wait()
	logger.Info("server stopped")
}
