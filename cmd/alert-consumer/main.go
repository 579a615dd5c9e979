package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/price-tracker/internal/alert"
	"github.com/maltedev/price-tracker/internal/config"
	"github.com/maltedev/price-tracker/pkg/logger"
)

func main() {
	var (
		group = flag.String("group", alert.DefaultConsumerGroup, "Consumer group name")
		name  = flag.String("name", "consumer-1", "Consumer name within the group")
		idle  = flag.Duration("claim-idle", time.Minute, "Take over alerts pending longer than this")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Redis.Addr == "" {
		log.Fatal("REDIS_ADDR is required")
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	consumer := alert.NewConsumer(rdb, alert.NewLogNotifier(logger), alert.ConsumerConfig{
		Stream:    cfg.Redis.AlertStream,
		Group:     *group,
		Name:      *name,
		ClaimIdle: *idle,
	}, logger)

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer error", "error", err)
		os.Exit(1)
	}
	logger.Info("Consumer stopped")
}
