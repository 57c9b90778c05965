package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/catalog"
	"github.com/angelmondragon/packfinderz-cart/internal/expiration"
	"github.com/angelmondragon/packfinderz-cart/internal/pricing"
	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	"github.com/angelmondragon/packfinderz-cart/pkg/db"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	"github.com/angelmondragon/packfinderz-cart/pkg/metrics"
	"github.com/angelmondragon/packfinderz-cart/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-cart/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cart-cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cart-cron-worker",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, pubsubClient.Close()) }()

	publisher, err := pubsub.NewEventPublisher(pubsub.EventPublisherParams{
		Client:  pubsubClient,
		Logger:  logg,
		Timeout: cfg.PubSub.PublishTimeout,
	})
	if err != nil {
		return err
	}
	defer publisher.Close()

	catalogRepo, err := catalog.NewRepository(dbClient.DB())
	if err != nil {
		return err
	}
	store, err := cart.NewStore(cart.StoreParams{
		Client:     redisClient,
		Logger:     logg,
		Expiration: cfg.Cart.Expiration(),
		LockTTL:    cfg.Cart.LockTTL,
		LockWait:   cfg.Cart.LockWait,
	})
	if err != nil {
		return err
	}

	scheduler, err := expiration.NewScheduler(expiration.SchedulerParams{
		Config:           cfg.Expiration,
		Env:              cfg.App.Env,
		Logger:           logg,
		Redis:            redisClient,
		Store:            store,
		Catalog:          catalogRepo,
		Publisher:        publisher,
		Pricing:          pricing.NewEngine(pricing.ConfigFrom(cfg.Pricing)),
		Topic:            pubsubClient.CartEventsTopic(),
		CartMetrics:      metrics.NewCartMetrics(prometheus.DefaultRegisterer),
		SchedulerMetrics: metrics.NewSchedulerMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting cron worker")
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
