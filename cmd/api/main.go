package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-cart/api/controllers"
	"github.com/angelmondragon/packfinderz-cart/api/routes"
	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/catalog"
	"github.com/angelmondragon/packfinderz-cart/internal/cron"
	"github.com/angelmondragon/packfinderz-cart/internal/expiration"
	"github.com/angelmondragon/packfinderz-cart/internal/pricing"
	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	"github.com/angelmondragon/packfinderz-cart/pkg/db"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	"github.com/angelmondragon/packfinderz-cart/pkg/metrics"
	"github.com/angelmondragon/packfinderz-cart/pkg/migrate"
	"github.com/angelmondragon/packfinderz-cart/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-cart/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cart-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cart-api",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap catalog database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}

	cartMetrics := metrics.NewCartMetrics(prometheus.DefaultRegisterer)
	pricingEngine := pricing.NewEngine(pricing.ConfigFrom(cfg.Pricing))

	catalogRepo, err := catalog.NewRepository(dbClient.DB())
	if err != nil {
		logg.Error(ctx, "failed to create catalog repository", err)
		os.Exit(1)
	}

	store, err := cart.NewStore(cart.StoreParams{
		Client:     redisClient,
		Logger:     logg,
		Expiration: cfg.Cart.Expiration(),
		LockTTL:    cfg.Cart.LockTTL,
		LockWait:   cfg.Cart.LockWait,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cart store", err)
		os.Exit(1)
	}

	enricher, err := cart.NewEnricher(cart.EnricherParams{
		Catalog:     catalogRepo,
		Inventory:   catalogRepo,
		Store:       store,
		Pricing:     pricingEngine,
		Logger:      logg,
		Metrics:     cartMetrics,
		Concurrency: cfg.Cart.EnrichmentConcurrency,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cart enricher", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cart.ServiceParams{
		Store:     store,
		Enricher:  enricher,
		Catalog:   catalogRepo,
		Inventory: catalogRepo,
		Limits:    cart.LimitsFrom(cfg.Cart),
		Logger:    logg,
		Metrics:   cartMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cart service", err)
		os.Exit(1)
	}

	var (
		pubsubClient *pubsub.Client
		publisher    *pubsub.EventPublisher
		scheduler    *cron.Service
	)
	if cfg.Expiration.Enabled {
		pubsubClient, publisher, scheduler = startScanner(ctx, cfg, logg, redisClient, store, catalogRepo, pricingEngine, cartMetrics)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"scanner": scheduler != nil,
	})
	logg.Info(logCtx, "starting cart api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:      cfg,
			Logger:      logg,
			CartService: cartService,
			RedisClient: redisClient,
			Readiness: map[string]controllers.Pinger{
				"redis":   redisClient,
				"catalog": dbClient,
			},
			Gatherer: prometheus.DefaultGatherer,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logg.Info(logCtx, "shutdown signal received")
	case err, ok := <-serveErr:
		if ok && err != nil {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	if scheduler != nil {
		scheduler.Stop()
	}
	if publisher != nil {
		publisher.Close()
	}
	shutdownErr = multierr.Combine(
		shutdownErr,
		pubsubClient.Close(),
		redisClient.Close(),
		dbClient.Close(),
	)
	if shutdownErr != nil {
		logg.Error(logCtx, "errors during shutdown", shutdownErr)
		exitCode = 1
	}
	logg.Info(logCtx, "cart api stopped")
	os.Exit(exitCode)
}

// startScanner runs the reminder sweep in-process. Failures are logged and the API keeps serving.
func startScanner(
	ctx context.Context,
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	store *cart.Store,
	catalogRepo *catalog.Repository,
	pricingEngine *pricing.Engine,
	cartMetrics *metrics.CartMetrics,
) (*pubsub.Client, *pubsub.EventPublisher, *cron.Service) {
	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "expiration scanner disabled: pubsub unavailable", err)
		return nil, nil, nil
	}
	publisher, err := pubsub.NewEventPublisher(pubsub.EventPublisherParams{
		Client:  pubsubClient,
		Logger:  logg,
		Timeout: cfg.PubSub.PublishTimeout,
	})
	if err != nil {
		logg.Error(ctx, "expiration scanner disabled: publisher", err)
		return pubsubClient, nil, nil
	}

	scheduler, err := expiration.NewScheduler(expiration.SchedulerParams{
		Config:           cfg.Expiration,
		Env:              cfg.App.Env,
		Logger:           logg,
		Redis:            redisClient,
		Store:            store,
		Catalog:          catalogRepo,
		Publisher:        publisher,
		Pricing:          pricingEngine,
		Topic:            pubsubClient.CartEventsTopic(),
		CartMetrics:      cartMetrics,
		SchedulerMetrics: metrics.NewSchedulerMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(ctx, "expiration scanner disabled: scheduler", err)
		return pubsubClient, publisher, nil
	}
	if err := scheduler.Start(ctx); err != nil {
		logg.Error(ctx, "expiration scanner failed to start", err)
		return pubsubClient, publisher, nil
	}
	return pubsubClient, publisher, scheduler
}
