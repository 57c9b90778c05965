package expiration

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/cron"
	"github.com/angelmondragon/packfinderz-cart/internal/pricing"
	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	"github.com/angelmondragon/packfinderz-cart/pkg/metrics"
)

const schedulerLockName = "cron:cart-expiration"

type lockClient interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	LockKey(name string) string
}

// SchedulerParams wire the reminder sweep into a cron service.
type SchedulerParams struct {
	Config           config.ExpirationConfig
	Env              string
	Logger           *logger.Logger
	Redis            lockClient
	Store            cartReader
	Catalog          cart.ProductCatalog
	Publisher        eventPublisher
	Pricing          *pricing.Engine
	Topic            string
	CartMetrics      *metrics.CartMetrics
	SchedulerMetrics *metrics.SchedulerMetrics
}

// NewScheduler returns a cron service running the reminder sweep on the configured cadence.
func NewScheduler(params SchedulerParams) (*cron.Service, error) {
	if params.Redis == nil {
		return nil, fmt.Errorf("redis client required")
	}
	job, err := NewJob(JobParams{
		Logger:      params.Logger,
		Store:       params.Store,
		Catalog:     params.Catalog,
		Publisher:   params.Publisher,
		Pricing:     params.Pricing,
		Metrics:     params.CartMetrics,
		Topic:       params.Topic,
		WarningDays: params.Config.WarningDays,
	})
	if err != nil {
		return nil, err
	}

	lock, err := cron.NewRedisLock(params.Redis, params.Redis.LockKey(lockName(params.Env)), 0)
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   params.Logger,
		Registry: cron.NewRegistry(job),
		Lock:     lock,
		Metrics:  params.SchedulerMetrics,
		Interval: params.Config.CheckInterval(),
	})
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return schedulerLockName + ":" + env
}
