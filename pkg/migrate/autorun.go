package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	"github.com/angelmondragon/packfinderz-cart/pkg/db"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

// MaybeRunDev applies the embedded catalog schema when the API starts in dev with
// CART_AUTO_MIGRATE set. In other environments the product service owns these tables.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if client == nil {
		return errors.New("database client is required")
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, nil, logg)
	if err != nil {
		return err
	}

	ctx = runner.logg.WithField(ctx, "env", cfg.App.Env)
	runner.logg.Info(ctx, "applying catalog migrations")
	if err := runner.Up(ctx); err != nil {
		return err
	}
	runner.logg.Info(ctx, "catalog schema up to date")
	return nil
}
