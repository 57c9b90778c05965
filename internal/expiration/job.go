package expiration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/pricing"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	"github.com/angelmondragon/packfinderz-cart/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	JobName            = "cart-expiration-reminders"
	defaultWarningDays = 3
)

type cartReader interface {
	ScanCartKeys(ctx context.Context, fn func(keys []string) error) error
	UserIDForKey(ctx context.Context, key string) (string, error)
	GetCart(ctx context.Context, userID string) (*cart.Cart, error)
	HasExpiryNotice(ctx context.Context, userID string, days int) (bool, error)
	MarkExpiryNotice(ctx context.Context, userID string, days int) error
}

type eventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// JobParams configure the expiration reminder sweep.
type JobParams struct {
	Logger      *logger.Logger
	Store       cartReader
	Catalog     cart.ProductCatalog
	Publisher   eventPublisher
	Pricing     *pricing.Engine
	Metrics     *metrics.CartMetrics
	Topic       string
	WarningDays int
}

// NewJob builds the sweep that warns users about carts close to expiring.
// The job never deletes carts; expired carts are cleared lazily on read.
func NewJob(params JobParams) (*Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if params.Publisher == nil {
		return nil, fmt.Errorf("event publisher required")
	}
	if params.Pricing == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	if params.Topic == "" {
		return nil, fmt.Errorf("topic required")
	}
	warningDays := params.WarningDays
	if warningDays <= 0 {
		warningDays = defaultWarningDays
	}
	return &Job{
		logg:        params.Logger,
		store:       params.Store,
		catalog:     params.Catalog,
		publisher:   params.Publisher,
		pricing:     params.Pricing,
		metrics:     params.Metrics,
		topic:       params.Topic,
		warningDays: warningDays,
		now:         time.Now,
	}, nil
}

type Job struct {
	logg        *logger.Logger
	store       cartReader
	catalog     cart.ProductCatalog
	publisher   eventPublisher
	pricing     *pricing.Engine
	metrics     *metrics.CartMetrics
	topic       string
	warningDays int
	now         func() time.Time
}

func (j *Job) Name() string { return JobName }

type sweepStats struct {
	scanned int
	sent    int
	skipped int
	failed  int
}

// Run performs one sweep. Per-cart failures are logged and counted; only a failed
// key scan fails the sweep.
func (j *Job) Run(ctx context.Context) error {
	now := j.now().UTC()
	var stats sweepStats

	err := j.store.ScanCartKeys(ctx, func(keys []string) error {
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats.scanned++
			outcome, err := j.processKey(ctx, key, now)
			if err != nil {
				outcome = metrics.OutcomeFailure
				j.logg.Error(j.logg.WithField(ctx, "cart_key", key), "expiration reminder failed", err)
			}
			switch outcome {
			case metrics.OutcomeSuccess:
				stats.sent++
			case metrics.OutcomeSkipped:
				stats.skipped++
			case metrics.OutcomeFailure:
				stats.failed++
			default:
				continue
			}
			j.metrics.IncReminder(outcome)
		}
		return nil
	})

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned": stats.scanned,
		"sent":    stats.sent,
		"skipped": stats.skipped,
		"failed":  stats.failed,
	})
	if err != nil {
		j.logg.Error(logCtx, "expiration sweep aborted", err)
		return pkgerrors.Wrap(pkgerrors.CodeScheduler, err, "scan cart keys")
	}
	j.logg.Info(logCtx, "expiration sweep complete")
	return nil
}

// processKey returns the reminder outcome for the cart behind key, or an empty
// outcome when the cart is not inside the warning window.
func (j *Job) processKey(ctx context.Context, key string, now time.Time) (string, error) {
	userID, err := j.store.UserIDForKey(ctx, key)
	if errors.Is(err, cart.ErrCartNotFound) || (err == nil && userID == "") {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	c, err := j.store.GetCart(ctx, userID)
	if errors.Is(err, cart.ErrCartNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(c.Items) == 0 || c.ExpiresAt.IsZero() {
		return "", nil
	}

	days := DaysUntilExpiration(c.ExpiresAt, now)
	if days <= 0 || days > j.warningDays {
		return "", nil
	}

	sent, err := j.store.HasExpiryNotice(ctx, userID, days)
	if err != nil {
		return "", err
	}
	if sent {
		return metrics.OutcomeSkipped, nil
	}

	event := j.buildEvent(ctx, c, days, now)
	if err := j.publisher.Publish(ctx, j.topic, event.CartID, event); err != nil {
		return "", fmt.Errorf("publish reminder: %w", err)
	}
	// Marker only after a successful publish.
	if err := j.store.MarkExpiryNotice(ctx, userID, days); err != nil {
		return "", fmt.Errorf("mark reminder sent: %w", err)
	}
	return metrics.OutcomeSuccess, nil
}

func (j *Job) buildEvent(ctx context.Context, c *cart.Cart, days int, now time.Time) ReminderEvent {
	products := j.lookupProducts(ctx, c)
	event := ReminderEvent{
		EventID:             uuid.NewString(),
		EventType:           EventTypeReminder,
		Version:             reminderEventSchemaVer,
		UserID:              c.UserID,
		CartID:              cart.UserKey(c.UserID),
		ExpiresAt:           c.ExpiresAt.UTC(),
		DaysUntilExpiration: days,
		ItemCount:           c.TotalQuantity(),
		TotalValue:          decimal.Zero,
		Items:               make([]ReminderItem, 0, len(c.Items)),
		Timestamp:           now,
	}
	for _, item := range c.Items {
		reminder := ReminderItem{
			ProductID:   item.ProductID,
			ProductName: unknownProductName,
			Quantity:    item.Quantity,
			Price:       decimal.Zero,
		}
		if product, ok := products[item.ProductID]; ok {
			reminder.ProductName = product.Name
			reminder.Price = product.Price
		}
		event.TotalValue = event.TotalValue.Add(j.pricing.LineTotal(reminder.Price, item.Quantity))
		event.Items = append(event.Items, reminder)
	}
	return event
}

// lookupProducts is best effort; a catalog failure yields placeholder items.
func (j *Job) lookupProducts(ctx context.Context, c *cart.Cart) map[string]cart.ProductSnapshot {
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := j.catalog.GetProductsBatch(ctx, ids)
	if err != nil {
		j.logg.Warn(j.logg.WithUserID(ctx, c.UserID), "product lookup failed; using placeholders in reminder")
		return nil
	}
	byID := make(map[string]cart.ProductSnapshot, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID
}

// DaysUntilExpiration rounds the remaining time up to whole days.
func DaysUntilExpiration(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now)
	return int(math.Ceil(remaining.Hours() / 24))
}
