package expiration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/internal/pricing"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-cart/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalog struct {
	products map[string]cart.ProductSnapshot
	err      error
}

func (s stubCatalog) GetProductsBatch(_ context.Context, ids []string) ([]cart.ProductSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]cart.ProductSnapshot, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ReminderEvent
	keys   []string
	topics []string
	fail   error
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	event, ok := payload.(ReminderEvent)
	if !ok {
		return errors.New("unexpected payload type")
	}
	p.events = append(p.events, event)
	p.keys = append(p.keys, key)
	p.topics = append(p.topics, topic)
	return nil
}

type jobHarness struct {
	mr        *miniredis.Miniredis
	store     *cart.Store
	publisher *recordingPublisher
	job       *Job
	now       time.Time
}

func newJobHarness(t *testing.T, catalog cart.ProductCatalog) *jobHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	store, err := cart.NewStore(cart.StoreParams{
		Client:     pkgredis.NewFromClient(raw),
		Expiration: 30 * 24 * time.Hour,
	})
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	job, err := NewJob(JobParams{
		Logger:    logger.Nop(),
		Store:     store,
		Catalog:   catalog,
		Publisher: publisher,
		Pricing: pricing.NewEngine(pricing.Config{
			TaxRate:       decimal.RequireFromString("0.1"),
			DecimalPlaces: 2,
			Currency:      "VND",
		}),
		Topic:       "cart-events",
		WarningDays: 3,
	})
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }
	return &jobHarness{mr: mr, store: store, publisher: publisher, job: job, now: now}
}

func (h *jobHarness) seed(t *testing.T, userID string, expiresIn time.Duration, items ...cart.Item) {
	t.Helper()
	for i := range items {
		items[i].AddedAt = h.now.Add(time.Duration(i) * time.Second)
		items[i].UpdatedAt = items[i].AddedAt
	}
	require.NoError(t, h.store.SaveCart(context.Background(), &cart.Cart{
		UserID:    userID,
		Items:     items,
		CreatedAt: h.now,
		UpdatedAt: h.now,
		ExpiresAt: h.now.Add(expiresIn),
	}))
}

func defaultCatalog() stubCatalog {
	return stubCatalog{products: map[string]cart.ProductSnapshot{
		"p1": {ID: "p1", Name: "Widget", Price: decimal.RequireFromString("100000")},
		"p2": {ID: "p2", Name: "Gadget", Price: decimal.RequireFromString("25000.50")},
	}}
}

func TestJobPublishesReminderOncePerDay(t *testing.T) {
	h := newJobHarness(t, defaultCatalog())
	ctx := context.Background()
	h.seed(t, "user-1", 47*time.Hour,
		cart.Item{ProductID: "p1", Quantity: 2},
		cart.Item{ProductID: "p2", Quantity: 1},
	)

	require.NoError(t, h.job.Run(ctx))
	require.NoError(t, h.job.Run(ctx))

	require.Len(t, h.publisher.events, 1)
	event := h.publisher.events[0]
	assert.Equal(t, "cart-events", h.publisher.topics[0])
	assert.Equal(t, cart.UserKey("user-1"), h.publisher.keys[0])
	assert.Equal(t, EventTypeReminder, event.EventType)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, 2, event.DaysUntilExpiration)
	assert.Equal(t, 3, event.ItemCount)
	assert.Equal(t, "225000.5", event.TotalValue.String())
	assert.True(t, h.now.Add(47*time.Hour).Equal(event.ExpiresAt))
	assert.True(t, h.now.Equal(event.Timestamp))
	require.Len(t, event.Items, 2)
	assert.Equal(t, "Widget", event.Items[0].ProductName)
	assert.Equal(t, 2, event.Items[0].Quantity)

	sent, err := h.store.HasExpiryNotice(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestJobSendsAgainForANewDayCount(t *testing.T) {
	h := newJobHarness(t, defaultCatalog())
	ctx := context.Background()
	h.seed(t, "user-1", 47*time.Hour, cart.Item{ProductID: "p1", Quantity: 1})

	require.NoError(t, h.job.Run(ctx))
	later := h.now.Add(24 * time.Hour)
	h.job.now = func() time.Time { return later }
	require.NoError(t, h.job.Run(ctx))

	require.Len(t, h.publisher.events, 2)
	assert.Equal(t, 2, h.publisher.events[0].DaysUntilExpiration)
	assert.Equal(t, 1, h.publisher.events[1].DaysUntilExpiration)
}

func TestJobIgnoresCartsOutsideWarningWindow(t *testing.T) {
	h := newJobHarness(t, defaultCatalog())
	ctx := context.Background()
	h.seed(t, "far-away", 10*24*time.Hour, cart.Item{ProductID: "p1", Quantity: 1})
	h.seed(t, "already-expired", -time.Hour, cart.Item{ProductID: "p1", Quantity: 1})
	h.seed(t, "empty", 24*time.Hour)

	require.NoError(t, h.job.Run(ctx))
	assert.Empty(t, h.publisher.events)

	// The sweep never deletes records.
	for _, user := range []string{"far-away", "already-expired", "empty"} {
		assert.True(t, h.mr.Exists("pf:cart:u:"+cart.UserKey(user)), user)
	}
}

func TestJobUsesPlaceholderForUnknownProducts(t *testing.T) {
	h := newJobHarness(t, defaultCatalog())
	h.seed(t, "user-1", 12*time.Hour,
		cart.Item{ProductID: "p1", Quantity: 1},
		cart.Item{ProductID: "gone", Quantity: 4},
	)

	require.NoError(t, h.job.Run(context.Background()))
	require.Len(t, h.publisher.events, 1)
	event := h.publisher.events[0]
	assert.Equal(t, 1, event.DaysUntilExpiration)
	require.Len(t, event.Items, 2)
	assert.Equal(t, unknownProductName, event.Items[1].ProductName)
	assert.True(t, event.Items[1].Price.IsZero())
	assert.Equal(t, "100000", event.TotalValue.String())
	assert.Equal(t, 5, event.ItemCount)
}

func TestJobPublishesWithPlaceholdersWhenCatalogFails(t *testing.T) {
	h := newJobHarness(t, stubCatalog{err: errors.New("catalog down")})
	h.seed(t, "user-1", 12*time.Hour, cart.Item{ProductID: "p1", Quantity: 2})

	require.NoError(t, h.job.Run(context.Background()))
	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, unknownProductName, h.publisher.events[0].Items[0].ProductName)
	assert.True(t, h.publisher.events[0].TotalValue.IsZero())
}

func TestJobRetriesAfterPublishFailure(t *testing.T) {
	h := newJobHarness(t, defaultCatalog())
	ctx := context.Background()
	h.seed(t, "user-1", 30*time.Hour, cart.Item{ProductID: "p1", Quantity: 1})
	h.seed(t, "user-2", 30*time.Hour, cart.Item{ProductID: "p2", Quantity: 1})

	h.publisher.fail = errors.New("broker unavailable")
	require.NoError(t, h.job.Run(ctx), "per-cart failures do not fail the sweep")
	assert.Empty(t, h.publisher.events)

	sent, err := h.store.HasExpiryNotice(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.False(t, sent)

	h.publisher.fail = nil
	require.NoError(t, h.job.Run(ctx))
	assert.Len(t, h.publisher.events, 2)
}

func TestJobFailsWhenScanFails(t *testing.T) {
	h := newJobHarness(t, defaultCatalog())
	h.mr.Close()

	err := h.job.Run(context.Background())
	require.Error(t, err)
}

func TestNewJobRequiresDependencies(t *testing.T) {
	_, err := NewJob(JobParams{})
	require.Error(t, err)

	h := newJobHarness(t, defaultCatalog())
	assert.Equal(t, JobName, h.job.Name())
	assert.Equal(t, 3, h.job.warningDays)
}

func TestDaysUntilExpiration(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		in       time.Duration
		expected int
	}{
		{name: "minutes left", in: time.Minute, expected: 1},
		{name: "exactly one day", in: 24 * time.Hour, expected: 1},
		{name: "just over one day", in: 25 * time.Hour, expected: 2},
		{name: "three days", in: 72 * time.Hour, expected: 3},
		{name: "already expired", in: -2 * time.Hour, expected: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, DaysUntilExpiration(now.Add(tc.in), now))
		})
	}
}
