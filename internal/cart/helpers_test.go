package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/angelmondragon/packfinderz-cart/internal/pricing"
	pkgredis "github.com/angelmondragon/packfinderz-cart/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]ProductSnapshot
	err      error
	calls    int
}

func newFakeCatalog(products ...ProductSnapshot) *fakeCatalog {
	c := &fakeCatalog{products: map[string]ProductSnapshot{}}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) GetProductsBatch(_ context.Context, ids []string) ([]ProductSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([]ProductSnapshot, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *fakeCatalog) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

type fakeInventory struct {
	mu    sync.Mutex
	stock map[string]int
	fail  map[string]error
	calls int
}

func (f *fakeInventory) CheckInventory(_ context.Context, productID string, quantity int, _ ProductHint) (InventoryCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[productID]; err != nil {
		return InventoryCheck{}, err
	}
	qty := f.stock[productID]
	status := "in_stock"
	if qty <= 0 {
		status = "out_of_stock"
	}
	return InventoryCheck{Available: qty > 0 && qty >= quantity, AvailableQuantity: qty, Status: status}, nil
}

func (f *fakeInventory) set(productID string, qty int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[productID] = qty
}

func product(id, name, price string, categories ...string) ProductSnapshot {
	return ProductSnapshot{
		ID:              id,
		Name:            name,
		Price:           decimal.RequireFromString(price),
		InventoryStatus: "in_stock",
		Categories:      categories,
	}
}

type harness struct {
	mr        *miniredis.Miniredis
	client    *pkgredis.Client
	store     *Store
	catalog   *fakeCatalog
	inventory *fakeInventory
	enricher  *Enricher
	svc       *service
}

func testPricing() *pricing.Engine {
	return pricing.NewEngine(pricing.Config{
		TaxRate:               decimal.RequireFromString("0.1"),
		ShippingCost:          decimal.RequireFromString("20000"),
		FreeShippingThreshold: decimal.RequireFromString("500000"),
		DecimalPlaces:         2,
		Currency:              "VND",
	})
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	client := pkgredis.NewFromClient(raw)

	store, err := NewStore(StoreParams{
		Client:     client,
		Expiration: 30 * 24 * time.Hour,
		LockTTL:    time.Second,
		LockWait:   50 * time.Millisecond,
	})
	require.NoError(t, err)

	catalog := newFakeCatalog(
		product("p1", "Widget", "100000"),
		product("p2", "Gadget", "50000", "Electronics"),
		product("p3", "Gizmo", "20000"),
		product("p4", "Doohickey", "10000"),
	)
	inventory := &fakeInventory{
		stock: map[string]int{"p1": 10, "p2": 10, "p3": 10, "p4": 10},
		fail:  map[string]error{},
	}

	enricher, err := NewEnricher(EnricherParams{
		Catalog:     catalog,
		Inventory:   inventory,
		Store:       store,
		Pricing:     testPricing(),
		Concurrency: 2,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Store:     store,
		Enricher:  enricher,
		Catalog:   catalog,
		Inventory: inventory,
		Limits: Limits{
			MaxItems:           3,
			MaxQuantityPerItem: 10,
			MinOrderAmount:     decimal.Zero,
			ReservationTimeout: 15 * time.Minute,
		},
	})
	require.NoError(t, err)

	return &harness{
		mr:        mr,
		client:    client,
		store:     store,
		catalog:   catalog,
		inventory: inventory,
		enricher:  enricher,
		svc:       svc.(*service),
	}
}

// seed writes a cart directly, bypassing the service.
func (h *harness) seed(t *testing.T, userID string, expiresAt time.Time, items ...Item) {
	t.Helper()
	now := time.Now().UTC()
	for i := range items {
		if items[i].AddedAt.IsZero() {
			items[i].AddedAt = now.Add(time.Duration(i) * time.Millisecond)
		}
		if items[i].UpdatedAt.IsZero() {
			items[i].UpdatedAt = items[i].AddedAt
		}
	}
	require.NoError(t, h.store.SaveCart(context.Background(), &Cart{
		UserID:    userID,
		Items:     items,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	}))
}

var errBoom = errors.New("boom")
