package cart

import (
	"context"

	"github.com/angelmondragon/packfinderz-cart/internal/pricing"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	"github.com/angelmondragon/packfinderz-cart/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const defaultEnrichmentConcurrency = 16

type itemRemover interface {
	RemoveItem(ctx context.Context, userID, productID string) error
}

// EnricherParams configure the enrichment pipeline.
type EnricherParams struct {
	Catalog     ProductCatalog
	Inventory   InventoryChecker
	Store       itemRemover
	Pricing     *pricing.Engine
	Logger      *logger.Logger
	Metrics     *metrics.CartMetrics
	Concurrency int
}

// Enricher turns a stored cart into a priced, availability-annotated view.
type Enricher struct {
	catalog     ProductCatalog
	inventory   InventoryChecker
	store       itemRemover
	pricing     *pricing.Engine
	logg        *logger.Logger
	metrics     *metrics.CartMetrics
	concurrency int
}

func NewEnricher(params EnricherParams) (*Enricher, error) {
	if params.Catalog == nil {
		return nil, errRequired("product catalog")
	}
	if params.Inventory == nil {
		return nil, errRequired("inventory checker")
	}
	if params.Store == nil {
		return nil, errRequired("cart store")
	}
	if params.Pricing == nil {
		return nil, errRequired("pricing engine")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultEnrichmentConcurrency
	}
	return &Enricher{
		catalog:     params.Catalog,
		inventory:   params.Inventory,
		store:       params.Store,
		pricing:     params.Pricing,
		logg:        logg,
		metrics:     params.Metrics,
		concurrency: concurrency,
	}, nil
}

type inventoryResult struct {
	check InventoryCheck
	err   error
}

// Enrich never fails. A catalog outage yields an empty cart with zero pricing; a failed
// inventory check marks only that line unavailable. Lines whose product vanished from
// the catalog are dropped from the result and then deleted from the stored cart.
func (e *Enricher) Enrich(ctx context.Context, cart *Cart) *CartWithProducts {
	out := &CartWithProducts{
		UserID:    cart.UserID,
		Items:     []ItemWithProduct{},
		Pricing:   e.pricing.Empty(),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
		ExpiresAt: cart.ExpiresAt,
	}
	if len(cart.Items) == 0 {
		return out
	}

	products, err := e.catalog.GetProductsBatch(ctx, distinctProductIDs(cart.Items))
	if err != nil {
		e.logg.Error(e.logg.WithUserID(ctx, cart.UserID), "product batch lookup failed; returning empty cart view", err)
		return out
	}
	byID := make(map[string]ProductSnapshot, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	results := make([]inventoryResult, len(cart.Items))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, item := range cart.Items {
		product, ok := byID[item.ProductID]
		if !ok {
			continue
		}
		g.Go(func() error {
			check, err := e.inventory.CheckInventory(ctx, item.ProductID, item.Quantity, hintFor(product))
			results[i] = inventoryResult{check: check, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		missing []string
		lines   []pricing.Line
	)
	for i, item := range cart.Items {
		product, ok := byID[item.ProductID]
		if !ok {
			missing = append(missing, item.ProductID)
			continue
		}
		line := ItemWithProduct{
			Item:       item,
			Product:    product,
			TotalPrice: e.pricing.LineTotal(product.Price, item.Quantity),
		}
		if res := results[i]; res.err != nil {
			logCtx := e.logg.WithProductID(e.logg.WithUserID(ctx, cart.UserID), item.ProductID)
			e.logg.Warn(logCtx, "inventory check failed; marking item unavailable")
		} else {
			line.AvailableQuantity = res.check.AvailableQuantity
			line.IsAvailable = res.check.Available && res.check.AvailableQuantity >= item.Quantity
		}
		out.Items = append(out.Items, line)
		out.TotalItems += item.Quantity
		lines = append(lines, pricing.Line{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			TotalPrice: line.TotalPrice,
			Categories: product.Categories,
		})
	}

	e.pruneMissing(ctx, cart.UserID, missing)
	out.Pricing = e.pricing.Calculate(lines)
	return out
}

func (e *Enricher) pruneMissing(ctx context.Context, userID string, productIDs []string) {
	if len(productIDs) == 0 {
		return
	}
	removed := 0
	for _, productID := range productIDs {
		logCtx := e.logg.WithProductID(e.logg.WithUserID(ctx, userID), productID)
		if err := e.store.RemoveItem(ctx, userID, productID); err != nil {
			e.logg.Error(logCtx, "failed to drop vanished product from cart", err)
			continue
		}
		removed++
		e.logg.Info(logCtx, "dropped vanished product from cart")
	}
	e.metrics.AddEnrichmentRemovals(removed)
}

func hintFor(product ProductSnapshot) ProductHint {
	return ProductHint{
		InventoryStatus: product.InventoryStatus,
		Name:            product.Name,
		Price:           product.Price,
	}
}

func distinctProductIDs(items []Item) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
