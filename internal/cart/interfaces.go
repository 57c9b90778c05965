package cart

import (
	"context"

	"github.com/shopspring/decimal"
)

// ProductSnapshot is the catalog view of a product at read time.
type ProductSnapshot struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	InventoryStatus string          `json:"inventoryStatus"`
	Categories      []string        `json:"categories"`
	Images          []string        `json:"images"`
}

// ProductCatalog resolves product snapshots. Unknown ids are absent from the result.
type ProductCatalog interface {
	GetProductsBatch(ctx context.Context, productIDs []string) ([]ProductSnapshot, error)
}

// ProductHint forwards what the catalog already knows to the inventory lookup.
type ProductHint struct {
	InventoryStatus string
	Name            string
	Price           decimal.Decimal
}

type InventoryCheck struct {
	Available         bool
	AvailableQuantity int
	Status            string
}

// InventoryChecker answers whether quantity units of a product can be sold.
type InventoryChecker interface {
	CheckInventory(ctx context.Context, productID string, quantity int, hint ProductHint) (InventoryCheck, error)
}
