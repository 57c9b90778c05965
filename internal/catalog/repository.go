package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/packfinderz-cart/internal/cart"
	"github.com/angelmondragon/packfinderz-cart/pkg/db/models"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
	"gorm.io/gorm"
)

// Repository reads products and stock levels from the catalog database.
// It implements cart.ProductCatalog and cart.InventoryChecker.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("catalog db required")
	}
	return &Repository{db: db}, nil
}

var (
	_ cart.ProductCatalog   = (*Repository)(nil)
	_ cart.InventoryChecker = (*Repository)(nil)
)

// GetProductsBatch returns active products for ids. Unknown or inactive ids are absent.
func (r *Repository) GetProductsBatch(ctx context.Context, productIDs []string) ([]cart.ProductSnapshot, error) {
	ids := uniqueIDs(productIDs)
	if len(ids) == 0 {
		return []cart.ProductSnapshot{}, nil
	}

	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Where("is_active = ?", true).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	out := make([]cart.ProductSnapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, toSnapshot(row))
	}
	return out, nil
}

// CheckInventory answers whether quantity units can be sold. A missing stock row means none are.
func (r *Repository) CheckInventory(ctx context.Context, productID string, quantity int, hint cart.ProductHint) (cart.InventoryCheck, error) {
	if hint.InventoryStatus == enums.InventoryStatusDiscontinued.String() {
		return cart.InventoryCheck{Status: enums.InventoryStatusDiscontinued.String()}, nil
	}

	var item models.InventoryItem
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cart.InventoryCheck{Status: enums.InventoryStatusOutOfStock.String()}, nil
	}
	if err != nil {
		return cart.InventoryCheck{}, fmt.Errorf("load inventory for %s: %w", productID, err)
	}

	sellable := item.Sellable()
	status := enums.InventoryStatusInStock
	if sellable == 0 {
		status = enums.InventoryStatusOutOfStock
	}
	return cart.InventoryCheck{
		Available:         sellable > 0 && sellable >= quantity,
		AvailableQuantity: sellable,
		Status:            status.String(),
	}, nil
}

func toSnapshot(row models.Product) cart.ProductSnapshot {
	categories := make([]string, len(row.Categories))
	copy(categories, row.Categories)
	images := make([]string, len(row.Images))
	copy(images, row.Images)
	return cart.ProductSnapshot{
		ID:              row.ID,
		Name:            row.Name,
		Price:           row.Price,
		InventoryStatus: row.InventoryStatus.String(),
		Categories:      categories,
		Images:          images,
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
