package models

import "time"

// InventoryItem tracks available/reserved counts per product.
type InventoryItem struct {
	ProductID    string    `gorm:"column:product_id;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Sellable is the quantity not held by reservations.
func (i InventoryItem) Sellable() int {
	if i.AvailableQty <= i.ReservedQty {
		return 0
	}
	return i.AvailableQty - i.ReservedQty
}
