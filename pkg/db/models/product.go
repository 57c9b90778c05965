package models

import (
	"time"

	dbtypes "github.com/angelmondragon/packfinderz-cart/pkg/db/types"
	"github.com/angelmondragon/packfinderz-cart/pkg/enums"
	"github.com/shopspring/decimal"
)

// Product is the catalog listing the cart prices against.
type Product struct {
	ID              string                `gorm:"column:id;primaryKey"`
	Name            string                `gorm:"column:name;not null"`
	Price           decimal.Decimal       `gorm:"column:price;type:numeric(14,2);not null"`
	InventoryStatus enums.InventoryStatus `gorm:"column:inventory_status;not null;default:'in_stock'"`
	Categories      dbtypes.StringList    `gorm:"column:categories;type:jsonb;not null;default:'[]'"`
	Images          dbtypes.StringList    `gorm:"column:images;type:jsonb;not null;default:'[]'"`
	IsActive        bool                  `gorm:"column:is_active;not null;default:true"`
	Inventory       *InventoryItem        `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
