package enums

import "fmt"

// InventoryStatus is the catalog-level stock flag on a product.
type InventoryStatus string

const (
	InventoryStatusInStock      InventoryStatus = "in_stock"
	InventoryStatusOutOfStock   InventoryStatus = "out_of_stock"
	InventoryStatusDiscontinued InventoryStatus = "discontinued"
)

var validInventoryStatuses = []InventoryStatus{
	InventoryStatusInStock,
	InventoryStatusOutOfStock,
	InventoryStatusDiscontinued,
}

// String implements fmt.Stringer.
func (s InventoryStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known InventoryStatus.
func (s InventoryStatus) IsValid() bool {
	for _, candidate := range validInventoryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseInventoryStatus converts raw input into an InventoryStatus.
func ParseInventoryStatus(value string) (InventoryStatus, error) {
	for _, candidate := range validInventoryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory status %q", value)
}
