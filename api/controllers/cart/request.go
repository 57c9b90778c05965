package cart

import (
	"time"

	cartsvc "github.com/angelmondragon/packfinderz-cart/internal/cart"
)

const maxProductIDLength = 128

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=128"`
	Quantity  int    `json:"quantity" validate:"required"`
}

// updateItemRequest uses a pointer so an explicit zero (remove) is distinguishable from a missing field.
type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type guestItemRequest struct {
	ProductID string     `json:"productId" validate:"required,max=128"`
	Quantity  int        `json:"quantity"`
	AddedAt   *time.Time `json:"addedAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type mergeRequest struct {
	Items []guestItemRequest `json:"items" validate:"max=500,dive"`
}

func (m mergeRequest) toGuestItems() []cartsvc.GuestItem {
	items := make([]cartsvc.GuestItem, 0, len(m.Items))
	for _, item := range m.Items {
		guest := cartsvc.GuestItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
		if item.AddedAt != nil {
			guest.AddedAt = item.AddedAt.UTC()
		}
		if item.UpdatedAt != nil {
			guest.UpdatedAt = item.UpdatedAt.UTC()
		}
		items = append(items, guest)
	}
	return items
}

type countResponse struct {
	Count int `json:"count"`
}
