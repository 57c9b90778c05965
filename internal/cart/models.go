package cart

import (
	"sort"
	"time"

	"github.com/angelmondragon/packfinderz-cart/internal/pricing"
	"github.com/shopspring/decimal"
)

// Item is one stored cart line. A cart holds at most one Item per product.
type Item struct {
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Cart is the persisted per-user cart.
type Cart struct {
	UserID    string
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

func newCart(userID string, now time.Time, lifetime time.Duration) *Cart {
	return &Cart{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(lifetime),
	}
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// TotalQuantity sums quantities across lines.
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// IsExpired reports whether expiresAt has passed.
func (c *Cart) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

func sortByAddedAt(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].ProductID < items[j].ProductID
		}
		return items[i].AddedAt.Before(items[j].AddedAt)
	})
}

// ItemWithProduct is a cart line decorated with live catalog and inventory data.
type ItemWithProduct struct {
	Item
	Product           ProductSnapshot `json:"product"`
	TotalPrice        decimal.Decimal `json:"totalPrice"`
	IsAvailable       bool            `json:"isAvailable"`
	AvailableQuantity int             `json:"availableQuantity"`
}

// CartWithProducts is the enriched, priced read model. It is never persisted.
type CartWithProducts struct {
	UserID     string            `json:"userId"`
	Items      []ItemWithProduct `json:"items"`
	TotalItems int               `json:"totalItems"`
	Pricing    pricing.Breakdown `json:"pricing"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	ExpiresAt  time.Time         `json:"expiresAt"`
}

type ValidationResult struct {
	IsValid      bool     `json:"isValid"`
	Errors       []string `json:"errors"`
	InvalidItems []string `json:"invalidItems"`
}

func (v *ValidationResult) addItemError(productID, message string) {
	v.Errors = append(v.Errors, message)
	for _, id := range v.InvalidItems {
		if id == productID {
			return
		}
	}
	v.InvalidItems = append(v.InvalidItems, productID)
}

type CheckoutSummary struct {
	ItemCount          int              `json:"itemCount"`
	TotalAmount        decimal.Decimal  `json:"totalAmount"`
	Currency           string           `json:"currency"`
	IsReadyForCheckout bool             `json:"isReadyForCheckout"`
	Validation         ValidationResult `json:"validation"`
	ReservationID      string           `json:"reservationId,omitempty"`
}

// GuestItem is a line carried over from an anonymous session.
type GuestItem struct {
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
