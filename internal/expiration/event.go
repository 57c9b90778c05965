package expiration

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventTypeReminder      = "cart.expiration.reminder"
	unknownProductName     = "Unknown product"
	reminderEventSchemaVer = 1
)

// ReminderEvent is published once per (user, days until expiration) per day.
type ReminderEvent struct {
	EventID             string          `json:"eventId"`
	EventType           string          `json:"eventType"`
	Version             int             `json:"version"`
	UserID              string          `json:"userId"`
	CartID              string          `json:"cartId"`
	ExpiresAt           time.Time       `json:"expiresAt"`
	DaysUntilExpiration int             `json:"daysUntilExpiration"`
	ItemCount           int             `json:"itemCount"`
	TotalValue          decimal.Decimal `json:"totalValue"`
	Items               []ReminderItem  `json:"items"`
	Timestamp           time.Time       `json:"timestamp"`
}

type ReminderItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}
