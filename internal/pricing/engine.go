package pricing

import (
	"strings"

	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	"github.com/shopspring/decimal"
)

const (
	defaultBulkQuantityThreshold = 10
	defaultDecimalPlaces         = 2
)

var (
	defaultBulkDiscountRate        = decimal.RequireFromString("0.05")
	defaultElectronicsDiscountRate = decimal.RequireFromString("0.10")
)

// CategoryRule discounts a line by Rate for every category Matches accepts.
type CategoryRule struct {
	Name    string
	Matches func(category string) bool
	Rate    decimal.Decimal
}

// ContainsFold builds a case-insensitive substring predicate.
func ContainsFold(substr string) func(string) bool {
	needle := strings.ToLower(substr)
	return func(category string) bool {
		return strings.Contains(strings.ToLower(category), needle)
	}
}

// DefaultCategoryRules returns the stock rule table.
func DefaultCategoryRules() []CategoryRule {
	return []CategoryRule{
		{Name: "electronics", Matches: ContainsFold("electronics"), Rate: defaultElectronicsDiscountRate},
	}
}

// Config drives the engine. Zero values for the bulk fields and rules fall back to defaults.
type Config struct {
	TaxRate               decimal.Decimal
	ShippingCost          decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	DecimalPlaces         int32
	Currency              string
	BulkQuantityThreshold int
	BulkDiscountRate      decimal.Decimal
	CategoryRules         []CategoryRule
}

// ConfigFrom maps the environment-backed pricing section onto an engine config.
func ConfigFrom(cfg config.PricingConfig) Config {
	return Config{
		TaxRate:               cfg.TaxRate,
		ShippingCost:          cfg.ShippingCost,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		DecimalPlaces:         cfg.DecimalPlaces,
		Currency:              cfg.Currency,
	}
}

// Line is one priced cart line. TotalPrice is unit price times quantity before discounts.
type Line struct {
	ProductID  string
	Quantity   int
	TotalPrice decimal.Decimal
	Categories []string
}

// Breakdown is the pricing block attached to an enriched cart.
type Breakdown struct {
	Subtotal              decimal.Decimal `json:"subtotal"`
	Tax                   decimal.Decimal `json:"tax"`
	Shipping              decimal.Decimal `json:"shipping"`
	Discount              decimal.Decimal `json:"discount"`
	Total                 decimal.Decimal `json:"total"`
	Currency              string          `json:"currency"`
	TaxRate               decimal.Decimal `json:"taxRate"`
	FreeShippingThreshold decimal.Decimal `json:"freeShippingThreshold"`
	ItemCount             int             `json:"itemCount"`
}

// Engine computes cart pricing. It holds no state beyond its config and is safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.BulkQuantityThreshold <= 0 {
		cfg.BulkQuantityThreshold = defaultBulkQuantityThreshold
	}
	if cfg.BulkDiscountRate.IsZero() {
		cfg.BulkDiscountRate = defaultBulkDiscountRate
	}
	if cfg.CategoryRules == nil {
		cfg.CategoryRules = DefaultCategoryRules()
	}
	if cfg.DecimalPlaces < 0 {
		cfg.DecimalPlaces = defaultDecimalPlaces
	}
	return &Engine{cfg: cfg}
}

// Currency returns the configured currency code.
func (e *Engine) Currency() string {
	return e.cfg.Currency
}

// Round applies the configured precision, half away from zero.
func (e *Engine) Round(value decimal.Decimal) decimal.Decimal {
	return value.Round(e.cfg.DecimalPlaces)
}

// LineTotal returns round(price * quantity).
func (e *Engine) LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return e.Round(price.Mul(decimal.NewFromInt(int64(quantity))))
}

// Calculate prices the given lines. It never panics; if a rule blows up the result
// carries the subtotal with every other amount zeroed.
func (e *Engine) Calculate(lines []Line) (out Breakdown) {
	subtotal := decimal.Zero
	quantity := 0
	for _, line := range lines {
		subtotal = subtotal.Add(line.TotalPrice)
		quantity += line.Quantity
	}

	defer func() {
		if r := recover(); r != nil {
			out = e.fallback(subtotal, quantity)
		}
	}()

	tax := subtotal.Mul(e.cfg.TaxRate)
	shipping := e.cfg.ShippingCost
	if subtotal.GreaterThanOrEqual(e.cfg.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	discount := e.discount(lines, subtotal, quantity)
	total := subtotal.Add(tax).Add(shipping).Sub(discount)

	return Breakdown{
		Subtotal:              e.Round(subtotal),
		Tax:                   e.Round(tax),
		Shipping:              e.Round(shipping),
		Discount:              e.Round(discount),
		Total:                 e.Round(total),
		Currency:              e.cfg.Currency,
		TaxRate:               e.cfg.TaxRate,
		FreeShippingThreshold: e.cfg.FreeShippingThreshold,
		ItemCount:             quantity,
	}
}

// Empty returns a zero breakdown in the configured currency.
func (e *Engine) Empty() Breakdown {
	return e.fallback(decimal.Zero, 0)
}

// discount adds the bulk rate and every matching category rule. A line whose product
// sits in two matching categories is discounted once per category.
func (e *Engine) discount(lines []Line, subtotal decimal.Decimal, quantity int) decimal.Decimal {
	discount := decimal.Zero
	if quantity > e.cfg.BulkQuantityThreshold {
		discount = discount.Add(subtotal.Mul(e.cfg.BulkDiscountRate))
	}
	for _, line := range lines {
		for _, category := range line.Categories {
			for _, rule := range e.cfg.CategoryRules {
				if rule.Matches != nil && rule.Matches(category) {
					discount = discount.Add(line.TotalPrice.Mul(rule.Rate))
				}
			}
		}
	}
	return discount
}

func (e *Engine) fallback(subtotal decimal.Decimal, quantity int) Breakdown {
	return Breakdown{
		Subtotal:              e.Round(subtotal),
		Tax:                   decimal.Zero,
		Shipping:              decimal.Zero,
		Discount:              decimal.Zero,
		Total:                 decimal.Zero,
		Currency:              e.cfg.Currency,
		TaxRate:               e.cfg.TaxRate,
		FreeShippingThreshold: e.cfg.FreeShippingThreshold,
		ItemCount:             quantity,
	}
}
