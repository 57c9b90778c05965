package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	"github.com/angelmondragon/packfinderz-cart/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ReasonInsufficientQuantity = "insufficient_quantity"
	ReasonOutOfStock           = "out_of_stock"
	ReasonProductUnavailable   = "product_unavailable"
)

const (
	opAdd     = "add"
	opUpdate  = "update"
	opRemove  = "remove"
	opClear   = "clear"
	opMerge   = "merge"
	opPrepare = "prepare_checkout"
)

// Service exposes the cart state machine.
type Service interface {
	GetCart(ctx context.Context, userID string) (*CartWithProducts, error)
	AddToCart(ctx context.Context, userID, productID string, quantity int) (*CartWithProducts, error)
	UpdateCartItem(ctx context.Context, userID, productID string, quantity int) (*CartWithProducts, error)
	RemoveFromCart(ctx context.Context, userID, productID string) (*CartWithProducts, error)
	ClearCart(ctx context.Context, userID string) error
	GetCartItemCount(ctx context.Context, userID string) (int, error)
	ValidateCart(ctx context.Context, userID string) (*ValidationResult, error)
	MergeGuestCart(ctx context.Context, userID string, items []GuestItem) (*CartWithProducts, error)
	PrepareCheckout(ctx context.Context, userID string) (*CheckoutSummary, error)
	ReleaseReservation(ctx context.Context, userID string) error
}

// Limits bound cart contents and lifecycle.
type Limits struct {
	MaxItems           int
	MaxQuantityPerItem int
	MinOrderAmount     decimal.Decimal
	ReservationTimeout time.Duration
}

// LimitsFrom maps the cart config section onto service limits.
func LimitsFrom(cfg config.CartConfig) Limits {
	return Limits{
		MaxItems:           cfg.MaxItems,
		MaxQuantityPerItem: cfg.MaxQuantityPerItem,
		MinOrderAmount:     cfg.MinOrderAmount,
		ReservationTimeout: cfg.ReservationTimeout(),
	}
}

// ServiceParams wire the cart service.
type ServiceParams struct {
	Store     *Store
	Enricher  *Enricher
	Catalog   ProductCatalog
	Inventory InventoryChecker
	Limits    Limits
	Logger    *logger.Logger
	Metrics   *metrics.CartMetrics
}

type service struct {
	store     *Store
	enricher  *Enricher
	catalog   ProductCatalog
	inventory InventoryChecker
	limits    Limits
	logg      *logger.Logger
	metrics   *metrics.CartMetrics
	now       func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, errRequired("cart store")
	}
	if params.Enricher == nil {
		return nil, errRequired("enricher")
	}
	if params.Catalog == nil {
		return nil, errRequired("product catalog")
	}
	if params.Inventory == nil {
		return nil, errRequired("inventory checker")
	}
	if params.Limits.MaxItems <= 0 || params.Limits.MaxQuantityPerItem <= 0 {
		return nil, fmt.Errorf("cart limits must be positive")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		store:     params.Store,
		enricher:  params.Enricher,
		catalog:   params.Catalog,
		inventory: params.Inventory,
		limits:    params.Limits,
		logg:      logg,
		metrics:   params.Metrics,
		now:       time.Now,
	}, nil
}

func errRequired(what string) error {
	return fmt.Errorf("%s required", what)
}

// GetCart returns the enriched cart. An expired cart is deleted and reported as not found.
func (s *service) GetCart(ctx context.Context, userID string) (*CartWithProducts, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	cart, err := s.loadLive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return s.enricher.Enrich(ctx, cart), nil
}

func (s *service) AddToCart(ctx context.Context, userID, productID string, quantity int) (result *CartWithProducts, err error) {
	defer func() { s.metrics.ObserveMutation(opAdd, err) }()

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := s.validateLine(productID, quantity); err != nil {
		return nil, err
	}
	if err := s.checkAvailability(ctx, productID, quantity); err != nil {
		return nil, err
	}

	var saved *Cart
	err = s.store.WithUserLock(ctx, userID, func(ctx context.Context) error {
		now := s.now().UTC()
		cart, err := s.loadLive(ctx, userID)
		if err != nil {
			return err
		}
		if cart == nil {
			cart = newCart(userID, now, s.store.Expiration())
		}

		if idx := cart.indexOf(productID); idx >= 0 {
			existing := cart.Items[idx].Quantity
			total := existing + quantity
			if total > s.limits.MaxQuantityPerItem {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("cannot add %d more; at most %d per item", quantity, s.limits.MaxQuantityPerItem)).
					WithDetails(map[string]any{
						"product_id":         productID,
						"current_quantity":   existing,
						"max_quantity":       s.limits.MaxQuantityPerItem,
						"suggested_quantity": s.limits.MaxQuantityPerItem - existing,
					})
			}
			if err := s.checkAvailability(ctx, productID, total); err != nil {
				return err
			}
			cart.Items[idx].Quantity = total
			cart.Items[idx].UpdatedAt = now
		} else {
			if len(cart.Items) >= s.limits.MaxItems {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("cart cannot hold more than %d items", s.limits.MaxItems)).
					WithDetails(map[string]any{"max_items": s.limits.MaxItems})
			}
			cart.Items = append(cart.Items, Item{ProductID: productID, Quantity: quantity, AddedAt: now, UpdatedAt: now})
		}
		cart.UpdatedAt = now

		if err := s.store.SaveCart(ctx, cart); err != nil {
			return err
		}
		saved = cart
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.enricher.Enrich(ctx, saved), nil
}

// UpdateCartItem sets a line's quantity. A quantity of zero or less removes the line.
func (s *service) UpdateCartItem(ctx context.Context, userID, productID string, quantity int) (result *CartWithProducts, err error) {
	if quantity <= 0 {
		return s.RemoveFromCart(ctx, userID, productID)
	}
	defer func() { s.metrics.ObserveMutation(opUpdate, err) }()

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := s.validateLine(productID, quantity); err != nil {
		return nil, err
	}

	var saved *Cart
	err = s.store.WithUserLock(ctx, userID, func(ctx context.Context) error {
		cart, err := s.requireCart(ctx, userID)
		if err != nil {
			return err
		}
		idx := cart.indexOf(productID)
		if idx < 0 {
			return itemNotFound(productID)
		}
		if err := s.checkAvailability(ctx, productID, quantity); err != nil {
			return err
		}
		now := s.now().UTC()
		cart.Items[idx].Quantity = quantity
		cart.Items[idx].UpdatedAt = now
		cart.UpdatedAt = now
		if err := s.store.SaveCart(ctx, cart); err != nil {
			return err
		}
		saved = cart
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.enricher.Enrich(ctx, saved), nil
}

// RemoveFromCart drops a line. Removing the last line deletes the cart and returns nil.
func (s *service) RemoveFromCart(ctx context.Context, userID, productID string) (result *CartWithProducts, err error) {
	defer func() { s.metrics.ObserveMutation(opRemove, err) }()

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(productID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	var remaining *Cart
	err = s.store.WithUserLock(ctx, userID, func(ctx context.Context) error {
		cart, err := s.requireCart(ctx, userID)
		if err != nil {
			return err
		}
		idx := cart.indexOf(productID)
		if idx < 0 {
			return itemNotFound(productID)
		}
		if len(cart.Items) == 1 {
			return s.store.ClearCart(ctx, userID)
		}
		if err := s.store.RemoveItem(ctx, userID, productID); err != nil {
			return err
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		cart.UpdatedAt = s.now().UTC()
		remaining = cart
		return nil
	})
	if err != nil || remaining == nil {
		return nil, err
	}
	return s.enricher.Enrich(ctx, remaining), nil
}

// ClearCart deletes the cart and any checkout reservation.
func (s *service) ClearCart(ctx context.Context, userID string) (err error) {
	defer func() { s.metrics.ObserveMutation(opClear, err) }()

	if err := requireUser(userID); err != nil {
		return err
	}
	return s.store.WithUserLock(ctx, userID, func(ctx context.Context) error {
		if err := s.store.ClearCart(ctx, userID); err != nil {
			return err
		}
		return s.store.ClearReservation(ctx, userID)
	})
}

// GetCartItemCount sums quantities. A missing or expired cart counts as zero.
func (s *service) GetCartItemCount(ctx context.Context, userID string) (int, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	cart, err := s.store.GetCart(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if cart.IsExpired(s.now()) {
		return 0, nil
	}
	return cart.TotalQuantity(), nil
}

func (s *service) ValidateCart(ctx context.Context, userID string) (*ValidationResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	result, _, err := s.validate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// validate checks every line and the minimum order amount, collecting all failures.
// The enriched cart is nil when there is no live cart.
func (s *service) validate(ctx context.Context, userID string) (*ValidationResult, *CartWithProducts, error) {
	result := &ValidationResult{Errors: []string{}, InvalidItems: []string{}}

	cart, err := s.store.GetCart(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		result.Errors = append(result.Errors, "cart not found")
		return result, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if cart.IsExpired(s.now()) {
		if err := s.store.ClearCart(ctx, userID); err != nil {
			return nil, nil, err
		}
		result.Errors = append(result.Errors, "cart has expired")
		return result, nil, nil
	}

	for _, item := range cart.Items {
		if item.Quantity > s.limits.MaxQuantityPerItem {
			result.addItemError(item.ProductID,
				fmt.Sprintf("%s: quantity %d exceeds the limit of %d", item.ProductID, item.Quantity, s.limits.MaxQuantityPerItem))
			continue
		}
		if err := s.checkAvailability(ctx, item.ProductID, item.Quantity); err != nil {
			message := err.Error()
			if typed := pkgerrors.As(err); typed != nil {
				message = typed.Message()
			}
			result.addItemError(item.ProductID, fmt.Sprintf("%s: %s", item.ProductID, message))
		}
	}

	enriched := s.enricher.Enrich(ctx, cart)
	if enriched.Pricing.Subtotal.LessThan(s.limits.MinOrderAmount) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("minimum order amount is %s %s", s.limits.MinOrderAmount.String(), enriched.Pricing.Currency))
	}
	result.IsValid = len(result.Errors) == 0
	return result, enriched, nil
}

// MergeGuestCart folds anonymous-session lines into the user's cart. Conflicting lines sum
// and cap at the per-item limit; new lines that fail availability are dropped. When the
// result exceeds the item limit, the most recently updated lines win.
func (s *service) MergeGuestCart(ctx context.Context, userID string, guestItems []GuestItem) (result *CartWithProducts, err error) {
	defer func() { s.metrics.ObserveMutation(opMerge, err) }()

	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var merged *Cart
	err = s.store.WithUserLock(ctx, userID, func(ctx context.Context) error {
		now := s.now().UTC()
		cart, err := s.loadLive(ctx, userID)
		if err != nil {
			return err
		}
		if cart == nil {
			cart = newCart(userID, now, s.store.Expiration())
		}

		changed := false
		for _, guest := range guestItems {
			if strings.TrimSpace(guest.ProductID) == "" || guest.Quantity <= 0 {
				continue
			}
			if idx := cart.indexOf(guest.ProductID); idx >= 0 {
				cart.Items[idx].Quantity = min(cart.Items[idx].Quantity+guest.Quantity, s.limits.MaxQuantityPerItem)
				cart.Items[idx].UpdatedAt = now
				changed = true
				continue
			}
			quantity := min(guest.Quantity, s.limits.MaxQuantityPerItem)
			if err := s.checkAvailability(ctx, guest.ProductID, quantity); err != nil {
				logCtx := s.logg.WithProductID(s.logg.WithUserID(ctx, userID), guest.ProductID)
				s.logg.Debug(logCtx, "dropping guest cart item during merge")
				continue
			}
			cart.Items = append(cart.Items, Item{
				ProductID: guest.ProductID,
				Quantity:  quantity,
				AddedAt:   orNow(guest.AddedAt, now),
				UpdatedAt: orNow(guest.UpdatedAt, now),
			})
			changed = true
		}

		if len(cart.Items) > s.limits.MaxItems {
			cart.Items = keepMostRecent(cart.Items, s.limits.MaxItems)
		}
		if len(cart.Items) == 0 {
			return nil
		}
		if changed {
			cart.UpdatedAt = now
			if err := s.store.SaveCart(ctx, cart); err != nil {
				return err
			}
		}
		merged = cart
		return nil
	})
	if err != nil || merged == nil {
		return nil, err
	}
	return s.enricher.Enrich(ctx, merged), nil
}

// PrepareCheckout validates the cart and, when it is ready, takes a checkout reservation.
func (s *service) PrepareCheckout(ctx context.Context, userID string) (summary *CheckoutSummary, err error) {
	defer func() { s.metrics.ObserveMutation(opPrepare, err) }()

	if err := requireUser(userID); err != nil {
		return nil, err
	}

	err = s.store.WithUserLock(ctx, userID, func(ctx context.Context) error {
		result, enriched, err := s.validate(ctx, userID)
		if err != nil {
			return err
		}
		if enriched == nil || len(enriched.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").WithDetails(result)
		}

		summary = &CheckoutSummary{
			ItemCount:   enriched.TotalItems,
			TotalAmount: enriched.Pricing.Total,
			Currency:    enriched.Pricing.Currency,
			Validation:  *result,
		}
		summary.IsReadyForCheckout = result.IsValid && enriched.Pricing.Total.GreaterThanOrEqual(s.limits.MinOrderAmount)
		if !summary.IsReadyForCheckout || s.limits.ReservationTimeout <= 0 {
			return nil
		}
		reservationID := uuid.NewString()
		if err := s.store.SetReservation(ctx, userID, reservationID, s.limits.ReservationTimeout); err != nil {
			return err
		}
		summary.ReservationID = reservationID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *service) ReleaseReservation(ctx context.Context, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	return s.store.ClearReservation(ctx, userID)
}

// loadLive returns the stored cart, nil when absent, and lazily deletes an expired one.
func (s *service) loadLive(ctx context.Context, userID string) (*Cart, error) {
	cart, err := s.store.GetCart(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if cart.IsExpired(s.now()) {
		if err := s.store.ClearCart(ctx, userID); err != nil {
			return nil, err
		}
		s.logg.Info(s.logg.WithUserID(ctx, userID), "cleared expired cart")
		return nil, nil
	}
	return cart, nil
}

func (s *service) requireCart(ctx context.Context, userID string) (*Cart, error) {
	cart, err := s.loadLive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return cart, nil
}

func (s *service) validateLine(productID string, quantity int) error {
	if strings.TrimSpace(productID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if quantity > s.limits.MaxQuantityPerItem {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("quantity cannot exceed %d per item", s.limits.MaxQuantityPerItem)).
			WithDetails(map[string]any{"max_quantity": s.limits.MaxQuantityPerItem})
	}
	return nil
}

// checkAvailability fetches the product and its stock fresh and reports one of three
// actionable conditions when quantity cannot be sold.
func (s *service) checkAvailability(ctx context.Context, productID string, quantity int) error {
	products, err := s.catalog.GetProductsBatch(ctx, []string{productID})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "product lookup failed")
	}
	var product *ProductSnapshot
	for i := range products {
		if products[i].ID == productID {
			product = &products[i]
			break
		}
	}
	if product == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product is not available").
			WithDetails(map[string]any{"reason": ReasonProductUnavailable, "product_id": productID})
	}

	check, err := s.inventory.CheckInventory(ctx, productID, quantity, hintFor(*product))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inventory check failed")
	}
	if check.Available && check.AvailableQuantity >= quantity {
		return nil
	}

	switch {
	case check.AvailableQuantity > 0 && check.AvailableQuantity < quantity:
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("only %d of %s available", check.AvailableQuantity, product.Name)).
			WithDetails(map[string]any{
				"reason":             ReasonInsufficientQuantity,
				"product_id":         productID,
				"available_quantity": check.AvailableQuantity,
				"suggested_quantity": min(check.AvailableQuantity, s.limits.MaxQuantityPerItem),
			})
	case check.AvailableQuantity <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("%s is out of stock; add it to your wishlist instead", product.Name)).
			WithDetails(map[string]any{
				"reason":           ReasonOutOfStock,
				"product_id":       productID,
				"suggest_wishlist": true,
			})
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is not available", product.Name)).
			WithDetails(map[string]any{
				"reason":     ReasonProductUnavailable,
				"product_id": productID,
				"status":     check.Status,
			})
	}
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return nil
}

func itemNotFound(productID string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "item not found in cart").
		WithDetails(map[string]any{"product_id": productID})
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t.UTC()
}

// keepMostRecent keeps the limit most recently updated lines, returned in addedAt order.
func keepMostRecent(items []Item, limit int) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})
	kept := sorted[:limit]
	sortByAddedAt(kept)
	return kept
}

var _ Service = (*service)(nil)
