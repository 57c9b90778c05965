package cart

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-cart/api/middleware"
	"github.com/angelmondragon/packfinderz-cart/api/responses"
	"github.com/angelmondragon/packfinderz-cart/api/validators"
	cartsvc "github.com/angelmondragon/packfinderz-cart/internal/cart"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

// userHandler is the shape shared by every cart endpoint once identity is resolved.
type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func withUser(svc cartsvc.Service, logg *logger.Logger, fn userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}
		fn(w, r, userID)
	}
}

// CartFetch returns the enriched cart.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withUser(svc, logg, func(w http.ResponseWriter, r *http.Request, userID string) {
		view, err := svc.GetCart(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	})
}

// CartCount returns the total quantity across lines.
func CartCount(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withUser(svc, logg, func(w http.ResponseWriter, r *http.Request, userID string) {
		count, err := svc.GetCartItemCount(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, countResponse{Count: count})
	})
}

func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withUser(svc, logg, func(w http.ResponseWriter, r *http.Request, userID string) {
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID := validators.SanitizeString(payload.ProductID, maxProductIDLength)
		ctx := logg.WithProductID(r.Context(), productID)

		view, err := svc.AddToCart(ctx, userID, productID, payload.Quantity)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	})
}

// CartUpdateItem sets a line quantity; zero removes the line.
func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withUser(svc, logg, func(w http.ResponseWriter, r *http.Request, userID string) {
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithProductID(r.Context(), productID)

		view, err := svc.UpdateCartItem(ctx, userID, productID, *payload.Quantity)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	})
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withUser(svc, logg, func(w http.ResponseWriter, r *http.Request, userID string) {
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithProductID(r.Context(), productID)

		view, err := svc.RemoveFromCart(ctx, userID, productID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	})
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withUser(svc, logg, func(w http.ResponseWriter, r *http.Request, userID string) {
		if err := svc.ClearCart(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	})
}

// CartMerge folds a guest cart into the user's cart. A null body means nothing survived the merge.
func CartMerge(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withUser(svc, logg, func(w http.ResponseWriter, r *http.Request, userID string) {
		var payload mergeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.MergeGuestCart(r.Context(), userID, payload.toGuestItems())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	})
}

func CartValidate(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withUser(svc, logg, func(w http.ResponseWriter, r *http.Request, userID string) {
		result, err := svc.ValidateCart(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	})
}

func CartPrepareCheckout(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withUser(svc, logg, func(w http.ResponseWriter, r *http.Request, userID string) {
		summary, err := svc.PrepareCheckout(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	})
}

func CartReleaseReservation(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return withUser(svc, logg, func(w http.ResponseWriter, r *http.Request, userID string) {
		if err := svc.ReleaseReservation(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	})
}

func productIDParam(r *http.Request) (string, error) {
	productID := validators.SanitizeString(chi.URLParam(r, "productId"), maxProductIDLength)
	if productID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return productID, nil
}
