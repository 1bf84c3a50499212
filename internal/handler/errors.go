package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/montebay/storefront/internal/domain/cart"
	"github.com/montebay/storefront/internal/domain/order"
	"github.com/montebay/storefront/internal/domain/product"
	"github.com/montebay/storefront/internal/domain/promotion"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeDomainError maps domain errors to HTTP responses. Promotion
// eligibility failures carry their specific reason through to the client;
// they are never collapsed into a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", "order not found")
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "invalid_quantity", "quantity must not be negative")
	case errors.Is(err, order.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "empty_cart", "cannot checkout an empty cart")
	case errors.Is(err, promotion.ErrCodeNotFound):
		writeError(w, http.StatusUnprocessableEntity, "code_not_found", "promotion code not found or inactive")
	case errors.Is(err, promotion.ErrOutsideWindow):
		writeError(w, http.StatusUnprocessableEntity, "outside_window", "promotion is not currently active")
	case errors.Is(err, promotion.ErrUsageLimitExceeded):
		writeError(w, http.StatusUnprocessableEntity, "usage_limit", "promotion usage limit exceeded")
	case errors.Is(err, promotion.ErrPerCustomerLimit):
		writeError(w, http.StatusUnprocessableEntity, "per_customer_limit", "you have already used this promotion")
	case errors.Is(err, promotion.ErrNothingEligible):
		writeError(w, http.StatusUnprocessableEntity, "nothing_eligible", "no cart items are eligible for this promotion")
	case errors.Is(err, promotion.ErrMinimumNotMet):
		writeError(w, http.StatusUnprocessableEntity, "minimum_not_met", "cart does not meet the promotion minimum")
	case errors.Is(err, order.ErrPaymentFailed):
		writeError(w, http.StatusPaymentRequired, "payment_failed", "payment could not be processed")
	case errors.Is(err, cart.ErrVersionConflict):
		writeError(w, http.StatusConflict, "conflict", "cart was modified concurrently, retry")
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
