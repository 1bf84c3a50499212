// Package handler exposes the storefront over a chi-routed JSON API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/montebay/storefront/internal/domain/cart"
	"github.com/montebay/storefront/internal/domain/order"
	"github.com/montebay/storefront/internal/domain/product"
	"github.com/montebay/storefront/internal/identity"
)

// Handler carries the domain services behind the HTTP surface.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	checkout *order.CheckoutService
	idp      identity.Provider
	security *SecurityHandler
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	carts *cart.Service,
	checkout *order.CheckoutService,
	idp identity.Provider,
	security *SecurityHandler,
) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		checkout: checkout,
		idp:      idp,
		security: security,
	}
}

// Router builds the API route tree. Customer routes require a bearer token;
// the payment webhook and order administration require an API key.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireUser)

		r.Get("/cart", h.GetCart)
		r.Post("/cart/items", h.AddCartItem)
		r.Patch("/cart/items/{productID}", h.UpdateCartItem)
		r.Delete("/cart/items/{productID}", h.RemoveCartItem)
		r.Post("/cart/promotion", h.ApplyPromotion)
		r.Delete("/cart/promotion", h.RemovePromotion)
		r.Delete("/cart", h.ClearCart)

		r.Post("/checkout", h.Checkout)
		r.Get("/orders/{orderID}", h.GetOrder)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.security.RequireAPIKey)

		r.Post("/orders/{orderID}/confirm", h.ConfirmOrder)
		r.Post("/orders/{orderID}/cancel", h.CancelOrder)
	})

	return r
}
