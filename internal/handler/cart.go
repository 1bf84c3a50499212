package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/montebay/storefront/internal/domain/cart"
)

type cartItemResponse struct {
	ProductID         string  `json:"productId"`
	Name              string  `json:"name"`
	Quantity          int     `json:"quantity"`
	ListPrice         float64 `json:"listPrice"`
	FreeUnits         int     `json:"freeUnits"`
	PromotionDiscount float64 `json:"promotionDiscount"`
	FinalPrice        float64 `json:"finalPrice"`
}

type cartResponse struct {
	ID                 string             `json:"id"`
	PromotionCode      string             `json:"promotionCode,omitempty"`
	Items              []cartItemResponse `json:"items"`
	Subtotal           float64            `json:"subtotal"`
	MembershipDiscount float64            `json:"membershipDiscount"`
	PromotionDiscount  float64            `json:"promotionDiscount"`
	GrandTotal         float64            `json:"grandTotal"`
}

func toCartResponse(c *cart.Cart) cartResponse {
	items := make([]cartItemResponse, len(c.Items))
	for i, it := range c.Items {
		items[i] = cartItemResponse{
			ProductID:         it.ProductID,
			Name:              it.Name,
			Quantity:          it.Quantity,
			ListPrice:         money(it.ListPrice),
			FreeUnits:         it.FreeUnits,
			PromotionDiscount: money(it.PromotionDiscount),
			FinalPrice:        money(it.FinalPrice),
		}
	}
	return cartResponse{
		ID:                 c.ID,
		PromotionCode:      c.PromotionCode,
		Items:              items,
		Subtotal:           money(c.Totals.Subtotal),
		MembershipDiscount: money(c.Totals.MembershipDiscount),
		PromotionDiscount:  money(c.Totals.PromotionDiscount),
		GrandTotal:         money(c.Totals.GrandTotal),
	}
}

// GetCart returns the caller's cart, freshly recomputed.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	c, err := h.carts.Get(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// AddCartItem adds units of a product to the caller's cart.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "productId is required")
		return
	}

	c, err := h.carts.AddItem(r.Context(), user.ID, req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateCartItem sets a line's quantity; zero removes the line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	productID := chi.URLParam(r, "productID")

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	c, err := h.carts.UpdateQuantity(r.Context(), user.ID, productID, req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// RemoveCartItem deletes a line from the caller's cart.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	productID := chi.URLParam(r, "productID")

	c, err := h.carts.RemoveItem(r.Context(), user.ID, productID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

type applyPromotionRequest struct {
	Code string `json:"code"`
}

// ApplyPromotion attaches a promotion code to the caller's cart.
func (h *Handler) ApplyPromotion(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req applyPromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "code is required")
		return
	}

	c, err := h.carts.ApplyPromotion(r.Context(), user.ID, req.Code)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// RemovePromotion detaches the applied promotion code.
func (h *Handler) RemovePromotion(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	c, err := h.carts.RemovePromotion(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// ClearCart removes the caller's cart entirely.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	if err := h.carts.Clear(r.Context(), user.ID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// money formats a decimal for JSON output rounded to cents.
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
