package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/montebay/storefront/internal/domain/order"
)

type orderLineResponse struct {
	ProductID       string  `json:"productId"`
	Name            string  `json:"name"`
	Quantity        int     `json:"quantity"`
	UnitPrice       float64 `json:"unitPrice"`
	FreeUnits       int     `json:"freeUnits"`
	AppliedDiscount float64 `json:"appliedDiscount"`
	LineTotal       float64 `json:"lineTotal"`
}

type orderResponse struct {
	ID                 string              `json:"id"`
	Status             string              `json:"status"`
	PaymentStatus      string              `json:"paymentStatus"`
	Lines              []orderLineResponse `json:"lines"`
	Subtotal           float64             `json:"subtotal"`
	MembershipDiscount float64             `json:"membershipDiscount"`
	PromotionDiscount  float64             `json:"promotionDiscount"`
	Shipping           float64             `json:"shipping"`
	Tax                float64             `json:"tax"`
	Total              float64             `json:"total"`
	PromotionCode      string              `json:"promotionCode,omitempty"`
	ShippingService    string              `json:"shippingService,omitempty"`
}

func toOrderResponse(o *order.Order) orderResponse {
	lines := make([]orderLineResponse, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = orderLineResponse{
			ProductID:       l.ProductID,
			Name:            l.Name,
			Quantity:        l.Quantity,
			UnitPrice:       money(l.UnitPrice),
			FreeUnits:       l.FreeUnits,
			AppliedDiscount: money(l.AppliedDiscount),
			LineTotal:       money(l.LineTotal),
		}
	}
	return orderResponse{
		ID:                 o.ID,
		Status:             string(o.Status),
		PaymentStatus:      string(o.PaymentStatus),
		Lines:              lines,
		Subtotal:           money(o.Subtotal),
		MembershipDiscount: money(o.MembershipDiscount),
		PromotionDiscount:  money(o.PromotionDiscount),
		Shipping:           money(o.Shipping),
		Tax:                money(o.Tax),
		Total:              money(o.Total),
		PromotionCode:      o.PromotionCode,
		ShippingService:    o.ShippingService,
	}
}

type checkoutRequest struct {
	ShipTo order.ShipTo `json:"shipTo"`
}

// Checkout freezes the caller's cart into an order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.ShipTo.Zip == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "shipTo.zip is required")
		return
	}

	o, err := h.checkout.Checkout(r.Context(), user.ID, req.ShipTo)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// GetOrder returns one of the caller's orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	o, err := h.checkout.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if o.OwnerID != user.ID {
		writeError(w, http.StatusNotFound, "order_not_found", "order not found")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// ConfirmOrder is the payment-processor webhook: transitions the order to
// paid and commits the membership usage deduction. Idempotent.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.checkout.ConfirmPayment(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// CancelOrder refunds and cancels an order, restoring membership usage.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.checkout.Cancel(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
