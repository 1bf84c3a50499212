package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus tracks the payment side of the order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyCart is returned by Checkout when the cart has no items.
	ErrEmptyCart = errors.New("cannot checkout an empty cart")
	// ErrPaymentFailed wraps payment-processor failures; fatal to checkout.
	ErrPaymentFailed = errors.New("payment failed")
)

// Line is a frozen copy of a cart line at checkout time. Prices and applied
// discounts are baked in and never recomputed; the reconciler reads these to
// know what to deduct or restore.
type Line struct {
	ProductID  string `json:"product_id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`

	UnitPrice decimal.Decimal `json:"unit_price"`
	FreeUnits int             `json:"free_units"`
	// AppliedDiscount is the total monetary discount on this line
	// (membership free units plus promotion share).
	AppliedDiscount decimal.Decimal `json:"applied_discount"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// Order is the immutable snapshot created at checkout. It is the durable
// pricing record: downstream reconciliation and refunds read it back rather
// than the live cart, which may have changed since.
type Order struct {
	ID           string `json:"id"`
	OwnerID      string `json:"owner_id"`
	MembershipID string `json:"membership_id,omitempty"`

	Lines []Line `json:"lines"`

	Subtotal           decimal.Decimal `json:"subtotal"`
	MembershipDiscount decimal.Decimal `json:"membership_discount"`
	PromotionDiscount  decimal.Decimal `json:"promotion_discount"`
	Shipping           decimal.Decimal `json:"shipping"`
	Tax                decimal.Decimal `json:"tax"`
	Total              decimal.Decimal `json:"total"`

	PromotionID   string `json:"promotion_id,omitempty"`
	PromotionCode string `json:"promotion_code,omitempty"`

	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentRef    string        `json:"payment_ref,omitempty"`

	// UsageReconciled guards the membership usage deduction: set exactly once
	// at commit so a retried confirmation cannot double-deduct.
	UsageReconciled bool `json:"usage_reconciled"`

	ShippingService string    `json:"shipping_service,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// IsFree reports whether the order requires no payment.
func (o *Order) IsFree() bool {
	return !o.Total.IsPositive()
}

// Repository defines persistence operations for orders. The usage-reconcile
// flag operations must be atomic compare-and-set at the storage layer.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// MarkPaid transitions a pending order to paid. Marking an already-paid
	// order is a no-op.
	MarkPaid(ctx context.Context, id string) error
	// MarkCancelled transitions an order to cancelled, recording the final
	// payment status.
	MarkCancelled(ctx context.Context, id string, payment PaymentStatus) error
	// BeginUsageReconcile atomically sets the usage-reconciled flag. It
	// returns false when the flag was already set, signalling the caller to
	// skip the deduction.
	BeginUsageReconcile(ctx context.Context, id string) (bool, error)
	// ClearUsageReconcile resets the flag after a successful restore so a
	// later re-confirmation deducts again.
	ClearUsageReconcile(ctx context.Context, id string) error
}
