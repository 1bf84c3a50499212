package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no cart exists for an owner.
	ErrNotFound = errors.New("cart not found")
	// ErrVersionConflict is returned by Repository.Save when the persisted
	// cart changed since it was read. Callers re-read and retry.
	ErrVersionConflict = errors.New("cart version conflict")
	// ErrEmptyCart is returned when an operation requires a non-empty cart.
	ErrEmptyCart = errors.New("cart is empty")
)

// Item is a cart line with its derived pricing. FinalPrice always equals
// ListPrice*Quantity minus the membership free units and the line's share of
// the promotion discount; the recompute pipeline re-establishes this after
// every mutation.
type Item struct {
	ProductID     string          `json:"product_id"`
	CategoryID    string          `json:"category_id"`
	CollectionIDs []string        `json:"collection_ids,omitempty"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	ListPrice     decimal.Decimal `json:"list_price"`
	MarkedDown    bool            `json:"marked_down"`
	WeightOz      int             `json:"weight_oz"`

	// Derived on recompute.
	FreeUnits         int             `json:"free_units"`
	PromotionDiscount decimal.Decimal `json:"promotion_discount"`
	FinalPrice        decimal.Decimal `json:"final_price"`
}

// Totals are the cart-level computed amounts. The standing invariant is
// GrandTotal = Subtotal - MembershipDiscount - PromotionDiscount + Shipping + Tax.
type Totals struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	MembershipDiscount decimal.Decimal `json:"membership_discount"`
	PromotionDiscount  decimal.Decimal `json:"promotion_discount"`
	Shipping           decimal.Decimal `json:"shipping"`
	Tax                decimal.Decimal `json:"tax"`
	GrandTotal         decimal.Decimal `json:"grand_total"`
}

// Cart is the per-owner mutable draft. Items are unique by product ID and
// keep insertion order.
type Cart struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	MembershipID  string    `json:"membership_id,omitempty"`
	PromotionCode string    `json:"promotion_code,omitempty"`
	PromotionID   string    `json:"promotion_id,omitempty"`
	Items         []Item    `json:"items"`
	Totals        Totals    `json:"totals"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Version is the optimistic concurrency token managed by the repository.
	Version int64 `json:"-"`
}

// find returns the index of the line for productID, or -1.
func (c *Cart) find(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// removeAt deletes the line at index i preserving order.
func (c *Cart) removeAt(i int) {
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
}

// Repository persists carts keyed by owner. Save enforces optimistic
// versioning on the underlying document.
type Repository interface {
	// GetByOwner returns the owner's cart or ErrNotFound.
	GetByOwner(ctx context.Context, ownerID string) (*Cart, error)
	// Save upserts the cart. It fails with ErrVersionConflict when the stored
	// version differs from cart.Version; on success cart.Version is advanced.
	Save(ctx context.Context, c *Cart) error
	// Delete removes the owner's cart. Deleting an absent cart is a no-op.
	Delete(ctx context.Context, ownerID string) error
}
