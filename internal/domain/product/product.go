package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID         string
	Name       string
	CategoryID string
	Price      decimal.Decimal
	// CompareAtPrice is the pre-markdown price. Non-nil means the product is
	// currently marked down, which some promotions exclude.
	CompareAtPrice *decimal.Decimal
	// CollectionIDs are the merchandising collections the product belongs to.
	// Promotions can be scoped to a collection.
	CollectionIDs []string
	// WeightOz is the shipping weight in ounces.
	WeightOz int
}

// MarkedDown reports whether the product carries a compare-at markdown.
func (p Product) MarkedDown() bool {
	return p.CompareAtPrice != nil && p.CompareAtPrice.GreaterThan(p.Price)
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
