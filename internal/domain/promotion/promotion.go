package promotion

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported promotion discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage discount to the eligible base.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixedAmount applies a fixed monetary discount capped at the
	// eligible base.
	DiscountFixedAmount DiscountType = "fixed_amount"
	// DiscountBuyXGetY discounts Y units for every complete group of X+Y
	// eligible units.
	DiscountBuyXGetY DiscountType = "buy_x_get_y"
)

// ScopeKind selects which catalog slice a promotion applies to.
type ScopeKind string

const (
	ScopeAll         ScopeKind = "all"
	ScopeCategories  ScopeKind = "categories"
	ScopeProducts    ScopeKind = "products"
	ScopeCollections ScopeKind = "collections"
)

// Validation failure reasons. Each maps to a specific user-facing message;
// callers must never collapse them into a generic failure.
var (
	ErrCodeNotFound       = errors.New("promotion code not found")
	ErrOutsideWindow      = errors.New("promotion outside active window")
	ErrUsageLimitExceeded = errors.New("promotion usage limit exceeded")
	ErrPerCustomerLimit   = errors.New("per-customer usage limit exceeded")
	ErrNothingEligible    = errors.New("no cart items eligible for promotion")
	ErrMinimumNotMet      = errors.New("minimum purchase requirement not met")
)

// Scope restricts a promotion to a slice of the catalog.
type Scope struct {
	Kind ScopeKind
	IDs  []string
}

// Includes reports whether a product falls inside the scope. The switch is
// closed over the known kinds: an unrecognized kind matches nothing, so a
// mistyped scope row disables the promotion instead of discounting the whole
// store.
func (s Scope) Includes(productID, categoryID string, collectionIDs []string) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeCategories:
		return slices.Contains(s.IDs, categoryID)
	case ScopeProducts:
		return slices.Contains(s.IDs, productID)
	case ScopeCollections:
		return slices.ContainsFunc(collectionIDs, func(id string) bool {
			return slices.Contains(s.IDs, id)
		})
	default:
		return false
	}
}

// Promotion defines a discount rule and its eligibility constraints.
type Promotion struct {
	ID           string
	Name         string
	DiscountType DiscountType
	// DiscountValue is the percentage for DiscountPercentage or the amount
	// for DiscountFixedAmount. Unused for DiscountBuyXGetY.
	DiscountValue decimal.Decimal

	// Buy-X-get-Y parameters.
	BuyQuantity        int
	GetQuantity        int
	GetDiscountPercent decimal.Decimal

	Scope             Scope
	MinPurchase       decimal.Decimal
	MinQuantity       int
	UsageLimit        int // 0 = unlimited
	Uses              int
	PerCustomerLimit  int // 0 = unlimited
	ExcludeDiscounted bool
	StartsAt          *time.Time
	EndsAt            *time.Time
}

// Code is a redeemable string attached to a promotion, with its own usage
// counter on top of the promotion-level one.
type Code struct {
	Code        string
	PromotionID string
	UsageLimit  int // 0 = unlimited
	Uses        int
	Active      bool
}

// Result is a successful validation outcome.
type Result struct {
	PromotionID string
	// Code is the normalized (upper-cased) code that was validated.
	Code   string
	Amount decimal.Decimal
	// LineBases maps product IDs to each eligible line's contribution to the
	// eligible base, used for proportional per-line discount display.
	LineBases map[string]decimal.Decimal
}

// Repository provides promotion lookup and redemption accounting. Counter
// mutations must be atomic at the storage layer.
type Repository interface {
	// FindByCode returns the promotion and code row for the given code,
	// matched case-insensitively. Returns ErrCodeNotFound when absent.
	FindByCode(ctx context.Context, code string) (*Promotion, *Code, error)
	// CustomerRedemptions returns how many times the customer has redeemed
	// the promotion on confirmed orders.
	CustomerRedemptions(ctx context.Context, promotionID, customerID string) (int, error)
	// RecordRedemption atomically increments the promotion, code, and
	// per-customer usage counters. It fails with ErrUsageLimitExceeded when a
	// guarded counter is already at its limit.
	RecordRedemption(ctx context.Context, promotionID, code, customerID string) error
}
