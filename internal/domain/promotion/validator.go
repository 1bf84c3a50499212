package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator validates a promotion code against a cart snapshot and returns
// the computed discount. Validation is read-only: usage counters move only
// when an order is confirmed.
type Validator interface {
	Validate(ctx context.Context, code string, items []Item, customerID string) (*Result, error)
}

// RepoValidator implements Validator by looking up promotion rules from a
// Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate runs the full eligibility chain: code lookup, active window,
// usage limits (promotion, code, per-customer), eligible base computation,
// minimum requirements, and finally the discount calculation. Every failure
// returns one of the package's reason errors.
func (v *RepoValidator) Validate(ctx context.Context, code string, items []Item, customerID string) (*Result, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrCodeNotFound
	}

	promo, codeRow, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, errors.Wrap(err, "lookup promotion")
	}
	if !codeRow.Active {
		return nil, ErrCodeNotFound
	}

	now := v.now()
	if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
		return nil, ErrOutsideWindow
	}
	if promo.EndsAt != nil && now.After(*promo.EndsAt) {
		return nil, ErrOutsideWindow
	}

	if promo.UsageLimit > 0 && promo.Uses >= promo.UsageLimit {
		return nil, ErrUsageLimitExceeded
	}
	if codeRow.UsageLimit > 0 && codeRow.Uses >= codeRow.UsageLimit {
		return nil, ErrUsageLimitExceeded
	}

	if promo.PerCustomerLimit > 0 && customerID != "" {
		redeemed, err := v.repo.CustomerRedemptions(ctx, promo.ID, customerID)
		if err != nil {
			return nil, errors.Wrap(err, "count customer redemptions")
		}
		if redeemed >= promo.PerCustomerLimit {
			return nil, ErrPerCustomerLimit
		}
	}

	eligible := eligibleItems(promo, items)
	base := eligibleBase(eligible)
	if !base.IsPositive() {
		return nil, ErrNothingEligible
	}

	if promo.MinPurchase.IsPositive() && base.LessThan(promo.MinPurchase) {
		return nil, ErrMinimumNotMet
	}
	if promo.MinQuantity > 0 && eligibleQuantity(eligible) < promo.MinQuantity {
		return nil, ErrMinimumNotMet
	}

	amount, err := computeDiscount(promo, eligible)
	if err != nil {
		return nil, err
	}
	// The discount can never exceed what it discounts.
	amount = decimal.Min(amount, base)

	lineBases := make(map[string]decimal.Decimal, len(eligible))
	for _, it := range eligible {
		lineBases[it.ProductID] = it.paidTotal()
	}

	return &Result{
		PromotionID: promo.ID,
		Code:        code,
		Amount:      amount,
		LineBases:   lineBases,
	}, nil
}
