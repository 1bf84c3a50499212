package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/montebay/storefront/internal/domain/promotion"
)

const (
	getPromotionByCodeSQL = `SELECT
			p.id, p.name, p.discount_type, p.discount_value,
			p.buy_quantity, p.get_quantity, p.get_discount_percent,
			p.scope_kind, p.scope_ids, p.min_purchase, p.min_quantity,
			p.usage_limit, p.uses, p.per_customer_limit, p.exclude_discounted,
			p.starts_at, p.ends_at,
			c.code, c.usage_limit, c.uses, c.active
		FROM promotion_codes c
		JOIN promotions p ON p.id = c.promotion_id
		WHERE UPPER(c.code) = UPPER($1)`

	customerRedemptionsSQL = `SELECT COALESCE(
		(SELECT uses FROM promotion_redemptions
		 WHERE promotion_id = $1 AND customer_id = $2), 0)`

	// Guarded increments: zero rows affected means the counter hit its limit
	// between validation and redemption.
	incrementPromotionUsesSQL = `UPDATE promotions SET uses = uses + 1
		WHERE id = $1 AND (usage_limit = 0 OR uses < usage_limit)`

	incrementCodeUsesSQL = `UPDATE promotion_codes SET uses = uses + 1
		WHERE UPPER(code) = UPPER($1) AND (usage_limit = 0 OR uses < usage_limit)`

	upsertRedemptionSQL = `INSERT INTO promotion_redemptions (promotion_id, customer_id, uses)
		VALUES ($1, $2, 1)
		ON CONFLICT (promotion_id, customer_id)
		DO UPDATE SET uses = promotion_redemptions.uses + 1`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindByCode looks up a promotion and its code row, case-insensitively.
// Returns promotion.ErrCodeNotFound when no matching code exists.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (*promotion.Promotion, *promotion.Code, error) {
	row := r.pool.QueryRow(ctx, getPromotionByCodeSQL, code)

	var (
		p             promotion.Promotion
		c             promotion.Code
		discountType  string
		scopeKind     string
		startsAt      *time.Time
		endsAt        *time.Time
		discountValue decimal.Decimal
		getPct        decimal.Decimal
		minPurchase   decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.Name, &discountType, &discountValue,
		&p.BuyQuantity, &p.GetQuantity, &getPct,
		&scopeKind, &p.Scope.IDs, &minPurchase, &p.MinQuantity,
		&p.UsageLimit, &p.Uses, &p.PerCustomerLimit, &p.ExcludeDiscounted,
		&startsAt, &endsAt,
		&c.Code, &c.UsageLimit, &c.Uses, &c.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, promotion.ErrCodeNotFound
		}
		return nil, nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}

	p.DiscountType = promotion.DiscountType(discountType)
	p.DiscountValue = discountValue
	p.GetDiscountPercent = getPct
	p.Scope.Kind = promotion.ScopeKind(scopeKind)
	p.MinPurchase = minPurchase
	p.StartsAt = startsAt
	p.EndsAt = endsAt
	c.PromotionID = p.ID

	return &p, &c, nil
}

// CustomerRedemptions returns how many confirmed redemptions the customer
// has for the promotion.
func (r *PromotionRepository) CustomerRedemptions(ctx context.Context, promotionID, customerID string) (int, error) {
	var uses int
	if err := r.pool.QueryRow(ctx, customerRedemptionsSQL, promotionID, customerID).Scan(&uses); err != nil {
		return 0, fmt.Errorf("counting redemptions for %q/%q: %w", promotionID, customerID, err)
	}
	return uses, nil
}

// RecordRedemption atomically advances all three usage counters in one
// transaction. A guarded counter already at its limit aborts with
// promotion.ErrUsageLimitExceeded.
func (r *PromotionRepository) RecordRedemption(ctx context.Context, promotionID, code, customerID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning redemption tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, incrementPromotionUsesSQL, promotionID)
	if err != nil {
		return fmt.Errorf("incrementing promotion uses for %q: %w", promotionID, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrUsageLimitExceeded
	}

	tag, err = tx.Exec(ctx, incrementCodeUsesSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing code uses for %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrUsageLimitExceeded
	}

	if _, err := tx.Exec(ctx, upsertRedemptionSQL, promotionID, customerID); err != nil {
		return fmt.Errorf("recording redemption for %q/%q: %w", promotionID, customerID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing redemption tx: %w", err)
	}
	return nil
}
