package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/montebay/storefront/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (
			id, owner_id, membership_id, lines,
			subtotal, membership_discount, promotion_discount, shipping, tax, total,
			promotion_id, promotion_code, status, payment_status, payment_ref,
			usage_reconciled, shipping_service, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18)`

	getOrderSQL = `SELECT id, owner_id, membership_id, lines,
			subtotal, membership_discount, promotion_discount, shipping, tax, total,
			promotion_id, promotion_code, status, payment_status, payment_ref,
			usage_reconciled, shipping_service, created_at
		FROM orders WHERE id = $1`

	markPaidSQL = `UPDATE orders SET status = 'paid', payment_status = 'paid'
		WHERE id = $1 AND status = 'pending'`

	markCancelledSQL = `UPDATE orders SET status = 'cancelled', payment_status = $2
		WHERE id = $1 AND status <> 'cancelled'`

	// Compare-and-set on the reconcile flag: only one confirmation attempt
	// wins the deduction, retries see zero rows affected.
	beginReconcileSQL = `UPDATE orders SET usage_reconciled = TRUE
		WHERE id = $1 AND NOT usage_reconciled`

	clearReconcileSQL = `UPDATE orders SET usage_reconciled = FALSE WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Lines
// are serialized to JSONB; totals live in their own columns for reporting.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order snapshot.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshaling order lines: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.OwnerID, o.MembershipID, lines,
		o.Subtotal, o.MembershipDiscount, o.PromotionDiscount, o.Shipping, o.Tax, o.Total,
		o.PromotionID, o.PromotionCode, string(o.Status), string(o.PaymentStatus), o.PaymentRef,
		o.UsageReconciled, o.ShippingService, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns an order by ID or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	row := r.pool.QueryRow(ctx, getOrderSQL, id)

	var (
		o              order.Order
		lines          []byte
		status         string
		paymentStatus  string
		subtotal       decimal.Decimal
		memberDiscount decimal.Decimal
		promoDiscount  decimal.Decimal
		shippingAmount decimal.Decimal
		tax            decimal.Decimal
		total          decimal.Decimal
		createdAt      time.Time
	)
	err := row.Scan(
		&o.ID, &o.OwnerID, &o.MembershipID, &lines,
		&subtotal, &memberDiscount, &promoDiscount, &shippingAmount, &tax, &total,
		&o.PromotionID, &o.PromotionCode, &status, &paymentStatus, &o.PaymentRef,
		&o.UsageReconciled, &o.ShippingService, &createdAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return nil, fmt.Errorf("unmarshaling order lines for %q: %w", id, err)
	}
	o.Subtotal = subtotal
	o.MembershipDiscount = memberDiscount
	o.PromotionDiscount = promoDiscount
	o.Shipping = shippingAmount
	o.Tax = tax
	o.Total = total
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.CreatedAt = createdAt
	return &o, nil
}

// MarkPaid transitions a pending order to paid; already-paid is a no-op.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, markPaidSQL, id); err != nil {
		return fmt.Errorf("marking order %q paid: %w", id, err)
	}
	return nil
}

// MarkCancelled transitions an order to cancelled with its final payment
// status.
func (r *OrderRepository) MarkCancelled(ctx context.Context, id string, payment order.PaymentStatus) error {
	if _, err := r.pool.Exec(ctx, markCancelledSQL, id, string(payment)); err != nil {
		return fmt.Errorf("marking order %q cancelled: %w", id, err)
	}
	return nil
}

// BeginUsageReconcile atomically claims the deduction; false means another
// confirmation already ran it.
func (r *OrderRepository) BeginUsageReconcile(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, beginReconcileSQL, id)
	if err != nil {
		return false, fmt.Errorf("claiming usage reconcile for %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearUsageReconcile resets the flag after a restore.
func (r *OrderRepository) ClearUsageReconcile(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, clearReconcileSQL, id); err != nil {
		return fmt.Errorf("clearing usage reconcile for %q: %w", id, err)
	}
	return nil
}
