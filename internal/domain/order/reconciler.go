package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/montebay/storefront/internal/domain/membership"
	"github.com/montebay/storefront/internal/domain/promotion"
)

// Reconciler durably commits or reverses membership allocation consumption
// for a frozen order. Cart mutations never touch the ledger; this is the
// sole mutation point, invoked when payment is confirmed and mirrored on
// cancellation.
type Reconciler struct {
	orders Repository
	ledger membership.Ledger
	promos promotion.Repository
	lg     *zap.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(orders Repository, ledger membership.Ledger, promos promotion.Repository, lg *zap.Logger) *Reconciler {
	return &Reconciler{orders: orders, ledger: ledger, promos: promos, lg: lg}
}

// Commit deducts the order's free units from the allocation ledger and
// records the promotion redemption. It is idempotent: the deduction runs at
// most once per order, guarded by the usage-reconciled flag.
//
// A consume that fails with ErrInsufficientAllocation (two orders raced for
// the same allocation at cart time) is logged as an operational exception
// and does not fail the commit: payment is already captured, so order
// fulfillment is never blocked on ledger state.
func (r *Reconciler) Commit(ctx context.Context, o *Order) error {
	started, err := r.orders.BeginUsageReconcile(ctx, o.ID)
	if err != nil {
		return errors.Wrap(err, "begin usage reconcile")
	}
	if !started {
		return nil
	}

	if o.MembershipID != "" {
		for category, qty := range freeUnitsByCategory(o.Lines) {
			err := r.ledger.Consume(ctx, o.MembershipID, category, qty)
			switch {
			case err == nil:
			case errors.Is(err, membership.ErrInsufficientAllocation):
				r.lg.Error("membership allocation shortfall at order confirmation",
					zap.String("order_id", o.ID),
					zap.String("membership_id", o.MembershipID),
					zap.String("category_id", category),
					zap.Int("quantity", qty),
				)
			default:
				// Storage failure: release the flag so a retry re-runs the
				// deduction instead of silently skipping it.
				if clearErr := r.orders.ClearUsageReconcile(ctx, o.ID); clearErr != nil {
					r.lg.Error("failed to release usage-reconcile flag",
						zap.String("order_id", o.ID), zap.Error(clearErr))
				}
				return errors.Wrapf(err, "consume allocation for category %s", category)
			}
		}
	}

	if o.PromotionID != "" {
		if err := r.promos.RecordRedemption(ctx, o.PromotionID, o.PromotionCode, o.OwnerID); err != nil {
			// The order already carries the discount; a counter race here is
			// an audit concern, not grounds to fail a paid order.
			r.lg.Error("failed to record promotion redemption",
				zap.String("order_id", o.ID),
				zap.String("promotion_id", o.PromotionID),
				zap.Error(err),
			)
		}
	}

	o.UsageReconciled = true
	return nil
}

// Reverse restores the order's free units to the ledger. Restoration is
// clamped at the storage layer, so reversing a partially failed commit or a
// repeated cancellation is well-defined. Promotion redemption counters stay
// incremented: a code redeemed on a cancelled order remains spent.
func (r *Reconciler) Reverse(ctx context.Context, o *Order) error {
	if !o.UsageReconciled {
		return nil
	}

	if o.MembershipID != "" {
		for category, qty := range freeUnitsByCategory(o.Lines) {
			if err := r.ledger.Restore(ctx, o.MembershipID, category, qty); err != nil {
				return errors.Wrapf(err, "restore allocation for category %s", category)
			}
		}
	}

	if err := r.orders.ClearUsageReconcile(ctx, o.ID); err != nil {
		return errors.Wrap(err, "clear usage reconcile")
	}
	o.UsageReconciled = false
	return nil
}

// freeUnitsByCategory accumulates membership-sourced quantities per category
// from the frozen order lines.
func freeUnitsByCategory(lines []Line) map[string]int {
	byCategory := make(map[string]int)
	for _, l := range lines {
		if l.FreeUnits > 0 {
			byCategory[l.CategoryID] += l.FreeUnits
		}
	}
	return byCategory
}
