package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/montebay/storefront/internal/domain/membership"
)

const (
	ledgerSnapshotSQL = `SELECT category_id, allocated_quantity - used_quantity
		FROM allocation_ledger WHERE membership_id = $1`

	ledgerAvailableSQL = `SELECT allocated_quantity - used_quantity
		FROM allocation_ledger WHERE membership_id = $1 AND category_id = $2`

	// The guard in the WHERE clause makes consume atomic: the update applies
	// only when the full quantity fits, so a concurrent consumer cannot push
	// used_quantity past the allocation.
	ledgerConsumeSQL = `UPDATE allocation_ledger
		SET used_quantity = used_quantity + $3, updated_at = now()
		WHERE membership_id = $1 AND category_id = $2
		  AND used_quantity + $3 <= allocated_quantity`

	// Restore clamps at zero so partial or repeated cancellations never
	// drive the counter negative.
	ledgerRestoreSQL = `UPDATE allocation_ledger
		SET used_quantity = GREATEST(used_quantity - $3, 0), updated_at = now()
		WHERE membership_id = $1 AND category_id = $2`

	resolveMembershipSQL = `SELECT id FROM memberships
		WHERE customer_id = $1 AND active`
)

var (
	_ membership.Ledger   = (*LedgerRepository)(nil)
	_ membership.Resolver = (*LedgerRepository)(nil)
)

// LedgerRepository implements the allocation ledger and membership
// resolution backed by PostgreSQL.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository returns a LedgerRepository that uses the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Snapshot returns available quantities per category for a membership.
func (r *LedgerRepository) Snapshot(ctx context.Context, membershipID string) (membership.Snapshot, error) {
	rows, err := r.pool.Query(ctx, ledgerSnapshotSQL, membershipID)
	if err != nil {
		return nil, fmt.Errorf("snapshotting ledger for %q: %w", membershipID, err)
	}
	defer rows.Close()

	snap := make(membership.Snapshot)
	for rows.Next() {
		var (
			category  string
			available int
		)
		if err := rows.Scan(&category, &available); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		snap[category] = available
	}
	return snap, rows.Err()
}

// GetAvailable returns the available quantity for one category, zero when no
// ledger entry exists.
func (r *LedgerRepository) GetAvailable(ctx context.Context, membershipID, categoryID string) (int, error) {
	var available int
	err := r.pool.QueryRow(ctx, ledgerAvailableSQL, membershipID, categoryID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("getting available for %q/%q: %w", membershipID, categoryID, err)
	}
	return available, nil
}

// Consume atomically draws n units; zero rows affected means the allocation
// cannot cover the request.
func (r *LedgerRepository) Consume(ctx context.Context, membershipID, categoryID string, n int) error {
	tag, err := r.pool.Exec(ctx, ledgerConsumeSQL, membershipID, categoryID, n)
	if err != nil {
		return fmt.Errorf("consuming %d from %q/%q: %w", n, membershipID, categoryID, err)
	}
	if tag.RowsAffected() == 0 {
		return membership.ErrInsufficientAllocation
	}
	return nil
}

// Restore returns n units, clamped at zero used.
func (r *LedgerRepository) Restore(ctx context.Context, membershipID, categoryID string, n int) error {
	if _, err := r.pool.Exec(ctx, ledgerRestoreSQL, membershipID, categoryID, n); err != nil {
		return fmt.Errorf("restoring %d to %q/%q: %w", n, membershipID, categoryID, err)
	}
	return nil
}

// MembershipFor returns the customer's active membership ID, empty when the
// customer holds none.
func (r *LedgerRepository) MembershipFor(ctx context.Context, customerID string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, resolveMembershipSQL, customerID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("resolving membership for %q: %w", customerID, err)
	}
	return id, nil
}
