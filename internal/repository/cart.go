package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/montebay/storefront/internal/domain/cart"
)

const (
	getCartSQL = `SELECT doc, version FROM carts WHERE owner_id = $1`

	// Insert-or-update guarded by the stored version. A concurrent writer
	// advances the version first, the conditional update matches nothing,
	// and the caller retries on ErrVersionConflict.
	saveCartSQL = `INSERT INTO carts (owner_id, doc, version, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (owner_id) DO UPDATE
		SET doc = EXCLUDED.doc, version = carts.version + 1, updated_at = now()
		WHERE carts.version = $3`

	deleteCartSQL = `DELETE FROM carts WHERE owner_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores carts as JSONB documents with optimistic versioning.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetByOwner returns the owner's cart or cart.ErrNotFound.
func (r *CartRepository) GetByOwner(ctx context.Context, ownerID string) (*cart.Cart, error) {
	var (
		doc     []byte
		version int64
	)
	err := r.pool.QueryRow(ctx, getCartSQL, ownerID).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart for %q: %w", ownerID, err)
	}

	var c cart.Cart
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling cart for %q: %w", ownerID, err)
	}
	c.Version = version
	return &c, nil
}

// Save upserts the cart under its optimistic version and advances it.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling cart for %q: %w", c.OwnerID, err)
	}

	tag, err := r.pool.Exec(ctx, saveCartSQL, c.OwnerID, doc, c.Version)
	if err != nil {
		return fmt.Errorf("saving cart for %q: %w", c.OwnerID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrVersionConflict
	}
	c.Version++
	return nil
}

// Delete removes the owner's cart; deleting an absent cart is a no-op.
func (r *CartRepository) Delete(ctx context.Context, ownerID string) error {
	if _, err := r.pool.Exec(ctx, deleteCartSQL, ownerID); err != nil {
		return fmt.Errorf("deleting cart for %q: %w", ownerID, err)
	}
	return nil
}
