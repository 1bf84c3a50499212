package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/montebay/storefront/internal/domain/membership"
	"github.com/montebay/storefront/internal/domain/product"
	"github.com/montebay/storefront/internal/domain/promotion"
)

// ErrInvalidQuantity is returned when a mutation carries a negative quantity.
var ErrInvalidQuantity = errors.New("quantity must not be negative")

// saveRetries bounds the optimistic-concurrency retry loop. Concurrent tabs
// mutating the same cart conflict on the document version; re-reading and
// re-applying converges quickly because mutations are idempotent.
const saveRetries = 3

// Service is the unified cart aggregator. Every mutation funnels into a
// single recompute that re-derives per-line pricing (list price, membership
// free units, promotion share) and the cart totals, so the cart invariants
// hold after any operation.
type Service struct {
	carts    Repository
	products product.Repository
	ledger   membership.Ledger
	members  membership.Resolver
	promos   promotion.Validator
	lg       *zap.Logger
}

// NewService constructs the aggregator with its collaborators.
func NewService(
	carts Repository,
	products product.Repository,
	ledger membership.Ledger,
	members membership.Resolver,
	promos promotion.Validator,
	lg *zap.Logger,
) *Service {
	return &Service{
		carts:    carts,
		products: products,
		ledger:   ledger,
		members:  members,
		promos:   promos,
		lg:       lg,
	}
}

// Get returns the owner's cart, recomputed against the current ledger state
// so stale free-unit projections never reach the caller. A missing cart is
// returned as a fresh empty one, not an error.
func (s *Service) Get(ctx context.Context, ownerID string) (*Cart, error) {
	c, err := s.carts.GetByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.newCart(ctx, ownerID)
		}
		return nil, errors.Wrap(err, "load cart")
	}
	if err := s.recompute(ctx, c, false); err != nil {
		return nil, err
	}
	return c, nil
}

// AddItem adds quantity units of a product, merging into an existing line.
func (s *Service) AddItem(ctx context.Context, ownerID, productID string, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, ownerID, func(c *Cart) error {
		if i := c.find(productID); i >= 0 {
			c.Items[i].Quantity += quantity
			return nil
		}
		c.Items = append(c.Items, Item{
			ProductID:     p.ID,
			CategoryID:    p.CategoryID,
			CollectionIDs: p.CollectionIDs,
			Name:          p.Name,
			Quantity:      quantity,
			ListPrice:     p.Price,
			MarkedDown:    p.MarkedDown(),
			WeightOz:      p.WeightOz,
		})
		return nil
	})
}

// UpdateQuantity sets a line's quantity. Zero removes the line. Setting the
// current value is a no-op that still returns a freshly recomputed cart.
func (s *Service) UpdateQuantity(ctx context.Context, ownerID, productID string, quantity int) (*Cart, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	return s.mutate(ctx, ownerID, func(c *Cart) error {
		i := c.find(productID)
		if i < 0 {
			return product.ErrNotFound
		}
		if quantity == 0 {
			c.removeAt(i)
			return nil
		}
		c.Items[i].Quantity = quantity
		return nil
	})
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, ownerID, productID string) (*Cart, error) {
	return s.mutate(ctx, ownerID, func(c *Cart) error {
		i := c.find(productID)
		if i < 0 {
			return product.ErrNotFound
		}
		c.removeAt(i)
		return nil
	})
}

// ApplyPromotion attaches a promotion code. A previously applied code is
// replaced: its discount is dropped before the new code is validated against
// the promotion-free base. Validation failures surface their reason error.
func (s *Service) ApplyPromotion(ctx context.Context, ownerID, code string) (*Cart, error) {
	return s.mutateStrict(ctx, ownerID, func(c *Cart) error {
		c.PromotionCode = code
		c.PromotionID = ""
		return nil
	})
}

// RemovePromotion detaches the applied promotion code, if any.
func (s *Service) RemovePromotion(ctx context.Context, ownerID string) (*Cart, error) {
	return s.mutate(ctx, ownerID, func(c *Cart) error {
		c.PromotionCode = ""
		c.PromotionID = ""
		return nil
	})
}

// Clear removes the owner's cart entirely.
func (s *Service) Clear(ctx context.Context, ownerID string) error {
	if err := s.carts.Delete(ctx, ownerID); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}

func (s *Service) newCart(ctx context.Context, ownerID string) (*Cart, error) {
	membershipID, err := s.members.MembershipFor(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve membership")
	}
	now := time.Now().UTC()
	return &Cart{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		MembershipID: membershipID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// mutate loads (or lazily creates) the cart, applies fn, recomputes, and
// saves under the optimistic version, retrying on conflict. An invalid
// promotion discovered during recompute is detached, not an error.
func (s *Service) mutate(ctx context.Context, ownerID string, fn func(*Cart) error) (*Cart, error) {
	return s.run(ctx, ownerID, fn, false)
}

// mutateStrict is mutate with promotion validation failures propagated,
// used by ApplyPromotion.
func (s *Service) mutateStrict(ctx context.Context, ownerID string, fn func(*Cart) error) (*Cart, error) {
	return s.run(ctx, ownerID, fn, true)
}

func (s *Service) run(ctx context.Context, ownerID string, fn func(*Cart) error, strict bool) (*Cart, error) {
	var lastErr error
	for range saveRetries {
		c, err := s.carts.GetByOwner(ctx, ownerID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return nil, errors.Wrap(err, "load cart")
			}
			c, err = s.newCart(ctx, ownerID)
			if err != nil {
				return nil, err
			}
		}

		if err := fn(c); err != nil {
			return nil, err
		}
		if err := s.recompute(ctx, c, strict); err != nil {
			return nil, err
		}

		c.UpdatedAt = time.Now().UTC()
		if err := s.carts.Save(ctx, c); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, errors.Wrap(err, "save cart")
		}
		return c, nil
	}
	return nil, errors.Wrap(lastErr, "save cart after retries")
}

// recompute is the single authoritative pricing pipeline:
//
//  1. Plan membership free units from an optimistic ledger snapshot. The
//     ledger is never mutated here; consumption is deferred to order
//     confirmation so an abandoned draft cannot lock shared allocation.
//  2. Price each line net of free units.
//  3. Validate the attached promotion against the post-membership base.
//  4. Distribute the promotion discount across eligible lines.
//  5. Re-derive cart totals.
func (s *Service) recompute(ctx context.Context, c *Cart, strict bool) error {
	snap := membership.Snapshot{}
	if c.MembershipID != "" {
		var err error
		snap, err = s.ledger.Snapshot(ctx, c.MembershipID)
		if err != nil {
			return errors.Wrap(err, "ledger snapshot")
		}
	}

	lines := make([]membership.LineRequest, len(c.Items))
	for i, it := range c.Items {
		lines[i] = membership.LineRequest{
			ProductID:  it.ProductID,
			CategoryID: it.CategoryID,
			Quantity:   it.Quantity,
		}
	}
	plan := membership.PlanFreeUnits(lines, snap)

	promoItems := make([]promotion.Item, len(c.Items))
	for i, it := range c.Items {
		free := plan[it.ProductID]
		c.Items[i].FreeUnits = free
		promoItems[i] = promotion.Item{
			ProductID:     it.ProductID,
			CategoryID:    it.CategoryID,
			CollectionIDs: it.CollectionIDs,
			Quantity:      it.Quantity,
			UnitPrice:     it.ListPrice,
			FreeUnits:     free,
			MarkedDown:    it.MarkedDown,
		}
	}

	promoDiscount := decimal.Zero
	var lineShares map[string]decimal.Decimal
	if c.PromotionCode != "" {
		res, err := s.promos.Validate(ctx, c.PromotionCode, promoItems, c.OwnerID)
		switch {
		case err == nil:
			c.PromotionCode = res.Code
			c.PromotionID = res.PromotionID
			promoDiscount = res.Amount

			keys := make([]string, len(c.Items))
			for i, it := range c.Items {
				keys[i] = it.ProductID
			}
			lineShares = apportion(res.Amount, keys, res.LineBases)
		case isIneligible(err):
			if strict {
				return err
			}
			// The cart changed underneath the code (items removed, window
			// closed). Keeping a stale discount would violate the totals
			// invariant, so the code is detached.
			s.lg.Info("detaching promotion no longer eligible",
				zap.String("owner_id", c.OwnerID),
				zap.String("code", c.PromotionCode),
				zap.String("reason", err.Error()),
			)
			c.PromotionCode = ""
			c.PromotionID = ""
		default:
			return errors.Wrap(err, "validate promotion")
		}
	}

	subtotal := decimal.Zero
	membershipDiscount := decimal.Zero
	for i := range c.Items {
		it := &c.Items[i]
		qty := decimal.NewFromInt(int64(it.Quantity))
		freeQty := decimal.NewFromInt(int64(it.FreeUnits))

		lineList := it.ListPrice.Mul(qty)
		lineFree := it.ListPrice.Mul(freeQty)
		it.PromotionDiscount = decimal.Zero
		if share, ok := lineShares[it.ProductID]; ok {
			it.PromotionDiscount = share
		}

		final := lineList.Sub(lineFree).Sub(it.PromotionDiscount)
		if final.IsNegative() {
			final = decimal.Zero
		}
		it.FinalPrice = final.Round(2)

		subtotal = subtotal.Add(lineList)
		membershipDiscount = membershipDiscount.Add(lineFree)
	}

	subtotal = subtotal.Round(2)
	membershipDiscount = membershipDiscount.Round(2)
	promoDiscount = promoDiscount.Round(2)

	c.Totals = Totals{
		Subtotal:           subtotal,
		MembershipDiscount: membershipDiscount,
		PromotionDiscount:  promoDiscount,
		Shipping:           decimal.Zero,
		Tax:                decimal.Zero,
		GrandTotal:         subtotal.Sub(membershipDiscount).Sub(promoDiscount).Round(2),
	}
	return nil
}

// isIneligible reports whether err is a promotion validation reason rather
// than an infrastructure failure.
func isIneligible(err error) bool {
	return errors.Is(err, promotion.ErrCodeNotFound) ||
		errors.Is(err, promotion.ErrOutsideWindow) ||
		errors.Is(err, promotion.ErrUsageLimitExceeded) ||
		errors.Is(err, promotion.ErrPerCustomerLimit) ||
		errors.Is(err, promotion.ErrNothingEligible) ||
		errors.Is(err, promotion.ErrMinimumNotMet)
}
