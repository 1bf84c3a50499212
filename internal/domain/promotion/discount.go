package promotion

import (
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Item is a cart line viewed by the discount calculator. FreeUnits are units
// already drawn from membership allocation; they never contribute to the
// eligible base (a free unit cannot be discounted twice).
type Item struct {
	ProductID string
	// CategoryID and CollectionIDs place the product inside the catalog for
	// scope matching.
	CategoryID    string
	CollectionIDs []string
	Quantity      int
	UnitPrice     decimal.Decimal
	FreeUnits     int
	MarkedDown    bool
}

// PaidQuantity returns the units actually charged on this line.
func (it Item) PaidQuantity() int {
	return it.Quantity - it.FreeUnits
}

// paidTotal returns the line's post-membership monetary value.
func (it Item) paidTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.PaidQuantity())))
}

// eligibleItems filters items to those the promotion's discount is computed
// against: in scope, with at least one paid unit, and not marked down when
// the rule excludes discounted items.
func eligibleItems(p *Promotion, items []Item) []Item {
	var out []Item
	for _, it := range items {
		if it.PaidQuantity() <= 0 {
			continue
		}
		if p.ExcludeDiscounted && it.MarkedDown {
			continue
		}
		if !p.Scope.Includes(it.ProductID, it.CategoryID, it.CollectionIDs) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func eligibleBase(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.paidTotal())
	}
	return sum
}

func eligibleQuantity(items []Item) int {
	total := 0
	for _, it := range items {
		total += it.PaidQuantity()
	}
	return total
}

// computeDiscount calculates the discount for the promotion over the already
// filtered eligible items. The switch over DiscountType is exhaustive;
// adding a variant without a case here is a runtime error, not a silent zero.
func computeDiscount(p *Promotion, eligible []Item) (decimal.Decimal, error) {
	base := eligibleBase(eligible)

	switch p.DiscountType {
	case DiscountPercentage:
		return base.Mul(p.DiscountValue).Div(hundred).Round(2), nil
	case DiscountFixedAmount:
		// Never discount more than the eligible base.
		return decimal.Min(p.DiscountValue, base).Round(2), nil
	case DiscountBuyXGetY:
		return buyXGetY(p, eligible), nil
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", p.DiscountType)
	}
}

// buyXGetY partitions eligible paid units into groups of BuyQuantity +
// GetQuantity. Each complete group discounts GetQuantity units at
// GetDiscountPercent of their unit price; a partial trailing group earns
// nothing. The cheapest units are treated as the "get" units.
func buyXGetY(p *Promotion, eligible []Item) decimal.Decimal {
	groupSize := p.BuyQuantity + p.GetQuantity
	if groupSize <= 0 || p.GetQuantity <= 0 {
		return decimal.Zero
	}

	var units []decimal.Decimal
	for _, it := range eligible {
		for range it.PaidQuantity() {
			units = append(units, it.UnitPrice)
		}
	}

	groups := len(units) / groupSize
	if groups == 0 {
		return decimal.Zero
	}

	sort.Slice(units, func(i, j int) bool { return units[i].LessThan(units[j]) })

	discount := decimal.Zero
	for _, unit := range units[:groups*p.GetQuantity] {
		discount = discount.Add(unit.Mul(p.GetDiscountPercent).Div(hundred))
	}
	return discount.Round(2)
}
