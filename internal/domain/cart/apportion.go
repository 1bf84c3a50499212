package cart

import "github.com/shopspring/decimal"

// apportion splits total across keys proportionally to their weights using
// largest-remainder rounding in cents, so the per-key amounts always sum to
// exactly total. Zero or negative weights receive nothing.
func apportion(total decimal.Decimal, keys []string, weights map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(keys))
	if !total.IsPositive() {
		return out
	}

	weightSum := decimal.Zero
	for _, k := range keys {
		if w, ok := weights[k]; ok && w.IsPositive() {
			weightSum = weightSum.Add(w)
		}
	}
	if !weightSum.IsPositive() {
		return out
	}

	totalCents := total.Mul(decimal.NewFromInt(100))
	type share struct {
		key       string
		cents     decimal.Decimal
		remainder decimal.Decimal
	}

	shares := make([]share, 0, len(keys))
	assigned := decimal.Zero
	for _, k := range keys {
		w, ok := weights[k]
		if !ok || !w.IsPositive() {
			continue
		}
		exact := totalCents.Mul(w).Div(weightSum)
		floor := exact.Floor()
		shares = append(shares, share{key: k, cents: floor, remainder: exact.Sub(floor)})
		assigned = assigned.Add(floor)
	}

	// Hand leftover cents to the largest remainders, first-listed wins ties.
	leftover := int(totalCents.Sub(assigned).IntPart())
	for range leftover {
		best := -1
		for i := range shares {
			if best < 0 || shares[i].remainder.GreaterThan(shares[best].remainder) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		shares[best].cents = shares[best].cents.Add(decimal.NewFromInt(1))
		shares[best].remainder = decimal.Zero
	}

	for _, s := range shares {
		out[s.key] = s.cents.Div(decimal.NewFromInt(100))
	}
	return out
}
