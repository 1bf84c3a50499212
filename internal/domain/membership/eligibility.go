package membership

// LineRequest is a cart line viewed by the free-unit planner.
type LineRequest struct {
	ProductID  string
	CategoryID string
	Quantity   int
}

// FreeEligible reports whether a unit in the given category can be drawn free
// from the membership allocation snapshot. The check is advisory at cart
// time; the authoritative check happens when the ledger is consumed at order
// confirmation.
func FreeEligible(categoryID string, snap Snapshot) bool {
	return snap[categoryID] > 0
}

// PlanFreeUnits assigns free units to cart lines from an allocation snapshot
// without mutating the ledger. Each line receives
// min(quantity, remaining available for its category); lines sharing a
// category draw from the same pool in line order.
func PlanFreeUnits(lines []LineRequest, snap Snapshot) map[string]int {
	remaining := make(Snapshot, len(snap))
	for cat, avail := range snap {
		remaining[cat] = avail
	}

	plan := make(map[string]int, len(lines))
	for _, line := range lines {
		free := min(line.Quantity, remaining[line.CategoryID])
		if free <= 0 {
			continue
		}
		plan[line.ProductID] = free
		remaining[line.CategoryID] -= free
	}
	return plan
}
