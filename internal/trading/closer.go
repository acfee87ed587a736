package trading

import (
	"math"

	"perp-trader/internal/errors"
)

// closeEpsilon is the threshold below which a resolved close quantity is
// treated as nothing to close.
const closeEpsilon = 1e-12

// ResolveCloseQuantity turns an optional absolute quantity or percentage
// into the quantity to close against the ledger's tracked position size.
//
// Percentages above 1 are read as already-percent (60 means 60%) and
// divided by 100; values at or below 1 are read as a fraction directly.
// The result is clamped to [0, ledgerQty]. Nil quantity and nil pct mean a
// full close.
func ResolveCloseQuantity(ledgerQty float64, quantity, pct *float64) (float64, error) {
	target := ledgerQty

	switch {
	case quantity != nil:
		target = math.Abs(*quantity)
	case pct != nil:
		p := *pct
		if p <= 0 {
			break // invalid percentage falls back to a full close
		}
		if p > 1 {
			p = p / 100
		}
		target = ledgerQty * math.Min(p, 1.0)
	}

	target = math.Min(ledgerQty, math.Max(0, target))
	if target <= closeEpsilon {
		return 0, errors.ErrNothingToClose
	}
	return target, nil
}
