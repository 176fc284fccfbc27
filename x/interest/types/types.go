package types

import (
	"time"

	cdptypes "github.com/sharehodl/cdpcore/types"
)

// PegState tracks a single basket's Credit Peg Controller clock,
// separate from the basket-level credit_price it drives, so the interest
// engine can decide whether a repeg tick is due without round-tripping
// through x/basket on every read (spec.md §4.C's "fixed cadence" clock is
// independent of any position's own last_accrued_time).
type PegState struct {
	BasketID     uint64    `json:"basket_id"`
	LastTickTime time.Time `json:"last_tick_time"`
}

// DueForTick reports whether at least one full credit_twap_timeframe has
// elapsed since the last repeg tick.
func (s PegState) DueForTick(now time.Time, timeframe time.Duration) bool {
	return !now.Before(s.LastTickTime.Add(timeframe))
}

// RateCurve is a piecewise-linear borrow-rate curve shared across
// collaterals that reference the same RateIndex, grounded on the
// teacher's per-pool `CalculateBorrowRate` (x/lending/types/lending.go)
// generalized from a single kink to the spec's explicit slope-multiplier
// parameterization.
type RateCurve struct {
	RateIndex uint64 `json:"rate_index"`
}

// pegF is the piecewise-linear kink function of the borrow-rate formula:
// slope 1 below the kink, slope slopeMultiplier above it.
func pegF(utilization, kink, slopeMultiplier cdptypes.Dec) cdptypes.Dec {
	if utilization.LTE(kink) {
		return utilization
	}
	excess := utilization.Sub(kink)
	return kink.Add(excess.Mul(slopeMultiplier))
}

// BorrowRate implements spec.md §4.C(1) literally:
//
//	rate_i = base_interest_rate × f(utilization_i) × rate_slope_multiplier
//
// taken at face value: f already bends at the kink by slopeMultiplier,
// and the formula applies slopeMultiplier a second time on the outside.
// Kept literal rather than "corrected" (see DESIGN.md's Open Question
// entry on this formula) since nothing in the distilled spec suggests
// the duplication is a typo rather than an intentional amplification of
// the above-kink penalty.
func BorrowRate(baseRate, utilization, kink, slopeMultiplier cdptypes.Dec) cdptypes.Dec {
	return baseRate.Mul(pegF(utilization, kink, slopeMultiplier)).Mul(slopeMultiplier)
}
