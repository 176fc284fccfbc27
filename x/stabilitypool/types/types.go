package types

import (
	"time"

	cdptypes "github.com/sharehodl/cdpcore/types"
)

// Deposit is a single stability-pool depositor's FIFO-ordered stake,
// spec.md §3's "SP Deposit".
type Deposit struct {
	ID              uint64       `json:"id"`
	Owner           string       `json:"owner"`
	Amount          cdptypes.Dec `json:"amount"`
	DepositTime     time.Time    `json:"deposit_time"`
	LastAccruedTime time.Time    `json:"last_accrued_time"`
	UnstakeTime     *time.Time   `json:"unstake_time,omitempty"`
	IncentivesPaid  cdptypes.Dec `json:"incentives_paid"`
}

// IsUnstaking reports whether withdrawal has been requested for this
// deposit.
func (d Deposit) IsUnstaking() bool { return d.UnstakeTime != nil }

// FeeEvent is an append-only interest-revenue credit waiting to be
// compounded into depositor balances, spec.md §4.E. Named Amount/Time
// rather than §3's `fee_per_unit_stake` framing because §4.E's worked
// description of compound_fee operates on a raw credit amount
// distributed pro-rata at compounding time, not a precomputed per-unit
// rate; the two are equivalent once a denominator is chosen, and the
// amount form is what the compounding routine below actually consumes.
type FeeEvent struct {
	Time   time.Time    `json:"time"`
	Amount cdptypes.Dec `json:"amount"`
}

// ConsumedEntry records how much of one deposit a prior Liquidate call
// consumed, so the following Distribute call can replay the same
// consumption list and credit collateral pro-rata without re-deciding
// who was touched (spec.md §4.E: "Distribution... replays the
// consumption list").
type ConsumedEntry struct {
	DepositID      uint64       `json:"deposit_id"`
	Owner          string       `json:"owner"`
	AmountConsumed cdptypes.Dec `json:"amount_consumed"`
}

// ClaimableBalance is a depositor's collateral credited by Distribute,
// withdrawn through ClaimAll, and kept apart from live Deposits so it
// never enters FIFO consumption ordering.
type ClaimableBalance struct {
	Owner  string            `json:"owner"`
	Assets cdptypes.AssetList `json:"assets"`
}

// Pool is the single FIFO stability pool for one basket's credit asset,
// spec.md §4.E.
type Pool struct {
	CreditAsset          cdptypes.AssetInfo `json:"credit_asset"`
	BasketID             uint64             `json:"basket_id"`
	Deposits             []Deposit          `json:"deposits"`
	NextDepositID        uint64             `json:"next_deposit_id"`
	OutstandingFees      []FeeEvent         `json:"outstanding_fees"`
	PendingConsumption   []ConsumedEntry    `json:"pending_consumption,omitempty"`
	MinimumDepositAmount cdptypes.Dec       `json:"minimum_deposit_amount"`
	IncentiveRate        cdptypes.Dec       `json:"incentive_rate"`
	MaxIncentives        cdptypes.Dec       `json:"max_incentives"`
	IncentivesPaid       cdptypes.Dec       `json:"incentives_paid"`
	UnstakingPeriod      time.Duration      `json:"unstaking_period"`
}

// TotalStaked sums every deposit's amount, the Σ used for pro-rata
// distribution weighting.
func (p Pool) TotalStaked() cdptypes.Dec {
	total := cdptypes.ZeroDec()
	for _, d := range p.Deposits {
		total = total.Add(d.Amount)
	}
	return total
}

// FindDeposit locates a deposit by id.
func (p Pool) FindDeposit(id uint64) (Deposit, int, bool) {
	for i, d := range p.Deposits {
		if d.ID == id {
			return d, i, true
		}
	}
	return Deposit{}, -1, false
}

// IncentiveRemainingCap returns how much incentive the pool may still
// pay out before hitting its global max_incentives counter (spec.md
// §4.E: "Cap-hit reduces the current accrual to remaining cap; further
// accrual yields zero").
func (p Pool) IncentiveRemainingCap() cdptypes.Dec {
	remaining := p.MaxIncentives.Sub(p.IncentivesPaid)
	if remaining.IsNegative() {
		return cdptypes.ZeroDec()
	}
	return remaining
}
