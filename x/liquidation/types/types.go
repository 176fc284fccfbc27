package types

import (
	"time"

	cdptypes "github.com/sharehodl/cdpcore/types"
)

// Status is a RepayPropagation's place in the liquidation state machine
// (spec.md §4.F): Planned → Dispatched → {PartiallyResolved, Resolved} →
// {BadDebtPending, Done}.
type Status string

const (
	StatusPlanned            Status = "planned"
	StatusDispatched         Status = "dispatched"
	StatusPartiallyResolved  Status = "partially_resolved"
	StatusResolved           Status = "resolved"
	StatusBadDebtPending     Status = "bad_debt_pending"
	StatusDone               Status = "done"
)

// PerAssetRepayment tracks one collateral's planned and actually-repaid
// share of a liquidation, spec.md §4.F step 5.
type PerAssetRepayment struct {
	Asset    cdptypes.AssetInfo `json:"asset"`
	Planned  cdptypes.Dec       `json:"planned"`
	Repaid   cdptypes.Dec       `json:"repaid"`
	Released cdptypes.Dec       `json:"released"`
}

// SellWallDistribution is one planned external sale of a specific
// collateral asset, recorded before dispatch so its reply can be matched
// unambiguously (spec.md §4.F step 4/6). Proceeds always repay the
// position's own residual debt: by the time a shortfall reaches the
// sell-wall, any stability-pool depositors entitled to a share have
// already been paid in-kind out of the position's remaining collateral.
type SellWallDistribution struct {
	Asset    cdptypes.AssetInfo `json:"asset"`
	Amount   cdptypes.Dec       `json:"amount"`
	Resolved bool               `json:"resolved"`
	Proceeds cdptypes.Dec       `json:"proceeds"`
}

// DispatchKind identifies which sub-operation a DispatchFrame represents.
type DispatchKind string

const (
	DispatchLQBid      DispatchKind = "lq_bid"
	DispatchSPLiquidate DispatchKind = "sp_liquidate"
	DispatchSellWall   DispatchKind = "sell_wall"
)

// DispatchFrame is one entry on the propagation's LIFO dispatch stack
// (spec.md §4.F step 6: "sell-wall success... using a LIFO stack of
// distributions; messages resolve depth-first"). Pushed when planned;
// when its reply is handled it is marked Resolved and stays on the stack.
type DispatchFrame struct {
	Kind     DispatchKind       `json:"kind"`
	Asset    cdptypes.AssetInfo `json:"asset"`
	Amount   cdptypes.Dec       `json:"amount"`
	Index    int                `json:"index"` // indexes into SellWallDistributions for sell-wall frames
	Resolved bool               `json:"resolved"`
	// FrameID is a deterministic blake3 digest of
	// basket_id‖position_id‖dispatch_seq, assigned when the frame is
	// pushed. Picked over a random id specifically because frame identity
	// must be a pure function of state, not wall-clock or RNG: two nodes
	// replaying the same propagation must derive the same FrameID.
	FrameID string `json:"frame_id"`
}

// RepayPropagation is the persisted plan-and-ledger record for a single
// position liquidation, spec.md §4.F step 5.
type RepayPropagation struct {
	ID                    uint64                  `json:"id"`
	BasketID              uint64                  `json:"basket_id"`
	PositionID            uint64                  `json:"position_id"`
	Owner                 string                  `json:"owner"`
	Status                Status                  `json:"status"`
	CreditAmount          cdptypes.Dec            `json:"credit_amount"`
	CallerFeeAmount       cdptypes.Dec            `json:"caller_fee_amount"`
	ProtocolFeeAmount     cdptypes.Dec            `json:"protocol_fee_amount"`
	PerAssetRepayment     []PerAssetRepayment     `json:"per_asset_repayment"`
	LiqQueueLeftover      cdptypes.Dec            `json:"liq_queue_leftovers"`
	StabilityPoolAmount   cdptypes.Dec            `json:"stability_pool_amount"`
	UserRepayAmount       cdptypes.Dec            `json:"user_repay_amount"`
	// NonLQCredit is the planned SP + sell-wall credit total fixed at
	// dispatch time, the denominator for pro-rata collateral draws against
	// the position's post-LQ remaining collateral as SP/sell-wall replies
	// resolve (spec.md §4.F step 4/6).
	NonLQCredit           cdptypes.Dec            `json:"non_lq_credit"`
	SellWallDistributions []SellWallDistribution  `json:"sell_wall_distributions,omitempty"`
	DispatchStack         []DispatchFrame         `json:"dispatch_stack,omitempty"`
	// AuctionID is set when the bad-debt check (spec.md §4.F step 6) routes
	// a residual to the external debt-auction.
	AuctionID *uint64   `json:"auction_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Push appends a frame to the top of the LIFO dispatch stack.
func (r *RepayPropagation) Push(frame DispatchFrame) {
	r.DispatchStack = append(r.DispatchStack, frame)
}

// InsertAfter splices newly spawned frames into the stack immediately
// after index i, so a failure's compensating sub-op (e.g. a sell-wall
// fallback) resolves next rather than after whatever was already queued
// behind it, the "depth-first" order spec.md §4.F step 6 requires.
func (r *RepayPropagation) InsertAfter(i int, spawned []DispatchFrame) {
	if len(spawned) == 0 {
		return
	}
	tail := append([]DispatchFrame{}, r.DispatchStack[i+1:]...)
	r.DispatchStack = append(r.DispatchStack[:i+1], append(spawned, tail...)...)
}

// AllResolved reports whether every pushed frame has a matched reply.
func (r RepayPropagation) AllResolved() bool {
	for _, f := range r.DispatchStack {
		if !f.Resolved {
			return false
		}
	}
	return true
}

// TotalRepaid sums everything credited back against the position's
// original credit_amount: LQ + SP + resolved sell-wall proceeds
// (expressed at credit-asset face value via the per-asset repayment
// ledger), spec.md §4.F invariant 7.
func (r RepayPropagation) TotalRepaid() cdptypes.Dec {
	total := cdptypes.ZeroDec()
	for _, a := range r.PerAssetRepayment {
		total = total.Add(a.Repaid)
	}
	return total
}
