package types

import (
	"time"

	cdptypes "github.com/sharehodl/cdpcore/types"
)

// ScaleFactor is the Liquity-style rescale multiplier applied to
// product_snapshot when it would otherwise underflow fixed-point
// precision (spec.md §4.D: "If product_snapshot would underflow a scale
// boundary, increment current_scale and rebase").
var ScaleFactor = cdptypes.NewDec(1_000_000_000)

// productRebaseThreshold is the floor below which product_snapshot is
// considered to have crossed a scale boundary. Liquity's own
// StabilityPool uses 1e-9 against an 18-decimal fixed point, which is
// exactly ScaleFactor's reciprocal: the threshold where one more rebase
// brings the product back to order-of-magnitude 1.
var productRebaseThreshold = cdptypes.MustNewDecFromStr("0.000000001")

// Bid is a single stability-style bid resting in one LiquidationQueue
// premium slot, spec.md §3.
type Bid struct {
	ID                          uint64       `json:"id"`
	Owner                       string       `json:"owner"`
	Amount                      cdptypes.Dec `json:"amount"`
	ProductSnapshotAtEntry      cdptypes.Dec `json:"product_snapshot_at_entry"`
	SumSnapshotAtEntry          cdptypes.Dec `json:"sum_snapshot_at_entry"`
	EpochAtEntry                uint64       `json:"epoch_at_entry"`
	ScaleAtEntry                uint64       `json:"scale_at_entry"`
	PendingLiquidatedCollateral cdptypes.Dec `json:"pending_liquidated_collateral"`
}

// Slot is one integer-percent premium tier of a LiquidationQueue,
// spec.md §3/§4.D. The product/sum pair is the Liquity accumulator: any
// bid's current compounded value and accrued collateral can be
// recomputed purely from its entry snapshot and the slot's current
// values, without touching every other bid on every liquidation.
type Slot struct {
	Premium                  uint64       `json:"premium"`
	ActiveBids               []Bid        `json:"active_bids"`
	WaitingBids              []Bid        `json:"waiting_bids"`
	LiqPremium               cdptypes.Dec `json:"liq_premium"`
	ProductSnapshot          cdptypes.Dec `json:"product_snapshot"`
	SumSnapshot              cdptypes.Dec `json:"sum_snapshot"`
	CurrentEpoch             uint64       `json:"current_epoch"`
	CurrentScale             uint64       `json:"current_scale"`
	ResidueCollateral        cdptypes.Dec `json:"residue_collateral"`
	ResidueBid               cdptypes.Dec `json:"residue_bid"`
	TotalBidAmount           cdptypes.Dec `json:"total_bid_amount"`
	LastTotalActivationTime  time.Time    `json:"last_total_activation_time"`
}

// NewSlot builds an empty slot for the given integer premium percent.
func NewSlot(premium uint64) Slot {
	return Slot{
		Premium:         premium,
		LiqPremium:      cdptypes.NewDec(int64(premium)).QuoInt64(100),
		ProductSnapshot: cdptypes.OneDec(),
		SumSnapshot:     cdptypes.ZeroDec(),
		ResidueCollateral: cdptypes.ZeroDec(),
		ResidueBid:      cdptypes.ZeroDec(),
		TotalBidAmount:  cdptypes.ZeroDec(),
	}
}

// LiquidationQueue is a per-collateral premium-slot bid book, spec.md §3.
type LiquidationQueue struct {
	Handle             uint64             `json:"handle"`
	BasketID           uint64             `json:"basket_id"`
	BidAsset           cdptypes.AssetInfo `json:"bid_asset"`
	MaxPremium         uint64             `json:"max_premium"`
	CurrentBidID       uint64             `json:"current_bid_id"`
	BidThreshold       cdptypes.Dec       `json:"bid_threshold"`
	MinimumBid         cdptypes.Dec       `json:"minimum_bid"`
	WaitPeriod         time.Duration      `json:"wait_period"`
	EpochDustThreshold cdptypes.Dec       `json:"epoch_dust_threshold"`
	Slots              []Slot             `json:"slots"`
}

// Validate enforces spec.md §4.D's book-shape invariants.
func (q LiquidationQueue) Validate() error {
	if q.MaxPremium < 1 || q.MaxPremium > 50 {
		return ErrInvalidMaxPremium
	}
	if q.BidThreshold.LT(cdptypes.NewDec(1_000_000)) || q.BidThreshold.GT(cdptypes.NewDec(10_000_000)) {
		return ErrInvalidBidThreshold
	}
	if uint64(len(q.Slots)) != q.MaxPremium+1 {
		return ErrSlotNotFound
	}
	return nil
}

// NewLiquidationQueue builds a queue with contiguous slots 0..=maxPremium,
// per spec.md §4.D's "premium slots exist contiguously" invariant.
func NewLiquidationQueue(handle, basketID uint64, bidAsset cdptypes.AssetInfo, maxPremium uint64, bidThreshold, minimumBid, dustThreshold cdptypes.Dec, waitPeriod time.Duration) LiquidationQueue {
	slots := make([]Slot, maxPremium+1)
	for i := uint64(0); i <= maxPremium; i++ {
		slots[i] = NewSlot(i)
	}
	return LiquidationQueue{
		Handle:             handle,
		BasketID:           basketID,
		BidAsset:           bidAsset,
		MaxPremium:         maxPremium,
		BidThreshold:       bidThreshold,
		MinimumBid:         minimumBid,
		WaitPeriod:         waitPeriod,
		EpochDustThreshold: dustThreshold,
		Slots:              slots,
	}
}

// TouchSlot promotes waiting bids to active if wait_period has elapsed
// since the slot's last activation, stamping each promoted bid with the
// slot's current accumulator state as its new entry snapshot (spec.md
// §4.D "Automatic activation").
func TouchSlot(slot *Slot, now time.Time, waitPeriod time.Duration) {
	if len(slot.WaitingBids) == 0 {
		return
	}
	if now.Sub(slot.LastTotalActivationTime) < waitPeriod {
		return
	}
	for _, b := range slot.WaitingBids {
		b.ProductSnapshotAtEntry = slot.ProductSnapshot
		b.SumSnapshotAtEntry = slot.SumSnapshot
		b.EpochAtEntry = slot.CurrentEpoch
		b.ScaleAtEntry = slot.CurrentScale
		slot.ActiveBids = append(slot.ActiveBids, b)
		slot.TotalBidAmount = slot.TotalBidAmount.Add(b.Amount)
	}
	slot.WaitingBids = nil
	slot.LastTotalActivationTime = now
}

// CompoundedAmount returns a bid's current principal value, after
// whatever premium-slot liquidations consumed part of it since entry.
func CompoundedAmount(slot Slot, bid Bid) cdptypes.Dec {
	if bid.EpochAtEntry != slot.CurrentEpoch {
		return cdptypes.ZeroDec()
	}
	scaleDiff := slot.CurrentScale - bid.ScaleAtEntry
	switch scaleDiff {
	case 0:
		return bid.Amount.Mul(slot.ProductSnapshot).Quo(bid.ProductSnapshotAtEntry)
	case 1:
		return bid.Amount.Mul(slot.ProductSnapshot).Quo(bid.ProductSnapshotAtEntry).Quo(ScaleFactor)
	default:
		return cdptypes.ZeroDec()
	}
}

// CollateralGain returns a bid's accrued, unclaimed collateral from
// liquidations consumed since entry, per the Liquity product/sum
// reconstruction formula (spec.md §4.D: "claimable collateral is
// computed from stored snapshots at entry vs current").
func CollateralGain(slot Slot, bid Bid) cdptypes.Dec {
	if bid.EpochAtEntry != slot.CurrentEpoch {
		return cdptypes.ZeroDec()
	}
	sumDiff := slot.SumSnapshot.Sub(bid.SumSnapshotAtEntry)
	if sumDiff.IsZero() {
		return cdptypes.ZeroDec()
	}
	scaleDiff := slot.CurrentScale - bid.ScaleAtEntry
	switch scaleDiff {
	case 0:
		return bid.Amount.Mul(sumDiff).Quo(bid.ProductSnapshotAtEntry)
	case 1:
		return bid.Amount.Mul(sumDiff).Quo(bid.ProductSnapshotAtEntry).Quo(ScaleFactor)
	default:
		return cdptypes.ZeroDec()
	}
}

// ApplySlotLiquidation debits creditConsumed from a slot's bid pool,
// credits collateralReleased across every active bid via the product/sum
// accumulator update, rebases on scale underflow, and rolls the epoch if
// the slot has dropped to dust — the full per-liquidation slot mutation
// described in spec.md §4.D, composed from the accumulator update and
// the epoch-dust rule so callers never apply one without the other.
func ApplySlotLiquidation(slot *Slot, creditConsumed, collateralReleased, dustThreshold cdptypes.Dec) {
	applyLiquidationToSlot(slot, creditConsumed, collateralReleased)
	maybeRolloverEpoch(slot, dustThreshold)
}

// applyLiquidationToSlot debits creditConsumed from the slot's bid pool
// and credits collateralReleased across every active bid via the
// product/sum accumulator update (spec.md §4.D).
func applyLiquidationToSlot(slot *Slot, creditConsumed, collateralReleased cdptypes.Dec) {
	if slot.TotalBidAmount.IsZero() || creditConsumed.IsZero() {
		return
	}

	collateralPerUnit := collateralReleased.Quo(slot.TotalBidAmount)
	slot.SumSnapshot = slot.SumSnapshot.Add(collateralPerUnit)

	fractionRemaining := cdptypes.OneDec().Sub(creditConsumed.Quo(slot.TotalBidAmount))
	if fractionRemaining.IsNegative() {
		fractionRemaining = cdptypes.ZeroDec()
	}
	slot.ProductSnapshot = slot.ProductSnapshot.Mul(fractionRemaining)
	slot.TotalBidAmount = slot.TotalBidAmount.Sub(creditConsumed)
	if slot.TotalBidAmount.IsNegative() {
		slot.TotalBidAmount = cdptypes.ZeroDec()
	}

	if slot.ProductSnapshot.LT(productRebaseThreshold) && !slot.ProductSnapshot.IsZero() {
		slot.CurrentScale++
		slot.ProductSnapshot = slot.ProductSnapshot.Mul(ScaleFactor)
	}
}

// maybeRolloverEpoch implements spec.md §4.D's epoch dust rule: once a
// slot's remaining bids fall below the configured dust threshold, the
// remainder is swept into residue and every bid still resting in the
// slot is implicitly zeroed by advancing the epoch, so stale snapshots
// from the old epoch never compute a nonzero CompoundedAmount again.
func maybeRolloverEpoch(slot *Slot, dustThreshold cdptypes.Dec) {
	if slot.TotalBidAmount.IsZero() || slot.TotalBidAmount.GTE(dustThreshold) {
		return
	}
	slot.ResidueBid = slot.ResidueBid.Add(slot.TotalBidAmount)
	slot.CurrentEpoch++
	slot.CurrentScale = 0
	slot.ProductSnapshot = cdptypes.OneDec()
	slot.SumSnapshot = cdptypes.ZeroDec()
	slot.TotalBidAmount = cdptypes.ZeroDec()
	slot.ActiveBids = nil
}
