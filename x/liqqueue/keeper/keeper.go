package keeper

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"cosmossdk.io/log"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"

	cdptypes "github.com/sharehodl/cdpcore/types"
	"github.com/sharehodl/cdpcore/x/liqqueue/types"
)

// Keeper implements the liquidation-queue engine (spec.md §4.D): a
// premium-slot FIFO bid book with Liquity-style product/sum snapshot
// accumulators. Grounded structurally on the teacher's
// x/dex/keeper/matching_engine.go order-book keeper methods, adapted
// from a price-time-priority book to fixed-premium slots.
type Keeper struct {
	cdc      codec.BinaryCodec
	storeKey storetypes.StoreKey
	memKey   storetypes.StoreKey
}

// NewKeeper creates a new liqqueue Keeper instance.
func NewKeeper(cdc codec.BinaryCodec, storeKey, memKey storetypes.StoreKey) *Keeper {
	return &Keeper{cdc: cdc, storeKey: storeKey, memKey: memKey}
}

func (k Keeper) Logger(ctx sdk.Context) log.Logger {
	return ctx.Logger().With("module", fmt.Sprintf("x/%s", types.ModuleName))
}

func (k Keeper) GetNextHandle(ctx sdk.Context) uint64 {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.QueueCounterKey)
	var counter uint64 = 1
	if bz != nil {
		counter = sdk.BigEndianToUint64(bz)
	}
	store.Set(types.QueueCounterKey, sdk.Uint64ToBigEndian(counter+1))
	return counter
}

func (k Keeper) GetQueue(ctx sdk.Context, handle uint64) (types.LiquidationQueue, bool) {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.GetQueueKey(handle))
	if bz == nil {
		return types.LiquidationQueue{}, false
	}
	var q types.LiquidationQueue
	if err := json.Unmarshal(bz, &q); err != nil {
		return types.LiquidationQueue{}, false
	}
	return q, true
}

func (k Keeper) SetQueue(ctx sdk.Context, queue types.LiquidationQueue) error {
	store := ctx.KVStore(k.storeKey)
	bz, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("failed to marshal liquidation queue: %w", err)
	}
	store.Set(types.GetQueueKey(queue.Handle), bz)
	return nil
}

// CreateQueue allocates a handle and persists a freshly built book.
func (k Keeper) CreateQueue(ctx sdk.Context, basketID uint64, bidAsset cdptypes.AssetInfo, maxPremium uint64, bidThreshold, minimumBid, dustThreshold cdptypes.Dec, waitPeriod time.Duration) (types.LiquidationQueue, error) {
	handle := k.GetNextHandle(ctx)
	q := types.NewLiquidationQueue(handle, basketID, bidAsset, maxPremium, bidThreshold, minimumBid, dustThreshold, waitPeriod)
	if err := q.Validate(); err != nil {
		return types.LiquidationQueue{}, err
	}
	if err := k.SetQueue(ctx, q); err != nil {
		return types.LiquidationQueue{}, err
	}
	return q, nil
}

// SubmitBid places amount of bid_asset into the given premium slot,
// implementing spec.md §4.D's active/waiting/split placement rule.
func (k Keeper) SubmitBid(ctx sdk.Context, handle uint64, premium uint64, owner string, amount cdptypes.Dec) (types.Bid, error) {
	queue, found := k.GetQueue(ctx, handle)
	if !found {
		return types.Bid{}, types.ErrQueueNotFound
	}
	if premium > queue.MaxPremium {
		return types.Bid{}, types.ErrInvalidPremium
	}
	if amount.LT(queue.MinimumBid) {
		return types.Bid{}, types.ErrBidBelowMinimum
	}

	slot := &queue.Slots[premium]
	now := ctx.BlockTime()
	types.TouchSlot(slot, now, queue.WaitPeriod)

	queue.CurrentBidID++
	bid := types.Bid{
		ID:                          queue.CurrentBidID,
		Owner:                       owner,
		Amount:                      amount,
		ProductSnapshotAtEntry:      slot.ProductSnapshot,
		SumSnapshotAtEntry:          slot.SumSnapshot,
		EpochAtEntry:                slot.CurrentEpoch,
		ScaleAtEntry:                slot.CurrentScale,
		PendingLiquidatedCollateral: cdptypes.ZeroDec(),
	}

	switch {
	case slot.TotalBidAmount.GTE(queue.BidThreshold):
		slot.ActiveBids = append(slot.ActiveBids, bid)
		slot.TotalBidAmount = slot.TotalBidAmount.Add(amount)
	case slot.TotalBidAmount.Add(amount).GTE(queue.BidThreshold):
		activePortion := queue.BidThreshold.Sub(slot.TotalBidAmount)
		waitingPortion := amount.Sub(activePortion)

		activeBid := bid
		activeBid.Amount = activePortion
		slot.ActiveBids = append(slot.ActiveBids, activeBid)
		slot.TotalBidAmount = slot.TotalBidAmount.Add(activePortion)

		if waitingPortion.IsPositive() {
			queue.CurrentBidID++
			waitingBid := bid
			waitingBid.ID = queue.CurrentBidID
			waitingBid.Amount = waitingPortion
			slot.WaitingBids = append(slot.WaitingBids, waitingBid)
		}
	default:
		slot.WaitingBids = append(slot.WaitingBids, bid)
	}

	if err := k.SetQueue(ctx, queue); err != nil {
		return types.Bid{}, err
	}

	ctx.EventManager().EmitEvent(sdk.NewEvent(
		"liqqueue_bid_submitted",
		sdk.NewAttribute("handle", fmt.Sprintf("%d", handle)),
		sdk.NewAttribute("premium", fmt.Sprintf("%d", premium)),
		sdk.NewAttribute("owner", owner),
		sdk.NewAttribute("amount", amount.String()),
	))
	return bid, nil
}

// findBid locates a bid by id in either the active or waiting list of a
// slot, reporting which list it was found in.
func findBid(slot types.Slot, bidID uint64) (types.Bid, bool, bool) {
	for _, b := range slot.ActiveBids {
		if b.ID == bidID {
			return b, true, true
		}
	}
	for _, b := range slot.WaitingBids {
		if b.ID == bidID {
			return b, false, true
		}
	}
	return types.Bid{}, false, false
}

// RetractBid claims any already-earned collateral first, then withdraws
// amount of remaining principal, per the Open Question decision recorded
// in SPEC_FULL.md §11 ("claims collateral first, then retracts").
// Partial retraction on an active bid is permitted down to minimum_bid;
// a bid that would drop below minimum_bid is retracted in full instead.
func (k Keeper) RetractBid(ctx sdk.Context, handle uint64, premium uint64, owner string, bidID uint64, amount cdptypes.Dec) (collateralGain cdptypes.Dec, retracted cdptypes.Dec, err error) {
	queue, found := k.GetQueue(ctx, handle)
	if !found {
		return cdptypes.Dec{}, cdptypes.Dec{}, types.ErrQueueNotFound
	}
	if premium > queue.MaxPremium {
		return cdptypes.Dec{}, cdptypes.Dec{}, types.ErrInvalidPremium
	}
	slot := &queue.Slots[premium]
	now := ctx.BlockTime()
	types.TouchSlot(slot, now, queue.WaitPeriod)

	bid, isActive, ok := findBid(*slot, bidID)
	if !ok {
		return cdptypes.Dec{}, cdptypes.Dec{}, types.ErrBidNotFound
	}
	if bid.Owner != owner {
		return cdptypes.Dec{}, cdptypes.Dec{}, types.ErrUnauthorizedRetract
	}

	gain := types.CollateralGain(*slot, bid)
	compounded := types.CompoundedAmount(*slot, bid)

	requested := amount
	if requested.GT(compounded) {
		requested = compounded
	}
	remaining := compounded.Sub(requested)
	if remaining.IsPositive() && remaining.LT(queue.MinimumBid) {
		requested = compounded
		remaining = cdptypes.ZeroDec()
	}

	if isActive {
		removeActiveBid(slot, bidID)
		slot.TotalBidAmount = slot.TotalBidAmount.Sub(compounded)
		if slot.TotalBidAmount.IsNegative() {
			slot.TotalBidAmount = cdptypes.ZeroDec()
		}
		if remaining.IsPositive() {
			bid.Amount = remaining
			bid.ProductSnapshotAtEntry = slot.ProductSnapshot
			bid.SumSnapshotAtEntry = slot.SumSnapshot
			bid.EpochAtEntry = slot.CurrentEpoch
			bid.ScaleAtEntry = slot.CurrentScale
			slot.ActiveBids = append(slot.ActiveBids, bid)
			slot.TotalBidAmount = slot.TotalBidAmount.Add(remaining)
		}
	} else {
		removeWaitingBid(slot, bidID)
		if remaining.IsPositive() {
			bid.Amount = remaining
			slot.WaitingBids = append(slot.WaitingBids, bid)
		}
	}

	if err := k.SetQueue(ctx, queue); err != nil {
		return cdptypes.Dec{}, cdptypes.Dec{}, err
	}

	ctx.EventManager().EmitEvent(sdk.NewEvent(
		"liqqueue_bid_retracted",
		sdk.NewAttribute("handle", fmt.Sprintf("%d", handle)),
		sdk.NewAttribute("bid_id", fmt.Sprintf("%d", bidID)),
		sdk.NewAttribute("retracted", requested.String()),
		sdk.NewAttribute("collateral_gain", gain.String()),
	))
	return gain, requested, nil
}

func removeActiveBid(slot *types.Slot, bidID uint64) {
	for i, b := range slot.ActiveBids {
		if b.ID == bidID {
			slot.ActiveBids = append(slot.ActiveBids[:i], slot.ActiveBids[i+1:]...)
			return
		}
	}
}

func removeWaitingBid(slot *types.Slot, bidID uint64) {
	for i, b := range slot.WaitingBids {
		if b.ID == bidID {
			slot.WaitingBids = append(slot.WaitingBids[:i], slot.WaitingBids[i+1:]...)
			return
		}
	}
}

// CheckLiquidatible reports how much of creditOwed the queue could repay
// against collateralAvailable without mutating state, used by the
// liquidation orchestrator's route-planning step (spec.md §4.F.3a).
func (k Keeper) CheckLiquidatible(ctx sdk.Context, handle uint64, creditOwed, collateralAvailable, collateralPrice, creditPrice cdptypes.Dec) (leftoverCollateral, creditRepaid cdptypes.Dec, err error) {
	queue, found := k.GetQueue(ctx, handle)
	if !found {
		return cdptypes.Dec{}, cdptypes.Dec{}, types.ErrQueueNotFound
	}
	remainingCredit := creditOwed
	remainingCollateral := collateralAvailable
	for premium := uint64(0); premium <= queue.MaxPremium && remainingCredit.IsPositive() && remainingCollateral.IsPositive(); premium++ {
		slot := queue.Slots[premium]
		if slot.TotalBidAmount.IsZero() {
			continue
		}
		creditConsumed, collateralReleased := planSlotConsumption(slot, remainingCredit, remainingCollateral, collateralPrice, creditPrice)
		remainingCredit = remainingCredit.Sub(creditConsumed)
		remainingCollateral = remainingCollateral.Sub(collateralReleased)
	}
	return remainingCollateral, creditOwed.Sub(remainingCredit), nil
}

// planSlotConsumption computes, without mutation, how much credit a
// slot would absorb and how much collateral it would release given its
// premium discount.
func planSlotConsumption(slot types.Slot, creditOwed, collateralAvailable, collateralPrice, creditPrice cdptypes.Dec) (creditConsumed, collateralReleased cdptypes.Dec) {
	collateralPerCredit := creditPrice.Mul(cdptypes.OneDec().Add(slot.LiqPremium)).Quo(collateralPrice)

	creditConsumed = slot.TotalBidAmount
	if creditConsumed.GT(creditOwed) {
		creditConsumed = creditOwed
	}
	collateralReleased = creditConsumed.Mul(collateralPerCredit)
	if collateralReleased.GT(collateralAvailable) {
		collateralReleased = collateralAvailable
		creditConsumed = collateralReleased.Quo(collateralPerCredit)
	}
	return creditConsumed, collateralReleased
}

// Liquidate consumes slots ascending by premium, crediting collateral to
// depositors via the product/sum accumulator, per spec.md §4.D's
// liquidation entry point. This mutates the queue and is called by the
// orchestrator's dispatch step, not the read-only planning step.
func (k Keeper) Liquidate(ctx sdk.Context, handle uint64, creditOwed, collateralAvailable, collateralPrice, creditPrice cdptypes.Dec) (leftoverCollateral, creditRepaid cdptypes.Dec, err error) {
	queue, found := k.GetQueue(ctx, handle)
	if !found {
		return cdptypes.Dec{}, cdptypes.Dec{}, types.ErrQueueNotFound
	}

	remainingCredit := creditOwed
	remainingCollateral := collateralAvailable
	for premium := uint64(0); premium <= queue.MaxPremium && remainingCredit.IsPositive() && remainingCollateral.IsPositive(); premium++ {
		slot := &queue.Slots[premium]
		types.TouchSlot(slot, ctx.BlockTime(), queue.WaitPeriod)
		if slot.TotalBidAmount.IsZero() {
			continue
		}

		creditConsumed, collateralReleased := planSlotConsumption(*slot, remainingCredit, remainingCollateral, collateralPrice, creditPrice)
		if creditConsumed.IsZero() {
			continue
		}

		types.ApplySlotLiquidation(slot, creditConsumed, collateralReleased, queue.EpochDustThreshold)

		remainingCredit = remainingCredit.Sub(creditConsumed)
		remainingCollateral = remainingCollateral.Sub(collateralReleased)
	}

	if err := k.SetQueue(ctx, queue); err != nil {
		return cdptypes.Dec{}, cdptypes.Dec{}, err
	}

	creditRepaid = creditOwed.Sub(remainingCredit)
	ctx.EventManager().EmitEvent(sdk.NewEvent(
		"liqqueue_liquidate",
		sdk.NewAttribute("handle", fmt.Sprintf("%d", handle)),
		sdk.NewAttribute("credit_repaid", creditRepaid.String()),
		sdk.NewAttribute("leftover_collateral", remainingCollateral.String()),
	))
	return remainingCollateral, creditRepaid, nil
}

// ClaimableCollateral reports a bid owner's current compounded principal
// and unclaimed collateral gain, without mutating state.
func (k Keeper) ClaimableCollateral(ctx sdk.Context, handle uint64, premium uint64, bidID uint64) (compounded, gain cdptypes.Dec, err error) {
	queue, found := k.GetQueue(ctx, handle)
	if !found {
		return cdptypes.Dec{}, cdptypes.Dec{}, types.ErrQueueNotFound
	}
	if premium > queue.MaxPremium {
		return cdptypes.Dec{}, cdptypes.Dec{}, types.ErrInvalidPremium
	}
	slot := queue.Slots[premium]
	bid, _, ok := findBid(slot, bidID)
	if !ok {
		return cdptypes.Dec{}, cdptypes.Dec{}, types.ErrBidNotFound
	}
	return types.CompoundedAmount(slot, bid), types.CollateralGain(slot, bid), nil
}

// GetOwnerBids returns every bid an owner holds across every premium
// slot of a queue, active and waiting, sorted by bid id.
func (k Keeper) GetOwnerBids(ctx sdk.Context, handle uint64, owner string) []types.Bid {
	queue, found := k.GetQueue(ctx, handle)
	if !found {
		return nil
	}
	var bids []types.Bid
	for _, slot := range queue.Slots {
		for _, b := range slot.ActiveBids {
			if b.Owner == owner {
				bids = append(bids, b)
			}
		}
		for _, b := range slot.WaitingBids {
			if b.Owner == owner {
				bids = append(bids, b)
			}
		}
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].ID < bids[j].ID })
	return bids
}

