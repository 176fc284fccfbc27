package keeper

import (
	"context"
	"encoding/json"
	"fmt"

	"cosmossdk.io/log"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"lukechampine.com/blake3"

	"github.com/sharehodl/cdpcore/metrics"
	"github.com/sharehodl/cdpcore/tracing"
	cdptypes "github.com/sharehodl/cdpcore/types"
	baskettypes "github.com/sharehodl/cdpcore/x/basket/types"
	"github.com/sharehodl/cdpcore/x/liquidation/types"
)

// dispatchFrameID derives a DispatchFrame's identity deterministically
// from the propagation it belongs to and its position on the dispatch
// stack, so replaying the same propagation on any node produces the same
// frame ids (spec.md §9's determinism requirement), unlike a random UUID.
func dispatchFrameID(basketID, positionID uint64, seq int) string {
	sum := blake3.Sum256([]byte(fmt.Sprintf("%d|%d|%d", basketID, positionID, seq)))
	return fmt.Sprintf("%x", sum)
}

// decFloat converts a Dec to float64 for metrics export only; never used
// for ledger arithmetic, so the rounding Float64 introduces is harmless.
func decFloat(d cdptypes.Dec) float64 {
	f, err := d.Float64()
	if err != nil {
		return 0
	}
	return f
}

// Keeper implements the liquidation orchestrator (spec.md §4.F): solvency
// check, fee carve-out, route planning across the Liquidation Queue and
// Stability Pool, and a LIFO-ordered sell-wall fallback. Grounded
// structurally on the teacher's x/lending.LiquidateLoan single-pass flow,
// generalized into a persisted multi-step plan because this engine's
// routing fans out across three independent subsystems instead of one
// direct transfer.
type Keeper struct {
	cdc      codec.BinaryCodec
	storeKey storetypes.StoreKey
	memKey   storetypes.StoreKey

	oracleKeeper   types.OracleKeeper
	basketKeeper   types.BasketKeeper
	liqQueueKeeper types.LiqQueueKeeper
	stabPoolKeeper types.StabilityPoolKeeper
	sellWallKeeper types.SellWallKeeper
	auctionKeeper  types.AuctionKeeper
}

func NewKeeper(
	cdc codec.BinaryCodec,
	storeKey, memKey storetypes.StoreKey,
	oracleKeeper types.OracleKeeper,
	basketKeeper types.BasketKeeper,
	liqQueueKeeper types.LiqQueueKeeper,
	stabPoolKeeper types.StabilityPoolKeeper,
	sellWallKeeper types.SellWallKeeper,
	auctionKeeper types.AuctionKeeper,
) *Keeper {
	return &Keeper{
		cdc: cdc, storeKey: storeKey, memKey: memKey,
		oracleKeeper: oracleKeeper, basketKeeper: basketKeeper,
		liqQueueKeeper: liqQueueKeeper, stabPoolKeeper: stabPoolKeeper, sellWallKeeper: sellWallKeeper,
		auctionKeeper: auctionKeeper,
	}
}

func (k Keeper) Logger(ctx sdk.Context) log.Logger {
	return ctx.Logger().With("module", fmt.Sprintf("x/%s", types.ModuleName))
}

func (k Keeper) GetParams(ctx sdk.Context) types.Params {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.ParamsKey)
	if bz == nil {
		return types.DefaultParams()
	}
	var p types.Params
	if err := json.Unmarshal(bz, &p); err != nil {
		return types.DefaultParams()
	}
	return p
}

func (k Keeper) SetParams(ctx sdk.Context, params types.Params) error {
	bz, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal liquidation params: %w", err)
	}
	ctx.KVStore(k.storeKey).Set(types.ParamsKey, bz)
	return nil
}

func (k Keeper) getNextPropagationID(ctx sdk.Context) uint64 {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.PropagationCounterKey)
	var id uint64
	if bz != nil {
		id = sdk.BigEndianToUint64(bz)
	}
	id++
	store.Set(types.PropagationCounterKey, sdk.Uint64ToBigEndian(id))
	return id
}

// getActiveRepay reads the process-wide REPAY singleton (spec.md §5): the
// id of the RepayPropagation currently mid-dispatch, if any.
func (k Keeper) getActiveRepay(ctx sdk.Context) (uint64, bool) {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.ActiveRepayKey)
	if bz == nil {
		return 0, false
	}
	return sdk.BigEndianToUint64(bz), true
}

func (k Keeper) setActiveRepay(ctx sdk.Context, id uint64) {
	ctx.KVStore(k.storeKey).Set(types.ActiveRepayKey, sdk.Uint64ToBigEndian(id))
}

func (k Keeper) clearActiveRepay(ctx sdk.Context) {
	ctx.KVStore(k.storeKey).Delete(types.ActiveRepayKey)
}

func (k Keeper) GetPropagation(ctx sdk.Context, id uint64) (types.RepayPropagation, bool) {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.GetPropagationKey(id))
	if bz == nil {
		return types.RepayPropagation{}, false
	}
	var r types.RepayPropagation
	if err := json.Unmarshal(bz, &r); err != nil {
		return types.RepayPropagation{}, false
	}
	return r, true
}

func (k Keeper) SetPropagation(ctx sdk.Context, r types.RepayPropagation) error {
	bz, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal repay propagation: %w", err)
	}
	ctx.KVStore(k.storeKey).Set(types.GetPropagationKey(r.ID), bz)
	return nil
}

// LiquidatePosition runs spec.md §4.F steps 1-4: solvency check, fee
// carve-out, route planning against LQ and SP, and dispatch. It returns
// the persisted RepayPropagation id. caller is the account that triggered
// the liquidation and receives caller_fee_amount; owner is the position
// holder being liquidated.
func (k Keeper) LiquidatePosition(ctx sdk.Context, basketID, positionID uint64, owner, caller string) (uint64, error) {
	basket, found := k.basketKeeper.GetBasket(ctx, basketID)
	if !found {
		return 0, baskettypes.ErrBasketNotFound
	}
	if basket.Frozen {
		return 0, types.ErrBasketFrozen
	}
	position, found := k.basketKeeper.GetPosition(ctx, basketID, owner, positionID)
	if !found {
		return 0, types.ErrPositionNotFound
	}
	if _, active := k.getActiveRepay(ctx); active {
		return 0, types.ErrConcurrentLiquidation
	}

	correlationID := uuid.New().String()
	traceCtx, span := tracing.StartSpan(ctx, "LiquidatePosition",
		attribute.String("correlation_id", correlationID),
		attribute.Int64("basket_id", int64(basketID)),
		attribute.Int64("position_id", int64(positionID)),
	)
	defer span.End()
	logger := k.Logger(ctx).With("correlation_id", correlationID)

	params := k.GetParams(ctx)

	// Step 1: solvency check at max_LTV using a fresh TWAP per collateral.
	prices := make(map[string]cdptypes.Dec, len(position.CollateralAssets))
	for _, c := range position.CollateralAssets {
		quote, err := k.oracleKeeper.GetTWAP(ctx, c.Info, params.CollateralTWAPTimeframe)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", types.ErrStalePrice, err)
		}
		prices[c.Info.String()] = quote.Price
	}
	solvent, err := position.IsSolvent(basket, prices, true, false)
	if err != nil {
		return 0, err
	}
	if solvent {
		return 0, types.ErrPositionSolvent
	}

	// Step 2: fee carve-out.
	creditAmount := position.CreditAmount
	liqFee := creditAmount.Mul(params.LiqFee)
	callerFee := liqFee.Mul(params.CallerFeeShare)
	protocolFee := liqFee.Sub(callerFee)
	netCredit := creditAmount.Sub(liqFee)

	// Step 3: route planning.
	propagation := types.RepayPropagation{
		ID:                k.getNextPropagationID(ctx),
		BasketID:          basketID,
		PositionID:        positionID,
		Owner:             position.Owner,
		Status:            types.StatusPlanned,
		CreditAmount:      netCredit,
		CallerFeeAmount:   callerFee,
		ProtocolFeeAmount: protocolFee,
		LiqQueueLeftover:  cdptypes.ZeroDec(),
		CreatedAt:         ctx.BlockTime(),
	}

	remaining := netCredit
	if basket.LiqQueueHandle != nil {
		for _, c := range position.CollateralAssets {
			if remaining.IsZero() || c.Amount.IsZero() {
				continue
			}
			leftoverCollateral, creditRepaid, err := k.liqQueueKeeper.CheckLiquidatible(ctx, *basket.LiqQueueHandle, remaining, c.Amount, prices[c.Info.String()], basket.CreditPrice.Price)
			if err != nil {
				continue
			}
			released := c.Amount.Sub(leftoverCollateral)
			propagation.PerAssetRepayment = append(propagation.PerAssetRepayment, types.PerAssetRepayment{
				Asset:   c.Info,
				Planned: released,
			})
			remaining = remaining.Sub(creditRepaid)
		}
	}
	lqPlanned := netCredit.Sub(remaining)

	spPlanned := cdptypes.ZeroDec()
	spLeftover := cdptypes.ZeroDec()
	if remaining.IsPositive() {
		if staked, ok := k.stabPoolKeeper.PoolTotalStaked(ctx, basket.CreditAsset.String()); ok && staked.IsPositive() {
			spPlanned = remaining
			if spPlanned.GT(staked) {
				spPlanned = staked
			}
			spLeftover = remaining.Sub(spPlanned)
		} else {
			spLeftover = remaining
		}
	}
	propagation.StabilityPoolAmount = spPlanned
	propagation.LiqQueueLeftover = lqPlanned
	propagation.NonLQCredit = spPlanned.Add(spLeftover)

	// Step 4: dispatch, LQ first then SP then sell-wall, each pushed onto
	// the LIFO stack in dispatch order so replies unwind depth-first.
	propagation.Status = types.StatusDispatched
	for _, par := range propagation.PerAssetRepayment {
		frame := types.DispatchFrame{Kind: types.DispatchLQBid, Asset: par.Asset, Amount: par.Planned}
		frame.FrameID = dispatchFrameID(propagation.BasketID, propagation.PositionID, len(propagation.DispatchStack))
		propagation.Push(frame)
	}
	if spPlanned.IsPositive() {
		frame := types.DispatchFrame{Kind: types.DispatchSPLiquidate, Asset: basket.CreditAsset, Amount: spPlanned}
		frame.FrameID = dispatchFrameID(propagation.BasketID, propagation.PositionID, len(propagation.DispatchStack))
		propagation.Push(frame)
	}
	// The residual beyond SP capacity is already known at plan time (not
	// reactive), but the collateral backing it is only resolved into
	// per-asset sell-wall distributions here, against the position's
	// full pre-liquidation collateral.
	k.queueSellWallForCredit(&position, &propagation, spLeftover)

	if err := k.SetPropagation(ctx, propagation); err != nil {
		return 0, err
	}

	// Holding the singleton simulates spec.md §5's "single global Repay
	// record": while set, resolveSPFrame's LiqRepay re-entry below is the
	// only caller allowed to touch this propagation's ledger.
	k.setActiveRepay(ctx, propagation.ID)
	defer k.clearActiveRepay(ctx)

	if err := k.executeDispatch(ctx, traceCtx, &basket, &position, &propagation, callerFee, protocolFee, caller); err != nil {
		span.RecordError(err)
		return propagation.ID, err
	}
	tracing.RecordOutcome(span, string(propagation.Status))
	logger.Info("liquidation dispatched", "propagation_id", propagation.ID, "status", propagation.Status)
	return propagation.ID, nil
}

// executeDispatch walks every pushed frame in order and performs the
// corresponding sub-operation synchronously, applying spec.md §4.F step
// 6's reply-handling rules inline since this engine has no asynchronous
// message bus to reply through. traceCtx roots one child span per
// dispatched frame, closed once that frame's reply is handled — this
// engine's stand-in for the "suspend current frame until reply" span
// lifetimes spec.md §5 describes for an async dispatch.
func (k Keeper) executeDispatch(ctx sdk.Context, traceCtx context.Context, basket *baskettypes.Basket, position *baskettypes.Position, propagation *types.RepayPropagation, callerFee, protocolFee cdptypes.Dec, caller string) error {
	// Index-based, not range-based: handling a frame can push new
	// sell-wall frames (LQ/SP failure branches). Those are spliced in
	// immediately after the current index so they resolve next rather
	// than after whatever was already queued behind it, the
	// "depth-first" order spec.md §4.F step 6 requires.
	for i := 0; i < len(propagation.DispatchStack); i++ {
		if propagation.DispatchStack[i].Resolved {
			continue
		}
		frame := propagation.DispatchStack[i]
		before := len(propagation.DispatchStack)
		_, frameSpan := tracing.StartSpan(traceCtx, string(frame.Kind),
			attribute.String("frame_id", frame.FrameID),
			attribute.String("asset", frame.Asset.String()),
		)
		switch frame.Kind {
		case types.DispatchLQBid:
			k.resolveLQFrame(ctx, basket, position, propagation, &frame)
			metrics.Liquidation().RecordRoute("lq_bid", decFloat(frame.Amount))
		case types.DispatchSPLiquidate:
			k.resolveSPFrame(ctx, basket, position, propagation, &frame)
			metrics.Liquidation().RecordRoute("sp_liquidate", decFloat(frame.Amount))
		case types.DispatchSellWall:
			k.resolveSellWallFrame(ctx, basket, propagation, &frame)
			metrics.Liquidation().RecordRoute("sell_wall", decFloat(frame.Amount))
		}
		frameSpan.End()
		if len(propagation.DispatchStack) > before {
			spawned := append([]types.DispatchFrame{}, propagation.DispatchStack[before:]...)
			propagation.DispatchStack = propagation.DispatchStack[:before]
			propagation.InsertAfter(i, spawned)
		}
		// Re-index: splicing can reallocate the backing array, so write
		// the result back by index rather than through a pointer taken
		// before the call.
		propagation.DispatchStack[i] = frame
		propagation.DispatchStack[i].Resolved = true
	}

	if err := k.payFees(ctx, basket, callerFee, protocolFee, caller); err != nil {
		return err
	}

	return k.finalize(ctx, basket, position, propagation)
}

// resolveLQFrame handles one LQ sub-op's reply (spec.md §4.F step 6: "LQ
// sub-op success/failure").
func (k Keeper) resolveLQFrame(ctx sdk.Context, basket *baskettypes.Basket, position *baskettypes.Position, propagation *types.RepayPropagation, frame *types.DispatchFrame) {
	collateral, found := position.CollateralAssets.Find(frame.Asset)
	if !found || basket.LiqQueueHandle == nil {
		return
	}
	creditOwed := propagation.CreditAmount
	for _, par := range propagation.PerAssetRepayment {
		if par.Asset.Equal(frame.Asset) {
			creditOwed = frame.Amount
			break
		}
	}
	price, err := k.oracleKeeper.GetTWAP(ctx, frame.Asset, k.GetParams(ctx).CollateralTWAPTimeframe)
	if err != nil {
		k.appendLQFailure(propagation, frame)
		return
	}
	leftoverCollateral, creditRepaid, err := k.liqQueueKeeper.Liquidate(ctx, *basket.LiqQueueHandle, creditOwed, collateral.Amount, price.Price, basket.CreditPrice.Price)
	if err != nil || creditRepaid.IsZero() {
		k.appendLQFailure(propagation, frame)
		return
	}

	released := collateral.Amount.Sub(leftoverCollateral)
	position.CollateralAssets, _ = position.CollateralAssets.Sub(frame.Asset, released)
	for i := range propagation.PerAssetRepayment {
		if propagation.PerAssetRepayment[i].Asset.Equal(frame.Asset) {
			propagation.PerAssetRepayment[i].Repaid = creditRepaid
			propagation.PerAssetRepayment[i].Released = released
		}
	}
	propagation.LiqQueueLeftover = propagation.LiqQueueLeftover.Sub(creditRepaid)
}

// appendLQFailure implements the "LQ sub-op failure" branch: if SP is
// already scheduled it does nothing (SP absorbs the leftover); otherwise
// this asset's share is queued for the sell-wall, to be resolved in its
// turn by the same dispatch pass that queued it.
func (k Keeper) appendLQFailure(propagation *types.RepayPropagation, frame *types.DispatchFrame) {
	if propagation.StabilityPoolAmount.IsPositive() {
		return
	}
	k.sellWall(propagation, frame.Asset, frame.Amount)
}

// resolveSPFrame handles the SP sub-op's reply (spec.md §4.F step 6:
// "SP sub-op success with leftover" / "SP sub-op failure"). The credit SP
// actually absorbed is applied back onto the position through LiqRepay,
// not inline, matching spec.md §5/§9's "SP dispatches LiqRepay → Positions
// accepts only from SP principal" re-entry protocol: SP is the configured
// StabilityPoolPrincipal sender here, calling back into this same
// propagation while it holds the REPAY singleton.
func (k Keeper) resolveSPFrame(ctx sdk.Context, basket *baskettypes.Basket, position *baskettypes.Position, propagation *types.RepayPropagation, frame *types.DispatchFrame) {
	leftover, err := k.stabPoolKeeper.Liquidate(ctx, basket.CreditAsset.String(), frame.Amount)
	if err != nil {
		k.queueSellWallForCredit(position, propagation, propagation.LiqQueueLeftover.Add(frame.Amount))
		propagation.StabilityPoolAmount = cdptypes.ZeroDec()
		propagation.LiqQueueLeftover = cdptypes.ZeroDec()
		return
	}
	repaid := frame.Amount.Sub(leftover)
	principal := k.GetParams(ctx).StabilityPoolPrincipal
	if err := k.LiqRepay(ctx, principal, propagation.ID, basket, position, propagation, repaid); err != nil {
		k.Logger(ctx).Error("LiqRepay re-entry rejected", "error", err)
	}

	if leftover.IsPositive() {
		// SP didn't fully absorb its own share: its leftover plus whatever
		// LQ failed to cover both go straight to the sell-wall.
		k.queueSellWallForCredit(position, propagation, leftover.Add(propagation.LiqQueueLeftover))
		propagation.LiqQueueLeftover = cdptypes.ZeroDec()
		return
	}
	if propagation.LiqQueueLeftover.IsZero() {
		return
	}
	// SP fully absorbed its own share, but per-asset LQ failures left a
	// residual: give the SP a second, smaller liquidation call before
	// falling back to the sell-wall for whatever it still can't take.
	lqResidual := propagation.LiqQueueLeftover
	propagation.LiqQueueLeftover = cdptypes.ZeroDec()
	secondLeftover, err := k.stabPoolKeeper.Liquidate(ctx, basket.CreditAsset.String(), lqResidual)
	if err != nil {
		k.queueSellWallForCredit(position, propagation, lqResidual)
		return
	}
	secondRepaid := lqResidual.Sub(secondLeftover)
	principal := k.GetParams(ctx).StabilityPoolPrincipal
	if err := k.LiqRepay(ctx, principal, propagation.ID, basket, position, propagation, secondRepaid); err != nil {
		k.Logger(ctx).Error("LiqRepay re-entry rejected", "error", err)
	}
	if secondLeftover.IsPositive() {
		k.queueSellWallForCredit(position, propagation, secondLeftover)
	}
}

// LiqRepay is the exported §6 command the Stability Pool dispatches back
// into the orchestrator mid-liquidation once it has applied its own share
// of credit (spec.md §5: "such re-entries MUST be gated by sender
// authorization (info.sender == expected_collaborator)"). sender must
// match params.StabilityPoolPrincipal, and propagationID must be the
// propagation currently holding the REPAY singleton; either mismatch is
// rejected rather than silently applied. This engine has no asynchronous
// message bus, so the "dispatch" is the stability pool's own in-process
// call from resolveSPFrame within the same propagation's dispatch pass.
func (k Keeper) LiqRepay(ctx sdk.Context, sender string, propagationID uint64, basket *baskettypes.Basket, position *baskettypes.Position, propagation *types.RepayPropagation, creditRepaid cdptypes.Dec) error {
	if sender != k.GetParams(ctx).StabilityPoolPrincipal {
		return types.ErrUnauthorizedLiqRepay
	}
	active, ok := k.getActiveRepay(ctx)
	if !ok || active != propagationID || propagation.ID != propagationID {
		return types.ErrNoActiveLiquidation
	}
	if !creditRepaid.IsPositive() {
		return nil
	}
	propagation.PerAssetRepayment = append(propagation.PerAssetRepayment, types.PerAssetRepayment{
		Asset: basket.CreditAsset, Repaid: creditRepaid,
	})
	k.drawCollateralForCredit(ctx, basket, position, propagation, creditRepaid)
	return nil
}

// queueSellWallForCredit converts a credit-denominated shortfall into a
// pro-rata (by NonLQCredit) draw of the position's remaining collateral
// and queues one sell-wall distribution per drawn asset. The collateral
// is debited immediately since it's now committed to an external sale.
func (k Keeper) queueSellWallForCredit(position *baskettypes.Position, propagation *types.RepayPropagation, creditAmount cdptypes.Dec) {
	if !creditAmount.IsPositive() || !propagation.NonLQCredit.IsPositive() {
		return
	}
	share := creditAmount.Quo(propagation.NonLQCredit)
	for _, c := range position.CollateralAssets {
		amt := c.Amount.Mul(share)
		if !amt.IsPositive() {
			continue
		}
		k.sellWall(propagation, c.Info, amt)
		if remaining, err := position.CollateralAssets.Sub(c.Info, amt); err == nil {
			position.CollateralAssets = remaining
		}
	}
}

// drawCollateralForCredit releases a pro-rata (by credit repaid against
// NonLQCredit) share of the position's remaining collateral to the
// stability pool's current consumption list via Distribute, and debits
// that collateral off the position so later sell-wall draws only see
// what's left.
func (k Keeper) drawCollateralForCredit(ctx sdk.Context, basket *baskettypes.Basket, position *baskettypes.Position, propagation *types.RepayPropagation, creditRepaid cdptypes.Dec) {
	if !creditRepaid.IsPositive() || !propagation.NonLQCredit.IsPositive() {
		return
	}
	share := creditRepaid.Quo(propagation.NonLQCredit)
	var draw cdptypes.AssetList
	for _, c := range position.CollateralAssets {
		amt := c.Amount.Mul(share)
		if amt.IsZero() {
			continue
		}
		draw = draw.Add(c.Info, amt)
	}
	if len(draw) == 0 {
		return
	}
	if _, err := k.stabPoolKeeper.Distribute(ctx, basket.CreditAsset.String(), draw); err != nil {
		k.Logger(ctx).Error("stability pool collateral distribution failed", "error", err)
		return
	}
	for _, a := range draw {
		remaining, err := position.CollateralAssets.Sub(a.Info, a.Amount)
		if err != nil {
			continue
		}
		position.CollateralAssets = remaining
	}
}

// sellWall appends a new planned sell-wall distribution for one
// collateral asset and pushes its matching dispatch frame.
func (k Keeper) sellWall(propagation *types.RepayPropagation, asset cdptypes.AssetInfo, amount cdptypes.Dec) {
	if amount.IsZero() || amount.IsNegative() {
		return
	}
	idx := len(propagation.SellWallDistributions)
	propagation.SellWallDistributions = append(propagation.SellWallDistributions, types.SellWallDistribution{
		Asset: asset, Amount: amount, Proceeds: cdptypes.ZeroDec(),
	})
	frame := types.DispatchFrame{Kind: types.DispatchSellWall, Asset: asset, Amount: amount, Index: idx}
	frame.FrameID = dispatchFrameID(propagation.BasketID, propagation.PositionID, len(propagation.DispatchStack))
	propagation.Push(frame)
}

// resolveSellWallFrame executes one planned external sale of collateral
// for the basket's credit asset and repays the position's residual debt
// with the proceeds (spec.md §4.F step 6: "Sell-wall success").
func (k Keeper) resolveSellWallFrame(ctx sdk.Context, basket *baskettypes.Basket, propagation *types.RepayPropagation, frame *types.DispatchFrame) {
	dist := &propagation.SellWallDistributions[frame.Index]
	if basket == nil || k.sellWallKeeper == nil {
		dist.Resolved = true
		return
	}
	proceeds, err := k.sellWallKeeper.ExecuteMarketSell(ctx, types.ModuleName, dist.Asset, dist.Amount, basket.CreditAsset)
	if err != nil {
		dist.Resolved = true
		return
	}
	dist.Proceeds = proceeds
	dist.Resolved = true
	propagation.PerAssetRepayment = append(propagation.PerAssetRepayment, types.PerAssetRepayment{
		Asset: dist.Asset, Repaid: proceeds, Released: dist.Amount,
	})
}

func (k Keeper) getClaimable(ctx sdk.Context, creditAsset, owner string) cdptypes.Dec {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.GetClaimableKey(creditAsset, owner))
	if bz == nil {
		return cdptypes.ZeroDec()
	}
	var amt cdptypes.Dec
	if err := json.Unmarshal(bz, &amt); err != nil {
		return cdptypes.ZeroDec()
	}
	return amt
}

func (k Keeper) setClaimable(ctx sdk.Context, creditAsset, owner string, amt cdptypes.Dec) error {
	bz, err := json.Marshal(amt)
	if err != nil {
		return fmt.Errorf("failed to marshal liquidation claimable: %w", err)
	}
	ctx.KVStore(k.storeKey).Set(types.GetClaimableKey(creditAsset, owner), bz)
	return nil
}

// GetClaimable returns an account's accumulated caller_fee_amount
// balance in one basket's credit asset, owed but not yet withdrawn.
func (k Keeper) GetClaimable(ctx sdk.Context, creditAsset, owner string) cdptypes.Dec {
	return k.getClaimable(ctx, creditAsset, owner)
}

// ClaimAll zeroes and returns an account's claimable caller_fee_amount
// balance for one credit asset.
func (k Keeper) ClaimAll(ctx sdk.Context, creditAsset, owner string) (cdptypes.Dec, error) {
	amt := k.getClaimable(ctx, creditAsset, owner)
	if amt.IsZero() {
		return amt, nil
	}
	return amt, k.setClaimable(ctx, creditAsset, owner, cdptypes.ZeroDec())
}

// payFees settles the liquidation fees (spec.md §4.F step 2):
// caller_fee_amount is debited from the basket's pending_revenue and
// accrues to the caller's claimable balance; the basket-revenue part of
// protocol_fee_amount is credited to pending_revenue. The staking part
// (params.StakingRevenueShare) is computed but not recorded anywhere.
// The stored basket is reloaded into basket afterwards so later writes
// keep these changes.
func (k Keeper) payFees(ctx sdk.Context, basket *baskettypes.Basket, callerFee, protocolFee cdptypes.Dec, caller string) error {
	if callerFee.IsPositive() {
		if err := k.basketKeeper.CreditRevenue(ctx, basket.ID, callerFee.Neg(), "liquidation_caller_fee_carveout"); err != nil {
			return err
		}
		current := k.getClaimable(ctx, basket.CreditAsset.String(), caller)
		if err := k.setClaimable(ctx, basket.CreditAsset.String(), caller, current.Add(callerFee)); err != nil {
			return err
		}
		metrics.Liquidation().RecordCallerFee(decFloat(callerFee))
	}
	if protocolFee.IsPositive() {
		params := k.GetParams(ctx)
		stakingShare := protocolFee.Mul(params.StakingRevenueShare)
		basketShare := protocolFee.Sub(stakingShare)
		if basketShare.IsPositive() {
			if err := k.basketKeeper.CreditRevenue(ctx, basket.ID, basketShare, "liquidation_protocol_fee"); err != nil {
				return err
			}
		}
		_ = stakingShare // not routed: no staking-revenue collaborator is called from this module.
	}
	if stored, found := k.basketKeeper.GetBasket(ctx, basket.ID); found {
		*basket = stored
	}
	return nil
}

// finalize runs spec.md §4.F step 6's bad-debt check and closes out the
// position, persisting the final propagation status.
func (k Keeper) finalize(ctx sdk.Context, basket *baskettypes.Basket, position *baskettypes.Position, propagation *types.RepayPropagation) error {
	repaid := propagation.TotalRepaid()
	position.CreditAmount = position.CreditAmount.Sub(repaid)
	if position.CreditAmount.IsNegative() {
		position.CreditAmount = cdptypes.ZeroDec()
	}

	if position.CreditAmount.IsPositive() && position.CollateralAssets.IsZero() {
		// Bad-debt check (spec.md §4.F step 6 / S4): collateral exhausted
		// before debt is cleared. Hand the residual off to the external
		// debt-auction rather than writing it off; only once the auction
		// accepts it does the basket's total_debt shrink.
		residual := position.CreditAmount
		auctionID, err := k.auctionKeeper.StartAuction(ctx, propagation.BasketID, propagation.PositionID, basket.CreditAsset, residual)
		if err != nil {
			return fmt.Errorf("%w: %s", types.ErrBadDebt, err)
		}
		propagation.Status = types.StatusBadDebtPending
		propagation.AuctionID = &auctionID
		metrics.Liquidation().RecordBadDebt(decFloat(residual))
		k.Logger(ctx).Info("bad debt routed to auction",
			"basket_id", propagation.BasketID, "position_id", propagation.PositionID,
			"residual", residual.String(), "auction_id", auctionID)
		basket.TotalDebt = basket.TotalDebt.Sub(residual)
		position.CreditAmount = cdptypes.ZeroDec()
	} else if position.CreditAmount.IsPositive() {
		if basket.PendingRevenue.IsPositive() {
			mintable := basket.PendingRevenue
			if mintable.GT(position.CreditAmount) {
				mintable = position.CreditAmount
			}
			if err := k.basketKeeper.MintRevenue(ctx, basket.ID, mintable); err != nil {
				return err
			}
			basket.PendingRevenue = basket.PendingRevenue.Sub(mintable)
			position.CreditAmount = position.CreditAmount.Sub(mintable)
		}
	}

	if position.IsEmpty() {
		k.basketKeeper.DeletePosition(ctx, *position)
	} else {
		if err := k.basketKeeper.SetPosition(ctx, *position); err != nil {
			return err
		}
	}
	if err := k.basketKeeper.SetBasket(ctx, *basket); err != nil {
		return err
	}

	if propagation.AllResolved() && propagation.Status != types.StatusBadDebtPending {
		propagation.Status = types.StatusDone
	} else if !propagation.AllResolved() {
		propagation.Status = types.StatusPartiallyResolved
	}
	return k.SetPropagation(ctx, *propagation)
}
