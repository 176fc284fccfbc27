package keeper

import (
	"encoding/json"
	"fmt"

	"cosmossdk.io/log"
	"cosmossdk.io/store/prefix"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"

	cdptypes "github.com/sharehodl/cdpcore/types"
	"github.com/sharehodl/cdpcore/x/basket/types"
)

// Keeper of the basket & position store (spec.md §4.B).
type Keeper struct {
	cdc           codec.BinaryCodec
	storeKey      storetypes.StoreKey
	memKey        storetypes.StoreKey
	bankKeeper    types.BankKeeper
	oracleKeeper  types.OracleKeeper
	interestKeeper types.InterestKeeper
}

// NewKeeper creates a new basket Keeper instance.
func NewKeeper(
	cdc codec.BinaryCodec,
	storeKey, memKey storetypes.StoreKey,
	bankKeeper types.BankKeeper,
	oracleKeeper types.OracleKeeper,
) *Keeper {
	return &Keeper{
		cdc:          cdc,
		storeKey:     storeKey,
		memKey:       memKey,
		bankKeeper:   bankKeeper,
		oracleKeeper: oracleKeeper,
	}
}

// SetInterestKeeper wires the interest engine in late, the same way the
// teacher wires UniversalStakingKeeper into x/lending after both modules
// are constructed (x/lending/keeper/keeper.go:SetStakingKeeper).
func (k *Keeper) SetInterestKeeper(ik types.InterestKeeper) {
	k.interestKeeper = ik
}

// Logger returns a module-specific logger.
func (k Keeper) Logger(ctx sdk.Context) log.Logger {
	return ctx.Logger().With("module", fmt.Sprintf("x/%s", types.ModuleName))
}

// ===================== Params =====================

func (k Keeper) GetParams(ctx sdk.Context) types.Params {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.ParamsKey)
	if bz == nil {
		return types.DefaultParams()
	}
	var params types.Params
	if err := json.Unmarshal(bz, &params); err != nil {
		return types.DefaultParams()
	}
	return params
}

func (k Keeper) SetParams(ctx sdk.Context, params types.Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	store := ctx.KVStore(k.storeKey)
	bz, err := json.Marshal(params)
	if err != nil {
		return err
	}
	store.Set(types.ParamsKey, bz)
	return nil
}

// ===================== Basket CRUD =====================

func (k Keeper) GetNextBasketID(ctx sdk.Context) uint64 {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.BasketCounterKey)
	var counter uint64 = 1
	if bz != nil {
		counter = sdk.BigEndianToUint64(bz)
	}
	store.Set(types.BasketCounterKey, sdk.Uint64ToBigEndian(counter+1))
	return counter
}

func (k Keeper) GetBasket(ctx sdk.Context, basketID uint64) (types.Basket, bool) {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.GetBasketKey(basketID))
	if bz == nil {
		return types.Basket{}, false
	}
	var basket types.Basket
	if err := json.Unmarshal(bz, &basket); err != nil {
		return types.Basket{}, false
	}
	return basket, true
}

func (k Keeper) SetBasket(ctx sdk.Context, basket types.Basket) error {
	store := ctx.KVStore(k.storeKey)
	bz, err := json.Marshal(basket)
	if err != nil {
		return fmt.Errorf("failed to marshal basket: %w", err)
	}
	store.Set(types.GetBasketKey(basket.ID), bz)
	return nil
}

// GetAllBasketIDs returns every configured basket's id, used by the
// interest engine's repeg sweep (x/interest) to find baskets due for a
// Credit Peg Controller tick.
func (k Keeper) GetAllBasketIDs(ctx sdk.Context) []uint64 {
	store := ctx.KVStore(k.storeKey)
	it := prefix.NewStore(store, types.BasketPrefix).Iterator(nil, nil)
	defer it.Close()

	var ids []uint64
	for ; it.Valid(); it.Next() {
		var b types.Basket
		if err := json.Unmarshal(it.Value(), &b); err != nil {
			continue
		}
		ids = append(ids, b.ID)
	}
	return ids
}

// CreateBasket allocates a basket id and stores the initial
// configuration, per §6 CreateBasket (admin-only; enforced by the
// caller's authorization layer, which is out of this engine's scope per
// §1).
func (k Keeper) CreateBasket(ctx sdk.Context, basket types.Basket) (types.Basket, error) {
	if err := basket.Validate(); err != nil {
		return types.Basket{}, err
	}
	basket.ID = k.GetNextBasketID(ctx)
	basket.CurrentPositionID = 0
	if basket.PendingRevenue.IsNil() {
		basket.PendingRevenue = cdptypes.ZeroDec()
	}
	if basket.TotalDebt.IsNil() {
		basket.TotalDebt = cdptypes.ZeroDec()
	}
	if basket.StabilityPoolBuffer.IsNil() {
		basket.StabilityPoolBuffer = cdptypes.ZeroDec()
	}
	if err := k.SetBasket(ctx, basket); err != nil {
		return types.Basket{}, err
	}
	ctx.EventManager().EmitEvent(sdk.NewEvent(
		"basket_created",
		sdk.NewAttribute("basket_id", fmt.Sprintf("%d", basket.ID)),
		sdk.NewAttribute("credit_asset", basket.CreditAsset.String()),
	))
	return basket, nil
}

// EditBasket applies governance-supplied field overrides. This method
// only rewrites the stored configuration. types.Position carries no
// cached LTV: cAsset lookups always read the current basket, so an LTV
// edit applies to existing positions immediately.
func (k Keeper) EditBasket(ctx sdk.Context, basketID uint64, edit func(*types.Basket) error) error {
	basket, found := k.GetBasket(ctx, basketID)
	if !found {
		return types.ErrBasketNotFound
	}
	if err := edit(&basket); err != nil {
		return err
	}
	if err := basket.Validate(); err != nil {
		return err
	}
	return k.SetBasket(ctx, basket)
}

// ===================== Position CRUD =====================

func (k Keeper) GetPosition(ctx sdk.Context, basketID uint64, owner string, positionID uint64) (types.Position, bool) {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.GetPositionKey(basketID, owner, positionID))
	if bz == nil {
		return types.Position{}, false
	}
	var position types.Position
	if err := json.Unmarshal(bz, &position); err != nil {
		return types.Position{}, false
	}
	return position, true
}

func (k Keeper) SetPosition(ctx sdk.Context, position types.Position) error {
	store := ctx.KVStore(k.storeKey)
	bz, err := json.Marshal(position)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}
	store.Set(types.GetPositionKey(position.BasketID, position.Owner, position.ID), bz)
	return nil
}

func (k Keeper) DeletePosition(ctx sdk.Context, position types.Position) {
	store := ctx.KVStore(k.storeKey)
	store.Delete(types.GetPositionKey(position.BasketID, position.Owner, position.ID))
}

// GetOwnerPositions returns every position an owner holds in a basket.
func (k Keeper) GetOwnerPositions(ctx sdk.Context, basketID uint64, owner string) []types.Position {
	store := ctx.KVStore(k.storeKey)
	it := prefix.NewStore(store, types.GetOwnerPositionsPrefixKey(basketID, owner)).Iterator(nil, nil)
	defer it.Close()

	var positions []types.Position
	for ; it.Valid(); it.Next() {
		var p types.Position
		if err := json.Unmarshal(it.Value(), &p); err != nil {
			continue
		}
		positions = append(positions, p)
	}
	return positions
}

// GetBasketPositions returns every position in a basket, across owners.
func (k Keeper) GetBasketPositions(ctx sdk.Context, basketID uint64) []types.Position {
	store := ctx.KVStore(k.storeKey)
	it := prefix.NewStore(store, types.GetBasketPositionsPrefixKey(basketID)).Iterator(nil, nil)
	defer it.Close()

	var positions []types.Position
	for ; it.Valid(); it.Next() {
		var p types.Position
		if err := json.Unmarshal(it.Value(), &p); err != nil {
			continue
		}
		positions = append(positions, p)
	}
	return positions
}

// checkPricesFresh enforces spec.md §4.C's "Rate freshness tie-break: on
// mutation, if oracle time is stale beyond oracle_time_limit, reject with
// StalePrice." Independent of whatever price values the caller passed in
// for the solvency math itself — this only asks the oracle how old its
// own reading is.
func (k Keeper) checkPricesFresh(ctx sdk.Context, assets cdptypes.AssetList) error {
	limit := k.GetParams(ctx).OracleTimeLimit
	window := k.GetParams(ctx).CollateralTWAPTimeframe
	for _, a := range assets {
		quote, err := k.oracleKeeper.GetTWAP(ctx, a.Info, window)
		if err != nil {
			return fmt.Errorf("%w: %s", types.ErrStalePrice, err)
		}
		if age := ctx.BlockTime().Sub(quote.Time); age > limit {
			return fmt.Errorf("%w: %s reading is %s old", types.ErrStalePrice, a.Info, age)
		}
	}
	return nil
}

// accrue runs the position through the interest engine's lazy accrual
// before any operation reads or mutates it (spec.md §4.B).
func (k Keeper) accrue(ctx sdk.Context, basket *types.Basket, position *types.Position) error {
	if k.interestKeeper == nil {
		return nil
	}
	return k.interestKeeper.AccruePosition(ctx, basket, position)
}

// currentSupplyAfter returns the basket's current_supply of info after
// applying delta (positive for deposit, negative for withdrawal), without
// mutating the basket.
func currentSupplyAfter(basket types.Basket, info cdptypes.AssetInfo, delta cdptypes.Dec) cdptypes.Dec {
	cAsset, ok := basket.FindCAsset(info)
	if !ok {
		return delta
	}
	return cAsset.CurrentSupply.Add(delta)
}

// checkSupplyCaps validates spec.md §3's invariant: "per-collateral
// current_supply ≤ supply_cap_ratio × (basket debt + SP buffer)" for
// every configured SupplyCap touched by deltaAssets.
func (k Keeper) checkSupplyCaps(basket types.Basket, deltaAssets cdptypes.AssetList) error {
	base := basket.TotalDebt.Add(basket.StabilityPoolBuffer)
	for _, sc := range basket.SupplyCaps {
		touches := false
		groupSupply := cdptypes.ZeroDec()
		for _, info := range sc.Assets {
			cAsset, ok := basket.FindCAsset(info)
			if !ok {
				continue
			}
			supply := cAsset.CurrentSupply
			if delta, found := deltaAssets.Find(info); found {
				supply = supply.Add(delta.Amount)
				touches = true
			}
			groupSupply = groupSupply.Add(supply)
		}
		if !touches {
			continue
		}
		cap := sc.CapRatio.Mul(base)
		if sc.StabilityPoolRatioForDebtCap != nil {
			cap = cap.Add(sc.StabilityPoolRatioForDebtCap.Mul(basket.StabilityPoolBuffer))
		}
		if groupSupply.GT(cap) {
			return fmt.Errorf("%w: collateral group exceeds supply cap (%s > %s)", types.ErrCapExceeded, groupSupply, cap)
		}
	}
	return nil
}

// applyCurrentSupplyDeltas mutates basket.CollateralTypes' CurrentSupply
// fields in place.
func applyCurrentSupplyDeltas(basket *types.Basket, deltaAssets cdptypes.AssetList) {
	for _, delta := range deltaAssets {
		for i := range basket.CollateralTypes {
			if basket.CollateralTypes[i].Asset.Equal(delta.Info) {
				basket.CollateralTypes[i].CurrentSupply = basket.CollateralTypes[i].CurrentSupply.Add(delta.Amount)
			}
		}
	}
}

// OpenOrDeposit accretes into an existing position or creates a new one,
// per spec.md §6 Deposit / §4.B open_or_deposit.
func (k Keeper) OpenOrDeposit(ctx sdk.Context, basketID uint64, owner string, positionID *uint64, assets cdptypes.AssetList) (types.Position, error) {
	basket, found := k.GetBasket(ctx, basketID)
	if !found {
		return types.Position{}, types.ErrBasketNotFound
	}
	if basket.Frozen {
		return types.Position{}, types.ErrBasketFrozen
	}
	for _, a := range assets {
		if _, ok := basket.FindCAsset(a.Info); !ok {
			return types.Position{}, fmt.Errorf("%w: %s", types.ErrInvalidAsset, a.Info)
		}
	}

	var position types.Position
	if positionID != nil {
		p, ok := k.GetPosition(ctx, basketID, owner, *positionID)
		if !ok {
			return types.Position{}, types.ErrPositionNotFound
		}
		position = p
	} else {
		basket.CurrentPositionID++
		position = types.Position{
			ID:              basket.CurrentPositionID,
			BasketID:        basketID,
			Owner:           owner,
			CreditAmount:    cdptypes.ZeroDec(),
			LastAccruedTime: ctx.BlockTime(),
		}
	}

	if err := k.accrue(ctx, &basket, &position); err != nil {
		return types.Position{}, err
	}

	if err := k.checkSupplyCaps(basket, assets); err != nil {
		return types.Position{}, err
	}

	for _, a := range assets {
		position.CollateralAssets = position.CollateralAssets.Add(a.Info, a.Amount)
	}
	applyCurrentSupplyDeltas(&basket, assets)

	if err := k.SetBasket(ctx, basket); err != nil {
		return types.Position{}, err
	}
	if err := k.SetPosition(ctx, position); err != nil {
		return types.Position{}, err
	}

	ctx.EventManager().EmitEvent(sdk.NewEvent(
		"position_deposit",
		sdk.NewAttribute("basket_id", fmt.Sprintf("%d", basketID)),
		sdk.NewAttribute("position_id", fmt.Sprintf("%d", position.ID)),
		sdk.NewAttribute("owner", owner),
	))
	return position, nil
}

// Withdraw releases collateral, requiring the post-state to be solvent
// at max_borrow_LTV, per spec.md §4.B/§6.
func (k Keeper) Withdraw(ctx sdk.Context, basketID uint64, owner string, positionID uint64, assets cdptypes.AssetList, prices map[string]cdptypes.Dec) (types.Position, error) {
	basket, found := k.GetBasket(ctx, basketID)
	if !found {
		return types.Position{}, types.ErrBasketNotFound
	}
	position, found := k.GetPosition(ctx, basketID, owner, positionID)
	if !found {
		return types.Position{}, types.ErrPositionNotFound
	}
	if err := k.accrue(ctx, &basket, &position); err != nil {
		return types.Position{}, err
	}

	remaining := position.CollateralAssets
	for _, a := range assets {
		next, err := remaining.Sub(a.Info, a.Amount)
		if err != nil {
			return types.Position{}, fmt.Errorf("%w: %v", types.ErrInvalidWithdrawal, err)
		}
		remaining = next
	}
	position.CollateralAssets = remaining

	if !position.CreditAmount.IsZero() {
		if err := k.checkPricesFresh(ctx, position.CollateralAssets); err != nil {
			return types.Position{}, err
		}
		solvent, err := position.IsSolvent(basket, prices, false, false)
		if err != nil {
			return types.Position{}, err
		}
		if !solvent {
			return types.Position{}, types.ErrPositionInsolvent
		}
	}

	negated := make(cdptypes.AssetList, len(assets))
	for i, a := range assets {
		negated[i] = cdptypes.NewAsset(a.Info, a.Amount.Neg())
	}
	applyCurrentSupplyDeltas(&basket, negated)

	if err := k.SetBasket(ctx, basket); err != nil {
		return types.Position{}, err
	}
	if position.IsEmpty() {
		k.DeletePosition(ctx, position)
	} else if err := k.SetPosition(ctx, position); err != nil {
		return types.Position{}, err
	}

	ctx.EventManager().EmitEvent(sdk.NewEvent(
		"position_withdraw",
		sdk.NewAttribute("basket_id", fmt.Sprintf("%d", basketID)),
		sdk.NewAttribute("position_id", fmt.Sprintf("%d", positionID)),
	))
	return position, nil
}

// IncreaseDebt mints credit_amount, enforcing spec.md §4.B's four
// preconditions.
func (k Keeper) IncreaseDebt(ctx sdk.Context, basketID uint64, owner string, positionID uint64, amount cdptypes.Dec, prices map[string]cdptypes.Dec) (types.Position, error) {
	basket, found := k.GetBasket(ctx, basketID)
	if !found {
		return types.Position{}, types.ErrBasketNotFound
	}
	if basket.Frozen {
		return types.Position{}, types.ErrBasketFrozen
	}
	position, found := k.GetPosition(ctx, basketID, owner, positionID)
	if !found {
		return types.Position{}, types.ErrPositionNotFound
	}
	if err := k.accrue(ctx, &basket, &position); err != nil {
		return types.Position{}, err
	}

	if err := k.checkPricesFresh(ctx, position.CollateralAssets); err != nil {
		return types.Position{}, err
	}

	position.CreditAmount = position.CreditAmount.Add(amount)

	solvent, err := position.IsSolvent(basket, prices, false, true)
	if err != nil {
		return types.Position{}, err
	}
	if !solvent {
		return types.Position{}, types.ErrPositionInsolvent
	}

	params := k.GetParams(ctx)
	if position.CreditAmount.LT(params.DebtMinimum) {
		return types.Position{}, types.ErrMinimumDebt
	}

	newTotalDebt := basket.TotalDebt.Add(amount)
	if newTotalDebt.GT(basket.DebtCap()) {
		return types.Position{}, fmt.Errorf("%w: basket debt cap", types.ErrCapExceeded)
	}
	basket.TotalDebt = newTotalDebt

	if err := k.SetBasket(ctx, basket); err != nil {
		return types.Position{}, err
	}
	if err := k.SetPosition(ctx, position); err != nil {
		return types.Position{}, err
	}

	ctx.EventManager().EmitEvent(sdk.NewEvent(
		"position_increase_debt",
		sdk.NewAttribute("basket_id", fmt.Sprintf("%d", basketID)),
		sdk.NewAttribute("position_id", fmt.Sprintf("%d", positionID)),
		sdk.NewAttribute("amount", amount.String()),
	))
	return position, nil
}

// Repay decreases credit_amount, enforcing the dust-free invariant.
func (k Keeper) Repay(ctx sdk.Context, basketID uint64, owner string, positionID uint64, amount cdptypes.Dec) (types.Position, cdptypes.Dec, error) {
	basket, found := k.GetBasket(ctx, basketID)
	if !found {
		return types.Position{}, cdptypes.Dec{}, types.ErrBasketNotFound
	}
	position, found := k.GetPosition(ctx, basketID, owner, positionID)
	if !found {
		return types.Position{}, cdptypes.Dec{}, types.ErrPositionNotFound
	}
	if err := k.accrue(ctx, &basket, &position); err != nil {
		return types.Position{}, cdptypes.Dec{}, err
	}

	applied := amount
	excess := cdptypes.ZeroDec()
	if applied.GT(position.CreditAmount) {
		excess = applied.Sub(position.CreditAmount)
		applied = position.CreditAmount
	}

	position.CreditAmount = position.CreditAmount.Sub(applied)
	params := k.GetParams(ctx)
	if !position.CreditAmount.IsZero() && position.CreditAmount.LT(params.DebtMinimum) {
		return types.Position{}, cdptypes.Dec{}, types.ErrMinimumDebt
	}

	basket.TotalDebt = basket.TotalDebt.Sub(applied)
	if basket.TotalDebt.IsNegative() {
		basket.TotalDebt = cdptypes.ZeroDec()
	}

	if err := k.SetBasket(ctx, basket); err != nil {
		return types.Position{}, cdptypes.Dec{}, err
	}
	if position.IsEmpty() {
		k.DeletePosition(ctx, position)
	} else if err := k.SetPosition(ctx, position); err != nil {
		return types.Position{}, cdptypes.Dec{}, err
	}

	ctx.EventManager().EmitEvent(sdk.NewEvent(
		"position_repay",
		sdk.NewAttribute("basket_id", fmt.Sprintf("%d", basketID)),
		sdk.NewAttribute("position_id", fmt.Sprintf("%d", positionID)),
		sdk.NewAttribute("amount", applied.String()),
	))
	return position, excess, nil
}

// CreditRevenue appends a provenance-tracked credit to the basket's
// pending_revenue. Its caller is x/liquidation's fee carve-out; interest
// accrual (x/interest AccruePosition) updates pending_revenue and the
// ledger on the basket directly instead.
func (k Keeper) CreditRevenue(ctx sdk.Context, basketID uint64, amount cdptypes.Dec, source string) error {
	basket, found := k.GetBasket(ctx, basketID)
	if !found {
		return types.ErrBasketNotFound
	}
	basket.PendingRevenue = basket.PendingRevenue.Add(amount)
	basket.RevenueLedger = append(basket.RevenueLedger, types.RevenueEntry{
		Time:   ctx.BlockTime(),
		Amount: amount,
		Source: source,
	})
	return k.SetBasket(ctx, basket)
}

// MintRevenue draws down pending_revenue, per spec.md §6 MintRevenue.
func (k Keeper) MintRevenue(ctx sdk.Context, basketID uint64, amount cdptypes.Dec) error {
	basket, found := k.GetBasket(ctx, basketID)
	if !found {
		return types.ErrBasketNotFound
	}
	if amount.GT(basket.PendingRevenue) {
		return fmt.Errorf("%w: requested amount exceeds pending revenue", types.ErrInvalidBasketEdit)
	}
	basket.PendingRevenue = basket.PendingRevenue.Sub(amount)
	return k.SetBasket(ctx, basket)
}
