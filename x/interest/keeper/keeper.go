package keeper

import (
	"encoding/json"
	"fmt"

	"cosmossdk.io/log"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"

	cdptypes "github.com/sharehodl/cdpcore/types"
	baskettypes "github.com/sharehodl/cdpcore/x/basket/types"
	"github.com/sharehodl/cdpcore/x/interest/types"
)

// Keeper implements the two-clock interest engine (spec.md §4.C): lazy
// per-position borrow-rate accrual, satisfying x/basket/types.InterestKeeper,
// plus the basket-level Credit Peg Controller tick.
type Keeper struct {
	cdc          codec.BinaryCodec
	storeKey     storetypes.StoreKey
	memKey       storetypes.StoreKey
	oracleKeeper types.OracleKeeper
	basketKeeper types.BasketKeeper
}

// NewKeeper creates a new interest Keeper instance.
func NewKeeper(
	cdc codec.BinaryCodec,
	storeKey, memKey storetypes.StoreKey,
	oracleKeeper types.OracleKeeper,
	basketKeeper types.BasketKeeper,
) *Keeper {
	return &Keeper{
		cdc:          cdc,
		storeKey:     storeKey,
		memKey:       memKey,
		oracleKeeper: oracleKeeper,
		basketKeeper: basketKeeper,
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

func (k Keeper) getPegState(ctx sdk.Context, basketID uint64) types.PegState {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.GetPegStateKey(basketID))
	if bz == nil {
		return types.PegState{BasketID: basketID, LastTickTime: ctx.BlockTime()}
	}
	var s types.PegState
	if err := json.Unmarshal(bz, &s); err != nil {
		return types.PegState{BasketID: basketID, LastTickTime: ctx.BlockTime()}
	}
	return s
}

func (k Keeper) setPegState(ctx sdk.Context, s types.PegState) error {
	store := ctx.KVStore(k.storeKey)
	bz, err := json.Marshal(s)
	if err != nil {
		return err
	}
	store.Set(types.GetPegStateKey(s.BasketID), bz)
	return nil
}

// AccruePosition implements x/basket/types.InterestKeeper. It applies
// borrower-rate drift to credit_amount for the elapsed time since the
// position's last_accrued_time, one rate per collateral held, and
// credits the accrued amount to the basket's pending_revenue. Grounded
// on the teacher's x/lending/keeper/keeper.go:accrueInterest, generalized
// from a single loan rate to a weighted sum across a position's
// collateral mix.
func (k Keeper) AccruePosition(ctx sdk.Context, basket *baskettypes.Basket, position *baskettypes.Position) error {
	now := ctx.BlockTime()
	elapsed := now.Sub(position.LastAccruedTime)
	if elapsed <= 0 || position.CreditAmount.IsZero() {
		position.LastAccruedTime = now
		return nil
	}

	yearFraction := cdptypes.NewDec(int64(elapsed)).Quo(cdptypes.NewDec(int64(oneYear)))

	totalCollateralWeight := cdptypes.ZeroDec()
	for _, a := range position.CollateralAssets {
		totalCollateralWeight = totalCollateralWeight.Add(a.Amount)
	}
	if totalCollateralWeight.IsZero() {
		position.LastAccruedTime = now
		return nil
	}

	blendedRate := cdptypes.ZeroDec()
	for _, a := range position.CollateralAssets {
		cAsset, ok := basket.FindCAsset(a.Info)
		if !ok {
			continue
		}
		utilization := basket.UtilizationForCAsset(a.Info)
		rate := types.BorrowRate(basket.BaseInterestRate, utilization, basket.DesiredDebtCapUtilization, basket.RateSlopeMultiplier)
		weight := a.Amount.Quo(totalCollateralWeight)
		blendedRate = blendedRate.Add(rate.Mul(weight))
	}

	accrued := position.CreditAmount.Mul(blendedRate).Mul(yearFraction)
	if accrued.IsNegative() {
		accrued = cdptypes.ZeroDec()
	}

	position.CreditAmount = position.CreditAmount.Add(accrued)
	position.LastAccruedTime = now
	basket.TotalDebt = basket.TotalDebt.Add(accrued)
	basket.PendingRevenue = basket.PendingRevenue.Add(accrued)
	basket.RevenueLedger = append(basket.RevenueLedger, baskettypes.RevenueEntry{
		Time:   now,
		Amount: accrued,
		Source: "interest",
	})
	return nil
}

// oneYear is the denominator of the annualized rate, in nanoseconds.
const oneYear = 365 * 24 * 60 * 60 * 1_000_000_000

// MaybeRepeg runs the Credit Peg Controller tick for a single basket if
// credit_twap_timeframe has elapsed since its last tick (spec.md
// §4.C(2)). It is the module's EndBlock hook's per-basket unit of work.
func (k Keeper) MaybeRepeg(ctx sdk.Context, basket *baskettypes.Basket) error {
	params := k.GetParams(ctx)
	state := k.getPegState(ctx, basket.ID)
	now := ctx.BlockTime()
	if !state.DueForTick(now, params.CreditTWAPTimeframe) {
		return nil
	}

	quote, err := k.oracleKeeper.GetTWAP(ctx, basket.CreditAsset, params.CreditTWAPTimeframe)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStalePrice, err)
	}

	delta := quote.Price.Sub(basket.CreditPrice.Price)
	if delta.GT(basket.CPCMarginOfError) {
		delta = basket.CPCMarginOfError
	} else if delta.LT(basket.CPCMarginOfError.Neg()) {
		delta = basket.CPCMarginOfError.Neg()
	}

	newPrice := basket.CreditPrice.Price.Add(delta)
	if !basket.NegativeRates && newPrice.LT(cdptypes.OneDec()) {
		newPrice = cdptypes.OneDec()
	}

	basket.CreditPrice.Price = newPrice
	basket.CreditPrice.LastUpdate = now

	state.LastTickTime = now
	if err := k.setPegState(ctx, state); err != nil {
		return err
	}

	k.Logger(ctx).Info("credit peg repegged",
		"basket_id", basket.ID,
		"new_price", newPrice.String(),
		"market_twap", quote.Price.String(),
	)
	return nil
}

// EndBlock sweeps every configured basket for a due repeg tick. Grounded
// on the teacher's x/lending EndBlock→ProcessLoans sweep
// (x/lending/module.go), adapted to call MaybeRepeg per basket instead of
// sweeping every loan — accrual itself stays lazy/per-operation per
// spec.md §4.B, only the peg clock is swept eagerly.
func (k Keeper) EndBlock(ctx sdk.Context) error {
	for _, id := range k.basketKeeper.GetAllBasketIDs(ctx) {
		basket, found := k.basketKeeper.GetBasket(ctx, id)
		if !found {
			continue
		}
		if basket.Frozen {
			continue
		}
		if err := k.MaybeRepeg(ctx, &basket); err != nil {
			k.Logger(ctx).Error("repeg tick failed", "basket_id", id, "error", err)
			continue
		}
		if err := k.basketKeeper.SetBasket(ctx, basket); err != nil {
			k.Logger(ctx).Error("failed to persist repeg", "basket_id", id, "error", err)
		}
	}
	return nil
}
