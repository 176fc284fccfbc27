package keeper

import (
	"encoding/json"
	"fmt"

	"cosmossdk.io/log"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"

	cdptypes "github.com/sharehodl/cdpcore/types"
	"github.com/sharehodl/cdpcore/x/vault/types"
)

// Keeper implements the stability vault (spec.md §4.H): a leveraged
// wrapper over a single CDP position that loops/unloops collateral
// through mint→swap→redeposit and withdraw→swap→repay, keeping a
// withdrawal-buffer fraction outside the loop. Grounded structurally on
// x/lending.updatePoolRates's ratio-recompute-and-compare pattern,
// generalized here into a pre/post rate-assurance hook around Loop and
// Unloop.
type Keeper struct {
	cdc      codec.BinaryCodec
	storeKey storetypes.StoreKey
	memKey   storetypes.StoreKey

	basketKeeper types.BasketKeeper
	oracleKeeper types.OracleKeeper
	swapKeeper   types.SwapKeeper
}

func NewKeeper(
	cdc codec.BinaryCodec,
	storeKey, memKey storetypes.StoreKey,
	basketKeeper types.BasketKeeper,
	oracleKeeper types.OracleKeeper,
	swapKeeper types.SwapKeeper,
) *Keeper {
	return &Keeper{
		cdc: cdc, storeKey: storeKey, memKey: memKey,
		basketKeeper: basketKeeper, oracleKeeper: oracleKeeper, swapKeeper: swapKeeper,
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
		return fmt.Errorf("failed to marshal vault params: %w", err)
	}
	ctx.KVStore(k.storeKey).Set(types.ParamsKey, bz)
	return nil
}

func (k Keeper) getNextVaultID(ctx sdk.Context) uint64 {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.VaultCounterKey)
	var id uint64
	if bz != nil {
		id = sdk.BigEndianToUint64(bz)
	}
	id++
	store.Set(types.VaultCounterKey, sdk.Uint64ToBigEndian(id))
	return id
}

func (k Keeper) GetVault(ctx sdk.Context, id uint64) (types.Vault, bool) {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.GetVaultKey(id))
	if bz == nil {
		return types.Vault{}, false
	}
	var v types.Vault
	if err := json.Unmarshal(bz, &v); err != nil {
		return types.Vault{}, false
	}
	return v, true
}

func (k Keeper) SetVault(ctx sdk.Context, v types.Vault) error {
	bz, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal vault: %w", err)
	}
	store := ctx.KVStore(k.storeKey)
	store.Set(types.GetVaultKey(v.ID), bz)
	store.Set(types.GetOwnerVaultKey(v.BasketID, v.Owner), sdk.Uint64ToBigEndian(v.ID))
	return nil
}

// GetOwnerVault returns the vault an owner already holds against a
// basket, since spec.md §4.H wraps "a single CDP position" per vault.
func (k Keeper) GetOwnerVault(ctx sdk.Context, basketID uint64, owner string) (types.Vault, bool) {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.GetOwnerVaultKey(basketID, owner))
	if bz == nil {
		return types.Vault{}, false
	}
	return k.GetVault(ctx, sdk.BigEndianToUint64(bz))
}

// baseTokensHeld returns the collateral amount the wrapped position
// currently holds plus whatever sits in the withdrawal buffer outside
// the loop — the numerator of base_tokens_per_one_vault_token.
func (k Keeper) baseTokensHeld(ctx sdk.Context, v types.Vault) (cdptypes.Dec, error) {
	position, found := k.basketKeeper.GetPosition(ctx, v.BasketID, v.Owner, v.PositionID)
	if !found {
		return cdptypes.ZeroDec(), nil
	}
	held := cdptypes.ZeroDec()
	if c, ok := position.CollateralAssets.Find(v.CollateralAsset); ok {
		held = c.Amount
	}
	return held.Add(v.BufferedBaseTokens), nil
}

// rateAssurance returns base_tokens_per_one_vault_token for a vault.
// Zero for an empty vault (no tokens minted yet).
func (k Keeper) rateAssurance(ctx sdk.Context, v types.Vault) (cdptypes.Dec, error) {
	if v.VaultTokenSupply.IsZero() {
		return cdptypes.ZeroDec(), nil
	}
	held, err := k.baseTokensHeld(ctx, v)
	if err != nil {
		return cdptypes.Dec{}, err
	}
	return held.Quo(v.VaultTokenSupply), nil
}

// assertRateUnchanged implements spec.md §4.H's rate-assurance
// invariant: base_tokens_per_one_vault_token must not move across a
// Loop/Unloop call. Division introduces rounding, so equality is
// checked to within a small fixed tolerance rather than exactly,
// mirroring x/lending.updatePoolRates's recompute-and-compare shape.
func assertRateUnchanged(before, after cdptypes.Dec) error {
	tolerance := cdptypes.MustNewDecFromStr("0.000001")
	diff := before.Sub(after)
	if diff.IsNegative() {
		diff = diff.Neg()
	}
	if diff.GT(tolerance) {
		return fmt.Errorf("%w: %s before, %s after", types.ErrRateAssuranceViolated, before, after)
	}
	return nil
}

// mintableDebt implements spec.md §4.H's loop sizing formula:
// collateral_value × (target_LTV − current_LTV), capped at min_debt_gap
// (spec.md: 101 credit units) per mint. Interpreted literally as
// min(computed, min_debt_gap) rather than a true debt-cap headroom gap,
// since spec.md names no other quantity as the "minimum-debt gap" to
// cap against.
func mintableDebt(collateralValue, currentLTV cdptypes.Dec, params types.Params) cdptypes.Dec {
	headroom := params.TargetLTV.Sub(currentLTV)
	if !headroom.IsPositive() {
		return cdptypes.ZeroDec()
	}
	mintable := collateralValue.Mul(headroom)
	if mintable.GT(params.MinDebtGap) {
		mintable = params.MinDebtGap
	}
	return mintable
}

func computeLTV(debt, collateralValue cdptypes.Dec) cdptypes.Dec {
	if !collateralValue.IsPositive() {
		return cdptypes.ZeroDec()
	}
	return debt.Quo(collateralValue)
}

// newVault creates a new empty vault record for (basketID, owner).
func (k Keeper) newVault(ctx sdk.Context, basketID uint64, owner string, collateralAsset cdptypes.AssetInfo) types.Vault {
	return types.Vault{
		ID:                 k.getNextVaultID(ctx),
		BasketID:           basketID,
		Owner:              owner,
		CollateralAsset:    collateralAsset,
		VaultTokenSupply:   cdptypes.ZeroDec(),
		BufferedBaseTokens: cdptypes.ZeroDec(),
		CreatedAt:          ctx.BlockTime(),
	}
}

// Loop implements spec.md §4.H's deposit path: deposit base collateral
// (minus a withdrawal_buffer_ratio share held outside the loop), mint
// credit against the resulting position up to target_LTV capped at
// min_debt_gap, swap the credit back for collateral, and redeposit.
// Vault tokens are minted proportional to the pre-deposit
// base_tokens_per_one_vault_token rate, which the rate-assurance check
// then confirms is unchanged by the mint→swap→deposit sequence.
func (k Keeper) Loop(ctx sdk.Context, basketID uint64, owner string, baseAmount cdptypes.Dec) (uint64, cdptypes.Dec, error) {
	basket, found := k.basketKeeper.GetBasket(ctx, basketID)
	if !found {
		return 0, cdptypes.Dec{}, types.ErrVaultNotFound
	}
	if len(basket.CollateralTypes) == 0 {
		return 0, cdptypes.Dec{}, types.ErrVaultNotFound
	}
	params := k.GetParams(ctx)

	quote, err := k.oracleKeeper.GetTWAP(ctx, basket.CreditAsset, 0)
	if err != nil {
		return 0, cdptypes.Dec{}, err
	}
	floor := basket.CreditPrice.Price.Mul(params.LoopPriceFloorRatio).Add(params.SwapSlippage)
	if quote.Price.LT(floor) {
		return 0, cdptypes.Dec{}, types.ErrLoopPriceTooLow
	}

	v, exists := k.GetOwnerVault(ctx, basketID, owner)
	if !exists {
		v = k.newVault(ctx, basketID, owner, basket.CollateralTypes[0].Asset)
	}
	beforeRate, err := k.rateAssurance(ctx, v)
	if err != nil {
		return 0, cdptypes.Dec{}, err
	}

	bufferCut := baseAmount.Mul(params.WithdrawalBufferRatio)
	loopAmount := baseAmount.Sub(bufferCut)

	var posID *uint64
	if exists {
		posID = &v.PositionID
	}
	depositAssets := cdptypes.AssetList{}.Add(v.CollateralAsset, loopAmount)
	position, err := k.basketKeeper.OpenOrDeposit(ctx, basketID, owner, posID, depositAssets)
	if err != nil {
		return 0, cdptypes.Dec{}, err
	}
	v.PositionID = position.ID

	prices := map[string]cdptypes.Dec{v.CollateralAsset.String(): quote.Price}
	collateralValue, err := position.WeightedCollateralValue(basket, prices, false)
	if err != nil {
		return 0, cdptypes.Dec{}, err
	}
	ltv := computeLTV(position.CreditAmount.Mul(basket.CreditPrice.Price), collateralValue)
	mintAmount := mintableDebt(collateralValue, ltv, params)

	if mintAmount.IsPositive() {
		if _, err := k.basketKeeper.IncreaseDebt(ctx, basketID, owner, v.PositionID, mintAmount, prices); err != nil {
			return 0, cdptypes.Dec{}, err
		}
		swapped, err := k.swapKeeper.Swap(ctx, basket.CreditAsset, mintAmount, v.CollateralAsset)
		if err != nil {
			return 0, cdptypes.Dec{}, err
		}
		if _, err := k.basketKeeper.OpenOrDeposit(ctx, basketID, owner, &v.PositionID, cdptypes.AssetList{}.Add(v.CollateralAsset, swapped)); err != nil {
			return 0, cdptypes.Dec{}, err
		}
	}

	v.BufferedBaseTokens = v.BufferedBaseTokens.Add(bufferCut)

	var minted cdptypes.Dec
	if beforeRate.IsZero() {
		// First deposit into this vault (or a fully-drained one): seed the
		// exchange rate at 1 base token per vault token.
		minted = baseAmount
	} else {
		minted = baseAmount.Quo(beforeRate)
	}
	v.VaultTokenSupply = v.VaultTokenSupply.Add(minted)

	if err := k.SetVault(ctx, v); err != nil {
		return 0, cdptypes.Dec{}, err
	}

	if !beforeRate.IsZero() {
		afterRate, err := k.rateAssurance(ctx, v)
		if err != nil {
			return 0, cdptypes.Dec{}, err
		}
		if err := assertRateUnchanged(beforeRate, afterRate); err != nil {
			return 0, cdptypes.Dec{}, err
		}
	}

	return v.ID, minted, nil
}

// Unloop implements spec.md §4.H's withdraw path: burn vault tokens,
// withdraw the corresponding pro-rata share of looped collateral and of
// the withdrawal buffer, swap the looped share back for credit, repay
// the wrapped position's debt, and swap any credit left over after
// repayment back into collateral for the withdrawer.
func (k Keeper) Unloop(ctx sdk.Context, basketID uint64, owner string, vaultTokenAmount cdptypes.Dec) (cdptypes.Dec, error) {
	v, found := k.GetOwnerVault(ctx, basketID, owner)
	if !found {
		return cdptypes.Dec{}, types.ErrVaultNotFound
	}
	if vaultTokenAmount.GT(v.VaultTokenSupply) {
		return cdptypes.Dec{}, types.ErrInsufficientVaultShare
	}
	basket, found := k.basketKeeper.GetBasket(ctx, basketID)
	if !found {
		return cdptypes.Dec{}, types.ErrVaultNotFound
	}
	params := k.GetParams(ctx)

	quote, err := k.oracleKeeper.GetTWAP(ctx, basket.CreditAsset, 0)
	if err != nil {
		return cdptypes.Dec{}, err
	}
	ceiling := basket.CreditPrice.Price.Mul(params.UnloopPriceCeilingRatio)
	if quote.Price.GT(ceiling) {
		return cdptypes.Dec{}, types.ErrUnloopPriceTooHigh
	}

	beforeRate, err := k.rateAssurance(ctx, v)
	if err != nil {
		return cdptypes.Dec{}, err
	}

	share := vaultTokenAmount.Quo(v.VaultTokenSupply)
	bufferShare := v.BufferedBaseTokens.Mul(share)

	position, found := k.basketKeeper.GetPosition(ctx, basketID, owner, v.PositionID)
	if !found {
		return cdptypes.Dec{}, types.ErrVaultNotFound
	}
	collateral, ok := position.CollateralAssets.Find(v.CollateralAsset)
	if !ok {
		return cdptypes.Dec{}, types.ErrVaultNotFound
	}
	withdrawAmount := collateral.Amount.Mul(share)

	prices := map[string]cdptypes.Dec{v.CollateralAsset.String(): quote.Price}
	position, err = k.basketKeeper.Withdraw(ctx, basketID, owner, v.PositionID, cdptypes.AssetList{}.Add(v.CollateralAsset, withdrawAmount), prices)
	if err != nil {
		return cdptypes.Dec{}, err
	}

	credit, err := k.swapKeeper.Swap(ctx, v.CollateralAsset, withdrawAmount, basket.CreditAsset)
	if err != nil {
		return cdptypes.Dec{}, err
	}
	repayAmount := credit
	if repayAmount.GT(position.CreditAmount) {
		repayAmount = position.CreditAmount
	}
	leftoverCredit := credit.Sub(repayAmount)
	if repayAmount.IsPositive() {
		if _, _, err := k.basketKeeper.Repay(ctx, basketID, owner, v.PositionID, repayAmount); err != nil {
			return cdptypes.Dec{}, err
		}
	}

	returned := bufferShare
	if leftoverCredit.IsPositive() {
		backToCollateral, err := k.swapKeeper.Swap(ctx, basket.CreditAsset, leftoverCredit, v.CollateralAsset)
		if err == nil {
			returned = returned.Add(backToCollateral)
		}
	}

	v.BufferedBaseTokens = v.BufferedBaseTokens.Sub(bufferShare)
	v.VaultTokenSupply = v.VaultTokenSupply.Sub(vaultTokenAmount)
	if err := k.SetVault(ctx, v); err != nil {
		return cdptypes.Dec{}, err
	}

	if v.VaultTokenSupply.IsPositive() {
		afterRate, err := k.rateAssurance(ctx, v)
		if err != nil {
			return cdptypes.Dec{}, err
		}
		if err := assertRateUnchanged(beforeRate, afterRate); err != nil {
			return cdptypes.Dec{}, err
		}
	}

	return returned, nil
}
