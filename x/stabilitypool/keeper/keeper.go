package keeper

import (
	"encoding/json"
	"fmt"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"

	cdptypes "github.com/sharehodl/cdpcore/types"
	"github.com/sharehodl/cdpcore/x/stabilitypool/types"
)

// oneYear matches the year-denominator convention used by x/interest's
// accrual clock, kept independent rather than imported to avoid coupling
// two sibling leaf modules over a single constant.
const oneYear = 365 * 24 * time.Hour

// Keeper implements the stability-pool engine (spec.md §4.E): a single
// FIFO deposit queue per credit asset with pro-rata loss distribution,
// incentive accrual and fee-event compounding. Grounded structurally on
// the teacher's x/staking/keeper/rewards.go epoch/incentive bookkeeping
// and x/lending's pool deposit/withdraw pattern.
type Keeper struct {
	cdc      codec.BinaryCodec
	storeKey storetypes.StoreKey
	memKey   storetypes.StoreKey
}

func NewKeeper(cdc codec.BinaryCodec, storeKey, memKey storetypes.StoreKey) *Keeper {
	return &Keeper{cdc: cdc, storeKey: storeKey, memKey: memKey}
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
		return fmt.Errorf("failed to marshal stabilitypool params: %w", err)
	}
	ctx.KVStore(k.storeKey).Set(types.ParamsKey, bz)
	return nil
}

func (k Keeper) GetPool(ctx sdk.Context, creditAssetKey string) (types.Pool, bool) {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.GetPoolKey(creditAssetKey))
	if bz == nil {
		return types.Pool{}, false
	}
	var p types.Pool
	if err := json.Unmarshal(bz, &p); err != nil {
		return types.Pool{}, false
	}
	return p, true
}

func (k Keeper) SetPool(ctx sdk.Context, pool types.Pool) error {
	store := ctx.KVStore(k.storeKey)
	bz, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("failed to marshal stability pool: %w", err)
	}
	store.Set(types.GetPoolKey(pool.CreditAsset.String()), bz)
	return nil
}

// CreatePool initializes an empty pool for a basket's credit asset.
func (k Keeper) CreatePool(ctx sdk.Context, basketID uint64, creditAsset cdptypes.AssetInfo, minimumDeposit, incentiveRate, maxIncentives cdptypes.Dec, unstakingPeriod time.Duration) (types.Pool, error) {
	if _, found := k.GetPool(ctx, creditAsset.String()); found {
		return types.Pool{}, fmt.Errorf("stability pool for %s already exists", creditAsset)
	}
	pool := types.Pool{
		CreditAsset:          creditAsset,
		BasketID:             basketID,
		MinimumDepositAmount: minimumDeposit,
		IncentiveRate:        incentiveRate,
		MaxIncentives:        maxIncentives,
		IncentivesPaid:       cdptypes.ZeroDec(),
		UnstakingPeriod:      unstakingPeriod,
	}
	if err := k.SetPool(ctx, pool); err != nil {
		return types.Pool{}, err
	}
	return pool, nil
}

// accrueIncentives sweeps every deposit, crediting
// stake × incentive_rate × Δt/YEAR since each deposit's own
// last_accrued_time, capped in aggregate by the pool's remaining
// max_incentives budget (spec.md §4.E). A deposit stops accruing at its
// unstake_time and never resumes; interpreting the mutation-triggered
// accrual as a full-pool sweep (rather than only the deposit(s) touched
// by the triggering call) keeps every depositor's accrual current
// regardless of which deposit happens to be mutated next.
func accrueIncentives(pool *types.Pool, now time.Time) {
	for i := range pool.Deposits {
		d := &pool.Deposits[i]
		end := now
		if d.UnstakeTime != nil && d.UnstakeTime.Before(now) {
			end = *d.UnstakeTime
		}
		elapsed := end.Sub(d.LastAccruedTime)
		if elapsed <= 0 {
			continue
		}
		cap := pool.IncentiveRemainingCap()
		if cap.IsZero() {
			d.LastAccruedTime = end
			continue
		}
		accrual := d.Amount.Mul(pool.IncentiveRate).Mul(cdptypes.NewDec(int64(elapsed))).Quo(cdptypes.NewDec(int64(oneYear)))
		if accrual.GT(cap) {
			accrual = cap
		}
		d.IncentivesPaid = d.IncentivesPaid.Add(accrual)
		pool.IncentivesPaid = pool.IncentivesPaid.Add(accrual)
		d.LastAccruedTime = end
	}
}

// Deposit appends a new FIFO-tail deposit for owner.
func (k Keeper) Deposit(ctx sdk.Context, creditAssetKey, owner string, amount cdptypes.Dec) error {
	pool, found := k.GetPool(ctx, creditAssetKey)
	if !found {
		return types.ErrPoolNotFound
	}
	if amount.LT(pool.MinimumDepositAmount) {
		return types.ErrBelowMinimumDeposit
	}
	now := ctx.BlockTime()
	accrueIncentives(&pool, now)

	pool.NextDepositID++
	pool.Deposits = append(pool.Deposits, types.Deposit{
		ID:              pool.NextDepositID,
		Owner:           owner,
		Amount:          amount,
		DepositTime:     now,
		LastAccruedTime: now,
		IncentivesPaid:  cdptypes.ZeroDec(),
	})
	return k.SetPool(ctx, pool)
}

// RequestWithdraw marks amount of owner's stake as unstaking, consuming
// owner's deposits head-first (FIFO) and splitting the first
// partially-consumed deposit in two so the unstaking portion carries its
// own lineage (spec.md §4.E).
func (k Keeper) RequestWithdraw(ctx sdk.Context, creditAssetKey, owner string, amount cdptypes.Dec) error {
	pool, found := k.GetPool(ctx, creditAssetKey)
	if !found {
		return types.ErrPoolNotFound
	}
	now := ctx.BlockTime()
	accrueIncentives(&pool, now)

	remaining := amount
	var out []types.Deposit
	for _, d := range pool.Deposits {
		if remaining.IsZero() || d.Owner != owner || d.IsUnstaking() {
			out = append(out, d)
			continue
		}
		switch {
		case d.Amount.LTE(remaining):
			t := now
			d.UnstakeTime = &t
			remaining = remaining.Sub(d.Amount)
			out = append(out, d)
		default:
			split := remaining
			t := now
			pool.NextDepositID++
			frozen := types.Deposit{
				ID:              pool.NextDepositID,
				Owner:           owner,
				Amount:          split,
				DepositTime:     d.DepositTime,
				LastAccruedTime: d.LastAccruedTime,
				UnstakeTime:     &t,
				IncentivesPaid:  cdptypes.ZeroDec(),
			}
			d.Amount = d.Amount.Sub(split)
			remaining = cdptypes.ZeroDec()
			out = append(out, d, frozen)
		}
	}
	if remaining.IsPositive() {
		return types.ErrInsufficientDeposit
	}
	pool.Deposits = out
	return k.SetPool(ctx, pool)
}

// CompleteWithdraw sends every deposit of owner's whose unstaking_period
// has elapsed. Any residual deposit of owner left below
// minimum_deposit_amount is swept into the same withdrawal rather than
// stranded below the floor (spec.md §4.E).
func (k Keeper) CompleteWithdraw(ctx sdk.Context, creditAssetKey, owner string) (cdptypes.Asset, error) {
	pool, found := k.GetPool(ctx, creditAssetKey)
	if !found {
		return cdptypes.Asset{}, types.ErrPoolNotFound
	}
	now := ctx.BlockTime()
	accrueIncentives(&pool, now)

	withdrawn := cdptypes.ZeroDec()
	var out []types.Deposit
	for _, d := range pool.Deposits {
		if d.Owner == owner && d.IsUnstaking() && !now.Before(d.UnstakeTime.Add(pool.UnstakingPeriod)) {
			withdrawn = withdrawn.Add(d.Amount)
			continue
		}
		out = append(out, d)
	}
	if withdrawn.IsZero() {
		return cdptypes.Asset{}, types.ErrStillUnstaking
	}

	var final []types.Deposit
	for _, d := range out {
		if d.Owner == owner && !d.IsUnstaking() && d.Amount.IsPositive() && d.Amount.LT(pool.MinimumDepositAmount) {
			withdrawn = withdrawn.Add(d.Amount)
			continue
		}
		final = append(final, d)
	}
	pool.Deposits = final
	if err := k.SetPool(ctx, pool); err != nil {
		return cdptypes.Asset{}, err
	}
	return cdptypes.NewAsset(pool.CreditAsset, withdrawn), nil
}

// WithdrawImmediate bypasses the unstaking timer entirely, consuming
// owner's deposits head-first and returning the asset straight away.
// Reserved for orchestrator-driven calls (e.g. Repay's stability-pool
// leg) that spec.md §4.E's skip_unstaking path exists for.
func (k Keeper) WithdrawImmediate(ctx sdk.Context, creditAssetKey, owner string, amount cdptypes.Dec) (cdptypes.Asset, error) {
	pool, found := k.GetPool(ctx, creditAssetKey)
	if !found {
		return cdptypes.Asset{}, types.ErrPoolNotFound
	}
	now := ctx.BlockTime()
	accrueIncentives(&pool, now)

	remaining := amount
	var out []types.Deposit
	for _, d := range pool.Deposits {
		if remaining.IsZero() || d.Owner != owner || d.IsUnstaking() {
			out = append(out, d)
			continue
		}
		if d.Amount.LTE(remaining) {
			remaining = remaining.Sub(d.Amount)
			continue
		}
		d.Amount = d.Amount.Sub(remaining)
		remaining = cdptypes.ZeroDec()
		out = append(out, d)
	}
	if remaining.IsPositive() {
		return cdptypes.Asset{}, types.ErrInsufficientDeposit
	}
	pool.Deposits = out
	if err := k.SetPool(ctx, pool); err != nil {
		return cdptypes.Asset{}, err
	}
	return cdptypes.NewAsset(pool.CreditAsset, amount), nil
}

// Restake reverses up to amount of owner's unstaking deposits head-first,
// stamping a fresh deposit_time (forfeiting eligibility for any fee event
// recorded before now, per spec.md §4.E).
func (k Keeper) Restake(ctx sdk.Context, creditAssetKey, owner string, amount cdptypes.Dec) error {
	pool, found := k.GetPool(ctx, creditAssetKey)
	if !found {
		return types.ErrPoolNotFound
	}
	now := ctx.BlockTime()
	accrueIncentives(&pool, now)

	remaining := amount
	var out []types.Deposit
	for _, d := range pool.Deposits {
		if remaining.IsZero() || d.Owner != owner || !d.IsUnstaking() {
			out = append(out, d)
			continue
		}
		switch {
		case d.Amount.LTE(remaining):
			remaining = remaining.Sub(d.Amount)
			d.UnstakeTime = nil
			d.DepositTime = now
			d.LastAccruedTime = now
			out = append(out, d)
		default:
			pool.NextDepositID++
			restaked := types.Deposit{
				ID:              pool.NextDepositID,
				Owner:           owner,
				Amount:          remaining,
				DepositTime:     now,
				LastAccruedTime: now,
				IncentivesPaid:  cdptypes.ZeroDec(),
			}
			d.Amount = d.Amount.Sub(remaining)
			remaining = cdptypes.ZeroDec()
			out = append(out, d, restaked)
		}
	}
	if remaining.IsPositive() {
		return types.ErrNotUnstaking
	}
	pool.Deposits = out
	return k.SetPool(ctx, pool)
}

// Liquidate consumes creditAmount of stake head-first across every
// deposit (unstaking or not — unstaking deposits remain liquidatable
// until withdrawn), records which deposits were touched in
// PendingConsumption for the following Distribute call, and returns
// whatever portion the pool could not cover (spec.md §4.E / §4.F).
func (k Keeper) Liquidate(ctx sdk.Context, creditAssetKey string, creditAmount cdptypes.Dec) (leftover cdptypes.Dec, err error) {
	pool, found := k.GetPool(ctx, creditAssetKey)
	if !found {
		return cdptypes.ZeroDec(), types.ErrPoolNotFound
	}

	remaining := creditAmount
	var consumed []types.ConsumedEntry
	var out []types.Deposit
	for _, d := range pool.Deposits {
		if remaining.IsZero() || d.Amount.IsZero() {
			if !d.Amount.IsZero() {
				out = append(out, d)
			}
			continue
		}
		take := d.Amount
		if take.GT(remaining) {
			take = remaining
		}
		d.Amount = d.Amount.Sub(take)
		remaining = remaining.Sub(take)
		consumed = append(consumed, types.ConsumedEntry{DepositID: d.ID, Owner: d.Owner, AmountConsumed: take})
		if d.Amount.IsPositive() {
			out = append(out, d)
		}
	}
	pool.Deposits = out
	pool.PendingConsumption = consumed
	if err := k.SetPool(ctx, pool); err != nil {
		return cdptypes.ZeroDec(), err
	}
	return remaining, nil
}

// Distribute replays the PendingConsumption list left by the preceding
// Liquidate call, crediting each touched depositor a pro-rata share of
// every released asset into their claimable balance. Distribution is
// sequential by collateral (each asset's full amount is split across the
// consumption list on its own), not cross-asset pro-rata (spec.md §4.E).
func (k Keeper) Distribute(ctx sdk.Context, creditAssetKey string, releasedCollateral cdptypes.AssetList) (map[string]cdptypes.AssetList, error) {
	pool, found := k.GetPool(ctx, creditAssetKey)
	if !found {
		return nil, types.ErrPoolNotFound
	}
	if len(pool.PendingConsumption) == 0 {
		return nil, fmt.Errorf("no pending consumption to distribute")
	}

	totalConsumed := cdptypes.ZeroDec()
	for _, c := range pool.PendingConsumption {
		totalConsumed = totalConsumed.Add(c.AmountConsumed)
	}
	claims := make(map[string]cdptypes.AssetList)
	if totalConsumed.IsPositive() {
		for _, asset := range releasedCollateral {
			for _, c := range pool.PendingConsumption {
				share := c.AmountConsumed.Quo(totalConsumed)
				amt := asset.Amount.Mul(share)
				if amt.IsZero() {
					continue
				}
				claims[c.Owner] = claims[c.Owner].Add(asset.Info, amt)
			}
		}
	}
	for owner, assets := range claims {
		balance := k.getClaimable(ctx, creditAssetKey, owner)
		for _, a := range assets {
			balance.Assets = balance.Assets.Add(a.Info, a.Amount)
		}
		balance.Owner = owner
		if err := k.setClaimable(ctx, creditAssetKey, balance); err != nil {
			return nil, err
		}
	}
	pool.PendingConsumption = nil
	if err := k.SetPool(ctx, pool); err != nil {
		return nil, err
	}
	return claims, nil
}

func (k Keeper) getClaimable(ctx sdk.Context, creditAssetKey, owner string) types.ClaimableBalance {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.GetClaimableKey(creditAssetKey, owner))
	if bz == nil {
		return types.ClaimableBalance{Owner: owner}
	}
	var b types.ClaimableBalance
	if err := json.Unmarshal(bz, &b); err != nil {
		return types.ClaimableBalance{Owner: owner}
	}
	return b
}

func (k Keeper) setClaimable(ctx sdk.Context, creditAssetKey string, balance types.ClaimableBalance) error {
	bz, err := json.Marshal(balance)
	if err != nil {
		return fmt.Errorf("failed to marshal claimable balance: %w", err)
	}
	ctx.KVStore(k.storeKey).Set(types.GetClaimableKey(creditAssetKey, balance.Owner), bz)
	return nil
}

// GetClaimable returns owner's withdrawable collateral bundle accrued
// from past Distribute calls.
func (k Keeper) GetClaimable(ctx sdk.Context, creditAssetKey, owner string) types.ClaimableBalance {
	return k.getClaimable(ctx, creditAssetKey, owner)
}

// ClaimAll zeroes owner's claimable balance and returns what it held, for
// the caller to send from the module account.
func (k Keeper) ClaimAll(ctx sdk.Context, creditAssetKey, owner string) (cdptypes.AssetList, error) {
	balance := k.getClaimable(ctx, creditAssetKey, owner)
	if balance.Assets.IsZero() {
		return nil, nil
	}
	assets := balance.Assets
	if err := k.setClaimable(ctx, creditAssetKey, types.ClaimableBalance{Owner: owner}); err != nil {
		return nil, err
	}
	return assets, nil
}

// DepositFee appends an interest-revenue credit to the pool's outstanding
// fee queue, awaiting CompoundFee.
func (k Keeper) DepositFee(ctx sdk.Context, creditAssetKey string, amount cdptypes.Dec) error {
	pool, found := k.GetPool(ctx, creditAssetKey)
	if !found {
		return types.ErrPoolNotFound
	}
	pool.OutstandingFees = append(pool.OutstandingFees, types.FeeEvent{Time: ctx.BlockTime(), Amount: amount})
	return k.SetPool(ctx, pool)
}

// floorTo6 truncates d to 6 fractional digits, the compounding routine's
// rounding floor — any remainder below that is discarded rather than
// accumulated, matching spec.md §4.E's "residuals are discarded, never
// carried forward".
func floorTo6(d cdptypes.Dec) cdptypes.Dec {
	scale := math.LegacyNewDec(1_000_000)
	return d.Mul(scale).TruncateDec().Quo(scale)
}

// CompoundFee folds outstanding fee events into depositor balances,
// oldest event first. Each event is distributed pro-rata, floor-rounded,
// across the prefix of deposits whose deposit_time is at or before the event
// (spec.md §4.E); an event with no eligible depositor is simply dropped,
// since nobody was present to earn it. maxEvents bounds how many events a
// single call processes; 0 means unbounded.
func (k Keeper) CompoundFee(ctx sdk.Context, creditAssetKey string, maxEvents int) error {
	pool, found := k.GetPool(ctx, creditAssetKey)
	if !found {
		return types.ErrPoolNotFound
	}
	if len(pool.OutstandingFees) == 0 {
		return types.ErrNoFees
	}

	n := len(pool.OutstandingFees)
	if maxEvents > 0 && maxEvents < n {
		n = maxEvents
	}
	for i := 0; i < n; i++ {
		event := pool.OutstandingFees[i]
		prefixTotal := cdptypes.ZeroDec()
		var idxs []int
		for j, d := range pool.Deposits {
			if !d.DepositTime.After(event.Time) {
				idxs = append(idxs, j)
				prefixTotal = prefixTotal.Add(d.Amount)
			}
		}
		if prefixTotal.IsZero() {
			continue
		}
		for _, j := range idxs {
			share := pool.Deposits[j].Amount.Quo(prefixTotal)
			credited := floorTo6(event.Amount.Mul(share))
			pool.Deposits[j].Amount = pool.Deposits[j].Amount.Add(credited)
		}
	}
	pool.OutstandingFees = pool.OutstandingFees[n:]
	return k.SetPool(ctx, pool)
}

// PoolTotalStaked reports a pool's current total stake, used by the
// liquidation orchestrator's route-planning step without needing to know
// the Pool struct's shape.
func (k Keeper) PoolTotalStaked(ctx sdk.Context, creditAssetKey string) (cdptypes.Dec, bool) {
	pool, found := k.GetPool(ctx, creditAssetKey)
	if !found {
		return cdptypes.ZeroDec(), false
	}
	return pool.TotalStaked(), true
}

// GetOwnerDeposits returns every deposit belonging to owner, in FIFO
// order.
func (k Keeper) GetOwnerDeposits(ctx sdk.Context, creditAssetKey, owner string) ([]types.Deposit, error) {
	pool, found := k.GetPool(ctx, creditAssetKey)
	if !found {
		return nil, types.ErrPoolNotFound
	}
	var out []types.Deposit
	for _, d := range pool.Deposits {
		if d.Owner == owner {
			out = append(out, d)
		}
	}
	return out, nil
}
