package keeper

import (
	"encoding/json"
	"fmt"
	"time"

	"cosmossdk.io/log"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"

	cdptypes "github.com/sharehodl/cdpcore/types"
	"github.com/sharehodl/cdpcore/x/governance/types"
)

// Keeper implements governance core (spec.md §4.G): a single active-
// proposal queue plus a pending-proposal queue gated by an alignment
// threshold, quadratic delegated voting power, and a dry-run-gated
// execution path. Structurally grounded on this repo's other keepers
// (storeKey/memKey CRUD, JSON-marshaled records, cosmossdk.io/errors
// sentinels) since the teacher's governance module's voting-power logic
// is generic equity/validator bookkeeping with no quadratic-voting
// precedent to adapt (see DESIGN.md).
type Keeper struct {
	cdc          codec.BinaryCodec
	storeKey     storetypes.StoreKey
	memKey       storetypes.StoreKey
	stakeKeeper  types.StakeKeeper
}

func NewKeeper(cdc codec.BinaryCodec, storeKey, memKey storetypes.StoreKey, stakeKeeper types.StakeKeeper) *Keeper {
	return &Keeper{cdc: cdc, storeKey: storeKey, memKey: memKey, stakeKeeper: stakeKeeper}
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

func (k Keeper) SetParams(ctx sdk.Context, p types.Params) error {
	bz, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ctx.KVStore(k.storeKey).Set(types.ParamsKey, bz)
	return nil
}

func (k Keeper) getNextProposalID(ctx sdk.Context) uint64 {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(types.ProposalCounterKey)
	var id uint64
	if bz != nil {
		id = sdk.BigEndianToUint64(bz)
	}
	store.Set(types.ProposalCounterKey, sdk.Uint64ToBigEndian(id+1))
	return id
}

// GetProposal looks up an active/terminal proposal, then a pending one.
func (k Keeper) GetProposal(ctx sdk.Context, id uint64) (types.Proposal, bool) {
	store := ctx.KVStore(k.storeKey)
	if bz := store.Get(types.GetProposalKey(id)); bz != nil {
		var p types.Proposal
		if err := json.Unmarshal(bz, &p); err == nil {
			return p, true
		}
	}
	if bz := store.Get(types.GetPendingProposalKey(id)); bz != nil {
		var p types.Proposal
		if err := json.Unmarshal(bz, &p); err == nil {
			return p, true
		}
	}
	return types.Proposal{}, false
}

func (k Keeper) setProposal(ctx sdk.Context, p types.Proposal) error {
	bz, err := json.Marshal(p)
	if err != nil {
		return err
	}
	store := ctx.KVStore(k.storeKey)
	if p.Status == types.StatusPending {
		store.Delete(types.GetProposalKey(p.ID))
		store.Set(types.GetPendingProposalKey(p.ID), bz)
	} else {
		store.Delete(types.GetPendingProposalKey(p.ID))
		store.Set(types.GetProposalKey(p.ID), bz)
	}
	return nil
}

func (k Keeper) getVote(ctx sdk.Context, proposalID uint64, voter string) (types.Vote, bool) {
	bz := ctx.KVStore(k.storeKey).Get(types.GetVoteKey(proposalID, voter))
	if bz == nil {
		return types.Vote{}, false
	}
	var v types.Vote
	if err := json.Unmarshal(bz, &v); err != nil {
		return types.Vote{}, false
	}
	return v, true
}

func (k Keeper) setVote(ctx sdk.Context, v types.Vote) error {
	bz, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx.KVStore(k.storeKey).Set(types.GetVoteKey(v.ProposalID, v.Voter), bz)
	return nil
}

// votingPower computes addr's voting power as of a proposal's start time
// (spec.md §4.G): quadratic self-plus-delegated power when enabled,
// linear otherwise, with a vesting multiplier applied and capped to 19%
// of the non-vested total before the quadratic transform (Open Question
// decision: sequential, multiplier then cap, recorded in SPEC_FULL §11
// and DESIGN.md).
func (k Keeper) votingPower(ctx sdk.Context, addr string, startTime time.Time, params types.Params) cdptypes.Dec {
	stake, ok := k.stakeKeeper.GetStake(ctx, addr)
	effectiveStake := cdptypes.ZeroDec()
	if ok && stake.UnstakeTime == nil && stake.StakeTime.Before(startTime) {
		effectiveStake = stake.Amount
		if stake.IsVesting {
			raw := effectiveStake.Mul(params.VestingVotingPowerMultiplier)
			capAmt := k.stakeKeeper.NonVestedTotalStake(ctx).Mul(params.VestingInfluenceCap)
			if raw.GT(capAmt) {
				raw = capAmt
			}
			effectiveStake = raw
		}
	}

	transform := func(d cdptypes.Dec) cdptypes.Dec {
		if !params.QuadraticVotingEnabled {
			return d
		}
		root, err := cdptypes.SqrtTo12(d)
		if err != nil {
			return cdptypes.ZeroDec()
		}
		return root
	}

	power := transform(effectiveStake)
	for _, d := range k.stakeKeeper.GetDelegationsIn(ctx, addr) {
		power = power.Add(transform(d.Amount))
	}
	for _, d := range k.stakeKeeper.GetDelegationsOut(ctx, addr) {
		power = power.Sub(transform(d.Amount))
	}
	if power.IsNegative() {
		power = cdptypes.ZeroDec()
	}
	return power
}
