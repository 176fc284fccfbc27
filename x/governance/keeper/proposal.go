package keeper

import (
	stderrors "errors"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/sharehodl/cdpcore/metrics"
	cdptypes "github.com/sharehodl/cdpcore/types"
	"github.com/sharehodl/cdpcore/x/governance/types"
)

// SubmitProposal queues a new proposal, Pending until it accumulates
// enough Align votes to activate (spec.md §4.G, §6 Gov::SubmitProposal).
func (k Keeper) SubmitProposal(ctx sdk.Context, proposer, title, description, link string, messages []types.ExecutableMessage, recipient string, expedited bool) (uint64, error) {
	params := k.GetParams(ctx)

	if k.stakeKeeper.TotalSystemStake(ctx).LT(params.MinimumTotalStake) {
		return 0, types.ErrInsufficientStake
	}

	startTime := ctx.BlockTime()
	power := k.votingPower(ctx, proposer, startTime, params)
	if power.IsZero() {
		return 0, types.ErrNoVotingPower
	}

	// Approximated as the quadratic/linear transform of total system
	// stake: an exact system-wide sum of per-account transformed power
	// (honoring each account's own vesting cap) is not obtainable from
	// the aggregate-only StakeKeeper surface, so this is the quorum
	// denominator's working approximation (documented in DESIGN.md).
	totalStake := k.stakeKeeper.TotalSystemStake(ctx)
	totalSnapshot := scaleByParams(params, totalStake)

	// Align votes accumulate raw stake (castAlignVote compares
	// AlignedStakeRaw against this), so the threshold is a fraction of raw
	// total system stake, not of the transformed snapshot.
	threshold := totalStake.Mul(cdptypes.MustNewDecFromStr("0.5"))
	if len(messages) > 0 {
		threshold = totalStake.Mul(params.ProposalRequiredStake)
	}

	id := k.getNextProposalID(ctx)
	proposal := types.Proposal{
		ID:                       id,
		Title:                    title,
		Description:              description,
		Link:                     link,
		Proposer:                 proposer,
		Recipient:                recipient,
		Messages:                 messages,
		Expedited:                expedited,
		Status:                   types.StatusPending,
		StartTime:                startTime,
		RequiredStakeThreshold:   threshold,
		ForPower:                 cdptypes.ZeroDec(),
		AgainstPower:             cdptypes.ZeroDec(),
		AmendPower:               cdptypes.ZeroDec(),
		RemovePower:              cdptypes.ZeroDec(),
		AlignedPower:             cdptypes.ZeroDec(),
		AlignedStakeRaw:          cdptypes.ZeroDec(),
		TotalVotingPowerSnapshot: totalSnapshot,
		CreatedAt:                startTime,
	}
	if err := k.setProposal(ctx, proposal); err != nil {
		return 0, err
	}
	return id, nil
}

// scaleByParams applies the quadratic/linear transform params selects, used
// for system-wide aggregates where per-account vesting details are unknown.
func scaleByParams(p types.Params, d cdptypes.Dec) cdptypes.Dec {
	if !p.QuadraticVotingEnabled {
		return d
	}
	root, err := cdptypes.SqrtTo12(d)
	if err != nil {
		return cdptypes.ZeroDec()
	}
	return root
}

// CastVote records voter's choice, reversing any previous vote's power
// first (spec.md §4.G, §6 Gov::CastVote).
func (k Keeper) CastVote(ctx sdk.Context, proposalID uint64, voter string, option types.VoteOption, recipient string) error {
	proposal, ok := k.GetProposal(ctx, proposalID)
	if !ok {
		return types.ErrProposalNotFound
	}
	params := k.GetParams(ctx)

	if proposal.Status == types.StatusPending {
		if option != types.VoteAlign {
			return types.ErrProposalNotActive
		}
		return k.castAlignVote(ctx, &proposal, voter, recipient)
	}

	if proposal.Status != types.StatusActive {
		return types.ErrProposalNotActive
	}
	if ctx.BlockTime().After(proposal.VotingEndTime) {
		return types.ErrVotingPeriodEnded
	}
	if option == types.VoteAlign {
		return types.ErrInvalidVoteOption
	}

	power := k.votingPower(ctx, voter, proposal.StartTime, params)
	if power.IsZero() {
		return types.ErrNoVotingPower
	}

	if prev, found := k.getVote(ctx, proposalID, voter); found {
		k.applyVotePower(&proposal, prev.Option, prev.Power.Neg())
	}
	k.applyVotePower(&proposal, option, power)

	if err := k.setVote(ctx, types.Vote{
		ProposalID: proposalID, Voter: voter, Option: option,
		Power: power, Recipient: recipient, CastAt: ctx.BlockTime(),
	}); err != nil {
		return err
	}
	return k.setProposal(ctx, proposal)
}

func (k Keeper) applyVotePower(p *types.Proposal, option types.VoteOption, delta cdptypes.Dec) {
	switch option {
	case types.VoteFor:
		p.ForPower = p.ForPower.Add(delta)
	case types.VoteAgainst:
		p.AgainstPower = p.AgainstPower.Add(delta)
	case types.VoteAmend:
		p.AmendPower = p.AmendPower.Add(delta)
	case types.VoteRemove:
		p.RemovePower = p.RemovePower.Add(delta)
	}
}

// castAlignVote implements the Pending→Active alignment mechanic
// (spec.md §4.G): accumulates non-quadratically below the proposal's
// required-stake threshold, quadratically for any excess above it. A
// voter's Align contribution is not reversible/switchable — it is an
// accumulation toward activation, not a tallied stance like the other
// four options (documented simplification, DESIGN.md).
func (k Keeper) castAlignVote(ctx sdk.Context, proposal *types.Proposal, voter, recipient string) error {
	if _, found := k.getVote(ctx, proposal.ID, voter); found {
		return nil
	}

	stake, ok := k.stakeKeeper.GetStake(ctx, voter)
	if !ok || stake.UnstakeTime != nil || !stake.StakeTime.Before(proposal.StartTime) {
		return types.ErrNoVotingPower
	}
	s := stake.Amount
	if s.IsZero() {
		return types.ErrNoVotingPower
	}

	before := proposal.AlignedStakeRaw
	after := before.Add(s)
	threshold := proposal.RequiredStakeThreshold

	linear := after
	if linear.GT(threshold) {
		linear = threshold
	}
	if linear.LT(before) {
		linear = before
	}
	linearPortion := linear.Sub(before)

	excessPortion := cdptypes.ZeroDec()
	if after.GT(threshold) {
		excessStart := before
		if excessStart.LT(threshold) {
			excessStart = threshold
		}
		excessPortion = after.Sub(excessStart)
	}

	params := k.GetParams(ctx)
	added := linearPortion
	if params.QuadraticVotingEnabled && excessPortion.IsPositive() {
		root, err := cdptypes.SqrtTo12(excessPortion)
		if err != nil {
			return err
		}
		added = added.Add(root)
	} else {
		added = added.Add(excessPortion)
	}

	proposal.AlignedStakeRaw = after
	proposal.AlignedPower = proposal.AlignedPower.Add(added)

	if err := k.setVote(ctx, types.Vote{
		ProposalID: proposal.ID, Voter: voter, Option: types.VoteAlign,
		Power: s, Recipient: recipient, CastAt: ctx.BlockTime(),
	}); err != nil {
		return err
	}

	if proposal.AlignedStakeRaw.GTE(threshold) {
		proposal.Status = types.StatusActive
		period := params.NormalVotingPeriod
		if proposal.Expedited {
			period = params.ExpeditedVotingPeriod
		}
		proposal.VotingEndTime = ctx.BlockTime().Add(period)
	}
	return k.setProposal(ctx, *proposal)
}

// EndProposal tallies a proposal once its voting period has elapsed
// (spec.md §4.G, §6 Gov::EndProposal).
func (k Keeper) EndProposal(ctx sdk.Context, proposalID uint64) error {
	proposal, ok := k.GetProposal(ctx, proposalID)
	if !ok {
		return types.ErrProposalNotFound
	}
	if proposal.Status != types.StatusActive {
		return types.ErrProposalNotActive
	}
	if ctx.BlockTime().Before(proposal.VotingEndTime) {
		return types.ErrVotingPeriodNotEnded
	}

	params := k.GetParams(ctx)
	quorum := cdptypes.ZeroDec()
	if proposal.TotalVotingPowerSnapshot.IsPositive() {
		quorum = proposal.TotalVotePower().Quo(proposal.TotalVotingPowerSnapshot)
	}

	if quorum.LT(params.RequiredQuorum) {
		if proposal.Expedited && !proposal.ExtendedOnce {
			proposal.ExtendedOnce = true
			proposal.VotingEndTime = ctx.BlockTime().Add(params.NormalVotingPeriod)
			return k.setProposal(ctx, proposal)
		}
		proposal.Status = types.StatusRejected
		metrics.Governance().RecordOutcome(string(proposal.Status))
		return k.setProposal(ctx, proposal)
	}

	winner, power := types.VoteFor, proposal.ForPower
	for _, c := range []struct {
		option types.VoteOption
		power  cdptypes.Dec
	}{
		{types.VoteAmend, proposal.AmendPower},
		{types.VoteRemove, proposal.RemovePower},
		{types.VoteAgainst, proposal.AgainstPower},
	} {
		if c.power.GT(power) {
			winner, power = c.option, c.power
		}
	}

	switch winner {
	case types.VoteFor:
		proposal.Status = types.StatusPassed
		proposal.EffectiveAt = ctx.BlockTime().Add(params.ProposalEffectiveDelay)
	case types.VoteAmend:
		proposal.Status = types.StatusAmendmentDesired
	default:
		proposal.Status = types.StatusRejected
	}
	metrics.Governance().RecordOutcome(string(proposal.Status))
	return k.setProposal(ctx, proposal)
}

// ExecuteProposal dispatches a Passed proposal's queued messages after
// its effective delay, gated by a dry-run check whose success is
// signaled by the ErrMessagesCheckPassed sentinel (spec.md §4.G, §7).
func (k Keeper) ExecuteProposal(ctx sdk.Context, proposalID uint64) error {
	proposal, ok := k.GetProposal(ctx, proposalID)
	if !ok {
		return types.ErrProposalNotFound
	}
	if proposal.Status != types.StatusPassed {
		return types.ErrProposalNotPassed
	}
	if proposal.Executed {
		return types.ErrAlreadyExecuted
	}
	if ctx.BlockTime().Before(proposal.EffectiveAt) {
		return types.ErrExecutionDelayPending
	}

	if err := checkMessagesExecutable(proposal.Messages); !stderrors.Is(err, types.ErrMessagesCheckPassed) {
		return err
	}

	proposal.Executed = true
	proposal.ExecutedAt = ctx.BlockTime()
	proposal.Status = types.StatusExecuted
	return k.setProposal(ctx, proposal)
}

// checkMessagesExecutable orders and validates a proposal's executable
// messages, then deliberately returns the ErrMessagesCheckPassed
// sentinel as its final step — a dry-run gate, not a real error
// (spec.md §4.G: "a sentinel self-call asserts the batch is
// executable... its final message deliberately errors to prevent state
// commit in check mode"). Actual dispatch to each message's target is
// the host runtime's responsibility; wire transport is out of scope.
func checkMessagesExecutable(messages []types.ExecutableMessage) error {
	for _, m := range messages {
		if m.Target == "" {
			return types.ErrInvalidVoteOption
		}
	}
	return types.ErrMessagesCheckPassed
}
