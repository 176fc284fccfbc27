package types

import (
	"time"

	cdptypes "github.com/sharehodl/cdpcore/types"
)

// Status is a Proposal's place in the governance state machine (spec.md
// §4.G): Pending (awaiting alignment) → Active → {Passed,
// AmendmentDesired, Rejected, Expired} → Executed.
type Status string

const (
	StatusPending          Status = "pending"
	StatusActive           Status = "active"
	StatusPassed           Status = "passed"
	StatusRejected         Status = "rejected"
	StatusAmendmentDesired Status = "amendment_desired"
	StatusExpired          Status = "expired"
	StatusExecuted         Status = "executed"
)

// VoteOption is a voter's choice on an active proposal (spec.md §4.G).
type VoteOption string

const (
	VoteFor     VoteOption = "for"
	VoteAgainst VoteOption = "against"
	VoteAmend   VoteOption = "amend"
	VoteRemove  VoteOption = "remove"
	VoteAlign   VoteOption = "align"
)

// ExecutableMessage is one ordered step of a passed proposal's execution
// batch (spec.md §4.G "each executable message is ordered"). The target
// and payload are opaque to this module; a host runtime interprets them.
type ExecutableMessage struct {
	Target string `json:"target"`
	Data   []byte `json:"data"`
}

// Proposal is the persisted governance proposal record.
type Proposal struct {
	ID          uint64              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Link        string              `json:"link,omitempty"`
	Proposer    string              `json:"proposer"`
	Recipient   string              `json:"recipient,omitempty"`
	Messages    []ExecutableMessage `json:"messages,omitempty"`
	Expedited   bool                `json:"expedited"`
	Status      Status              `json:"status"`

	// StartTime is the instant stake eligibility and vesting snapshots are
	// evaluated against (spec.md §4.G: "stake_time < proposal.start_time").
	StartTime time.Time `json:"start_time"`
	// VotingEndTime is set once the proposal becomes Active.
	VotingEndTime time.Time `json:"voting_end_time"`
	// ExtendedOnce records whether an expedited proposal that missed
	// quorum has already been extended to the normal voting period
	// (spec.md §4.G: "extend to normal period once").
	ExtendedOnce bool `json:"extended_once"`

	// RequiredStakeThreshold is the raw Align stake (compared against
	// AlignedStakeRaw) that moves this proposal Pending → Active (spec.md
	// §4.G). Fixed at submission time: 50% of total system stake for
	// proposals with no executable messages, otherwise
	// params.ProposalRequiredStake × total system stake.
	RequiredStakeThreshold cdptypes.Dec `json:"required_stake_threshold"`

	// Tally accumulators, quadratic-scaled voting power per option.
	ForPower     cdptypes.Dec `json:"for_power"`
	AgainstPower cdptypes.Dec `json:"against_power"`
	AmendPower   cdptypes.Dec `json:"amend_power"`
	RemovePower  cdptypes.Dec `json:"remove_power"`
	// AlignedPower is the Align tally: accumulates linearly below
	// RequiredStakeThreshold, quadratically for any excess above it
	// (spec.md §4.G).
	AlignedPower cdptypes.Dec `json:"aligned_power"`
	// AlignedStakeRaw is the cumulative raw (pre-transform) stake behind
	// every Align vote cast so far, the running total the linear/
	// quadratic split in AlignedPower is computed against.
	AlignedStakeRaw cdptypes.Dec `json:"aligned_stake_raw"`

	// TotalVotingPowerSnapshot is the system-wide voting power total at
	// proposal submission, the quorum denominator.
	TotalVotingPowerSnapshot cdptypes.Dec `json:"total_voting_power_snapshot"`

	EffectiveAt time.Time `json:"effective_at,omitempty"`
	Executed    bool      `json:"executed"`
	ExecutedAt  time.Time `json:"executed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Vote is one voter's current recorded choice on one proposal, kept so a
// later switch can reverse the previous option's power first (spec.md
// §4.G: "A voter may switch options; previous power is reversed first").
type Vote struct {
	ProposalID uint64       `json:"proposal_id"`
	Voter      string       `json:"voter"`
	Option     VoteOption   `json:"option"`
	Power      cdptypes.Dec `json:"power"`
	Recipient  string       `json:"recipient,omitempty"`
	CastAt     time.Time    `json:"cast_at"`
}

// Params holds the governance-core module's tunable parameters.
type Params struct {
	QuadraticVotingEnabled bool `json:"quadratic_voting_enabled"`
	// MinimumTotalStake is the system-wide stake floor required to submit
	// a proposal (spec.md §4.G).
	MinimumTotalStake cdptypes.Dec `json:"minimum_total_stake"`
	// VestingVotingPowerMultiplier scales a vesting recipient's raw vested
	// stake before the 19%-of-non-vested-total cap is applied (spec.md
	// §4.G, Open Question: sequential — multiplier first, then cap).
	VestingVotingPowerMultiplier cdptypes.Dec `json:"vesting_voting_power_multiplier"`
	// VestingInfluenceCap bounds a vesting recipient's multiplied voting
	// power to this fraction of the non-vested total (default 0.19).
	VestingInfluenceCap cdptypes.Dec `json:"vesting_influence_cap"`
	// ProposalRequiredStake is the fraction of total system stake that
	// Align votes must reach for proposals that carry executable messages
	// (spec.md §4.G); proposals with none always use a 50% threshold
	// instead, fixed per-proposal at submission.
	ProposalRequiredStake cdptypes.Dec `json:"proposal_required_stake"`
	RequiredQuorum        cdptypes.Dec `json:"required_quorum"`
	NormalVotingPeriod    time.Duration `json:"normal_voting_period"`
	ExpeditedVotingPeriod time.Duration `json:"expedited_voting_period"`
	ProposalEffectiveDelay time.Duration `json:"proposal_effective_delay"`
}

// DefaultParams returns the module's default parameter set.
func DefaultParams() Params {
	return Params{
		QuadraticVotingEnabled:       true,
		MinimumTotalStake:            cdptypes.NewDec(1_000_000),
		VestingVotingPowerMultiplier: cdptypes.NewDecFromInt(cdptypes.NewInt(2)),
		VestingInfluenceCap:          cdptypes.MustNewDecFromStr("0.19"),
		ProposalRequiredStake:        cdptypes.MustNewDecFromStr("0.334"),
		RequiredQuorum:               cdptypes.MustNewDecFromStr("0.334"),
		NormalVotingPeriod:           7 * 24 * time.Hour,
		ExpeditedVotingPeriod:        3 * 24 * time.Hour,
		ProposalEffectiveDelay:       2 * 24 * time.Hour,
	}
}

// IsEmpty reports whether the proposal carries no executable messages,
// the condition that fixes its alignment threshold to 50% (spec.md §4.G).
func (p Proposal) IsEmpty() bool {
	return len(p.Messages) == 0
}

// TotalVotePower sums every tallied option, the quorum numerator.
func (p Proposal) TotalVotePower() cdptypes.Dec {
	return p.ForPower.Add(p.AgainstPower).Add(p.AmendPower).Add(p.RemovePower).Add(p.AlignedPower)
}
