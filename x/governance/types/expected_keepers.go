package types

import (
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"

	cdptypes "github.com/sharehodl/cdpcore/types"
)

// StakeInfo is one account's raw stake position as seen by the staking
// collaborator, the eligibility input for voting power (spec.md §4.G:
// "Stake used is only that with stake_time < proposal.start_time AND no
// unstake_time").
type StakeInfo struct {
	Amount     cdptypes.Dec
	StakeTime  time.Time
	UnstakeTime *time.Time
	IsVesting  bool
}

// Delegation is one quadratic-voting delegation edge between two stakers
// (spec.md §4.G: "Σ sqrt(delegated_in) − Σ sqrt(delegated_out)").
type Delegation struct {
	Delegator string
	Delegate  string
	Amount    cdptypes.Dec
}

// StakeKeeper is the staking/delegation collaborator this module reads
// voting-power inputs from. Declared locally since the orchestrator here
// is the consumer, mirroring x/liquidation's expected_keepers.go pattern.
type StakeKeeper interface {
	GetStake(ctx sdk.Context, addr string) (StakeInfo, bool)
	GetDelegationsIn(ctx sdk.Context, addr string) []Delegation
	GetDelegationsOut(ctx sdk.Context, addr string) []Delegation
	TotalSystemStake(ctx sdk.Context) cdptypes.Dec
	// NonVestedTotalStake returns the system-wide stake total excluding
	// vesting recipients, the denominator for the 19% founder-influence
	// cap (spec.md §4.G).
	NonVestedTotalStake(ctx sdk.Context) cdptypes.Dec
}
