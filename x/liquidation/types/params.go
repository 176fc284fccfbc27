package types

import (
	"fmt"
	"time"

	cdptypes "github.com/sharehodl/cdpcore/types"
)

// Params defines the liquidation orchestrator's global parameters.
type Params struct {
	// CollateralTWAPTimeframe is the oracle averaging window used for the
	// solvency check (spec.md §4.F step 1).
	CollateralTWAPTimeframe time.Duration `json:"collateral_twap_timeframe"`
	// LiqFee is the fraction of credit_amount carved out as caller reward
	// plus protocol cut before routing (spec.md §4.F step 2).
	LiqFee cdptypes.Dec `json:"liq_fee"`
	// CallerFeeShare is LiqFee's share that goes to the invoking account;
	// the remainder is the protocol cut (protocol_fee_amount).
	CallerFeeShare cdptypes.Dec `json:"caller_fee_share"`
	// StakingRevenueShare is the fraction of the protocol cut routed to
	// staking-contract revenue; the remainder credits basket revenue.
	StakingRevenueShare cdptypes.Dec `json:"staking_revenue_share"`
	// StabilityPoolPrincipal is the expected sender identity for `LiqRepay`
	// re-entries (spec.md §5: "such re-entries MUST be gated by sender
	// authorization"). Calls from any other sender are rejected.
	StabilityPoolPrincipal string `json:"stability_pool_principal"`
}

// DefaultParams returns default liquidation module parameters.
func DefaultParams() Params {
	return Params{
		CollateralTWAPTimeframe: 30 * time.Minute,
		LiqFee:                  cdptypes.MustNewDecFromStr("0.05"),
		CallerFeeShare:          cdptypes.MustNewDecFromStr("0.5"),
		StakingRevenueShare:     cdptypes.MustNewDecFromStr("0.5"),
		StabilityPoolPrincipal:  "stabilitypool",
	}
}

// Validate validates the params.
func (p Params) Validate() error {
	if p.CollateralTWAPTimeframe <= 0 {
		return fmt.Errorf("collateral_twap_timeframe must be positive")
	}
	if p.LiqFee.IsNegative() || p.LiqFee.GTE(cdptypes.OneDec()) {
		return fmt.Errorf("liq_fee must be in [0, 1)")
	}
	if p.CallerFeeShare.IsNegative() || p.CallerFeeShare.GT(cdptypes.OneDec()) {
		return fmt.Errorf("caller_fee_share must be in [0, 1]")
	}
	if p.StakingRevenueShare.IsNegative() || p.StakingRevenueShare.GT(cdptypes.OneDec()) {
		return fmt.Errorf("staking_revenue_share must be in [0, 1]")
	}
	return nil
}
