package types

import (
	"time"

	cdptypes "github.com/sharehodl/cdpcore/types"
)

// Vault is a leveraged wrapper over a single CDP position (spec.md
// §4.H): deposits loop collateral through mint→swap→redeposit, shares
// of the looped position are represented by vault tokens, and a
// withdrawal-buffer fraction is kept outside the loop to service
// withdrawals without unwinding it.
type Vault struct {
	ID               uint64             `json:"id"`
	BasketID         uint64             `json:"basket_id"`
	Owner            string             `json:"owner"`
	PositionID       uint64             `json:"position_id"`
	CollateralAsset  cdptypes.AssetInfo `json:"collateral_asset"`
	VaultTokenSupply cdptypes.Dec       `json:"vault_token_supply"`
	// BufferedBaseTokens is the collateral-unit reserve kept outside the
	// loop, a ledger reservation rather than a separate real-asset
	// custody path (this repo moves no bank coins for credit/collateral
	// bookkeeping; see DESIGN.md).
	BufferedBaseTokens cdptypes.Dec `json:"buffered_base_tokens"`
	CreatedAt          time.Time    `json:"created_at"`
}

// Params holds the stability-vault module's tunable parameters.
type Params struct {
	// TargetLTV is the loop ceiling LTV (spec.md §4.H: 0.90).
	TargetLTV cdptypes.Dec `json:"target_ltv"`
	// MinDebtGap caps a single mint to at most this many credit units
	// (spec.md §4.H: 101).
	MinDebtGap cdptypes.Dec `json:"min_debt_gap"`
	// WithdrawalBufferRatio is the fraction of vault tokens' base-token
	// value kept outside the loop (spec.md §4.H).
	WithdrawalBufferRatio cdptypes.Dec `json:"withdrawal_buffer_ratio"`
	SwapSlippage          cdptypes.Dec `json:"swap_slippage"`
	// LoopPriceFloorRatio and UnloopPriceCeilingRatio are the 0.98/1.01
	// multipliers on peg price from spec.md §4.H's loop/unloop
	// preconditions.
	LoopPriceFloorRatio     cdptypes.Dec `json:"loop_price_floor_ratio"`
	UnloopPriceCeilingRatio cdptypes.Dec `json:"unloop_price_ceiling_ratio"`
}

// DefaultParams returns the module's default parameter set.
func DefaultParams() Params {
	return Params{
		TargetLTV:               cdptypes.MustNewDecFromStr("0.90"),
		MinDebtGap:              cdptypes.NewDec(101),
		WithdrawalBufferRatio:   cdptypes.MustNewDecFromStr("0.05"),
		SwapSlippage:            cdptypes.MustNewDecFromStr("0.005"),
		LoopPriceFloorRatio:     cdptypes.MustNewDecFromStr("0.98"),
		UnloopPriceCeilingRatio: cdptypes.MustNewDecFromStr("1.01"),
	}
}
