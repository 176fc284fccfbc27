package types

import (
	"fmt"
	"time"

	cdptypes "github.com/sharehodl/cdpcore/types"
)

// Params defines the basket module's global, governance-controllable
// parameters — the knobs spec.md §3/§4 describe as engine-wide rather
// than per-basket. Mirrors the teacher's "ALL values
// governance-controllable" convention (x/lending/types/params.go).
type Params struct {
	// DebtMinimum is the dust floor enforced on IncreaseDebt/Repay
	// (spec.md §4.B).
	DebtMinimum cdptypes.Dec `json:"debt_minimum"`
	// OracleTimeLimit bounds staleness for any price read used in a
	// mutating operation (spec.md §4.C "Rate freshness tie-break").
	OracleTimeLimit time.Duration `json:"oracle_time_limit"`
	// CollateralTWAPTimeframe is the window used when computing
	// liquidation-eligibility collateral value (spec.md §4.F step 1).
	CollateralTWAPTimeframe time.Duration `json:"collateral_twap_timeframe"`
}

// DefaultParams returns default basket module parameters.
func DefaultParams() Params {
	return Params{
		DebtMinimum:             cdptypes.NewDec(100),
		OracleTimeLimit:         5 * time.Minute,
		CollateralTWAPTimeframe: 30 * time.Minute,
	}
}

// Validate validates the params.
func (p Params) Validate() error {
	if p.DebtMinimum.IsNegative() {
		return fmt.Errorf("debt_minimum must be non-negative")
	}
	if p.OracleTimeLimit <= 0 {
		return fmt.Errorf("oracle_time_limit must be positive")
	}
	if p.CollateralTWAPTimeframe <= 0 {
		return fmt.Errorf("collateral_twap_timeframe must be positive")
	}
	return nil
}
