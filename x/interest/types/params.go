package types

import (
	"fmt"
	"time"
)

// Params defines the interest module's global parameters.
type Params struct {
	// CreditTWAPTimeframe is the Credit Peg Controller's tick cadence
	// (spec.md §4.C(2)).
	CreditTWAPTimeframe time.Duration `json:"credit_twap_timeframe"`
}

// DefaultParams returns default interest module parameters.
func DefaultParams() Params {
	return Params{
		CreditTWAPTimeframe: time.Hour,
	}
}

// Validate validates the params.
func (p Params) Validate() error {
	if p.CreditTWAPTimeframe <= 0 {
		return fmt.Errorf("credit_twap_timeframe must be positive")
	}
	return nil
}
