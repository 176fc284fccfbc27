package types

import (
	"fmt"
	"time"
)

// Params defines the stability-pool module's global parameters.
type Params struct {
	// UnstakingPeriod, in seconds-per-day multiples per spec.md §4.E
	// ("unstaking_period × seconds_per_day"). Each pool takes its own
	// unstaking period at CreatePool; the keeper does not read this value.
	UnstakingPeriod time.Duration `json:"unstaking_period"`
}

// DefaultParams returns default stabilitypool module parameters.
func DefaultParams() Params {
	return Params{
		UnstakingPeriod: 21 * 24 * time.Hour,
	}
}

// Validate validates the params.
func (p Params) Validate() error {
	if p.UnstakingPeriod <= 0 {
		return fmt.Errorf("unstaking_period must be positive")
	}
	return nil
}
