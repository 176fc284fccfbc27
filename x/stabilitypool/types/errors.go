package types

import "cosmossdk.io/errors"

// x/stabilitypool module sentinel errors.
var (
	ErrPoolNotFound    = errors.Register(ModuleName, 1, "stability pool not found")
	ErrDepositNotFound = errors.Register(ModuleName, 2, "deposit not found")

	ErrBelowMinimumDeposit = errors.Register(ModuleName, 10, "deposit below minimum_deposit_amount")
	ErrInsufficientDeposit = errors.Register(ModuleName, 11, "withdrawal exceeds deposit")
	ErrStillUnstaking      = errors.Register(ModuleName, 12, "unstaking period has not elapsed")
	ErrNotUnstaking        = errors.Register(ModuleName, 13, "deposit is not in the unstaking state")

	ErrNoFees = errors.Register(ModuleName, 20, "no outstanding fee events to compound")

	ErrMathOverflow = errors.Register(ModuleName, 70, "math overflow")
)
