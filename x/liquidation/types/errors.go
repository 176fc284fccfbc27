package types

import "cosmossdk.io/errors"

// x/liquidation module sentinel errors.
var (
	ErrPositionNotFound    = errors.Register(ModuleName, 1, "position not found")
	ErrPropagationNotFound = errors.Register(ModuleName, 2, "repay propagation record not found")

	ErrPositionSolvent = errors.Register(ModuleName, 10, "position is solvent")
	ErrBasketFrozen    = errors.Register(ModuleName, 11, "basket is frozen")
	ErrStalePrice      = errors.Register(ModuleName, 12, "stale oracle price")

	ErrBadDebt = errors.Register(ModuleName, 20, "position resolved with residual bad debt")

	ErrConcurrentLiquidation = errors.Register(ModuleName, 30, "a liquidation is already in flight (REPAY singleton non-empty)")
	ErrNoActiveLiquidation   = errors.Register(ModuleName, 31, "no liquidation in flight for this propagation")
	ErrUnauthorizedLiqRepay  = errors.Register(ModuleName, 32, "LiqRepay sender is not the stability pool principal")

	ErrMathOverflow = errors.Register(ModuleName, 70, "math overflow")
)
