package types

import "cosmossdk.io/errors"

// x/basket module sentinel errors, numbered by concern following the
// teacher's x/lending/types/errors.go convention.
var (
	// Lookup misses
	ErrBasketNotFound   = errors.Register(ModuleName, 1, "basket not found")
	ErrPositionNotFound = errors.Register(ModuleName, 2, "position not found")
	ErrAssetNotFound    = errors.Register(ModuleName, 3, "asset not found in position")

	// Asset/cap validation
	ErrInvalidAsset       = errors.Register(ModuleName, 10, "asset not recognized in basket")
	ErrCapExceeded        = errors.Register(ModuleName, 11, "supply cap or debt cap would be exceeded")
	ErrInvalidCAsset      = errors.Register(ModuleName, 12, "invalid collateral asset configuration")
	ErrDuplicateCAsset    = errors.Register(ModuleName, 13, "duplicate collateral asset in basket")

	// Solvency
	ErrPositionInsolvent = errors.Register(ModuleName, 20, "position would be insolvent")
	ErrPositionSolvent   = errors.Register(ModuleName, 21, "position is solvent")

	// Oracle
	ErrStalePrice = errors.Register(ModuleName, 30, "oracle price is stale")

	// Minimums
	ErrMinimumDebt        = errors.Register(ModuleName, 40, "operation would leave sub-minimum debt")
	ErrInvalidWithdrawal  = errors.Register(ModuleName, 41, "invalid withdrawal amount")

	// Basket lifecycle
	ErrBasketFrozen      = errors.Register(ModuleName, 50, "basket is frozen")
	ErrInvalidBasketEdit = errors.Register(ModuleName, 51, "invalid basket edit")

	// Authorization
	ErrUnauthorized = errors.Register(ModuleName, 60, "unauthorized")

	// Fatal
	ErrMathOverflow = errors.Register(ModuleName, 70, "math overflow")
)
