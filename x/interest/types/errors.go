package types

import "cosmossdk.io/errors"

// x/interest module sentinel errors.
var (
	ErrCurveNotFound = errors.Register(ModuleName, 1, "borrow rate curve not found")
	ErrStalePrice    = errors.Register(ModuleName, 30, "oracle price is stale")
	ErrMathOverflow  = errors.Register(ModuleName, 70, "math overflow")
)
