package types

import "cosmossdk.io/errors"

// Sentinel errors shared by every module in the engine. Per-module errors
// live in that module's own x/<name>/types/errors.go registry; these are
// the handful raised by the root math/asset primitives that every module
// depends on.
var (
	// ErrMathOverflow is fatal: the caller's transaction wrapper must abort
	// on it rather than attempt any compensation.
	ErrMathOverflow = errors.Register("core", 1, "math overflow")
	// ErrDivideByZero is raised by any Dec division with a zero divisor.
	ErrDivideByZero = errors.Register("core", 2, "division by zero")
	// ErrInvalidAsset is raised when an asset's info does not resolve to a
	// recognized denom or token-contract address.
	ErrInvalidAsset = errors.Register("core", 3, "invalid asset")
)
