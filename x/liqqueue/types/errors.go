package types

import "cosmossdk.io/errors"

// x/liqqueue module sentinel errors, numbered by concern following the
// teacher's x/dex/types/errors.go convention.
var (
	ErrQueueNotFound = errors.Register(ModuleName, 1, "liquidation queue not found")
	ErrBidNotFound   = errors.Register(ModuleName, 2, "bid not found")
	ErrSlotNotFound  = errors.Register(ModuleName, 3, "premium slot not found")

	ErrInvalidPremium       = errors.Register(ModuleName, 10, "premium out of [0, max_premium] range")
	ErrInvalidMaxPremium    = errors.Register(ModuleName, 11, "max_premium must be in [1, 50]")
	ErrInvalidBidThreshold  = errors.Register(ModuleName, 12, "bid_threshold must be in [1e6, 1e7]")
	ErrBidBelowMinimum      = errors.Register(ModuleName, 13, "bid amount below minimum_bid")
	ErrInsufficientBid      = errors.Register(ModuleName, 14, "retraction exceeds bid amount")
	ErrUnauthorizedRetract  = errors.Register(ModuleName, 15, "only the bid owner may retract")

	ErrMathOverflow = errors.Register(ModuleName, 70, "math overflow")
)
