package types

import "cosmossdk.io/errors"

// Sentinel errors for the stability-vault module (spec.md §4.H, §7).
var (
	ErrVaultNotFound          = errors.Register(ModuleName, 1, "vault not found")
	ErrLoopPriceTooLow        = errors.Register(ModuleName, 2, "credit asset market price below loop precondition")
	ErrUnloopPriceTooHigh     = errors.Register(ModuleName, 3, "credit asset market price above unloop precondition")
	ErrMintableAmountZero     = errors.Register(ModuleName, 4, "no mintable debt headroom at target LTV")
	ErrRateAssuranceViolated  = errors.Register(ModuleName, 5, "base tokens per vault token ratio changed across operation")
	ErrInsufficientVaultShare = errors.Register(ModuleName, 6, "withdrawal exceeds vault token balance")
)
