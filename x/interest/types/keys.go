package types

import (
	sdk "github.com/cosmos/cosmos-sdk/types"
)

const (
	// ModuleName defines the interest module name.
	ModuleName = "interest"

	// StoreKey is the store key string for the interest module.
	StoreKey = ModuleName

	// MemStoreKey defines the in-memory store key string.
	MemStoreKey = "mem_interest"
)

var (
	// CurveTablePrefix keys a borrow-rate curve by its RateIndex.
	CurveTablePrefix = []byte{0x01}
	// PegStatePrefix keys a basket's CPC repeg clock state by basket id.
	PegStatePrefix = []byte{0x02}
	// ParamsKey stores module parameters.
	ParamsKey = []byte{0x03}
)

// GetCurveKey returns the store key for a borrow-rate curve.
func GetCurveKey(rateIndex uint64) []byte {
	return append(CurveTablePrefix, sdk.Uint64ToBigEndian(rateIndex)...)
}

// GetPegStateKey returns the store key for a basket's peg clock state.
func GetPegStateKey(basketID uint64) []byte {
	return append(PegStatePrefix, sdk.Uint64ToBigEndian(basketID)...)
}
