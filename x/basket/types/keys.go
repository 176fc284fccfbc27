package types

import (
	sdk "github.com/cosmos/cosmos-sdk/types"
)

const (
	// ModuleName defines the basket & position store module name.
	ModuleName = "basket"

	// StoreKey defines the primary module store key.
	StoreKey = ModuleName

	// MemStoreKey defines the in-memory store key.
	MemStoreKey = "mem_basket"
)

// Store key prefixes, following the teacher's single-byte-prefix
// convention (x/lending/types/keys.go).
var (
	// BasketPrefix stores Basket records keyed by basket_id.
	BasketPrefix = []byte{0x01}
	// PositionPrefix stores Position records keyed by (basket_id, owner, position_id).
	PositionPrefix = []byte{0x02}
	// OwnerPositionIndexPrefix indexes position ids by (basket_id, owner).
	OwnerPositionIndexPrefix = []byte{0x03}
	// BasketCounterKey stores the global basket id counter.
	BasketCounterKey = []byte{0x04}
	// ParamsKey stores module parameters.
	ParamsKey = []byte{0x05}
)

// GetBasketKey returns the store key for a basket.
func GetBasketKey(basketID uint64) []byte {
	return append(BasketPrefix, sdk.Uint64ToBigEndian(basketID)...)
}

// GetPositionKey returns the store key for a single position.
func GetPositionKey(basketID uint64, owner string, positionID uint64) []byte {
	key := append(PositionPrefix, sdk.Uint64ToBigEndian(basketID)...)
	key = append(key, []byte(owner+":")...)
	return append(key, sdk.Uint64ToBigEndian(positionID)...)
}

// GetOwnerPositionsPrefixKey returns the iteration prefix for all of an
// owner's positions within a basket.
func GetOwnerPositionsPrefixKey(basketID uint64, owner string) []byte {
	key := append(PositionPrefix, sdk.Uint64ToBigEndian(basketID)...)
	return append(key, []byte(owner+":")...)
}

// GetBasketPositionsPrefixKey returns the iteration prefix for every
// position in a basket, across all owners.
func GetBasketPositionsPrefixKey(basketID uint64) []byte {
	return append(PositionPrefix, sdk.Uint64ToBigEndian(basketID)...)
}
