package types

import "encoding/binary"

const (
	// ModuleName defines the stability-vault module name.
	ModuleName = "vault"

	// StoreKey is the primary module store key.
	StoreKey = ModuleName

	// MemStoreKey defines the in-memory store key.
	MemStoreKey = "mem_vault"
)

var (
	// VaultPrefix stores a Vault keyed by its own id.
	VaultPrefix = []byte{0x01}
	// VaultCounterKey tracks the next vault id.
	VaultCounterKey = []byte{0x02}
	// OwnerVaultPrefix indexes a vault id by (basket_id, owner).
	OwnerVaultPrefix = []byte{0x03}
	// ParamsKey stores the module-wide Params.
	ParamsKey = []byte{0x04}
)

// GetVaultKey returns the store key for a Vault record.
func GetVaultKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return append(VaultPrefix, b...)
}

// GetOwnerVaultKey returns the store key for the (basket, owner) → vault
// id index, since each owner wraps at most one CDP position per basket
// in a vault (spec.md §4.H: "a leveraged wrapper over a CDP position").
func GetOwnerVaultKey(basketID uint64, owner string) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, basketID)
	key := append(OwnerVaultPrefix, b...)
	return append(key, []byte(owner)...)
}
