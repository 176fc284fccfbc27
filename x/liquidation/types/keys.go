package types

import "encoding/binary"

const (
	// ModuleName defines the liquidation-orchestrator module name.
	ModuleName = "liquidation"

	// StoreKey is the primary module store key.
	StoreKey = ModuleName

	// MemStoreKey defines the in-memory store key.
	MemStoreKey = "mem_liquidation"
)

var (
	// PropagationPrefix stores a RepayPropagation keyed by its own id.
	PropagationPrefix = []byte{0x01}
	// PropagationCounterKey tracks the next propagation id.
	PropagationCounterKey = []byte{0x02}
	// ParamsKey stores the module-wide Params.
	ParamsKey = []byte{0x03}
	// ClaimablePrefix stores a caller_fee claimable balance keyed by
	// (credit_asset, owner).
	ClaimablePrefix = []byte{0x04}
	// ActiveRepayKey is the process-wide REPAY singleton (spec.md §5): the
	// id of the RepayPropagation currently mid-dispatch, if any. A
	// non-empty value at the start of a new Liquidate call is rejected.
	ActiveRepayKey = []byte{0x05}
)

// GetPropagationKey returns the store key for a RepayPropagation.
func GetPropagationKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return append(PropagationPrefix, b...)
}

// GetClaimableKey returns the store key for an owner's claimable
// caller_fee_amount balance in one credit asset.
func GetClaimableKey(creditAsset, owner string) []byte {
	key := append(ClaimablePrefix, []byte(creditAsset)...)
	key = append(key, 0x00)
	return append(key, []byte(owner)...)
}
