package types

const (
	// ModuleName defines the stability-pool module name.
	ModuleName = "stabilitypool"

	// StoreKey is the primary module store key.
	StoreKey = ModuleName

	// MemStoreKey defines the in-memory store key.
	MemStoreKey = "mem_stabilitypool"
)

var (
	// PoolPrefix stores a Pool keyed by credit-asset identifier.
	PoolPrefix = []byte{0x01}
	// IncentiveCounterPrefix tracks max_incentives consumption per pool.
	IncentiveCounterPrefix = []byte{0x02}
	// ParamsKey stores the module-wide Params.
	ParamsKey = []byte{0x03}
	// ClaimablePrefix stores a ClaimableBalance keyed by
	// (credit_asset, owner).
	ClaimablePrefix = []byte{0x04}
)

// GetClaimableKey returns the store key for an owner's claimable balance
// within one pool.
func GetClaimableKey(creditAsset, owner string) []byte {
	key := append(ClaimablePrefix, []byte(creditAsset)...)
	key = append(key, 0x00)
	return append(key, []byte(owner)...)
}

// GetPoolKey returns the store key for a pool.
func GetPoolKey(creditAsset string) []byte {
	return append(PoolPrefix, []byte(creditAsset)...)
}

// GetIncentiveCounterKey returns the store key for a pool's cumulative
// incentive spend counter.
func GetIncentiveCounterKey(creditAsset string) []byte {
	return append(IncentiveCounterPrefix, []byte(creditAsset)...)
}
