package types

import (
	sdk "github.com/cosmos/cosmos-sdk/types"
)

const (
	// ModuleName defines the liquidation-queue module name.
	ModuleName = "liqqueue"

	// StoreKey is the primary module store key.
	StoreKey = ModuleName

	// MemStoreKey defines the in-memory store key.
	MemStoreKey = "mem_liqqueue"
)

var (
	// QueuePrefix stores a LiquidationQueue keyed by its handle.
	QueuePrefix = []byte{0x01}
	// QueueCounterKey stores the global queue-handle counter.
	QueueCounterKey = []byte{0x02}
)

// GetQueueKey returns the store key for a queue.
func GetQueueKey(handle uint64) []byte {
	return append(QueuePrefix, sdk.Uint64ToBigEndian(handle)...)
}
