// Package testutil provides the in-memory keeper test harness shared by
// every x/* package's keeper tests, grounded on the teacher's
// x/extbridge/keeper/keeper_test.go SetupTest pattern (IAVL-backed
// CommitMultiStore over a MemDB, one StoreKey plus one MemoryStoreKey).
package testutil

import (
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/store"
	"cosmossdk.io/store/metrics"
	storetypes "cosmossdk.io/store/types"
	cometbfttypes "github.com/cometbft/cometbft/api/cometbft/types/v2"
	dbm "github.com/cosmos/cosmos-db"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// NewStoreKeys mounts one persistent KVStoreKey and one in-memory
// MemoryStoreKey per requested module name and returns a ready-to-use
// sdk.Context plus a lookup from module name to its mounted StoreKey.
func NewStoreKeys(moduleNames ...string) (sdk.Context, map[string]storetypes.StoreKey, map[string]storetypes.StoreKey) {
	db := dbm.NewMemDB()
	stateStore := store.NewCommitMultiStore(db, log.NewNopLogger(), metrics.NewNoOpMetrics())

	storeKeys := make(map[string]storetypes.StoreKey, len(moduleNames))
	memKeys := make(map[string]storetypes.StoreKey, len(moduleNames))
	for _, name := range moduleNames {
		storeKey := storetypes.NewKVStoreKey(name)
		memKey := storetypes.NewMemoryStoreKey("mem_" + name)
		stateStore.MountStoreWithDB(storeKey, storetypes.StoreTypeIAVL, db)
		stateStore.MountStoreWithDB(memKey, storetypes.StoreTypeMemory, nil)
		storeKeys[name] = storeKey
		memKeys[name] = memKey
	}
	if err := stateStore.LoadLatestVersion(); err != nil {
		panic(err)
	}

	ctx := sdk.NewContext(stateStore, cometbfttypes.Header{Height: 1, Time: time.Now()}, false, log.NewNopLogger())
	return ctx, storeKeys, memKeys
}
