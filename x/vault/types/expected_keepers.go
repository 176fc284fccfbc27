package types

import (
	"context"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"

	cdptypes "github.com/sharehodl/cdpcore/types"
	baskettypes "github.com/sharehodl/cdpcore/x/basket/types"
)

// PriceQuote mirrors x/liquidation's oracle reading shape, declared
// locally for the same reason: avoid importing a sibling module for one
// struct.
type PriceQuote struct {
	Price cdptypes.Dec
	Time  time.Time
}

// OracleKeeper is the price-feed collaborator the loop/unloop
// preconditions check against (spec.md §4.H). Interface-only: oracle
// price discovery is out of scope (§1 Non-goals), same boundary as
// x/liquidation.types.OracleKeeper.
type OracleKeeper interface {
	GetTWAP(ctx context.Context, asset cdptypes.AssetInfo, window time.Duration) (PriceQuote, error)
}

// SwapKeeper executes the mint→swap and withdraw→swap legs of loop and
// unloop (spec.md §4.H). Interface-only: DEX/AMM implementation is out
// of scope (§1 Non-goals), the same boundary x/liquidation draws around
// SellWallKeeper.
type SwapKeeper interface {
	Swap(ctx sdk.Context, fromAsset cdptypes.AssetInfo, fromAmount cdptypes.Dec, toAsset cdptypes.AssetInfo) (toAmount cdptypes.Dec, err error)
}

// BasketKeeper is the position/basket store collaborator, implemented by
// x/basket/keeper. A vault drives the same CDP lifecycle operations an
// ordinary position owner would call directly.
type BasketKeeper interface {
	GetBasket(ctx sdk.Context, basketID uint64) (baskettypes.Basket, bool)
	GetPosition(ctx sdk.Context, basketID uint64, owner string, positionID uint64) (baskettypes.Position, bool)
	OpenOrDeposit(ctx sdk.Context, basketID uint64, owner string, positionID *uint64, assets cdptypes.AssetList) (baskettypes.Position, error)
	Withdraw(ctx sdk.Context, basketID uint64, owner string, positionID uint64, assets cdptypes.AssetList, prices map[string]cdptypes.Dec) (baskettypes.Position, error)
	IncreaseDebt(ctx sdk.Context, basketID uint64, owner string, positionID uint64, amount cdptypes.Dec, prices map[string]cdptypes.Dec) (baskettypes.Position, error)
	Repay(ctx sdk.Context, basketID uint64, owner string, positionID uint64, amount cdptypes.Dec) (baskettypes.Position, cdptypes.Dec, error)
}
