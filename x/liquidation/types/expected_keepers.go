package types

import (
	"context"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"

	cdptypes "github.com/sharehodl/cdpcore/types"
	baskettypes "github.com/sharehodl/cdpcore/x/basket/types"
)

// PriceQuote mirrors x/basket's oracle reading shape, declared locally to
// avoid importing it for a single struct.
type PriceQuote struct {
	Price cdptypes.Dec
	Time  time.Time
}

// OracleKeeper is the price-feed collaborator the solvency check and
// collateral valuation depend on (spec.md §4.F step 1).
type OracleKeeper interface {
	GetTWAP(ctx context.Context, asset cdptypes.AssetInfo, window time.Duration) (PriceQuote, error)
}

// BasketKeeper is the position/basket store collaborator, implemented by
// x/basket/keeper. Declared locally (importing x/basket/types directly,
// which is non-cyclic) rather than in x/basket/types, since the
// orchestrator is the consumer here.
type BasketKeeper interface {
	GetBasket(ctx sdk.Context, basketID uint64) (baskettypes.Basket, bool)
	SetBasket(ctx sdk.Context, basket baskettypes.Basket) error
	GetPosition(ctx sdk.Context, basketID uint64, owner string, positionID uint64) (baskettypes.Position, bool)
	SetPosition(ctx sdk.Context, position baskettypes.Position) error
	DeletePosition(ctx sdk.Context, position baskettypes.Position)
	CreditRevenue(ctx sdk.Context, basketID uint64, amount cdptypes.Dec, source string) error
	MintRevenue(ctx sdk.Context, basketID uint64, amount cdptypes.Dec) error
}

// LiqQueueKeeper is the Liquidation-Queue engine collaborator
// (spec.md §4.D / §4.F step 3a, 4).
type LiqQueueKeeper interface {
	CheckLiquidatible(ctx sdk.Context, handle uint64, creditOwed, collateralAvailable, collateralPrice, creditPrice cdptypes.Dec) (leftoverCollateral, creditRepaid cdptypes.Dec, err error)
	Liquidate(ctx sdk.Context, handle uint64, creditOwed, collateralAvailable, collateralPrice, creditPrice cdptypes.Dec) (leftoverCollateral, creditRepaid cdptypes.Dec, err error)
}

// StabilityPoolKeeper is the Stability-Pool engine collaborator
// (spec.md §4.E / §4.F step 3b, 4).
type StabilityPoolKeeper interface {
	PoolTotalStaked(ctx sdk.Context, creditAssetKey string) (cdptypes.Dec, bool)
	Liquidate(ctx sdk.Context, creditAssetKey string, creditAmount cdptypes.Dec) (leftover cdptypes.Dec, err error)
	Distribute(ctx sdk.Context, creditAssetKey string, releasedCollateral cdptypes.AssetList) (map[string]cdptypes.AssetList, error)
}

// SellWallKeeper executes an external market sale of collateral for
// credit, the "sell-wall" of last resort (spec.md §4.F step 3c, 4, 6).
// Grounded on the teacher's x/dex matching engine, adapted to a single
// market-sell call rather than the full order-book lifecycle.
type SellWallKeeper interface {
	ExecuteMarketSell(ctx sdk.Context, seller string, sellAsset cdptypes.AssetInfo, amount cdptypes.Dec, creditAsset cdptypes.AssetInfo) (proceeds cdptypes.Dec, err error)
}

// AuctionKeeper runs the external debt auction spec.md §4.F step 6 / S4
// requires when a position resolves with `credit_amount > 0` and zero
// remaining collateral: the residual debt is handed off to be recapitalized
// from outside the basket rather than silently written off. Declared as an
// expected-keeper interface with no concrete implementation in this module
// tree, the same boundary this repo already draws around OracleKeeper and
// SellWallKeeper for external price/market systems out of scope per §1.
type AuctionKeeper interface {
	StartAuction(ctx sdk.Context, basketID, positionID uint64, creditAsset cdptypes.AssetInfo, residualDebt cdptypes.Dec) (auctionID uint64, err error)
}
