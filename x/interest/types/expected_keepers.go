package types

import (
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"

	cdptypes "github.com/sharehodl/cdpcore/types"
	baskettypes "github.com/sharehodl/cdpcore/x/basket/types"
)

// PriceQuote mirrors x/basket/types.PriceQuote; duplicated here rather
// than imported to keep x/interest's dependency on x/basket limited to
// the BasketKeeper interface below (avoids a keeper-package import
// cycle the same way x/basket/types.InterestKeeper does in reverse).
type PriceQuote struct {
	Price cdptypes.Dec
	Time  time.Time
}

// OracleKeeper is the external TWAP collaborator the Credit Peg
// Controller reads from (spec.md §4.C(2)).
type OracleKeeper interface {
	GetTWAP(ctx sdk.Context, asset cdptypes.AssetInfo, window time.Duration) (PriceQuote, error)
}

// BasketKeeper is the subset of the basket keeper's surface the interest
// engine depends on: enumerate baskets for the repeg sweep and read/persist
// a basket around a tick. CreditRevenue is declared too, but AccruePosition
// writes borrower-rate revenue onto the basket directly. Declared here
// (not the x/basket/keeper package) so only x/basket/types, never
// x/basket/keeper, is imported — x/basket/keeper is free to import
// x/interest/types for its own InterestKeeper collaborator without
// forming a cycle.
type BasketKeeper interface {
	GetAllBasketIDs(ctx sdk.Context) []uint64
	GetBasket(ctx sdk.Context, basketID uint64) (baskettypes.Basket, bool)
	SetBasket(ctx sdk.Context, basket baskettypes.Basket) error
	CreditRevenue(ctx sdk.Context, basketID uint64, amount cdptypes.Dec, source string) error
}
