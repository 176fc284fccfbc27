package keeper_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/suite"

	"github.com/sharehodl/cdpcore/testutil"
	cdptypes "github.com/sharehodl/cdpcore/types"
	baskettypes "github.com/sharehodl/cdpcore/x/basket/types"
	"github.com/sharehodl/cdpcore/x/interest/keeper"
	"github.com/sharehodl/cdpcore/x/interest/types"
)

var collateralAsset = cdptypes.NativeAsset("uhodl")
var creditAsset = cdptypes.NativeAsset("ucredit")

// fakeOracleKeeper quotes a fixed, configurable credit-asset TWAP for
// MaybeRepeg.
type fakeOracleKeeper struct {
	price cdptypes.Dec
}

func (f *fakeOracleKeeper) GetTWAP(ctx sdk.Context, asset cdptypes.AssetInfo, window time.Duration) (types.PriceQuote, error) {
	return types.PriceQuote{Price: f.price, Time: ctx.BlockTime()}, nil
}

// fakeBasketKeeper tracks a single basket for the EndBlock sweep.
type fakeBasketKeeper struct {
	basket baskettypes.Basket
}

func (f *fakeBasketKeeper) GetAllBasketIDs(ctx sdk.Context) []uint64 {
	return []uint64{f.basket.ID}
}

func (f *fakeBasketKeeper) GetBasket(ctx sdk.Context, basketID uint64) (baskettypes.Basket, bool) {
	return f.basket, f.basket.ID == basketID
}

func (f *fakeBasketKeeper) SetBasket(ctx sdk.Context, basket baskettypes.Basket) error {
	f.basket = basket
	return nil
}

func (f *fakeBasketKeeper) CreditRevenue(ctx sdk.Context, basketID uint64, amount cdptypes.Dec, source string) error {
	f.basket.PendingRevenue = f.basket.PendingRevenue.Add(amount)
	return nil
}

type KeeperTestSuite struct {
	suite.Suite
	ctx      sdk.Context
	storeKey storetypes.StoreKey
	k        *keeper.Keeper
	oracle   *fakeOracleKeeper
	basket   *fakeBasketKeeper
}

// seedPegState writes a PegState directly to the module store, bypassing
// the keeper's unexported setter, so MaybeRepeg sees a basket already due
// for a tick instead of always bootstrapping itself as "just ticked".
func (s *KeeperTestSuite) seedPegState(basketID uint64, lastTick time.Time) {
	bz, err := json.Marshal(types.PegState{BasketID: basketID, LastTickTime: lastTick})
	s.Require().NoError(err)
	s.ctx.KVStore(s.storeKey).Set(types.GetPegStateKey(basketID), bz)
}

func TestKeeperTestSuite(t *testing.T) {
	suite.Run(t, new(KeeperTestSuite))
}

func (s *KeeperTestSuite) SetupTest() {
	ctx, storeKeys, memKeys := testutil.NewStoreKeys(types.ModuleName)
	s.ctx = ctx
	s.storeKey = storeKeys[types.ModuleName]
	s.oracle = &fakeOracleKeeper{price: cdptypes.OneDec()}
	s.basket = &fakeBasketKeeper{basket: baskettypes.Basket{
		ID:                        1,
		CreditAsset:               creditAsset,
		CreditPrice:               baskettypes.CreditPrice{Price: cdptypes.OneDec()},
		BaseInterestRate:          cdptypes.MustNewDecFromStr("0.10"),
		DesiredDebtCapUtilization: cdptypes.MustNewDecFromStr("0.80"),
		RateSlopeMultiplier:       cdptypes.NewDec(2),
		CPCMarginOfError:          cdptypes.MustNewDecFromStr("0.01"),
		TotalDebt:                 cdptypes.ZeroDec(),
		PendingRevenue:            cdptypes.ZeroDec(),
		CollateralTypes: []baskettypes.CAsset{
			{Asset: collateralAsset, MaxBorrowLTV: cdptypes.MustNewDecFromStr("0.80"), MaxLTV: cdptypes.MustNewDecFromStr("0.90")},
		},
	}}

	cdc := codec.NewProtoCodec(codectypes.NewInterfaceRegistry())
	s.k = keeper.NewKeeper(cdc, storeKeys[types.ModuleName], memKeys[types.ModuleName], s.oracle, s.basket)
	s.Require().NoError(s.k.SetParams(s.ctx, types.DefaultParams()))
}

func (s *KeeperTestSuite) TestAccruePositionSkipsZeroDebt() {
	position := &baskettypes.Position{LastAccruedTime: s.ctx.BlockTime().Add(-time.Hour), CreditAmount: cdptypes.ZeroDec()}
	s.Require().NoError(s.k.AccruePosition(s.ctx, &s.basket.basket, position))
	s.Require().True(position.CreditAmount.IsZero())
	s.Require().Equal(s.ctx.BlockTime(), position.LastAccruedTime)
}

func (s *KeeperTestSuite) TestAccruePositionAddsInterestOverElapsedTime() {
	position := &baskettypes.Position{
		LastAccruedTime:  s.ctx.BlockTime().Add(-365 * 24 * time.Hour),
		CreditAmount:     cdptypes.NewDec(1000),
		CollateralAssets: cdptypes.AssetList{}.Add(collateralAsset, cdptypes.NewDec(100)),
	}
	// The borrow rate is zero at zero utilization, so give the collateral a
	// supply-cap group in use: 100 supply against a 1.0 × 1000 debt cap is
	// 10% utilization, a 0.10 × 0.1 × 2 = 2% rate, 20 credit over the year.
	s.basket.basket.TotalDebt = cdptypes.NewDec(1000)
	s.basket.basket.SupplyCaps = []baskettypes.SupplyCap{{Assets: []cdptypes.AssetInfo{collateralAsset}, CapRatio: cdptypes.OneDec()}}
	s.basket.basket.CollateralTypes[0].CurrentSupply = cdptypes.NewDec(100)
	before := s.basket.basket.PendingRevenue
	s.Require().NoError(s.k.AccruePosition(s.ctx, &s.basket.basket, position))

	s.Require().True(position.CreditAmount.GT(cdptypes.NewDec(1000)))
	s.Require().True(s.basket.basket.PendingRevenue.GT(before))
	s.Require().True(s.basket.basket.TotalDebt.GT(cdptypes.NewDec(1000)))
	s.Require().Len(s.basket.basket.RevenueLedger, 1)
}

func (s *KeeperTestSuite) TestMaybeRepegClampsToMarginOfError() {
	s.seedPegState(s.basket.basket.ID, s.ctx.BlockTime().Add(-2*time.Hour))
	s.oracle.price = cdptypes.MustNewDecFromStr("2.00")
	basket := s.basket.basket
	s.Require().NoError(s.k.MaybeRepeg(s.ctx, &basket))

	// Market TWAP jumped 1.00 away from peg, but CPCMarginOfError caps the
	// single-tick move to 0.01.
	s.Require().True(basket.CreditPrice.Price.Equal(cdptypes.MustNewDecFromStr("1.01")))
}

func (s *KeeperTestSuite) TestMaybeRepegNoopsBeforeTickDue() {
	basket := s.basket.basket
	originalPrice := basket.CreditPrice.Price
	s.oracle.price = cdptypes.MustNewDecFromStr("5.00")
	s.Require().NoError(s.k.MaybeRepeg(s.ctx, &basket))

	// No PegState seeded: a basket ticking for the first time is never
	// due in the same instant it's first observed.
	s.Require().True(basket.CreditPrice.Price.Equal(originalPrice))
}

func (s *KeeperTestSuite) TestEndBlockSweepsFrozenBasketsOut() {
	s.seedPegState(s.basket.basket.ID, s.ctx.BlockTime().Add(-2*time.Hour))
	s.basket.basket.Frozen = true
	s.oracle.price = cdptypes.MustNewDecFromStr("2.00")
	s.Require().NoError(s.k.EndBlock(s.ctx))
	s.Require().True(s.basket.basket.CreditPrice.Price.Equal(cdptypes.OneDec()))
}
