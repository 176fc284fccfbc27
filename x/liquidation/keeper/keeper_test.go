package keeper_test

import (
	"context"
	"fmt"
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
	"github.com/sharehodl/cdpcore/x/liquidation/keeper"
	"github.com/sharehodl/cdpcore/x/liquidation/types"
)

var collateralAsset = cdptypes.NativeAsset("uhodl")
var creditAsset = cdptypes.NativeAsset("ucredit")

// fakeOracleKeeper quotes a fixed, fresh price for every asset.
type fakeOracleKeeper struct {
	price cdptypes.Dec
}

func (f *fakeOracleKeeper) GetTWAP(ctx context.Context, asset cdptypes.AssetInfo, window time.Duration) (types.PriceQuote, error) {
	return types.PriceQuote{Price: f.price, Time: time.Now()}, nil
}

// fakeBasketKeeper tracks a single basket and its positions, the same
// shape the orchestrator touches per call.
type fakeBasketKeeper struct {
	basket    baskettypes.Basket
	positions map[uint64]baskettypes.Position
	deleted   map[uint64]bool
}

func newFakeBasketKeeper(basket baskettypes.Basket, position baskettypes.Position) *fakeBasketKeeper {
	return &fakeBasketKeeper{
		basket:    basket,
		positions: map[uint64]baskettypes.Position{position.ID: position},
		deleted:   map[uint64]bool{},
	}
}

func (f *fakeBasketKeeper) GetBasket(ctx sdk.Context, basketID uint64) (baskettypes.Basket, bool) {
	return f.basket, f.basket.ID == basketID
}

func (f *fakeBasketKeeper) SetBasket(ctx sdk.Context, basket baskettypes.Basket) error {
	f.basket = basket
	return nil
}

func (f *fakeBasketKeeper) GetPosition(ctx sdk.Context, basketID uint64, owner string, positionID uint64) (baskettypes.Position, bool) {
	p, ok := f.positions[positionID]
	return p, ok && !f.deleted[positionID]
}

func (f *fakeBasketKeeper) SetPosition(ctx sdk.Context, position baskettypes.Position) error {
	f.positions[position.ID] = position
	delete(f.deleted, position.ID)
	return nil
}

func (f *fakeBasketKeeper) DeletePosition(ctx sdk.Context, position baskettypes.Position) {
	f.deleted[position.ID] = true
}

func (f *fakeBasketKeeper) CreditRevenue(ctx sdk.Context, basketID uint64, amount cdptypes.Dec, source string) error {
	f.basket.PendingRevenue = f.basket.PendingRevenue.Add(amount)
	return nil
}

func (f *fakeBasketKeeper) MintRevenue(ctx sdk.Context, basketID uint64, amount cdptypes.Dec) error {
	f.basket.PendingRevenue = f.basket.PendingRevenue.Sub(amount)
	return nil
}

// fakeLiqQueueKeeper always fully repays creditOwed against the available
// collateral 1:1 (tests keep collateral/credit prices at parity).
type fakeLiqQueueKeeper struct{}

func (fakeLiqQueueKeeper) CheckLiquidatible(ctx sdk.Context, handle uint64, creditOwed, collateralAvailable, collateralPrice, creditPrice cdptypes.Dec) (cdptypes.Dec, cdptypes.Dec, error) {
	repaid := creditOwed
	if repaid.GT(collateralAvailable) {
		repaid = collateralAvailable
	}
	return collateralAvailable.Sub(repaid), repaid, nil
}

func (fakeLiqQueueKeeper) Liquidate(ctx sdk.Context, handle uint64, creditOwed, collateralAvailable, collateralPrice, creditPrice cdptypes.Dec) (cdptypes.Dec, cdptypes.Dec, error) {
	repaid := creditOwed
	if repaid.GT(collateralAvailable) {
		repaid = collateralAvailable
	}
	return collateralAvailable.Sub(repaid), repaid, nil
}

// fakeStabilityPoolKeeper simulates a configurable pool: absorbs up to
// staked against whatever it's asked to liquidate.
type fakeStabilityPoolKeeper struct {
	staked        cdptypes.Dec
	hasPool       bool
	distributeErr error
}

func (f *fakeStabilityPoolKeeper) PoolTotalStaked(ctx sdk.Context, creditAssetKey string) (cdptypes.Dec, bool) {
	return f.staked, f.hasPool
}

func (f *fakeStabilityPoolKeeper) Liquidate(ctx sdk.Context, creditAssetKey string, creditAmount cdptypes.Dec) (cdptypes.Dec, error) {
	absorbed := creditAmount
	if absorbed.GT(f.staked) {
		absorbed = f.staked
	}
	f.staked = f.staked.Sub(absorbed)
	return creditAmount.Sub(absorbed), nil
}

func (f *fakeStabilityPoolKeeper) Distribute(ctx sdk.Context, creditAssetKey string, releasedCollateral cdptypes.AssetList) (map[string]cdptypes.AssetList, error) {
	if f.distributeErr != nil {
		return nil, f.distributeErr
	}
	return map[string]cdptypes.AssetList{}, nil
}

// fakeSellWallKeeper simulates an external market sale, configurable to
// fail so bad-debt routing can be exercised deterministically.
type fakeSellWallKeeper struct {
	fail bool
}

func (f *fakeSellWallKeeper) ExecuteMarketSell(ctx sdk.Context, seller string, sellAsset cdptypes.AssetInfo, amount cdptypes.Dec, creditAsset cdptypes.AssetInfo) (cdptypes.Dec, error) {
	if f.fail {
		return cdptypes.ZeroDec(), fmt.Errorf("sell-wall execution failed")
	}
	return amount, nil
}

// fakeAuctionKeeper records every StartAuction call.
type fakeAuctionKeeper struct {
	fail   bool
	nextID uint64
	calls  []cdptypes.Dec
}

func (f *fakeAuctionKeeper) StartAuction(ctx sdk.Context, basketID, positionID uint64, creditAsset cdptypes.AssetInfo, residualDebt cdptypes.Dec) (uint64, error) {
	if f.fail {
		return 0, fmt.Errorf("auction house unreachable")
	}
	f.calls = append(f.calls, residualDebt)
	f.nextID++
	return f.nextID, nil
}

type KeeperTestSuite struct {
	suite.Suite
	ctx      sdk.Context
	storeKey storetypes.StoreKey
	k        *keeper.Keeper

	oracle   *fakeOracleKeeper
	basket   *fakeBasketKeeper
	liqQueue fakeLiqQueueKeeper
	stabPool *fakeStabilityPoolKeeper
	sellWall *fakeSellWallKeeper
	auction  *fakeAuctionKeeper
}

func TestKeeperTestSuite(t *testing.T) {
	suite.Run(t, new(KeeperTestSuite))
}

// insolventBasketAndPosition builds a basket/position pair that fails the
// solvency check at max_LTV: 100 collateral at MaxLTV=0.9 weighs 90 against
// 100 credit owed at a credit price of 1.
func insolventBasketAndPosition(liqQueueHandle *uint64) (baskettypes.Basket, baskettypes.Position) {
	basket := baskettypes.Basket{
		ID:          1,
		CreditAsset: creditAsset,
		CreditPrice: baskettypes.CreditPrice{Price: cdptypes.OneDec()},
		CollateralTypes: []baskettypes.CAsset{
			{Asset: collateralAsset, MaxBorrowLTV: cdptypes.MustNewDecFromStr("0.80"), MaxLTV: cdptypes.MustNewDecFromStr("0.90")},
		},
		LiqQueueHandle: liqQueueHandle,
		PendingRevenue: cdptypes.ZeroDec(),
		TotalDebt:      cdptypes.NewDec(100),
	}
	position := baskettypes.Position{
		ID:               1,
		BasketID:         1,
		Owner:            "alice",
		CollateralAssets: cdptypes.AssetList{}.Add(collateralAsset, cdptypes.NewDec(100)),
		CreditAmount:     cdptypes.NewDec(100),
	}
	return basket, position
}

func (s *KeeperTestSuite) setup(basket baskettypes.Basket, position baskettypes.Position) {
	ctx, storeKeys, memKeys := testutil.NewStoreKeys(types.ModuleName)
	s.ctx = ctx
	s.storeKey = storeKeys[types.ModuleName]
	s.oracle = &fakeOracleKeeper{price: cdptypes.OneDec()}
	s.basket = newFakeBasketKeeper(basket, position)
	s.liqQueue = fakeLiqQueueKeeper{}
	s.stabPool = &fakeStabilityPoolKeeper{staked: cdptypes.ZeroDec(), hasPool: false}
	s.sellWall = &fakeSellWallKeeper{}
	s.auction = &fakeAuctionKeeper{}

	cdc := codec.NewProtoCodec(codectypes.NewInterfaceRegistry())
	s.k = keeper.NewKeeper(cdc, storeKeys[types.ModuleName], memKeys[types.ModuleName],
		s.oracle, s.basket, s.liqQueue, s.stabPool, s.sellWall, s.auction)
	s.Require().NoError(s.k.SetParams(s.ctx, types.DefaultParams()))
}

func (s *KeeperTestSuite) TestLiquidatePositionRejectsSolventPosition() {
	handle := uint64(1)
	basket, position := insolventBasketAndPosition(&handle)
	position.CollateralAssets = cdptypes.AssetList{}.Add(collateralAsset, cdptypes.NewDec(1000))
	s.setup(basket, position)

	_, err := s.k.LiquidatePosition(s.ctx, basket.ID, position.ID, position.Owner, "bob")
	s.Require().ErrorIs(err, types.ErrPositionSolvent)
}

func (s *KeeperTestSuite) TestLiquidatePositionRejectsFrozenBasket() {
	handle := uint64(1)
	basket, position := insolventBasketAndPosition(&handle)
	basket.Frozen = true
	s.setup(basket, position)

	_, err := s.k.LiquidatePosition(s.ctx, basket.ID, position.ID, position.Owner, "bob")
	s.Require().ErrorIs(err, types.ErrBasketFrozen)
}

func (s *KeeperTestSuite) TestLiquidatePositionRejectsWhenRepaySingletonHeld() {
	handle := uint64(1)
	basket, position := insolventBasketAndPosition(&handle)
	s.setup(basket, position)

	s.ctx.KVStore(s.storeKey).Set(types.ActiveRepayKey, sdk.Uint64ToBigEndian(99))

	_, err := s.k.LiquidatePosition(s.ctx, basket.ID, position.ID, position.Owner, "bob")
	s.Require().ErrorIs(err, types.ErrConcurrentLiquidation)
}

// TestLiquidatePositionFullyRepaidThroughLiqQueue is the S1 scenario
// (spec.md §8): the LQ book alone covers the net credit, leaving a
// partially-drawn, still-live position.
func (s *KeeperTestSuite) TestLiquidatePositionFullyRepaidThroughLiqQueue() {
	handle := uint64(1)
	basket, position := insolventBasketAndPosition(&handle)
	s.setup(basket, position)

	id, err := s.k.LiquidatePosition(s.ctx, basket.ID, position.ID, position.Owner, "bob")
	s.Require().NoError(err)

	propagation, found := s.k.GetPropagation(s.ctx, id)
	s.Require().True(found)
	s.Require().Equal(types.StatusDone, propagation.Status)

	updated, ok := s.basket.GetPosition(s.ctx, basket.ID, position.Owner, position.ID)
	s.Require().True(ok)
	// credit_amount(100) - liq_fee(5) = 95 net credit, fully absorbed by LQ.
	s.Require().True(updated.CreditAmount.Equal(cdptypes.NewDec(5)))

	caller := s.k.GetClaimable(s.ctx, creditAsset.String(), "bob")
	s.Require().True(caller.Equal(cdptypes.MustNewDecFromStr("2.5")))
}

// TestLiquidatePositionRoutesBadDebtToAuction is the S4 scenario
// (spec.md §8): no LQ book, no stability pool depth, and a failing
// sell-wall leave the position with exhausted collateral and residual
// debt, which must be routed to the external auction rather than
// written off.
func (s *KeeperTestSuite) TestLiquidatePositionRoutesBadDebtToAuction() {
	basket, position := insolventBasketAndPosition(nil)
	s.setup(basket, position)
	s.sellWall.fail = true

	id, err := s.k.LiquidatePosition(s.ctx, basket.ID, position.ID, position.Owner, "bob")
	s.Require().NoError(err)

	propagation, found := s.k.GetPropagation(s.ctx, id)
	s.Require().True(found)
	s.Require().Equal(types.StatusBadDebtPending, propagation.Status)
	s.Require().NotNil(propagation.AuctionID)
	s.Require().Len(s.auction.calls, 1)
	// The whole remaining credit_amount (100, nothing repaid) goes to the
	// auction, so the basket's total_debt drops from 100 to 0.
	s.Require().True(s.basket.basket.TotalDebt.Equal(cdptypes.ZeroDec()))

	_, found = s.basket.GetPosition(s.ctx, basket.ID, position.Owner, position.ID)
	s.Require().False(found)
}

func (s *KeeperTestSuite) TestLiquidatePositionWrapsAuctionFailureAsBadDebt() {
	basket, position := insolventBasketAndPosition(nil)
	s.setup(basket, position)
	s.sellWall.fail = true
	s.auction.fail = true

	_, err := s.k.LiquidatePosition(s.ctx, basket.ID, position.ID, position.Owner, "bob")
	s.Require().ErrorIs(err, types.ErrBadDebt)
}

func (s *KeeperTestSuite) TestLiqRepayRejectsWrongSender() {
	handle := uint64(1)
	basket, position := insolventBasketAndPosition(&handle)
	s.setup(basket, position)

	propagation := types.RepayPropagation{ID: 1}
	err := s.k.LiqRepay(s.ctx, "mallory", 1, &basket, &position, &propagation, cdptypes.NewDec(10))
	s.Require().ErrorIs(err, types.ErrUnauthorizedLiqRepay)
}

func (s *KeeperTestSuite) TestLiqRepayRejectsWithoutActiveSingleton() {
	handle := uint64(1)
	basket, position := insolventBasketAndPosition(&handle)
	s.setup(basket, position)

	propagation := types.RepayPropagation{ID: 1}
	params := types.DefaultParams()
	err := s.k.LiqRepay(s.ctx, params.StabilityPoolPrincipal, 1, &basket, &position, &propagation, cdptypes.NewDec(10))
	s.Require().ErrorIs(err, types.ErrNoActiveLiquidation)
}

func (s *KeeperTestSuite) TestLiqRepayRejectsMismatchedPropagationID() {
	handle := uint64(1)
	basket, position := insolventBasketAndPosition(&handle)
	s.setup(basket, position)
	s.ctx.KVStore(s.storeKey).Set(types.ActiveRepayKey, sdk.Uint64ToBigEndian(5))

	propagation := types.RepayPropagation{ID: 5}
	params := types.DefaultParams()
	err := s.k.LiqRepay(s.ctx, params.StabilityPoolPrincipal, 6, &basket, &position, &propagation, cdptypes.NewDec(10))
	s.Require().ErrorIs(err, types.ErrNoActiveLiquidation)
}
