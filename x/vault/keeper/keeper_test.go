package keeper_test

import (
	"context"
	"testing"
	"time"

	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/suite"

	"github.com/sharehodl/cdpcore/testutil"
	cdptypes "github.com/sharehodl/cdpcore/types"
	baskettypes "github.com/sharehodl/cdpcore/x/basket/types"
	"github.com/sharehodl/cdpcore/x/vault/keeper"
	"github.com/sharehodl/cdpcore/x/vault/types"
)

var collateralAsset = cdptypes.NativeAsset("uhodl")
var creditAsset = cdptypes.NativeAsset("ucredit")

// fakeBasketKeeper is an in-memory BasketKeeper double that tracks a
// single position, grounded on the teacher's MockBankKeeper-style test
// doubles in x/extbridge/keeper/keeper_test.go.
type fakeBasketKeeper struct {
	basket   baskettypes.Basket
	position baskettypes.Position
}

func newFakeBasketKeeper() *fakeBasketKeeper {
	return &fakeBasketKeeper{
		basket: baskettypes.Basket{
			ID:          1,
			CreditAsset: creditAsset,
			CreditPrice: baskettypes.CreditPrice{Price: cdptypes.OneDec()},
			CollateralTypes: []baskettypes.CAsset{
				{Asset: collateralAsset, MaxBorrowLTV: cdptypes.MustNewDecFromStr("0.90"), MaxLTV: cdptypes.MustNewDecFromStr("0.95")},
			},
		},
	}
}

func (f *fakeBasketKeeper) GetBasket(ctx sdk.Context, basketID uint64) (baskettypes.Basket, bool) {
	return f.basket, f.basket.ID == basketID
}

func (f *fakeBasketKeeper) GetPosition(ctx sdk.Context, basketID uint64, owner string, positionID uint64) (baskettypes.Position, bool) {
	if f.position.ID == 0 {
		return baskettypes.Position{}, false
	}
	return f.position, true
}

func (f *fakeBasketKeeper) OpenOrDeposit(ctx sdk.Context, basketID uint64, owner string, positionID *uint64, assets cdptypes.AssetList) (baskettypes.Position, error) {
	if f.position.ID == 0 {
		f.position = baskettypes.Position{
			ID: 1, BasketID: basketID, Owner: owner,
			CollateralAssets: cdptypes.AssetList{}, CreditAmount: cdptypes.ZeroDec(),
		}
	}
	for _, a := range assets {
		f.position.CollateralAssets = f.position.CollateralAssets.Add(a.Info, a.Amount)
	}
	return f.position, nil
}

func (f *fakeBasketKeeper) Withdraw(ctx sdk.Context, basketID uint64, owner string, positionID uint64, assets cdptypes.AssetList, prices map[string]cdptypes.Dec) (baskettypes.Position, error) {
	for _, a := range assets {
		remaining, err := f.position.CollateralAssets.Sub(a.Info, a.Amount)
		if err != nil {
			return f.position, err
		}
		f.position.CollateralAssets = remaining
	}
	return f.position, nil
}

func (f *fakeBasketKeeper) IncreaseDebt(ctx sdk.Context, basketID uint64, owner string, positionID uint64, amount cdptypes.Dec, prices map[string]cdptypes.Dec) (baskettypes.Position, error) {
	f.position.CreditAmount = f.position.CreditAmount.Add(amount)
	return f.position, nil
}

func (f *fakeBasketKeeper) Repay(ctx sdk.Context, basketID uint64, owner string, positionID uint64, amount cdptypes.Dec) (baskettypes.Position, cdptypes.Dec, error) {
	f.position.CreditAmount = f.position.CreditAmount.Sub(amount)
	return f.position, cdptypes.ZeroDec(), nil
}

// fakeOracleKeeper always quotes a fixed price.
type fakeOracleKeeper struct {
	price cdptypes.Dec
}

func (f *fakeOracleKeeper) GetTWAP(ctx context.Context, asset cdptypes.AssetInfo, window time.Duration) (types.PriceQuote, error) {
	return types.PriceQuote{Price: f.price, Time: time.Now()}, nil
}

// fakeSwapKeeper swaps at a fixed 1:1 rate between credit and
// collateral, standing in for the out-of-scope DEX/AMM this module
// never implements concretely.
type fakeSwapKeeper struct{}

func (fakeSwapKeeper) Swap(ctx sdk.Context, fromAsset cdptypes.AssetInfo, fromAmount cdptypes.Dec, toAsset cdptypes.AssetInfo) (cdptypes.Dec, error) {
	return fromAmount, nil
}

type KeeperTestSuite struct {
	suite.Suite
	ctx    sdk.Context
	k      *keeper.Keeper
	basket *fakeBasketKeeper
	oracle *fakeOracleKeeper
}

func TestKeeperTestSuite(t *testing.T) {
	suite.Run(t, new(KeeperTestSuite))
}

func (s *KeeperTestSuite) SetupTest() {
	ctx, storeKeys, memKeys := testutil.NewStoreKeys(types.ModuleName)
	s.ctx = ctx
	s.basket = newFakeBasketKeeper()
	s.oracle = &fakeOracleKeeper{price: cdptypes.OneDec()}

	cdc := codec.NewProtoCodec(codectypes.NewInterfaceRegistry())
	s.k = keeper.NewKeeper(cdc, storeKeys[types.ModuleName], memKeys[types.ModuleName], s.basket, s.oracle, fakeSwapKeeper{})

	s.Require().NoError(s.k.SetParams(s.ctx, types.DefaultParams()))
}

func (s *KeeperTestSuite) TestLoopRejectsBelowFloorPrice() {
	s.oracle.price = cdptypes.MustNewDecFromStr("0.90")
	_, _, err := s.k.Loop(s.ctx, 1, "alice", cdptypes.NewDec(1000))
	s.Require().ErrorIs(err, types.ErrLoopPriceTooLow)
}

func (s *KeeperTestSuite) TestLoopSeedsOneToOneOnFirstDeposit() {
	vaultID, minted, err := s.k.Loop(s.ctx, 1, "alice", cdptypes.NewDec(1000))
	s.Require().NoError(err)
	s.Require().Equal(uint64(1), vaultID)
	s.Require().True(minted.Equal(cdptypes.NewDec(1000)))

	v, found := s.k.GetVault(s.ctx, vaultID)
	s.Require().True(found)
	s.Require().True(v.VaultTokenSupply.Equal(cdptypes.NewDec(1000)))
	s.Require().True(v.BufferedBaseTokens.Equal(cdptypes.NewDec(50)))
}

func (s *KeeperTestSuite) TestLoopMintsAgainstHeadroomAndRedeposits() {
	_, _, err := s.k.Loop(s.ctx, 1, "alice", cdptypes.NewDec(1000))
	s.Require().NoError(err)

	collateral, ok := s.basket.position.CollateralAssets.Find(collateralAsset)
	s.Require().True(ok)
	// 950 looped plus the minted-and-swapped-back credit (90% LTV headroom
	// on 950 value, capped at the 101 min_debt_gap) redeposited as more
	// collateral at the 1:1 swap rate.
	s.Require().True(collateral.Amount.GT(cdptypes.NewDec(950)))
	s.Require().True(s.basket.position.CreditAmount.IsPositive())
	s.Require().True(s.basket.position.CreditAmount.LTE(cdptypes.NewDec(101)))
}

func (s *KeeperTestSuite) TestUnloopRejectsAboveCeilingPrice() {
	_, _, err := s.k.Loop(s.ctx, 1, "alice", cdptypes.NewDec(1000))
	s.Require().NoError(err)

	s.oracle.price = cdptypes.MustNewDecFromStr("1.05")
	_, err = s.k.Unloop(s.ctx, 1, "alice", cdptypes.NewDec(500))
	s.Require().ErrorIs(err, types.ErrUnloopPriceTooHigh)
}

func (s *KeeperTestSuite) TestUnloopRejectsOverdraw() {
	_, minted, err := s.k.Loop(s.ctx, 1, "alice", cdptypes.NewDec(1000))
	s.Require().NoError(err)

	_, err = s.k.Unloop(s.ctx, 1, "alice", minted.Add(cdptypes.NewDec(1)))
	s.Require().ErrorIs(err, types.ErrInsufficientVaultShare)
}

func (s *KeeperTestSuite) TestFullUnloopBurnsAllVaultTokensAndRepaysDebt() {
	_, minted, err := s.k.Loop(s.ctx, 1, "alice", cdptypes.NewDec(1000))
	s.Require().NoError(err)

	_, err = s.k.Unloop(s.ctx, 1, "alice", minted)
	s.Require().NoError(err)

	v, found := s.k.GetVault(s.ctx, 1)
	s.Require().True(found)
	s.Require().True(v.VaultTokenSupply.IsZero())
	s.Require().True(s.basket.position.CreditAmount.IsZero())
}
