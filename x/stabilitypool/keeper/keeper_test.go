package keeper_test

import (
	"testing"
	"time"

	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/suite"

	"github.com/sharehodl/cdpcore/testutil"
	cdptypes "github.com/sharehodl/cdpcore/types"
	"github.com/sharehodl/cdpcore/x/stabilitypool/keeper"
	"github.com/sharehodl/cdpcore/x/stabilitypool/types"
)

var creditAsset = cdptypes.NativeAsset("ucredit")
var collateralAsset = cdptypes.NativeAsset("uhodl")

type KeeperTestSuite struct {
	suite.Suite
	ctx sdk.Context
	k   *keeper.Keeper
}

func TestKeeperTestSuite(t *testing.T) {
	suite.Run(t, new(KeeperTestSuite))
}

func (s *KeeperTestSuite) SetupTest() {
	ctx, storeKeys, memKeys := testutil.NewStoreKeys(types.ModuleName)
	s.ctx = ctx
	cdc := codec.NewProtoCodec(codectypes.NewInterfaceRegistry())
	s.k = keeper.NewKeeper(cdc, storeKeys[types.ModuleName], memKeys[types.ModuleName])
}

func (s *KeeperTestSuite) newPool() types.Pool {
	pool, err := s.k.CreatePool(s.ctx, 1, creditAsset,
		cdptypes.NewDec(10), cdptypes.MustNewDecFromStr("0.10"), cdptypes.NewDec(1_000_000), 24*time.Hour)
	s.Require().NoError(err)
	return pool
}

func (s *KeeperTestSuite) TestDepositRejectsBelowMinimum() {
	s.newPool()
	err := s.k.Deposit(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(1))
	s.Require().ErrorIs(err, types.ErrBelowMinimumDeposit)
}

func (s *KeeperTestSuite) TestDepositAppendsFIFO() {
	s.newPool()
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "bob", cdptypes.NewDec(200)))

	pool, found := s.k.GetPool(s.ctx, creditAsset.String())
	s.Require().True(found)
	s.Require().Len(pool.Deposits, 2)
	s.Require().Equal("alice", pool.Deposits[0].Owner)
	s.Require().Equal("bob", pool.Deposits[1].Owner)
}

func (s *KeeperTestSuite) TestRequestWithdrawSplitsPartialDeposit() {
	s.newPool()
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))
	s.Require().NoError(s.k.RequestWithdraw(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(40)))

	pool, _ := s.k.GetPool(s.ctx, creditAsset.String())
	s.Require().Len(pool.Deposits, 2)
	var unstaking, staked types.Deposit
	for _, d := range pool.Deposits {
		if d.IsUnstaking() {
			unstaking = d
		} else {
			staked = d
		}
	}
	s.Require().True(unstaking.Amount.Equal(cdptypes.NewDec(40)))
	s.Require().True(staked.Amount.Equal(cdptypes.NewDec(60)))
}

func (s *KeeperTestSuite) TestRequestWithdrawRejectsInsufficientDeposit() {
	s.newPool()
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))
	err := s.k.RequestWithdraw(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(500))
	s.Require().ErrorIs(err, types.ErrInsufficientDeposit)
}

func (s *KeeperTestSuite) TestCompleteWithdrawRejectsBeforeUnstakingPeriodElapses() {
	s.newPool()
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))
	s.Require().NoError(s.k.RequestWithdraw(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))

	_, err := s.k.CompleteWithdraw(s.ctx, creditAsset.String(), "alice")
	s.Require().ErrorIs(err, types.ErrStillUnstaking)
}

func (s *KeeperTestSuite) TestWithdrawImmediateBypassesUnstakingTimer() {
	s.newPool()
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))

	asset, err := s.k.WithdrawImmediate(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100))
	s.Require().NoError(err)
	s.Require().True(asset.Amount.Equal(cdptypes.NewDec(100)))

	pool, _ := s.k.GetPool(s.ctx, creditAsset.String())
	s.Require().Empty(pool.Deposits)
}

func (s *KeeperTestSuite) TestRestakeReversesUnstakingDeposit() {
	s.newPool()
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))
	s.Require().NoError(s.k.RequestWithdraw(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))
	s.Require().NoError(s.k.Restake(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))

	pool, _ := s.k.GetPool(s.ctx, creditAsset.String())
	s.Require().Len(pool.Deposits, 1)
	s.Require().False(pool.Deposits[0].IsUnstaking())
}

func (s *KeeperTestSuite) TestLiquidateConsumesHeadFirstAndReportsLeftover() {
	s.newPool()
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "bob", cdptypes.NewDec(100)))

	leftover, err := s.k.Liquidate(s.ctx, creditAsset.String(), cdptypes.NewDec(150))
	s.Require().NoError(err)
	s.Require().True(leftover.IsZero())

	pool, _ := s.k.GetPool(s.ctx, creditAsset.String())
	s.Require().Len(pool.Deposits, 1)
	s.Require().Equal("bob", pool.Deposits[0].Owner)
	s.Require().True(pool.Deposits[0].Amount.Equal(cdptypes.NewDec(50)))
	s.Require().Len(pool.PendingConsumption, 2)
}

func (s *KeeperTestSuite) TestLiquidateReportsLeftoverWhenPoolExhausted() {
	s.newPool()
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))

	leftover, err := s.k.Liquidate(s.ctx, creditAsset.String(), cdptypes.NewDec(150))
	s.Require().NoError(err)
	s.Require().True(leftover.Equal(cdptypes.NewDec(50)))

	pool, _ := s.k.GetPool(s.ctx, creditAsset.String())
	s.Require().Empty(pool.Deposits)
}

func (s *KeeperTestSuite) TestDistributeCreditsProRataAgainstPendingConsumption() {
	s.newPool()
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "bob", cdptypes.NewDec(100)))
	_, err := s.k.Liquidate(s.ctx, creditAsset.String(), cdptypes.NewDec(100))
	s.Require().NoError(err)

	released := cdptypes.AssetList{}.Add(collateralAsset, cdptypes.NewDec(100))
	claims, err := s.k.Distribute(s.ctx, creditAsset.String(), released)
	s.Require().NoError(err)
	s.Require().Len(claims, 1)
	s.Require().Equal(collateralAsset.String(), claims["alice"][0].Info.String())

	balance := s.k.GetClaimable(s.ctx, creditAsset.String(), "alice")
	amt, ok := balance.Assets.Find(collateralAsset)
	s.Require().True(ok)
	s.Require().True(amt.Amount.Equal(cdptypes.NewDec(100)))
}

func (s *KeeperTestSuite) TestDistributeRejectsWithoutPendingConsumption() {
	s.newPool()
	released := cdptypes.AssetList{}.Add(collateralAsset, cdptypes.NewDec(100))
	_, err := s.k.Distribute(s.ctx, creditAsset.String(), released)
	s.Require().Error(err)
}

func (s *KeeperTestSuite) TestClaimAllZeroesClaimableBalance() {
	s.newPool()
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))
	_, err := s.k.Liquidate(s.ctx, creditAsset.String(), cdptypes.NewDec(100))
	s.Require().NoError(err)
	_, err = s.k.Distribute(s.ctx, creditAsset.String(), cdptypes.AssetList{}.Add(collateralAsset, cdptypes.NewDec(50)))
	s.Require().NoError(err)

	assets, err := s.k.ClaimAll(s.ctx, creditAsset.String(), "alice")
	s.Require().NoError(err)
	s.Require().Len(assets, 1)

	balance := s.k.GetClaimable(s.ctx, creditAsset.String(), "alice")
	s.Require().True(balance.Assets.IsZero())
}

func (s *KeeperTestSuite) TestCompoundFeeDistributesProRataToPriorDepositsOnly() {
	s.newPool()
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))

	s.Require().NoError(s.k.DepositFee(s.ctx, creditAsset.String(), cdptypes.NewDec(10)))

	// bob deposits after the fee event and must not share in it.
	s.ctx = s.ctx.WithBlockTime(s.ctx.BlockTime().Add(time.Second))
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "bob", cdptypes.NewDec(100)))

	s.Require().NoError(s.k.CompoundFee(s.ctx, creditAsset.String(), 0))

	pool, _ := s.k.GetPool(s.ctx, creditAsset.String())
	s.Require().Empty(pool.OutstandingFees)
	var aliceAmount, bobAmount cdptypes.Dec
	for _, d := range pool.Deposits {
		if d.Owner == "alice" {
			aliceAmount = d.Amount
		}
		if d.Owner == "bob" {
			bobAmount = d.Amount
		}
	}
	s.Require().True(aliceAmount.Equal(cdptypes.NewDec(110)))
	s.Require().True(bobAmount.Equal(cdptypes.NewDec(100)))
}

func (s *KeeperTestSuite) TestCompoundFeeRejectsWhenNoFeesOutstanding() {
	s.newPool()
	err := s.k.CompoundFee(s.ctx, creditAsset.String(), 0)
	s.Require().ErrorIs(err, types.ErrNoFees)
}

func (s *KeeperTestSuite) TestPoolTotalStakedSumsLiveDeposits() {
	s.newPool()
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "alice", cdptypes.NewDec(100)))
	s.Require().NoError(s.k.Deposit(s.ctx, creditAsset.String(), "bob", cdptypes.NewDec(50)))

	total, found := s.k.PoolTotalStaked(s.ctx, creditAsset.String())
	s.Require().True(found)
	s.Require().True(total.Equal(cdptypes.NewDec(150)))
}
