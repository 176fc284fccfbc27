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
	"github.com/sharehodl/cdpcore/x/liqqueue/keeper"
	"github.com/sharehodl/cdpcore/x/liqqueue/types"
)

var bidAsset = cdptypes.NativeAsset("uhodl")

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

func (s *KeeperTestSuite) newQueue(maxPremium uint64) types.LiquidationQueue {
	q, err := s.k.CreateQueue(s.ctx, 1, bidAsset, maxPremium,
		cdptypes.NewDec(1_000_000), cdptypes.NewDec(100), cdptypes.NewDec(10), time.Hour)
	s.Require().NoError(err)
	return q
}

func (s *KeeperTestSuite) TestSubmitBidBelowBidThresholdGoesToWaiting() {
	q := s.newQueue(5)
	bid, err := s.k.SubmitBid(s.ctx, q.Handle, 3, "alice", cdptypes.NewDec(500))
	s.Require().NoError(err)

	stored, found := s.k.GetQueue(s.ctx, q.Handle)
	s.Require().True(found)
	slot := stored.Slots[3]
	s.Require().Len(slot.WaitingBids, 1)
	s.Require().Empty(slot.ActiveBids)
	s.Require().Equal(bid.ID, slot.WaitingBids[0].ID)
}

func (s *KeeperTestSuite) TestSubmitBidAboveThresholdGoesActiveAndSplits() {
	q := s.newQueue(5)
	// First bid at exactly the threshold activates immediately.
	_, err := s.k.SubmitBid(s.ctx, q.Handle, 2, "alice", cdptypes.NewDec(1_000_000))
	s.Require().NoError(err)

	stored, found := s.k.GetQueue(s.ctx, q.Handle)
	s.Require().True(found)
	slot := stored.Slots[2]
	s.Require().Len(slot.ActiveBids, 1)
	s.Require().True(slot.TotalBidAmount.Equal(cdptypes.NewDec(1_000_000)))

	// A second, smaller bid on an already-active slot goes straight to active.
	_, err = s.k.SubmitBid(s.ctx, q.Handle, 2, "bob", cdptypes.NewDec(500))
	s.Require().NoError(err)
	stored, _ = s.k.GetQueue(s.ctx, q.Handle)
	slot = stored.Slots[2]
	s.Require().Len(slot.ActiveBids, 2)
}

func (s *KeeperTestSuite) TestSubmitBidRejectsBelowMinimum() {
	q := s.newQueue(5)
	_, err := s.k.SubmitBid(s.ctx, q.Handle, 1, "alice", cdptypes.NewDec(1))
	s.Require().ErrorIs(err, types.ErrBidBelowMinimum)
}

func (s *KeeperTestSuite) TestSubmitBidRejectsPremiumAboveMax() {
	q := s.newQueue(5)
	_, err := s.k.SubmitBid(s.ctx, q.Handle, 6, "alice", cdptypes.NewDec(500))
	s.Require().ErrorIs(err, types.ErrInvalidPremium)
}

func (s *KeeperTestSuite) TestLiquidateConsumesLowestPremiumSlotFirst() {
	q := s.newQueue(5)
	_, err := s.k.SubmitBid(s.ctx, q.Handle, 0, "alice", cdptypes.NewDec(1_000_000))
	s.Require().NoError(err)
	_, err = s.k.SubmitBid(s.ctx, q.Handle, 1, "bob", cdptypes.NewDec(1_000_000))
	s.Require().NoError(err)

	leftover, repaid, err := s.k.Liquidate(s.ctx, q.Handle, cdptypes.NewDec(1_000_000), cdptypes.NewDec(10_000_000), cdptypes.OneDec(), cdptypes.OneDec())
	s.Require().NoError(err)
	s.Require().True(repaid.Equal(cdptypes.NewDec(1_000_000)))
	s.Require().True(leftover.IsPositive())

	stored, _ := s.k.GetQueue(s.ctx, q.Handle)
	// Slot 0 (alice, cheapest premium) should be fully drained before slot 1 is touched.
	s.Require().True(stored.Slots[0].TotalBidAmount.IsZero())
	s.Require().True(stored.Slots[1].TotalBidAmount.Equal(cdptypes.NewDec(1_000_000)))
}

func (s *KeeperTestSuite) TestClaimableCollateralAfterPartialLiquidation() {
	q := s.newQueue(5)
	_, err := s.k.SubmitBid(s.ctx, q.Handle, 0, "alice", cdptypes.NewDec(1_000_000))
	s.Require().NoError(err)

	_, _, err = s.k.Liquidate(s.ctx, q.Handle, cdptypes.NewDec(500_000), cdptypes.NewDec(10_000_000), cdptypes.OneDec(), cdptypes.OneDec())
	s.Require().NoError(err)

	compounded, gain, err := s.k.ClaimableCollateral(s.ctx, q.Handle, 0, 1)
	s.Require().NoError(err)
	s.Require().True(compounded.Equal(cdptypes.NewDec(500_000)))
	s.Require().True(gain.IsPositive())
}

func (s *KeeperTestSuite) TestRetractBidClaimsCollateralThenPrincipal() {
	q := s.newQueue(5)
	_, err := s.k.SubmitBid(s.ctx, q.Handle, 0, "alice", cdptypes.NewDec(1_000_000))
	s.Require().NoError(err)
	_, _, err = s.k.Liquidate(s.ctx, q.Handle, cdptypes.NewDec(500_000), cdptypes.NewDec(10_000_000), cdptypes.OneDec(), cdptypes.OneDec())
	s.Require().NoError(err)

	gain, retracted, err := s.k.RetractBid(s.ctx, q.Handle, 0, "alice", 1, cdptypes.NewDec(500_000))
	s.Require().NoError(err)
	s.Require().True(gain.IsPositive())
	s.Require().True(retracted.Equal(cdptypes.NewDec(500_000)))

	stored, _ := s.k.GetQueue(s.ctx, q.Handle)
	s.Require().Empty(stored.Slots[0].ActiveBids)
}

func (s *KeeperTestSuite) TestRetractBidRejectsWrongOwner() {
	q := s.newQueue(5)
	_, err := s.k.SubmitBid(s.ctx, q.Handle, 0, "alice", cdptypes.NewDec(1_000_000))
	s.Require().NoError(err)

	_, _, err = s.k.RetractBid(s.ctx, q.Handle, 0, "mallory", 1, cdptypes.NewDec(1_000_000))
	s.Require().ErrorIs(err, types.ErrUnauthorizedRetract)
}

func (s *KeeperTestSuite) TestCheckLiquidatibleDoesNotMutateQueue() {
	q := s.newQueue(5)
	_, err := s.k.SubmitBid(s.ctx, q.Handle, 0, "alice", cdptypes.NewDec(1_000_000))
	s.Require().NoError(err)

	_, repaid, err := s.k.CheckLiquidatible(s.ctx, q.Handle, cdptypes.NewDec(500_000), cdptypes.NewDec(10_000_000), cdptypes.OneDec(), cdptypes.OneDec())
	s.Require().NoError(err)
	s.Require().True(repaid.Equal(cdptypes.NewDec(500_000)))

	stored, _ := s.k.GetQueue(s.ctx, q.Handle)
	s.Require().True(stored.Slots[0].TotalBidAmount.Equal(cdptypes.NewDec(1_000_000)))
}
