package types

import (
	"context"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"

	cdptypes "github.com/sharehodl/cdpcore/types"
)

// BankKeeper defines the expected bank keeper interface, mirroring the
// teacher's x/lending/types/expected_keepers.go BankKeeper.
type BankKeeper interface {
	SendCoins(ctx context.Context, fromAddr, toAddr sdk.AccAddress, amt sdk.Coins) error
	SendCoinsFromAccountToModule(ctx context.Context, senderAddr sdk.AccAddress, recipientModule string, amt sdk.Coins) error
	SendCoinsFromModuleToAccount(ctx context.Context, senderModule string, recipientAddr sdk.AccAddress, amt sdk.Coins) error
	MintCoins(ctx context.Context, moduleName string, amt sdk.Coins) error
	BurnCoins(ctx context.Context, moduleName string, amt sdk.Coins) error
}

// PriceQuote is a single oracle reading: a price with the timestamp it
// was observed at. spec.md §1 explicitly assumes "a price-with-timestamp
// feed" and excludes oracle price discovery from this engine's scope.
type PriceQuote struct {
	Price cdptypes.Dec
	Time  time.Time
}

// OracleKeeper is the external price-feed collaborator assumed by
// spec.md §1/§4.C/§4.F. Implementations are expected to supply a
// time-weighted average price over the requested window.
type OracleKeeper interface {
	GetTWAP(ctx context.Context, asset cdptypes.AssetInfo, window time.Duration) (PriceQuote, error)
}

// InterestKeeper is the lazy-accrual collaborator: every basket
// operation that reads or writes a position must first run it through
// AccruePosition, which applies the per-collateral borrower-rate drift
// since position.last_accrued_time (spec.md §4.B, §4.C). It does not
// change credit_amount for movement of the basket's credit_price; that
// price is not an input to accrual. Implemented by
// x/interest; declared here (not imported there) to avoid a keeper
// import cycle between the two modules.
type InterestKeeper interface {
	AccruePosition(ctx sdk.Context, basket *Basket, position *Position) error
}

// StakingKeeper is the reputation-reporting surface (liquidation
// signals), mirroring the teacher's UniversalStakingKeeper wiring into
// x/lending for tier gating. The basket Keeper holds no StakingKeeper and
// does not call it.
type StakingKeeper interface {
	RecordLiquidation(ctx sdk.Context, owner sdk.AccAddress) error
}
