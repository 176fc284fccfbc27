package types

import (
	"fmt"
	"time"

	cdptypes "github.com/sharehodl/cdpcore/types"
)

// CAsset is one collateral-type entry in a basket's ordered collateral
// list, spec.md §3.
type CAsset struct {
	Asset cdptypes.AssetInfo `json:"asset"`
	// MaxBorrowLTV gates new-debt issuance; MaxLTV gates liquidation
	// eligibility. Strictly MaxBorrowLTV < MaxLTV < 1.
	MaxBorrowLTV cdptypes.Dec `json:"max_borrow_ltv"`
	MaxLTV       cdptypes.Dec `json:"max_ltv"`
	// PoolInfo optionally names a liquidity pool used to value this
	// collateral relative to the credit asset; nil when the oracle feed
	// prices it directly. Left as an opaque identifier since DEX pool
	// internals are out of scope (spec.md §1).
	PoolInfo *string `json:"pool_info,omitempty"`
	// RateIndex selects this collateral's entry in the interest engine's
	// per-collateral borrow-rate curve table (x/interest).
	RateIndex uint64 `json:"rate_index"`
	// CurrentSupply is the total amount of this collateral currently
	// locked across every position in the basket.
	CurrentSupply cdptypes.Dec `json:"current_supply"`
}

// Validate enforces spec.md §3: "max_borrow_LTV < max_LTV < 1 strictly".
func (c CAsset) Validate() error {
	if err := c.Asset.Validate(); err != nil {
		return err
	}
	one := cdptypes.OneDec()
	if !c.MaxBorrowLTV.LT(c.MaxLTV) {
		return fmt.Errorf("%w: max_borrow_ltv must be strictly less than max_ltv", ErrInvalidCAsset)
	}
	if !c.MaxLTV.LT(one) {
		return fmt.Errorf("%w: max_ltv must be strictly less than 1", ErrInvalidCAsset)
	}
	if c.MaxBorrowLTV.IsNegative() {
		return fmt.Errorf("%w: max_borrow_ltv must be non-negative", ErrInvalidCAsset)
	}
	return nil
}

// SupplyCap is a per-asset or per-group cap expressed as a ratio of total
// basket debt, spec.md §3.
type SupplyCap struct {
	// Assets names the collateral(s) this cap groups. A single-element
	// list is a per-asset cap; multiple elements form a per-group cap.
	Assets []cdptypes.AssetInfo `json:"assets"`
	// CapRatio is the ratio of total basket debt this group may back.
	CapRatio cdptypes.Dec `json:"cap_ratio"`
	// StabilityPoolRatioForDebtCap, if set, gates additional debt
	// capacity proportional to stability-pool depth (spec.md §3).
	StabilityPoolRatioForDebtCap *cdptypes.Dec `json:"stability_pool_ratio_for_debt_cap,omitempty"`
}

// CreditPrice is the basket's peg-controller state, spec.md §3's "CPC".
type CreditPrice struct {
	Price      cdptypes.Dec `json:"price"`
	LastUpdate time.Time    `json:"last_update_time"`
}

// Basket is spec.md §3's named collection of permitted collateral types
// backing a single credit token.
type Basket struct {
	ID                         uint64               `json:"id"`
	CreditAsset                cdptypes.AssetInfo   `json:"credit_asset"`
	CreditPrice                CreditPrice          `json:"credit_price"`
	CollateralTypes            []CAsset             `json:"collateral_types"`
	SupplyCaps                 []SupplyCap          `json:"supply_caps"`
	BaseInterestRate           cdptypes.Dec         `json:"base_interest_rate"`
	DesiredDebtCapUtilization  cdptypes.Dec         `json:"desired_debt_cap_utilization"`
	// RateSlopeMultiplier is the borrow-rate curve's above-kink slope
	// (spec.md §4.C); not itself listed among §3's basket fields but
	// required by the rate formula there, so it is carried alongside the
	// other curve parameters rather than hardcoded.
	RateSlopeMultiplier        cdptypes.Dec         `json:"rate_slope_multiplier"`
	NegativeRates              bool                 `json:"negative_rates"`
	CPCMarginOfError           cdptypes.Dec         `json:"cpc_margin_of_error"`
	Frozen                     bool                 `json:"frozen"`
	LiqQueueHandle             *uint64              `json:"liq_queue_handle,omitempty"`
	CurrentPositionID          uint64               `json:"current_position_id"`
	PendingRevenue             cdptypes.Dec         `json:"pending_revenue"`
	RevenueLedger              []RevenueEntry       `json:"revenue_ledger,omitempty"`
	TotalDebt                  cdptypes.Dec         `json:"total_debt"`
	StabilityPoolBuffer        cdptypes.Dec         `json:"stability_pool_buffer"`
}

// RevenueEntry is an append-only audit trail entry for pending_revenue
// changes (interest accrual and liquidation fees), added per
// SPEC_FULL.md §5 — pure provenance, no new invariant.
type RevenueEntry struct {
	Time   time.Time `json:"time"`
	Amount cdptypes.Dec `json:"amount"`
	Source string    `json:"source"`
}

// FindCAsset returns the collateral-type entry for info, if configured.
func (b Basket) FindCAsset(info cdptypes.AssetInfo) (CAsset, bool) {
	for _, c := range b.CollateralTypes {
		if c.Asset.Equal(info) {
			return c, true
		}
	}
	return CAsset{}, false
}

// DebtCap returns the basket's total debt cap: the sum of each supply
// cap's ratio applied to current total debt, per spec.md §3's invariant
// "Σ(position.debt) over a basket ≤ computed debt cap". When no caps are
// configured the cap is zero, so no new debt can be issued until at least
// one SupplyCap is configured.
func (b Basket) DebtCap() cdptypes.Dec {
	cap := cdptypes.ZeroDec()
	for _, sc := range b.SupplyCaps {
		cap = cap.Add(sc.CapRatio.Mul(b.TotalDebt))
	}
	return cap
}

// UtilizationForCAsset returns the fraction of its supply-cap group that
// a collateral is currently using, the `utilization_i` input to the
// borrow-rate curve (spec.md §4.C). Collateral not covered by any
// SupplyCap group falls back to the basket's overall debt utilization
// (total_debt / debt_cap), since an uncapped collateral still borrows
// against the shared debt ceiling.
func (b Basket) UtilizationForCAsset(info cdptypes.AssetInfo) cdptypes.Dec {
	for _, sc := range b.SupplyCaps {
		for _, a := range sc.Assets {
			if !a.Equal(info) {
				continue
			}
			groupSupply := cdptypes.ZeroDec()
			for _, ga := range sc.Assets {
				if cAsset, ok := b.FindCAsset(ga); ok {
					groupSupply = groupSupply.Add(cAsset.CurrentSupply)
				}
			}
			cap := sc.CapRatio.Mul(b.TotalDebt)
			if cap.IsZero() {
				return cdptypes.ZeroDec()
			}
			return groupSupply.Quo(cap)
		}
	}
	cap := b.DebtCap()
	if cap.IsZero() {
		return cdptypes.ZeroDec()
	}
	return b.TotalDebt.Quo(cap)
}

// Validate checks basket-level invariants that do not depend on live
// oracle state.
func (b Basket) Validate() error {
	if err := b.CreditAsset.Validate(); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, c := range b.CollateralTypes {
		if err := c.Validate(); err != nil {
			return err
		}
		if seen[c.Asset.String()] {
			return fmt.Errorf("%w: %s", ErrDuplicateCAsset, c.Asset)
		}
		seen[c.Asset.String()] = true
	}
	return nil
}

// Position is one user's leveraged borrow against one basket, spec.md §3.
type Position struct {
	ID                uint64                `json:"id"`
	BasketID           uint64                `json:"basket_id"`
	Owner             string                `json:"owner"`
	CollateralAssets   cdptypes.AssetList    `json:"collateral_assets"`
	CreditAmount       cdptypes.Dec          `json:"credit_amount"`
	LastAccruedTime    time.Time             `json:"last_accrued_time"`
}

// WeightedCollateralValue computes Σ(collateral_value × LTV), using max_LTV
// when useMaxLTV is set and max_borrow_LTV otherwise.
// prices maps AssetInfo.String() to the current oracle price.
func (p Position) WeightedCollateralValue(basket Basket, prices map[string]cdptypes.Dec, useMaxLTV bool) (cdptypes.Dec, error) {
	total := cdptypes.ZeroDec()
	for _, asset := range p.CollateralAssets {
		cAsset, ok := basket.FindCAsset(asset.Info)
		if !ok {
			return cdptypes.Dec{}, fmt.Errorf("%w: %s", ErrAssetNotFound, asset.Info)
		}
		price, ok := prices[asset.Info.String()]
		if !ok {
			return cdptypes.Dec{}, fmt.Errorf("%w: no price for %s", ErrStalePrice, asset.Info)
		}
		ltv := cAsset.MaxBorrowLTV
		if useMaxLTV {
			ltv = cAsset.MaxLTV
		}
		value := asset.Amount.Mul(price).Mul(ltv)
		total = total.Add(value)
	}
	return total, nil
}

// IsSolvent reports whether the position satisfies spec.md §3's
// solvency law at the given LTV threshold:
//   Σ(collateral_value × LTV) ≥ credit_amount × credit_price  (weak)
// When strict is true the inequality must be strict, as required for new
// debt issuance (spec.md §3: "strict inequality required for new debt
// issuance; weak inequality allowed when reducing debt").
func (p Position) IsSolvent(basket Basket, prices map[string]cdptypes.Dec, useMaxLTV bool, strict bool) (bool, error) {
	weighted, err := p.WeightedCollateralValue(basket, prices, useMaxLTV)
	if err != nil {
		return false, err
	}
	owed := p.CreditAmount.Mul(basket.CreditPrice.Price)
	if strict {
		return weighted.GT(owed), nil
	}
	return weighted.GTE(owed), nil
}

// IsEmpty reports whether the position has no debt and no collateral,
// i.e. is eligible for deletion per spec.md §3's Position lifecycle.
func (p Position) IsEmpty() bool {
	return p.CreditAmount.IsZero() && p.CollateralAssets.IsZero()
}
