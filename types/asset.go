package types

import (
	"fmt"
	"strings"
)

// AssetInfo identifies an asset either by a native bank denom or by a
// token-contract address, mirroring the teacher's habit of treating HODL
// (native) and equity-share tokens (contract-addressed) uniformly inside
// x/lending.Collateral. Equality is structural on the pair, per spec.md
// §3.
type AssetInfo struct {
	// Denom is set for native-denom assets; empty for contract tokens.
	Denom string `json:"denom,omitempty"`
	// Contract is set for token-contract assets; empty for native denoms.
	Contract string `json:"contract,omitempty"`
}

// NativeAsset builds an AssetInfo for a native bank denom.
func NativeAsset(denom string) AssetInfo { return AssetInfo{Denom: denom} }

// ContractAsset builds an AssetInfo for a token-contract address.
func ContractAsset(contract string) AssetInfo { return AssetInfo{Contract: contract} }

// IsNative reports whether this is a native-denom asset.
func (a AssetInfo) IsNative() bool { return a.Denom != "" }

// Validate checks that exactly one of Denom/Contract is set.
func (a AssetInfo) Validate() error {
	if (a.Denom == "") == (a.Contract == "") {
		return fmt.Errorf("%w: exactly one of denom/contract must be set", ErrInvalidAsset)
	}
	return nil
}

// Equal reports whether both identify the same asset: Denom must match
// exactly, Contract is compared case-insensitively.
func (a AssetInfo) Equal(other AssetInfo) bool {
	return a.Denom == other.Denom && strings.EqualFold(a.Contract, other.Contract)
}

// String renders a human-readable identifier for logs/events.
func (a AssetInfo) String() string {
	if a.IsNative() {
		return a.Denom
	}
	return a.Contract
}

// Asset is an (info, amount) pair, spec.md §3's base unit of value.
type Asset struct {
	Info   AssetInfo `json:"info"`
	Amount Dec       `json:"amount"`
}

// NewAsset constructs an Asset.
func NewAsset(info AssetInfo, amount Dec) Asset {
	return Asset{Info: info, Amount: amount}
}

// AssetList is an ordered bundle of assets, e.g. a position's collateral
// list or a liquidation's multi-asset release.
type AssetList []Asset

// Find returns the Asset matching info and whether it was found.
func (l AssetList) Find(info AssetInfo) (Asset, bool) {
	for _, a := range l {
		if a.Info.Equal(info) {
			return a, true
		}
	}
	return Asset{}, false
}

// Add returns a new AssetList with amount added to the entry matching
// info (creating it if absent).
func (l AssetList) Add(info AssetInfo, amount Dec) AssetList {
	out := make(AssetList, 0, len(l)+1)
	found := false
	for _, a := range l {
		if a.Info.Equal(info) {
			out = append(out, Asset{Info: info, Amount: a.Amount.Add(amount)})
			found = true
		} else {
			out = append(out, a)
		}
	}
	if !found {
		out = append(out, Asset{Info: info, Amount: amount})
	}
	return out
}

// Sub returns a new AssetList with amount subtracted from the entry
// matching info. Entries that drop to zero are dropped from the result.
func (l AssetList) Sub(info AssetInfo, amount Dec) (AssetList, error) {
	out := make(AssetList, 0, len(l))
	found := false
	for _, a := range l {
		if a.Info.Equal(info) {
			found = true
			remaining := a.Amount.Sub(amount)
			if remaining.IsNegative() {
				return nil, fmt.Errorf("insufficient %s: has %s, needs %s", info, a.Amount, amount)
			}
			if remaining.IsZero() {
				continue
			}
			out = append(out, Asset{Info: info, Amount: remaining})
			continue
		}
		out = append(out, a)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s not present", ErrInvalidAsset, info)
	}
	return out, nil
}

// IsZero reports whether every asset in the list has a zero amount.
func (l AssetList) IsZero() bool {
	for _, a := range l {
		if !a.Amount.IsZero() {
			return false
		}
	}
	return true
}
