// Package config loads this engine's node-local bootstrap configuration:
// genesis basket definitions and the tuning knobs spec.md leaves to
// deployment (oracle staleness limits, liquidation-queue epoch dust
// thresholds) rather than baking them into code. Grounded on
// ChoSanghyuk-blackholedex's configs.LoadConfig and
// josephblackelite-nhbchain's services/governd/config.Load, both of
// which read a single YAML file into a typed struct with gopkg.in/yaml.v3
// and apply defaults before unmarshaling.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"

	sdk "github.com/cosmos/cosmos-sdk/types"

	cdptypes "github.com/sharehodl/cdpcore/types"
	baskettypes "github.com/sharehodl/cdpcore/x/basket/types"
)

// GenesisCAsset mirrors one entry of a basket's collateral_types at
// genesis time, in the YAML-friendly string-decimal shape.
type GenesisCAsset struct {
	Denom        string `yaml:"denom"`
	MaxBorrowLTV string `yaml:"max_borrow_ltv"`
	MaxLTV       string `yaml:"max_ltv"`
}

// GenesisBasket describes one basket to create at genesis, the minimum
// fields CreateBasket needs plus whatever peg/rate knobs the deployment
// wants to set rather than rely on the keeper's zero-value defaults.
type GenesisBasket struct {
	CreditDenom               string          `yaml:"credit_denom"`
	CollateralTypes           []GenesisCAsset `yaml:"collateral_types"`
	BaseInterestRate          string          `yaml:"base_interest_rate"`
	DesiredDebtCapUtilization string          `yaml:"desired_debt_cap_utilization"`
	RateSlopeMultiplier       string          `yaml:"rate_slope_multiplier"`
	CPCMarginOfError          string          `yaml:"cpc_margin_of_error"`
}

// EngineTuning holds the cross-module knobs spec.md leaves unspecified:
// how stale a TWAP may be before a basket op rejects it, and the
// liquidation-queue epoch dust threshold (the slot total bid amount below
// which a slot's epoch rolls over).
type EngineTuning struct {
	OracleStalenessLimit time.Duration `yaml:"oracle_staleness_limit"`
	EpochDustThreshold   string        `yaml:"epoch_dust_threshold"`
}

// Config is the full bootstrap document this engine reads at startup.
type Config struct {
	Tuning         EngineTuning    `yaml:"tuning"`
	GenesisBaskets []GenesisBasket `yaml:"genesis_baskets"`
	raw            []byte
}

// Load reads and parses the YAML config at path, applying defaults for
// tuning knobs the file omits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := &Config{
		Tuning: EngineTuning{
			OracleStalenessLimit: 10 * time.Minute,
			EpochDustThreshold:   "0.000001",
		},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	cfg.raw = data
	return cfg, nil
}

// Checksum fingerprints the raw config bytes with blake3, the same hash
// this repo uses for deterministic dispatch-frame identity (see
// x/liquidation/keeper), so operators can confirm two nodes booted from
// byte-identical config without diffing the file.
func (c *Config) Checksum() string {
	sum := blake3.Sum256(c.raw)
	return fmt.Sprintf("%x", sum)
}

// BasketCreator is the subset of x/basket/keeper.Keeper that genesis
// seeding needs; declared locally so this package doesn't import the
// keeper package (config is a bootstrap-time caller of the keeper, never
// the reverse).
type BasketCreator interface {
	CreateBasket(ctx sdk.Context, basket baskettypes.Basket) (baskettypes.Basket, error)
}

// SeedGenesisBaskets creates every basket this config declares, in file
// order, and returns their assigned IDs.
func SeedGenesisBaskets(ctx sdk.Context, creator BasketCreator, cfg *Config) ([]uint64, error) {
	ids := make([]uint64, 0, len(cfg.GenesisBaskets))
	for _, gb := range cfg.GenesisBaskets {
		collateralTypes := make([]baskettypes.CAsset, 0, len(gb.CollateralTypes))
		for _, c := range gb.CollateralTypes {
			maxBorrowLTV, err := cdptypes.NewDecFromStr(c.MaxBorrowLTV)
			if err != nil {
				return nil, fmt.Errorf("genesis basket %s: collateral %s: %w", gb.CreditDenom, c.Denom, err)
			}
			maxLTV, err := cdptypes.NewDecFromStr(c.MaxLTV)
			if err != nil {
				return nil, fmt.Errorf("genesis basket %s: collateral %s: %w", gb.CreditDenom, c.Denom, err)
			}
			collateralTypes = append(collateralTypes, baskettypes.CAsset{
				Asset:        cdptypes.NativeAsset(c.Denom),
				MaxBorrowLTV: maxBorrowLTV,
				MaxLTV:       maxLTV,
			})
		}
		baseRate, err := cdptypes.NewDecFromStr(orDefault(gb.BaseInterestRate, "0"))
		if err != nil {
			return nil, fmt.Errorf("genesis basket %s: base_interest_rate: %w", gb.CreditDenom, err)
		}
		utilization, err := cdptypes.NewDecFromStr(orDefault(gb.DesiredDebtCapUtilization, "0.8"))
		if err != nil {
			return nil, fmt.Errorf("genesis basket %s: desired_debt_cap_utilization: %w", gb.CreditDenom, err)
		}
		slope, err := cdptypes.NewDecFromStr(orDefault(gb.RateSlopeMultiplier, "1"))
		if err != nil {
			return nil, fmt.Errorf("genesis basket %s: rate_slope_multiplier: %w", gb.CreditDenom, err)
		}
		margin, err := cdptypes.NewDecFromStr(orDefault(gb.CPCMarginOfError, "0.01"))
		if err != nil {
			return nil, fmt.Errorf("genesis basket %s: cpc_margin_of_error: %w", gb.CreditDenom, err)
		}

		created, err := creator.CreateBasket(ctx, baskettypes.Basket{
			CreditAsset:               cdptypes.NativeAsset(gb.CreditDenom),
			CreditPrice:               baskettypes.CreditPrice{Price: cdptypes.OneDec(), LastUpdate: ctx.BlockTime()},
			CollateralTypes:           collateralTypes,
			BaseInterestRate:          baseRate,
			DesiredDebtCapUtilization: utilization,
			RateSlopeMultiplier:       slope,
			CPCMarginOfError:          margin,
		})
		if err != nil {
			return nil, fmt.Errorf("genesis basket %s: %w", gb.CreditDenom, err)
		}
		ids = append(ids, created.ID)
	}
	return ids, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
