package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"

	baskettypes "github.com/sharehodl/cdpcore/x/basket/types"
)

const sampleYAML = `
tuning:
  oracle_staleness_limit: 5m
  epoch_dust_threshold: "0.00001"
genesis_baskets:
  - credit_denom: ucredit
    base_interest_rate: "0.05"
    desired_debt_cap_utilization: "0.8"
    collateral_types:
      - denom: uhodl
        max_borrow_ltv: "0.80"
        max_ltv: "0.90"
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write sample config: %v", err)
	}
	return path
}

func TestLoadFileValuesOverrideDefaults(t *testing.T) {
	path := writeSample(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tuning.OracleStalenessLimit != 5*time.Minute {
		t.Fatalf("expected oracle_staleness_limit 5m, got %s", cfg.Tuning.OracleStalenessLimit)
	}
	if len(cfg.GenesisBaskets) != 1 {
		t.Fatalf("expected 1 genesis basket, got %d", len(cfg.GenesisBaskets))
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error loading a missing config file")
	}
}

func TestChecksumIsStableForIdenticalBytes(t *testing.T) {
	path := writeSample(t)
	a, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.Checksum() != b.Checksum() {
		t.Fatalf("expected identical checksums for identical file contents")
	}
}

type fakeBasketCreator struct {
	created []baskettypes.Basket
	nextID  uint64
}

func (f *fakeBasketCreator) CreateBasket(ctx sdk.Context, basket baskettypes.Basket) (baskettypes.Basket, error) {
	f.nextID++
	basket.ID = f.nextID
	f.created = append(f.created, basket)
	return basket, nil
}

func TestSeedGenesisBasketsCreatesEachEntry(t *testing.T) {
	path := writeSample(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	creator := &fakeBasketCreator{}
	ids, err := SeedGenesisBaskets(sdk.Context{}, creator, cfg)
	if err != nil {
		t.Fatalf("SeedGenesisBaskets: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("expected a single seeded basket with id 1, got %v", ids)
	}
	if len(creator.created) != 1 {
		t.Fatalf("expected exactly one CreateBasket call, got %d", len(creator.created))
	}
	if creator.created[0].CreditAsset.Denom != "ucredit" {
		t.Fatalf("expected credit denom ucredit, got %s", creator.created[0].CreditAsset.Denom)
	}
}
