package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ComplianceThreshold != 70 {
		t.Fatalf("compliance threshold = %d", cfg.ComplianceThreshold)
	}
	if cfg.RewardBatchSize != 50 {
		t.Fatalf("reward batch size = %d", cfg.RewardBatchSize)
	}
	if cfg.RewardMinInterval != time.Minute {
		t.Fatalf("reward min interval = %s", cfg.RewardMinInterval)
	}
	if cfg.TotalSupplyAmount().String() != "1000000000" {
		t.Fatalf("total supply = %s", cfg.TotalSupplyAmount())
	}
	if cfg.ReferencePriceAmount().String() != "1" {
		t.Fatalf("reference price = %s", cfg.ReferencePriceAmount())
	}
	if cfg.EcosystemBps+cfg.TeamBps+cfg.TreasuryBps != 10000 {
		t.Fatal("default pool split must sum to 10000 bps")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEDGER_TOKEN_TOTAL_SUPPLY", "5000")
	t.Setenv("LEDGER_DEPLOY_FEE", "12.5")
	t.Setenv("LEDGER_COMPLIANCE_THRESHOLD", "80")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TotalSupplyAmount().String() != "5000" {
		t.Fatalf("total supply = %s", cfg.TotalSupplyAmount())
	}
	if cfg.DeployFeeAmount().String() != "12.5" {
		t.Fatalf("deploy fee = %s", cfg.DeployFeeAmount())
	}
	if cfg.ComplianceThreshold != 80 {
		t.Fatalf("threshold = %d", cfg.ComplianceThreshold)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("LEDGER_TOKEN_TOTAL_SUPPLY", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("malformed supply must fail")
	}
}

func TestLoadRejectsBadSplit(t *testing.T) {
	t.Setenv("LEDGER_TOKEN_ECOSYSTEM_BPS", "9000")
	if _, err := Load(); err == nil {
		t.Fatal("pool split not summing to 10000 must fail")
	}
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	t.Setenv("LEDGER_COMPLIANCE_THRESHOLD", "101")
	if _, err := Load(); err == nil {
		t.Fatal("threshold above 100 must fail")
	}
}
